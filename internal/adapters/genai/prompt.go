package genai

import (
	"fmt"
	"strings"

	"github.com/atvirokodosprendimai/testforge/internal/pageinfo"
)

const maxPromptHTML = 5000

func buildPrompt(facts pageinfo.Facts, htmlContent string) string {
	truncated := htmlContent
	if len(truncated) > maxPromptHTML {
		truncated = truncated[:maxPromptHTML]
	}

	var b strings.Builder
	b.WriteString("You are a senior QA engineer. Generate test cases for the web page below.\n\n")
	if facts.Title != "" {
		fmt.Fprintf(&b, "Page title: %s\n", facts.Title)
	}
	if facts.Heading != "" {
		fmt.Fprintf(&b, "Main heading: %s\n", facts.Heading)
	}
	fmt.Fprintf(&b, "Detected elements: %s\n\n", facts.Summary())
	b.WriteString("HTML (truncated):\n")
	b.WriteString(truncated)
	b.WriteString("\n\nRespond with ONLY a JSON object, no markdown fences, matching exactly:\n")
	b.WriteString(`{
  "testCases": [
    {
      "name": "short imperative name",
      "description": "what the test verifies",
      "steps": ["step one", "step two"],
      "testData": {"field": "value"},
      "expectedResult": "observable outcome",
      "priority": "Critical|High|Medium|Low",
      "type": "Functional|Validation|Security|UI|Performance|Integration|Regression|Smoke",
      "tags": ["tag"],
      "notes": ""
    }
  ]
}`)
	b.WriteString("\nEvery step must be a concrete action. Cover the detected elements.")
	return b.String()
}
