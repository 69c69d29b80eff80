package genai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/testforge/internal/domain"
	"github.com/atvirokodosprendimai/testforge/internal/pageinfo"
)

var allowedPriorities = map[string]bool{
	"Critical": true,
	"High":     true,
	"Medium":   true,
	"Low":      true,
}

var allowedTypes = map[string]bool{
	"Functional":  true,
	"Validation":  true,
	"Security":    true,
	"UI":          true,
	"Performance": true,
	"Integration": true,
	"Regression":  true,
	"Smoke":       true,
}

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

type Generator struct {
	gemini  *GeminiClient
	mock    bool
	timeout time.Duration
}

func NewGenerator(gemini *GeminiClient, mock bool) *Generator {
	return &Generator{gemini: gemini, mock: mock, timeout: 45 * time.Second}
}

// Generate never fails: a missing key, mock mode, upstream errors and
// unusable responses all land on the element-derived fallback set.
func (g *Generator) Generate(ctx context.Context, facts pageinfo.Facts, htmlContent string) []domain.GeneratedTest {
	if g.mock || !g.gemini.Available() {
		slog.Info("ai generation skipped, using fallback tests", "mock", g.mock)
		return FallbackTests(facts)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.gemini.GenerateContent(ctx, buildPrompt(facts, htmlContent))
	if err != nil {
		slog.Warn("ai generation failed, using fallback tests", "error", err)
		return FallbackTests(facts)
	}

	tests, err := parseGenerated(raw)
	if err != nil {
		slog.Warn("ai response unusable, using fallback tests", "error", err)
		return FallbackTests(facts)
	}

	valid := make([]domain.GeneratedTest, 0, len(tests))
	for _, candidate := range tests {
		if validCandidate(candidate) {
			valid = append(valid, candidate)
		}
	}
	if len(valid) == 0 {
		slog.Warn("ai produced no valid test cases, using fallback tests")
		return FallbackTests(facts)
	}
	return valid
}

type generatedPayload struct {
	TestCases []domain.GeneratedTest `json:"testCases"`
}

// parseGenerated tries a direct decode first, then one recovery attempt
// on the outermost {...} block (models wrap JSON in prose or fences).
func parseGenerated(raw string) ([]domain.GeneratedTest, error) {
	var payload generatedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err == nil && len(payload.TestCases) > 0 {
		return payload.TestCases, nil
	}

	match := jsonObjectPattern.FindString(raw)
	if match == "" {
		return nil, errNoJSON
	}
	if err := json.Unmarshal([]byte(match), &payload); err != nil {
		return nil, err
	}
	if len(payload.TestCases) == 0 {
		return nil, errNoJSON
	}
	return payload.TestCases, nil
}

var errNoJSON = errors.New("no test case JSON found in response")

func validCandidate(t domain.GeneratedTest) bool {
	if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Description) == "" {
		return false
	}
	if len(t.Steps) == 0 {
		return false
	}
	for _, step := range t.Steps {
		if len(strings.TrimSpace(step)) < 5 {
			return false
		}
	}
	if !allowedPriorities[t.Priority] {
		return false
	}
	if !allowedTypes[t.Type] {
		return false
	}
	if len(strings.TrimSpace(t.ExpectedResult)) < 10 {
		return false
	}
	if len(t.TestData) == 0 {
		return false
	}
	return true
}

// FallbackTests derives a deterministic suite from the element inventory.
func FallbackTests(facts pageinfo.Facts) []domain.GeneratedTest {
	tests := []domain.GeneratedTest{
		{
			Name:           "Page loads successfully",
			Description:    "Verify the page renders without errors and core content is visible",
			Steps:          []string{"Open the page in a browser", "Wait for the document to finish loading", "Check that the main content is visible"},
			TestData:       map[string]string{"url": "target page"},
			ExpectedResult: "Page renders completely with no console errors",
			Priority:       "Critical",
			Type:           "Smoke",
			Tags:           []string{"smoke", "auto-generated"},
		},
	}

	if len(facts.Forms) > 0 {
		tests = append(tests,
			domain.GeneratedTest{
				Name:           "Form submission works",
				Description:    "Verify the form submits when all fields hold valid values",
				Steps:          []string{"Fill every form field with valid data", "Submit the form", "Observe the response"},
				TestData:       map[string]string{"fields": "valid values"},
				ExpectedResult: "Form submits and a success response is shown",
				Priority:       "High",
				Type:           "Functional",
				Tags:           []string{"form", "auto-generated"},
			},
			domain.GeneratedTest{
				Name:           "Form validation rejects empty input",
				Description:    "Verify required fields block submission when left empty",
				Steps:          []string{"Leave required fields empty", "Submit the form", "Check for validation messages"},
				TestData:       map[string]string{"fields": "empty"},
				ExpectedResult: "Submission is blocked and validation messages appear",
				Priority:       "High",
				Type:           "Validation",
				Tags:           []string{"validation", "auto-generated"},
			},
		)
	}
	if len(facts.Buttons) > 0 {
		tests = append(tests, domain.GeneratedTest{
			Name:           "Button interactions respond",
			Description:    "Verify every visible button reacts to a click",
			Steps:          []string{"Locate each button on the page", "Click each button once", "Observe the triggered behavior"},
			TestData:       map[string]string{"buttons": "all visible"},
			ExpectedResult: "Each button triggers its expected action",
			Priority:       "Medium",
			Type:           "Functional",
			Tags:           []string{"buttons", "auto-generated"},
		})
	}
	if len(facts.Inputs) > 0 {
		tests = append(tests, domain.GeneratedTest{
			Name:           "Input fields accept text",
			Description:    "Verify text entry works in every input field",
			Steps:          []string{"Focus each input field", "Type a sample value", "Check the value is retained"},
			TestData:       map[string]string{"sample": "test input"},
			ExpectedResult: "All inputs accept and retain typed values",
			Priority:       "Medium",
			Type:           "Functional",
			Tags:           []string{"inputs", "auto-generated"},
		})
	}
	if len(facts.Links) > 0 {
		tests = append(tests, domain.GeneratedTest{
			Name:           "Navigation links resolve",
			Description:    "Verify links navigate to valid destinations",
			Steps:          []string{"Collect all links on the page", "Follow each link", "Check the destination loads"},
			TestData:       map[string]string{"links": "all anchors"},
			ExpectedResult: "Every link leads to a valid destination page",
			Priority:       "Medium",
			Type:           "Functional",
			Tags:           []string{"navigation", "auto-generated"},
		})
	}

	tests = append(tests, domain.GeneratedTest{
		Name:           "Responsive layout adapts",
		Description:    "Verify the layout adapts to a mobile viewport",
		Steps:          []string{"Resize the viewport to 375x667", "Inspect the layout", "Check nothing overflows horizontally"},
		TestData:       map[string]string{"viewport": "375x667"},
		ExpectedResult: "Layout reflows cleanly with no horizontal scrolling",
		Priority:       "Low",
		Type:           "UI",
		Tags:           []string{"responsive", "auto-generated"},
	})
	return tests
}
