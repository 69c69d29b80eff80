package application

import (
	"fmt"
	"strings"

	"github.com/atvirokodosprendimai/testforge/internal/domain"
	"github.com/atvirokodosprendimai/testforge/internal/pageinfo"
)

const (
	statusPassed = "PASSED"
	statusFailed = "FAILED"

	executionMethod = "html-validation"
)

// testCategory classifies a test by its name and decides pass/fail from
// the page's element inventory. Order matters: the first keyword match
// wins, so "login form validation" runs the login check, not the form one.
type testCategory struct {
	keywords []string
	duration string
	check    func(f pageinfo.Facts) (bool, string)
}

var testCategories = []testCategory{
	{
		keywords: []string{"login", "credential", "signin"},
		duration: "1.5s",
		check: func(f pageinfo.Facts) (bool, string) {
			if len(f.Inputs) > 0 && len(f.Buttons) > 0 {
				return true, ""
			}
			return false, "Login form incomplete - missing inputs or submit button"
		},
	},
	{
		keywords: []string{"validat", "required", "empty"},
		duration: "1.2s",
		check: func(f pageinfo.Facts) (bool, string) {
			if f.HasValidationMarkers() {
				return true, ""
			}
			return false, "No validation rules found"
		},
	},
	{
		keywords: []string{"button", "click", "facebook", "google"},
		duration: "1.1s",
		check: func(f pageinfo.Facts) (bool, string) {
			if len(f.Buttons) > 0 {
				return true, ""
			}
			return false, "No buttons found"
		},
	},
	{
		keywords: []string{"link", "navigation", "navigate"},
		duration: "0.9s",
		check: func(f pageinfo.Facts) (bool, string) {
			if f.HasRealLink() {
				return true, ""
			}
			return false, "No valid navigation links found"
		},
	},
	{
		keywords: []string{"input", "email", "field", "password"},
		duration: "0.8s",
		check: func(f pageinfo.Facts) (bool, string) {
			if len(f.Inputs) > 0 {
				return true, ""
			}
			return false, "No input fields found"
		},
	},
	{
		keywords: []string{"form", "submit"},
		duration: "1.8s",
		check: func(f pageinfo.Facts) (bool, string) {
			if len(f.Forms) == 0 {
				return false, "No form element found"
			}
			if !f.HasSubmitControl() {
				return false, "Form found but no submit button"
			}
			return true, ""
		},
	},
	{
		keywords: []string{"responsive", "mobile", "screen"},
		duration: "1.0s",
		check: func(f pageinfo.Facts) (bool, string) {
			if f.HasViewport {
				return true, ""
			}
			return false, "No viewport meta tag found"
		},
	},
	{
		keywords: []string{"select", "dropdown"},
		duration: "1.4s",
		check: func(f pageinfo.Facts) (bool, string) {
			if len(f.Selects) > 0 {
				return true, ""
			}
			return false, "No dropdown/select elements found"
		},
	},
	{
		keywords: []string{"security", "csrf", "secure"},
		duration: "1.3s",
		check: func(f pageinfo.Facts) (bool, string) {
			if f.HasSecurityMarkers() {
				return true, ""
			}
			return false, "No visible security measures"
		},
	},
	{
		keywords: []string{"accessible", "a11y", "aria"},
		duration: "0.6s",
		check: func(f pageinfo.Facts) (bool, string) {
			if f.AriaCount > 0 {
				return true, ""
			}
			return false, "No accessibility labels found"
		},
	},
	{
		keywords: []string{"error", "exception"},
		duration: "0.5s",
		check: func(f pageinfo.Facts) (bool, string) {
			if f.HasErrorMarkers() {
				return true, ""
			}
			return false, "No error handling mechanisms found"
		},
	},
}

// ExecuteTest runs one heuristic check. Names matching no category pass
// unconditionally: an unrecognized test is treated as a generic
// interactivity check, not a failure.
func ExecuteTest(test domain.GeneratedTest, facts pageinfo.Facts) domain.TestResult {
	name := strings.ToLower(test.Name)
	for _, cat := range testCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(name, kw) {
				ok, failMsg := cat.check(facts)
				result := domain.TestResult{
					TestName: test.Name,
					Status:   statusPassed,
					Duration: cat.duration,
					Method:   executionMethod,
				}
				if !ok {
					result.Status = statusFailed
					result.Error = failMsg
				}
				return result
			}
		}
	}
	duration := "0.6s"
	if len(facts.Buttons) > 0 || len(facts.Inputs) > 0 || len(facts.Forms) > 0 || len(facts.Links) > 0 {
		duration = "0.8s"
	}
	return domain.TestResult{
		TestName: test.Name,
		Status:   statusPassed,
		Duration: duration,
		Method:   executionMethod,
	}
}

func ExecuteAll(tests []domain.GeneratedTest, facts pageinfo.Facts) domain.RunSummary {
	results := make([]domain.TestResult, 0, len(tests))
	passed, failed := 0, 0
	for _, test := range tests {
		result := ExecuteTest(test, facts)
		if result.Status == statusPassed {
			passed++
		} else {
			failed++
		}
		results = append(results, result)
	}
	return domain.RunSummary{
		TotalTests: len(tests),
		Passed:     passed,
		Failed:     failed,
		Pending:    0,
		Duration:   fmt.Sprintf("%.1fs", 0.8*float64(len(tests))),
		Results:    results,
	}
}
