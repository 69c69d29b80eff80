package application

import (
	"testing"

	"github.com/atvirokodosprendimai/testforge/internal/domain"
	"github.com/atvirokodosprendimai/testforge/internal/pageinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const formPage = `<html><head><title>t</title>
<meta name="viewport" content="width=device-width"></head>
<body>
<form method="post" action="/login">
  <label for="email">Email</label>
  <input type="email" id="email" name="email" required>
  <input type="password" name="password" required>
  <button type="submit">Sign in</button>
</form>
<a href="/help">help</a>
</body></html>`

func executeNamed(t *testing.T, name, page string) domain.TestResult {
	t.Helper()
	facts, err := pageinfo.Extract(page)
	require.NoError(t, err)
	return ExecuteTest(domain.GeneratedTest{Name: name}, facts)
}

func TestExecuteTestCategories(t *testing.T) {
	cases := []struct {
		name       string
		testName   string
		page       string
		wantStatus string
		wantError  string
	}{
		{"login passes with inputs and buttons", "Login with valid credentials", formPage, "PASSED", ""},
		{"login fails on bare page", "Login with valid credentials", "<p>x</p>", "FAILED", "Login form incomplete - missing inputs or submit button"},
		{"validation passes with required fields", "Validation of required fields", formPage, "PASSED", ""},
		{"validation fails without rules", "Validation of empty form", "<form><input type='text'></form>", "FAILED", "No validation rules found"},
		{"button check", "Click the save button", "<p>x</p>", "FAILED", "No buttons found"},
		{"link check passes", "Navigation to help page", formPage, "PASSED", ""},
		{"link check fails on hash-only", "Navigation works", `<a href="#">x</a>`, "FAILED", "No valid navigation links found"},
		{"input check", "Email field accepts text", "<p>x</p>", "FAILED", "No input fields found"},
		{"form missing entirely", "Submit the order form", "<p>x</p>", "FAILED", "No form element found"},
		{"form without submit control", "Form saves data", "<form><input type='text'></form>", "FAILED", "Form found but no submit button"},
		{"responsive passes with viewport", "Responsive layout on mobile", formPage, "PASSED", ""},
		{"responsive fails without viewport", "Mobile screen rendering", "<p>x</p>", "FAILED", "No viewport meta tag found"},
		{"dropdown check", "Dropdown selection works", "<p>x</p>", "FAILED", "No dropdown/select elements found"},
		{"security check fails", "Security of the page", "<p>plain</p>", "FAILED", "No visible security measures"},
		{"accessibility passes with labels", "Accessible form controls", formPage, "PASSED", ""},
		{"accessibility fails without labels", "Aria attributes present", "<p>x</p>", "FAILED", "No accessibility labels found"},
		{"error handling fails on plain page", "Error messages shown", "<p>x</p>", "FAILED", "No error handling mechanisms found"},
		{"unknown names always pass", "Something completely different", "<p>x</p>", "PASSED", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := executeNamed(t, tc.testName, tc.page)
			assert.Equal(t, tc.wantStatus, result.Status)
			assert.Equal(t, tc.wantError, result.Error)
			assert.Equal(t, "html-validation", result.Method)
			assert.NotEmpty(t, result.Duration)
		})
	}
}

func TestKeywordPrecedenceLoginBeatsForm(t *testing.T) {
	// "login form" must run the login check, not the form check.
	result := executeNamed(t, "Login form validation", "<p>x</p>")
	assert.Equal(t, "FAILED", result.Status)
	assert.Equal(t, "Login form incomplete - missing inputs or submit button", result.Error)
}

func TestExecuteAllAggregates(t *testing.T) {
	facts, err := pageinfo.Extract(formPage)
	require.NoError(t, err)

	tests := []domain.GeneratedTest{
		{Name: "Login works"},
		{Name: "Dropdown selection works"},
		{Name: "Responsive layout"},
	}
	summary := ExecuteAll(tests, facts)
	assert.Equal(t, 3, summary.TotalTests)
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Pending)
	assert.Equal(t, "2.4s", summary.Duration)
	require.Len(t, summary.Results, 3)
	assert.Equal(t, "Login works", summary.Results[0].TestName)
}
