package domain

import "time"

type User struct {
	ID           uint
	Username     string
	Email        string
	PasswordHash string
	FullName     string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type AuthSession struct {
	ID        uint
	UserID    uint
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TestCase is the normalized-schema test case. Tags are kept as a list in
// the domain; the store joins them with commas.
type TestCase struct {
	ID               uint
	UserID           uint
	Name             string
	Module           string
	Type             string
	Priority         string
	Tags             []string
	Precondition     string
	Postcondition    string
	AutomationCode   string
	HTMLContent      string
	AnalyzedElements string
	Steps            []TestStep
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type TestStep struct {
	ID         uint
	TestCaseID uint
	StepNum    string
	Action     string
	Expected   string
	Note       string
	Status     string
	CreatedAt  time.Time
}

// TestCasePatch carries a partial header update. Nil fields are left
// untouched. A nil or empty Steps slice leaves existing steps in place;
// a non-empty one replaces them all.
type TestCasePatch struct {
	Name             *string
	Module           *string
	Type             *string
	Priority         *string
	Tags             []string
	HasTags          bool
	Precondition     *string
	Postcondition    *string
	AutomationCode   *string
	HTMLContent      *string
	AnalyzedElements *string
	Steps            []TestStep
}

// LegacyTestCase mirrors the original flat schema where description, steps
// and expected results were stored as opaque JSON blobs.
type LegacyTestCase struct {
	ID              uint
	UserID          uint
	Title           string
	Description     string
	TestSteps       string
	ExpectedResults string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type TestRun struct {
	ID          uint
	UserID      uint
	FileName    string
	TotalTests  int
	Passed      int
	Failed      int
	Pending     int
	ResultsJSON string
	CreatedAt   time.Time
}

// GeneratedTest is one AI-produced (or fallback) test candidate.
type GeneratedTest struct {
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Steps          []string          `json:"steps"`
	TestData       map[string]string `json:"testData"`
	ExpectedResult string            `json:"expectedResult"`
	Priority       string            `json:"priority"`
	Type           string            `json:"type"`
	Tags           []string          `json:"tags"`
	Notes          string            `json:"notes"`
}

// TestResult is the outcome of executing one test against a page.
type TestResult struct {
	TestName string `json:"testName"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
	Method   string `json:"method"`
}

type RunSummary struct {
	TotalTests int          `json:"totalTests"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Pending    int          `json:"pending"`
	Duration   string       `json:"duration"`
	Results    []TestResult `json:"results"`
}

type AnalyticsSummary struct {
	TotalCases   int
	TotalSteps   int
	PassedSteps  int
	FailedSteps  int
	PendingSteps int
	PassRate     int
	FailRate     int
	ByPriority   []GroupCount
	ByModule     []GroupCount
	ByType       []GroupCount
}

type GroupCount struct {
	Key   string
	Count int
}

// ModuleStat splits a module's cases into automated and manual.
type ModuleStat struct {
	Module    string
	Total     int
	Automated int
	Manual    int
}

// CaseStepStat backs the CSV export: per-case step totals.
type CaseStepStat struct {
	ID          uint
	Name        string
	Module      string
	Priority    string
	Type        string
	TotalSteps  int
	PassedSteps int
}
