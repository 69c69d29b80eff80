package domain

import "context"

type Store interface {
	CreateUser(ctx context.Context, value User) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByID(ctx context.Context, id uint) (User, error)
	UpdateUserProfile(ctx context.Context, id uint, fullName, avatarURL string) (User, error)

	CreateTestCase(ctx context.Context, value TestCase) (TestCase, error)
	ListTestCases(ctx context.Context, userID uint) ([]TestCase, error)
	GetTestCase(ctx context.Context, userID, id uint) (TestCase, error)
	UpdateTestCase(ctx context.Context, userID, id uint, patch TestCasePatch) (TestCase, error)
	DeleteTestCase(ctx context.Context, userID, id uint) error

	CreateLegacyTestCase(ctx context.Context, value LegacyTestCase) (LegacyTestCase, error)
	ListLegacyTestCases(ctx context.Context, userID uint) ([]LegacyTestCase, error)
	CopyLegacyForward(ctx context.Context) (int, error)

	CreateTestRun(ctx context.Context, value TestRun) (TestRun, error)
	ListTestRuns(ctx context.Context, userID uint, limit int) ([]TestRun, error)

	AnalyticsSummary(ctx context.Context, userID uint) (AnalyticsSummary, error)
	ModuleStats(ctx context.Context, userID uint) ([]ModuleStat, error)
	PriorityStats(ctx context.Context, userID uint) ([]GroupCount, error)
	TypeStats(ctx context.Context, userID uint) ([]GroupCount, error)
	StepStatusStats(ctx context.Context, userID uint) ([]GroupCount, error)
	CaseStepStats(ctx context.Context, userID uint) ([]CaseStepStat, error)
}
