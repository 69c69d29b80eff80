package sqlite

import "time"

type UserModel struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"not null;uniqueIndex"`
	Email        string `gorm:"not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	FullName     string
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

type SessionModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index"`
	Token     string `gorm:"not null;uniqueIndex"`
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (SessionModel) TableName() string { return "sessions" }

// LegacyTestCaseModel keeps the original flat table alive. The description,
// test_steps and expected_results columns carry JSON blobs verbatim.
type LegacyTestCaseModel struct {
	ID              uint   `gorm:"primaryKey"`
	UserID          uint   `gorm:"not null;index"`
	Title           string `gorm:"not null"`
	Description     string
	TestSteps       string
	ExpectedResults string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (LegacyTestCaseModel) TableName() string { return "test_cases" }

type TestCaseModel struct {
	ID               uint   `gorm:"primaryKey"`
	UserID           uint   `gorm:"not null;index"`
	Name             string `gorm:"not null"`
	Module           string `gorm:"not null;default:'General'"`
	Type             string `gorm:"not null;default:'manual'"`
	Priority         string `gorm:"not null;default:'Medium'"`
	Tags             string
	Precondition     string
	Postcondition    string
	AutomationCode   string
	HTMLContent      string
	AnalyzedElements string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (TestCaseModel) TableName() string { return "test_cases_v2" }

type TestStepModel struct {
	ID         uint   `gorm:"primaryKey"`
	TestCaseID uint   `gorm:"not null;index"`
	StepNum    string `gorm:"not null"`
	Action     string
	Expected   string
	Note       string
	Status     string `gorm:"not null;default:'pending'"`
	CreatedAt  time.Time
}

func (TestStepModel) TableName() string { return "test_steps" }

type TestRunModel struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"not null;index"`
	FileName    string `gorm:"not null"`
	TotalTests  int    `gorm:"not null;default:0"`
	Passed      int    `gorm:"not null;default:0"`
	Failed      int    `gorm:"not null;default:0"`
	Pending     int    `gorm:"not null;default:0"`
	ResultsJSON string
	CreatedAt   time.Time
}

func (TestRunModel) TableName() string { return "test_runs" }
