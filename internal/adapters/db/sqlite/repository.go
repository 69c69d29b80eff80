package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/testforge/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

type Repository struct {
	db *gorm.DB
}

func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{})
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, value domain.User) (domain.User, error) {
	m := UserModel{
		Username:     strings.TrimSpace(value.Username),
		Email:        strings.ToLower(strings.TrimSpace(value.Email)),
		PasswordHash: value.PasswordHash,
		FullName:     value.FullName,
		AvatarURL:    value.AvatarURL,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.User{}, err
	}
	return userToDomain(m), nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&m).Error; err != nil {
		return domain.User{}, translateNotFound(err)
	}
	return userToDomain(m), nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&m).Error; err != nil {
		return domain.User{}, translateNotFound(err)
	}
	return userToDomain(m), nil
}

func (r *Repository) GetUserByID(ctx context.Context, id uint) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return domain.User{}, translateNotFound(err)
	}
	return userToDomain(m), nil
}

func (r *Repository) UpdateUserProfile(ctx context.Context, id uint, fullName, avatarURL string) (domain.User, error) {
	updates := map[string]any{"full_name": fullName, "avatar_url": avatarURL, "updated_at": time.Now()}
	result := r.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return domain.User{}, result.Error
	}
	if result.RowsAffected == 0 {
		return domain.User{}, domain.ErrNotFound
	}
	return r.GetUserByID(ctx, id)
}

func (r *Repository) CreateTestCase(ctx context.Context, value domain.TestCase) (domain.TestCase, error) {
	var caseID uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := TestCaseModel{
			UserID:           value.UserID,
			Name:             value.Name,
			Module:           defaultString(value.Module, "General"),
			Type:             defaultString(value.Type, "manual"),
			Priority:         defaultString(value.Priority, "Medium"),
			Tags:             strings.Join(value.Tags, ","),
			Precondition:     value.Precondition,
			Postcondition:    value.Postcondition,
			AutomationCode:   value.AutomationCode,
			HTMLContent:      value.HTMLContent,
			AnalyzedElements: value.AnalyzedElements,
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		caseID = m.ID
		return insertSteps(tx, m.ID, value.Steps)
	})
	if err != nil {
		return domain.TestCase{}, err
	}
	return r.GetTestCase(ctx, value.UserID, caseID)
}

func (r *Repository) ListTestCases(ctx context.Context, userID uint) ([]domain.TestCase, error) {
	rows := make([]TestCaseModel, 0)
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.ID)
	}
	stepsByCase := make(map[uint][]domain.TestStep, len(rows))
	if len(ids) > 0 {
		stepRows := make([]TestStepModel, 0)
		if err := r.db.WithContext(ctx).
			Where("test_case_id IN ?", ids).
			Order("id ASC").
			Find(&stepRows).Error; err != nil {
			return nil, err
		}
		for _, s := range stepRows {
			stepsByCase[s.TestCaseID] = append(stepsByCase[s.TestCaseID], stepToDomain(s))
		}
	}

	result := make([]domain.TestCase, 0, len(rows))
	for _, m := range rows {
		result = append(result, caseToDomain(m, stepsByCase[m.ID]))
	}
	return result, nil
}

func (r *Repository) GetTestCase(ctx context.Context, userID, id uint) (domain.TestCase, error) {
	var m TestCaseModel
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&m).Error; err != nil {
		return domain.TestCase{}, translateNotFound(err)
	}
	stepRows := make([]TestStepModel, 0)
	if err := r.db.WithContext(ctx).Where("test_case_id = ?", m.ID).Order("id ASC").Find(&stepRows).Error; err != nil {
		return domain.TestCase{}, err
	}
	steps := make([]domain.TestStep, 0, len(stepRows))
	for _, s := range stepRows {
		steps = append(steps, stepToDomain(s))
	}
	return caseToDomain(m, steps), nil
}

func (r *Repository) UpdateTestCase(ctx context.Context, userID, id uint, patch domain.TestCasePatch) (domain.TestCase, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m TestCaseModel
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&m).Error; err != nil {
			return translateNotFound(err)
		}

		updates := map[string]any{}
		if patch.Name != nil {
			updates["name"] = *patch.Name
		}
		if patch.Module != nil {
			updates["module"] = *patch.Module
		}
		if patch.Type != nil {
			updates["type"] = *patch.Type
		}
		if patch.Priority != nil {
			updates["priority"] = *patch.Priority
		}
		if patch.HasTags {
			updates["tags"] = strings.Join(patch.Tags, ",")
		}
		if patch.Precondition != nil {
			updates["precondition"] = *patch.Precondition
		}
		if patch.Postcondition != nil {
			updates["postcondition"] = *patch.Postcondition
		}
		if patch.AutomationCode != nil {
			updates["automation_code"] = *patch.AutomationCode
		}
		if patch.HTMLContent != nil {
			updates["html_content"] = *patch.HTMLContent
		}
		if patch.AnalyzedElements != nil {
			updates["analyzed_elements"] = *patch.AnalyzedElements
		}
		if len(updates) > 0 {
			updates["updated_at"] = time.Now()
			if err := tx.Model(&TestCaseModel{}).Where("id = ?", m.ID).Updates(updates).Error; err != nil {
				return err
			}
		}

		// An empty steps slice is a no-op on purpose: clients patch the
		// header without resending steps they did not touch.
		if len(patch.Steps) > 0 {
			if err := tx.Where("test_case_id = ?", m.ID).Delete(&TestStepModel{}).Error; err != nil {
				return err
			}
			if err := insertSteps(tx, m.ID, patch.Steps); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.TestCase{}, err
	}
	return r.GetTestCase(ctx, userID, id)
}

func (r *Repository) DeleteTestCase(ctx context.Context, userID, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m TestCaseModel
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&m).Error; err != nil {
			return translateNotFound(err)
		}
		if err := tx.Where("test_case_id = ?", m.ID).Delete(&TestStepModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&TestCaseModel{}, m.ID).Error
	})
}

func (r *Repository) CreateLegacyTestCase(ctx context.Context, value domain.LegacyTestCase) (domain.LegacyTestCase, error) {
	m := LegacyTestCaseModel{
		UserID:          value.UserID,
		Title:           value.Title,
		Description:     value.Description,
		TestSteps:       value.TestSteps,
		ExpectedResults: value.ExpectedResults,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.LegacyTestCase{}, err
	}
	return legacyToDomain(m), nil
}

func (r *Repository) ListLegacyTestCases(ctx context.Context, userID uint) ([]domain.LegacyTestCase, error) {
	rows := make([]LegacyTestCaseModel, 0)
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.LegacyTestCase, 0, len(rows))
	for _, m := range rows {
		result = append(result, legacyToDomain(m))
	}
	return result, nil
}

type legacyMetadata struct {
	Name          string   `json:"name"`
	Module        string   `json:"module"`
	Type          string   `json:"type"`
	Priority      string   `json:"priority"`
	Tags          []string `json:"tags"`
	Precondition  string   `json:"precondition"`
	Postcondition string   `json:"postcondition"`
}

type legacyStep struct {
	StepNum  string `json:"stepNum"`
	Action   string `json:"action"`
	Expected string `json:"expected"`
	Note     string `json:"note"`
	Status   string `json:"status"`
}

// CopyLegacyForward copies every flat-schema row into the normalized
// tables. It is a one-shot tool: running it twice duplicates rows.
func (r *Repository) CopyLegacyForward(ctx context.Context) (int, error) {
	rows := make([]LegacyTestCaseModel, 0)
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return 0, err
	}

	copied := 0
	for _, legacy := range rows {
		meta := legacyMetadata{}
		if err := json.Unmarshal([]byte(legacy.Description), &meta); err != nil {
			meta = legacyMetadata{}
		}
		if strings.TrimSpace(meta.Name) == "" {
			meta.Name = legacy.Title
		}

		steps := parseLegacySteps(legacy.TestSteps)

		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			m := TestCaseModel{
				UserID:        legacy.UserID,
				Name:          meta.Name,
				Module:        defaultString(meta.Module, "General"),
				Type:          defaultString(meta.Type, "manual"),
				Priority:      defaultString(meta.Priority, "Medium"),
				Tags:          strings.Join(meta.Tags, ","),
				Precondition:  meta.Precondition,
				Postcondition: meta.Postcondition,
			}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
			return insertSteps(tx, m.ID, steps)
		})
		if err != nil {
			return copied, fmt.Errorf("copy legacy case %d: %w", legacy.ID, err)
		}
		copied++
	}
	return copied, nil
}

func parseLegacySteps(raw string) []domain.TestStep {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	structured := make([]legacyStep, 0)
	if err := json.Unmarshal([]byte(raw), &structured); err == nil {
		steps := make([]domain.TestStep, 0, len(structured))
		for i, s := range structured {
			steps = append(steps, domain.TestStep{
				StepNum:  defaultString(s.StepNum, fmt.Sprintf("%02d", i+1)),
				Action:   s.Action,
				Expected: s.Expected,
				Note:     s.Note,
				Status:   defaultString(s.Status, "pending"),
			})
		}
		return steps
	}

	plain := make([]string, 0)
	if err := json.Unmarshal([]byte(raw), &plain); err == nil {
		steps := make([]domain.TestStep, 0, len(plain))
		for i, action := range plain {
			steps = append(steps, domain.TestStep{
				StepNum: fmt.Sprintf("%02d", i+1),
				Action:  action,
				Status:  "pending",
			})
		}
		return steps
	}

	return nil
}

func (r *Repository) CreateTestRun(ctx context.Context, value domain.TestRun) (domain.TestRun, error) {
	m := TestRunModel{
		UserID:      value.UserID,
		FileName:    value.FileName,
		TotalTests:  value.TotalTests,
		Passed:      value.Passed,
		Failed:      value.Failed,
		Pending:     value.Pending,
		ResultsJSON: value.ResultsJSON,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.TestRun{}, err
	}
	return runToDomain(m), nil
}

func (r *Repository) ListTestRuns(ctx context.Context, userID uint, limit int) ([]domain.TestRun, error) {
	rows := make([]TestRunModel, 0)
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.TestRun, 0, len(rows))
	for _, m := range rows {
		result = append(result, runToDomain(m))
	}
	return result, nil
}

func insertSteps(tx *gorm.DB, caseID uint, steps []domain.TestStep) error {
	for i, step := range steps {
		m := TestStepModel{
			TestCaseID: caseID,
			StepNum:    defaultString(step.StepNum, fmt.Sprintf("%02d", i+1)),
			Action:     step.Action,
			Expected:   step.Expected,
			Note:       step.Note,
			Status:     defaultString(step.Status, "pending"),
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
	}
	return nil
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func defaultString(input, fallback string) string {
	if strings.TrimSpace(input) == "" {
		return fallback
	}

	return input
}

func splitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

func userToDomain(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		FullName:     m.FullName,
		AvatarURL:    m.AvatarURL,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func caseToDomain(m TestCaseModel, steps []domain.TestStep) domain.TestCase {
	return domain.TestCase{
		ID:               m.ID,
		UserID:           m.UserID,
		Name:             m.Name,
		Module:           m.Module,
		Type:             m.Type,
		Priority:         m.Priority,
		Tags:             splitTags(m.Tags),
		Precondition:     m.Precondition,
		Postcondition:    m.Postcondition,
		AutomationCode:   m.AutomationCode,
		HTMLContent:      m.HTMLContent,
		AnalyzedElements: m.AnalyzedElements,
		Steps:            steps,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func stepToDomain(m TestStepModel) domain.TestStep {
	return domain.TestStep{
		ID:         m.ID,
		TestCaseID: m.TestCaseID,
		StepNum:    m.StepNum,
		Action:     m.Action,
		Expected:   m.Expected,
		Note:       m.Note,
		Status:     m.Status,
		CreatedAt:  m.CreatedAt,
	}
}

func legacyToDomain(m LegacyTestCaseModel) domain.LegacyTestCase {
	return domain.LegacyTestCase{
		ID:              m.ID,
		UserID:          m.UserID,
		Title:           m.Title,
		Description:     m.Description,
		TestSteps:       m.TestSteps,
		ExpectedResults: m.ExpectedResults,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func runToDomain(m TestRunModel) domain.TestRun {
	return domain.TestRun{
		ID:          m.ID,
		UserID:      m.UserID,
		FileName:    m.FileName,
		TotalTests:  m.TotalTests,
		Passed:      m.Passed,
		Failed:      m.Failed,
		Pending:     m.Pending,
		ResultsJSON: m.ResultsJSON,
		CreatedAt:   m.CreatedAt,
	}
}
