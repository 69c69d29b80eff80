package application

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atvirokodosprendimai/testforge/internal/adapters/db/sqlite"
	"github.com/atvirokodosprendimai/testforge/internal/adapters/genai"
	"github.com/atvirokodosprendimai/testforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "testforge_test.db")

	db, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, sqlite.RunMigrations(ctx, db))

	tokens, err := NewTokenIssuer("test-secret")
	require.NoError(t, err)
	generator := genai.NewGenerator(genai.NewGeminiClient(""), true)
	return NewService(sqlite.NewRepository(db), tokens, generator, nil)
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	user, token, err := svc.Register(ctx, "alice", "alice@example.com", "secret1", "Alice A")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "alice", user.Username)

	userID, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)

	_, loginToken, err := svc.Login(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, loginToken)

	_, _, err = svc.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, _, err := svc.Register(ctx, "", "a@b.c", "secret1", "")
	assert.True(t, domain.IsValidation(err))

	_, _, err = svc.Register(ctx, "bob", "bob@example.com", "short", "")
	assert.True(t, domain.IsValidation(err))

	_, _, err = svc.Register(ctx, "carol", "carol@example.com", "secret1", "")
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "carol2", "carol@example.com", "secret1", "")
	assert.True(t, domain.IsValidation(err), "duplicate email must be rejected")
	_, _, err = svc.Register(ctx, "carol", "other@example.com", "secret1", "")
	assert.True(t, domain.IsValidation(err), "duplicate username must be rejected")
}

func TestSocialLoginCreatesThenReuses(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	assertion := SocialAssertion{ID: "g-123", Name: "Dana Devin", Email: "dana@example.com", Provider: "google"}
	user, token, err := svc.SocialLogin(ctx, assertion)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "dana_devin", user.Username)

	again, _, err := svc.SocialLogin(ctx, assertion)
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
}

func TestSocialLoginUsernameCollision(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, _, err := svc.Register(ctx, "dana_devin", "taken@example.com", "secret1", "")
	require.NoError(t, err)

	user, _, err := svc.SocialLogin(ctx, SocialAssertion{ID: "g-9", Name: "Dana Devin", Email: "dana@example.com"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(user.Username, "dana_devin"))
	assert.NotEqual(t, "dana_devin", user.Username)
}

func TestCreateTestCaseValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user, _, err := svc.Register(ctx, "alice", "alice@example.com", "secret1", "")
	require.NoError(t, err)

	_, err = svc.CreateTestCase(ctx, user.ID, domain.TestCase{Name: "  ", Steps: []domain.TestStep{{Action: "x"}}})
	assert.True(t, domain.IsValidation(err))

	_, err = svc.CreateTestCase(ctx, user.ID, domain.TestCase{Name: "no steps"})
	assert.True(t, domain.IsValidation(err))

	created, err := svc.CreateTestCase(ctx, user.ID, domain.TestCase{
		Name:  "ok",
		Steps: []domain.TestStep{{StepNum: "01", Action: "do"}},
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, created.UserID)
}

func TestGenerateTestsRequiresInput(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, _, err := svc.GenerateTests(ctx, "", "")
	assert.True(t, domain.IsValidation(err))

	tests, facts, err := svc.GenerateTests(ctx, "<form><input type='text' required><button type='submit'>go</button></form>", "")
	require.NoError(t, err)
	assert.NotEmpty(t, tests)
	assert.Len(t, facts.Forms, 1)
}

func TestRunTestsPersistsHistory(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user, _, err := svc.Register(ctx, "alice", "alice@example.com", "secret1", "")
	require.NoError(t, err)

	summary, err := svc.RunTests(ctx, user.ID, []domain.GeneratedTest{
		{Name: "Login works"},
		{Name: "Dropdown selection"},
	}, "<form><input type='text'><button type='submit'>go</button></form>", "")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalTests)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)

	history, err := svc.RunHistory(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "generated.spec.js", history[0].FileName)
	assert.Equal(t, 2, history[0].TotalTests)
	assert.Contains(t, history[0].ResultsJSON, "Login works")
}

func TestRunTestsWithNoTestsRecordsSyntheticResult(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user, _, err := svc.Register(ctx, "alice", "alice@example.com", "secret1", "")
	require.NoError(t, err)

	summary, err := svc.RunTests(ctx, user.ID, nil, "<p>x</p>", "empty.spec.js")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalTests)
	assert.Equal(t, 1, summary.Passed)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "Page loads successfully", summary.Results[0].TestName)
}

func TestExportCSVQuotesEmbeddedQuotes(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	user, _, err := svc.Register(ctx, "alice", "alice@example.com", "secret1", "")
	require.NoError(t, err)

	_, err = svc.CreateTestCase(ctx, user.ID, domain.TestCase{
		Name: `He said "hi"`,
		Steps: []domain.TestStep{
			{StepNum: "01", Action: "a", Status: "passed"},
			{StepNum: "02", Action: "b"},
		},
	})
	require.NoError(t, err)

	data, err := svc.ExportCSV(ctx, user.ID)
	require.NoError(t, err)

	csvText := string(data)
	lines := strings.Split(strings.TrimSpace(csvText), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,name,module,priority,type,total_steps,passed_steps", lines[0])
	assert.Contains(t, csvText, `"He said ""hi"""`)
	assert.Contains(t, lines[1], ",2,1")
}
