package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/atvirokodosprendimai/testforge/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "testforge_test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return NewRepository(db)
}

func seedUser(t *testing.T, repo *Repository, username, email string) domain.User {
	t.Helper()
	user, err := repo.CreateUser(context.Background(), domain.User{Username: username, Email: email, PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func TestTestCaseLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := seedUser(t, repo, "alice", "alice@example.com")

	created, err := repo.CreateTestCase(ctx, domain.TestCase{
		UserID: alice.ID,
		Name:   "Login works",
		Tags:   []string{"smoke", "auth"},
		Steps: []domain.TestStep{
			{StepNum: "01", Action: "open login page", Expected: "form visible"},
			{StepNum: "02", Action: "submit credentials", Expected: "redirect to dashboard"},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Module != "General" || created.Type != "manual" || created.Priority != "Medium" {
		t.Fatalf("defaults not applied: %+v", created)
	}
	if len(created.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(created.Steps))
	}
	if created.Steps[0].Status != "pending" {
		t.Fatalf("expected pending default status, got %q", created.Steps[0].Status)
	}

	got, err := repo.GetTestCase(ctx, alice.ID, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Login works" || len(got.Tags) != 2 {
		t.Fatalf("unexpected case: %+v", got)
	}

	list, err := repo.ListTestCases(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || len(list[0].Steps) != 2 {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := repo.DeleteTestCase(ctx, alice.ID, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetTestCase(ctx, alice.ID, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	var orphans int64
	if err := repo.db.Model(&TestStepModel{}).Where("test_case_id = ?", created.ID).Count(&orphans).Error; err != nil {
		t.Fatalf("count steps: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("expected steps removed with case, found %d", orphans)
	}
}

func TestTestCaseOwnershipIsolation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := seedUser(t, repo, "alice", "alice@example.com")
	bob := seedUser(t, repo, "bob", "bob@example.com")

	created, err := repo.CreateTestCase(ctx, domain.TestCase{
		UserID: alice.ID,
		Name:   "Alice only",
		Steps:  []domain.TestStep{{StepNum: "01", Action: "do"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := repo.GetTestCase(ctx, bob.ID, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
	if err := repo.DeleteTestCase(ctx, bob.ID, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected delete refused for other user, got %v", err)
	}
	name := "hijacked"
	if _, err := repo.UpdateTestCase(ctx, bob.ID, created.ID, domain.TestCasePatch{Name: &name}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected update refused for other user, got %v", err)
	}

	list, err := repo.ListTestCases(ctx, bob.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list for bob, got %d", len(list))
	}
}

func TestUpdateStepsReplaceOnlyWhenProvided(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := seedUser(t, repo, "alice", "alice@example.com")

	created, err := repo.CreateTestCase(ctx, domain.TestCase{
		UserID: alice.ID,
		Name:   "Checkout",
		Steps: []domain.TestStep{
			{StepNum: "01", Action: "add to cart"},
			{StepNum: "02", Action: "pay"},
			{StepNum: "03", Action: "confirm"},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	priority := "High"
	updated, err := repo.UpdateTestCase(ctx, alice.ID, created.ID, domain.TestCasePatch{Priority: &priority})
	if err != nil {
		t.Fatalf("header update: %v", err)
	}
	if updated.Priority != "High" {
		t.Fatalf("priority not updated: %+v", updated)
	}
	if len(updated.Steps) != 3 {
		t.Fatalf("empty steps patch must leave steps alone, got %d", len(updated.Steps))
	}

	replaced, err := repo.UpdateTestCase(ctx, alice.ID, created.ID, domain.TestCasePatch{
		Steps: []domain.TestStep{{StepNum: "01", Action: "one step now"}},
	})
	if err != nil {
		t.Fatalf("step replace: %v", err)
	}
	if len(replaced.Steps) != 1 || replaced.Steps[0].Action != "one step now" {
		t.Fatalf("steps not replaced: %+v", replaced.Steps)
	}
	if replaced.Priority != "High" {
		t.Fatalf("header changed by step replace: %+v", replaced)
	}
}

func TestAnalyticsNormalizesStatusCasing(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := seedUser(t, repo, "alice", "alice@example.com")
	bob := seedUser(t, repo, "bob", "bob@example.com")

	_, err := repo.CreateTestCase(ctx, domain.TestCase{
		UserID:   alice.ID,
		Name:     "Mixed casing",
		Priority: "High",
		Steps: []domain.TestStep{
			{StepNum: "01", Action: "a", Status: "Pass"},
			{StepNum: "02", Action: "b", Status: "PASSED"},
			{StepNum: "03", Action: "c", Status: "fail"},
			{StepNum: "04", Action: "d", Status: "weird"},
			{StepNum: "05", Action: "e"},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Bob's data must never leak into Alice's numbers.
	_, err = repo.CreateTestCase(ctx, domain.TestCase{
		UserID: bob.ID,
		Name:   "Bob case",
		Steps:  []domain.TestStep{{StepNum: "01", Action: "x", Status: "passed"}},
	})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	summary, err := repo.AnalyticsSummary(ctx, alice.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalCases != 1 || summary.TotalSteps != 5 {
		t.Fatalf("unexpected totals: %+v", summary)
	}
	if summary.PassedSteps != 2 || summary.FailedSteps != 1 || summary.PendingSteps != 2 {
		t.Fatalf("unexpected status split: %+v", summary)
	}
	if summary.PassedSteps+summary.FailedSteps+summary.PendingSteps != summary.TotalSteps {
		t.Fatalf("status split does not add up: %+v", summary)
	}
	if summary.PassRate != 40 || summary.FailRate != 20 {
		t.Fatalf("unexpected rates: %+v", summary)
	}

	statuses, err := repo.StepStatusStats(ctx, alice.ID)
	if err != nil {
		t.Fatalf("step statuses: %v", err)
	}
	byKey := map[string]int{}
	for _, s := range statuses {
		byKey[s.Key] = s.Count
	}
	if byKey["passed"] != 2 || byKey["failed"] != 1 || byKey["pending"] != 2 {
		t.Fatalf("unexpected grouped statuses: %+v", statuses)
	}
}

func TestPriorityStatsOrdering(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := seedUser(t, repo, "alice", "alice@example.com")

	for _, p := range []string{"Low", "Critical", "Medium", "High", "Exotic"} {
		_, err := repo.CreateTestCase(ctx, domain.TestCase{
			UserID:   alice.ID,
			Name:     "case " + p,
			Priority: p,
			Steps:    []domain.TestStep{{StepNum: "01", Action: "x"}},
		})
		if err != nil {
			t.Fatalf("create %s: %v", p, err)
		}
	}

	stats, err := repo.PriorityStats(ctx, alice.ID)
	if err != nil {
		t.Fatalf("priority stats: %v", err)
	}
	want := []string{"Critical", "High", "Medium", "Low", "Exotic"}
	if len(stats) != len(want) {
		t.Fatalf("expected %d groups, got %+v", len(want), stats)
	}
	for i, w := range want {
		if stats[i].Key != w {
			t.Fatalf("position %d: expected %s, got %s", i, w, stats[i].Key)
		}
	}
}

func TestCopyLegacyForward(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := seedUser(t, repo, "alice", "alice@example.com")

	_, err := repo.CreateLegacyTestCase(ctx, domain.LegacyTestCase{
		UserID:      alice.ID,
		Title:       "Old login check",
		Description: `{"name":"Login check","module":"Auth","priority":"High","tags":["smoke","auth"]}`,
		TestSteps:   `[{"action":"open page","expected":"loads"},{"action":"log in","expected":"dashboard"}]`,
	})
	if err != nil {
		t.Fatalf("create legacy: %v", err)
	}
	_, err = repo.CreateLegacyTestCase(ctx, domain.LegacyTestCase{
		UserID:      alice.ID,
		Title:       "Plain title only",
		Description: "free text, not json",
		TestSteps:   `["step one","step two","step three"]`,
	})
	if err != nil {
		t.Fatalf("create legacy: %v", err)
	}

	copied, err := repo.CopyLegacyForward(ctx)
	if err != nil {
		t.Fatalf("copy forward: %v", err)
	}
	if copied != 2 {
		t.Fatalf("expected 2 copied, got %d", copied)
	}

	cases, err := repo.ListTestCases(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("expected 2 normalized cases, got %d", len(cases))
	}

	byName := map[string]domain.TestCase{}
	for _, c := range cases {
		byName[c.Name] = c
	}
	migrated, ok := byName["Login check"]
	if !ok {
		t.Fatalf("metadata name not used: %+v", cases)
	}
	if migrated.Module != "Auth" || migrated.Priority != "High" || len(migrated.Tags) != 2 {
		t.Fatalf("metadata not copied: %+v", migrated)
	}
	if len(migrated.Steps) != 2 || migrated.Steps[0].StepNum != "01" {
		t.Fatalf("steps not copied with default numbering: %+v", migrated.Steps)
	}

	fallback, ok := byName["Plain title only"]
	if !ok {
		t.Fatalf("title fallback missing: %+v", cases)
	}
	if fallback.Module != "General" || len(fallback.Steps) != 3 {
		t.Fatalf("fallback defaults wrong: %+v", fallback)
	}

	// Not idempotent: a second pass duplicates every row.
	again, err := repo.CopyLegacyForward(ctx)
	if err != nil {
		t.Fatalf("copy forward again: %v", err)
	}
	if again != 2 {
		t.Fatalf("expected 2 copied on rerun, got %d", again)
	}
	cases, err = repo.ListTestCases(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cases) != 4 {
		t.Fatalf("expected duplicated rows after rerun, got %d", len(cases))
	}
}

func TestTestRunHistoryLimit(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := seedUser(t, repo, "alice", "alice@example.com")

	for i := 0; i < 5; i++ {
		_, err := repo.CreateTestRun(ctx, domain.TestRun{
			UserID:     alice.ID,
			FileName:   "run.spec.js",
			TotalTests: i + 1,
			Passed:     i + 1,
		})
		if err != nil {
			t.Fatalf("create run: %v", err)
		}
	}

	runs, err := repo.ListTestRuns(ctx, alice.ID, 3)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected limit respected, got %d", len(runs))
	}
	if runs[0].TotalTests < runs[2].TotalTests {
		t.Fatalf("expected newest first: %+v", runs)
	}
}
