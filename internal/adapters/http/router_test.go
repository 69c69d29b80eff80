package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atvirokodosprendimai/testforge/internal/adapters/db/sqlite"
	"github.com/atvirokodosprendimai/testforge/internal/adapters/genai"
	"github.com/atvirokodosprendimai/testforge/internal/application"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "testforge_test.db")

	db, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, sqlite.RunMigrations(ctx, db))

	tokens, err := application.NewTokenIssuer("test-secret")
	require.NoError(t, err)
	generator := genai.NewGenerator(genai.NewGeminiClient(""), true)
	service := application.NewService(sqlite.NewRepository(db), tokens, generator, nil)

	server := httptest.NewServer(NewRouter(service))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func registerUser(t *testing.T, server *httptest.Server, username, email string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/auth/register", "", map[string]any{
		"username": username,
		"email":    email,
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "register body: %v", body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, server.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthFlowAndErrorShapes(t *testing.T) {
	server := newTestServer(t)

	token := registerUser(t, server, "alice", "alice@example.com")

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/auth/login", "", map[string]any{
		"email": "alice@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Login successful", body["message"])

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/auth/login", "", map[string]any{
		"email": "alice@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid email or password", body["error"])

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/testcases", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "No token provided", body["error"])

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/testcases", "bogus-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid or expired token", body["error"])

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/auth/profile", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/auth/register", "", map[string]any{
		"username": "alice2", "email": "alice@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTestCaseCRUDScenario(t *testing.T) {
	server := newTestServer(t)
	token := registerUser(t, server, "alice", "alice@example.com")

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/testcases", token, map[string]any{
		"name":     "Login works",
		"priority": "High",
		"tags":     "smoke, auth",
		"steps": []map[string]any{
			{"stepNum": "01", "action": "open page", "expected": "form shows"},
			{"stepNum": "02", "action": "submit", "expected": "dashboard"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create body: %v", body)
	created := body["testCase"].(map[string]any)
	caseID := int(created["id"].(float64))
	metadata := created["metadata"].(map[string]any)
	assert.Equal(t, "General", metadata["module"])
	assert.Equal(t, []any{"smoke", "auth"}, metadata["tags"])

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/testcases", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])

	// Header-only update keeps steps; updating with steps replaces them.
	url := fmt.Sprintf("%s/api/testcases/%d", server.URL, caseID)
	resp, body = doJSON(t, http.MethodPut, url, token, map[string]any{"priority": "Critical"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := body["testCase"].(map[string]any)
	assert.Len(t, updated["steps"].([]any), 2)
	assert.Equal(t, "Critical", updated["metadata"].(map[string]any)["priority"])

	resp, body = doJSON(t, http.MethodPut, url, token, map[string]any{
		"steps": []map[string]any{{"stepNum": "01", "action": "only one now"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["testCase"].(map[string]any)["steps"].([]any), 1)

	resp, body = doJSON(t, http.MethodDelete, url, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, _ = doJSON(t, http.MethodGet, url, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCrossUserAccessIsNotFound(t *testing.T) {
	server := newTestServer(t)
	aliceToken := registerUser(t, server, "alice", "alice@example.com")
	bobToken := registerUser(t, server, "bob", "bob@example.com")

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/testcases", aliceToken, map[string]any{
		"name":  "Alice only",
		"steps": []map[string]any{{"stepNum": "01", "action": "x"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	caseID := int(body["testCase"].(map[string]any)["id"].(float64))

	url := fmt.Sprintf("%s/api/testcases/%d", server.URL, caseID)
	resp, body = doJSON(t, http.MethodGet, url, bobToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Test case not found", body["error"])

	resp, _ = doJSON(t, http.MethodDelete, url, bobToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGenerateTestsFallback(t *testing.T) {
	server := newTestServer(t)
	token := registerUser(t, server, "alice", "alice@example.com")

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/autotest/generate-tests", token, map[string]any{
		"htmlContent": `<form><input type="text" required><button type="submit">Go</button></form>`,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tests := body["testCases"].([]any)
	assert.NotEmpty(t, tests)
	first := tests[0].(map[string]any)
	assert.Equal(t, "Page loads successfully", first["name"])

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/autotest/generate-tests", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "htmlContent")
}

func TestRunTestsAndHistory(t *testing.T) {
	server := newTestServer(t)
	token := registerUser(t, server, "alice", "alice@example.com")

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/autotest/run-tests", token, map[string]any{
		"tests": []map[string]any{
			{"name": "Login works"},
			{"name": "Dropdown selection works"},
		},
		"htmlContent": `<form><input type="text"><button type="submit">Go</button></form>`,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(2), summary["totalTests"])
	assert.Equal(t, float64(1), summary["passed"])
	assert.Equal(t, float64(1), summary["failed"])

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/autotest/history", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	runs := body["runs"].([]any)
	require.Len(t, runs, 1)
	assert.Equal(t, "generated.spec.js", runs[0].(map[string]any)["fileName"])
}

func TestAnalyticsSummaryAndCSV(t *testing.T) {
	server := newTestServer(t)
	token := registerUser(t, server, "alice", "alice@example.com")

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/testcases", token, map[string]any{
		"name":     `He said "hi"`,
		"priority": "High",
		"steps": []map[string]any{
			{"stepNum": "01", "action": "a", "status": "Pass"},
			{"stepNum": "02", "action": "b", "status": "FAILED"},
			{"stepNum": "03", "action": "c"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/analytics/summary", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["totalCases"])
	assert.Equal(t, float64(3), body["totalSteps"])
	assert.Equal(t, float64(1), body["passedSteps"])
	assert.Equal(t, float64(1), body["failedSteps"])
	assert.Equal(t, float64(1), body["pendingSteps"])
	assert.Equal(t, float64(33), body["passRate"])

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/analytics/export/csv", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	csvResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer csvResp.Body.Close()

	assert.Equal(t, http.StatusOK, csvResp.StatusCode)
	assert.Equal(t, "text/csv", csvResp.Header.Get("Content-Type"))
	assert.Contains(t, csvResp.Header.Get("Content-Disposition"), "attachment")

	var buf bytes.Buffer
	_, err = buf.ReadFrom(csvResp.Body)
	require.NoError(t, err)
	csvText := buf.String()
	lines := strings.Split(strings.TrimSpace(csvText), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,name,module,priority,type,total_steps,passed_steps", lines[0])
	assert.Contains(t, csvText, `"He said ""hi"""`)
	assert.True(t, strings.HasSuffix(lines[1], ",3,1"), "line: %s", lines[1])
}
