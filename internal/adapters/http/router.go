package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/atvirokodosprendimai/testforge/internal/application"
	"github.com/atvirokodosprendimai/testforge/internal/domain"
	"github.com/go-chi/chi/v5"
)

type contextKey string

const userIDKey contextKey = "userID"

type Handler struct {
	service *application.Service
}

func NewRouter(service *application.Service) http.Handler {
	h := &Handler{service: service}
	r := chi.NewRouter()

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", h.handleRegister)
		api.Post("/auth/login", h.handleLogin)
		api.Post("/auth/social-login", h.handleSocialLogin)
		api.Post("/auth/forgot-password", h.handleForgotPassword)

		api.Group(func(priv chi.Router) {
			priv.Use(h.requireAuth)

			priv.Get("/auth/profile", h.handleProfile)
			priv.Put("/auth/profile", h.handleUpdateProfile)
			priv.Post("/auth/logout", h.handleLogout)

			priv.Post("/testcases", h.handleCreateTestCase)
			priv.Get("/testcases", h.handleListTestCases)
			priv.Get("/testcases/{id}", h.handleGetTestCase)
			priv.Put("/testcases/{id}", h.handleUpdateTestCase)
			priv.Delete("/testcases/{id}", h.handleDeleteTestCase)

			priv.Post("/legacy/testcases", h.handleCreateLegacyTestCase)
			priv.Get("/legacy/testcases", h.handleListLegacyTestCases)

			priv.Post("/autotest/analyze-html", h.handleAnalyzeHTML)
			priv.Post("/autotest/generate-tests", h.handleGenerateTests)
			priv.Post("/autotest/run-tests", h.handleRunTests)
			priv.Get("/autotest/history", h.handleRunHistory)

			priv.Get("/analytics/summary", h.handleAnalyticsSummary)
			priv.Get("/analytics/by-module", h.handleAnalyticsByModule)
			priv.Get("/analytics/by-priority", h.handleAnalyticsByPriority)
			priv.Get("/analytics/by-type", h.handleAnalyticsByType)
			priv.Get("/analytics/step-status", h.handleAnalyticsStepStatus)
			priv.Get("/analytics/export/csv", h.handleAnalyticsExportCSV)
		})
	})

	return r
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "No token provided"})
			return
		}
		token := strings.TrimSpace(authHeader[7:])
		userID, err := h.service.VerifyToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid or expired token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userIDFromContext(ctx context.Context) uint {
	id, _ := ctx.Value(userIDKey).(uint)
	return id
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	user, token, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password, req.FullName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    userPayload(user),
		"token":   token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	user, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    userPayload(user),
		"token":   token,
	})
}

func (h *Handler) handleSocialLogin(w http.ResponseWriter, r *http.Request) {
	var req application.SocialAssertion
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	user, token, err := h.service.SocialLogin(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    userPayload(user),
		"token":   token,
	})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	h.service.ForgotPassword(r.Context(), req.Email)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "If the email exists, reset instructions have been sent",
	})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Profile(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user)})
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName  string `json:"fullName"`
		AvatarURL string `json:"avatarUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	user, err := h.service.UpdateProfile(r.Context(), userIDFromContext(r.Context()), req.FullName, req.AvatarURL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user)})
}

// Tokens are stateless, so logout is client-side; the endpoint exists so
// clients have a uniform call to make.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out"})
}

// tagsField accepts both a JSON array and a comma separated string.
type tagsField []string

func (t *tagsField) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			tags = append(tags, p)
		}
	}
	*t = tags
	return nil
}

type stepPayload struct {
	ID       uint   `json:"id,omitempty"`
	StepNum  string `json:"stepNum"`
	Action   string `json:"action"`
	Expected string `json:"expected"`
	Note     string `json:"note"`
	Status   string `json:"status"`
}

type createTestCaseRequest struct {
	Name             string        `json:"name"`
	Module           string        `json:"module"`
	Type             string        `json:"type"`
	Priority         string        `json:"priority"`
	Tags             tagsField     `json:"tags"`
	Precondition     string        `json:"precondition"`
	Postcondition    string        `json:"postcondition"`
	AutomationCode   string        `json:"automationCode"`
	HTMLContent      string        `json:"htmlContent"`
	AnalyzedElements string        `json:"analyzedElements"`
	Steps            []stepPayload `json:"steps"`
}

func (h *Handler) handleCreateTestCase(w http.ResponseWriter, r *http.Request) {
	var req createTestCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	created, err := h.service.CreateTestCase(r.Context(), userIDFromContext(r.Context()), domain.TestCase{
		Name:             req.Name,
		Module:           req.Module,
		Type:             req.Type,
		Priority:         req.Priority,
		Tags:             req.Tags,
		Precondition:     req.Precondition,
		Postcondition:    req.Postcondition,
		AutomationCode:   req.AutomationCode,
		HTMLContent:      req.HTMLContent,
		AnalyzedElements: req.AnalyzedElements,
		Steps:            stepsFromPayload(req.Steps),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "testCase": testCasePayload(created)})
}

func (h *Handler) handleListTestCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.service.ListTestCases(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(cases))
	for _, c := range cases {
		payload = append(payload, testCasePayload(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "testCases": payload, "total": len(cases)})
}

func (h *Handler) handleGetTestCase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.service.GetTestCase(r.Context(), userIDFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "testCase": testCasePayload(c)})
}

type updateTestCaseRequest struct {
	Name             *string       `json:"name"`
	Module           *string       `json:"module"`
	Type             *string       `json:"type"`
	Priority         *string       `json:"priority"`
	Tags             *tagsField    `json:"tags"`
	Precondition     *string       `json:"precondition"`
	Postcondition    *string       `json:"postcondition"`
	AutomationCode   *string       `json:"automationCode"`
	HTMLContent      *string       `json:"htmlContent"`
	AnalyzedElements *string       `json:"analyzedElements"`
	Steps            []stepPayload `json:"steps"`
}

func (h *Handler) handleUpdateTestCase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateTestCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	patch := domain.TestCasePatch{
		Name:             req.Name,
		Module:           req.Module,
		Type:             req.Type,
		Priority:         req.Priority,
		Precondition:     req.Precondition,
		Postcondition:    req.Postcondition,
		AutomationCode:   req.AutomationCode,
		HTMLContent:      req.HTMLContent,
		AnalyzedElements: req.AnalyzedElements,
		Steps:            stepsFromPayload(req.Steps),
	}
	if req.Tags != nil {
		patch.Tags = *req.Tags
		patch.HasTags = true
	}
	updated, err := h.service.UpdateTestCase(r.Context(), userIDFromContext(r.Context()), id, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "testCase": testCasePayload(updated)})
}

func (h *Handler) handleDeleteTestCase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteTestCase(r.Context(), userIDFromContext(r.Context()), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Test case deleted"})
}

type legacyTestCaseRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	TestSteps       string `json:"testSteps"`
	ExpectedResults string `json:"expectedResults"`
}

func (h *Handler) handleCreateLegacyTestCase(w http.ResponseWriter, r *http.Request) {
	var req legacyTestCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	created, err := h.service.CreateLegacyTestCase(r.Context(), userIDFromContext(r.Context()), domain.LegacyTestCase{
		Title:           req.Title,
		Description:     req.Description,
		TestSteps:       req.TestSteps,
		ExpectedResults: req.ExpectedResults,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "testCase": legacyPayload(created)})
}

func (h *Handler) handleListLegacyTestCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.service.ListLegacyTestCases(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(cases))
	for _, c := range cases {
		payload = append(payload, legacyPayload(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "testCases": payload, "total": len(cases)})
}

type analyzeRequest struct {
	HTMLContent string `json:"htmlContent"`
	URL         string `json:"url"`
}

func (h *Handler) handleAnalyzeHTML(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	facts, _, err := h.service.AnalyzeHTML(r.Context(), req.HTMLContent, req.URL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "elements": facts, "summary": facts.Summary()})
}

func (h *Handler) handleGenerateTests(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	tests, facts, err := h.service.GenerateTests(r.Context(), req.HTMLContent, req.URL)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"testCases": tests,
		"total":     len(tests),
		"elements":  facts,
	})
}

type runTestsRequest struct {
	Tests       []domain.GeneratedTest `json:"tests"`
	HTMLContent string                 `json:"htmlContent"`
	FileName    string                 `json:"fileName"`
}

func (h *Handler) handleRunTests(w http.ResponseWriter, r *http.Request) {
	var req runTestsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}
	summary, err := h.service.RunTests(r.Context(), userIDFromContext(r.Context()), req.Tests, req.HTMLContent, req.FileName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "summary": summary})
}

func (h *Handler) handleRunHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.RunHistory(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		payload = append(payload, map[string]any{
			"id":         run.ID,
			"fileName":   run.FileName,
			"totalTests": run.TotalTests,
			"passed":     run.Passed,
			"failed":     run.Failed,
			"pending":    run.Pending,
			"createdAt":  run.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "runs": payload, "total": len(runs)})
}

func (h *Handler) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.AnalyticsSummary(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalCases":   summary.TotalCases,
		"totalSteps":   summary.TotalSteps,
		"passedSteps":  summary.PassedSteps,
		"failedSteps":  summary.FailedSteps,
		"pendingSteps": summary.PendingSteps,
		"passRate":     summary.PassRate,
		"failRate":     summary.FailRate,
		"byPriority":   groupPayload(summary.ByPriority),
		"byModule":     groupPayload(summary.ByModule),
		"byType":       groupPayload(summary.ByType),
	})
}

func (h *Handler) handleAnalyticsByModule(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.ModuleStats(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(stats))
	for _, s := range stats {
		payload = append(payload, map[string]any{
			"module":    s.Module,
			"total":     s.Total,
			"automated": s.Automated,
			"manual":    s.Manual,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": payload})
}

func (h *Handler) handleAnalyticsByPriority(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.PriorityStats(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"priorities": groupPayload(stats)})
}

func (h *Handler) handleAnalyticsByType(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.TypeStats(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": groupPayload(stats)})
}

func (h *Handler) handleAnalyticsStepStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.StepStatusStats(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": groupPayload(stats)})
}

func (h *Handler) handleAnalyticsExportCSV(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.ExportCSV(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="testcases-export.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Test case not found"})
	case errors.Is(err, application.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid email or password"})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func userPayload(u domain.User) map[string]any {
	return map[string]any{
		"id":        u.ID,
		"username":  u.Username,
		"email":     u.Email,
		"fullName":  u.FullName,
		"avatarUrl": u.AvatarURL,
	}
}

func testCasePayload(c domain.TestCase) map[string]any {
	steps := make([]stepPayload, 0, len(c.Steps))
	for _, s := range c.Steps {
		steps = append(steps, stepPayload{
			ID:       s.ID,
			StepNum:  s.StepNum,
			Action:   s.Action,
			Expected: s.Expected,
			Note:     s.Note,
			Status:   s.Status,
		})
	}
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":    c.ID,
		"title": c.Name,
		"metadata": map[string]any{
			"name":          c.Name,
			"module":        c.Module,
			"type":          c.Type,
			"priority":      c.Priority,
			"tags":          tags,
			"precondition":  c.Precondition,
			"postcondition": c.Postcondition,
		},
		"automationCode":   c.AutomationCode,
		"htmlContent":      c.HTMLContent,
		"analyzedElements": c.AnalyzedElements,
		"steps":            steps,
		"createdAt":        c.CreatedAt,
		"updatedAt":        c.UpdatedAt,
	}
}

func legacyPayload(c domain.LegacyTestCase) map[string]any {
	return map[string]any{
		"id":              c.ID,
		"title":           c.Title,
		"description":     c.Description,
		"testSteps":       c.TestSteps,
		"expectedResults": c.ExpectedResults,
		"createdAt":       c.CreatedAt,
		"updatedAt":       c.UpdatedAt,
	}
}

func groupPayload(counts []domain.GroupCount) []map[string]any {
	payload := make([]map[string]any, 0, len(counts))
	for _, c := range counts {
		payload = append(payload, map[string]any{"key": c.Key, "count": c.Count})
	}
	return payload
}

func stepsFromPayload(steps []stepPayload) []domain.TestStep {
	result := make([]domain.TestStep, 0, len(steps))
	for _, s := range steps {
		result = append(result, domain.TestStep{
			StepNum:  s.StepNum,
			Action:   s.Action,
			Expected: s.Expected,
			Note:     s.Note,
			Status:   s.Status,
		})
	}
	return result
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
