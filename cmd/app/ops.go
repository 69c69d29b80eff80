package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/testforge/internal/domain"
	"github.com/atvirokodosprendimai/testforge/internal/pageinfo"
)

// caseView mirrors the HTTP payload shape for a test case. The unix
// socket transport returns domain values directly, so each op decodes
// per transport and converges on domain.TestCase.
type caseView struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	Metadata struct {
		Name          string   `json:"name"`
		Module        string   `json:"module"`
		Type          string   `json:"type"`
		Priority      string   `json:"priority"`
		Tags          []string `json:"tags"`
		Precondition  string   `json:"precondition"`
		Postcondition string   `json:"postcondition"`
	} `json:"metadata"`
	AutomationCode string     `json:"automationCode"`
	Steps          []stepView `json:"steps"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type stepView struct {
	ID       uint   `json:"id"`
	StepNum  string `json:"stepNum"`
	Action   string `json:"action"`
	Expected string `json:"expected"`
	Note     string `json:"note"`
	Status   string `json:"status"`
}

type runView struct {
	ID         uint      `json:"id"`
	FileName   string    `json:"fileName"`
	TotalTests int       `json:"totalTests"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	Pending    int       `json:"pending"`
	CreatedAt  time.Time `json:"createdAt"`
}

type summaryView struct {
	TotalCases   int `json:"totalCases"`
	TotalSteps   int `json:"totalSteps"`
	PassedSteps  int `json:"passedSteps"`
	FailedSteps  int `json:"failedSteps"`
	PendingSteps int `json:"pendingSteps"`
	PassRate     int `json:"passRate"`
	FailRate     int `json:"failRate"`
	ByPriority   []struct {
		Key   string `json:"key"`
		Count int    `json:"count"`
	} `json:"byPriority"`
	ByModule []struct {
		Key   string `json:"key"`
		Count int    `json:"count"`
	} `json:"byModule"`
}

func caseFromView(v caseView) domain.TestCase {
	steps := make([]domain.TestStep, 0, len(v.Steps))
	for _, s := range v.Steps {
		steps = append(steps, domain.TestStep{
			ID:       s.ID,
			StepNum:  s.StepNum,
			Action:   s.Action,
			Expected: s.Expected,
			Note:     s.Note,
			Status:   s.Status,
		})
	}
	return domain.TestCase{
		ID:             v.ID,
		Name:           v.Metadata.Name,
		Module:         v.Metadata.Module,
		Type:           v.Metadata.Type,
		Priority:       v.Metadata.Priority,
		Tags:           v.Metadata.Tags,
		AutomationCode: v.AutomationCode,
		Steps:          steps,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
}

// stepPayloads reads "action|expected;action|expected" into the wire
// shape the HTTP API expects.
func stepPayloads(input string) []map[string]any {
	out := []map[string]any{}
	n := 0
	for _, part := range strings.Split(input, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n++
		action, expected, _ := strings.Cut(part, "|")
		out = append(out, map[string]any{
			"stepNum":  fmt.Sprintf("%02d", n),
			"action":   strings.TrimSpace(action),
			"expected": strings.TrimSpace(expected),
		})
	}
	return out
}

func doRegister(ctx context.Context, cfg cliConfig, username, email, password, fullName string) (string, error) {
	client := newAPIClient(cfg.Server, "")
	var out struct {
		Token string `json:"token"`
	}
	err := client.request(ctx, http.MethodPost, "/api/auth/register", map[string]any{
		"username": username,
		"email":    email,
		"password": password,
		"fullName": fullName,
	}, &out)
	return out.Token, err
}

func doLogin(ctx context.Context, cfg cliConfig, email, password string) (string, error) {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		var out struct {
			Token string `json:"token"`
		}
		err := client.call(ctx, "auth.login", map[string]any{"email": email, "password": password}, &out)
		return out.Token, err
	}
	client := newAPIClient(cfg.Server, "")
	var out struct {
		Token string `json:"token"`
	}
	err := client.request(ctx, http.MethodPost, "/api/auth/login", map[string]any{"email": email, "password": password}, &out)
	return out.Token, err
}

type identityView struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func doWhoAmI(ctx context.Context, cfg cliConfig) (identityView, error) {
	var out identityView
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		err := client.call(ctx, "auth.whoami", map[string]any{"token": cfg.Token}, &out)
		return out, err
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	var resp struct {
		User identityView `json:"user"`
	}
	err := client.request(ctx, http.MethodGet, "/api/auth/profile", nil, &resp)
	return resp.User, err
}

func doLogout(ctx context.Context, cfg cliConfig) error {
	if cfg.Transport == "uds" {
		return nil
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

func doTestCasesList(ctx context.Context, cfg cliConfig) ([]domain.TestCase, error) {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		var out []domain.TestCase
		err := client.call(ctx, "testcases.list", map[string]any{"token": cfg.Token}, &out)
		return out, err
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	var resp struct {
		TestCases []caseView `json:"testCases"`
	}
	if err := client.request(ctx, http.MethodGet, "/api/testcases", nil, &resp); err != nil {
		return nil, err
	}
	cases := make([]domain.TestCase, 0, len(resp.TestCases))
	for _, v := range resp.TestCases {
		cases = append(cases, caseFromView(v))
	}
	return cases, nil
}

func doTestCaseCreate(ctx context.Context, cfg cliConfig, name, module, typ, priority, tags, steps string) (domain.TestCase, error) {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		var out domain.TestCase
		err := client.call(ctx, "testcases.create", map[string]any{
			"token":    cfg.Token,
			"name":     name,
			"module":   module,
			"type":     typ,
			"priority": priority,
			"tags":     tags,
			"steps":    steps,
		}, &out)
		return out, err
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	payload := map[string]any{
		"name":     name,
		"module":   module,
		"type":     typ,
		"priority": priority,
		"tags":     tags,
		"steps":    stepPayloads(steps),
	}
	var resp struct {
		TestCase caseView `json:"testCase"`
	}
	if err := client.request(ctx, http.MethodPost, "/api/testcases", payload, &resp); err != nil {
		return domain.TestCase{}, err
	}
	return caseFromView(resp.TestCase), nil
}

func doTestCaseGet(ctx context.Context, cfg cliConfig, id uint) (domain.TestCase, error) {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		var out domain.TestCase
		err := client.call(ctx, "testcases.get", map[string]any{"token": cfg.Token, "id": id}, &out)
		return out, err
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	var resp struct {
		TestCase caseView `json:"testCase"`
	}
	if err := client.request(ctx, http.MethodGet, fmt.Sprintf("/api/testcases/%d", id), nil, &resp); err != nil {
		return domain.TestCase{}, err
	}
	return caseFromView(resp.TestCase), nil
}

// Partial header updates go over HTTP regardless of the configured
// transport; the socket surface does not expose update.
func doTestCaseUpdate(ctx context.Context, cfg cliConfig, id uint, fields map[string]any) (domain.TestCase, error) {
	client := newAPIClient(cfg.Server, cfg.Token)
	var resp struct {
		TestCase caseView `json:"testCase"`
	}
	if err := client.request(ctx, http.MethodPut, fmt.Sprintf("/api/testcases/%d", id), fields, &resp); err != nil {
		return domain.TestCase{}, err
	}
	return caseFromView(resp.TestCase), nil
}

func doTestCaseDelete(ctx context.Context, cfg cliConfig, id uint) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "testcases.delete", map[string]any{"token": cfg.Token, "id": id}, nil)
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.request(ctx, http.MethodDelete, fmt.Sprintf("/api/testcases/%d", id), nil, nil)
}

func doAnalyze(ctx context.Context, cfg cliConfig, htmlContent, url string) (pageinfo.Facts, string, error) {
	client := newAPIClient(cfg.Server, cfg.Token)
	var resp struct {
		Elements pageinfo.Facts `json:"elements"`
		Summary  string         `json:"summary"`
	}
	err := client.request(ctx, http.MethodPost, "/api/autotest/analyze-html", map[string]any{
		"htmlContent": htmlContent,
		"url":         url,
	}, &resp)
	return resp.Elements, resp.Summary, err
}

func doGenerate(ctx context.Context, cfg cliConfig, htmlContent, url string) ([]domain.GeneratedTest, error) {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		var out []domain.GeneratedTest
		err := client.call(ctx, "autotest.generate", map[string]any{
			"token":        cfg.Token,
			"html_content": htmlContent,
			"url":          url,
		}, &out)
		return out, err
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	var resp struct {
		TestCases []domain.GeneratedTest `json:"testCases"`
	}
	err := client.request(ctx, http.MethodPost, "/api/autotest/generate-tests", map[string]any{
		"htmlContent": htmlContent,
		"url":         url,
	}, &resp)
	return resp.TestCases, err
}

func doRunTests(ctx context.Context, cfg cliConfig, tests []domain.GeneratedTest, htmlContent, fileName string) (domain.RunSummary, error) {
	client := newAPIClient(cfg.Server, cfg.Token)
	var resp struct {
		Summary domain.RunSummary `json:"summary"`
	}
	err := client.request(ctx, http.MethodPost, "/api/autotest/run-tests", map[string]any{
		"tests":       tests,
		"htmlContent": htmlContent,
		"fileName":    fileName,
	}, &resp)
	return resp.Summary, err
}

func doRunHistory(ctx context.Context, cfg cliConfig) ([]runView, error) {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		var out []domain.TestRun
		if err := client.call(ctx, "runs.history", map[string]any{"token": cfg.Token}, &out); err != nil {
			return nil, err
		}
		runs := make([]runView, 0, len(out))
		for _, r := range out {
			runs = append(runs, runView{
				ID:         r.ID,
				FileName:   r.FileName,
				TotalTests: r.TotalTests,
				Passed:     r.Passed,
				Failed:     r.Failed,
				Pending:    r.Pending,
				CreatedAt:  r.CreatedAt,
			})
		}
		return runs, nil
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	var resp struct {
		Runs []runView `json:"runs"`
	}
	err := client.request(ctx, http.MethodGet, "/api/autotest/history", nil, &resp)
	return resp.Runs, err
}

func doAnalyticsSummary(ctx context.Context, cfg cliConfig) (summaryView, error) {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		var out domain.AnalyticsSummary
		if err := client.call(ctx, "analytics.summary", map[string]any{"token": cfg.Token}, &out); err != nil {
			return summaryView{}, err
		}
		view := summaryView{
			TotalCases:   out.TotalCases,
			TotalSteps:   out.TotalSteps,
			PassedSteps:  out.PassedSteps,
			FailedSteps:  out.FailedSteps,
			PendingSteps: out.PendingSteps,
			PassRate:     out.PassRate,
			FailRate:     out.FailRate,
		}
		for _, g := range out.ByPriority {
			view.ByPriority = append(view.ByPriority, struct {
				Key   string `json:"key"`
				Count int    `json:"count"`
			}{g.Key, g.Count})
		}
		for _, g := range out.ByModule {
			view.ByModule = append(view.ByModule, struct {
				Key   string `json:"key"`
				Count int    `json:"count"`
			}{g.Key, g.Count})
		}
		return view, nil
	}
	client := newAPIClient(cfg.Server, cfg.Token)
	var out summaryView
	err := client.request(ctx, http.MethodGet, "/api/analytics/summary", nil, &out)
	return out, err
}

func doAnalyticsExport(ctx context.Context, cfg cliConfig) ([]byte, error) {
	client := newAPIClient(cfg.Server, cfg.Token)
	return client.requestRaw(ctx, http.MethodGet, "/api/analytics/export/csv")
}

func uintToString(v uint) string {
	return fmt.Sprintf("%d", v)
}
