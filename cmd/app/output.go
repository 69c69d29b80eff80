package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/atvirokodosprendimai/testforge/internal/domain"
)

func printJSON(v any) error {
	b, err := jsonMarshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func printTestCases(items []domain.TestCase) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Name,
			item.Module,
			item.Priority,
			item.Type,
			strconv.Itoa(len(item.Steps)),
			formatTime(item.UpdatedAt),
		})
	}
	printTable([]string{"ID", "NAME", "MODULE", "PRIORITY", "TYPE", "STEPS", "UPDATED_AT"}, rows)
}

func printTestCaseDetail(item domain.TestCase) {
	printKV([][2]string{
		{"id", strconv.FormatUint(uint64(item.ID), 10)},
		{"name", item.Name},
		{"module", item.Module},
		{"priority", item.Priority},
		{"type", item.Type},
		{"tags", strings.Join(item.Tags, ",")},
		{"created_at", formatTime(item.CreatedAt)},
		{"updated_at", formatTime(item.UpdatedAt)},
	})
	if len(item.Steps) == 0 {
		return
	}
	fmt.Println()
	rows := make([][]string, 0, len(item.Steps))
	for _, step := range item.Steps {
		rows = append(rows, []string{step.StepNum, step.Action, step.Expected, step.Status})
	}
	printTable([]string{"STEP", "ACTION", "EXPECTED", "STATUS"}, rows)
}

func printGeneratedTests(items []domain.GeneratedTest) {
	rows := make([][]string, 0, len(items))
	for i, item := range items {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			item.Name,
			item.Priority,
			item.Type,
			strconv.Itoa(len(item.Steps)),
		})
	}
	printTable([]string{"#", "NAME", "PRIORITY", "TYPE", "STEPS"}, rows)
}

func printRunSummary(item domain.RunSummary) {
	printKV([][2]string{
		{"total", strconv.Itoa(item.TotalTests)},
		{"passed", strconv.Itoa(item.Passed)},
		{"failed", strconv.Itoa(item.Failed)},
		{"duration", item.Duration},
	})
	fmt.Println()
	rows := make([][]string, 0, len(item.Results))
	for _, result := range item.Results {
		rows = append(rows, []string{result.TestName, result.Status, result.Duration, result.Error})
	}
	printTable([]string{"TEST", "STATUS", "DURATION", "ERROR"}, rows)
}

func printRuns(items []runView) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.FileName,
			strconv.Itoa(item.TotalTests),
			strconv.Itoa(item.Passed),
			strconv.Itoa(item.Failed),
			formatTime(item.CreatedAt),
		})
	}
	printTable([]string{"ID", "FILE", "TOTAL", "PASSED", "FAILED", "AT"}, rows)
}

func printAnalyticsSummary(item summaryView) {
	printKV([][2]string{
		{"total_cases", strconv.Itoa(item.TotalCases)},
		{"total_steps", strconv.Itoa(item.TotalSteps)},
		{"passed_steps", strconv.Itoa(item.PassedSteps)},
		{"failed_steps", strconv.Itoa(item.FailedSteps)},
		{"pending_steps", strconv.Itoa(item.PendingSteps)},
		{"pass_rate", strconv.Itoa(item.PassRate) + "%"},
		{"fail_rate", strconv.Itoa(item.FailRate) + "%"},
	})
	if len(item.ByPriority) > 0 {
		fmt.Println()
		rows := make([][]string, 0, len(item.ByPriority))
		for _, g := range item.ByPriority {
			rows = append(rows, []string{g.Key, strconv.Itoa(g.Count)})
		}
		printTable([]string{"PRIORITY", "CASES"}, rows)
	}
	if len(item.ByModule) > 0 {
		fmt.Println()
		rows := make([][]string, 0, len(item.ByModule))
		for _, g := range item.ByModule {
			rows = append(rows, []string{g.Key, strconv.Itoa(g.Count)})
		}
		printTable([]string{"MODULE", "CASES"}, rows)
	}
}
