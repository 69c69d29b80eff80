package sqlite

import (
	"context"
	"math"
	"strings"

	"github.com/atvirokodosprendimai/testforge/internal/domain"
)

// Step statuses arrive in whatever casing clients sent ("Pass", "PASSED",
// "fail"). Normalization happens here, at read time, never in storage.

func (r *Repository) AnalyticsSummary(ctx context.Context, userID uint) (domain.AnalyticsSummary, error) {
	var totalCases int
	if err := r.db.WithContext(ctx).Raw(`
SELECT COUNT(*) FROM test_cases_v2 WHERE user_id = ?
`, userID).Scan(&totalCases).Error; err != nil {
		return domain.AnalyticsSummary{}, err
	}

	type stepRow struct {
		Total  int
		Passed int
		Failed int
	}
	var steps stepRow
	if err := r.db.WithContext(ctx).Raw(`
SELECT COUNT(*) AS total,
       COALESCE(SUM(CASE WHEN LOWER(s.status) IN ('pass', 'passed') THEN 1 ELSE 0 END), 0) AS passed,
       COALESCE(SUM(CASE WHEN LOWER(s.status) IN ('fail', 'failed') THEN 1 ELSE 0 END), 0) AS failed
FROM test_steps s
JOIN test_cases_v2 c ON c.id = s.test_case_id
WHERE c.user_id = ?
`, userID).Scan(&steps).Error; err != nil {
		return domain.AnalyticsSummary{}, err
	}

	byPriority, err := r.PriorityStats(ctx, userID)
	if err != nil {
		return domain.AnalyticsSummary{}, err
	}
	byModule, err := r.groupCounts(ctx, "module", userID)
	if err != nil {
		return domain.AnalyticsSummary{}, err
	}
	byType, err := r.TypeStats(ctx, userID)
	if err != nil {
		return domain.AnalyticsSummary{}, err
	}

	summary := domain.AnalyticsSummary{
		TotalCases:   totalCases,
		TotalSteps:   steps.Total,
		PassedSteps:  steps.Passed,
		FailedSteps:  steps.Failed,
		PendingSteps: steps.Total - steps.Passed - steps.Failed,
		PassRate:     rate(steps.Passed, steps.Total),
		FailRate:     rate(steps.Failed, steps.Total),
		ByPriority:   titleKeys(byPriority),
		ByModule:     titleKeys(byModule),
		ByType:       titleKeys(byType),
	}
	return summary, nil
}

func (r *Repository) ModuleStats(ctx context.Context, userID uint) ([]domain.ModuleStat, error) {
	type row struct {
		Module    string
		Total     int
		Automated int
	}
	rows := make([]row, 0)
	if err := r.db.WithContext(ctx).Raw(`
SELECT module,
       COUNT(*) AS total,
       COALESCE(SUM(CASE WHEN automation_code IS NOT NULL AND automation_code != '' THEN 1 ELSE 0 END), 0) AS automated
FROM test_cases_v2
WHERE user_id = ?
GROUP BY module
ORDER BY total DESC, module ASC
`, userID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.ModuleStat, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.ModuleStat{
			Module:    m.Module,
			Total:     m.Total,
			Automated: m.Automated,
			Manual:    m.Total - m.Automated,
		})
	}
	return result, nil
}

func (r *Repository) PriorityStats(ctx context.Context, userID uint) ([]domain.GroupCount, error) {
	type row struct {
		Key   string
		Count int
	}
	rows := make([]row, 0)
	if err := r.db.WithContext(ctx).Raw(`
SELECT priority AS key, COUNT(*) AS count
FROM test_cases_v2
WHERE user_id = ?
GROUP BY priority
ORDER BY CASE priority
    WHEN 'Critical' THEN 0
    WHEN 'High' THEN 1
    WHEN 'Medium' THEN 2
    WHEN 'Low' THEN 3
    ELSE 4
END, priority ASC
`, userID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.GroupCount, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.GroupCount{Key: m.Key, Count: m.Count})
	}
	return result, nil
}

func (r *Repository) TypeStats(ctx context.Context, userID uint) ([]domain.GroupCount, error) {
	return r.groupCounts(ctx, "type", userID)
}

func (r *Repository) StepStatusStats(ctx context.Context, userID uint) ([]domain.GroupCount, error) {
	type row struct {
		Key   string
		Count int
	}
	rows := make([]row, 0)
	if err := r.db.WithContext(ctx).Raw(`
SELECT CASE
    WHEN LOWER(s.status) IN ('pass', 'passed') THEN 'passed'
    WHEN LOWER(s.status) IN ('fail', 'failed') THEN 'failed'
    ELSE 'pending'
END AS key,
       COUNT(*) AS count
FROM test_steps s
JOIN test_cases_v2 c ON c.id = s.test_case_id
WHERE c.user_id = ?
GROUP BY 1
ORDER BY count DESC, key ASC
`, userID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.GroupCount, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.GroupCount{Key: m.Key, Count: m.Count})
	}
	return result, nil
}

func (r *Repository) CaseStepStats(ctx context.Context, userID uint) ([]domain.CaseStepStat, error) {
	type row struct {
		ID          uint
		Name        string
		Module      string
		Priority    string
		Type        string
		TotalSteps  int
		PassedSteps int
	}
	rows := make([]row, 0)
	if err := r.db.WithContext(ctx).Raw(`
SELECT c.id,
       c.name,
       c.module,
       c.priority,
       c.type,
       COUNT(s.id) AS total_steps,
       COALESCE(SUM(CASE WHEN LOWER(s.status) IN ('pass', 'passed') THEN 1 ELSE 0 END), 0) AS passed_steps
FROM test_cases_v2 c
LEFT JOIN test_steps s ON s.test_case_id = c.id
WHERE c.user_id = ?
GROUP BY c.id
ORDER BY c.id ASC
`, userID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.CaseStepStat, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.CaseStepStat{
			ID:          m.ID,
			Name:        m.Name,
			Module:      m.Module,
			Priority:    m.Priority,
			Type:        m.Type,
			TotalSteps:  m.TotalSteps,
			PassedSteps: m.PassedSteps,
		})
	}
	return result, nil
}

func (r *Repository) groupCounts(ctx context.Context, column string, userID uint) ([]domain.GroupCount, error) {
	type row struct {
		Key   string
		Count int
	}
	rows := make([]row, 0)
	if err := r.db.WithContext(ctx).Raw(`
SELECT `+column+` AS key, COUNT(*) AS count
FROM test_cases_v2
WHERE user_id = ?
GROUP BY `+column+`
ORDER BY count DESC, key ASC
`, userID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.GroupCount, 0, len(rows))
	for _, m := range rows {
		result = append(result, domain.GroupCount{Key: m.Key, Count: m.Count})
	}
	return result, nil
}

func rate(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func titleKeys(counts []domain.GroupCount) []domain.GroupCount {
	result := make([]domain.GroupCount, 0, len(counts))
	for _, c := range counts {
		key := c.Key
		if key != "" {
			key = strings.ToUpper(key[:1]) + key[1:]
		}
		result = append(result, domain.GroupCount{Key: key, Count: c.Count})
	}
	return result
}
