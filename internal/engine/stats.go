package engine

import (
	"context"

	"taskdesk/internal/domain"
	"taskdesk/internal/repo"
)

// CountByStatus folds requests into per-status counts. Statuses with no
// request are absent, and the counts always sum to len(requests).
func CountByStatus(requests []domain.TaskRequest) map[domain.Status]int {
	counts := make(map[domain.Status]int)
	for _, r := range requests {
		counts[r.Status]++
	}
	return counts
}

// StatusCounts is CountByStatus computed by the database over the filtered set.
func (e Engine) StatusCounts(ctx context.Context, f repo.RequestFilters) (map[domain.Status]int, error) {
	if f.Status != "" {
		st, err := domain.ParseStatus(string(f.Status))
		if err != nil {
			return nil, domain.Invalid("status", err.Error())
		}
		f.Status = st
	}
	return e.Repo.CountRequestsByStatus(ctx, f)
}
