package aggregator

import (
	"context"
	"sort"

	"github.com/kurihiro0119/git-metrics/internal/domain"
)

// RebuildAggregates recomputes the contributor, hotspot and daily rollups for
// a repository from its stored commits and file changes, then swaps them in
// atomically. Aggregates are never updated incrementally.
func (e *Engine) RebuildAggregates(ctx context.Context, repoID int64) error {
	commits, err := e.store.GetCommits(ctx, repoID, nil)
	if err != nil {
		return err
	}
	activity, err := e.store.GetFileActivity(ctx, repoID, nil)
	if err != nil {
		return err
	}

	contributors := buildContributors(repoID, commits, activity)
	hotspots := buildHotspots(repoID, activity)
	dailies := buildDailyMetrics(repoID, commits)

	return e.store.ReplaceAggregates(ctx, repoID, contributors, hotspots, dailies)
}

func buildContributors(repoID int64, commits []*domain.Commit, activity []*domain.FileActivity) []*domain.ContributorAggregate {
	byEmail := make(map[string]*domain.ContributorAggregate)
	for _, c := range commits {
		agg, ok := byEmail[c.AuthorEmail]
		if !ok {
			agg = &domain.ContributorAggregate{
				RepoID:          repoID,
				AuthorName:      c.AuthorName,
				AuthorEmail:     c.AuthorEmail,
				FirstCommitDate: c.CommitDate,
				LastCommitDate:  c.CommitDate,
			}
			byEmail[c.AuthorEmail] = agg
		}
		agg.TotalCommits++
		agg.TotalLinesAdded += c.LinesAdded
		agg.TotalLinesDeleted += c.LinesDeleted
		agg.TotalLinesChanged += c.LinesChanged
		if c.CommitDate.Before(agg.FirstCommitDate) {
			agg.FirstCommitDate = c.CommitDate
		}
		if c.CommitDate.After(agg.LastCommitDate) {
			agg.LastCommitDate = c.CommitDate
		}
	}

	filesByEmail := make(map[string]map[string]struct{})
	for _, a := range activity {
		if filesByEmail[a.AuthorEmail] == nil {
			filesByEmail[a.AuthorEmail] = make(map[string]struct{})
		}
		filesByEmail[a.AuthorEmail][a.FilePath] = struct{}{}
	}
	for email, files := range filesByEmail {
		if agg, ok := byEmail[email]; ok {
			agg.FilesTouched = len(files)
		}
	}

	result := make([]*domain.ContributorAggregate, 0, len(byEmail))
	for _, agg := range byEmail {
		result = append(result, agg)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalCommits != result[j].TotalCommits {
			return result[i].TotalCommits > result[j].TotalCommits
		}
		return result[i].AuthorEmail < result[j].AuthorEmail
	})
	return result
}

func buildHotspots(repoID int64, activity []*domain.FileActivity) []*domain.FileHotspot {
	type hotspotAcc struct {
		hotspot      domain.FileHotspot
		contributors map[string]struct{}
	}

	byPath := make(map[string]*hotspotAcc)
	for _, a := range activity {
		acc, ok := byPath[a.FilePath]
		if !ok {
			acc = &hotspotAcc{
				hotspot: domain.FileHotspot{
					RepoID:      repoID,
					FilePath:    a.FilePath,
					LastChanged: a.CommitDate,
				},
				contributors: make(map[string]struct{}),
			}
			byPath[a.FilePath] = acc
		}
		acc.hotspot.ChangeCount++
		acc.hotspot.TotalLinesChanged += a.LinesAdded + a.LinesDeleted
		acc.contributors[a.AuthorEmail] = struct{}{}
		if a.CommitDate.After(acc.hotspot.LastChanged) {
			acc.hotspot.LastChanged = a.CommitDate
		}
	}

	result := make([]*domain.FileHotspot, 0, len(byPath))
	for _, acc := range byPath {
		acc.hotspot.UniqueContributors = len(acc.contributors)
		h := acc.hotspot
		result = append(result, &h)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ChangeCount != result[j].ChangeCount {
			return result[i].ChangeCount > result[j].ChangeCount
		}
		return result[i].FilePath < result[j].FilePath
	})
	return result
}

func buildDailyMetrics(repoID int64, commits []*domain.Commit) []*domain.DailyMetric {
	type dailyAcc struct {
		metric domain.DailyMetric
		emails map[string]struct{}
	}

	byDate := make(map[string]*dailyAcc)
	for _, c := range commits {
		date := c.CommitDate.UTC().Format("2006-01-02")
		acc, ok := byDate[date]
		if !ok {
			acc = &dailyAcc{
				metric: domain.DailyMetric{RepoID: repoID, Date: date},
				emails: make(map[string]struct{}),
			}
			byDate[date] = acc
		}
		acc.metric.Commits++
		acc.metric.LinesAdded += c.LinesAdded
		acc.metric.LinesDeleted += c.LinesDeleted
		acc.metric.FilesChanged += c.FilesChanged
		acc.emails[c.AuthorEmail] = struct{}{}
	}

	result := make([]*domain.DailyMetric, 0, len(byDate))
	for _, acc := range byDate {
		acc.metric.ActiveContributors = len(acc.emails)
		m := acc.metric
		result = append(result, &m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result
}
