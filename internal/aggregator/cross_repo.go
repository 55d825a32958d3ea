package aggregator

import (
	"context"
	"sort"

	"github.com/kurihiro0119/git-metrics/internal/domain"
	apperrors "github.com/kurihiro0119/git-metrics/internal/errors"
)

// OverallSummary aggregates headline totals across every active repository.
// Repositories with no commits still appear with zero values.
func (e *Engine) OverallSummary(ctx context.Context) (*domain.OverallSummary, error) {
	repos, err := e.store.GetRepositories(ctx, true)
	if err != nil {
		return nil, err
	}

	summary := &domain.OverallSummary{}
	summary.Overall.TotalRepositories = len(repos)
	allEmails := make(map[string]struct{})

	for _, repo := range repos {
		commits, err := e.store.GetCommits(ctx, repo.ID, nil)
		if err != nil {
			return nil, err
		}

		breakdown := domain.RepoBreakdown{
			ID:       repo.ID,
			Name:     repo.Name,
			Provider: repo.Provider,
			LastSync: repo.LastSync,
		}
		emails := make(map[string]struct{})
		for _, c := range commits {
			breakdown.Commits++
			breakdown.LinesAdded += c.LinesAdded
			breakdown.LinesDeleted += c.LinesDeleted
			breakdown.LinesChanged += c.LinesChanged
			emails[c.AuthorEmail] = struct{}{}
			allEmails[c.AuthorEmail] = struct{}{}

			d := c.CommitDate
			if breakdown.FirstCommit == nil || d.Before(*breakdown.FirstCommit) {
				t := d
				breakdown.FirstCommit = &t
			}
			if breakdown.LastCommit == nil || d.After(*breakdown.LastCommit) {
				t := d
				breakdown.LastCommit = &t
			}
		}
		breakdown.Contributors = len(emails)

		summary.Overall.TotalCommits += breakdown.Commits
		summary.Overall.TotalLinesAdded += breakdown.LinesAdded
		summary.Overall.TotalLinesDeleted += breakdown.LinesDeleted
		summary.Overall.TotalLinesChanged += breakdown.LinesChanged
		if breakdown.FirstCommit != nil &&
			(summary.Overall.FirstCommit == nil || breakdown.FirstCommit.Before(*summary.Overall.FirstCommit)) {
			summary.Overall.FirstCommit = breakdown.FirstCommit
		}
		if breakdown.LastCommit != nil &&
			(summary.Overall.LastCommit == nil || breakdown.LastCommit.After(*summary.Overall.LastCommit)) {
			summary.Overall.LastCommit = breakdown.LastCommit
		}

		summary.Repositories = append(summary.Repositories, breakdown)
	}
	summary.Overall.TotalContributors = len(allEmails)

	sort.Slice(summary.Repositories, func(i, j int) bool {
		if summary.Repositories[i].Commits != summary.Repositories[j].Commits {
			return summary.Repositories[i].Commits > summary.Repositories[j].Commits
		}
		return summary.Repositories[i].ID < summary.Repositories[j].ID
	})
	return summary, nil
}

// Comparison ranks active repositories by one metric: commit count, unique
// contributors, or total lines changed. An unknown metric name is a
// validation error.
func (e *Engine) Comparison(ctx context.Context, metric domain.ComparisonMetric) ([]domain.ComparisonEntry, error) {
	switch metric {
	case domain.CompareCommits, domain.CompareContributors, domain.CompareChurn:
	default:
		return nil, apperrors.NewValidationError("metric must be one of: commits, contributors, churn")
	}

	repos, err := e.store.GetRepositories(ctx, true)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.ComparisonEntry, 0, len(repos))
	for _, repo := range repos {
		commits, err := e.store.GetCommits(ctx, repo.ID, nil)
		if err != nil {
			return nil, err
		}

		value := 0
		switch metric {
		case domain.CompareCommits:
			value = len(commits)
		case domain.CompareContributors:
			emails := make(map[string]struct{})
			for _, c := range commits {
				emails[c.AuthorEmail] = struct{}{}
			}
			value = len(emails)
		case domain.CompareChurn:
			for _, c := range commits {
				value += c.LinesChanged
			}
		}
		entries = append(entries, domain.ComparisonEntry{ID: repo.ID, Name: repo.Name, Value: value})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// CrossRepoContributors merges contributor aggregates across all active
// repositories, keyed by author email.
func (e *Engine) CrossRepoContributors(ctx context.Context, limit int) ([]domain.CrossContributor, error) {
	if limit <= 0 {
		limit = 50
	}

	repos, err := e.store.GetRepositories(ctx, true)
	if err != nil {
		return nil, err
	}

	byEmail := make(map[string]*domain.CrossContributor)
	for _, repo := range repos {
		aggregates, err := e.store.GetContributorAggregates(ctx, repo.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range aggregates {
			cc, ok := byEmail[a.AuthorEmail]
			if !ok {
				cc = &domain.CrossContributor{
					AuthorName:      a.AuthorName,
					AuthorEmail:     a.AuthorEmail,
					FirstCommitDate: a.FirstCommitDate,
					LastCommitDate:  a.LastCommitDate,
				}
				byEmail[a.AuthorEmail] = cc
			}
			cc.RepositoriesCount++
			cc.TotalCommits += a.TotalCommits
			cc.TotalLinesAdded += a.TotalLinesAdded
			cc.TotalLinesDeleted += a.TotalLinesDeleted
			cc.TotalLinesChanged += a.TotalLinesChanged
			if a.FirstCommitDate.Before(cc.FirstCommitDate) {
				cc.FirstCommitDate = a.FirstCommitDate
			}
			if a.LastCommitDate.After(cc.LastCommitDate) {
				cc.LastCommitDate = a.LastCommitDate
			}
			cc.Repositories = append(cc.Repositories, domain.RepoContribution{
				RepoID:            repo.ID,
				RepoName:          repo.Name,
				TotalCommits:      a.TotalCommits,
				TotalLinesAdded:   a.TotalLinesAdded,
				TotalLinesDeleted: a.TotalLinesDeleted,
				TotalLinesChanged: a.TotalLinesChanged,
				FirstCommitDate:   a.FirstCommitDate,
				LastCommitDate:    a.LastCommitDate,
			})
		}
	}

	result := make([]domain.CrossContributor, 0, len(byEmail))
	for _, cc := range byEmail {
		sort.Slice(cc.Repositories, func(i, j int) bool {
			return cc.Repositories[i].TotalCommits > cc.Repositories[j].TotalCommits
		})
		result = append(result, *cc)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalCommits != result[j].TotalCommits {
			return result[i].TotalCommits > result[j].TotalCommits
		}
		return result[i].AuthorEmail < result[j].AuthorEmail
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CrossRepoChurn computes windowed churn across all active repositories,
// broken down by repository and by contributor.
func (e *Engine) CrossRepoChurn(ctx context.Context, days int) (*domain.CrossChurnReport, error) {
	if days <= 0 {
		days = 30
	}
	since := e.now().UTC().AddDate(0, 0, -days)

	repos, err := e.store.GetRepositories(ctx, true)
	if err != nil {
		return nil, err
	}

	report := &domain.CrossChurnReport{PeriodDays: days}
	type contribAcc struct {
		churn   domain.CrossContributorChurn
		repoIDs map[int64]struct{}
	}
	byEmail := make(map[string]*contribAcc)

	for _, repo := range repos {
		commits, err := e.store.GetCommits(ctx, repo.ID, &since)
		if err != nil {
			return nil, err
		}
		if len(commits) == 0 {
			continue
		}

		entry := domain.RepoChurn{ID: repo.ID, Name: repo.Name}
		for _, c := range commits {
			churn := c.LinesAdded + c.LinesDeleted
			entry.Churn += churn
			entry.Commits++

			acc, ok := byEmail[c.AuthorEmail]
			if !ok {
				acc = &contribAcc{
					churn:   domain.CrossContributorChurn{AuthorName: c.AuthorName, AuthorEmail: c.AuthorEmail},
					repoIDs: make(map[int64]struct{}),
				}
				byEmail[c.AuthorEmail] = acc
			}
			acc.churn.Churn += churn
			acc.churn.Commits++
			acc.repoIDs[repo.ID] = struct{}{}
		}
		report.TotalChurn += entry.Churn
		report.RepositoryChurn = append(report.RepositoryChurn, entry)
	}

	sort.Slice(report.RepositoryChurn, func(i, j int) bool {
		if report.RepositoryChurn[i].Churn != report.RepositoryChurn[j].Churn {
			return report.RepositoryChurn[i].Churn > report.RepositoryChurn[j].Churn
		}
		return report.RepositoryChurn[i].ID < report.RepositoryChurn[j].ID
	})

	for _, acc := range byEmail {
		acc.churn.Repositories = len(acc.repoIDs)
		report.ContributorChurn = append(report.ContributorChurn, acc.churn)
	}
	sort.Slice(report.ContributorChurn, func(i, j int) bool {
		if report.ContributorChurn[i].Churn != report.ContributorChurn[j].Churn {
			return report.ContributorChurn[i].Churn > report.ContributorChurn[j].Churn
		}
		return report.ContributorChurn[i].AuthorEmail < report.ContributorChurn[j].AuthorEmail
	})
	if len(report.ContributorChurn) > 30 {
		report.ContributorChurn = report.ContributorChurn[:30]
	}
	return report, nil
}

// ContributorByEmail builds the cross-repository profile for one author
// email. It returns nil when the email has no contributions in any active
// repository.
func (e *Engine) ContributorByEmail(ctx context.Context, email string) (*domain.ContributorProfile, error) {
	repos, err := e.store.GetRepositories(ctx, true)
	if err != nil {
		return nil, err
	}

	var profile *domain.ContributorProfile
	for _, repo := range repos {
		aggregates, err := e.store.GetContributorAggregates(ctx, repo.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range aggregates {
			if a.AuthorEmail != email {
				continue
			}
			if profile == nil {
				profile = &domain.ContributorProfile{
					CrossContributor: domain.CrossContributor{
						AuthorName:      a.AuthorName,
						AuthorEmail:     a.AuthorEmail,
						FirstCommitDate: a.FirstCommitDate,
						LastCommitDate:  a.LastCommitDate,
					},
				}
			}
			profile.RepositoriesCount++
			profile.TotalCommits += a.TotalCommits
			profile.TotalLinesAdded += a.TotalLinesAdded
			profile.TotalLinesDeleted += a.TotalLinesDeleted
			profile.TotalLinesChanged += a.TotalLinesChanged
			if a.FirstCommitDate.Before(profile.FirstCommitDate) {
				profile.FirstCommitDate = a.FirstCommitDate
			}
			if a.LastCommitDate.After(profile.LastCommitDate) {
				profile.LastCommitDate = a.LastCommitDate
			}
			profile.Repositories = append(profile.Repositories, domain.RepoContribution{
				RepoID:            repo.ID,
				RepoName:          repo.Name,
				TotalCommits:      a.TotalCommits,
				TotalLinesAdded:   a.TotalLinesAdded,
				TotalLinesDeleted: a.TotalLinesDeleted,
				TotalLinesChanged: a.TotalLinesChanged,
				FirstCommitDate:   a.FirstCommitDate,
				LastCommitDate:    a.LastCommitDate,
			})
		}
	}
	if profile == nil {
		return nil, nil
	}
	sort.Slice(profile.Repositories, func(i, j int) bool {
		return profile.Repositories[i].TotalCommits > profile.Repositories[j].TotalCommits
	})

	// Daily activity over the last 30 days, across all active repositories.
	since := e.now().UTC().AddDate(0, 0, -30)
	byDate := make(map[string]*domain.DailyActivity)
	for _, repo := range repos {
		commits, err := e.store.GetCommits(ctx, repo.ID, &since)
		if err != nil {
			return nil, err
		}
		for _, c := range commits {
			if c.AuthorEmail != email {
				continue
			}
			date := c.CommitDate.UTC().Format("2006-01-02")
			day, ok := byDate[date]
			if !ok {
				day = &domain.DailyActivity{Date: date}
				byDate[date] = day
			}
			day.Commits++
			day.LinesChanged += c.LinesChanged
		}
	}
	for _, day := range byDate {
		profile.RecentActivity = append(profile.RecentActivity, *day)
	}
	sort.Slice(profile.RecentActivity, func(i, j int) bool {
		return profile.RecentActivity[i].Date < profile.RecentActivity[j].Date
	})
	return profile, nil
}
