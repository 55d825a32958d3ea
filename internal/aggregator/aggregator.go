package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/kurihiro0119/git-metrics/internal/domain"
	"github.com/kurihiro0119/git-metrics/internal/storage"
)

// Engine computes derived metrics from stored commit facts and aggregates.
// All statistics are calculated in process so every store adapter shares the
// same semantics.
type Engine struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a metrics engine over a store
func New(store storage.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger, now: time.Now}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CodeChurn computes windowed churn (lines added + deleted) broken down by
// file and by developer. High churn flags unstable code or active hotspots.
func (e *Engine) CodeChurn(ctx context.Context, repoID int64, days int) (*domain.ChurnReport, error) {
	if days <= 0 {
		days = 30
	}
	since := e.now().UTC().AddDate(0, 0, -days)

	commits, err := e.store.GetCommits(ctx, repoID, &since)
	if err != nil {
		return nil, err
	}
	activity, err := e.store.GetFileActivity(ctx, repoID, &since)
	if err != nil {
		return nil, err
	}

	report := &domain.ChurnReport{
		FileChurn:      fileChurn(activity),
		DeveloperChurn: developerChurn(commits),
		PeriodDays:     days,
	}
	for _, d := range report.DeveloperChurn {
		report.TotalChurn += d.Churn
	}
	return report, nil
}

func fileChurn(activity []*domain.FileActivity) []domain.FileChurn {
	type fileAcc struct {
		churn        domain.FileChurn
		contributors map[string]struct{}
	}

	byPath := make(map[string]*fileAcc)
	for _, a := range activity {
		acc, ok := byPath[a.FilePath]
		if !ok {
			acc = &fileAcc{
				churn:        domain.FileChurn{FilePath: a.FilePath},
				contributors: make(map[string]struct{}),
			}
			byPath[a.FilePath] = acc
		}
		acc.churn.Churn += a.LinesAdded + a.LinesDeleted
		acc.churn.ChangeFrequency++
		acc.contributors[a.AuthorEmail] = struct{}{}
	}

	result := make([]domain.FileChurn, 0, len(byPath))
	for _, acc := range byPath {
		acc.churn.Contributors = len(acc.contributors)
		result = append(result, acc.churn)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Churn != result[j].Churn {
			return result[i].Churn > result[j].Churn
		}
		return result[i].FilePath < result[j].FilePath
	})
	if len(result) > 50 {
		result = result[:50]
	}
	return result
}

func developerChurn(commits []*domain.Commit) []domain.DeveloperChurn {
	byEmail := make(map[string]*domain.DeveloperChurn)
	for _, c := range commits {
		d, ok := byEmail[c.AuthorEmail]
		if !ok {
			d = &domain.DeveloperChurn{AuthorName: c.AuthorName, AuthorEmail: c.AuthorEmail}
			byEmail[c.AuthorEmail] = d
		}
		d.Churn += c.LinesAdded + c.LinesDeleted
		d.Added += c.LinesAdded
		d.Deleted += c.LinesDeleted
		d.Commits++
	}

	result := make([]domain.DeveloperChurn, 0, len(byEmail))
	for _, d := range byEmail {
		result = append(result, *d)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Churn != result[j].Churn {
			return result[i].Churn > result[j].Churn
		}
		return result[i].AuthorEmail < result[j].AuthorEmail
	})
	return result
}

// VelocityTrends buckets commit activity into calendar weeks and derives the
// trend as the percentage change between the mean of the first and last up
// to four buckets.
func (e *Engine) VelocityTrends(ctx context.Context, repoID int64, weeks int) (*domain.VelocityReport, error) {
	if weeks <= 0 {
		weeks = 12
	}
	since := e.now().UTC().AddDate(0, 0, -weeks*7)

	commits, err := e.store.GetCommits(ctx, repoID, &since)
	if err != nil {
		return nil, err
	}

	type weekAcc struct {
		metric domain.WeeklyMetric
		emails map[string]struct{}
	}
	byWeek := make(map[string]*weekAcc)
	for _, c := range commits {
		y, w := c.CommitDate.UTC().ISOWeek()
		key := fmt.Sprintf("%d-%02d", y, w)
		acc, ok := byWeek[key]
		if !ok {
			acc = &weekAcc{
				metric: domain.WeeklyMetric{Week: key},
				emails: make(map[string]struct{}),
			}
			byWeek[key] = acc
		}
		acc.metric.Commits++
		acc.metric.LinesAdded += c.LinesAdded
		acc.metric.LinesDeleted += c.LinesDeleted
		acc.metric.LinesChanged += c.LinesChanged
		acc.emails[c.AuthorEmail] = struct{}{}
	}

	weekly := make([]domain.WeeklyMetric, 0, len(byWeek))
	for _, acc := range byWeek {
		acc.metric.ActiveContributors = len(acc.emails)
		weekly = append(weekly, acc.metric)
	}
	sort.Slice(weekly, func(i, j int) bool { return weekly[i].Week < weekly[j].Week })

	var trend float64
	if len(weekly) >= 2 {
		head := weekly[:minInt(4, len(weekly))]
		tail := weekly[maxInt(0, len(weekly)-4):]
		olderAvg := meanCommits(head)
		recentAvg := meanCommits(tail)
		if olderAvg > 0 {
			trend = (recentAvg - olderAvg) / olderAvg * 100
		}
	}

	return &domain.VelocityReport{
		WeeklyMetrics:         weekly,
		CommitTrendPercentage: round2(trend),
		WeeksAnalyzed:         len(weekly),
	}, nil
}

func meanCommits(weeks []domain.WeeklyMetric) float64 {
	if len(weeks) == 0 {
		return 0
	}
	sum := 0
	for _, w := range weeks {
		sum += w.Commits
	}
	return float64(sum) / float64(len(weeks))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// BusFactor measures knowledge concentration: how many contributors cover
// half of all commits, and which files are owned almost entirely by one
// author.
func (e *Engine) BusFactor(ctx context.Context, repoID int64) (*domain.BusFactorReport, error) {
	activity, err := e.store.GetFileActivity(ctx, repoID, nil)
	if err != nil {
		return nil, err
	}

	ownership := make(map[string]map[string]int)
	for _, a := range activity {
		if ownership[a.FilePath] == nil {
			ownership[a.FilePath] = make(map[string]int)
		}
		ownership[a.FilePath][a.AuthorEmail]++
	}

	var highRisk []domain.HighRiskFile
	filesWithSingleOwner := 0
	for path, authors := range ownership {
		totalChanges := 0
		primaryOwner := ""
		primaryChanges := 0
		for email, changes := range authors {
			totalChanges += changes
			if changes > primaryChanges || (changes == primaryChanges && email < primaryOwner) {
				primaryOwner = email
				primaryChanges = changes
			}
		}
		pct := float64(primaryChanges) / float64(totalChanges) * 100
		if pct >= 80 {
			filesWithSingleOwner++
			highRisk = append(highRisk, domain.HighRiskFile{
				FilePath:            path,
				PrimaryOwner:        primaryOwner,
				OwnershipPercentage: round2(pct),
				TotalChanges:        totalChanges,
			})
		}
	}
	sort.Slice(highRisk, func(i, j int) bool {
		if highRisk[i].OwnershipPercentage != highRisk[j].OwnershipPercentage {
			return highRisk[i].OwnershipPercentage > highRisk[j].OwnershipPercentage
		}
		return highRisk[i].FilePath < highRisk[j].FilePath
	})
	if len(highRisk) > 20 {
		highRisk = highRisk[:20]
	}

	contributors, err := e.store.GetContributorAggregates(ctx, repoID)
	if err != nil {
		return nil, err
	}

	totalCommits := 0
	for _, c := range contributors {
		totalCommits += c.TotalCommits
	}

	// Minimum number of contributors covering half of all commits.
	busFactor := 0
	cumulative := 0
	for _, c := range contributors {
		cumulative += c.TotalCommits
		busFactor++
		if float64(cumulative) >= float64(totalCommits)*0.5 {
			break
		}
	}

	report := &domain.BusFactorReport{
		BusFactor:            busFactor,
		TotalFiles:           len(ownership),
		FilesWithSingleOwner: filesWithSingleOwner,
		HighRiskFiles:        highRisk,
	}
	if len(ownership) > 0 {
		report.SingleOwnerPercentage = round2(float64(filesWithSingleOwner) / float64(len(ownership)) * 100)
	}
	for i, c := range contributors {
		if i >= 10 {
			break
		}
		report.ContributorDistribution = append(report.ContributorDistribution, *c)
	}
	return report, nil
}

// CommitPatterns builds hour-of-day and day-of-week commit histograms. Ties
// for the peak bucket resolve to the lowest index.
func (e *Engine) CommitPatterns(ctx context.Context, repoID int64) (*domain.CommitPatterns, error) {
	commits, err := e.store.GetCommits(ctx, repoID, nil)
	if err != nil {
		return nil, err
	}

	patterns := &domain.CommitPatterns{
		HourlyDistribution: make([]int, 24),
		DailyDistribution:  make([]int, 7),
	}
	for _, c := range commits {
		t := c.CommitDate.UTC()
		patterns.HourlyDistribution[t.Hour()]++
		patterns.DailyDistribution[int(t.Weekday())]++
	}
	patterns.PeakHour = peakIndex(patterns.HourlyDistribution)
	patterns.PeakDay = peakIndex(patterns.DailyDistribution)
	return patterns, nil
}

func peakIndex(buckets []int) int {
	peak := 0
	for i, v := range buckets {
		if v > buckets[peak] {
			peak = i
		}
	}
	return peak
}

// QualityIndicators derives commit-shape heuristics: average commit size,
// files per commit, and the share of messages at least ten characters long.
func (e *Engine) QualityIndicators(ctx context.Context, repoID int64) (*domain.QualityReport, error) {
	commits, err := e.store.GetCommits(ctx, repoID, nil)
	if err != nil {
		return nil, err
	}
	hotspots, err := e.store.GetFileHotspots(ctx, repoID, 20)
	if err != nil {
		return nil, err
	}

	report := &domain.QualityReport{}
	for _, h := range hotspots {
		report.FileHotspots = append(report.FileHotspots, *h)
	}
	if len(commits) == 0 {
		return report, nil
	}

	totalLines := 0
	totalFiles := 0
	goodMessages := 0
	for _, c := range commits {
		totalLines += c.LinesChanged
		totalFiles += c.FilesChanged
		if len(c.Message) >= 10 {
			goodMessages++
		}
	}
	n := float64(len(commits))
	report.AverageCommitSize = round2(float64(totalLines) / n)
	report.AverageFilesPerCommit = round2(float64(totalFiles) / n)
	report.MessageQualityScore = round2(float64(goodMessages) / n * 100)
	return report, nil
}

// ContributorInsights annotates contributor aggregates with repository
// shares and a coarse role classification.
func (e *Engine) ContributorInsights(ctx context.Context, repoID int64) (*domain.ContributorInsights, error) {
	aggregates, err := e.store.GetContributorAggregates(ctx, repoID)
	if err != nil {
		return nil, err
	}

	totalCommits := 0
	totalLines := 0
	for _, a := range aggregates {
		totalCommits += a.TotalCommits
		totalLines += a.TotalLinesChanged
	}

	insights := make([]domain.ContributorInsight, 0, len(aggregates))
	for _, a := range aggregates {
		insight := domain.ContributorInsight{ContributorAggregate: *a}
		if totalCommits > 0 {
			insight.CommitPercentage = round2(float64(a.TotalCommits) / float64(totalCommits) * 100)
		}
		if totalLines > 0 {
			insight.LinesPercentage = round2(float64(a.TotalLinesChanged) / float64(totalLines) * 100)
		}
		if a.TotalCommits > 0 {
			insight.AvgCommitSize = round2(float64(a.TotalLinesChanged) / float64(a.TotalCommits))
		}
		switch {
		case insight.CommitPercentage > 30:
			insight.Role = "Core Contributor"
		case insight.CommitPercentage > 10:
			insight.Role = "Regular Contributor"
		default:
			insight.Role = "Occasional Contributor"
		}
		insights = append(insights, insight)
	}

	active, err := e.countActiveContributors(ctx, repoID, 30)
	if err != nil {
		return nil, err
	}

	result := &domain.ContributorInsights{
		TotalContributors:            len(insights),
		ActiveContributorsLast30Days: active,
		Contributors:                 insights,
	}
	top := insights
	if len(top) > 10 {
		top = top[:10]
	}
	result.TopContributors = top
	return result, nil
}

func (e *Engine) countActiveContributors(ctx context.Context, repoID int64, days int) (int, error) {
	since := e.now().UTC().AddDate(0, 0, -days)
	commits, err := e.store.GetCommits(ctx, repoID, &since)
	if err != nil {
		return 0, err
	}
	emails := make(map[string]struct{})
	for _, c := range commits {
		emails[c.AuthorEmail] = struct{}{}
	}
	return len(emails), nil
}

// Summary returns headline totals for one repository. An empty repository
// yields zero values, never an error.
func (e *Engine) Summary(ctx context.Context, repoID int64) (*domain.RepoSummary, error) {
	commits, err := e.store.GetCommits(ctx, repoID, nil)
	if err != nil {
		return nil, err
	}

	summary := &domain.RepoSummary{}
	emails := make(map[string]struct{})
	for _, c := range commits {
		summary.TotalCommits++
		summary.TotalLinesAdded += c.LinesAdded
		summary.TotalLinesDeleted += c.LinesDeleted
		summary.TotalLinesChanged += c.LinesChanged
		emails[c.AuthorEmail] = struct{}{}

		d := c.CommitDate
		if summary.FirstCommit == nil || d.Before(*summary.FirstCommit) {
			t := d
			summary.FirstCommit = &t
		}
		if summary.LastCommit == nil || d.After(*summary.LastCommit) {
			t := d
			summary.LastCommit = &t
		}
	}
	summary.TotalContributors = len(emails)
	return summary, nil
}

// Comprehensive bundles every per-repository metric family into one report.
func (e *Engine) Comprehensive(ctx context.Context, repoID int64) (*domain.ComprehensiveReport, error) {
	summary, err := e.Summary(ctx, repoID)
	if err != nil {
		return nil, err
	}
	churn, err := e.CodeChurn(ctx, repoID, 30)
	if err != nil {
		return nil, err
	}
	velocity, err := e.VelocityTrends(ctx, repoID, 12)
	if err != nil {
		return nil, err
	}
	busFactor, err := e.BusFactor(ctx, repoID)
	if err != nil {
		return nil, err
	}
	patterns, err := e.CommitPatterns(ctx, repoID)
	if err != nil {
		return nil, err
	}
	quality, err := e.QualityIndicators(ctx, repoID)
	if err != nil {
		return nil, err
	}
	contributors, err := e.ContributorInsights(ctx, repoID)
	if err != nil {
		return nil, err
	}

	return &domain.ComprehensiveReport{
		Summary:        *summary,
		Churn:          *churn,
		Velocity:       *velocity,
		BusFactor:      *busFactor,
		CommitPatterns: *patterns,
		Quality:        *quality,
		Contributors:   *contributors,
	}, nil
}
