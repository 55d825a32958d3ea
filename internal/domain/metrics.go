package domain

import "time"

// FileChurn is windowed churn for a single file.
type FileChurn struct {
	FilePath        string `json:"file_path"`
	Churn           int    `json:"churn"`
	ChangeFrequency int    `json:"change_frequency"`
	Contributors    int    `json:"contributors"`
}

// DeveloperChurn is windowed churn for a single developer.
type DeveloperChurn struct {
	AuthorName  string `json:"author_name"`
	AuthorEmail string `json:"author_email"`
	Churn       int    `json:"churn"`
	Added       int    `json:"added"`
	Deleted     int    `json:"deleted"`
	Commits     int    `json:"commits"`
}

// ChurnReport is the windowed churn breakdown for one repository.
type ChurnReport struct {
	TotalChurn     int              `json:"total_churn"`
	FileChurn      []FileChurn      `json:"file_churn"`
	DeveloperChurn []DeveloperChurn `json:"developer_churn"`
	PeriodDays     int              `json:"period_days"`
}

// WeeklyMetric is one calendar-week bucket of commit activity.
type WeeklyMetric struct {
	Week               string `json:"week"` // ISO year-week, e.g. "2024-07"
	Commits            int    `json:"commits"`
	LinesAdded         int    `json:"lines_added"`
	LinesDeleted       int    `json:"lines_deleted"`
	LinesChanged       int    `json:"lines_changed"`
	ActiveContributors int    `json:"active_contributors"`
}

// VelocityReport is the weekly velocity trend for one repository.
type VelocityReport struct {
	WeeklyMetrics         []WeeklyMetric `json:"weekly_metrics"`
	CommitTrendPercentage float64        `json:"commit_trend_percentage"`
	WeeksAnalyzed         int            `json:"weeks_analyzed"`
}

// HighRiskFile is a file whose change history is dominated by one author.
type HighRiskFile struct {
	FilePath            string  `json:"file_path"`
	PrimaryOwner        string  `json:"primary_owner"`
	OwnershipPercentage float64 `json:"ownership_percentage"`
	TotalChanges        int     `json:"total_changes"`
}

// BusFactorReport describes knowledge concentration for one repository.
type BusFactorReport struct {
	BusFactor               int                    `json:"bus_factor"`
	TotalFiles              int                    `json:"total_files"`
	FilesWithSingleOwner    int                    `json:"files_with_single_owner"`
	SingleOwnerPercentage   float64                `json:"single_owner_percentage"`
	HighRiskFiles           []HighRiskFile         `json:"high_risk_files"`
	ContributorDistribution []ContributorAggregate `json:"contributor_distribution"`
}

// CommitPatterns holds hour-of-day and day-of-week commit histograms.
// Day 0 is Sunday.
type CommitPatterns struct {
	HourlyDistribution []int `json:"hourly_distribution"` // 24 buckets
	DailyDistribution  []int `json:"daily_distribution"`  // 7 buckets
	PeakHour           int   `json:"peak_hour"`
	PeakDay            int   `json:"peak_day"`
}

// QualityReport holds commit-shape quality indicators.
type QualityReport struct {
	AverageCommitSize     float64       `json:"average_commit_size"`
	AverageFilesPerCommit float64       `json:"average_files_per_commit"`
	MessageQualityScore   float64       `json:"message_quality_score"`
	FileHotspots          []FileHotspot `json:"file_hotspots"`
}

// ContributorInsight extends a contributor aggregate with repository-relative
// shares and a coarse role classification.
type ContributorInsight struct {
	ContributorAggregate
	CommitPercentage float64 `json:"commit_percentage"`
	LinesPercentage  float64 `json:"lines_percentage"`
	AvgCommitSize    float64 `json:"avg_commit_size"`
	Role             string  `json:"role"`
}

// ContributorInsights is the contributor breakdown for one repository.
type ContributorInsights struct {
	TotalContributors            int                  `json:"total_contributors"`
	ActiveContributorsLast30Days int                  `json:"active_contributors_last_30_days"`
	Contributors                 []ContributorInsight `json:"contributors"`
	TopContributors              []ContributorInsight `json:"top_contributors"`
}

// RepoSummary is the headline totals for one repository.
type RepoSummary struct {
	TotalCommits      int        `json:"total_commits"`
	TotalContributors int        `json:"total_contributors"`
	TotalLinesAdded   int        `json:"total_lines_added"`
	TotalLinesDeleted int        `json:"total_lines_deleted"`
	TotalLinesChanged int        `json:"total_lines_changed"`
	FirstCommit       *time.Time `json:"first_commit"`
	LastCommit        *time.Time `json:"last_commit"`
}

// ComprehensiveReport bundles every per-repository metric family.
type ComprehensiveReport struct {
	Summary        RepoSummary         `json:"summary"`
	Churn          ChurnReport         `json:"churn"`
	Velocity       VelocityReport      `json:"velocity"`
	BusFactor      BusFactorReport     `json:"bus_factor"`
	CommitPatterns CommitPatterns      `json:"commit_patterns"`
	Quality        QualityReport       `json:"quality_indicators"`
	Contributors   ContributorInsights `json:"contributors"`
}

// RepoBreakdown is one repository's row in the cross-repository summary.
type RepoBreakdown struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Provider     ProviderName `json:"provider"`
	LastSync     *time.Time   `json:"last_sync"`
	Commits      int          `json:"commits"`
	Contributors int          `json:"contributors"`
	LinesAdded   int          `json:"lines_added"`
	LinesDeleted int          `json:"lines_deleted"`
	LinesChanged int          `json:"lines_changed"`
	FirstCommit  *time.Time   `json:"first_commit"`
	LastCommit   *time.Time   `json:"last_commit"`
}

// OverallStats is the totals row of the cross-repository summary.
type OverallStats struct {
	TotalRepositories int        `json:"total_repositories"`
	TotalCommits      int        `json:"total_commits"`
	TotalContributors int        `json:"total_contributors"`
	TotalLinesAdded   int        `json:"total_lines_added"`
	TotalLinesDeleted int        `json:"total_lines_deleted"`
	TotalLinesChanged int        `json:"total_lines_changed"`
	FirstCommit       *time.Time `json:"first_commit"`
	LastCommit        *time.Time `json:"last_commit"`
}

// OverallSummary is the cross-repository summary.
type OverallSummary struct {
	Overall      OverallStats    `json:"overall"`
	Repositories []RepoBreakdown `json:"repositories"`
}

// ComparisonMetric selects the value repositories are compared on.
type ComparisonMetric string

const (
	CompareCommits      ComparisonMetric = "commits"
	CompareContributors ComparisonMetric = "contributors"
	CompareChurn        ComparisonMetric = "churn"
)

// ComparisonEntry is one repository in a ranked comparison.
type ComparisonEntry struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// RepoContribution is a contributor's footprint in one repository.
type RepoContribution struct {
	RepoID            int64     `json:"repo_id"`
	RepoName          string    `json:"repo_name"`
	TotalCommits      int       `json:"total_commits"`
	TotalLinesAdded   int       `json:"total_lines_added"`
	TotalLinesDeleted int       `json:"total_lines_deleted"`
	TotalLinesChanged int       `json:"total_lines_changed"`
	FirstCommitDate   time.Time `json:"first_commit_date"`
	LastCommitDate    time.Time `json:"last_commit_date"`
}

// CrossContributor is a contributor aggregated across all active repositories.
type CrossContributor struct {
	AuthorName        string             `json:"author_name"`
	AuthorEmail       string             `json:"author_email"`
	RepositoriesCount int                `json:"repositories_count"`
	TotalCommits      int                `json:"total_commits"`
	TotalLinesAdded   int                `json:"total_lines_added"`
	TotalLinesDeleted int                `json:"total_lines_deleted"`
	TotalLinesChanged int                `json:"total_lines_changed"`
	FirstCommitDate   time.Time          `json:"first_commit_date"`
	LastCommitDate    time.Time          `json:"last_commit_date"`
	Repositories      []RepoContribution `json:"repositories"`
}

// RepoChurn is one repository's windowed churn in the cross-repository view.
type RepoChurn struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Churn   int    `json:"churn"`
	Commits int    `json:"commits"`
}

// CrossContributorChurn is one contributor's windowed churn across
// repositories.
type CrossContributorChurn struct {
	AuthorName   string `json:"author_name"`
	AuthorEmail  string `json:"author_email"`
	Churn        int    `json:"churn"`
	Repositories int    `json:"repositories"`
	Commits      int    `json:"commits"`
}

// CrossChurnReport is the cross-repository churn breakdown.
type CrossChurnReport struct {
	TotalChurn       int                     `json:"total_churn"`
	PeriodDays       int                     `json:"period_days"`
	RepositoryChurn  []RepoChurn             `json:"repository_churn"`
	ContributorChurn []CrossContributorChurn `json:"contributor_churn"`
}

// DailyActivity is one day of a contributor's recent activity series.
type DailyActivity struct {
	Date         string `json:"date"` // YYYY-MM-DD
	Commits      int    `json:"commits"`
	LinesChanged int    `json:"lines_changed"`
}

// ContributorProfile is the full cross-repository profile for one email.
type ContributorProfile struct {
	CrossContributor
	RecentActivity []DailyActivity `json:"recent_activity"`
}
