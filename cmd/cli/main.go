package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/git-metrics/internal/config"
	"github.com/kurihiro0119/git-metrics/pkg/client"
)

var (
	outputJSON bool
	endpoint   string

	repoName     string
	repoProvider string
	repoToken    string

	fullSync  bool
	syncWait  bool
	churnDays int
	weeks     int
	metric    string
	limit     int
)

var rootCmd = &cobra.Command{
	Use:   "git-metrics",
	Short: "Git repository metrics tool",
	Long: `A CLI tool for syncing and inspecting git repository metrics.

This tool talks to the git-metrics API server, which ingests commit
history from GitHub and Bitbucket and computes engineering metrics
such as code churn, velocity trends and bus factor.`,
}

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage tracked repositories",
}

var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked repositories",
	RunE:  runReposList,
}

var reposAddCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Register a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runReposAdd,
}

var reposRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Deactivate a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runReposRemove,
}

var syncCmd = &cobra.Command{
	Use:   "sync [repo-id]",
	Short: "Sync a repository",
	Long:  `Trigger a background sync run for a repository and optionally wait for it to finish.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSync,
}

var statusCmd = &cobra.Command{
	Use:   "status [repo-id]",
	Short: "Show sync status for a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show repository metrics",
}

var summaryCmd = &cobra.Command{
	Use:   "summary [repo-id]",
	Short: "Show headline totals for a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

var churnCmd = &cobra.Command{
	Use:   "churn [repo-id]",
	Short: "Show code churn for a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runChurn,
}

var velocityCmd = &cobra.Command{
	Use:   "velocity [repo-id]",
	Short: "Show weekly velocity trends for a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runVelocity,
}

var busFactorCmd = &cobra.Command{
	Use:   "bus-factor [repo-id]",
	Short: "Show knowledge concentration for a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runBusFactor,
}

var contributorsCmd = &cobra.Command{
	Use:   "contributors [repo-id]",
	Short: "Show contributors for a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runContributors,
}

var overallCmd = &cobra.Command{
	Use:   "overall",
	Short: "Show totals across all repositories",
	RunE:  runOverall,
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Rank repositories by one metric",
	RunE:  runCompare,
}

var contributorCmd = &cobra.Command{
	Use:   "contributor [email]",
	Short: "Show a contributor's cross-repository profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runContributor,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "API endpoint (default from API_ENDPOINT)")

	reposAddCmd.Flags().StringVar(&repoName, "name", "", "display name (defaults to provider name)")
	reposAddCmd.Flags().StringVar(&repoProvider, "provider", "github", "hosting provider (github, bitbucket)")
	reposAddCmd.Flags().StringVar(&repoToken, "token", "", "access token")

	syncCmd.Flags().BoolVar(&fullSync, "full", false, "ignore the last sync time and fetch everything")
	syncCmd.Flags().BoolVar(&syncWait, "wait", false, "poll until the sync finishes")

	churnCmd.Flags().IntVar(&churnDays, "days", 30, "analysis window in days")
	velocityCmd.Flags().IntVar(&weeks, "weeks", 12, "analysis window in weeks")
	compareCmd.Flags().StringVar(&metric, "metric", "commits", "comparison metric (commits, contributors, churn)")
	contributorsCmd.Flags().IntVar(&limit, "limit", 0, "maximum rows")

	reposCmd.AddCommand(reposListCmd, reposAddCmd, reposRemoveCmd)
	metricsCmd.AddCommand(summaryCmd, churnCmd, velocityCmd, busFactorCmd, contributorsCmd, overallCmd, compareCmd, contributorCmd)
	rootCmd.AddCommand(reposCmd, syncCmd, statusCmd, metricsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func apiClient() (*client.Client, error) {
	if endpoint != "" {
		return client.NewClient(endpoint), nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return client.NewClient(cfg.APIEndpoint), nil
}

func parseRepoID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid repository id: %s", arg)
	}
	return id, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runReposList(cmd *cobra.Command, args []string) error {
	api, err := apiClient()
	if err != nil {
		return err
	}

	repos, err := api.ListRepositories(true)
	if err != nil {
		return fmt.Errorf("failed to list repositories: %w", err)
	}

	if outputJSON {
		return printJSON(repos)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Provider", "URL", "Last Sync"})
	for _, r := range repos {
		lastSync := "never"
		if r.LastSync != nil {
			lastSync = r.LastSync.Format("2006-01-02 15:04")
		}
		table.Append([]string{
			strconv.FormatInt(r.ID, 10),
			r.Name,
			string(r.Provider),
			r.URL,
			lastSync,
		})
	}
	table.Render()
	return nil
}

func runReposAdd(cmd *cobra.Command, args []string) error {
	api, err := apiClient()
	if err != nil {
		return err
	}

	result, err := api.CreateRepository(repoName, args[0], repoProvider, repoToken)
	if err != nil {
		return fmt.Errorf("failed to add repository: %w", err)
	}

	if outputJSON {
		return printJSON(result)
	}
	fmt.Printf("Added repository %s (id %d)\n", result.Name, result.ID)
	return nil
}

func runReposRemove(cmd *cobra.Command, args []string) error {
	id, err := parseRepoID(args[0])
	if err != nil {
		return err
	}
	api, err := apiClient()
	if err != nil {
		return err
	}

	if err := api.DeleteRepository(id); err != nil {
		return fmt.Errorf("failed to remove repository: %w", err)
	}
	fmt.Printf("Deactivated repository %d\n", id)
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	id, err := parseRepoID(args[0])
	if err != nil {
		return err
	}
	api, err := apiClient()
	if err != nil {
		return err
	}

	task, err := api.StartSync(id, fullSync)
	if err != nil {
		return fmt.Errorf("failed to start sync: %w", err)
	}
	fmt.Printf("Sync started for repository %d (task %s)\n", id, task.TaskID)

	if !syncWait {
		return nil
	}

	for {
		time.Sleep(2 * time.Second)
		task, err := api.SyncStatus(id)
		if err != nil {
			return fmt.Errorf("failed to poll sync status: %w", err)
		}
		fmt.Printf("\r%3d%% %s", task.Progress, task.Message)
		if task.Status == "completed" || task.Status == "error" {
			fmt.Println()
			if task.Status == "error" {
				return fmt.Errorf("sync failed: %s", task.Message)
			}
			return nil
		}
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	id, err := parseRepoID(args[0])
	if err != nil {
		return err
	}
	api, err := apiClient()
	if err != nil {
		return err
	}

	task, err := api.SyncStatus(id)
	if err != nil {
		return fmt.Errorf("failed to get sync status: %w", err)
	}

	if outputJSON {
		return printJSON(task)
	}
	fmt.Printf("Status: %s\n", task.Status)
	if task.Message != "" {
		fmt.Printf("Message: %s\n", task.Message)
	}
	fmt.Printf("Progress: %d%%\n", task.Progress)
	return nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	id, err := parseRepoID(args[0])
	if err != nil {
		return err
	}
	api, err := apiClient()
	if err != nil {
		return err
	}

	summary, err := api.GetSummary(id)
	if err != nil {
		return fmt.Errorf("failed to get summary: %w", err)
	}

	if outputJSON {
		return printJSON(summary)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Commits", strconv.Itoa(summary.TotalCommits)})
	table.Append([]string{"Contributors", strconv.Itoa(summary.TotalContributors)})
	table.Append([]string{"Lines Added", strconv.Itoa(summary.TotalLinesAdded)})
	table.Append([]string{"Lines Deleted", strconv.Itoa(summary.TotalLinesDeleted)})
	table.Append([]string{"Lines Changed", strconv.Itoa(summary.TotalLinesChanged)})
	if summary.FirstCommit != nil {
		table.Append([]string{"First Commit", summary.FirstCommit.Format("2006-01-02")})
	}
	if summary.LastCommit != nil {
		table.Append([]string{"Last Commit", summary.LastCommit.Format("2006-01-02")})
	}
	table.Render()
	return nil
}

func runChurn(cmd *cobra.Command, args []string) error {
	id, err := parseRepoID(args[0])
	if err != nil {
		return err
	}
	api, err := apiClient()
	if err != nil {
		return err
	}

	report, err := api.GetChurn(id, churnDays)
	if err != nil {
		return fmt.Errorf("failed to get churn: %w", err)
	}

	if outputJSON {
		return printJSON(report)
	}

	fmt.Printf("\nCode churn over the last %d days (total %d lines)\n\n", report.PeriodDays, report.TotalChurn)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"File", "Churn", "Changes", "Contributors"})
	for _, f := range report.FileChurn {
		table.Append([]string{
			f.FilePath,
			strconv.Itoa(f.Churn),
			strconv.Itoa(f.ChangeFrequency),
			strconv.Itoa(f.Contributors),
		})
	}
	table.Render()

	table = tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Developer", "Churn", "Added", "Deleted", "Commits"})
	for _, d := range report.DeveloperChurn {
		table.Append([]string{
			d.AuthorEmail,
			strconv.Itoa(d.Churn),
			strconv.Itoa(d.Added),
			strconv.Itoa(d.Deleted),
			strconv.Itoa(d.Commits),
		})
	}
	table.Render()
	return nil
}

func runVelocity(cmd *cobra.Command, args []string) error {
	id, err := parseRepoID(args[0])
	if err != nil {
		return err
	}
	api, err := apiClient()
	if err != nil {
		return err
	}

	report, err := api.GetVelocity(id, weeks)
	if err != nil {
		return fmt.Errorf("failed to get velocity: %w", err)
	}

	if outputJSON {
		return printJSON(report)
	}

	fmt.Printf("\nVelocity over %d weeks (trend %+.2f%%)\n\n", report.WeeksAnalyzed, report.CommitTrendPercentage)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Week", "Commits", "Added", "Deleted", "Contributors"})
	for _, w := range report.WeeklyMetrics {
		table.Append([]string{
			w.Week,
			strconv.Itoa(w.Commits),
			strconv.Itoa(w.LinesAdded),
			strconv.Itoa(w.LinesDeleted),
			strconv.Itoa(w.ActiveContributors),
		})
	}
	table.Render()
	return nil
}

func runBusFactor(cmd *cobra.Command, args []string) error {
	id, err := parseRepoID(args[0])
	if err != nil {
		return err
	}
	api, err := apiClient()
	if err != nil {
		return err
	}

	report, err := api.GetBusFactor(id)
	if err != nil {
		return fmt.Errorf("failed to get bus factor: %w", err)
	}

	if outputJSON {
		return printJSON(report)
	}

	fmt.Printf("\nBus factor: %d\n", report.BusFactor)
	fmt.Printf("Files with a single owner: %d of %d (%.2f%%)\n\n",
		report.FilesWithSingleOwner, report.TotalFiles, report.SingleOwnerPercentage)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"File", "Primary Owner", "Ownership %", "Changes"})
	for _, f := range report.HighRiskFiles {
		table.Append([]string{
			f.FilePath,
			f.PrimaryOwner,
			fmt.Sprintf("%.2f", f.OwnershipPercentage),
			strconv.Itoa(f.TotalChanges),
		})
	}
	table.Render()
	return nil
}

func runContributors(cmd *cobra.Command, args []string) error {
	id, err := parseRepoID(args[0])
	if err != nil {
		return err
	}
	api, err := apiClient()
	if err != nil {
		return err
	}

	contributors, err := api.GetContributors(id)
	if err != nil {
		return fmt.Errorf("failed to get contributors: %w", err)
	}
	if limit > 0 && len(contributors) > limit {
		contributors = contributors[:limit]
	}

	if outputJSON {
		return printJSON(contributors)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Email", "Commits", "Added", "Deleted", "Files"})
	for _, c := range contributors {
		table.Append([]string{
			c.AuthorName,
			c.AuthorEmail,
			strconv.Itoa(c.TotalCommits),
			strconv.Itoa(c.TotalLinesAdded),
			strconv.Itoa(c.TotalLinesDeleted),
			strconv.Itoa(c.FilesTouched),
		})
	}
	table.Render()
	return nil
}

func runOverall(cmd *cobra.Command, args []string) error {
	api, err := apiClient()
	if err != nil {
		return err
	}

	summary, err := api.GetOverallSummary()
	if err != nil {
		return fmt.Errorf("failed to get overall summary: %w", err)
	}

	if outputJSON {
		return printJSON(summary)
	}

	fmt.Printf("\n%d repositories, %d commits, %d contributors\n\n",
		summary.Overall.TotalRepositories, summary.Overall.TotalCommits, summary.Overall.TotalContributors)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Provider", "Commits", "Contributors", "Lines Changed"})
	for _, r := range summary.Repositories {
		table.Append([]string{
			strconv.FormatInt(r.ID, 10),
			r.Name,
			string(r.Provider),
			strconv.Itoa(r.Commits),
			strconv.Itoa(r.Contributors),
			strconv.Itoa(r.LinesChanged),
		})
	}
	table.Render()
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	api, err := apiClient()
	if err != nil {
		return err
	}

	entries, err := api.GetComparison(metric)
	if err != nil {
		return fmt.Errorf("failed to get comparison: %w", err)
	}

	if outputJSON {
		return printJSON(entries)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Rank", "ID", "Name", metric})
	for i, e := range entries {
		table.Append([]string{
			strconv.Itoa(i + 1),
			strconv.FormatInt(e.ID, 10),
			e.Name,
			strconv.Itoa(e.Value),
		})
	}
	table.Render()
	return nil
}

func runContributor(cmd *cobra.Command, args []string) error {
	api, err := apiClient()
	if err != nil {
		return err
	}

	profile, err := api.GetContributorProfile(args[0])
	if err != nil {
		return fmt.Errorf("failed to get contributor profile: %w", err)
	}

	if outputJSON {
		return printJSON(profile)
	}

	fmt.Printf("\n%s <%s>\n", profile.AuthorName, profile.AuthorEmail)
	fmt.Printf("%d commits across %d repositories\n\n", profile.TotalCommits, profile.RepositoriesCount)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Repository", "Commits", "Added", "Deleted"})
	for _, r := range profile.Repositories {
		table.Append([]string{
			r.RepoName,
			strconv.Itoa(r.TotalCommits),
			strconv.Itoa(r.TotalLinesAdded),
			strconv.Itoa(r.TotalLinesDeleted),
		})
	}
	table.Render()
	return nil
}
