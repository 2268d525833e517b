package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/claude-refine/internal/agents"
	"github.com/hochfrequenz/claude-refine/internal/batch"
	"github.com/hochfrequenz/claude-refine/internal/config"
	"github.com/hochfrequenz/claude-refine/internal/invoker"
	"github.com/hochfrequenz/claude-refine/internal/ledger"
	"github.com/hochfrequenz/claude-refine/internal/loop"
	"github.com/hochfrequenz/claude-refine/internal/notify"
	"github.com/hochfrequenz/claude-refine/internal/observer"
	"github.com/hochfrequenz/claude-refine/internal/orchestrator"
	"github.com/hochfrequenz/claude-refine/internal/prompts"
	"github.com/hochfrequenz/claude-refine/internal/updater"
	"github.com/hochfrequenz/claude-refine/tui"
	"github.com/hochfrequenz/claude-refine/web/api"
)

var (
	generateOutput string
	agentsType     string
	historyLimit   int
	servePort      int
	updateCheck    bool
)

func init() {
	generateCmd := &cobra.Command{
		Use:   "generate DESCRIPTION",
		Short: "Generate code and refine it through review/fix rounds",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "directory for the final file set (default from config)")
	rootCmd.AddCommand(generateCmd)

	improveCmd := &cobra.Command{
		Use:   "improve DESCRIPTION FILE...",
		Short: "Run review/fix rounds over existing files",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runImprove,
	}
	improveCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "directory for the final file set (default from config)")
	rootCmd.AddCommand(improveCmd)

	agentsCmd := &cobra.Command{
		Use:   "agents",
		Short: "List configured agents",
		RunE:  runAgents,
	}
	agentsCmd.Flags().StringVar(&agentsType, "type", "", "filter by type (generator, reviewer, fixer)")
	rootCmd.AddCommand(agentsCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List past executions",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of executions to show")
	rootCmd.AddCommand(historyCmd)

	showCmd := &cobra.Command{
		Use:   "show EXECUTION",
		Short: "Show the rounds of one execution",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	rootCmd.AddCommand(showCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the status API server",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)

	batchCmd := &cobra.Command{
		Use:   "batch SCHEDULE",
		Short: "Run scheduled improvement jobs from a TOML schedule",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	rootCmd.AddCommand(batchCmd)

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch the dashboard",
		RunE:  runTUI,
	}
	rootCmd.AddCommand(tuiCmd)

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update claude-refine to the latest release",
		RunE:  runUpdate,
	}
	updateCmd.Flags().BoolVar(&updateCheck, "check", false, "only check for a newer version")
	rootCmd.AddCommand(updateCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// openDirectory loads the agent roster. A missing agents.yaml disables
// the improvement subsystem rather than failing the command.
func openDirectory(cfg *config.Config) *agents.Directory {
	dir, err := agents.NewDirectory(cfg.General.AgentsConfig, agents.DirectoryOptions{
		Binary:          cfg.Agent.Binary,
		Model:           cfg.Agent.Model,
		WorkRoot:        cfg.General.WorkRoot,
		GenerateTimeout: cfg.GenerateTimeout(),
		ReviewTimeout:   cfg.ReviewTimeout(),
	})
	if err != nil {
		if errors.Is(err, agents.ErrConfigurationMissing) {
			fmt.Printf("Warning: %v (improvement unavailable)\n", err)
			return nil
		}
		fmt.Printf("Warning: agent configuration unusable: %v\n", err)
		return nil
	}
	return dir
}

func buildOrchestrator(cfg *config.Config, events loop.EventFunc) (*orchestrator.Orchestrator, *ledger.Store, *agents.Directory, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0o755); err != nil {
		return nil, nil, nil, err
	}
	store, err := ledger.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, nil, nil, err
	}

	dir := openDirectory(cfg)
	orch := orchestrator.New(store, dir, prompts.DefaultLoader("."), orchestrator.Options{
		Invoker: invoker.Options{
			Binary:   cfg.Agent.Binary,
			Model:    cfg.Agent.Model,
			WorkRoot: cfg.General.WorkRoot,
			Timeout:  cfg.GenerateTimeout(),
		},
		Loop: loop.Config{
			MaxRounds: cfg.Improve.MaxRounds,
			MaxFixes:  cfg.Improve.MaxFixes,
		},
		Events: events,
	})
	return orch, store, dir, nil
}

func printEvent(e loop.Event) {
	switch e.Step {
	case loop.StepWarning:
		fmt.Printf("  [r%d] warning: %s\n", e.Round, e.Message)
	case loop.StepAggregated, loop.StepPrioritized:
		fmt.Printf("  [r%d] %s: %d issues\n", e.Round, e.Step, e.Issues)
	default:
		fmt.Printf("  [r%d] %s %s\n", e.Round, e.Step, e.Message)
	}
}

func writeOutput(dir string, files map[string]string) error {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(files[name]), 0o644); err != nil {
			return err
		}
		fmt.Printf("  wrote %s\n", path)
	}
	return nil
}

// notifier builds the configured completion sinks
func notifier(cfg *config.Config) notify.Notifier {
	return notify.NewMultiNotifier(
		notify.NewSlackNotifier(cfg.Notify.SlackWebhook),
		notify.NewDesktopNotifier(cfg.Notify.Desktop),
	)
}

func notifyDone(cfg *config.Config, summary *orchestrator.Summary) {
	message := "execution finished"
	if summary.Outcome != "" {
		message = fmt.Sprintf("%s after %d rounds", summary.Outcome, summary.Rounds)
	}
	err := notifier(cfg).Send(notify.Notification{
		Title:       "claude-refine finished",
		Message:     message,
		Type:        notify.NotifySuccess,
		ExecutionID: summary.ExecutionID,
	})
	if err != nil {
		fmt.Printf("Warning: notification failed: %v\n", err)
	}
}

func outputDir(cfg *config.Config) string {
	if generateOutput != "" {
		return generateOutput
	}
	return cfg.General.OutputDir
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, store, _, err := buildOrchestrator(cfg, printEvent)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Generating: %s\n", args[0])
	summary, err := orch.Execute(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Execution %s finished", summary.ExecutionID)
	if summary.Outcome != "" {
		fmt.Printf(" (%s after %d rounds)", summary.Outcome, summary.Rounds)
	}
	fmt.Println()
	notifyDone(cfg, summary)

	return writeOutput(outputDir(cfg), summary.Final.Files)
}

func runImprove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	files, err := collectInputFiles(args[1:])
	if err != nil {
		return err
	}

	orch, store, _, err := buildOrchestrator(cfg, printEvent)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Improving %d files: %s\n", len(files), args[0])
	summary, err := orch.Improve(context.Background(), args[0], files)
	if err != nil {
		if errors.Is(err, agents.ErrConfigurationMissing) {
			return fmt.Errorf("improve requires an agent configuration: %w", err)
		}
		return err
	}

	fmt.Printf("Execution %s finished (%s after %d rounds)\n",
		summary.ExecutionID, summary.Outcome, summary.Rounds)
	notifyDone(cfg, summary)
	return writeOutput(outputDir(cfg), summary.Final.Files)
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir := openDirectory(cfg)
	if dir == nil {
		fmt.Printf("No agent configuration found at %s\n", cfg.General.AgentsConfig)
		fmt.Println("Copy agents.example.yaml there to enable the improvement loop.")
		return nil
	}

	roster := dir.List(agents.RoleType(agentsType))
	ids := make([]string, 0, len(roster))
	for id := range roster {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tNAME\tTYPE\tVARIANT")
	for _, id := range ids {
		a := roster[id]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, a.Name, a.Type, a.Variant)
	}
	return w.Flush()
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := ledger.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	execs, err := store.ListExecutions(historyLimit)
	if err != nil {
		return err
	}
	if len(execs) == 0 {
		fmt.Println("No executions recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tREQUEST")
	for _, e := range execs {
		req := e.Request
		if len(req) > 60 {
			req = req[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.ID, e.Status, e.CreatedAt.Format("2006-01-02 15:04"), req)
	}
	return w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := ledger.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	exec, err := store.GetExecution(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Execution: %s (%s)\n", exec.ID, exec.Status)
	fmt.Printf("Request:   %s\n", exec.Request)
	fmt.Printf("Created:   %s\n\n", exec.CreatedAt.Format("2006-01-02 15:04:05"))

	results, err := store.ListResults(exec.ID)
	if err != nil {
		return err
	}

	for _, r := range results {
		fmt.Printf("%s  status=%s  elapsed=%s\n", r.ExecutionID, r.Status, r.Output.Elapsed)

		issues, err := store.ListIssues(r.ExecutionID)
		if err != nil {
			return err
		}
		for _, issue := range issues {
			loc := issue.Location
			if loc == "" {
				loc = "-"
			}
			fmt.Printf("  [%s] %s %s: %s\n", issue.Severity, issue.Category, loc, issue.Description)
		}

		imps, err := store.ListImprovements(r.ExecutionID)
		if err != nil {
			return err
		}
		for _, imp := range imps {
			marker := " "
			if imp.Applied {
				marker = "*"
			}
			fmt.Printf("  %s fix p%d %s (%s)\n", marker, imp.Priority, imp.Description, imp.Outcome)
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := ledger.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)

	server := api.NewServer(store, addr)

	// Feed persisted rounds to SSE and websocket clients as they appear,
	// so runs from other claude-refine processes show up live.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.WatchRounds(ctx, store, 2*time.Second, server.Publish)

	fmt.Printf("Serving status API on http://%s\n", addr)
	return server.Start()
}

// runBatch runs scheduled improvement jobs. The agent roster is watched
// for changes so edits to agents.yaml apply without a restart.
func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	schedule, err := batch.LoadScheduleConfig(args[0])
	if err != nil {
		return err
	}

	sched, err := batch.NewScheduler(schedule.Jobs)
	if err != nil {
		return err
	}

	orch, store, dir, err := buildOrchestrator(cfg, printEvent)
	if err != nil {
		return err
	}
	defer store.Close()

	if dir != nil {
		watcher, err := observer.NewConfigWatcher(cfg.General.AgentsConfig, func(path string) {
			if err := dir.Reload(path); err != nil {
				fmt.Printf("Warning: agent config reload failed: %v\n", err)
				return
			}
			fmt.Println("Agent configuration reloaded")
		})
		if err != nil {
			fmt.Printf("Warning: config watcher unavailable: %v\n", err)
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			watcher.Start(ctx)
			defer watcher.Stop()
		}
	}

	fmt.Printf("Scheduler running with %d jobs\n", len(schedule.Jobs))
	for _, name := range sched.ListJobs() {
		fmt.Printf("  %s next run %s\n", name, sched.NextRun(name).Format("2006-01-02 15:04"))
	}

	sched.Start(func(job batch.JobConfig) error {
		files, err := readTargetFiles(job.Target)
		if err != nil {
			return err
		}
		fmt.Printf("Job %s: improving %d files from %s\n", job.Name, len(files), job.Target)
		summary, err := orch.ImproveWithBudget(context.Background(), job.Description, files, job.MaxRounds)
		if err != nil {
			return err
		}
		fmt.Printf("Job %s: %s after %d rounds\n", job.Name, summary.Outcome, summary.Rounds)
		return writeOutput(job.Target, summary.Final.Files)
	})
	return nil
}

// collectInputFiles reads the named files into an artifact keyed by
// cleaned relative path, so inputs from different directories keep
// distinct names. Absolute paths fall back to their base name; a
// resulting key collision is an error rather than a silent overwrite.
func collectInputFiles(paths []string) (map[string]string, error) {
	files := make(map[string]string, len(paths))
	for _, path := range paths {
		name := filepath.ToSlash(filepath.Clean(path))
		if filepath.IsAbs(path) {
			name = filepath.Base(path)
		}
		if _, ok := files[name]; ok {
			return nil, fmt.Errorf("duplicate input file name %s", name)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		files[name] = string(data)
	}
	return files, nil
}

// readTargetFiles loads a job's target directory as a flat file set
func readTargetFiles(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		files[entry.Name()] = string(data)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files in %s", dir)
	}
	return files, nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	latest, err := updater.CheckLatestVersion()
	if err != nil {
		return err
	}

	if !updater.NeedsUpdate(version, latest) {
		fmt.Printf("Already up to date (%s)\n", version)
		return nil
	}

	fmt.Printf("New version available: %s (current: %s)\n", latest, version)
	if updateCheck {
		return nil
	}

	fmt.Println("Updating...")
	if err := updater.SelfUpdate(latest); err != nil {
		return err
	}
	fmt.Printf("Updated to %s\n", latest)
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := ledger.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	p := tea.NewProgram(tui.NewModel(store), tea.WithAltScreen())

	// The live tab shows rounds as they land in the ledger
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.WatchRounds(ctx, store, 2*time.Second, func(e loop.Event) {
		p.Send(tui.EventMsg(e))
	})

	_, err = p.Run()
	return err
}
