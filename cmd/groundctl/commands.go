package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/groundctl/ground-control/internal/agents"
	"github.com/groundctl/ground-control/internal/config"
	"github.com/groundctl/ground-control/internal/domain"
	"github.com/groundctl/ground-control/internal/maintenance"
	"github.com/groundctl/ground-control/internal/notify"
	"github.com/groundctl/ground-control/internal/orchestrator"
	"github.com/groundctl/ground-control/internal/statestore"
	"github.com/groundctl/ground-control/internal/tickets"
	"github.com/groundctl/ground-control/internal/watcher"
	"github.com/groundctl/ground-control/web/api"
)

const version = "0.3.0"

var (
	statusRunID string
	pruneDays   int
	servePort   int

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("6")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

func init() {
	initCmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Initialize a new ground-control workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInit,
	}
	rootCmd.AddCommand(initCmd)

	runCmd := &cobra.Command{
		Use:   "run PROJECT",
		Short: "Execute an orchestration run for a project",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	rootCmd.AddCommand(runCmd)

	statusCmd := &cobra.Command{
		Use:   "status PROJECT",
		Short: "Show the status of a project's runs and tasks",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
	statusCmd.Flags().StringVarP(&statusRunID, "run-id", "r", "", "specific run ID (defaults to latest)")
	rootCmd.AddCommand(statusCmd)

	watchCmd := &cobra.Command{
		Use:   "watch PROJECT",
		Short: "Watch the project's ticket directory and run on changes",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete run history older than the retention window",
		RunE:  runPrune,
	}
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "retention in days (defaults to config)")
	rootCmd.AddCommand(pruneCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web dashboard API",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (defaults to config)")
	rootCmd.AddCommand(serveCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show Ground Control version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", titleStyle.Render("Ground Control"), version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	agentsCmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage agent definitions",
	}
	agentsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all available agent definitions",
		RunE:  runAgentsList,
	})
	rootCmd.AddCommand(agentsCmd)

	ticketsCmd := &cobra.Command{
		Use:   "tickets",
		Short: "Manage project tickets",
	}
	ticketsListCmd := &cobra.Command{
		Use:   "list PROJECT",
		Short: "List tickets for a project",
		Args:  cobra.ExactArgs(1),
		RunE:  runTicketsList,
	}
	ticketsCmd.AddCommand(ticketsListCmd)
	rootCmd.AddCommand(ticketsCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func notifierFromConfig(cfg *config.Config) notify.Notifier {
	return notify.FromSettings(cfg.Notifications.Desktop, cfg.Notifications.SlackWebhook)
}

func runInit(cmd *cobra.Command, args []string) error {
	base := "."
	if len(args) > 0 {
		base = args[0]
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return err
	}

	for _, dir := range []string{"agents", "projects", "tickets"} {
		if err := os.MkdirAll(filepath.Join(base, dir), 0755); err != nil {
			return err
		}
	}
	if err := agents.CreateDefaults(filepath.Join(base, "agents")); err != nil {
		return err
	}

	cfgPath := filepath.Join(base, "gc.toml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.Default().Write(cfgPath); err != nil {
			return err
		}
	}

	fmt.Println(panelStyle.Render(strings.Join([]string{
		okStyle.Render("Workspace initialized at: ") + base,
		"",
		dimStyle.Render("  agents/     - Agent definitions (4 defaults created)"),
		dimStyle.Render("  projects/   - Project configurations"),
		dimStyle.Render("  tickets/    - Local ticket files"),
		dimStyle.Render("  gc.toml     - Ground Control config"),
		"",
		"Next steps:",
		"  1. Create a project config in projects/",
		"  2. Add tickets to tickets/",
		"  3. Run: groundctl run <project>",
	}, "\n")))
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, err := orchestrator.FromProjectName(args[0], cfg, notifierFromConfig(cfg))
	if err != nil {
		return err
	}
	defer orch.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID, err := orch.Run(ctx)
	if runID != "" {
		fmt.Println(dimStyle.Render("Run ID: " + runID))
		fmt.Println(dimStyle.Render(fmt.Sprintf("View details with: groundctl status %s", args[0])))
	}
	return err
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := statestore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runID := statusRunID
	if runID == "" {
		runs, err := store.ListRuns(args[0], 1)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Printf("No runs found for project %q\n", args[0])
			return nil
		}
		runID = runs[0].ID
	}

	summary, err := store.RunSummary(runID)
	if err != nil {
		return err
	}

	fmt.Println(panelStyle.Render(strings.Join([]string{
		titleStyle.Render("Run Status"),
		"Run:     " + summary.Run.ID,
		"Project: " + summary.Run.ProjectName,
		"Status:  " + statusStyled(string(summary.Run.Status)),
		"Created: " + summary.Run.CreatedAt.Format("2006-01-02 15:04:05"),
		fmt.Sprintf("Tasks:   %d", summary.TotalTasks),
	}, "\n")))

	if len(summary.StatusCounts) > 0 {
		statuses := make([]string, 0, len(summary.StatusCounts))
		for s := range summary.StatusCounts {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STATUS\tCOUNT")
		for _, s := range statuses {
			fmt.Fprintf(w, "%s\t%d\n", s, summary.StatusCounts[domain.TaskStatus(s)])
		}
		w.Flush()
		fmt.Println()
	}

	if len(summary.Tasks) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tAGENT\tSTATUS")
		for _, t := range summary.Tasks {
			agent := t.AssignedAgent
			if agent == "" {
				agent = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Title, agent, t.Status)
		}
		w.Flush()
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	project := args[0]

	projectPath, err := config.FindProject(project, cfg.General.ProjectsDir)
	if err != nil {
		return err
	}
	projectCfg, err := config.LoadProject(projectPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runs := make(chan struct{}, 1)
	tw, err := watcher.New(func(dir string, files []string) {
		slog.Info("ticket changes detected", "dir", dir, "files", len(files))
		select {
		case runs <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer tw.Stop()

	if err := tw.AddDir(projectCfg.TicketSource.Path); err != nil {
		return err
	}
	tw.Start(ctx)

	fmt.Printf("Watching %s for ticket changes (ctrl-c to stop)\n", projectCfg.TicketSource.Path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-runs:
			orch, err := orchestrator.FromProjectName(project, cfg, notifierFromConfig(cfg))
			if err != nil {
				slog.Error("starting run failed", "error", err)
				continue
			}
			runID, err := orch.Run(ctx)
			orch.Close()
			if err != nil {
				fmt.Println(errStyle.Render("Run " + runID + " failed: " + err.Error()))
				continue
			}
			fmt.Println(okStyle.Render("Run " + runID + " finished"))
		}
	}
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	days := pruneDays
	if days == 0 {
		days = cfg.Maintenance.RetentionDays
	}

	store, err := statestore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := maintenance.NewPruner(store, days).PruneOnce()
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d runs older than %d days\n", deleted, days)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := statestore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}

	pruner := maintenance.NewPruner(store, cfg.Maintenance.RetentionDays)
	if cfg.Maintenance.PruneSchedule != "" {
		if err := pruner.Schedule(cfg.Maintenance.PruneSchedule); err != nil {
			return err
		}
		defer pruner.Stop()
	}

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)

	server := api.NewServer(store, addr)
	fmt.Printf("Serving dashboard API at http://%s\n", addr)
	return server.Start()
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr := agents.NewManager(cfg.General.AgentsDir)
	list, err := mgr.List()
	if err != nil {
		return fmt.Errorf("agents directory not found, run 'groundctl init' first: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No agents found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tROLE\tLLM\tIMPLEMENTER\tCAPABILITIES")
	for _, a := range list {
		provider := a.LLMProvider
		if a.LLMModel != "" {
			provider += " (" + a.LLMModel + ")"
		}
		impl := a.Implementer
		if impl == "" {
			impl = "-"
		}
		caps := "-"
		if len(a.Capabilities) > 0 {
			caps = strings.Join(a.Capabilities, ", ")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.Name, a.Role, provider, impl, caps)
	}
	return w.Flush()
}

func runTicketsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	projectPath, err := config.FindProject(args[0], cfg.General.ProjectsDir)
	if err != nil {
		return err
	}
	projectCfg, err := config.LoadProject(projectPath)
	if err != nil {
		return err
	}

	source, err := tickets.NewSource(projectCfg.TicketSource.Type, projectCfg.TicketSource.Path)
	if err != nil {
		return err
	}

	ts, err := source.LoadTickets(cmd.Context())
	if err != nil {
		return err
	}
	if len(ts) == 0 {
		fmt.Printf("No tickets found for project %q\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPRIORITY\tSTATUS\tLABELS")
	for _, t := range ts {
		labels := "-"
		if len(t.Labels) > 0 {
			labels = strings.Join(t.Labels, ", ")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Priority, t.Status, labels)
	}
	return w.Flush()
}

func statusStyled(status string) string {
	switch status {
	case "completed":
		return okStyle.Render(status)
	case "failed":
		return errStyle.Render(status)
	case "pending":
		return dimStyle.Render(status)
	default:
		return status
	}
}
