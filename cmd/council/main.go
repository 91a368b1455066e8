// Package main provides the AI Council CLI entry point.
// The council asks several language models the same question every turn and has a
// rapporteur model synthesize their answers into a report.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"aicouncil/internal/audit"
	"aicouncil/internal/config"
	"aicouncil/internal/council"
	"aicouncil/internal/logger"
	"aicouncil/internal/services"
	"aicouncil/internal/session"
	"aicouncil/internal/shell"
	"aicouncil/internal/ui"
	"aicouncil/internal/version"
)

// interruptGrace bounds how long an interrupted turn may take to unwind.
const interruptGrace = 3 * time.Second

var settings = config.NewViper()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "council",
	Short: "AI Council - a panel of language models answering together",
	Long: `The AI Council sends each question to several advisor models at once and has a
rapporteur model synthesize their answers. Sessions are saved after every turn and can
be resumed after an interruption.`,
	SilenceUsage: true,
	RunE:         runCouncil,
}

// runCmd is the explicit form of the default behavior
var runCmd = &cobra.Command{
	Use:          "run",
	Short:        "Start or resume an interactive council session",
	SilenceUsage: true,
	RunE:         runCouncil,
}

var statusCmd = &cobra.Command{
	Use:          "status",
	Short:        "Show the saved session, if any",
	SilenceUsage: true,
	RunE:         runStatus,
}

var versionDetail bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		if versionDetail {
			fmt.Println(version.GetDetailedVersion())
			return
		}
		fmt.Println(version.GetFormattedVersion())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String(config.KeyLogLevel, "", "Set log level (debug|info|warn|error) [default: info]")
	flags.String(config.KeyLogFile, "", "Write logs to file instead of stderr")
	flags.String(config.KeyConfigDir, config.DefaultDir, "Directory holding models.toml, prompts.toml and templates.toml")
	flags.String(config.KeyStateFile, session.DefaultStateFile, "Session state file")
	flags.String(config.KeyOutputDir, session.DefaultOutputDir, "Directory for exported transcripts")
	flags.String(config.KeyLogDir, audit.DefaultDir, "Directory for per-turn audit logs")
	flags.Duration(config.KeyTimeout, council.DefaultCallTimeout, "Deadline for a single model call (0 disables it)")
	flags.Bool(config.KeyNoProgress, false, "Print progress as log lines instead of a live table")

	for _, key := range []string{
		config.KeyLogLevel, config.KeyLogFile, config.KeyConfigDir, config.KeyStateFile,
		config.KeyOutputDir, config.KeyLogDir, config.KeyTimeout, config.KeyNoProgress,
	} {
		if err := settings.BindPFlag(key, flags.Lookup(key)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", key, err)
			os.Exit(1)
		}
	}

	versionCmd.Flags().BoolVar(&versionDetail, "detail", false, "Show detailed build information")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)

	// Configure logger before any command execution
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	s := config.SettingsFrom(settings)
	if err := logger.Configure(s.LogLevel, s.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

func runCouncil(_ *cobra.Command, _ []string) error {
	s := config.SettingsFrom(settings)
	logger.Debug("Starting AI Council", "version", version.Version, "config", s.ConfigDir)

	if loaded, err := config.LoadDotEnv(".", s.ConfigDir); err != nil {
		return err
	} else if len(loaded) > 0 {
		logger.Debug("Loaded environment files", "files", loaded)
	}

	cfg, err := config.Load(s.ConfigDir)
	if err != nil {
		return fmt.Errorf("FATAL: %w", err)
	}

	router := services.NewRouter(cfg.Pricing)
	advisors := services.NewAdvisorService(router, s.Timeout)
	orchestrator := council.NewOrchestrator(advisors, audit.NewLogger(s.LogDir), cfg.Prompts.RapporteurSystemPrompt)

	loop := &shell.Loop{
		Config:       cfg,
		Store:        session.NewStore(s.StateFile, s.OutputDir),
		Orchestrator: orchestrator,
		Client:       router,
		UI:           ui.NewConsole(os.Stdin, os.Stdout),
		Progress:     newProgress(s.NoProgress),
		Validate:     router.Validate,
		Clipboard:    ui.CopyToClipboard,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx)
	}()

	select {
	case err := <-done:
		if errors.Is(err, context.Canceled) {
			interrupted(s.StateFile)
		}
		return err
	case <-ctx.Done():
		// Input reads cannot be cancelled; give a running turn a moment to unwind.
		select {
		case <-done:
		case <-time.After(interruptGrace):
		}
		interrupted(s.StateFile)
		return nil
	}
}

func interrupted(stateFile string) {
	fmt.Fprintf(os.Stderr, "\nInterrupted. The last completed turn is saved in %s; run the council again to resume.\n", stateFile)
	os.Exit(130)
}

func newProgress(noProgress bool) shell.Progress {
	if noProgress || lipgloss.ColorProfile() == termenv.Ascii {
		return ui.NewLogProgress()
	}
	return ui.NewLiveProgress(os.Stdout)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	s := config.SettingsFrom(settings)
	state, err := session.NewStore(s.StateFile, s.OutputDir).Peek()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(cmd.OutOrStdout(), "No saved session.")
			return nil
		}
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), formatStatus(state))
	return nil
}
