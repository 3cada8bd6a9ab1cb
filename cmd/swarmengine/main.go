package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/corpcraft/swarmengine/pkg/config"
	"github.com/corpcraft/swarmengine/pkg/engine"
	"github.com/corpcraft/swarmengine/pkg/log"
	"github.com/corpcraft/swarmengine/pkg/storage"
	"github.com/corpcraft/swarmengine/pkg/swarm"
	"github.com/corpcraft/swarmengine/pkg/types"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "swarmengine",
	Short:   "SwarmEngine - event-driven multi-agent task coordination core",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("swarmengine version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory for the bbolt data file; empty uses an in-memory store")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(intentCmd)
	rootCmd.AddCommand(executionModeCmd)
	rootCmd.AddCommand(skillCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func newStore(cmd *cobra.Command) (storage.Store, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		return storage.NewMemStore(), nil
	}
	return storage.NewBoltStore(dataDir)
}

func newEngine(cmd *cobra.Command) (*engine.Engine, error) {
	store, err := newStore(cmd)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	cfg := config.Load()
	mode := swarm.ModeMock
	if cfg.ExecutionMode != "" {
		if parsed, ok := swarm.ParseExecutionMode(cfg.ExecutionMode); ok {
			mode = parsed
		}
	}
	swarm.SetExecutionMode(mode)

	e := engine.New(engine.Config{
		Store: store,
		InitialHUD: types.HUDState{
			HP: types.Resource{Current: 100, Max: 100},
			MP: types.Resource{Current: 10000, Max: 10000},
			AP: types.Resource{Current: 0, Max: 10},
		},
	})
	return e, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		e.Start()
		defer e.Shutdown()

		cfg := config.Load()
		log.Logger.Info().Str("work_dir", cfg.WorkDir).Str("mode", e.GetExecutionMode().String()).Msg("swarmengine running")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Logger.Info().Msg("shutting down")
		return nil
	},
}

var intentCmd = &cobra.Command{
	Use:   "intent",
	Short: "Submit and inspect task intents",
}

var intentSubmitCmd = &cobra.Command{
	Use:   "submit [intent text]",
	Short: "Route a free-form intent into the pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Shutdown()

		event, err := e.PostIntent(args[0], swarm.RouteOptions{})
		if err != nil {
			return fmt.Errorf("posting intent: %w", err)
		}
		fmt.Printf("posted event_id=%s tags=%v\n", event.EventID, event.RequiredTags)
		return nil
	},
}

func init() {
	intentCmd.AddCommand(intentSubmitCmd)
}

var executionModeCmd = &cobra.Command{
	Use:   "execution-mode",
	Short: "Inspect or change the process-wide execution mode",
}

var executionModeGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current execution mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(swarm.GetExecutionMode().String())
		return nil
	},
}

var executionModeSetCmd = &cobra.Command{
	Use:   "set [mock|claude|team]",
	Short: "Set the execution mode for this process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, ok := swarm.ParseExecutionMode(args[0])
		if !ok {
			return fmt.Errorf("unknown execution mode %q", args[0])
		}
		swarm.SetExecutionMode(mode)
		fmt.Printf("execution mode set to %s\n", mode)
		return nil
	},
}

func init() {
	executionModeCmd.AddCommand(executionModeGetCmd)
	executionModeCmd.AddCommand(executionModeSetCmd)
}

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Manage the skill registry",
}

var skillInstallCmd = &cobra.Command{
	Use:   "install [manifest path]",
	Short: "Parse a skill manifest and run it through the security gate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading manifest: %w", err)
		}

		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Shutdown()

		result, err := e.InstallSkill(filepath.Dir(args[0]), content)
		if err != nil {
			return fmt.Errorf("installing skill: %w", err)
		}
		fmt.Printf("skill_id=%s decision=%s reason=%s\n", result.Manifest.SkillID, result.Decision, result.Reason)
		return nil
	},
}

func init() {
	skillCmd.AddCommand(skillInstallCmd)
}
