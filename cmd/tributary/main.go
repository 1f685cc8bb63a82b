package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tributary-data/tributary/internal/config"
	"github.com/tributary-data/tributary/internal/dashboard"
	"github.com/tributary-data/tributary/internal/etl"
	"github.com/tributary-data/tributary/internal/loader"
)

var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "tributary",
		Short: "batch data-integration pipeline: merge API, scraped and file sources into one store",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (optional; env vars suffice)")

	// ----- run command -----
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one full Extract -> Transform -> Load cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := log.New(os.Stderr, "", log.LstdFlags)

			runner, err := etl.NewRunner(cfg, logger)
			if err != nil {
				return err
			}
			summary := runner.Run(signalContext())
			if summary.Status == etl.StateFailed {
				// Summary is already logged; the orchestrator reads the exit code.
				return fmt.Errorf("run %s failed: %w", summary.RunID, summary.Err)
			}
			return nil
		},
	}

	// ----- init-db command -----
	initCmd := &cobra.Command{
		Use:   "init-db",
		Short: "Initialize the destination store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			l := loader.New(cfg, log.Default())
			if err := l.InitSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("Table %q is ready in %s.\n", cfg.Store.Table, cfg.Store.Path)
			return nil
		},
	}

	// ----- dashboard command -----
	dashCmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the read-only dashboard over the destination store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			srv := dashboard.New(cfg, log.New(os.Stderr, "", log.LstdFlags))
			return srv.Serve(signalContext())
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("tributary", version)
		},
	}

	rootCmd.AddCommand(runCmd, initCmd, dashCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("tributary error: %v", err)
	}
}

// signalContext cancels on SIGINT/SIGTERM so a stuck run dies cleanly
// instead of hanging the orchestrator.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}
