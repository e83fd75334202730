package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quitguard/internal/api"
	"quitguard/internal/config"
	"quitguard/internal/decisions"
	"quitguard/internal/engine"
	"quitguard/internal/ingest"
	"quitguard/internal/logging"
	"quitguard/internal/model"
	"quitguard/internal/publish"
	"quitguard/internal/stats"
	"quitguard/internal/storage"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "quitguard",
		Short: "Classify multiplayer disconnects as rage quits or genuine network failures",
		Long: `quitguard decides, at the moment a match ends in a disconnect, whether
the departing player should be charged a loss. Explicit quits always
count as a loss; genuine network failures never do.`,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serveCmd runs the classification service.
func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the disconnect classification service",
		Long: `Run the HTTP API and the configured async ingest sources.

Examples:
  # Serve with a config file
  quitguard serve --config=quitguard.yaml

  # Generate a starting config first
  quitguard init --output=quitguard.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "quitguard.yaml", "path to the YAML or JSON config file")
	return cmd
}

func runServe(configPath string) error {
	mgr, err := config.NewManager(config.ResolvePath(configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("quitguard starting", "version", version, "config", mgr.Path())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statsStore := stats.NewStore()
	decisionStore := decisions.NewStore(cfg.Decisions.StoreLimit)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open audit storage: %w", err)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("init audit storage: %w", err)
		}
		defer store.Close()
		logger.Info("audit storage enabled", "driver", cfg.Storage.Driver)
	}

	var pub engine.Publisher
	if p := publish.NewPublisher(cfg.Publish, logger); p != nil {
		defer p.Close()
		pub = p
	}

	eng := engine.NewEngine(cfg, logger, statsStore, decisionStore, store, pub)

	events := make(chan model.DisconnectEvent, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, events)
	ingest.StartKafka(ctx, mgr, events, logger)
	ingest.StartTCP(ctx, mgr, events, logger)
	ingest.StartReplay(ctx, mgr, events, logger)
	httpServer := api.Start(ctx, mgr, statsStore, decisionStore, eng, logger, version)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mgr.Watch(gctx, 3*time.Second, func(next *config.Config) {
			eng.UpdateConfig(next)
			logger.Info("config reloaded", "path", mgr.Path())
		}, func(err error) {
			logger.Warn("config reload failed", "err", err)
		})
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
	return nil
}

// classifyCmd runs one classification offline, without the service.
func classifyCmd() *cobra.Command {
	var inputPath string
	var pretty bool

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a single disconnect event from a JSON document",
		Long: `Read one disconnect signal document and print the classification.

Examples:
  # From a file
  quitguard classify --input=event.json

  # From stdin
  echo '{"quitAction": true}' | quitguard classify --pretty`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(inputPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			ev, err := ingest.DecodeEvent(data, "cli")
			if err != nil {
				return err
			}
			result, err := engine.Classify(ev.Signals)
			if err != nil {
				var verr *engine.ValidationError
				if errors.As(err, &verr) {
					for _, v := range verr.Violations {
						fmt.Fprintln(cmd.ErrOrStderr(), "violation:", v)
					}
				}
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "", "path to the event JSON (default: stdin)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the output")
	return cmd
}

// initCmd writes a default config file to edit from.
func initCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(output); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", output)
			}
			if err := config.Save(output, config.DefaultConfig()); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "quitguard.yaml", "where to write the config")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "quitguard", version)
		},
	}
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
