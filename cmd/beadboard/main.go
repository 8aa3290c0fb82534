package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"beadboard/internal/bd"
	"beadboard/internal/config"
	"beadboard/internal/hub"
	"beadboard/internal/logger"
	"beadboard/internal/project"
	"beadboard/internal/seen"
	"beadboard/web"
)

func main() {
	var configPath string
	var portFlag int
	var logLevel string

	root := &cobra.Command{
		Use:   "beadboard",
		Short: "web server for beads projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if portFlag != 0 {
				cfg.Server.Port = portFlag
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			srv := hub.NewServer(
				project.NewResolver(cfg.Projects.SearchPaths),
				bd.New(cfg.Bd.Executable),
				seen.NewStore(),
				web.FS,
			)
			defer srv.Close()

			httpSrv := &http.Server{
				Addr:    cfg.Addr(),
				Handler: srv,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("beadboard listening", "addr", cfg.Addr())
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
				return httpSrv.Close()
			case err := <-errCh:
				return err
			}
		},
	}

	root.Flags().StringVar(&configPath, "config", defaultConfigPath(), "config file path")
	root.Flags().IntVar(&portFlag, "port", 0, "listen port (overrides config and BEADBOARD_PORT)")
	root.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "beadboard.yaml"
	}
	return filepath.Join(home, ".beadboard", "config.yaml")
}
