// Command mktsummary downloads daily market summary archives and converts
// them to workbooks, either once from the command line or as an HTTP service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"mktsummary/internal/config"
	"mktsummary/internal/infrastructure"
	"mktsummary/pkg/contracts"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mktsummary:", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    config.AppName,
		Usage:   "Download daily market summaries and convert them to workbooks",
		Version: contracts.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a YAML config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			downloadCommand(),
			serveCommand(),
			versionCommand(),
		},
	}
}

// loadConfig resolves configuration for a command and initializes logging.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if path := cmd.String("config"); path != "" {
		if err := os.Setenv(config.EnvPrefix+"_CONFIG_FILE", path); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if _, err := infrastructure.InitializeLogger(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprintln(cmd.Root().Writer, contracts.GetFullVersionString())
			return err
		},
	}
}
