package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"mktsummary/internal/app"
	"mktsummary/internal/infrastructure"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Accept batches over HTTP and stream their progress over a websocket",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = infrastructure.CloseLogFile() }()
			if cmd.IsSet("port") {
				cfg.Server.Port = int(cmd.Int("port"))
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			application, err := app.NewApplication(ctx, cfg, infrastructure.GetLogger())
			if err != nil {
				return err
			}
			return application.Run(ctx)
		},
	}
}
