package main

import (
	"context"
	"log"
	"os"

	"github.com/rubiojr/statsgrid/cmd"
	"github.com/rubiojr/statsgrid/pkg/config"
	sglog "github.com/rubiojr/statsgrid/pkg/log"
	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:  "statsgrid",
		Usage: "Search regional statistics indicators across datasources",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
				Value: false,
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Configuration file path",
				Value: getDefaultConfigPathOrExit(),
			},
			&cli.StringFlag{
				Name:  "lang",
				Usage: "Message language (en, fi); defaults to the configured one",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			sglog.SetGlobalDebug(c.Bool("debug"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmd.InitCommand(),
			cmd.DatasourceCommand(),
			cmd.IndicatorsCommand(),
			cmd.MetadataCommand(),
			cmd.SearchCommand(),
			cmd.StateCommand(),
			cmd.ServeCommand(),
			cmd.MigrateCommand(),
			cmd.VersionCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func getDefaultConfigPathOrExit() string {
	path, err := config.GetDefaultConfigPath()
	if err != nil {
		log.Fatalf("Failed to get default config path: %v", err)
	}
	return path
}
