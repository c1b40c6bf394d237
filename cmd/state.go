package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/rubiojr/statsgrid/pkg/config"
	"github.com/rubiojr/statsgrid/pkg/storage"
	"github.com/urfave/cli/v3"
)

// StateCommand creates the state command with subcommands
func StateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Inspect and edit the committed indicators",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List committed indicators, marking the active one",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withStore(ctx, c.String("config"), listState)
				},
			},
			{
				Name:  "active",
				Usage: "Show the active indicator",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withStore(ctx, c.String("config"), showActive)
				},
			},
			{
				Name:  "remove",
				Usage: "Remove a committed indicator",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "hash",
						Usage:    "Indicator hash",
						Required: true,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					hash := c.String("hash")
					return withStore(ctx, c.String("config"), func(ctx context.Context, store *storage.Store) error {
						removed, err := store.RemoveIndicator(ctx, hash)
						if err != nil {
							return err
						}
						if !removed {
							return fmt.Errorf("indicator '%s' not found", hash)
						}
						fmt.Printf("Removed indicator '%s'\n", hash)
						return nil
					})
				},
			},
			{
				Name:  "clear",
				Usage: "Remove every committed indicator",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withStore(ctx, c.String("config"), func(ctx context.Context, store *storage.Store) error {
						if err := store.Clear(ctx); err != nil {
							return err
						}
						fmt.Println("Indicator state cleared")
						return nil
					})
				},
			},
			{
				Name:  "history",
				Usage: "Show recent searches",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of searches to show",
						Value: 20,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					limit := int(c.Int("limit"))
					return withStore(ctx, c.String("config"), func(ctx context.Context, store *storage.Store) error {
						return showHistory(ctx, store, limit)
					})
				},
			},
		},
	}
}

// withStore opens the indicator state without creating any provider.
func withStore(ctx context.Context, configPath string, fn func(context.Context, *storage.Store) error) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Printf("Warning: failed to close store: %v\n", err)
		}
	}()
	return fn(ctx, store)
}

func listState(ctx context.Context, store *storage.Store) error {
	indicators, err := store.ListIndicators(ctx)
	if err != nil {
		return err
	}
	if len(indicators) == 0 {
		fmt.Println("No indicators committed")
		return nil
	}
	active, err := store.ActiveIndicator(ctx)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%d indicators", len(indicators))))
	for _, ind := range indicators {
		printIndicator(ind, ind.Hash == active)
	}
	return nil
}

func showActive(ctx context.Context, store *storage.Store) error {
	active, err := store.ActiveIndicator(ctx)
	if err != nil {
		return err
	}
	if active == "" {
		fmt.Println("No active indicator")
		return nil
	}
	ind, err := store.GetIndicator(ctx, active)
	if err != nil {
		return err
	}
	if ind == nil {
		fmt.Println(active)
		return nil
	}
	printIndicator(*ind, true)
	return nil
}

func showHistory(ctx context.Context, store *storage.Store, limit int) error {
	records, err := store.ListSearches(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No searches recorded")
		return nil
	}

	for _, rec := range records {
		fmt.Printf("%s %s/%s\n", headerStyle.Render(formatTime(rec.FinishedAt)), rec.Datasource, strings.Join(rec.Indicators, ","))
		fmt.Printf("    %s\n", metaStyle.Render(fmt.Sprintf("%d probes, %d successful, %d added", rec.Probes, rec.Successful, rec.Added)))
		if rec.Active != "" {
			fmt.Printf("    active: %s\n", rec.Active)
		}
		for _, e := range rec.Errors {
			fmt.Println(errorStyle.Render("    " + e))
		}
	}
	return nil
}
