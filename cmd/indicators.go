package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rubiojr/statsgrid/pkg/search"
	"github.com/urfave/cli/v3"
)

// IndicatorsCommand creates the indicators command
func IndicatorsCommand() *cli.Command {
	return &cli.Command{
		Name:  "indicators",
		Usage: "List the indicators of a datasource",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "datasource",
				Usage:    "Datasource name",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "regionset",
				Usage: "Only enable indicators supporting these regionsets",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Also show indicators disabled by the regionset filter",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return listIndicators(ctx, c.String("config"), c.String("lang"), c.String("datasource"), c.StringSlice("regionset"), c.Bool("all"))
		},
	}
}

// listIndicators prints the indicator options the search form would offer
func listIndicators(ctx context.Context, configPath, lang, datasource string, regionsetFlags []string, all bool) error {
	filter, err := parseRegionsets(regionsetFlags)
	if err != nil {
		return err
	}

	env, err := loadEnvironment(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer env.Close()
	printer := search.NewPrinter(pickLanguage(lang, env.cfg))

	b := search.NewBuilder(env.catalog)
	if err := b.SetDatasource(ctx, datasource); err != nil {
		if errors.Is(err, search.ErrIndicatorListEmpty) {
			fmt.Println(warningStyle.Render(search.Describe(printer, err)))
			return nil
		}
		return err
	}
	if len(filter) > 0 {
		b.SetRegionsetFilter(ctx, filter)
		if b.State().Datasource == "" {
			fmt.Printf("Datasource '%s' has no indicators for regionsets %s\n", datasource, formatRegionsets(filter))
			return nil
		}
	}

	options := b.IndicatorOptions()
	if len(options) == 0 {
		fmt.Printf("No indicators in datasource '%s'\n", datasource)
		return nil
	}

	fmt.Println(titleStyle.Render(env.catalog.Title(datasource)))
	shown := 0
	for _, opt := range options {
		if opt.Disabled && !all {
			continue
		}
		line := fmt.Sprintf("%-8s %s", opt.ID, opt.Title)
		if opt.Disabled {
			line = disabledStyle.Render(line)
		}
		fmt.Println("  " + line)
		if len(opt.Regionsets) > 0 {
			fmt.Println("           " + metaStyle.Render("regionsets: "+formatRegionsets(opt.Regionsets)))
		}
		shown++
	}
	if hidden := len(options) - shown; hidden > 0 {
		fmt.Println(metaStyle.Render(fmt.Sprintf("%d indicators hidden by the regionset filter (use --all)", hidden)))
	}
	return nil
}
