package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rubiojr/statsgrid/pkg/core"
	"github.com/rubiojr/statsgrid/pkg/search"
	"github.com/urfave/cli/v3"
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search indicator data and commit the results to the indicator state",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "datasource",
				Usage:    "Datasource to search",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:     "indicator",
				Usage:    "Indicator id (repeatable)",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "select",
				Usage: "Selector value as key=value, or key=v1,v2 to search several values",
			},
			&cli.IntFlag{
				Name:  "regionset",
				Usage: "Regionset id (defaults to the first supported one)",
			},
			&cli.BoolFlag{
				Name:  "series",
				Usage: "Search the time selector as a series; --select year=lo,hi sets the range",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the full result as JSON",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			selections, err := parseSelections(c.StringSlice("select"))
			if err != nil {
				return err
			}
			form := search.Form{
				Datasource: c.String("datasource"),
				Indicators: c.StringSlice("indicator"),
				Selections: selections,
				Regionset:  int(c.Int("regionset")),
				Series:     c.Bool("series"),
			}
			return runSearch(ctx, c.String("config"), c.String("lang"), form, c.Bool("json"))
		},
	}
}

// parseSelections parses key=value flags. A value without a key continues
// the previous key, so both "year=2019,2020" and the comma split form
// "year=2019" "2020" select two years.
func parseSelections(flags []string) (core.Selections, error) {
	raw := map[string][]core.Value{}
	var order []string
	last := ""
	for _, flag := range flags {
		for _, token := range strings.Split(flag, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			key, value, ok := strings.Cut(token, "=")
			if !ok {
				if last == "" {
					return nil, fmt.Errorf("invalid selection %q, expected key=value", token)
				}
				raw[last] = append(raw[last], core.Value(token))
				continue
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return nil, fmt.Errorf("invalid selection %q, expected key=value", token)
			}
			if _, seen := raw[key]; !seen {
				order = append(order, key)
			}
			raw[key] = append(raw[key], core.Value(strings.TrimSpace(value)))
			last = key
		}
	}

	selections := core.Selections{}
	for _, key := range order {
		values := raw[key]
		if len(values) == 1 {
			selections[key] = core.Scalar(values[0])
		} else {
			selections[key] = core.Multi(values...)
		}
	}
	return selections, nil
}

func runSearch(ctx context.Context, configPath, lang string, form search.Form, asJSON bool) error {
	env, err := loadEnvironment(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer env.Close()
	printer := search.NewPrinter(pickLanguage(lang, env.cfg))

	values, err := search.BuildRequest(ctx, env.catalog, form)
	if err != nil {
		return errors.New(search.Describe(printer, err))
	}

	service := search.NewService(env.catalog, env.store, search.WithLanguage(pickLanguage(lang, env.cfg)))
	result, err := service.Run(ctx, values)
	if err != nil {
		return errors.New(search.Describe(printer, err))
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printResult(env.catalog.Title(values.Datasource), result)
	return nil
}

func printResult(title string, result *search.Result) {
	fmt.Println(titleStyle.Render(title))

	if len(result.Searches) > 0 {
		fmt.Println(headerStyle.Render(fmt.Sprintf("%d successful searches", len(result.Searches))))
		for _, s := range result.Searches {
			name := s.IndicatorName
			if name == "" {
				name = s.Indicator
			}
			details := formatSelections(s.Selections)
			if series := formatSeries(s.Series); series != "" {
				details += "  " + series
			}
			fmt.Printf("  %s %s\n", name, metaStyle.Render(details))
		}
	}

	if result.Notification != nil {
		lines := append([]string{result.Notification.Title}, result.Notification.Lines...)
		fmt.Println(warningStyle.Render(strings.Join(lines, "\n")))
	}

	for _, e := range result.Errors {
		fmt.Println(errorStyle.Render("  " + e.Error()))
	}

	fmt.Printf("%d probes, %d new indicators\n", result.Probes, len(result.Added))
	if result.Active != "" {
		fmt.Println("Active: " + activeStyle.Render(result.Active))
	}
}
