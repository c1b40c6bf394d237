package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MetadataCommand creates the metadata command
func MetadataCommand() *cli.Command {
	return &cli.Command{
		Name:  "metadata",
		Usage: "Show the selectors and regionsets of an indicator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "datasource",
				Usage:    "Datasource name",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "indicator",
				Usage:    "Indicator id",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the raw metadata as JSON",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return showMetadata(ctx, c.String("config"), c.String("datasource"), c.String("indicator"), c.Bool("json"))
		},
	}
}

func showMetadata(ctx context.Context, configPath, datasource, indicator string, asJSON bool) error {
	env, err := loadEnvironment(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer env.Close()

	if _, ok := env.catalog.Datasource(datasource); !ok {
		return fmt.Errorf("datasource '%s' not found", datasource)
	}
	md, err := env.catalog.IndicatorMetadata(ctx, datasource, indicator)
	if err != nil {
		return fmt.Errorf("fetching metadata: %w", err)
	}
	if md == nil {
		return fmt.Errorf("indicator '%s' not found in '%s'", indicator, datasource)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(md)
	}

	fmt.Println(titleStyle.Render(md.DisplayName()))
	if md.Description != "" {
		fmt.Println(md.Description)
	}
	if md.Source != "" {
		fmt.Println(metaStyle.Render("Source: " + md.Source))
	}
	fmt.Printf("%s %s\n", headerStyle.Render("Regionsets:"), formatRegionsets(md.Regionsets))

	caser := cases.Title(language.English)
	for _, sel := range md.Selectors {
		name := caser.String(sel.ID)
		if sel.Time {
			name += " (time)"
		}
		values := make([]string, len(sel.AllowedValues))
		for i, v := range sel.AllowedValues {
			if v.Name != "" && v.Name != v.ID.String() {
				values[i] = fmt.Sprintf("%s (%s)", v.ID, v.Name)
			} else {
				values[i] = v.ID.String()
			}
		}
		fmt.Printf("%s %s\n", headerStyle.Render(name+":"), strings.Join(values, ", "))
	}
	return nil
}
