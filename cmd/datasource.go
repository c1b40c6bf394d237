package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rubiojr/statsgrid/pkg/config"
	"github.com/rubiojr/statsgrid/pkg/core"
	"github.com/urfave/cli/v3"
)

// DatasourceCommand creates the datasource command with subcommands
func DatasourceCommand() *cli.Command {
	return &cli.Command{
		Name:  "datasource",
		Usage: "Manage datasources",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List datasources",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "regionset",
						Usage: "Mark datasources without indicators for these regionsets",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return listDatasources(ctx, c.String("config"), c.StringSlice("regionset"))
				},
			},
			{
				Name:  "add",
				Usage: "Add a datasource",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Datasource name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "type",
						Usage:    "Provider type (" + strings.Join(core.GetGlobalRegistry().ListPrototypes(), ", ") + ")",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "user",
						Usage: "The datasource holds the user's own indicators",
					},
					&cli.StringSliceFlag{
						Name:  "set",
						Usage: "Provider config value as key=value (repeatable)",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return addDatasource(c.String("config"), c.String("name"), c.String("type"), c.Bool("user"), c.StringSlice("set"))
				},
			},
			{
				Name:  "remove",
				Usage: "Remove a datasource",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Datasource name",
						Required: true,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return removeDatasource(c.String("config"), c.String("name"))
				},
			},
		},
	}
}

// listDatasources lists all configured datasources
func listDatasources(ctx context.Context, configPath string, regionsetFlags []string) error {
	filter, err := parseRegionsets(regionsetFlags)
	if err != nil {
		return err
	}

	env, err := loadEnvironment(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer env.Close()

	infos := env.catalog.Datasources()
	if len(infos) == 0 {
		fmt.Println("No datasources configured")
		return nil
	}

	unsupported := map[string]bool{}
	if len(filter) > 0 {
		for _, name := range env.catalog.UnsupportedDatasources(ctx, filter) {
			unsupported[name] = true
		}
	}

	fmt.Println(titleStyle.Render("Configured datasources"))
	for _, info := range infos {
		line := fmt.Sprintf("%s (%s)", info.Name, info.Type)
		if title := env.catalog.Title(info.Name); title != info.Name {
			line += " " + title
		}
		if unsupported[info.Name] {
			line = disabledStyle.Render(line)
		}
		fmt.Println("  " + line)

		var details []string
		if info.User {
			details = append(details, "user")
		}
		if regionsets, err := env.catalog.Regionsets(ctx, info.Name); err == nil && len(regionsets) > 0 {
			details = append(details, "regionsets: "+formatRegionsets(regionsets))
		}
		if len(details) > 0 {
			fmt.Println("    " + metaStyle.Render(strings.Join(details, ", ")))
		}
	}

	return nil
}

// parseConfigValues turns key=value pairs into a provider config map.
// Numbers and booleans keep their type so they survive the TOML round trip.
func parseConfigValues(pairs []string) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid config value %q, expected key=value", pair)
		}
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			values[key] = i
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			values[key] = f
		} else if b, err := strconv.ParseBool(value); err == nil {
			values[key] = b
		} else {
			values[key] = value
		}
	}
	return values, nil
}

// addDatasource validates the provider config and adds it to the configuration
func addDatasource(configPath, name, dsType string, user bool, pairs []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if _, exists := cfg.Datasources[name]; exists {
		return fmt.Errorf("datasource '%s' already exists", name)
	}

	values, err := parseConfigValues(pairs)
	if err != nil {
		return err
	}

	// Build a throwaway instance to check the type and config
	registry := core.GetGlobalRegistry()
	probe := &config.Config{Datasources: map[string]config.DatasourceInfo{
		name: {Type: dsType, User: user, Config: values},
	}}
	if err := addProviderFromConfig(registry, probe, name); err != nil {
		return err
	}
	if err := registry.Close(); err != nil {
		return err
	}

	cfg.AddDatasource(name, dsType, user, values)
	if err := cfg.SaveConfig(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("Added datasource '%s' (%s)\n", name, dsType)
	return nil
}

// removeDatasource removes a datasource from the configuration
func removeDatasource(configPath, name string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if _, exists := cfg.Datasources[name]; !exists {
		return fmt.Errorf("datasource '%s' not found", name)
	}

	cfg.RemoveDatasource(name)

	if err := cfg.SaveConfig(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("Removed datasource '%s'\n", name)
	return nil
}
