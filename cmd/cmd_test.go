package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rubiojr/statsgrid/pkg/catalog"
	"github.com/rubiojr/statsgrid/pkg/config"
	"github.com/rubiojr/statsgrid/pkg/core"
	_ "github.com/rubiojr/statsgrid/pkg/datasources/file"
	_ "github.com/rubiojr/statsgrid/pkg/datasources/rest"
	"github.com/rubiojr/statsgrid/pkg/search"
)

const catalogTemplate = `
name = "Sample statistics"

[[indicators]]
id = "127"
name = "%s"
regionsets = [1851]

[[indicators.selectors]]
id = "year"
time = true
values = [2019, 2020]

[[indicators.data]]
regionset = 1851
selections = { year = 2019 }
values = { "091" = 7.5 }
`

type testSetup struct {
	dir         string
	configPath  string
	catalogPath string
}

func newTestSetup(t *testing.T) *testSetup {
	t.Helper()
	dir := t.TempDir()
	s := &testSetup{
		dir:         dir,
		configPath:  filepath.Join(dir, "config.toml"),
		catalogPath: filepath.Join(dir, "catalog.toml"),
	}
	s.writeCatalog(t, "Unemployment rate")
	s.writeConfig(t, "")
	return s
}

func (s *testSetup) writeCatalog(t *testing.T, name string) {
	t.Helper()
	if err := os.WriteFile(s.catalogPath, []byte(fmt.Sprintf(catalogTemplate, name)), 0644); err != nil {
		t.Fatal(err)
	}
}

func (s *testSetup) writeConfig(t *testing.T, extra string) {
	t.Helper()
	content := fmt.Sprintf(`storage_dir = %q

[datasources.stats]
type = "file"
[datasources.stats.config]
path = %q
%s`, filepath.Join(s.dir, "data"), s.catalogPath, extra)
	if err := os.WriteFile(s.configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestParseSelections(t *testing.T) {
	tests := []struct {
		name  string
		flags []string
		want  core.Selections
		err   bool
	}{
		{
			name:  "scalar",
			flags: []string{"year=2019"},
			want:  core.Selections{"year": core.Scalar("2019")},
		},
		{
			name:  "multi in one flag",
			flags: []string{"sex=male,female"},
			want:  core.Selections{"sex": core.Multi("male", "female")},
		},
		{
			name:  "multi split by the flag parser",
			flags: []string{"sex=male", "female", "year=2020"},
			want:  core.Selections{"sex": core.Multi("male", "female"), "year": core.Scalar("2020")},
		},
		{
			name:  "repeated key",
			flags: []string{"year=2019", "year=2020"},
			want:  core.Selections{"year": core.Multi("2019", "2020")},
		},
		{
			name:  "value without key",
			flags: []string{"2019"},
			err:   true,
		},
		{
			name:  "empty key",
			flags: []string{"=2019"},
			err:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSelections(tt.flags)
			if tt.err {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if core.Fingerprint("d", "i", got, nil) != core.Fingerprint("d", "i", tt.want, nil) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseConfigValues(t *testing.T) {
	values, err := parseConfigValues([]string{"url=http://example.com/api", "rate=2.5", "burst=3", "verbose=true"})
	if err != nil {
		t.Fatal(err)
	}
	if values["url"] != "http://example.com/api" {
		t.Errorf("url = %v", values["url"])
	}
	if values["rate"] != 2.5 {
		t.Errorf("rate = %#v", values["rate"])
	}
	if values["burst"] != int64(3) {
		t.Errorf("burst = %#v", values["burst"])
	}
	if values["verbose"] != true {
		t.Errorf("verbose = %#v", values["verbose"])
	}

	if _, err := parseConfigValues([]string{"novalue"}); err == nil {
		t.Error("expected error for a pair without '='")
	}
}

func TestParseRegionsets(t *testing.T) {
	ids, err := parseRegionsets([]string{"1851,1850", "7"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != 1851 || ids[1] != 1850 || ids[2] != 7 {
		t.Errorf("unexpected regionsets %v", ids)
	}
	if _, err := parseRegionsets([]string{"x"}); err == nil {
		t.Error("expected error for a non numeric regionset")
	}
}

func TestInitAndManageDatasources(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	catalogPath := filepath.Join(dir, "catalog.toml")
	if err := os.WriteFile(catalogPath, []byte(fmt.Sprintf(catalogTemplate, "x")), 0644); err != nil {
		t.Fatal(err)
	}

	if err := initConfig(configPath, false); err != nil {
		t.Fatalf("initConfig: %v", err)
	}
	if err := initConfig(configPath, false); err == nil {
		t.Error("init should refuse to overwrite without --force")
	}
	if err := initConfig(configPath, true); err != nil {
		t.Errorf("init --force: %v", err)
	}

	if err := addDatasource(configPath, "stats", "file", false, []string{"path=" + catalogPath}); err != nil {
		t.Fatalf("addDatasource file: %v", err)
	}
	if err := addDatasource(configPath, "remote", "rest", true, []string{"url=http://example.com/api", "rate=2.5"}); err != nil {
		t.Fatalf("addDatasource rest: %v", err)
	}
	if err := addDatasource(configPath, "stats", "file", false, []string{"path=" + catalogPath}); err == nil {
		t.Error("expected error adding a duplicate datasource")
	}
	if err := addDatasource(configPath, "bad", "nope", false, nil); err == nil {
		t.Error("expected error for an unknown type")
	}
	if err := addDatasource(configPath, "bad", "file", false, nil); err == nil {
		t.Error("expected error for a file datasource without path")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	names := cfg.ListDatasources()
	if strings.Join(names, ",") != "remote,stats" {
		t.Fatalf("unexpected datasources %v", names)
	}
	if !cfg.Datasources["remote"].User {
		t.Error("remote should be a user datasource")
	}

	// The saved config must build working providers.
	registry := core.GetGlobalRegistry()
	if err := createProvidersFromConfig(registry, cfg); err != nil {
		t.Fatalf("createProvidersFromConfig: %v", err)
	}
	defer func() { _ = registry.Close() }()
	p, err := registry.GetProvider("stats")
	if err != nil {
		t.Fatal(err)
	}
	list, err := p.ListIndicators(context.Background())
	if err != nil || len(list) != 1 {
		t.Fatalf("ListIndicators = %v, %v", list, err)
	}

	if err := removeDatasource(configPath, "remote"); err != nil {
		t.Fatalf("removeDatasource: %v", err)
	}
	if err := removeDatasource(configPath, "remote"); err == nil {
		t.Error("expected error removing a missing datasource")
	}
}

func TestRunSearchCommitsIndicator(t *testing.T) {
	ctx := context.Background()
	s := newTestSetup(t)

	form := search.Form{
		Datasource: "stats",
		Indicators: []string{"127"},
		Selections: core.Selections{"year": core.Scalar("2019")},
		Regionset:  1851,
	}
	if err := runSearch(ctx, s.configPath, "en", form, false); err != nil {
		t.Fatalf("runSearch: %v", err)
	}

	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		t.Fatal(err)
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	indicators, err := store.ListIndicators(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(indicators) != 1 || indicators[0].Indicator != "127" {
		t.Fatalf("unexpected indicators %+v", indicators)
	}
	active, _ := store.ActiveIndicator(ctx)
	if active != indicators[0].Hash {
		t.Errorf("active = %q, want %q", active, indicators[0].Hash)
	}
	searches, err := store.ListSearches(ctx, 10)
	if err != nil || len(searches) != 1 {
		t.Fatalf("ListSearches = %v, %v", searches, err)
	}

	bad := form
	bad.Datasource = "missing"
	if err := runSearch(ctx, s.configPath, "en", bad, false); err == nil {
		t.Error("expected error for an unknown datasource")
	}
}

func newTestReloader(t *testing.T, s *testSetup) (*reloader, *catalog.Catalog) {
	t.Helper()
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		t.Fatal(err)
	}
	registry := core.GetGlobalRegistry()
	if err := createProvidersFromConfig(registry, cfg); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = registry.Close() })
	cat := catalog.New(registry, cfg.DatasourceInfos())
	return newReloader(s.configPath, cfg, registry, cat), cat
}

func TestReloaderSourceChange(t *testing.T) {
	ctx := context.Background()
	s := newTestSetup(t)
	r, cat := newTestReloader(t, s)

	sources := r.sources()
	if names := sources[filepath.Clean(s.catalogPath)]; len(names) != 1 || names[0] != "stats" {
		t.Fatalf("unexpected sources %v", sources)
	}

	md, err := cat.IndicatorMetadata(ctx, "stats", "127")
	if err != nil || md == nil || md.Name != "Unemployment rate" {
		t.Fatalf("IndicatorMetadata = %+v, %v", md, err)
	}

	s.writeCatalog(t, "Employment rate")
	r.handleChange(ctx, s.catalogPath)

	md, err = cat.IndicatorMetadata(ctx, "stats", "127")
	if err != nil || md == nil {
		t.Fatalf("IndicatorMetadata after reload = %+v, %v", md, err)
	}
	if md.Name != "Employment rate" {
		t.Errorf("cached metadata survived reload: %q", md.Name)
	}
}

func TestReloaderConfigChange(t *testing.T) {
	ctx := context.Background()
	s := newTestSetup(t)
	r, cat := newTestReloader(t, s)

	s.writeConfig(t, fmt.Sprintf(`
[datasources.other]
type = "file"
user = true
[datasources.other.config]
path = %q
`, s.catalogPath))
	r.handleChange(ctx, s.configPath)

	infos := cat.Datasources()
	if len(infos) != 2 || infos[0].Name != "other" || !infos[0].User {
		t.Fatalf("unexpected datasources after reload %+v", infos)
	}
	if _, err := cat.ListIndicators(ctx, "other"); err != nil {
		t.Errorf("new datasource not usable: %v", err)
	}

	// A broken config keeps the current providers.
	s.writeConfig(t, `
[datasources.broken]
type = "nope"
`)
	if err := r.reloadConfig(); err == nil {
		t.Fatal("expected error for an unknown provider type")
	}
	if len(cat.Datasources()) != 2 {
		t.Errorf("datasources changed after a failed reload: %+v", cat.Datasources())
	}
	if _, err := cat.ListIndicators(ctx, "stats"); err != nil {
		t.Errorf("stats unusable after a failed reload: %v", err)
	}
}
