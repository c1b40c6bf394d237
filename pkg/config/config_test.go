package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
storage_dir = "` + dir + `"
language = "fi"

[datasources.sotka]
type = "rest"
regionsets = [1851]
[datasources.sotka.config]
url = "http://localhost:9999"

[datasources.mine]
type = "file"
user = true
[datasources.mine.config]
path = "mine.toml"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Language != "fi" {
		t.Errorf("language = %q", cfg.Language)
	}
	if cfg.Listen != DefaultListen {
		t.Errorf("listen = %q, want default", cfg.Listen)
	}
	if cfg.DBPath() != filepath.Join(dir, "statsgrid.db") {
		t.Errorf("db path = %q", cfg.DBPath())
	}

	infos := cfg.DatasourceInfos()
	if len(infos) != 2 {
		t.Fatalf("expected 2 datasources, got %d", len(infos))
	}
	if infos[0].Name != "mine" || !infos[0].User || infos[0].Type != "file" {
		t.Errorf("unexpected first datasource: %+v", infos[0])
	}
	if infos[1].Name != "sotka" || len(infos[1].Regionsets) != 1 || infos[1].Regionsets[0] != 1851 {
		t.Errorf("unexpected second datasource: %+v", infos[1])
	}

	dsType, raw, err := cfg.GetDatasourceConfig("sotka")
	if err != nil || dsType != "rest" || raw == nil {
		t.Errorf("GetDatasourceConfig = %q, %v, %v", dsType, raw, err)
	}
}

func TestLoadConfigMissingType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "storage_dir = \"/tmp\"\n[datasources.broken]\nuser = true\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for datasource without type")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Language != DefaultLanguage || len(cfg.Datasources) != 0 {
		t.Errorf("unexpected default config: %+v", cfg)
	}
}

func TestTemplateConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{StorageDir: dir, Datasources: map[string]DatasourceInfo{}}
	path := filepath.Join(dir, "sub", "config.toml")
	if err := cfg.SaveTemplateConfig(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if loaded.StorageDir != dir {
		t.Errorf("storage_dir = %q, want %q", loaded.StorageDir, dir)
	}
}
