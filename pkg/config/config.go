package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rubiojr/statsgrid/pkg/core"
)

//go:embed config.toml.sample
var configTemplate string

const (
	DefaultLanguage = "en"
	DefaultListen   = "127.0.0.1:8090"
)

type Config struct {
	StorageDir  string                    `toml:"storage_dir"`
	Language    string                    `toml:"language"`
	Listen      string                    `toml:"listen"`
	Datasources map[string]DatasourceInfo `toml:"datasources"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

type DatasourceInfo struct {
	Type string `toml:"type"`
	// User marks a datasource holding the user's own indicators. An empty
	// indicator list is expected there and not reported.
	User bool `toml:"user,omitempty"`
	// Regionsets the datasource supports. When empty they are derived from
	// the indicator list.
	Regionsets []int       `toml:"regionsets,omitempty"`
	Config     interface{} `toml:"config"`
}

func GetDefaultConfig() (*Config, error) {
	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return nil, fmt.Errorf("getting default storage directory: %w", err)
	}
	return &Config{
		StorageDir:  storageDir,
		Language:    DefaultLanguage,
		Listen:      DefaultListen,
		Datasources: make(map[string]DatasourceInfo),
	}, nil
}

func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if config.StorageDir == "" {
		storageDir, err := GetDefaultStorageDir()
		if err != nil {
			return nil, fmt.Errorf("getting default storage directory: %w", err)
		}
		config.StorageDir = storageDir
	}
	config.StorageDir = expandHome(config.StorageDir)

	if config.Language == "" {
		config.Language = DefaultLanguage
	}
	if config.Listen == "" {
		config.Listen = DefaultListen
	}

	if config.Datasources == nil {
		config.Datasources = make(map[string]DatasourceInfo)
	}

	for name, info := range config.Datasources {
		if info.Type == "" {
			return nil, fmt.Errorf("datasource %s: missing type", name)
		}
	}

	return &config, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	template, err := c.generateConfigTemplate()
	if err != nil {
		return fmt.Errorf("generating config template: %w", err)
	}
	return os.WriteFile(configPath, []byte(template), 0644)
}

func (c *Config) generateConfigTemplate() (string, error) {
	storageDir := c.StorageDir
	if storageDir == "" {
		var err error
		storageDir, err = GetDefaultStorageDir()
		if err != nil {
			return "", fmt.Errorf("getting default storage directory: %w", err)
		}
	}

	template := strings.Replace(configTemplate, "/home/user/.local/share/statsgrid", storageDir, 1)
	return template, nil
}

func (c *Config) AddDatasource(name, dsType string, user bool, dsConfig interface{}) {
	c.Datasources[name] = DatasourceInfo{
		Type:   dsType,
		User:   user,
		Config: dsConfig,
	}
}

func (c *Config) GetDatasourceConfig(name string) (string, interface{}, error) {
	info, exists := c.Datasources[name]
	if !exists {
		return "", nil, fmt.Errorf("datasource %s not found", name)
	}

	return info.Type, info.Config, nil
}

// ListDatasources returns the configured datasource names, sorted.
func (c *Config) ListDatasources() []string {
	names := make([]string, 0, len(c.Datasources))
	for name := range c.Datasources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DatasourceInfos describes every configured datasource, sorted by name.
func (c *Config) DatasourceInfos() []core.DatasourceInfo {
	infos := make([]core.DatasourceInfo, 0, len(c.Datasources))
	for _, name := range c.ListDatasources() {
		info := c.Datasources[name]
		infos = append(infos, core.DatasourceInfo{
			Name:       name,
			Type:       info.Type,
			User:       info.User,
			Regionsets: append([]int(nil), info.Regionsets...),
		})
	}
	return infos
}

func (c *Config) RemoveDatasource(name string) {
	delete(c.Datasources, name)
}

// DBPath is the indicator state database inside the storage directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.StorageDir, "statsgrid.db")
}

// GetDefaultStorageDir returns the default storage directory for databases
func GetDefaultStorageDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	dir := filepath.Join(dataDir, "statsgrid")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetConfigDir returns the configuration directory for statsgrid
func GetConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, "statsgrid")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
