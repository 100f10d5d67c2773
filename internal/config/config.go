// internal/config/config.go
//
// This package handles configuration and the .fleetnote directory structure.
// Every working directory that runs fleetnote gets a .fleetnote/ folder with
// a config.yaml and a logs/ folder.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AppDir is the name of the directory we create in the working root
	AppDir = ".fleetnote"

	defaultM5BaseURL        = "https://fleetfocustest.assetworks.com/APItest"
	defaultM5Site           = "stpaul"
	defaultGeotabBaseURL    = "https://my.geotab.com/apiv1/"
	defaultGeotabDatabase   = "city_of_saint_paul"
	defaultRoutewareBaseURL = "https://api.routeware.com"
	defaultHTTPTimeout      = "30s"
	defaultAssetID          = "2140"
)

// Environment variables read after the optional .env file is loaded.
const (
	EnvM5Username       = "FLEETNOTE_M5_USERNAME"
	EnvGeotabUsername   = "FLEETNOTE_GEOTAB_USERNAME"
	EnvRoutewareAPIKey  = "ROUTEWARE_API_KEY"
	EnvM5BaseURL        = "FLEETNOTE_M5_URL"
	EnvGeotabBaseURL    = "FLEETNOTE_GEOTAB_URL"
	EnvRoutewareBaseURL = "FLEETNOTE_ROUTEWARE_URL"
)

const defaultConfigYAML = `# fleetnote configuration
version: 1

m5:
  base_url: https://fleetfocustest.assetworks.com/APItest
  site: stpaul

geotab:
  base_url: https://my.geotab.com/apiv1/
  database: city_of_saint_paul

routeware:
  base_url: https://api.routeware.com

http:
  timeout: 30s

# Maps an M5 asset to its Geotab device name pattern and Routeware vehicle type.
assets:
  - m5_asset_id: "2140"
    geotab_device_prefix: "2140%"
    vehicle_type_id: 9
    pickup_type_id: 1

default_asset: "2140"
`

// M5Config points at the asset-management API.
type M5Config struct {
	BaseURL string `yaml:"base_url"`
	Site    string `yaml:"site"`
}

// GeotabConfig points at the telematics JSON-RPC endpoint.
type GeotabConfig struct {
	BaseURL  string `yaml:"base_url"`
	Database string `yaml:"database"`
}

// RoutewareConfig points at the dispatch API.
type RoutewareConfig struct {
	BaseURL string `yaml:"base_url"`
}

// HTTPConfig controls the shared transport.
type HTTPConfig struct {
	Timeout string `yaml:"timeout"`
}

// AssetMapping ties one M5 asset to the matching Geotab device and the
// Routeware vehicle/pickup types used when a job is created for it.
type AssetMapping struct {
	M5AssetID          string `yaml:"m5_asset_id"`
	GeotabDevicePrefix string `yaml:"geotab_device_prefix"`
	VehicleTypeID      int    `yaml:"vehicle_type_id"`
	PickupTypeID       int    `yaml:"pickup_type_id"`
}

// FileConfig models .fleetnote/config.yaml.
type FileConfig struct {
	Version      int             `yaml:"version"`
	M5           M5Config        `yaml:"m5"`
	Geotab       GeotabConfig    `yaml:"geotab"`
	Routeware    RoutewareConfig `yaml:"routeware"`
	HTTP         HTTPConfig      `yaml:"http"`
	Assets       []AssetMapping  `yaml:"assets"`
	DefaultAsset string          `yaml:"default_asset"`
}

// Prefill carries values used to seed form inputs. Passwords are never
// taken from the environment.
type Prefill struct {
	M5Username      string
	GeotabUsername  string
	RoutewareAPIKey string
}

// Config holds the runtime configuration for fleetnote.
type Config struct {
	// RootDir is the directory fleetnote was started from (or --dir)
	RootDir string

	// AppDir is RootDir/.fleetnote
	AppDir string

	// Path is the config file that was loaded
	Path string

	File    FileConfig
	Prefill Prefill

	timeout time.Duration
}

// InitDir creates the .fleetnote directory structure in the given root.
//
// Structure created:
// .fleetnote/
// ├── config.yaml   <- written with defaults when missing
// └── logs/         <- journey.log and the optional http.log trace
func InitDir(rootDir string) error {
	appDir := filepath.Join(rootDir, AppDir)
	if err := os.MkdirAll(filepath.Join(appDir, "logs"), 0o755); err != nil {
		return err
	}
	return ensureConfigFile(filepath.Join(appDir, "config.yaml"))
}

// NewConfig creates a Config for rootDir. An empty path means the default
// .fleetnote/config.yaml. Environment overrides are applied after the file.
func NewConfig(rootDir, path string) (*Config, error) {
	appDir := filepath.Join(rootDir, AppDir)
	if strings.TrimSpace(path) == "" {
		path = filepath.Join(appDir, "config.yaml")
	}
	cfg := &Config{
		RootDir: rootDir,
		AppDir:  appDir,
		Path:    path,
		File:    defaultFileConfig(),
	}
	if err := cfg.load(); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.File.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	timeout, err := time.ParseDuration(cfg.File.HTTP.Timeout)
	if err != nil {
		return nil, fmt.Errorf("config: http.timeout: %w", err)
	}
	cfg.timeout = timeout
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.AppDir, "logs")
}

// JourneyLogPath returns the operator-facing logbook path
func (c *Config) JourneyLogPath() string {
	return filepath.Join(c.LogsDir(), "journey.log")
}

// TraceLogPath returns the HTTP wire trace path
func (c *Config) TraceLogPath() string {
	return filepath.Join(c.LogsDir(), "http.log")
}

// HTTPTimeout returns the per-request timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return c.timeout
}

// Asset returns the mapping for the given M5 asset id. An empty id selects
// the configured default.
func (c *Config) Asset(id string) (AssetMapping, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = c.File.DefaultAsset
	}
	for _, mapping := range c.File.Assets {
		if mapping.M5AssetID == id {
			return mapping, nil
		}
	}
	return AssetMapping{}, fmt.Errorf("config: no asset mapping for %q", id)
}

// SetDefaultAsset switches the default mapping. The id must already be mapped.
func (c *Config) SetDefaultAsset(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("config: asset id is required")
	}
	if _, err := c.Asset(id); err != nil {
		return err
	}
	c.File.DefaultAsset = id
	return nil
}

func (c *Config) load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", c.Path, err)
	}

	var parsed FileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", c.Path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	c.File = parsed
	return nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvM5BaseURL)); v != "" {
		c.File.M5.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvGeotabBaseURL)); v != "" {
		c.File.Geotab.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRoutewareBaseURL)); v != "" {
		c.File.Routeware.BaseURL = v
	}
	c.File.normalize()
	c.Prefill = Prefill{
		M5Username:      strings.TrimSpace(os.Getenv(EnvM5Username)),
		GeotabUsername:  strings.TrimSpace(os.Getenv(EnvGeotabUsername)),
		RoutewareAPIKey: strings.TrimSpace(os.Getenv(EnvRoutewareAPIKey)),
	}
}

func defaultFileConfig() FileConfig {
	fc := FileConfig{}
	fc.applyDefaults()
	return fc
}

func (fc *FileConfig) applyDefaults() {
	if fc.Version == 0 {
		fc.Version = 1
	}
	if fc.M5.BaseURL == "" {
		fc.M5.BaseURL = defaultM5BaseURL
	}
	if fc.M5.Site == "" {
		fc.M5.Site = defaultM5Site
	}
	if fc.Geotab.BaseURL == "" {
		fc.Geotab.BaseURL = defaultGeotabBaseURL
	}
	if fc.Geotab.Database == "" {
		fc.Geotab.Database = defaultGeotabDatabase
	}
	if fc.Routeware.BaseURL == "" {
		fc.Routeware.BaseURL = defaultRoutewareBaseURL
	}
	if fc.HTTP.Timeout == "" {
		fc.HTTP.Timeout = defaultHTTPTimeout
	}
	if len(fc.Assets) == 0 {
		fc.Assets = []AssetMapping{{
			M5AssetID:          defaultAssetID,
			GeotabDevicePrefix: defaultAssetID + "%",
			VehicleTypeID:      9,
			PickupTypeID:       1,
		}}
	}
	if fc.DefaultAsset == "" {
		fc.DefaultAsset = fc.Assets[0].M5AssetID
	}
}

func (fc *FileConfig) normalize() {
	fc.M5.BaseURL = strings.TrimRight(strings.TrimSpace(fc.M5.BaseURL), "/")
	fc.M5.Site = strings.TrimSpace(fc.M5.Site)
	fc.Geotab.BaseURL = strings.TrimSpace(fc.Geotab.BaseURL)
	fc.Geotab.Database = strings.TrimSpace(fc.Geotab.Database)
	fc.Routeware.BaseURL = strings.TrimRight(strings.TrimSpace(fc.Routeware.BaseURL), "/")
	fc.HTTP.Timeout = strings.TrimSpace(fc.HTTP.Timeout)
	for i := range fc.Assets {
		fc.Assets[i].normalize()
	}
	fc.DefaultAsset = strings.TrimSpace(fc.DefaultAsset)
}

func (fc *FileConfig) validate() error {
	if fc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	for name, raw := range map[string]string{
		"m5.base_url":        fc.M5.BaseURL,
		"geotab.base_url":    fc.Geotab.BaseURL,
		"routeware.base_url": fc.Routeware.BaseURL,
	} {
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if fc.M5.Site == "" {
		return fmt.Errorf("m5.site is required")
	}
	if fc.Geotab.Database == "" {
		return fmt.Errorf("geotab.database is required")
	}
	seen := map[string]struct{}{}
	for i := range fc.Assets {
		if err := fc.Assets[i].validate(); err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
		if _, dup := seen[fc.Assets[i].M5AssetID]; dup {
			return fmt.Errorf("assets[%d]: duplicate m5_asset_id %q", i, fc.Assets[i].M5AssetID)
		}
		seen[fc.Assets[i].M5AssetID] = struct{}{}
	}
	if _, ok := seen[fc.DefaultAsset]; !ok {
		return fmt.Errorf("default_asset %q has no mapping", fc.DefaultAsset)
	}
	return nil
}

func (m *AssetMapping) normalize() {
	m.M5AssetID = strings.TrimSpace(m.M5AssetID)
	m.GeotabDevicePrefix = strings.TrimSpace(m.GeotabDevicePrefix)
	if m.GeotabDevicePrefix == "" && m.M5AssetID != "" {
		m.GeotabDevicePrefix = m.M5AssetID + "%"
	}
}

func (m AssetMapping) validate() error {
	if m.M5AssetID == "" {
		return fmt.Errorf("m5_asset_id is required")
	}
	if m.VehicleTypeID <= 0 {
		return fmt.Errorf("vehicle_type_id must be positive")
	}
	if m.PickupTypeID <= 0 {
		return fmt.Errorf("pickup_type_id must be positive")
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
