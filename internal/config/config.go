package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// SyncMode selects how media-server users map onto catalog accounts.
type SyncMode string

const (
	ModeSingle SyncMode = "single" // one configured user, one binding
	ModeMulti  SyncMode = "multi"  // N bindings keyed by media-server user name
)

// AccountBinding maps a media-server user name to a Bangumi credential.
type AccountBinding struct {
	UserName     string `json:"user_name"`
	BangumiUser  string `json:"bangumi_username"`
	AccessToken  string `json:"access_token"`
	Private      bool   `json:"private"`
	TraktEnabled bool   `json:"trakt_enabled"`
	TraktUser    string `json:"trakt_username"`
}

// Config holds all application configuration. Instances are immutable after
// Load; changes take effect on process restart, fields are never mutated in
// place.
type Config struct {
	// Sync
	Mode            SyncMode
	Bindings        map[string]AccountBinding // keyed by media-server user name
	BlockedKeywords []string

	// Bangumi catalog
	BangumiBaseURL string

	// Dataset (bangumi-data)
	DatasetURL       string
	DatasetProxy     string
	DatasetTTLDays   int
	DefaultSeasonLen int // per-season episode budget when the dataset has no count

	// Trakt
	TraktClientID     string
	TraktClientSecret string
	TraktRedirectURL  string
	TraktSyncCron     string // cron spec for incremental pulls

	// Server
	ServerPort string

	// Paths
	DatabaseFile     string // $CONFIG_DIR/bangusync.db
	DatasetCacheFile string // $CONFIG_DIR/bangumi_data.json
	AccountsFile     string // $CONFIG_DIR/accounts.json (multi mode)

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("SYNC_MODE", string(ModeSingle))
	viper.SetDefault("BANGUMI_BASE_URL", "https://api.bgm.tv/v0")
	viper.SetDefault("DATASET_URL", "https://unpkg.com/bangumi-data@0.3/dist/data.json")
	viper.SetDefault("DATASET_TTL_DAYS", 7)
	viper.SetDefault("DEFAULT_SEASON_LENGTH", 13)
	viper.SetDefault("TRAKT_SYNC_CRON", "0 */6 * * *")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")

	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "bangusync")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		Mode:            SyncMode(viper.GetString("SYNC_MODE")),
		BlockedKeywords: splitKeywords(viper.GetString("BLOCKED_KEYWORDS")),

		BangumiBaseURL: viper.GetString("BANGUMI_BASE_URL"),

		DatasetURL:       viper.GetString("DATASET_URL"),
		DatasetProxy:     viper.GetString("DATASET_PROXY"),
		DatasetTTLDays:   viper.GetInt("DATASET_TTL_DAYS"),
		DefaultSeasonLen: viper.GetInt("DEFAULT_SEASON_LENGTH"),

		TraktClientID:     viper.GetString("TRAKT_CLIENT_ID"),
		TraktClientSecret: viper.GetString("TRAKT_CLIENT_SECRET"),
		TraktRedirectURL:  viper.GetString("TRAKT_REDIRECT_URL"),
		TraktSyncCron:     viper.GetString("TRAKT_SYNC_CRON"),

		ServerPort: viper.GetString("SERVER_PORT"),

		DatabaseFile:     filepath.Join(configDir, "bangusync.db"),
		DatasetCacheFile: filepath.Join(configDir, "bangumi_data.json"),
		AccountsFile:     filepath.Join(configDir, "accounts.json"),

		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	bindings, err := loadBindings(config)
	if err != nil {
		return nil, err
	}
	config.Bindings = bindings

	return config, nil
}

// loadBindings resolves account bindings for the configured mode. In single
// mode the sole binding comes from env vars; in multi mode bindings come from
// the accounts file.
func loadBindings(cfg *Config) (map[string]AccountBinding, error) {
	switch cfg.Mode {
	case ModeSingle:
		binding := AccountBinding{
			UserName:     viper.GetString("SINGLE_USERNAME"),
			BangumiUser:  viper.GetString("BANGUMI_USERNAME"),
			AccessToken:  viper.GetString("BANGUMI_ACCESS_TOKEN"),
			Private:      viper.GetBool("BANGUMI_PRIVATE"),
			TraktEnabled: viper.GetBool("TRAKT_ENABLED"),
			TraktUser:    viper.GetString("TRAKT_USERNAME"),
		}
		if binding.UserName == "" {
			return nil, fmt.Errorf("SINGLE_USERNAME is required in single mode")
		}
		if binding.BangumiUser == "" || binding.AccessToken == "" {
			return nil, fmt.Errorf("BANGUMI_USERNAME and BANGUMI_ACCESS_TOKEN are required in single mode")
		}
		return map[string]AccountBinding{binding.UserName: binding}, nil

	case ModeMulti:
		data, err := os.ReadFile(cfg.AccountsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read accounts file %s: %w", cfg.AccountsFile, err)
		}
		var list []AccountBinding
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse accounts file: %w", err)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("accounts file %s contains no bindings", cfg.AccountsFile)
		}
		bindings := make(map[string]AccountBinding, len(list))
		for _, b := range list {
			if b.UserName == "" || b.BangumiUser == "" || b.AccessToken == "" {
				return nil, fmt.Errorf("binding for %q is missing required fields", b.UserName)
			}
			bindings[b.UserName] = b
		}
		return bindings, nil

	default:
		return nil, fmt.Errorf("unsupported sync mode: %s", cfg.Mode)
	}
}

// BindingFor returns the binding for a media-server user, if any.
func (c *Config) BindingFor(userName string) (AccountBinding, bool) {
	b, ok := c.Bindings[userName]
	return b, ok
}

// TraktAccounts lists the bindings with Trakt polling enabled.
func (c *Config) TraktAccounts() []AccountBinding {
	var accounts []AccountBinding
	for _, b := range c.Bindings {
		if b.TraktEnabled {
			accounts = append(accounts, b)
		}
	}
	return accounts
}

func splitKeywords(s string) []string {
	var keywords []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			keywords = append(keywords, part)
		}
	}
	return keywords
}
