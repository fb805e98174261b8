package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables overriding config keys, e.g.
// UNIVERSAL_INBOX_LOG_LEVEL for log.level.
const EnvPrefix = "UNIVERSAL_INBOX"

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// SyncConfig controls how often and how widely syncs run.
type SyncConfig struct {
	// MinNotificationsInterval and MinTasksInterval reject a sync started
	// sooner than this after the previous one. Zero disables the check.
	MinNotificationsInterval time.Duration `mapstructure:"min_notifications_interval" yaml:"min_notifications_interval"`
	MinTasksInterval         time.Duration `mapstructure:"min_tasks_interval" yaml:"min_tasks_interval"`

	NotificationsEvery time.Duration `mapstructure:"notifications_every" yaml:"notifications_every"`
	TasksEvery         time.Duration `mapstructure:"tasks_every" yaml:"tasks_every"`

	// Concurrency bounds the number of users synced at once. The SQLite
	// store serves a single transaction at a time and a connection's sync
	// holds it until the sync ends, so values above 1 only start the next
	// user's sync as soon as the store is free.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// FetchTimeout bounds one connection's sync.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
}

// MinInterval returns the cooldown of the given sync type.
func (c SyncConfig) MinInterval(syncType SyncType) time.Duration {
	if syncType == SyncTasks {
		return c.MinTasksInterval
	}
	return c.MinNotificationsInterval
}

// TasksConfig selects the tracker tasks are mirrored into.
type TasksConfig struct {
	SinkProvider IntegrationProviderKind `mapstructure:"sink_provider" yaml:"sink_provider"`
}

// CacheConfig holds the lifetime of cached provider lookups.
type CacheConfig struct {
	SlackEntityTTL    time.Duration `mapstructure:"slack_entity_ttl" yaml:"slack_entity_ttl"`
	SlackEmojiTTL     time.Duration `mapstructure:"slack_emoji_ttl" yaml:"slack_emoji_ttl"`
	SlackMessageTTL   time.Duration `mapstructure:"slack_message_ttl" yaml:"slack_message_ttl"`
	SlackPermalinkTTL time.Duration `mapstructure:"slack_permalink_ttl" yaml:"slack_permalink_ttl"`
	ProjectListTTL    time.Duration `mapstructure:"project_list_ttl" yaml:"project_list_ttl"`
}

// ProviderConfig tunes the HTTP client of one provider.
type ProviderConfig struct {
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	PageSize          int     `mapstructure:"page_size" yaml:"page_size"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database  DatabaseConfig            `mapstructure:"database" yaml:"database"`
	Log       LogConfig                 `mapstructure:"log" yaml:"log"`
	Sync      SyncConfig                `mapstructure:"sync" yaml:"sync"`
	Tasks     TasksConfig               `mapstructure:"tasks" yaml:"tasks"`
	Cache     CacheConfig               `mapstructure:"cache" yaml:"cache"`
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// Provider returns the HTTP settings of a provider, falling back to the
// built-in defaults for unset fields.
func (c *AppConfig) Provider(kind IntegrationProviderKind) ProviderConfig {
	def := defaultProviders[kind]
	cfg, ok := c.Providers[string(kind)]
	if !ok {
		return def
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	return cfg
}

var defaultProviders = map[IntegrationProviderKind]ProviderConfig{
	ProviderGithub:         {BaseURL: "https://api.github.com", PageSize: 50, RequestsPerSecond: 10},
	ProviderSlack:          {BaseURL: "https://slack.com/api", PageSize: 100, RequestsPerSecond: 5},
	ProviderGoogleMail:     {BaseURL: "https://gmail.googleapis.com/gmail/v1", PageSize: 100, RequestsPerSecond: 10},
	ProviderGoogleCalendar: {BaseURL: "https://www.googleapis.com/calendar/v3", PageSize: 100, RequestsPerSecond: 10},
	ProviderGoogleDrive:    {BaseURL: "https://www.googleapis.com/drive/v3", PageSize: 100, RequestsPerSecond: 10},
	ProviderLinear:         {BaseURL: "https://api.linear.app/graphql", PageSize: 50, RequestsPerSecond: 5},
	ProviderTodoist:        {BaseURL: "https://api.todoist.com/sync/v9", PageSize: 100, RequestsPerSecond: 5},
	ProviderTickTick:       {BaseURL: "https://api.ticktick.com/open/v1", PageSize: 100, RequestsPerSecond: 5},
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/universal-inbox/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "universal-inbox", "config.yaml")
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "universal-inbox.db"
	}
	return filepath.Join(home, ".local", "share", "universal-inbox", "inbox.db")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	providers := make(map[string]ProviderConfig, len(defaultProviders))
	for kind, cfg := range defaultProviders {
		providers[string(kind)] = cfg
	}
	return &AppConfig{
		Database: DatabaseConfig{Path: defaultDatabasePath()},
		Log:      LogConfig{Level: "info"},
		Sync: SyncConfig{
			MinNotificationsInterval: time.Minute,
			MinTasksInterval:         time.Minute,
			NotificationsEvery:       5 * time.Minute,
			TasksEvery:               10 * time.Minute,
			Concurrency:              1,
			FetchTimeout:             2 * time.Minute,
		},
		Tasks: TasksConfig{SinkProvider: ProviderTodoist},
		Cache: CacheConfig{
			SlackEntityTTL:    24 * time.Hour,
			SlackEmojiTTL:     24 * time.Hour,
			SlackMessageTTL:   time.Minute,
			SlackPermalinkTTL: 7 * 24 * time.Hour,
			ProjectListTTL:    5 * time.Minute,
		},
		Providers: providers,
	}
}

func setDefaults(v *viper.Viper, cfg *AppConfig) {
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.pretty", cfg.Log.Pretty)
	v.SetDefault("sync.min_notifications_interval", cfg.Sync.MinNotificationsInterval)
	v.SetDefault("sync.min_tasks_interval", cfg.Sync.MinTasksInterval)
	v.SetDefault("sync.notifications_every", cfg.Sync.NotificationsEvery)
	v.SetDefault("sync.tasks_every", cfg.Sync.TasksEvery)
	v.SetDefault("sync.concurrency", cfg.Sync.Concurrency)
	v.SetDefault("sync.fetch_timeout", cfg.Sync.FetchTimeout)
	v.SetDefault("tasks.sink_provider", string(cfg.Tasks.SinkProvider))
	v.SetDefault("cache.slack_entity_ttl", cfg.Cache.SlackEntityTTL)
	v.SetDefault("cache.slack_emoji_ttl", cfg.Cache.SlackEmojiTTL)
	v.SetDefault("cache.slack_message_ttl", cfg.Cache.SlackMessageTTL)
	v.SetDefault("cache.slack_permalink_ttl", cfg.Cache.SlackPermalinkTTL)
	v.SetDefault("cache.project_list_ttl", cfg.Cache.ProjectListTTL)
	for name, p := range cfg.Providers {
		v.SetDefault("providers."+name+".base_url", p.BaseURL)
		v.SetDefault("providers."+name+".page_size", p.PageSize)
		v.SetDefault("providers."+name+".requests_per_second", p.RequestsPerSecond)
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// with UNIVERSAL_INBOX_* environment overrides. If the file does not
// exist, defaults and environment values are used.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if _, err := ParseProviderKind(string(cfg.Tasks.SinkProvider)); err != nil {
		return nil, fmt.Errorf("parsing config %s: tasks.sink_provider: %w", path, err)
	}
	if cfg.Tasks.SinkProvider != ProviderTodoist && cfg.Tasks.SinkProvider != ProviderTickTick {
		return nil, fmt.Errorf("parsing config %s: tasks.sink_provider must be todoist or ticktick", path)
	}
	if cfg.Sync.Concurrency < 1 {
		cfg.Sync.Concurrency = 1
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database.path", cfg.Database.Path)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.pretty", cfg.Log.Pretty)
	v.Set("sync.min_notifications_interval", cfg.Sync.MinNotificationsInterval.String())
	v.Set("sync.min_tasks_interval", cfg.Sync.MinTasksInterval.String())
	v.Set("sync.notifications_every", cfg.Sync.NotificationsEvery.String())
	v.Set("sync.tasks_every", cfg.Sync.TasksEvery.String())
	v.Set("sync.concurrency", cfg.Sync.Concurrency)
	v.Set("sync.fetch_timeout", cfg.Sync.FetchTimeout.String())
	v.Set("tasks.sink_provider", string(cfg.Tasks.SinkProvider))
	v.Set("cache.slack_entity_ttl", cfg.Cache.SlackEntityTTL.String())
	v.Set("cache.slack_emoji_ttl", cfg.Cache.SlackEmojiTTL.String())
	v.Set("cache.slack_message_ttl", cfg.Cache.SlackMessageTTL.String())
	v.Set("cache.slack_permalink_ttl", cfg.Cache.SlackPermalinkTTL.String())
	v.Set("cache.project_list_ttl", cfg.Cache.ProjectListTTL.String())
	for name, p := range cfg.Providers {
		v.Set("providers."+name+".base_url", p.BaseURL)
		v.Set("providers."+name+".page_size", p.PageSize)
		v.Set("providers."+name+".requests_per_second", p.RequestsPerSecond)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
