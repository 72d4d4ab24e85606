package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Version is the release tag reported by the status tools and the
// launcher banner.
const Version = "3.2.0"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the trendradar engine.
type Config struct {
	App          App          `yaml:"app"`
	Crawler      Crawler      `yaml:"crawler"`
	Report       Report       `yaml:"report"`
	Weights      Weights      `yaml:"weights"`
	Keywords     Keywords     `yaml:"keywords"`
	Storage      Storage      `yaml:"storage"`
	Remote       Remote       `yaml:"remote"`
	Server       Server       `yaml:"server"`
	Notification Notification `yaml:"notification"`
	Platforms    []Platform   `yaml:"platforms" validate:"dive"`
}

// App holds process-wide settings.
type App struct {
	Timezone  string `yaml:"timezone"`
	LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=json console"`
}

// Crawler configures the upstream hot-board fetcher.
type Crawler struct {
	BaseURL         string              `yaml:"base_url" validate:"required,url"`
	RequestInterval int                 `yaml:"request_interval" validate:"gte=0"` // milliseconds between platforms
	EnableCrawler   bool                `yaml:"enable_crawler"`
	UseProxy        bool                `yaml:"use_proxy"`
	DefaultProxy    string              `yaml:"default_proxy"`
	URLParamDrops   map[string][]string `yaml:"url_param_drops"`
}

// Report selects the analysis mode and the hotness rank threshold.
type Report struct {
	Mode          string `yaml:"mode" validate:"oneof=daily incremental current"`
	RankThreshold int    `yaml:"rank_threshold" validate:"gte=1"`
}

// Weights are the blend factors of the composite weight formula.
type Weights struct {
	Rank      float64 `yaml:"rank_weight" validate:"gte=0,lte=1"`
	Frequency float64 `yaml:"frequency_weight" validate:"gte=0,lte=1"`
	Hotness   float64 `yaml:"hotness_weight" validate:"gte=0,lte=1"`
}

// Keywords points at the rule file and tunes keyword extraction. The word
// lists extend or replace the built-in analysis lexicons: stop words extend
// the default set, the sentiment and entity lists replace theirs when
// non-empty.
type Keywords struct {
	FrequencyWordsPath string   `yaml:"frequency_words_path"`
	StopWords          []string `yaml:"stop_words"`
	SentimentPositive  []string `yaml:"sentiment_positive"`
	SentimentNegative  []string `yaml:"sentiment_negative"`
	EntityPersons      []string `yaml:"entity_persons"`
	EntityPlaces       []string `yaml:"entity_places"`
	EntityOrgs         []string `yaml:"entity_orgs"`
}

// Storage holds the local day-store layout and retention settings.
type Storage struct {
	DataDir       string `yaml:"data_dir" validate:"required"`
	Backend       string `yaml:"backend" validate:"omitempty,oneof=local remote"`
	RetentionDays int    `yaml:"retention_days" validate:"gte=0"`
	EnableTXT     bool   `yaml:"enable_txt"`
	EnableHTML    bool   `yaml:"enable_html"`
}

// Remote holds S3-compatible object store credentials. All four of
// endpoint, bucket and the key pair must be set for the remote backend
// to activate. PullOnStart pre-seeds the local store with the most recent
// PullDays of remote databases before the first crawl.
type Remote struct {
	EndpointURL     string `yaml:"endpoint_url"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Region          string `yaml:"region"`
	PullOnStart     bool   `yaml:"pull_on_start"`
	PullDays        int    `yaml:"pull_days" validate:"gte=0,lte=30"`
}

// Server holds network listener configuration for the HTTP transport.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"gte=1,lte=65535"`
}

// Notification configures push channels and delivery gating.
type Notification struct {
	Enable            bool       `yaml:"enable"`
	MaxAccounts       int        `yaml:"max_accounts" validate:"gte=1"`
	OncePerDay        bool       `yaml:"once_per_day"`
	PushWindow        PushWindow `yaml:"push_window"`
	MessageBatchSize  int        `yaml:"message_batch_size" validate:"gte=1"`
	BatchSendInterval int        `yaml:"batch_send_interval" validate:"gte=0"` // milliseconds
	Channels          Channels   `yaml:"channels"`
}

// PushWindow bounds realtime pushes to a daily time range. The range may
// cross midnight. Empty bounds disable the check.
type PushWindow struct {
	Start string `yaml:"start" validate:"omitempty,len=5"`
	End   string `yaml:"end" validate:"omitempty,len=5"`
}

// Channels holds per-channel credentials. Multi-account values are
// semicolon-separated.
type Channels struct {
	FeishuURL        string `yaml:"feishu_url"`
	DingtalkURL      string `yaml:"dingtalk_url"`
	WeworkURL        string `yaml:"wework_url"`
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
	NtfyServerURL    string `yaml:"ntfy_server_url"`
	NtfyTopic        string `yaml:"ntfy_topic"`
	NtfyToken        string `yaml:"ntfy_token"`
}

// Platform is one monitored hot board.
type Platform struct {
	ID   string `yaml:"id" validate:"required"`
	Name string `yaml:"name"`
}

// ---------------------------------------------------------------------------
// Defaults and loading
// ---------------------------------------------------------------------------

// Default returns the built-in configuration. Load layers the YAML file and
// environment overrides on top of it.
func Default() *Config {
	return &Config{
		App: App{
			Timezone:  "Asia/Shanghai",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Crawler: Crawler{
			BaseURL:         "https://newsnow.busiyi.world/api/s",
			RequestInterval: 100,
			EnableCrawler:   true,
			DefaultProxy:    "http://127.0.0.1:10086",
		},
		Report: Report{
			Mode:          "daily",
			RankThreshold: 5,
		},
		Weights: Weights{
			Rank:      0.4,
			Frequency: 0.3,
			Hotness:   0.3,
		},
		Keywords: Keywords{
			FrequencyWordsPath: "config/frequency_words.txt",
		},
		Storage: Storage{
			DataDir:       "output",
			RetentionDays: 30,
			EnableTXT:     true,
			EnableHTML:    true,
		},
		Server: Server{
			Host: "0.0.0.0",
			Port: 3333,
		},
		Notification: Notification{
			MaxAccounts:       3,
			OncePerDay:        true,
			MessageBatchSize:  4000,
			BatchSendInterval: 1000,
		},
		Platforms: []Platform{
			{ID: "toutiao", Name: "今日头条"},
			{ID: "baidu", Name: "百度热搜"},
			{ID: "wallstreetcn-hot", Name: "华尔街见闻"},
			{ID: "thepaper", Name: "澎湃新闻"},
			{ID: "bilibili-hot-search", Name: "B站热搜"},
			{ID: "cls-hot", Name: "财联社热门"},
			{ID: "ifeng", Name: "凤凰网"},
			{ID: "tieba", Name: "贴吧"},
			{ID: "weibo", Name: "微博"},
			{ID: "douyin", Name: "抖音"},
			{ID: "zhihu", Name: "知乎"},
		},
	}
}

// Load reads the YAML configuration file at the given path over the built-in
// defaults, applies environment variable overrides, resolves the storage
// backend and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := finalize(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load except that a missing file is not an
// error: the built-in defaults apply, still subject to environment
// overrides and validation. The tool server uses this so it can run
// against a bare data directory.
func LoadOrDefault(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := finalize(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func finalize(cfg *Config) error {
	applyEnvOverrides(cfg)

	// The remote backend activates when credentials are complete and no
	// explicit backend was chosen.
	if cfg.Storage.Backend == "" {
		if cfg.HasRemote() {
			cfg.Storage.Backend = "remote"
		} else {
			cfg.Storage.Backend = "local"
		}
	}

	if err := Validator().Struct(cfg); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

// HasRemote reports whether the S3 credential set is complete.
func (c *Config) HasRemote() bool {
	r := c.Remote
	return r.EndpointURL != "" && r.Bucket != "" && r.AccessKeyID != "" && r.SecretAccessKey != ""
}

// PlatformIDs returns the configured platform ids in order.
func (c *Config) PlatformIDs() []string {
	ids := make([]string, 0, len(c.Platforms))
	for _, p := range c.Platforms {
		ids = append(ids, p.ID)
	}
	return ids
}

// PlatformNames returns the id → display name map. Platforms without a name
// map to their id.
func (c *Config) PlatformNames() map[string]string {
	names := make(map[string]string, len(c.Platforms))
	for _, p := range c.Platforms {
		if p.Name != "" {
			names[p.ID] = p.Name
		} else {
			names[p.ID] = p.ID
		}
	}
	return names
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRENDRADAR_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}

	if v := os.Getenv("STORAGE_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Storage.RetentionDays = n
		}
	}

	if v := os.Getenv("FREQUENCY_WORDS_PATH"); v != "" {
		cfg.Keywords.FrequencyWordsPath = v
	}

	if v := os.Getenv("S3_ENDPOINT_URL"); v != "" {
		cfg.Remote.EndpointURL = v
	}
	if v := os.Getenv("S3_BUCKET_NAME"); v != "" {
		cfg.Remote.Bucket = v
	}
	if v := os.Getenv("S3_ACCESS_KEY_ID"); v != "" {
		cfg.Remote.AccessKeyID = v
	}
	if v := os.Getenv("S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.Remote.SecretAccessKey = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.Remote.Region = v
	}

	if v := os.Getenv("FEISHU_WEBHOOK_URL"); v != "" {
		cfg.Notification.Channels.FeishuURL = v
	}
	if v := os.Getenv("DINGTALK_WEBHOOK_URL"); v != "" {
		cfg.Notification.Channels.DingtalkURL = v
	}
	if v := os.Getenv("WEWORK_WEBHOOK_URL"); v != "" {
		cfg.Notification.Channels.WeworkURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notification.Channels.TelegramBotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notification.Channels.TelegramChatID = v
	}
	if v := os.Getenv("NTFY_TOPIC"); v != "" {
		cfg.Notification.Channels.NtfyTopic = v
	}
	if v := os.Getenv("NTFY_TOKEN"); v != "" {
		cfg.Notification.Channels.NtfyToken = v
	}
}
