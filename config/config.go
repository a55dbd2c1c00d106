package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/trevnoctilla/toolprobe/pkg/logger"
)

// Config is the typed process configuration
type Config struct {
	Server   ServerConfig
	Browser  BrowserConfig
	Docker   DockerConfig
	Artifact ArtifactConfig
	Catalog  CatalogConfig
	Fixture  FixtureConfig
	Schedule ScheduleConfig
	Notify   NotifyConfig
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Port int
}

// BrowserConfig selects and tunes the target driver
type BrowserConfig struct {
	// Driver is "playwright" or "chromedp"
	Driver            string
	Endpoint          string
	Headless          bool
	ConnectRetries    int
	RetryDelay        time.Duration
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	ViewportWidth     int
	ViewportHeight    int
	UserAgent         string
	// Launch starts a playwright run-server container when no endpoint is set
	Launch            bool
	Image             string
	PlaywrightVersion string
}

// CatalogConfig locates the tool catalog
type CatalogConfig struct {
	Path    string
	BaseURL string
	// Concurrency bounds concurrent tool runs; 0 is unbounded
	Concurrency int
}

// FixtureConfig anchors fixture candidates
type FixtureConfig struct {
	BaseDir string
	TempDir string
}

// ScheduleConfig drives periodic runs
type ScheduleConfig struct {
	// Runs is a cron spec for running the whole catalog; empty disables it
	Runs            string
	ArtifactReclaim string
	ArtifactMaxAge  time.Duration
}

// NotifyConfig configures the all-pass notifier
type NotifyConfig struct {
	Recipients []string
	SMTP       SMTPConfig
	ChatURLs   []string
	Subject    string
	TextBody   string
	HTMLBody   string
}

// SMTPConfig addresses the mail relay
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

var (
	v        *viper.Viper
	instance *Config
	once     sync.Once
	initErr  error
)

func init() {
	v = viper.New()

	v.SetDefault("server.port", 28090)
	v.SetDefault("browser.driver", "playwright")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.connectRetries", 3)
	v.SetDefault("browser.retryDelay", "4s")
	v.SetDefault("browser.navigationTimeout", "30s")
	v.SetDefault("browser.actionTimeout", "5s")
	v.SetDefault("browser.viewportWidth", 1280)
	v.SetDefault("browser.viewportHeight", 900)
	v.SetDefault("browser.image", "mcr.microsoft.com/playwright:v1.51.0-noble")
	v.SetDefault("browser.playwrightVersion", "1.51.0")
	v.SetDefault("catalog.baseURL", "http://localhost:3000")
	v.SetDefault("catalog.concurrency", 2)
	v.SetDefault("schedule.artifactReclaim", "0 0 * * *")
	v.SetDefault("schedule.artifactMaxAge", "336h")
	v.SetDefault("notify.smtp.port", 587)
	v.SetDefault("notify.smtp.fromName", "toolprobe")

	v.SetEnvPrefix("TOOLPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("docker.host", "DOCKER_HOST")
	_ = v.BindEnv("browser.endpoint", "PLAYWRIGHT_ENDPOINT", "TOOLPROBE_BROWSER_ENDPOINT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range []string{".", "$HOME/.toolprobe", "/etc/toolprobe"} {
		v.AddConfigPath(os.ExpandEnv(path))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
	}
}

// Viper exposes the underlying viper instance so commands can bind flags
func Viper() *viper.Viper {
	return v
}

// ReadFile loads an explicit config file over the defaults. It must run
// before the first GetInstance.
func ReadFile(path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

// GetInstance builds the configuration on first use and returns it
func GetInstance() *Config {
	once.Do(func() {
		instance, initErr = load(logger.New())
	})
	if initErr != nil {
		logger.New().Fatal("Failed to load configuration: %v", initErr)
	}
	return instance
}

func load(log *logger.Logger) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{Port: v.GetInt("server.port")},
		Browser: BrowserConfig{
			Driver:            v.GetString("browser.driver"),
			Endpoint:          v.GetString("browser.endpoint"),
			Headless:          v.GetBool("browser.headless"),
			ConnectRetries:    v.GetInt("browser.connectRetries"),
			RetryDelay:        v.GetDuration("browser.retryDelay"),
			NavigationTimeout: v.GetDuration("browser.navigationTimeout"),
			ActionTimeout:     v.GetDuration("browser.actionTimeout"),
			ViewportWidth:     v.GetInt("browser.viewportWidth"),
			ViewportHeight:    v.GetInt("browser.viewportHeight"),
			UserAgent:         v.GetString("browser.userAgent"),
			Launch:            v.GetBool("browser.launch"),
			Image:             v.GetString("browser.image"),
			PlaywrightVersion: v.GetString("browser.playwrightVersion"),
		},
		Catalog: CatalogConfig{
			Path:        v.GetString("catalog.path"),
			BaseURL:     v.GetString("catalog.baseURL"),
			Concurrency: v.GetInt("catalog.concurrency"),
		},
		Fixture: FixtureConfig{
			BaseDir: v.GetString("fixture.baseDir"),
			TempDir: v.GetString("fixture.tempDir"),
		},
		Schedule: ScheduleConfig{
			Runs:            v.GetString("schedule.runs"),
			ArtifactReclaim: v.GetString("schedule.artifactReclaim"),
			ArtifactMaxAge:  v.GetDuration("schedule.artifactMaxAge"),
		},
		Notify: NotifyConfig{
			Recipients: v.GetStringSlice("notify.recipients"),
			ChatURLs:   v.GetStringSlice("notify.chatURLs"),
			Subject:    v.GetString("notify.subject"),
			TextBody:   v.GetString("notify.textBody"),
			HTMLBody:   v.GetString("notify.htmlBody"),
			SMTP: SMTPConfig{
				Host:     v.GetString("notify.smtp.host"),
				Port:     v.GetInt("notify.smtp.port"),
				Username: v.GetString("notify.smtp.username"),
				Password: v.GetString("notify.smtp.password"),
				From:     v.GetString("notify.smtp.from"),
				FromName: v.GetString("notify.smtp.fromName"),
			},
		},
	}

	switch cfg.Browser.Driver {
	case "playwright", "chromedp":
	default:
		return nil, fmt.Errorf("unsupported browser driver: %s", cfg.Browser.Driver)
	}

	if err := cfg.Artifact.initialize(log); err != nil {
		return nil, err
	}
	if cfg.Browser.Launch && cfg.Browser.Endpoint == "" {
		if err := cfg.Docker.initialize(log); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
