// Package config provides configuration for the athena server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JollyOmnivore/Athena-AI/internal/adapter/runclient"
	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

// EnvPrefix namespaces every environment override, e.g. ATHENA_POLL_INTERVAL.
const EnvPrefix = "ATHENA"

// Config holds the server configuration.
type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Database   DatabaseConfig            `mapstructure:"database"`
	RunClient  RunClientConfig           `mapstructure:"runclient"`
	OpenAI     OpenAIConfig              `mapstructure:"openai"`
	Poll       PollSettings              `mapstructure:"poll"`
	Auth       AuthConfig                `mapstructure:"auth"`
	Assistants []domain.AssistantProfile `mapstructure:"assistants"`
	Log        LogConfig                 `mapstructure:"log"`
	Shutdown   ShutdownConfig            `mapstructure:"shutdown"`
}

type ServerConfig struct {
	HTTPPort int `mapstructure:"http_port"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RunClientConfig selects the run service backend.
type RunClientConfig struct {
	Mode string `mapstructure:"mode"` // "openai" or "mock"
	// MockPolls is how many polls a mock run stays in progress.
	MockPolls int `mapstructure:"mock_polls"`
}

type OpenAIConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PollSettings are the deployment defaults for every turn's poll loop.
type PollSettings struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
}

type AuthConfig struct {
	AllowedEmails []string `mapstructure:"allowed_emails"`
	FacultyEmails []string `mapstructure:"faculty_emails"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// legacyAssistants are the profiles configured through OPENAI_ASSISTANT_<n>_ID.
var legacyAssistants = []struct {
	env        string
	name       string
	restricted bool
}{
	{"OPENAI_ASSISTANT_1_ID", "CS490 Neural Networks", false},
	{"OPENAI_ASSISTANT_2_ID", "Assistant 2", false},
	{"OPENAI_ASSISTANT_3_ID", "Writing Assistant", false},
	{"OPENAI_ASSISTANT_4_ID", "Vanilla ChatGPT4o (Faculty Only)", true},
}

// Load reads configuration from an optional YAML file and the environment.
// An empty path falls back to $ATHENA_CONFIG and then to config.yaml in the
// working directory or /etc/athena; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/athena")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names used by earlier deployments.
	_ = v.BindEnv("openai.api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("auth.allowed_emails", EnvPrefix+"_AUTH_ALLOWED_EMAILS", "ALLOWED_EMAILS")
	_ = v.BindEnv("auth.faculty_emails", EnvPrefix+"_AUTH_FACULTY_EMAILS", "FACULTY_EMAILS")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if len(cfg.Assistants) == 0 {
		cfg.Assistants = assistantsFromEnv(os.LookupEnv)
	}
	cfg.Auth.AllowedEmails = normalizeEmails(cfg.Auth.AllowedEmails)
	cfg.Auth.FacultyEmails = normalizeEmails(cfg.Auth.FacultyEmails)
	cfg.Assistants = dropEmptyProfiles(cfg.Assistants)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("database.url", "file:athena.db?cache=shared&mode=rwc")

	v.SetDefault("runclient.mode", runclient.ModeOpenAI)
	v.SetDefault("runclient.mock_polls", 2)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.request_timeout", "30s")

	def := domain.DefaultPollConfig()
	v.SetDefault("poll.interval", def.Interval.String())
	v.SetDefault("poll.max_attempts", def.MaxAttempts)
	v.SetDefault("poll.max_duration", def.MaxDuration.String())

	v.SetDefault("auth.allowed_emails", []string{})
	v.SetDefault("auth.faculty_emails", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("shutdown.timeout", "10s")
}

// Validate rejects settings no turn could run with.
func (c *Config) Validate() error {
	if err := c.PollConfig().Validate(); err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	switch c.RunClient.Mode {
	case runclient.ModeOpenAI:
		if c.OpenAI.APIKey == "" {
			return &domain.ConfigError{Field: "openai.api_key", Err: errors.New("required in openai mode")}
		}
	case runclient.ModeMock:
	default:
		return &domain.ConfigError{Field: "runclient.mode", Err: fmt.Errorf("unknown mode %q", c.RunClient.Mode)}
	}
	if c.Server.HTTPPort <= 0 {
		return &domain.ConfigError{Field: "server.http_port", Err: errors.New("must be positive")}
	}
	seen := make(map[string]bool, len(c.Assistants))
	for _, p := range c.Assistants {
		if seen[p.ID] {
			return &domain.ConfigError{Field: "assistants", Err: fmt.Errorf("duplicate id %q", p.ID)}
		}
		seen[p.ID] = true
	}
	return nil
}

// PollConfig is the poll bound handed to each turn.
func (c *Config) PollConfig() domain.PollConfig {
	return domain.PollConfig{
		Interval:    c.Poll.Interval,
		MaxAttempts: c.Poll.MaxAttempts,
		MaxDuration: c.Poll.MaxDuration,
	}
}

// RunClientOptions maps the run client settings for runclient.New.
func (c *Config) RunClientOptions() runclient.Options {
	return runclient.Options{
		Mode:           c.RunClient.Mode,
		APIKey:         c.OpenAI.APIKey,
		BaseURL:        c.OpenAI.BaseURL,
		RequestTimeout: c.OpenAI.RequestTimeout,
		MockPolls:      c.RunClient.MockPolls,
	}
}

func assistantsFromEnv(lookup func(string) (string, bool)) []domain.AssistantProfile {
	var out []domain.AssistantProfile
	for _, a := range legacyAssistants {
		id, ok := lookup(a.env)
		if !ok || strings.TrimSpace(id) == "" {
			continue
		}
		out = append(out, domain.AssistantProfile{ID: strings.TrimSpace(id), Name: a.name, Restricted: a.restricted})
	}
	return out
}

func dropEmptyProfiles(in []domain.AssistantProfile) []domain.AssistantProfile {
	out := make([]domain.AssistantProfile, 0, len(in))
	for _, p := range in {
		if p.ID == "" {
			continue
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		out = append(out, p)
	}
	return out
}

// normalizeEmails also splits entries, since a comma separated env value may
// decode as a single element.
func normalizeEmails(in []string) []string {
	out := make([]string, 0, len(in))
	for _, entry := range in {
		for _, e := range strings.Split(entry, ",") {
			e = strings.ToLower(strings.TrimSpace(e))
			if e != "" {
				out = append(out, e)
			}
		}
	}
	return out
}
