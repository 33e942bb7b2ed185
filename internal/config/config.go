package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Schedule   string           `yaml:"schedule"`
	RunOnStart bool             `yaml:"run_on_start"`
	ArXiv      ArXivConfig      `yaml:"arxiv"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Publisher  PublisherConfig  `yaml:"publisher"`
}

type ArXivConfig struct {
	Category         string `yaml:"category"`
	LookbackHours    int    `yaml:"lookback_hours"`
	MaxResults       int    `yaml:"max_results"`
	PageSize         int    `yaml:"page_size"`
	PageDelaySeconds int    `yaml:"page_delay_seconds"`
}

type SummarizerConfig struct {
	Type     string `yaml:"type"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	MaxChars int    `yaml:"max_chars"`
}

type PublisherConfig struct {
	Type    string        `yaml:"type"`
	Email   EmailConfig   `yaml:"email"`
	Web     WebConfig     `yaml:"web"`
	Discord DiscordConfig `yaml:"discord"`
}

type EmailConfig struct {
	SMTPHost     string   `yaml:"smtp_host"`
	SMTPPort     int      `yaml:"smtp_port"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	From         string   `yaml:"from"`
	To           []string `yaml:"to"`
	PreviewFile  string   `yaml:"preview_file"`
	InlineImages bool     `yaml:"inline_images"`
}

type WebConfig struct {
	Addr string `yaml:"addr"`
}

type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable
// values. Unset variables expand to the empty string so that validation
// catches missing credentials instead of passing the literal through.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// splitRecipients normalizes a recipient list: entries may themselves be
// comma-separated (the usual shape of a MAIL_TO environment variable), and
// empty entries are dropped.
func splitRecipients(entries []string) []string {
	var out []string
	for _, entry := range entries {
		for _, addr := range strings.Split(entry, ",") {
			addr = strings.TrimSpace(addr)
			if addr != "" {
				out = append(out, addr)
			}
		}
	}
	return out
}

func setDefaults(cfg *Config) {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 7 * * *"
	}
	if cfg.ArXiv.Category == "" {
		cfg.ArXiv.Category = "cs.CR"
	}
	if cfg.ArXiv.LookbackHours == 0 {
		cfg.ArXiv.LookbackHours = 168
	}
	if cfg.ArXiv.MaxResults == 0 {
		cfg.ArXiv.MaxResults = 200
	}
	if cfg.ArXiv.PageSize == 0 {
		cfg.ArXiv.PageSize = 100
	}
	if cfg.ArXiv.PageDelaySeconds == 0 {
		cfg.ArXiv.PageDelaySeconds = 2
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "gemini"
	}
	if cfg.Summarizer.Model == "" {
		cfg.Summarizer.Model = "gemini-2.5-flash"
	}
	if cfg.Summarizer.MaxChars == 0 {
		cfg.Summarizer.MaxChars = 20000
	}
	if cfg.Publisher.Type == "" {
		cfg.Publisher.Type = "email"
	}
	if cfg.Publisher.Web.Addr == "" {
		cfg.Publisher.Web.Addr = ":8080"
	}
	if cfg.Publisher.Email.SMTPPort == 0 {
		cfg.Publisher.Email.SMTPPort = 587
	}
	if cfg.Publisher.Email.PreviewFile == "" {
		cfg.Publisher.Email.PreviewFile = "arxiv_daily.html"
	}
	cfg.Publisher.Email.To = splitRecipients(cfg.Publisher.Email.To)
	if cfg.Publisher.Email.From == "" {
		cfg.Publisher.Email.From = cfg.Publisher.Email.Username
	}
	if len(cfg.Publisher.Email.To) == 0 && cfg.Publisher.Email.Username != "" {
		cfg.Publisher.Email.To = []string{cfg.Publisher.Email.Username}
	}
}

func validate(cfg *Config) error {
	if cfg.ArXiv.Category == "" {
		return fmt.Errorf("config: arxiv.category is required")
	}
	if cfg.ArXiv.LookbackHours <= 0 {
		return fmt.Errorf("config: arxiv.lookback_hours must be positive, got %d", cfg.ArXiv.LookbackHours)
	}
	if cfg.ArXiv.MaxResults <= 0 {
		return fmt.Errorf("config: arxiv.max_results must be positive, got %d", cfg.ArXiv.MaxResults)
	}
	if cfg.ArXiv.PageSize <= 0 {
		return fmt.Errorf("config: arxiv.page_size must be positive, got %d", cfg.ArXiv.PageSize)
	}
	if cfg.Summarizer.Type != "gemini" {
		return fmt.Errorf("config: unsupported summarizer type %q (supported: gemini)", cfg.Summarizer.Type)
	}
	if cfg.Summarizer.APIKey == "" {
		return fmt.Errorf("config: summarizer.api_key is required (set GOOGLE_API_KEY env var)")
	}
	switch cfg.Publisher.Type {
	case "stdout", "email", "web", "discord":
	default:
		return fmt.Errorf("config: unsupported publisher type %q (supported: stdout, email, web, discord)", cfg.Publisher.Type)
	}
	if cfg.Publisher.Type == "discord" {
		if cfg.Publisher.Discord.WebhookURL == "" {
			return fmt.Errorf("config: publisher.discord.webhook_url is required for discord publisher")
		}
	}
	if cfg.Publisher.Type == "email" {
		if cfg.Publisher.Email.SMTPHost == "" {
			return fmt.Errorf("config: publisher.email.smtp_host is required for email publisher")
		}
		if cfg.Publisher.Email.SMTPPort <= 0 {
			return fmt.Errorf("config: publisher.email.smtp_port must be positive, got %d", cfg.Publisher.Email.SMTPPort)
		}
		if cfg.Publisher.Email.Username == "" {
			return fmt.Errorf("config: publisher.email.username is required for email publisher")
		}
		if cfg.Publisher.Email.Password == "" {
			return fmt.Errorf("config: publisher.email.password is required for email publisher")
		}
		if len(cfg.Publisher.Email.To) == 0 {
			return fmt.Errorf("config: publisher.email.to is required for email publisher")
		}
	}
	return nil
}

// Load reads the config file, expands environment variables, applies defaults,
// and validates the configuration. A .env file next to the working directory
// is loaded into the environment first; its absence is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
