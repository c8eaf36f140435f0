package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr    string        `yaml:"http_addr"`
	GRPCAddr    string        `yaml:"grpc_addr"`
	MetricsAddr string        `yaml:"metrics_addr"`
	PublicURL   string        `yaml:"public_url"`
	LogLevel    string        `yaml:"log_level"`
	Decode      DecodeConfig  `yaml:"decode"`
	Storage     StorageConfig `yaml:"storage"`
	Mailjet     MailjetConfig `yaml:"mailjet"`
	NATS        NATSConfig    `yaml:"nats"`
	Tracing     TracingConfig `yaml:"tracing"`
}

type DecodeConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	ReportsDir string `yaml:"reports_dir"`
	IndexPath  string `yaml:"index_path"`
}

type MailjetConfig struct {
	APIKey     string        `yaml:"api_key"`
	SecretKey  string        `yaml:"secret_key"`
	Sender     string        `yaml:"sender"`
	SenderName string        `yaml:"sender_name"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Enabled reports whether enough is configured to send mail.
func (m MailjetConfig) Enabled() bool {
	return m.APIKey != "" && m.SecretKey != "" && m.Sender != ""
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type TracingConfig struct {
	Stdout bool `yaml:"stdout"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		HTTPAddr:    ":3000",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		LogLevel:    "info",
		Decode: DecodeConfig{
			BaseURL: "https://vpic.nhtsa.dot.gov/api/vehicles",
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			ReportsDir: "reports",
			IndexPath:  "data/index",
		},
		Mailjet: MailjetConfig{
			SenderName: "VIN Reports",
			Timeout:    30 * time.Second,
		},
	}
}

// Load reads a YAML file on top of Default. ${VAR} references are expanded
// from the environment before parsing. The result is not validated; call
// Validate after ApplyEnv.
func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides file values with the process environment. The
// MJ_* and PORT names match the hosted deployment's variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if port := getenv("PORT"); port != "" {
		c.HTTPAddr = ":" + strings.TrimPrefix(port, ":")
	}
	c.HTTPAddr = firstNonEmpty(getenv("VINREPORT_HTTP_ADDR"), c.HTTPAddr)
	c.GRPCAddr = firstNonEmpty(getenv("VINREPORT_GRPC_ADDR"), c.GRPCAddr)
	c.MetricsAddr = firstNonEmpty(getenv("VINREPORT_METRICS_ADDR"), c.MetricsAddr)
	c.PublicURL = firstNonEmpty(getenv("VINREPORT_PUBLIC_URL"), c.PublicURL)
	c.LogLevel = firstNonEmpty(getenv("VINREPORT_LOG_LEVEL"), c.LogLevel)
	c.Decode.BaseURL = firstNonEmpty(getenv("VINREPORT_DECODE_URL"), c.Decode.BaseURL)
	c.Storage.ReportsDir = firstNonEmpty(getenv("VINREPORT_REPORTS_DIR"), c.Storage.ReportsDir)
	c.Storage.IndexPath = firstNonEmpty(getenv("VINREPORT_INDEX_PATH"), c.Storage.IndexPath)
	c.Mailjet.APIKey = firstNonEmpty(getenv("MJ_API_KEY"), c.Mailjet.APIKey)
	c.Mailjet.SecretKey = firstNonEmpty(getenv("MJ_SECRET_KEY"), c.Mailjet.SecretKey)
	c.Mailjet.Sender = firstNonEmpty(getenv("MJ_SENDER"), c.Mailjet.Sender)
	c.NATS.URL = firstNonEmpty(getenv("VINREPORT_NATS_URL"), c.NATS.URL)
}

func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.Storage.ReportsDir == "" {
		return fmt.Errorf("storage.reports_dir is required")
	}
	if c.Decode.BaseURL == "" {
		return fmt.Errorf("decode.base_url is required")
	}
	if c.Decode.Timeout < 0 {
		return fmt.Errorf("decode.timeout must be non-negative")
	}

	mj := c.Mailjet
	if mj.Timeout < 0 {
		return fmt.Errorf("mailjet.timeout must be non-negative")
	}
	if (mj.APIKey != "" || mj.SecretKey != "") && !mj.Enabled() {
		return fmt.Errorf("mailjet.api_key, mailjet.secret_key and mailjet.sender must be set together")
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
