package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vinreport.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("TEST_MJ_SECRET", "s3cret")
	path := writeConfig(t, `
http_addr: ":8080"
public_url: "https://vin.example.com"
decode:
  timeout: 5s
mailjet:
  api_key: "key"
  secret_key: "${TEST_MJ_SECRET}"
  sender: "reports@example.com"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.PublicURL != "https://vin.example.com" {
		t.Errorf("unexpected addresses: %+v", cfg)
	}
	if cfg.Mailjet.SecretKey != "s3cret" || !cfg.Mailjet.Enabled() {
		t.Errorf("mailjet = %+v", cfg.Mailjet)
	}
	if cfg.Decode.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Decode.Timeout)
	}
	if cfg.Storage.ReportsDir != "reports" || cfg.GRPCAddr != ":50051" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestValidate_RejectsHalfConfiguredMailjet(t *testing.T) {
	path := writeConfig(t, `
mailjet:
  api_key: "key"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.ApplyEnv(func(string) string { return "" })
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "mailjet") {
		t.Fatalf("expected mailjet validation error, got %v", err)
	}
}

func TestLoad_SenderFromEnvCompletesMailjet(t *testing.T) {
	path := writeConfig(t, `
mailjet:
  api_key: "key"
  secret_key: "secret"
  timeout: 10s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.ApplyEnv(func(k string) string {
		if k == "MJ_SENDER" {
			return "reports@example.com"
		}
		return ""
	})
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !cfg.Mailjet.Enabled() || cfg.Mailjet.Timeout != 10*time.Second {
		t.Errorf("mailjet = %+v", cfg.Mailjet)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":                 "4000",
		"MJ_API_KEY":           "k",
		"MJ_SECRET_KEY":        "s",
		"MJ_SENDER":            "reports@example.com",
		"VINREPORT_PUBLIC_URL": "https://yourapp.example.com",
		"VINREPORT_NATS_URL":   "nats://localhost:4222",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.HTTPAddr != ":4000" {
		t.Errorf("http addr = %q", cfg.HTTPAddr)
	}
	if !cfg.Mailjet.Enabled() {
		t.Errorf("mailjet should be enabled: %+v", cfg.Mailjet)
	}
	if cfg.PublicURL != "https://yourapp.example.com" || cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("cfg = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
