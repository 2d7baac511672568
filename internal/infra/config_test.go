package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("PROVIDER_ORDER", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("POLL_BUDGET", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBaseURL != "http://localhost:8080/static" {
		t.Fatalf("StorageBaseURL mismatch: got %q", cfg.StorageBaseURL)
	}
	if len(cfg.ProviderOrder) != 3 || cfg.ProviderOrder[0] != "vertex-veo3" || cfg.ProviderOrder[2] != "runway" {
		t.Fatalf("ProviderOrder mismatch: %#v", cfg.ProviderOrder)
	}
	if cfg.PollInterval != 10*time.Second || cfg.PollBudget != 5*time.Minute {
		t.Fatalf("polling defaults mismatch: %s / %s", cfg.PollInterval, cfg.PollBudget)
	}
	if cfg.ProviderRequestTimeout != 30*time.Second {
		t.Fatalf("ProviderRequestTimeout = %s", cfg.ProviderRequestTimeout)
	}
	if cfg.ProviderRetries != 2 || cfg.ProviderRetryBaseDelay != time.Second {
		t.Fatalf("retry defaults mismatch: %d / %s", cfg.ProviderRetries, cfg.ProviderRetryBaseDelay)
	}
}

func TestLoadConfigInheritsPortInStorageBaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigParsesListsAndDurations(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PROVIDER_ORDER", " runway , vertex-veo2,")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("POLL_BUDGET", "120")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.ProviderOrder) != 2 || cfg.ProviderOrder[0] != "runway" || cfg.ProviderOrder[1] != "vertex-veo2" {
		t.Fatalf("ProviderOrder mismatch: %#v", cfg.ProviderOrder)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("KafkaBrokers mismatch: %#v", cfg.KafkaBrokers)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("PollInterval = %s", cfg.PollInterval)
	}
	if cfg.PollBudget != 2*time.Minute {
		t.Fatalf("PollBudget = %s", cfg.PollBudget)
	}
}

func TestVertexCredentialsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sa.json")
	if err := os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := &Config{VertexCredentialsFile: path}
	if !cfg.HasVertexCredentials() {
		t.Fatal("expected credentials to be configured")
	}
	data, err := cfg.VertexCredentials()
	if err != nil {
		t.Fatalf("VertexCredentials: %v", err)
	}
	if string(data) != `{"type":"service_account"}` {
		t.Fatalf("unexpected credentials %q", data)
	}

	inline := &Config{VertexCredentialsJSON: `{"inline":true}`, VertexCredentialsFile: path}
	data, err = inline.VertexCredentials()
	if err != nil || string(data) != `{"inline":true}` {
		t.Fatalf("inline credentials should win, got %q err %v", data, err)
	}
}
