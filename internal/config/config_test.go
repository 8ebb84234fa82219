package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Matcher.Strategy != "lexical" {
		t.Fatalf("expected lexical default strategy, got %q", cfg.Matcher.Strategy)
	}
	if cfg.Matcher.Threshold != 0.7 {
		t.Fatalf("expected default threshold 0.7, got %v", cfg.Matcher.Threshold)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ASKDB_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("ASKDB_BUS_USERNAME", "alice")
	t.Setenv("ASKDB_BUS_PASSWORD", "secret")
	t.Setenv("ASKDB_DATABASE_URL", "postgres://assistant@db:5432/shop")
	t.Setenv("ASKDB_MATCHER_STRATEGY", "embedding")
	t.Setenv("ASKDB_MATCHER_THRESHOLD", "0.85")
	t.Setenv("ASKDB_EMBEDDING_MODE", "ollama")
	t.Setenv("ASKDB_TTS_SAMPLE_RATE", "16000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Database.URL != "postgres://assistant@db:5432/shop" {
		t.Fatalf("expected database url override, got %q", cfg.Database.URL)
	}
	if cfg.Matcher.Strategy != "embedding" {
		t.Fatalf("expected strategy override, got %q", cfg.Matcher.Strategy)
	}
	if cfg.Matcher.Threshold != 0.85 {
		t.Fatalf("expected threshold override, got %v", cfg.Matcher.Threshold)
	}
	if cfg.TTS.SampleRate != 16000 {
		t.Fatalf("expected tts sample rate override, got %d", cfg.TTS.SampleRate)
	}
}

func TestValidateRejectsBadStrategy(t *testing.T) {
	t.Setenv("ASKDB_MATCHER_STRATEGY", "semantic")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown matcher strategy")
	}
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	t.Setenv("ASKDB_MATCHER_THRESHOLD", "1.5")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for threshold outside [0,1]")
	}
}

func TestValidateLLMStrategyRequiresLLM(t *testing.T) {
	t.Setenv("ASKDB_MATCHER_STRATEGY", "llm")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when llm strategy selected without llm enabled")
	}
}
