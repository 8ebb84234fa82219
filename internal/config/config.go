package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConns       int    `yaml:"max_conns"`
	QueryTimeoutMS int    `yaml:"query_timeout_ms"`
}

type MatcherConfig struct {
	Strategy  string  `yaml:"strategy"` // lexical, embedding, llm
	Threshold float64 `yaml:"threshold"`
}

type EmbeddingConfig struct {
	Mode        string `yaml:"mode"` // mock, ollama
	Endpoint    string `yaml:"endpoint"`
	Model       string `yaml:"model"`
	MaxInflight int    `yaml:"max_inflight"`
}

type LLMConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Mode        string  `yaml:"mode"` // mock, ollama, exec
	Endpoint    string  `yaml:"endpoint"`
	Command     string  `yaml:"command"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type STTConfig struct {
	Mode     string `yaml:"mode"` // mock, exec
	Command  string `yaml:"command"`
	Language string `yaml:"language"`
}

type TTSConfig struct {
	Mode            string `yaml:"mode"` // mock, exec
	Command         string `yaml:"command"`
	Voice           string `yaml:"voice"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	ChunkDurationMS int    `yaml:"chunk_duration_ms"`
}

type AuditConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, persistent
	RetentionDays int    `yaml:"retention_days"`
	MaxEntries    int    `yaml:"max_entries"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type RelayConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Database    DatabaseConfig  `yaml:"database"`
	Matcher     MatcherConfig   `yaml:"matcher"`
	Embedding   EmbeddingConfig `yaml:"embedding"`
	LLM         LLMConfig       `yaml:"llm"`
	STT         STTConfig       `yaml:"stt"`
	TTS         TTSConfig       `yaml:"tts"`
	Audit       AuditConfig     `yaml:"audit"`
	Relay       RelayConfig     `yaml:"relay"`
}

func Default() Config {
	return Config{
		RuntimeName: "askdb-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Database: DatabaseConfig{
			URL:            "postgres://postgres@localhost:5432/askdb",
			MaxConns:       4,
			QueryTimeoutMS: 10000,
		},
		Matcher: MatcherConfig{
			Strategy:  "lexical",
			Threshold: 0.7,
		},
		Embedding: EmbeddingConfig{
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "nomic-embed-text",
			MaxInflight: 2,
		},
		LLM: LLMConfig{
			Enabled:     false,
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3.2:latest",
			MaxTokens:   256,
			Temperature: 0.2,
		},
		STT: STTConfig{
			Mode:     "mock",
			Language: "en",
		},
		TTS: TTSConfig{
			Mode:            "mock",
			Voice:           "en-US",
			SampleRate:      24000,
			Channels:        1,
			ChunkDurationMS: 400,
		},
		Audit: AuditConfig{
			Path:          "./data/askdb-audit.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxEntries:    100000,
		},
		Relay: RelayConfig{
			Enabled: false,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "ASKDB_RUNTIME_NAME")
	overrideString(&cfg.Environment, "ASKDB_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "ASKDB_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "ASKDB_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "ASKDB_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "ASKDB_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "ASKDB_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "ASKDB_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "ASKDB_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "ASKDB_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "ASKDB_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "ASKDB_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "ASKDB_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "ASKDB_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "ASKDB_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "ASKDB_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Database.URL, "ASKDB_DATABASE_URL")
	overrideInt(&cfg.Database.MaxConns, "ASKDB_DATABASE_MAX_CONNS")
	overrideInt(&cfg.Database.QueryTimeoutMS, "ASKDB_DATABASE_QUERY_TIMEOUT_MS")
	overrideString(&cfg.Matcher.Strategy, "ASKDB_MATCHER_STRATEGY")
	overrideFloat(&cfg.Matcher.Threshold, "ASKDB_MATCHER_THRESHOLD")
	overrideString(&cfg.Embedding.Mode, "ASKDB_EMBEDDING_MODE")
	overrideString(&cfg.Embedding.Endpoint, "ASKDB_EMBEDDING_ENDPOINT")
	overrideString(&cfg.Embedding.Model, "ASKDB_EMBEDDING_MODEL")
	overrideInt(&cfg.Embedding.MaxInflight, "ASKDB_EMBEDDING_MAX_INFLIGHT")
	overrideBool(&cfg.LLM.Enabled, "ASKDB_LLM_ENABLED")
	overrideString(&cfg.LLM.Mode, "ASKDB_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "ASKDB_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "ASKDB_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "ASKDB_LLM_MODEL")
	overrideInt(&cfg.LLM.MaxTokens, "ASKDB_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "ASKDB_LLM_TEMPERATURE")
	overrideString(&cfg.STT.Mode, "ASKDB_STT_MODE")
	overrideString(&cfg.STT.Command, "ASKDB_STT_COMMAND")
	overrideString(&cfg.STT.Language, "ASKDB_STT_LANGUAGE")
	overrideString(&cfg.TTS.Mode, "ASKDB_TTS_MODE")
	overrideString(&cfg.TTS.Command, "ASKDB_TTS_COMMAND")
	overrideString(&cfg.TTS.Voice, "ASKDB_TTS_VOICE")
	overrideInt(&cfg.TTS.SampleRate, "ASKDB_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "ASKDB_TTS_CHANNELS")
	overrideInt(&cfg.TTS.ChunkDurationMS, "ASKDB_TTS_CHUNK_DURATION_MS")
	overrideString(&cfg.Audit.Path, "ASKDB_AUDIT_PATH")
	overrideString(&cfg.Audit.RetentionMode, "ASKDB_AUDIT_RETENTION_MODE")
	overrideInt(&cfg.Audit.RetentionDays, "ASKDB_AUDIT_RETENTION_DAYS")
	overrideInt(&cfg.Audit.MaxEntries, "ASKDB_AUDIT_MAX_ENTRIES")
	overrideBool(&cfg.Audit.VacuumOnStart, "ASKDB_AUDIT_VACUUM_ON_START")
	overrideBool(&cfg.Relay.Enabled, "ASKDB_RELAY_ENABLED")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url must not be empty")
	}
	if cfg.Database.MaxConns <= 0 {
		return errors.New("database.max_conns must be >= 1")
	}
	switch cfg.Matcher.Strategy {
	case "lexical", "embedding", "llm":
	default:
		return errors.New("matcher.strategy must be one of lexical|embedding|llm")
	}
	if cfg.Matcher.Threshold < 0 || cfg.Matcher.Threshold > 1 {
		return errors.New("matcher.threshold must be within [0, 1]")
	}
	switch cfg.Embedding.Mode {
	case "mock", "ollama":
	default:
		return errors.New("embedding.mode must be one of mock|ollama")
	}
	if cfg.Matcher.Strategy == "embedding" {
		if cfg.Embedding.Mode == "ollama" && cfg.Embedding.Endpoint == "" {
			return errors.New("embedding.endpoint must be set when mode=ollama")
		}
		if cfg.Embedding.MaxInflight <= 0 {
			return errors.New("embedding.max_inflight must be >= 1")
		}
	}
	if cfg.LLM.Enabled {
		switch cfg.LLM.Mode {
		case "mock", "ollama", "exec":
		default:
			return errors.New("llm.mode must be one of mock|ollama|exec")
		}
		if cfg.LLM.Mode == "ollama" && cfg.LLM.Endpoint == "" {
			return errors.New("llm.endpoint must be set when mode=ollama")
		}
		if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
			return errors.New("llm.command must be set when mode=exec")
		}
		if cfg.LLM.MaxTokens < 0 {
			return errors.New("llm.max_tokens must be >= 0")
		}
	}
	if cfg.Matcher.Strategy == "llm" && !cfg.LLM.Enabled {
		return errors.New("matcher.strategy=llm requires llm.enabled=true")
	}
	switch cfg.STT.Mode {
	case "mock", "exec":
	default:
		return errors.New("stt.mode must be one of mock|exec")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	switch cfg.TTS.Mode {
	case "mock", "exec":
	default:
		return errors.New("tts.mode must be one of mock|exec")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	switch cfg.Audit.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("audit.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.Audit.RetentionMode == "persistent" && cfg.Audit.Path == "" {
		return errors.New("audit.path must not be empty when retention is persistent")
	}
	if cfg.Audit.RetentionDays < 0 {
		return errors.New("audit.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	return nil
}
