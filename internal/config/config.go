package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	TraceStdout  bool   `yaml:"trace_stdout"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Inference   InferenceConfig `yaml:"inference"`
	Playback    PlaybackConfig  `yaml:"playback"`
	Archive     ArchiveConfig   `yaml:"archive"`
	History     HistoryConfig   `yaml:"history"`
	Bus         BusConfig       `yaml:"bus"`
}

// Model is one entry of the voice fallback list.
type Model struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
}

type InferenceConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Models         []Model       `yaml:"models"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxAttempts    int           `yaml:"max_attempts"`
	StuckThreshold int           `yaml:"stuck_threshold"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type PlaybackConfig struct {
	Backends   []string `yaml:"backends"` // mixer, buffer, command, system
	Command    string   `yaml:"command"`
	SampleRate int      `yaml:"sample_rate"`
	BufferMS   int      `yaml:"buffer_ms"`
}

type ArchiveConfig struct {
	Directory      string `yaml:"directory"`
	TranscriptFile string `yaml:"transcript_file"`
	ConvertCommand string `yaml:"convert_command"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
	SubjectPrefix  string   `yaml:"subject_prefix"`
}

const DefaultConvertCommand = "ffmpeg -y -loglevel error -i {input} -ac 1 -ar 22050 -sample_fmt s16 {output}"

func Default() Config {
	return Config{
		ServiceName: "quoteplay",
		Environment: "development",
		HTTP: HTTPConfig{
			Enabled: false,
			Bind:    "127.0.0.1",
			Port:    8089,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Inference: InferenceConfig{
			BaseURL: "https://api.fakeyou.com",
			Models: []Model{
				{ID: "weight_tqpbyrp6t9rmdez9c38zzvp0z", DisplayName: "Yoda"},
			},
			PollInterval:   2 * time.Second,
			MaxAttempts:    30,
			StuckThreshold: 10,
			RequestTimeout: 30 * time.Second,
		},
		Playback: PlaybackConfig{
			Backends:   []string{"mixer", "buffer", "command", "system"},
			SampleRate: 44100,
			BufferMS:   100,
		},
		Archive: ArchiveConfig{
			Directory:      "./samples",
			TranscriptFile: "transcript.txt",
			ConvertCommand: DefaultConvertCommand,
		},
		History: HistoryConfig{
			Path:          "./data/quoteplay.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxSessions:   1000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "quoteplay",
		},
	}
}

// Load returns defaults overlaid with the YAML file at path (if any) and the
// QUOTEPLAY_* environment.
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
	overrideString(&cfg.ServiceName, "QUOTEPLAY_SERVICE_NAME")
	overrideString(&cfg.Environment, "QUOTEPLAY_ENVIRONMENT")
	overrideBool(&cfg.HTTP.Enabled, "QUOTEPLAY_HTTP_ENABLED")
	overrideString(&cfg.HTTP.Bind, "QUOTEPLAY_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "QUOTEPLAY_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "QUOTEPLAY_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "QUOTEPLAY_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "QUOTEPLAY_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.TraceStdout, "QUOTEPLAY_TELEMETRY_TRACE_STDOUT")
	overrideString(&cfg.Inference.BaseURL, "QUOTEPLAY_INFERENCE_BASE_URL")
	overrideString(&cfg.Inference.APIKey, "QUOTEPLAY_INFERENCE_API_KEY")
	overrideModels(&cfg.Inference.Models, "QUOTEPLAY_INFERENCE_MODELS")
	overrideDuration(&cfg.Inference.PollInterval, "QUOTEPLAY_INFERENCE_POLL_INTERVAL")
	overrideInt(&cfg.Inference.MaxAttempts, "QUOTEPLAY_INFERENCE_MAX_ATTEMPTS")
	overrideInt(&cfg.Inference.StuckThreshold, "QUOTEPLAY_INFERENCE_STUCK_THRESHOLD")
	overrideDuration(&cfg.Inference.RequestTimeout, "QUOTEPLAY_INFERENCE_REQUEST_TIMEOUT")
	overrideStringSlice(&cfg.Playback.Backends, "QUOTEPLAY_PLAYBACK_BACKENDS")
	overrideString(&cfg.Playback.Command, "QUOTEPLAY_PLAYBACK_COMMAND")
	overrideInt(&cfg.Playback.SampleRate, "QUOTEPLAY_PLAYBACK_SAMPLE_RATE")
	overrideInt(&cfg.Playback.BufferMS, "QUOTEPLAY_PLAYBACK_BUFFER_MS")
	overrideString(&cfg.Archive.Directory, "QUOTEPLAY_ARCHIVE_DIRECTORY")
	overrideString(&cfg.Archive.TranscriptFile, "QUOTEPLAY_ARCHIVE_TRANSCRIPT_FILE")
	overrideString(&cfg.Archive.ConvertCommand, "QUOTEPLAY_ARCHIVE_CONVERT_COMMAND")
	overrideString(&cfg.History.Path, "QUOTEPLAY_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "QUOTEPLAY_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "QUOTEPLAY_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxSessions, "QUOTEPLAY_HISTORY_MAX_SESSIONS")
	overrideBool(&cfg.History.VacuumOnStart, "QUOTEPLAY_HISTORY_VACUUM_ON_START")
	overrideBool(&cfg.Bus.Enabled, "QUOTEPLAY_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "QUOTEPLAY_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "QUOTEPLAY_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "QUOTEPLAY_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "QUOTEPLAY_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "QUOTEPLAY_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "QUOTEPLAY_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "QUOTEPLAY_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "QUOTEPLAY_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Bus.SubjectPrefix, "QUOTEPLAY_BUS_SUBJECT_PREFIX")
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

func overrideDuration(target *time.Duration, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if trimmed := splitList(value); len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// overrideModels reads "id=Display Name,id2" pairs; the display name
// defaults to the id.
func overrideModels(target *[]Model, envKey string) {
	value, ok := os.LookupEnv(envKey)
	if !ok {
		return
	}
	var models []Model
	for _, entry := range splitList(value) {
		id, name, found := strings.Cut(entry, "=")
		id = strings.TrimSpace(id)
		name = strings.TrimSpace(name)
		if id == "" {
			continue
		}
		if !found || name == "" {
			name = id
		}
		models = append(models, Model{ID: id, DisplayName: name})
	}
	if len(models) > 0 {
		*target = models
	}
}

func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Enabled && (cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	if err := validateInference(cfg.Inference); err != nil {
		return err
	}
	if err := validatePlayback(cfg.Playback); err != nil {
		return err
	}
	if cfg.Archive.Directory == "" {
		return errors.New("archive.directory must not be empty")
	}
	if cfg.Archive.TranscriptFile == "" {
		return errors.New("archive.transcript_file must not be empty")
	}
	if cfg.Archive.ConvertCommand == "" {
		return errors.New("archive.convert_command must not be empty")
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("history.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.History.RetentionMode != "ephemeral" && cfg.History.Path == "" {
		return errors.New("history.path must not be empty unless retention_mode=ephemeral")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.SubjectPrefix == "" {
			return errors.New("bus.subject_prefix must not be empty")
		}
	}
	return nil
}

func validateInference(cfg InferenceConfig) error {
	if cfg.BaseURL == "" {
		return errors.New("inference.base_url must not be empty")
	}
	if len(cfg.Models) == 0 {
		return errors.New("inference.models must not be empty")
	}
	for i, m := range cfg.Models {
		if m.ID == "" {
			return fmt.Errorf("inference.models[%d].id must not be empty", i)
		}
	}
	if cfg.PollInterval < 0 {
		return errors.New("inference.poll_interval must be >= 0")
	}
	if cfg.MaxAttempts <= 0 {
		return errors.New("inference.max_attempts must be >= 1")
	}
	if cfg.StuckThreshold < 0 {
		return errors.New("inference.stuck_threshold must be >= 0")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("inference.request_timeout must be positive")
	}
	return nil
}

func validatePlayback(cfg PlaybackConfig) error {
	if len(cfg.Backends) == 0 {
		return errors.New("playback.backends must not be empty")
	}
	for _, b := range cfg.Backends {
		switch b {
		case "mixer", "buffer", "command", "system":
		default:
			return fmt.Errorf("playback.backends: unknown backend %q (want mixer|buffer|command|system)", b)
		}
	}
	if cfg.SampleRate <= 0 {
		return errors.New("playback.sample_rate must be positive")
	}
	if cfg.BufferMS <= 0 {
		return errors.New("playback.buffer_ms must be positive")
	}
	return nil
}

// Name returns the display name, or the id when none is configured.
func (m Model) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.ID
}
