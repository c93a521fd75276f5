// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig
	STT           STTConfig
	SegmentLimits SegmentLimitsConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
	AWS           AWSConfig
	Agent         AgentConfig
	Minutes       MinutesConfig
	Translation   TranslationConfig
	Store         StoreConfig
}

// ServiceConfig holds listener and identity settings.
type ServiceConfig struct {
	Principal string
	GRPCPort  string
	HTTPPort  string
}

// STTConfig selects and tunes the streaming speech-to-text provider.
type STTConfig struct {
	Provider       string // mock, google, aws
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
	SpeakerLabels  bool
	MaxSpeakers    int
}

// SegmentLimitsConfig bounds per-source resource usage.
type SegmentLimitsConfig struct {
	MaxAudioBytes int64
	MaxDuration   time.Duration
	MaxPartials   int
}

// KafkaConfig configures transcript and minutes event publishing.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	TopicMinutes string
	Principal    string
}

// ObservabilityConfig configures logging and the metrics server.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// AWSConfig holds the region and media bucket used by AWS collaborators.
type AWSConfig struct {
	Region      string
	MediaBucket string

	// Batch transcription of uploaded files.
	TranscribeLanguage     string
	TranscribeMaxSpeakers  int
	TranscribePollInterval time.Duration
}

// AgentConfig configures agent runtime invocation.
type AgentConfig struct {
	RuntimeARN     string
	Qualifier      string
	DefaultModelID string
	SystemPrompt   string
}

// MinutesConfig configures minutes generation.
type MinutesConfig struct {
	ModelID          string
	Style            string
	FrequencyMinutes int
	MaxPromptTokens  int
}

// TranslationConfig configures realtime translation.
type TranslationConfig struct {
	ModelIDs        []string
	TargetLanguage  string
	ContextSegments int
}

// StoreConfig configures chat persistence.
type StoreConfig struct {
	DatabaseURL string
}

// Load reads configuration from environment variables, falling back to
// defaults for unset or unparsable values.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-meeting-minutes")

	return &Configuration{
		Service: ServiceConfig{
			Principal: principal,
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
		},
		STT: STTConfig{
			Provider:       envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:   envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:   envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			InterimResults: envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:  envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			SpeakerLabels:  envOrDefaultBool("STT_SPEAKER_LABELS", false),
			MaxSpeakers:    envOrDefaultInt("STT_MAX_SPEAKERS", 4),
		},
		SegmentLimits: SegmentLimitsConfig{
			MaxAudioBytes: envOrDefaultInt64("SEGMENT_MAX_AUDIO_BYTES", 512*1024*1024),
			MaxDuration:   envOrDefaultDuration("SEGMENT_MAX_DURATION", 4*time.Hour),
			MaxPartials:   envOrDefaultInt("SEGMENT_MAX_PARTIALS", 500),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", nil),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "meeting.transcript.partial"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "meeting.transcript.final"),
			TopicMinutes: envOrDefault("KAFKA_TOPIC_MINUTES", "meeting.minutes.generated"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
		AWS: AWSConfig{
			Region:      envOrDefault("AWS_REGION", "us-east-1"),
			MediaBucket: envOrDefault("MEDIA_BUCKET", ""),

			TranscribeLanguage:     envOrDefault("TRANSCRIBE_LANGUAGE", "auto"),
			TranscribeMaxSpeakers:  envOrDefaultInt("TRANSCRIBE_MAX_SPEAKERS", 10),
			TranscribePollInterval: envOrDefaultDuration("TRANSCRIBE_POLL_INTERVAL", 10*time.Second),
		},
		Agent: AgentConfig{
			RuntimeARN:     envOrDefault("AGENT_RUNTIME_ARN", ""),
			Qualifier:      envOrDefault("AGENT_QUALIFIER", "DEFAULT"),
			DefaultModelID: envOrDefault("AGENT_MODEL_ID", "us.anthropic.claude-3-5-sonnet-20241022-v2:0"),
			SystemPrompt:   envOrDefault("AGENT_SYSTEM_PROMPT", "You are a helpful assistant."),
		},
		Minutes: MinutesConfig{
			ModelID:          envOrDefault("MINUTES_MODEL_ID", "us.anthropic.claude-3-5-sonnet-20241022-v2:0"),
			Style:            envOrDefault("MINUTES_STYLE", "faq"),
			FrequencyMinutes: envOrDefaultInt("MINUTES_FREQUENCY_MINUTES", 5),
			MaxPromptTokens:  envOrDefaultInt("MINUTES_MAX_PROMPT_TOKENS", 150000),
		},
		Translation: TranslationConfig{
			ModelIDs: envOrDefaultList("TRANSLATION_MODEL_IDS", []string{
				"us.anthropic.claude-3-5-haiku-20241022-v1:0",
				"us.amazon.nova-pro-v1:0",
				"us.anthropic.claude-3-5-sonnet-20241022-v2:0",
			}),
			TargetLanguage:  envOrDefault("TRANSLATION_TARGET_LANGUAGE", "Japanese"),
			ContextSegments: envOrDefaultInt("TRANSLATION_CONTEXT_SEGMENTS", 3),
		},
		Store: StoreConfig{
			DatabaseURL: envOrDefault("DATABASE_URL", ""),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
