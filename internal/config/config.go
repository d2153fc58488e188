package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the assistant client.
type Config struct {
	Backend BackendConfig
	Audio   AudioConfig
	Session SessionConfig
}

type BackendConfig struct {
	APIBaseURL     string
	RequestTimeout time.Duration
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type SessionConfig struct {
	Language     string
	ChunkSize    int
	TickInterval time.Duration
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() Config {
	cfg := Config{
		Backend: BackendConfig{
			APIBaseURL:     envOrDefault("AGRIVOICE_API_BASE", "http://localhost:5000/api"),
			RequestTimeout: time.Duration(envOrDefaultInt("AGRIVOICE_REQUEST_TIMEOUT_MS", 120000)) * time.Millisecond,
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("AGRIVOICE_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("AGRIVOICE_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("AGRIVOICE_AUDIO_INPUT_DEVICE"),
				os.Getenv("PULSE_SOURCE"),
				"default",
			),
			SampleRate: envOrDefaultInt("AGRIVOICE_SAMPLE_RATE", 16000),
			Channels:   envOrDefaultInt("AGRIVOICE_CHANNELS", 1),
		},
		Session: SessionConfig{
			Language:     envOrDefault("AGRIVOICE_LANGUAGE", "en"),
			ChunkSize:    envOrDefaultInt("AGRIVOICE_AUDIO_CHUNK_SIZE", 4096),
			TickInterval: time.Duration(envOrDefaultInt("AGRIVOICE_TICK_MS", 1000)) * time.Millisecond,
		},
	}

	if cfg.Backend.RequestTimeout <= 0 {
		cfg.Backend.RequestTimeout = 2 * time.Minute
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.TickInterval <= 0 {
		cfg.Session.TickInterval = time.Second
	}

	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
