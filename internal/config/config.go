package config

import (
	"os"
	"strconv"
	"time"

	"github.com/skylink-io/skylink/pkg/models"
)

// Config holds all configuration for the Skylink control plane.
type Config struct {
	Port      int
	Version   string
	Executor  ExecutorConfig
	World     WorldConfig
	Profile   models.DroneProfile
	LLM       LLMConfig
	History   HistoryConfig
	Telemetry TelemetryConfig
}

// ExecutorConfig tunes command execution.
type ExecutorConfig struct {
	// BusyPolicy is "queue" (serialize behind the in-flight command) or
	// "reject" (fail fast with agent-busy).
	BusyPolicy string
	// OpTimeout bounds each individual drone operation.
	OpTimeout time.Duration
	// SimTimeScale compresses simulated flight time (0 = instant).
	SimTimeScale float64
}

// WorldConfig describes the operating volume.
type WorldConfig struct {
	Envelope  models.Envelope
	Obstacles []models.Obstacle
}

// LLMConfig selects the interpreter backend.
type LLMConfig struct {
	Backend    string
	Model      string
	OllamaHost string
}

// HistoryConfig selects the report store backend.
type HistoryConfig struct {
	Backend       string // "memory" or "redis"
	TTL           time.Duration
	RedisAddress  string
	RedisPassword string
	RedisDB       int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// defaultObstacles is the built-in set of no-fly buildings used when none
// are configured. Matches the default simulated city block.
func defaultObstacles() []models.Obstacle {
	return []models.Obstacle{
		{Name: "north-tower", Center: models.Position{X: 120, Y: 300, Z: 0}, Width: 40, Length: 40, Height: 90},
		{Name: "depot", Center: models.Position{X: 340, Y: 150, Z: 0}, Width: 60, Length: 30, Height: 25},
		{Name: "antenna-mast", Center: models.Position{X: 250, Y: 420, Z: 0}, Width: 10, Length: 10, Height: 140},
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("SKYLINK_PORT", 8080),
		Version: envStr("SKYLINK_VERSION", "0.2.0"),
		Executor: ExecutorConfig{
			BusyPolicy:   envStr("SKYLINK_BUSY_POLICY", "queue"),
			OpTimeout:    envDur("SKYLINK_OP_TIMEOUT", 10*time.Second),
			SimTimeScale: envFloat("SKYLINK_SIM_TIME_SCALE", 1000),
		},
		World: WorldConfig{
			Envelope: models.Envelope{
				MaxX: envFloat("SKYLINK_ENVELOPE_MAX_X", 500),
				MaxY: envFloat("SKYLINK_ENVELOPE_MAX_Y", 500),
				MaxZ: envFloat("SKYLINK_ENVELOPE_MAX_Z", 150),
			},
			Obstacles: defaultObstacles(),
		},
		Profile: models.DroneProfile{
			Name:            envStr("SKYLINK_PROFILE_NAME", "sl-standard"),
			MaxSpeed:        envFloat("SKYLINK_PROFILE_MAX_SPEED", 15),
			MaxAltitude:     envFloat("SKYLINK_PROFILE_MAX_ALTITUDE", 120),
			BatteryCapacity: envFloat("SKYLINK_PROFILE_BATTERY_CAPACITY", 100),
			DrainPerMinute:  envFloat("SKYLINK_PROFILE_DRAIN_PER_MINUTE", 2),
		},
		LLM: LLMConfig{
			Backend:    envStr("SKYLINK_LLM_BACKEND", "gemini"),
			Model:      envStr("SKYLINK_LLM_MODEL", ""),
			OllamaHost: envStr("OLLAMA_HOST", ""),
		},
		History: HistoryConfig{
			Backend:       envStr("SKYLINK_HISTORY_BACKEND", "memory"),
			TTL:           envDur("SKYLINK_HISTORY_TTL", 24*time.Hour),
			RedisAddress:  envStr("SKYLINK_REDIS_ADDR", "localhost:6379"),
			RedisPassword: envStr("SKYLINK_REDIS_PASSWORD", ""),
			RedisDB:       envInt("SKYLINK_REDIS_DB", 0),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "skylink-control-plane"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
