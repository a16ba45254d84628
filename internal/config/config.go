package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	SyncRenderEnabled  bool   // POST /v1/renders/sync renders in the API process
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Worker
	MaxConcurrentJobs int

	Render RenderConfig
}

// RenderConfig holds the knobs of the render pipeline. The CLI loads only
// this part.
type RenderConfig struct {
	Width              int
	Height             int
	FPS                int
	TransitionMaxClips int
	DownloadBatchSize  int
	KenBurnsCanvas     string // pad or crop
	KenBurnsEndZoom    float64
	FontDir            string
	WorkDir            string
	FFmpegPath         string
	FFprobePath        string
	FFmpegThreads      int
	EncodePreset       string
	EncodeCRF          int
	ClipTimeout        time.Duration
	ConcatTimeout      time.Duration
	ProbeTimeout       time.Duration
	AudioBitrate       string
	MaxDownloadBytes   int64
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		SyncRenderEnabled:     getEnvBool("SYNC_RENDER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "reel-renders"),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 1),
		Render:                loadRender(),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	if cfg.MaxConcurrentJobs < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1")
	}

	if err := cfg.Render.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadRender reads only the render settings. It needs no database or storage.
func LoadRender() (*RenderConfig, error) {
	_ = godotenv.Load()

	cfg := loadRender()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadRender() RenderConfig {
	return RenderConfig{
		Width:              getEnvInt("RENDER_WIDTH", 1080),
		Height:             getEnvInt("RENDER_HEIGHT", 1920),
		FPS:                getEnvInt("RENDER_FPS", 30),
		TransitionMaxClips: getEnvInt("TRANSITION_MAX_CLIPS", 8),
		DownloadBatchSize:  getEnvInt("DOWNLOAD_BATCH_SIZE", 3),
		KenBurnsCanvas:     getEnv("KEN_BURNS_CANVAS", "pad"),
		KenBurnsEndZoom:    getEnvFloat("KEN_BURNS_END_ZOOM", 1.15),
		FontDir:            getEnv("FONT_DIR", ""),
		WorkDir:            getEnv("WORK_DIR", os.TempDir()),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		FFmpegThreads:      getEnvInt("FFMPEG_THREADS", 2),
		EncodePreset:       getEnv("ENCODE_PRESET", "veryfast"),
		EncodeCRF:          getEnvInt("ENCODE_CRF", 20),
		ClipTimeout:        getEnvDuration("CLIP_TIMEOUT", 120*time.Second),
		ConcatTimeout:      getEnvDuration("CONCAT_TIMEOUT", 600*time.Second),
		ProbeTimeout:       getEnvDuration("PROBE_TIMEOUT", 30*time.Second),
		AudioBitrate:       getEnv("AUDIO_BITRATE", "192k"),
		MaxDownloadBytes:   int64(getEnvInt("MAX_DOWNLOAD_MB", 100)) << 20,
	}
}

// Validate rejects settings no render could succeed with.
func (c RenderConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("RENDER_WIDTH and RENDER_HEIGHT must be positive")
	}
	if c.FPS <= 0 {
		return fmt.Errorf("RENDER_FPS must be positive")
	}
	if c.KenBurnsCanvas != "pad" && c.KenBurnsCanvas != "crop" {
		return fmt.Errorf("KEN_BURNS_CANVAS must be pad or crop, got %q", c.KenBurnsCanvas)
	}
	if c.ClipTimeout <= 0 || c.ConcatTimeout <= 0 || c.ProbeTimeout <= 0 {
		return fmt.Errorf("CLIP_TIMEOUT, CONCAT_TIMEOUT and PROBE_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "2m") or plain seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
