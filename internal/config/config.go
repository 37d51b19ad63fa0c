package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/obiente/translate/batchscribe/internal/domain"
)

const (
	EngineLocal  = "local"
	EngineRemote = "remote"
)

// DefaultExtensions are the media types accepted by discovery when BATCH_EXTENSIONS is unset.
var DefaultExtensions = []string{".mp3", ".wav", ".flac", ".m4a", ".ogg", ".aac", ".webm", ".mp4", ".mov", ".mkv", ".avi"}

// EngineConfig selects and tunes the transcription backend.
type EngineConfig struct {
	Kind     string
	Language string

	// local
	ModelPath  string
	Threads    int
	FFmpegPath string

	// remote
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSec     int
	RatePerSecond  int
	MaxAttempts    int
	BaseDelay      time.Duration
	Jitter         float64
	MaxUploadBytes int64
}

type Config struct {
	Run          domain.BatchRun
	Engine       EngineConfig
	ReportDSN    string
	ReportTable  string
	ProgressAddr string
	LogLevel     string
	LogFormat    string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvList(key string, def []string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return append([]string(nil), def...)
	}
	return SplitList(v)
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Load() Config {
	return Config{
		Run: domain.BatchRun{
			ID:             uuid.NewString(),
			Extensions:     getenvList("BATCH_EXTENSIONS", DefaultExtensions),
			Recursive:      getenvBool("BATCH_RECURSIVE", false),
			MaxWorkers:     getenvInt("BATCH_MAX_WORKERS", 4),
			FlushBatchSize: getenvInt("BATCH_FLUSH_SIZE", 10),
			ReportPath:     getenv("BATCH_REPORT", "batch_report.csv"),
			Resume:         getenvBool("BATCH_RESUME", false),
		},
		Engine: EngineConfig{
			Kind:           strings.ToLower(getenv("TRANSCRIBE_ENGINE", EngineLocal)),
			Language:       getenv("TRANSCRIBE_LANGUAGE", "auto"),
			ModelPath:      getenv("WHISPER_MODEL_PATH", "./models/ggml-base.bin"),
			Threads:        getenvInt("WHISPER_THREADS", runtime.NumCPU()),
			FFmpegPath:     getenv("FFMPEG_PATH", "ffmpeg"),
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			BaseURL:        getenv("REMOTE_BASE_URL", "https://api.openai.com/v1"),
			Model:          getenv("REMOTE_MODEL", "whisper-1"),
			TimeoutSec:     getenvInt("REMOTE_TIMEOUT", 120),
			RatePerSecond:  getenvInt("RATE_LIMIT_PER_SEC", 5),
			MaxAttempts:    getenvInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:      getenvDuration("RETRY_BASE_DELAY", time.Second),
			Jitter:         getenvFloat("RETRY_JITTER", 0),
			MaxUploadBytes: int64(getenvInt("REMOTE_MAX_UPLOAD_BYTES", 25<<20)),
		},
		ReportDSN:    os.Getenv("REPORT_DATABASE_URL"),
		ReportTable:  getenv("REPORT_TABLE", "transcription_outcomes"),
		ProgressAddr: os.Getenv("PROGRESS_ADDR"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogFormat:    getenv("LOG_FORMAT", "json"),
	}
}

// Validate rejects settings the orchestrator cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Run.Root) == "" {
		return fmt.Errorf("input directory is required")
	}
	if c.Run.MaxWorkers <= 0 {
		return fmt.Errorf("max workers must be positive, got %d", c.Run.MaxWorkers)
	}
	if c.Run.FlushBatchSize <= 0 {
		return fmt.Errorf("flush batch size must be positive, got %d", c.Run.FlushBatchSize)
	}
	if len(c.Run.Extensions) == 0 {
		return fmt.Errorf("at least one extension is required")
	}
	if strings.TrimSpace(c.Run.ReportPath) == "" {
		return fmt.Errorf("report path is required")
	}

	switch c.Engine.Kind {
	case EngineLocal:
		if strings.TrimSpace(c.Engine.ModelPath) == "" {
			return fmt.Errorf("local engine requires a model path")
		}
	case EngineRemote:
		if strings.TrimSpace(c.Engine.APIKey) == "" {
			return fmt.Errorf("remote engine requires an API key (OPENAI_API_KEY)")
		}
		if c.Engine.MaxAttempts <= 0 {
			return fmt.Errorf("retry attempts must be positive, got %d", c.Engine.MaxAttempts)
		}
		if c.Engine.BaseDelay < 0 {
			return fmt.Errorf("retry base delay must not be negative")
		}
	default:
		return fmt.Errorf("unknown engine: %q (supported: local, remote)", c.Engine.Kind)
	}
	return nil
}
