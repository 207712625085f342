package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
)

type AppConfig struct {
	IrisBaseURL string
	IrisWSURL   string
	EgressMode  string

	BotPrefix string

	XUserID    string
	XUserEmail string
	XSessionID string

	RedisURL    string
	DatabaseURL string

	AllowedRooms []string

	GridSize     int
	AxisMode     grid.AxisMode
	DefaultLock  time.Duration
	MaxPerPlayer int
	PoolTTL      time.Duration

	HTTPAddr    string
	CORSOrigins []string

	ScorePollInterval time.Duration
	ESPNBaseURL       string

	MessagesDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		EgressMode:        "auto",
		GridSize:          10,
		AxisMode:          grid.AxisRandomized,
		PoolTTL:           7 * 24 * time.Hour,
		HTTPAddr:          ":8080",
		ScorePollInterval: time.Minute,
	}

	cfg.IrisBaseURL = strings.TrimSpace(os.Getenv("IRIS_BASE_URL"))
	cfg.IrisWSURL = strings.TrimSpace(os.Getenv("IRIS_WS_URL"))
	cfg.BotPrefix = strings.TrimSpace(os.Getenv("BOT_PREFIX"))

	cfg.XUserID = strings.TrimSpace(os.Getenv("X_USER_ID"))
	cfg.XUserEmail = strings.TrimSpace(os.Getenv("X_USER_EMAIL"))
	cfg.XSessionID = strings.TrimSpace(os.Getenv("X_SESSION_ID"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.ESPNBaseURL = strings.TrimSpace(os.Getenv("ESPN_BASE_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	cfg.AllowedRooms = splitList(os.Getenv("ALLOWED_ROOMS"))
	cfg.CORSOrigins = splitList(os.Getenv("CORS_ORIGINS"))

	if v, ok := os.LookupEnv("HTTP_ADDR"); ok {
		// empty disables the HTTP API
		cfg.HTTPAddr = strings.TrimSpace(v)
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("EGRESS_MODE"))); v != "" {
		switch v {
		case "http", "ws", "auto":
			cfg.EgressMode = v
		default:
			return nil, fmt.Errorf("EGRESS_MODE must be http, ws or auto: %q", v)
		}
	}

	if v := strings.TrimSpace(os.Getenv("SQUARES_GRID_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 2 || n > grid.MaxSize {
			return nil, fmt.Errorf("SQUARES_GRID_SIZE must be an integer in 2..%d: %q", grid.MaxSize, v)
		}
		cfg.GridSize = n
	}
	if v := strings.TrimSpace(os.Getenv("SQUARES_AXIS_MODE")); v != "" {
		mode, ok := grid.ParseAxisMode(v)
		if !ok {
			return nil, fmt.Errorf("SQUARES_AXIS_MODE must be sequential or randomized: %q", v)
		}
		cfg.AxisMode = mode
	}
	if v := strings.TrimSpace(os.Getenv("SQUARES_MAX_PER_PLAYER")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxPerPlayer = n
		}
	}
	var err error
	if cfg.DefaultLock, err = durationEnv("SQUARES_DEFAULT_LOCK", cfg.DefaultLock); err != nil {
		return nil, err
	}
	if cfg.PoolTTL, err = durationEnv("SQUARES_POOL_TTL", cfg.PoolTTL); err != nil {
		return nil, err
	}
	if cfg.ScorePollInterval, err = durationEnv("SCORE_POLL_INTERVAL", cfg.ScorePollInterval); err != nil {
		return nil, err
	}

	if cfg.IrisBaseURL == "" {
		return nil, errors.New("IRIS_BASE_URL is required")
	}
	if cfg.IrisWSURL == "" {
		return nil, errors.New("IRIS_WS_URL is required")
	}
	if cfg.BotPrefix == "" {
		return nil, errors.New("BOT_PREFIX is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// RoomAllowed reports whether the bot should answer in room. An empty
// allow-list allows every room.
func (c *AppConfig) RoomAllowed(room string) bool {
	if len(c.AllowedRooms) == 0 {
		return true
	}
	for _, r := range c.AllowedRooms {
		if r == room {
			return true
		}
	}
	return false
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration: %q", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
