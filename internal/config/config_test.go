package config

import (
	"strings"
	"testing"
	"time"

	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("IRIS_BASE_URL", "http://iris:3000")
	t.Setenv("IRIS_WS_URL", "ws://iris:3000/ws")
	t.Setenv("BOT_PREFIX", "!sq")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	for _, k := range []string{"SQUARES_GRID_SIZE", "SQUARES_AXIS_MODE", "SQUARES_DEFAULT_LOCK", "SCORE_POLL_INTERVAL", "ALLOWED_ROOMS", "EGRESS_MODE", "SQUARES_POOL_TTL"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GridSize != 10 || cfg.AxisMode != grid.AxisRandomized || cfg.DefaultLock != 0 {
		t.Fatalf("unexpected grid defaults %+v", cfg)
	}
	if cfg.PoolTTL != 168*time.Hour || cfg.ScorePollInterval != time.Minute || cfg.EgressMode != "auto" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !cfg.RoomAllowed("anything") {
		t.Fatalf("empty allow-list should allow every room")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SQUARES_GRID_SIZE", "5")
	t.Setenv("SQUARES_AXIS_MODE", "순서")
	t.Setenv("SQUARES_DEFAULT_LOCK", "90m")
	t.Setenv("SQUARES_MAX_PER_PLAYER", "3")
	t.Setenv("ALLOWED_ROOMS", "roomA, roomB ,")
	t.Setenv("CORS_ORIGINS", "https://a.example")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("EGRESS_MODE", "WS")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GridSize != 5 || cfg.AxisMode != grid.AxisSequential || cfg.DefaultLock != 90*time.Minute || cfg.MaxPerPlayer != 3 {
		t.Fatalf("overrides not applied %+v", cfg)
	}
	if len(cfg.AllowedRooms) != 2 || !cfg.RoomAllowed("roomB") || cfg.RoomAllowed("roomC") {
		t.Fatalf("unexpected rooms %v", cfg.AllowedRooms)
	}
	if cfg.HTTPAddr != "" || cfg.EgressMode != "ws" || len(cfg.CORSOrigins) != 1 {
		t.Fatalf("unexpected transport config %+v", cfg)
	}
}

func TestLoadRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_URL", "")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REDIS_URL") {
		t.Fatalf("expected REDIS_URL error, got %v", err)
	}
	setRequired(t)
	t.Setenv("BOT_PREFIX", "")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "BOT_PREFIX") {
		t.Fatalf("expected BOT_PREFIX error, got %v", err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	for k, v := range map[string]string{
		"SQUARES_GRID_SIZE":    "1",
		"SQUARES_AXIS_MODE":    "diagonal",
		"SQUARES_DEFAULT_LOCK": "soon",
		"EGRESS_MODE":          "pigeon",
	} {
		t.Run(k, func(t *testing.T) {
			setRequired(t)
			t.Setenv(k, v)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", k, v)
			}
		})
	}
}

func TestLoadRejectsOversizedGrid(t *testing.T) {
	setRequired(t)
	t.Setenv("SQUARES_GRID_SIZE", "1048576")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "SQUARES_GRID_SIZE") {
		t.Fatalf("expected SQUARES_GRID_SIZE error, got %v", err)
	}
}
