// Package config loads the TOML configuration file and applies defaults for
// the pieces the file leaves out.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/hylla/tavla/internal/engine"
)

// Config is the full application configuration.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Canvas   CanvasConfig   `toml:"canvas"`
	Server   ServerConfig   `toml:"server"`
	Keys     KeyConfig      `toml:"keys"`
	Logging  LoggingConfig  `toml:"logging"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// CanvasConfig tunes the interaction engine.
type CanvasConfig struct {
	SnapToGrid      bool    `toml:"snap_to_grid"`
	GridSize        float64 `toml:"grid_size"`
	SnapRadius      float64 `toml:"snap_radius"`
	DragThreshold   float64 `toml:"drag_threshold"`
	ZoomMin         float64 `toml:"zoom_min"`
	ZoomMax         float64 `toml:"zoom_max"`
	SaveDebounceMS  int     `toml:"save_debounce_ms"`
	HistoryLimit    int     `toml:"history_limit"`
	ResizeTolerance float64 `toml:"resize_tolerance"`
}

// ServerConfig configures the optional HTTP/MCP server.
type ServerConfig struct {
	Bind string `toml:"bind"`
}

// LoggingConfig controls runtime log output.
type LoggingConfig struct {
	Level   string           `toml:"level"`
	DevFile DevFileLogConfig `toml:"dev_file"`
}

// DevFileLogConfig enables the workspace-local log file used in dev mode.
type DevFileLogConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// KeyConfig holds the rebindable single-key actions of the TUI.
type KeyConfig struct {
	Undo      string `toml:"undo"`
	Redo      string `toml:"redo"`
	Delete    string `toml:"delete"`
	SelectAll string `toml:"select_all"`
	NewNote   string `toml:"new_note"`
	NewColumn string `toml:"new_column"`
	Connect   string `toml:"connect"`
	Lock      string `toml:"lock"`
}

// Default returns the configuration used when no file exists.
func Default(dbPath string) Config {
	ec := engine.DefaultConfig()
	return Config{
		Database: DatabaseConfig{Path: dbPath},
		Canvas: CanvasConfig{
			SnapToGrid:      ec.SnapToGrid,
			GridSize:        ec.GridSize,
			SnapRadius:      ec.SnapRadius,
			DragThreshold:   ec.DragThreshold,
			ZoomMin:         ec.ZoomMin,
			ZoomMax:         ec.ZoomMax,
			SaveDebounceMS:  int(ec.DebounceInterval / time.Millisecond),
			HistoryLimit:    ec.HistoryLimit,
			ResizeTolerance: ec.ResizeTolerance,
		},
		Server: ServerConfig{Bind: "127.0.0.1:7465"},
		Logging: LoggingConfig{
			Level:   "info",
			DevFile: DevFileLogConfig{Enabled: true},
		},
		Keys: KeyConfig{
			Undo:      "z",
			Redo:      "Z",
			Delete:    "x",
			SelectAll: "a",
			NewNote:   "n",
			NewColumn: "c",
			Connect:   "l",
			Lock:      "L",
		},
	}
}

// Load reads path over defaults. A missing or empty file yields the defaults
// unchanged; a malformed or invalid file is an error.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine or server cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}
	if c.Canvas.GridSize < 0 {
		return errors.New("canvas.grid_size must be >= 0")
	}
	if c.Canvas.SnapRadius < 0 {
		return errors.New("canvas.snap_radius must be >= 0")
	}
	if c.Canvas.DragThreshold < 0 {
		return errors.New("canvas.drag_threshold must be >= 0")
	}
	if c.Canvas.ZoomMin < 0 || c.Canvas.ZoomMax < 0 {
		return errors.New("canvas zoom bounds must be >= 0")
	}
	if c.Canvas.ZoomMin > 0 && c.Canvas.ZoomMax > 0 && c.Canvas.ZoomMin > c.Canvas.ZoomMax {
		return fmt.Errorf("canvas.zoom_min %v exceeds canvas.zoom_max %v", c.Canvas.ZoomMin, c.Canvas.ZoomMax)
	}
	if c.Canvas.SaveDebounceMS < 0 {
		return errors.New("canvas.save_debounce_ms must be >= 0")
	}
	if c.Canvas.HistoryLimit < 0 {
		return errors.New("canvas.history_limit must be >= 0")
	}
	if c.Canvas.ResizeTolerance < 0 {
		return errors.New("canvas.resize_tolerance must be >= 0")
	}
	return nil
}

// EngineConfig converts the canvas section into the engine's tuning struct.
func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		SnapToGrid:       c.Canvas.SnapToGrid,
		GridSize:         c.Canvas.GridSize,
		SnapRadius:       c.Canvas.SnapRadius,
		DragThreshold:    c.Canvas.DragThreshold,
		ZoomMin:          c.Canvas.ZoomMin,
		ZoomMax:          c.Canvas.ZoomMax,
		DebounceInterval: time.Duration(c.Canvas.SaveDebounceMS) * time.Millisecond,
		HistoryLimit:     c.Canvas.HistoryLimit,
		ResizeTolerance:  c.Canvas.ResizeTolerance,
	}
}

// EnsureConfigDir creates the directory holding path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
