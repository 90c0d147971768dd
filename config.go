package planets

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration decodes from strings such as "500ms" or "5s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type ArenaConfig struct {
	BufferSizeBytes    int64    `toml:"buffer_size_bytes"`
	StatsBufferPatches int      `toml:"stats_buffer_patches"`
	VisiblePolygons    int      `toml:"visible_polygons"`
	PatchesPerBatch    int      `toml:"patches_per_batch"`
	StaleAfter         Duration `toml:"stale_after"`
	SweepInterval      Duration `toml:"sweep_interval"`
}

type ClockConfig struct {
	Multiplier float64 `toml:"multiplier"`
	Start      float64 `toml:"start"`
}

type TelemetryConfig struct {
	// ListenAddr serves /metrics and /frames. Empty disables the server.
	ListenAddr string `toml:"listen_addr"`
}

type Config struct {
	Name           string     `toml:"name"`
	FullScreen     bool       `toml:"full_screen"`
	ResX           int        `toml:"res_x"`
	ResY           int        `toml:"res_y"`
	ClearColour    [4]float32 `toml:"clear_colour"`
	DesiredFPS     int        `toml:"desired_fps"`
	MaxPatchLevel  int        `toml:"max_patch_level"`
	Level1Distance float32    `toml:"level1_distance"`
	Scene          string     `toml:"scene"`
	Debug          bool       `toml:"debug"`

	Arena     ArenaConfig     `toml:"arena"`
	Clock     ClockConfig     `toml:"clock"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// Tunables is the subset of Config that may change while running.
type Tunables struct {
	MaxPatchLevel  int
	Level1Distance float32
	DesiredFPS     int
	Debug          bool
}

// MaxLevel is the deepest quadtree level a patch hash can address.
const MaxLevel = 27

func DefaultConfig() Config {
	return Config{
		Name:           "Planets",
		ResX:           1280,
		ResY:           720,
		ClearColour:    [4]float32{0, 0, 0, 1},
		DesiredFPS:     60,
		MaxPatchLevel:  16,
		Level1Distance: 6,
		Scene:          "scene.yaml",
		Arena: ArenaConfig{
			BufferSizeBytes:    128 << 20,
			StatsBufferPatches: 256,
			VisiblePolygons:    32,
			PatchesPerBatch:    1,
			StaleAfter:         Duration(5 * time.Second),
			SweepInterval:      Duration(500 * time.Millisecond),
		},
		Clock: ClockConfig{Multiplier: 1},
	}
}

var ErrInvalidConfig = errors.New("invalid config")

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.ResX > 0 && c.ResY > 0, "resolution %dx%d must be positive", c.ResX, c.ResY)
	check(c.DesiredFPS > 0, "desired_fps %d must be positive", c.DesiredFPS)
	check(c.MaxPatchLevel >= 0 && c.MaxPatchLevel <= MaxLevel, "max_patch_level %d outside [0,%d]", c.MaxPatchLevel, MaxLevel)
	check(c.Level1Distance > 0, "level1_distance %g must be positive", c.Level1Distance)
	check(c.Arena.BufferSizeBytes > 0, "arena.buffer_size_bytes must be positive")
	check(c.Arena.StatsBufferPatches > 0 && c.Arena.StatsBufferPatches <= 256, "arena.stats_buffer_patches %d outside [1,256]", c.Arena.StatsBufferPatches)
	check(c.Arena.VisiblePolygons > 0, "arena.visible_polygons must be positive")
	check(c.Arena.PatchesPerBatch > 0 && c.Arena.PatchesPerBatch <= c.Arena.StatsBufferPatches,
		"arena.patches_per_batch %d outside [1,%d]", c.Arena.PatchesPerBatch, c.Arena.StatsBufferPatches)
	check(c.Arena.StaleAfter > 0, "arena.stale_after must be positive")
	check(c.Arena.SweepInterval > 0, "arena.sweep_interval must be positive")
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (c *Config) Tunables() Tunables {
	return Tunables{
		MaxPatchLevel:  c.MaxPatchLevel,
		Level1Distance: c.Level1Distance,
		DesiredFPS:     c.DesiredFPS,
		Debug:          c.Debug,
	}
}

// FrameBudget is the wall-clock time one frame may take at DesiredFPS.
func (t Tunables) FrameBudget() time.Duration {
	if t.DesiredFPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(t.DesiredFPS)
}

// ParseConfig decodes TOML over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
