package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/christian-lee/ft8mon/internal/audio"
	"github.com/christian-lee/ft8mon/internal/cycle"
	"github.com/christian-lee/ft8mon/internal/decoder"
)

type Config struct {
	Timing   TimingConfig  `yaml:"timing"`
	Decode   DecodeConfig  `yaml:"decode"`
	JT9      JT9Config     `yaml:"jt9"`
	Source   SourceConfig  `yaml:"source"`
	SpotLog  SpotLogConfig `yaml:"spotlog"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
	Web      WebConfig     `yaml:"web"`
	LogLevel string        `yaml:"log_level"` // debug, info, warn, error
	Station  string        `yaml:"station"`   // callsign attached to published spots
}

type TimingConfig struct {
	Period         time.Duration `yaml:"period"`
	WakeAfter      time.Duration `yaml:"wake_after"`  // decode once this far into the cycle
	SyncOffset     time.Duration `yaml:"sync_offset"` // transmissions start here
	MinSignal      time.Duration `yaml:"min_signal"`  // required after sync_offset
	IdlePoll       time.Duration `yaml:"idle_poll"`
	PostCycleSleep time.Duration `yaml:"post_cycle_sleep"`
}

type DecodeConfig struct {
	Engine      string        `yaml:"engine"` // only "jt9" for now
	MaxFreqBin  int           `yaml:"max_freq_bin"`
	FreqCeiling float64       `yaml:"freq_ceiling"` // Hz
	HintsA      [2]int        `yaml:"hints_a"`
	HintsB      [2]int        `yaml:"hints_b"`
	Budget      time.Duration `yaml:"budget"` // per pass
	Threads     int           `yaml:"threads"`
}

type JT9Config struct {
	Path    string `yaml:"path"`
	WorkDir string `yaml:"work_dir"`
	DepthA  int    `yaml:"depth_a"`
	DepthB  int    `yaml:"depth_b"`
	KeepWAV bool   `yaml:"keep_wav"` // leave cycle WAVs in work_dir for inspection
}

type SourceConfig struct {
	Rate          int                `yaml:"rate"`
	BufferSeconds int                `yaml:"buffer_seconds"`
	FFmpegPath    string             `yaml:"ffmpeg_path"`
	RTLSDR        audio.RTLSDRConfig `yaml:"rtlsdr"`
}

type SpotLogConfig struct {
	SQLitePath string `yaml:"sqlite_path"` // empty disables the store
	CSVDir     string `yaml:"csv_dir"`     // empty disables CSV logging
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"` // e.g. tcp://localhost:1883; empty disables publishing
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
}

type WebConfig struct {
	Listen       string `yaml:"listen"` // empty disables the status server
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
	Recent       int    `yaml:"recent"`        // decodes kept in memory
}

// Default returns the stock FT8 monitor settings.
func Default() *Config {
	t := cycle.DefaultTiming()
	p := decoder.DefaultParams()
	return &Config{
		Timing: TimingConfig{
			Period:         t.Period,
			WakeAfter:      t.WakeAfter,
			SyncOffset:     t.SyncOffset,
			MinSignal:      t.MinSignal,
			IdlePoll:       t.IdlePoll,
			PostCycleSleep: t.PostCycleSleep,
		},
		Decode: DecodeConfig{
			Engine:      "jt9",
			MaxFreqBin:  p.MaxFreqBin,
			FreqCeiling: p.FreqCeiling,
			HintsA:      p.HintsA,
			HintsB:      p.HintsB,
			Budget:      p.BudgetA,
			Threads:     4,
		},
		JT9: JT9Config{
			Path:    "jt9",
			WorkDir: filepath.Join(os.TempDir(), "ft8mon"),
			DepthA:  2,
			DepthB:  3,
		},
		Source: SourceConfig{
			Rate:          12000,
			BufferSeconds: 60,
			FFmpegPath:    "ffmpeg",
		},
		MQTT: MQTTConfig{
			Topic: "ft8mon/spots",
		},
		Web: WebConfig{
			Recent: 50,
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.CycleTiming().Validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	if c.Decode.Engine != "jt9" {
		return fmt.Errorf("decode: unknown engine %q", c.Decode.Engine)
	}
	if c.Decode.Budget <= 0 {
		return fmt.Errorf("decode: budget must be positive, got %s", c.Decode.Budget)
	}
	if c.Decode.Threads < 1 {
		return fmt.Errorf("decode: threads must be at least 1, got %d", c.Decode.Threads)
	}
	if c.Source.Rate <= 0 {
		return fmt.Errorf("source: rate must be positive, got %d", c.Source.Rate)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

func (c *Config) CycleTiming() cycle.Timing {
	return cycle.Timing{
		Period:         c.Timing.Period,
		WakeAfter:      c.Timing.WakeAfter,
		SyncOffset:     c.Timing.SyncOffset,
		MinSignal:      c.Timing.MinSignal,
		IdlePoll:       c.Timing.IdlePoll,
		PostCycleSleep: c.Timing.PostCycleSleep,
	}
}

// DecodeParams returns the per-cycle engine parameters. The budget applies
// to each pass.
func (c *Config) DecodeParams() decoder.Params {
	return decoder.Params{
		MaxFreqBin:  c.Decode.MaxFreqBin,
		FreqCeiling: c.Decode.FreqCeiling,
		HintsA:      decoder.Hints(c.Decode.HintsA),
		HintsB:      decoder.Hints(c.Decode.HintsB),
		BudgetA:     c.Decode.Budget,
		BudgetB:     c.Decode.Budget,
	}
}

func (c *Config) AudioConfig() audio.Config {
	return audio.Config{
		Rate:          c.Source.Rate,
		BufferSeconds: c.Source.BufferSeconds,
		FFmpegPath:    c.Source.FFmpegPath,
		RTLSDR:        c.Source.RTLSDR,
	}
}

// EngineConfig returns the jt9 engine settings.
func (c *Config) EngineConfig() decoder.JT9Config {
	return decoder.JT9Config{
		Path:       c.JT9.Path,
		WorkDir:    c.JT9.WorkDir,
		DepthA:     c.JT9.DepthA,
		DepthB:     c.JT9.DepthB,
		Threads:    c.Decode.Threads,
		KeepWAV:    c.JT9.KeepWAV,
		Period:     c.Timing.Period,
		SyncOffset: c.Timing.SyncOffset,
	}
}
