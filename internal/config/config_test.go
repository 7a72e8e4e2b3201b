package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/christian-lee/ft8mon/internal/decoder"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ft8mon.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DecodeParams() != decoder.DefaultParams() {
		t.Fatalf("default params %+v", cfg.DecodeParams())
	}
	if cfg.Timing.Period != 15*time.Second || cfg.Source.Rate != 12000 || cfg.Decode.Threads != 4 {
		t.Fatalf("defaults %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
decode:
  budget: 2500ms
  hints_b: [1, 3]
  freq_ceiling: 2900
jt9:
  path: /opt/wsjtx/bin/jt9
mqtt:
  broker: tcp://localhost:1883
  qos: 1
station: AB1HL
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p := cfg.DecodeParams()
	if p.BudgetA != 2500*time.Millisecond || p.BudgetB != 2500*time.Millisecond {
		t.Fatalf("budget %s/%s", p.BudgetA, p.BudgetB)
	}
	if p.HintsA != (decoder.Hints{2, 0}) || p.HintsB != (decoder.Hints{1, 3}) || p.FreqCeiling != 2900 {
		t.Fatalf("params %+v", p)
	}
	if cfg.EngineConfig().Path != "/opt/wsjtx/bin/jt9" || cfg.EngineConfig().Threads != 4 {
		t.Fatalf("engine %+v", cfg.EngineConfig())
	}
	if cfg.MQTT.Topic != "ft8mon/spots" || cfg.MQTT.QoS != 1 || cfg.Station != "AB1HL" {
		t.Fatalf("mqtt %+v station %q", cfg.MQTT, cfg.Station)
	}
}

func TestLoadRejectsBrokenTiming(t *testing.T) {
	path := writeConfig(t, "timing:\n  wake_after: 16s\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "timing") {
		t.Fatalf("expected timing error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"engine":    func(c *Config) { c.Decode.Engine = "wsjt" },
		"budget":    func(c *Config) { c.Decode.Budget = 0 },
		"threads":   func(c *Config) { c.Decode.Threads = 0 },
		"rate":      func(c *Config) { c.Source.Rate = 0 },
		"qos":       func(c *Config) { c.MQTT.QoS = 3 },
		"log_level": func(c *Config) { c.LogLevel = "loud" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestReloadKeepsConfigOnError(t *testing.T) {
	path := writeConfig(t, "decode:\n  budget: 3s\n")
	hc, err := NewHotConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	var got []time.Duration
	hc.OnReload(func(_, cur *Config) { got = append(got, cur.Decode.Budget) })

	if err := os.WriteFile(path, []byte("decode:\n  budget: 4s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	hc.reload()
	if err := os.WriteFile(path, []byte("decode: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	hc.reload()

	if hc.Get().Decode.Budget != 4*time.Second {
		t.Fatalf("budget %s after bad reload", hc.Get().Decode.Budget)
	}
	if len(got) != 1 || got[0] != 4*time.Second {
		t.Fatalf("callbacks saw %v", got)
	}
}

func TestWatchAppliesWrite(t *testing.T) {
	path := writeConfig(t, "decode:\n  budget: 3s\n")
	hc, err := NewHotConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	reloaded := make(chan time.Duration, 16)
	hc.OnReload(func(_, cur *Config) { reloaded <- cur.Decode.Budget })
	if err := hc.Watch(t.Context()); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("decode:\n  budget: 1s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// The truncate may be seen as its own write, so wait for the final content.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case b := <-reloaded:
			if b == time.Second {
				return
			}
		case <-timeout:
			t.Fatal("no reload after write")
		}
	}
}

func TestRestartRequired(t *testing.T) {
	old, cur := Default(), Default()
	cur.Decode.Budget = time.Second
	if got := RestartRequired(old, cur); len(got) != 0 {
		t.Fatalf("decode params are hot, got %v", got)
	}
	cur.Source.Rate = 48000
	cur.Web.Listen = ":8080"
	if got := strings.Join(RestartRequired(old, cur), ","); got != "source,web" {
		t.Fatalf("got %q", got)
	}
}
