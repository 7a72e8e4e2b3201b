package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// HotConfig wraps Config with hot-reload support
type HotConfig struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
	subs []func(old, cur *Config)
}

func NewHotConfig(path string) (*HotConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &HotConfig{cfg: cfg, path: path}, nil
}

func (hc *HotConfig) Get() *Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.cfg
}

// OnReload registers a callback for config changes. Register before Watch.
func (hc *HotConfig) OnReload(fn func(old, cur *Config)) {
	hc.subs = append(hc.subs, fn)
}

// reload keeps the running config when the new file does not parse or validate.
func (hc *HotConfig) reload() {
	cfg, err := Load(hc.path)
	if err != nil {
		slog.Error("config reload failed", "err", err)
		return
	}
	hc.mu.Lock()
	old := hc.cfg
	hc.cfg = cfg
	hc.mu.Unlock()

	slog.Info("🔄 config reloaded", "path", hc.path)
	for _, fn := range hc.subs {
		fn(old, cfg)
	}
}

// Watch reloads the config file on every write until ctx ends.
func (hc *HotConfig) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := watcher.Add(hc.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", hc.path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					hc.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("config watcher error", "err", err)
			}
		}
	}()
	return nil
}

// RestartRequired lists sections that changed but only take effect on restart.
func RestartRequired(old, cur *Config) []string {
	var changed []string
	if old.Timing != cur.Timing {
		changed = append(changed, "timing")
	}
	if old.JT9 != cur.JT9 || old.Decode.Engine != cur.Decode.Engine || old.Decode.Threads != cur.Decode.Threads {
		changed = append(changed, "jt9")
	}
	if old.Source != cur.Source {
		changed = append(changed, "source")
	}
	if old.SpotLog != cur.SpotLog {
		changed = append(changed, "spotlog")
	}
	if old.MQTT != cur.MQTT {
		changed = append(changed, "mqtt")
	}
	if old.Web != cur.Web {
		changed = append(changed, "web")
	}
	return changed
}
