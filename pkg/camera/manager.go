package camera

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Manager holds the current camera configuration and handles updates.
type Manager struct {
	config Config
	mu     sync.RWMutex

	// OnConfigChange is called after a validated update so the new
	// constraints can be applied to the device.
	OnConfigChange func(cfg Config) error
}

// NewManager creates a new camera manager with the given initial config.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates and stores cfg, then notifies OnConfigChange.
func (m *Manager) SetConfig(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("camera: invalid config: %s", strings.Join(problems, "; "))
	}

	m.mu.Lock()
	m.config = cfg
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(cfg); err != nil {
			return fmt.Errorf("camera: apply config: %w", err)
		}
	}

	return nil
}

// UpdateConfig updates specific fields of the configuration.
// A "preset" key replaces the whole config before other keys apply.
func (m *Manager) UpdateConfig(params map[string]any) error {
	cfg := m.GetConfig()

	if presetName, ok := params["preset"].(string); ok {
		preset := GetPreset(presetName)
		if preset == nil {
			return fmt.Errorf("camera: unknown preset %q", presetName)
		}
		cfg = *preset
	}

	for key, value := range params {
		switch key {
		case "width":
			if v, ok := toInt(value); ok {
				cfg.Width = v
			}
		case "height":
			if v, ok := toInt(value); ok {
				cfg.Height = v
			}
		case "framerate":
			if v, ok := toInt(value); ok {
				cfg.Framerate = v
			}
		case "quality":
			if v, ok := toInt(value); ok {
				cfg.Quality = v
			}
		case "facing_mode":
			if v, ok := value.(string); ok {
				cfg.FacingMode = v
			}
		case "rear_device":
			if v, ok := toInt(value); ok {
				cfg.RearDevice = v
			}
		case "front_device":
			if v, ok := toInt(value); ok {
				cfg.FrontDevice = v
			}
		case "source":
			if v, ok := value.(string); ok {
				cfg.Source = v
			}
		}
	}

	return m.SetConfig(cfg)
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}
