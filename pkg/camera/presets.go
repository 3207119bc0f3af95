package camera

import "sort"

// Preset names for common configurations
const (
	PresetDefault  = "default"
	Preset480p     = "480p"
	Preset720p     = "720p"
	Preset1080p    = "1080p"
	PresetLowLight = "lowlight"
	PresetSelfie   = "selfie"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:  DefaultConfig(),
		Preset480p:     SD480Config(),
		Preset720p:     HD720Config(),
		Preset1080p:    HD1080Config(),
		PresetLowLight: LowLightConfig(),
		PresetSelfie:   SelfieConfig(),
	}
}

// PresetNames returns the sorted list of available preset names.
func PresetNames() []string {
	names := make([]string, 0, len(Presets()))
	for name := range Presets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// SD480Config trades detail for bandwidth on slow uplinks.
func SD480Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	cfg.Quality = 70
	return cfg
}

// HD720Config is the same as the default hint.
func HD720Config() Config {
	return DefaultConfig()
}

// HD1080Config returns 1080p. Frames are roughly twice the size of 720p.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	return cfg
}

// LowLightConfig lowers the framerate so the sensor can expose longer.
func LowLightConfig() Config {
	cfg := DefaultConfig()
	cfg.Framerate = 15
	cfg.Quality = 90
	return cfg
}

// SelfieConfig uses the front camera.
func SelfieConfig() Config {
	cfg := DefaultConfig()
	cfg.FacingMode = FacingUser
	return cfg
}
