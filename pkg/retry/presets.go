package retry

import "time"

// Preset names a bundled retry configuration for a class of traffic.
type Preset string

const (
	// PresetQuick suits interactive calls where the user is waiting.
	PresetQuick Preset = "quick"

	// PresetStandard is the default profile for ordinary API calls.
	PresetStandard Preset = "standard"

	// PresetAggressive suits critical writes that must land.
	PresetAggressive Preset = "aggressive"

	// PresetConservative suits background, low-priority work.
	PresetConservative Preset = "conservative"
)

// Delay caps are ordered: aggressive >= standard >= quick.
var presets = map[Preset]Config{
	PresetQuick: {
		MaxRetries:    2,
		BaseDelay:     250 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2,
		Jitter:        true,
	},
	PresetStandard: {
		MaxRetries:    3,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
		Jitter:        true,
	},
	PresetAggressive: {
		MaxRetries:    5,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
		Jitter:        true,
	},
	PresetConservative: {
		MaxRetries:    2,
		BaseDelay:     5 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 3,
		Jitter:        true,
	},
}

// PresetConfig returns the configuration bundle for a named preset.
// Unknown names fall back to the standard profile.
func PresetConfig(p Preset) Config {
	cfg, ok := presets[p]
	if !ok {
		return presets[PresetStandard]
	}
	return cfg
}

// ParsePreset normalizes a preset name from configuration, falling
// back to standard for unknown values.
func ParsePreset(name string) Preset {
	switch Preset(name) {
	case PresetQuick, PresetStandard, PresetAggressive, PresetConservative:
		return Preset(name)
	default:
		return PresetStandard
	}
}
