package config

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-reloaded are tracked; everything else requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SynthChanged bool
	SynthChanges []SynthDiff
}

// SynthDiff describes what changed for a single synth backend between two
// configs.
type SynthDiff struct {
	Name    string
	Changed bool
	Added   bool
	Removed bool
}

// Diff compares old and new configs and returns what changed. Only tracks
// changes that are safe to apply without restarting the active session.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldSynth := make(map[string]SynthEntry, len(old.Synth))
	for _, e := range old.Synth {
		oldSynth[e.Name] = e
	}
	newSynth := make(map[string]SynthEntry, len(new.Synth))
	for _, e := range new.Synth {
		newSynth[e.Name] = e
	}

	for name, oldEntry := range oldSynth {
		newEntry, exists := newSynth[name]
		if !exists {
			d.SynthChanges = append(d.SynthChanges, SynthDiff{Name: name, Removed: true})
			d.SynthChanged = true
			continue
		}
		if oldEntry != newEntry {
			d.SynthChanges = append(d.SynthChanges, SynthDiff{Name: name, Changed: true})
			d.SynthChanged = true
		}
	}
	for name := range newSynth {
		if _, exists := oldSynth[name]; !exists {
			d.SynthChanges = append(d.SynthChanges, SynthDiff{Name: name, Added: true})
			d.SynthChanged = true
		}
	}

	return d
}
