// Package strategy composes trade strategies as capability records: a
// name plus a tick over the shared candle store. Instances are tuned by
// presets loaded from YAML (or JSON) files, so a deployment can run the
// stock TFQE tuning next to user-defined variants without code changes.
package strategy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/fxfunk/internal/tfqe"
)

// SchemaVersion is the current preset schema version.
const SchemaVersion = "1.0"

// PresetFile is the on-disk shape of a preset bundle: shared metadata
// plus one entry per strategy instance to build.
type PresetFile struct {
	Metadata PresetMetadata `yaml:"metadata" json:"metadata"`
	Presets  []Preset       `yaml:"presets" json:"presets"`
}

// PresetMetadata identifies and describes a preset bundle.
type PresetMetadata struct {
	// Schema version for compatibility checks.
	SchemaVersion string `yaml:"schema_version" json:"schema_version"`

	// Unique identifier, generated on export.
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string   `yaml:"author,omitempty" json:"author,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	CreatedAt time.Time `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`

	// Source records how the bundle came to be: "user", "export",
	// "import", "clone" or "merge".
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
}

// Kind names a strategy implementation the registry knows how to build.
type Kind string

// KindTFQE is the trend-following quality entry state machine.
const KindTFQE Kind = "tfqe"

// Preset tunes one strategy instance. Zero-valued knobs fall back to the
// implementation's defaults, so a preset only has to name what it changes.
type Preset struct {
	// Name is the registry key; it must be unique within a bundle.
	Name        string `yaml:"name" json:"name"`
	Kind        Kind   `yaml:"kind" json:"kind"`
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Symbols the instance trades; empty means every configured symbol.
	Symbols []string `yaml:"symbols,omitempty" json:"symbols,omitempty"`

	Session SessionSpec `yaml:"session,omitempty" json:"session,omitempty"`
	Risk    RiskSpec    `yaml:"risk,omitempty" json:"risk,omitempty"`

	// HistorySize bounds the per-symbol signal ring kept by the engine.
	HistorySize int `yaml:"history_size,omitempty" json:"history_size,omitempty"`
}

// SessionSpec is the JST trading window as wall-clock strings, start
// inclusive and end exclusive. "24:00" means midnight at the end of the
// day. Both fields must be set together.
type SessionSpec struct {
	Start string `yaml:"start,omitempty" json:"start,omitempty"`
	End   string `yaml:"end,omitempty" json:"end,omitempty"`
}

// RiskSpec holds the ATR multiples for stop and targets.
type RiskSpec struct {
	StopATRMult float64 `yaml:"stop_atr_mult,omitempty" json:"stop_atr_mult,omitempty"`
	TP1ATRMult  float64 `yaml:"tp1_atr_mult,omitempty" json:"tp1_atr_mult,omitempty"`
	TP2ATRMult  float64 `yaml:"tp2_atr_mult,omitempty" json:"tp2_atr_mult,omitempty"`
}

// DefaultPresetFile returns a bundle holding the stock TFQE tuning:
// Tokyo-evening session, 1.5 ATR stop, targets at 1 and 2 ATR.
func DefaultPresetFile() *PresetFile {
	now := time.Now()
	return &PresetFile{
		Metadata: PresetMetadata{
			SchemaVersion: SchemaVersion,
			ID:            uuid.New().String(),
			Name:          "default",
			Description:   "Stock trend-following pullback tuning.",
			CreatedAt:     now,
			UpdatedAt:     now,
			Source:        "user",
		},
		Presets: []Preset{
			{
				Name:        "tfqe",
				Kind:        KindTFQE,
				Enabled:     true,
				Description: "H1 trend filter, M15 pullback trigger.",
				Session:     SessionSpec{Start: "16:00", End: "24:00"},
				Risk:        RiskSpec{StopATRMult: 1.5, TP1ATRMult: 1.0, TP2ATRMult: 2.0},
				HistorySize: 96,
			},
		},
	}
}

// engineConfig translates the preset knobs into a TFQE engine config.
// Empty session strings leave the zero value so the engine applies its
// own defaults.
func (p Preset) engineConfig() (tfqe.Config, error) {
	var cfg tfqe.Config
	if p.Session.Start != "" {
		d, err := parseWallClock(p.Session.Start)
		if err != nil {
			return cfg, fmt.Errorf("session start: %w", err)
		}
		cfg.SessionStart = d
	}
	if p.Session.End != "" {
		d, err := parseWallClock(p.Session.End)
		if err != nil {
			return cfg, fmt.Errorf("session end: %w", err)
		}
		cfg.SessionEnd = d
	}
	cfg.StopATRMult = p.Risk.StopATRMult
	cfg.TP1ATRMult = p.Risk.TP1ATRMult
	cfg.TP2ATRMult = p.Risk.TP2ATRMult
	cfg.HistorySize = p.HistorySize
	return cfg, nil
}

// parseWallClock converts an "HH:MM" string into an offset from midnight.
// "24:00" is accepted as the exclusive end of day.
func parseWallClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid wall clock %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid wall clock %q, want HH:MM", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid wall clock %q, want HH:MM", s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("wall clock %q out of range", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
