package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ajitpratap0/fxfunk/internal/market"
)

// ValidationError describes a single rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every issue found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// ErrInvalidSchema is returned when the schema version is not supported.
var ErrInvalidSchema = errors.New("invalid or unsupported schema version")

// ErrMissingRequiredField is returned when a required field is missing.
var ErrMissingRequiredField = errors.New("missing required field")

// SupportedSchemaVersions lists the schema versions this build can load.
var SupportedSchemaVersions = []string{"1.0"}

// Validate checks the whole bundle and returns nil or ValidationErrors
// with every issue found.
func (f *PresetFile) Validate() error {
	var errs ValidationErrors
	errs = append(errs, f.validateMetadata()...)
	errs = append(errs, f.validatePresets()...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (f *PresetFile) validateMetadata() ValidationErrors {
	var errs ValidationErrors

	if f.Metadata.SchemaVersion == "" {
		errs = append(errs, ValidationError{
			Field:   "metadata.schema_version",
			Message: "schema version is required",
		})
	} else if !isVersionSupported(f.Metadata.SchemaVersion) {
		errs = append(errs, ValidationError{
			Field:   "metadata.schema_version",
			Message: fmt.Sprintf("unsupported schema version %s, supported: %v", f.Metadata.SchemaVersion, SupportedSchemaVersions),
		})
	}

	if f.Metadata.Name == "" {
		errs = append(errs, ValidationError{
			Field:   "metadata.name",
			Message: "bundle name is required",
		})
	} else if len(f.Metadata.Name) > 100 {
		errs = append(errs, ValidationError{
			Field:   "metadata.name",
			Message: "bundle name must be 100 characters or less",
		})
	}

	if len(f.Metadata.Description) > 2000 {
		errs = append(errs, ValidationError{
			Field:   "metadata.description",
			Message: "description must be 2000 characters or less",
		})
	}

	if len(f.Metadata.Tags) > 20 {
		errs = append(errs, ValidationError{
			Field:   "metadata.tags",
			Message: "maximum 20 tags allowed",
		})
	}
	for i, tag := range f.Metadata.Tags {
		if len(tag) > 50 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("metadata.tags[%d]", i),
				Message: "tag must be 50 characters or less",
			})
		}
	}

	return errs
}

func (f *PresetFile) validatePresets() ValidationErrors {
	var errs ValidationErrors

	if len(f.Presets) == 0 {
		errs = append(errs, ValidationError{
			Field:   "presets",
			Message: "at least one preset is required",
		})
		return errs
	}

	seen := make(map[string]bool, len(f.Presets))
	for i, p := range f.Presets {
		prefix := fmt.Sprintf("presets[%d]", i)

		if p.Name == "" {
			errs = append(errs, ValidationError{
				Field:   prefix + ".name",
				Message: "preset name is required",
			})
		} else {
			if len(p.Name) > 100 {
				errs = append(errs, ValidationError{
					Field:   prefix + ".name",
					Message: "preset name must be 100 characters or less",
				})
			}
			if seen[p.Name] {
				errs = append(errs, ValidationError{
					Field:   prefix + ".name",
					Message: fmt.Sprintf("duplicate preset name %q", p.Name),
				})
			}
			seen[p.Name] = true
		}

		if p.Kind != KindTFQE {
			errs = append(errs, ValidationError{
				Field:   prefix + ".kind",
				Message: fmt.Sprintf("unknown strategy kind %q, supported: %s", p.Kind, KindTFQE),
			})
		}

		for j, sym := range p.Symbols {
			if !market.IsSupported(sym) {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.symbols[%d]", prefix, j),
					Message: fmt.Sprintf("unsupported symbol %s", sym),
				})
			}
		}

		errs = append(errs, validateSession(p.Session, prefix+".session")...)
		errs = append(errs, validateRisk(p.Risk, prefix+".risk")...)

		if p.HistorySize < 0 {
			errs = append(errs, ValidationError{
				Field:   prefix + ".history_size",
				Message: "history size cannot be negative",
			})
		}
	}

	return errs
}

func validateSession(s SessionSpec, prefix string) ValidationErrors {
	var errs ValidationErrors

	if (s.Start == "") != (s.End == "") {
		errs = append(errs, ValidationError{
			Field:   prefix,
			Message: "session start and end must be set together",
		})
		return errs
	}
	if s.Start == "" {
		return nil
	}

	start, err := parseWallClock(s.Start)
	if err != nil {
		errs = append(errs, ValidationError{Field: prefix + ".start", Message: err.Error()})
	}
	end, err := parseWallClock(s.End)
	if err != nil {
		errs = append(errs, ValidationError{Field: prefix + ".end", Message: err.Error()})
	}
	if len(errs) == 0 && start >= end {
		errs = append(errs, ValidationError{
			Field:   prefix + ".start",
			Message: "session start must be before session end",
		})
	}

	return errs
}

func validateRisk(r RiskSpec, prefix string) ValidationErrors {
	var errs ValidationErrors

	multiples := map[string]float64{
		prefix + ".stop_atr_mult": r.StopATRMult,
		prefix + ".tp1_atr_mult":  r.TP1ATRMult,
		prefix + ".tp2_atr_mult":  r.TP2ATRMult,
	}
	for field, v := range multiples {
		if v < 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "ATR multiple cannot be negative",
			})
		}
	}

	// The first target is the nearer one; the management contract closes
	// half there and lets the rest run to the second.
	if r.TP1ATRMult > 0 && r.TP2ATRMult > 0 && r.TP1ATRMult >= r.TP2ATRMult {
		errs = append(errs, ValidationError{
			Field:   prefix + ".tp1_atr_mult",
			Message: fmt.Sprintf("tp1 multiple (%.2f) must be less than tp2 multiple (%.2f)", r.TP1ATRMult, r.TP2ATRMult),
		})
	}

	return errs
}

func isVersionSupported(version string) bool {
	for _, v := range SupportedSchemaVersions {
		if v == version {
			return true
		}
	}
	return false
}

// ValidateQuick performs the minimal checks needed before touching the
// rest of a bundle.
func (f *PresetFile) ValidateQuick() error {
	if f.Metadata.SchemaVersion == "" {
		return fmt.Errorf("%w: metadata.schema_version", ErrMissingRequiredField)
	}
	if !isVersionSupported(f.Metadata.SchemaVersion) {
		return ErrInvalidSchema
	}
	if f.Metadata.Name == "" {
		return fmt.Errorf("%w: metadata.name", ErrMissingRequiredField)
	}
	return nil
}
