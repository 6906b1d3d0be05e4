package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/fxfunk/internal/metrics"
)

// ExportFormat selects the serialization used by Export.
type ExportFormat string

const (
	FormatYAML ExportFormat = "yaml"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures preset export behavior.
type ExportOptions struct {
	Format ExportFormat

	// IncludeMetadata refreshes identity fields on the way out.
	IncludeMetadata bool

	// PrettyPrint enables indented output.
	PrettyPrint bool

	// AddComments prefixes YAML output with a descriptive header.
	AddComments bool
}

// DefaultExportOptions returns the options used by the CLI paths.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Format:          FormatYAML,
		IncludeMetadata: true,
		PrettyPrint:     true,
		AddComments:     true,
	}
}

// ImportOptions configures preset import behavior.
type ImportOptions struct {
	// ValidateStrict runs the full validator instead of the quick check.
	ValidateStrict bool

	// GenerateNewID gives the imported bundle a fresh identity.
	GenerateNewID bool

	// OverrideMetadata replaces descriptive fields on the way in.
	OverrideMetadata *PresetMetadata
}

// DefaultImportOptions returns the options used by the daemon at startup.
func DefaultImportOptions() ImportOptions {
	return ImportOptions{
		ValidateStrict: true,
		GenerateNewID:  true,
	}
}

// Export serializes a preset bundle to the requested format.
func Export(file *PresetFile, opts ExportOptions) ([]byte, error) {
	if file == nil {
		return nil, fmt.Errorf("preset file cannot be nil")
	}

	// Work on a copy so callers keep their timestamps.
	out := *file
	if opts.IncludeMetadata {
		out.Metadata.UpdatedAt = time.Now()
		if out.Metadata.ID == "" {
			out.Metadata.ID = uuid.New().String()
		}
		if out.Metadata.SchemaVersion == "" {
			out.Metadata.SchemaVersion = SchemaVersion
		}
		if out.Metadata.Source == "" {
			out.Metadata.Source = "export"
		}
	}

	switch opts.Format {
	case FormatYAML:
		return exportToYAML(&out, opts)
	case FormatJSON:
		return exportToJSON(&out, opts)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", opts.Format)
	}
}

func exportToYAML(file *PresetFile, opts ExportOptions) ([]byte, error) {
	var buf bytes.Buffer

	if opts.AddComments {
		buf.WriteString("# fxfunk strategy presets\n")
		buf.WriteString(fmt.Sprintf("# Schema version: %s\n", file.Metadata.SchemaVersion))
		buf.WriteString(fmt.Sprintf("# Exported: %s\n", time.Now().Format(time.RFC3339)))
		buf.WriteString("\n")
	}

	encoder := yaml.NewEncoder(&buf)
	if opts.PrettyPrint {
		encoder.SetIndent(2)
	}
	if err := encoder.Encode(file); err != nil {
		return nil, fmt.Errorf("failed to encode presets to YAML: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to close YAML encoder: %w", err)
	}

	return buf.Bytes(), nil
}

func exportToJSON(file *PresetFile, opts ExportOptions) ([]byte, error) {
	var data []byte
	var err error
	if opts.PrettyPrint {
		data, err = json.MarshalIndent(file, "", "  ")
	} else {
		data, err = json.Marshal(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode presets to JSON: %w", err)
	}
	return data, nil
}

// ExportToFile writes a bundle to disk, inferring the format from the
// extension when none is set.
func ExportToFile(file *PresetFile, path string, opts ExportOptions) error {
	if opts.Format == "" {
		switch filepath.Ext(path) {
		case ".json":
			opts.Format = FormatJSON
		default:
			opts.Format = FormatYAML
		}
	}

	data, err := Export(file, opts)
	if err != nil {
		return fmt.Errorf("failed to export presets: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write preset file: %w", err)
	}
	return nil
}

// Import deserializes a preset bundle, migrates it to the current schema
// and validates it.
func Import(data []byte, opts ImportOptions) (*PresetFile, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty preset data")
	}

	// First non-whitespace byte decides which parser to try first.
	isJSON := false
	for _, b := range data {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		isJSON = b == '{' || b == '['
		break
	}

	var file PresetFile
	var parseErr error
	if isJSON {
		if err := json.Unmarshal(data, &file); err != nil {
			if yamlErr := yaml.Unmarshal(data, &file); yamlErr != nil {
				parseErr = fmt.Errorf("failed to parse as JSON (%v) or YAML (%v)", err, yamlErr)
			}
		}
	} else {
		if err := yaml.Unmarshal(data, &file); err != nil {
			if jsonErr := json.Unmarshal(data, &file); jsonErr != nil {
				parseErr = fmt.Errorf("failed to parse as YAML (%v) or JSON (%v)", err, jsonErr)
			}
		}
	}
	if parseErr != nil {
		metrics.RecordError("preset_parse", "strategy")
		return nil, parseErr
	}

	if err := CheckCompatibility(&file); err != nil {
		metrics.RecordError("preset_schema", "strategy")
		return nil, err
	}
	if err := Migrate(&file); err != nil {
		metrics.RecordError("preset_migration", "strategy")
		return nil, err
	}

	if opts.GenerateNewID {
		file.Metadata.ID = uuid.New().String()
	}
	if opts.OverrideMetadata != nil {
		if opts.OverrideMetadata.Name != "" {
			file.Metadata.Name = opts.OverrideMetadata.Name
		}
		if opts.OverrideMetadata.Description != "" {
			file.Metadata.Description = opts.OverrideMetadata.Description
		}
		if opts.OverrideMetadata.Author != "" {
			file.Metadata.Author = opts.OverrideMetadata.Author
		}
		if len(opts.OverrideMetadata.Tags) > 0 {
			file.Metadata.Tags = opts.OverrideMetadata.Tags
		}
	}

	file.Metadata.UpdatedAt = time.Now()
	if file.Metadata.Source == "" {
		file.Metadata.Source = "import"
	}

	var err error
	if opts.ValidateStrict {
		err = file.Validate()
	} else {
		err = file.ValidateQuick()
	}
	if err != nil {
		metrics.RecordError("preset_validation", "strategy")
		return nil, fmt.Errorf("preset validation failed: %w", err)
	}

	return &file, nil
}

// ImportFromFile reads and imports a bundle from disk.
func ImportFromFile(path string, opts ImportOptions) (*PresetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset file: %w", err)
	}
	file, err := Import(data, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to import presets from %s: %w", path, err)
	}
	return file, nil
}

// ImportFromReader imports a bundle from a stream.
func ImportFromReader(r io.Reader, opts ImportOptions) (*PresetFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset data: %w", err)
	}
	return Import(data, opts)
}

// Clone deep-copies a bundle and gives the copy a fresh identity.
func Clone(file *PresetFile) (*PresetFile, error) {
	if file == nil {
		return nil, fmt.Errorf("preset file cannot be nil")
	}

	data, err := json.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal presets: %w", err)
	}
	var clone PresetFile
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presets: %w", err)
	}

	clone.Metadata.ID = uuid.New().String()
	clone.Metadata.CreatedAt = time.Now()
	clone.Metadata.UpdatedAt = time.Now()
	clone.Metadata.Source = "clone"
	return &clone, nil
}

// Merge overlays override onto base. Presets are matched by name; only
// non-zero override knobs replace base values, except Enabled, which is
// always taken from the override for matched presets. Presets that only
// exist in the override are appended.
func Merge(base, override *PresetFile) (*PresetFile, error) {
	if base == nil {
		return nil, fmt.Errorf("base presets cannot be nil")
	}

	result, err := Clone(base)
	if err != nil {
		return nil, fmt.Errorf("failed to clone base presets: %w", err)
	}
	if override == nil {
		return result, nil
	}

	if override.Metadata.Name != "" {
		result.Metadata.Name = override.Metadata.Name
	}
	if override.Metadata.Description != "" {
		result.Metadata.Description = override.Metadata.Description
	}
	if len(override.Metadata.Tags) > 0 {
		result.Metadata.Tags = override.Metadata.Tags
	}

	byName := make(map[string]int, len(result.Presets))
	for i, p := range result.Presets {
		byName[p.Name] = i
	}
	for _, o := range override.Presets {
		i, ok := byName[o.Name]
		if !ok {
			result.Presets = append(result.Presets, o)
			continue
		}
		mergePreset(&result.Presets[i], o)
	}

	result.Metadata.UpdatedAt = time.Now()
	result.Metadata.Source = "merge"
	return result, nil
}

func mergePreset(base *Preset, override Preset) {
	base.Enabled = override.Enabled
	if override.Kind != "" {
		base.Kind = override.Kind
	}
	if override.Description != "" {
		base.Description = override.Description
	}
	if len(override.Symbols) > 0 {
		base.Symbols = override.Symbols
	}
	if override.Session.Start != "" {
		base.Session.Start = override.Session.Start
	}
	if override.Session.End != "" {
		base.Session.End = override.Session.End
	}
	if override.Risk.StopATRMult > 0 {
		base.Risk.StopATRMult = override.Risk.StopATRMult
	}
	if override.Risk.TP1ATRMult > 0 {
		base.Risk.TP1ATRMult = override.Risk.TP1ATRMult
	}
	if override.Risk.TP2ATRMult > 0 {
		base.Risk.TP2ATRMult = override.Risk.TP2ATRMult
	}
	if override.HistorySize > 0 {
		base.HistorySize = override.HistorySize
	}
}
