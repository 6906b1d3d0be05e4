package strategy

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// MigrationFunc upgrades a preset bundle written under an older schema.
type MigrationFunc func(*PresetFile) error

// migrations maps source schema versions to their upgrade functions.
// Empty until the schema changes; the plumbing is exercised by Import.
var migrations = map[string]MigrationFunc{}

// parseVersion parses a schema version, tolerating the short "1.0" form
// the bundles actually carry.
func parseVersion(version string) (*semver.Version, error) {
	v, err := semver.NewVersion(version)
	if err == nil {
		return v, nil
	}
	v, err = semver.NewVersion(version + ".0")
	if err != nil {
		return nil, fmt.Errorf("invalid schema version: %s", version)
	}
	return v, nil
}

// Migrate upgrades a preset bundle to the current schema version,
// applying any registered migrations along the way.
func Migrate(file *PresetFile) error {
	if file == nil {
		return fmt.Errorf("preset file cannot be nil")
	}
	if file.Metadata.SchemaVersion == SchemaVersion {
		return nil
	}

	current, err := parseVersion(file.Metadata.SchemaVersion)
	if err != nil {
		return err
	}
	target, err := parseVersion(SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid target schema version: %s", SchemaVersion)
	}

	if current.GreaterThan(target) {
		return fmt.Errorf("preset schema version %s is newer than supported version %s",
			file.Metadata.SchemaVersion, SchemaVersion)
	}

	for version, migrate := range migrations {
		migrationVersion, err := parseVersion(version)
		if err != nil {
			continue
		}
		if current.LessThan(migrationVersion) {
			if err := migrate(file); err != nil {
				return fmt.Errorf("migration from %s failed: %w", version, err)
			}
		}
	}

	file.Metadata.SchemaVersion = SchemaVersion
	return nil
}

// CheckCompatibility reports whether a bundle can be loaded by this
// build, either directly or after migration.
func CheckCompatibility(file *PresetFile) error {
	if file == nil {
		return fmt.Errorf("preset file cannot be nil")
	}
	if file.Metadata.SchemaVersion == "" {
		return fmt.Errorf("missing schema version")
	}

	current, err := parseVersion(file.Metadata.SchemaVersion)
	if err != nil {
		return err
	}
	target, err := parseVersion(SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid target schema version: %s", SchemaVersion)
	}

	if current.GreaterThan(target) {
		return fmt.Errorf("presets require schema version %s, but only %s is supported",
			file.Metadata.SchemaVersion, SchemaVersion)
	}

	// Only same-major migrations are supported.
	if current.LessThan(target) && current.Major() != target.Major() {
		return fmt.Errorf("no migration path from version %s to %s",
			file.Metadata.SchemaVersion, SchemaVersion)
	}

	return nil
}

// CompareVersions compares two schema version strings.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
func CompareVersions(a, b string) (int, error) {
	va, err := parseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := parseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// IsVersionSupported reports whether a schema version can be loaded,
// treating patch releases of a supported major.minor as compatible.
func IsVersionSupported(version string) bool {
	if isVersionSupported(version) {
		return true
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	for _, supported := range SupportedSchemaVersions {
		sv, err := parseVersion(supported)
		if err != nil {
			continue
		}
		if v.Major() == sv.Major() && v.Minor() == sv.Minor() {
			return true
		}
	}
	return false
}

// VersionInfo describes how a bundle's schema relates to this build.
type VersionInfo struct {
	SchemaVersion     string `json:"schema_version"`
	IsCompatible      bool   `json:"is_compatible"`
	RequiresMigration bool   `json:"requires_migration"`
	MigrationPath     string `json:"migration_path,omitempty"`
}

// GetVersionInfo inspects a bundle without modifying it.
func GetVersionInfo(file *PresetFile) (*VersionInfo, error) {
	if file == nil {
		return nil, fmt.Errorf("preset file cannot be nil")
	}

	info := &VersionInfo{SchemaVersion: file.Metadata.SchemaVersion}
	info.IsCompatible = CheckCompatibility(file) == nil

	if file.Metadata.SchemaVersion != SchemaVersion {
		cmp, err := CompareVersions(file.Metadata.SchemaVersion, SchemaVersion)
		if err == nil && cmp < 0 {
			info.RequiresMigration = true
			info.MigrationPath = fmt.Sprintf("%s -> %s", file.Metadata.SchemaVersion, SchemaVersion)
		}
	}

	return info, nil
}
