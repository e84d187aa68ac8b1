package scaffold

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ManifestFileName marks the root of a scaffolded project.
const ManifestFileName = "pantry.yaml"

// ErrIncompatible is returned when the running pantry version does not
// satisfy a project's kit constraint.
var ErrIncompatible = errors.New("pantry version does not satisfy the project's kit constraint")

// Manifest is the project file written by Project.
type Manifest struct {
	Name string `yaml:"name"`
	// Kit is a semver constraint on the pantry version, e.g. ">= 0.3.0".
	Kit string `yaml:"kit"`
}

// ReadManifest reads dir/pantry.yaml. The boolean is false when the file
// does not exist.
func ReadManifest(dir string) (Manifest, bool, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if os.IsNotExist(err) {
		return m, false, nil
	}
	if err != nil {
		return m, false, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, true, fmt.Errorf("parse %s: %w", ManifestFileName, err)
	}
	return m, true, nil
}

// Check reports whether version satisfies the manifest's kit constraint.
// An empty constraint accepts every version.
func (m Manifest) Check(version string) error {
	if m.Kit == "" {
		return nil
	}
	c, err := semver.NewConstraint(m.Kit)
	if err != nil {
		return fmt.Errorf("%s: kit constraint %q: %w", ManifestFileName, m.Kit, err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("pantry version %q: %w", version, err)
	}
	if ok, errs := c.Validate(v); !ok {
		return fmt.Errorf("%w: %s does not match %q: %v", ErrIncompatible, v, m.Kit, errors.Join(errs...))
	}
	return nil
}
