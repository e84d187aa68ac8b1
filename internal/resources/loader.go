package resources

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/pantry/pkg/types"
)

// Resource file formats.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// FormatFor returns the file format implied by a file name, or "" when the
// extension is not a resource file extension.
func FormatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return ""
	}
}

// Decode parses one resource definition in the given format. Unknown keys
// are rejected so that typos in resource files surface at startup.
func Decode(data []byte, format string) (types.Resource, error) {
	var res types.Resource
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&res); err != nil {
			return res, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&res); err != nil {
			return res, fmt.Errorf("decode toml: %w", err)
		}
	default:
		return res, fmt.Errorf("unknown resource format %q", format)
	}
	return res, nil
}

// Encode renders a resource definition in the given format.
func Encode(res types.Resource, format string) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	case FormatTOML:
		data, err := toml.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("encode toml: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown resource format %q", format)
	}
}

// LoadFile reads one resource file.
func LoadFile(path string) (types.Resource, error) {
	format := FormatFor(path)
	if format == "" {
		return types.Resource{}, fmt.Errorf("%s: not a resource file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Resource{}, err
	}
	res, err := Decode(data, format)
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

// LoadDir registers every resource file in dir, in file name order.
// A missing directory is not an error. Files with other extensions are
// ignored.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read resources dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() || FormatFor(e.Name()) == "" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		res, err := LoadFile(path)
		if err != nil {
			return err
		}
		if err := r.Register(res); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return r.Check()
}
