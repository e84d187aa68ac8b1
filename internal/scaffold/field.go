package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/pantry/internal/paths"
	"github.com/mesh-intelligence/pantry/internal/resources"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

// typeNames maps the type names accepted in field specs to field types.
var typeNames = map[string]types.FieldType{
	"string":    types.FieldString,
	"str":       types.FieldString,
	"text":      types.FieldText,
	"int":       types.FieldInteger,
	"integer":   types.FieldInteger,
	"money":     types.FieldMoney,
	"decimal":   types.FieldDecimal,
	"float":     types.FieldDecimal,
	"bool":      types.FieldBoolean,
	"boolean":   types.FieldBoolean,
	"time":      types.FieldTimestamp,
	"timestamp": types.FieldTimestamp,
	"enum":      types.FieldEnum,
	"ref":       types.FieldReference,
	"reference": types.FieldReference,
}

// ParseField parses a field spec of the form name:type[!][(args)].
// A "!" marks the field required. Arguments depend on the type:
// string(120) and text(2000) set the maximum length, enum(a|b|c) lists the
// options and ref(categories) names the referenced resource.
func ParseField(spec string) (types.Field, error) {
	var f types.Field
	name, rest, ok := strings.Cut(strings.TrimSpace(spec), ":")
	if !ok || name == "" || rest == "" {
		return f, fmt.Errorf("field %q: want name:type", spec)
	}
	f.Name = name

	var args string
	hasArgs := false
	if i := strings.IndexByte(rest, '('); i >= 0 {
		body := strings.TrimSuffix(rest[i:], "!")
		if !strings.HasSuffix(body, ")") {
			return f, fmt.Errorf("field %q: unclosed argument list", spec)
		}
		if strings.HasSuffix(rest, "!") {
			f.Required = true
		}
		args, hasArgs = body[1:len(body)-1], true
		rest = rest[:i]
	}
	if strings.HasSuffix(rest, "!") {
		f.Required = true
		rest = strings.TrimSuffix(rest, "!")
	}

	typ, ok := typeNames[strings.ToLower(rest)]
	if !ok {
		return f, fmt.Errorf("field %q: unknown type %q", spec, rest)
	}
	f.Type = typ

	switch {
	case !hasArgs:
	case typ == types.FieldString || typ == types.FieldText:
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("field %q: maximum length must be a positive number", spec)
		}
		f.MaxLength = n
	case typ == types.FieldEnum:
		for _, opt := range strings.Split(args, "|") {
			if opt = strings.TrimSpace(opt); opt != "" {
				f.Options = append(f.Options, opt)
			}
		}
	case typ == types.FieldReference:
		f.References = strings.TrimSpace(args)
	default:
		return f, fmt.Errorf("field %q: type %s takes no arguments", spec, typ)
	}
	if typ == types.FieldString || typ == types.FieldText {
		f.Searchable = true
	}
	return f, nil
}

// ResourceOptions configures Resource.
type ResourceOptions struct {
	// Format is resources.FormatYAML (the default) or resources.FormatTOML.
	Format string
	// KitVersion is checked against the project manifest when one exists.
	KitVersion string
	// Force overwrites an existing definition file.
	Force bool
}

// listColumns is how many leading fields are shown in admin list views.
const listColumns = 4

// Resource builds a resource from field specs, validates it together with
// the built-in resources and the project's existing resource files, and
// writes it to dir/resources/<name>.<format>. It returns the written path.
func Resource(dir, name string, specs []string, opts ResourceOptions) (string, error) {
	format := opts.Format
	if format == "" {
		format = resources.FormatYAML
	}
	if format != resources.FormatYAML && format != resources.FormatTOML {
		return "", fmt.Errorf("unknown resource format %q", format)
	}

	m, found, err := ReadManifest(dir)
	if err != nil {
		return "", err
	}
	if found {
		if err := m.Check(opts.KitVersion); err != nil {
			return "", err
		}
	}

	res := types.Resource{Name: name}
	for i, spec := range specs {
		f, err := ParseField(spec)
		if err != nil {
			return "", err
		}
		f.List = i < listColumns
		res.Fields = append(res.Fields, f)
	}

	resDir := filepath.Join(dir, paths.ResourcesDirName)
	reg, err := projectRegistry(resDir, name, opts.Force)
	if err != nil {
		return "", err
	}
	if err := reg.Register(res); err != nil {
		return "", err
	}
	if err := reg.Check(); err != nil {
		return "", err
	}

	data, err := resources.Encode(res, format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(resDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(resDir, name+"."+format)
	for _, ext := range []string{".yaml", ".yml", ".toml"} {
		if old := filepath.Join(resDir, name+ext); old != path {
			_ = os.Remove(old)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// projectRegistry registers the built-in resources and every resource file
// in resDir except the definitions of name. An existing definition of name
// is an error unless force is set.
func projectRegistry(resDir, name string, force bool) (*resources.Registry, error) {
	reg := resources.NewWithBuiltins()
	entries, err := os.ReadDir(resDir)
	if os.IsNotExist(err) {
		return reg, nil
	}
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || resources.FormatFor(e.Name()) == "" {
			continue
		}
		path := filepath.Join(resDir, e.Name())
		if strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())) == name {
			if !force {
				return nil, fmt.Errorf("resource %q is already defined in %s", name, path)
			}
			continue
		}
		res, err := resources.LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(res); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return reg, nil
}
