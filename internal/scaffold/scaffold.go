// Package scaffold generates new pantry projects and resource definition
// files.
package scaffold

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/mesh-intelligence/pantry/internal/config"
)

//go:embed templates/*
var templates embed.FS

// KitModule is the module path generated projects depend on.
const KitModule = "github.com/mesh-intelligence/pantry"

// ErrNotEmpty is returned when scaffolding into a directory that already
// has files and Force is not set.
var ErrNotEmpty = errors.New("directory is not empty")

// ProjectOptions configures Project.
type ProjectOptions struct {
	// Name is the project name. Defaults to the directory name.
	Name string
	// Module is the Go module path. Defaults to example.com/<name>.
	Module string
	// KitVersion is the pantry version the project is generated for.
	KitVersion string
	// Force allows writing into a non-empty directory. Existing files with
	// the same names are overwritten.
	Force bool
}

var moduleNameRe = regexp.MustCompile(`[^a-z0-9._-]+`)

func (o ProjectOptions) withDefaults(dir string) (ProjectOptions, error) {
	if o.KitVersion == "" {
		return o, errors.New("kit version is required")
	}
	if o.Name == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return o, err
		}
		o.Name = filepath.Base(abs)
	}
	if o.Module == "" {
		o.Module = "example.com/" + strings.Trim(moduleNameRe.ReplaceAllString(strings.ToLower(o.Name), "-"), "-")
	}
	return o, nil
}

// fsnode is a file or directory in a scaffolded tree.
type fsnode struct {
	name         string
	isDir        bool
	children     []*fsnode
	templateName string
	content      func() ([]byte, error)
}

func dirFSNode(name string, children ...*fsnode) *fsnode {
	return &fsnode{name: name, isDir: true, children: children}
}

func fileFSNode(name, templateName string) *fsnode {
	return &fsnode{name: name, templateName: templateName}
}

func rawFSNode(name string, content func() ([]byte, error)) *fsnode {
	return &fsnode{name: name, content: content}
}

// Project writes a new pantry project into dir and returns the paths it
// wrote, relative to dir. The directory is created if needed; it must be
// empty unless opts.Force is set.
func Project(dir string, opts ProjectOptions) ([]string, error) {
	opts, err := opts.withDefaults(dir)
	if err != nil {
		return nil, err
	}
	if err := checkEmpty(dir); err != nil && !(opts.Force && errors.Is(err, ErrNotEmpty)) {
		return nil, err
	}

	args := map[string]string{
		"Name":       opts.Name,
		"Module":     opts.Module,
		"KitModule":  KitModule,
		"KitVersion": opts.KitVersion,
	}
	tree := dirFSNode("",
		fileFSNode("go.mod", "go.mod.tmpl"),
		fileFSNode("main.go", "main.go.tmpl"),
		rawFSNode("config.yaml", func() ([]byte, error) { return []byte(config.DefaultYAML()), nil }),
		fileFSNode(".env.example", "env.example.tmpl"),
		fileFSNode(".gitignore", "gitignore.tmpl"),
		fileFSNode(ManifestFileName, "pantry.yaml.tmpl"),
		dirFSNode("resources",
			fileFSNode("example.yaml", "example.yaml.tmpl"),
		),
	)
	var written []string
	if err := scaffold(tree, dir, "", args, &written); err != nil {
		return written, err
	}
	return written, nil
}

// scaffold creates the tree below basePath. Files are rendered from their
// template with args.
func scaffold(node *fsnode, basePath, rel string, args any, written *[]string) error {
	path := filepath.Join(basePath, node.name)
	rel = filepath.Join(rel, node.name)
	if node.isDir {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return err
		}
		for _, child := range node.children {
			if err := scaffold(child, path, rel, args, written); err != nil {
				return err
			}
		}
		return nil
	}

	var data []byte
	var err error
	switch {
	case node.content != nil:
		data, err = node.content()
	case node.templateName != "":
		data, err = renderTemplate(node.templateName, args)
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", rel, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	*written = append(*written, rel)
	return nil
}

func renderTemplate(name string, args any) ([]byte, error) {
	tmpls, err := template.New("").ParseFS(templates, "templates/*")
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	if err := tmpls.ExecuteTemplate(&b, name, args); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// checkEmpty returns ErrNotEmpty when dir exists and has entries. A missing
// directory is fine.
func checkEmpty(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("%w: %s", ErrNotEmpty, dir)
	}
	return nil
}
