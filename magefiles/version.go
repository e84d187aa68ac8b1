//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/magefile/mage/mg"
)

// versionFile holds the kit Version constant. Generated projects pin it
// in pantry.yaml.
const versionFile = "pkg/pantry/version.go"

var versionRe = regexp.MustCompile(`const Version = "([^"]+)"`)

// Version groups release targets.
type Version mg.Namespace

// Show prints the current kit version.
func (Version) Show() error {
	v, err := currentVersion()
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

// Bump increments the kit version. part is patch, minor or major.
func (Version) Bump(part string) error {
	v, err := currentVersion()
	if err != nil {
		return err
	}
	var next semver.Version
	switch part {
	case "patch":
		next = v.IncPatch()
	case "minor":
		next = v.IncMinor()
	case "major":
		next = v.IncMajor()
	default:
		return fmt.Errorf("unknown version part %q (want patch, minor or major)", part)
	}
	if err := writeVersionFile(next.String()); err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", v, next.String())
	return nil
}

func currentVersion() (*semver.Version, error) {
	data, err := os.ReadFile(versionFile)
	if err != nil {
		return nil, err
	}
	m := versionRe.FindSubmatch(data)
	if m == nil {
		return nil, fmt.Errorf("%s: no Version constant", versionFile)
	}
	return semver.NewVersion(string(m[1]))
}

// writeVersionFile rewrites pkg/pantry/version.go with the given version.
func writeVersionFile(version string) error {
	if err := os.MkdirAll(filepath.Dir(versionFile), 0o755); err != nil {
		return err
	}
	content := fmt.Sprintf("package pantry\n\n// Version is the pantry kit version.\nconst Version = %q\n", version)
	return os.WriteFile(versionFile, []byte(content), 0o644)
}
