package directive

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CgoFlags describes the cgo flags file.
type CgoFlags struct {
	// Package is the Go package clause.
	Package string
	// ArtifactRoot holds include/ and lib/.
	ArtifactRoot string
	// Library is the static library base name.
	Library string
}

// Render produces the Go source of the flags file.
func (f CgoFlags) Render() []byte {
	include := filepath.ToSlash(filepath.Join(f.ArtifactRoot, "include"))
	lib := filepath.ToSlash(filepath.Join(f.ArtifactRoot, LibDirName))

	var b bytes.Buffer

	b.WriteString("// Code generated by opus-provision. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", f.Package)
	fmt.Fprintf(&b, "// #cgo CFLAGS: -I%s\n", quoteCgo(include))
	fmt.Fprintf(&b, "// #cgo LDFLAGS: -L%s -l%s\n", quoteCgo(lib), f.Library)
	b.WriteString("import \"C\"\n")

	return b.Bytes()
}

// Write renders the flags file to path, creating parent directories.
func (f CgoFlags) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cgo file directory: %w", err)
	}

	if err := os.WriteFile(path, f.Render(), 0o644); err != nil { //nolint:gosec // Generated source is world-readable.
		return fmt.Errorf("write cgo file: %w", err)
	}

	return nil
}

// quoteCgo escapes spaces, which cgo would otherwise treat as flag separators.
func quoteCgo(path string) string {
	if !strings.ContainsAny(path, " \t") {
		return path
	}

	return "'" + path + "'"
}
