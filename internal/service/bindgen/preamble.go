package bindgen

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// PreambleGenerator emits a cgo stub that includes the header. The header is
// not parsed; cgo resolves its declarations when the package is compiled.
type PreambleGenerator struct {
	// Package is the Go package clause.
	Package string
	// IncludeDir, when it contains the header, turns the include into
	// <relative/path.h> form so it resolves through -I.
	IncludeDir string
}

// Generate implements Generator.
func (p *PreambleGenerator) Generate(_ context.Context, headerPath string) ([]byte, error) {
	include := fmt.Sprintf("%q", filepath.ToSlash(headerPath))

	if p.IncludeDir != "" {
		rel, err := filepath.Rel(p.IncludeDir, headerPath)
		if err == nil && filepath.IsLocal(rel) {
			include = "<" + filepath.ToSlash(rel) + ">"
		}
	}

	var b bytes.Buffer

	fmt.Fprintf(&b, "// Code generated by opus-provision from %s. DO NOT EDIT.\n\n", filepath.Base(headerPath))
	fmt.Fprintf(&b, "package %s\n\n", p.Package)
	fmt.Fprintf(&b, "// #include %s\n", include)
	b.WriteString("import \"C\"\n")

	return []byte(strings.TrimLeft(b.String(), "\n")), nil
}
