package bindgen

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/opus-provision/internal/logger"
)

// BindingsFileMode is the permission of the generated file.
const BindingsFileMode os.FileMode = 0o644

var (
	// ErrEmptyBindings is returned when a generator succeeds with no output.
	ErrEmptyBindings = errors.New("binding generator produced no output")
	// errHeaderIsDirectory is returned when the header path names a directory.
	errHeaderIsDirectory = errors.New("header path is a directory")
)

// Generator produces interface source for a C header.
type Generator interface {
	Generate(ctx context.Context, headerPath string) ([]byte, error)
}

// GenerateBindings runs g against headerPath and overwrites outputPath with
// the result. It returns the SHA-256 of the written content.
func GenerateBindings(ctx context.Context, g Generator, headerPath, outputPath string) ([]byte, error) {
	info, err := os.Stat(headerPath)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("%s: %w", headerPath, errHeaderIsDirectory)
	}

	logger.InfoKV(ctx, "Generating bindings", "header", headerPath, "output", outputPath)

	source, err := g.Generate(ctx, headerPath)
	if err != nil {
		return nil, fmt.Errorf("binding generator: %w", err)
	}

	if len(bytes.TrimSpace(source)) == 0 {
		return nil, ErrEmptyBindings
	}

	checksum, err := replaceFile(outputPath, source)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Bindings written", "output", outputPath, "bytes", len(source))

	return checksum, nil
}

// replaceFile swaps outputPath for content via go-update, which verifies the
// checksum before renaming the new file into place.
func replaceFile(outputPath string, content []byte) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create bindings directory: %w", err)
	}

	if _, err := os.Stat(outputPath); errors.Is(err, os.ErrNotExist) {
		f, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE, BindingsFileMode) //nolint:gosec // Path is under the output directory.
		if err != nil {
			return nil, fmt.Errorf("create bindings file: %w", err)
		}

		if err = f.Close(); err != nil {
			return nil, fmt.Errorf("create bindings file: %w", err)
		}
	}

	checksum := sha256.Sum256(content)

	options := goupdate.Options{
		TargetPath: outputPath,
		TargetMode: BindingsFileMode,
		Checksum:   checksum[:],
		Hash:       crypto.SHA256,
	}

	if err := goupdate.Apply(bytes.NewReader(content), options); err != nil {
		if rerr := goupdate.RollbackError(err); rerr != nil {
			return nil, fmt.Errorf("write bindings: %w (rollback failed: %w)", err, rerr)
		}

		return nil, fmt.Errorf("write bindings: %w", err)
	}

	// go-update may leave the previous version behind on some platforms.
	oldFileName := filepath.Join(filepath.Dir(outputPath), "."+filepath.Base(outputPath)+".old")
	if _, err := os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	return checksum[:], nil
}
