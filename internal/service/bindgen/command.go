package bindgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/oshokin/opus-provision/internal/logger"
)

// HeaderPlaceholder is replaced by the header path in CommandGenerator arguments.
const HeaderPlaceholder = "{header}"

var errNoCommand = errors.New("binding generator command is empty")

// CommandGenerator runs an external tool and takes its stdout as the bindings.
// When no argument contains HeaderPlaceholder, the header path is appended.
type CommandGenerator struct {
	Args []string
}

// Generate implements Generator.
func (c *CommandGenerator) Generate(ctx context.Context, headerPath string) ([]byte, error) {
	if len(c.Args) == 0 {
		return nil, errNoCommand
	}

	args := c.expand(headerPath)

	logger.DebugKV(ctx, "Running binding generator", "args", args)

	//nolint:gosec // The command comes from the pipeline configuration.
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}

	if stderr.Len() > 0 {
		logger.Debug(ctx, stderr.String())
	}

	return stdout.Bytes(), nil
}

func (c *CommandGenerator) expand(headerPath string) []string {
	args := make([]string, 0, len(c.Args)+1)
	substituted := false

	for _, arg := range c.Args {
		if strings.Contains(arg, HeaderPlaceholder) {
			substituted = true
			arg = strings.ReplaceAll(arg, HeaderPlaceholder, headerPath)
		}

		args = append(args, arg)
	}

	if !substituted {
		args = append(args, headerPath)
	}

	return args
}
