// Package sources provides mix descriptor adapters over external
// commands, the last.fm recommendation endpoint and chart feeds.
package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/m1ser4ble/mixfollower/internal/core"
)

// CommandSource runs a configured command and parses its stdout as a
// mix descriptor document.
type CommandSource struct {
	command string
}

// NewCommandSource creates a source for one fetch command.
func NewCommandSource(command string) (*CommandSource, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("fetch command required")
	}
	return &CommandSource{command: command}, nil
}

// Name identifies the source in logs and results.
func (s *CommandSource) Name() string { return s.command }

// Kind reports the adapter kind.
func (s *CommandSource) Kind() string { return "command" }

// Fetch executes the command to completion and parses its output.
func (s *CommandSource) Fetch(ctx context.Context) (core.MixDescriptor, error) {
	argv := core.SplitCommand(s.command)
	if len(argv) == 0 {
		return core.MixDescriptor{}, errors.New("empty fetch command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return core.MixDescriptor{}, ctxErr
		}
		return core.MixDescriptor{}, fmt.Errorf("run %s: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
	}

	mix, err := core.ParseDescriptor(stdout.Bytes())
	if err != nil {
		return core.MixDescriptor{}, fmt.Errorf("%s: %w", s.command, err)
	}
	return mix, nil
}
