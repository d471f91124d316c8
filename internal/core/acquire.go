package core

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Pipeline tries an ordered list of acquisition command templates to
// materialize a missing song, re-resolving after each successful run.
type Pipeline struct {
	sources []string
	matcher *Matcher
	log     *zap.Logger
}

// NewPipeline creates an acquisition pipeline over the configured
// command templates.
func NewPipeline(sources []string, matcher *Matcher, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{sources: sources, matcher: matcher, log: log}
}

// Acquire walks the source chain in configured order. The first source
// whose run succeeds and whose re-resolution finds the song stops the
// chain. Per-source failures are logged and skipped; cancellation
// aborts immediately. A nil item means the chain was exhausted.
func (p *Pipeline) Acquire(ctx context.Context, title, artist string) (*IndexedItem, error) {
	for _, source := range p.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Network-scheme templates are identifiers that slipped into
		// the command list, not executables.
		if strings.HasPrefix(source, "https") {
			p.log.Debug("skipping non-executable source", zap.String("source", source))
			continue
		}

		if err := p.runSource(ctx, source, title, artist); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			p.log.Warn("acquisition source failed",
				zap.String("source", source),
				zap.String("title", title),
				zap.String("artist", artist),
				zap.Error(err))
			continue
		}

		item, err := p.matcher.Resolve(ctx, title, artist)
		if err != nil {
			return nil, err
		}
		if item != nil {
			p.log.Info("acquired",
				zap.String("source", source),
				zap.String("title", title),
				zap.String("item_id", item.ID))
			return item, nil
		}
	}
	return nil, nil
}

func (p *Pipeline) runSource(ctx context.Context, source, title, artist string) error {
	interpolated := strings.NewReplacer(
		"${title}", `"`+title+`"`,
		"${artist}", `"`+artist+`"`,
	).Replace(source)

	argv := SplitCommand(interpolated)
	if len(argv) == 0 {
		return errors.New("empty command template")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	return nil
}

// SplitCommand splits a command line on spaces, honoring double quotes
// so interpolated titles and quoted configured arguments survive
// tokenization.
func SplitCommand(line string) []string {
	var (
		args    []string
		current strings.Builder
		quoted  bool
		pending bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case r == ' ' && !quoted:
			if pending {
				args = append(args, current.String())
				current.Reset()
				pending = false
			}
		default:
			current.WriteRune(r)
			pending = true
		}
	}
	if pending {
		args = append(args, current.String())
	}
	return args
}
