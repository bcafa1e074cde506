// Package speech announces recognitions out loud.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Speaker says a line of text. Say returns once playback finished or
// failed, so callers bound it with ctx.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

// CommandSpeaker runs a local synthesizer with the text as last argument.
type CommandSpeaker struct {
	argv   []string
	logger *slog.Logger
}

// NewCommandSpeaker creates a speaker running argv (DefaultCommand if empty).
func NewCommandSpeaker(logger *slog.Logger, argv ...string) *CommandSpeaker {
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandSpeaker{argv: argv, logger: logger.With("component", "speech.command")}
}

// Say runs the command and waits for it.
func (s *CommandSpeaker) Say(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	args := append(append([]string(nil), s.argv[1:]...), text)
	if err := run(ctx, s.argv[0], args, nil); err != nil {
		return err
	}
	s.logger.Debug("spoke", "chars", len(text))
	return nil
}

// run executes name with args, feeding stdin when set.
func run(ctx context.Context, name string, args []string, stdin io.Reader) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// LogSpeaker only logs the text. Used on kiosks without audio.
type LogSpeaker struct {
	Logger *slog.Logger
}

// Say logs the announcement.
func (s LogSpeaker) Say(_ context.Context, text string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("announcement", "text", text)
	return nil
}

var (
	_ Speaker = (*CommandSpeaker)(nil)
	_ Speaker = LogSpeaker{}
)
