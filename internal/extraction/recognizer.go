package extraction

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Recognition is the text recognized on one page with per-token
// confidences on a 0..100 scale. Tokens that carry no confidence are -1.
type Recognition struct {
	Text        string
	Confidences []float64
}

// Recognizer turns a PNG image into text.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (*Recognition, error)
	Close() error
}

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		slog.Error("Command failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		slog.Debug("Command finished",
			"cmd", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
