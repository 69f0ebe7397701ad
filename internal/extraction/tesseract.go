package extraction

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// tesseractArgs are shared by the text and TSV runs.
var tesseractArgs = []string{"--oem", "3", "--psm", "6", "-c", "preserve_interword_spaces=1"}

// Tesseract recognizes text with the tesseract command line tool.
type Tesseract struct {
	bin    string
	lang   string
	runner Runner
}

// TesseractOption configures a Tesseract recognizer.
type TesseractOption func(*Tesseract)

// WithRunner replaces the command runner.
func WithRunner(r Runner) TesseractOption {
	return func(t *Tesseract) {
		t.runner = r
	}
}

// WithLanguage sets the tesseract language pack. Empty keeps "eng".
func WithLanguage(lang string) TesseractOption {
	return func(t *Tesseract) {
		if lang != "" {
			t.lang = lang
		}
	}
}

// NewTesseract creates a recognizer that runs bin, "tesseract" when empty.
func NewTesseract(bin string, opts ...TesseractOption) *Tesseract {
	if bin == "" {
		bin = "tesseract"
	}
	t := &Tesseract{bin: bin, lang: "eng", runner: execRunner{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Recognize runs tesseract once for plain text and once for TSV word data.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) (*Recognition, error) {
	const op = "TesseractRecognize"

	f, err := os.CreateTemp("", "invoice-*.png")
	if err != nil {
		return nil, fail(op, ErrBackendUnavailable, fmt.Errorf("creating temp image: %w", err))
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(image); err != nil {
		f.Close()
		return nil, fail(op, ErrBackendUnavailable, fmt.Errorf("writing temp image: %w", err))
	}
	if err := f.Close(); err != nil {
		return nil, fail(op, ErrBackendUnavailable, fmt.Errorf("closing temp image: %w", err))
	}

	args := append([]string{f.Name(), "stdout", "-l", t.lang}, tesseractArgs...)

	text, stderr, err := t.runner.Run(ctx, t.bin, args...)
	if err != nil {
		return nil, fail(op, ErrBackendUnavailable, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(stderr))))
	}

	tsv, stderr, err := t.runner.Run(ctx, t.bin, append(args, "tsv")...)
	if err != nil {
		return nil, fail(op, ErrBackendUnavailable, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(stderr))))
	}

	return &Recognition{
		Text:        string(text),
		Confidences: parseTSVConfidences(tsv),
	}, nil
}

// Close is a no-op.
func (t *Tesseract) Close() error {
	return nil
}

// parseTSVConfidences reads the conf column of tesseract's TSV output. The
// header row and short rows are skipped.
func parseTSVConfidences(tsv []byte) []float64 {
	var out []float64
	sc := bufio.NewScanner(bytes.NewReader(tsv))
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		cols := strings.Split(sc.Text(), "\t")
		if len(cols) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(cols[10]), 64)
		if err != nil {
			continue
		}
		out = append(out, conf)
	}
	return out
}
