package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/zombor/invoice-extractor/internal/invoice"
	"github.com/zombor/invoice-extractor/internal/normalize"
)

// GenerativeConfidence is the fixed confidence reported for vision model
// extractions.
const GenerativeConfidence = 95.0

// responseSchema only rejects shapes the normalizer cannot walk.
const responseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "vendor":     {"type": ["object", "string", "null"]},
    "customer":   {"type": ["object", "string", "null"]},
    "line_items": {"type": ["array", "null"], "items": {"type": ["object", "null"]}}
  }
}`

// VisionModel answers the invoice prompt for one PNG image with raw text.
type VisionModel interface {
	Complete(ctx context.Context, image []byte) (string, error)
	Close() error
}

// GenerativeExtractor asks a vision model for JSON and normalizes it.
type GenerativeExtractor struct {
	docs   DocumentReader
	model  VisionModel
	schema *jsonschema.Schema
}

// NewGenerativeExtractor creates a GenerativeExtractor.
func NewGenerativeExtractor(docs DocumentReader, model VisionModel) (*GenerativeExtractor, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("invoice.json", strings.NewReader(responseSchema)); err != nil {
		return nil, fmt.Errorf("adding response schema: %w", err)
	}
	schema, err := compiler.Compile("invoice.json")
	if err != nil {
		return nil, fmt.Errorf("compiling response schema: %w", err)
	}
	return &GenerativeExtractor{docs: docs, model: model, schema: schema}, nil
}

// Extract reads the document at path and has the model describe it.
func (g *GenerativeExtractor) Extract(ctx context.Context, path string) (*invoice.Invoice, error) {
	const op = "GenerativeExtract"

	data, err := g.docs.Get(ctx, path)
	if err != nil {
		return nil, fail(op, ErrUnreadableDocument, err)
	}

	img, err := toPNG(data, contentTypeFor(path, data))
	if err != nil {
		return nil, fail(op, ErrUnreadableDocument, err)
	}

	text, err := g.model.Complete(ctx, img)
	if err != nil {
		return nil, fail(op, ErrBackendUnavailable, err)
	}

	raw, err := decodeResponse(text)
	if err != nil {
		return nil, &Failure{Op: op, Err: err}
	}
	if err := g.schema.Validate(raw); err != nil {
		return nil, &Failure{Op: op, Err: ErrMalformedResponse, Details: err.Error()}
	}

	inv := normalize.Generative(raw)
	inv.Confidence = GenerativeConfidence
	return inv, nil
}

// Close releases the model client.
func (g *GenerativeExtractor) Close() error {
	return g.model.Close()
}

// decodeResponse pulls the JSON object out of a model reply, tolerating
// markdown fences and chatter around it. Numbers are kept as json.Number.
func decodeResponse(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, ErrMalformedResponse
	}

	dec := json.NewDecoder(strings.NewReader(text[start : end+1]))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, ErrMalformedResponse
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrMalformedResponse
	}
	return obj, nil
}
