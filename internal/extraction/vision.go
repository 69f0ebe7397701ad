package extraction

import (
	"context"
	"fmt"
	"os"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// GoogleVision recognizes text with Cloud Vision document text detection.
type GoogleVision struct {
	client *vision.ImageAnnotatorClient
}

// NewGoogleVision creates a client. Credentials come from credentialsFile,
// then GOOGLE_CREDENTIALS (inline JSON), then application default
// credentials.
func NewGoogleVision(ctx context.Context, credentialsFile string) (*GoogleVision, error) {
	const op = "NewGoogleVision"

	var opts []option.ClientOption
	switch {
	case credentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	case os.Getenv("GOOGLE_CREDENTIALS") != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(os.Getenv("GOOGLE_CREDENTIALS"))))
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fail(op, ErrBackendUnavailable, fmt.Errorf("creating vision client: %w", err))
	}
	return &GoogleVision{client: client}, nil
}

// Recognize sends the image for DOCUMENT_TEXT_DETECTION.
func (g *GoogleVision) Recognize(ctx context.Context, image []byte) (*Recognition, error) {
	const op = "GoogleVisionRecognize"

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: image},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fail(op, ErrBackendUnavailable, fmt.Errorf("vision API call failed: %w", err))
	}
	if len(resp.GetResponses()) == 0 {
		return nil, fail(op, ErrBackendUnavailable, fmt.Errorf("no response from vision API"))
	}

	annotated := resp.GetResponses()[0]
	if annotated.GetError() != nil {
		return nil, fail(op, ErrBackendUnavailable, fmt.Errorf("vision API error: %s", annotated.GetError().GetMessage()))
	}

	return recognitionFromAnnotation(annotated.GetFullTextAnnotation()), nil
}

// recognitionFromAnnotation scales word confidences to 0..100. Words
// without a confidence get -1.
func recognitionFromAnnotation(ann *visionpb.TextAnnotation) *Recognition {
	rec := &Recognition{Text: ann.GetText()}
	for _, page := range ann.GetPages() {
		for _, block := range page.GetBlocks() {
			for _, paragraph := range block.GetParagraphs() {
				for _, word := range paragraph.GetWords() {
					c := word.GetConfidence()
					if c <= 0 {
						rec.Confidences = append(rec.Confidences, -1)
						continue
					}
					rec.Confidences = append(rec.Confidences, float64(c)*100)
				}
			}
		}
	}
	return rec
}

// Close closes the underlying client.
func (g *GoogleVision) Close() error {
	return g.client.Close()
}
