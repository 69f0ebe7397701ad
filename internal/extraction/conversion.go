package extraction

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/tiff" // Register TIFF decoder
)

// contentTypes maps accepted document extensions to MIME types
var contentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".pdf":  "application/pdf",
	".heic": "image/heic",
	".heif": "image/heif",
}

// contentTypeFor derives the MIME type from the document name, falling back
// to sniffing the data.
func contentTypeFor(path string, data []byte) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	if isHEICFormat(data) {
		return "image/heic"
	}
	return http.DetectContentType(data)
}

// pdfToImage renders the first page of a PDF as PNG
func pdfToImage(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// imageToPNG re-encodes any supported raster image as PNG
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// toPNG normalizes a document to a single PNG image. PDFs contribute their
// first page.
func toPNG(data []byte, contentType string) ([]byte, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case mimeType == "application/pdf":
		pngData, err := pdfToImage(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		return pngData, nil
	case mimeType == "image/png" && !isHEICFormat(data):
		return data, nil
	default:
		pngData, err := imageToPNG(data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("converting image to PNG: %w", err)
		}
		return pngData, nil
	}
}
