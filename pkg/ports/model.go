package ports

import (
	"context"

	"github.com/hirokts/enikki/pkg/domain"
)

// TextRequest is a single text generation call.
type TextRequest struct {
	Stage  domain.Stage
	System string
	Prompt string
	// JSON asks the backend to answer with a JSON document only.
	JSON bool
}

// TextResponse carries the raw model answer.
type TextResponse struct {
	Text string
}

// ImageRequest asks for exactly one image.
type ImageRequest struct {
	Prompt      string
	AspectRatio string
}

// ImageResponse holds the inline image payload. Data is empty when the
// backend answered without an image.
type ImageResponse struct {
	Data     []byte
	MIMEType string
}

// ModelClient is the generative model backend.
// Implementations must honor ctx deadlines.
type ModelClient interface {
	GenerateText(ctx context.Context, req TextRequest) (TextResponse, error)
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResponse, error)
}
