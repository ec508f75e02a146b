package generation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/ports"
)

// Scene is the illustration brief derived from a diary text.
type Scene struct {
	Description string   `json:"scene"`
	Elements    []string `json:"elements"`
}

// FallbackScene is illustrated when the brief cannot be generated.
var FallbackScene = Scene{
	Description: "A cheerful child enjoying a sunny day outdoors with family, smiling under a bright blue sky.",
	Elements:    []string{"child", "sun", "trees", "smiling family"},
}

var errMalformedURL = errors.New("object store returned a malformed URL")

// ImageSynthesizer turns a diary text into a hosted illustration.
// It never fails: the result is either an uploaded image URL or the placeholder.
type ImageSynthesizer struct {
	settings
	objects ports.ObjectStore
}

// NewImageSynthesizer creates a synthesizer that uploads into objects.
func NewImageSynthesizer(model ports.ModelClient, objects ports.ObjectStore, opts ...Option) *ImageSynthesizer {
	return &ImageSynthesizer{settings: newSettings(model, opts), objects: objects}
}

// Synthesize describes a scene, renders it and uploads it under the run's key prefix.
// The returned outcomes list every external call in order.
func (s *ImageSynthesizer) Synthesize(ctx context.Context, runID, text string, keywords []string) (string, []Outcome) {
	// 1. Describe
	scene, describe := s.Describe(ctx, text, keywords)
	outcomes := []Outcome{describe}

	// 2. Render
	render := Outcome{Stage: domain.StageImage}
	img, err := s.render(ctx, scene, &render)
	if err != nil {
		s.warnFallback(ctx, render.Stage, err)
		render.Err = err
		return s.placeholder, append(outcomes, render)
	}
	outcomes = append(outcomes, render)

	// 3. Upload
	upload := Outcome{Stage: domain.StageUpload}
	location, err := s.upload(ctx, runID, img, &upload)
	if err != nil {
		s.warnFallback(ctx, upload.Stage, err)
		upload.Err = err
		return s.placeholder, append(outcomes, upload)
	}
	return location, append(outcomes, upload)
}

// Describe produces the English scene brief for the illustration.
func (s *ImageSynthesizer) Describe(ctx context.Context, text string, keywords []string) (Scene, Outcome) {
	out := Outcome{Stage: domain.StageScene}

	raw, elapsed, err := s.generate(ctx, ports.TextRequest{
		Stage:  domain.StageScene,
		System: sceneSystem,
		Prompt: scenePrompt(text, keywords),
		JSON:   true,
	})
	out.Duration = elapsed

	var scene Scene
	if err == nil {
		if derr := decodeValidated(raw, sceneValidator, &scene); derr != nil {
			err = &domain.ModelError{Stage: domain.StageScene, Err: derr}
		}
	}
	if err != nil {
		s.warnFallback(ctx, out.Stage, err)
		out.Err = err
		return FallbackScene, out
	}
	return scene, out
}

func (s *ImageSynthesizer) render(ctx context.Context, scene Scene, out *Outcome) (ports.ImageResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.imageTimeout)
	defer cancel()

	start := time.Now()
	img, err := s.model.GenerateImage(ctx, ports.ImageRequest{
		Prompt:      imagePrompt(scene),
		AspectRatio: imageAspectRatio,
	})
	out.Duration = time.Since(start)
	if err != nil {
		return ports.ImageResponse{}, &domain.ModelError{Stage: domain.StageImage, Err: err}
	}
	if len(img.Data) == 0 {
		return ports.ImageResponse{}, &domain.ModelError{Stage: domain.StageImage, Err: domain.ErrEmptyGeneration}
	}
	return img, nil
}

func (s *ImageSynthesizer) upload(ctx context.Context, runID string, img ports.ImageResponse, out *Outcome) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	contentType := img.MIMEType
	if contentType == "" {
		contentType = "image/png"
	}
	key := ObjectKey(runID, s.newID(), contentType)

	start := time.Now()
	location, err := s.objects.Put(ctx, key, img.Data, contentType)
	out.Duration = time.Since(start)
	if err != nil {
		return "", &domain.StorageError{Key: key, Err: err}
	}
	if !wellFormedURL(location) {
		return "", &domain.StorageError{Key: key, Err: fmt.Errorf("%w: %q", errMalformedURL, location)}
	}
	return location, nil
}

// ObjectKey builds the storage key diaries/<runID>/<id><ext>.
func ObjectKey(runID, id, contentType string) string {
	return path.Join("diaries", runID, id+extensionFor(contentType))
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

func wellFormedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
