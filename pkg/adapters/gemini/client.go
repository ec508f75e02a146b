// Package gemini implements ports.ModelClient with the Google Gen AI SDK,
// either through the Gemini API (API key) or Vertex AI with Application
// Default Credentials.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/auth"
	"github.com/hirokts/enikki/pkg/ports"
	"google.golang.org/genai"
)

const (
	DefaultTextModel  = "gemini-2.5-flash"
	DefaultImageModel = "gemini-2.5-flash-image"
	DefaultLocation   = "us-central1"
)

var (
	// ErrNoCandidates is returned when the API answers without content.
	ErrNoCandidates = errors.New("gemini returned no candidates")
	// ErrNoImage is returned when an image call yields no inline data.
	ErrNoImage = errors.New("gemini returned no image")
	// ErrNoCredentials is returned by New when neither an API key nor a
	// Vertex AI project is configured.
	ErrNoCredentials = errors.New("gemini needs an API key or a Vertex AI project")
)

// Client wraps a genai client with the model names used by the pipeline.
type Client struct {
	models     *genai.Models
	textModel  string
	imageModel string
}

type settings struct {
	endpoint    string
	apiKey      string
	project     string
	location    string
	textModel   string
	imageModel  string
	credentials *auth.Credentials
	http        *http.Client
}

type Option func(*settings)

// WithEndpoint overrides the API base URL.
func WithEndpoint(endpoint string) Option {
	return func(s *settings) {
		s.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithAPIKey authenticates against the Gemini API with an API key.
func WithAPIKey(key string) Option {
	return func(s *settings) { s.apiKey = key }
}

// WithVertex routes calls to a Vertex AI project and location.
// Credentials are resolved from the environment unless WithCredentials is set.
func WithVertex(project, location string) Option {
	return func(s *settings) {
		s.project = project
		if location != "" {
			s.location = location
		}
	}
}

// WithCredentials overrides Application Default Credentials for Vertex AI.
func WithCredentials(creds *auth.Credentials) Option {
	return func(s *settings) { s.credentials = creds }
}

// WithModels overrides the text and image model names.
func WithModels(text, image string) Option {
	return func(s *settings) {
		if text != "" {
			s.textModel = text
		}
		if image != "" {
			s.imageModel = image
		}
	}
}

// WithHTTPClient overrides the transport. Deadlines come from the call context.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) { s.http = hc }
}

// New creates a Client. A Vertex AI project wins over an API key only when
// no key is given.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	s := settings{
		location:   DefaultLocation,
		textModel:  DefaultTextModel,
		imageModel: DefaultImageModel,
	}
	for _, opt := range opts {
		opt(&s)
	}

	cfg := &genai.ClientConfig{HTTPClient: s.http}
	switch {
	case s.apiKey != "":
		cfg.Backend = genai.BackendGeminiAPI
		cfg.APIKey = s.apiKey
	case s.project != "":
		cfg.Backend = genai.BackendVertexAI
		cfg.Project = s.project
		cfg.Location = s.location
		cfg.Credentials = s.credentials
	default:
		return nil, ErrNoCredentials
	}
	if s.endpoint != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: s.endpoint + "/"}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{
		models:     client.Models,
		textModel:  s.textModel,
		imageModel: s.imageModel,
	}, nil
}

// GenerateText runs a single-turn text generation.
func (c *Client) GenerateText(ctx context.Context, req ports.TextRequest) (ports.TextResponse, error) {
	var cfg *genai.GenerateContentConfig
	if req.System != "" || req.JSON {
		cfg = &genai.GenerateContentConfig{}
		if req.System != "" {
			cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
		}
		if req.JSON {
			cfg.ResponseMIMEType = "application/json"
		}
	}

	resp, err := c.generate(ctx, c.textModel, req.Prompt, cfg)
	if err != nil {
		return ports.TextResponse{}, err
	}

	var b strings.Builder
	if content := resp.Candidates[0].Content; content != nil {
		for _, p := range content.Parts {
			if p != nil && !p.Thought {
				b.WriteString(p.Text)
			}
		}
	}
	return ports.TextResponse{Text: strings.TrimSpace(b.String())}, nil
}

// GenerateImage asks the image model for one picture and returns the first
// inline image part.
func (c *Client) GenerateImage(ctx context.Context, req ports.ImageRequest) (ports.ImageResponse, error) {
	cfg := &genai.GenerateContentConfig{ResponseModalities: []string{"IMAGE"}}
	if req.AspectRatio != "" {
		cfg.ImageConfig = &genai.ImageConfig{AspectRatio: req.AspectRatio}
	}

	resp, err := c.generate(ctx, c.imageModel, req.Prompt, cfg)
	if err != nil {
		return ports.ImageResponse{}, err
	}

	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			return ports.ImageResponse{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType}, nil
		}
	}
	return ports.ImageResponse{}, ErrNoImage
}

func (c *Client) generate(ctx context.Context, model, prompt string, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := c.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini %s: %w", model, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, ErrNoCandidates
	}
	return resp, nil
}
