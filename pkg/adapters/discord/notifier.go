// Package discord posts diary completion notices to Discord webhooks.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hirokts/enikki/pkg/domain"
)

// EmbedColor is the accent color of the notice.
const EmbedColor = 0xFFB347

// ErrNoTarget is returned when no webhook URL is given.
var ErrNoTarget = errors.New("discord webhook url is empty")

// Notifier implements ports.Notifier.
type Notifier struct {
	frontendURL string
	timeout     time.Duration
	client      *http.Client
}

type Option func(*Notifier)

// WithFrontendURL sets the base of the deep link added to each notice.
func WithFrontendURL(u string) Option {
	return func(n *Notifier) { n.frontendURL = strings.TrimRight(u, "/") }
}

// WithTimeout bounds a single webhook call.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) {
		if c != nil {
			n.client = c
		}
	}
}

// New creates a Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		frontendURL: "http://localhost:5173",
		timeout:     10 * time.Second,
		client:      http.DefaultClient,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	URL         string       `json:"url,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Image       *embedImage  `json:"image,omitempty"`
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

// embed builds the webhook embed for a notice.
func (n *Notifier) embed(msg domain.Notification) embed {
	e := embed{
		Title:       "📔 " + msg.Title,
		Description: msg.Body,
		Color:       EmbedColor,
	}
	if msg.RunID != "" {
		e.URL = n.frontendURL + "/diaries/" + msg.RunID
	}
	if len(msg.Keywords) > 0 {
		e.Fields = []embedField{{
			Name:  "🏷️ キーワード",
			Value: strings.Join(msg.Keywords, " / "),
		}}
	}
	if msg.ImageURL != "" {
		e.Image = &embedImage{URL: msg.ImageURL}
	}
	return e
}

// Notify posts msg to the webhook at target.
func (n *Notifier) Notify(ctx context.Context, target string, msg domain.Notification) error {
	if strings.TrimSpace(target) == "" {
		return ErrNoTarget
	}

	buf, err := json.Marshal(payload{Embeds: []embed{n.embed(msg)}})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord webhook error: %s (%s)", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
