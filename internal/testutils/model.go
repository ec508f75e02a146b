package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/ports"
)

// ErrUnreachable simulates a backend that cannot be reached.
var ErrUnreachable = errors.New("backend unreachable")

// Reply is one scripted answer of ScriptedModel.
type Reply struct {
	Text string
	Err  error
	// Block waits until the call context is done and returns its error.
	Block bool
}

// ScriptedModel is a ports.ModelClient that answers from per-stage queues.
// The last reply of a queue repeats once the queue is drained.
// Stages without a script fail with ErrUnreachable.
type ScriptedModel struct {
	mu       sync.Mutex
	replies  map[domain.Stage][]Reply
	calls    map[domain.Stage]int
	requests []ports.TextRequest

	Image       ports.ImageResponse
	ImageErr    error
	ImageBlock  bool
	ImageCalls  int
	ImagePrompt string
}

// NewScriptedModel returns a model with no scripts.
func NewScriptedModel() *ScriptedModel {
	return &ScriptedModel{
		replies: make(map[domain.Stage][]Reply),
		calls:   make(map[domain.Stage]int),
	}
}

// On appends replies to the queue of stage.
func (m *ScriptedModel) On(stage domain.Stage, replies ...Reply) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[stage] = append(m.replies[stage], replies...)
	return m
}

// WithImage makes GenerateImage return a PNG payload.
func (m *ScriptedModel) WithImage(data []byte) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Image = ports.ImageResponse{Data: data, MIMEType: "image/png"}
	return m
}

// Calls returns how many text calls stage received.
func (m *ScriptedModel) Calls(stage domain.Stage) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[stage]
}

// Requests returns a copy of every text request received, in order.
func (m *ScriptedModel) Requests() []ports.TextRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.TextRequest(nil), m.requests...)
}

func (m *ScriptedModel) GenerateText(ctx context.Context, req ports.TextRequest) (ports.TextResponse, error) {
	m.mu.Lock()
	m.calls[req.Stage]++
	m.requests = append(m.requests, req)
	queue := m.replies[req.Stage]
	var reply Reply
	switch {
	case len(queue) == 0:
		reply = Reply{Err: fmt.Errorf("%w: no script for %s", ErrUnreachable, req.Stage)}
	case len(queue) == 1:
		reply = queue[0]
	default:
		reply = queue[0]
		m.replies[req.Stage] = queue[1:]
	}
	m.mu.Unlock()

	if reply.Block {
		<-ctx.Done()
		return ports.TextResponse{}, ctx.Err()
	}
	if reply.Err != nil {
		return ports.TextResponse{}, reply.Err
	}
	return ports.TextResponse{Text: reply.Text}, nil
}

func (m *ScriptedModel) GenerateImage(ctx context.Context, req ports.ImageRequest) (ports.ImageResponse, error) {
	m.mu.Lock()
	m.ImageCalls++
	m.ImagePrompt = req.Prompt
	block, resp, err := m.ImageBlock, m.Image, m.ImageErr
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return ports.ImageResponse{}, ctx.Err()
	}
	if err != nil {
		return ports.ImageResponse{}, err
	}
	return resp, nil
}

// UnreachableModel fails every call.
type UnreachableModel struct{}

func (UnreachableModel) GenerateText(context.Context, ports.TextRequest) (ports.TextResponse, error) {
	return ports.TextResponse{}, ErrUnreachable
}

func (UnreachableModel) GenerateImage(context.Context, ports.ImageRequest) (ports.ImageResponse, error) {
	return ports.ImageResponse{}, ErrUnreachable
}
