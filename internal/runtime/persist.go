package runtime

import (
	"context"
	"time"

	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/ports"
)

// Persister writes the final state of a run to the diary store.
type Persister struct {
	store   ports.DiaryStore
	timeout time.Duration
}

// NewPersister creates a persister bounded by timeout per write.
func NewPersister(store ports.DiaryStore, timeout time.Duration) *Persister {
	return &Persister{store: store, timeout: timeout}
}

// Persist writes the document derived from s. It does not retry.
func (p *Persister) Persist(ctx context.Context, s domain.PipelineState) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.store.Save(ctx, s.RunID, domain.DocumentFromState(s)); err != nil {
		return &domain.PersistenceError{RunID: s.RunID, Err: err}
	}
	return nil
}
