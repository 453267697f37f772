package repository

import (
	"context"
	"sync"
	"time"

	"portalpilot-go/domain/draft"
	"portalpilot-go/domain/script"
	"portalpilot-go/domain/step"
	"portalpilot-go/domain/target"
)

// MemoryTargetRepository is an in-process target.Repository, used when no
// MongoDB URI is configured and in tests.
type MemoryTargetRepository struct {
	mu      sync.RWMutex
	targets map[string]*target.Target
	scripts map[scriptKey]*script.Script
}

type scriptKey struct {
	targetID string
	kind     script.Kind
}

// NewMemoryTargetRepository creates a repository seeded with targets.
func NewMemoryTargetRepository(seed ...*target.Target) *MemoryTargetRepository {
	r := &MemoryTargetRepository{
		targets: make(map[string]*target.Target),
		scripts: make(map[scriptKey]*script.Script),
	}
	for _, t := range seed {
		r.targets[t.ID] = t.Clone()
	}
	return r
}

func (r *MemoryTargetRepository) FindByID(_ context.Context, id string) (*target.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.targets[id]; ok {
		return t.Clone(), nil
	}
	return nil, nil
}

func (r *MemoryTargetRepository) FindAll(_ context.Context) ([]*target.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*target.Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (r *MemoryTargetRepository) Upsert(_ context.Context, t *target.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[t.ID] = t.Clone()
	return nil
}

func (r *MemoryTargetRepository) SaveScript(_ context.Context, targetID string, kind script.Kind, steps []step.Step, savedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[scriptKey{targetID, kind}] = script.New(targetID, kind, steps, savedBy)
	return nil
}

func (r *MemoryTargetRepository) FindScript(_ context.Context, targetID string, kind script.Kind) (*script.Script, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scripts[scriptKey{targetID, kind}]
	if !ok {
		return nil, nil
	}
	cp := *s
	cp.Steps = step.Clone(s.Steps)
	return &cp, nil
}

// MemoryDraftStore is an in-process draft.Store.
type MemoryDraftStore struct {
	mu     sync.RWMutex
	drafts map[draft.Key]*draft.Draft
}

// NewMemoryDraftStore creates an empty draft store.
func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{drafts: make(map[draft.Key]*draft.Draft)}
}

func (s *MemoryDraftStore) Save(_ context.Context, key draft.Key, steps []step.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[key] = &draft.Draft{Key: key, Steps: step.Clone(steps), UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *MemoryDraftStore) Load(_ context.Context, key draft.Key) (*draft.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[key]
	if !ok {
		return nil, nil
	}
	return &draft.Draft{Key: d.Key, Steps: step.Clone(d.Steps), UpdatedAt: d.UpdatedAt}, nil
}

func (s *MemoryDraftStore) Delete(_ context.Context, key draft.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, key)
	return nil
}

var (
	_ target.Repository = (*MemoryTargetRepository)(nil)
	_ draft.Store       = (*MemoryDraftStore)(nil)
)
