package memory

import (
	"context"
	"sync"

	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/shopspring/decimal"
)

// DraftStore keeps drafts in process memory. Used by tests and local runs.
type DraftStore struct {
	mu     sync.Mutex
	drafts map[string]*draft.Draft
	guards map[string]struct{}
}

func NewDraftStore() *DraftStore {
	return &DraftStore{
		drafts: make(map[string]*draft.Draft),
		guards: make(map[string]struct{}),
	}
}

func draftKey(owner string, flow draft.Flow) string {
	return owner + "|" + string(flow)
}

func guardKey(owner, key string) string {
	return owner + "|" + key
}

func (s *DraftStore) Get(_ context.Context, owner string, flow draft.Flow) (*draft.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[draftKey(owner, flow)].Clone(), nil
}

func (s *DraftStore) Set(_ context.Context, owner string, flow draft.Flow, patch draft.Patch) (*draft.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := draftKey(owner, flow)
	d, ok := s.drafts[k]
	if !ok {
		d = draft.New(flow)
		s.drafts[k] = d
	}
	patch.Apply(d)
	return d.Clone(), nil
}

func (s *DraftStore) SetFinalAmount(_ context.Context, owner string, flow draft.Flow, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[draftKey(owner, flow)]
	if !ok {
		return domainErrors.ErrDraftNotFound
	}
	d.FinalAmount = &amount
	return nil
}

func (s *DraftStore) Clear(_ context.Context, owner string, flow draft.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := draftKey(owner, flow)
	if d, ok := s.drafts[k]; ok && d.GuardKey != "" {
		delete(s.guards, guardKey(owner, d.GuardKey))
	}
	delete(s.drafts, k)
	return nil
}

func (s *DraftStore) HasGuard(_ context.Context, owner string, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.guards[guardKey(owner, key)]
	return ok, nil
}

func (s *DraftStore) MarkSubmitted(_ context.Context, owner string, flow draft.Flow, key string, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[draftKey(owner, flow)]
	if !ok {
		return domainErrors.ErrDraftNotFound
	}
	if d.RequestID != "" {
		return domainErrors.ErrRequestIDAlreadySet
	}
	d.RequestID = requestID
	d.GuardKey = key
	s.guards[guardKey(owner, key)] = struct{}{}
	return nil
}
