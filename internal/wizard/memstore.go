package wizard

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"edunexia/internal/charge"
	"edunexia/internal/common/database"
)

// MemoryStore keeps wizards in process memory. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	wizards  map[string]Wizard
	keys     map[string]string
	attempts map[string][]Attempt
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wizards:  make(map[string]Wizard),
		keys:     make(map[string]string),
		attempts: make(map[string][]Attempt),
	}
}

func (s *MemoryStore) CreateWizard(ctx context.Context, w *Wizard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wizards[w.ID]; ok {
		return fmt.Errorf("wizard %s: %w", w.ID, database.ErrAlreadyExists)
	}
	if _, ok := s.keys[w.IdempotencyKey]; ok {
		return fmt.Errorf("idempotency key %s: %w", w.IdempotencyKey, database.ErrAlreadyExists)
	}
	s.wizards[w.ID] = cloneWizard(*w)
	s.keys[w.IdempotencyKey] = w.ID
	return nil
}

func (s *MemoryStore) GetWizard(ctx context.Context, id string) (*Wizard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wizards[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneWizard(w)
	return &out, nil
}

func (s *MemoryStore) UpdateWizard(ctx context.Context, w *Wizard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(w)
}

func (s *MemoryStore) StartAttempt(ctx context.Context, w *Wizard, a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.attempts[a.WizardID] {
		if existing.Number == a.Number {
			return fmt.Errorf("attempt %d of wizard %s: %w", a.Number, a.WizardID, database.ErrAlreadyExists)
		}
	}
	if err := s.updateLocked(w); err != nil {
		return err
	}
	s.attempts[a.WizardID] = append(s.attempts[a.WizardID], *a)
	return nil
}

func (s *MemoryStore) FinishAttempt(ctx context.Context, w *Wizard, a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.attempts[a.WizardID]
	for i := range list {
		if list[i].Number == a.Number {
			if err := s.updateLocked(w); err != nil {
				return err
			}
			list[i] = *a
			return nil
		}
	}
	return fmt.Errorf("attempt %d of wizard %s: %w", a.Number, a.WizardID, database.ErrNotFound)
}

func (s *MemoryStore) ListAttempts(ctx context.Context, wizardID string) ([]*Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Attempt, 0, len(s.attempts[wizardID]))
	for _, a := range s.attempts[wizardID] {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *MemoryStore) updateLocked(w *Wizard) error {
	if _, ok := s.wizards[w.ID]; !ok {
		return ErrNotFound
	}
	s.wizards[w.ID] = cloneWizard(*w)
	return nil
}

// cloneWizard copies the parts of w that share memory.
func cloneWizard(w Wizard) Wizard {
	w.Options.BillingMethods = append([]charge.BillingMethod(nil), w.Options.BillingMethods...)
	if w.Result != nil {
		r := *w.Result
		w.Result = &r
	}
	if w.LastError != nil {
		f := *w.LastError
		w.LastError = &f
	}
	return w
}
