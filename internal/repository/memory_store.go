package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"document-assistant/internal/domain"
)

const maxCreateAttempts = 3

// memoryRecord pairs a document with its log. mu guards turns only; doc is
// immutable after creation.
type memoryRecord struct {
	doc   domain.Document
	mu    sync.RWMutex
	turns []domain.Turn
}

// MemoryStore keeps documents in process memory for the life of the process.
// Appends lock only the target record, so unrelated documents never contend.
type MemoryStore struct {
	records *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: cache.New(cache.NoExpiration, 0),
	}
}

// CreateDocument inserts the document and its empty log in one step.
func (s *MemoryStore) CreateDocument(_ context.Context, content, filename string) (string, error) {
	for i := 0; i < maxCreateAttempts; i++ {
		id := newID()
		rec := &memoryRecord{
			doc:   domain.Document{ID: id, Filename: filename, Content: content},
			turns: []domain.Turn{},
		}
		if err := s.records.Add(id, rec, cache.NoExpiration); err == nil {
			return id, nil
		}
	}
	return "", errors.New("repository: could not allocate a unique document id")
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (domain.Document, bool, error) {
	rec, ok := s.record(id)
	if !ok {
		return domain.Document{}, false, nil
	}
	return rec.doc, true, nil
}

// AppendTurn silently ignores unknown ids.
func (s *MemoryStore) AppendTurn(_ context.Context, id string, turn domain.Turn) error {
	rec, ok := s.record(id)
	if !ok {
		return nil
	}
	rec.mu.Lock()
	rec.turns = append(rec.turns, turn)
	rec.mu.Unlock()
	return nil
}

// GetHistory returns a copy of the log in insertion order, or an empty slice
// for unknown ids.
func (s *MemoryStore) GetHistory(_ context.Context, id string) ([]domain.Turn, error) {
	rec, ok := s.record(id)
	if !ok {
		return []domain.Turn{}, nil
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	out := make([]domain.Turn, len(rec.turns))
	copy(out, rec.turns)
	return out, nil
}

func (s *MemoryStore) record(id string) (*memoryRecord, bool) {
	v, found := s.records.Get(id)
	if !found {
		return nil, false
	}
	rec, ok := v.(*memoryRecord)
	return rec, ok
}

var newID = func() string {
	return uuid.NewString()
}
