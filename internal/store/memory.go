package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/taxa/internal/taxon"
)

// MemoryStore keeps records in maps. Child lookups go through one roaring
// bitmap of child ids per parent.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[int64]*taxon.Record
	byName   map[string]int64
	children map[int64]*roaring.Bitmap // parent id -> child ids
	names    map[int64]map[string]string
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[int64]*taxon.Record),
		byName:   make(map[string]int64),
		children: make(map[int64]*roaring.Bitmap),
		names:    make(map[int64]map[string]string),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) FindByName(_ context.Context, latin string) (*taxon.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[latin]
	if !ok {
		return nil, ErrNotFound
	}
	return s.records[id].Clone(), nil
}

func (s *MemoryStore) FindByID(_ context.Context, id int64) (*taxon.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) FindChildren(_ context.Context, parentID int64) ([]*taxon.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bm, ok := s.children[parentID]
	if !ok {
		return nil, nil
	}
	out := make([]*taxon.Record, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, s.records[int64(it.Next())].Clone())
	}
	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, rec *taxon.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[rec.Latin]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicate, rec.Latin)
	}
	if pid, ok := rec.Parent.ID(); ok {
		if _, exists := s.records[pid]; !exists {
			return 0, fmt.Errorf("parent #%d: %w", pid, ErrNotFound)
		}
	}
	s.nextID++
	stored := rec.Clone()
	stored.ID = s.nextID
	s.records[stored.ID] = stored
	s.byName[stored.Latin] = stored.ID
	s.link(stored)
	return stored.ID, nil
}

func (s *MemoryStore) Update(_ context.Context, rec *taxon.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.records[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if other, taken := s.byName[rec.Latin]; taken && other != rec.ID {
		return fmt.Errorf("%w: %s", ErrDuplicate, rec.Latin)
	}
	if pid, ok := rec.Parent.ID(); ok {
		if _, exists := s.records[pid]; !exists {
			return fmt.Errorf("parent #%d: %w", pid, ErrNotFound)
		}
	}
	s.unlink(old)
	delete(s.byName, old.Latin)
	stored := rec.Clone()
	s.records[stored.ID] = stored
	s.byName[stored.Latin] = stored.ID
	s.link(stored)
	return nil
}

func (s *MemoryStore) link(rec *taxon.Record) {
	pid, ok := rec.Parent.ID()
	if !ok {
		return
	}
	bm, exists := s.children[pid]
	if !exists {
		bm = roaring.New()
		s.children[pid] = bm
	}
	bm.Add(uint32(rec.ID))
}

func (s *MemoryStore) unlink(rec *taxon.Record) {
	pid, ok := rec.Parent.ID()
	if !ok {
		return
	}
	if bm, exists := s.children[pid]; exists {
		bm.Remove(uint32(rec.ID))
	}
}

func (s *MemoryStore) Names(_ context.Context, id int64) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.records[id]; !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]string, len(s.names[id]))
	for k, v := range s.names[id] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) CreateName(_ context.Context, id int64, lang, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	m := s.names[id]
	if m == nil {
		m = map[string]string{}
		s.names[id] = m
	}
	if _, ok := m[lang]; ok {
		return fmt.Errorf("%w: name %s for #%d", ErrDuplicate, lang, id)
	}
	m[lang] = name
	return nil
}

func (s *MemoryStore) UpdateName(_ context.Context, id int64, lang, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.names[id]
	if _, ok := m[lang]; !ok {
		return ErrNotFound
	}
	m[lang] = name
	return nil
}

// Len returns the number of records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Close() error { return nil }

func sortRecords(recs []*taxon.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Seq != recs[j].Seq {
			return recs[i].Seq < recs[j].Seq
		}
		return recs[i].Latin < recs[j].Latin
	})
}
