// Package store keeps finished transcriptions so they can be fetched again by
// id. Only the transcript text and job counts are stored, never audio.
//
// Two backends exist: [Memory], a bounded in-process map, and the PostgreSQL
// store in package postgres. Every implementation must be safe for
// concurrent use.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by [Store.Get] when no record has the given id.
var ErrNotFound = errors.New("store: transcription not found")

// Record is one stored transcription.
type Record struct {
	ID             string        `json:"id"`
	Filename       string        `json:"filename,omitempty"`
	ContentType    string        `json:"content_type,omitempty"`
	Transcript     string        `json:"transcription"`
	SpeechSegments int           `json:"speech_segments_count"`
	Chunks         int           `json:"chunks"`
	AudioDuration  time.Duration `json:"audio_duration_ns"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Store persists transcription records.
type Store interface {
	// Save inserts r. r.ID must be set; saving an existing id replaces it.
	Save(ctx context.Context, r Record) error

	// Get returns the record with the given id or [ErrNotFound].
	Get(ctx context.Context, id string) (Record, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close()
}

// NewID returns a fresh random record id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id has the form produced by [NewID].
func ValidID(id string) bool {
	return uuid.Validate(id) == nil
}

// DefaultMemoryCapacity bounds a [Memory] store created with capacity 0.
const DefaultMemoryCapacity = 1000

// Memory is an in-process [Store] that keeps the most recent records up to
// a fixed capacity, evicting the oldest insert first.
type Memory struct {
	mu       sync.Mutex
	capacity int
	records  map[string]Record
	order    []string
}

var _ Store = (*Memory)(nil)

// NewMemory returns a Memory store holding at most capacity records.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity, records: make(map[string]Record)}
}

// Save implements [Store].
func (m *Memory) Save(_ context.Context, r Record) error {
	if !ValidID(r.ID) {
		return errors.New("store: record id must be a uuid")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.ID]; !ok {
		m.order = append(m.order, r.ID)
	}
	m.records[r.ID] = r
	for len(m.order) > m.capacity {
		delete(m.records, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

// Get implements [Store].
func (m *Memory) Get(_ context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Ping implements [Store]; it always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements [Store]; it is a no-op.
func (m *Memory) Close() {}
