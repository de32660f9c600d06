package votes

import (
	"sync"

	"github.com/google/uuid"
)

// Tally holds live vote counts per question and answer key. It is a fast,
// non-authoritative view: it counts every accepted submission, including
// resubmissions that overwrite a stored response.
type Tally struct {
	mu        sync.RWMutex
	questions map[uuid.UUID]*questionTally
}

type questionTally struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{questions: make(map[uuid.UUID]*questionTally)}
}

func (t *Tally) question(id uuid.UUID) *questionTally {
	t.mu.RLock()
	qt, ok := t.questions[id]
	t.mu.RUnlock()
	if ok {
		return qt
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if qt, ok = t.questions[id]; !ok {
		qt = &questionTally{counts: make(map[string]int64)}
		t.questions[id] = qt
	}
	return qt
}

// Increment adds one to key under question and returns the new count.
func (t *Tally) Increment(question uuid.UUID, key string) int64 {
	qt := t.question(question)
	qt.mu.Lock()
	defer qt.mu.Unlock()
	qt.counts[key]++
	return qt.counts[key]
}

// Snapshot returns a copy of the counts for question. It is never nil.
func (t *Tally) Snapshot(question uuid.UUID) map[string]int64 {
	t.mu.RLock()
	qt, ok := t.questions[question]
	t.mu.RUnlock()
	out := make(map[string]int64)
	if !ok {
		return out
	}
	qt.mu.Lock()
	defer qt.mu.Unlock()
	for k, v := range qt.counts {
		out[k] = v
	}
	return out
}

// Has reports whether question has a live tally.
func (t *Tally) Has(question uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.questions[question]
	return ok
}

// Clear drops the counts of the given questions.
func (t *Tally) Clear(questions ...uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, q := range questions {
		delete(t.questions, q)
	}
}

// Replace swaps the counts of question for a copy of counts.
func (t *Tally) Replace(question uuid.UUID, counts map[string]int64) {
	qt := &questionTally{counts: make(map[string]int64, len(counts))}
	for k, v := range counts {
		qt.counts[k] = v
	}
	t.mu.Lock()
	t.questions[question] = qt
	t.mu.Unlock()
}
