package service

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// sequencer serializes the write-then-publish steps of one challenge so the
// order events enter the channel queue matches the order rows were stored.
// Entries are dropped once no caller holds or waits on them.
type sequencer struct {
	mu    sync.Mutex
	slots map[snowflake.ID]*slot
}

type slot struct {
	mu   sync.Mutex
	refs int
}

func newSequencer() *sequencer {
	return &sequencer{slots: make(map[snowflake.ID]*slot)}
}

func (q *sequencer) lock(id snowflake.ID) func() {
	q.mu.Lock()
	s := q.slots[id]
	if s == nil {
		s = &slot{}
		q.slots[id] = s
	}
	s.refs++
	q.mu.Unlock()

	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		q.mu.Lock()
		s.refs--
		if s.refs == 0 {
			delete(q.slots, id)
		}
		q.mu.Unlock()
	}
}

func (q *sequencer) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots)
}
