package store

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOutOfRange is returned by Sample when from falls outside the
// retained window. The HTTP layer maps it to an OUT_OF_RANGE response.
var ErrOutOfRange = errors.New("sequence out of range")

// Observation is the canonical stored record. The dataitem metadata is
// copied in at ingest so readers never touch the registry.
type Observation struct {
	Sequence       int64
	Time           string // verbatim as received, never reformatted
	DataItemID     string
	Name           string // short wire name
	Type           string
	SubType        string
	Category       string
	Representation string
	Discrete       bool
	Value          Value
}

// Store owns the observation ring, the current/last hash maps, the
// per-dataitem active condition sets, and the asset store. One mutex
// guards all of it: mutation arrives from a single sequencer goroutine
// and readers take the lock briefly to snapshot.
type Store struct {
	mu sync.RWMutex

	capacity int
	ring     []Observation
	head     int // index of oldest retained
	count    int

	nextSeq  int64 // next sequence to assign
	firstSeq int64 // sequence of oldest retained entry

	current map[string]Observation
	last    map[string]Observation

	// Active conditions per dataitem, keyed by nativeCode. condOrder
	// preserves activation order for serialization.
	conds     map[string]map[string]Observation
	condOrder map[string][]string

	created string // ISO time of store creation, used for UNAVAILABLE defaults

	assetCap      int
	assetSeq      int64
	assetCurrent  map[string]*Asset
	assetBuf      []*Asset
	assetCreation []string // asset ids in creation order
}

// Options sizes a Store. Zero values get the MTConnect defaults.
type Options struct {
	BufferSize      int // observation ring capacity, default 10000
	AssetBufferSize int // asset snapshot capacity, default 1024
}

// New creates an empty Store.
func New(opts Options) *Store {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.AssetBufferSize <= 0 {
		opts.AssetBufferSize = 1024
	}
	return &Store{
		capacity:     opts.BufferSize,
		ring:         make([]Observation, opts.BufferSize),
		nextSeq:      1,
		firstSeq:     1,
		current:      make(map[string]Observation),
		last:         make(map[string]Observation),
		conds:        make(map[string]map[string]Observation),
		condOrder:    make(map[string][]string),
		created:      time.Now().UTC().Format(time.RFC3339Nano),
		assetCap:     opts.AssetBufferSize,
		assetCurrent: make(map[string]*Asset),
	}
}

// Update applies one observation. Returns the assigned sequence and
// whether it was stored; unchanged VALUE observations are suppressed
// (CONDITION, TIME_SERIES, and discrete items always record).
func (s *Store) Update(obs Observation) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.suppressLocked(obs) {
		return 0, false
	}

	obs.Sequence = s.nextSeq
	s.nextSeq++

	if prev, ok := s.current[obs.DataItemID]; ok {
		s.last[obs.DataItemID] = prev
	}
	s.current[obs.DataItemID] = obs

	s.appendLocked(obs)

	if obs.Category == "CONDITION" {
		s.trackConditionLocked(obs)
	}
	return obs.Sequence, true
}

func (s *Store) suppressLocked(obs Observation) bool {
	if obs.Category == "CONDITION" || obs.Representation == "TIME_SERIES" || obs.Discrete {
		return false
	}
	prev, ok := s.current[obs.DataItemID]
	return ok && valuesEqual(prev.Value, obs.Value)
}

func (s *Store) appendLocked(obs Observation) {
	if s.count == s.capacity {
		// Evict oldest. The current map retains the evicted record if
		// it is still the most recent for its dataitem.
		s.head = (s.head + 1) % s.capacity
		s.count--
		s.firstSeq = s.ring[s.head].Sequence
	}
	s.ring[(s.head+s.count)%s.capacity] = obs
	s.count++
	if s.count == 1 {
		s.firstSeq = obs.Sequence
	}
}

// trackConditionLocked maintains the active condition set. NORMAL or
// UNAVAILABLE with an empty nativeCode clears every active condition on
// the dataitem; anything else adds or replaces by nativeCode.
func (s *Store) trackConditionLocked(obs Observation) {
	cond, ok := obs.Value.(Condition)
	if !ok {
		return
	}
	id := obs.DataItemID
	level := cond.Level

	if (level == "NORMAL" || level == "UNAVAILABLE") && cond.NativeCode == "" {
		delete(s.conds, id)
		delete(s.condOrder, id)
		return
	}
	if s.conds[id] == nil {
		s.conds[id] = make(map[string]Observation)
	}
	if _, exists := s.conds[id][cond.NativeCode]; !exists {
		s.condOrder[id] = append(s.condOrder[id], cond.NativeCode)
	}
	s.conds[id][cond.NativeCode] = obs

	// A NORMAL with a nativeCode clears just that channel.
	if level == "NORMAL" {
		delete(s.conds[id], cond.NativeCode)
		s.condOrder[id] = removeString(s.condOrder[id], cond.NativeCode)
	}
}

func removeString(ss []string, v string) []string {
	out := ss[:0]
	for _, x := range ss {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// Sequence returns the retained window bounds: first retained sequence,
// last assigned sequence, and the next to be assigned.
func (s *Store) Sequence() (first, last, next int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.firstSeq, s.nextSeq - 1, s.nextSeq
}

// BufferSize returns the ring capacity.
func (s *Store) BufferSize() int { return s.capacity }

// Current returns the latest observation per requested id, in the given
// order. Ids never observed yield a synthesized UNAVAILABLE observation
// stamped with the store's creation time.
func (s *Store) Current(ids []string) []Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Observation, 0, len(ids))
	for _, id := range ids {
		if obs, ok := s.current[id]; ok {
			out = append(out, obs)
			continue
		}
		out = append(out, Observation{
			Time:       s.created,
			DataItemID: id,
			Value:      Scalar("UNAVAILABLE"),
		})
	}
	return out
}

// CurrentAt returns the latest observation per id with sequence <= at.
// An id with nothing observed by then yields a synthesized UNAVAILABLE.
// at must fall within [firstSequence, nextSequence-1].
func (s *Store) CurrentAt(ids []string, at int64) ([]Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if at < s.firstSeq || at >= s.nextSeq {
		return nil, fmt.Errorf("%w: at=%d window=[%d,%d)", ErrOutOfRange, at, s.firstSeq, s.nextSeq)
	}

	latest := make(map[string]Observation, len(ids))
	for i := 0; i < s.count; i++ {
		obs := s.ring[(s.head+i)%s.capacity]
		if obs.Sequence > at {
			break
		}
		latest[obs.DataItemID] = obs
	}

	out := make([]Observation, 0, len(ids))
	for _, id := range ids {
		if obs, ok := latest[id]; ok {
			out = append(out, obs)
			continue
		}
		// An evicted observation still counts if it predates at.
		if obs, ok := s.current[id]; ok && obs.Sequence <= at {
			out = append(out, obs)
			continue
		}
		out = append(out, Observation{
			Time:       s.created,
			DataItemID: id,
			Value:      Scalar("UNAVAILABLE"),
		})
	}
	return out, nil
}

// CurrentValue returns the latest observation for one id.
func (s *Store) CurrentValue(id string) (Observation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs, ok := s.current[id]
	return obs, ok
}

// LastValue returns the second-most-recent observation for one id.
func (s *Store) LastValue(id string) (Observation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs, ok := s.last[id]
	return obs, ok
}

// ActiveConditions returns the active condition observations for a
// dataitem in activation order. Empty means Normal.
func (s *Store) ActiveConditions(id string) []Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := s.condOrder[id]
	out := make([]Observation, 0, len(codes))
	for _, code := range codes {
		if obs, ok := s.conds[id][code]; ok {
			out = append(out, obs)
		}
	}
	return out
}

// Sample returns observations with sequence in [from, from+count)
// restricted to the given ids (all when nil), in sequence order.
// A count above the ring capacity is truncated, not an error; a from
// outside [firstSequence, nextSequence] is ErrOutOfRange.
func (s *Store) Sample(ids []string, from int64, count int) ([]Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if from < s.firstSeq || from > s.nextSeq {
		return nil, fmt.Errorf("%w: from=%d window=[%d,%d]", ErrOutOfRange, from, s.firstSeq, s.nextSeq)
	}
	if count > s.capacity {
		count = s.capacity
	}
	if count <= 0 {
		return nil, nil
	}

	var idSet map[string]bool
	if ids != nil {
		idSet = make(map[string]bool, len(ids))
		for _, id := range ids {
			idSet[id] = true
		}
	}

	end := from + int64(count)
	var out []Observation
	for i := 0; i < s.count; i++ {
		obs := s.ring[(s.head+i)%s.capacity]
		if obs.Sequence < from {
			continue
		}
		if obs.Sequence >= end {
			break
		}
		if idSet != nil && !idSet[obs.DataItemID] {
			continue
		}
		out = append(out, obs)
	}
	return out, nil
}
