package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"driverstatus/internal/model"
)

// Memory is the in-memory store. All methods are safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	snap    *model.Snapshot
	snapAt  time.Time
	byPlate map[string][]int                // plate -> movement indexes
	manual  map[string]string               // plate -> office message
	lastKey map[string]string               // plate -> last emitted status key
	subs    map[string][]model.Subscription // plate -> subscriptions, oldest first
}

func NewMemory() *Memory {
	return &Memory{
		byPlate: map[string][]int{},
		manual:  map[string]string{},
		lastKey: map[string]string{},
		subs:    map[string][]model.Subscription{},
	}
}

// ReplaceSnapshot swaps in a new snapshot and returns its movement count.
func (m *Memory) ReplaceSnapshot(snap model.Snapshot, at time.Time) int {
	idx := map[string][]int{}
	for i, mv := range snap.Movements {
		if p := mv.Plate(); p != "" {
			idx[p] = append(idx[p], i)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = &snap
	m.snapAt = at
	m.byPlate = idx
	return len(snap.Movements)
}

func (m *Memory) Snapshot() (model.Snapshot, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return model.Snapshot{}, time.Time{}, false
	}
	return *m.snap, m.snapAt, true
}

// FindMovement returns the single movement for plate. Several matches are an
// error, never resolved by picking one.
func (m *Memory) FindMovement(plate string) (model.Movement, error) {
	plate = model.NormalizePlate(plate)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, fmt.Errorf("no snapshot loaded: %w", model.ErrNotFound)
	}
	ids := m.byPlate[plate]
	switch len(ids) {
	case 0:
		return nil, fmt.Errorf("plate %s: %w", plate, model.ErrNotFound)
	case 1:
		return m.snap.Movements[ids[0]], nil
	default:
		return nil, fmt.Errorf("plate %s (%d movements): %w", plate, len(ids), model.ErrAmbiguousMatch)
	}
}

// MovementsByPlate groups the current snapshot by normalized plate.
func (m *Memory) MovementsByPlate() map[string][]model.Movement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]model.Movement, len(m.byPlate))
	if m.snap == nil {
		return out
	}
	for p, ids := range m.byPlate {
		for _, i := range ids {
			out[p] = append(out[p], m.snap.Movements[i])
		}
	}
	return out
}

func (m *Memory) SetManualMessage(plate, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manual[model.NormalizePlate(plate)] = text
}

func (m *Memory) ClearManualMessage(plate string) bool {
	plate = model.NormalizePlate(plate)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.manual[plate]
	delete(m.manual, plate)
	return ok
}

func (m *Memory) ManualMessage(plate string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.manual[model.NormalizePlate(plate)]
}

func (m *Memory) LastStatusKey(plate string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.lastKey[plate]
	return k, ok
}

func (m *Memory) SetLastStatusKey(plate, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastKey[plate] = key
}

// Subscribe registers sub for its plate. An existing subscription with the
// same endpoint URL is replaced in place. Returns the stored subscription and
// the plate's subscription count.
func (m *Memory) Subscribe(sub model.Subscription) (model.Subscription, int) {
	sub.EntityKey = model.NormalizePlate(sub.EntityKey)
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[sub.EntityKey]
	for i, s := range list {
		if s.Endpoint.URL == sub.Endpoint.URL {
			list[i] = sub
			return sub, len(list)
		}
	}
	m.subs[sub.EntityKey] = append(list, sub)
	return sub, len(list) + 1
}

func (m *Memory) Subscriptions(plate string) []model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[model.NormalizePlate(plate)]
	out := make([]model.Subscription, len(list))
	copy(out, list)
	return out
}

// RemoveSubscription deletes by id, so a newer registration for the same
// endpoint survives the pruning of an older one.
func (m *Memory) RemoveSubscription(plate, id string) bool {
	plate = model.NormalizePlate(plate)
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[plate]
	for i, s := range list {
		if s.ID != id {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(m.subs, plate)
		} else {
			m.subs[plate] = list
		}
		return true
	}
	return false
}

func (m *Memory) SubscriptionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.subs {
		n += len(l)
	}
	return n
}
