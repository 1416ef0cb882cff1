// Package signalstore implements SignalStore, the append-only
// (deviceAddr, nodeAddr) -> ordered SignalSample store.
package signalstore

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/netwatch-hq/netwatch/pkg/model"
)

const (
	defaultCap           = 1000
	defaultRetention     = 7 * 24 * time.Hour
	defaultRecentWindow  = time.Hour
	defaultSweepInterval = time.Hour
)

type storeKey struct {
	deviceAddr string
	nodeAddr   string
}

// Store is the append-only signal sample store. Multiple readers may call
// concurrently; writes (Append and the sweep) share a single lock, honouring
// a multiple-reader, single-writer discipline with a plain RWMutex rather
// than lock-free tricks.
type Store struct {
	clock     clockwork.Clock
	cap       int
	retention time.Duration

	mu     sync.RWMutex
	byKey  map[storeKey][]model.SignalSample

	stopSweep chan struct{}
}

// New builds a Store with the documented defaults (cap 1000,
// retention 7 days) and starts its hourly sweep goroutine.
func New(clock clockwork.Clock) *Store {
	s := &Store{
		clock:     clock,
		cap:       defaultCap,
		retention: defaultRetention,
		byKey:     make(map[storeKey][]model.SignalSample),
		stopSweep: make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Append adds one sample under (deviceAddr, nodeAddr), evicting the oldest
// entry if the per-key cap is exceeded. Samples must arrive in
// non-decreasing timestamp order per key; a sample older than the current
// tail is dropped rather than violating the ordering invariant.
func (s *Store) Append(sample model.SignalSample) {
	key := storeKey{deviceAddr: sample.DeviceAddr, nodeAddr: sample.NodeAddr}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byKey[key]
	if len(list) > 0 && sample.Timestamp.Before(list[len(list)-1].Timestamp) {
		return
	}

	list = append(list, sample)
	if len(list) > s.cap {
		list = list[len(list)-s.cap:]
	}
	s.byKey[key] = list
}

// Recent returns samples timestamped within the last hour across all nodes
// for deviceAddr, newest last, capped at limit.
func (s *Store) Recent(deviceAddr string, limit int) []model.SignalSample {
	return s.History(deviceAddr, defaultRecentWindow, limit)
}

// History returns samples timestamped within the last since across all
// nodes for deviceAddr, newest last, capped at limit (0 means unlimited).
func (s *Store) History(deviceAddr string, since time.Duration, limit int) []model.SignalSample {
	cutoff := s.clock.Now().Add(-since)

	s.mu.RLock()
	var all []model.SignalSample
	for key, list := range s.byKey {
		if key.deviceAddr != deviceAddr {
			continue
		}
		for _, sample := range list {
			if sample.Timestamp.After(cutoff) {
				all = append(all, sample)
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// LastPerNode returns the freshest sample for each node that has observed
// deviceAddr, the input to triangulation.
func (s *Store) LastPerNode(deviceAddr string) map[string]model.SignalSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.SignalSample)
	for key, list := range s.byKey {
		if key.deviceAddr != deviceAddr || len(list) == 0 {
			continue
		}
		out[key.nodeAddr] = list[len(list)-1]
	}
	return out
}

// sweepLoop drops samples older than the retention window and deletes
// emptied keys once per defaultSweepInterval.
func (s *Store) sweepLoop() {
	for {
		select {
		case <-s.clock.After(defaultSweepInterval):
			s.sweep()
		case <-s.stopSweep:
			return
		}
	}
}

func (s *Store) sweep() {
	cutoff := s.clock.Now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, list := range s.byKey {
		kept := list[:0:0]
		for _, sample := range list {
			if sample.Timestamp.After(cutoff) {
				kept = append(kept, sample)
			}
		}
		if len(kept) == 0 {
			delete(s.byKey, key)
		} else {
			s.byKey[key] = kept
		}
	}
}

// Close stops the background sweep goroutine.
func (s *Store) Close() {
	close(s.stopSweep)
}
