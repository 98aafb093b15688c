package services

import "sync"

// StationSnapshot is one consistent view of the station's mode flags.
type StationSnapshot struct {
	ActingAsPrintServer bool
	TransportConnected  bool
}

// StationState is the shared controller for the station's mode flags.
// Both the settings surface and the queue listener hold the same
// instance; changes are broadcast to registered observers so the
// listener can react to a transport reconnect without polling.
type StationState struct {
	mu        sync.RWMutex
	snapshot  StationSnapshot
	observers []func(prev, curr StationSnapshot)
}

// NewStationState creates a station state controller.
func NewStationState() *StationState {
	return &StationState{}
}

// Snapshot returns the current flags as one consistent value.
func (s *StationState) Snapshot() StationSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// OnChange registers an observer invoked after every flag change.
// Observers run outside the state lock and may call back into the state.
func (s *StationState) OnChange(fn func(prev, curr StationSnapshot)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// SetActingAsPrintServer flips whether this station claims queue jobs.
func (s *StationState) SetActingAsPrintServer(active bool) {
	s.update(func(snap *StationSnapshot) {
		snap.ActingAsPrintServer = active
	})
}

// SetTransportConnected records the transport's connection state.
func (s *StationState) SetTransportConnected(connected bool) {
	s.update(func(snap *StationSnapshot) {
		snap.TransportConnected = connected
	})
}

func (s *StationState) update(mutate func(*StationSnapshot)) {
	s.mu.Lock()
	prev := s.snapshot
	mutate(&s.snapshot)
	curr := s.snapshot
	observers := make([]func(prev, curr StationSnapshot), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	if prev == curr {
		return
	}
	for _, fn := range observers {
		fn(prev, curr)
	}
}
