package ledger

import (
	"context"
	"sync"
	"time"

	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

type PrunePolicy string

const (
	// PruneKeep only ever adds candidates, a device that disappears stays listed.
	PruneKeep PrunePolicy = "keep"
	// PruneMissing drops candidates that are absent from the latest scan.
	PruneMissing PrunePolicy = "prune-missing"
)

// DeviceEvent announces a newly discovered device. Removals are never announced.
type DeviceEvent struct {
	Device Device `json:"device"`
}

// Scanner polls an Enumerator and keeps the candidate device list.
type Scanner struct {
	enumerator Enumerator
	policy     PrunePolicy
	interval   time.Duration

	mu          sync.Mutex
	devices     []Device
	lastErr     error
	subscribers map[int]chan DeviceEvent
	nextSub     int
}

func NewScanner(enumerator Enumerator, policy PrunePolicy, interval time.Duration) *Scanner {
	if policy != PruneMissing {
		policy = PruneKeep
	}
	if interval <= 0 {
		interval = time.Second * 2
	}
	return &Scanner{
		enumerator:  enumerator,
		policy:      policy,
		interval:    interval,
		subscribers: map[int]chan DeviceEvent{},
	}
}

// Start polls until ctx is done.
func (s *Scanner) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			if err := s.Scan(ctx); err != nil {
				log.Debugf("ledger scan: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Scan runs one enumeration. A failure is remembered in LastError and the candidate list is left as is.
func (s *Scanner) Scan(ctx context.Context) error {
	found, err := s.enumerator.Devices(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = errors.Wrap(ErrTransport, err.Error())
		return s.lastErr
	}
	s.lastErr = nil

	known := make(map[string]bool, len(s.devices))
	for _, d := range s.devices {
		known[d.ID] = true
	}
	present := make(map[string]bool, len(found))
	for _, d := range found {
		present[d.ID] = true
		if known[d.ID] {
			continue
		}
		known[d.ID] = true
		s.devices = append(s.devices, d)
		s.emit(DeviceEvent{Device: d})
	}
	if s.policy == PruneMissing {
		kept := s.devices[:0]
		for _, d := range s.devices {
			if present[d.ID] {
				kept = append(kept, d)
			}
		}
		s.devices = kept
	}
	return nil
}

// emit never blocks, a subscriber that does not keep up misses events.
func (s *Scanner) emit(e DeviceEvent) {
	for id, ch := range s.subscribers {
		select {
		case ch <- e:
		default:
			log.Warnf("ledger scanner subscriber %d is full, dropping %v", id, e.Device.ID)
		}
	}
}

// Subscribe returns a channel of discovery events and the func that unsubscribes and closes it.
func (s *Scanner) Subscribe(buffer int) (<-chan DeviceEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan DeviceEvent, buffer)
	s.subscribers[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
			close(ch)
		})
	}
}

// Reload forgets every candidate and scans again, so all present devices are announced anew.
func (s *Scanner) Reload(ctx context.Context) error {
	s.mu.Lock()
	s.devices = nil
	s.lastErr = nil
	s.mu.Unlock()
	return s.Scan(ctx)
}

func (s *Scanner) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Device{}, s.devices...)
}

// Device returns the candidate with id.
func (s *Scanner) Device(id string) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return Device{}, errors.Wrapf(ErrDeviceNotFound, "id %s", id)
}

// First returns the earliest discovered candidate.
func (s *Scanner) First() (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.devices) == 0 {
		return Device{}, ErrDeviceNotFound
	}
	return s.devices[0], nil
}

func (s *Scanner) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
