// Package irtest provides an in-memory IR sender for tests.
package irtest

import (
	"context"
	"sync"
	"time"

	"github.com/dokzlo13/irlightd/internal/ir"
)

// Event is either a transmission or a delay, in the order they happened.
type Event struct {
	Tx    *ir.Transmission
	Delay time.Duration
}

// Recorder implements both ir.Sender and ir.Delayer, recording the interleaved
// sequence without sleeping.
type Recorder struct {
	mu     sync.Mutex
	events []Event

	// Err is returned from every Send when set.
	Err error
}

// New creates an empty recorder.
func New() *Recorder {
	return &Recorder{}
}

// Send records the transmission.
func (r *Recorder) Send(_ context.Context, tx ir.Transmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Tx: &tx})
	return r.Err
}

// Delay records the wait instead of sleeping.
func (r *Recorder) Delay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Delay: d})
}

// Events returns a copy of everything recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Transmissions returns recorded transmissions in order.
func (r *Recorder) Transmissions() []ir.Transmission {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ir.Transmission
	for _, e := range r.events {
		if e.Tx != nil {
			out = append(out, *e.Tx)
		}
	}
	return out
}

// Codes returns the NEC command words sent, in order. Raw signals are skipped.
func (r *Recorder) Codes() []uint16 {
	var out []uint16
	for _, tx := range r.Transmissions() {
		if f, ok := tx.Signal.(ir.NEC); ok {
			out = append(out, f.Command)
		}
	}
	return out
}

// Delays returns recorded delays in order.
func (r *Recorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []time.Duration
	for _, e := range r.events {
		if e.Tx == nil {
			out = append(out, e.Delay)
		}
	}
	return out
}

// Reset clears the recording.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
