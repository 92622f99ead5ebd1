// Package ir provides infrared signal primitives shared by the fixture translators:
// NEC frames, raw Pronto pulse trains and the transmission contract.
package ir

import (
	"context"
	"time"
)

// Freq38Khz is the carrier used by every remote this daemon drives.
const Freq38Khz = 38000

// TimePair is a mark (carrier on) followed by a space (carrier off).
type TimePair [2]time.Duration

// Signal is anything that can be rendered as a train of mark/space pairs.
type Signal interface {
	Pulses() []TimePair
	Carrier() int
}

// Transmission is one request to the transmitter: a signal, how many times to
// send it, and how long to wait between repeats.
type Transmission struct {
	Signal Signal
	Times  uint8
	Wait   time.Duration
}

// Once wraps a signal to be sent a single time.
func Once(s Signal) Transmission {
	return Transmission{Signal: s, Times: 1}
}

// Repeat wraps a signal to be sent times times, waiting wait between sends.
func Repeat(s Signal, times uint8, wait time.Duration) Transmission {
	return Transmission{Signal: s, Times: times, Wait: wait}
}

// Count returns the number of sends, treating zero as one.
func (t Transmission) Count() int {
	if t.Times == 0 {
		return 1
	}
	return int(t.Times)
}

// Sender transmits IR signals. Implementations block until the signal has been
// handed to the hardware. There is no acknowledgment from the fixture.
type Sender interface {
	Send(ctx context.Context, tx Transmission) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, tx Transmission) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, tx Transmission) error {
	return f(ctx, tx)
}

// Delayer enforces spacing between consecutive commands. Remotes need a minimum
// gap to register two presses as distinct.
type Delayer interface {
	Delay(d time.Duration)
}

// DelayFunc adapts a function to Delayer.
type DelayFunc func(d time.Duration)

// Delay calls f.
func (f DelayFunc) Delay(d time.Duration) {
	f(d)
}

// Sleep is the production Delayer: a plain blocking wait.
var Sleep Delayer = DelayFunc(time.Sleep)

// Micros flattens a signal into alternating mark/space durations in
// microseconds. A trailing zero-length space is dropped.
func Micros(s Signal) []uint32 {
	pairs := s.Pulses()
	out := make([]uint32, 0, len(pairs)*2)
	for _, p := range pairs {
		out = append(out, uint32(p[0]/time.Microsecond))
		if p[1] > 0 {
			out = append(out, uint32(p[1]/time.Microsecond))
		}
	}
	return out
}
