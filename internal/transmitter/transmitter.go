// Package transmitter provides the IR blaster backends that put frames on the
// air: a dry-run logger, a serial-attached blaster and a blaster with a local
// HTTP API.
package transmitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/config"
	"github.com/dokzlo13/irlightd/internal/ir"
)

// ErrBlaster is returned when the blaster reports a failure.
var ErrBlaster = errors.New("blaster error")

// Transmitter is an IR sender that owns a connection.
type Transmitter interface {
	ir.Sender
	io.Closer
}

// New builds the transmitter selected in cfg.
func New(cfg config.TransmitterConfig) (Transmitter, error) {
	switch cfg.Type {
	case config.TransmitterSerial:
		return OpenSerial(cfg.Serial.Device, cfg.Serial.Baud, cfg.Serial.ReadTimeout.Duration())
	case config.TransmitterHTTP:
		return NewHTTP(cfg.HTTP.URL, cfg.HTTP.Token, cfg.HTTP.Timeout.Duration()), nil
	case config.TransmitterLog, "":
		return NewLog(), nil
	default:
		return nil, fmt.Errorf("unknown transmitter type %q", cfg.Type)
	}
}

// Log only logs what would be sent.
type Log struct{}

// NewLog creates a dry-run transmitter.
func NewLog() *Log {
	return &Log{}
}

// Send logs the transmission.
func (Log) Send(ctx context.Context, tx ir.Transmission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Info().
		Str("signal", fmt.Sprint(tx.Signal)).
		Int("times", tx.Count()).
		Dur("wait", tx.Wait).
		Msg("IR transmit (dry run)")
	return nil
}

// Close implements io.Closer.
func (Log) Close() error { return nil }

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
