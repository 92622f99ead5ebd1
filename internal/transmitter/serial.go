package transmitter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tarm/serial"

	"github.com/dokzlo13/irlightd/internal/ir"
)

// Serial talks to a microcontroller blaster over a line protocol:
//
//	NEC <addr hex> <cmd hex> <times> <wait_us>
//	RAW <carrier hz> <times> <wait_us> <mark,space,...>
//
// The blaster answers each line with "OK" or "ERR <reason>" once the
// last repeat has been sent.
type Serial struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	r    *bufio.Reader
}

// OpenSerial opens the serial device.
func OpenSerial(device string, baud int, readTimeout time.Duration) (*Serial, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial blaster %s: %w", device, err)
	}

	log.Info().Str("device", device).Int("baud", baud).Msg("Opened serial IR blaster")
	return NewSerial(port), nil
}

// NewSerial wraps an already open connection.
func NewSerial(port io.ReadWriteCloser) *Serial {
	return &Serial{port: port, r: bufio.NewReader(port)}
}

// Send writes one command line and waits for the blaster's reply.
func (s *Serial) Send(ctx context.Context, tx ir.Transmission) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line := FormatLine(tx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.port, line+"\n"); err != nil {
		return fmt.Errorf("failed to write to blaster: %w", err)
	}

	reply, err := s.r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read blaster reply: %w", err)
	}
	reply = strings.TrimSpace(reply)

	log.Debug().Str("line", line).Str("reply", reply).Msg("Serial blaster exchange")

	switch {
	case reply == "OK":
		return nil
	case strings.HasPrefix(reply, "ERR"):
		return fmt.Errorf("%w: %s", ErrBlaster, strings.TrimSpace(strings.TrimPrefix(reply, "ERR")))
	default:
		return fmt.Errorf("%w: unexpected reply %q", ErrBlaster, reply)
	}
}

// Close closes the port.
func (s *Serial) Close() error {
	return s.port.Close()
}

// FormatLine renders a transmission in the blaster's line protocol.
func FormatLine(tx ir.Transmission) string {
	wait := tx.Wait.Microseconds()

	if f, ok := tx.Signal.(ir.NEC); ok {
		return fmt.Sprintf("NEC %04X %04X %d %d", f.Address, f.Command, tx.Count(), wait)
	}

	micros := ir.Micros(tx.Signal)
	parts := make([]string, len(micros))
	for i, us := range micros {
		parts[i] = strconv.FormatUint(uint64(us), 10)
	}
	return fmt.Sprintf("RAW %d %d %d %s", tx.Signal.Carrier(), tx.Count(), wait, strings.Join(parts, ","))
}
