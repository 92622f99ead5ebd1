package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/ir"
)

type recordingSender struct {
	next   ir.Sender
	ledger *Ledger
}

// Recording wraps a sender so every transmission is written to the ledger
// under the batch found in the send context. The inner sender's error is
// returned unchanged; ledger write failures are only logged.
func Recording(next ir.Sender, l *Ledger) ir.Sender {
	return &recordingSender{next: next, ledger: l}
}

func (s *recordingSender) Send(ctx context.Context, tx ir.Transmission) error {
	sendErr := s.next.Send(ctx, tx)

	b, _ := BatchFrom(ctx)
	e := Entry{
		Type:    EntryTransmit,
		BatchID: b.ID,
		LightID: b.LightID,
		Signal:  signalName(tx.Signal),
		Times:   tx.Count(),
	}
	if tx.Wait > 0 {
		e.Payload = map[string]any{"wait_us": tx.Wait.Microseconds()}
	}
	if sendErr != nil {
		e.Type = EntryTransmitFailed
		e.Error = sendErr.Error()
	}

	if err := s.ledger.Append(context.WithoutCancel(ctx), e); err != nil {
		log.Warn().Err(err).Str("light", b.LightID).Msg("Failed to record transmission")
	}

	return sendErr
}

func signalName(s ir.Signal) string {
	if st, ok := s.(fmt.Stringer); ok {
		return st.String()
	}
	return fmt.Sprintf("%T", s)
}
