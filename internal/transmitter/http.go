package transmitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/ir"
)

// Message is the body accepted by Nature Remo style local APIs.
type Message struct {
	Format string   `json:"format"`
	Freq   int      `json:"freq"` // kHz
	Data   []uint32 `json:"data"` // alternating mark/space in microseconds
}

// HTTP posts raw timings to a blaster's local HTTP API. The API has no repeat
// parameter, so repeats are separate requests spaced by the transmission wait.
type HTTP struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewHTTP creates an HTTP transmitter posting to baseURL + "/messages".
func NewHTTP(baseURL, token string, timeout time.Duration) *HTTP {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &HTTP{
		url:        strings.TrimRight(baseURL, "/") + "/messages",
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewMessage converts a signal to the API body.
func NewMessage(s ir.Signal) Message {
	return Message{
		Format: "us",
		Freq:   int(math.Round(float64(s.Carrier()) / 1000)),
		Data:   ir.Micros(s),
	}
}

// Send posts the signal Count() times.
func (h *HTTP) Send(ctx context.Context, tx ir.Transmission) error {
	body, err := json.Marshal(NewMessage(tx.Signal))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	for i := 0; i < tx.Count(); i++ {
		if i > 0 {
			if err := sleep(ctx, tx.Wait); err != nil {
				return err
			}
		}
		if err := h.post(ctx, body); err != nil {
			return err
		}
	}

	log.Debug().Str("signal", fmt.Sprint(tx.Signal)).Int("times", tx.Count()).Msg("HTTP blaster sent")
	return nil
}

func (h *HTTP) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requested-With", "irlightd")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: status %d: %s", ErrBlaster, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// Close releases idle connections.
func (h *HTTP) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}
