package ir

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNECPulses(t *testing.T) {
	f := NEC{Address: 0x6D82, Command: 0x42BD}
	pairs := f.Pulses()

	if len(pairs) != 34 {
		t.Fatalf("len(Pulses()) = %d, want 34", len(pairs))
	}
	if pairs[0] != (TimePair{9 * time.Millisecond, 4500 * time.Microsecond}) {
		t.Errorf("header = %v", pairs[0])
	}
	if pairs[33] != (TimePair{560 * time.Microsecond, 0}) {
		t.Errorf("trailer = %v", pairs[33])
	}

	// Decode the bits back, LSB first.
	var addr, cmd uint16
	for bit := 0; bit < 16; bit++ {
		if pairs[1+bit][1] == 1690*time.Microsecond {
			addr |= 1 << bit
		}
		if pairs[17+bit][1] == 1690*time.Microsecond {
			cmd |= 1 << bit
		}
	}
	if addr != f.Address || cmd != f.Command {
		t.Errorf("decoded (0x%04X, 0x%04X), want (0x%04X, 0x%04X)", addr, cmd, f.Address, f.Command)
	}
}

func TestNECString(t *testing.T) {
	if got := (NEC{Address: 0xFE01, Command: 0xFF00}).String(); got != "NEC(0xFE01, 0xFF00)" {
		t.Errorf("String() = %q", got)
	}
}

func TestParsePronto_RepeatCode(t *testing.T) {
	p, err := ParsePronto("0000 006D 0002 0000 0159 0057 0015 06C3")
	if err != nil {
		t.Fatalf("ParsePronto() error = %v", err)
	}

	if p.Carrier() != 38029 {
		t.Errorf("Carrier() = %d, want 38029", p.Carrier())
	}

	want := []TimePair{
		{9072 * time.Microsecond, 2288 * time.Microsecond},
		{552 * time.Microsecond, 45518 * time.Microsecond},
	}
	if diff := cmp.Diff(want, p.Pulses()); diff != "" {
		t.Errorf("Pulses() mismatch (-want +got):\n%s", diff)
	}
	if len(p.Repeat) != 0 {
		t.Errorf("Repeat = %v, want empty", p.Repeat)
	}
}

func TestParsePronto_Errors(t *testing.T) {
	tests := []struct {
		name string
		code string
		want error
	}{
		{name: "too_short", code: "0000 006D", want: ErrProntoLength},
		{name: "not_learned", code: "0100 006D 0000 0000", want: ErrProntoFormat},
		{name: "zero_frequency", code: "0000 0000 0000 0000", want: ErrProntoFormat},
		{name: "count_mismatch", code: "0000 006D 0002 0000 0159 0057", want: ErrProntoLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePronto(tt.code)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParsePronto(%q) error = %v, want %v", tt.code, err, tt.want)
			}
		})
	}

	if _, err := ParsePronto("0000 006D 0001 0000 zzzz 0057"); err == nil {
		t.Error("expected error for non-hex word")
	}
}

func TestMicros(t *testing.T) {
	got := Micros(NEC{Address: 0, Command: 0})
	if len(got) != 67 {
		t.Fatalf("len(Micros()) = %d, want 67 (trailing space dropped)", len(got))
	}
	if got[0] != 9000 || got[1] != 4500 || got[66] != 560 {
		t.Errorf("Micros() = %v...", got[:3])
	}
}

func TestTransmissionCount(t *testing.T) {
	if n := (Transmission{}).Count(); n != 1 {
		t.Errorf("zero Times Count() = %d, want 1", n)
	}
	if n := Repeat(NEC{}, 8, 50*time.Millisecond).Count(); n != 8 {
		t.Errorf("Count() = %d, want 8", n)
	}
}
