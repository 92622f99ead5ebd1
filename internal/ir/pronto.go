package ir

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// prontoClock is the Pronto reference clock period in microseconds.
const prontoClock = 0.241246

var (
	// ErrProntoFormat is returned for codes that are not learned (0000) Pronto hex.
	ErrProntoFormat = errors.New("ir: unsupported pronto format")
	// ErrProntoLength is returned when the declared burst counts don't match the data.
	ErrProntoLength = errors.New("ir: pronto burst count mismatch")
)

// Pronto is a raw learned signal: a once sequence followed by a repeat sequence.
type Pronto struct {
	Frequency int
	Once      []TimePair
	Repeat    []TimePair
	source    string
}

// ParsePronto parses a learned Pronto hex code such as
// "0000 006D 0002 0000 0159 0057 0015 06C3".
func ParsePronto(code string) (Pronto, error) {
	fields := strings.Fields(code)
	if len(fields) < 4 {
		return Pronto{}, fmt.Errorf("%w: %d words", ErrProntoLength, len(fields))
	}

	words := make([]uint16, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 16, 16)
		if err != nil {
			return Pronto{}, fmt.Errorf("ir: pronto word %d: %w", i, err)
		}
		words[i] = uint16(v)
	}

	if words[0] != 0x0000 {
		return Pronto{}, fmt.Errorf("%w: type %04X", ErrProntoFormat, words[0])
	}
	if words[1] == 0 {
		return Pronto{}, fmt.Errorf("%w: zero frequency word", ErrProntoFormat)
	}

	onceN, repeatN := int(words[2]), int(words[3])
	if len(words) != 4+2*(onceN+repeatN) {
		return Pronto{}, fmt.Errorf("%w: want %d words, got %d", ErrProntoLength, 4+2*(onceN+repeatN), len(words))
	}

	period := float64(words[1]) * prontoClock
	toPairs := func(data []uint16) []TimePair {
		pairs := make([]TimePair, 0, len(data)/2)
		for i := 0; i+1 < len(data); i += 2 {
			pairs = append(pairs, TimePair{
				time.Duration(math.Round(float64(data[i])*period)) * time.Microsecond,
				time.Duration(math.Round(float64(data[i+1])*period)) * time.Microsecond,
			})
		}
		return pairs
	}

	body := words[4:]
	return Pronto{
		Frequency: int(math.Round(1e6 / period)),
		Once:      toPairs(body[:2*onceN]),
		Repeat:    toPairs(body[2*onceN:]),
		source:    strings.Join(fields, " "),
	}, nil
}

// MustParsePronto is ParsePronto for package-level constants.
func MustParsePronto(code string) Pronto {
	p, err := ParsePronto(code)
	if err != nil {
		panic(err)
	}
	return p
}

// Carrier returns the carrier frequency encoded in the code.
func (p Pronto) Carrier() int {
	return p.Frequency
}

// Pulses returns the once sequence followed by the repeat sequence.
func (p Pronto) Pulses() []TimePair {
	out := make([]TimePair, 0, len(p.Once)+len(p.Repeat))
	out = append(out, p.Once...)
	return append(out, p.Repeat...)
}

func (p Pronto) String() string {
	return "Pronto(" + p.source + ")"
}
