package ir

import (
	"fmt"
	"time"
)

// NEC timings.
const (
	necHeaderMark  = 9000 * time.Microsecond
	necHeaderSpace = 4500 * time.Microsecond
	necBitMark     = 560 * time.Microsecond
	necOneSpace    = 1690 * time.Microsecond
	necZeroSpace   = 560 * time.Microsecond
)

// NEC is an extended NEC frame: a 16-bit address and a 16-bit command word.
// Light remotes put the command and its complement in the command word, so no
// inversion is applied here.
type NEC struct {
	Address uint16
	Command uint16
}

// Carrier returns the NEC carrier frequency.
func (f NEC) Carrier() int {
	return Freq38Khz
}

// Pulses renders the frame: header, 32 bits LSB first (address, then command),
// and a trailing mark.
func (f NEC) Pulses() []TimePair {
	out := make([]TimePair, 0, 34)
	out = append(out, TimePair{necHeaderMark, necHeaderSpace})

	for _, word := range [2]uint16{f.Address, f.Command} {
		for bit := 0; bit < 16; bit++ {
			if (word>>bit)&1 == 1 {
				out = append(out, TimePair{necBitMark, necOneSpace})
			} else {
				out = append(out, TimePair{necBitMark, necZeroSpace})
			}
		}
	}

	out = append(out, TimePair{necBitMark, 0})
	return out
}

func (f NEC) String() string {
	return fmt.Sprintf("NEC(0x%04X, 0x%04X)", f.Address, f.Command)
}
