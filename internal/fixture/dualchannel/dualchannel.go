// Package dualchannel drives ceiling lights with separate cool and warm
// emitters. The remote has an absolute button for every level of each
// channel, so no previous state is needed.
package dualchannel

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/fixture"
	"github.com/dokzlo13/irlightd/internal/ir"
)

// Address is the NEC address of the remote.
const Address uint16 = 0xC580

// CodeOff turns both channels off.
const CodeOff uint16 = 0xF708

// CommandDelay is the gap the fixture needs between two presses.
const CommandDelay = 255 * time.Millisecond

// Mired range advertised to the host.
const (
	MinMireds = 154
	MaxMireds = 370
)

// CoolLevels holds the cool channel buttons, level 1 (index 0) to level 10.
var CoolLevels = [10]uint16{
	0xA758, 0xA55A, 0xA35C, 0xA15E, 0x9F60,
	0x9D62, 0x9B64, 0x9966, 0x9768, 0x956A,
}

// WarmLevels holds the warm channel buttons.
//
// TODO: Apply looks up the warm channel in CoolLevels as well. Check on the
// fixture which table the warm emitter actually answers to before switching.
var WarmLevels = [10]uint16{
	0x936C, 0x916E, 0x8F70, 0x8D72, 0x8B74,
	0x8976, 0x8778, 0x857A, 0x837C, 0x817E,
}

// ColorLevel is one of five mixing ratios, coolest first.
type ColorLevel int

// Color levels
const (
	ColorCool ColorLevel = iota
	ColorCooler
	ColorWhite
	ColorWarmer
	ColorWarm
)

var colorNames = [...]string{"cool", "cooler", "white", "warmer", "warm"}

func (c ColorLevel) String() string {
	if c < ColorCool || c > ColorWarm {
		return "unknown"
	}
	return colorNames[c]
}

// Same interpolation points as the stepwise fixture, in mireds:
// 6250K, 5750K, 4800K, 3400K.
var colorThresholds = []float64{160, 174, 208, 294}

// ColorLevelFor maps a color temperature onto a mixing ratio.
func ColorLevelFor(mireds float64) ColorLevel {
	return ColorLevel(fixture.LevelBelow(colorThresholds, mireds))
}

// Split is the brightness of each channel in [0,1].
type Split struct {
	Cool float64
	Warm float64
}

// SplitFor divides brightness between the channels the way the fixture has
// always been driven: every level past ColorCool falls through to the warm
// assignment, so those levels light the warm channel only.
func SplitFor(b float64, c ColorLevel) Split {
	var s Split
	switch c {
	case ColorCool:
		s = Split{Cool: b, Warm: 0}
	case ColorCooler:
		s = Split{Cool: b, Warm: b / 2}
		fallthrough
	case ColorWhite:
		s = Split{Cool: b, Warm: b / 2}
		fallthrough
	case ColorWarmer:
		s = Split{Cool: b / 2, Warm: b}
		fallthrough
	case ColorWarm:
		s = Split{Cool: 0, Warm: b}
	}
	return s
}

// SplitIntended is the per-level mix the ladder was designed for.
//
// TODO: switch Apply to this once the intermediate levels are checked against
// the fixture's own remote.
func SplitIntended(b float64, c ColorLevel) Split {
	switch c {
	case ColorCool:
		return Split{Cool: b, Warm: 0}
	case ColorCooler, ColorWhite:
		return Split{Cool: b, Warm: b / 2}
	case ColorWarmer:
		return Split{Cool: b / 2, Warm: b}
	default:
		return Split{Cool: 0, Warm: b}
	}
}

// Levels are the ladder positions sent for each channel.
type Levels struct {
	Cool int
	Warm int
}

// LevelsFor converts a split to ladder positions.
func LevelsFor(s Split) Levels {
	top := len(CoolLevels) - 1
	return Levels{
		Cool: fixture.ScaleLevel(s.Cool, top),
		Warm: fixture.ScaleLevel(s.Warm, top),
	}
}

// Light is the dual channel translator.
type Light struct {
	sender  ir.Sender
	delayer ir.Delayer

	mu   sync.Mutex
	last Levels
}

// Option configures a Light.
type Option func(*Light)

// WithDelayer replaces the blocking inter-command wait.
func WithDelayer(d ir.Delayer) Option {
	return func(l *Light) { l.delayer = d }
}

// New creates a translator.
func New(sender ir.Sender, opts ...Option) *Light {
	l := &Light{sender: sender, delayer: ir.Sleep}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Kind implements fixture.Translator.
func (l *Light) Kind() fixture.Kind { return fixture.KindDualChannel }

// Traits implements fixture.Translator.
func (l *Light) Traits() fixture.Traits {
	return fixture.ColorTemperatureTraits(MinMireds, MaxMireds)
}

// Last returns the levels sent by the previous write. It is informational.
func (l *Light) Last() Levels {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Apply recomputes both channels from target and sends them, cool first.
func (l *Light) Apply(ctx context.Context, target fixture.Target) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if target.IsOff() {
		log.Debug().Msg("dualchannel: off")
		l.send(ctx, CodeOff)
		l.last = Levels{}
		return
	}

	color := ColorLevelFor(target.Mireds)
	levels := LevelsFor(SplitFor(target.Level(), color))

	log.Debug().
		Int("cool", levels.Cool).
		Int("warm", levels.Warm).
		Str("color", color.String()).
		Msg("dualchannel: selected levels")

	l.send(ctx, CoolLevels[levels.Cool])
	l.delayer.Delay(CommandDelay)
	l.send(ctx, CoolLevels[levels.Warm])

	l.last = levels
}

func (l *Light) send(ctx context.Context, code uint16) {
	frame := ir.NEC{Address: Address, Command: code}
	if err := l.sender.Send(ctx, ir.Once(frame)); err != nil {
		log.Warn().Err(err).Stringer("frame", frame).Msg("dualchannel: send failed")
	}
}
