// Package stepwise drives ceiling lights whose remote only offers relative
// brighter/dimmer and warmer/cooler buttons plus four absolute presets.
//
// The remote has no readback, so the translator remembers the last levels it
// drove the fixture to and steps from there.
package stepwise

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/fixture"
	"github.com/dokzlo13/irlightd/internal/ir"
)

// Address is the NEC address of the remote.
const Address uint16 = 0x6D82

// Remote buttons.
const (
	CodeOn       uint16 = 0x42BD
	CodeOff      uint16 = 0x41BE
	CodeMaxWarm  uint16 = 0x51AE
	CodeMaxWhite uint16 = 0x52AD
	CodeMidWhite uint16 = 0x5DA2
	CodeMaxCool  uint16 = 0x53AC
	CodeBrighter uint16 = 0x45BA
	CodeDimmer   uint16 = 0x44BB
	CodeDimmest  uint16 = 0x1DE2 // night light; not used by Apply
	CodeWarmer   uint16 = 0x57A8
	CodeCooler   uint16 = 0x58A7
)

// CommandDelay is the gap the fixture needs between two presses.
const CommandDelay = 255 * time.Millisecond

// Mired range advertised to the host.
const (
	MinMireds = 154
	MaxMireds = 370
)

// ColorLevel is a rung on the fixture's five-step color ladder, coolest first.
type ColorLevel int

// Color ladder
const (
	ColorUnknown ColorLevel = fixture.LevelUnknown
	ColorActive  ColorLevel = iota - 1
	ColorRefresh
	ColorNatural
	ColorUnwind
	ColorRelax
)

var colorNames = [...]string{"active", "refresh", "natural", "unwind", "relax"}

func (c ColorLevel) String() string {
	if c < ColorActive || c > ColorRelax {
		return "unknown"
	}
	return colorNames[c]
}

// BrightnessLevel is a rung on the ten-step brightness ladder.
type BrightnessLevel int

// Brightness ladder landmarks
const (
	BrightnessUnknown BrightnessLevel = fixture.LevelUnknown
	BrightnessMin     BrightnessLevel = 0
	BrightnessMid     BrightnessLevel = 5
	BrightnessMax     BrightnessLevel = 9
)

// Upper mired bounds of ColorActive..ColorUnwind. Anything at or above the last
// one is ColorRelax.
var colorThresholds = []float64{160, 174, 208, 294}

// ColorLevelFor maps a color temperature onto the color ladder.
func ColorLevelFor(mireds float64) ColorLevel {
	return ColorLevel(fixture.LevelBelow(colorThresholds, mireds))
}

// BrightnessLevelFor maps brightness in [0,1] onto the brightness ladder.
func BrightnessLevelFor(b float64) BrightnessLevel {
	return BrightnessLevel(fixture.ScaleLevel(b, int(BrightnessMax)))
}

type preset struct {
	brightness BrightnessLevel
	color      ColorLevel
	code       uint16
}

// Absolute buttons, checked before falling back to stepping.
var presets = [...]preset{
	{BrightnessMax, ColorActive, CodeMaxCool},
	{BrightnessMax, ColorNatural, CodeMaxWhite},
	{BrightnessMid, ColorNatural, CodeMidWhite},
	{BrightnessMax, ColorRelax, CodeMaxWarm},
}

func presetFor(b BrightnessLevel, c ColorLevel) (uint16, bool) {
	for _, p := range presets {
		if p.brightness == b && p.color == c {
			return p.code, true
		}
	}
	return 0, false
}

// Channel selects which of two paired fixtures listens to a command.
type Channel int

// Channels
const (
	Channel1 Channel = 1
	Channel2 Channel = 2
)

// Encode applies the channel's bit transform to a command word.
func (c Channel) Encode(code uint16) uint16 {
	if c == Channel2 {
		return (code | 0x8000) &^ 0x0080
	}
	return code
}

// State is what the translator believes the fixture is showing.
type State struct {
	On         bool
	Brightness BrightnessLevel
	Color      ColorLevel
}

// Known reports whether both levels have been established.
func (s State) Known() bool {
	return s.Brightness != BrightnessUnknown && s.Color != ColorUnknown
}

func (s State) String() string {
	return fmt.Sprintf("on=%t brightness=%d color=%s", s.On, s.Brightness, s.Color)
}

// Light is the stepwise ceiling light translator.
type Light struct {
	sender  ir.Sender
	delayer ir.Delayer
	channel Channel

	mu    sync.Mutex
	state State
}

// Option configures a Light.
type Option func(*Light)

// WithChannel selects the channel. Values other than Channel2 mean Channel1.
func WithChannel(c Channel) Option {
	return func(l *Light) {
		if c != Channel2 {
			c = Channel1
		}
		l.channel = c
	}
}

// WithDelayer replaces the blocking inter-command wait.
func WithDelayer(d ir.Delayer) Option {
	return func(l *Light) { l.delayer = d }
}

// New creates a translator with unknown remembered state.
func New(sender ir.Sender, opts ...Option) *Light {
	l := &Light{
		sender:  sender,
		delayer: ir.Sleep,
		channel: Channel1,
		state:   State{Brightness: BrightnessUnknown, Color: ColorUnknown},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Kind implements fixture.Translator.
func (l *Light) Kind() fixture.Kind { return fixture.KindStepwise }

// Traits implements fixture.Translator.
func (l *Light) Traits() fixture.Traits {
	return fixture.ColorTemperatureTraits(MinMireds, MaxMireds)
}

// Channel returns the configured channel.
func (l *Light) Channel() Channel { return l.channel }

// Snapshot returns the remembered state.
func (l *Light) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Forget drops the remembered levels so the next write starts from the
// mid-white reset. Use it after the fixture was operated by its own remote.
func (l *Light) Forget() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = State{Brightness: BrightnessUnknown, Color: ColorUnknown}
}

// Apply drives the fixture to target.
func (l *Light) Apply(ctx context.Context, target fixture.Target) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if target.IsOff() {
		log.Debug().Int("channel", int(l.channel)).Msg("stepwise: off")
		l.send(ctx, CodeOff)
		l.state.On = false
		return
	}

	brightness := BrightnessLevelFor(target.Level())
	color := ColorLevelFor(target.Mireds)

	logger := log.With().
		Int("channel", int(l.channel)).
		Int("brightness", int(brightness)).
		Str("color", color.String()).
		Logger()

	if code, ok := presetFor(brightness, color); ok {
		logger.Debug().Uint16("code", code).Msg("stepwise: preset")
		l.send(ctx, code)
		l.state = State{On: true, Brightness: brightness, Color: color}
		return
	}

	switch {
	case !l.state.Known():
		logger.Debug().Msg("stepwise: state unknown, resetting to mid white")
		l.send(ctx, CodeMidWhite)
		l.state.Brightness = BrightnessMid
		l.state.Color = ColorNatural
		l.delayer.Delay(CommandDelay)
	case !l.state.On:
		l.send(ctx, CodeOn)
		l.delayer.Delay(CommandDelay)
	}

	colorDelta := int(color - l.state.Color)
	brightnessDelta := int(brightness - l.state.Brightness)
	logger.Debug().
		Int("color_delta", colorDelta).
		Int("brightness_delta", brightnessDelta).
		Msg("stepwise: stepping")

	l.step(ctx, colorDelta, CodeWarmer, CodeCooler)
	l.step(ctx, brightnessDelta, CodeBrighter, CodeDimmer)

	l.state = State{On: true, Brightness: brightness, Color: color}
}

// step presses up |delta| times when delta is positive, down otherwise.
func (l *Light) step(ctx context.Context, delta int, up, down uint16) {
	code := up
	if delta < 0 {
		code, delta = down, -delta
	}
	for i := 0; i < delta; i++ {
		l.send(ctx, code)
		l.delayer.Delay(CommandDelay)
	}
}

func (l *Light) send(ctx context.Context, code uint16) {
	frame := ir.NEC{Address: Address, Command: l.channel.Encode(code)}
	if err := l.sender.Send(ctx, ir.Once(frame)); err != nil {
		log.Warn().Err(err).Stringer("frame", frame).Msg("stepwise: send failed")
	}
}
