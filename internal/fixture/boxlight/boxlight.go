// Package boxlight drives the photo box bulb. Its remote has absolute buttons
// for three color temperatures and a few brightness steps, so each write is
// a table lookup plus an optional nudge warmer or cooler.
package boxlight

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/fixture"
	"github.com/dokzlo13/irlightd/internal/ir"
)

// Address is the NEC address of the remote.
const Address uint16 = 0xFE01

// Remote buttons.
const (
	CodeToggle    uint16 = 0xFF00
	CodeBright100 uint16 = 0xF40B
	CodeBright50  uint16 = 0xF807
	CodeBright20  uint16 = 0xFC03 // not used by Apply
	CodeSleep     uint16 = 0xF906
	CodeCold      uint16 = 0xB748
	CodeWhite     uint16 = 0xBB44
	CodeWarm      uint16 = 0xBF40
	CodeWarmer    uint16 = 0xF50A
	CodeCooler    uint16 = 0xFD02
)

// The advertised cold end is stretched so that the bulb's white lines up with
// the 182 mired white of the ceiling lights.
const (
	MinMireds = 50
	MaxMireds = 370
)

// CommandDelay separates consecutive presses.
const CommandDelay = 25 * time.Millisecond

// Latch is the NEC repeat burst that makes the bulb commit a warmer/cooler
// nudge. It is held as a learned Pronto code.
var Latch = ir.MustParsePronto("0000 006D 0002 0000 0159 0057 0015 06C3")

// Latch repeat parameters.
const (
	LatchTimes = 8
	LatchWait  = 50 * time.Millisecond
)

// ColorSetting is one row of the color table. Adjust is zero when the base
// button alone is enough.
type ColorSetting struct {
	Name   string
	Base   uint16
	Adjust uint16
}

// BrightnessSetting is one row of the brightness table. A zero Code is off.
type BrightnessSetting struct {
	Name string
	Code uint16
}

// IsOff reports whether the row turns the bulb off.
func (b BrightnessSetting) IsOff() bool { return b.Code == 0 }

// ColorTable is keyed by normalized color temperature, 0 coldest.
var ColorTable = fixture.Table[ColorSetting]{
	{Threshold: 0.08, Value: ColorSetting{"Cold", CodeCold, 0}},
	{Threshold: 0.25, Value: ColorSetting{"Cold+", CodeCold, CodeWarmer}},
	{Threshold: 0.42, Value: ColorSetting{"White-", CodeWhite, CodeCooler}},
	{Threshold: 0.59, Value: ColorSetting{"White", CodeWhite, 0}},
	{Threshold: 0.76, Value: ColorSetting{"White+", CodeWhite, CodeWarmer}},
	{Threshold: 0.93, Value: ColorSetting{"Warm-", CodeWarm, CodeCooler}},
	{Threshold: 1.00, Value: ColorSetting{"Warm", CodeWarm, 0}},
}

// BrightnessTable is keyed by brightness.
var BrightnessTable = fixture.Table[BrightnessSetting]{
	{Threshold: 0.2, Value: BrightnessSetting{"Off", 0}},
	{Threshold: 0.5, Value: BrightnessSetting{"Sleep", CodeSleep}},
	{Threshold: 0.8, Value: BrightnessSetting{"50%", CodeBright50}},
	{Threshold: 1.0, Value: BrightnessSetting{"100%", CodeBright100}},
}

// Last is the most recent write, kept for diagnostics only.
type Last struct {
	Brightness float64
	Color      float64
	Selected   struct {
		Brightness string
		Color      string
	}
}

// Light is the box light translator.
type Light struct {
	sender  ir.Sender
	delayer ir.Delayer

	mu   sync.Mutex
	last Last
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
func (l *Light) Kind() fixture.Kind { return fixture.KindBoxLight }

// Traits implements fixture.Translator.
func (l *Light) Traits() fixture.Traits {
	return fixture.ColorTemperatureTraits(MinMireds, MaxMireds)
}

// Last returns the previous write.
func (l *Light) Last() Last {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Apply sets color first because the base color buttons force full brightness.
func (l *Light) Apply(ctx context.Context, target fixture.Target) {
	l.mu.Lock()
	defer l.mu.Unlock()

	brightness := target.Level()
	ct := l.Traits().Normalize(target.Mireds)

	color := ColorTable.AtMost(ct)
	level := BrightnessTable.AtMost(brightness)

	log.Debug().
		Float64("brightness", brightness).
		Float64("color", ct).
		Str("brightness_setting", level.Name).
		Str("color_setting", color.Name).
		Msg("boxlight: selected settings")

	if level.IsOff() {
		l.send(ctx, CodeSleep)
		l.delayer.Delay(CommandDelay)
		l.send(ctx, CodeToggle)
	} else {
		l.send(ctx, color.Base)
		l.delayer.Delay(CommandDelay)
		l.send(ctx, level.Code)

		if color.Adjust != 0 {
			l.delayer.Delay(CommandDelay)
			l.send(ctx, color.Adjust)
			l.latch(ctx)
		}
	}

	l.last.Brightness = brightness
	l.last.Color = ct
	l.last.Selected.Brightness = level.Name
	l.last.Selected.Color = color.Name
}

func (l *Light) send(ctx context.Context, code uint16) {
	frame := ir.NEC{Address: Address, Command: code}
	if err := l.sender.Send(ctx, ir.Once(frame)); err != nil {
		log.Warn().Err(err).Stringer("frame", frame).Msg("boxlight: send failed")
	}
}

func (l *Light) latch(ctx context.Context) {
	if err := l.sender.Send(ctx, ir.Repeat(Latch, LatchTimes, LatchWait)); err != nil {
		log.Warn().Err(err).Msg("boxlight: latch failed")
	}
}
