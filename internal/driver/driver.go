// Package driver binds configured lights to their translators and converts
// the host's desired state into translator targets.
package driver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/config"
	"github.com/dokzlo13/irlightd/internal/fixture"
	"github.com/dokzlo13/irlightd/internal/fixture/boxlight"
	"github.com/dokzlo13/irlightd/internal/fixture/dualchannel"
	"github.com/dokzlo13/irlightd/internal/fixture/stepwise"
	"github.com/dokzlo13/irlightd/internal/ir"
)

// ErrUnknownKind is returned for a fixture kind with no translator.
var ErrUnknownKind = errors.New("unknown fixture kind")

// Desired is the state the user asked for. Mireds of zero means "keep the
// fixture's neutral point".
type Desired struct {
	On         bool    `json:"on"`
	Brightness float64 `json:"brightness"`
	Mireds     float64 `json:"mireds,omitempty"`
}

// NewTranslator builds the translator for kind. channel only applies to
// stepwise fixtures.
func NewTranslator(kind fixture.Kind, channel int, sender ir.Sender, delayer ir.Delayer) (fixture.Translator, error) {
	if delayer == nil {
		delayer = ir.Sleep
	}

	switch kind {
	case fixture.KindStepwise:
		return stepwise.New(sender,
			stepwise.WithChannel(stepwise.Channel(channel)),
			stepwise.WithDelayer(delayer),
		), nil
	case fixture.KindDualChannel:
		return dualchannel.New(sender, dualchannel.WithDelayer(delayer)), nil
	case fixture.KindBoxLight:
		return boxlight.New(sender, boxlight.WithDelayer(delayer)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Light is one configured fixture.
type Light struct {
	ID   string
	Name string

	translator fixture.Translator
	curve      *Curve
}

// New creates a light from its configuration.
func New(cfg config.LightConfig, sender ir.Sender, delayer ir.Delayer) (*Light, error) {
	t, err := NewTranslator(fixture.Kind(cfg.Kind), cfg.Channel, sender, delayer)
	if err != nil {
		return nil, fmt.Errorf("light %s: %w", cfg.ID, err)
	}

	curve, err := ParseCurve(cfg.BrightnessCurve)
	if err != nil {
		return nil, fmt.Errorf("light %s: %w", cfg.ID, err)
	}

	return &Light{
		ID:         cfg.ID,
		Name:       cfg.DisplayName(),
		translator: t,
		curve:      curve,
	}, nil
}

// Kind returns the fixture kind.
func (l *Light) Kind() fixture.Kind { return l.translator.Kind() }

// Traits returns what the fixture accepts.
func (l *Light) Traits() fixture.Traits { return l.translator.Traits() }

// Translator exposes the underlying translator for diagnostics.
func (l *Light) Translator() fixture.Translator { return l.translator }

// Target converts desired state into a translator target.
func (l *Light) Target(d Desired) fixture.Target {
	traits := l.translator.Traits()

	mireds := d.Mireds
	if mireds == 0 || math.IsNaN(mireds) {
		mireds = (traits.MinMireds + traits.MaxMireds) / 2
	}

	var brightness float64
	if d.On {
		b := fixture.Target{Brightness: d.Brightness}.Level()
		if b > 0 {
			brightness = fixture.Target{Brightness: l.curve.Apply(b)}.Level()
		}
	}

	return fixture.Target{
		Brightness: brightness,
		Mireds:     traits.ClampMireds(mireds),
	}
}

// Apply sends desired state to the fixture and returns the target used.
func (l *Light) Apply(ctx context.Context, d Desired) fixture.Target {
	target := l.Target(d)

	log.Debug().
		Str("light", l.ID).
		Bool("on", d.On).
		Float64("brightness", target.Brightness).
		Float64("mireds", target.Mireds).
		Msg("Applying light")

	l.translator.Apply(ctx, target)
	return target
}

// Forget drops remembered fixture state where the translator keeps any, so
// the next apply starts from an absolute command.
func (l *Light) Forget() bool {
	f, ok := l.translator.(interface{ Forget() })
	if ok {
		f.Forget()
	}
	return ok
}
