package stepwise

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dokzlo13/irlightd/internal/fixture"
	"github.com/dokzlo13/irlightd/internal/ir"
	"github.com/dokzlo13/irlightd/internal/ir/irtest"
)

func newLight(opts ...Option) (*Light, *irtest.Recorder) {
	rec := irtest.New()
	return New(rec, append([]Option{WithDelayer(rec)}, opts...)...), rec
}

func target(brightness, mireds float64) fixture.Target {
	return fixture.Target{Brightness: brightness, Mireds: mireds}
}

func TestColorLevelFor(t *testing.T) {
	tests := []struct {
		mireds float64
		want   ColorLevel
	}{
		{150, ColorActive},
		{165, ColorRefresh},
		{200, ColorNatural},
		{250, ColorUnwind},
		{300, ColorRelax},
		{370, ColorRelax},
	}

	for _, tt := range tests {
		if got := ColorLevelFor(tt.mireds); got != tt.want {
			t.Errorf("ColorLevelFor(%v) = %s, want %s", tt.mireds, got, tt.want)
		}
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		before []fixture.Target
		target fixture.Target
		codes  []uint16
		delays int
		state  State
	}{
		{
			name:   "off_from_unknown",
			target: target(0, 200),
			codes:  []uint16{CodeOff},
			state:  State{On: false, Brightness: BrightnessUnknown, Color: ColorUnknown},
		},
		{
			name:   "preset_max_cool",
			target: target(1, 150),
			codes:  []uint16{CodeMaxCool},
			state:  State{On: true, Brightness: 9, Color: ColorActive},
		},
		{
			name:   "preset_max_white",
			target: target(0.95, 200),
			codes:  []uint16{CodeMaxWhite},
			state:  State{On: true, Brightness: 9, Color: ColorNatural},
		},
		{
			name:   "preset_mid_white",
			target: target(0.55, 190),
			codes:  []uint16{CodeMidWhite},
			state:  State{On: true, Brightness: 5, Color: ColorNatural},
		},
		{
			name:   "preset_max_warm",
			target: target(1, 370),
			codes:  []uint16{CodeMaxWarm},
			state:  State{On: true, Brightness: 9, Color: ColorRelax},
		},
		{
			name:   "first_write_resets_to_mid_white",
			target: target(0.3, 200),
			codes:  []uint16{CodeMidWhite, CodeDimmer, CodeDimmer},
			delays: 3,
			state:  State{On: true, Brightness: 3, Color: ColorNatural},
		},
		{
			name:   "first_write_steps_color_then_brightness",
			target: target(0.7, 300),
			codes:  []uint16{CodeMidWhite, CodeWarmer, CodeWarmer, CodeBrighter, CodeBrighter},
			delays: 5,
			state:  State{On: true, Brightness: 7, Color: ColorRelax},
		},
		{
			name:   "steps_cooler_and_dimmer",
			before: []fixture.Target{target(0.7, 300)},
			target: target(0.45, 165),
			codes:  []uint16{CodeCooler, CodeCooler, CodeCooler, CodeDimmer, CodeDimmer, CodeDimmer},
			delays: 6,
			state:  State{On: true, Brightness: 4, Color: ColorRefresh},
		},
		{
			name:   "off_keeps_levels",
			before: []fixture.Target{target(0.3, 200)},
			target: target(0, 200),
			codes:  []uint16{CodeOff},
			state:  State{On: false, Brightness: 3, Color: ColorNatural},
		},
		{
			name:   "on_after_off",
			before: []fixture.Target{target(0.3, 200), target(0, 200)},
			target: target(0.4, 200),
			codes:  []uint16{CodeOn, CodeBrighter},
			delays: 2,
			state:  State{On: true, Brightness: 4, Color: ColorNatural},
		},
		{
			name:   "preset_after_stepping",
			before: []fixture.Target{target(0.3, 250)},
			target: target(1, 200),
			codes:  []uint16{CodeMaxWhite},
			state:  State{On: true, Brightness: 9, Color: ColorNatural},
		},
		{
			name:   "brightness_clamped",
			before: []fixture.Target{target(0.8, 200)},
			target: target(4.2, 250),
			codes:  []uint16{CodeWarmer, CodeBrighter},
			delays: 2,
			state:  State{On: true, Brightness: 9, Color: ColorUnwind},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, rec := newLight()
			for _, b := range tt.before {
				l.Apply(context.Background(), b)
			}
			rec.Reset()

			l.Apply(context.Background(), tt.target)

			if diff := cmp.Diff(tt.codes, rec.Codes()); diff != "" {
				t.Errorf("codes mismatch (-want +got):\n%s", diff)
			}
			delays := rec.Delays()
			if len(delays) != tt.delays {
				t.Errorf("got %d delays, want %d", len(delays), tt.delays)
			}
			for _, d := range delays {
				if d != CommandDelay {
					t.Errorf("delay = %v, want %v", d, CommandDelay)
				}
			}
			if got := l.Snapshot(); got != tt.state {
				t.Errorf("Snapshot() = %v, want %v", got, tt.state)
			}
		})
	}
}

func TestApply_EveryPressFollowedByDelay(t *testing.T) {
	l, rec := newLight()
	l.Apply(context.Background(), target(0.2, 294))

	events := rec.Events()
	if len(events)%2 != 0 {
		t.Fatalf("expected send/delay pairs, got %d events", len(events))
	}
	for i := 0; i < len(events); i += 2 {
		if events[i].Tx == nil || events[i+1].Tx != nil {
			t.Fatalf("event %d out of order: %+v", i, events[i:i+2])
		}
	}
}

func TestApply_OffSendsOnlyOff(t *testing.T) {
	for _, b := range []float64{0, -0.5} {
		l, rec := newLight()
		l.Apply(context.Background(), target(0.6, 250))
		rec.Reset()

		l.Apply(context.Background(), target(b, 250))

		if diff := cmp.Diff([]uint16{CodeOff}, rec.Codes()); diff != "" {
			t.Errorf("brightness %v: codes mismatch (-want +got):\n%s", b, diff)
		}
		if n := len(rec.Delays()); n != 0 {
			t.Errorf("brightness %v: %d delays, want 0", b, n)
		}
	}
}

func TestApply_StepCountMatchesDelta(t *testing.T) {
	// ColorRefresh has no presets, so every pair goes through stepping.
	const mireds = 165

	for from := 1; from <= 9; from++ {
		for to := 1; to <= 9; to++ {
			l, rec := newLight()
			l.Apply(context.Background(), target(float64(from)/10+0.05, mireds))
			rec.Reset()

			l.Apply(context.Background(), target(float64(to)/10+0.05, mireds))

			var brighter, dimmer int
			for _, c := range rec.Codes() {
				switch c {
				case CodeBrighter:
					brighter++
				case CodeDimmer:
					dimmer++
				default:
					t.Errorf("%d->%d: unexpected code 0x%04X", from, to, c)
				}
			}

			delta := to - from
			switch {
			case delta > 0 && (brighter != delta || dimmer != 0):
				t.Errorf("%d->%d: brighter=%d dimmer=%d", from, to, brighter, dimmer)
			case delta < 0 && (dimmer != -delta || brighter != 0):
				t.Errorf("%d->%d: brighter=%d dimmer=%d", from, to, brighter, dimmer)
			case delta == 0 && brighter+dimmer != 0:
				t.Errorf("%d->%d: expected no steps", from, to)
			}
		}
	}
}

func TestApply_Idempotent(t *testing.T) {
	targets := []fixture.Target{
		target(0.3, 200),
		target(0.75, 300),
		target(0.12, 150),
		target(1, 370),
	}

	for _, tgt := range targets {
		l, rec := newLight()
		l.Apply(context.Background(), tgt)
		rec.Reset()

		l.Apply(context.Background(), tgt)

		for _, c := range rec.Codes() {
			switch c {
			case CodeBrighter, CodeDimmer, CodeWarmer, CodeCooler:
				t.Errorf("%+v: step 0x%04X on repeated target", tgt, c)
			}
		}
	}
}

func TestApply_Channel2(t *testing.T) {
	l, rec := newLight(WithChannel(Channel2))
	l.Apply(context.Background(), target(0, 200))

	txs := rec.Transmissions()
	if len(txs) != 1 {
		t.Fatalf("got %d transmissions, want 1", len(txs))
	}
	want := ir.NEC{Address: Address, Command: 0xC13E}
	if txs[0].Signal != want {
		t.Errorf("signal = %v, want %v", txs[0].Signal, want)
	}
	if txs[0].Count() != 1 {
		t.Errorf("Count() = %d, want 1", txs[0].Count())
	}
}

func TestChannelEncode(t *testing.T) {
	tests := []struct {
		ch   Channel
		in   uint16
		want uint16
	}{
		{Channel1, CodeOn, CodeOn},
		{Channel2, CodeOn, 0xC23D},
		{Channel2, CodeWarmer, 0xD728},
		{Channel2, 0x8080, 0x8000},
	}

	for _, tt := range tests {
		if got := tt.ch.Encode(tt.in); got != tt.want {
			t.Errorf("Channel(%d).Encode(0x%04X) = 0x%04X, want 0x%04X", tt.ch, tt.in, got, tt.want)
		}
	}
}

func TestWithChannel_InvalidFallsBack(t *testing.T) {
	l, _ := newLight(WithChannel(7))
	if l.Channel() != Channel1 {
		t.Errorf("Channel() = %d, want 1", l.Channel())
	}
}

func TestApply_SendErrorsDoNotStopSequence(t *testing.T) {
	l, rec := newLight()
	rec.Err = errors.New("blaster unplugged")

	l.Apply(context.Background(), target(0.3, 200))

	if n := len(rec.Codes()); n != 3 {
		t.Errorf("got %d sends, want 3", n)
	}
	if got := l.Snapshot(); got.Brightness != 3 || !got.On {
		t.Errorf("Snapshot() = %v", got)
	}
}

func TestForget(t *testing.T) {
	l, rec := newLight()
	l.Apply(context.Background(), target(0.3, 200))
	l.Forget()
	rec.Reset()

	l.Apply(context.Background(), target(0.3, 200))

	if codes := rec.Codes(); len(codes) == 0 || codes[0] != CodeMidWhite {
		t.Errorf("codes = %v, want reset first", codes)
	}
}

func TestTraits(t *testing.T) {
	l, _ := newLight()
	tr := l.Traits()
	if tr.MinMireds != 154 || tr.MaxMireds != 370 {
		t.Errorf("Traits() = %+v", tr)
	}
	if !tr.Supports(fixture.ColorModeColorTemperature) {
		t.Error("missing color temperature mode")
	}
	if l.Kind() != fixture.KindStepwise {
		t.Errorf("Kind() = %s", l.Kind())
	}
}
