package animation

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync"
	"testing"
	"time"

	"libdb.so/barbatos/internal/clock/clocktest"
	"libdb.so/barbatos/internal/led"
	"libdb.so/barbatos/internal/thruster"
)

type write struct {
	ch led.Channel
	b  led.Brightness
}

type recordingSink struct {
	mu     sync.Mutex
	writes []write
	failAt int // fail the n-th write (1-based) if non-zero
}

func (s *recordingSink) Write(ch led.Channel, b led.Brightness) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAt > 0 && len(s.writes)+1 == s.failAt {
		return &led.TransportError{Channel: ch, Err: errors.New("i2c nack")}
	}
	s.writes = append(s.writes, write{ch, b})
	return nil
}

func (s *recordingSink) snapshot() []write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]write(nil), s.writes...)
}

func newEnv(sink led.Sink) *Env {
	clk := clocktest.New(20)
	return &Env{
		Sink:   sink,
		Clock:  clk,
		Rand:   rand.New(rand.NewPCG(1, 1)),
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
		State:  NewState(thruster.DefaultColorDuration, clk.Now()),
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"startup", Startup, false},
		{"1", Static, false},
		{"2", Breathe, false},
		{"3", Flicker, false},
		{"breathe", 0, true},
		{"Flicker", 0, true},
		{"Startup", 0, true},
		{" 1 ", 0, true},
		{"0", 0, true},
		{"4", 0, true},
		{"", 0, true},
		{"disco", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownMode) {
				t.Errorf("ParseMode(%q) error = %v, want ErrUnknownMode", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestStatic(t *testing.T) {
	sink := &recordingSink{}
	env := newEnv(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunStatic(ctx, env) }()

	// Let the idle loop go around a few times.
	time.Sleep(200 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("RunStatic returned %v, want context.Canceled", err)
	}

	var want []write
	for _, ch := range led.Body {
		want = append(want, write{ch, 200})
	}
	want = append(want,
		write{led.ThrusterR, 0},
		write{led.ThrusterG, 0},
		write{led.ThrusterB, 255},
	)

	got := sink.snapshot()
	if len(got) != len(want) {
		t.Fatalf("got %d writes, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if mode, _ := env.State.Snapshot(); mode != Static {
		t.Errorf("state mode = %s, want static", mode)
	}
}

func TestStartup(t *testing.T) {
	sink := &recordingSink{}
	env := newEnv(sink)

	if err := RunStartup(context.Background(), env); err != nil {
		t.Fatal(err)
	}

	var ramp []led.Brightness
	for b := 0; b <= 255; b += 5 {
		ramp = append(ramp, led.Brightness(b))
	}
	for b := 255; b >= 0; b -= 5 {
		ramp = append(ramp, led.Brightness(b))
	}

	perChannel := make(map[led.Channel][]led.Brightness)
	for _, w := range sink.snapshot() {
		perChannel[w.ch] = append(perChannel[w.ch], w.b)
	}

	if len(perChannel) != led.NumChannels {
		t.Fatalf("startup touched %d channels, want %d", len(perChannel), led.NumChannels)
	}
	for _, ch := range led.Channels {
		got := perChannel[ch]
		if len(got) != len(ramp) {
			t.Errorf("%s got %d steps, want %d", ch, len(got), len(ramp))
			continue
		}
		for i := range ramp {
			if got[i] != ramp[i] {
				t.Errorf("%s step %d = %d, want %d", ch, i, got[i], ramp[i])
				break
			}
		}
	}
}

func TestStartupStaggered(t *testing.T) {
	sink := &recordingSink{}
	env := newEnv(sink)
	env.Clock = clocktest.New(4)

	if err := RunStartup(context.Background(), env); err != nil {
		t.Fatal(err)
	}

	// The first write of each channel happens in channel order.
	first := make(map[led.Channel]int)
	for i, w := range sink.snapshot() {
		if _, ok := first[w.ch]; !ok {
			first[w.ch] = i
		}
	}
	for i := 1; i < len(led.Channels); i++ {
		prev, cur := led.Channels[i-1], led.Channels[i]
		if first[cur] < first[prev] {
			t.Errorf("%s started before %s", cur, prev)
		}
	}
}

func TestStartupCanceled(t *testing.T) {
	sink := &recordingSink{}
	env := newEnv(sink)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	if err := RunStartup(ctx, env); !errors.Is(err, context.Canceled) {
		t.Fatalf("RunStartup returned %v, want context.Canceled", err)
	}

	n := len(sink.snapshot())
	time.Sleep(50 * time.Millisecond)
	if after := len(sink.snapshot()); after != n {
		t.Errorf("%d writes happened after RunStartup returned", after-n)
	}
	if n >= led.NumChannels*104 {
		t.Errorf("startup ran to completion (%d writes) despite cancellation", n)
	}
}

func TestStartupTransportError(t *testing.T) {
	sink := &recordingSink{failAt: 20}
	env := newEnv(sink)

	err := RunStartup(context.Background(), env)
	if !led.IsTransportError(err) {
		t.Fatalf("RunStartup returned %v, want transport error", err)
	}

	n := len(sink.snapshot())
	time.Sleep(50 * time.Millisecond)
	if after := len(sink.snapshot()); after != n {
		t.Errorf("%d writes happened after the transport error", after-n)
	}
}

func TestBreatheLevel(t *testing.T) {
	tests := []struct {
		angle int
		want  led.Brightness
	}{
		{0, 127},
		{90, 255},
		{180, 127},
		{270, 0},
		{30, 191},
	}

	for _, tt := range tests {
		if got := breatheLevel(tt.angle); got != tt.want {
			t.Errorf("breatheLevel(%d) = %d, want %d", tt.angle, got, tt.want)
		}
	}
}

func TestBreathe(t *testing.T) {
	sink := &recordingSink{}
	env := newEnv(sink)

	// Draw the same phases the routine will.
	rng := rand.New(rand.NewPCG(1, 1))
	angles := make([]int, len(led.Body))
	for i := range angles {
		angles[i] = rng.IntN(360)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunBreathe(ctx, env) }()
	time.Sleep(300 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("RunBreathe returned %v, want context.Canceled", err)
	}

	writes := sink.snapshot()
	tick := len(led.Body) + 42*3
	if len(writes) < 2*tick {
		t.Fatalf("only %d writes, want at least two ticks", len(writes))
	}

	for n := 0; n < 2; n++ {
		base := n * tick
		for i, ch := range led.Body {
			w := writes[base+i]
			want := breatheLevel((angles[i] + n*BreatheStep) % 360)
			if w.ch != ch || w.b != want {
				t.Errorf("tick %d write %d = %+v, want {%s %d}", n, i, w, ch, want)
			}
		}
		for i := len(led.Body); i < tick; i++ {
			if ch := writes[base+i].ch; ch < led.ThrusterR {
				t.Fatalf("tick %d write %d went to %s, want a thruster channel", n, i, ch)
			}
		}
	}
}

func TestFlicker(t *testing.T) {
	sink := &recordingSink{}
	env := newEnv(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunFlicker(ctx, env) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("RunFlicker returned %v, want context.Canceled", err)
	}

	writes := sink.snapshot()
	if len(writes) < len(led.Body) {
		t.Fatalf("only %d writes", len(writes))
	}
	for _, w := range writes {
		if w.ch >= led.ThrusterR {
			continue
		}
		if w.b < FlickerMin || w.b > FlickerMax {
			t.Errorf("body %s flickered to %d, want [%d, %d]", w.ch, w.b, FlickerMin, FlickerMax)
		}
	}
}

func TestAmbientRotatesPalette(t *testing.T) {
	sink := &recordingSink{}
	env := newEnv(sink)
	clk := env.Clock.(*clocktest.Clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunAmbient(ctx, env) }()

	time.Sleep(20 * time.Millisecond)
	clk.Advance(thruster.DefaultColorDuration + time.Second)

	// The palette is only checked between pulses.
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, p := env.State.Snapshot()
		if p == thruster.PaletteRed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("palette = %s, want red", p)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("RunAmbient returned %v, want context.Canceled", err)
	}
	for _, w := range sink.snapshot() {
		if w.ch < led.ThrusterR {
			t.Fatalf("ambient driver wrote body channel %s", w.ch)
		}
	}
}
