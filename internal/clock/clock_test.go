package clock

import (
	"testing"
	"time"
)

func TestManualAdvance(t *testing.T) {
	t.Parallel()
	start := time.Unix(1_600_000_000, 0)
	m := NewManual(start)
	if got := m.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}
	got := m.Advance(90 * time.Minute)
	if want := start.Add(90 * time.Minute); !got.Equal(want) || !m.Now().Equal(want) {
		t.Fatalf("Advance = %v, want %v", got, want)
	}
	m.Set(start)
	if !m.Now().Equal(start) {
		t.Fatalf("Set did not take effect")
	}
}

func TestFunc(t *testing.T) {
	t.Parallel()
	at := time.Unix(42, 0)
	var c Clock = Func(func() time.Time { return at })
	if !c.Now().Equal(at) {
		t.Fatalf("Func clock = %v, want %v", c.Now(), at)
	}
}
