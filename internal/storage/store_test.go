package storage

import (
	"math/rand"
	"testing"

	"abdkv/internal/clock"
)

func TestInMemoryRegister_Initial(t *testing.T) {
	r := NewInMemoryRegister()
	if got := r.Get(); got != (clock.Tag{}) {
		t.Errorf("Expected zero tag, got %v", got)
	}
}

func TestInMemoryRegister_Apply(t *testing.T) {
	tests := []struct {
		name     string
		current  clock.Tag
		incoming clock.Tag
		adopted  bool
		want     clock.Tag
	}{
		{"newer timestamp", clock.Tag{Timestamp: 1, Value: 5}, clock.Tag{Timestamp: 2, Value: 0}, true, clock.Tag{Timestamp: 2, Value: 0}},
		{"older timestamp", clock.Tag{Timestamp: 3, Value: 5}, clock.Tag{Timestamp: 2, Value: 9}, false, clock.Tag{Timestamp: 3, Value: 5}},
		{"same tag", clock.Tag{Timestamp: 3, Value: 5}, clock.Tag{Timestamp: 3, Value: 5}, false, clock.Tag{Timestamp: 3, Value: 5}},
		{"tie, larger value", clock.Tag{Timestamp: 3, Value: 5}, clock.Tag{Timestamp: 3, Value: 6}, true, clock.Tag{Timestamp: 3, Value: 6}},
		{"tie, smaller value", clock.Tag{Timestamp: 3, Value: 5}, clock.Tag{Timestamp: 3, Value: 4}, false, clock.Tag{Timestamp: 3, Value: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &InMemoryRegister{tag: tt.current}
			if got := r.Apply(tt.incoming); got != tt.adopted {
				t.Errorf("Apply(%v) = %v, want %v", tt.incoming, got, tt.adopted)
			}
			if r.Get() != tt.want {
				t.Errorf("Expected %v after apply, got %v", tt.want, r.Get())
			}
		})
	}
}

// TestInMemoryRegister_Property_Monotonic applies random writes and checks
// the stored timestamp never decreases.
func TestInMemoryRegister_Property_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := NewInMemoryRegister()

	prev := r.Get()
	adopted := 0
	for i := 0; i < 1000; i++ {
		if r.Apply(clock.Tag{Timestamp: rng.Intn(20), Value: rng.Intn(20)}) {
			adopted++
		}
		cur := r.Get()
		if cur.Timestamp < prev.Timestamp {
			t.Fatalf("timestamp went backwards: %v -> %v", prev, cur)
		}
		if cur.Compare(prev) == clock.Before {
			t.Fatalf("tag went backwards: %v -> %v", prev, cur)
		}
		prev = cur
	}
	if adopted == 0 {
		t.Error("Expected at least one adopted write")
	}
}
