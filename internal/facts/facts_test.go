package facts

import (
	"testing"

	"sfpm/internal/value"
)

func TestDictAddAndTryGet(t *testing.T) {
	d := NewDict(2)
	d.Add("hp", value.FromInt(100))
	d.Add("name", value.FromString("goblin"))

	got, ok := d.TryGet("hp")
	if !ok || got.Int() != 100 {
		t.Errorf("TryGet(hp) = (%v, %v), want (100, true)", got, ok)
	}

	got, ok = d.TryGet("name")
	if !ok || got.String() != "goblin" {
		t.Errorf("TryGet(name) = (%v, %v), want (goblin, true)", got, ok)
	}

	if d.Len() != 2 {
		t.Errorf("Len() = %d, want 2", d.Len())
	}
}

func TestDictTryGetMiss(t *testing.T) {
	d := NewDict(0)
	if _, ok := d.TryGet("missing"); ok {
		t.Error("TryGet on an absent key should miss")
	}
}

func TestDictAddReplacesInPlace(t *testing.T) {
	d := NewDict(0)
	d.Add("hp", value.FromInt(10))
	d.Add("mp", value.FromInt(5))
	d.Add("hp", value.FromInt(20))

	if d.Len() != 2 {
		t.Errorf("Len() = %d, want 2 after replacing an existing key", d.Len())
	}
	got, _ := d.TryGet("hp")
	if got.Int() != 20 {
		t.Errorf("TryGet(hp) = %d, want 20 after replace", got.Int())
	}
}

func TestSingleTryGet(t *testing.T) {
	s := Single{Name: "opcode", Value: value.FromInt(7)}

	got, ok := s.TryGet("opcode")
	if !ok || got.Int() != 7 {
		t.Errorf("TryGet(opcode) = (%v, %v), want (7, true)", got, ok)
	}

	if _, ok := s.TryGet("other"); ok {
		t.Error("Single should only answer its own fact name")
	}
}
