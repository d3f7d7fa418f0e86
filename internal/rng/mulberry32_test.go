package rng

import "testing"

func TestMulberry32KnownValues(t *testing.T) {
	tests := []struct {
		seed     uint32
		expected []float64
	}{
		{1, []float64{0.6270739405881613, 0.002735721180215478, 0.5274470399599522, 0.9810509674716741, 0.9683778982143849}},
		{42, []float64{0.6011037519201636, 0.44829055899754167, 0.8524657934904099, 0.6697340414393693, 0.17481389874592423}},
		{0, []float64{0.26642920868471265, 0.0003297457005828619, 0.2232720274478197, 0.1462021479383111, 0.46732782293111086}},
	}

	for _, tc := range tests {
		g := New(tc.seed)
		for i, want := range tc.expected {
			got := g.Float64()
			if got != want {
				t.Errorf("seed %d draw %d = %v, expected %v", tc.seed, i, got, want)
			}
		}
	}
}

func TestMulberry32RawOutput(t *testing.T) {
	g := New(42)
	want := []uint32{2581720956, 1925393290, 3661312704}
	for i, w := range want {
		if got := g.Uint32(); got != w {
			t.Errorf("Uint32() draw %d = %d, expected %d", i, got, w)
		}
	}
}

func TestMulberry32Deterministic(t *testing.T) {
	for _, n := range []int{0, 1, 7, 1000} {
		a := New(123456)
		b := New(123456)
		for i := 0; i < n; i++ {
			if a.Float64() != b.Float64() {
				t.Fatalf("sequences diverged at draw %d of %d", i, n)
			}
		}
		if a.Draws() != uint64(n) {
			t.Errorf("Draws() = %d, expected %d", a.Draws(), n)
		}
	}
}

func TestMulberry32Range(t *testing.T) {
	g := New(7)
	for i := 0; i < 10000; i++ {
		v := g.Float64()
		if v < 0 || v >= 1 {
			t.Fatalf("draw %d out of range: %v", i, v)
		}
	}
}

func TestMulberry32Reset(t *testing.T) {
	g := New(99)
	first := g.Float64()
	g.Float64()
	g.Reset()

	if g.Draws() != 0 {
		t.Errorf("Draws() after Reset = %d, expected 0", g.Draws())
	}
	if got := g.Float64(); got != first {
		t.Errorf("first draw after Reset = %v, expected %v", got, first)
	}
	if g.Seed() != 99 {
		t.Errorf("Seed() = %d, expected 99", g.Seed())
	}
}

func TestScriptWraps(t *testing.T) {
	s := NewScript(0.1, 0.2)
	got := []float64{s.Float64(), s.Float64(), s.Float64()}
	want := []float64{0.1, 0.2, 0.1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("draw %d = %v, expected %v", i, got[i], want[i])
		}
	}
	if s.Used() != 3 {
		t.Errorf("Used() = %d, expected 3", s.Used())
	}
}

func TestEntropySeedMasked(t *testing.T) {
	if s := EntropySeed(); s > 0xFFFFFFF {
		t.Errorf("EntropySeed() = %#x, exceeds 28 bits", s)
	}
}
