package money

import "testing"

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{1.005, 1.01},
		{1.004, 1.0},
		{2.675, 2.68},
		{-1.005, -1.01},
		{19.999, 20.0},
		{0.1 + 0.2, 0.3},
	}
	for _, c := range cases {
		if got := Round2(c.in); got != c.want {
			t.Errorf("Round2(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal(0.1+0.2, 0.3) {
		t.Fatal("expected 0.1+0.2 to equal 0.3 at 2 decimals")
	}
	if Equal(1.01, 1.02) {
		t.Fatal("expected 1.01 != 1.02")
	}
}
