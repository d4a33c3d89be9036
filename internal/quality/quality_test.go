package quality

import (
	"encoding/json"
	"testing"
)

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		vsBest int
		isBest bool
		want   Quality
	}{
		{0, true, Best},
		{-500, true, Best},
		{0, false, Good},
		{35, false, Good},
		{-20, false, Good},
		{-21, false, Inaccurate},
		{-100, false, Inaccurate},
		{-101, false, Mistake},
		{-300, false, Mistake},
		{-301, false, Blunder},
		{-MateScore * 2, false, Blunder},
	}

	for _, tt := range tests {
		got, reason := Classify(tt.vsBest, tt.isBest)
		if got != tt.want {
			t.Errorf("Classify(%d, %v) = %s, want %s", tt.vsBest, tt.isBest, got, tt.want)
		}
		if reason == "" {
			t.Errorf("Classify(%d, %v) returned empty reason", tt.vsBest, tt.isBest)
		}
	}
}

func TestClassifyMonotonic(t *testing.T) {
	prev, _ := Classify(400, false)
	for vs := 400; vs >= -1000; vs-- {
		q, _ := Classify(vs, false)
		if q < prev {
			t.Fatalf("vs_best=%d classified %s, better than %s at vs_best=%d", vs, q, prev, vs+1)
		}
		prev = q
	}
}

func TestMerit(t *testing.T) {
	tests := []struct {
		name   string
		q      Quality
		vsBest int
		want   int
	}{
		{"best", Best, 0, 3},
		{"good exact", Good, 0, 2},
		{"good slightly worse", Good, -20, 1},
		{"inaccurate", Inaccurate, -100, -1},
		{"mistake", Mistake, -250, -5},
		{"blunder floors", Blunder, -350, -12},
		{"blunder exact multiple", Blunder, -400, -12},
		{"better than best", Good, 399, 2},
		{"much better than best", Good, 800, 4},
		// No clamp: a mate-sized gap escalates far past the blunder base.
		{"unclamped mate gap", Blunder, -2 * MateScore, -1010},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Merit(tt.q, tt.vsBest); got != tt.want {
				t.Errorf("Merit(%s, %d) = %d, want %d", tt.q, tt.vsBest, got, tt.want)
			}
		})
	}
}

func TestCentipawns(t *testing.T) {
	tests := []struct {
		eval Eval
		want int
	}{
		{Eval{}, 0},
		{CP(37), 37},
		{CP(-120), -120},
		{MateIn(3), MateScore},
		{MateIn(-1), -MateScore},
	}
	for _, tt := range tests {
		if got := tt.eval.Centipawns(); got != tt.want {
			t.Errorf("%+v.Centipawns() = %d, want %d", tt.eval, got, tt.want)
		}
	}
}

func TestAssess(t *testing.T) {
	a := Assess(30, -250, 40, false)
	if a.Improvement != -280 {
		t.Errorf("Expected improvement -280, got %d", a.Improvement)
	}
	if a.VsBest != -290 {
		t.Errorf("Expected vs_best -290, got %d", a.VsBest)
	}
	if a.Quality != Mistake {
		t.Errorf("Expected mistake, got %s", a.Quality)
	}
	if a.Merit != -5 {
		t.Errorf("Expected merit -5, got %d", a.Merit)
	}

	best := Assess(10, 25, 25, true)
	if best.Quality != Best || best.Merit != 3 {
		t.Errorf("Expected best/+3, got %s/%d", best.Quality, best.Merit)
	}
}

func TestQualityJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Quality{"q": Inaccurate})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"q":"inaccurate"}` {
		t.Errorf("Unexpected encoding %s", data)
	}

	var back map[string]Quality
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back["q"] != Inaccurate {
		t.Errorf("Expected inaccurate, got %s", back["q"])
	}

	if err := json.Unmarshal([]byte(`{"q":"brilliant"}`), &back); err == nil {
		t.Error("Expected error for unknown label")
	}
}
