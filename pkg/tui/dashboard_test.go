package tui

import (
	"strings"
	"testing"
)

func TestSparklineScalesToRange(t *testing.T) {
	s := sparkline([]float64{0, 1, 2, 3}, 4)
	runes := []rune(s)
	if len(runes) != 4 {
		t.Fatalf("width = %d, want 4", len(runes))
	}
	if runes[0] != sparkRunes[0] {
		t.Fatalf("minimum did not map to lowest bar: %q", s)
	}
	if runes[3] != sparkRunes[len(sparkRunes)-1] {
		t.Fatalf("maximum did not map to highest bar: %q", s)
	}
}

func TestSparklineFlatSeries(t *testing.T) {
	s := sparkline([]float64{2, 2, 2}, 3)
	for _, r := range s {
		if r != sparkRunes[0] {
			t.Fatalf("flat series rendered uneven bars: %q", s)
		}
	}
}

func TestSparklineEmptySeriesPads(t *testing.T) {
	s := sparkline(nil, 5)
	if s != strings.Repeat(" ", 5) {
		t.Fatalf("empty series = %q, want blanks", s)
	}
}

func TestSparklineTruncatesToWidth(t *testing.T) {
	series := make([]float64, 50)
	for i := range series {
		series[i] = float64(i)
	}
	s := sparkline(series, 10)
	if len([]rune(s)) != 10 {
		t.Fatalf("width = %d, want 10", len([]rune(s)))
	}
}
