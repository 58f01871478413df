package common

import "testing"

var scaleCases = map[string]struct {
	v        float64
	expected float64
}{
	"below-range": {-10, 1100},
	"at-min":      {0, 1100},
	"midpoint":    {50, 1500},
	"at-max":      {100, 1900},
	"above-range": {250, 1900},
}

func Test_LinearScale(t *testing.T) {
	for name, c := range scaleCases {
		got := LinearScale(c.v, 0, 100, 1100, 1900)
		if got != c.expected {
			t.Errorf("%s: got %v expected %v", name, got, c.expected)
		}
	}
}
