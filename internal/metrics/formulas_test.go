package metrics_test

import (
	"math"
	"testing"

	"github.com/MrWong99/asreval/internal/align"
	"github.com/MrWong99/asreval/internal/metrics"
)

func TestNewTotals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   align.Counts
		want metrics.Totals
	}{
		{
			name: "perfect match",
			in:   align.Counts{RefLen: 1, HypLen: 1, Cor: 1},
			want: metrics.Totals{RefLen: 1, HypLen: 1, Cor: 1, Aligned: 1, WER: 0, MER: 0, WIP: 1, WIL: 0},
		},
		{
			name: "empty reference floors divisor to one",
			in:   align.Counts{Ins: 2},
			want: metrics.Totals{Ins: 2, Errors: 2, Aligned: 2, WER: 2, MER: 1, WIP: 1, WIL: 0},
		},
		{
			name: "nothing aligned",
			in:   align.Counts{},
			want: metrics.Totals{WER: 0, MER: 0, WIP: 1, WIL: 0},
		},
		{
			name: "mixed",
			in:   align.Counts{RefLen: 4, HypLen: 4, Cor: 2, Sub: 1, Del: 1, Ins: 1},
			want: metrics.Totals{
				RefLen: 4, HypLen: 4, Cor: 2, Sub: 1, Del: 1, Ins: 1,
				Errors: 3, Aligned: 5,
				WER: 0.75, MER: 0.6, WIP: 0.25, WIL: 0.75,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := metrics.NewTotals(tc.in)
			if got != tc.want {
				t.Errorf("NewTotals(%+v)\n got %+v\nwant %+v", tc.in, got, tc.want)
			}
			if got.Counts() != tc.in {
				t.Errorf("Counts() = %+v, want %+v", got.Counts(), tc.in)
			}
		})
	}
}

func TestRateBounds(t *testing.T) {
	t.Parallel()

	for cor := 0; cor <= 3; cor++ {
		for sub := 0; sub <= 3; sub++ {
			for del := 0; del <= 3; del++ {
				for ins := 0; ins <= 3; ins++ {
					c := align.Counts{
						RefLen: cor + sub + del,
						HypLen: cor + sub + del,
						Cor:    cor, Sub: sub, Del: del, Ins: ins,
					}
					tot := metrics.NewTotals(c)
					if tot.WER < 0 {
						t.Errorf("%+v: WER %v < 0", c, tot.WER)
					}
					if tot.MER < 0 || tot.MER > 1 {
						t.Errorf("%+v: MER %v out of [0,1]", c, tot.MER)
					}
					if tot.WIP < 0 || tot.WIP > 1 {
						t.Errorf("%+v: WIP %v out of [0,1]", c, tot.WIP)
					}
					if tot.WIL != 1-tot.WIP {
						t.Errorf("%+v: WIL %v != 1-WIP %v", c, tot.WIL, 1-tot.WIP)
					}
				}
			}
		}
	}
}

func TestWIP(t *testing.T) {
	t.Parallel()

	if got := metrics.WIP(0, 0, 5); got != 1 {
		t.Errorf("WIP with empty reference = %v, want 1", got)
	}
	if got := metrics.WIP(3, 4, 6); math.Abs(got-0.375) > 1e-12 {
		t.Errorf("WIP(3,4,6) = %v, want 0.375", got)
	}
	if got := metrics.WIL(3, 4, 6); math.Abs(got-0.625) > 1e-12 {
		t.Errorf("WIL(3,4,6) = %v, want 0.625", got)
	}
}
