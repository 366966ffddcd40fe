package metrics

import "github.com/MrWong99/asreval/internal/align"

// WER is the word error rate (sub+del+ins)/refLen. A zero reference length
// counts as one, so an empty reference yields the raw error count.
func WER(sub, del, ins, refLen int) float64 {
	d := refLen
	if d == 0 {
		d = 1
	}
	return float64(sub+del+ins) / float64(d)
}

// MER is the match error rate (sub+del+ins)/(cor+sub+del+ins), or 0 when
// nothing was aligned.
func MER(cor, sub, del, ins int) float64 {
	d := cor + sub + del + ins
	if d == 0 {
		return 0
	}
	return float64(sub+del+ins) / float64(d)
}

// WIP is the word information preserved (cor/hypLen)×(cor/refLen). It is 1
// when either length is zero.
func WIP(cor, refLen, hypLen int) float64 {
	if refLen == 0 || hypLen == 0 {
		return 1
	}
	return (float64(cor) / float64(hypLen)) * (float64(cor) / float64(refLen))
}

// WIL is the word information lost, 1 - WIP.
func WIL(cor, refLen, hypLen int) float64 {
	return 1 - WIP(cor, refLen, hypLen)
}

// Totals are the raw counts of one scope together with the derived rates.
// Totals are computed once from counts and never adjusted afterwards; a
// higher level always recomputes them from summed counts.
type Totals struct {
	RefLen  int     `json:"ref_len"`
	HypLen  int     `json:"hyp_len"`
	Cor     int     `json:"cor"`
	Sub     int     `json:"sub"`
	Del     int     `json:"del"`
	Ins     int     `json:"ins"`
	Errors  int     `json:"errors"`
	Aligned int     `json:"aligned"`
	WER     float64 `json:"wer"`
	MER     float64 `json:"mer"`
	WIP     float64 `json:"wip"`
	WIL     float64 `json:"wil"`
}

// NewTotals derives the rates from c.
func NewTotals(c align.Counts) Totals {
	return Totals{
		RefLen:  c.RefLen,
		HypLen:  c.HypLen,
		Cor:     c.Cor,
		Sub:     c.Sub,
		Del:     c.Del,
		Ins:     c.Ins,
		Errors:  c.Sub + c.Del + c.Ins,
		Aligned: c.Cor + c.Sub + c.Del + c.Ins,
		WER:     WER(c.Sub, c.Del, c.Ins, c.RefLen),
		MER:     MER(c.Cor, c.Sub, c.Del, c.Ins),
		WIP:     WIP(c.Cor, c.RefLen, c.HypLen),
		WIL:     WIL(c.Cor, c.RefLen, c.HypLen),
	}
}

// Counts returns the raw counts t was built from.
func (t Totals) Counts() align.Counts {
	return align.Counts{
		RefLen: t.RefLen,
		HypLen: t.HypLen,
		Cor:    t.Cor,
		Sub:    t.Sub,
		Del:    t.Del,
		Ins:    t.Ins,
	}
}
