package resolution

import (
	"math"

	"github.com/nao1215/littlebusters/internal/model"
)

// IsSpread reports whether size looks like a double spread relative to avg:
// half its width and its full height are both within threshold of the
// average page. Both comparisons are strict.
func IsSpread(size model.Size, avg model.Average, threshold model.Threshold) bool {
	horizontalDiff := math.Abs(1 - size.Width/2/avg.Width)
	verticalDiff := math.Abs(1 - size.Height/avg.Height)
	return horizontalDiff < float64(threshold) && verticalDiff < float64(threshold)
}

// ApplySpreadCorrection returns a copy of sizes in which every double spread
// has its width halved, together with the indices of those spreads in
// ascending order. sizes itself is not modified.
//
// Every entry is judged against avg. The average is never recomputed during
// the pass, so correcting one spread does not change how later entries are
// classified.
func ApplySpreadCorrection(sizes []model.Size, avg model.Average, threshold model.Threshold) ([]model.Size, []int) {
	corrected := make([]model.Size, len(sizes))
	spreads := make([]int, 0)

	for i, s := range sizes {
		if IsSpread(s, avg, threshold) {
			corrected[i] = model.Size{Width: s.Width / 2, Height: s.Height}
			spreads = append(spreads, i)
			continue
		}
		corrected[i] = s
	}

	return corrected, spreads
}

// NormalizeSpreads computes the average of sizes once, then halves the
// width of every double spread in place. It returns the spread indices.
func NormalizeSpreads(sizes []model.Size, threshold model.Threshold) ([]int, error) {
	avg, err := Average(sizes)
	if err != nil {
		return nil, err
	}

	corrected, spreads := ApplySpreadCorrection(sizes, avg, threshold)
	copy(sizes, corrected)

	return spreads, nil
}
