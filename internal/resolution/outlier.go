package resolution

import "github.com/nao1215/littlebusters/internal/model"

// DetectOutliers returns every entry whose area falls more than threshold
// below the average area, in ascending index order. The average is
// recomputed from sizes, which should already be spread-corrected.
//
// An entry is flagged when 1 - area/averageArea > threshold. Entries at or
// above the average area can never satisfy that condition.
func DetectOutliers(sizes []model.Size, threshold model.Threshold) ([]model.Deviation, error) {
	avg, err := Average(sizes)
	if err != nil {
		return nil, err
	}
	return DetectOutliersWithAverage(sizes, avg, threshold), nil
}

// DetectOutliersWithAverage is DetectOutliers against a precomputed average.
func DetectOutliersWithAverage(sizes []model.Size, avg model.Average, threshold model.Threshold) []model.Deviation {
	averageArea := avg.Area()
	outliers := make([]model.Deviation, 0)

	for i, s := range sizes {
		ratio := s.Area() / averageArea
		if 1-ratio > float64(threshold) {
			outliers = append(outliers, model.Deviation{Index: i, Ratio: ratio})
		}
	}

	return outliers
}

// Indices projects deviations onto their entry indices, dropping the ratios.
// This is the exclusion set handed to the archive rewriter.
func Indices(deviations []model.Deviation) []int {
	indices := make([]int, len(deviations))
	for i, d := range deviations {
		indices[i] = d.Index
	}
	return indices
}
