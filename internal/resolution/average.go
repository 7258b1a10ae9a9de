package resolution

import "github.com/nao1215/littlebusters/internal/model"

// Average returns the mean width and mean height of sizes.
// Each coordinate is averaged independently.
func Average(sizes []model.Size) (model.Average, error) {
	if len(sizes) == 0 {
		return model.Average{}, ErrEmpty
	}

	var width, height float64
	for _, s := range sizes {
		width += s.Width
		height += s.Height
	}

	count := float64(len(sizes))
	return model.Average{
		Width:  width / count,
		Height: height / count,
	}, nil
}
