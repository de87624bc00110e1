package classifier

import "github.com/example/glaucoscan/internal/repository"

// Label maps a category index to the stored result label.
func Label(index int) string {
	if index == PositiveIndex {
		return repository.LabelPositive
	}
	return repository.LabelNegative
}
