package matching

import "purchase-tracker/internal/models"

// DefaultThreshold is the minimum similarity ratio required to accept a
// cross-source name match.
const DefaultThreshold = 0.6

// Ratio computes a symmetric Ratcliff/Obershelp similarity in [0,1]:
// twice the number of matching characters over the total length of both
// strings. Matching characters are counted over the longest common
// substring, then recursively over the pieces to its left and right.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matchingRunes(ra, rb)) / float64(total)
}

func matchingRunes(a, b []rune) int {
	ai, bi, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingRunes(a[:ai], b[:bi]) +
		matchingRunes(a[ai+size:], b[bi+size:])
}

// longestCommonBlock returns the leftmost longest common substring of a and b
// as (start in a, start in b, length).
func longestCommonBlock(a, b []rune) (int, int, int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	// lengths[j] holds the length of the common suffix ending at a[i], b[j]
	lengths := make([]int, len(b)+1)
	bestA, bestB, bestSize := 0, 0, 0

	for i := 0; i < len(a); i++ {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lengths[j+1] = lengths[j] + 1
				if lengths[j+1] > bestSize {
					bestSize = lengths[j+1]
					bestA = i - bestSize + 1
					bestB = j - bestSize + 1
				}
			} else {
				lengths[j+1] = 0
			}
		}
		lengths[0] = 0
	}

	return bestA, bestB, bestSize
}

// BestMatch resolves a free-text name against the catalog. It returns the
// product whose normalized name is most similar to the normalized input,
// provided the similarity meets the threshold, or nil if none qualifies.
// On an exact similarity tie the product with the lowest ID wins, so the
// result does not depend on input ordering.
func BestMatch(name string, products []models.Product, threshold float64) *models.Product {
	normalized := Normalize(name)

	var best *models.Product
	bestScore := 0.0

	for i := range products {
		score := Ratio(normalized, products[i].NormalizedName)
		if score < threshold {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && products[i].ID < best.ID) {
			best = &products[i]
			bestScore = score
		}
	}

	return best
}
