package util

// LowestKnown returns the smallest level that is not negative, or -1 if
// every level is unknown.
func LowestKnown(levels ...int) int {
	lowest := -1
	for _, l := range levels {
		if l < 0 {
			continue
		}
		if lowest < 0 || l < lowest {
			lowest = l
		}
	}
	return lowest
}
