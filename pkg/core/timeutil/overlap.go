package timeutil

// Overlaps reports whether [startA, endA) and [startB, endB) intersect.
// A missing bound means no overlap.
func Overlaps(startA, endA, startB, endB *Clock) bool {
	if startA == nil || endA == nil || startB == nil || endB == nil {
		return false
	}
	return !(*endA <= *startB || *endB <= *startA)
}

// Contains reports whether [outerStart, outerEnd) fully contains [innerStart, innerEnd)
func Contains(outerStart, outerEnd, innerStart, innerEnd Clock) bool {
	return outerStart <= innerStart && innerEnd <= outerEnd
}
