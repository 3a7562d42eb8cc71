package search

// Page returns the pageIndex-th slice of size pageSize. Out of range
// pages, negative indexes and non-positive sizes give an empty page.
func Page[T any](list []T, pageIndex, pageSize int) []T {
	if pageIndex < 0 || pageSize <= 0 {
		return []T{}
	}
	start := pageIndex * pageSize
	// overflow guard for huge indexes
	if start/pageSize != pageIndex || start >= len(list) {
		return []T{}
	}
	end := min(start+pageSize, len(list))
	return list[start:end:end]
}

// TotalPages returns ceil(n/pageSize), or 0 for a non-positive page size.
func TotalPages(n, pageSize int) int {
	if pageSize <= 0 || n <= 0 {
		return 0
	}
	pages := n / pageSize
	if n%pageSize != 0 {
		pages++
	}
	return pages
}
