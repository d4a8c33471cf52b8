// Package utils provides small, generic helpers for request parsing that
// are independent of domain logic.
package utils

import (
	"math"
	"strconv"
)

// AtoiDefault converts s with strconv.Atoi, returning def when s is empty
// or not an integer.
//
//	n := utils.AtoiDefault("42", 0) // 42
//	n = utils.AtoiDefault("x", 5)   // 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Page is a normalized 1-based page request.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads page and size query values. A missing or invalid page
// is 1; a missing or invalid size is def; the size is capped at max.
func ParsePage(page, size string, def, max int) Page {
	return Page{
		Number: Clamp(AtoiDefault(page, 1), 1, math.MaxInt),
		Size:   Clamp(AtoiDefault(size, def), 1, max),
	}
}

// Offset is the number of rows before the page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// TotalPages is the page count for total rows; zero rows is zero pages.
func (p Page) TotalPages(total int64) int {
	if total <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}
