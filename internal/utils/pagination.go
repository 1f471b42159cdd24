// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
//
// Example:
//
//	n := utils.AtoiDefault("42", 0) // returns 42
//	n = utils.AtoiDefault("", 10)   // returns 10
//	n = utils.AtoiDefault("x", 5)   // returns 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Clamp bounds n to [lo, hi].
func Clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// Page parses offset/limit query values. Negative offsets become 0 and the
// limit is bounded to [1, maxLimit], with defLimit used when absent or
// malformed.
func Page(offsetStr, limitStr string, defLimit, maxLimit int) (offset, limit int) {
	offset = AtoiDefault(offsetStr, 0)
	if offset < 0 {
		offset = 0
	}
	limit = Clamp(AtoiDefault(limitStr, defLimit), 1, maxLimit)
	return offset, limit
}
