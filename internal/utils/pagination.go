// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts a string to an int using strconv.Atoi, falling back
// to the provided default when the string is empty or not an integer. The
// admin handlers use it to parse page and page_size query parameters, where
// garbage input should mean "first page, default size" rather than a 400.
//
// Example:
//
//	page := utils.AtoiDefault(c.Query("page"), 1) // "abc" and "" both give 1
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
