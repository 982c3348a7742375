// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses page and page_size strings into bounded pagination
// values. Unparseable or out-of-range inputs fall back to defPage/defSize;
// pageSize is capped at maxSize.
func ClampPage(pageStr, sizeStr string, defPage, defSize, maxSize int) (page, pageSize int) {
	page = AtoiDefault(pageStr, defPage)
	if page < 1 {
		page = 1
	}
	pageSize = AtoiDefault(sizeStr, defSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return
}

// TotalPages computes the page count for a total item count, rounding up.
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
