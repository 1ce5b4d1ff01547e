package util

import (
	"fmt"
	"strconv"
	"strings"
)

// Atoi parses a base-10 integer, rejecting the empty string with a
// clearer message than strconv's.
func Atoi(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty integer field")
	}
	return strconv.Atoi(s)
}

// ParseCoord parses a genomic coordinate, tolerating thousands
// separators as produced by genome browsers ("1,250,000").
func ParseCoord(s string) (int, error) {
	return Atoi(strings.ReplaceAll(s, ",", ""))
}
