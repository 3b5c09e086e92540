package admin

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("%w: ID is required", ErrUsage)
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid ID %q", ErrUsage, s)
	}
	return id, nil
}

// ParseQueryText normalizes the search text of an add command: surrounding
// space is dropped and inner runs of whitespace collapse to one space.
func ParseQueryText(args string) (string, error) {
	text := strings.Join(strings.Fields(args), " ")
	if text == "" {
		return "", fmt.Errorf("%w: query text is required", ErrUsage)
	}
	return text, nil
}
