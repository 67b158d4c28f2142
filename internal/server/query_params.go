package server

import (
	"strconv"
	"strings"
)

func parseOptionalInt64(value string) (*int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalInt(value string) (int, error) {
	parsed, err := parseOptionalInt64(value)
	if err != nil || parsed == nil {
		return 0, err
	}
	return int(*parsed), nil
}
