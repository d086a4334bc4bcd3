package config

import (
	"strconv"

	units "github.com/docker/go-units"

	"github.com/webserv/goserv/pkg/errors"
)

// parseSize parses a byte-count directive such as client_max_body_size,
// accepting k|K|m|M|g|G suffixes via go-units' binary-prefix aware
// RAMInBytes (e.g. "10m" -> 10*1024*1024).
func parseSize(value string) (int64, error) {
	if value == "" {
		return 0, errors.NewConfigError("empty size value", nil)
	}
	// A bare integer is unambiguous and RAMInBytes already handles it,
	// but try strconv first to avoid go-units defaulting unknown
	// suffixes in a surprising way for pure-digit input.
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, nil
	}
	n, err := units.RAMInBytes(value)
	if err != nil {
		return 0, errors.NewConfigError("invalid size value "+value, err)
	}
	return n, nil
}
