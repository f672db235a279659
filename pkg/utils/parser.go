// Package utils provides small helpers shared by the handlers and commands.
package utils

import (
	"math"

	"github.com/dustin/go-humanize"

	"galleria/pkg/logger"
)

// SizeToBytes parses a configured size such as "20MiB", "256 MB" or "1024".
// SI units are decimal (1MB = 1000*1000) and IEC units binary (1MiB = 1<<20).
// Zero, malformed and out-of-range values yield defaultValue.
func SizeToBytes(sizeStr string, defaultValue int64) int64 {
	if sizeStr == "" {
		return defaultValue
	}

	n, err := humanize.ParseBytes(sizeStr)
	if err != nil {
		logger.LogWarn(" Utils: Invalid size '%s' (%v), using default.", sizeStr, err)
		return defaultValue
	}
	if n == 0 || n > math.MaxInt64 {
		logger.LogWarn(" Utils: Size '%s' out of range, using default.", sizeStr)
		return defaultValue
	}
	return int64(n)
}
