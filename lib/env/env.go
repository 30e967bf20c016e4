// Package env centralizes the process environment probes.
package env

import (
	"os"
	"strconv"
)

func Debug() bool {
	return os.Getenv("DEBUG") != ""
}

// Timeout reports the ARCHIZOOM_TIMEOUT override in seconds.
func Timeout() (int, bool) {
	s := os.Getenv("ARCHIZOOM_TIMEOUT")
	if s == "" {
		return 0, false
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return i, true
}
