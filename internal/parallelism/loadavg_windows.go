//go:build windows

package parallelism

import "errors"

// readProcLoadAvg is unsupported on Windows.
func readProcLoadAvg() (float64, error) {
	return 0, errors.New("load average not supported on Windows")
}
