//go:build !windows

package parallelism

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// readProcLoadAvg returns the 1-minute load average from /proc/loadavg.
// It backs up the gopsutil probe on systems where that fails.
func readProcLoadAvg() (float64, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, fmt.Errorf("reading loadavg: %w", err)
	}
	return parseLoadAvg(string(data))
}

func parseLoadAvg(data string) (float64, error) {
	fields := strings.Fields(data)
	if len(fields) < 1 {
		return 0, nil
	}

	load, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing loadavg: %w", err)
	}
	return load, nil
}
