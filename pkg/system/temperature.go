package system

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const thermalZonePath = "/sys/class/thermal/thermal_zone0/temp"

// CPUTemperature returns the SoC temperature in degrees Celsius.
// Returns an error on hosts without a thermal zone; the API reports
// null in that case.
func CPUTemperature() (float64, error) {
	return readTemperature(thermalZonePath)
}

func readTemperature(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read thermal zone: %w", err)
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse thermal zone value: %w", err)
	}
	return float64(milli) / 1000.0, nil
}
