package strategy

import "math"

// CCI extreme band used by the exit rule.
const cciBand = 100.0

// ShouldClose applies the hysteresis exit rule: an opportunity opened below -100 closes once
// the CCI rises back above -100, one opened above 100 closes once it falls back below 100.
// Records opened inside the band never match. A non-finite current reading never closes.
func ShouldClose(openCCI, currentCCI float64) bool {
	if math.IsNaN(currentCCI) || math.IsInf(currentCCI, 0) {
		return false
	}
	switch {
	case openCCI < -cciBand:
		return currentCCI > -cciBand
	case openCCI > cciBand:
		return currentCCI < cciBand
	default:
		return false
	}
}
