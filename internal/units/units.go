// Package units provides shared constants and conversion for speed units.
// Engine internals always work in metres per second; the monitor converts
// for display only.
package units

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values.
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units.
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ConvertSpeed converts a speed from metres per second to the target units.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.23694
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}
