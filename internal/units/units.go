// Package units defines the speed units accepted for GPS input and converts
// them to km/h, the unit every hot spot threshold is expressed in.
package units

import "strings"

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

const (
	mpsToKPH = 3.6
	mphToKPH = 1.609344
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ToKPH converts a speed in the given unit to km/h. Unknown units are
// treated as km/h; callers validate the unit with IsValid first.
func ToKPH(speed float64, unit string) float64 {
	switch unit {
	case MPS:
		return speed * mpsToKPH
	case MPH:
		return speed * mphToKPH
	default:
		return speed
	}
}
