package media

// ToDecimal converts a sexagesimal GPS component (degrees, minutes, seconds)
// into decimal degrees. The hemisphere sign is applied by the caller.
func ToDecimal(degrees, minutes, seconds float64) float64 {
	return degrees + minutes/60.0 + seconds/3600.0
}
