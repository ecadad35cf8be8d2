package emtreceiver

// KwhPerMinute converts two successive cumulative kWh samples and the elapsed
// device time into a per-minute rate. Counters are assumed monotonically
// non-decreasing; a decrease means the meter rolled back or reset and yields
// zero rather than a negative rate.
func KwhPerMinute(lastKwh, currentKwh, elapsedSeconds float64) float64 {
	if elapsedSeconds == 0 {
		return 0
	}
	difference := currentKwh - lastKwh
	if difference < 0 {
		return 0
	}
	return difference / elapsedSeconds * 60
}
