package emtreceiver

import (
	"strconv"
	"strings"
	"unicode"

	emtmodels "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Models"
)

// Enricher optionally annotates a payload before it is persisted and
// broadcast. A nil enricher leaves readings untouched.
type Enricher func(p emtmodels.ReadingPayload) *emtmodels.Anomalies

// DetectAnomalies classifies generator telemetry into normal/warning/alarm
// from temperature and battery level. Devices report these as decorated
// strings such as "75°C" and "20%".
func DetectAnomalies(p emtmodels.ReadingPayload) *emtmodels.Anomalies {
	temperature := parseLeadingFloat(p.Temperature)
	batteryLevel := parseLeadingFloat(p.BatteryLevel)

	status := "normal"
	message := "All systems operational"
	switch {
	case temperature > 75:
		status = "alarm"
		message = "High temperature detected"
	case temperature > 65:
		status = "warning"
		message = "Moderate temperature rise"
	case batteryLevel != 0 && batteryLevel < 20:
		status = "warning"
		message = "Low battery level"
	}

	return &emtmodels.Anomalies{Status: status, Message: message}
}

// parseLeadingFloat reads the numeric prefix of a string, ignoring trailing
// units. Returns 0 when there is no numeric prefix.
func parseLeadingFloat(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) {
		c := rune(s[end])
		if unicode.IsDigit(c) || c == '.' || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return v
}
