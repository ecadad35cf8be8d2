package emtmodels

// ReadingPayload is the raw JSON body published on a device data topic.
// Required fields are validated by the pipeline; anything optional stays a
// pointer so absent and zero can be told apart during enrichment.
type ReadingPayload struct {
	Voltage float64 `json:"Voltage"`
	Current float64 `json:"Current"`
	Power   float64 `json:"Power"`
	Kwh     float64 `json:"Kwh"`
	PF      float64 `json:"PF"`
	Hertz   string  `json:"Hertz"`

	Voltage2 *float64 `json:"Voltage2,omitempty"`
	Current2 *float64 `json:"Current2,omitempty"`
	Power2   *float64 `json:"Power2,omitempty"`
	Kwh2     *float64 `json:"Kwh2,omitempty"`
	PF2      *float64 `json:"PF2,omitempty"`
	Hertz2   *string  `json:"Hertz2,omitempty"`

	Voltage3 *float64 `json:"Voltage3,omitempty"`
	Current3 *float64 `json:"Current3,omitempty"`
	Power3   *float64 `json:"Power3,omitempty"`
	Kwh3     *float64 `json:"Kwh3,omitempty"`
	PF3      *float64 `json:"PF3,omitempty"`
	Hertz3   *string  `json:"Hertz3,omitempty"`

	ChipId          string `json:"ChipId"`
	DeviceId        *int   `json:"DeviceId,omitempty"`
	DeviceTimeStamp *int64 `json:"DeviceTimeStamp,omitempty"`

	// Generator-variant telemetry used by the anomaly classifier. The field
	// devices send strings like "75°C" and "20%".
	Temperature  string `json:"temperature,omitempty"`
	BatteryLevel string `json:"batteryLevel,omitempty"`
}
