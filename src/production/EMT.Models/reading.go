package emtmodels

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reading is one persisted telemetry sample from an energy meter. Channel 1
// fields are always present; channels 2 and 3 are pointers because many meters
// are single-phase and never report them.
type Reading struct {
	ID primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`

	Voltage float64 `bson:"Voltage" json:"Voltage"`
	Current float64 `bson:"Current" json:"Current"`
	Power   float64 `bson:"Power" json:"Power"`
	Kwh     float64 `bson:"Kwh" json:"Kwh"`
	PF      float64 `bson:"PF" json:"PF"`
	Hertz   string  `bson:"Hertz" json:"Hertz"`

	Voltage2 *float64 `bson:"Voltage2,omitempty" json:"Voltage2,omitempty"`
	Current2 *float64 `bson:"Current2,omitempty" json:"Current2,omitempty"`
	Power2   *float64 `bson:"Power2,omitempty" json:"Power2,omitempty"`
	Kwh2     *float64 `bson:"Kwh2,omitempty" json:"Kwh2,omitempty"`
	PF2      *float64 `bson:"PF2,omitempty" json:"PF2,omitempty"`
	Hertz2   *string  `bson:"Hertz2,omitempty" json:"Hertz2,omitempty"`

	Voltage3 *float64 `bson:"Voltage3,omitempty" json:"Voltage3,omitempty"`
	Current3 *float64 `bson:"Current3,omitempty" json:"Current3,omitempty"`
	Power3   *float64 `bson:"Power3,omitempty" json:"Power3,omitempty"`
	Kwh3     *float64 `bson:"Kwh3,omitempty" json:"Kwh3,omitempty"`
	PF3      *float64 `bson:"PF3,omitempty" json:"PF3,omitempty"`
	Hertz3   *string  `bson:"Hertz3,omitempty" json:"Hertz3,omitempty"`

	// Per-minute rates, derived once at ingestion from the previous persisted
	// reading for the same chip. Zero on the first sample of a device.
	KwhPerN  float64 `bson:"KwhPerN" json:"KwhPerN"`
	KwhPerN2 float64 `bson:"KwhPerN2" json:"KwhPerN2"`
	KwhPerN3 float64 `bson:"KwhPerN3" json:"KwhPerN3"`

	ChipId   string `bson:"ChipId" json:"ChipId"`
	DeviceId int    `bson:"DeviceId" json:"DeviceId"`

	// DeviceTimeStamp is the device clock in unix seconds; the UTC and Local
	// timestamps are derived from it at ingestion and never recomputed.
	DeviceTimeStamp           int64     `bson:"DeviceTimeStamp" json:"DeviceTimeStamp"`
	DeviceTimeStampDateUTC    time.Time `bson:"DeviceTimeStampDate_UTC" json:"DeviceTimeStampDate_UTC"`
	DeviceTimeStampDateLocal  time.Time `bson:"DeviceTimeStampDate_Local" json:"DeviceTimeStampDate_Local"`
	CreatedDateUTC            time.Time `bson:"CreatedDate_UTC" json:"CreatedDate_UTC"`
	DataSourceId              int       `bson:"dataSourceId,omitempty" json:"dataSourceId,omitempty"`
	IsMaximumDemandProcessed  bool      `bson:"isMaximumDemandProcessed" json:"isMaximumDemandProcessed"`

	Anomalies *Anomalies `bson:"anomalies,omitempty" json:"anomalies,omitempty"`
}

// Anomalies is the severity tag attached by the generator-variant enrichment
// hook before broadcast and persistence.
type Anomalies struct {
	Status  string `bson:"status" json:"status"`
	Message string `bson:"message" json:"message"`
}
