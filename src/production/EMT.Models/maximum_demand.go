package emtmodels

import "go.mongodb.org/mongo-driver/bson/primitive"

// MaximumDemand records the highest per-minute rate observed for a device at
// the moment a reading was folded into the demand collection.
type MaximumDemand struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	DeviceId        int                `bson:"DeviceId" json:"DeviceId"`
	MaxDemand       float64            `bson:"MaxDemand" json:"MaxDemand"`
	Timestamp       string             `bson:"Timestamp" json:"Timestamp"`
	DeviceTimeStamp int64              `bson:"DeviceTimeStamp" json:"DeviceTimeStamp"`
}
