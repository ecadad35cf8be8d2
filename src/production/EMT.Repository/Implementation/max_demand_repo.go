package implementation

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	emtmodels "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Models"
)

type MongoMaximumDemandRepository struct {
	coll *mongo.Collection
}

func NewMongoMaximumDemandRepository(coll *mongo.Collection) *MongoMaximumDemandRepository {
	return &MongoMaximumDemandRepository{coll: coll}
}

func (r *MongoMaximumDemandRepository) Insert(ctx context.Context, record emtmodels.MaximumDemand) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, record)
	return err
}

func (r *MongoMaximumDemandRepository) ListByDevice(ctx context.Context, deviceId int) ([]emtmodels.MaximumDemand, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "DeviceTimeStamp", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{"DeviceId": deviceId}, opts)
	if err != nil {
		return nil, fmt.Errorf("find maximum demand records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []emtmodels.MaximumDemand
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode maximum demand records: %w", err)
	}
	return records, nil
}

func (r *MongoMaximumDemandRepository) FindHighest(ctx context.Context, deviceId int) (*emtmodels.MaximumDemand, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "MaxDemand", Value: -1}})

	var record emtmodels.MaximumDemand
	err := r.coll.FindOne(ctx, bson.M{"DeviceId": deviceId}, opts).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find highest maximum demand: %w", err)
	}
	return &record, nil
}
