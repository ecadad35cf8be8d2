package implementation

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	emtmodels "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Models"
	interfaces "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Repository/Interfaces"
)

type MongoReadingRepository struct {
	coll *mongo.Collection
}

func NewMongoReadingRepository(coll *mongo.Collection) *MongoReadingRepository {
	return &MongoReadingRepository{coll: coll}
}

func (r *MongoReadingRepository) Append(ctx context.Context, rd emtmodels.Reading) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, rd)
	return err
}

func (r *MongoReadingRepository) FindLatest(ctx context.Context, chipId string) (*emtmodels.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "DeviceTimeStamp", Value: -1}})

	var rd emtmodels.Reading
	err := r.coll.FindOne(ctx, bson.M{"ChipId": chipId}, opts).Decode(&rd)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest reading for %s: %w", chipId, err)
	}
	return &rd, nil
}

func (r *MongoReadingRepository) FindRange(ctx context.Context, q interfaces.RangeQuery) ([]emtmodels.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"DeviceTimeStampDate_Local": bson.M{"$gte": q.Start, "$lte": q.End},
	}
	if q.ChipId != "" {
		filter["ChipId"] = q.ChipId
	}
	if q.DeviceId != nil {
		filter["DeviceId"] = *q.DeviceId
	}

	direction := 1
	if q.SortOrder == "desc" {
		direction = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: "DeviceTimeStampDate_UTC", Value: direction}})
	if q.Top > 0 {
		opts.SetLimit(int64(q.Top))
	}

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find readings in range: %w", err)
	}
	defer cursor.Close(ctx)

	var readings []emtmodels.Reading
	if err := cursor.All(ctx, &readings); err != nil {
		return nil, fmt.Errorf("decode readings: %w", err)
	}
	return readings, nil
}

func (r *MongoReadingRepository) ListUnprocessedMaxDemand(ctx context.Context, limit int) ([]emtmodels.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "DeviceTimeStamp", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.coll.Find(ctx, bson.M{"isMaximumDemandProcessed": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("find unprocessed readings: %w", err)
	}
	defer cursor.Close(ctx)

	var readings []emtmodels.Reading
	if err := cursor.All(ctx, &readings); err != nil {
		return nil, fmt.Errorf("decode readings: %w", err)
	}
	return readings, nil
}

func (r *MongoReadingRepository) MarkMaxDemandProcessed(ctx context.Context, ids []interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := r.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"isMaximumDemandProcessed": true}},
	)
	return err
}
