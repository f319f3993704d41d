package config

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoIndexes(dbName string) error {
	if MongoClient == nil {
		return errors.New("MongoClient is nil; call InitMongo() first")
	}
	if dbName == "" {
		dbName = "groupspeak"
	}
	db := MongoClient.Database(dbName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	submissions := db.Collection("transcript_submissions")
	_, err := submissions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// one submission per participant; the count of documents is the submitted count
		{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_session_user").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "submitted_at", Value: 1}},
			Options: options.Index().SetName("by_session_submitted"),
		},
	})
	return err
}
