package mongo

import (
	"context"
	"time"

	"github.com/yoockh/groupspeak/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const TranscriptCollection = "transcript_submissions"

type TranscriptRepository interface {
	// Upsert stores one submission per (session, user); a resubmission keeps the first copy.
	Upsert(ctx context.Context, t *models.TranscriptSubmission) error
	CountBySession(ctx context.Context, sessionID string) (int64, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.TranscriptSubmission, error)
}

type transcriptRepo struct {
	col *mongo.Collection
}

func NewTranscriptRepo(db *mongo.Database) TranscriptRepository {
	return &transcriptRepo{col: db.Collection(TranscriptCollection)}
}

func (r *transcriptRepo) Upsert(ctx context.Context, t *models.TranscriptSubmission) error {
	if t.SubmittedAt.IsZero() {
		t.SubmittedAt = time.Now().UTC()
	}
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": t.SessionID, "user_id": t.UserID},
		bson.M{"$setOnInsert": bson.M{
			"session_id":   t.SessionID,
			"user_id":      t.UserID,
			"start_at":     t.StartAt.UTC(),
			"segments":     t.Segments,
			"submitted_at": t.SubmittedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		// concurrent upsert of the same key; the other insert won
		return nil
	}
	return err
}

func (r *transcriptRepo) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"session_id": sessionID})
}

func (r *transcriptRepo) ListBySession(ctx context.Context, sessionID string) ([]models.TranscriptSubmission, error) {
	cur, err := r.col.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.TranscriptSubmission
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
