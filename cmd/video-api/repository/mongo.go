package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pulse/vidmod/cmd/video-api/models"
	"github.com/pulse/vidmod/common/apperrors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type videoDocument struct {
	ID              primitive.ObjectID     `bson:"_id,omitempty"`
	Owner           string                 `bson:"owner"`
	Description     string                 `bson:"description"`
	StorageURI      string                 `bson:"storage_uri"`
	ModerationState models.ModerationState `bson:"moderation_state"`
	CreatedAt       time.Time              `bson:"created_at"`
	UpdatedAt       time.Time              `bson:"updated_at"`
}

func (d *videoDocument) toModel() *models.Video {
	return &models.Video{
		ID:              d.ID.Hex(),
		Owner:           d.Owner,
		Description:     d.Description,
		StorageURI:      d.StorageURI,
		ModerationState: d.ModerationState,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// MongoVideoRepository stores videos as documents, one per upload
type MongoVideoRepository struct {
	coll *mongo.Collection
}

// NewMongoVideoRepository creates a repository over coll
func NewMongoVideoRepository(coll *mongo.Collection) *MongoVideoRepository {
	return &MongoVideoRepository{coll: coll}
}

// EnsureIndexes creates the owner, storage uri and pending indexes
func (r *MongoVideoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "storage_uri", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "moderation_state", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create video indexes: %w", err)
	}
	return nil
}

func (r *MongoVideoRepository) Insert(ctx context.Context, video *models.Video) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := videoDocument{
		ID:              primitive.NewObjectID(),
		Owner:           video.Owner,
		Description:     video.Description,
		StorageURI:      video.StorageURI,
		ModerationState: video.ModerationState,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, "repository.Insert", "failed to insert video", err)
	}

	video.ID = doc.ID.Hex()
	video.CreatedAt = now
	video.UpdatedAt = now
	return nil
}

func (r *MongoVideoRepository) ListByOwner(ctx context.Context, owner string) ([]*models.Video, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	return r.find(ctx, "repository.ListByOwner", bson.M{"owner": owner}, opts)
}

func (r *MongoVideoRepository) FindByID(ctx context.Context, id string) (*models.Video, error) {
	const op = "repository.FindByID"

	oid, err := parseObjectID(op, id)
	if err != nil {
		return nil, err
	}

	var doc videoDocument
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.New(apperrors.KindNotFound, op, "video not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, op, "failed to get video", err)
	}
	return doc.toModel(), nil
}

func (r *MongoVideoRepository) Delete(ctx context.Context, id, owner string) error {
	const op = "repository.Delete"

	oid, err := parseObjectID(op, id)
	if err != nil {
		return err
	}

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid, "owner": owner})
	if err != nil {
		return apperrors.Wrap(apperrors.KindInternal, op, "failed to delete video", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.New(apperrors.KindNotFoundOrForbidden, op, "video not found")
	}
	return nil
}

func (r *MongoVideoRepository) UpdateModerationState(ctx context.Context, id string, from, to models.ModerationState) (bool, error) {
	const op = "repository.UpdateModerationState"

	oid, err := parseObjectID(op, id)
	if err != nil {
		return false, err
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "moderation_state": from},
		bson.M{"$set": bson.M{"moderation_state": to, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindInternal, op, "failed to update moderation state", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *MongoVideoRepository) ListPending(ctx context.Context, olderThan time.Time, after *PendingCursor, limit int) ([]*models.Video, error) {
	const op = "repository.ListPending"

	filter := bson.M{
		"moderation_state": models.ModerationPending,
		"created_at":       bson.M{"$lt": olderThan},
	}
	if after != nil {
		afterID, err := parseObjectID(op, after.ID)
		if err != nil {
			return nil, err
		}
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{"$gt": after.CreatedAt}},
			bson.M{"created_at": after.CreatedAt, "_id": bson.M{"$gt": afterID}},
		}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, op, filter, opts)
}

func (r *MongoVideoRepository) ExistsByStorageURI(ctx context.Context, uri string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"storage_uri": uri}, options.Count().SetLimit(1))
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindInternal, "repository.ExistsByStorageURI", "failed to check storage uri", err)
	}
	return n > 0, nil
}

func (r *MongoVideoRepository) find(ctx context.Context, op string, filter any, opts *options.FindOptions) ([]*models.Video, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, op, "failed to query videos", err)
	}
	defer cursor.Close(ctx)

	var docs []videoDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, op, "failed to decode videos", err)
	}

	videos := make([]*models.Video, 0, len(docs))
	for i := range docs {
		videos = append(videos, docs[i].toModel())
	}
	return videos, nil
}

func parseObjectID(op, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperrors.Wrap(apperrors.KindInvalidArgument, op, fmt.Sprintf("invalid video id %q", id), err)
	}
	return oid, nil
}
