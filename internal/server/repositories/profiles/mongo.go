package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/server/models"
	"github.com/dmitrijs2005/openblind/internal/timex"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// CollectionName is the MongoDB collection holding profiles.
const CollectionName = "user_profiles"

type profileDocument struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	UserID            int64              `bson:"userId"`
	GivenName         string             `bson:"givenName"`
	FamilyName        string             `bson:"familyName"`
	Phone             string             `bson:"phone,omitempty"`
	ProfileImageURL   string             `bson:"profileImageUrl,omitempty"`
	BirthDate         *time.Time         `bson:"birthDate,omitempty"`
	Preferences       models.Preferences `bson:"preferences"`
	EncryptionVersion string             `bson:"encryptionVersion,omitempty"`
	LastProfileUpdate *time.Time         `bson:"lastProfileUpdate,omitempty"`
	CreatedAt         time.Time          `bson:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt"`
}

func (d *profileDocument) toModel() *models.Profile {
	p := &models.Profile{
		ID:                d.ID.Hex(),
		UserID:            d.UserID,
		GivenName:         d.GivenName,
		FamilyName:        d.FamilyName,
		Phone:             d.Phone,
		ProfileImageURL:   d.ProfileImageURL,
		BirthDate:         d.BirthDate,
		Preferences:       d.Preferences,
		EncryptionVersion: d.EncryptionVersion,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if d.LastProfileUpdate != nil {
		p.LastProfileUpdate = timex.Truncate(*d.LastProfileUpdate)
	}
	return p
}

func fromModel(p *models.Profile) *profileDocument {
	d := &profileDocument{
		UserID:            p.UserID,
		GivenName:         p.GivenName,
		FamilyName:        p.FamilyName,
		Phone:             p.Phone,
		ProfileImageURL:   p.ProfileImageURL,
		BirthDate:         p.BirthDate,
		Preferences:       p.Preferences,
		EncryptionVersion: p.EncryptionVersion,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if !p.LastProfileUpdate.IsZero() {
		lpu := timex.Truncate(p.LastProfileUpdate)
		d.LastProfileUpdate = &lpu
	}
	return d
}

// NewMongoClient connects to uri and verifies the connection with a ping.
func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cli, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := cli.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return cli, nil
}

type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository binds to the profiles collection of db and makes sure
// the unique userId index exists.
func NewMongoRepository(ctx context.Context, db *mongo.Database) (*MongoRepository, error) {
	coll := db.Collection(CollectionName)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: models.FieldUserID, Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: models.FieldEncryptionVersion, Value: 1}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &MongoRepository{coll: coll}, nil
}

func toBSONFilter(f Filter) bson.M {
	q := bson.M{}
	if f.UserID != 0 {
		q[models.FieldUserID] = f.UserID
	}
	switch {
	case f.Version != "":
		q[models.FieldEncryptionVersion] = f.Version
	case f.ExcludeVersion != "":
		// $ne also matches documents without the field.
		q[models.FieldEncryptionVersion] = bson.M{"$ne": f.ExcludeVersion}
	}
	return q
}

func (r *MongoRepository) Load(ctx context.Context, f Filter) ([]*models.Profile, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}

	cur, err := r.coll.Find(ctx, toBSONFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer cur.Close(ctx)

	var out []*models.Profile
	for cur.Next(ctx) {
		var d profileDocument
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, d.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return out, nil
}

func (r *MongoRepository) FindByUserID(ctx context.Context, userID int64) (*models.Profile, error) {
	var d profileDocument
	err := r.coll.FindOne(ctx, bson.M{models.FieldUserID: userID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d.toModel(), nil
}

func (r *MongoRepository) Save(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	res, err := r.coll.InsertOne(ctx, fromModel(p))
	if mongo.IsDuplicateKeyError(err) {
		return nil, common.ErrorAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	saved := p.Clone()
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		saved.ID = oid.Hex()
	}
	saved.LastProfileUpdate = timex.Truncate(saved.LastProfileUpdate)

	return saved, nil
}

func (r *MongoRepository) UpdateFields(ctx context.Context, id string, fields Fields, expected time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return common.ErrorNotFound
	}

	set := bson.M{}
	for k, v := range fields {
		if ts, ok := v.(time.Time); ok {
			v = timex.Truncate(ts)
		}
		set[k] = v
	}

	filter := bson.M{"_id": oid}
	if expected.IsZero() {
		// matches a missing field as well as an explicit null
		filter[models.FieldLastProfileUpdate] = nil
	} else {
		filter[models.FieldLastProfileUpdate] = timex.Truncate(expected)
	}

	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return common.ErrVersionConflict
}

func (r *MongoRepository) Count(ctx context.Context, f Filter) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, toBSONFilter(f))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *MongoRepository) DeleteByUserID(ctx context.Context, userID int64) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{models.FieldUserID: userID})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.DeletedCount == 0 {
		return common.ErrorNotFound
	}
	return nil
}
