package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/velmie/spool"
)

var (
	// ErrDatabaseRequired is returned when a nil *mongo.Database is provided.
	ErrDatabaseRequired = errors.New("spool mongo: database is required")
	// ErrInvalidField is returned when a field name is a path or an operator.
	ErrInvalidField = fmt.Errorf("%w: invalid mongo field name", spool.ErrInvalidConfig)
)

// Store implements spool.Store on a MongoDB collection.
type Store struct {
	coll *mongo.Collection
	cfg  Config
}

var (
	_ spool.Store          = (*Store)(nil)
	_ spool.PendingCounter = (*Store)(nil)
)

// NewStore constructs a store over the named collection of db.
func NewStore(db *mongo.Database, collection string, opts ...Option) (*Store, error) {
	collection, err := spool.CheckName("collection", collection)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, ErrDatabaseRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()
	if cfg.PayloadField, err = checkField("payload field", cfg.PayloadField); err != nil {
		return nil, err
	}
	if cfg.ClaimedAtField, err = checkField("claimed at field", cfg.ClaimedAtField); err != nil {
		return nil, err
	}

	collOpts := options.Collection()
	if cfg.ReadPreference != nil {
		collOpts.SetReadPreference(cfg.ReadPreference)
	}
	if cfg.WriteConcern != nil {
		collOpts.SetWriteConcern(cfg.WriteConcern)
	}

	return &Store{coll: db.Collection(collection, collOpts), cfg: cfg}, nil
}

// MustNewStore constructs a store or panics on error.
func MustNewStore(db *mongo.Database, collection string, opts ...Option) *Store {
	store, err := NewStore(db, collection, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Collection returns the underlying collection.
func (s *Store) Collection() *mongo.Collection {
	return s.coll
}

// EnsureIndexes creates the index used to find unclaimed and stale records.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: s.cfg.ClaimedAtField, Value: 1}, {Key: "_id", Value: 1}},
	})

	return spool.WrapStorage("spool mongo: create index", err)
}

// Insert implements spool.Store.
func (s *Store) Insert(ctx context.Context, payload []byte) (spool.ID, error) {
	id, err := s.cfg.Generator.New()
	if err != nil {
		return spool.ID{}, spool.WrapStorage("spool mongo: generate id", err)
	}
	if payload == nil {
		payload = []byte{}
	}

	doc := bson.D{
		{Key: "_id", Value: idValue(id)},
		{Key: s.cfg.PayloadField, Value: primitive.Binary{Subtype: bsontype.BinaryGeneric, Data: payload}},
		{Key: s.cfg.ClaimedAtField, Value: nil},
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return spool.ID{}, spool.WrapStorage("spool mongo: insert", err)
	}

	return id, nil
}

// FindUnclaimed implements spool.Store.
func (s *Store) FindUnclaimed(ctx context.Context, limit int) (spool.Cursor, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		findOpts.SetLimit(int64(limit))
	}

	cur, err := s.coll.Find(ctx, bson.D{{Key: s.cfg.ClaimedAtField, Value: nil}}, findOpts)
	if err != nil {
		return nil, spool.WrapStorage("spool mongo: find", err)
	}

	return &cursor{cur: cur, payloadField: s.cfg.PayloadField}, nil
}

// Claim implements spool.Store.
func (s *Store) Claim(ctx context.Context, id spool.ID, now time.Time) (bool, error) {
	filter := bson.D{
		{Key: "_id", Value: idValue(id)},
		{Key: s.cfg.ClaimedAtField, Value: nil},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: s.cfg.ClaimedAtField, Value: primitive.NewDateTimeFromTime(now)},
	}}}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, spool.WrapStorage("spool mongo: claim", err)
	}

	return res.ModifiedCount == 1, nil
}

// Delete implements spool.Store.
func (s *Store) Delete(ctx context.Context, id spool.ID) (bool, error) {
	res, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: idValue(id)}})
	if err != nil {
		return false, spool.WrapStorage("spool mongo: delete", err)
	}

	return res.DeletedCount == 1, nil
}

// RecoverStale implements spool.Store.
func (s *Store) RecoverStale(ctx context.Context, olderThan time.Time) (int64, error) {
	filter := bson.D{{Key: s.cfg.ClaimedAtField, Value: bson.D{
		{Key: "$lt", Value: primitive.NewDateTimeFromTime(olderThan)},
	}}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: s.cfg.ClaimedAtField, Value: nil}}}}

	res, err := s.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, spool.WrapStorage("spool mongo: recover", err)
	}

	return res.ModifiedCount, nil
}

// CountUnclaimed implements spool.PendingCounter.
func (s *Store) CountUnclaimed(ctx context.Context) (int, error) {
	count, err := s.coll.CountDocuments(ctx, bson.D{{Key: s.cfg.ClaimedAtField, Value: nil}})
	if err != nil {
		return 0, spool.WrapStorage("spool mongo: pending count", err)
	}

	return int(count), nil
}

func idValue(id spool.ID) primitive.Binary {
	return primitive.Binary{Subtype: bsontype.BinaryUUID, Data: id.Bytes()}
}

func checkField(field, name string) (string, error) {
	name, err := spool.CheckName(field, name)
	if err != nil {
		return "", err
	}
	if name == "_id" || strings.ContainsAny(name, ".$") {
		return "", fmt.Errorf("%w: %s", ErrInvalidField, name)
	}

	return name, nil
}
