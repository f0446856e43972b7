// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Iron-Ham/shortkeys/internal/config"
	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/store"
)

// Store is a MongoDB-backed store.Store.
type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	users     *mongo.Collection
	shortcuts *mongo.Collection
	now       func() time.Time
}

var _ store.Store = (*Store)(nil)

// Connect opens a client for cfg, pings the server and ensures indexes on
// the database selected for profile.
func Connect(ctx context.Context, cfg config.DatabaseConfig, profile string) (*Store, error) {
	timeout := cfg.ConnectTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI).SetConnectTimeout(timeout))
	if err != nil {
		return nil, errors.NewStoreError("connect", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.NewStoreError("ping", err)
	}

	s := New(client, cfg.DatabaseName(profile))
	if err := s.EnsureIndexes(cctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:    client,
		db:        db,
		users:     db.Collection(store.UsersCollection),
		shortcuts: db.Collection(store.ShortcutsCollection),
		now:       time.Now,
	}
}

// Database returns the name of the database in use.
func (s *Store) Database() string {
	return s.db.Name()
}

// EnsureIndexes creates the unique username index and the shortcut key index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.NewStoreError("create index", err).WithCollection(store.UsersCollection)
	}
	_, err = s.shortcuts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "application", Value: 1},
			{Key: "operatingSystem", Value: 1},
			{Key: "keyCombination", Value: 1},
		},
	})
	if err != nil {
		return errors.NewStoreError("create index", err).WithCollection(store.ShortcutsCollection)
	}
	return nil
}

func storeErr(op, collection string, id string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		err = errors.Join(errors.ErrDuplicateKey, err)
	}
	return errors.NewStoreError(op, err).WithCollection(collection).WithDocument(id)
}

func (s *Store) InsertUser(ctx context.Context, u *store.User) error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.Created.IsZero() {
		u.Created = s.now().UTC()
	}
	if u.Favorites == nil {
		u.Favorites = []primitive.ObjectID{}
	}
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		return storeErr("insert user", store.UsersCollection, u.ID.Hex(), err)
	}
	return nil
}

func (s *Store) SaveUser(ctx context.Context, u *store.User) error {
	res, err := s.users.ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if err != nil {
		return storeErr("save user", store.UsersCollection, u.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return errors.NewNotFoundError("user", u.ID.Hex())
	}
	return nil
}

func (s *Store) findUser(ctx context.Context, filter bson.M, label string) (*store.User, error) {
	var u store.User
	err := s.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.NewNotFoundError("user", label)
	}
	if err != nil {
		return nil, storeErr("find user", store.UsersCollection, label, err)
	}
	return &u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id primitive.ObjectID) (*store.User, error) {
	return s.findUser(ctx, bson.M{"_id": id}, id.Hex())
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.findUser(ctx, bson.M{"username": username}, username)
}

// FindUsersWithFavorites matches {favorites: {$not: {$size: 0}}}. Users
// without a favorites field match too and come back with an empty list, so
// they are filtered out here.
func (s *Store) FindUsersWithFavorites(ctx context.Context) ([]*store.User, error) {
	filter := bson.M{"favorites": bson.M{"$not": bson.M{"$size": 0}}}
	cur, err := s.users.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, storeErr("find users", store.UsersCollection, "", err)
	}
	var all []*store.User
	if err := cur.All(ctx, &all); err != nil {
		return nil, storeErr("decode users", store.UsersCollection, "", err)
	}

	out := all[:0]
	for _, u := range all {
		if len(u.Favorites) > 0 {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) RemoveUsers(ctx context.Context) (int64, error) {
	res, err := s.users.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, storeErr("remove users", store.UsersCollection, "", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) InsertShortcut(ctx context.Context, sc *store.Shortcut) error {
	if sc.ID.IsZero() {
		sc.ID = primitive.NewObjectID()
	}
	if sc.Created.IsZero() {
		sc.Created = s.now().UTC()
	}
	if _, err := s.shortcuts.InsertOne(ctx, sc); err != nil {
		return storeErr("insert shortcut", store.ShortcutsCollection, sc.ID.Hex(), err)
	}
	return nil
}

func (s *Store) SaveShortcut(ctx context.Context, sc *store.Shortcut) error {
	res, err := s.shortcuts.ReplaceOne(ctx, bson.M{"_id": sc.ID}, sc)
	if err != nil {
		return storeErr("save shortcut", store.ShortcutsCollection, sc.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return errors.NewNotFoundError("shortcut", sc.ID.Hex())
	}
	return nil
}

func (s *Store) FindShortcutsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*store.Shortcut, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.shortcuts.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, storeErr("find shortcuts", store.ShortcutsCollection, "", err)
	}
	var out []*store.Shortcut
	if err := cur.All(ctx, &out); err != nil {
		return nil, storeErr("decode shortcuts", store.ShortcutsCollection, "", err)
	}
	return out, nil
}

func (s *Store) FindShortcutByKey(ctx context.Context, key store.Key) (*store.Shortcut, error) {
	filter := bson.M{
		"application":     key.Application,
		"operatingSystem": key.OperatingSystem,
		"keyCombination":  key.KeyCombination,
	}
	var sc store.Shortcut
	err := s.shortcuts.FindOne(ctx, filter).Decode(&sc)
	label := key.Application + "/" + key.OperatingSystem + "/" + key.KeyCombination
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.NewNotFoundError("shortcut", label)
	}
	if err != nil {
		return nil, storeErr("find shortcut", store.ShortcutsCollection, label, err)
	}
	return &sc, nil
}

func (s *Store) updateCount(ctx context.Context, op string, id primitive.ObjectID, update bson.M) error {
	res, err := s.shortcuts.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return storeErr(op, store.ShortcutsCollection, id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return errors.NewNotFoundError("shortcut", id.Hex())
	}
	return nil
}

func (s *Store) IncrementFavoritesCount(ctx context.Context, id primitive.ObjectID, delta int) error {
	return s.updateCount(ctx, "increment favorites", id, bson.M{"$inc": bson.M{"favoritesCount": delta}})
}

func (s *Store) SetFavoritesCount(ctx context.Context, id primitive.ObjectID, count int) error {
	return s.updateCount(ctx, "set favorites", id, bson.M{"$set": bson.M{"favoritesCount": count}})
}

func (s *Store) ResetFavoritesCounts(ctx context.Context) (int64, error) {
	res, err := s.shortcuts.UpdateMany(ctx,
		bson.M{"favoritesCount": bson.M{"$ne": 0}},
		bson.M{"$set": bson.M{"favoritesCount": 0}})
	if err != nil {
		return 0, storeErr("reset favorites", store.ShortcutsCollection, "", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) RemoveShortcuts(ctx context.Context) (int64, error) {
	res, err := s.shortcuts.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, storeErr("remove shortcuts", store.ShortcutsCollection, "", err)
	}
	return res.DeletedCount, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
