package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"taskboard/internal/domain"
	"taskboard/internal/store"
)

const disconnectTimeout = 5 * time.Second

// Store implements store.Store on a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ store.Store = (*Store)(nil)

type taskDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	Priority    string             `bson:"priority"`
	Completed   bool               `bson:"completed"`
	OwnerEmail  string             `bson:"userEmail"`
	CreatedAt   string             `bson:"createdAt"`
	UpdatedAt   string             `bson:"updatedAt"`
	DueDate     *string            `bson:"dueDate,omitempty"`
}

func (d taskDoc) task() domain.Task {
	return domain.Task{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Priority:    domain.Priority(d.Priority),
		Completed:   d.Completed,
		OwnerEmail:  d.OwnerEmail,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		DueDate:     d.DueDate,
	}
}

// Open connects to uri, pings the server and ensures the owner index.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	coll := client.Database(database).Collection(store.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userEmail", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("creating owner index: %w", err)
	}
	return &Store{client: client, coll: coll}, nil
}

func (s *Store) ListByOwner(ctx context.Context, email string) ([]domain.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{"userEmail": email}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []taskDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding tasks: %w", err)
	}
	res := make([]domain.Task, 0, len(docs))
	for _, d := range docs {
		res = append(res, d.task())
	}
	return res, nil
}

func (s *Store) Create(ctx context.Context, t domain.Task) (domain.Task, error) {
	doc := taskDoc{
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		Completed:   t.Completed,
		OwnerEmail:  t.OwnerEmail,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		DueDate:     t.DueDate,
	}
	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return domain.Task{}, fmt.Errorf("creating task: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return domain.Task{}, fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	t.ID = oid.Hex()
	return t, nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.Task{}, store.ErrNotFound
	}
	var doc taskDoc
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Task{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("getting task %s: %w", id, err)
	}
	return doc.task(), nil
}

func (s *Store) UpdateByID(ctx context.Context, id string, patch domain.TaskPatch, updatedAt string) (domain.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.Task{}, store.ErrNotFound
	}
	update := updateDocument(patch, updatedAt)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc taskDoc
	err = s.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Task{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("updating task %s: %w", id, err)
	}
	return doc.task(), nil
}

func updateDocument(patch domain.TaskPatch, updatedAt string) bson.M {
	set := bson.M{"updatedAt": updatedAt}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Priority != nil {
		set["priority"] = string(*patch.Priority)
	}
	if patch.Completed != nil {
		set["completed"] = *patch.Completed
	}
	update := bson.M{"$set": set}
	if patch.ClearDueDate {
		update["$unset"] = bson.M{"dueDate": ""}
	} else if patch.DueDate != nil {
		set["dueDate"] = *patch.DueDate
	}
	return update
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrNotFound
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
