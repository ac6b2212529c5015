package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bosocmputer/document_extract_gemini/configs"
	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var mongoClient *mongo.Client
var mongoDB *mongo.Database

const (
	stateCollection  = "app_state"
	promptCollection = "prompts"
	mongoOpTimeout   = 5 * time.Second
)

// InitMongoDB initializes MongoDB connection
func InitMongoDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(configs.MONGO_URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mongoClient = client
	mongoDB = client.Database(configs.MONGO_DB_NAME)

	log.Println("✅ Connected to MongoDB successfully!")
	return nil
}

// GetMongoDB returns the MongoDB database instance
func GetMongoDB() *mongo.Database {
	return mongoDB
}

// CloseMongoDB closes MongoDB connection
func CloseMongoDB() {
	if mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
		log.Println("MongoDB connection closed")
	}
}

// stateDocument stores the blob as JSON text so result rows round-trip
// exactly as the file store writes them.
type stateDocument struct {
	AppID     string    `bson:"_id"`
	Version   int       `bson:"version"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func toStateDocument(appID string, state *model.AppState, now time.Time) (stateDocument, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return stateDocument{}, fmt.Errorf("failed to encode state: %w", err)
	}
	return stateDocument{AppID: appID, Version: state.Version, Payload: string(data), UpdatedAt: now}, nil
}

func (d stateDocument) state() (*model.AppState, error) {
	var state model.AppState
	if err := json.Unmarshal([]byte(d.Payload), &state); err != nil {
		return nil, fmt.Errorf("failed to decode state %s: %w", d.AppID, err)
	}
	return &state, nil
}

// MongoStateStore keeps one document per application id.
type MongoStateStore struct {
	coll *mongo.Collection
}

// NewMongoStateStore uses the app_state collection of db.
func NewMongoStateStore(db *mongo.Database) *MongoStateStore {
	return &MongoStateStore{coll: db.Collection(stateCollection)}
}

// Load fetches the blob; ErrStateNotFound when absent.
func (s *MongoStateStore) Load(ctx context.Context, appID string) (*model.AppState, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var doc stateDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": appID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to query state: %w", err)
	}
	return doc.state()
}

// Save replaces the whole document in one upsert.
func (s *MongoStateStore) Save(ctx context.Context, appID string, state *model.AppState) error {
	doc, err := toStateDocument(appID, state, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": appID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

type promptDocument struct {
	DocumentType string    `bson:"_id"`
	Prompt       string    `bson:"prompt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

// MongoPromptStore keeps custom prompts; a missing document means the default.
type MongoPromptStore struct {
	coll     *mongo.Collection
	defaults DefaultPromptFunc
}

// NewMongoPromptStore uses the prompts collection of db.
func NewMongoPromptStore(db *mongo.Database, defaults DefaultPromptFunc) *MongoPromptStore {
	return &MongoPromptStore{coll: db.Collection(promptCollection), defaults: defaults}
}

// Get returns the custom prompt or the default.
func (s *MongoPromptStore) Get(ctx context.Context, docType model.DocumentType) (StoredPrompt, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var doc promptDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": string(docType)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return StoredPrompt{DocumentType: docType, Prompt: s.defaults(docType)}, nil
		}
		return StoredPrompt{}, fmt.Errorf("failed to query prompt: %w", err)
	}
	return StoredPrompt{DocumentType: docType, Prompt: doc.Prompt, IsCustom: true}, nil
}

// Update stores a custom prompt.
func (s *MongoPromptStore) Update(ctx context.Context, docType model.DocumentType, prompt string) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	doc := promptDocument{DocumentType: string(docType), Prompt: prompt, UpdatedAt: time.Now()}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.DocumentType}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save prompt: %w", err)
	}
	return nil
}

// Reset deletes the custom prompt.
func (s *MongoPromptStore) Reset(ctx context.Context, docType model.DocumentType) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": string(docType)}); err != nil {
		return fmt.Errorf("failed to reset prompt: %w", err)
	}
	return nil
}
