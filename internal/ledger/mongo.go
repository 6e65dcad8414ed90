package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists cards and player records in two collections. The
// unique index on cardId is what turns a racing duplicate collect into
// ErrDuplicateCard instead of a second document.
type MongoStore struct {
	client  *mongo.Client
	cards   *mongo.Collection
	players *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	db := client.Database(database)
	store := &MongoStore{
		client:  client,
		cards:   db.Collection("cards"),
		players: db.Collection("players"),
	}

	if _, err := store.cards.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "cardId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := store.players.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "playerKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return store, nil
}

func (s *MongoStore) InsertCard(ctx context.Context, card Card) error {
	if _, err := s.cards.InsertOne(ctx, card); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateCard
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *MongoStore) FindOwnedCard(ctx context.Context, cardID, owner string) (Card, error) {
	var card Card
	err := s.cards.FindOne(ctx, bson.M{"cardId": cardID, "owner": owner}).Decode(&card)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Card{}, ErrCardNotFound
		}
		return Card{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return card, nil
}

func (s *MongoStore) UpdateCard(ctx context.Context, card Card) error {
	// The owner stays in the filter so an ownership change racing this
	// update can never level someone else's card.
	result, err := s.cards.UpdateOne(ctx,
		bson.M{"cardId": card.CardID, "owner": card.Owner},
		bson.M{"$set": bson.M{
			"experience": card.Experience,
			"level":      card.Level,
			"attackLife": card.AttackLife,
		}},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if result.MatchedCount == 0 {
		return ErrCardNotFound
	}
	return nil
}

func (s *MongoStore) DeleteCard(ctx context.Context, cardID, owner string) error {
	result, err := s.cards.DeleteOne(ctx, bson.M{"cardId": cardID, "owner": owner})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if result.DeletedCount == 0 {
		return ErrCardNotFound
	}
	return nil
}

func (s *MongoStore) UpsertPlayerCard(ctx context.Context, playerKey, displayName, cardID string) error {
	_, err := s.players.UpdateOne(ctx,
		bson.M{"playerKey": playerKey},
		bson.M{
			"$set":      bson.M{"displayName": displayName},
			"$addToSet": bson.M{"cards": cardID},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *MongoStore) FindPlayer(ctx context.Context, playerKey string) (PlayerRecord, error) {
	var record PlayerRecord
	err := s.players.FindOne(ctx, bson.M{"playerKey": playerKey}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return PlayerRecord{}, ErrPlayerNotFound
		}
		return PlayerRecord{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return record, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
