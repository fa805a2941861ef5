package store

import (
	"context"
	"time"

	"ChatCore/module/projection/model"
	"ChatCore/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(model.ProjectionTableName), now: time.Now}
}

func (s *MongoStore) GetTableName() string          { return model.ProjectionTableName }
func (s *MongoStore) Collection() *mongo.Collection { return s.coll }

func (s *MongoStore) Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{{
		Keys: bson.D{
			{Key: model.ProjectionFieldUsername, Value: 1},
			{Key: model.ProjectionFieldConversationID, Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}}
}

func rowFilter(username, conversationID string) bson.M {
	return bson.M{
		model.ProjectionFieldUsername:       username,
		model.ProjectionFieldConversationID: conversationID,
	}
}

// upsertModels writes the row fields unconditionally and the preview only
// through the same index guard as UpdateLastMessage.
func upsertModels(row model.UserConversation, now time.Time) []mongo.WriteModel {
	set := bson.M{
		model.ProjectionFieldName:         row.Name,
		model.ProjectionFieldParticipants: row.Participants,
		model.ProjectionFieldIsGroup:      row.IsGroup,
		model.ProjectionFieldCreatedAt:    row.CreatedAt,
		model.ProjectionFieldUpdatedAt:    now,
	}
	models := []mongo.WriteModel{
		mongo.NewUpdateOneModel().
			SetFilter(rowFilter(row.Username, row.ConversationID)).
			SetUpdate(bson.M{"$set": set}).
			SetUpsert(true),
	}
	if row.LastMessage != nil {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(lastMessageFilter(row.Username, row.ConversationID, *row.LastMessage)).
			SetUpdate(bson.M{"$set": bson.M{model.ProjectionFieldLastMessage: row.LastMessage}}))
	}
	return models
}

func (s *MongoStore) UpsertConversation(ctx context.Context, row model.UserConversation) error {
	if err := checkKey(row.Username, row.ConversationID); err != nil {
		return err
	}
	_, err := s.coll.BulkWrite(ctx, upsertModels(row, s.now().UTC()), options.BulkWrite().SetOrdered(true))
	if err != nil {
		return errs.WrapMsg(err, "upsert projection", "username", row.Username, "conversationId", row.ConversationID)
	}
	return nil
}

func (s *MongoStore) updateFields(ctx context.Context, username, conversationID string, set bson.M) error {
	if err := checkKey(username, conversationID); err != nil {
		return err
	}
	set[model.ProjectionFieldUpdatedAt] = s.now().UTC()
	res, err := s.coll.UpdateOne(ctx, rowFilter(username, conversationID), bson.M{"$set": set})
	if err != nil {
		return errs.WrapMsg(err, "update projection", "username", username, "conversationId", conversationID)
	}
	if res.MatchedCount == 0 {
		return errRowNotFound(username, conversationID)
	}
	return nil
}

func (s *MongoStore) UpdateName(ctx context.Context, username, conversationID, name string) error {
	return s.updateFields(ctx, username, conversationID, bson.M{model.ProjectionFieldName: name})
}

func (s *MongoStore) UpdateParticipants(ctx context.Context, username, conversationID string, participants []string) error {
	return s.updateFields(ctx, username, conversationID, bson.M{model.ProjectionFieldParticipants: participants})
}

// lastMessageFilter matches the row only when lm is not older than the stored preview.
func lastMessageFilter(username, conversationID string, lm model.LastMessage) bson.M {
	f := rowFilter(username, conversationID)
	f["$or"] = bson.A{
		bson.M{model.ProjectionFieldLastMessage: nil},
		bson.M{model.ProjectionFieldLastMessage + "." + model.LastMessageFieldIndex: bson.M{"$lte": lm.Index}},
	}
	return f
}

func (s *MongoStore) UpdateLastMessage(ctx context.Context, username, conversationID string, lm model.LastMessage) error {
	if err := checkKey(username, conversationID); err != nil {
		return err
	}
	res, err := s.coll.UpdateOne(ctx, lastMessageFilter(username, conversationID, lm), bson.M{"$set": bson.M{
		model.ProjectionFieldLastMessage: lm,
		model.ProjectionFieldUpdatedAt:   s.now().UTC(),
	}})
	if err != nil {
		return errs.WrapMsg(err, "update last message", "username", username, "conversationId", conversationID)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	// stale preview or missing row
	n, err := s.coll.CountDocuments(ctx, rowFilter(username, conversationID), options.Count().SetLimit(1))
	if err != nil {
		return errs.WrapMsg(err, "count projection", "username", username, "conversationId", conversationID)
	}
	if n == 0 {
		return errRowNotFound(username, conversationID)
	}
	return nil
}

func (s *MongoStore) ListConversations(ctx context.Context, username string) (map[string]model.UserConversation, error) {
	cur, err := s.coll.Find(ctx, bson.M{model.ProjectionFieldUsername: username})
	if err != nil {
		return nil, errs.WrapMsg(err, "list projections", "username", username)
	}
	defer cur.Close(ctx)

	out := make(map[string]model.UserConversation)
	for cur.Next(ctx) {
		var r model.UserConversation
		if err := cur.Decode(&r); err != nil {
			return nil, errs.WrapMsg(err, "decode projection", "username", username)
		}
		out[r.ConversationID] = r
	}
	if err := cur.Err(); err != nil {
		return nil, errs.WrapMsg(err, "iterate projections", "username", username)
	}
	return out, nil
}
