package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"ChatCore/module/conversation/model"
	"ChatCore/tools/errs"
	"ChatCore/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps one document per conversation with the message log embedded.
// Appends run as a single pipeline update so the index is assigned atomically
// by the server.
type MongoStore struct {
	coll  *mongo.Collection
	newID func() string
	now   func() time.Time
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		coll:  db.Collection(model.ConversationTableName),
		newID: ids.GenerateString,
		now:   time.Now,
	}
}

func (s *MongoStore) GetTableName() string          { return model.ConversationTableName }
func (s *MongoStore) Collection() *mongo.Collection { return s.coll }

func (s *MongoStore) Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: model.ConversationFieldParticipants, Value: 1}}},
	}
}

var infoProjection = bson.M{model.ConversationFieldMessages: 0}

func (s *MongoStore) Create(ctx context.Context, name string, participants []string, isGroup bool, creator string) (string, error) {
	c, err := newConversation(s.newID(), name, participants, isGroup, creator, s.now().UTC())
	if err != nil {
		return "", err
	}
	if _, err := s.coll.InsertOne(ctx, c); err != nil {
		return "", errs.WrapMsg(err, "insert conversation", "conversationId", c.ID)
	}
	return c.ID, nil
}

// appendPipeline builds the new message from the stored participants, so the
// receivers snapshot and the index come from the same document version.
func appendPipeline(sender, content string, now time.Time) mongo.Pipeline {
	msg := bson.D{
		{Key: model.MessageFieldIndex, Value: bson.M{"$size": "$" + model.ConversationFieldMessages}},
		{Key: model.MessageFieldSender, Value: bson.M{"$literal": sender}},
		{Key: model.MessageFieldContent, Value: bson.M{"$literal": content}},
		{Key: model.MessageFieldReceivers, Value: bson.M{"$filter": bson.M{
			"input": "$" + model.ConversationFieldParticipants,
			"cond":  bson.M{"$ne": bson.A{"$$this", bson.M{"$literal": sender}}},
		}}},
		{Key: model.MessageFieldDeliveredTo, Value: bson.M{"$literal": bson.A{}}},
		{Key: model.MessageFieldSeenBy, Value: bson.M{"$literal": bson.A{}}},
		{Key: model.MessageFieldIsVisible, Value: true},
		{Key: model.MessageFieldSentAt, Value: now},
	}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			model.ConversationFieldMessages: bson.M{"$concatArrays": bson.A{
				"$" + model.ConversationFieldMessages,
				bson.A{msg},
			}},
		}}},
	}
}

func (s *MongoStore) AppendMessage(ctx context.Context, conversationID, sender, content string) (*model.Message, error) {
	if content == "" {
		return nil, errs.ErrInvalidArgument.WrapMsg("message content is required")
	}
	filter := bson.M{
		model.ConversationFieldID:           conversationID,
		model.ConversationFieldParticipants: sender,
	}
	res := s.coll.FindOneAndUpdate(ctx, filter, appendPipeline(sender, content, s.now().UTC()),
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{model.ConversationFieldMessages: bson.M{"$slice": -1}}),
	)
	var out model.Conversation
	if err := res.Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c, gerr := s.GetInfo(ctx, conversationID)
			if gerr != nil {
				return nil, gerr
			}
			return nil, checkSender(c, sender, content)
		}
		return nil, errs.WrapMsg(err, "append message", "conversationId", conversationID)
	}
	if len(out.Messages) == 0 {
		return nil, errs.ErrInternal.WrapMsg("append returned no message", "conversationId", conversationID)
	}
	return &out.Messages[0], nil
}

func (s *MongoStore) Rename(ctx context.Context, conversationID, newName string) (*model.Conversation, error) {
	return s.updateInfo(ctx, bson.M{model.ConversationFieldID: conversationID},
		bson.M{"$set": bson.M{model.ConversationFieldName: newName}}, conversationID)
}

func (s *MongoStore) AddParticipant(ctx context.Context, conversationID, username string) (*model.Conversation, bool, error) {
	if username == "" {
		return nil, false, errs.ErrInvalidArgument.WrapMsg("username is required")
	}
	filter := bson.M{
		model.ConversationFieldID:           conversationID,
		model.ConversationFieldParticipants: bson.M{"$ne": username},
	}
	c, err := s.updateInfo(ctx, filter, bson.M{"$push": bson.M{model.ConversationFieldParticipants: username}}, conversationID)
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, false, err
	}
	// either missing or already a member
	c, err = s.GetInfo(ctx, conversationID)
	if err != nil {
		return nil, false, err
	}
	return c, false, nil
}

func (s *MongoStore) RemoveParticipant(ctx context.Context, conversationID, username string) (*model.Conversation, error) {
	filter := bson.M{
		model.ConversationFieldID:           conversationID,
		model.ConversationFieldParticipants: username,
	}
	update := bson.M{"$pull": bson.M{
		model.ConversationFieldParticipants: username,
		model.ConversationFieldAdmins:       username,
	}}
	c, err := s.updateInfo(ctx, filter, update, conversationID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	if _, gerr := s.GetInfo(ctx, conversationID); gerr != nil {
		return nil, gerr
	}
	return nil, errMemberNotFound(conversationID, username)
}

func (s *MongoStore) AddAdmins(ctx context.Context, conversationID, requestingAdmin string, candidates []string) (*model.Conversation, error) {
	candidates = model.Dedupe(candidates)
	filter := bson.M{
		model.ConversationFieldID:     conversationID,
		model.ConversationFieldAdmins: requestingAdmin,
	}
	if len(candidates) > 0 {
		filter[model.ConversationFieldParticipants] = bson.M{"$all": candidates}
	}
	update := bson.M{"$addToSet": bson.M{model.ConversationFieldAdmins: bson.M{"$each": candidates}}}
	c, err := s.updateInfo(ctx, filter, update, conversationID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	cur, gerr := s.GetInfo(ctx, conversationID)
	if gerr != nil {
		return nil, gerr
	}
	if cerr := checkAdmins(cur, requestingAdmin, candidates); cerr != nil {
		return nil, cerr
	}
	// state changed between the two reads, let the caller retry
	return nil, errs.ErrInternal.WrapMsg("concurrent membership change", "conversationId", conversationID)
}

func (s *MongoStore) updateInfo(ctx context.Context, filter, update bson.M, conversationID string) (*model.Conversation, error) {
	res := s.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After).SetProjection(infoProjection))
	var out model.Conversation
	if err := res.Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errConversationNotFound(conversationID)
		}
		return nil, errs.WrapMsg(err, "update conversation", "conversationId", conversationID)
	}
	return &out, nil
}

func (s *MongoStore) GetInfo(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var out model.Conversation
	err := s.coll.FindOne(ctx, bson.M{model.ConversationFieldID: conversationID},
		options.FindOne().SetProjection(infoProjection)).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errConversationNotFound(conversationID)
		}
		return nil, errs.WrapMsg(err, "get conversation", "conversationId", conversationID)
	}
	return &out, nil
}

func (s *MongoStore) findWithSlice(ctx context.Context, conversationID string, slice any) (*model.Conversation, error) {
	var out model.Conversation
	err := s.coll.FindOne(ctx, bson.M{model.ConversationFieldID: conversationID},
		options.FindOne().SetProjection(bson.M{model.ConversationFieldMessages: bson.M{"$slice": slice}})).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errConversationNotFound(conversationID)
		}
		return nil, errs.WrapMsg(err, "get messages", "conversationId", conversationID)
	}
	return &out, nil
}

func (s *MongoStore) GetMessage(ctx context.Context, conversationID string, index int) (*model.Message, error) {
	if index < 0 {
		return nil, validateIndex(conversationID, index, 0)
	}
	c, err := s.findWithSlice(ctx, conversationID, bson.A{index, 1})
	if err != nil {
		return nil, err
	}
	if len(c.Messages) == 0 || c.Messages[0].Index != index {
		return nil, validateIndex(conversationID, index, 0)
	}
	return &c.Messages[0], nil
}

func (s *MongoStore) GetLastMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	c, err := s.findWithSlice(ctx, conversationID, -1)
	if err != nil {
		return nil, err
	}
	return c.LastMessage(), nil
}

func (s *MongoStore) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var out model.Conversation
	err := s.coll.FindOne(ctx, bson.M{model.ConversationFieldID: conversationID}).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errConversationNotFound(conversationID)
		}
		return nil, errs.WrapMsg(err, "get messages", "conversationId", conversationID)
	}
	return out.Messages, nil
}

func messagePath(index int, field string) string {
	return model.ConversationFieldMessages + "." + strconv.Itoa(index) + "." + field
}

// indexFilter matches the conversation only when every index exists.
func indexFilter(conversationID string, indexes []int) bson.M {
	maxIdx := 0
	for _, i := range indexes {
		if i > maxIdx {
			maxIdx = i
		}
	}
	return bson.M{
		model.ConversationFieldID: conversationID,
		messagePath(maxIdx, model.MessageFieldIndex): maxIdx,
	}
}

func (s *MongoStore) HideMessage(ctx context.Context, conversationID string, index int) error {
	if index < 0 {
		return validateIndex(conversationID, index, 0)
	}
	res, err := s.coll.UpdateOne(ctx, indexFilter(conversationID, []int{index}),
		bson.M{"$set": bson.M{messagePath(index, model.MessageFieldIsVisible): false}})
	if err != nil {
		return errs.WrapMsg(err, "hide message", "conversationId", conversationID)
	}
	if res.MatchedCount == 0 {
		return s.missing(ctx, conversationID, index)
	}
	return nil
}

func (s *MongoStore) AddReceipt(ctx context.Context, conversationID string, kind model.ReceiptKind, indexes []int, username string) error {
	if err := checkReceipt(kind, username); err != nil {
		return err
	}
	if len(indexes) == 0 {
		return nil
	}
	set := bson.M{}
	for _, i := range indexes {
		if i < 0 {
			return validateIndex(conversationID, i, 0)
		}
		set[messagePath(i, kind.Field())] = username
	}
	res, err := s.coll.UpdateOne(ctx, indexFilter(conversationID, indexes), bson.M{"$addToSet": set})
	if err != nil {
		return errs.WrapMsg(err, "add receipt", "conversationId", conversationID, "kind", kind.String())
	}
	if res.MatchedCount == 0 {
		return s.missing(ctx, conversationID, indexes[0])
	}
	return nil
}

// missing explains a zero-match update: unknown conversation or out of range index.
func (s *MongoStore) missing(ctx context.Context, conversationID string, index int) error {
	if _, err := s.GetInfo(ctx, conversationID); err != nil {
		return err
	}
	return validateIndex(conversationID, index, 0)
}
