package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"ChatCore/module/projection/model"
	"ChatCore/tools/errs"

	"github.com/redis/go-redis/v9"
)

// Redis layout, hash-tagged by user so a user's keys share a slot:
//
//	im:proj:{<user>}          SET of conversation ids
//	im:proj:{<user>}:<conv>   HASH row
const (
	hName         = "name"
	hParticipants = "participants"
	hIsGroup      = "is_group"
	hCreatedAt    = "created_at"
	hUpdatedAt    = "updated_at"
	hLastMessage  = "last_message"
	hLastIndex    = "last_index"
)

func userKey(username string) string { return "im:proj:{" + username + "}" }
func rowKey(username, conversationID string) string {
	return userKey(username) + ":" + conversationID
}

// KEYS[1]=row; ARGV = field, value, field, value, ..., updated_at
// returns 0 when the row does not exist
var luaUpdateIfExists = redis.NewScript(`
  if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
  end
  local n = #ARGV
  for i = 1, n - 1, 2 do
    redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
  end
  redis.call('HSET', KEYS[1], 'updated_at', ARGV[n])
  return 1
`)

// KEYS[1]=row; ARGV[1]=last message json; ARGV[2]=index; ARGV[3]=updated_at
// returns -1 missing row, 0 older than stored, 1 written
var luaUpdateLastMessage = redis.NewScript(`
  if redis.call('EXISTS', KEYS[1]) == 0 then
    return -1
  end
  local cur = redis.call('HGET', KEYS[1], 'last_index')
  if cur and tonumber(cur) > tonumber(ARGV[2]) then
    return 0
  end
  redis.call('HSET', KEYS[1], 'last_message', ARGV[1], 'last_index', ARGV[2], 'updated_at', ARGV[3])
  return 1
`)

// KEYS[1]=row; KEYS[2]=user index; ARGV[1]=conversation id; ARGV[2]=new last_index;
// ARGV[3..] = field, value pairs. A stored preview with a higher index survives.
var luaUpsertRow = redis.NewScript(`
  local idx = redis.call('HGET', KEYS[1], 'last_index')
  local msg = false
  if idx and tonumber(idx) > tonumber(ARGV[2]) then
    msg = redis.call('HGET', KEYS[1], 'last_message')
  end
  redis.call('DEL', KEYS[1])
  for i = 3, #ARGV - 1, 2 do
    redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
  end
  if msg then
    redis.call('HSET', KEYS[1], 'last_message', msg, 'last_index', idx)
  end
  redis.call('SADD', KEYS[2], ARGV[1])
  if msg then
    return 0
  end
  return 1
`)

type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func millis(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

// encodeRow flattens a row into hash fields.
func encodeRow(row model.UserConversation, now time.Time) (map[string]any, error) {
	parts, err := json.Marshal(row.Participants)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{
		hName:         row.Name,
		hParticipants: string(parts),
		hIsGroup:      strconv.FormatBool(row.IsGroup),
		hCreatedAt:    millis(row.CreatedAt),
		hUpdatedAt:    millis(now),
		hLastMessage:  "",
		hLastIndex:    "-1",
	}
	if row.LastMessage != nil {
		lm, err := json.Marshal(row.LastMessage)
		if err != nil {
			return nil, err
		}
		fields[hLastMessage] = string(lm)
		fields[hLastIndex] = strconv.Itoa(row.LastMessage.Index)
	}
	return fields, nil
}

func decodeRow(username, conversationID string, h map[string]string) (model.UserConversation, error) {
	r := model.UserConversation{
		Username:       username,
		ConversationID: conversationID,
		Name:           h[hName],
	}
	if v := h[hParticipants]; v != "" {
		if err := json.Unmarshal([]byte(v), &r.Participants); err != nil {
			return r, err
		}
	}
	r.IsGroup, _ = strconv.ParseBool(h[hIsGroup])
	if ms, err := strconv.ParseInt(h[hCreatedAt], 10, 64); err == nil {
		r.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(h[hUpdatedAt], 10, 64); err == nil {
		r.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	if v := h[hLastMessage]; v != "" {
		var lm model.LastMessage
		if err := json.Unmarshal([]byte(v), &lm); err != nil {
			return r, err
		}
		r.LastMessage = &lm
	}
	return r, nil
}

func (s *RedisStore) UpsertConversation(ctx context.Context, row model.UserConversation) error {
	if err := checkKey(row.Username, row.ConversationID); err != nil {
		return err
	}
	fields, err := encodeRow(row, s.now())
	if err != nil {
		return errs.WrapMsg(err, "encode projection")
	}
	args := make([]any, 0, 2+2*len(fields))
	args = append(args, row.ConversationID, fields[hLastIndex])
	for k, v := range fields {
		args = append(args, k, v)
	}
	keys := []string{rowKey(row.Username, row.ConversationID), userKey(row.Username)}
	if err := luaUpsertRow.Run(ctx, s.rdb, keys, args...).Err(); err != nil {
		return errs.WrapMsg(err, "upsert projection", "username", row.Username, "conversationId", row.ConversationID)
	}
	return nil
}

func (s *RedisStore) updateFields(ctx context.Context, username, conversationID string, kv ...string) error {
	if err := checkKey(username, conversationID); err != nil {
		return err
	}
	args := make([]any, 0, len(kv)+1)
	for _, v := range kv {
		args = append(args, v)
	}
	args = append(args, millis(s.now()))
	n, err := luaUpdateIfExists.Run(ctx, s.rdb, []string{rowKey(username, conversationID)}, args...).Int()
	if err != nil {
		return errs.WrapMsg(err, "update projection", "username", username, "conversationId", conversationID)
	}
	if n == 0 {
		return errRowNotFound(username, conversationID)
	}
	return nil
}

func (s *RedisStore) UpdateName(ctx context.Context, username, conversationID, name string) error {
	return s.updateFields(ctx, username, conversationID, hName, name)
}

func (s *RedisStore) UpdateParticipants(ctx context.Context, username, conversationID string, participants []string) error {
	b, err := json.Marshal(participants)
	if err != nil {
		return errs.WrapMsg(err, "encode participants")
	}
	return s.updateFields(ctx, username, conversationID, hParticipants, string(b))
}

func (s *RedisStore) UpdateLastMessage(ctx context.Context, username, conversationID string, lm model.LastMessage) error {
	if err := checkKey(username, conversationID); err != nil {
		return err
	}
	b, err := json.Marshal(lm)
	if err != nil {
		return errs.WrapMsg(err, "encode last message")
	}
	n, err := luaUpdateLastMessage.Run(ctx, s.rdb, []string{rowKey(username, conversationID)},
		string(b), lm.Index, millis(s.now())).Int()
	if err != nil {
		return errs.WrapMsg(err, "update last message", "username", username, "conversationId", conversationID)
	}
	if n < 0 {
		return errRowNotFound(username, conversationID)
	}
	return nil
}

func (s *RedisStore) ListConversations(ctx context.Context, username string) (map[string]model.UserConversation, error) {
	ids, err := s.rdb.SMembers(ctx, userKey(username)).Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "list projections", "username", username)
	}
	out := make(map[string]model.UserConversation, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, rowKey(username, id))
		}
		return nil
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "load projections", "username", username)
	}
	for i, id := range ids {
		h := cmds[i].Val()
		if len(h) == 0 {
			// index entry without a row
			continue
		}
		r, err := decodeRow(username, id, h)
		if err != nil {
			return nil, errs.WrapMsg(err, "decode projection", "username", username, "conversationId", id)
		}
		out[id] = r
	}
	return out, nil
}
