package store

import (
	"testing"
	"time"

	"ChatCore/module/projection/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestLastMessageFilterGuardsIndex(t *testing.T) {
	f := lastMessageFilter("alice", "c1", model.LastMessage{Index: 5})
	assert.Equal(t, "alice", f[model.ProjectionFieldUsername])
	assert.Equal(t, "c1", f[model.ProjectionFieldConversationID])

	or := f["$or"].(bson.A)
	assert.Len(t, or, 2)
	assert.Equal(t, bson.M{"last_message.index": bson.M{"$lte": 5}}, or[1])
}

func TestUpsertModelsGuardPreview(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	r := row("dave", "c1")

	models := upsertModels(r, now)
	require.Len(t, models, 1)
	first := models[0].(*mongo.UpdateOneModel)
	require.NotNil(t, first.Upsert)
	assert.True(t, *first.Upsert)
	set := first.Update.(bson.M)["$set"].(bson.M)
	assert.NotContains(t, set, model.ProjectionFieldLastMessage)
	assert.Equal(t, now, set[model.ProjectionFieldUpdatedAt])

	r.LastMessage = &model.LastMessage{Index: 4, Sender: "alice", Content: "four"}
	models = upsertModels(r, now)
	require.Len(t, models, 2)
	guarded := models[1].(*mongo.UpdateOneModel)
	assert.Nil(t, guarded.Upsert)
	assert.Equal(t, lastMessageFilter("dave", "c1", *r.LastMessage), guarded.Filter)
	assert.Equal(t, r.LastMessage, guarded.Update.(bson.M)["$set"].(bson.M)[model.ProjectionFieldLastMessage])
}
