package natsx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdemMiddlewareDropsDuplicates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	h := NatsxChain(func(ctx context.Context, msg NatsxMessage) error {
		calls++
		return nil
	}, NatsxIdemMiddleware(NewMemIdem(ctx, time.Minute), 0))

	msg := NatsxMessage{Subject: "chat.bus.X", Data: []byte("{}"), Header: map[string]string{HeaderMsgID: "m1"}}
	require.NoError(t, h(ctx, msg))
	require.NoError(t, h(ctx, msg))
	msg.Header[HeaderMsgID] = "m2"
	require.NoError(t, h(ctx, msg))

	assert.Equal(t, 2, calls)
}

func TestMemIdemExpiry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemIdem(ctx, time.Second).(*memIdem)
	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }

	seen, _ := store.SeenOnce("k", 0)
	assert.False(t, seen)
	seen, _ = store.SeenOnce("k", 0)
	assert.True(t, seen)

	now = now.Add(2 * time.Second)
	store.sweep()
	seen, _ = store.SeenOnce("k", 0)
	assert.False(t, seen)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) NatsxMiddleware {
		return func(next NatsxHandler) NatsxHandler {
			return func(ctx context.Context, msg NatsxMessage) error {
				order = append(order, name)
				return next(ctx, msg)
			}
		}
	}
	h := NatsxChain(func(context.Context, NatsxMessage) error { return nil }, mw("a"), mw("b"))
	require.NoError(t, h(context.Background(), NatsxMessage{}))
	assert.Equal(t, []string{"a", "b"}, order)
}
