package delivery

import (
	"context"
	"errors"
	"slices"

	"ChatCore/logger"
	"ChatCore/module/conversation/model"
	"ChatCore/module/conversation/store"
	"ChatCore/tools/errs"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Tracker maintains the delivered/seen receipt sets of messages.
// Receipts only grow, and only receivers of a message can appear in them.
type Tracker struct {
	store store.Store
}

func NewTracker(s store.Store) *Tracker {
	return &Tracker{store: s}
}

func (t *Tracker) MarkDelivered(ctx context.Context, conversationID string, index int, username string) error {
	return t.mark(ctx, conversationID, index, username, model.ReceiptDelivered)
}

// MarkSeen does not require a prior delivery receipt.
func (t *Tracker) MarkSeen(ctx context.Context, conversationID string, index int, username string) error {
	return t.mark(ctx, conversationID, index, username, model.ReceiptSeen)
}

func (t *Tracker) mark(ctx context.Context, conversationID string, index int, username string, kind model.ReceiptKind) error {
	if username == "" {
		return errs.ErrInvalidArgument.WrapMsg("username is required")
	}
	m, err := t.store.GetMessage(ctx, conversationID, index)
	if err != nil {
		return err
	}
	if !m.IsReceiver(username) {
		return errs.ErrInvalidArgument.WrapMsg("user is not a receiver of this message",
			"conversationId", conversationID, "index", index, "username", username, "receipt", kind.String())
	}
	if slices.Contains(kind.Set(m), username) {
		return nil
	}
	return t.store.AddReceipt(ctx, conversationID, kind, []int{index}, username)
}

func (t *Tracker) GetDeliveredTo(ctx context.Context, conversationID string, index int) ([]string, error) {
	m, err := t.store.GetMessage(ctx, conversationID, index)
	if err != nil {
		return nil, err
	}
	return m.DeliveredTo, nil
}

func (t *Tracker) GetSeenBy(ctx context.Context, conversationID string, index int) ([]string, error) {
	m, err := t.store.GetMessage(ctx, conversationID, index)
	if err != nil {
		return nil, err
	}
	return m.SeenBy, nil
}

// CatchUpDelivery marks undelivered messages as delivered to username after a
// reconnect. Each conversation is scanned newest to oldest and the scan stops
// at the first message already delivered to the user, since everything older
// was covered by an earlier catch-up. Messages the user did not receive (their
// own) are passed over. Messages from before the user joined have no
// receiver entry for them either, so the scan passes those over too instead
// of stopping at them, and for a late joiner it walks back to index 0 on
// every catch-up. Unknown conversations are skipped.
//
// The result maps conversation id to the indexes that were marked.
func (t *Tracker) CatchUpDelivery(ctx context.Context, conversationIDs []string, username string) (map[string][]int, error) {
	if username == "" {
		return nil, errs.ErrInvalidArgument.WrapMsg("username is required")
	}
	marked := make(map[string][]int)
	var errList error
	for _, id := range model.Dedupe(conversationIDs) {
		msgs, err := t.store.Messages(ctx, id)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				logger.Debug("catch-up skips unknown conversation", zap.String("conversationId", id))
				continue
			}
			errList = multierr.Append(errList, err)
			continue
		}
		indexes := pendingDeliveries(msgs, username)
		if len(indexes) == 0 {
			continue
		}
		if err := t.store.AddReceipt(ctx, id, model.ReceiptDelivered, indexes, username); err != nil {
			errList = multierr.Append(errList, err)
			continue
		}
		marked[id] = indexes
	}
	return marked, errList
}

// pendingDeliveries returns, newest first, the indexes to mark for username.
func pendingDeliveries(msgs []model.Message, username string) []int {
	var out []int
	for i := len(msgs) - 1; i >= 0; i-- {
		m := &msgs[i]
		if !m.IsReceiver(username) {
			continue
		}
		if slices.Contains(m.DeliveredTo, username) {
			break
		}
		out = append(out, m.Index)
	}
	return out
}
