package fanout

import (
	"context"
	"errors"
	"sync"

	"ChatCore/module/projection/store"
	"ChatCore/tools/errs"
	"ChatCore/tools/safe"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Dispatcher issues a batch of jobs for one conversation mutation and
// returns once every job was issued. A non-nil error is a *PartialFailure.
type Dispatcher interface {
	Dispatch(ctx context.Context, conversationID string, jobs []Job) error
}

type result struct {
	username string
	err      error
}

// runAll calls do for every job concurrently and gathers failures.
func runAll(conversationID string, jobs []Job, do func(Job) error) error {
	results := make(chan result, len(jobs))
	var wg sync.WaitGroup
	for _, j := range jobs {
		j := j
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results <- result{username: j.Username, err: errs.WrapMsg(errs.ErrPanic(r), "projection write", "username", j.Username)}
				}
			}()
			results <- result{username: j.Username, err: do(j)}
		}()
	}
	wg.Wait()
	close(results)

	var (
		failed []string
		merr   error
	)
	for r := range results {
		if r.err != nil {
			failed = append(failed, r.username)
			merr = multierr.Append(merr, r.err)
		}
	}
	if merr == nil {
		return nil
	}
	return newPartialFailure(conversationID, failed, merr)
}

// DirectDispatcher writes straight to the projection store, one goroutine per job.
type DirectDispatcher struct {
	store store.Store
	log   *zap.Logger
}

func NewDirectDispatcher(s store.Store, log *zap.Logger) *DirectDispatcher {
	safe.MustNotNil(s, "projection store")
	if log == nil {
		log = zap.NewNop()
	}
	return &DirectDispatcher{store: s, log: log}
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, conversationID string, jobs []Job) error {
	return runAll(conversationID, jobs, func(j Job) error {
		return applyJob(ctx, d.store, d.log, j)
	})
}

// applyJob treats a missing row as success.
func applyJob(ctx context.Context, s store.Store, log *zap.Logger, j Job) error {
	err := j.Apply(ctx, s)
	if errors.Is(err, errs.ErrNotFound) {
		log.Info("projection row missing, skipped",
			zap.String("kind", string(j.Kind)),
			zap.String("username", j.Username),
			zap.String("conversationId", j.ConversationID))
		return nil
	}
	return err
}
