package fanout

import (
	"context"

	convmodel "ChatCore/module/conversation/model"
	"ChatCore/module/projection/model"
	"ChatCore/tools/safe"
)

// Coordinator turns conversation writes into per-user projection jobs.
// Every method returns after all jobs were issued. Writes run on a context
// detached from the caller so a cancelled request does not stop them half way.
type Coordinator struct {
	d Dispatcher
}

func NewCoordinator(d Dispatcher) *Coordinator {
	safe.MustNotNil(d, "dispatcher")
	return &Coordinator{d: d}
}

func (c *Coordinator) dispatch(ctx context.Context, conversationID string, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}
	return c.d.Dispatch(context.WithoutCancel(ctx), conversationID, jobs)
}

func preview(m *convmodel.Message) *model.LastMessage {
	if m == nil {
		return nil
	}
	return &model.LastMessage{Index: m.Index, Sender: m.Sender, Content: m.Content, SentAt: m.SentAt}
}

func upsertJob(username string, conv *convmodel.Conversation, last *convmodel.Message) Job {
	return Job{
		Kind:           JobUpsert,
		Username:       username,
		ConversationID: conv.ID,
		Name:           conv.Name,
		Participants:   conv.Participants,
		IsGroup:        conv.IsGroup,
		CreatedAt:      conv.CreatedAt,
		LastMessage:    preview(last),
	}
}

// OnCreate gives every participant a fresh row.
func (c *Coordinator) OnCreate(ctx context.Context, conv *convmodel.Conversation) error {
	jobs := make([]Job, 0, len(conv.Participants))
	for _, u := range conv.Participants {
		jobs = append(jobs, upsertJob(u, conv, nil))
	}
	return c.dispatch(ctx, conv.ID, jobs)
}

func (c *Coordinator) OnRename(ctx context.Context, conv *convmodel.Conversation) error {
	jobs := make([]Job, 0, len(conv.Participants))
	for _, u := range conv.Participants {
		jobs = append(jobs, Job{Kind: JobName, Username: u, ConversationID: conv.ID, Name: conv.Name})
	}
	return c.dispatch(ctx, conv.ID, jobs)
}

func participantJobs(conv *convmodel.Conversation, users []string) []Job {
	jobs := make([]Job, 0, len(users))
	for _, u := range users {
		jobs = append(jobs, Job{Kind: JobParticipants, Username: u, ConversationID: conv.ID, Participants: conv.Participants})
	}
	return jobs
}

// OnAddParticipant refreshes the participant list of existing members and
// writes a complete row, including the latest message, for the new member.
// conv is the state after the add.
func (c *Coordinator) OnAddParticipant(ctx context.Context, conv *convmodel.Conversation, added string, last *convmodel.Message) error {
	jobs := participantJobs(conv, convmodel.Without(conv.Participants, added))
	jobs = append(jobs, upsertJob(added, conv, last))
	return c.dispatch(ctx, conv.ID, jobs)
}

// OnPreview moves one user's preview. It repairs a row written from a last
// message that was already superseded.
func (c *Coordinator) OnPreview(ctx context.Context, conversationID, username string, m *convmodel.Message) error {
	if m == nil {
		return nil
	}
	return c.dispatch(ctx, conversationID, []Job{{Kind: JobLastMessage, Username: username, ConversationID: conversationID, LastMessage: preview(m)}})
}

// OnRemoveParticipant updates the remaining members and the removed user's
// own row. conv is the state after the removal.
func (c *Coordinator) OnRemoveParticipant(ctx context.Context, conv *convmodel.Conversation, removed string) error {
	users := append(append([]string{}, conv.Participants...), removed)
	return c.dispatch(ctx, conv.ID, participantJobs(conv, users))
}

// OnMessage moves the preview for the sender and every receiver.
func (c *Coordinator) OnMessage(ctx context.Context, conversationID string, m *convmodel.Message) error {
	lm := preview(m)
	users := append([]string{m.Sender}, m.Receivers...)
	jobs := make([]Job, 0, len(users))
	for _, u := range convmodel.Dedupe(users) {
		jobs = append(jobs, Job{Kind: JobLastMessage, Username: u, ConversationID: conversationID, LastMessage: lm})
	}
	return c.dispatch(ctx, conversationID, jobs)
}
