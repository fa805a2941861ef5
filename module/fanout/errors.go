package fanout

import (
	"sort"
	"strings"

	"ChatCore/tools/errs"
)

// PartialFailure reports the users whose projection write failed. The
// conversation write it follows has already been applied.
type PartialFailure struct {
	ConversationID string
	Failed         []string
	Err            error
}

func (e *PartialFailure) Error() string {
	return errs.ErrPartialFanout.Error() + " conversationId=" + e.ConversationID +
		" failed=[" + strings.Join(e.Failed, ",") + "]: " + e.Err.Error()
}

// Unwrap puts the coded sentinel first so errs.Code reports PartialFanout.
func (e *PartialFailure) Unwrap() []error {
	return []error{errs.ErrPartialFanout, e.Err}
}

func newPartialFailure(conversationID string, failed []string, err error) *PartialFailure {
	sort.Strings(failed)
	return &PartialFailure{ConversationID: conversationID, Failed: failed, Err: err}
}
