package assistant

import (
	"context"
	"errors"

	"greenstorm/pkg/logger"
	"greenstorm/pkg/models"
)

// editLookback bounds how far back the editor searches for the newest
// user message.
const editLookback = 50

var (
	// ErrNoMessages means the thread has no messages at all.
	ErrNoMessages = errors.New("no messages")
	// ErrNoUserMessage means no user message was found in the lookback window.
	ErrNoUserMessage = errors.New("no user message")
)

// DeletedExchange reports what DeleteLastExchange removed.
type DeletedExchange struct {
	UserContent        string
	UserMessageID      string
	AssistantMessageID string
}

// DeleteLastExchange removes the most recent user message and, when the
// message immediately newer than it is an assistant reply, that reply too.
// It returns the deleted user text so callers can resubmit it unchanged
// (try again) or substitute new text (edit).
func (c *Client) DeleteLastExchange(ctx context.Context, threadID string) (DeletedExchange, error) {
	var res DeletedExchange

	msgs, err := c.ListMessages(ctx, threadID, editLookback, "desc")
	if err != nil {
		return res, err
	}
	if len(msgs) == 0 {
		return res, ErrNoMessages
	}

	// msgs is newest-first; the pair is the newest user message plus the
	// assistant message that directly followed it, if any.
	var user, paired *models.Message
	for i := range msgs {
		if msgs[i].Role != models.RoleUser {
			continue
		}
		user = &msgs[i]
		if i > 0 && msgs[i-1].Role == models.RoleAssistant {
			paired = &msgs[i-1]
		}
		break
	}
	if user == nil {
		return res, ErrNoUserMessage
	}

	if err := c.DeleteMessage(ctx, threadID, user.ID); err != nil {
		return res, err
	}
	res.UserContent = user.Content
	res.UserMessageID = user.ID
	if paired != nil {
		if err := c.DeleteMessage(ctx, threadID, paired.ID); err != nil {
			return res, err
		}
		res.AssistantMessageID = paired.ID
	}
	logger.Info("exchange_deleted", "thread", threadID, "user_msg", res.UserMessageID, "assistant_msg", res.AssistantMessageID)
	return res, nil
}
