package gateway

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/libersoft-org/yellow-server-module-messages/domain"
	"github.com/libersoft-org/yellow-server-module-messages/repositories"
)

type messageSendParams struct {
	Address string `json:"address" validate:"required"`
	Message string `json:"message" validate:"required"`
	Format  string `json:"format"`
	UID     string `json:"uid"`
}

func (g *Gateway) messageSend(c *commandContext) Response {
	var params messageSendParams
	if err := g.decodeParams(c, &params); err != nil {
		return Response{Error: 1, Message: "Address or message is missing"}
	}
	format := domain.MessageFormat(params.Format)
	if params.Format == "" {
		format = domain.FormatPlaintext
	}
	if !format.Valid() {
		return Response{Error: 2, Message: "Invalid message format: " + params.Format}
	}
	if _, _, ok := SplitAddress(params.Address); !ok {
		return Response{Error: 3, Message: "Invalid address format"}
	}
	recipientID, err := g.directory.ResolveAddress(params.Address)
	if err != nil {
		return Response{Error: 4, Message: "User not found on this server"}
	}

	uid := params.UID
	if uid == "" {
		uid = uuid.NewString()
	}
	now := time.Now()
	toAddress := NormalizeAddress(params.Address)
	// One mailbox copy per participant; each side owns its seen flag.
	copies := []domain.Message{
		{UserID: c.userID, UID: uid, AddressFrom: c.userAddress, AddressTo: toAddress, Message: params.Message, Format: format, Created: now},
		{UserID: recipientID, UID: uid, AddressFrom: c.userAddress, AddressTo: toAddress, Message: params.Message, Format: format, Created: now},
	}
	if recipientID == c.userID {
		// Self-message: a single mailbox row, not two.
		copies = copies[:1]
	}
	for _, row := range copies {
		if err := g.messages.Create(row); err != nil {
			g.log.Error("failed to store message", "uid", uid, "user_id", row.UserID, "error", err)
			return Response{Error: 5, Message: "Message could not be stored"}
		}
	}

	payload := map[string]any{
		"uid":         uid,
		"addressFrom": c.userAddress,
		"addressTo":   toAddress,
		"message":     params.Message,
		"format":      format,
		"created":     now,
	}
	g.notifier.NotifyUser(recipientID, "new_message", payload)
	if recipientID != c.userID {
		// Other sessions of the sender mirror the outgoing message too.
		g.notifier.NotifyUser(c.userID, "new_message", payload)
	}
	return Response{Error: 0, Message: "Message sent", Data: map[string]any{"uid": uid}}
}

type messageSeenParams struct {
	UID string `json:"uid" validate:"required"`
}

func (g *Gateway) messageSeen(c *commandContext) Response {
	var params messageSeenParams
	if err := g.decodeParams(c, &params); err != nil {
		return Response{Error: 2, Message: "Message ID is missing"}
	}

	// Two sessions marking the same message race on the read-check-write; the
	// mutex keeps the already-seen answer deterministic.
	g.seenMu.Lock()
	defer g.seenMu.Unlock()

	message, err := g.messages.FindByUID(c.userID, params.UID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return Response{Error: 3, Message: "Wrong message ID"}
		}
		g.log.Error("failed to load message", "uid", params.UID, "error", err)
		return Response{Error: 3, Message: "Wrong message ID"}
	}
	if message.Seen != nil {
		return Response{Error: 4, Message: "Seen flag was already set"}
	}
	message, err = g.messages.MarkSeen(c.userID, params.UID)
	if err != nil {
		g.log.Error("failed to set seen flag", "uid", params.UID, "error", err)
		return Response{Error: 5, Message: "Seen flag could not be set"}
	}

	payload := map[string]any{"uid": message.UID, "seen": message.Seen}
	if senderID, err := g.directory.ResolveAddress(message.AddressFrom); err == nil && senderID != c.userID {
		g.notifier.NotifyUser(senderID, "seen_message", payload)
	}
	// Other sessions of this user clear their unread badge.
	g.notifier.NotifyUser(c.userID, "seen_inbox_message", payload)
	return Response{Error: 0, Message: "Seen flag set"}
}

type messagesListParams struct {
	Address     string `json:"address" validate:"required"`
	BeforeNanos int64  `json:"beforeNanos" validate:"gte=0"`
	Limit       int    `json:"limit" validate:"gte=0,lte=500"`
}

func (g *Gateway) messagesList(c *commandContext) Response {
	var params messagesListParams
	if err := g.decodeParams(c, &params); err != nil {
		return Response{Error: 1, Message: "Address is missing"}
	}
	if params.Limit == 0 {
		params.Limit = 50
	}
	messages, err := g.messages.ListConversation(c.userID, c.userAddress, NormalizeAddress(params.Address), params.BeforeNanos, params.Limit)
	if err != nil {
		g.log.Error("failed to list conversation", "address", params.Address, "error", err)
		return Response{Error: 2, Message: "Messages could not be listed"}
	}
	return Response{Error: 0, Data: map[string]any{"messages": messages}}
}

func (g *Gateway) conversationsList(c *commandContext) Response {
	conversations, err := g.messages.ListConversations(c.userID, c.userAddress)
	if err != nil {
		g.log.Error("failed to list conversations", "user_id", c.userID, "error", err)
		return Response{Error: 1, Message: "Conversations could not be listed"}
	}
	return Response{Error: 0, Data: map[string]any{"conversations": conversations}}
}
