package domain

import "time"

type MessageFormat string

const (
	FormatPlaintext MessageFormat = "plaintext"
	FormatHTML      MessageFormat = "html"
)

func (f MessageFormat) Valid() bool {
	return f == FormatPlaintext || f == FormatHTML
}

// Message is one mailbox copy of a direct message. Sending writes one copy per
// participant so each side controls its own seen flag and deletion.
type Message struct {
	UserID      int64         `json:"userId"`
	UID         string        `json:"uid"`
	AddressFrom string        `json:"addressFrom"`
	AddressTo   string        `json:"addressTo"`
	Message     string        `json:"message"`
	Format      MessageFormat `json:"format"`
	Seen        *time.Time    `json:"seen"`
	Created     time.Time     `json:"created"`
}

// Conversation summarizes one peer thread for the conversation list.
type Conversation struct {
	Address         string    `json:"address"`
	LastMessageText string    `json:"lastMessageText"`
	LastMessageDate time.Time `json:"lastMessageDate"`
	UnreadCount     int       `json:"unreadCount"`
}
