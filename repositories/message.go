//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"github.com/libersoft-org/yellow-server-module-messages/domain"
)

var ErrMessageNotFound = errors.New("message not found")

type IMessageRepository interface {
	Create(message domain.Message) error
	FindByUID(userID int64, uid string) (*domain.Message, error)
	MarkSeen(userID int64, uid string) (*domain.Message, error)
	ListConversation(userID int64, selfAddress, otherAddress string, beforeNanos int64, limit int) ([]domain.Message, error)
	ListConversations(userID int64, selfAddress string) ([]domain.Conversation, error)
}

// MessageRepository keeps one row per mailbox copy. The primary key is
// "msg:{userId}:{paddedNanos}:{uid}": the 19-digit zero padding makes a plain
// prefix scan chronological, and the uid suffix disambiguates two messages
// landing on the same nanosecond. A "msguid:{userId}:{uid}" pointer row backs
// uid lookups (seen flags arrive by uid, not by time).
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

func messageKey(userID int64, createdNanos int64, uid string) []byte {
	return []byte(fmt.Sprintf("msg:%d:%019d:%s", userID, createdNanos, uid))
}

func messageUIDKey(userID int64, uid string) []byte {
	return []byte(fmt.Sprintf("msguid:%d:%s", userID, uid))
}

func (r *MessageRepository) Create(message domain.Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message row: %w", err)
	}
	primary := messageKey(message.UserID, message.Created.UnixNano(), message.UID)
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, data); err != nil {
			return err
		}
		return txn.Set(messageUIDKey(message.UserID, message.UID), primary)
	})
}

func (r *MessageRepository) FindByUID(userID int64, uid string) (*domain.Message, error) {
	var message *domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		found, err := r.getByUID(txn, userID, uid)
		if err != nil {
			return err
		}
		message = found
		return nil
	})
	return message, err
}

// MarkSeen stamps the seen flag if it is not already set and returns the
// current row either way; the caller decides whether an already-set flag is an
// error.
func (r *MessageRepository) MarkSeen(userID int64, uid string) (*domain.Message, error) {
	var message *domain.Message
	err := r.db.Update(func(txn *badger.Txn) error {
		found, err := r.getByUID(txn, userID, uid)
		if err != nil {
			return err
		}
		if found.Seen == nil {
			now := time.Now()
			found.Seen = &now
			data, err := json.Marshal(found)
			if err != nil {
				return fmt.Errorf("marshal message row: %w", err)
			}
			if err := txn.Set(messageKey(userID, found.Created.UnixNano(), uid), data); err != nil {
				return err
			}
		}
		message = found
		return nil
	})
	return message, err
}

func (r *MessageRepository) getByUID(txn *badger.Txn, userID int64, uid string) (*domain.Message, error) {
	pointer, err := txn.Get(messageUIDKey(userID, uid))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("message %s for user %d: %w", uid, userID, ErrMessageNotFound)
	}
	if err != nil {
		return nil, err
	}
	primary, err := pointer.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	item, err := txn.Get(primary)
	if err != nil {
		return nil, err
	}
	message := &domain.Message{}
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, message) }); err != nil {
		return nil, err
	}
	return message, nil
}

// ListConversation returns up to limit messages of one peer thread, oldest
// first, ending strictly before beforeNanos (0 means "from the newest").
func (r *MessageRepository) ListConversation(userID int64, selfAddress, otherAddress string, beforeNanos int64, limit int) ([]domain.Message, error) {
	if beforeNanos <= 0 {
		beforeNanos = time.Now().Add(time.Hour).UnixNano()
	}
	var messages []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(fmt.Sprintf("msg:%d:", userID))
		// Seek one past every key below beforeNanos; ';' sorts after ':'.
		seek := []byte(fmt.Sprintf("msg:%d:%019d;", userID, beforeNanos-1))
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var message domain.Message
				if err := json.Unmarshal(v, &message); err != nil {
					return fmt.Errorf("unmarshal message row: %w", err)
				}
				if messageBelongsToThread(message, selfAddress, otherAddress) {
					messages = append(messages, message)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Reverse(messages), nil
}

func messageBelongsToThread(message domain.Message, selfAddress, otherAddress string) bool {
	return (message.AddressFrom == selfAddress && message.AddressTo == otherAddress) ||
		(message.AddressFrom == otherAddress && message.AddressTo == selfAddress)
}

// ListConversations aggregates the user's mailbox into one summary per peer,
// most recently active first.
func (r *MessageRepository) ListConversations(userID int64, selfAddress string) ([]domain.Conversation, error) {
	summaries := make(map[string]*domain.Conversation)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(fmt.Sprintf("msg:%d:", userID))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var message domain.Message
				if err := json.Unmarshal(v, &message); err != nil {
					return fmt.Errorf("unmarshal message row: %w", err)
				}
				other := message.AddressFrom
				if other == selfAddress {
					other = message.AddressTo
				}
				summary, ok := summaries[other]
				if !ok {
					summary = &domain.Conversation{Address: other}
					summaries[other] = summary
				}
				// Keys iterate oldest to newest, so the last row wins.
				summary.LastMessageText = message.Message
				summary.LastMessageDate = message.Created
				if message.Seen == nil && message.AddressTo == selfAddress {
					summary.UnreadCount++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	conversations := lo.Map(lo.Values(summaries), func(c *domain.Conversation, _ int) domain.Conversation { return *c })
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastMessageDate.After(conversations[j].LastMessageDate)
	})
	return conversations, nil
}
