//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chatline/apperrors"
	"chatline/domain"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Store(message domain.Message) error
	Get(id uuid.UUID) (domain.Message, error)
	MarkRead(id uuid.UUID) (domain.Message, bool, error)
	ListGroup(groupID string) ([]domain.Message, error)
	ListDirect(userA, userB string) ([]domain.Message, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// diskMessage is the stored representation of a message.
type diskMessage struct {
	ID         uuid.UUID `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id,omitempty"`
	GroupID    string    `json:"group_id,omitempty"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists a message under two keys:
//  1. "msg:{scope}:{timestamp_padded}:{uuid}" — the 19-digit zero padding makes
//     a prefix scan return messages in chronological order, and the UUID acts
//     as a collision disconnector if two messages land on the same nanosecond.
//  2. "msgid:{uuid}" — a pointer to the primary key so read receipts can
//     resolve a message by id alone.
func (m MessageRepository) Store(message domain.Message) error {
	primary := primaryKey(message)
	bytes, err := json.Marshal(fromDomain(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, bytes); err != nil {
			return err
		}
		return txn.Set(pointerKey(message.ID), primary)
	})
}

// Get resolves a message by id through the pointer index.
func (m MessageRepository) Get(id uuid.UUID) (domain.Message, error) {
	var dm diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		return loadByPointer(txn, id, &dm)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, fmt.Errorf("%w: message %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Message{}, err
	}
	return toDomain(dm), nil
}

// MarkRead flips the read flag inside one transaction and reports whether a
// false→true transition actually happened. The flag never goes back.
func (m MessageRepository) MarkRead(id uuid.UUID) (domain.Message, bool, error) {
	var dm diskMessage
	var transitioned bool
	err := m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(pointerKey(id))
		if err != nil {
			return err
		}
		var primary []byte
		if err = item.Value(func(val []byte) error {
			primary = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		rec, err := txn.Get(primary)
		if err != nil {
			return err
		}
		if err = rec.Value(func(val []byte) error {
			return json.Unmarshal(val, &dm)
		}); err != nil {
			return err
		}
		if dm.Read {
			return nil
		}
		dm.Read = true
		transitioned = true
		bytes, err := json.Marshal(dm)
		if err != nil {
			return err
		}
		return txn.Set(primary, bytes)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, false, fmt.Errorf("%w: message %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Message{}, false, err
	}
	return toDomain(dm), transitioned, nil
}

// ListGroup returns a group's messages ordered by creation time ascending.
func (m MessageRepository) ListGroup(groupID string) ([]domain.Message, error) {
	return m.scan(fmt.Sprintf("msg:g:%s:", groupID))
}

// ListDirect returns the conversation between two users, ascending. The scope
// key is order-independent, so either party sees the same history.
func (m MessageRepository) ListDirect(userA, userB string) ([]domain.Message, error) {
	return m.scan(fmt.Sprintf("msg:d:%s:", pairKey(userA, userB)))
}

func (m MessageRepository) scan(prefixStr string) ([]domain.Message, error) {
	var diskMessages []diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var dm diskMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &dm)
			}); err != nil {
				return err
			}
			diskMessages = append(diskMessages, dm)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(diskMessages, func(dm diskMessage, _ int) domain.Message {
		return toDomain(dm)
	}), nil
}

func loadByPointer(txn *badger.Txn, id uuid.UUID, dm *diskMessage) error {
	item, err := txn.Get(pointerKey(id))
	if err != nil {
		return err
	}
	var primary []byte
	if err = item.Value(func(val []byte) error {
		primary = append([]byte(nil), val...)
		return nil
	}); err != nil {
		return err
	}
	rec, err := txn.Get(primary)
	if err != nil {
		return err
	}
	return rec.Value(func(val []byte) error {
		return json.Unmarshal(val, dm)
	})
}

func primaryKey(message domain.Message) []byte {
	scope := "g:" + message.GroupID
	if message.IsDirect() {
		scope = "d:" + pairKey(message.SenderID, message.ReceiverID)
	}
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", scope, message.CreatedAt.UnixNano(), message.ID))
}

func pointerKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

// pairKey folds the two participants of a direct conversation into one scope,
// smaller id first.
func pairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}

func fromDomain(m domain.Message) diskMessage {
	return diskMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		GroupID:    m.GroupID,
		Content:    m.Content,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt,
	}
}

func toDomain(dm diskMessage) domain.Message {
	return domain.Message{
		ID:         dm.ID,
		SenderID:   dm.SenderID,
		ReceiverID: dm.ReceiverID,
		GroupID:    dm.GroupID,
		Content:    dm.Content,
		Read:       dm.Read,
		CreatedAt:  dm.CreatedAt,
	}
}
