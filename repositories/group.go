//go:generate go run go.uber.org/mock/mockgen -source=group.go -destination=../mocks/mock_group_repository.go -package=mocks
package repositories

import (
	"chatline/apperrors"
	"chatline/domain"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IGroupRepository interface {
	Create(group domain.Group) error
	Get(id string) (domain.Group, error)
	Update(group domain.Group) error
	Delete(id string) error
	List() ([]domain.Group, error)
}

type GroupRepository struct {
	db *badger.DB
}

func NewGroupRepository(db *badger.DB) GroupRepository {
	return GroupRepository{db: db}
}

type diskGroup struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	Members     []string  `json:"members"`
	Admins      []string  `json:"admins"`
	CreatedAt   time.Time `json:"created_at"`
}

func groupKey(id string) []byte {
	return []byte("grp:" + id)
}

func (g GroupRepository) Create(group domain.Group) error {
	bytes, err := json.Marshal(fromDomainGroup(group))
	if err != nil {
		return err
	}
	return g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(groupKey(group.ID), bytes)
	})
}

func (g GroupRepository) Get(id string) (domain.Group, error) {
	var dg diskGroup
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(groupKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &dg)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Group{}, fmt.Errorf("%w: group %s", apperrors.ErrNotFound, id)
	}
	if err != nil {
		return domain.Group{}, err
	}
	return toDomainGroup(dg), nil
}

// Update overwrites the stored record. Callers hold the per-group lock, so the
// blind write cannot lose a concurrent mutation.
func (g GroupRepository) Update(group domain.Group) error {
	bytes, err := json.Marshal(fromDomainGroup(group))
	if err != nil {
		return err
	}
	return g.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(groupKey(group.ID)); err != nil {
			return err
		}
		return txn.Set(groupKey(group.ID), bytes)
	})
}

func (g GroupRepository) Delete(id string) error {
	err := g.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(groupKey(id)); err != nil {
			return err
		}
		return txn.Delete(groupKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: group %s", apperrors.ErrNotFound, id)
	}
	return err
}

func (g GroupRepository) List() ([]domain.Group, error) {
	var groups []domain.Group
	err := g.db.View(func(txn *badger.Txn) error {
		prefix := []byte("grp:")
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var dg diskGroup
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &dg)
			}); err != nil {
				return err
			}
			groups = append(groups, toDomainGroup(dg))
		}
		return nil
	})
	return groups, err
}

func fromDomainGroup(g domain.Group) diskGroup {
	return diskGroup{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Avatar:      g.Avatar,
		Members:     g.Members,
		Admins:      g.Admins,
		CreatedAt:   g.CreatedAt,
	}
}

func toDomainGroup(dg diskGroup) domain.Group {
	return domain.Group{
		ID:          dg.ID,
		Name:        dg.Name,
		Description: dg.Description,
		Avatar:      dg.Avatar,
		Members:     dg.Members,
		Admins:      dg.Admins,
		CreatedAt:   dg.CreatedAt,
	}
}
