// Package store provides the persistence collaborator backing
// notifications and group membership lookups. Records live in BadgerDB;
// the rest of the system only sees the simple success/failure contract.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/studysync/coordination-platform/pkg/logger"
)

// Notification is a persisted notification record for one user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// Store wraps the BadgerDB handle.
type Store struct {
	db  *badger.DB
	log *logger.Logger
}

// Open opens (or creates) the store at path.
func Open(path string, log *logger.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// OpenInMemory opens an ephemeral store. Intended for tests.
func OpenInMemory(log *logger.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func notificationKey(userID string, createdAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("notification:%s:%d:%s", userID, createdAt.UnixNano(), id))
}

func groupMembersKey(groupID string) []byte {
	return []byte("group:members:" + groupID)
}

func userGroupsKey(userID string) []byte {
	return []byte("user:groups:" + userID)
}

// CreateNotification persists a notification for a user. The ID and
// CreatedAt fields are assigned here when unset.
func (s *Store) CreateNotification(n Notification) (Notification, error) {
	if n.ID == "" {
		n.ID = uuid.Must(uuid.NewV7()).String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(n)
	if err != nil {
		return Notification{}, fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(notificationKey(n.UserID, n.CreatedAt, n.ID), data)
	})
	if err != nil {
		return Notification{}, fmt.Errorf("failed to persist notification: %w", err)
	}
	return n, nil
}

// NotificationsFor returns a user's notifications in creation order.
func (s *Store) NotificationsFor(userID string) ([]Notification, error) {
	var out []Notification
	prefix := []byte("notification:" + userID + ":")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var n Notification
				if err := json.Unmarshal(v, &n); err != nil {
					return err
				}
				out = append(out, n)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}
	return out, nil
}

// AddGroupMember records userID as a member of groupID and indexes the
// group under the user for negotiation-time scoping.
func (s *Store) AddGroupMember(groupID, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := appendUnique(txn, groupMembersKey(groupID), userID); err != nil {
			return err
		}
		return appendUnique(txn, userGroupsKey(userID), groupID)
	})
}

// RemoveGroupMember removes userID from groupID.
func (s *Store) RemoveGroupMember(groupID, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := removeValue(txn, groupMembersKey(groupID), userID); err != nil {
			return err
		}
		return removeValue(txn, userGroupsKey(userID), groupID)
	})
}

// GroupMembers returns the user ids belonging to a group.
func (s *Store) GroupMembers(groupID string) ([]string, error) {
	return s.readList(groupMembersKey(groupID))
}

// GroupsFor returns the group channel ids a user belongs to.
func (s *Store) GroupsFor(userID string) ([]string, error) {
	return s.readList(userGroupsKey(userID))
}

func (s *Store) readList(key []byte) ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &out)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read list: %w", err)
	}
	return out, nil
}

func appendUnique(txn *badger.Txn, key []byte, value string) error {
	list, err := readListTxn(txn, key)
	if err != nil {
		return err
	}
	for _, v := range list {
		if v == value {
			return nil
		}
	}
	list = append(list, value)
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func removeValue(txn *badger.Txn, key []byte, value string) error {
	list, err := readListTxn(txn, key)
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, v := range list {
		if v != value {
			kept = append(kept, v)
		}
	}
	data, err := json.Marshal(kept)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func readListTxn(txn *badger.Txn, key []byte) ([]string, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []string
	err = item.Value(func(v []byte) error {
		return json.Unmarshal(v, &list)
	})
	return list, err
}
