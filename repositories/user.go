//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"dm-lab/domain"
	"dm-lab/errors"
)

type IUserRepository interface {
	CreateUser(ctx context.Context, fullName, email, hashedPassword string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (StoredUser, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	UpdateProfilePic(ctx context.Context, id, url string) error
	ListUsersExcept(ctx context.Context, id string) ([]domain.User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// StoredUser is the repository-layer representation, the only place the
// password hash is visible.
type StoredUser struct {
	ID           string `json:"id"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	ProfilePic   string `json:"profile_pic,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

func userKey(email string) []byte { return []byte("user:" + email) }
func userIDKey(id string) []byte  { return []byte("userid:" + id) }

// CreateUser persists the user keyed by email, plus an id index for
// token-based lookups. Fails when the email is taken.
func (u *UserRepository) CreateUser(ctx context.Context, fullName, email, hashedPassword string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	stored := StoredUser{
		ID:           uuid.NewString(),
		FullName:     fullName,
		Email:        email,
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().Unix(),
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return domain.User{}, err
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(email)); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(userKey(email), data); err != nil {
			return err
		}
		return txn.Set(userIDKey(stored.ID), []byte(email))
	})
	if err != nil {
		return domain.User{}, err
	}
	return toUser(stored), nil
}

func (u *UserRepository) GetUserByEmail(ctx context.Context, email string) (StoredUser, error) {
	if err := ctx.Err(); err != nil {
		return StoredUser{}, err
	}
	var stored StoredUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(email))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return StoredUser{}, errors.ErrNotFound
		}
		return StoredUser{}, err
	}
	return stored, nil
}

func (u *UserRepository) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	var stored StoredUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userIDKey(id))
		if err != nil {
			return err
		}
		var email []byte
		if err := item.Value(func(val []byte) error {
			email = append([]byte{}, val...)
			return nil
		}); err != nil {
			return err
		}
		main, err := txn.Get(userKey(string(email)))
		if err != nil {
			return err
		}
		return main.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return domain.User{}, errors.ErrNotFound
		}
		return domain.User{}, err
	}
	return toUser(stored), nil
}

func (u *UserRepository) UpdateProfilePic(ctx context.Context, id, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := u.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userIDKey(id))
		if err != nil {
			return err
		}
		var email []byte
		if err := item.Value(func(val []byte) error {
			email = append([]byte{}, val...)
			return nil
		}); err != nil {
			return err
		}
		main, err := txn.Get(userKey(string(email)))
		if err != nil {
			return err
		}
		var stored StoredUser
		if err := main.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		}); err != nil {
			return err
		}
		stored.ProfilePic = url
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return txn.Set(userKey(stored.Email), data)
	})
	if err == badger.ErrKeyNotFound {
		return errors.ErrNotFound
	}
	return err
}

// ListUsersExcept returns every account except the caller's, for the
// contact sidebar.
func (u *UserRepository) ListUsersExcept(ctx context.Context, id string) ([]domain.User, error) {
	prefix := []byte("user:")
	var stored []StoredUser
	err := u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var account StoredUser
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &account)
			}); err != nil {
				return err
			}
			stored = append(stored, account)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	others := lo.Filter(stored, func(account StoredUser, _ int) bool {
		return account.ID != id
	})
	return lo.Map(others, func(account StoredUser, _ int) domain.User {
		return toUser(account)
	}), nil
}

func toUser(stored StoredUser) domain.User {
	return domain.User{
		ID:         stored.ID,
		FullName:   stored.FullName,
		Email:      stored.Email,
		ProfilePic: stored.ProfilePic,
		CreatedAt:  time.Unix(stored.CreatedAt, 0).UTC(),
	}
}
