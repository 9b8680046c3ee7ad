package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rryowa/sessiongate/internal/models"
	"github.com/rryowa/sessiongate/internal/storage"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: make(map[string]models.User),
	}
}

func (r *UserRepository) CreateUser(_ context.Context, user models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Username, user.Username) {
			return nil, storage.ErrUserExists
		}
	}

	user.Roles = slices.Clone(user.Roles)
	r.users[user.ID] = user
	return &user, nil
}

func (r *UserRepository) GetUserByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	user.Roles = slices.Clone(user.Roles)
	return &user, nil
}

func (r *UserRepository) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if strings.EqualFold(user.Username, username) {
			user.Roles = slices.Clone(user.Roles)
			return &user, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (r *UserRepository) UpdateUser(_ context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return storage.ErrUserNotFound
	}
	user.Roles = slices.Clone(user.Roles)
	r.users[user.ID] = user
	return nil
}

func (r *UserRepository) DeleteUser(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return storage.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

// ListUsers returns every user ordered by creation time, then username.
func (r *UserRepository) ListUsers(_ context.Context) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		u.Roles = slices.Clone(u.Roles)
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Username < users[j].Username
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}
