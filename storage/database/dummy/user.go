package dummydb

import (
	"context"
	"strings"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, *u)
	}
	return users
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}

	for _, usr := range repo.query() {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr.ID = newID()
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.table[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}

	for _, usr := range repo.query() {
		switch {
		case filter.Username != "":
			if usr.Username == filter.Username {
				return usr, nil
			}
		case filter.Email != "":
			if usr.Email == filter.Email {
				return usr, nil
			}
		case filter.UsernameOrEmail != "":
			if usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0)
	for _, u := range repo.query() {
		if filter.Search != "" && !(containsFold(u.Name, filter.Search) ||
			containsFold(u.Username, filter.Search) || containsFold(u.Email, filter.Search)) {
			continue
		}
		if len(filter.Roles) > 0 && !hasAnyRole(u, filter.Roles) {
			continue
		}
		if filter.IsActive != nil && u.IsActive != *filter.IsActive {
			continue
		}
		if filter.SchoolCode != "" && u.SchoolCode != filter.SchoolCode {
			continue
		}
		if filter.Name != "" && u.Name != filter.Name {
			continue
		}
		if filter.EmailPrefix != "" && !strings.HasPrefix(u.Email, filter.EmailPrefix) {
			continue
		}
		if !inRange(u.CreatedAt, filter.CreatedFrom, filter.CreatedTo) {
			continue
		}
		users = append(users, u)
	}

	sortItems(users, ordering, func(u user.User, field string) string {
		switch field {
		case "name":
			return u.Name
		case "username":
			return u.Username
		case "email":
			return u.Email
		case "is_active":
			return boolKey(u.IsActive)
		case "created_at":
			return timeKey(u.CreatedAt)
		case "updated_at":
			return timeKey(u.UpdatedAt)
		case "last_login":
			return timeKey(u.LastLogin)
		}
		return ""
	})
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) DeleteUsers(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func (repo *userRepository) CountUsersByRole(_ context.Context) ([]user.RoleCount, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	counts := make(map[string]int)
	for _, u := range repo.db.table {
		for _, role := range u.Roles {
			counts[role]++
		}
	}
	res := make([]user.RoleCount, 0, len(counts))
	for role, n := range counts {
		res = append(res, user.RoleCount{Role: role, Count: n})
	}
	return res, nil
}

func hasAnyRole(u user.User, roles []string) bool {
	for _, r := range roles {
		if u.RoleStartsWith(r) {
			return true
		}
	}
	return false
}
