package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/user"
)

var userColumns = []string{
	"id", "name", "username", "email", "phone", "school_code", "subject",
	"is_active", "roles", "password_hash", "created_at", "updated_at", "last_login",
}

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	Phone        string         `db:"phone"`
	SchoolCode   string         `db:"school_code"`
	Subject      string         `db:"subject"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash null.Bytes     `db:"password_hash"`
	CreatedAt    null.Time      `db:"created_at"`
	UpdatedAt    null.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		Phone:        usr.Phone,
		SchoolCode:   usr.SchoolCode,
		Subject:      usr.Subject,
		IsActive:     usr.IsActive,
		Roles:        roles,
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		CreatedAt:    null.NewTime(usr.CreatedAt.UTC(), !usr.CreatedAt.IsZero()),
		UpdatedAt:    null.NewTime(usr.UpdatedAt.UTC(), !usr.UpdatedAt.IsZero()),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (row userRow) user() user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		Phone:        row.Phone,
		SchoolCode:   row.SchoolCode,
		Subject:      row.Subject,
		IsActive:     row.IsActive,
		Roles:        row.Roles,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
		LastLogin:    row.LastLogin.Time,
	}
}

func (row userRow) values() []interface{} {
	return []interface{}{
		row.ID, row.Name, row.Username, row.Email, row.Phone, row.SchoolCode, row.Subject,
		row.IsActive, row.Roles, row.PasswordHash, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	}
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) user.Repository {
	return &userRepository{baseRepository{exec: exec}}
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	if username == "" && email == "" {
		return nil
	}
	cond := sq.Or{}
	if username != "" {
		cond = append(cond, sq.Eq{"username": username})
	}
	if email != "" {
		cond = append(cond, sq.Eq{"email": email})
	}
	query := psql.Select("username", "email").From(`"user"`).Where(cond)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		query = query.Where(sq.NotEq{"id": ids})
	}

	var rows []userRow
	if err := repo.selectAll(ctx, repo.exec, &rows, query.Limit(2)); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, row := range rows {
		if username != "" && row.Username.String == username {
			return user.ErrUsernameExists
		}
		if email != "" && row.Email.String == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	query := psql.Insert(`"user"`).Columns(userColumns...).Values(toUserRow(usr).values()...)
	if _, err := repo.run(ctx, repo.exec, query); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	query := psql.Select(userColumns...).From(`"user"`).Limit(1)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		query = query.Where(sq.Eq{"id": filter.ID})
	case filter.Username != "":
		query = query.Where(sq.Eq{"username": filter.Username})
	case filter.Email != "":
		query = query.Where(sq.Eq{"email": filter.Email})
	case filter.UsernameOrEmail != "":
		query = query.Where(sq.Or{sq.Eq{"username": filter.UsernameOrEmail}, sq.Eq{"email": filter.UsernameOrEmail}})
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.get(ctx, repo.exec, &row, query); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "selecting user")
	}
	return row.user(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	query := psql.Select(userColumns...).From(`"user"`)

	// users with Name, Username or Email matching the search keyword
	if filter.Search != "" {
		val := ilike(filter.Search)
		query = query.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"username": val}, sq.ILike{"email": val}})
	}
	// users with any role that starts with any of the provided roles
	if len(filter.Roles) > 0 {
		roleCond := sq.Or{}
		for _, role := range filter.Roles {
			roleCond = append(roleCond, sq.Expr(
				`id IN (SELECT id FROM "user", UNNEST(roles) user_role WHERE user_role ILIKE ?)`, likePrefix(role)))
		}
		query = query.Where(roleCond)
	}
	if filter.IsActive != nil {
		query = query.Where(sq.Eq{"is_active": *filter.IsActive})
	}
	if filter.SchoolCode != "" {
		query = query.Where(sq.Eq{"school_code": filter.SchoolCode})
	}
	if filter.Name != "" {
		query = query.Where(sq.Eq{"name": filter.Name})
	}
	if filter.EmailPrefix != "" {
		query = query.Where(sq.Like{"email": likePrefix(filter.EmailPrefix)})
	}
	if !filter.CreatedFrom.IsZero() {
		query = query.Where(sq.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
	}
	if !filter.CreatedTo.IsZero() {
		query = query.Where(sq.LtOrEq{"created_at": filter.CreatedTo.UTC()})
	}
	query = orderBy(query, ordering, "created_at DESC")

	var rows []userRow
	if err := repo.selectAll(ctx, repo.exec, &rows, query); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := toUserRow(usr)
	query := psql.Update(`"user"`).
		SetMap(map[string]interface{}{
			"name":          row.Name,
			"username":      row.Username,
			"email":         row.Email,
			"phone":         row.Phone,
			"school_code":   row.SchoolCode,
			"subject":       row.Subject,
			"is_active":     row.IsActive,
			"roles":         row.Roles,
			"password_hash": row.PasswordHash,
			"updated_at":    row.UpdatedAt,
			"last_login":    row.LastLogin,
		}).
		Where(sq.Eq{"id": usr.ID})

	n, err := repo.run(ctx, repo.exec, query)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) DeleteUsers(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := repo.run(ctx, repo.exec, psql.Delete(`"user"`).Where(sq.Eq{"id": ids})); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

func (repo userRepository) CountUsersByRole(ctx context.Context) ([]user.RoleCount, error) {
	query := psql.Select("user_role AS role", "COUNT(*) AS count").
		From(`"user", UNNEST(roles) user_role`).
		GroupBy("user_role").
		OrderBy("user_role")

	counts := make([]user.RoleCount, 0)
	if err := repo.selectAll(ctx, repo.exec, &counts, query); err != nil {
		return nil, errors.Wrap(err, "counting users by role")
	}
	return counts, nil
}
