package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/user"
	sqlxrepos "github.com/classnote/classnote/storage/database/sqlx"
	testutil "github.com/classnote/classnote/tests"
)

func boolPtr(b bool) *bool { return &b }

func TestUserRepository(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := sqlxrepos.NewUserRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	pwd := "Pa$$w0rd"
	admin := testutil.CreateUser(t, repo, "Admin", "admin", "admin@classnote.kr", pwd, []string{user.RoleAdminOwner}, true, now.Add(-3*time.Hour))
	teacher := testutil.CreateUser(t, repo, "Kim", "kim@school.kr", "kim@school.kr", pwd, []string{user.RoleTeacher}, true, now.Add(-2*time.Hour))
	guest := testutil.CreateUser(t, repo, "Lee", "lee@school.kr", "lee@school.kr", pwd, []string{user.RoleGuest}, true, now.Add(-time.Hour))
	stud := testutil.CreateUser(t, repo, "Park", "", "park@student.kr", pwd, []string{user.RoleStudent}, false, now)

	t.Run("uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "admin", ""))
		assert.Equal(t, user.ErrEmailExists, repo.CheckUsernameUniqueness(ctx, "", "park@student.kr"))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "admin", "", admin))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "", ""))
	})

	t.Run("get", func(t *testing.T) {
		tests := []struct {
			name   string
			filter user.GetFilter
			wantID string
		}{
			{"id", user.GetFilter{ID: teacher.ID}, teacher.ID},
			{"username", user.GetFilter{Username: "admin"}, admin.ID},
			{"email", user.GetFilter{Email: "park@student.kr"}, stud.ID},
			{"username or email", user.GetFilter{UsernameOrEmail: "lee@school.kr"}, guest.ID},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				usr, err := repo.GetUser(ctx, tc.filter)
				require.NoError(t, err)
				assert.Equal(t, tc.wantID, usr.ID)
			})
		}

		_, err := repo.GetUser(ctx, user.GetFilter{ID: "not-a-uuid"})
		assert.True(t, core.IsNotFound(err))
		_, err = repo.GetUser(ctx, user.GetFilter{Email: "nobody@classnote.kr"})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("query", func(t *testing.T) {
		tests := []struct {
			name    string
			filter  user.QueryFilter
			wantIDs []string
		}{
			{"all", user.QueryFilter{}, []string{admin.ID, teacher.ID, guest.ID, stud.ID}},
			{"search", user.QueryFilter{Search: "SCHOOL"}, []string{teacher.ID, guest.ID}},
			{"roles", user.QueryFilter{Roles: []string{user.RoleAdmin, user.RoleGuest}}, []string{admin.ID, guest.ID}},
			{"inactive", user.QueryFilter{IsActive: boolPtr(false)}, []string{stud.ID}},
			{"email prefix", user.QueryFilter{EmailPrefix: "kim@"}, []string{teacher.ID}},
			{"email prefix underscore is literal", user.QueryFilter{EmailPrefix: "ki_"}, nil},
			{"email prefix percent is literal", user.QueryFilter{EmailPrefix: "%"}, nil},
			{"search wildcards are literal", user.QueryFilter{Search: "_"}, nil},
			{"created range", user.QueryFilter{CreatedFrom: now.Add(-150 * time.Minute), CreatedTo: now.Add(-30 * time.Minute)}, []string{teacher.ID, guest.ID}},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				users, err := repo.QueryUsers(ctx, tc.filter)
				require.NoError(t, err)
				ids := make([]string, 0, len(users))
				for _, u := range users {
					ids = append(ids, u.ID)
				}
				assert.ElementsMatch(t, tc.wantIDs, ids)
			})
		}

		users, err := repo.QueryUsers(ctx, user.QueryFilter{}, core.DBOrdering{Field: "created_at", Ascending: true})
		require.NoError(t, err)
		require.Len(t, users, 4)
		assert.Equal(t, admin.ID, users[0].ID)
	})

	t.Run("update", func(t *testing.T) {
		guest.Roles = []string{user.RoleTeacher}
		guest.LastLogin = now
		usr, err := repo.UpdateUser(ctx, guest)
		require.NoError(t, err)
		assert.Equal(t, []string{user.RoleTeacher}, usr.Roles)

		got, err := repo.GetUser(ctx, user.GetFilter{ID: guest.ID})
		require.NoError(t, err)
		assert.True(t, got.IsTeacher())
		assert.True(t, got.LastLogin.Equal(now))
		assert.NoError(t, got.CheckPassword(pwd))
	})

	t.Run("count by role", func(t *testing.T) {
		counts, err := repo.CountUsersByRole(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []user.RoleCount{
			{Role: user.RoleAdminOwner, Count: 1},
			{Role: user.RoleTeacher, Count: 2},
			{Role: user.RoleStudent, Count: 1},
		}, counts)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteUsers(ctx, stud.ID))
		_, err := repo.GetUser(ctx, user.GetFilter{ID: stud.ID})
		assert.True(t, core.IsNotFound(err))
	})
}
