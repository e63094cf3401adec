package school_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/school"
	"github.com/classnote/classnote/core/user"
	emailsvc "github.com/classnote/classnote/services/email"
	logsvc "github.com/classnote/classnote/services/logger"
	dummydb "github.com/classnote/classnote/storage/database/dummy"
	testutil "github.com/classnote/classnote/tests"
)

func setup(t *testing.T) (school.Service, user.Repository) {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)

	conf := core.NewTestConfig()
	usrRepo := dummydb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleServiceMock(conf, logsvc.NopLogger{}), conf)
	return school.NewService(nil, dummydb.NewSchoolRepository(db), usrSvc, logsvc.NopLogger{}), usrRepo
}

func TestService_ImportAndSearch(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	table := core.Table{
		Headers: []string{"시도교육청", "학교명", "나이스학교코드", "주소"},
		Rows: [][]string{
			{"서울특별시교육청", "서울고등학교", "7010057.0", "서초구"},
			{"서울특별시교육청", "서울여자고등학교", "7010058", "마포구"},
			{"부산광역시교육청", "", "7150058", ""},
			{"서울특별시교육청", "서울고등학교", "7010057", ""},
		},
	}
	res, err := svc.Import(ctx, table)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, []core.RowError{
		{Line: 4, Reason: "missing school code or name"},
		{Line: 5, Reason: "duplicate school code 7010057"},
	}, res.Errors)

	res, err = svc.Import(ctx, core.Table{Headers: table.Headers, Rows: table.Rows[:2]})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 2, res.Skipped)

	_, err = svc.Import(ctx, core.Table{Headers: []string{"학교명"}})
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))

	sch, err := svc.Get(ctx, "7010057")
	require.NoError(t, err)
	assert.Equal(t, school.School{Code: "7010057", Office: "서울특별시교육청", Name: "서울고등학교", Level: school.LevelHigh}, sch)

	found, err := svc.Search(ctx, "여자")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "7010058", found[0].Code)

	found, err = svc.Search(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestService_InitSubjects(t *testing.T) {
	svc, usrRepo := setup(t)
	ctx := context.Background()

	trimmed := testutil.CreateUser(t, usrRepo, "Kim", "", "kim@test.kr", "pwd", user.TeacherRoles, true)
	trimmed.Subject = "국어 "
	_, err := usrRepo.UpdateUser(ctx, trimmed)
	require.NoError(t, err)
	unknown := testutil.CreateUser(t, usrRepo, "Lee", "", "lee@test.kr", "pwd", user.TeacherRoles, true)
	unknown.Subject = "천문학"
	_, err = usrRepo.UpdateUser(ctx, unknown)
	require.NoError(t, err)

	res, err := svc.InitSubjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, school.DefaultSubjects, res.Created)
	assert.Equal(t, 1, res.Normalized)
	assert.Equal(t, []school.UnknownSubject{{UserID: unknown.ID, Email: "lee@test.kr", Subject: "천문학"}}, res.Unknown)

	subjects, err := svc.Subjects(ctx)
	require.NoError(t, err)
	assert.Len(t, subjects, len(school.DefaultSubjects))

	res, err = svc.InitSubjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, 0, res.Normalized)
}
