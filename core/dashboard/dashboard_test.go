package dashboard_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/activity"
	"github.com/classnote/classnote/core/dashboard"
	"github.com/classnote/classnote/core/student"
	"github.com/classnote/classnote/core/user"
	aisvc "github.com/classnote/classnote/services/ai"
	emailsvc "github.com/classnote/classnote/services/email"
	logsvc "github.com/classnote/classnote/services/logger"
	dummydb "github.com/classnote/classnote/storage/database/dummy"
	testutil "github.com/classnote/classnote/tests"
)

func TestService_Summary(t *testing.T) {
	db, err := dummydb.Open()
	require.NoError(t, err)
	ctx := context.Background()

	conf := core.NewTestConfig()
	logger := logsvc.NopLogger{}
	validate, _ := testutil.NewValidator()
	usrRepo := dummydb.NewUserRepository(db)
	stdRepo := dummydb.NewStudentRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleServiceMock(conf, logger), conf)
	stdSvc := student.NewService(nil, stdRepo, usrSvc, validate, conf, logger)
	actSvc := activity.NewService(nil, dummydb.NewActivityRepository(db), stdSvc, &aisvc.Fake{})
	svc := dashboard.NewService(usrSvc, stdSvc, actSvc)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "", "admin@test.kr", "pwd", []string{user.RoleAdminOwner}, true)
	guest := testutil.CreateUser(t, usrRepo, "Guest", "", "guest@test.kr", "pwd", user.GuestRoles, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "", "teacher@test.kr", "pwd", user.TeacherRoles, true)
	pupil := testutil.CreateUser(t, usrRepo, "김철수", "", "kim@test.kr", "pwd", user.StudentRoles, true)
	st := testutil.CreateStudent(t, stdRepo, teacher.ID, 1, 1, 1, "김철수", "kim@test.kr")
	testutil.CreateStudent(t, stdRepo, teacher.ID, 1, 1, 2, "이영희", "")

	act, err := actSvc.Create(ctx, teacher, activity.NewActivity{
		Section:          "문학",
		Title:            "시",
		TargetStudentIDs: []string{st.ID},
		Questions:        []activity.NewQuestion{{Content: "Q1"}, {Content: "Q2"}},
	})
	require.NoError(t, err)
	_, err = actSvc.Toggle(ctx, teacher.ID, act.ID)
	require.NoError(t, err)
	_, err = actSvc.Submit(ctx, pupil, activity.SubmitAnswer{QuestionID: act.Questions[0].ID, Content: "답"})
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, sum.Role)
	require.NotNil(t, sum.Admin)
	require.Len(t, sum.Admin.PendingApprovals, 1)
	assert.Equal(t, guest.ID, sum.Admin.PendingApprovals[0].ID)

	sum, err = svc.Summary(ctx, teacher)
	require.NoError(t, err)
	assert.Equal(t, &dashboard.TeacherSummary{Students: 2, Activities: 1, ActiveActivities: 1, AwaitingAnalysis: 1}, sum.Teacher)

	sum, err = svc.Summary(ctx, pupil)
	require.NoError(t, err)
	require.NotNil(t, sum.Student)
	assert.Len(t, sum.Student.Activities, 1)
	assert.Equal(t, 1, sum.Student.Pending)

	sum, err = svc.Summary(ctx, guest)
	require.NoError(t, err)
	assert.Equal(t, user.RoleGuest, sum.Role)
	assert.NotEmpty(t, sum.Notice)
	assert.Nil(t, sum.Admin)
}
