package activity_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/activity"
	"github.com/classnote/classnote/core/school"
	"github.com/classnote/classnote/core/student"
	"github.com/classnote/classnote/core/user"
	aisvc "github.com/classnote/classnote/services/ai"
	emailsvc "github.com/classnote/classnote/services/email"
	logsvc "github.com/classnote/classnote/services/logger"
	dummydb "github.com/classnote/classnote/storage/database/dummy"
	testutil "github.com/classnote/classnote/tests"
)

type fixture struct {
	svc     activity.Service
	ai      *aisvc.Fake
	usrRepo user.Repository
	stdRepo student.Repository
	teacher user.User
	pupil   user.User
	st      student.Student
}

func setup(t *testing.T) fixture {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)

	conf := core.NewTestConfig()
	logger := logsvc.NopLogger{}
	validate, _ := testutil.NewValidator()
	f := fixture{
		ai:      &aisvc.Fake{},
		usrRepo: dummydb.NewUserRepository(db),
		stdRepo: dummydb.NewStudentRepository(db),
	}
	usrSvc := user.NewService(f.usrRepo, emailsvc.NewConsoleServiceMock(conf, logger), conf)
	stdSvc := student.NewService(nil, f.stdRepo, usrSvc, validate, conf, logger)
	f.svc = activity.NewService(nil, dummydb.NewActivityRepository(db), stdSvc, f.ai)

	f.teacher = testutil.CreateUser(t, f.usrRepo, "Teacher", "", "teacher@test.kr", "pwd", user.TeacherRoles, true)
	f.pupil = testutil.CreateUser(t, f.usrRepo, "김철수", "", "kim@test.kr", "pwd", user.StudentRoles, true)
	f.st = testutil.CreateStudent(t, f.stdRepo, f.teacher.ID, 1, 1, 1, "김철수", "kim@test.kr")
	return f
}

func intPtr(i int) *int { return &i }

func (f fixture) create(t *testing.T, questions ...activity.NewQuestion) activity.Activity {
	t.Helper()
	act, err := f.svc.Create(context.Background(), f.teacher, activity.NewActivity{
		Section:          "문학",
		Title:            "시 감상문",
		TargetStudentIDs: []string{f.st.ID, f.st.ID},
		Questions:        questions,
	})
	require.NoError(t, err)
	return act
}

func TestService_Create(t *testing.T) {
	f := setup(t)
	act := f.create(t, activity.NewQuestion{Content: "Q1"}, activity.NewQuestion{Content: "Q2", MaxLength: intPtr(10)})

	assert.False(t, act.IsActive)
	assert.Equal(t, school.OtherSubject, act.SubjectName)
	assert.Equal(t, []string{f.st.ID}, act.TargetStudentIDs)
	require.Len(t, act.Questions, 2)
	assert.Equal(t, 1, act.Questions[1].Position)
	assert.Equal(t, 10, act.Questions[1].MaxLength.Int)

	other := testutil.CreateStudent(t, f.stdRepo, "someone-else", 1, 1, 1, "남", "")
	_, err := f.svc.Create(context.Background(), f.teacher, activity.NewActivity{
		Section:          "문학",
		Title:            "시",
		TargetStudentIDs: []string{f.st.ID, other.ID},
		Questions:        []activity.NewQuestion{{Content: "Q"}},
	})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, activity.ErrUnknownTarget, vErr.Err)
}

func TestService_Update(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	act := f.create(t, activity.NewQuestion{Content: "Q1"}, activity.NewQuestion{Content: "Q2"})
	q1, q2 := act.Questions[0], act.Questions[1]

	_, err := f.svc.Update(ctx, f.teacher.ID, act.ID, activity.NewActivity{
		Section:   "문학",
		Title:     "시",
		Questions: []activity.NewQuestion{{ID: "unknown", Content: "Q"}},
	})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, activity.ErrQuestionNotFound, vErr.Err)

	_, err = f.svc.Update(ctx, "other-teacher", act.ID, activity.NewActivity{Questions: []activity.NewQuestion{{Content: "Q"}}})
	assert.Equal(t, activity.ErrNotFound, pkgerrors.Cause(err))

	updated, err := f.svc.Update(ctx, f.teacher.ID, act.ID, activity.NewActivity{
		Section:          "비문학",
		Title:            "논설문",
		TargetStudentIDs: []string{f.st.ID},
		Questions: []activity.NewQuestion{
			{Content: "new Q0"},
			{ID: q2.ID, Content: "Q2 edited"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "논설문", updated.Title)

	got, err := f.svc.Get(ctx, f.teacher.ID, act.ID)
	require.NoError(t, err)
	require.Len(t, got.Questions, 2)
	assert.Equal(t, "new Q0", got.Questions[0].Content)
	assert.Equal(t, q2.ID, got.Questions[1].ID)
	assert.Equal(t, "Q2 edited", got.Questions[1].Content)
	_, kept := got.Question(q1.ID)
	assert.False(t, kept)
}

func TestService_SubmitAndResult(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	act := f.create(t, activity.NewQuestion{Content: "Q1", MaxLength: intPtr(5)}, activity.NewQuestion{Content: "Q2"})
	q1, q2 := act.Questions[0], act.Questions[1]

	// closed activities take no answers and are hidden
	_, err := f.svc.Submit(ctx, f.pupil, activity.SubmitAnswer{QuestionID: q1.ID, Content: "답"})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, activity.ErrNotOpen, vErr.Err)

	listed, err := f.svc.ListForStudent(ctx, f.pupil)
	require.NoError(t, err)
	assert.Empty(t, listed)
	_, err = f.svc.GetForStudent(ctx, f.pupil, act.ID)
	assert.Equal(t, activity.ErrNotFound, pkgerrors.Cause(err))

	_, err = f.svc.Toggle(ctx, f.teacher.ID, act.ID)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, f.pupil, activity.SubmitAnswer{QuestionID: q1.ID, Content: "너무 긴 답안"})
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, activity.ErrTooLong, vErr.Err)

	outsider := testutil.CreateUser(t, f.usrRepo, "Park", "", "park@test.kr", "pwd", user.StudentRoles, true)
	_, err = f.svc.Submit(ctx, outsider, activity.SubmitAnswer{QuestionID: q1.ID, Content: "답"})
	assert.Equal(t, activity.ErrQuestionNotFound, pkgerrors.Cause(err))

	_, err = f.svc.Submit(ctx, f.pupil, activity.SubmitAnswer{QuestionID: q1.ID, Content: "첫 답"})
	require.NoError(t, err)
	ans, err := f.svc.Submit(ctx, f.pupil, activity.SubmitAnswer{QuestionID: q1.ID, Content: "둘째 답", Log: "paste"})
	require.NoError(t, err)
	assert.Equal(t, "둘째 답", ans.Content)

	answers, err := f.svc.TeacherAnswers(ctx, f.teacher.ID, activity.AnswerFilter{ActivityID: act.ID})
	require.NoError(t, err)
	require.Len(t, answers, 1)
	logLines := strings.Split(answers[0].ActivityLog, "\n")
	require.Len(t, logLines, 2)
	assert.Contains(t, logLines[0], "submitted 3 chars")
	assert.Contains(t, logLines[1], "submitted 4 chars: paste")

	sa, err := f.svc.GetForStudent(ctx, f.pupil, act.ID)
	require.NoError(t, err)
	assert.Nil(t, sa.TargetStudentIDs)
	assert.False(t, sa.Completed)
	assert.Len(t, sa.Answers, 1)

	_, err = f.svc.UpdateAnswerMeta(ctx, f.teacher.ID, act.ID, activity.AnswerMeta{
		QuestionID: q2.ID, StudentID: f.st.ID, AbsenceType: activity.AbsenceSick, Note: "병원",
	})
	require.NoError(t, err)
	_, err = f.svc.UpdateAnswerMeta(ctx, f.teacher.ID, act.ID, activity.AnswerMeta{QuestionID: "nope", StudentID: f.st.ID})
	assert.Equal(t, activity.ErrQuestionNotFound, pkgerrors.Cause(err))

	res, err := f.svc.Result(ctx, f.teacher.ID, act.ID)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, activity.StateSubmitted, res.Rows[0].Cells[0].State)
	assert.Equal(t, activity.StateAbsent, res.Rows[0].Cells[1].State)
	assert.Equal(t, activity.ResultStats{Submitted: 1, Absent: 1}, res.Stats)

	// an absence note does not count as an answer for the student
	sa, err = f.svc.GetForStudent(ctx, f.pupil, act.ID)
	require.NoError(t, err)
	assert.False(t, sa.Completed)

	_, err = f.svc.Submit(ctx, f.pupil, activity.SubmitAnswer{QuestionID: q2.ID, Content: "출석 후 제출"})
	require.NoError(t, err)
	listed, err = f.svc.ListForStudent(ctx, f.pupil)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Completed)
}

func TestService_Analyze(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	act := f.create(t, activity.NewQuestion{Content: "시의 주제를 쓰시오.", Conditions: "200자 이내"}, activity.NewQuestion{Content: "Q2"})
	_, err := f.svc.Toggle(ctx, f.teacher.ID, act.ID)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, f.pupil, activity.SubmitAnswer{QuestionID: act.Questions[0].ID, Content: "그리움"})
	require.NoError(t, err)
	empty, err := f.svc.UpdateAnswerMeta(ctx, f.teacher.ID, act.ID, activity.AnswerMeta{
		QuestionID: act.Questions[1].ID, StudentID: f.st.ID, AbsenceType: activity.AbsencePublic,
	})
	require.NoError(t, err)

	answers, err := f.svc.TeacherAnswers(ctx, f.teacher.ID, activity.AnswerFilter{ActivityID: act.ID, Search: "그리움"})
	require.NoError(t, err)
	require.Len(t, answers, 1)
	answerID := answers[0].ID

	var gotPrompt string
	f.ai.Reply = func(system, prompt string) (string, error) {
		gotPrompt = prompt
		return "  잘 썼습니다.  ", nil
	}
	analyzed, err := f.svc.Analyze(ctx, f.teacher.ID, answerID)
	require.NoError(t, err)
	assert.Equal(t, "잘 썼습니다.", analyzed.AIResult.String)
	assert.Contains(t, gotPrompt, "[작성 조건]\n200자 이내")
	assert.Contains(t, gotPrompt, "[학생 답안]\n그리움")

	_, err = f.svc.Analyze(ctx, "other-teacher", answerID)
	assert.Equal(t, activity.ErrAnswerNotFound, pkgerrors.Cause(err))

	var vErr *core.ValidationError
	_, err = f.svc.Analyze(ctx, f.teacher.ID, empty.ID)
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, activity.ErrNoAnswer, vErr.Err)

	f.ai.Reply = func(string, string) (string, error) { return "", errors.New("quota exceeded") }
	_, err = f.svc.Analyze(ctx, f.teacher.ID, answerID)
	assert.EqualError(t, err, "generating analysis: quota exceeded")
	assert.Equal(t, 2, f.ai.Calls())
}
