package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/activity"
	"github.com/classnote/classnote/core/student"
	"github.com/classnote/classnote/core/user"
	sqlxrepos "github.com/classnote/classnote/storage/database/sqlx"
	testutil "github.com/classnote/classnote/tests"
)

func TestActivityRepository(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()
	usrRepo := sqlxrepos.NewUserRepository(db)
	stdRepo := sqlxrepos.NewStudentRepository(db)
	repo := sqlxrepos.NewActivityRepository(db)

	teacher := testutil.CreateUser(t, usrRepo, "Kim", "kim@school.kr", "kim@school.kr", "Pa$$w0rd", []string{user.RoleTeacher}, true)
	st1 := testutil.CreateStudent(t, stdRepo, teacher.ID, 2, 3, 1, "홍길동", "hong@student.kr")
	st2 := testutil.CreateStudent(t, stdRepo, teacher.ID, 2, 3, 2, "성춘향", "")

	t.Run("students", func(t *testing.T) {
		got, err := stdRepo.GetStudentBySeat(ctx, teacher.ID, student.Seat{Grade: 2, ClassNo: 3, Number: 2})
		require.NoError(t, err)
		assert.Equal(t, st2.ID, got.ID)

		students, err := stdRepo.QueryStudents(ctx, student.QueryFilter{Email: "hong@student.kr"})
		require.NoError(t, err)
		require.Len(t, students, 1)
		assert.Equal(t, st1.ID, students[0].ID)
	})

	act, err := repo.CreateActivity(ctx, activity.Activity{
		TeacherID:        teacher.ID,
		SubjectName:      "국어",
		Section:          "1단원",
		Title:            "시 감상문",
		CreatedAt:        time.Now().UTC(),
		TargetStudentIDs: []string{st1.ID},
	})
	require.NoError(t, err)
	q2, err := repo.CreateQuestion(ctx, activity.Question{ActivityID: act.ID, Position: 2, Content: "느낀 점은?"})
	require.NoError(t, err)
	q1, err := repo.CreateQuestion(ctx, activity.Question{ActivityID: act.ID, Position: 1, Content: "주제는?", MaxLength: null.IntFrom(300)})
	require.NoError(t, err)

	t.Run("get loads questions and targets", func(t *testing.T) {
		got, err := repo.GetActivity(ctx, act.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{st1.ID}, got.TargetStudentIDs)
		require.Len(t, got.Questions, 2)
		assert.Equal(t, q1.ID, got.Questions[0].ID)
		assert.Equal(t, null.IntFrom(300), got.Questions[0].MaxLength)
		assert.Equal(t, q2.ID, got.Questions[1].ID)
	})

	t.Run("query by targets", func(t *testing.T) {
		acts, err := repo.QueryActivities(ctx, activity.QueryFilter{TargetStudentIDs: []string{st2.ID}})
		require.NoError(t, err)
		assert.Empty(t, acts)

		act.TargetStudentIDs = []string{st1.ID, st2.ID}
		_, err = repo.UpdateActivity(ctx, act)
		require.NoError(t, err)
		acts, err = repo.QueryActivities(ctx, activity.QueryFilter{TargetStudentIDs: []string{st2.ID}})
		require.NoError(t, err)
		require.Len(t, acts, 1)
		assert.ElementsMatch(t, []string{st1.ID, st2.ID}, acts[0].TargetStudentIDs)
	})

	t.Run("save answer upserts", func(t *testing.T) {
		first, err := repo.SaveAnswer(ctx, activity.Answer{StudentID: st1.ID, QuestionID: q1.ID, Content: "자연", SubmittedAt: time.Now().UTC()})
		require.NoError(t, err)
		second, err := repo.SaveAnswer(ctx, activity.Answer{StudentID: st1.ID, QuestionID: q1.ID, Content: "자연과 인간", SubmittedAt: time.Now().UTC()})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		got, err := repo.GetAnswerFor(ctx, q1.ID, st1.ID)
		require.NoError(t, err)
		assert.Equal(t, "자연과 인간", got.Content)
	})

	t.Run("query answers", func(t *testing.T) {
		_, err := repo.SaveAnswer(ctx, activity.Answer{
			StudentID: st2.ID, QuestionID: q2.ID, Content: "재미있었다", SubmittedAt: time.Now().UTC(),
			AIResult: null.StringFrom("성실하게 참여함"),
		})
		require.NoError(t, err)

		views, err := repo.QueryAnswers(ctx, activity.AnswerFilter{TeacherID: teacher.ID, HasAIResult: boolPtr(true)})
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, "성춘향", views[0].StudentName)
		assert.Equal(t, act.Title, views[0].ActivityTitle)
		assert.True(t, views[0].HasAIResult)

		views, err = repo.QueryAnswers(ctx, activity.AnswerFilter{Search: "홍길"})
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, st1.ID, views[0].StudentID)
	})

	t.Run("delete cascades", func(t *testing.T) {
		require.NoError(t, repo.DeleteActivity(ctx, act.ID))
		_, err := repo.GetActivity(ctx, act.ID)
		assert.True(t, core.IsNotFound(err))
		_, err = repo.GetAnswerFor(ctx, q1.ID, st1.ID)
		assert.True(t, core.IsNotFound(err))
	})
}
