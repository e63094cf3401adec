package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/activity"
)

var (
	activityColumns = []string{"id", "teacher_id", "subject_name", "section", "title", "is_active", "created_at"}
	questionColumns = []string{"id", "activity_id", "position", "content", "reference", "conditions", "max_length"}
	answerColumns   = []string{
		"id", "student_id", "question_id", "content", "submitted_at", "activity_log", "ai_result", "absence_type", "note",
	}
)

type activityRepository struct {
	baseRepository
}

var _ activity.Repository = (*activityRepository)(nil)

func NewActivityRepository(exec core.DBExecutor) activity.Repository {
	return &activityRepository{baseRepository{exec: exec}}
}

type targetRow struct {
	ActivityID string `db:"activity_id"`
	StudentID  string `db:"student_id"`
}

// load attaches the targets and the questions (ordered by position) to the activities.
func (repo activityRepository) load(ctx context.Context, acts []activity.Activity) error {
	if len(acts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(acts))
	for _, act := range acts {
		ids = append(ids, act.ID)
	}

	var targets []targetRow
	query := psql.Select("activity_id", "student_id").From("activity_target").Where(sq.Eq{"activity_id": ids})
	if err := repo.selectAll(ctx, repo.exec, &targets, query); err != nil {
		return errors.Wrap(err, "selecting targets")
	}
	var questions []activity.Question
	query = psql.Select(questionColumns...).From("question").Where(sq.Eq{"activity_id": ids}).OrderBy("position")
	if err := repo.selectAll(ctx, repo.exec, &questions, query); err != nil {
		return errors.Wrap(err, "selecting questions")
	}

	byID := make(map[string]*activity.Activity, len(acts))
	for i := range acts {
		acts[i].TargetStudentIDs = make([]string, 0)
		acts[i].Questions = make([]activity.Question, 0)
		byID[acts[i].ID] = &acts[i]
	}
	for _, t := range targets {
		act := byID[t.ActivityID]
		act.TargetStudentIDs = append(act.TargetStudentIDs, t.StudentID)
	}
	for _, q := range questions {
		act := byID[q.ActivityID]
		act.Questions = append(act.Questions, q)
	}
	return nil
}

func (repo activityRepository) setTargets(ctx context.Context, exec core.DBExecutor, act activity.Activity) error {
	if _, err := repo.run(ctx, exec, psql.Delete("activity_target").Where(sq.Eq{"activity_id": act.ID})); err != nil {
		return errors.Wrap(err, "deleting targets")
	}
	if len(act.TargetStudentIDs) == 0 {
		return nil
	}
	query := psql.Insert("activity_target").Columns("activity_id", "student_id")
	for _, id := range act.TargetStudentIDs {
		query = query.Values(act.ID, id)
	}
	if _, err := repo.run(ctx, exec, query.Suffix("ON CONFLICT DO NOTHING")); err != nil {
		return errors.Wrap(err, "inserting targets")
	}
	return nil
}

func (repo activityRepository) CreateActivity(ctx context.Context, act activity.Activity, exec ...core.DBExecutor) (activity.Activity, error) {
	ex := repo.getExec(exec)
	act.ID = uuid.New().String()
	query := psql.Insert("activity").Columns(activityColumns...).
		Values(act.ID, act.TeacherID, act.SubjectName, act.Section, act.Title, act.IsActive, act.CreatedAt.UTC())
	if _, err := repo.run(ctx, ex, query); err != nil {
		return activity.Activity{}, errors.Wrap(err, "inserting activity")
	}
	if err := repo.setTargets(ctx, ex, act); err != nil {
		return activity.Activity{}, err
	}
	return act, nil
}

func (repo activityRepository) UpdateActivity(ctx context.Context, act activity.Activity, exec ...core.DBExecutor) (activity.Activity, error) {
	ex := repo.getExec(exec)
	query := psql.Update("activity").
		SetMap(map[string]interface{}{
			"subject_name": act.SubjectName,
			"section":      act.Section,
			"title":        act.Title,
			"is_active":    act.IsActive,
		}).
		Where(sq.Eq{"id": act.ID})

	n, err := repo.run(ctx, ex, query)
	if err != nil {
		return activity.Activity{}, errors.Wrap(err, "updating activity")
	}
	if n == 0 {
		return activity.Activity{}, activity.ErrNotFound
	}
	if err = repo.setTargets(ctx, ex, act); err != nil {
		return activity.Activity{}, err
	}
	return act, nil
}

func (repo activityRepository) GetActivity(ctx context.Context, id string) (activity.Activity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return activity.Activity{}, activity.ErrNotFound
	}
	acts := make([]activity.Activity, 1)
	query := psql.Select(activityColumns...).From("activity").Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.exec, &acts[0], query); err != nil {
		return activity.Activity{}, trapNoRowsErr(err, activity.ErrNotFound, "selecting activity")
	}
	if err := repo.load(ctx, acts); err != nil {
		return activity.Activity{}, err
	}
	return acts[0], nil
}

func (repo activityRepository) QueryActivities(ctx context.Context, filter activity.QueryFilter, ordering ...core.DBOrdering) ([]activity.Activity, error) {
	query := psql.Select(activityColumns...).From("activity")
	if filter.Search != "" {
		val := ilike(filter.Search)
		query = query.Where(sq.Or{sq.ILike{"title": val}, sq.ILike{"subject_name": val}})
	}
	if filter.IsActive != nil {
		query = query.Where(sq.Eq{"is_active": *filter.IsActive})
	}
	if filter.Subject != "" {
		query = query.Where(sq.Eq{"subject_name": filter.Subject})
	}
	if filter.TeacherID != "" {
		query = query.Where(sq.Eq{"teacher_id": filter.TeacherID})
	}
	if filter.TargetStudentIDs != nil {
		if len(filter.TargetStudentIDs) == 0 {
			return []activity.Activity{}, nil
		}
		sub := psql.Select("activity_id").From("activity_target").Where(sq.Eq{"student_id": filter.TargetStudentIDs})
		subSQL, subArgs, err := sub.PlaceholderFormat(sq.Question).ToSql()
		if err != nil {
			return nil, errors.Wrap(err, "building targets query")
		}
		query = query.Where("id IN ("+subSQL+")", subArgs...)
	}
	query = orderBy(query, ordering, "created_at DESC")

	acts := make([]activity.Activity, 0)
	if err := repo.selectAll(ctx, repo.exec, &acts, query); err != nil {
		return nil, errors.Wrap(err, "selecting activities")
	}
	if err := repo.load(ctx, acts); err != nil {
		return nil, err
	}
	return acts, nil
}

// DeleteActivity relies on ON DELETE CASCADE for the targets, the questions and their answers.
func (repo activityRepository) DeleteActivity(ctx context.Context, id string) error {
	if _, err := repo.run(ctx, repo.exec, psql.Delete("activity").Where(sq.Eq{"id": id})); err != nil {
		return errors.Wrap(err, "deleting activity")
	}
	return nil
}

func (repo activityRepository) CreateQuestion(ctx context.Context, q activity.Question, exec ...core.DBExecutor) (activity.Question, error) {
	q.ID = uuid.New().String()
	query := psql.Insert("question").Columns(questionColumns...).
		Values(q.ID, q.ActivityID, q.Position, q.Content, q.Reference, q.Conditions, q.MaxLength)
	if _, err := repo.run(ctx, repo.getExec(exec), query); err != nil {
		return activity.Question{}, errors.Wrap(err, "inserting question")
	}
	return q, nil
}

func (repo activityRepository) UpdateQuestion(ctx context.Context, q activity.Question, exec ...core.DBExecutor) (activity.Question, error) {
	query := psql.Update("question").
		SetMap(map[string]interface{}{
			"position":   q.Position,
			"content":    q.Content,
			"reference":  q.Reference,
			"conditions": q.Conditions,
			"max_length": q.MaxLength,
		}).
		Where(sq.Eq{"id": q.ID})

	n, err := repo.run(ctx, repo.getExec(exec), query)
	if err != nil {
		return activity.Question{}, errors.Wrap(err, "updating question")
	}
	if n == 0 {
		return activity.Question{}, activity.ErrQuestionNotFound
	}
	return q, nil
}

func (repo activityRepository) DeleteQuestions(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := repo.run(ctx, repo.getExec(exec), psql.Delete("question").Where(sq.Eq{"id": ids})); err != nil {
		return errors.Wrap(err, "deleting questions")
	}
	return nil
}

func (repo activityRepository) GetQuestion(ctx context.Context, id string) (activity.Question, error) {
	if _, err := uuid.Parse(id); err != nil {
		return activity.Question{}, activity.ErrQuestionNotFound
	}
	var q activity.Question
	if err := repo.get(ctx, repo.exec, &q, psql.Select(questionColumns...).From("question").Where(sq.Eq{"id": id})); err != nil {
		return activity.Question{}, trapNoRowsErr(err, activity.ErrQuestionNotFound, "selecting question")
	}
	return q, nil
}

func (repo activityRepository) GetAnswer(ctx context.Context, id string) (activity.Answer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return activity.Answer{}, activity.ErrAnswerNotFound
	}
	var ans activity.Answer
	if err := repo.get(ctx, repo.exec, &ans, psql.Select(answerColumns...).From("answer").Where(sq.Eq{"id": id})); err != nil {
		return activity.Answer{}, trapNoRowsErr(err, activity.ErrAnswerNotFound, "selecting answer")
	}
	return ans, nil
}

func (repo activityRepository) GetAnswerFor(ctx context.Context, questionID, studentID string, exec ...core.DBExecutor) (activity.Answer, error) {
	var ans activity.Answer
	query := psql.Select(answerColumns...).From("answer").Where(sq.Eq{"question_id": questionID, "student_id": studentID})
	if err := repo.get(ctx, repo.getExec(exec), &ans, query); err != nil {
		return activity.Answer{}, trapNoRowsErr(err, activity.ErrAnswerNotFound, "selecting answer")
	}
	return ans, nil
}

func (repo activityRepository) SaveAnswer(ctx context.Context, ans activity.Answer, exec ...core.DBExecutor) (activity.Answer, error) {
	if ans.ID == "" {
		ans.ID = uuid.New().String()
	}
	query := psql.Insert("answer").Columns(answerColumns...).
		Values(ans.ID, ans.StudentID, ans.QuestionID, ans.Content, ans.SubmittedAt.UTC(),
			ans.ActivityLog, ans.AIResult, ans.AbsenceType, ans.Note).
		Suffix(`ON CONFLICT (student_id, question_id) DO UPDATE SET
			content = EXCLUDED.content,
			submitted_at = EXCLUDED.submitted_at,
			activity_log = EXCLUDED.activity_log,
			ai_result = EXCLUDED.ai_result,
			absence_type = EXCLUDED.absence_type,
			note = EXCLUDED.note
		RETURNING id`)

	if err := repo.get(ctx, repo.getExec(exec), &ans.ID, query); err != nil {
		return activity.Answer{}, errors.Wrap(err, "saving answer")
	}
	return ans, nil
}

func (repo activityRepository) QueryAnswers(ctx context.Context, filter activity.AnswerFilter, ordering ...core.DBOrdering) ([]activity.AnswerView, error) {
	cols := make([]string, 0, len(answerColumns)+5)
	for _, col := range answerColumns {
		cols = append(cols, "a."+col)
	}
	cols = append(cols,
		"s.name AS student_name",
		"act.id AS activity_id",
		"act.title AS activity_title",
		"act.teacher_id",
		"COALESCE(a.ai_result, '') <> '' AS has_ai_result",
	)

	query := psql.Select(cols...).
		From("answer a").
		Join("student s ON s.id = a.student_id").
		Join("question q ON q.id = a.question_id").
		Join("activity act ON act.id = q.activity_id")

	if filter.ActivityID != "" {
		query = query.Where(sq.Eq{"act.id": filter.ActivityID})
	}
	if filter.TeacherID != "" {
		query = query.Where(sq.Eq{"act.teacher_id": filter.TeacherID})
	}
	if filter.StudentIDs != nil {
		if len(filter.StudentIDs) == 0 {
			return []activity.AnswerView{}, nil
		}
		query = query.Where(sq.Eq{"a.student_id": filter.StudentIDs})
	}
	if filter.Search != "" {
		val := ilike(filter.Search)
		query = query.Where(sq.Or{sq.ILike{"s.name": val}, sq.ILike{"a.content": val}})
	}
	if filter.HasAIResult != nil {
		query = query.Where(sq.Expr("(COALESCE(a.ai_result, '') <> '') = ?", *filter.HasAIResult))
	}
	if !filter.SubmittedFrom.IsZero() {
		query = query.Where(sq.GtOrEq{"a.submitted_at": filter.SubmittedFrom.UTC()})
	}
	if !filter.SubmittedTo.IsZero() {
		query = query.Where(sq.LtOrEq{"a.submitted_at": filter.SubmittedTo.UTC()})
	}
	query = orderBy(query, ordering, "submitted_at DESC")

	views := make([]activity.AnswerView, 0)
	if err := repo.selectAll(ctx, repo.exec, &views, query); err != nil {
		return nil, errors.Wrap(err, "selecting answers")
	}
	return views, nil
}
