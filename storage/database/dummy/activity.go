package dummydb

import (
	"context"
	"sort"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/activity"
)

type activityRepository struct {
	db       *activityTable
	students *studentTable
}

var _ activity.Repository = (*activityRepository)(nil)

func NewActivityRepository(db *DB) activity.Repository {
	return &activityRepository{db: db.activity, students: db.student}
}

// load attaches the questions, ordered by position. The caller holds the lock.
func (repo *activityRepository) load(act activity.Activity) activity.Activity {
	act.TargetStudentIDs = append([]string{}, act.TargetStudentIDs...)
	act.Questions = make([]activity.Question, 0)
	for _, q := range repo.db.questions {
		if q.ActivityID == act.ID {
			act.Questions = append(act.Questions, q)
		}
	}
	sort.Slice(act.Questions, func(i, j int) bool { return act.Questions[i].Position < act.Questions[j].Position })
	return act
}

func (repo *activityRepository) CreateActivity(_ context.Context, act activity.Activity, _ ...core.DBExecutor) (activity.Activity, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	act.ID = newID()
	stored := act
	stored.Questions = nil
	stored.TargetStudentIDs = append([]string{}, act.TargetStudentIDs...)
	repo.db.activities[act.ID] = stored
	return act, nil
}

func (repo *activityRepository) UpdateActivity(_ context.Context, act activity.Activity, _ ...core.DBExecutor) (activity.Activity, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.activities[act.ID]; !ok {
		return activity.Activity{}, activity.ErrNotFound
	}
	stored := act
	stored.Questions = nil
	stored.TargetStudentIDs = append([]string{}, act.TargetStudentIDs...)
	repo.db.activities[act.ID] = stored
	return act, nil
}

func (repo *activityRepository) GetActivity(_ context.Context, id string) (activity.Activity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	act, ok := repo.db.activities[id]
	if !ok {
		return activity.Activity{}, activity.ErrNotFound
	}
	return repo.load(act), nil
}

func (repo *activityRepository) QueryActivities(_ context.Context, filter activity.QueryFilter, ordering ...core.DBOrdering) ([]activity.Activity, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	res := make([]activity.Activity, 0)
	for _, act := range repo.db.activities {
		if filter.Search != "" && !(containsFold(act.Title, filter.Search) || containsFold(act.SubjectName, filter.Search)) {
			continue
		}
		if filter.IsActive != nil && act.IsActive != *filter.IsActive {
			continue
		}
		if filter.Subject != "" && act.SubjectName != filter.Subject {
			continue
		}
		if filter.TeacherID != "" && act.TeacherID != filter.TeacherID {
			continue
		}
		if filter.TargetStudentIDs != nil {
			if _, ok := act.Targets(filter.TargetStudentIDs...); !ok {
				continue
			}
		}
		res = append(res, repo.load(act))
	}

	sortItems(res, ordering, func(act activity.Activity, field string) string {
		switch field {
		case "title":
			return act.Title
		case "section":
			return act.Section
		case "subject_name":
			return act.SubjectName
		case "is_active":
			return boolKey(act.IsActive)
		case "created_at":
			return timeKey(act.CreatedAt)
		}
		return ""
	})
	return res, nil
}

func (repo *activityRepository) DeleteActivity(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for qID, q := range repo.db.questions {
		if q.ActivityID == id {
			repo.deleteQuestion(qID)
		}
	}
	delete(repo.db.activities, id)
	return nil
}

func (repo *activityRepository) CreateQuestion(_ context.Context, q activity.Question, _ ...core.DBExecutor) (activity.Question, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.activities[q.ActivityID]; !ok {
		return activity.Question{}, activity.ErrNotFound
	}
	q.ID = newID()
	repo.db.questions[q.ID] = q
	return q, nil
}

func (repo *activityRepository) UpdateQuestion(_ context.Context, q activity.Question, _ ...core.DBExecutor) (activity.Question, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.questions[q.ID]; !ok {
		return activity.Question{}, activity.ErrQuestionNotFound
	}
	repo.db.questions[q.ID] = q
	return q, nil
}

func (repo *activityRepository) DeleteQuestions(_ context.Context, ids []string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		repo.deleteQuestion(id)
	}
	return nil
}

// deleteQuestion also deletes the answers. The caller holds the lock.
func (repo *activityRepository) deleteQuestion(id string) {
	for aID, ans := range repo.db.answers {
		if ans.QuestionID == id {
			delete(repo.db.answers, aID)
		}
	}
	delete(repo.db.questions, id)
}

func (repo *activityRepository) GetQuestion(_ context.Context, id string) (activity.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if q, ok := repo.db.questions[id]; ok {
		return q, nil
	}
	return activity.Question{}, activity.ErrQuestionNotFound
}

func (repo *activityRepository) GetAnswer(_ context.Context, id string) (activity.Answer, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ans, ok := repo.db.answers[id]; ok {
		return ans, nil
	}
	return activity.Answer{}, activity.ErrAnswerNotFound
}

func (repo *activityRepository) GetAnswerFor(_ context.Context, questionID, studentID string, _ ...core.DBExecutor) (activity.Answer, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, ans := range repo.db.answers {
		if ans.QuestionID == questionID && ans.StudentID == studentID {
			return ans, nil
		}
	}
	return activity.Answer{}, activity.ErrAnswerNotFound
}

func (repo *activityRepository) SaveAnswer(_ context.Context, ans activity.Answer, _ ...core.DBExecutor) (activity.Answer, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.questions[ans.QuestionID]; !ok {
		return activity.Answer{}, activity.ErrQuestionNotFound
	}
	for id, existing := range repo.db.answers {
		if existing.QuestionID == ans.QuestionID && existing.StudentID == ans.StudentID {
			ans.ID = id
		}
	}
	if ans.ID == "" {
		ans.ID = newID()
	}
	repo.db.answers[ans.ID] = ans
	return ans, nil
}

func (repo *activityRepository) QueryAnswers(_ context.Context, filter activity.AnswerFilter, ordering ...core.DBOrdering) ([]activity.AnswerView, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	repo.students.RLock()
	defer repo.students.RUnlock()

	var studentIDs map[string]bool
	if filter.StudentIDs != nil {
		studentIDs = make(map[string]bool, len(filter.StudentIDs))
		for _, id := range filter.StudentIDs {
			studentIDs[id] = true
		}
	}

	res := make([]activity.AnswerView, 0)
	for _, ans := range repo.db.answers {
		q := repo.db.questions[ans.QuestionID]
		act := repo.db.activities[q.ActivityID]
		view := activity.AnswerView{
			Answer:        ans,
			StudentName:   repo.students.table[ans.StudentID].Name,
			ActivityID:    act.ID,
			ActivityTitle: act.Title,
			TeacherID:     act.TeacherID,
			HasAIResult:   ans.AIResult.Valid && ans.AIResult.String != "",
		}

		if filter.ActivityID != "" && view.ActivityID != filter.ActivityID {
			continue
		}
		if filter.TeacherID != "" && view.TeacherID != filter.TeacherID {
			continue
		}
		if studentIDs != nil && !studentIDs[ans.StudentID] {
			continue
		}
		if filter.Search != "" && !(containsFold(view.StudentName, filter.Search) || containsFold(ans.Content, filter.Search)) {
			continue
		}
		if filter.HasAIResult != nil && view.HasAIResult != *filter.HasAIResult {
			continue
		}
		if !inRange(ans.SubmittedAt, filter.SubmittedFrom, filter.SubmittedTo) {
			continue
		}
		res = append(res, view)
	}

	sortItems(res, ordering, func(av activity.AnswerView, field string) string {
		switch field {
		case "submitted_at":
			return timeKey(av.SubmittedAt)
		case "student_name":
			return av.StudentName
		case "activity_title":
			return av.ActivityTitle
		}
		return ""
	})
	return res, nil
}
