package activity

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/school"
	"github.com/classnote/classnote/core/student"
	"github.com/classnote/classnote/core/user"
)

var (
	ErrNotFound         = core.NewNotFoundError("activity not found")
	ErrQuestionNotFound = core.NewNotFoundError("question not found")
	ErrAnswerNotFound   = core.NewNotFoundError("answer not found")

	ErrNotOpen       = errors.New("this activity is not open for answers")
	ErrUnknownTarget = errors.New("some students are not in your roster")
	ErrTooLong       = errors.New("the answer is too long")
	ErrNoAnswer      = errors.New("there is no answer to analyze")

	nowFunc = time.Now // mockable

	analysisSystemPrompt = "당신은 고등학교 교사입니다. 평가 문항과 작성 조건에 비추어 학생의 서술형 답안을 분석하고, " +
		"잘한 점과 보완할 점을 구체적인 근거와 함께 서술하세요. 답변은 한국어로 작성합니다."
)

type (
	Repository interface {
		CreateActivity(ctx context.Context, act Activity, exec ...core.DBExecutor) (Activity, error)
		UpdateActivity(ctx context.Context, act Activity, exec ...core.DBExecutor) (Activity, error)
		// GetActivity and QueryActivities load the targets and the questions (ordered by position).
		GetActivity(ctx context.Context, id string) (Activity, error)
		QueryActivities(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Activity, error)
		DeleteActivity(ctx context.Context, id string) error

		CreateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		UpdateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		DeleteQuestions(ctx context.Context, ids []string, exec ...core.DBExecutor) error
		GetQuestion(ctx context.Context, id string) (Question, error)

		GetAnswer(ctx context.Context, id string) (Answer, error)
		GetAnswerFor(ctx context.Context, questionID, studentID string, exec ...core.DBExecutor) (Answer, error)
		// SaveAnswer inserts or updates the answer of (StudentID, QuestionID).
		SaveAnswer(ctx context.Context, ans Answer, exec ...core.DBExecutor) (Answer, error)
		QueryAnswers(ctx context.Context, filter AnswerFilter, ordering ...core.DBOrdering) ([]AnswerView, error)
	}

	Service interface {
		// teachers
		Create(ctx context.Context, teacher user.User, na NewActivity) (Activity, error)
		List(ctx context.Context, teacherID string, filter QueryFilter, ordering ...core.DBOrdering) ([]Activity, error)
		Get(ctx context.Context, teacherID, id string) (Activity, error)
		Update(ctx context.Context, teacherID, id string, na NewActivity) (Activity, error)
		Delete(ctx context.Context, teacherID, id string) error
		Toggle(ctx context.Context, teacherID, id string) (Activity, error)
		SetTargets(ctx context.Context, teacherID, id string, studentIDs []string) (Activity, error)
		Result(ctx context.Context, teacherID, id string) (Result, error)
		UpdateAnswerMeta(ctx context.Context, teacherID, id string, meta AnswerMeta) (Answer, error)
		Analyze(ctx context.Context, teacherID, answerID string) (Answer, error)
		TeacherAnswers(ctx context.Context, teacherID string, filter AnswerFilter) ([]AnswerView, error)

		// students
		ListForStudent(ctx context.Context, usr user.User) ([]StudentActivity, error)
		GetForStudent(ctx context.Context, usr user.User, id string) (StudentActivity, error)
		Submit(ctx context.Context, usr user.User, sa SubmitAnswer) (StudentAnswer, error)

		// admins
		QueryActivities(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Activity, error)
		QueryAnswers(ctx context.Context, filter AnswerFilter, ordering ...core.DBOrdering) ([]AnswerView, error)
	}

	service struct {
		db     core.DB
		repo   Repository
		stdSvc student.Service
		ai     core.TextGeneratorProvider
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, stdSvc student.Service, ai core.TextGeneratorProvider) Service {
	return &service{db: db, repo: repo, stdSvc: stdSvc, ai: ai}
}

// Create stores an inactive activity with its questions. The subject is the teacher's one.
func (svc *service) Create(ctx context.Context, teacher user.User, na NewActivity) (Activity, error) {
	if err := svc.checkTargets(ctx, teacher.ID, na.TargetStudentIDs); err != nil {
		return Activity{}, err
	}

	subject := strings.TrimSpace(teacher.Subject)
	if subject == "" {
		subject = school.OtherSubject
	}
	act := Activity{
		TeacherID:        teacher.ID,
		SubjectName:      subject,
		Section:          na.Section,
		Title:            na.Title,
		IsActive:         false,
		CreatedAt:        nowFunc().UTC(),
		TargetStudentIDs: uniqueStrings(na.TargetStudentIDs),
	}

	err := core.Transact(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if act, err = svc.repo.CreateActivity(ctx, act, exec); err != nil {
			return errors.Wrap(err, "creating activity")
		}
		for i, nq := range na.Questions {
			q, err := svc.repo.CreateQuestion(ctx, newQuestion(act.ID, i, nq), exec)
			if err != nil {
				return errors.Wrap(err, "creating question")
			}
			act.Questions = append(act.Questions, q)
		}
		return nil
	})
	if err != nil {
		return Activity{}, err
	}
	return act, nil
}

func (svc *service) List(ctx context.Context, teacherID string, filter QueryFilter, ordering ...core.DBOrdering) ([]Activity, error) {
	filter.TeacherID = teacherID
	return svc.QueryActivities(ctx, filter, ordering...)
}

// Get returns an activity of the teacher. Other teachers' activities are not found.
func (svc *service) Get(ctx context.Context, teacherID, id string) (Activity, error) {
	act, err := svc.repo.GetActivity(ctx, id)
	if err != nil {
		return Activity{}, err
	}
	if act.TeacherID != teacherID {
		return Activity{}, ErrNotFound
	}
	return act, nil
}

// Update replaces the content of an activity. Questions sent with their ID are kept (with their
// answers), the others are created, and the questions left out are deleted.
func (svc *service) Update(ctx context.Context, teacherID, id string, na NewActivity) (Activity, error) {
	act, err := svc.Get(ctx, teacherID, id)
	if err != nil {
		return Activity{}, err
	}
	if err = svc.checkTargets(ctx, teacherID, na.TargetStudentIDs); err != nil {
		return Activity{}, err
	}

	for _, nq := range na.Questions {
		if _, ok := act.Question(nq.ID); nq.ID != "" && !ok {
			return Activity{}, core.NewValidationError(ErrQuestionNotFound,
				core.FieldError{Field: "questions", Error: ErrQuestionNotFound.Error()})
		}
	}

	act.Section = na.Section
	act.Title = na.Title
	act.TargetStudentIDs = uniqueStrings(na.TargetStudentIDs)

	err = core.Transact(ctx, svc.db, func(exec core.DBExecutor) error {
		if _, err := svc.repo.UpdateActivity(ctx, act, exec); err != nil {
			return errors.Wrap(err, "updating activity")
		}

		kept := make(map[string]bool, len(na.Questions))
		questions := make([]Question, 0, len(na.Questions))
		for i, nq := range na.Questions {
			q := newQuestion(act.ID, i, nq)
			var err error
			if nq.ID != "" {
				q.ID = nq.ID
				kept[nq.ID] = true
				q, err = svc.repo.UpdateQuestion(ctx, q, exec)
			} else {
				q, err = svc.repo.CreateQuestion(ctx, q, exec)
			}
			if err != nil {
				return errors.Wrap(err, "saving question")
			}
			questions = append(questions, q)
		}

		var removed []string
		for _, q := range act.Questions {
			if !kept[q.ID] {
				removed = append(removed, q.ID)
			}
		}
		if len(removed) > 0 {
			if err := svc.repo.DeleteQuestions(ctx, removed, exec); err != nil {
				return errors.Wrap(err, "deleting questions")
			}
		}
		act.Questions = questions
		return nil
	})
	if err != nil {
		return Activity{}, err
	}
	return act, nil
}

func (svc *service) Delete(ctx context.Context, teacherID, id string) error {
	if _, err := svc.Get(ctx, teacherID, id); err != nil {
		return err
	}
	return svc.repo.DeleteActivity(ctx, id)
}

// Toggle opens or closes an activity to its students.
func (svc *service) Toggle(ctx context.Context, teacherID, id string) (Activity, error) {
	act, err := svc.Get(ctx, teacherID, id)
	if err != nil {
		return Activity{}, err
	}
	act.IsActive = !act.IsActive
	return svc.repo.UpdateActivity(ctx, act)
}

func (svc *service) SetTargets(ctx context.Context, teacherID, id string, studentIDs []string) (Activity, error) {
	act, err := svc.Get(ctx, teacherID, id)
	if err != nil {
		return Activity{}, err
	}
	if err = svc.checkTargets(ctx, teacherID, studentIDs); err != nil {
		return Activity{}, err
	}
	act.TargetStudentIDs = uniqueStrings(studentIDs)
	return svc.repo.UpdateActivity(ctx, act)
}

// Result builds the answer matrix of an activity.
func (svc *service) Result(ctx context.Context, teacherID, id string) (Result, error) {
	act, err := svc.Get(ctx, teacherID, id)
	if err != nil {
		return Result{}, err
	}
	students, err := svc.stdSvc.ListByIDs(ctx, act.TargetStudentIDs...)
	if err != nil {
		return Result{}, errors.Wrap(err, "listing target students")
	}
	answers, err := svc.repo.QueryAnswers(ctx, AnswerFilter{ActivityID: act.ID})
	if err != nil {
		return Result{}, errors.Wrap(err, "querying answers")
	}

	byKey := make(map[string]Answer, len(answers))
	for _, av := range answers {
		byKey[av.StudentID+"/"+av.QuestionID] = av.Answer
	}

	res := Result{Activity: act, Rows: make([]ResultRow, 0, len(students))}
	for _, st := range students {
		row := ResultRow{Student: st, Cells: make([]ResultCell, 0, len(act.Questions))}
		for _, q := range act.Questions {
			cell := ResultCell{QuestionID: q.ID, State: StateMissing}
			if ans, ok := byKey[st.ID+"/"+q.ID]; ok {
				cell.Answer = &ans
				switch {
				case ans.AbsenceType != AbsenceNone:
					cell.State = StateAbsent
				case ans.Content != "":
					cell.State = StateSubmitted
				}
			}
			switch cell.State {
			case StateSubmitted:
				res.Stats.Submitted++
			case StateAbsent:
				res.Stats.Absent++
			default:
				res.Stats.Missing++
			}
			row.Cells = append(row.Cells, cell)
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// UpdateAnswerMeta records the absence type and the private note of a target student for a question.
// The answer is created empty when the student never submitted one.
func (svc *service) UpdateAnswerMeta(ctx context.Context, teacherID, id string, meta AnswerMeta) (Answer, error) {
	act, err := svc.Get(ctx, teacherID, id)
	if err != nil {
		return Answer{}, err
	}
	if _, ok := act.Question(meta.QuestionID); !ok {
		return Answer{}, ErrQuestionNotFound
	}
	if _, ok := act.Targets(meta.StudentID); !ok {
		return Answer{}, student.ErrNotFound
	}

	ans, err := svc.repo.GetAnswerFor(ctx, meta.QuestionID, meta.StudentID)
	if err != nil {
		if errors.Cause(err) != ErrAnswerNotFound {
			return Answer{}, errors.Wrap(err, "getting answer")
		}
		ans = Answer{QuestionID: meta.QuestionID, StudentID: meta.StudentID, SubmittedAt: nowFunc().UTC()}
	}
	ans.AbsenceType = meta.AbsenceType
	ans.Note = meta.Note
	return svc.repo.SaveAnswer(ctx, ans)
}

// Analyze asks the AI for an analysis of an answer and stores it.
func (svc *service) Analyze(ctx context.Context, teacherID, answerID string) (Answer, error) {
	ans, err := svc.repo.GetAnswer(ctx, answerID)
	if err != nil {
		return Answer{}, err
	}
	q, err := svc.repo.GetQuestion(ctx, ans.QuestionID)
	if err != nil {
		return Answer{}, errors.Wrap(err, "getting question")
	}
	act, err := svc.Get(ctx, teacherID, q.ActivityID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Answer{}, ErrAnswerNotFound
		}
		return Answer{}, err
	}
	if strings.TrimSpace(ans.Content) == "" {
		return Answer{}, core.NewValidationError(ErrNoAnswer)
	}

	gen, err := svc.ai.TextGenerator(ctx)
	if err != nil {
		return Answer{}, err
	}
	text, err := gen.Generate(ctx, analysisSystemPrompt, analysisPrompt(act, q, ans))
	if err != nil {
		return Answer{}, errors.Wrap(err, "generating analysis")
	}

	ans.AIResult = null.StringFrom(strings.TrimSpace(text))
	return svc.repo.SaveAnswer(ctx, ans)
}

func (svc *service) TeacherAnswers(ctx context.Context, teacherID string, filter AnswerFilter) ([]AnswerView, error) {
	filter.TeacherID = teacherID
	return svc.repo.QueryAnswers(ctx, filter)
}

// ListForStudent returns the open activities targeting one of the roster entries linked to usr.
func (svc *service) ListForStudent(ctx context.Context, usr user.User) ([]StudentActivity, error) {
	studentIDs, err := svc.rosterIDs(ctx, usr)
	if err != nil {
		return nil, err
	}
	if len(studentIDs) == 0 {
		return []StudentActivity{}, nil
	}

	acts, err := svc.repo.QueryActivities(
		ctx,
		QueryFilter{IsActive: boolPtr(true), TargetStudentIDs: studentIDs},
		core.DBOrdering{Field: "created_at", Ascending: false},
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying activities")
	}
	answers, err := svc.repo.QueryAnswers(ctx, AnswerFilter{StudentIDs: studentIDs})
	if err != nil {
		return nil, errors.Wrap(err, "querying answers")
	}

	res := make([]StudentActivity, 0, len(acts))
	for _, act := range acts {
		res = append(res, newStudentActivity(act, studentIDs, answers))
	}
	return res, nil
}

func (svc *service) GetForStudent(ctx context.Context, usr user.User, id string) (StudentActivity, error) {
	act, studentID, err := svc.studentActivity(ctx, usr, id)
	if err != nil {
		return StudentActivity{}, err
	}
	if !act.IsActive {
		return StudentActivity{}, ErrNotFound
	}
	answers, err := svc.repo.QueryAnswers(ctx, AnswerFilter{ActivityID: act.ID, StudentIDs: []string{studentID}})
	if err != nil {
		return StudentActivity{}, errors.Wrap(err, "querying answers")
	}
	return newStudentActivity(act, []string{studentID}, answers), nil
}

// Submit saves the answer of a student. The activity must be open and target the student,
// and the content must fit the question's length limit. Each submission appends to the activity log.
func (svc *service) Submit(ctx context.Context, usr user.User, sa SubmitAnswer) (StudentAnswer, error) {
	q, err := svc.repo.GetQuestion(ctx, sa.QuestionID)
	if err != nil {
		return StudentAnswer{}, err
	}
	act, studentID, err := svc.studentActivity(ctx, usr, q.ActivityID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return StudentAnswer{}, ErrQuestionNotFound
		}
		return StudentAnswer{}, err
	}
	if !act.IsActive {
		return StudentAnswer{}, core.NewValidationError(ErrNotOpen)
	}
	if q.MaxLength.Valid {
		if n := utf8.RuneCountInString(sa.Content); n > q.MaxLength.Int {
			return StudentAnswer{}, core.NewValidationError(ErrTooLong, core.FieldError{
				Field: "content",
				Error: fmt.Sprintf("the answer must be at most %d characters long (got %d)", q.MaxLength.Int, n),
			})
		}
	}

	var saved Answer
	err = core.Transact(ctx, svc.db, func(exec core.DBExecutor) error {
		now := nowFunc().UTC()
		ans, err := svc.repo.GetAnswerFor(ctx, q.ID, studentID, exec)
		if err != nil {
			if errors.Cause(err) != ErrAnswerNotFound {
				return errors.Wrap(err, "getting answer")
			}
			ans = Answer{QuestionID: q.ID, StudentID: studentID}
		}
		ans.Content = sa.Content
		ans.SubmittedAt = now
		ans.AbsenceType = AbsenceNone
		ans.ActivityLog = appendLog(ans.ActivityLog, now, utf8.RuneCountInString(sa.Content), sa.Log)

		saved, err = svc.repo.SaveAnswer(ctx, ans, exec)
		return err
	})
	if err != nil {
		return StudentAnswer{}, errors.Wrap(err, "saving answer")
	}
	return toStudentAnswer(saved), nil
}

func (svc *service) QueryActivities(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Activity, error) {
	filter.Clean()
	ordering = core.CleanOrderings(ordering, "title", "section", "subject_name", "is_active", "created_at")
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
	}
	return svc.repo.QueryActivities(ctx, filter, ordering...)
}

func (svc *service) QueryAnswers(ctx context.Context, filter AnswerFilter, ordering ...core.DBOrdering) ([]AnswerView, error) {
	ordering = core.CleanOrderings(ordering, "submitted_at", "student_name", "activity_title")
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "submitted_at", Ascending: false}}
	}
	return svc.repo.QueryAnswers(ctx, filter, ordering...)
}

// checkTargets makes sure that every student belongs to the teacher's roster.
func (svc *service) checkTargets(ctx context.Context, teacherID string, studentIDs []string) error {
	studentIDs = uniqueStrings(studentIDs)
	if len(studentIDs) == 0 {
		return nil
	}
	students, err := svc.stdSvc.ListByIDs(ctx, studentIDs...)
	if err != nil {
		return errors.Wrap(err, "listing students")
	}
	owned := 0
	for _, st := range students {
		if st.TeacherID == teacherID {
			owned++
		}
	}
	if owned != len(studentIDs) {
		return core.NewValidationError(ErrUnknownTarget, core.FieldError{Field: "target_student_ids", Error: ErrUnknownTarget.Error()})
	}
	return nil
}

func (svc *service) rosterIDs(ctx context.Context, usr user.User) ([]string, error) {
	students, err := svc.stdSvc.ListByEmail(ctx, usr.Email)
	if err != nil {
		return nil, errors.Wrap(err, "listing roster entries")
	}
	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	return ids, nil
}

// studentActivity returns the activity if it targets usr, with the matching roster entry ID.
// Closed activities are returned too; callers decide how to treat them.
func (svc *service) studentActivity(ctx context.Context, usr user.User, id string) (Activity, string, error) {
	studentIDs, err := svc.rosterIDs(ctx, usr)
	if err != nil {
		return Activity{}, "", err
	}
	act, err := svc.repo.GetActivity(ctx, id)
	if err != nil {
		return Activity{}, "", err
	}
	studentID, ok := act.Targets(studentIDs...)
	if !ok {
		return Activity{}, "", ErrNotFound
	}
	return act, studentID, nil
}

func newQuestion(activityID string, pos int, nq NewQuestion) Question {
	return Question{
		ActivityID: activityID,
		Position:   pos,
		Content:    nq.Content,
		Reference:  nq.Reference,
		Conditions: nq.Conditions,
		MaxLength:  null.IntFromPtr(nq.MaxLength),
	}
}

func newStudentActivity(act Activity, studentIDs []string, answers []AnswerView) StudentActivity {
	studentID, _ := act.Targets(studentIDs...)
	sa := StudentActivity{Activity: act, StudentID: studentID, Answers: []StudentAnswer{}}
	sa.TargetStudentIDs = nil // other students are none of the student's business

	answered := 0
	for _, av := range answers {
		if av.StudentID != studentID {
			continue
		}
		if _, ok := act.Question(av.QuestionID); ok && av.Content != "" {
			sa.Answers = append(sa.Answers, toStudentAnswer(av.Answer))
			answered++
		}
	}
	sa.Completed = len(act.Questions) > 0 && answered == len(act.Questions)
	return sa
}

func toStudentAnswer(ans Answer) StudentAnswer {
	return StudentAnswer{ID: ans.ID, QuestionID: ans.QuestionID, Content: ans.Content, SubmittedAt: ans.SubmittedAt}
}

// appendLog adds one submission line to the activity log.
func appendLog(log string, at time.Time, chars int, extra string) string {
	var b strings.Builder
	b.WriteString(log)
	if log != "" {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "[%s] submitted %d chars", at.Format(time.RFC3339), chars)
	if extra != "" {
		b.WriteString(": ")
		b.WriteString(extra)
	}
	return b.String()
}

func analysisPrompt(act Activity, q Question, ans Answer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[과목] %s\n[평가 영역] %s\n[평가 주제] %s\n\n", act.SubjectName, act.Section, act.Title)
	fmt.Fprintf(&b, "[평가 문항]\n%s\n\n", q.Content)
	if q.Reference != "" {
		fmt.Fprintf(&b, "[참고 자료]\n%s\n\n", q.Reference)
	}
	if q.Conditions != "" {
		fmt.Fprintf(&b, "[작성 조건]\n%s\n\n", q.Conditions)
	}
	if q.MaxLength.Valid {
		fmt.Fprintf(&b, "[분량 제한] %d자\n\n", q.MaxLength.Int)
	}
	fmt.Fprintf(&b, "[학생 답안]\n%s\n", ans.Content)
	return b.String()
}

func uniqueStrings(vals []string) []string {
	seen := make(map[string]bool, len(vals))
	res := make([]string, 0, len(vals))
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v != "" && !seen[v] {
			seen[v] = true
			res = append(res, v)
		}
	}
	return res
}

func boolPtr(b bool) *bool { return &b }
