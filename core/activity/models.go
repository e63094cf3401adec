package activity

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/student"
)

// Absence types
const (
	AbsenceNone   = ""
	AbsenceSick   = "병결"
	AbsencePublic = "공결"
	AbsenceAck    = "인정결"
	AbsenceNack   = "미인정결"
)

var AbsenceTypes = []string{AbsenceNone, AbsenceSick, AbsencePublic, AbsenceAck, AbsenceNack}

// Answer states in an activity result
const (
	StateSubmitted = "submitted"
	StateAbsent    = "absent"
	StateMissing   = "missing"
)

// Activity is a written evaluation authored by a teacher. Only active activities are shown to students.
type Activity struct {
	ID               string     `json:"id" db:"id"`
	TeacherID        string     `json:"teacher_id" db:"teacher_id"`
	SubjectName      string     `json:"subject_name" db:"subject_name"`
	Section          string     `json:"section" db:"section"`
	Title            string     `json:"title" db:"title"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	TargetStudentIDs []string   `json:"target_student_ids" db:"-"`
	Questions        []Question `json:"questions" db:"-"`
}

// Targets reports whether one of the given roster entries is a target of the activity.
func (a Activity) Targets(studentIDs ...string) (string, bool) {
	for _, id := range studentIDs {
		if core.StringInSlice(id, a.TargetStudentIDs) {
			return id, true
		}
	}
	return "", false
}

func (a Activity) Question(id string) (Question, bool) {
	for _, q := range a.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

type Question struct {
	ID         string   `json:"id" db:"id"`
	ActivityID string   `json:"activity_id" db:"activity_id"`
	Position   int      `json:"position" db:"position"`
	Content    string   `json:"content" db:"content"`
	Reference  string   `json:"reference" db:"reference"`
	Conditions string   `json:"conditions" db:"conditions"`
	MaxLength  null.Int `json:"max_length" db:"max_length"` // characters
}

// Answer is a student's response to a question. There is at most one Answer per (student, question).
type Answer struct {
	ID          string      `json:"id" db:"id"`
	StudentID   string      `json:"student_id" db:"student_id"`
	QuestionID  string      `json:"question_id" db:"question_id"`
	Content     string      `json:"content" db:"content"`
	SubmittedAt time.Time   `json:"submitted_at" db:"submitted_at"`
	ActivityLog string      `json:"activity_log" db:"activity_log"`
	AIResult    null.String `json:"ai_result" db:"ai_result"`
	AbsenceType string      `json:"absence_type" db:"absence_type"`
	Note        string      `json:"note" db:"note"` // private teacher memo
}

// StudentAnswer is an Answer as seen by the student: without the teacher's notes.
type StudentAnswer struct {
	ID          string    `json:"id"`
	QuestionID  string    `json:"question_id"`
	Content     string    `json:"content"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// AnswerView is an Answer with the context the admin list displays.
type AnswerView struct {
	Answer
	StudentName   string `json:"student_name" db:"student_name"`
	ActivityID    string `json:"activity_id" db:"activity_id"`
	ActivityTitle string `json:"activity_title" db:"activity_title"`
	TeacherID     string `json:"teacher_id" db:"teacher_id"`
	HasAIResult   bool   `json:"has_ai_result" db:"has_ai_result"`
}

type NewQuestion struct {
	ID         string `json:"id"` // set to keep an existing question (and its answers) on update
	Content    string `json:"content" validate:"required,notblank"`
	Reference  string `json:"reference"`
	Conditions string `json:"conditions"`
	MaxLength  *int   `json:"max_length" validate:"omitempty,min=1,max=20000"`
}

// NewActivity is used to create an activity and to replace its content on update.
type NewActivity struct {
	Section          string        `json:"section" validate:"required,notblank,max=100"`
	Title            string        `json:"title" validate:"required,notblank,max=200"`
	TargetStudentIDs []string      `json:"target_student_ids"`
	Questions        []NewQuestion `json:"questions" validate:"required,min=1,dive"`
}

func (na *NewActivity) Validate(validate *validator.Validate) error {
	na.Section = core.CleanString(na.Section)
	na.Title = core.CleanString(na.Title)
	for i := range na.Questions {
		na.Questions[i].Content = core.CleanString(na.Questions[i].Content)
		na.Questions[i].Reference = core.CleanString(na.Questions[i].Reference)
		na.Questions[i].Conditions = core.CleanString(na.Questions[i].Conditions)
	}
	return validate.Struct(na)
}

type SetTargets struct {
	StudentIDs []string `json:"student_ids"`
}

// AnswerMeta is the teacher's annotation of a student's answer to a question.
type AnswerMeta struct {
	QuestionID  string `json:"question_id" validate:"required"`
	StudentID   string `json:"student_id" validate:"required"`
	AbsenceType string `json:"absence_type" validate:"absence"`
	Note        string `json:"note" validate:"max=2000"`
}

func (am *AnswerMeta) Validate(validate *validator.Validate) error {
	am.AbsenceType = core.CleanString(am.AbsenceType)
	am.Note = core.CleanString(am.Note)
	return validate.Struct(am)
}

type SubmitAnswer struct {
	QuestionID string `json:"question_id" validate:"required"`
	Content    string `json:"content" validate:"required,notblank"`
	Log        string `json:"log"`
}

func (sa *SubmitAnswer) Validate(validate *validator.Validate) error {
	sa.Content = core.CleanString(sa.Content)
	sa.Log = core.CleanString(sa.Log)
	return validate.Struct(sa)
}

type QueryFilter struct {
	Search   string `query:"search"` // title or subject
	IsActive *bool  `query:"is_active"`
	Subject  string `query:"subject"`

	// set by the services only
	TeacherID        string   `query:"-"`
	TargetStudentIDs []string `query:"-"` // any of
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Subject = core.CleanString(qf.Subject)
}

type AnswerFilter struct {
	ActivityID       string `query:"activity"`
	Search           string `query:"search"` // student name or content
	HasAIResult      *bool  `query:"has_ai_result"`
	RawSubmittedFrom string `query:"submitted_from"`
	RawSubmittedTo   string `query:"submitted_to"`

	// set by the services only
	TeacherID     string    `query:"-"`
	StudentIDs    []string  `query:"-"`
	SubmittedFrom time.Time `query:"-"`
	SubmittedTo   time.Time `query:"-"`
}

func (af *AnswerFilter) Clean() error {
	af.Search = core.CleanString(af.Search)

	var err error
	if af.RawSubmittedFrom != "" {
		if af.SubmittedFrom, err = time.Parse(time.RFC3339, af.RawSubmittedFrom); err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "submitted_from", Error: "invalid date"})
		}
	}
	if af.RawSubmittedTo != "" {
		if af.SubmittedTo, err = time.Parse(time.RFC3339, af.RawSubmittedTo); err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "submitted_to", Error: "invalid date"})
		}
	}
	return nil
}

// Result is the answer matrix of an activity: one row per target student, one cell per question.
type Result struct {
	Activity Activity    `json:"activity"`
	Rows     []ResultRow `json:"rows"`
	Stats    ResultStats `json:"stats"`
}

type ResultRow struct {
	Student student.Student `json:"student"`
	Cells   []ResultCell    `json:"cells"`
}

type ResultCell struct {
	QuestionID string  `json:"question_id"`
	State      string  `json:"state"`
	Answer     *Answer `json:"answer"`
}

type ResultStats struct {
	Submitted int `json:"submitted"`
	Absent    int `json:"absent"`
	Missing   int `json:"missing"`
}

// StudentActivity is an activity assigned to a student, with the student's own answers.
type StudentActivity struct {
	Activity
	StudentID string          `json:"student_id"`
	Answers   []StudentAnswer `json:"answers"`
	Completed bool            `json:"completed"`
}
