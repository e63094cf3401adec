package student

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/classnote/classnote/core"
)

// roster spreadsheet headers
var (
	gradeHeaders  = []string{"학년", "grade"}
	classHeaders  = []string{"반", "class", "class_no"}
	numberHeaders = []string{"번호", "number", "no"}
	nameHeaders   = []string{"이름", "성명", "name"}
	emailHeaders  = []string{"이메일", "email"}
)

// Student is an entry of a teacher's roster. Email links it to a student account.
type Student struct {
	ID        string    `json:"id" db:"id"`
	TeacherID string    `json:"teacher_id" db:"teacher_id"`
	Grade     int       `json:"grade" db:"grade"`
	ClassNo   int       `json:"class_no" db:"class_no"`
	Number    int       `json:"number" db:"number"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Seat is the (grade, class, number) triple identifying a student in a teacher's roster.
type Seat struct {
	Grade   int
	ClassNo int
	Number  int
}

func (st Student) Seat() Seat {
	return Seat{Grade: st.Grade, ClassNo: st.ClassNo, Number: st.Number}
}

type NewStudent struct {
	Grade   int    `json:"grade" validate:"required,min=1,max=6"`
	ClassNo int    `json:"class_no" validate:"required,min=1,max=30"`
	Number  int    `json:"number" validate:"required,min=1,max=99"`
	Name    string `json:"name" validate:"required,notblank,max=50"`
	Email   string `json:"email" validate:"omitempty,email"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	return validate.Struct(ns)
}

type QueryFilter struct {
	TeacherID string
	Email     string
	IDs       []string
}

// UploadResult is the outcome of a roster upload.
type UploadResult struct {
	Created int             `json:"created"`
	Updated int             `json:"updated"`
	Errors  []core.RowError `json:"errors"`
}

// MatchResult is the outcome of matching a roster against the student accounts.
type MatchResult struct {
	Matched    int              `json:"matched"`
	Duplicates []DuplicateMatch `json:"duplicates"`
	NotFound   []Student        `json:"not_found"`
}

type DuplicateMatch struct {
	Student  Student  `json:"student"`
	Accounts []string `json:"accounts"` // emails
}
