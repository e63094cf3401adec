package student

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/user"
)

var (
	ErrNotFound       = core.NewNotFoundError("student not found")
	ErrSeatTaken      = errors.New("a student already sits at this grade, class and number")
	ErrNotLinked      = errors.New("this student is not linked to an account")
	errMissingHeaders = errors.New("the spreadsheet must have the 학년, 반, 번호 and 이름 columns")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		QueryStudents(ctx context.Context, filter QueryFilter) ([]Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		GetStudentBySeat(ctx context.Context, teacherID string, seat Seat, exec ...core.DBExecutor) (Student, error)
		CreateStudent(ctx context.Context, st Student, exec ...core.DBExecutor) (Student, error)
		UpdateStudent(ctx context.Context, st Student, exec ...core.DBExecutor) (Student, error)
		DeleteStudent(ctx context.Context, id string) error
	}

	Service interface {
		List(ctx context.Context, teacherID string) ([]Student, error)
		Get(ctx context.Context, teacherID, id string) (Student, error)
		ListByEmail(ctx context.Context, email string) ([]Student, error)
		ListByIDs(ctx context.Context, ids ...string) ([]Student, error)
		Create(ctx context.Context, teacherID string, ns NewStudent) (Student, error)
		Upload(ctx context.Context, teacherID string, table core.Table) (UploadResult, error)
		Delete(ctx context.Context, teacherID, id string) error
		ResetPassword(ctx context.Context, teacherID, id string) (user.User, error)
		MatchAccounts(ctx context.Context, teacherID string) (MatchResult, error)
	}

	service struct {
		db       core.DB
		repo     Repository
		usrSvc   user.Service
		validate *validator.Validate
		conf     *core.Config
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	usrSvc user.Service,
	validate *validator.Validate,
	conf *core.Config,
	logger core.Logger,
) Service {
	return &service{db: db, repo: repo, usrSvc: usrSvc, validate: validate, conf: conf, logger: logger}
}

// List returns the roster of a teacher ordered by grade, class and number.
func (svc *service) List(ctx context.Context, teacherID string) ([]Student, error) {
	students, err := svc.repo.QueryStudents(ctx, QueryFilter{TeacherID: teacherID})
	if err != nil {
		return nil, err
	}
	SortBySeat(students)
	return students, nil
}

// Get returns a student of the teacher's roster. Other teachers' students are not found.
func (svc *service) Get(ctx context.Context, teacherID, id string) (Student, error) {
	st, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if st.TeacherID != teacherID {
		return Student{}, ErrNotFound
	}
	return st, nil
}

// ListByEmail returns the roster entries linked to a student account.
func (svc *service) ListByEmail(ctx context.Context, email string) ([]Student, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return []Student{}, nil
	}
	return svc.repo.QueryStudents(ctx, QueryFilter{Email: email})
}

func (svc *service) ListByIDs(ctx context.Context, ids ...string) ([]Student, error) {
	if len(ids) == 0 {
		return []Student{}, nil
	}
	students, err := svc.repo.QueryStudents(ctx, QueryFilter{IDs: ids})
	if err != nil {
		return nil, err
	}
	SortBySeat(students)
	return students, nil
}

func (svc *service) Create(ctx context.Context, teacherID string, ns NewStudent) (Student, error) {
	seat := Seat{Grade: ns.Grade, ClassNo: ns.ClassNo, Number: ns.Number}
	if _, err := svc.repo.GetStudentBySeat(ctx, teacherID, seat); err == nil {
		return Student{}, core.NewValidationError(ErrSeatTaken, core.FieldError{Field: "number", Error: ErrSeatTaken.Error()})
	} else if errors.Cause(err) != ErrNotFound {
		return Student{}, errors.Wrap(err, "getting student by seat")
	}

	return svc.repo.CreateStudent(ctx, Student{
		TeacherID: teacherID,
		Grade:     ns.Grade,
		ClassNo:   ns.ClassNo,
		Number:    ns.Number,
		Name:      ns.Name,
		Email:     ns.Email,
		CreatedAt: nowFunc().UTC(),
	})
}

// Upload imports a roster spreadsheet. Rows are upserted by seat; invalid rows are reported and skipped.
func (svc *service) Upload(ctx context.Context, teacherID string, table core.Table) (UploadResult, error) {
	res := UploadResult{Errors: []core.RowError{}}

	gradeIdx := table.ColumnIndex(gradeHeaders...)
	classIdx := table.ColumnIndex(classHeaders...)
	numberIdx := table.ColumnIndex(numberHeaders...)
	nameIdx := table.ColumnIndex(nameHeaders...)
	emailIdx := table.ColumnIndex(emailHeaders...)
	if gradeIdx < 0 || classIdx < 0 || numberIdx < 0 || nameIdx < 0 {
		return res, core.NewValidationError(errMissingHeaders, core.FieldError{Field: "file", Error: errMissingHeaders.Error()})
	}

	rows := make(map[Seat]NewStudent, len(table.Rows))
	order := make([]Seat, 0, len(table.Rows))
	for i, row := range table.Rows {
		line := i + 2
		if isBlankRow(row) {
			continue
		}

		ns := NewStudent{
			Grade:   parseInt(table.Cell(row, gradeIdx)),
			ClassNo: parseInt(table.Cell(row, classIdx)),
			Number:  parseInt(table.Cell(row, numberIdx)),
			Name:    table.Cell(row, nameIdx),
			Email:   table.Cell(row, emailIdx),
		}
		if err := ns.Validate(svc.validate); err != nil {
			res.Errors = append(res.Errors, core.RowError{Line: line, Reason: rowErrorReason(err)})
			continue
		}
		seat := Seat{Grade: ns.Grade, ClassNo: ns.ClassNo, Number: ns.Number}
		if _, dup := rows[seat]; dup {
			res.Errors = append(res.Errors, core.RowError{
				Line:   line,
				Reason: fmt.Sprintf("duplicate seat %d-%d-%d", seat.Grade, seat.ClassNo, seat.Number),
			})
			continue
		}
		rows[seat] = ns
		order = append(order, seat)
	}

	err := core.Transact(ctx, svc.db, func(exec core.DBExecutor) error {
		now := nowFunc().UTC()
		for _, seat := range order {
			ns := rows[seat]
			st, err := svc.repo.GetStudentBySeat(ctx, teacherID, seat, exec)
			switch {
			case err == nil:
				st.Name = ns.Name
				if ns.Email != "" {
					st.Email = ns.Email
				}
				if _, err = svc.repo.UpdateStudent(ctx, st, exec); err != nil {
					return errors.Wrap(err, "updating student")
				}
				res.Updated++
			case errors.Cause(err) == ErrNotFound:
				st = Student{
					TeacherID: teacherID,
					Grade:     ns.Grade,
					ClassNo:   ns.ClassNo,
					Number:    ns.Number,
					Name:      ns.Name,
					Email:     ns.Email,
					CreatedAt: now,
				}
				if _, err = svc.repo.CreateStudent(ctx, st, exec); err != nil {
					return errors.Wrap(err, "creating student")
				}
				res.Created++
			default:
				return errors.Wrap(err, "getting student by seat")
			}
		}
		return nil
	})
	if err != nil {
		return UploadResult{}, err
	}
	return res, nil
}

func (svc *service) Delete(ctx context.Context, teacherID, id string) error {
	if _, err := svc.Get(ctx, teacherID, id); err != nil {
		return err
	}
	return svc.repo.DeleteStudent(ctx, id)
}

// ResetPassword sets the linked student account's password back to the configured default.
func (svc *service) ResetPassword(ctx context.Context, teacherID, id string) (user.User, error) {
	st, err := svc.Get(ctx, teacherID, id)
	if err != nil {
		return user.User{}, err
	}
	if st.Email == "" {
		return user.User{}, core.NewValidationError(ErrNotLinked)
	}

	usr, err := svc.usrSvc.GetByEmail(ctx, st.Email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, core.NewValidationError(ErrNotLinked)
		}
		return user.User{}, errors.Wrap(err, "getting user by email")
	}
	if !usr.IsStudent() {
		return user.User{}, core.NewPermissionError("only student accounts can be reset by a teacher")
	}
	return svc.usrSvc.SetPassword(ctx, usr, svc.conf.StudentDefaultPassword)
}

// MatchAccounts links the roster entries of a teacher to the student accounts having the same name.
// A single candidate is linked (and gets the teacher's school when it has none); several candidates
// are reported as duplicates and left alone.
func (svc *service) MatchAccounts(ctx context.Context, teacherID string) (MatchResult, error) {
	res := MatchResult{Duplicates: []DuplicateMatch{}, NotFound: []Student{}}

	teacher, err := svc.usrSvc.GetByID(ctx, teacherID)
	if err != nil {
		return res, errors.Wrap(err, "getting teacher")
	}
	students, err := svc.List(ctx, teacherID)
	if err != nil {
		return res, errors.Wrap(err, "listing students")
	}

	for _, st := range students {
		accounts, err := svc.usrSvc.Query(
			ctx,
			user.QueryFilter{Name: st.Name, Roles: []string{user.RoleStudent}, IsActive: boolPtr(true)},
			core.DBOrdering{Field: "created_at", Ascending: true},
		)
		if err != nil {
			return res, errors.Wrap(err, "querying student accounts")
		}

		switch len(accounts) {
		case 0:
			res.NotFound = append(res.NotFound, st)
		case 1:
			acc := accounts[0]
			if st.Email != acc.Email {
				st.Email = acc.Email
				if _, err = svc.repo.UpdateStudent(ctx, st); err != nil {
					return res, errors.Wrap(err, "updating student")
				}
			}
			if acc.SchoolCode == "" && teacher.SchoolCode != "" {
				acc.SchoolCode = teacher.SchoolCode
				if _, err = svc.usrSvc.Save(ctx, acc); err != nil {
					return res, errors.Wrap(err, "saving student account")
				}
			}
			res.Matched++
		default:
			emails := make([]string, 0, len(accounts))
			for _, acc := range accounts {
				emails = append(emails, acc.Email)
			}
			res.Duplicates = append(res.Duplicates, DuplicateMatch{Student: st, Accounts: emails})
			svc.logger.Warn(fmt.Sprintf("%d accounts named %q, student %s skipped", len(accounts), st.Name, st.ID))
		}
	}
	return res, nil
}

// SortBySeat sorts students by grade, class and number.
func SortBySeat(students []Student) {
	sort.SliceStable(students, func(i, j int) bool {
		a, b := students[i], students[j]
		if a.Grade != b.Grade {
			return a.Grade < b.Grade
		}
		if a.ClassNo != b.ClassNo {
			return a.ClassNo < b.ClassNo
		}
		return a.Number < b.Number
	})
}

// parseInt accepts the "3" and "3.0" forms spreadsheets produce. Invalid numbers give 0.
func parseInt(s string) int {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "."); i > 0 && strings.Trim(s[i+1:], "0") == "" {
		s = s[:i]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func rowErrorReason(err error) string {
	if vErrs, ok := err.(validator.ValidationErrors); ok && len(vErrs) > 0 {
		reasons := make([]string, 0, len(vErrs))
		for _, vErr := range vErrs {
			reasons = append(reasons, "invalid "+vErr.Field())
		}
		return strings.Join(reasons, ", ")
	}
	return err.Error()
}

func boolPtr(b bool) *bool { return &b }
