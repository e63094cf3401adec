package school

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/user"
)

var (
	ErrNotFound        = core.NewNotFoundError("school not found")
	ErrSubjectNotFound = core.NewNotFoundError("subject not found")

	errMissingHeaders = errors.New("the spreadsheet must have the 교육청, 학교명 and 나이스 학교코드 columns")

	searchLimit = 20
)

type (
	Repository interface {
		GetSchool(ctx context.Context, code string) (School, error)
		// SearchSchools does a case-insensitive "contains" match on the name, ordered by name.
		SearchSchools(ctx context.Context, query string, limit int) ([]School, error)
		// CreateSchools inserts the schools whose code is unknown and returns how many were created.
		CreateSchools(ctx context.Context, schools []School, exec ...core.DBExecutor) (int, error)
		QuerySubjects(ctx context.Context) ([]Subject, error)
		// GetOrCreateSubject returns the subject and whether it was created.
		GetOrCreateSubject(ctx context.Context, name string, exec ...core.DBExecutor) (Subject, bool, error)
	}

	Service interface {
		Get(ctx context.Context, code string) (School, error)
		Search(ctx context.Context, query string) ([]School, error)
		Import(ctx context.Context, table core.Table) (ImportResult, error)
		Subjects(ctx context.Context) ([]Subject, error)
		InitSubjects(ctx context.Context) (SubjectsResult, error)
	}

	service struct {
		db     core.DB
		repo   Repository
		usrSvc user.Service
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, usrSvc user.Service, logger core.Logger) Service {
	return &service{db: db, repo: repo, usrSvc: usrSvc, logger: logger}
}

func (svc *service) Get(ctx context.Context, code string) (School, error) {
	return svc.repo.GetSchool(ctx, core.CleanString(code))
}

func (svc *service) Search(ctx context.Context, query string) ([]School, error) {
	query = core.CleanString(query)
	if query == "" {
		return []School{}, nil
	}
	return svc.repo.SearchSchools(ctx, query, searchLimit)
}

// Import get-or-creates the schools listed in a NEIS spreadsheet. Rows are keyed by school code.
func (svc *service) Import(ctx context.Context, table core.Table) (ImportResult, error) {
	res := ImportResult{Errors: []core.RowError{}}

	officeIdx := table.ColumnIndex(officeHeaders...)
	nameIdx := table.ColumnIndex(nameHeaders...)
	codeIdx := table.ColumnIndex(codeHeaders...)
	if officeIdx < 0 || nameIdx < 0 || codeIdx < 0 {
		return res, core.NewValidationError(errMissingHeaders, core.FieldError{Field: "file", Error: errMissingHeaders.Error()})
	}

	seen := make(map[string]bool, len(table.Rows))
	schools := make([]School, 0, len(table.Rows))
	for i, row := range table.Rows {
		sch := School{
			Code:   normalizeCode(table.Cell(row, codeIdx)),
			Office: table.Cell(row, officeIdx),
			Name:   table.Cell(row, nameIdx),
			Level:  LevelHigh,
		}
		switch {
		case sch.Code == "" || sch.Name == "":
			res.Errors = append(res.Errors, core.RowError{Line: i + 2, Reason: "missing school code or name"})
		case seen[sch.Code]:
			res.Errors = append(res.Errors, core.RowError{Line: i + 2, Reason: fmt.Sprintf("duplicate school code %s", sch.Code)})
		default:
			seen[sch.Code] = true
			schools = append(schools, sch)
		}
	}

	err := core.Transact(ctx, svc.db, func(exec core.DBExecutor) error {
		created, err := svc.repo.CreateSchools(ctx, schools, exec)
		if err != nil {
			return err
		}
		res.Created = created
		return nil
	})
	if err != nil {
		return ImportResult{}, errors.Wrap(err, "creating schools")
	}
	res.Skipped = len(schools) - res.Created
	return res, nil
}

func (svc *service) Subjects(ctx context.Context) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx)
}

// InitSubjects creates the default subject catalog, trims the subject of every user
// and reports the users whose subject is not part of the catalog.
func (svc *service) InitSubjects(ctx context.Context) (SubjectsResult, error) {
	res := SubjectsResult{Created: []string{}, Unknown: []UnknownSubject{}}

	err := core.Transact(ctx, svc.db, func(exec core.DBExecutor) error {
		for _, name := range DefaultSubjects {
			_, created, err := svc.repo.GetOrCreateSubject(ctx, name, exec)
			if err != nil {
				return errors.Wrapf(err, "creating subject %s", name)
			}
			if created {
				res.Created = append(res.Created, name)
			}
		}
		return nil
	})
	if err != nil {
		return SubjectsResult{}, err
	}

	subjects, err := svc.repo.QuerySubjects(ctx)
	if err != nil {
		return SubjectsResult{}, errors.Wrap(err, "querying subjects")
	}
	catalog := make(map[string]bool, len(subjects))
	for _, sub := range subjects {
		catalog[sub.Name] = true
	}

	users, err := svc.usrSvc.Query(ctx, user.QueryFilter{})
	if err != nil {
		return SubjectsResult{}, errors.Wrap(err, "querying users")
	}
	for _, usr := range users {
		if usr.Subject == "" {
			continue
		}
		trimmed := strings.TrimSpace(usr.Subject)
		if trimmed != usr.Subject {
			usr.Subject = trimmed
			if _, err = svc.usrSvc.Save(ctx, usr); err != nil {
				return SubjectsResult{}, errors.Wrap(err, "saving user")
			}
			res.Normalized++
		}
		if !catalog[trimmed] {
			res.Unknown = append(res.Unknown, UnknownSubject{UserID: usr.ID, Email: usr.Email, Subject: trimmed})
			svc.logger.Warn(fmt.Sprintf("unknown subject %q for user %s", trimmed, usr.Email))
		}
	}
	return res, nil
}

// normalizeCode drops the decimal part spreadsheets add to numeric codes ("7010057.0").
func normalizeCode(code string) string {
	if i := strings.Index(code, "."); i > 0 && strings.Trim(code[i+1:], "0") == "" {
		return code[:i]
	}
	return code
}
