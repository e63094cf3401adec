package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/school"
)

type schoolRepository struct {
	baseRepository
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(exec core.DBExecutor) school.Repository {
	return &schoolRepository{baseRepository{exec: exec}}
}

func (repo schoolRepository) GetSchool(ctx context.Context, code string) (school.School, error) {
	var sch school.School
	query := psql.Select("code", "office", "name", "level").From("school").Where(sq.Eq{"code": code})
	if err := repo.get(ctx, repo.exec, &sch, query); err != nil {
		return school.School{}, trapNoRowsErr(err, school.ErrNotFound, "selecting school")
	}
	return sch, nil
}

func (repo schoolRepository) SearchSchools(ctx context.Context, search string, limit int) ([]school.School, error) {
	query := psql.Select("code", "office", "name", "level").
		From("school").
		Where(sq.ILike{"name": ilike(search)}).
		OrderBy("name")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	schools := make([]school.School, 0)
	if err := repo.selectAll(ctx, repo.exec, &schools, query); err != nil {
		return nil, errors.Wrap(err, "searching schools")
	}
	return schools, nil
}

func (repo schoolRepository) CreateSchools(ctx context.Context, schools []school.School, exec ...core.DBExecutor) (int, error) {
	if len(schools) == 0 {
		return 0, nil
	}
	query := psql.Insert("school").Columns("code", "office", "name", "level")
	for _, sch := range schools {
		query = query.Values(sch.Code, sch.Office, sch.Name, sch.Level)
	}
	query = query.Suffix("ON CONFLICT (code) DO NOTHING")

	n, err := repo.run(ctx, repo.getExec(exec), query)
	if err != nil {
		return 0, errors.Wrap(err, "inserting schools")
	}
	return int(n), nil
}

func (repo schoolRepository) QuerySubjects(ctx context.Context) ([]school.Subject, error) {
	subjects := make([]school.Subject, 0)
	if err := repo.selectAll(ctx, repo.exec, &subjects, psql.Select("id", "name").From("subject").OrderBy("name")); err != nil {
		return nil, errors.Wrap(err, "selecting subjects")
	}
	return subjects, nil
}

func (repo schoolRepository) GetOrCreateSubject(ctx context.Context, name string, exec ...core.DBExecutor) (school.Subject, bool, error) {
	ex := repo.getExec(exec)

	var sub school.Subject
	query := psql.Insert("subject").Columns("name").Values(name).
		Suffix("ON CONFLICT (name) DO NOTHING RETURNING id, name")
	err := repo.get(ctx, ex, &sub, query)
	if err == nil {
		return sub, true, nil
	}
	if err = repo.get(ctx, ex, &sub, psql.Select("id", "name").From("subject").Where(sq.Eq{"name": name})); err != nil {
		return school.Subject{}, false, trapNoRowsErr(err, school.ErrSubjectNotFound, "selecting subject")
	}
	return sub, false, nil
}
