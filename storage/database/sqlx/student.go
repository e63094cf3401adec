package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/student"
)

var studentColumns = []string{"id", "teacher_id", "grade", "class_no", "number", "name", "email", "created_at"}

type studentRepository struct {
	baseRepository
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(exec core.DBExecutor) student.Repository {
	return &studentRepository{baseRepository{exec: exec}}
}

func (repo studentRepository) QueryStudents(ctx context.Context, filter student.QueryFilter) ([]student.Student, error) {
	query := psql.Select(studentColumns...).From("student").OrderBy("grade", "class_no", "number")
	if filter.TeacherID != "" {
		query = query.Where(sq.Eq{"teacher_id": filter.TeacherID})
	}
	if filter.Email != "" {
		query = query.Where(sq.Eq{"email": filter.Email})
	}
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return []student.Student{}, nil
		}
		query = query.Where(sq.Eq{"id": filter.IDs})
	}

	students := make([]student.Student, 0)
	if err := repo.selectAll(ctx, repo.exec, &students, query); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	return students, nil
}

func (repo studentRepository) GetStudent(ctx context.Context, id string) (student.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return student.Student{}, student.ErrNotFound
	}
	var st student.Student
	if err := repo.get(ctx, repo.exec, &st, psql.Select(studentColumns...).From("student").Where(sq.Eq{"id": id})); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "selecting student")
	}
	return st, nil
}

func (repo studentRepository) GetStudentBySeat(ctx context.Context, teacherID string, seat student.Seat, exec ...core.DBExecutor) (student.Student, error) {
	query := psql.Select(studentColumns...).From("student").Where(sq.Eq{
		"teacher_id": teacherID,
		"grade":      seat.Grade,
		"class_no":   seat.ClassNo,
		"number":     seat.Number,
	})
	var st student.Student
	if err := repo.get(ctx, repo.getExec(exec), &st, query); err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "selecting student by seat")
	}
	return st, nil
}

func (repo studentRepository) CreateStudent(ctx context.Context, st student.Student, exec ...core.DBExecutor) (student.Student, error) {
	st.ID = uuid.New().String()
	query := psql.Insert("student").Columns(studentColumns...).
		Values(st.ID, st.TeacherID, st.Grade, st.ClassNo, st.Number, st.Name, st.Email, st.CreatedAt.UTC())
	if _, err := repo.run(ctx, repo.getExec(exec), query); err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return st, nil
}

func (repo studentRepository) UpdateStudent(ctx context.Context, st student.Student, exec ...core.DBExecutor) (student.Student, error) {
	query := psql.Update("student").
		SetMap(map[string]interface{}{
			"grade":    st.Grade,
			"class_no": st.ClassNo,
			"number":   st.Number,
			"name":     st.Name,
			"email":    st.Email,
		}).
		Where(sq.Eq{"id": st.ID})

	n, err := repo.run(ctx, repo.getExec(exec), query)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return st, nil
}

func (repo studentRepository) DeleteStudent(ctx context.Context, id string) error {
	if _, err := repo.run(ctx, repo.exec, psql.Delete("student").Where(sq.Eq{"id": id})); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return nil
}
