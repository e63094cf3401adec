package dummydb

import (
	"context"
	"sort"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/school"
)

type schoolRepository struct {
	db *schoolTable
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db.school}
}

func (repo *schoolRepository) GetSchool(_ context.Context, code string) (school.School, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sch, ok := repo.db.schools[code]; ok {
		return sch, nil
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) SearchSchools(_ context.Context, query string, limit int) ([]school.School, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	res := make([]school.School, 0)
	for _, sch := range repo.db.schools {
		if containsFold(sch.Name, query) {
			res = append(res, sch)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (repo *schoolRepository) CreateSchools(_ context.Context, schools []school.School, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var created int
	for _, sch := range schools {
		if _, ok := repo.db.schools[sch.Code]; !ok {
			repo.db.schools[sch.Code] = sch
			created++
		}
	}
	return created, nil
}

func (repo *schoolRepository) QuerySubjects(_ context.Context) ([]school.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subjects := append([]school.Subject{}, repo.db.subjects...)
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects, nil
}

func (repo *schoolRepository) GetOrCreateSubject(_ context.Context, name string, _ ...core.DBExecutor) (school.Subject, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, sub := range repo.db.subjects {
		if sub.Name == name {
			return sub, false, nil
		}
	}
	sub := school.Subject{ID: len(repo.db.subjects) + 1, Name: name}
	repo.db.subjects = append(repo.db.subjects, sub)
	return sub, true, nil
}
