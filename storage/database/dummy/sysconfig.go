package dummydb

import (
	"context"
	"sort"

	"github.com/classnote/classnote/core/sysconfig"
)

type configRepository struct {
	db *configTable
}

var _ sysconfig.Repository = (*configRepository)(nil)

func NewConfigRepository(db *DB) sysconfig.Repository {
	return &configRepository{db: db.config}
}

func (repo *configRepository) GetEntry(_ context.Context, key string) (sysconfig.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if entry, ok := repo.db.table[key]; ok {
		return entry, nil
	}
	return sysconfig.Entry{}, sysconfig.ErrNotFound
}

func (repo *configRepository) QueryEntries(_ context.Context, search string) ([]sysconfig.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	res := make([]sysconfig.Entry, 0, len(repo.db.table))
	for _, entry := range repo.db.table {
		if search == "" || containsFold(entry.Key, search) || containsFold(entry.Description, search) {
			res = append(res, entry)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Key < res[j].Key })
	return res, nil
}

func (repo *configRepository) SaveEntry(_ context.Context, entry sysconfig.Entry) (sysconfig.Entry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[entry.Key] = entry
	return entry, nil
}

func (repo *configRepository) DeleteEntry(_ context.Context, key string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.table, key)
	return nil
}
