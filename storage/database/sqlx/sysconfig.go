package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/sysconfig"
)

type configRepository struct {
	baseRepository
}

var _ sysconfig.Repository = (*configRepository)(nil)

func NewConfigRepository(exec core.DBExecutor) sysconfig.Repository {
	return &configRepository{baseRepository{exec: exec}}
}

func (repo configRepository) selectEntries() sq.SelectBuilder {
	return psql.Select("key", "value", "description", "updated_at").From("system_config")
}

func (repo configRepository) GetEntry(ctx context.Context, key string) (sysconfig.Entry, error) {
	var entry sysconfig.Entry
	if err := repo.get(ctx, repo.exec, &entry, repo.selectEntries().Where(sq.Eq{"key": key})); err != nil {
		return sysconfig.Entry{}, trapNoRowsErr(err, sysconfig.ErrNotFound, "selecting config entry")
	}
	return entry, nil
}

func (repo configRepository) QueryEntries(ctx context.Context, search string) ([]sysconfig.Entry, error) {
	query := repo.selectEntries().OrderBy("key")
	if search != "" {
		val := ilike(search)
		query = query.Where(sq.Or{sq.ILike{"key": val}, sq.ILike{"description": val}})
	}

	entries := make([]sysconfig.Entry, 0)
	if err := repo.selectAll(ctx, repo.exec, &entries, query); err != nil {
		return nil, errors.Wrap(err, "selecting config entries")
	}
	return entries, nil
}

func (repo configRepository) SaveEntry(ctx context.Context, entry sysconfig.Entry) (sysconfig.Entry, error) {
	query := psql.Insert("system_config").
		Columns("key", "value", "description", "updated_at").
		Values(entry.Key, entry.Value, entry.Description, entry.UpdatedAt.UTC()).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, description = EXCLUDED.description, updated_at = EXCLUDED.updated_at")
	if _, err := repo.run(ctx, repo.exec, query); err != nil {
		return sysconfig.Entry{}, errors.Wrap(err, "saving config entry")
	}
	return entry, nil
}

func (repo configRepository) DeleteEntry(ctx context.Context, key string) error {
	n, err := repo.run(ctx, repo.exec, psql.Delete("system_config").Where(sq.Eq{"key": key}))
	if err != nil {
		return errors.Wrap(err, "deleting config entry")
	}
	if n == 0 {
		return sysconfig.ErrNotFound
	}
	return nil
}
