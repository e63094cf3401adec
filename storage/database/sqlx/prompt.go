package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/prompt"
)

var (
	categoryColumns = []string{"id", "name", "parent_id", "sort_order", "created_at"}
	templateColumns = []string{"id", "category_id", "title", "content", "sort_order", "created_at"}
)

type promptRepository struct {
	baseRepository
}

var _ prompt.Repository = (*promptRepository)(nil)

func NewPromptRepository(exec core.DBExecutor) prompt.Repository {
	return &promptRepository{baseRepository{exec: exec}}
}

func (repo promptRepository) QueryCategories(ctx context.Context) ([]prompt.Category, error) {
	cats := make([]prompt.Category, 0)
	query := psql.Select(categoryColumns...).From("prompt_category").OrderBy("sort_order", "name")
	if err := repo.selectAll(ctx, repo.exec, &cats, query); err != nil {
		return nil, errors.Wrap(err, "selecting categories")
	}
	return cats, nil
}

func (repo promptRepository) GetCategory(ctx context.Context, id string) (prompt.Category, error) {
	if _, err := uuid.Parse(id); err != nil {
		return prompt.Category{}, prompt.ErrCategoryNotFound
	}
	var cat prompt.Category
	query := psql.Select(categoryColumns...).From("prompt_category").Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.exec, &cat, query); err != nil {
		return prompt.Category{}, trapNoRowsErr(err, prompt.ErrCategoryNotFound, "selecting category")
	}
	return cat, nil
}

func (repo promptRepository) CreateCategory(ctx context.Context, cat prompt.Category) (prompt.Category, error) {
	cat.ID = uuid.New().String()
	query := psql.Insert("prompt_category").Columns(categoryColumns...).
		Values(cat.ID, cat.Name, cat.ParentID, cat.SortOrder, cat.CreatedAt.UTC())
	if _, err := repo.run(ctx, repo.exec, query); err != nil {
		return prompt.Category{}, errors.Wrap(err, "inserting category")
	}
	return cat, nil
}

func (repo promptRepository) UpdateCategory(ctx context.Context, cat prompt.Category) (prompt.Category, error) {
	query := psql.Update("prompt_category").
		Set("name", cat.Name).
		Set("parent_id", cat.ParentID).
		Set("sort_order", cat.SortOrder).
		Where(sq.Eq{"id": cat.ID})

	n, err := repo.run(ctx, repo.exec, query)
	if err != nil {
		return prompt.Category{}, errors.Wrap(err, "updating category")
	}
	if n == 0 {
		return prompt.Category{}, prompt.ErrCategoryNotFound
	}
	return cat, nil
}

// DeleteCategory relies on the ON DELETE CASCADE of prompt_template.category_id.
func (repo promptRepository) DeleteCategory(ctx context.Context, id string) error {
	if _, err := repo.run(ctx, repo.exec, psql.Delete("prompt_category").Where(sq.Eq{"id": id})); err != nil {
		return errors.Wrap(err, "deleting category")
	}
	return nil
}

func (repo promptRepository) QueryTemplates(ctx context.Context, categoryID string) ([]prompt.Template, error) {
	query := psql.Select(templateColumns...).From("prompt_template").OrderBy("sort_order", "title")
	if categoryID != "" {
		query = query.Where(sq.Eq{"category_id": categoryID})
	}

	tmpls := make([]prompt.Template, 0)
	if err := repo.selectAll(ctx, repo.exec, &tmpls, query); err != nil {
		return nil, errors.Wrap(err, "selecting templates")
	}
	return tmpls, nil
}

func (repo promptRepository) GetTemplate(ctx context.Context, id string) (prompt.Template, error) {
	if _, err := uuid.Parse(id); err != nil {
		return prompt.Template{}, prompt.ErrTemplateNotFound
	}
	var tmpl prompt.Template
	query := psql.Select(templateColumns...).From("prompt_template").Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.exec, &tmpl, query); err != nil {
		return prompt.Template{}, trapNoRowsErr(err, prompt.ErrTemplateNotFound, "selecting template")
	}
	return tmpl, nil
}

func (repo promptRepository) CreateTemplate(ctx context.Context, tmpl prompt.Template) (prompt.Template, error) {
	tmpl.ID = uuid.New().String()
	query := psql.Insert("prompt_template").Columns(templateColumns...).
		Values(tmpl.ID, tmpl.CategoryID, tmpl.Title, tmpl.Content, tmpl.SortOrder, tmpl.CreatedAt.UTC())
	if _, err := repo.run(ctx, repo.exec, query); err != nil {
		return prompt.Template{}, errors.Wrap(err, "inserting template")
	}
	return tmpl, nil
}

func (repo promptRepository) UpdateTemplate(ctx context.Context, tmpl prompt.Template) (prompt.Template, error) {
	query := psql.Update("prompt_template").
		SetMap(map[string]interface{}{
			"category_id": tmpl.CategoryID,
			"title":       tmpl.Title,
			"content":     tmpl.Content,
			"sort_order":  tmpl.SortOrder,
		}).
		Where(sq.Eq{"id": tmpl.ID})

	n, err := repo.run(ctx, repo.exec, query)
	if err != nil {
		return prompt.Template{}, errors.Wrap(err, "updating template")
	}
	if n == 0 {
		return prompt.Template{}, prompt.ErrTemplateNotFound
	}
	return tmpl, nil
}

func (repo promptRepository) DeleteTemplate(ctx context.Context, id string) error {
	if _, err := repo.run(ctx, repo.exec, psql.Delete("prompt_template").Where(sq.Eq{"id": id})); err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return nil
}
