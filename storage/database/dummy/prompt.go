package dummydb

import (
	"context"

	"github.com/classnote/classnote/core/prompt"
)

type promptRepository struct {
	db *promptTable
}

var _ prompt.Repository = (*promptRepository)(nil)

func NewPromptRepository(db *DB) prompt.Repository {
	return &promptRepository{db: db.prompt}
}

func (repo *promptRepository) QueryCategories(_ context.Context) ([]prompt.Category, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	res := make([]prompt.Category, 0, len(repo.db.categories))
	for _, cat := range repo.db.categories {
		res = append(res, cat)
	}
	return res, nil
}

func (repo *promptRepository) GetCategory(_ context.Context, id string) (prompt.Category, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if cat, ok := repo.db.categories[id]; ok {
		return cat, nil
	}
	return prompt.Category{}, prompt.ErrCategoryNotFound
}

func (repo *promptRepository) CreateCategory(_ context.Context, cat prompt.Category) (prompt.Category, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cat.ID = newID()
	repo.db.categories[cat.ID] = cat
	return cat, nil
}

func (repo *promptRepository) UpdateCategory(_ context.Context, cat prompt.Category) (prompt.Category, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.categories[cat.ID]; !ok {
		return prompt.Category{}, prompt.ErrCategoryNotFound
	}
	repo.db.categories[cat.ID] = cat
	return cat, nil
}

func (repo *promptRepository) DeleteCategory(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for tID, tmpl := range repo.db.templates {
		if tmpl.CategoryID == id {
			delete(repo.db.templates, tID)
		}
	}
	delete(repo.db.categories, id)
	return nil
}

func (repo *promptRepository) QueryTemplates(_ context.Context, categoryID string) ([]prompt.Template, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	res := make([]prompt.Template, 0)
	for _, tmpl := range repo.db.templates {
		if categoryID == "" || tmpl.CategoryID == categoryID {
			res = append(res, tmpl)
		}
	}
	return res, nil
}

func (repo *promptRepository) GetTemplate(_ context.Context, id string) (prompt.Template, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if tmpl, ok := repo.db.templates[id]; ok {
		return tmpl, nil
	}
	return prompt.Template{}, prompt.ErrTemplateNotFound
}

func (repo *promptRepository) CreateTemplate(_ context.Context, tmpl prompt.Template) (prompt.Template, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	tmpl.ID = newID()
	repo.db.templates[tmpl.ID] = tmpl
	return tmpl, nil
}

func (repo *promptRepository) UpdateTemplate(_ context.Context, tmpl prompt.Template) (prompt.Template, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.templates[tmpl.ID]; !ok {
		return prompt.Template{}, prompt.ErrTemplateNotFound
	}
	repo.db.templates[tmpl.ID] = tmpl
	return tmpl, nil
}

func (repo *promptRepository) DeleteTemplate(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.templates, id)
	return nil
}
