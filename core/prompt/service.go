package prompt

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/classnote/classnote/core"
)

var (
	ErrCategoryNotFound = core.NewNotFoundError("category not found")
	ErrTemplateNotFound = core.NewNotFoundError("template not found")

	ErrParentNotFound = errors.New("parent category not found")
	ErrCycle          = errors.New("a category cannot be moved under itself or one of its subcategories")
	ErrHasChildren    = errors.New("delete or move the subcategories first")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		QueryCategories(ctx context.Context) ([]Category, error)
		GetCategory(ctx context.Context, id string) (Category, error)
		CreateCategory(ctx context.Context, cat Category) (Category, error)
		UpdateCategory(ctx context.Context, cat Category) (Category, error)
		// DeleteCategory also deletes the templates of the category.
		DeleteCategory(ctx context.Context, id string) error

		// QueryTemplates returns all templates when categoryID is empty.
		QueryTemplates(ctx context.Context, categoryID string) ([]Template, error)
		GetTemplate(ctx context.Context, id string) (Template, error)
		CreateTemplate(ctx context.Context, tmpl Template) (Template, error)
		UpdateTemplate(ctx context.Context, tmpl Template) (Template, error)
		DeleteTemplate(ctx context.Context, id string) error
	}

	Service interface {
		Tree(ctx context.Context) ([]TreeNode, error)
		CreateCategory(ctx context.Context, nc NewCategory) (Category, error)
		UpdateCategory(ctx context.Context, id string, nc NewCategory) (Category, error)
		DeleteCategory(ctx context.Context, id string) error

		Templates(ctx context.Context, categoryID string) ([]Template, error)
		GetTemplate(ctx context.Context, id string) (Template, error)
		CreateTemplate(ctx context.Context, nt NewTemplate) (Template, error)
		UpdateTemplate(ctx context.Context, id string, nt NewTemplate) (Template, error)
		DeleteTemplate(ctx context.Context, id string) error

		Menu(ctx context.Context) ([]MenuNode, error)
		Diagnose(ctx context.Context) (Diagnosis, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Tree(ctx context.Context) ([]TreeNode, error) {
	cats, err := svc.repo.QueryCategories(ctx)
	if err != nil {
		return nil, err
	}
	return SortTree(cats), nil
}

func (svc *service) CreateCategory(ctx context.Context, nc NewCategory) (Category, error) {
	if nc.ParentID != "" {
		if err := svc.checkParent(ctx, nc.ParentID); err != nil {
			return Category{}, err
		}
	}
	return svc.repo.CreateCategory(ctx, Category{
		Name:      nc.Name,
		ParentID:  null.NewString(nc.ParentID, nc.ParentID != ""),
		SortOrder: nc.SortOrder,
		CreatedAt: nowFunc().UTC(),
	})
}

func (svc *service) UpdateCategory(ctx context.Context, id string, nc NewCategory) (Category, error) {
	cat, err := svc.repo.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}

	if nc.ParentID != "" {
		if err = svc.checkParent(ctx, nc.ParentID); err != nil {
			return Category{}, err
		}
		cats, err := svc.repo.QueryCategories(ctx)
		if err != nil {
			return Category{}, errors.Wrap(err, "querying categories")
		}
		if nc.ParentID == id || Descendants(cats, id)[nc.ParentID] {
			return Category{}, core.NewValidationError(ErrCycle, core.FieldError{Field: "parent_id", Error: ErrCycle.Error()})
		}
	}

	cat.Name = nc.Name
	cat.ParentID = null.NewString(nc.ParentID, nc.ParentID != "")
	cat.SortOrder = nc.SortOrder
	return svc.repo.UpdateCategory(ctx, cat)
}

func (svc *service) DeleteCategory(ctx context.Context, id string) error {
	if _, err := svc.repo.GetCategory(ctx, id); err != nil {
		return err
	}
	cats, err := svc.repo.QueryCategories(ctx)
	if err != nil {
		return errors.Wrap(err, "querying categories")
	}
	for _, cat := range cats {
		if cat.ParentID.Valid && cat.ParentID.String == id {
			return core.NewValidationError(ErrHasChildren)
		}
	}
	return svc.repo.DeleteCategory(ctx, id)
}

func (svc *service) Templates(ctx context.Context, categoryID string) ([]Template, error) {
	tmpls, err := svc.repo.QueryTemplates(ctx, core.CleanString(categoryID))
	if err != nil {
		return nil, err
	}
	sortTemplates(tmpls)
	return tmpls, nil
}

func (svc *service) GetTemplate(ctx context.Context, id string) (Template, error) {
	return svc.repo.GetTemplate(ctx, id)
}

func (svc *service) CreateTemplate(ctx context.Context, nt NewTemplate) (Template, error) {
	if err := svc.checkCategory(ctx, nt.CategoryID); err != nil {
		return Template{}, err
	}
	return svc.repo.CreateTemplate(ctx, Template{
		CategoryID: nt.CategoryID,
		Title:      nt.Title,
		Content:    nt.Content,
		SortOrder:  nt.SortOrder,
		CreatedAt:  nowFunc().UTC(),
	})
}

func (svc *service) UpdateTemplate(ctx context.Context, id string, nt NewTemplate) (Template, error) {
	tmpl, err := svc.repo.GetTemplate(ctx, id)
	if err != nil {
		return Template{}, err
	}
	if err = svc.checkCategory(ctx, nt.CategoryID); err != nil {
		return Template{}, err
	}
	tmpl.CategoryID = nt.CategoryID
	tmpl.Title = nt.Title
	tmpl.Content = nt.Content
	tmpl.SortOrder = nt.SortOrder
	return svc.repo.UpdateTemplate(ctx, tmpl)
}

func (svc *service) DeleteTemplate(ctx context.Context, id string) error {
	if _, err := svc.repo.GetTemplate(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteTemplate(ctx, id)
}

func (svc *service) Menu(ctx context.Context) ([]MenuNode, error) {
	cats, tmpls, err := svc.load(ctx)
	if err != nil {
		return nil, err
	}
	return BuildMenu(cats, tmpls), nil
}

func (svc *service) Diagnose(ctx context.Context) (Diagnosis, error) {
	cats, tmpls, err := svc.load(ctx)
	if err != nil {
		return Diagnosis{}, err
	}
	return Diagnose(cats, tmpls), nil
}

func (svc *service) load(ctx context.Context) ([]Category, []Template, error) {
	cats, err := svc.repo.QueryCategories(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying categories")
	}
	tmpls, err := svc.repo.QueryTemplates(ctx, "")
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying templates")
	}
	return cats, tmpls, nil
}

func (svc *service) checkParent(ctx context.Context, parentID string) error {
	if _, err := svc.repo.GetCategory(ctx, parentID); err != nil {
		if errors.Cause(err) == ErrCategoryNotFound {
			return core.NewValidationError(ErrParentNotFound, core.FieldError{Field: "parent_id", Error: ErrParentNotFound.Error()})
		}
		return errors.Wrap(err, "getting parent category")
	}
	return nil
}

func (svc *service) checkCategory(ctx context.Context, id string) error {
	if _, err := svc.repo.GetCategory(ctx, id); err != nil {
		if errors.Cause(err) == ErrCategoryNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "category_id", Error: err.Error()})
		}
		return errors.Wrap(err, "getting category")
	}
	return nil
}
