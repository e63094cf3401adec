package prompt

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/classnote/classnote/core"
)

// Category is a node of the prompt tree. Roots have no parent.
type Category struct {
	ID        string      `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	ParentID  null.String `json:"parent_id" db:"parent_id"`
	SortOrder int         `json:"sort_order" db:"sort_order"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// Template is a reusable prompt snippet filed under a category.
type Template struct {
	ID         string    `json:"id" db:"id"`
	CategoryID string    `json:"category_id" db:"category_id"`
	Title      string    `json:"title" db:"title"`
	Content    string    `json:"content" db:"content"`
	SortOrder  int       `json:"sort_order" db:"sort_order"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type NewCategory struct {
	Name      string `json:"name" validate:"required,notblank,max=100"`
	ParentID  string `json:"parent_id"`
	SortOrder int    `json:"sort_order"`
}

func (nc *NewCategory) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.ParentID = core.CleanString(nc.ParentID)
	return validate.Struct(nc)
}

type NewTemplate struct {
	CategoryID string `json:"category_id" validate:"required"`
	Title      string `json:"title" validate:"required,notblank,max=200"`
	Content    string `json:"content" validate:"required,notblank"`
	SortOrder  int    `json:"sort_order"`
}

func (nt *NewTemplate) Validate(validate *validator.Validate) error {
	nt.CategoryID = core.CleanString(nt.CategoryID)
	nt.Title = core.CleanString(nt.Title)
	nt.Content = core.CleanString(nt.Content)
	return validate.Struct(nt)
}

// TreeNode is a category placed in the depth-first ordering of the tree.
type TreeNode struct {
	Category
	Depth int    `json:"depth"`
	Path  string `json:"path"` // "root > sub > ..."
}

// MenuNode is a category with its subcategories and templates, as shown in the generator.
type MenuNode struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Children  []MenuNode     `json:"children"`
	Templates []TemplateItem `json:"templates"`
}

type TemplateItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Diagnosis is the consistency report of the tree.
type Diagnosis struct {
	Categories []DiagnosisLine `json:"categories"`
	Roots      []string        `json:"roots"`
	Warnings   []string        `json:"warnings"`
}

type DiagnosisLine struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ParentName string `json:"parent_name"`
	Templates  int    `json:"templates"`
}
