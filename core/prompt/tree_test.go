package prompt_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/classnote/classnote/core"
	"github.com/classnote/classnote/core/prompt"
	dummydb "github.com/classnote/classnote/storage/database/dummy"
)

func cat(id, name, parent string, order int) prompt.Category {
	return prompt.Category{ID: id, Name: name, ParentID: null.NewString(parent, parent != ""), SortOrder: order}
}

func paths(nodes []prompt.TreeNode) []string {
	res := make([]string, 0, len(nodes))
	for _, n := range nodes {
		res = append(res, n.Path)
	}
	return res
}

func TestSortTree(t *testing.T) {
	tests := []struct {
		name       string
		categories []prompt.Category
		want       []string
	}{
		{name: "empty", want: []string{}},
		{
			name: "depth first, by sort order then name",
			categories: []prompt.Category{
				cat("c", "창체", "", 2),
				cat("k", "국어", "s", 0),
				cat("s", "교과", "", 1),
				cat("m", "수학", "s", 0),
				cat("l", "문학", "k", 0),
			},
			want: []string{"교과", "교과 > 국어", "교과 > 국어 > 문학", "교과 > 수학", "창체"},
		},
		{
			name:       "unknown parent is a root",
			categories: []prompt.Category{cat("a", "A", "gone", 0), cat("b", "B", "a", 0)},
			want:       []string{"A", "A > B"},
		},
		{
			name:       "cycle is appended",
			categories: []prompt.Category{cat("r", "Root", "", 0), cat("x", "X", "y", 0), cat("y", "Y", "x", 0)},
			want:       []string{"Root", "X", "X > Y"},
		},
		{
			name:       "self parent",
			categories: []prompt.Category{cat("a", "A", "a", 0)},
			want:       []string{"A"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, paths(prompt.SortTree(tt.categories)))
		})
	}
}

func TestDescendants(t *testing.T) {
	cats := []prompt.Category{
		cat("s", "교과", "", 0),
		cat("k", "국어", "s", 0),
		cat("l", "문학", "k", 0),
		cat("c", "창체", "", 0),
	}
	assert.Equal(t, map[string]bool{"k": true, "l": true}, prompt.Descendants(cats, "s"))
	assert.Empty(t, prompt.Descendants(cats, "c"))
}

func TestBuildMenuAndDiagnose(t *testing.T) {
	cats := []prompt.Category{
		cat("s", "교과", "", 0),
		cat("k", "국어", "s", 0),
		cat("m", "수학", "s", 1),
		cat("c", "창체", "", 1),
	}
	tmpls := []prompt.Template{
		{ID: "t2", CategoryID: "k", Title: "비문학", SortOrder: 1},
		{ID: "t1", CategoryID: "k", Title: "문학", SortOrder: 0},
	}

	menu := prompt.BuildMenu(cats, tmpls)
	require.Len(t, menu, 2)
	assert.Equal(t, "교과", menu[0].Name)
	require.Len(t, menu[0].Children, 2)
	assert.Equal(t, []prompt.TemplateItem{{ID: "t1", Title: "문학"}, {ID: "t2", Title: "비문학"}}, menu[0].Children[0].Templates)
	assert.Empty(t, menu[0].Children[1].Templates)
	assert.Empty(t, menu[1].Children)

	diag := prompt.Diagnose(cats, tmpls)
	assert.Equal(t, []string{"교과", "창체"}, diag.Roots)
	assert.Equal(t, prompt.DiagnosisLine{ID: "k", Name: "국어", ParentName: "교과", Templates: 2}, diag.Categories[1])
	assert.Equal(t, []string{
		`subcategory "수학" has no templates`,
		`root category "창체" has no subcategories`,
	}, diag.Warnings)

	assert.Equal(t, []string{"there is no root category"}, prompt.Diagnose(nil, nil).Warnings)
}

func TestService_Categories(t *testing.T) {
	db, err := dummydb.Open()
	require.NoError(t, err)
	svc := prompt.NewService(dummydb.NewPromptRepository(db))
	ctx := context.Background()

	root, err := svc.CreateCategory(ctx, prompt.NewCategory{Name: "교과"})
	require.NoError(t, err)
	sub, err := svc.CreateCategory(ctx, prompt.NewCategory{Name: "국어", ParentID: root.ID})
	require.NoError(t, err)
	leaf, err := svc.CreateCategory(ctx, prompt.NewCategory{Name: "문학", ParentID: sub.ID})
	require.NoError(t, err)

	validationCause := func(err error) error {
		var vErr *core.ValidationError
		if errors.As(err, &vErr) {
			return vErr.Err
		}
		return err
	}

	_, err = svc.CreateCategory(ctx, prompt.NewCategory{Name: "X", ParentID: "unknown"})
	assert.Equal(t, prompt.ErrParentNotFound, validationCause(err))

	_, err = svc.UpdateCategory(ctx, root.ID, prompt.NewCategory{Name: "교과", ParentID: leaf.ID})
	assert.Equal(t, prompt.ErrCycle, validationCause(err))
	_, err = svc.UpdateCategory(ctx, root.ID, prompt.NewCategory{Name: "교과", ParentID: root.ID})
	assert.Equal(t, prompt.ErrCycle, validationCause(err))

	// moving a leaf to the root level
	moved, err := svc.UpdateCategory(ctx, leaf.ID, prompt.NewCategory{Name: "문학", SortOrder: 5})
	require.NoError(t, err)
	assert.False(t, moved.ParentID.Valid)

	assert.Equal(t, prompt.ErrHasChildren, validationCause(svc.DeleteCategory(ctx, root.ID)))

	_, err = svc.CreateTemplate(ctx, prompt.NewTemplate{CategoryID: "unknown", Title: "T", Content: "C"})
	assert.Equal(t, prompt.ErrCategoryNotFound, validationCause(err))
	tmpl, err := svc.CreateTemplate(ctx, prompt.NewTemplate{CategoryID: sub.ID, Title: "시", Content: "감상"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCategory(ctx, sub.ID))
	_, err = svc.GetTemplate(ctx, tmpl.ID)
	assert.Equal(t, prompt.ErrTemplateNotFound, errors.Cause(err))

	tree, err := svc.Tree(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"교과", "문학"}, paths(tree))
}
