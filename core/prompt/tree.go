package prompt

import (
	"fmt"
	"sort"
	"strings"
)

const pathSeparator = " > "

// SortTree orders categories depth-first: each root is followed by its subtree.
// Siblings are ordered by SortOrder then Name. Categories whose parent is unknown are treated
// as roots, and categories only reachable through a cycle are appended as roots as well.
func SortTree(categories []Category) []TreeNode {
	byID := make(map[string]Category, len(categories))
	for _, cat := range categories {
		byID[cat.ID] = cat
	}

	children := make(map[string][]Category, len(categories))
	var roots []Category
	for _, cat := range categories {
		if _, ok := byID[cat.ParentID.String]; cat.ParentID.Valid && ok && cat.ParentID.String != cat.ID {
			children[cat.ParentID.String] = append(children[cat.ParentID.String], cat)
		} else {
			roots = append(roots, cat)
		}
	}
	sortSiblings(roots)
	for id := range children {
		sortSiblings(children[id])
	}

	nodes := make([]TreeNode, 0, len(categories))
	visited := make(map[string]bool, len(categories))

	var walk func(cat Category, depth int, path string)
	walk = func(cat Category, depth int, path string) {
		if visited[cat.ID] {
			return
		}
		visited[cat.ID] = true
		if path != "" {
			path += pathSeparator
		}
		path += cat.Name
		nodes = append(nodes, TreeNode{Category: cat, Depth: depth, Path: path})
		for _, child := range children[cat.ID] {
			walk(child, depth+1, path)
		}
	}

	for _, root := range roots {
		walk(root, 0, "")
	}

	// cycles: nothing in them is reachable from a root
	if len(nodes) < len(categories) {
		rest := make([]Category, 0, len(categories)-len(nodes))
		for _, cat := range categories {
			if !visited[cat.ID] {
				rest = append(rest, cat)
			}
		}
		sortSiblings(rest)
		for _, cat := range rest {
			walk(cat, 0, "")
		}
	}
	return nodes
}

// Descendants returns the IDs of every category below id.
func Descendants(categories []Category, id string) map[string]bool {
	children := make(map[string][]string, len(categories))
	for _, cat := range categories {
		if cat.ParentID.Valid {
			children[cat.ParentID.String] = append(children[cat.ParentID.String], cat.ID)
		}
	}

	res := make(map[string]bool)
	queue := []string{id}
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, child := range children[curr] {
			if !res[child] {
				res[child] = true
				queue = append(queue, child)
			}
		}
	}
	return res
}

// BuildMenu nests the categories and their templates, in tree order.
func BuildMenu(categories []Category, templates []Template) []MenuNode {
	tmplByCat := make(map[string][]Template, len(categories))
	for _, tmpl := range templates {
		tmplByCat[tmpl.CategoryID] = append(tmplByCat[tmpl.CategoryID], tmpl)
	}
	for id := range tmplByCat {
		sortTemplates(tmplByCat[id])
	}

	var build func(idx int, nodes []TreeNode) (MenuNode, int)
	build = func(idx int, nodes []TreeNode) (MenuNode, int) {
		node := nodes[idx]
		menu := MenuNode{ID: node.ID, Name: node.Name, Children: []MenuNode{}, Templates: []TemplateItem{}}
		for _, tmpl := range tmplByCat[node.ID] {
			menu.Templates = append(menu.Templates, TemplateItem{ID: tmpl.ID, Title: tmpl.Title})
		}
		next := idx + 1
		for next < len(nodes) && nodes[next].Depth > node.Depth {
			var child MenuNode
			child, next = build(next, nodes)
			menu.Children = append(menu.Children, child)
		}
		return menu, next
	}

	nodes := SortTree(categories)
	menu := make([]MenuNode, 0)
	for idx := 0; idx < len(nodes); {
		var root MenuNode
		root, idx = build(idx, nodes)
		menu = append(menu, root)
	}
	return menu
}

// Diagnose lists every category with its parent and warns about the tree inconsistencies:
// no root at all, roots without subcategories and subcategories without templates.
func Diagnose(categories []Category, templates []Template) Diagnosis {
	diag := Diagnosis{Categories: []DiagnosisLine{}, Roots: []string{}, Warnings: []string{}}

	byID := make(map[string]Category, len(categories))
	for _, cat := range categories {
		byID[cat.ID] = cat
	}
	tmplCount := make(map[string]int, len(categories))
	for _, tmpl := range templates {
		tmplCount[tmpl.CategoryID]++
	}
	childCount := make(map[string]int, len(categories))
	for _, cat := range categories {
		if cat.ParentID.Valid {
			childCount[cat.ParentID.String]++
		}
	}

	for _, node := range SortTree(categories) {
		line := DiagnosisLine{ID: node.ID, Name: node.Name, Templates: tmplCount[node.ID]}
		if !node.ParentID.Valid {
			diag.Roots = append(diag.Roots, node.Name)
		} else if parent, ok := byID[node.ParentID.String]; ok {
			line.ParentName = parent.Name
		} else {
			diag.Warnings = append(diag.Warnings, fmt.Sprintf("category %q has an unknown parent", node.Name))
		}
		diag.Categories = append(diag.Categories, line)

		switch {
		case !node.ParentID.Valid && childCount[node.ID] == 0:
			diag.Warnings = append(diag.Warnings, fmt.Sprintf("root category %q has no subcategories", node.Name))
		case node.ParentID.Valid && childCount[node.ID] == 0 && tmplCount[node.ID] == 0:
			diag.Warnings = append(diag.Warnings, fmt.Sprintf("subcategory %q has no templates", node.Name))
		}
	}

	if len(diag.Roots) == 0 {
		diag.Warnings = append([]string{"there is no root category"}, diag.Warnings...)
	}
	return diag
}

func sortSiblings(cats []Category) {
	sort.SliceStable(cats, func(i, j int) bool {
		if cats[i].SortOrder != cats[j].SortOrder {
			return cats[i].SortOrder < cats[j].SortOrder
		}
		return strings.Compare(cats[i].Name, cats[j].Name) < 0
	})
}

func sortTemplates(tmpls []Template) {
	sort.SliceStable(tmpls, func(i, j int) bool {
		if tmpls[i].SortOrder != tmpls[j].SortOrder {
			return tmpls[i].SortOrder < tmpls[j].SortOrder
		}
		return strings.Compare(tmpls[i].Title, tmpls[j].Title) < 0
	})
}
