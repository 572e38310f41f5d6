package properties

import (
	"sort"
	"strings"

	"storeadmin/internal/models"
)

// Paths flattens the category list into tree entries carrying the name path from the
// root and the depth. Entries are ordered depth-first by path so children follow their
// parent. Unresolvable parents make a category a root of its own branch.
func Paths(categories []models.Category) []models.CategoryTree {
	index := make(map[string]models.Category, len(categories))
	for _, c := range categories {
		index[c.ID] = c
	}

	trees := make([]models.CategoryTree, 0, len(categories))
	for _, c := range categories {
		path := []string{c.Name}
		visited := map[string]bool{c.ID: true}
		for parentID := c.ParentID(); parentID != "" && !visited[parentID]; {
			parent, ok := index[parentID]
			if !ok {
				break
			}
			visited[parentID] = true
			path = append([]string{parent.Name}, path...)
			parentID = parent.ParentID()
		}
		trees = append(trees, models.CategoryTree{
			Category: c,
			Path:     path,
			Depth:    len(path) - 1,
		})
	}

	sort.SliceStable(trees, func(i, j int) bool {
		return strings.Join(trees[i].Path, "\x00") < strings.Join(trees[j].Path, "\x00")
	})
	return trees
}
