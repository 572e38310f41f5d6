// Package properties resolves the selectable product properties of a category,
// following the category's parent chain.
package properties

import "storeadmin/internal/models"

// Resolve returns the properties of the selected category followed by those of each
// ancestor, child first. Names are not de-duplicated: a property declared on both a
// child and an ancestor appears twice.
//
// An empty or unknown selectedID yields an empty result. The walk stops quietly at a
// root, at a parent id missing from categories, or on revisiting a category.
func Resolve(categories []models.Category, selectedID string) []models.PropertySpec {
	result := []models.PropertySpec{}
	if selectedID == "" {
		return result
	}

	index := make(map[string]*models.Category, len(categories))
	for i := range categories {
		if _, dup := index[categories[i].ID]; !dup {
			index[categories[i].ID] = &categories[i]
		}
	}

	visited := make(map[string]bool)
	current, ok := index[selectedID]
	for ok && !visited[current.ID] {
		visited[current.ID] = true
		for _, p := range current.Properties {
			result = append(result, copySpec(p))
		}

		parentID := current.ParentID()
		if parentID == "" {
			break
		}
		current, ok = index[parentID]
	}

	return result
}

// Names returns the distinct property names in first-seen order.
func Names(specs []models.PropertySpec) []string {
	seen := make(map[string]bool, len(specs))
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		if !seen[s.Name] {
			seen[s.Name] = true
			names = append(names, s.Name)
		}
	}
	return names
}

func copySpec(p models.PropertySpec) models.PropertySpec {
	values := make([]string, len(p.Values))
	copy(values, p.Values)
	return models.PropertySpec{Name: p.Name, Values: values}
}
