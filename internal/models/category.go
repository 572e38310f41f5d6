package models

import (
	"bytes"
	"encoding/json"
)

// PropertySpec is a selectable product attribute declared by a category.
type PropertySpec struct {
	Name   string   `json:"name" validate:"required"`
	Values []string `json:"values"`
}

// CategoryRef is the parent reference the catalog API embeds in each category.
// The API normally sends the populated parent document, but a bare id is accepted too.
type CategoryRef struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

func (r *CategoryRef) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		return json.Unmarshal(data, &r.ID)
	}
	type plain CategoryRef
	return json.Unmarshal(data, (*plain)(r))
}

type Category struct {
	ID         string         `json:"_id"`
	Name       string         `json:"name"`
	Parent     *CategoryRef   `json:"parent,omitempty"`
	Properties []PropertySpec `json:"properties"`
}

// ParentID returns the parent's id, or "" for a root category.
func (c Category) ParentID() string {
	if c.Parent == nil {
		return ""
	}
	return c.Parent.ID
}

// CategoryInput is the body of POST and PUT /api/categories.
type CategoryInput struct {
	ID             string         `json:"_id,omitempty"`
	Name           string         `json:"name" validate:"required,max=200"`
	ParentCategory string         `json:"parentCategory,omitempty"`
	Properties     []PropertySpec `json:"properties" validate:"dive"`
}

// CategoryTree represents a category with its full path and level information
type CategoryTree struct {
	Category
	Path  []string `json:"full_path"` // Names from root to this category
	Depth int      `json:"depth"`
}
