package entities

import "org-system/pkg/types"

// Department - узел дерева подразделений.
// Path и Level - производные поля, пересчитываются движком иерархии
// и никогда не задаются вызывающим кодом напрямую.
type Department struct {
	ID          uint64  `json:"id"`
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`
	ParentID    *uint64 `json:"parent_id,omitempty"`
	Path        string  `json:"path"`
	Level       int     `json:"level"`
	IsParent    bool    `json:"is_parent"`
	SortOrder   int     `json:"sort_order"`
	Enabled     bool    `json:"enabled"`
	ManagerID   *uint64 `json:"manager_id,omitempty"`

	types.BaseEntity
}
