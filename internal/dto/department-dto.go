package dto

import (
	"github.com/aarondl/null/v8"
)

type CreateDepartmentDTO struct {
	Name        string      `json:"name" validate:"required,min=1,max=200"`
	Code        string      `json:"code" validate:"required,dept_code"`
	ParentID    null.Uint64 `json:"parent_id"`
	Description null.String `json:"description"`
	Location    null.String `json:"location"`
	ManagerID   null.Uint64 `json:"manager_id"`
	SortOrder   int         `json:"sort_order"`
	Enabled     *bool       `json:"enabled"`
}

// UpdateDepartmentDTO меняет только "плоские" поля. Родитель, путь и уровень
// меняются исключительно через операцию переноса. Optional-поля позволяют
// явным null сбросить значение (снять руководителя), не задевая
// пропущенные поля.
type UpdateDepartmentDTO struct {
	Name        *string        `json:"name" validate:"omitempty,min=1,max=200"`
	Code        *string        `json:"code" validate:"omitempty,dept_code"`
	Description OptionalString `json:"description"`
	Location    OptionalString `json:"location"`
	ManagerID   OptionalUint64 `json:"manager_id"`
	SortOrder   *int           `json:"sort_order"`
	Enabled     *bool          `json:"enabled"`
}

// MoveDepartmentDTO: parent_id = null означает перенос в корень леса.
type MoveDepartmentDTO struct {
	ParentID null.Uint64 `json:"parent_id"`
}

type DepartmentDTO struct {
	ID            uint64  `json:"id"`
	Name          string  `json:"name"`
	Code          string  `json:"code"`
	Description   *string `json:"description,omitempty"`
	Location      *string `json:"location,omitempty"`
	ParentID      *uint64 `json:"parent_id,omitempty"`
	Path          string  `json:"path"`
	Level         int     `json:"level"`
	IsParent      bool    `json:"is_parent"`
	SortOrder     int     `json:"sort_order"`
	Enabled       bool    `json:"enabled"`
	ManagerID     *uint64 `json:"manager_id,omitempty"`
	EmployeeCount *uint64 `json:"employee_count,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

// DepartmentTreeNodeDTO - узел собранного в памяти дерева.
type DepartmentTreeNodeDTO struct {
	DepartmentDTO
	Children []*DepartmentTreeNodeDTO `json:"children,omitempty"`
}

type DepartmentStatisticsDTO struct {
	ID                 uint64 `json:"id"`
	ChildCount         uint64 `json:"child_count"`
	DescendantCount    uint64 `json:"descendant_count"`
	MaxDepth           int    `json:"max_depth"`
	EmployeeCount      uint64 `json:"employee_count"`
	TotalEmployeeCount uint64 `json:"total_employee_count"`
}

type CanDeleteDTO struct {
	CanDelete bool   `json:"can_delete"`
	Reason    string `json:"reason,omitempty"`
}

type RebuildResultDTO struct {
	Touched int `json:"touched"`
}
