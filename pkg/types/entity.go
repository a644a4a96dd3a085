package types

import "time"

// BaseEntity - аудит-поля, проставляются движком при записи,
// вызывающий код их никогда не задает.
type BaseEntity struct {
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
	CreatedBy *uint64    `json:"created_by,omitempty" db:"created_by"`
	UpdatedBy *uint64    `json:"updated_by,omitempty" db:"updated_by"`
}
