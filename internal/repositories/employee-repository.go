package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// EmployeeRepositoryInterface - граница с внешней подсистемой сотрудников.
// Движку иерархии от нее нужны только счетчики.
type EmployeeRepositoryInterface interface {
	CountByDepartment(ctx context.Context, departmentID uint64) (uint64, error)
	CountByDepartments(ctx context.Context, departmentIDs []uint64) (uint64, error)
}

type EmployeeRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewEmployeeRepository(storage *pgxpool.Pool, logger *zap.Logger) EmployeeRepositoryInterface {
	return &EmployeeRepository{storage: storage, logger: logger}
}

func (r *EmployeeRepository) CountByDepartment(ctx context.Context, departmentID uint64) (uint64, error) {
	var total uint64
	err := r.storage.QueryRow(ctx,
		`SELECT COUNT(*) FROM employees WHERE department_id = $1`, departmentID).Scan(&total)
	return total, err
}

func (r *EmployeeRepository) CountByDepartments(ctx context.Context, departmentIDs []uint64) (uint64, error) {
	if len(departmentIDs) == 0 {
		return 0, nil
	}
	var total uint64
	err := r.storage.QueryRow(ctx,
		`SELECT COUNT(*) FROM employees WHERE department_id = ANY($1)`, departmentIDs).Scan(&total)
	return total, err
}
