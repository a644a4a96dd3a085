package services

import (
	"context"
	"errors"

	"org-system/internal/entities"
	"org-system/internal/repositories"
	apperrors "org-system/pkg/errors"
	"org-system/pkg/treepath"
)

// DepartmentValidator проверяет структурные мутации дерева до записи.
// Все проверки read-only: их можно звать спекулятивно (например, для
// ответа "можно ли удалить"), побочных эффектов нет.
type DepartmentValidator struct {
	departmentRepository repositories.DepartmentRepositoryInterface
	employeeRepository   repositories.EmployeeRepositoryInterface
}

func NewDepartmentValidator(
	departmentRepository repositories.DepartmentRepositoryInterface,
	employeeRepository repositories.EmployeeRepositoryInterface,
) *DepartmentValidator {
	return &DepartmentValidator{
		departmentRepository: departmentRepository,
		employeeRepository:   employeeRepository,
	}
}

// ValidateCreate: код глобально уникален, родитель (если задан) существует.
func (v *DepartmentValidator) ValidateCreate(ctx context.Context, code string, parentID *uint64) error {
	exists, err := v.departmentRepository.ExistsByCode(ctx, code)
	if err != nil {
		return err
	}
	if exists {
		return apperrors.ErrDuplicateCode
	}
	if parentID != nil {
		if _, err := v.departmentRepository.FindDepartment(ctx, *parentID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return apperrors.ErrParentNotFound
			}
			return err
		}
	}
	return nil
}

// ValidateMove загружает участников и прогоняет структурную проверку.
func (v *DepartmentValidator) ValidateMove(ctx context.Context, departmentID uint64, newParentID *uint64) error {
	department, err := v.departmentRepository.FindDepartment(ctx, departmentID)
	if err != nil {
		return err
	}
	var newParent *entities.Department
	if newParentID != nil {
		newParent, err = v.departmentRepository.FindDepartment(ctx, *newParentID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return apperrors.ErrParentNotFound
			}
			return err
		}
	}
	return CheckMove(department, newParent)
}

// CheckMove - чистая структурная проверка переноса. Цикл ловится сравнением
// префиксов текущих путей: если путь кандидата в родители лежит внутри пути
// переносимого узла, новый родитель - его потомок. O(длины пути), без обхода
// поддерева; точность гарантируется инвариантом консистентности путей.
func CheckMove(department *entities.Department, newParent *entities.Department) error {
	if newParent == nil {
		return nil
	}
	if newParent.ID == department.ID {
		return apperrors.ErrSelfParent
	}
	if treepath.IsAncestorPath(department.Path, newParent.Path) {
		return apperrors.ErrCircularReference
	}
	return nil
}

// ValidateDelete: удалять можно только лист без сотрудников.
func (v *DepartmentValidator) ValidateDelete(ctx context.Context, departmentID uint64) error {
	if _, err := v.departmentRepository.FindDepartment(ctx, departmentID); err != nil {
		return err
	}
	hasChildren, err := v.departmentRepository.ExistsChildren(ctx, departmentID)
	if err != nil {
		return err
	}
	if hasChildren {
		return apperrors.ErrHasChildren
	}
	employees, err := v.employeeRepository.CountByDepartment(ctx, departmentID)
	if err != nil {
		return err
	}
	if employees > 0 {
		return apperrors.ErrHasEmployees
	}
	return nil
}
