package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"org-system/internal/dto"
	"org-system/internal/entities"
	apperrors "org-system/pkg/errors"
	"org-system/pkg/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const departmentTable = "departments"

const departmentColumns = `id, name, code, description, location, parent_id, path, level, is_parent, sort_order, enabled, manager_id, created_at, updated_at, created_by, updated_by`

var (
	departmentAllowedFilterFields = map[string]string{
		"enabled":   "d.enabled",
		"parent_id": "d.parent_id",
		"level":     "d.level",
	}
	departmentAllowedSortFields = map[string]string{
		"id":         "d.id",
		"name":       "d.name",
		"code":       "d.code",
		"level":      "d.level",
		"sort_order": "d.sort_order",
		"created_at": "d.created_at",
	}
)

type DepartmentRepositoryInterface interface {
	// WithTx возвращает копию репозитория, привязанную к транзакции.
	WithTx(tx pgx.Tx) DepartmentRepositoryInterface

	GetDepartments(ctx context.Context, filter types.Filter) ([]entities.Department, uint64, error)
	FindDepartment(ctx context.Context, id uint64) (*entities.Department, error)
	// FindDepartmentForUpdate читает строку с блокировкой FOR UPDATE;
	// имеет смысл только внутри транзакции.
	FindDepartmentForUpdate(ctx context.Context, id uint64) (*entities.Department, error)
	FindByCode(ctx context.Context, code string) (*entities.Department, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	ExistsByNameAndParent(ctx context.Context, name string, parentID *uint64, excludeID uint64) (bool, error)

	FindChildren(ctx context.Context, parentID uint64) ([]entities.Department, error)
	FindRoots(ctx context.Context) ([]entities.Department, error)
	ExistsChildren(ctx context.Context, parentID uint64) (bool, error)
	CountChildren(ctx context.Context, parentID uint64) (uint64, error)
	FindByPathPrefix(ctx context.Context, prefix string) ([]entities.Department, error)
	FindAll(ctx context.Context) ([]entities.Department, error)

	CreateDepartment(ctx context.Context, department entities.Department) (*entities.Department, error)
	UpdateDepartment(ctx context.Context, id uint64, dto dto.UpdateDepartmentDTO, updatedBy *uint64) (*entities.Department, error)
	SetParent(ctx context.Context, id uint64, parentID *uint64, updatedBy *uint64) error
	// MoveSubtree переписывает префикс пути и сдвигает уровень всего
	// поддерева одним range-запросом. Возвращает число затронутых строк.
	MoveSubtree(ctx context.Context, oldPrefix, newPrefix string, levelDelta int) (int64, error)
	SetTreeRefs(ctx context.Context, id uint64, path string, level int, isParent bool) error
	RefreshIsParent(ctx context.Context, id uint64) error
	DeleteDepartment(ctx context.Context, id uint64) error
}

type DepartmentRepository struct {
	db     querier
	logger *zap.Logger
}

func NewDepartmentRepository(storage *pgxpool.Pool, logger *zap.Logger) DepartmentRepositoryInterface {
	return &DepartmentRepository{db: storage, logger: logger}
}

func (r *DepartmentRepository) WithTx(tx pgx.Tx) DepartmentRepositoryInterface {
	return &DepartmentRepository{db: tx, logger: r.logger}
}

func scanDepartment(row pgx.Row) (*entities.Department, error) {
	var d entities.Department
	err := row.Scan(
		&d.ID, &d.Name, &d.Code, &d.Description, &d.Location, &d.ParentID,
		&d.Path, &d.Level, &d.IsParent, &d.SortOrder, &d.Enabled, &d.ManagerID,
		&d.CreatedAt, &d.UpdatedAt, &d.CreatedBy, &d.UpdatedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования department: %w", err)
	}
	return &d, nil
}

func scanDepartments(rows pgx.Rows) ([]entities.Department, error) {
	defer rows.Close()
	departments := make([]entities.Department, 0)
	for rows.Next() {
		dept, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		departments = append(departments, *dept)
	}
	return departments, rows.Err()
}

// уникальный индекс по code отдаем наверх как доменную ошибку
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "code") {
			return apperrors.ErrDuplicateCode
		}
		return apperrors.ErrConflict
	}
	return err
}

func (r *DepartmentRepository) buildFilterQuery(filter types.Filter, tableAlias string) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}
	argCounter := 1
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(%[1]s.name ILIKE $%[2]d OR %[1]s.code ILIKE $%[2]d)", tableAlias, argCounter))
		args = append(args, "%"+filter.Search+"%")
		argCounter++
	}
	for key, value := range filter.Filter {
		if dbColumn, ok := departmentAllowedFilterFields[key]; ok {
			items := strings.Split(fmt.Sprintf("%v", value), ",")
			if len(items) > 1 {
				placeholders := []string{}
				for _, item := range items {
					placeholders = append(placeholders, fmt.Sprintf("$%d", argCounter))
					args = append(args, item)
					argCounter++
				}
				conditions = append(conditions, fmt.Sprintf("%s IN (%s)", dbColumn, strings.Join(placeholders, ",")))
			} else {
				conditions = append(conditions, fmt.Sprintf("%s = $%d", dbColumn, argCounter))
				args = append(args, value)
				argCounter++
			}
		}
	}
	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *DepartmentRepository) countDepartments(ctx context.Context, filter types.Filter, tableAlias string) (uint64, error) {
	whereClause, args := r.buildFilterQuery(filter, tableAlias)
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s AS %s %s", departmentTable, tableAlias, whereClause)
	var total uint64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *DepartmentRepository) GetDepartments(ctx context.Context, filter types.Filter) ([]entities.Department, uint64, error) {
	total, err := r.countDepartments(ctx, filter, "d")
	if err != nil || total == 0 {
		return []entities.Department{}, total, err
	}
	whereClause, args := r.buildFilterQuery(filter, "d")
	orderByClause := "ORDER BY d.sort_order ASC, d.id ASC"
	if len(filter.Sort) > 0 {
		sorts := []string{}
		for field, direction := range filter.Sort {
			if dbField, ok := departmentAllowedSortFields[field]; ok {
				order := "ASC"
				if strings.ToLower(direction) == "desc" {
					order = "DESC"
				}
				sorts = append(sorts, fmt.Sprintf("%s %s", dbField, order))
			}
		}
		if len(sorts) > 0 {
			orderByClause = "ORDER BY " + strings.Join(sorts, ", ")
		}
	}
	limitClause := ""
	argCounter := len(args) + 1
	if filter.WithPagination {
		limitClause = fmt.Sprintf("LIMIT $%d OFFSET $%d", argCounter, argCounter+1)
		args = append(args, filter.Limit, filter.Offset)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s d %s %s %s`,
		prefixColumns("d"), departmentTable, whereClause, orderByClause, limitClause)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	departments, err := scanDepartments(rows)
	if err != nil {
		return nil, 0, err
	}
	return departments, total, nil
}

func prefixColumns(alias string) string {
	cols := strings.Split(departmentColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func (r *DepartmentRepository) FindDepartment(ctx context.Context, id uint64) (*entities.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, departmentColumns, departmentTable)
	return scanDepartment(r.db.QueryRow(ctx, query, id))
}

func (r *DepartmentRepository) FindDepartmentForUpdate(ctx context.Context, id uint64) (*entities.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 FOR UPDATE`, departmentColumns, departmentTable)
	return scanDepartment(r.db.QueryRow(ctx, query, id))
}

func (r *DepartmentRepository) FindByCode(ctx context.Context, code string) (*entities.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE code = $1`, departmentColumns, departmentTable)
	return scanDepartment(r.db.QueryRow(ctx, query, code))
}

func (r *DepartmentRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM departments WHERE code = $1)`, code).Scan(&exists)
	return exists, err
}

func (r *DepartmentRepository) ExistsByNameAndParent(ctx context.Context, name string, parentID *uint64, excludeID uint64) (bool, error) {
	var exists bool
	var err error
	if parentID == nil {
		err = r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM departments WHERE name = $1 AND parent_id IS NULL AND id <> $2)`,
			name, excludeID).Scan(&exists)
	} else {
		err = r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM departments WHERE name = $1 AND parent_id = $2 AND id <> $3)`,
			name, *parentID, excludeID).Scan(&exists)
	}
	return exists, err
}

func (r *DepartmentRepository) FindChildren(ctx context.Context, parentID uint64) ([]entities.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE parent_id = $1 ORDER BY sort_order ASC, id ASC`, departmentColumns, departmentTable)
	rows, err := r.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	return scanDepartments(rows)
}

func (r *DepartmentRepository) FindRoots(ctx context.Context) ([]entities.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE parent_id IS NULL ORDER BY sort_order ASC, id ASC`, departmentColumns, departmentTable)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanDepartments(rows)
}

func (r *DepartmentRepository) ExistsChildren(ctx context.Context, parentID uint64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM departments WHERE parent_id = $1)`, parentID).Scan(&exists)
	return exists, err
}

func (r *DepartmentRepository) CountChildren(ctx context.Context, parentID uint64) (uint64, error) {
	var total uint64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM departments WHERE parent_id = $1`, parentID).Scan(&total)
	return total, err
}

// FindByPathPrefix возвращает узел с путем prefix и все его поддерево.
// Коды не содержат '/', поэтому сравнение по префиксу с разделителем точное.
func (r *DepartmentRepository) FindByPathPrefix(ctx context.Context, prefix string) ([]entities.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE path = $1 OR path LIKE $1 || '/%%' ORDER BY path ASC`, departmentColumns, departmentTable)
	rows, err := r.db.Query(ctx, query, prefix)
	if err != nil {
		return nil, err
	}
	return scanDepartments(rows)
}

func (r *DepartmentRepository) FindAll(ctx context.Context) ([]entities.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY path ASC`, departmentColumns, departmentTable)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanDepartments(rows)
}

func (r *DepartmentRepository) CreateDepartment(ctx context.Context, department entities.Department) (*entities.Department, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, code, description, location, parent_id, path, level, is_parent, sort_order, enabled, manager_id, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING %s`, departmentTable, departmentColumns)
	created, err := scanDepartment(r.db.QueryRow(ctx, query,
		department.Name, department.Code, department.Description, department.Location,
		department.ParentID, department.Path, department.Level, department.IsParent,
		department.SortOrder, department.Enabled, department.ManagerID, department.CreatedBy,
	))
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return created, nil
}

func (r *DepartmentRepository) UpdateDepartment(ctx context.Context, id uint64, d dto.UpdateDepartmentDTO, updatedBy *uint64) (*entities.Department, error) {
	updateBuilder := sq.Update(departmentTable).
		PlaceholderFormat(sq.Dollar).
		Where(sq.Eq{"id": id}).
		Set("updated_at", sq.Expr("NOW()")).
		Set("updated_by", updatedBy)

	hasChanges := false
	if d.Name != nil {
		updateBuilder = updateBuilder.Set("name", *d.Name)
		hasChanges = true
	}
	if d.Code != nil {
		updateBuilder = updateBuilder.Set("code", *d.Code)
		hasChanges = true
	}
	if d.Description.Set {
		updateBuilder = updateBuilder.Set("description", d.Description.Ptr())
		hasChanges = true
	}
	if d.Location.Set {
		updateBuilder = updateBuilder.Set("location", d.Location.Ptr())
		hasChanges = true
	}
	if d.ManagerID.Set {
		updateBuilder = updateBuilder.Set("manager_id", d.ManagerID.Ptr())
		hasChanges = true
	}
	if d.SortOrder != nil {
		updateBuilder = updateBuilder.Set("sort_order", *d.SortOrder)
		hasChanges = true
	}
	if d.Enabled != nil {
		updateBuilder = updateBuilder.Set("enabled", *d.Enabled)
		hasChanges = true
	}
	if !hasChanges {
		return r.FindDepartment(ctx, id)
	}

	query, args, err := updateBuilder.Suffix("RETURNING " + departmentColumns).ToSql()
	if err != nil {
		return nil, err
	}
	updated, err := scanDepartment(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return updated, nil
}

func (r *DepartmentRepository) SetParent(ctx context.Context, id uint64, parentID *uint64, updatedBy *uint64) error {
	result, err := r.db.Exec(ctx,
		`UPDATE departments SET parent_id = $2, updated_at = NOW(), updated_by = $3 WHERE id = $1`,
		id, parentID, updatedBy)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *DepartmentRepository) MoveSubtree(ctx context.Context, oldPrefix, newPrefix string, levelDelta int) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE departments
		SET path = $2 || substr(path, length($1) + 1),
		    level = level + $3,
		    updated_at = NOW()
		WHERE path = $1 OR path LIKE $1 || '/%'`,
		oldPrefix, newPrefix, levelDelta)
	if err != nil {
		return 0, fmt.Errorf("ошибка каскадного переноса поддерева: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *DepartmentRepository) SetTreeRefs(ctx context.Context, id uint64, path string, level int, isParent bool) error {
	result, err := r.db.Exec(ctx,
		`UPDATE departments SET path = $2, level = $3, is_parent = $4, updated_at = NOW() WHERE id = $1`,
		id, path, level, isParent)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// RefreshIsParent пересчитывает флаг is_parent по фактическому наличию детей.
func (r *DepartmentRepository) RefreshIsParent(ctx context.Context, id uint64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE departments d
		SET is_parent = EXISTS (SELECT 1 FROM departments c WHERE c.parent_id = d.id)
		WHERE d.id = $1`, id)
	return err
}

func (r *DepartmentRepository) DeleteDepartment(ctx context.Context, id uint64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
