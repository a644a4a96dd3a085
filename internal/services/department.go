package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"org-system/internal/dto"
	"org-system/internal/entities"
	"org-system/internal/repositories"
	apperrors "org-system/pkg/errors"
	"org-system/pkg/treepath"
	"org-system/pkg/types"
	"org-system/pkg/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	// Ключ кеша проекции всего леса. Инвалидируется любой записью в дерево.
	cacheKeyTree = "departments:tree"

	// Перенос и удаление конкурируют за блокировки строк; при
	// serialization failure / deadlock повторяем ограниченное число раз.
	txMaxRetries = 3
)

func cacheKeyDepartment(id uint64) string {
	return fmt.Sprintf("department:%d", id)
}

// DepartmentService - движок иерархии подразделений: публичные операции,
// расчет путей и уровней, каскадный перенос поддеревьев, статистика и
// восстановительный пересчет. Корректность держится на транзакциях
// хранилища, кеш - только ускоряющая прослойка с инвалидацией на запись.
type DepartmentService struct {
	departmentRepository repositories.DepartmentRepositoryInterface
	employeeRepository   repositories.EmployeeRepositoryInterface
	cacheRepository      repositories.CacheRepositoryInterface
	txManager            repositories.TxManagerInterface
	validator            *DepartmentValidator
	logger               *zap.Logger
	treeTTL              time.Duration
	entityTTL            time.Duration
}

func NewDepartmentService(
	departmentRepository repositories.DepartmentRepositoryInterface,
	employeeRepository repositories.EmployeeRepositoryInterface,
	cacheRepository repositories.CacheRepositoryInterface,
	txManager repositories.TxManagerInterface,
	validator *DepartmentValidator,
	logger *zap.Logger,
	treeTTL, entityTTL time.Duration,
) *DepartmentService {
	return &DepartmentService{
		departmentRepository: departmentRepository,
		employeeRepository:   employeeRepository,
		cacheRepository:      cacheRepository,
		txManager:            txManager,
		validator:            validator,
		logger:               logger,
		treeTTL:              treeTTL,
		entityTTL:            entityTTL,
	}
}

// ---------- чтение ----------

func (s *DepartmentService) GetDepartments(ctx context.Context, filter types.Filter) ([]dto.DepartmentDTO, uint64, error) {
	departments, total, err := s.departmentRepository.GetDepartments(ctx, filter)
	if err != nil {
		s.logger.Error("Ошибка при получении списка подразделений", zap.Error(err))
		return nil, 0, err
	}
	result := make([]dto.DepartmentDTO, 0, len(departments))
	for i := range departments {
		result = append(result, mapDepartmentToDTO(&departments[i]))
	}
	return result, total, nil
}

func (s *DepartmentService) FindDepartment(ctx context.Context, id uint64) (*dto.DepartmentDTO, error) {
	cacheKey := cacheKeyDepartment(id)
	if cached, err := s.cacheRepository.Get(ctx, cacheKey); err == nil {
		var cachedDTO dto.DepartmentDTO
		if err := json.Unmarshal([]byte(cached), &cachedDTO); err == nil {
			return &cachedDTO, nil
		}
		s.logger.Warn("Поврежденная запись в кеше подразделения", zap.String("key", cacheKey))
	}

	department, err := s.departmentRepository.FindDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	result := mapDepartmentToDTO(department)
	if count, err := s.employeeRepository.CountByDepartment(ctx, id); err == nil {
		result.EmployeeCount = &count
	} else {
		s.logger.Warn("Не удалось получить число сотрудников подразделения", zap.Uint64("id", id), zap.Error(err))
	}

	if payload, err := json.Marshal(result); err == nil {
		if err := s.cacheRepository.Set(ctx, cacheKey, string(payload), s.entityTTL); err != nil {
			s.logger.Warn("Не удалось записать подразделение в кеш", zap.Error(err))
		}
	}
	return &result, nil
}

// GetTree собирает весь лес. Проекция целиком кешируется одним значением
// и инвалидируется при любой записи в любое подразделение.
func (s *DepartmentService) GetTree(ctx context.Context) ([]*dto.DepartmentTreeNodeDTO, error) {
	if cached, err := s.cacheRepository.Get(ctx, cacheKeyTree); err == nil {
		var forest []*dto.DepartmentTreeNodeDTO
		if err := json.Unmarshal([]byte(cached), &forest); err == nil {
			return forest, nil
		}
		s.logger.Warn("Поврежденная проекция дерева в кеше, перечитываем из БД")
	}

	all, err := s.departmentRepository.FindAll(ctx)
	if err != nil {
		s.logger.Error("Ошибка при чтении дерева подразделений", zap.Error(err))
		return nil, err
	}
	forest := buildForest(all)

	if payload, err := json.Marshal(forest); err == nil {
		if err := s.cacheRepository.Set(ctx, cacheKeyTree, string(payload), s.treeTTL); err != nil {
			s.logger.Warn("Не удалось записать проекцию дерева в кеш", zap.Error(err))
		}
	}
	return forest, nil
}

func (s *DepartmentService) GetSubtree(ctx context.Context, id uint64) (*dto.DepartmentTreeNodeDTO, error) {
	department, err := s.departmentRepository.FindDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	subtree, err := s.departmentRepository.FindByPathPrefix(ctx, department.Path)
	if err != nil {
		return nil, err
	}
	forest := buildForest(subtree)
	for _, root := range forest {
		if root.ID == id {
			return root, nil
		}
	}
	return nil, fmt.Errorf("%w: узел %d не найден в собственном поддереве", apperrors.ErrIntegrity, id)
}

// GetPath возвращает цепочку предков от корня до узла включительно.
// Идем вверх по parent_id, а не разбираем строку пути: цепочка остается
// верной, даже если материализованные пути дрейфанули.
func (s *DepartmentService) GetPath(ctx context.Context, id uint64) ([]dto.DepartmentDTO, error) {
	department, err := s.departmentRepository.FindDepartment(ctx, id)
	if err != nil {
		return nil, err
	}

	chain := []dto.DepartmentDTO{mapDepartmentToDTO(department)}
	current := department
	for steps := 0; current.ParentID != nil; steps++ {
		if steps > department.Level {
			return nil, fmt.Errorf("%w: цепочка предков подразделения %d длиннее его уровня", apperrors.ErrIntegrity, id)
		}
		parent, err := s.departmentRepository.FindDepartment(ctx, *current.ParentID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil, fmt.Errorf("%w: подразделение %d ссылается на несуществующего родителя %d", apperrors.ErrIntegrity, current.ID, *current.ParentID)
			}
			return nil, err
		}
		chain = append(chain, mapDepartmentToDTO(parent))
		current = parent
	}

	// разворачиваем: корень первым
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// GetRoots и GetChildren - ленивый обход для UI: сначала корни,
// потом дети раскрываемого узла.
func (s *DepartmentService) GetRoots(ctx context.Context) ([]dto.DepartmentDTO, error) {
	roots, err := s.departmentRepository.FindRoots(ctx)
	if err != nil {
		s.logger.Error("Ошибка при чтении корневых подразделений", zap.Error(err))
		return nil, err
	}
	result := make([]dto.DepartmentDTO, 0, len(roots))
	for i := range roots {
		result = append(result, mapDepartmentToDTO(&roots[i]))
	}
	return result, nil
}

func (s *DepartmentService) GetChildren(ctx context.Context, id uint64) ([]dto.DepartmentDTO, error) {
	if _, err := s.departmentRepository.FindDepartment(ctx, id); err != nil {
		return nil, err
	}
	children, err := s.departmentRepository.FindChildren(ctx, id)
	if err != nil {
		return nil, err
	}
	result := make([]dto.DepartmentDTO, 0, len(children))
	for i := range children {
		result = append(result, mapDepartmentToDTO(&children[i]))
	}
	return result, nil
}

func (s *DepartmentService) GetDescendants(ctx context.Context, id uint64) ([]dto.DepartmentDTO, error) {
	department, err := s.departmentRepository.FindDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	subtree, err := s.departmentRepository.FindByPathPrefix(ctx, department.Path)
	if err != nil {
		return nil, err
	}
	result := make([]dto.DepartmentDTO, 0, len(subtree))
	for i := range subtree {
		if subtree[i].ID == id {
			continue
		}
		result = append(result, mapDepartmentToDTO(&subtree[i]))
	}
	return result, nil
}

func (s *DepartmentService) GetStatistics(ctx context.Context, id uint64) (*dto.DepartmentStatisticsDTO, error) {
	department, err := s.departmentRepository.FindDepartment(ctx, id)
	if err != nil {
		return nil, err
	}

	childCount, err := s.departmentRepository.CountChildren(ctx, id)
	if err != nil {
		return nil, err
	}

	subtree, err := s.departmentRepository.FindByPathPrefix(ctx, department.Path)
	if err != nil {
		return nil, err
	}
	if len(subtree) == 0 {
		// узел исчез между двумя чтениями
		return nil, apperrors.ErrNotFound
	}
	maxDepth := 0
	subtreeIDs := make([]uint64, 0, len(subtree))
	for i := range subtree {
		subtreeIDs = append(subtreeIDs, subtree[i].ID)
		if depth := subtree[i].Level - department.Level; depth > maxDepth {
			maxDepth = depth
		}
	}

	employeeCount, err := s.employeeRepository.CountByDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	totalEmployeeCount, err := s.employeeRepository.CountByDepartments(ctx, subtreeIDs)
	if err != nil {
		return nil, err
	}

	return &dto.DepartmentStatisticsDTO{
		ID:                 id,
		ChildCount:         childCount,
		DescendantCount:    uint64(len(subtree) - 1),
		MaxDepth:           maxDepth,
		EmployeeCount:      employeeCount,
		TotalEmployeeCount: totalEmployeeCount,
	}, nil
}

func (s *DepartmentService) CanDelete(ctx context.Context, id uint64) (*dto.CanDeleteDTO, error) {
	err := s.validator.ValidateDelete(ctx, id)
	switch {
	case err == nil:
		return &dto.CanDeleteDTO{CanDelete: true}, nil
	case errors.Is(err, apperrors.ErrHasChildren), errors.Is(err, apperrors.ErrHasEmployees):
		return &dto.CanDeleteDTO{CanDelete: false, Reason: err.Error()}, nil
	default:
		return nil, err
	}
}

// ListForExport отдает плоский срез всего леса в порядке обхода путей.
func (s *DepartmentService) ListForExport(ctx context.Context) ([]entities.Department, error) {
	return s.departmentRepository.FindAll(ctx)
}

// ---------- мутации ----------

func (s *DepartmentService) CreateDepartment(ctx context.Context, in dto.CreateDepartmentDTO) (*dto.DepartmentDTO, error) {
	parentID := in.ParentID.Ptr()
	if err := s.validator.ValidateCreate(ctx, in.Code, parentID); err != nil {
		return nil, err
	}

	actor := actorFromCtx(ctx)
	var created *entities.Department
	err := s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		repo := s.departmentRepository.WithTx(tx)

		parentPath := ""
		level := 0
		if parentID != nil {
			// блокируем родителя: параллельное удаление не должно
			// успеть между проверкой и вставкой
			parent, err := repo.FindDepartmentForUpdate(ctx, *parentID)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					return apperrors.ErrParentNotFound
				}
				return err
			}
			parentPath = parent.Path
			level = parent.Level + 1
		}

		enabled := true
		if in.Enabled != nil {
			enabled = *in.Enabled
		}
		department := entities.Department{
			Name:        in.Name,
			Code:        in.Code,
			Description: in.Description.Ptr(),
			Location:    in.Location.Ptr(),
			ParentID:    parentID,
			Path:        treepath.Build(parentPath, in.Code),
			Level:       level,
			SortOrder:   in.SortOrder,
			Enabled:     enabled,
			ManagerID:   in.ManagerID.Ptr(),
		}
		department.CreatedBy = actor
		department.UpdatedBy = actor

		var err error
		created, err = repo.CreateDepartment(ctx, department)
		if err != nil {
			return err
		}
		if parentID != nil {
			return repo.RefreshIsParent(ctx, *parentID)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Ошибка при создании подразделения", zap.String("code", in.Code), zap.Error(err))
		return nil, err
	}

	keys := []string{cacheKeyTree, cacheKeyDepartment(created.ID)}
	if parentID != nil {
		keys = append(keys, cacheKeyDepartment(*parentID))
	}
	s.invalidateCache(ctx, keys...)

	s.logger.Info("Подразделение создано",
		zap.Uint64("id", created.ID), zap.String("code", created.Code), zap.String("path", created.Path))
	result := mapDepartmentToDTO(created)
	return &result, nil
}

func (s *DepartmentService) UpdateDepartment(ctx context.Context, id uint64, in dto.UpdateDepartmentDTO) (*dto.DepartmentDTO, error) {
	actor := actorFromCtx(ctx)
	var updated *entities.Department
	touchedKeys := []string{cacheKeyTree, cacheKeyDepartment(id)}
	err := s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		repo := s.departmentRepository.WithTx(tx)

		existing, err := repo.FindDepartmentForUpdate(ctx, id)
		if err != nil {
			return err
		}

		codeChanged := in.Code != nil && *in.Code != existing.Code
		if codeChanged {
			other, err := repo.FindByCode(ctx, *in.Code)
			if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
				return err
			}
			if err == nil && other.ID != id {
				return apperrors.ErrDuplicateCode
			}
		}
		if in.Name != nil && *in.Name != existing.Name {
			duplicate, err := repo.ExistsByNameAndParent(ctx, *in.Name, existing.ParentID, id)
			if err != nil {
				return err
			}
			if duplicate {
				return apperrors.ErrDuplicateName
			}
		}

		updated, err = repo.UpdateDepartment(ctx, id, in, actor)
		if err != nil {
			return err
		}

		if codeChanged {
			// код - сегмент материализованного пути: смена кода каскадно
			// переписывает пути всего поддерева (уровни не меняются).
			// У потомков меняется path, их кеш-записи тоже устаревают.
			subtree, err := repo.FindByPathPrefix(ctx, existing.Path)
			if err != nil {
				return err
			}
			for i := range subtree {
				touchedKeys = append(touchedKeys, cacheKeyDepartment(subtree[i].ID))
			}
			newPath := treepath.Build(treepath.ParentPath(existing.Path), *in.Code)
			if _, err := repo.MoveSubtree(ctx, existing.Path, newPath, 0); err != nil {
				return err
			}
			updated.Path = newPath
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Ошибка при обновлении подразделения", zap.Uint64("id", id), zap.Error(err))
		return nil, err
	}

	s.invalidateCache(ctx, touchedKeys...)

	s.logger.Info("Подразделение обновлено", zap.Uint64("id", id))
	result := mapDepartmentToDTO(updated)
	return &result, nil
}

// MoveDepartment переносит узел вместе со всем поддеревом под нового
// родителя (nil - в корень леса). Перенос атомарен: либо переписывается
// весь диапазон путей, либо ничего.
func (s *DepartmentService) MoveDepartment(ctx context.Context, id uint64, newParentID *uint64) error {
	actor := actorFromCtx(ctx)

	var touchedKeys []string
	var err error
	for attempt := 1; ; attempt++ {
		touchedKeys = touchedKeys[:0]
		err = s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
			repo := s.departmentRepository.WithTx(tx)

			department, err := repo.FindDepartmentForUpdate(ctx, id)
			if err != nil {
				return err
			}
			// до второго FOR UPDATE, чтобы не блокировать строку дважды
			if newParentID != nil && *newParentID == department.ID {
				return apperrors.ErrSelfParent
			}

			var newParent *entities.Department
			if newParentID != nil {
				newParent, err = repo.FindDepartmentForUpdate(ctx, *newParentID)
				if err != nil {
					if errors.Is(err, apperrors.ErrNotFound) {
						return apperrors.ErrParentNotFound
					}
					return err
				}
			}
			if err := CheckMove(department, newParent); err != nil {
				return err
			}

			newParentPath := ""
			newLevel := 0
			if newParent != nil {
				newParentPath = newParent.Path
				newLevel = newParent.Level + 1
			}
			newPath := treepath.Build(newParentPath, department.Code)

			// снимок поддерева до переноса - для точечной инвалидации кеша
			subtree, err := repo.FindByPathPrefix(ctx, department.Path)
			if err != nil {
				return err
			}
			for i := range subtree {
				touchedKeys = append(touchedKeys, cacheKeyDepartment(subtree[i].ID))
			}

			if _, err := repo.MoveSubtree(ctx, department.Path, newPath, newLevel-department.Level); err != nil {
				return err
			}
			if err := repo.SetParent(ctx, department.ID, newParentID, actor); err != nil {
				return err
			}

			if department.ParentID != nil {
				if err := repo.RefreshIsParent(ctx, *department.ParentID); err != nil {
					return err
				}
				touchedKeys = append(touchedKeys, cacheKeyDepartment(*department.ParentID))
			}
			if newParentID != nil {
				if err := repo.RefreshIsParent(ctx, *newParentID); err != nil {
					return err
				}
				touchedKeys = append(touchedKeys, cacheKeyDepartment(*newParentID))
			}
			return nil
		})
		if err == nil || !isRetryableTxError(err) || attempt >= txMaxRetries {
			break
		}
		s.logger.Warn("Конфликт транзакции при переносе подразделения, повтор",
			zap.Uint64("id", id), zap.Int("attempt", attempt), zap.Error(err))
	}
	if err != nil {
		if isRetryableTxError(err) {
			s.logger.Error("Перенос подразделения не удался после повторов", zap.Uint64("id", id), zap.Error(err))
			return apperrors.ErrConflict
		}
		s.logger.Error("Ошибка при переносе подразделения", zap.Uint64("id", id), zap.Error(err))
		return err
	}

	s.invalidateCache(ctx, append([]string{cacheKeyTree}, touchedKeys...)...)
	s.logger.Info("Подразделение перенесено", zap.Uint64("id", id))
	return nil
}

func (s *DepartmentService) DeleteDepartment(ctx context.Context, id uint64) error {
	var formerParentID *uint64
	err := s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		repo := s.departmentRepository.WithTx(tx)

		department, err := repo.FindDepartmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		hasChildren, err := repo.ExistsChildren(ctx, id)
		if err != nil {
			return err
		}
		if hasChildren {
			return apperrors.ErrHasChildren
		}
		employees, err := s.employeeRepository.CountByDepartment(ctx, id)
		if err != nil {
			return err
		}
		if employees > 0 {
			return apperrors.ErrHasEmployees
		}

		if err := repo.DeleteDepartment(ctx, id); err != nil {
			return err
		}
		formerParentID = department.ParentID
		if formerParentID != nil {
			return repo.RefreshIsParent(ctx, *formerParentID)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Ошибка при удалении подразделения", zap.Uint64("id", id), zap.Error(err))
		return err
	}

	keys := []string{cacheKeyTree, cacheKeyDepartment(id)}
	if formerParentID != nil {
		keys = append(keys, cacheKeyDepartment(*formerParentID))
	}
	s.invalidateCache(ctx, keys...)

	s.logger.Info("Подразделение удалено", zap.Uint64("id", id))
	return nil
}

// RebuildAllPaths пересчитывает path/level/is_parent всего леса только по
// ссылкам parent_id, игнорируя текущие (возможно поврежденные) пути.
// Каждый узел посещается ровно один раз; узлы, недостижимые из корней
// (цикл или битая ссылка на родителя), прерывают операцию целиком.
func (s *DepartmentService) RebuildAllPaths(ctx context.Context) (int, error) {
	touched := 0
	var touchedKeys []string
	err := s.txManager.RunInTransaction(ctx, func(tx pgx.Tx) error {
		repo := s.departmentRepository.WithTx(tx)

		all, err := repo.FindAll(ctx)
		if err != nil {
			return err
		}

		childrenByParent := make(map[uint64][]*entities.Department, len(all))
		var roots []*entities.Department
		for i := range all {
			d := &all[i]
			if d.ParentID == nil {
				roots = append(roots, d)
			} else {
				childrenByParent[*d.ParentID] = append(childrenByParent[*d.ParentID], d)
			}
		}

		type frame struct {
			department *entities.Department
			path       string
			level      int
		}
		stack := make([]frame, 0, len(all))
		for _, root := range roots {
			stack = append(stack, frame{root, treepath.Build("", root.Code), 0})
		}

		visited := 0
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			visited++

			children := childrenByParent[top.department.ID]
			isParent := len(children) > 0
			if top.department.Path != top.path || top.department.Level != top.level || top.department.IsParent != isParent {
				if err := repo.SetTreeRefs(ctx, top.department.ID, top.path, top.level, isParent); err != nil {
					return err
				}
				touched++
				touchedKeys = append(touchedKeys, cacheKeyDepartment(top.department.ID))
			}
			for _, child := range children {
				stack = append(stack, frame{child, treepath.Build(top.path, child.Code), top.level + 1})
			}
		}

		if visited != len(all) {
			return fmt.Errorf("%w: %d подразделений недостижимы из корней (цикл или битый parent_id)",
				apperrors.ErrIntegrity, len(all)-visited)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Пересчет путей прерван", zap.Error(err))
		return 0, err
	}

	s.invalidateCache(ctx, append([]string{cacheKeyTree}, touchedKeys...)...)
	s.logger.Info("Пересчет путей завершен", zap.Int("touched", touched))
	return touched, nil
}

// ---------- вспомогательное ----------

func (s *DepartmentService) invalidateCache(ctx context.Context, keys ...string) {
	if err := s.cacheRepository.Del(ctx, keys...); err != nil {
		// кеш - best effort: ошибка инвалидации не отменяет запись
		s.logger.Warn("Не удалось инвалидировать кеш", zap.Strings("keys", keys), zap.Error(err))
	}
}

func actorFromCtx(ctx context.Context) *uint64 {
	userID, err := utils.UserIDFromCtx(ctx)
	if err != nil {
		return nil
	}
	return &userID
}

func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func mapDepartmentToDTO(d *entities.Department) dto.DepartmentDTO {
	result := dto.DepartmentDTO{
		ID:          d.ID,
		Name:        d.Name,
		Code:        d.Code,
		Description: d.Description,
		Location:    d.Location,
		ParentID:    d.ParentID,
		Path:        d.Path,
		Level:       d.Level,
		IsParent:    d.IsParent,
		SortOrder:   d.SortOrder,
		Enabled:     d.Enabled,
		ManagerID:   d.ManagerID,
	}
	if d.CreatedAt != nil {
		result.CreatedAt = d.CreatedAt.Format(time.RFC3339)
	}
	if d.UpdatedAt != nil {
		result.UpdatedAt = d.UpdatedAt.Format(time.RFC3339)
	}
	return result
}

// buildForest собирает дерево из плоского среза по parent_id. Узлы, чей
// родитель не попал в срез, становятся корнями - на этом же держится
// сборка изолированного поддерева.
func buildForest(departments []entities.Department) []*dto.DepartmentTreeNodeDTO {
	nodes := make(map[uint64]*dto.DepartmentTreeNodeDTO, len(departments))
	for i := range departments {
		nodes[departments[i].ID] = &dto.DepartmentTreeNodeDTO{DepartmentDTO: mapDepartmentToDTO(&departments[i])}
	}

	var roots []*dto.DepartmentTreeNodeDTO
	for i := range departments {
		node := nodes[departments[i].ID]
		if parentID := departments[i].ParentID; parentID != nil {
			if parent, ok := nodes[*parentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	sortForest(roots)
	return roots
}

func sortForest(nodes []*dto.DepartmentTreeNodeDTO) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].SortOrder != nodes[j].SortOrder {
			return nodes[i].SortOrder < nodes[j].SortOrder
		}
		return nodes[i].ID < nodes[j].ID
	})
	for _, node := range nodes {
		sortForest(node.Children)
	}
}
