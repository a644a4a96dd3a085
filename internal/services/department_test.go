package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"org-system/internal/dto"
	"org-system/internal/entities"
	"org-system/internal/repositories"
	apperrors "org-system/pkg/errors"
	"org-system/pkg/treepath"
	"org-system/pkg/types"
	"org-system/pkg/utils"

	"github.com/aarondl/null/v8"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------- in-memory фейки границ хранилища ----------

type fakeDepartmentRepo struct {
	nextID uint64
	rows   map[uint64]*entities.Department
}

func newFakeDepartmentRepo() *fakeDepartmentRepo {
	return &fakeDepartmentRepo{nextID: 1, rows: make(map[uint64]*entities.Department)}
}

func (r *fakeDepartmentRepo) WithTx(_ pgx.Tx) repositories.DepartmentRepositoryInterface {
	return r
}

func copyDept(d *entities.Department) *entities.Department {
	c := *d
	return &c
}

func (r *fakeDepartmentRepo) sortedRows() []entities.Department {
	out := make([]entities.Department, 0, len(r.rows))
	for _, d := range r.rows {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (r *fakeDepartmentRepo) GetDepartments(_ context.Context, _ types.Filter) ([]entities.Department, uint64, error) {
	rows := r.sortedRows()
	return rows, uint64(len(rows)), nil
}

func (r *fakeDepartmentRepo) FindDepartment(_ context.Context, id uint64) (*entities.Department, error) {
	d, ok := r.rows[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyDept(d), nil
}

func (r *fakeDepartmentRepo) FindDepartmentForUpdate(ctx context.Context, id uint64) (*entities.Department, error) {
	return r.FindDepartment(ctx, id)
}

func (r *fakeDepartmentRepo) FindByCode(_ context.Context, code string) (*entities.Department, error) {
	for _, d := range r.rows {
		if d.Code == code {
			return copyDept(d), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeDepartmentRepo) ExistsByCode(_ context.Context, code string) (bool, error) {
	for _, d := range r.rows {
		if d.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeDepartmentRepo) ExistsByNameAndParent(_ context.Context, name string, parentID *uint64, excludeID uint64) (bool, error) {
	for _, d := range r.rows {
		if d.ID == excludeID || d.Name != name {
			continue
		}
		if (d.ParentID == nil) != (parentID == nil) {
			continue
		}
		if parentID == nil || *d.ParentID == *parentID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeDepartmentRepo) FindChildren(_ context.Context, parentID uint64) ([]entities.Department, error) {
	var out []entities.Department
	for _, d := range r.sortedRows() {
		if d.ParentID != nil && *d.ParentID == parentID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDepartmentRepo) FindRoots(_ context.Context) ([]entities.Department, error) {
	var out []entities.Department
	for _, d := range r.sortedRows() {
		if d.ParentID == nil {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDepartmentRepo) ExistsChildren(_ context.Context, parentID uint64) (bool, error) {
	for _, d := range r.rows {
		if d.ParentID != nil && *d.ParentID == parentID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeDepartmentRepo) CountChildren(_ context.Context, parentID uint64) (uint64, error) {
	var total uint64
	for _, d := range r.rows {
		if d.ParentID != nil && *d.ParentID == parentID {
			total++
		}
	}
	return total, nil
}

func (r *fakeDepartmentRepo) FindByPathPrefix(_ context.Context, prefix string) ([]entities.Department, error) {
	var out []entities.Department
	for _, d := range r.sortedRows() {
		if treepath.IsAncestorPath(prefix, d.Path) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDepartmentRepo) FindAll(_ context.Context) ([]entities.Department, error) {
	return r.sortedRows(), nil
}

func (r *fakeDepartmentRepo) CreateDepartment(_ context.Context, department entities.Department) (*entities.Department, error) {
	for _, d := range r.rows {
		if d.Code == department.Code {
			return nil, apperrors.ErrDuplicateCode
		}
	}
	department.ID = r.nextID
	r.nextID++
	now := time.Now()
	department.CreatedAt = &now
	department.UpdatedAt = &now
	r.rows[department.ID] = copyDept(&department)
	return copyDept(&department), nil
}

func (r *fakeDepartmentRepo) UpdateDepartment(_ context.Context, id uint64, in dto.UpdateDepartmentDTO, updatedBy *uint64) (*entities.Department, error) {
	d, ok := r.rows[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if in.Name != nil {
		d.Name = *in.Name
	}
	if in.Code != nil {
		d.Code = *in.Code
	}
	if in.Description.Set {
		d.Description = in.Description.Ptr()
	}
	if in.Location.Set {
		d.Location = in.Location.Ptr()
	}
	if in.ManagerID.Set {
		d.ManagerID = in.ManagerID.Ptr()
	}
	if in.SortOrder != nil {
		d.SortOrder = *in.SortOrder
	}
	if in.Enabled != nil {
		d.Enabled = *in.Enabled
	}
	d.UpdatedBy = updatedBy
	return copyDept(d), nil
}

func (r *fakeDepartmentRepo) SetParent(_ context.Context, id uint64, parentID *uint64, updatedBy *uint64) error {
	d, ok := r.rows[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	d.ParentID = parentID
	d.UpdatedBy = updatedBy
	return nil
}

func (r *fakeDepartmentRepo) MoveSubtree(_ context.Context, oldPrefix, newPrefix string, levelDelta int) (int64, error) {
	var touched int64
	for _, d := range r.rows {
		if !treepath.IsAncestorPath(oldPrefix, d.Path) {
			continue
		}
		newPath, err := treepath.ReplacePrefix(d.Path, oldPrefix, newPrefix)
		if err != nil {
			return 0, err
		}
		d.Path = newPath
		d.Level += levelDelta
		touched++
	}
	return touched, nil
}

func (r *fakeDepartmentRepo) SetTreeRefs(_ context.Context, id uint64, path string, level int, isParent bool) error {
	d, ok := r.rows[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	d.Path = path
	d.Level = level
	d.IsParent = isParent
	return nil
}

func (r *fakeDepartmentRepo) RefreshIsParent(ctx context.Context, id uint64) error {
	d, ok := r.rows[id]
	if !ok {
		return nil
	}
	hasChildren, _ := r.ExistsChildren(ctx, id)
	d.IsParent = hasChildren
	return nil
}

func (r *fakeDepartmentRepo) DeleteDepartment(_ context.Context, id uint64) error {
	if _, ok := r.rows[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

type fakeEmployeeRepo struct {
	counts map[uint64]uint64
}

func (r *fakeEmployeeRepo) CountByDepartment(_ context.Context, departmentID uint64) (uint64, error) {
	return r.counts[departmentID], nil
}

func (r *fakeEmployeeRepo) CountByDepartments(_ context.Context, departmentIDs []uint64) (uint64, error) {
	var total uint64
	for _, id := range departmentIDs {
		total += r.counts[id]
	}
	return total, nil
}

type fakeCache struct {
	values  map[string]string
	deleted []string
}

func newFakeCache() *fakeCache { return &fakeCache{values: make(map[string]string)} }

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.values[key]
	if !ok {
		return "", errors.New("cache miss")
	}
	return v, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.values[key] = value.(string)
	return nil
}

func (c *fakeCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.values, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

type fakeTxManager struct{}

func (m *fakeTxManager) RunInTransaction(_ context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

// flakyTxManager проводит транзакцию, но первые failures коммитов
// завершает ошибкой сериализации.
type flakyTxManager struct {
	failures int
	calls    int
}

func (m *flakyTxManager) RunInTransaction(_ context.Context, fn func(tx pgx.Tx) error) error {
	m.calls++
	if err := fn(nil); err != nil {
		return err
	}
	if m.calls <= m.failures {
		return &pgconn.PgError{Code: "40001"}
	}
	return nil
}

// ---------- сборка сервиса на фейках ----------

type fixture struct {
	repo      *fakeDepartmentRepo
	employees *fakeEmployeeRepo
	cache     *fakeCache
	service   *DepartmentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newFakeDepartmentRepo()
	employees := &fakeEmployeeRepo{counts: make(map[uint64]uint64)}
	cache := newFakeCache()
	validator := NewDepartmentValidator(repo, employees)
	svc := NewDepartmentService(
		repo, employees, cache, &fakeTxManager{}, validator,
		zap.NewNop(), time.Minute, time.Minute,
	)
	return &fixture{repo: repo, employees: employees, cache: cache, service: svc}
}

func (f *fixture) mustCreate(t *testing.T, name, code string, parentID *uint64) *dto.DepartmentDTO {
	t.Helper()
	in := dto.CreateDepartmentDTO{Name: name, Code: code}
	if parentID != nil {
		in.ParentID = null.Uint64From(*parentID)
	}
	created, err := f.service.CreateDepartment(context.Background(), in)
	require.NoError(t, err)
	return created
}

// ---------- тесты ----------

func TestCreateDepartment_RootAndChild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	assert.Equal(t, "/ENG", eng.Path)
	assert.Equal(t, 0, eng.Level)
	assert.Nil(t, eng.ParentID)

	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)
	assert.Equal(t, "/ENG/SW", sw.Path)
	assert.Equal(t, 1, sw.Level)

	parent, err := f.repo.FindDepartment(ctx, eng.ID)
	require.NoError(t, err)
	assert.True(t, parent.IsParent)
	assert.False(t, f.repo.rows[sw.ID].IsParent)
}

func TestCreateDepartment_DuplicateCode(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "Инженерия", "ENG", nil)

	_, err := f.service.CreateDepartment(context.Background(), dto.CreateDepartmentDTO{Name: "Другое", Code: "ENG"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateCode)
}

func TestCreateDepartment_ParentNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.CreateDepartment(context.Background(), dto.CreateDepartmentDTO{
		Name: "Сироты", Code: "ORPH", ParentID: null.Uint64From(99),
	})
	assert.ErrorIs(t, err, apperrors.ErrParentNotFound)
}

func TestMoveDepartment_RepathsWholeSubtree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)
	qa := f.mustCreate(t, "Тестирование", "QA", &sw.ID)

	// состав поддерева до переноса
	before, err := f.service.GetDescendants(ctx, sw.ID)
	require.NoError(t, err)

	// SW вместе с QA уезжает в корень леса
	require.NoError(t, f.service.MoveDepartment(ctx, sw.ID, nil))

	moved, err := f.repo.FindDepartment(ctx, sw.ID)
	require.NoError(t, err)
	assert.Equal(t, "/SW", moved.Path)
	assert.Equal(t, 0, moved.Level)
	assert.Nil(t, moved.ParentID)

	child, err := f.repo.FindDepartment(ctx, qa.ID)
	require.NoError(t, err)
	assert.Equal(t, "/SW/QA", child.Path)
	assert.Equal(t, 1, child.Level)

	// бывший родитель больше не родитель
	former, err := f.repo.FindDepartment(ctx, eng.ID)
	require.NoError(t, err)
	assert.False(t, former.IsParent)

	// состав поддерева не изменился
	after, err := f.service.GetDescendants(ctx, sw.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	assert.Equal(t, before[0].ID, after[0].ID)
}

func TestMoveDepartment_UnderDeeperNode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)
	hr := f.mustCreate(t, "Кадры", "HR", nil)

	require.NoError(t, f.service.MoveDepartment(ctx, hr.ID, &sw.ID))

	moved, err := f.repo.FindDepartment(ctx, hr.ID)
	require.NoError(t, err)
	assert.Equal(t, "/ENG/SW/HR", moved.Path)
	assert.Equal(t, 2, moved.Level)

	newParent, err := f.repo.FindDepartment(ctx, sw.ID)
	require.NoError(t, err)
	assert.True(t, newParent.IsParent)
}

func TestMoveDepartment_CircularReferenceRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)

	err := f.service.MoveDepartment(ctx, eng.ID, &sw.ID)
	assert.ErrorIs(t, err, apperrors.ErrCircularReference)

	// дерево не тронуто
	unchanged, err := f.repo.FindDepartment(ctx, eng.ID)
	require.NoError(t, err)
	assert.Equal(t, "/ENG", unchanged.Path)
	child, err := f.repo.FindDepartment(ctx, sw.ID)
	require.NoError(t, err)
	assert.Equal(t, "/ENG/SW", child.Path)
}

func TestMoveDepartment_SelfParentRejected(t *testing.T) {
	f := newFixture(t)
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)

	err := f.service.MoveDepartment(context.Background(), eng.ID, &eng.ID)
	assert.ErrorIs(t, err, apperrors.ErrSelfParent)
}

func TestMoveDepartment_RetriesOnSerializationFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)
	hr := f.mustCreate(t, "Кадры", "HR", nil)

	tm := &flakyTxManager{failures: 2}
	f.service = NewDepartmentService(
		f.repo, f.employees, f.cache, tm,
		NewDepartmentValidator(f.repo, f.employees),
		zap.NewNop(), time.Minute, time.Minute,
	)
	f.cache.deleted = nil

	require.NoError(t, f.service.MoveDepartment(ctx, hr.ID, &sw.ID))
	assert.Equal(t, 3, tm.calls)

	moved, err := f.repo.FindDepartment(ctx, hr.ID)
	require.NoError(t, err)
	assert.Equal(t, "/ENG/SW/HR", moved.Path)

	// ключи инвалидируются по итогам последней попытки, без накопления
	hits := 0
	for _, key := range f.cache.deleted {
		if key == cacheKeyDepartment(hr.ID) {
			hits++
		}
	}
	assert.Equal(t, 1, hits)
}

func TestMoveDepartment_ConflictAfterRetriesExhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)
	hr := f.mustCreate(t, "Кадры", "HR", nil)

	tm := &flakyTxManager{failures: txMaxRetries + 1}
	f.service = NewDepartmentService(
		f.repo, f.employees, f.cache, tm,
		NewDepartmentValidator(f.repo, f.employees),
		zap.NewNop(), time.Minute, time.Minute,
	)

	err := f.service.MoveDepartment(ctx, hr.ID, &sw.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, txMaxRetries, tm.calls)
}

func TestDeleteDepartment_BlockedByChildren(t *testing.T) {
	f := newFixture(t)
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	f.mustCreate(t, "Разработка", "SW", &eng.ID)

	err := f.service.DeleteDepartment(context.Background(), eng.ID)
	assert.ErrorIs(t, err, apperrors.ErrHasChildren)
	assert.Len(t, f.repo.rows, 2)
}

func TestDeleteDepartment_BlockedByEmployees(t *testing.T) {
	f := newFixture(t)
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	f.employees.counts[eng.ID] = 3

	err := f.service.DeleteDepartment(context.Background(), eng.ID)
	assert.ErrorIs(t, err, apperrors.ErrHasEmployees)
}

func TestDeleteDepartment_LeafClearsParentFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)

	require.NoError(t, f.service.DeleteDepartment(ctx, sw.ID))

	_, err := f.repo.FindDepartment(ctx, sw.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	parent, err := f.repo.FindDepartment(ctx, eng.ID)
	require.NoError(t, err)
	assert.False(t, parent.IsParent)
}

func TestUpdateDepartment_CodeChangeRepathsSubtree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)

	newCode := "RND"
	updated, err := f.service.UpdateDepartment(ctx, eng.ID, dto.UpdateDepartmentDTO{Code: &newCode})
	require.NoError(t, err)
	assert.Equal(t, "/RND", updated.Path)

	child, err := f.repo.FindDepartment(ctx, sw.ID)
	require.NoError(t, err)
	assert.Equal(t, "/RND/SW", child.Path)
	assert.Equal(t, 1, child.Level)
}

func TestUpdateDepartment_CodeChangeInvalidatesDescendantCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)

	// прогреваем кеш потомка
	warm, err := f.service.FindDepartment(ctx, sw.ID)
	require.NoError(t, err)
	assert.Equal(t, "/ENG/SW", warm.Path)

	newCode := "ENG2"
	_, err = f.service.UpdateDepartment(ctx, eng.ID, dto.UpdateDepartmentDTO{Code: &newCode})
	require.NoError(t, err)

	// потомок читается с новым путем, а не из устаревшего кеша
	fresh, err := f.service.FindDepartment(ctx, sw.ID)
	require.NoError(t, err)
	assert.Equal(t, "/ENG2/SW", fresh.Path)
}

func TestUpdateDepartment_ExplicitNullClearsManager(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)

	_, err := f.service.UpdateDepartment(ctx, eng.ID, dto.UpdateDepartmentDTO{
		ManagerID: dto.OptionalUint64{Uint64: null.Uint64From(42), Set: true},
	})
	require.NoError(t, err)
	require.NotNil(t, f.repo.rows[eng.ID].ManagerID)

	// пропущенное поле руководителя не трогает
	name := "Инженерный блок"
	_, err = f.service.UpdateDepartment(ctx, eng.ID, dto.UpdateDepartmentDTO{Name: &name})
	require.NoError(t, err)
	require.NotNil(t, f.repo.rows[eng.ID].ManagerID)

	// явный null снимает руководителя
	_, err = f.service.UpdateDepartment(ctx, eng.ID, dto.UpdateDepartmentDTO{
		ManagerID: dto.OptionalUint64{Set: true},
	})
	require.NoError(t, err)
	assert.Nil(t, f.repo.rows[eng.ID].ManagerID)
}

func TestUpdateDepartment_DuplicateName(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "Инженерия", "ENG", nil)
	hr := f.mustCreate(t, "Кадры", "HR", nil)

	name := "Инженерия"
	_, err := f.service.UpdateDepartment(context.Background(), hr.ID, dto.UpdateDepartmentDTO{Name: &name})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateName)
}

func TestGetPath_RootFirst(t *testing.T) {
	f := newFixture(t)
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)
	qa := f.mustCreate(t, "Тестирование", "QA", &sw.ID)

	chain, err := f.service.GetPath(context.Background(), qa.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "ENG", chain[0].Code)
	assert.Equal(t, "SW", chain[1].Code)
	assert.Equal(t, "QA", chain[2].Code)
}

func TestGetTree_AssembledAndCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	f.mustCreate(t, "Разработка", "SW", &eng.ID)
	f.mustCreate(t, "Кадры", "HR", nil)

	forest, err := f.service.GetTree(ctx)
	require.NoError(t, err)
	require.Len(t, forest, 2)

	var engNode *dto.DepartmentTreeNodeDTO
	for _, n := range forest {
		if n.Code == "ENG" {
			engNode = n
		}
	}
	require.NotNil(t, engNode)
	require.Len(t, engNode.Children, 1)
	assert.Equal(t, "SW", engNode.Children[0].Code)

	// проекция легла в кеш
	_, ok := f.cache.values[cacheKeyTree]
	assert.True(t, ok)

	// запись инвалидирует проекцию
	f.mustCreate(t, "Финансы", "FIN", nil)
	_, ok = f.cache.values[cacheKeyTree]
	assert.False(t, ok)

	forest, err = f.service.GetTree(ctx)
	require.NoError(t, err)
	assert.Len(t, forest, 3)
}

func TestGetRootsAndChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	f.mustCreate(t, "Разработка", "SW", &eng.ID)
	f.mustCreate(t, "Кадры", "HR", nil)

	roots, err := f.service.GetRoots(ctx)
	require.NoError(t, err)
	assert.Len(t, roots, 2)

	children, err := f.service.GetChildren(ctx, eng.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "SW", children[0].Code)

	_, err = f.service.GetChildren(ctx, 404)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetSubtree(t *testing.T) {
	f := newFixture(t)
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)
	f.mustCreate(t, "Тестирование", "QA", &sw.ID)
	f.mustCreate(t, "Кадры", "HR", nil)

	node, err := f.service.GetSubtree(context.Background(), sw.ID)
	require.NoError(t, err)
	assert.Equal(t, "SW", node.Code)
	require.Len(t, node.Children, 1)
	assert.Equal(t, "QA", node.Children[0].Code)
}

// vanishingDepartmentRepo имитирует гонку: узел найден первым чтением,
// но исчез до запроса поддерева.
type vanishingDepartmentRepo struct {
	*fakeDepartmentRepo
}

func (r *vanishingDepartmentRepo) FindByPathPrefix(_ context.Context, _ string) ([]entities.Department, error) {
	return nil, nil
}

func TestGetStatistics_NodeVanishedBetweenReads(t *testing.T) {
	f := newFixture(t)
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)

	repo := &vanishingDepartmentRepo{f.repo}
	svc := NewDepartmentService(
		repo, f.employees, f.cache, &fakeTxManager{},
		NewDepartmentValidator(repo, f.employees),
		zap.NewNop(), time.Minute, time.Minute,
	)

	_, err := svc.GetStatistics(context.Background(), eng.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetStatistics(t *testing.T) {
	f := newFixture(t)
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)
	qa := f.mustCreate(t, "Тестирование", "QA", &sw.ID)
	f.mustCreate(t, "Эксплуатация", "OPS", &eng.ID)

	f.employees.counts[eng.ID] = 2
	f.employees.counts[sw.ID] = 5
	f.employees.counts[qa.ID] = 1

	stats, err := f.service.GetStatistics(context.Background(), eng.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.ChildCount)
	assert.Equal(t, uint64(3), stats.DescendantCount)
	assert.Equal(t, 2, stats.MaxDepth)
	assert.Equal(t, uint64(2), stats.EmployeeCount)
	assert.Equal(t, uint64(8), stats.TotalEmployeeCount)
}

func TestCanDelete(t *testing.T) {
	f := newFixture(t)
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)

	res, err := f.service.CanDelete(context.Background(), eng.ID)
	require.NoError(t, err)
	assert.False(t, res.CanDelete)
	assert.NotEmpty(t, res.Reason)

	res, err = f.service.CanDelete(context.Background(), sw.ID)
	require.NoError(t, err)
	assert.True(t, res.CanDelete)
}

func TestRebuildAllPaths_RepairsDriftAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)
	qa := f.mustCreate(t, "Тестирование", "QA", &sw.ID)

	// имитируем дрейф: портим производные поля напрямую
	f.repo.rows[sw.ID].Path = "/BROKEN"
	f.repo.rows[sw.ID].Level = 7
	f.repo.rows[qa.ID].Path = "/BROKEN/QA"
	f.repo.rows[eng.ID].IsParent = false

	touched, err := f.service.RebuildAllPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, touched)

	assert.Equal(t, "/ENG/SW", f.repo.rows[sw.ID].Path)
	assert.Equal(t, 1, f.repo.rows[sw.ID].Level)
	assert.Equal(t, "/ENG/SW/QA", f.repo.rows[qa.ID].Path)
	assert.True(t, f.repo.rows[eng.ID].IsParent)

	// повторный запуск ничего не меняет
	touched, err = f.service.RebuildAllPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, touched)
}

func TestRebuildAllPaths_DetectsCycle(t *testing.T) {
	f := newFixture(t)
	a := f.mustCreate(t, "А", "A", nil)
	b := f.mustCreate(t, "Б", "B", &a.ID)

	// руками замыкаем цикл: A <-> B, оба недостижимы из корней
	f.repo.rows[a.ID].ParentID = &b.ID

	_, err := f.service.RebuildAllPaths(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrIntegrity)
}

func TestFindDepartment_CacheRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	f.employees.counts[eng.ID] = 4

	found, err := f.service.FindDepartment(ctx, eng.ID)
	require.NoError(t, err)
	require.NotNil(t, found.EmployeeCount)
	assert.Equal(t, uint64(4), utils.SafeDeref(found.EmployeeCount))

	// второе чтение обслуживается кешем даже после правки строки напрямую
	f.repo.rows[eng.ID].Name = "изменено мимо сервиса"
	cached, err := f.service.FindDepartment(ctx, eng.ID)
	require.NoError(t, err)
	assert.Equal(t, "Инженерия", cached.Name)

	// запись через сервис инвалидирует ключ
	newName := "Инженерный блок"
	_, err = f.service.UpdateDepartment(ctx, eng.ID, dto.UpdateDepartmentDTO{Name: &newName})
	require.NoError(t, err)
	fresh, err := f.service.FindDepartment(ctx, eng.ID)
	require.NoError(t, err)
	assert.Equal(t, newName, fresh.Name)
}

func TestLevelMatchesPathSegments(t *testing.T) {
	f := newFixture(t)
	eng := f.mustCreate(t, "Инженерия", "ENG", nil)
	sw := f.mustCreate(t, "Разработка", "SW", &eng.ID)
	f.mustCreate(t, "Тестирование", "QA", &sw.ID)

	all, err := f.repo.FindAll(context.Background())
	require.NoError(t, err)
	for _, d := range all {
		segments := strings.Count(d.Path, treepath.Separator)
		assert.Equal(t, segments-1, d.Level, d.Path)
	}
}
