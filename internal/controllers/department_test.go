package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"org-system/internal/entities"
	"org-system/internal/repositories"
	"org-system/internal/services"
	"org-system/pkg/customvalidator"
	apperrors "org-system/pkg/errors"
	"org-system/pkg/types"
	"org-system/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Заглушки только для read-путей: встраивание интерфейса оставляет
// незатронутые методы паникующими - тест сразу покажет неожиданный вызов.

type stubDepartmentRepo struct {
	repositories.DepartmentRepositoryInterface
	departments map[uint64]*entities.Department
}

func (s *stubDepartmentRepo) WithTx(_ pgx.Tx) repositories.DepartmentRepositoryInterface {
	return s
}

func (s *stubDepartmentRepo) FindDepartment(_ context.Context, id uint64) (*entities.Department, error) {
	d, ok := s.departments[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return d, nil
}

func (s *stubDepartmentRepo) GetDepartments(_ context.Context, _ types.Filter) ([]entities.Department, uint64, error) {
	out := make([]entities.Department, 0, len(s.departments))
	for _, d := range s.departments {
		out = append(out, *d)
	}
	return out, uint64(len(out)), nil
}

func (s *stubDepartmentRepo) FindAll(_ context.Context) ([]entities.Department, error) {
	out := make([]entities.Department, 0, len(s.departments))
	for _, d := range s.departments {
		out = append(out, *d)
	}
	return out, nil
}

type stubEmployeeRepo struct{}

func (stubEmployeeRepo) CountByDepartment(_ context.Context, _ uint64) (uint64, error) {
	return 0, nil
}

func (stubEmployeeRepo) CountByDepartments(_ context.Context, _ []uint64) (uint64, error) {
	return 0, nil
}

type noopCache struct{}

func (noopCache) Get(_ context.Context, _ string) (string, error) { return "", errors.New("miss") }
func (noopCache) Set(_ context.Context, _ string, _ interface{}, _ time.Duration) error {
	return nil
}
func (noopCache) Del(_ context.Context, _ ...string) error { return nil }

type stubTxManager struct{}

func (stubTxManager) RunInTransaction(_ context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func newTestController(t *testing.T, departments map[uint64]*entities.Department) (*echo.Echo, *DepartmentController) {
	t.Helper()
	repo := &stubDepartmentRepo{departments: departments}
	employees := stubEmployeeRepo{}
	svc := services.NewDepartmentService(
		repo, employees, noopCache{}, stubTxManager{},
		services.NewDepartmentValidator(repo, employees),
		zap.NewNop(), time.Minute, time.Minute,
	)

	e := echo.New()
	v := validator.New()
	require.NoError(t, customvalidator.RegisterCustomValidations(v))
	e.Validator = utils.NewValidator(v)

	return e, NewDepartmentController(svc, zap.NewNop())
}

func TestFindDepartment_Envelope(t *testing.T) {
	e, ctrl := newTestController(t, map[uint64]*entities.Department{
		1: {ID: 1, Name: "Инженерия", Code: "ENG", Path: "/ENG", Enabled: true},
	})

	req := httptest.NewRequest(http.MethodGet, "/department/1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/department/:id")
	c.SetParamNames("id")
	c.SetParamValues("1")

	require.NoError(t, ctrl.FindDepartment(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status bool `json:"status"`
		Body   struct {
			Code string `json:"code"`
			Path string `json:"path"`
		} `json:"body"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Status)
	assert.Equal(t, "ENG", resp.Body.Code)
	assert.Equal(t, "/ENG", resp.Body.Path)
}

func TestFindDepartment_NotFound(t *testing.T) {
	e, ctrl := newTestController(t, map[uint64]*entities.Department{})

	req := httptest.NewRequest(http.MethodGet, "/department/7", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/department/:id")
	c.SetParamNames("id")
	c.SetParamValues("7")

	require.NoError(t, ctrl.FindDepartment(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":false`)
}

func TestFindDepartment_BadID(t *testing.T) {
	e, ctrl := newTestController(t, map[uint64]*entities.Department{})

	req := httptest.NewRequest(http.MethodGet, "/department/abc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/department/:id")
	c.SetParamNames("id")
	c.SetParamValues("abc")

	require.NoError(t, ctrl.FindDepartment(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTree_AssemblesForest(t *testing.T) {
	parentID := uint64(1)
	e, ctrl := newTestController(t, map[uint64]*entities.Department{
		1: {ID: 1, Name: "Инженерия", Code: "ENG", Path: "/ENG", IsParent: true},
		2: {ID: 2, Name: "Разработка", Code: "SW", Path: "/ENG/SW", Level: 1, ParentID: &parentID},
	})

	req := httptest.NewRequest(http.MethodGet, "/departments/tree", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, ctrl.GetTree(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Body []struct {
			Code     string `json:"code"`
			Children []struct {
				Code string `json:"code"`
			} `json:"children"`
		} `json:"body"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Body, 1)
	assert.Equal(t, "ENG", resp.Body[0].Code)
	require.Len(t, resp.Body[0].Children, 1)
	assert.Equal(t, "SW", resp.Body[0].Children[0].Code)
}

func TestGetDepartments_PaginationEnvelope(t *testing.T) {
	e, ctrl := newTestController(t, map[uint64]*entities.Department{
		1: {ID: 1, Name: "Инженерия", Code: "ENG", Path: "/ENG"},
		2: {ID: 2, Name: "Кадры", Code: "HR", Path: "/HR"},
		3: {ID: 3, Name: "Финансы", Code: "FIN", Path: "/FIN"},
	})

	req := httptest.NewRequest(http.MethodGet, "/departments?withPagination=true&limit=2&page=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, ctrl.GetDepartments(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Body struct {
			List       []json.RawMessage `json:"list"`
			Pagination types.Pagination  `json:"pagination"`
		} `json:"body"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(3), resp.Body.Pagination.TotalCount)
	assert.Equal(t, 2, resp.Body.Pagination.Limit)
	assert.Equal(t, 1, resp.Body.Pagination.Page)
	assert.Equal(t, 2, resp.Body.Pagination.TotalPages)
}

func TestCreateDepartment_ValidationRejectsBadCode(t *testing.T) {
	e, ctrl := newTestController(t, map[uint64]*entities.Department{})

	body := `{"name": "Инженерия", "code": "bad code"}`
	req := httptest.NewRequest(http.MethodPost, "/department", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, ctrl.CreateDepartment(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "dept_code")
}
