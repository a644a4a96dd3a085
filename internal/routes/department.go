package routes

import (
	"org-system/internal/controllers"
	"org-system/internal/repositories"
	"org-system/internal/services"
	"org-system/pkg/config"
	"org-system/pkg/middleware"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func RunDepartmentRouter(
	e *echo.Echo,
	dbConn *pgxpool.Pool,
	redisClient *redis.Client,
	authMW *middleware.AuthMiddleware,
	logger *zap.Logger,
	cfg *config.Config,
) {
	var (
		departmentRepository = repositories.NewDepartmentRepository(dbConn, logger)
		employeeRepository   = repositories.NewEmployeeRepository(dbConn, logger)
		cacheRepository      = repositories.NewRedisCacheRepository(redisClient)
		txManager            = repositories.NewTxManager(dbConn)
		validator            = services.NewDepartmentValidator(departmentRepository, employeeRepository)
		departmentService    = services.NewDepartmentService(
			departmentRepository, employeeRepository, cacheRepository, txManager,
			validator, logger, cfg.Cache.TreeTTL, cfg.Cache.EntityTTL,
		)
		departmentCtrl = controllers.NewDepartmentController(departmentService, logger)
	)

	// чтение - публичное
	e.GET("/departments", departmentCtrl.GetDepartments)
	e.GET("/departments/tree", departmentCtrl.GetTree)
	e.GET("/departments/roots", departmentCtrl.GetRoots)
	e.GET("/departments/export", departmentCtrl.ExportDepartments)
	e.GET("/department/:id", departmentCtrl.FindDepartment)
	e.GET("/department/:id/subtree", departmentCtrl.GetSubtree)
	e.GET("/department/:id/children", departmentCtrl.GetChildren)
	e.GET("/department/:id/path", departmentCtrl.GetPath)
	e.GET("/department/:id/descendants", departmentCtrl.GetDescendants)
	e.GET("/department/:id/statistics", departmentCtrl.GetStatistics)
	e.GET("/department/:id/can-delete", departmentCtrl.CanDelete)

	// мутации - только с токеном
	e.POST("/department", departmentCtrl.CreateDepartment, authMW.Auth)
	e.PUT("/department/:id", departmentCtrl.UpdateDepartment, authMW.Auth)
	e.PUT("/department/:id/move", departmentCtrl.MoveDepartment, authMW.Auth)
	e.DELETE("/department/:id", departmentCtrl.DeleteDepartment, authMW.Auth)
	e.POST("/departments/rebuild-paths", departmentCtrl.RebuildPaths, authMW.Auth)
}
