package seeders

import (
	"context"
	"fmt"
	"log"

	"org-system/pkg/treepath"

	"github.com/jackc/pgx/v5/pgxpool"
)

type seedDepartment struct {
	Name     string
	Code     string
	Children []seedDepartment
}

// Стартовый каркас оргструктуры. Пути и уровни считаются при вставке.
var seedTree = []seedDepartment{
	{
		Name: "Головной офис", Code: "HQ",
		Children: []seedDepartment{
			{Name: "Инженерия", Code: "ENG", Children: []seedDepartment{
				{Name: "Разработка", Code: "SW"},
				{Name: "Эксплуатация", Code: "OPS"},
			}},
			{Name: "Кадры", Code: "HR"},
			{Name: "Финансы", Code: "FIN"},
		},
	},
}

// SeedDepartments наполняет дерево подразделений, если оно пустое.
func SeedDepartments(db *pgxpool.Pool) error {
	ctx := context.Background()
	log.Println("▶️  Запуск наполнения дерева подразделений...")

	var count int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM departments`).Scan(&count); err != nil {
		return fmt.Errorf("не удалось проверить таблицу departments: %w", err)
	}
	if count > 0 {
		log.Println("ℹ️  Таблица departments уже наполнена, пропускаем.")
		return nil
	}

	for i, root := range seedTree {
		if err := insertDepartment(ctx, db, root, nil, "", 0, i); err != nil {
			return err
		}
	}

	log.Println("✅ Наполнение дерева подразделений завершено!")
	return nil
}

func insertDepartment(ctx context.Context, db *pgxpool.Pool, d seedDepartment, parentID *uint64, parentPath string, level, sortOrder int) error {
	path := treepath.Build(parentPath, d.Code)
	var id uint64
	err := db.QueryRow(ctx, `
		INSERT INTO departments (name, code, parent_id, path, level, is_parent, sort_order, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING id`,
		d.Name, d.Code, parentID, path, level, len(d.Children) > 0, sortOrder,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("не удалось вставить подразделение %s: %w", d.Code, err)
	}

	for i, child := range d.Children {
		if err := insertDepartment(ctx, db, child, &id, path, level+1, i); err != nil {
			return err
		}
	}
	return nil
}
