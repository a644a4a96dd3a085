package main

import (
	"flag"
	"log"

	"org-system/pkg/config"
	"org-system/pkg/database/postgresql"
	"org-system/seeders"
)

func main() {
	log.Println("======================================================")
	log.Println("       🌱 СИСТЕМА СИДЕРОВ (Наполнение БД)             ")
	log.Println("======================================================")

	runDepartments := flag.Bool("departments", false, "Запустить наполнение дерева подразделений")
	runAll := flag.Bool("all", false, "Запустить все сидеры")
	flag.Parse()

	if !*runDepartments && !*runAll {
		log.Println("❌ Не выбран ни один сидер для запуска.")
		flag.PrintDefaults()
		return
	}

	cfg := config.New()
	db := postgresql.ConnectDB(cfg.Postgres.DSN)
	defer db.Close()

	if *runDepartments || *runAll {
		if err := seeders.SeedDepartments(db); err != nil {
			log.Fatalf("❌ Ошибка наполнения подразделений: %v", err)
		}
	}

	log.Println("✅ Все выбранные сидеры отработали.")
}
