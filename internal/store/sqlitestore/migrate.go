package sqlitestore

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate 执行所有未应用的迁移。
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("设置 goose 方言失败：%w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("执行迁移失败：%w", err)
	}
	return nil
}
