package warehouse

import (
	"context"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const backendGorm = "gorm"

// Gorm runs queries through gorm, for warehouses that speak the MySQL
// protocol (ClickHouse, MySQL replicas).
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// OpenMySQL connects to dsn with gorm's own logging silenced.
func OpenMySQL(dsn string) (*Gorm, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, &ExecutionError{Backend: backendGorm, Query: "connect", Err: err}
	}
	return NewGorm(db), nil
}

func (g *Gorm) Query(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	rows := []map[string]interface{}{}
	tx := g.db.WithContext(ctx).Raw(sql).Scan(&rows)
	if tx.Error != nil {
		return nil, &ExecutionError{Backend: backendGorm, Query: sql, Err: tx.Error}
	}
	return rows, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
