package migrate

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sql/*.sql
var embedded embed.FS

// Embedded 内置迁移文件
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// Runner 迁移执行器
type Runner struct {
	FS fs.FS
}

// EnsureTable 保证 schema_migrations 表存在
func EnsureTable(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version BIGINT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`)
	return err
}

// AppliedVersions 已应用版本
func AppliedVersions(ctx context.Context, db *pgxpool.Pool) (map[int64]bool, error) {
	rows, err := db.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		res[v] = true
	}
	return res, rows.Err()
}

type migrationFile struct {
	Version int64
	Path    string
}

// discoverUpMigrations 扫描 *_up.sql 按版本排序，文件名前缀数字为版本
func discoverUpMigrations(fsys fs.FS) ([]migrationFile, error) {
	var files []migrationFile
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, "_up.sql") {
			return nil
		}
		prefix, _, _ := strings.Cut(path.Base(p), "_")
		ver, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil {
			return nil
		}
		files = append(files, migrationFile{Version: ver, Path: p})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

// Up 执行未应用的向上迁移，返回本次应用的版本
func (r Runner) Up(ctx context.Context, db *pgxpool.Pool) ([]int64, error) {
	if r.FS == nil {
		return nil, errors.New("migrations fs is nil")
	}
	if err := EnsureTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := AppliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	ups, err := discoverUpMigrations(r.FS)
	if err != nil {
		return nil, err
	}
	var done []int64
	for _, m := range ups {
		if applied[m.Version] {
			continue
		}
		content, err := fs.ReadFile(r.FS, m.Path)
		if err != nil {
			return done, err
		}
		// 在事务中执行
		tx, err := db.Begin(ctx)
		if err != nil {
			return done, err
		}
		_, execErr := tx.Exec(ctx, string(content))
		if execErr == nil {
			_, execErr = tx.Exec(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES($1,$2)`, m.Version, time.Now())
		}
		if execErr != nil {
			_ = tx.Rollback(ctx)
			return done, execErr
		}
		if err := tx.Commit(ctx); err != nil {
			return done, err
		}
		done = append(done, m.Version)
	}
	return done, nil
}
