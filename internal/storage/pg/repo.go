package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/m600-assistant/internal/storage/models"
)

// Repository 帧日志热路径写入（每帧一条 INSERT，不经过 ORM）
type Repository struct {
	Pool *pgxpool.Pool
}

// InsertFrameLog 插入一条帧日志，返回自增ID
func (r *Repository) InsertFrameLog(ctx context.Context, l *models.FrameLog) (int64, error) {
	const q = `INSERT INTO frame_logs (link_id, direction, module, command, payload, raw, decoded, command_id, result, created_at)
               VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8::text, '')::uuid,$9,COALESCE($10, NOW()))
               RETURNING id`
	var decoded any
	if len(l.Decoded) > 0 {
		decoded = string(l.Decoded)
	}
	var createdAt any
	if !l.CreatedAt.IsZero() {
		createdAt = l.CreatedAt
	}
	var id int64
	err := r.Pool.QueryRow(ctx, q,
		l.LinkID, l.Direction, l.Module, l.Command, l.Payload, l.Raw, decoded, l.CommandID, l.Result, createdAt,
	).Scan(&id)
	return id, err
}

// CountFrameLogs 统计某链路帧日志条数
func (r *Repository) CountFrameLogs(ctx context.Context, linkID string) (int64, error) {
	var n int64
	err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM frame_logs WHERE link_id = $1`, linkID).Scan(&n)
	return n, err
}

// PurgeFrameLogs 删除某链路全部帧日志
func (r *Repository) PurgeFrameLogs(ctx context.Context, linkID string) (int64, error) {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM frame_logs WHERE link_id = $1`, linkID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
