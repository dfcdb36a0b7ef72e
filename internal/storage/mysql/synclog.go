package mysql

import (
	"context"

	"hostaway_sync/internal/domain"
)

func (r *Repo) AppendLog(ctx context.Context, action, status, message string) error {
	_, err := r.db.ExecContext(ctx, insertLogSQL, action, status, message)
	return err
}

// TrimLogs keeps only the newest keep rows.
func (r *Repo) TrimLogs(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, trimLogsSQL, keep-1)
	return err
}

func (r *Repo) RecentLogs(ctx context.Context, limit int) ([]domain.SyncLog, error) {
	rows, err := r.db.QueryContext(ctx, recentLogsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.SyncLog{}
	for rows.Next() {
		var l domain.SyncLog
		if err := rows.Scan(&l.ID, &l.Action, &l.Status, &l.Message, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
