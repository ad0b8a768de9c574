// AngelaMos | 2026
// repository.go

package admin

import (
	"context"
	"fmt"

	"github.com/carterperez-dev/templates/saas-backend/internal/core"
)

// TenantCounter reports how many tenants and tenant-scoped records exist.
type TenantCounter interface {
	TenantStats(ctx context.Context) (*TenantStats, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) TenantCounter {
	return &repository{db: db}
}

type statusCount struct {
	Status string `db:"status"`
	Count  int64  `db:"count"`
}

func (r *repository) TenantStats(ctx context.Context) (*TenantStats, error) {
	stats := &TenantStats{
		Invitations:   map[string]int64{},
		Subscriptions: map[string]int64{},
	}

	if err := r.db.GetContext(ctx, stats, `
		SELECT
			(SELECT COUNT(*) FROM users)         AS users,
			(SELECT COUNT(*) FROM organizations) AS organizations,
			(SELECT COUNT(*) FROM members)       AS members`,
	); err != nil {
		return nil, fmt.Errorf("count tenants: %w", err)
	}

	if err := r.countByStatus(ctx, "invitations", stats.Invitations); err != nil {
		return nil, err
	}
	if err := r.countByStatus(ctx, "subscriptions", stats.Subscriptions); err != nil {
		return nil, err
	}

	return stats, nil
}

// countByStatus only ever receives the fixed table names above.
func (r *repository) countByStatus(ctx context.Context, table string, into map[string]int64) error {
	var rows []statusCount
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS count FROM `+table+` GROUP BY status`,
	); err != nil {
		return fmt.Errorf("count %s: %w", table, err)
	}

	for _, row := range rows {
		into[row.Status] = row.Count
	}
	return nil
}
