package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-session-service/internal/domain"
)

// Catalog reads the enabled power-ups from the powerups table.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) PowerUps(ctx context.Context) ([]domain.PowerUp, error) {
	rows, err := c.pool.Query(ctx, `SELECT name, description, effect, value, icon FROM powerups WHERE enabled ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query powerups: %w", err)
	}
	defer rows.Close()

	var out []domain.PowerUp
	for rows.Next() {
		var (
			pu  domain.PowerUp
			tag string
		)
		if err := rows.Scan(&pu.Name, &pu.Description, &tag, &pu.Value, &pu.Icon); err != nil {
			return nil, fmt.Errorf("scan powerup: %w", err)
		}
		kind, err := domain.ParseEffectKind(tag)
		if err != nil {
			return nil, fmt.Errorf("powerup %q: %w", pu.Name, err)
		}
		pu.Effect = kind
		out = append(out, pu)
	}
	return out, rows.Err()
}
