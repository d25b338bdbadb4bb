package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCatalog is the production realization of the property-definition
// oracle: each declared property type is a row in a Postgres table keyed by
// tenant, owner, and property name. pgxpool.Pool is safe for concurrent use
// by design, so no extra locking is needed here to satisfy the registry's
// safe-for-concurrent-reads requirement.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog wraps an already-established connection pool.
func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

// Connect opens a pool against dsn. Callers own the returned pool's
// lifetime and should Close() it (or the PostgresCatalog built from it)
// on shutdown.
func Connect(ctx context.Context, dsn string) (*PostgresCatalog, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: connect: %w", err)
	}
	return NewPostgresCatalog(pool), nil
}

// Close releases the underlying pool.
func (p *PostgresCatalog) Close() {
	p.pool.Close()
}

const propertyTypeQuery = `
SELECT property_type
FROM property_definitions
WHERE team_id = $1 AND owner = $2 AND name = $3
LIMIT 1
`

// PropertyType implements Catalog. A row absent from the table means
// String, not an error; only a transport/query failure
// surfaces as an error, which the property-type transform turns into a
// ConfigurationError.
func (p *PostgresCatalog) PropertyType(ctx context.Context, key Key) (PropertyType, error) {
	var declared string
	err := p.pool.QueryRow(ctx, propertyTypeQuery, key.TenantID, key.Owner, key.Name).Scan(&declared)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TypeString, nil
		}
		return TypeString, &ErrCatalogUnavailable{Key: key, Err: err}
	}
	switch declared {
	case "Numeric":
		return TypeNumeric, nil
	case "DateTime":
		return TypeDateTime, nil
	case "Boolean":
		return TypeBoolean, nil
	default:
		return TypeString, nil
	}
}
