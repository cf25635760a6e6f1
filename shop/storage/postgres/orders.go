// Package postgres stores orders in PostgreSQL. Each order is one row holding
// the JSON document plus the columns used for lookups.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	coredatabase "github.com/m3rciful/shopbot/core/database"
	"github.com/m3rciful/shopbot/shop/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the schema migrations for the order table.
func Migrations() coredatabase.Migrations {
	return coredatabase.Migrations{FS: migrationsFS, Dir: "migrations", Table: "shop_schema_migrations"}
}

// Orders implements storage.OrderStore.
type Orders struct {
	db *sqlx.DB
}

// NewOrders wraps an open, migrated database.
func NewOrders(db *sqlx.DB) *Orders {
	return &Orders{db: db}
}

type row struct {
	Data []byte `db:"data"`
}

func decode(r row) (domain.Order, error) {
	var o domain.Order
	if err := json.Unmarshal(r.Data, &o); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal order: %w", err)
	}
	return o, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Orders) Insert(ctx context.Context, order domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO shop_orders (id, conversation_id, status, provider_ref, created_at, data)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		order.ID, int64(order.ConversationID), string(order.Status), nullable(order.ProviderRef), order.CreatedAt, data,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("order %s already exists: %w", order.ID, err)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *Orders) Get(ctx context.Context, id string) (domain.Order, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT data FROM shop_orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.NotFound("order", id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order: %w", err)
	}
	return decode(r)
}

// Mutate locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (s *Orders) Mutate(ctx context.Context, id string, fn func(*domain.Order) error) (out domain.Order, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var r row
	err = tx.GetContext(ctx, &r, `SELECT data FROM shop_orders WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.NotFound("order", id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order: %w", err)
	}
	order, err := decode(r)
	if err != nil {
		return domain.Order{}, err
	}
	if err = fn(&order); err != nil {
		return domain.Order{}, err
	}
	order.ID = id

	data, err := json.Marshal(order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("marshal order: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE shop_orders SET status = $2, provider_ref = $3, data = $4, updated_at = NOW() WHERE id = $1`,
		id, string(order.Status), nullable(order.ProviderRef), data,
	); err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit: %w", err)
	}
	return order, nil
}

func (s *Orders) ListByConversation(ctx context.Context, conv domain.ConversationID) ([]domain.Order, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT data FROM shop_orders WHERE conversation_id = $1 ORDER BY created_at, id`, int64(conv),
	); err != nil {
		return nil, fmt.Errorf("query orders by conversation: %w", err)
	}
	out := make([]domain.Order, 0, len(rows))
	for _, r := range rows {
		o, err := decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Orders) FindByProviderRef(ctx context.Context, ref string) (domain.Order, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT data FROM shop_orders WHERE provider_ref = $1 LIMIT 1`, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.NotFound("order with provider ref", ref)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order by provider ref: %w", err)
	}
	return decode(r)
}
