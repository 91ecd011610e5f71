package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresRepository implements Repository over PostgreSQL.
// Amounts and ids are exchanged as text so no driver-specific numeric or uuid types leak out.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// OpenPostgres connects to dsn with at most maxConns connections and pings the server.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// NewPostgresRepository creates a repository over pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the budget tables when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS category_groups (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '#999999',
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			color TEXT NOT NULL DEFAULT '#999999',
			group_id UUID REFERENCES category_groups(id)
		)`,
		`CREATE TABLE IF NOT EXISTS budgets (
			id UUID PRIMARY KEY,
			month SMALLINT NOT NULL CHECK (month BETWEEN 1 AND 12),
			year INTEGER NOT NULL,
			category_id UUID NOT NULL REFERENCES categories(id),
			planned NUMERIC(14,2) NOT NULL DEFAULT 0,
			spent NUMERIC(14,2) NOT NULL DEFAULT 0,
			carryover NUMERIC(14,2) NOT NULL DEFAULT 0,
			currency CHARACTER(3) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_budgets_period ON budgets (year, month)`,
	}

	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure budget schema: %w", err)
		}
	}
	return nil
}

// Overview sums the budgets of p, grouped by currency. Without a currency
// filter the first currency in alphabetical order is reported.
func (r *PostgresRepository) Overview(ctx context.Context, p Period) (Overview, error) {
	const q = `
		SELECT
			COALESCE(SUM(planned), 0)::text,
			COALESCE(SUM(spent), 0)::text,
			COALESCE(SUM(carryover), 0)::text,
			currency
		FROM budgets
		WHERE year = $1 AND month = $2 AND ($3::text = '' OR currency = $3::text)
		GROUP BY currency
		ORDER BY currency
		LIMIT 1`

	var planned, spent, carryover, currency string
	err := r.pool.QueryRow(ctx, q, p.Year, int(p.Month), p.Currency).Scan(&planned, &spent, &carryover, &currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return Overview{
			Planned:   decimal.Zero,
			Spent:     decimal.Zero,
			Remaining: decimal.Zero,
			Currency:  p.Currency,
		}, nil
	}
	if err != nil {
		return Overview{}, fmt.Errorf("query overview: %w", err)
	}

	amounts, err := parseDecimals(planned, spent, carryover)
	if err != nil {
		return Overview{}, err
	}

	return Overview{
		Planned:   amounts[0],
		Spent:     amounts[1],
		Remaining: Remaining(amounts[0], amounts[1], amounts[2]),
		Currency:  trimCurrency(currency),
	}, nil
}

// Categories lists the budget lines of p with their category and group.
func (r *PostgresRepository) Categories(ctx context.Context, p Period) ([]CategoryBudget, error) {
	const q = `
		SELECT
			b.id::text,
			c.name,
			COALESCE(cg.name, ''),
			c.color,
			COALESCE(cg.color, ''),
			b.planned::text,
			b.spent::text,
			b.carryover::text,
			b.currency
		FROM budgets b
		JOIN categories c ON b.category_id = c.id
		LEFT JOIN category_groups cg ON c.group_id = cg.id
		WHERE b.year = $1 AND b.month = $2 AND ($3::text = '' OR b.currency = $3::text)
		ORDER BY cg.sort_order NULLS LAST, c.name`

	rows, err := r.pool.Query(ctx, q, p.Year, int(p.Month), p.Currency)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	out := []CategoryBudget{}
	for rows.Next() {
		var (
			id, name, group, color, groupColor string
			planned, spent, carryover, cur     string
		)
		if err := rows.Scan(&id, &name, &group, &color, &groupColor, &planned, &spent, &carryover, &cur); err != nil {
			return nil, fmt.Errorf("scan category budget: %w", err)
		}

		budgetID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse budget id %q: %w", id, err)
		}
		amounts, err := parseDecimals(planned, spent, carryover)
		if err != nil {
			return nil, err
		}

		out = append(out, CategoryBudget{
			ID:            budgetID,
			CategoryName:  name,
			GroupName:     group,
			CategoryColor: color,
			GroupColor:    groupColor,
			Planned:       amounts[0],
			Spent:         amounts[1],
			Remaining:     Remaining(amounts[0], amounts[1], amounts[2]),
			Percentage:    Percentage(amounts[1], amounts[0]),
			Currency:      trimCurrency(cur),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	return out, nil
}

const budgetColumns = `id::text, month, year, category_id::text, planned::text, spent::text, carryover::text, currency, created_at, updated_at`

// Budget fetches one budget.
func (r *PostgresRepository) Budget(ctx context.Context, id uuid.UUID) (Budget, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+budgetColumns+` FROM budgets WHERE id = $1::uuid`, id.String())
	return scanBudget(row)
}

// Create inserts a budget with a fresh id.
func (r *PostgresRepository) Create(ctx context.Context, req CreateRequest) (Budget, error) {
	if req.Month == nil || req.Year == nil {
		return Budget{}, fmt.Errorf("%w: month and year are required", ErrInvalidRequest)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO budgets (id, month, year, category_id, planned, currency)
		VALUES ($1::uuid, $2, $3, $4::uuid, $5::numeric, $6)
		RETURNING `+budgetColumns,
		uuid.New().String(), *req.Month, *req.Year, req.CategoryID.String(), req.Planned.String(), req.Currency,
	)
	return scanBudget(row)
}

// Update sets the planned amount and/or the carryover of a budget.
func (r *PostgresRepository) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (Budget, error) {
	var planned, carryover *string
	if req.Planned != nil {
		s := req.Planned.String()
		planned = &s
	}
	if req.Carryover != nil {
		s := req.Carryover.String()
		carryover = &s
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE budgets
		SET planned = COALESCE($1::numeric, planned),
			carryover = COALESCE($2::numeric, carryover),
			updated_at = now()
		WHERE id = $3::uuid
		RETURNING `+budgetColumns,
		planned, carryover, id.String(),
	)
	return scanBudget(row)
}

func scanBudget(row pgx.Row) (Budget, error) {
	var (
		id, categoryID, planned, spent, carryover, currency string
		month, year                                         int
		createdAt, updatedAt                                time.Time
	)

	err := row.Scan(&id, &month, &year, &categoryID, &planned, &spent, &carryover, &currency, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Budget{}, ErrNotFound
	}
	if err != nil {
		return Budget{}, fmt.Errorf("scan budget: %w", err)
	}

	b := Budget{
		Month:     month,
		Year:      year,
		Currency:  trimCurrency(currency),
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}
	if b.ID, err = uuid.Parse(id); err != nil {
		return Budget{}, fmt.Errorf("parse budget id %q: %w", id, err)
	}
	if b.CategoryID, err = uuid.Parse(categoryID); err != nil {
		return Budget{}, fmt.Errorf("parse category id %q: %w", categoryID, err)
	}

	amounts, err := parseDecimals(planned, spent, carryover)
	if err != nil {
		return Budget{}, err
	}
	b.Planned, b.Spent, b.Carryover = amounts[0], amounts[1], amounts[2]

	return b, nil
}

func parseDecimals(values ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", v, err)
		}
		out[i] = d
	}
	return out, nil
}

// trimCurrency strips the padding of CHARACTER(3) columns.
func trimCurrency(c string) string {
	return normalizeCurrency(c)
}
