package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chelsseeey/price-watcher/database"
	"github.com/chelsseeey/price-watcher/models"
)

const defaultListLimit = 500

// ObservationFilter narrows a listing. Zero fields match everything.
type ObservationFilter struct {
	Site   string
	Item   string
	Region string
	Device string
	Since  time.Time
	Limit  int
}

func (f ObservationFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

func (f ObservationFilter) matches(o *models.Observation) bool {
	return (f.Site == "" || o.Site == f.Site) &&
		(f.Item == "" || o.Item == f.Item) &&
		(f.Region == "" || string(o.Region) == f.Region) &&
		(f.Device == "" || string(o.Device) == f.Device) &&
		(f.Since.IsZero() || !o.CollectedAt.Before(f.Since))
}

// ObservationRepository stores observations in a SQL table
type ObservationRepository struct {
	db     *sql.DB
	driver string
}

func NewObservationRepository(db *sql.DB, driver string) *ObservationRepository {
	return &ObservationRepository{db: db, driver: driver}
}

// AppendObservations inserts the batch in one transaction
func (r *ObservationRepository) AppendObservations(ctx context.Context, obs []*models.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := database.Rebind(r.driver, `
		INSERT INTO observations (run_id, site, item, region, device, logged_in, cart_populated, cookies_cleared,
			price, currency, raw_text, strategy, url, meta, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		if err := o.Validate(); err != nil {
			return err
		}
		var currency sql.NullString
		if o.Currency.IsSet() {
			currency = sql.NullString{String: string(o.Currency), Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			o.RunID, o.Site, o.Item, string(o.Region), string(o.Device), o.LoggedIn, o.CartPopulated, o.CookiesCleared,
			o.Price, currency, o.RawText, string(o.Strategy), o.URL, o.MetaJSON(), o.CollectedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert observation %s/%s: %w", o.Site, o.Item, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit observations: %w", err)
	}
	return nil
}

// ListObservations returns matching observations, newest first
func (r *ObservationRepository) ListObservations(ctx context.Context, f ObservationFilter) ([]*models.Observation, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Site != "" {
		add("site = $%d", f.Site)
	}
	if f.Item != "" {
		add("item = $%d", f.Item)
	}
	if f.Region != "" {
		add("region = $%d", f.Region)
	}
	if f.Device != "" {
		add("device = $%d", f.Device)
	}
	if !f.Since.IsZero() {
		add("collected_at >= $%d", f.Since.UTC())
	}

	query := `
		SELECT run_id, site, item, region, device, logged_in, cart_populated, cookies_cleared,
			price, currency, raw_text, strategy, url, meta, collected_at
		FROM observations`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.limit())
	query += fmt.Sprintf("\n\t\tORDER BY collected_at DESC, id DESC\n\t\tLIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, database.Rebind(r.driver, query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}
	defer rows.Close()

	var out []*models.Observation
	for rows.Next() {
		var (
			o        models.Observation
			region   string
			device   string
			currency sql.NullString
			strategy string
			meta     string
		)
		err := rows.Scan(
			&o.RunID, &o.Site, &o.Item, &region, &device, &o.LoggedIn, &o.CartPopulated, &o.CookiesCleared,
			&o.Price, &currency, &o.RawText, &strategy, &o.URL, &meta, &o.CollectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		o.Region = models.Region(region)
		o.Device = models.Device(device)
		o.Currency = models.ParseCurrency(currency.String)
		o.Strategy = models.Strategy(strategy)
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &o.Meta); err != nil {
				return nil, fmt.Errorf("failed to decode meta: %w", err)
			}
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}
