package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/parity-engine/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision and
// read back through ::TEXT.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the embedded migrations in lexicographic order and records
// each one in schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		var applied bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name).
			Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// --- Catalog ---

func (s *PostgresStore) CreateHotel(ctx context.Context, h *model.Hotel) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO hotels (id, name) VALUES ($1, $2)`, h.ID, h.Name)
	return wrapInsert("hotel", h.ID, err)
}

func (s *PostgresStore) GetHotel(ctx context.Context, id string) (*model.Hotel, error) {
	var h model.Hotel
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM hotels WHERE id = $1`, id).Scan(&h.ID, &h.Name)
	if err != nil {
		return nil, wrapGet("hotel", id, err)
	}
	return &h, nil
}

func (s *PostgresStore) ListHotels(ctx context.Context) ([]model.Hotel, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM hotels ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hotels []model.Hotel
	for rows.Next() {
		var h model.Hotel
		if err := rows.Scan(&h.ID, &h.Name); err != nil {
			return nil, err
		}
		hotels = append(hotels, h)
	}
	return hotels, rows.Err()
}

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, name, currency) VALUES ($1, $2, $3)`, m.ID, m.Name, m.Currency)
	return wrapInsert("market", m.ID, err)
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	var m model.Market
	err := s.pool.QueryRow(ctx, `SELECT id, name, currency FROM markets WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.Currency)
	if err != nil {
		return nil, wrapGet("market", id, err)
	}
	return &m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, currency FROM markets ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		var m model.Market
		if err := rows.Scan(&m.ID, &m.Name, &m.Currency); err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// --- Effective-dated records ---

const contractColumns = `id, hotel_id, market_id, start_date::TEXT, end_date::TEXT,
		        price::TEXT, commission::TEXT, created_at`

func (s *PostgresStore) InsertContract(ctx context.Context, c *model.Contract) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contracts (id, hotel_id, market_id, start_date, end_date, price, commission, created_at)
		 VALUES ($1, $2, $3, $4::DATE, $5::DATE, $6::NUMERIC, $7::NUMERIC, $8)`,
		c.ID, c.HotelID, c.MarketID, string(c.StartDate), string(c.EndDate),
		c.Price.String(), c.Commission.String(), c.CreatedAt,
	)
	return wrapInsert("contract", c.ID, err)
}

func (s *PostgresStore) ListContracts(ctx context.Context, f Filter) ([]model.Contract, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contractColumns+`
		 FROM contracts
		 WHERE ($1::TEXT = '' OR hotel_id = $1) AND ($2::TEXT = '' OR market_id = $2)
		 ORDER BY created_at DESC, seq DESC`, f.HotelID, f.MarketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContracts(rows)
}

const discountColumns = `id, hotel_id, market_id, start_date::TEXT, end_date::TEXT,
		        percent::TEXT, created_at`

func (s *PostgresStore) InsertDiscount(ctx context.Context, d *model.Discount) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO discounts (id, hotel_id, market_id, start_date, end_date, percent, created_at)
		 VALUES ($1, $2, $3, $4::DATE, $5::DATE, $6::NUMERIC, $7)`,
		d.ID, d.HotelID, d.MarketID, string(d.StartDate), string(d.EndDate),
		d.Percent.String(), d.CreatedAt,
	)
	return wrapInsert("discount", d.ID, err)
}

func (s *PostgresStore) ListDiscounts(ctx context.Context, f Filter) ([]model.Discount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+discountColumns+`
		 FROM discounts
		 WHERE ($1::TEXT = '' OR hotel_id = $1) AND ($2::TEXT = '' OR market_id = $2)
		 ORDER BY created_at DESC, seq DESC`, f.HotelID, f.MarketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDiscounts(rows)
}

const rateColumns = `id, market_id, date::TEXT, rate::TEXT, created_at`

func (s *PostgresStore) InsertRate(ctx context.Context, r *model.ExchangeRate) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO exchange_rates (id, market_id, date, rate, created_at)
		 VALUES ($1, $2, $3::DATE, $4::NUMERIC, $5)`,
		r.ID, r.MarketID, string(r.Date), r.Rate.String(), r.CreatedAt,
	)
	return wrapInsert("exchange rate", r.ID, err)
}

func (s *PostgresStore) ListRates(ctx context.Context, f Filter) ([]model.ExchangeRate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+rateColumns+`
		 FROM exchange_rates
		 WHERE ($1::TEXT = '' OR market_id = $1)
		 ORDER BY date DESC, created_at DESC, seq DESC`, f.MarketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRates(rows)
}

// --- Settings & audit ---

func (s *PostgresStore) GetSettings(ctx context.Context) (model.Settings, error) {
	var st model.Settings
	var warning, critical string

	err := s.pool.QueryRow(ctx,
		`SELECT reference_market_id, warning_threshold::TEXT, critical_threshold::TEXT
		 FROM settings WHERE id = 1`).
		Scan(&st.ReferenceMarketID, &warning, &critical)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Settings{}, nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	st.WarningThreshold, _ = decimal.NewFromString(warning)
	st.CriticalThreshold, _ = decimal.NewFromString(critical)
	return st, nil
}

func (s *PostgresStore) UpdateSettings(ctx context.Context, st model.Settings) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settings (id, reference_market_id, warning_threshold, critical_threshold)
		 VALUES (1, $1, $2::NUMERIC, $3::NUMERIC)
		 ON CONFLICT (id) DO UPDATE
		 SET reference_market_id = EXCLUDED.reference_market_id,
		     warning_threshold = EXCLUDED.warning_threshold,
		     critical_threshold = EXCLUDED.critical_threshold`,
		st.ReferenceMarketID, st.WarningThreshold.String(), st.CriticalThreshold.String(),
	)
	return err
}

func (s *PostgresStore) InitSettings(ctx context.Context, st model.Settings) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO settings (id, reference_market_id, warning_threshold, critical_threshold)
		 VALUES (1, $1, $2::NUMERIC, $3::NUMERIC)
		 ON CONFLICT (id) DO NOTHING`,
		st.ReferenceMarketID, st.WarningThreshold.String(), st.CriticalThreshold.String(),
	)
	if err != nil {
		return false, fmt.Errorf("init settings: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) AppendChangelog(ctx context.Context, e *model.ChangelogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO changelog (id, kind, message, timestamp) VALUES ($1, $2, $3, $4)`,
		e.ID, e.Kind, e.Message, e.Timestamp,
	)
	return wrapInsert("changelog entry", e.ID, err)
}

func (s *PostgresStore) ListChangelog(ctx context.Context, limit int) ([]model.ChangelogEntry, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, message, timestamp FROM changelog ORDER BY seq DESC LIMIT $1`, limitArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.ChangelogEntry
	for rows.Next() {
		var e model.ChangelogEntry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Message, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Pricing input ---

// Snapshot loads the collections concurrently on separate pool connections.
// The reads are not one transaction; records are append-only, so a snapshot
// can at worst miss a record inserted while it loads.
func (s *PostgresStore) Snapshot(ctx context.Context, hotelID string) (*model.Snapshot, error) {
	snap := &model.Snapshot{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		snap.Hotels, err = s.ListHotels(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Markets, err = s.ListMarkets(ctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Settings, err = s.GetSettings(ctx)
		return err
	})
	g.Go(func() error {
		rows, err := s.pool.Query(ctx,
			`SELECT `+contractColumns+` FROM contracts
			 WHERE ($1::TEXT = '' OR hotel_id = $1) ORDER BY seq`, hotelID)
		if err != nil {
			return err
		}
		defer rows.Close()
		snap.Contracts, err = scanContracts(rows)
		return err
	})
	g.Go(func() error {
		rows, err := s.pool.Query(ctx,
			`SELECT `+discountColumns+` FROM discounts
			 WHERE ($1::TEXT = '' OR hotel_id = $1) ORDER BY seq`, hotelID)
		if err != nil {
			return err
		}
		defer rows.Close()
		snap.Discounts, err = scanDiscounts(rows)
		return err
	})
	g.Go(func() error {
		rows, err := s.pool.Query(ctx, `SELECT `+rateColumns+` FROM exchange_rates ORDER BY seq`)
		if err != nil {
			return err
		}
		defer rows.Close()
		snap.Rates, err = scanRates(rows)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}

// --- Scanning ---

func scanContracts(rows pgx.Rows) ([]model.Contract, error) {
	var contracts []model.Contract
	for rows.Next() {
		var c model.Contract
		var start, end, price, commission string
		if err := rows.Scan(&c.ID, &c.HotelID, &c.MarketID, &start, &end,
			&price, &commission, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.StartDate, c.EndDate = model.Date(start), model.Date(end)
		c.Price, _ = decimal.NewFromString(price)
		c.Commission, _ = decimal.NewFromString(commission)
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func scanDiscounts(rows pgx.Rows) ([]model.Discount, error) {
	var discounts []model.Discount
	for rows.Next() {
		var d model.Discount
		var start, end, percent string
		if err := rows.Scan(&d.ID, &d.HotelID, &d.MarketID, &start, &end,
			&percent, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.StartDate, d.EndDate = model.Date(start), model.Date(end)
		d.Percent, _ = decimal.NewFromString(percent)
		discounts = append(discounts, d)
	}
	return discounts, rows.Err()
}

func scanRates(rows pgx.Rows) ([]model.ExchangeRate, error) {
	var rates []model.ExchangeRate
	for rows.Next() {
		var r model.ExchangeRate
		var date, rate string
		if err := rows.Scan(&r.ID, &r.MarketID, &date, &rate, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Date = model.Date(date)
		r.Rate, _ = decimal.NewFromString(rate)
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

// uniqueViolation is the SQLSTATE of a duplicate primary key.
const uniqueViolation = "23505"

func wrapInsert(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s %s: %w", kind, id, ErrAlreadyExists)
	}
	return fmt.Errorf("insert %s %s: %w", kind, id, err)
}

func wrapGet(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}

// Reset truncates every table except schema_migrations.
func (s *PostgresStore) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`TRUNCATE hotels, markets, contracts, discounts, exchange_rates, settings, changelog
		 RESTART IDENTITY`)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}
