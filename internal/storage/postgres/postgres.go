package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/xerud2002/Dos/internal/catalog"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ catalog.Repository = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing postgres config")
	}

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to database")
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "schema initialization failed")
	}

	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx, schema)
	return err
}

const schema = `
	CREATE TABLE IF NOT EXISTS providers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		company TEXT NOT NULL DEFAULT '',
		claimed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL REFERENCES providers (id) ON DELETE CASCADE,
		message TEXT NOT NULL,
		rating SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_reviews_provider_id ON reviews (provider_id);

	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL,
		provider_name TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL,
		user_email TEXT NOT NULL,
		user_name TEXT NOT NULL DEFAULT '',
		representative TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL,
		tax_id TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		documents TEXT[] NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

func (s *PostgresStore) CreateProvider(ctx context.Context, p catalog.Provider) error {
	query := `
		INSERT INTO providers (id, name, phone, email, company, claimed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query, p.ID, p.Name, p.Phone, p.Email, p.Company, p.Claimed, p.CreatedAt)
	return errors.Wrapf(err, "insert provider %s", p.ID)
}

func (s *PostgresStore) GetProvider(ctx context.Context, id string) (catalog.Provider, error) {
	query := `
		SELECT id, name, phone, email, company, claimed, created_at
		FROM providers
		WHERE id = $1
	`

	var p catalog.Provider
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Phone, &p.Email, &p.Company, &p.Claimed, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Provider{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Provider{}, errors.Wrapf(err, "select provider %s", id)
	}

	return p, nil
}

func (s *PostgresStore) ListProviders(ctx context.Context) ([]catalog.Provider, error) {
	query := `
		SELECT id, name, phone, email, company, claimed, created_at
		FROM providers
		ORDER BY created_at, id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "select providers")
	}
	defer rows.Close()

	out := []catalog.Provider{}
	for rows.Next() {
		var p catalog.Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.Company, &p.Claimed, &p.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan provider")
		}
		out = append(out, p)
	}

	return out, errors.Wrap(rows.Err(), "iterate providers")
}

func (s *PostgresStore) SetProviderClaimed(ctx context.Context, id string, claimed bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE providers SET claimed = $2 WHERE id = $1`, id, claimed)
	if err != nil {
		return errors.Wrapf(err, "update provider %s", id)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddReview(ctx context.Context, r catalog.Review) error {
	query := `
		INSERT INTO reviews (id, provider_id, message, rating, created_at)
		SELECT $1::text, $2::text, $3::text, $4::smallint, $5::timestamptz
		WHERE EXISTS (SELECT 1 FROM providers WHERE id = $2::text)
	`

	tag, err := s.pool.Exec(ctx, query, r.ID, r.ProviderID, r.Message, r.Rating, r.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, "insert review for %s", r.ProviderID)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListReviews(ctx context.Context, providerID string) ([]catalog.Review, error) {
	query := `
		SELECT id, provider_id, message, rating, created_at
		FROM reviews
		WHERE provider_id = $1
		ORDER BY created_at, id
	`

	rows, err := s.pool.Query(ctx, query, providerID)
	if err != nil {
		return nil, errors.Wrapf(err, "select reviews for %s", providerID)
	}
	defer rows.Close()

	out := []catalog.Review{}
	for rows.Next() {
		var r catalog.Review
		if err := rows.Scan(&r.ID, &r.ProviderID, &r.Message, &r.Rating, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan review")
		}
		out = append(out, r)
	}

	return out, errors.Wrap(rows.Err(), "iterate reviews")
}

const claimColumns = `id, provider_id, provider_name, user_id, user_email, user_name,
	representative, role, phone, tax_id, address, message, documents, status, created_at`

func (s *PostgresStore) AddClaim(ctx context.Context, c catalog.Claim) error {
	query := `INSERT INTO claims (` + claimColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	documents := c.Documents
	if documents == nil {
		documents = []string{}
	}

	_, err := s.pool.Exec(ctx, query,
		c.ID, c.ProviderID, c.ProviderName, c.UserID, c.UserEmail, c.UserName,
		c.Representative, c.Role, c.Phone, c.TaxID, c.Address, c.Message,
		documents, string(c.Status), c.CreatedAt,
	)
	return errors.Wrapf(err, "insert claim %s", c.ID)
}

func (s *PostgresStore) GetClaim(ctx context.Context, id string) (catalog.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = $1`

	c, err := scanClaim(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Claim{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Claim{}, errors.Wrapf(err, "select claim %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListClaims(ctx context.Context) ([]catalog.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "select claims")
	}
	defer rows.Close()

	out := []catalog.Claim{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan claim")
		}
		out = append(out, c)
	}

	return out, errors.Wrap(rows.Err(), "iterate claims")
}

func (s *PostgresStore) SetClaimStatus(ctx context.Context, id string, status catalog.ClaimStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE claims SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return errors.Wrapf(err, "update claim %s", id)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanClaim(row pgx.Row) (catalog.Claim, error) {
	var c catalog.Claim
	var status string
	err := row.Scan(
		&c.ID, &c.ProviderID, &c.ProviderName, &c.UserID, &c.UserEmail, &c.UserName,
		&c.Representative, &c.Role, &c.Phone, &c.TaxID, &c.Address, &c.Message,
		&c.Documents, &status, &c.CreatedAt,
	)
	c.Status = catalog.ClaimStatus(status)
	return c, err
}
