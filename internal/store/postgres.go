package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/db"
	"github.com/sells-group/prospect-cli/internal/icp"
	"github.com/sells-group/prospect-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: func() {}}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id    TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS candidates (
	user_id             TEXT NOT NULL,
	id                  TEXT NOT NULL,
	name                TEXT NOT NULL DEFAULT '',
	domain              TEXT NOT NULL DEFAULT '',
	website             TEXT NOT NULL DEFAULT '',
	city                TEXT NOT NULL DEFAULT '',
	state               TEXT NOT NULL DEFAULT '',
	industry            TEXT NOT NULL DEFAULT '',
	location            TEXT NOT NULL DEFAULT '',
	employee_size_range TEXT NOT NULL DEFAULT '',
	revenue_range       TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'pending',
	fit_score           INTEGER NOT NULL DEFAULT 0,
	decided_at          TIMESTAMPTZ,
	version             BIGINT NOT NULL DEFAULT 1,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS quota_records (
	user_id                  TEXT PRIMARY KEY,
	daily_accept_count       INTEGER NOT NULL DEFAULT 0,
	quota_date               TEXT NOT NULL DEFAULT '',
	has_seen_followup_prompt BOOLEAN NOT NULL DEFAULT false,
	bootstrapped             BOOLEAN NOT NULL DEFAULT false,
	version                  BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS enrichment_records (
	user_id    TEXT NOT NULL,
	entity_id  TEXT NOT NULL,
	payload    JSONB,
	source_id  TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMPTZ NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	PRIMARY KEY (user_id, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(user_id, status);
CREATE INDEX IF NOT EXISTS idx_candidates_fit_score ON candidates(user_id, fit_score);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*model.ICPProfile, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM profiles WHERE user_id = $1`, userID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get profile")
	}

	var p model.ICPProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal profile")
	}
	p.UserID = userID
	return &p, nil
}

func (s *PostgresStore) SaveProfile(ctx context.Context, profile model.ICPProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO profiles (user_id, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		profile.UserID, data, profile.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: save profile")
}

func (s *PostgresStore) UpsertCandidates(ctx context.Context, userID string, candidates []model.Candidate) (int64, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	var inserted int64
	for _, c := range candidates {
		status := c.Status
		if status == "" {
			status = model.StatusPending
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO candidates (
				user_id, id, name, domain, website, city, state,
				industry, location, employee_size_range, revenue_range,
				status, fit_score, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (user_id, id) DO NOTHING`,
			userID, c.ID, c.Name, c.Domain, c.Website, c.City, c.State,
			c.Industry, c.Location, c.EmployeeSizeRange, c.RevenueRange,
			string(status), c.FitScore, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert candidate %s", c.ID)
		}
		inserted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert")
	}
	return inserted, nil
}

func (s *PostgresStore) GetCandidate(ctx context.Context, userID, id string) (*model.Candidate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE user_id = $1 AND id = $2`,
		userID, id,
	)
	c, err := scanCandidatePG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get candidate %s", id)
	}
	return c, nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context, userID string, status model.CandidateStatus) ([]model.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY fit_score DESC, created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidatePG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list candidates iterate")
}

func (s *PostgresStore) UpdateScores(ctx context.Context, userID string, updates []icp.ScoreUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin rescore")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, u := range updates {
		if _, err := tx.Exec(ctx,
			`UPDATE candidates SET fit_score = $1 WHERE user_id = $2 AND id = $3`,
			u.FitScore, userID, u.CandidateID,
		); err != nil {
			return eris.Wrapf(err, "postgres: rescore candidate %s", u.CandidateID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit rescore")
}

func (s *PostgresStore) SetArchived(ctx context.Context, userID, id string, archived bool) error {
	from, to := model.StatusAccepted, model.StatusArchived
	if !archived {
		from, to = model.StatusArchived, model.StatusAccepted
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET status = $1, version = version + 1
		 WHERE user_id = $2 AND id = $3 AND status = $4`,
		string(to), userID, id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: archive candidate %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordDecision(ctx context.Context, candidate model.Candidate, quota model.QuotaRecord) error {
	return s.applyDecision(ctx, candidate, quota, []string{string(model.StatusPending)})
}

func (s *PostgresStore) RevertDecision(ctx context.Context, candidate model.Candidate, quota model.QuotaRecord) error {
	return s.applyDecision(ctx, candidate, quota, []string{string(model.StatusAccepted), string(model.StatusRejected)})
}

func (s *PostgresStore) applyDecision(ctx context.Context, candidate model.Candidate, quota model.QuotaRecord, fromStatuses []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin decision")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE candidates SET status = $1, decided_at = $2, version = version + 1
		 WHERE user_id = $3 AND id = $4 AND version = $5 AND status = ANY($6)`,
		string(candidate.Status), candidate.DecidedAt,
		candidate.UserID, candidate.ID, candidate.Version, fromStatuses,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update candidate %s", candidate.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	tag, err = tx.Exec(ctx,
		`UPDATE quota_records SET daily_accept_count = $1, quota_date = $2,
			has_seen_followup_prompt = $3, bootstrapped = $4, version = version + 1
		 WHERE user_id = $5 AND version = $6`,
		quota.DailyAcceptCount, quota.QuotaDate,
		quota.HasSeenFollowupPrompt, quota.Bootstrapped,
		quota.UserID, quota.Version,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update quota")
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit decision")
}

func (s *PostgresStore) GetQuota(ctx context.Context, userID string) (*model.QuotaRecord, error) {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO quota_records (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: init quota")
	}

	q := model.QuotaRecord{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT daily_accept_count, quota_date, has_seen_followup_prompt, bootstrapped, version
		 FROM quota_records WHERE user_id = $1`, userID,
	).Scan(&q.DailyAcceptCount, &q.QuotaDate, &q.HasSeenFollowupPrompt, &q.Bootstrapped, &q.Version)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get quota")
	}
	return &q, nil
}

func (s *PostgresStore) GetEnrichment(ctx context.Context, userID, entityID string) (*model.EnrichmentRecord, error) {
	var rec model.EnrichmentRecord
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT entity_id, user_id, payload, source_id, fetched_at, version
		 FROM enrichment_records WHERE user_id = $1 AND entity_id = $2`,
		userID, entityID,
	).Scan(&rec.EntityID, &rec.UserID, &payload, &rec.SourceID, &rec.FetchedAt, &rec.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get enrichment %s", entityID)
	}
	if len(payload) > 0 {
		rec.Payload = json.RawMessage(payload)
	}
	return &rec, nil
}

func (s *PostgresStore) PutEnrichment(ctx context.Context, record model.EnrichmentRecord) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO enrichment_records (user_id, entity_id, payload, source_id, fetched_at, version)
		 VALUES ($1, $2, $3, $4, $5, 1)
		 ON CONFLICT (user_id, entity_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			source_id = EXCLUDED.source_id,
			fetched_at = EXCLUDED.fetched_at,
			version = enrichment_records.version + 1
		 WHERE EXCLUDED.fetched_at > enrichment_records.fetched_at
		   AND enrichment_records.version = $6`,
		record.UserID, record.EntityID, []byte(record.Payload),
		record.SourceID, record.FetchedAt.UTC(), record.Version,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: put enrichment %s", record.EntityID)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

type pgScannable interface {
	Scan(dest ...any) error
}

func scanCandidatePG(row pgScannable) (*model.Candidate, error) {
	var c model.Candidate
	var status string

	err := row.Scan(
		&c.UserID, &c.ID, &c.Name, &c.Domain, &c.Website, &c.City, &c.State,
		&c.Industry, &c.Location, &c.EmployeeSizeRange, &c.RevenueRange,
		&status, &c.FitScore, &c.DecidedAt, &c.Version, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.CandidateStatus(status)
	return &c, nil
}
