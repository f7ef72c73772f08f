package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-cli/internal/icp"
	"github.com/sells-group/prospect-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id    TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
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
	decided_at          DATETIME,
	version             INTEGER NOT NULL DEFAULT 1,
	created_at          DATETIME NOT NULL,
	PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS quota_records (
	user_id                  TEXT PRIMARY KEY,
	daily_accept_count       INTEGER NOT NULL DEFAULT 0,
	quota_date               TEXT NOT NULL DEFAULT '',
	has_seen_followup_prompt INTEGER NOT NULL DEFAULT 0,
	bootstrapped             INTEGER NOT NULL DEFAULT 0,
	version                  INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS enrichment_records (
	user_id    TEXT NOT NULL,
	entity_id  TEXT NOT NULL,
	payload    TEXT,
	source_id  TEXT NOT NULL DEFAULT '',
	fetched_at DATETIME NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (user_id, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(user_id, status);
CREATE INDEX IF NOT EXISTS idx_candidates_fit_score ON candidates(user_id, fit_score);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*model.ICPProfile, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM profiles WHERE user_id = ?`, userID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get profile")
	}

	var p model.ICPProfile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal profile")
	}
	p.UserID = userID
	return &p, nil
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, profile model.ICPProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		profile.UserID, string(data), profile.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: save profile")
}

func (s *SQLiteStore) UpsertCandidates(ctx context.Context, userID string, candidates []model.Candidate) (int64, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candidates (
			user_id, id, name, domain, website, city, state,
			industry, location, employee_size_range, revenue_range,
			status, fit_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO NOTHING`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var inserted int64
	for _, c := range candidates {
		status := c.Status
		if status == "" {
			status = model.StatusPending
		}
		res, err := stmt.ExecContext(ctx,
			userID, c.ID, c.Name, c.Domain, c.Website, c.City, c.State,
			c.Industry, c.Location, c.EmployeeSizeRange, c.RevenueRange,
			string(status), c.FitScore, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert candidate %s", c.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: upsert rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return inserted, nil
}

const candidateColumns = `user_id, id, name, domain, website, city, state,
	industry, location, employee_size_range, revenue_range,
	status, fit_score, decided_at, version, created_at`

func (s *SQLiteStore) GetCandidate(ctx context.Context, userID, id string) (*model.Candidate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE user_id = ? AND id = ?`,
		userID, id,
	)
	c, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get candidate %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, userID string, status model.CandidateStatus) ([]model.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY fit_score DESC, created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list candidates iterate")
}

func (s *SQLiteStore) UpdateScores(ctx context.Context, userID string, updates []icp.ScoreUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin rescore")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE candidates SET fit_score = ? WHERE user_id = ? AND id = ?`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare rescore")
	}
	defer stmt.Close() //nolint:errcheck

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.FitScore, userID, u.CandidateID); err != nil {
			return eris.Wrapf(err, "sqlite: rescore candidate %s", u.CandidateID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit rescore")
}

func (s *SQLiteStore) SetArchived(ctx context.Context, userID, id string, archived bool) error {
	from, to := model.StatusAccepted, model.StatusArchived
	if !archived {
		from, to = model.StatusArchived, model.StatusAccepted
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET status = ?, version = version + 1
		 WHERE user_id = ? AND id = ? AND status = ?`,
		string(to), userID, id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: archive candidate %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: archive rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) RecordDecision(ctx context.Context, candidate model.Candidate, quota model.QuotaRecord) error {
	return s.applyDecision(ctx, candidate, quota, []model.CandidateStatus{model.StatusPending})
}

func (s *SQLiteStore) RevertDecision(ctx context.Context, candidate model.Candidate, quota model.QuotaRecord) error {
	return s.applyDecision(ctx, candidate, quota, []model.CandidateStatus{model.StatusAccepted, model.StatusRejected})
}

// applyDecision writes the candidate transition and quota record in one
// transaction. Both writes are conditional on the versions carried by
// the arguments; a mismatch rolls everything back.
func (s *SQLiteStore) applyDecision(ctx context.Context, candidate model.Candidate, quota model.QuotaRecord, fromStatuses []model.CandidateStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin decision")
	}
	defer tx.Rollback() //nolint:errcheck

	query := `UPDATE candidates SET status = ?, decided_at = ?, version = version + 1
		WHERE user_id = ? AND id = ? AND version = ? AND status IN (?`
	args := []any{
		string(candidate.Status), nullTime(candidate.DecidedAt),
		candidate.UserID, candidate.ID, candidate.Version, string(fromStatuses[0]),
	}
	for _, st := range fromStatuses[1:] {
		query += `, ?`
		args = append(args, string(st))
	}
	query += `)`

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update candidate %s", candidate.ID)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE quota_records SET daily_accept_count = ?, quota_date = ?,
			has_seen_followup_prompt = ?, bootstrapped = ?, version = version + 1
		 WHERE user_id = ? AND version = ?`,
		quota.DailyAcceptCount, quota.QuotaDate,
		quota.HasSeenFollowupPrompt, quota.Bootstrapped,
		quota.UserID, quota.Version,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update quota")
	}
	if err := requireRow(res); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit decision")
}

func (s *SQLiteStore) GetQuota(ctx context.Context, userID string) (*model.QuotaRecord, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quota_records (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: init quota")
	}

	q := model.QuotaRecord{UserID: userID}
	err = s.db.QueryRowContext(ctx,
		`SELECT daily_accept_count, quota_date, has_seen_followup_prompt, bootstrapped, version
		 FROM quota_records WHERE user_id = ?`, userID,
	).Scan(&q.DailyAcceptCount, &q.QuotaDate, &q.HasSeenFollowupPrompt, &q.Bootstrapped, &q.Version)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get quota")
	}
	return &q, nil
}

func (s *SQLiteStore) GetEnrichment(ctx context.Context, userID, entityID string) (*model.EnrichmentRecord, error) {
	var rec model.EnrichmentRecord
	var payload sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT entity_id, user_id, payload, source_id, fetched_at, version
		 FROM enrichment_records WHERE user_id = ? AND entity_id = ?`,
		userID, entityID,
	).Scan(&rec.EntityID, &rec.UserID, &payload, &rec.SourceID, &rec.FetchedAt, &rec.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get enrichment %s", entityID)
	}
	if payload.Valid && payload.String != "" {
		rec.Payload = json.RawMessage(payload.String)
	}
	return &rec, nil
}

func (s *SQLiteStore) PutEnrichment(ctx context.Context, record model.EnrichmentRecord) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO enrichment_records (user_id, entity_id, payload, source_id, fetched_at, version)
		 VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT(user_id, entity_id) DO UPDATE SET
			payload = excluded.payload,
			source_id = excluded.source_id,
			fetched_at = excluded.fetched_at,
			version = enrichment_records.version + 1
		 WHERE excluded.fetched_at > enrichment_records.fetched_at
		   AND enrichment_records.version = ?`,
		record.UserID, record.EntityID, nullJSON(record.Payload),
		record.SourceID, record.FetchedAt.UTC(), record.Version,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: put enrichment %s", record.EntityID)
	}
	return requireRow(res)
}

// helpers

// requireRow maps a zero-row conditional write to ErrVersionConflict.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCandidate(row scannable) (*model.Candidate, error) {
	var c model.Candidate
	var status string
	var decidedAt sql.NullTime

	err := row.Scan(
		&c.UserID, &c.ID, &c.Name, &c.Domain, &c.Website, &c.City, &c.State,
		&c.Industry, &c.Location, &c.EmployeeSizeRange, &c.RevenueRange,
		&status, &c.FitScore, &decidedAt, &c.Version, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = model.CandidateStatus(status)
	if decidedAt.Valid {
		t := decidedAt.Time
		c.DecidedAt = &t
	}
	return &c, nil
}
