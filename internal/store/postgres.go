package store

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/regintel/internal/db"
	"github.com/sells-group/regintel/internal/model"
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

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS company_profiles (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL DEFAULT '',
	company_name    TEXT NOT NULL,
	industry        TEXT NOT NULL DEFAULT '',
	jurisdiction    TEXT NOT NULL DEFAULT '',
	company_size    TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	keywords        TEXT[] NOT NULL DEFAULT '{}',
	trusted_sources TEXT[] NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reports (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL DEFAULT '',
	company_profile_id  TEXT NOT NULL REFERENCES company_profiles(id),
	title               TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'pending',
	analysis_type       TEXT NOT NULL DEFAULT 'comprehensive',
	scope               TEXT NOT NULL DEFAULT '',
	keywords            TEXT[] NOT NULL DEFAULT '{}',
	progress_percentage INTEGER NOT NULL DEFAULT 0,
	current_stage       TEXT NOT NULL DEFAULT '',
	error               TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at          TIMESTAMPTZ,
	completed_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
CREATE INDEX IF NOT EXISTS idx_reports_user_id ON reports(user_id);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);

CREATE TABLE IF NOT EXISTS regulatory_changes (
	id                      TEXT PRIMARY KEY,
	report_id               TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
	title                   TEXT NOT NULL,
	summary                 TEXT NOT NULL DEFAULT '',
	impact_assessment       TEXT NOT NULL DEFAULT '',
	risk_level              TEXT NOT NULL,
	confidence_score        DOUBLE PRECISION NOT NULL,
	compliance_requirements TEXT[] NOT NULL DEFAULT '{}',
	implementation_timeline TEXT NOT NULL DEFAULT '',
	relevant_sections       TEXT[] NOT NULL DEFAULT '{}',
	affected_areas          TEXT[] NOT NULL DEFAULT '{}',
	action_items            TEXT[] NOT NULL DEFAULT '{}',
	source_url              TEXT NOT NULL DEFAULT '',
	source_title            TEXT NOT NULL DEFAULT '',
	source_type             TEXT NOT NULL DEFAULT '',
	fallback                BOOLEAN NOT NULL DEFAULT false,
	analyzed_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_regulatory_changes_report_id ON regulatory_changes(report_id);

CREATE TABLE IF NOT EXISTS analysis_schedules (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL DEFAULT '',
	company_profile_id TEXT NOT NULL REFERENCES company_profiles(id),
	name               TEXT NOT NULL DEFAULT '',
	frequency          TEXT NOT NULL DEFAULT 'weekly',
	analysis_type      TEXT NOT NULL DEFAULT 'monitoring',
	active             BOOLEAN NOT NULL DEFAULT true,
	last_run           TIMESTAMPTZ,
	next_run           TIMESTAMPTZ NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analysis_schedules_due ON analysis_schedules(active, next_run);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Profiles ---

var profileColumns = []string{
	"id", "user_id", "company_name", "industry", "jurisdiction", "company_size",
	"description", "keywords", "trusted_sources", "created_at", "updated_at",
}

func profileRow(p *model.CompanyProfile) []any {
	return []any{
		p.ID, p.UserID, p.CompanyName, p.Industry, p.Jurisdiction, string(p.CompanySize),
		p.Description, nonNil(p.Keywords), nonNil(p.TrustedSources), p.CreatedAt, p.UpdatedAt,
	}
}

func prepareProfile(p *model.CompanyProfile, now time.Time) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p *model.CompanyProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	prepareProfile(p, time.Now().UTC())

	query, args, err := psql.Insert("company_profiles").Columns(profileColumns...).Values(profileRow(p)...).ToSql()
	if err != nil {
		return eris.Wrap(err, "postgres: build insert profile")
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return eris.Wrap(err, "postgres: insert profile")
	}
	return nil
}

func (s *PostgresStore) UpsertProfiles(ctx context.Context, profiles []model.CompanyProfile) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(profiles))
	for i := range profiles {
		if err := profiles[i].Validate(); err != nil {
			return 0, eris.Wrapf(err, "postgres: profile %d", i)
		}
		prepareProfile(&profiles[i], now)
		rows = append(rows, profileRow(&profiles[i]))
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "company_profiles",
		Columns:      profileColumns,
		ConflictKeys: []string{"id"},
		UpdateCols: []string{
			"user_id", "company_name", "industry", "jurisdiction", "company_size",
			"description", "keywords", "trusted_sources", "updated_at",
		},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert profiles")
}

func scanProfile(row pgx.Row) (*model.CompanyProfile, error) {
	var p model.CompanyProfile
	var size string
	err := row.Scan(&p.ID, &p.UserID, &p.CompanyName, &p.Industry, &p.Jurisdiction, &size,
		&p.Description, &p.Keywords, &p.TrustedSources, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.CompanySize = model.CompanySize(size)
	return &p, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, id string) (*model.CompanyProfile, error) {
	query, args, err := psql.Select(profileColumns...).From("company_profiles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build get profile")
	}
	p, err := scanProfile(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "profile %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile %s", id)
	}
	return p, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context, userID string) ([]model.CompanyProfile, error) {
	q := psql.Select(profileColumns...).From("company_profiles").OrderBy("company_name")
	if userID != "" {
		q = q.Where(sq.Eq{"user_id": userID})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list profiles")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list profiles")
	}
	defer rows.Close()

	var out []model.CompanyProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan profile")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list profiles iterate")
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, p *model.CompanyProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()

	query, args, err := psql.Update("company_profiles").SetMap(map[string]any{
		"user_id":         p.UserID,
		"company_name":    p.CompanyName,
		"industry":        p.Industry,
		"jurisdiction":    p.Jurisdiction,
		"company_size":    string(p.CompanySize),
		"description":     p.Description,
		"keywords":        nonNil(p.Keywords),
		"trusted_sources": nonNil(p.TrustedSources),
		"updated_at":      p.UpdatedAt,
	}).Where(sq.Eq{"id": p.ID}).ToSql()
	if err != nil {
		return eris.Wrap(err, "postgres: build update profile")
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update profile %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "profile %s", p.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteProfile(ctx context.Context, id string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var active int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM reports WHERE company_profile_id = $1 AND status = ANY($2)`,
			id, activeStatuses,
		).Scan(&active); err != nil {
			return eris.Wrapf(err, "postgres: count active reports for profile %s", id)
		}
		if active > 0 {
			return eris.Wrapf(ErrProfileInUse, "profile %s has %d", id, active)
		}
		// regulatory_changes cascade from reports.
		for _, stmt := range []string{
			`DELETE FROM reports WHERE company_profile_id = $1`,
			`DELETE FROM analysis_schedules WHERE company_profile_id = $1`,
		} {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return eris.Wrapf(err, "postgres: delete dependents of profile %s", id)
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM company_profiles WHERE id = $1`, id)
		if err != nil {
			return eris.Wrapf(err, "postgres: delete profile %s", id)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "profile %s", id)
		}
		return nil
	})
}

// --- Reports ---

var reportColumns = []string{
	"id", "user_id", "company_profile_id", "title", "status", "analysis_type", "scope",
	"keywords", "progress_percentage", "current_stage", "error", "created_at",
	"started_at", "completed_at",
}

func scanReport(row pgx.Row) (*model.Report, error) {
	var r model.Report
	var status, analysisType string
	err := row.Scan(&r.ID, &r.UserID, &r.CompanyProfileID, &r.Title, &status, &analysisType,
		&r.Scope, &r.Keywords, &r.ProgressPercentage, &r.CurrentStage, &r.Error,
		&r.CreatedAt, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	r.Status = model.ReportStatus(status)
	r.AnalysisType = model.AnalysisType(analysisType)
	return &r, nil
}

func prepareReport(r *model.Report, now time.Time) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if !r.AnalysisType.Valid() {
		r.AnalysisType = model.ParseAnalysisType(string(r.AnalysisType))
	}
	r.Status = model.ReportPending
	r.CurrentStage = model.StageQueued
	r.ProgressPercentage = 0
}

func (s *PostgresStore) CreateReport(ctx context.Context, r *model.Report) error {
	prepareReport(r, time.Now().UTC())

	query, args, err := psql.Insert("reports").
		Columns("id", "user_id", "company_profile_id", "title", "status", "analysis_type",
			"scope", "keywords", "progress_percentage", "current_stage", "created_at").
		Values(r.ID, r.UserID, r.CompanyProfileID, r.Title, string(r.Status), string(r.AnalysisType),
			r.Scope, nonNil(r.Keywords), r.ProgressPercentage, r.CurrentStage, r.CreatedAt).
		ToSql()
	if err != nil {
		return eris.Wrap(err, "postgres: build insert report")
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return eris.Wrap(err, "postgres: insert report")
	}
	return nil
}

func (s *PostgresStore) GetReport(ctx context.Context, id string) (*model.Report, error) {
	query, args, err := psql.Select(reportColumns...).From("reports").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build get report")
	}
	r, err := scanReport(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "report %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	q := psql.Select(reportColumns...).From("reports").
		OrderBy("created_at DESC").
		Limit(defaultLimit(filter.Limit))
	if len(filter.Statuses) > 0 {
		q = q.Where(sq.Eq{"status": statusStrings(filter.Statuses)})
	}
	if filter.UserID != "" {
		q = q.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.ProfileID != "" {
		q = q.Where(sq.Eq{"company_profile_id": filter.ProfileID})
	}
	if filter.StartedBefore != nil {
		q = q.Where(sq.Lt{"started_at": *filter.StartedBefore})
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list reports")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

func (s *PostgresStore) CountReportsSince(ctx context.Context, since time.Time) (map[model.ReportStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, count(*) FROM reports WHERE created_at >= $1 GROUP BY status`, since)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count reports")
	}
	defer rows.Close()

	counts := make(map[model.ReportStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report count")
		}
		counts[model.ReportStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count reports iterate")
}

func (s *PostgresStore) DeleteReport(ctx context.Context, id string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM regulatory_changes WHERE report_id = $1`, id); err != nil {
			return eris.Wrapf(err, "postgres: delete changes for report %s", id)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
		if err != nil {
			return eris.Wrapf(err, "postgres: delete report %s", id)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "report %s", id)
		}
		return nil
	})
}

func (s *PostgresStore) DeleteReportsBefore(ctx context.Context, cutoff time.Time, statuses []model.ReportStatus) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM reports WHERE created_at < $1 AND status = ANY($2)`,
		cutoff, statusStrings(statuses),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete old reports")
	}
	return int(tag.RowsAffected()), nil
}

// transitionError explains why a conditional status update matched no row.
func transitionError(ctx context.Context, q db.Querier, id string) error {
	var status string
	err := q.QueryRow(ctx, `SELECT status FROM reports WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "report %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: read status of report %s", id)
	}
	return eris.Wrapf(ErrInvalidTransition, "report %s is %s", id, status)
}

func (s *PostgresStore) StartReport(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET status = $1, started_at = $2, progress_percentage = 0, current_stage = $3, error = '' WHERE id = $4 AND status = $5`,
		string(model.ReportInProgress), time.Now().UTC(), model.StageStarting, id, string(model.ReportPending),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: start report %s", id)
	}
	if tag.RowsAffected() == 0 {
		return transitionError(ctx, s.pool, id)
	}
	return nil
}

func (s *PostgresStore) UpdateReportProgress(ctx context.Context, id string, pct int, stage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET progress_percentage = $1, current_stage = $2 WHERE id = $3 AND status = $4`,
		clampPercent(pct), stage, id, string(model.ReportInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update progress %s", id)
	}
	if tag.RowsAffected() == 0 {
		return transitionError(ctx, s.pool, id)
	}
	return nil
}

var changeColumns = []string{
	"id", "report_id", "title", "summary", "impact_assessment", "risk_level",
	"confidence_score", "compliance_requirements", "implementation_timeline",
	"relevant_sections", "affected_areas", "action_items", "source_url",
	"source_title", "source_type", "fallback", "analyzed_at",
}

func changeRow(reportID string, c model.RegulatoryChange, now time.Time) []any {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.AnalyzedAt.IsZero() {
		c.AnalyzedAt = now
	}
	return []any{
		c.ID, reportID, c.Title, c.Summary, c.ImpactAssessment, string(c.RiskLevel),
		c.ConfidenceScore, nonNil(c.ComplianceRequirements), c.ImplementationTimeline,
		nonNil(c.RelevantSections), nonNil(c.AffectedAreas), nonNil(c.ActionItems), c.SourceURL,
		c.SourceTitle, string(c.SourceType), c.Fallback, c.AnalyzedAt,
	}
}

func (s *PostgresStore) CompleteReport(ctx context.Context, id string, changes []model.RegulatoryChange) error {
	now := time.Now().UTC()
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE reports SET status = $1, progress_percentage = 100, current_stage = $2, completed_at = $3 WHERE id = $4 AND status = $5`,
			string(model.ReportCompleted), model.StageCompleted, now, id, string(model.ReportInProgress),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: complete report %s", id)
		}
		if tag.RowsAffected() == 0 {
			return transitionError(ctx, tx, id)
		}

		rows := make([][]any, len(changes))
		for i, c := range changes {
			rows[i] = changeRow(id, c, now)
		}
		if _, err := db.CopyFrom(ctx, tx, "regulatory_changes", changeColumns, rows); err != nil {
			return eris.Wrapf(err, "postgres: insert changes for report %s", id)
		}
		return nil
	})
}

func (s *PostgresStore) FailReport(ctx context.Context, id string, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET status = $1, error = $2, current_stage = $3, completed_at = $4 WHERE id = $5 AND status = ANY($6)`,
		string(model.ReportFailed), message, model.StageFailed, time.Now().UTC(), id, activeStatuses,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail report %s", id)
	}
	if tag.RowsAffected() == 0 {
		return transitionError(ctx, s.pool, id)
	}
	return nil
}

// --- Regulatory changes ---

func (s *PostgresStore) ListChanges(ctx context.Context, reportID string) ([]model.RegulatoryChange, error) {
	return s.queryChanges(ctx, psql.Select(changeColumns...).From("regulatory_changes").
		Where(sq.Eq{"report_id": reportID}).
		OrderBy("confidence_score DESC", "id"))
}

func (s *PostgresStore) ListChangeHistory(ctx context.Context, filter ChangeFilter) ([]model.RegulatoryChange, error) {
	return s.queryChanges(ctx, changeHistoryQuery(psql, filter))
}

func (s *PostgresStore) queryChanges(ctx context.Context, q sq.SelectBuilder) ([]model.RegulatoryChange, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list changes")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list changes")
	}
	defer rows.Close()

	var out []model.RegulatoryChange
	for rows.Next() {
		var c model.RegulatoryChange
		var risk, sourceType string
		if err := rows.Scan(&c.ID, &c.ReportID, &c.Title, &c.Summary, &c.ImpactAssessment, &risk,
			&c.ConfidenceScore, &c.ComplianceRequirements, &c.ImplementationTimeline,
			&c.RelevantSections, &c.AffectedAreas, &c.ActionItems, &c.SourceURL,
			&c.SourceTitle, &sourceType, &c.Fallback, &c.AnalyzedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan change")
		}
		c.RiskLevel = model.RiskLevel(risk)
		c.SourceType = model.SourceType(sourceType)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list changes iterate")
}

func (s *PostgresStore) AnalysisStats(ctx context.Context, userID string, days int) (*AnalysisStats, error) {
	days = statsDays(days)
	since := time.Now().UTC().AddDate(0, 0, -days)
	st := newAnalysisStats(days)

	query, args, err := reportStatsQuery(psql, userID, since).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build report stats")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: report stats")
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan report stats")
		}
		st.addStatus(model.ReportStatus(status), n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: report stats iterate")
	}

	query, args, err = changeStatsQuery(psql, userID, since).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build change stats")
	}
	rows, err = s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: change stats")
	}
	defer rows.Close()
	for rows.Next() {
		var risk string
		var n, scored int
		var sum float64
		if err := rows.Scan(&risk, &n, &sum, &scored); err != nil {
			return nil, eris.Wrap(err, "postgres: scan change stats")
		}
		st.addRisk(risk, n, sum, scored)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: change stats iterate")
	}
	st.finish()
	return st, nil
}

// --- Schedules ---

var scheduleColumns = []string{
	"id", "user_id", "company_profile_id", "name", "frequency", "analysis_type",
	"active", "last_run", "next_run", "created_at",
}

func scanSchedule(row pgx.Row) (*model.Schedule, error) {
	var sc model.Schedule
	var freq, analysisType string
	if err := row.Scan(&sc.ID, &sc.UserID, &sc.CompanyProfileID, &sc.Name, &freq, &analysisType,
		&sc.Active, &sc.LastRun, &sc.NextRun, &sc.CreatedAt); err != nil {
		return nil, err
	}
	sc.Frequency = model.Frequency(freq)
	sc.AnalysisType = model.AnalysisType(analysisType)
	return &sc, nil
}

func prepareSchedule(sc *model.Schedule, now time.Time) {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	if sc.NextRun.IsZero() {
		sc.NextRun = sc.Advance(now)
	}
	if !sc.AnalysisType.Valid() {
		sc.AnalysisType = model.AnalysisMonitoring
	}
}

func (s *PostgresStore) CreateSchedule(ctx context.Context, sc *model.Schedule) error {
	prepareSchedule(sc, time.Now().UTC())
	query, args, err := psql.Insert("analysis_schedules").Columns(scheduleColumns...).
		Values(sc.ID, sc.UserID, sc.CompanyProfileID, sc.Name, string(sc.Frequency),
			string(sc.AnalysisType), sc.Active, sc.LastRun, sc.NextRun, sc.CreatedAt).
		ToSql()
	if err != nil {
		return eris.Wrap(err, "postgres: build insert schedule")
	}
	_, err = s.pool.Exec(ctx, query, args...)
	return eris.Wrap(err, "postgres: insert schedule")
}

func (s *PostgresStore) querySchedules(ctx context.Context, q sq.SelectBuilder) ([]model.Schedule, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build schedule query")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list schedules")
	}
	defer rows.Close()

	var out []model.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan schedule")
		}
		out = append(out, *sc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list schedules iterate")
}

func (s *PostgresStore) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	out, err := s.querySchedules(ctx, psql.Select(scheduleColumns...).From("analysis_schedules").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get schedule %s", id)
	}
	if len(out) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "schedule %s", id)
	}
	return &out[0], nil
}

func (s *PostgresStore) ListSchedules(ctx context.Context, activeOnly bool) ([]model.Schedule, error) {
	q := psql.Select(scheduleColumns...).From("analysis_schedules").OrderBy("next_run")
	if activeOnly {
		q = q.Where(sq.Eq{"active": true})
	}
	return s.querySchedules(ctx, q)
}

func (s *PostgresStore) DueSchedules(ctx context.Context, now time.Time) ([]model.Schedule, error) {
	return s.querySchedules(ctx, psql.Select(scheduleColumns...).From("analysis_schedules").
		Where(sq.Eq{"active": true}).
		Where(sq.LtOrEq{"next_run": now}).
		OrderBy("next_run"))
}

func (s *PostgresStore) MarkScheduleRun(ctx context.Context, id string, ranAt, nextRun time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_schedules SET last_run = $1, next_run = $2 WHERE id = $3`,
		ranAt, nextRun, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark schedule run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "schedule %s", id)
	}
	return nil
}

func (s *PostgresStore) SetScheduleActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE analysis_schedules SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set schedule active %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "schedule %s", id)
	}
	return nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
