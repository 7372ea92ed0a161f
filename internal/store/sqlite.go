package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/regintel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local CLI
// runs and tests; list columns are stored as JSON text.
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS company_profiles (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL DEFAULT '',
	company_name    TEXT NOT NULL,
	industry        TEXT NOT NULL DEFAULT '',
	jurisdiction    TEXT NOT NULL DEFAULT '',
	company_size    TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	keywords        TEXT NOT NULL DEFAULT '[]',
	trusted_sources TEXT NOT NULL DEFAULT '[]',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reports (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL DEFAULT '',
	company_profile_id  TEXT NOT NULL REFERENCES company_profiles(id),
	title               TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'pending',
	analysis_type       TEXT NOT NULL DEFAULT 'comprehensive',
	scope               TEXT NOT NULL DEFAULT '',
	keywords            TEXT NOT NULL DEFAULT '[]',
	progress_percentage INTEGER NOT NULL DEFAULT 0,
	current_stage       TEXT NOT NULL DEFAULT '',
	error               TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at          DATETIME,
	completed_at        DATETIME
);

CREATE TABLE IF NOT EXISTS regulatory_changes (
	id                      TEXT PRIMARY KEY,
	report_id               TEXT NOT NULL REFERENCES reports(id),
	title                   TEXT NOT NULL,
	summary                 TEXT NOT NULL DEFAULT '',
	impact_assessment       TEXT NOT NULL DEFAULT '',
	risk_level              TEXT NOT NULL,
	confidence_score        REAL NOT NULL,
	compliance_requirements TEXT NOT NULL DEFAULT '[]',
	implementation_timeline TEXT NOT NULL DEFAULT '',
	relevant_sections       TEXT NOT NULL DEFAULT '[]',
	affected_areas          TEXT NOT NULL DEFAULT '[]',
	action_items            TEXT NOT NULL DEFAULT '[]',
	source_url              TEXT NOT NULL DEFAULT '',
	source_title            TEXT NOT NULL DEFAULT '',
	source_type             TEXT NOT NULL DEFAULT '',
	fallback                INTEGER NOT NULL DEFAULT 0,
	analyzed_at             DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analysis_schedules (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL DEFAULT '',
	company_profile_id TEXT NOT NULL REFERENCES company_profiles(id),
	name               TEXT NOT NULL DEFAULT '',
	frequency          TEXT NOT NULL DEFAULT 'weekly',
	analysis_type      TEXT NOT NULL DEFAULT 'monitoring',
	active             INTEGER NOT NULL DEFAULT 1,
	last_run           DATETIME,
	next_run           DATETIME NOT NULL,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
CREATE INDEX IF NOT EXISTS idx_reports_user_id ON reports(user_id);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
CREATE INDEX IF NOT EXISTS idx_regulatory_changes_report_id ON regulatory_changes(report_id);
CREATE INDEX IF NOT EXISTS idx_analysis_schedules_due ON analysis_schedules(active, next_run);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Profiles ---

func (s *SQLiteStore) profileArgs(p *model.CompanyProfile) ([]any, error) {
	kw, err := encodeList(p.Keywords)
	if err != nil {
		return nil, err
	}
	trusted, err := encodeList(p.TrustedSources)
	if err != nil {
		return nil, err
	}
	return []any{
		p.ID, p.UserID, p.CompanyName, p.Industry, p.Jurisdiction, string(p.CompanySize),
		p.Description, kw, trusted, p.CreatedAt, p.UpdatedAt,
	}, nil
}

func (s *SQLiteStore) CreateProfile(ctx context.Context, p *model.CompanyProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	prepareProfile(p, time.Now().UTC())

	args, err := s.profileArgs(p)
	if err != nil {
		return err
	}
	query, qargs, err := sq.Insert("company_profiles").Columns(profileColumns...).Values(args...).ToSql()
	if err != nil {
		return eris.Wrap(err, "sqlite: build insert profile")
	}
	_, err = s.db.ExecContext(ctx, query, qargs...)
	return eris.Wrap(err, "sqlite: insert profile")
}

func (s *SQLiteStore) UpsertProfiles(ctx context.Context, profiles []model.CompanyProfile) (int64, error) {
	if len(profiles) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()

	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i := range profiles {
			p := &profiles[i]
			if err := p.Validate(); err != nil {
				return eris.Wrapf(err, "sqlite: profile %d", i)
			}
			prepareProfile(p, now)
			args, err := s.profileArgs(p)
			if err != nil {
				return err
			}
			query, qargs, err := sq.Insert("company_profiles").Columns(profileColumns...).Values(args...).
				Suffix(`ON CONFLICT (id) DO UPDATE SET user_id = excluded.user_id, company_name = excluded.company_name,
					industry = excluded.industry, jurisdiction = excluded.jurisdiction, company_size = excluded.company_size,
					description = excluded.description, keywords = excluded.keywords,
					trusted_sources = excluded.trusted_sources, updated_at = excluded.updated_at`).
				ToSql()
			if err != nil {
				return eris.Wrap(err, "sqlite: build upsert profile")
			}
			res, err := tx.ExecContext(ctx, query, qargs...)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert profile %s", p.ID)
			}
			n, _ := res.RowsAffected()
			affected += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func scanProfileRow(row scannable) (*model.CompanyProfile, error) {
	var p model.CompanyProfile
	var size, kw, trusted string
	if err := row.Scan(&p.ID, &p.UserID, &p.CompanyName, &p.Industry, &p.Jurisdiction, &size,
		&p.Description, &kw, &trusted, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CompanySize = model.CompanySize(size)
	if err := decodeList(kw, &p.Keywords); err != nil {
		return nil, err
	}
	if err := decodeList(trusted, &p.TrustedSources); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (*model.CompanyProfile, error) {
	query, args, err := sq.Select(profileColumns...).From("company_profiles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build get profile")
	}
	p, err := scanProfileRow(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "profile %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context, userID string) ([]model.CompanyProfile, error) {
	q := sq.Select(profileColumns...).From("company_profiles").OrderBy("company_name")
	if userID != "" {
		q = q.Where(sq.Eq{"user_id": userID})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list profiles")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list profiles")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CompanyProfile
	for rows.Next() {
		p, err := scanProfileRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan profile")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list profiles iterate")
}

func (s *SQLiteStore) UpdateProfile(ctx context.Context, p *model.CompanyProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	kw, err := encodeList(p.Keywords)
	if err != nil {
		return err
	}
	trusted, err := encodeList(p.TrustedSources)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()

	query, args, err := sq.Update("company_profiles").SetMap(map[string]any{
		"user_id":         p.UserID,
		"company_name":    p.CompanyName,
		"industry":        p.Industry,
		"jurisdiction":    p.Jurisdiction,
		"company_size":    string(p.CompanySize),
		"description":     p.Description,
		"keywords":        kw,
		"trusted_sources": trusted,
		"updated_at":      p.UpdatedAt,
	}).Where(sq.Eq{"id": p.ID}).ToSql()
	if err != nil {
		return eris.Wrap(err, "sqlite: build update profile")
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update profile %s", p.ID)
	}
	return checkRowsAffected(res, "profile", p.ID)
}

func (s *SQLiteStore) DeleteProfile(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var active int
		if err := tx.QueryRowContext(ctx,
			`SELECT count(*) FROM reports WHERE company_profile_id = ? AND status IN (?, ?)`,
			id, activeStatuses[0], activeStatuses[1],
		).Scan(&active); err != nil {
			return eris.Wrapf(err, "sqlite: count active reports for profile %s", id)
		}
		if active > 0 {
			return eris.Wrapf(ErrProfileInUse, "profile %s has %d", id, active)
		}
		for _, stmt := range []string{
			`DELETE FROM regulatory_changes WHERE report_id IN (SELECT id FROM reports WHERE company_profile_id = ?)`,
			`DELETE FROM reports WHERE company_profile_id = ?`,
			`DELETE FROM analysis_schedules WHERE company_profile_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return eris.Wrapf(err, "sqlite: delete dependents of profile %s", id)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM company_profiles WHERE id = ?`, id)
		if err != nil {
			return eris.Wrapf(err, "sqlite: delete profile %s", id)
		}
		return checkRowsAffected(res, "profile", id)
	})
}

// --- Reports ---

func scanReportRow(row scannable) (*model.Report, error) {
	var r model.Report
	var status, analysisType, kw string
	var started, completed sql.NullTime
	if err := row.Scan(&r.ID, &r.UserID, &r.CompanyProfileID, &r.Title, &status, &analysisType,
		&r.Scope, &kw, &r.ProgressPercentage, &r.CurrentStage, &r.Error,
		&r.CreatedAt, &started, &completed); err != nil {
		return nil, err
	}
	r.Status = model.ReportStatus(status)
	r.AnalysisType = model.AnalysisType(analysisType)
	r.StartedAt = nullTime(started)
	r.CompletedAt = nullTime(completed)
	if err := decodeList(kw, &r.Keywords); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) CreateReport(ctx context.Context, r *model.Report) error {
	prepareReport(r, time.Now().UTC())
	kw, err := encodeList(r.Keywords)
	if err != nil {
		return err
	}

	query, args, err := sq.Insert("reports").
		Columns("id", "user_id", "company_profile_id", "title", "status", "analysis_type",
			"scope", "keywords", "progress_percentage", "current_stage", "created_at").
		Values(r.ID, r.UserID, r.CompanyProfileID, r.Title, string(r.Status), string(r.AnalysisType),
			r.Scope, kw, r.ProgressPercentage, r.CurrentStage, r.CreatedAt).
		ToSql()
	if err != nil {
		return eris.Wrap(err, "sqlite: build insert report")
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return eris.Wrap(err, "sqlite: insert report")
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*model.Report, error) {
	query, args, err := sq.Select(reportColumns...).From("reports").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build get report")
	}
	r, err := scanReportRow(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "report %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error) {
	q := sq.Select(reportColumns...).From("reports").
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
		q = q.Where(sq.Lt{"started_at": filter.StartedBefore.UTC()})
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list reports")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Report
	for rows.Next() {
		r, err := scanReportRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

func (s *SQLiteStore) CountReportsSince(ctx context.Context, since time.Time) (map[model.ReportStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, count(*) FROM reports WHERE created_at >= ? GROUP BY status`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count reports")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[model.ReportStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report count")
		}
		counts[model.ReportStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count reports iterate")
}

func (s *SQLiteStore) DeleteReport(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM regulatory_changes WHERE report_id = ?`, id); err != nil {
			return eris.Wrapf(err, "sqlite: delete changes for report %s", id)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
		if err != nil {
			return eris.Wrapf(err, "sqlite: delete report %s", id)
		}
		return checkRowsAffected(res, "report", id)
	})
}

func (s *SQLiteStore) DeleteReportsBefore(ctx context.Context, cutoff time.Time, statuses []model.ReportStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	where := sq.And{sq.Lt{"created_at": cutoff.UTC()}, sq.Eq{"status": statusStrings(statuses)}}
	sub, subArgs, err := sq.Select("id").From("reports").Where(where).ToSql()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: build retention query")
	}

	var deleted int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM regulatory_changes WHERE report_id IN (`+sub+`)`, subArgs...); err != nil {
			return eris.Wrap(err, "sqlite: delete old changes")
		}
		query, args, err := sq.Delete("reports").Where(where).ToSql()
		if err != nil {
			return eris.Wrap(err, "sqlite: build delete reports")
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return eris.Wrap(err, "sqlite: delete old reports")
		}
		deleted, err = res.RowsAffected()
		return eris.Wrap(err, "sqlite: rows affected")
	})
	return int(deleted), err
}

type sqlQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) transitionError(ctx context.Context, q sqlQuerier, id string) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM reports WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "report %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read status of report %s", id)
	}
	return eris.Wrapf(ErrInvalidTransition, "report %s is %s", id, status)
}

func (s *SQLiteStore) conditional(ctx context.Context, q sqlQuerier, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return s.transitionError(ctx, q, id)
	}
	return nil
}

func (s *SQLiteStore) StartReport(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = ?, started_at = ?, progress_percentage = 0, current_stage = ?, error = '' WHERE id = ? AND status = ?`,
		string(model.ReportInProgress), time.Now().UTC(), model.StageStarting, id, string(model.ReportPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: start report %s", id)
	}
	return s.conditional(ctx, s.db, res, id)
}

func (s *SQLiteStore) UpdateReportProgress(ctx context.Context, id string, pct int, stage string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET progress_percentage = ?, current_stage = ? WHERE id = ? AND status = ?`,
		clampPercent(pct), stage, id, string(model.ReportInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update progress %s", id)
	}
	return s.conditional(ctx, s.db, res, id)
}

func (s *SQLiteStore) CompleteReport(ctx context.Context, id string, changes []model.RegulatoryChange) error {
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE reports SET status = ?, progress_percentage = 100, current_stage = ?, completed_at = ? WHERE id = ? AND status = ?`,
			string(model.ReportCompleted), model.StageCompleted, now, id, string(model.ReportInProgress),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: complete report %s", id)
		}
		if err := s.conditional(ctx, tx, res, id); err != nil {
			return err
		}

		for _, c := range changes {
			row := changeRow(id, c, now)
			// list columns: compliance_requirements, relevant_sections, affected_areas, action_items
			for _, idx := range []int{7, 9, 10, 11} {
				enc, err := encodeList(row[idx].([]string))
				if err != nil {
					return err
				}
				row[idx] = enc
			}
			query, args, err := sq.Insert("regulatory_changes").Columns(changeColumns...).Values(row...).ToSql()
			if err != nil {
				return eris.Wrap(err, "sqlite: build insert change")
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return eris.Wrapf(err, "sqlite: insert change for report %s", id)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) FailReport(ctx context.Context, id string, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = ?, error = ?, current_stage = ?, completed_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(model.ReportFailed), message, model.StageFailed, time.Now().UTC(), id,
		activeStatuses[0], activeStatuses[1],
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail report %s", id)
	}
	return s.conditional(ctx, s.db, res, id)
}

func (s *SQLiteStore) ListChanges(ctx context.Context, reportID string) ([]model.RegulatoryChange, error) {
	return s.queryChanges(ctx, sq.Select(changeColumns...).From("regulatory_changes").
		Where(sq.Eq{"report_id": reportID}).
		OrderBy("confidence_score DESC", "id"))
}

func (s *SQLiteStore) ListChangeHistory(ctx context.Context, filter ChangeFilter) ([]model.RegulatoryChange, error) {
	return s.queryChanges(ctx, changeHistoryQuery(sq.StatementBuilder, filter))
}

func (s *SQLiteStore) queryChanges(ctx context.Context, q sq.SelectBuilder) ([]model.RegulatoryChange, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list changes")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list changes")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RegulatoryChange
	for rows.Next() {
		var c model.RegulatoryChange
		var risk, sourceType, reqs, sections, areas, actions string
		if err := rows.Scan(&c.ID, &c.ReportID, &c.Title, &c.Summary, &c.ImpactAssessment, &risk,
			&c.ConfidenceScore, &reqs, &c.ImplementationTimeline, &sections, &areas, &actions,
			&c.SourceURL, &c.SourceTitle, &sourceType, &c.Fallback, &c.AnalyzedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan change")
		}
		c.RiskLevel = model.RiskLevel(risk)
		c.SourceType = model.SourceType(sourceType)
		for _, pair := range []struct {
			raw string
			dst *[]string
		}{
			{reqs, &c.ComplianceRequirements},
			{sections, &c.RelevantSections},
			{areas, &c.AffectedAreas},
			{actions, &c.ActionItems},
		} {
			if err := decodeList(pair.raw, pair.dst); err != nil {
				return nil, err
			}
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list changes iterate")
}

func (s *SQLiteStore) AnalysisStats(ctx context.Context, userID string, days int) (*AnalysisStats, error) {
	days = statsDays(days)
	since := time.Now().UTC().AddDate(0, 0, -days)
	st := newAnalysisStats(days)

	query, args, err := reportStatsQuery(sq.StatementBuilder, userID, since).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build report stats")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: report stats")
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "sqlite: scan report stats")
		}
		st.addStatus(model.ReportStatus(status), n)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: report stats iterate")
	}

	query, args, err = changeStatsQuery(sq.StatementBuilder, userID, since).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build change stats")
	}
	rows, err = s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: change stats")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var risk string
		var n, scored int
		var sum float64
		if err := rows.Scan(&risk, &n, &sum, &scored); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan change stats")
		}
		st.addRisk(risk, n, sum, scored)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: change stats iterate")
	}
	st.finish()
	return st, nil
}

// --- Schedules ---

func scanScheduleRow(row scannable) (*model.Schedule, error) {
	var sc model.Schedule
	var freq, analysisType string
	var lastRun sql.NullTime
	if err := row.Scan(&sc.ID, &sc.UserID, &sc.CompanyProfileID, &sc.Name, &freq, &analysisType,
		&sc.Active, &lastRun, &sc.NextRun, &sc.CreatedAt); err != nil {
		return nil, err
	}
	sc.Frequency = model.Frequency(freq)
	sc.AnalysisType = model.AnalysisType(analysisType)
	sc.LastRun = nullTime(lastRun)
	return &sc, nil
}

func (s *SQLiteStore) CreateSchedule(ctx context.Context, sc *model.Schedule) error {
	prepareSchedule(sc, time.Now().UTC())
	query, args, err := sq.Insert("analysis_schedules").Columns(scheduleColumns...).
		Values(sc.ID, sc.UserID, sc.CompanyProfileID, sc.Name, string(sc.Frequency),
			string(sc.AnalysisType), sc.Active, sc.LastRun, sc.NextRun.UTC(), sc.CreatedAt).
		ToSql()
	if err != nil {
		return eris.Wrap(err, "sqlite: build insert schedule")
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return eris.Wrap(err, "sqlite: insert schedule")
}

func (s *SQLiteStore) querySchedules(ctx context.Context, q sq.SelectBuilder) ([]model.Schedule, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build schedule query")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list schedules")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Schedule
	for rows.Next() {
		sc, err := scanScheduleRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan schedule")
		}
		out = append(out, *sc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list schedules iterate")
}

func (s *SQLiteStore) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	out, err := s.querySchedules(ctx, sq.Select(scheduleColumns...).From("analysis_schedules").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get schedule %s", id)
	}
	if len(out) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "schedule %s", id)
	}
	return &out[0], nil
}

func (s *SQLiteStore) ListSchedules(ctx context.Context, activeOnly bool) ([]model.Schedule, error) {
	q := sq.Select(scheduleColumns...).From("analysis_schedules").OrderBy("next_run")
	if activeOnly {
		q = q.Where(sq.Eq{"active": true})
	}
	return s.querySchedules(ctx, q)
}

func (s *SQLiteStore) DueSchedules(ctx context.Context, now time.Time) ([]model.Schedule, error) {
	return s.querySchedules(ctx, sq.Select(scheduleColumns...).From("analysis_schedules").
		Where(sq.Eq{"active": true}).
		Where(sq.LtOrEq{"next_run": now.UTC()}).
		OrderBy("next_run"))
}

func (s *SQLiteStore) MarkScheduleRun(ctx context.Context, id string, ranAt, nextRun time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_schedules SET last_run = ?, next_run = ? WHERE id = ?`,
		ranAt.UTC(), nextRun.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark schedule run %s", id)
	}
	return checkRowsAffected(res, "schedule", id)
}

func (s *SQLiteStore) SetScheduleActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE analysis_schedules SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set schedule active %s", id)
	}
	return checkRowsAffected(res, "schedule", id)
}

// helpers

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			zap.L().Warn("sqlite: rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func encodeList(in []string) (string, error) {
	b, err := json.Marshal(nonNil(in))
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal list")
	}
	return string(b), nil
}

func decodeList(raw string, dst *[]string) error {
	if raw == "" {
		return nil
	}
	return eris.Wrap(json.Unmarshal([]byte(raw), dst), "sqlite: unmarshal list")
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
