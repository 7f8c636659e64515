package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"capalert/internal/geo"
	"capalert/internal/model"
	"capalert/internal/store/migrations"
)

const timeLayout = time.RFC3339Nano

// SQLite implements Store backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseNullTime(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ---- Source Registry (C3) ----------------------------------------------

func (s *SQLite) CreateSource(ctx context.Context, src *model.Source) error {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	src.CreatedAt, src.UpdatedAt = now, now
	if src.FetchIntervalSeconds < model.MinFetchIntervalSeconds {
		src.FetchIntervalSeconds = model.MinFetchIntervalSeconds
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if src.Default {
		if _, err := tx.ExecContext(ctx, `UPDATE sources SET is_default = 0`); err != nil {
			return fmt.Errorf("clear existing defaults: %w", err)
		}
	}

	metadata, err := json.Marshal(src.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sources (id, name, feed_url, country, language, active, is_default,
			fetch_interval_seconds, total_fetches, successful_fetches, failed_fetches,
			metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?, ?)`,
		src.ID, src.Name, src.FeedURL, src.Country, src.Language, boolToInt(src.Active), boolToInt(src.Default),
		src.FetchIntervalSeconds, string(metadata), formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) GetSource(ctx context.Context, id string) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx, sourceSelectColumns+` WHERE id = ?`, id)
	return scanSource(row)
}

func (s *SQLite) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, sourceSelectColumns+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

func (s *SQLite) GetActiveSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, sourceSelectColumns+` WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query active sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

func (s *SQLite) GetDefaultSource(ctx context.Context) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx, sourceSelectColumns+` WHERE is_default = 1`)
	return scanSource(row)
}

func (s *SQLite) UpdateSource(ctx context.Context, src *model.Source) error {
	src.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if src.Default {
		if _, err := tx.ExecContext(ctx, `UPDATE sources SET is_default = 0 WHERE id != ?`, src.ID); err != nil {
			return fmt.Errorf("clear existing defaults: %w", err)
		}
	}

	metadata, err := json.Marshal(src.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sources SET name = ?, feed_url = ?, country = ?, language = ?, active = ?,
			is_default = ?, fetch_interval_seconds = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		src.Name, src.FeedURL, src.Country, src.Language, boolToInt(src.Active), boolToInt(src.Default),
		src.FetchIntervalSeconds, string(metadata), formatTime(src.UpdatedAt), src.ID,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) DeleteSource(ctx context.Context, id string) error {
	src, err := s.GetSource(ctx, id)
	if err != nil {
		return err
	}
	if src.Default {
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources WHERE is_default = 1`).Scan(&count); err != nil {
			return fmt.Errorf("count defaults: %w", err)
		}
		if count <= 1 {
			return fmt.Errorf("cannot delete the last default source")
		}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}

func (s *SQLite) RecordFetchAttempt(ctx context.Context, sourceID string, success bool, errMsg string) error {
	now := time.Now().UTC()
	if success {
		_, err := s.db.ExecContext(ctx,
			`UPDATE sources SET total_fetches = total_fetches + 1, successful_fetches = successful_fetches + 1,
				last_fetched_at = ?, last_successful_fetch_at = ?, last_error_message = '', updated_at = ?
			 WHERE id = ?`,
			formatTime(now), formatTime(now), formatTime(now), sourceID,
		)
		if err != nil {
			return fmt.Errorf("record successful fetch: %w", err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET total_fetches = total_fetches + 1, failed_fetches = failed_fetches + 1,
			last_fetched_at = ?, last_error_message = ?, updated_at = ?
		 WHERE id = ?`,
		formatTime(now), errMsg, formatTime(now), sourceID,
	)
	if err != nil {
		return fmt.Errorf("record failed fetch: %w", err)
	}
	return nil
}

func (s *SQLite) SeedDefaultSources(ctx context.Context, defaults []model.Source) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sources: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	seeded := 0
	for i := range defaults {
		d := defaults[i]
		if err := s.CreateSource(ctx, &d); err != nil {
			return seeded, fmt.Errorf("seed source %q: %w", d.Name, err)
		}
		seeded++
	}
	return seeded, nil
}

const sourceSelectColumns = `SELECT id, name, feed_url, country, language, active, is_default,
	fetch_interval_seconds, total_fetches, successful_fetches, failed_fetches,
	last_fetched_at, last_successful_fetch_at, last_error_message, metadata, created_at, updated_at
	FROM sources`

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	var active, isDefault int
	var country, language, lastErr, metadataRaw sql.NullString
	var lastFetched, lastSuccessful, created, updated sql.NullString

	err := row.Scan(&src.ID, &src.Name, &src.FeedURL, &country, &language, &active, &isDefault,
		&src.FetchIntervalSeconds, &src.TotalFetches, &src.SuccessfulFetches, &src.FailedFetches,
		&lastFetched, &lastSuccessful, &lastErr, &metadataRaw, &created, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}

	src.Country = country.String
	src.Language = language.String
	src.Active = active == 1
	src.Default = isDefault == 1
	src.LastErrorMessage = lastErr.String
	if lastFetched.Valid {
		t := parseNullTime(lastFetched)
		src.LastFetchedAt = &t
	}
	if lastSuccessful.Valid {
		t := parseNullTime(lastSuccessful)
		src.LastSuccessfulFetchAt = &t
	}
	src.CreatedAt = parseNullTime(created)
	src.UpdatedAt = parseNullTime(updated)
	if metadataRaw.Valid && metadataRaw.String != "" {
		_ = json.Unmarshal([]byte(metadataRaw.String), &src.Metadata)
	}
	return &src, nil
}

func scanSources(rows *sql.Rows) ([]model.Source, error) {
	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// ---- Alert Store (C4) ---------------------------------------------------

const alertSelectColumns = `SELECT id, source_id, identifier, sender, sent, status, msg_type, scope,
	code, note, refs, incidents, info_json, active, fetched_at, created_at, updated_at
	FROM alerts`

func (s *SQLite) FindActive(ctx context.Context) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, alertSelectColumns+` WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("query active alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	alerts, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	sortBySeverityThenSent(alerts)
	return alerts, nil
}

func (s *SQLite) FindByID(ctx context.Context, id string) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx, alertSelectColumns+` WHERE id = ?`, id)
	return scanAlert(row)
}

func (s *SQLite) FindBySeverity(ctx context.Context, severity model.Severity) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, alertSelectColumns+` WHERE active = 1 AND max_severity = ?`, string(severity))
	if err != nil {
		return nil, fmt.Errorf("query alerts by severity: %w", err)
	}
	defer func() { _ = rows.Close() }()
	alerts, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	sortBySeverityThenSent(alerts)
	return alerts, nil
}

func (s *SQLite) FindByIdentifiers(ctx context.Context, sourceID string, identifiers []string) (map[string]model.Alert, error) {
	result := make(map[string]model.Alert)
	if len(identifiers) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(identifiers))
	args := make([]any, 0, len(identifiers)+1)
	args = append(args, sourceID)
	for i, id := range identifiers {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := alertSelectColumns + fmt.Sprintf(` WHERE source_id = ? AND identifier IN (%s)`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts by identifiers: %w", err)
	}
	defer func() { _ = rows.Close() }()
	alerts, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		result[a.Identifier] = a
	}
	return result, nil
}

// FindByPoint prunes candidates with the bbox index, then confirms with an
// exact point-in-polygon test against each candidate's stored geo_json
// (spec.md §4.4 / SPEC_FULL.md Storage Engine Note).
func (s *SQLite) FindByPoint(ctx context.Context, lat, lon float64) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT aa.alert_id, aa.geo_json FROM alert_areas aa
		 JOIN alerts a ON a.id = aa.alert_id
		 WHERE a.active = 1
		   AND aa.bbox_min_lat <= ? AND aa.bbox_max_lat >= ?
		   AND aa.bbox_min_lon <= ? AND aa.bbox_max_lon >= ?`,
		lat, lat, lon, lon,
	)
	if err != nil {
		return nil, fmt.Errorf("query candidate areas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	seen := make(map[string]bool)
	var matchedIDs []string
	for rows.Next() {
		var alertID, geoJSONRaw string
		if err := rows.Scan(&alertID, &geoJSONRaw); err != nil {
			return nil, fmt.Errorf("scan candidate area: %w", err)
		}
		if seen[alertID] {
			continue
		}
		gj := &model.GeoJSON{}
		if err := json.Unmarshal([]byte(geoJSONRaw), gj); err != nil {
			continue
		}
		inside, err := geo.PointInGeoJSON(lat, lon, gj)
		if err != nil || !inside {
			continue
		}
		seen[alertID] = true
		matchedIDs = append(matchedIDs, alertID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var alerts []model.Alert
	for _, id := range matchedIDs {
		a, err := s.FindByID(ctx, id)
		if err != nil {
			continue
		}
		alerts = append(alerts, *a)
	}
	sortBySeverityThenSent(alerts)
	return alerts, nil
}

// BulkUpsert applies a batch of updates to existing alerts in a single
// transaction: all succeed or all roll back (spec.md §5 "bulk operations
// always complete or fail atomically").
func (s *SQLite) BulkUpsert(ctx context.Context, ops []UpsertOp) error {
	if len(ops) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, op := range ops {
		if err := upsertOne(ctx, tx, op.ID, op.Alert, now); err != nil {
			return fmt.Errorf("upsert alert %s: %w", op.ID, err)
		}
	}
	return tx.Commit()
}

// BulkInsert inserts new alert records in a single transaction and returns
// them with their store-assigned IDs and write-time active bit populated,
// ready for the caller to
// compute and attach geometry per area.
func (s *SQLite) BulkInsert(ctx context.Context, alerts []model.Alert) ([]model.Alert, error) {
	if len(alerts) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	inserted := make([]model.Alert, 0, len(alerts))
	for _, a := range alerts {
		a.ID = uuid.NewString()
		a.CreatedAt, a.UpdatedAt = now, now
		if err := insertOne(ctx, tx, &a, now); err != nil {
			return nil, fmt.Errorf("insert alert %s/%s: %w", a.SourceID, a.Identifier, err)
		}
		inserted = append(inserted, a)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk insert: %w", err)
	}
	return inserted, nil
}

func insertOne(ctx context.Context, tx *sql.Tx, a *model.Alert, now time.Time) error {
	infoJSON, err := json.Marshal(a.Info)
	if err != nil {
		return fmt.Errorf("marshal info: %w", err)
	}
	codeJSON, err := json.Marshal(a.Code)
	if err != nil {
		return fmt.Errorf("marshal code: %w", err)
	}
	active := a.IsActiveAt(now)
	a.Active = active
	_, err = tx.ExecContext(ctx,
		`INSERT INTO alerts (id, source_id, identifier, sender, sent, status, msg_type, scope,
			code, note, refs, incidents, info_json, max_severity, latest_expires, active,
			fetched_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SourceID, a.Identifier, a.Sender, formatTime(a.Sent), string(a.Status), string(a.MsgType), string(a.Scope),
		string(codeJSON), a.Note, a.References, a.Incidents, string(infoJSON), string(a.MaxSeverity()), formatTime(a.LatestExpiry()), boolToInt(active),
		formatTime(a.FetchedAt), formatTime(now), formatTime(now),
	)
	return err
}

func upsertOne(ctx context.Context, tx *sql.Tx, id string, a model.Alert, now time.Time) error {
	infoJSON, err := json.Marshal(a.Info)
	if err != nil {
		return fmt.Errorf("marshal info: %w", err)
	}
	codeJSON, err := json.Marshal(a.Code)
	if err != nil {
		return fmt.Errorf("marshal code: %w", err)
	}
	active := a.IsActiveAt(now)
	_, err = tx.ExecContext(ctx,
		`UPDATE alerts SET sender = ?, sent = ?, status = ?, msg_type = ?, scope = ?, code = ?,
			note = ?, refs = ?, incidents = ?, info_json = ?, max_severity = ?, latest_expires = ?,
			active = ?, fetched_at = ?, updated_at = ?
		 WHERE id = ?`,
		a.Sender, formatTime(a.Sent), string(a.Status), string(a.MsgType), string(a.Scope), string(codeJSON),
		a.Note, a.References, a.Incidents, string(infoJSON), string(a.MaxSeverity()), formatTime(a.LatestExpiry()),
		boolToInt(active), formatTime(a.FetchedAt), formatTime(now), id,
	)
	if err != nil {
		return err
	}
	// geometry from a prior insert is stale once info_json changes; the
	// caller recomputes and re-attaches it via SetAreaGeometry, so drop
	// what's there now rather than risk mismatched info/area indices.
	_, err = tx.ExecContext(ctx, `DELETE FROM alert_areas WHERE alert_id = ?`, id)
	return err
}

// SetAreaGeometry persists the validated geometry for one (info, area)
// pair: a bbox row in alert_areas for the spatial index, and the geoJson
// field of that area inside the alert's stored info. A geometry that failed normalization (geoJSON == nil) simply
// leaves that area with no spatial-index row, per spec.md §4.1's failure
// policy; this is never treated as an error by the caller.
func (s *SQLite) SetAreaGeometry(ctx context.Context, alertID string, infoIndex, areaIndex int, geoJSON *model.GeoJSON, minLat, maxLat, minLon, maxLon float64) error {
	if geoJSON == nil {
		return nil
	}
	raw, err := json.Marshal(geoJSON)
	if err != nil {
		return fmt.Errorf("marshal geojson: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alert_areas (alert_id, info_index, area_index, geo_json, bbox_min_lat, bbox_max_lat, bbox_min_lon, bbox_max_lon)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		alertID, infoIndex, areaIndex, string(raw), minLat, maxLat, minLon, maxLon,
	)
	if err != nil {
		return fmt.Errorf("insert alert area geometry: %w", err)
	}
	path := fmt.Sprintf("$[%d].area[%d].geoJson", infoIndex, areaIndex)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET info_json = json_set(info_json, ?, json(?)) WHERE id = ?`,
		path, string(raw), alertID,
	); err != nil {
		return fmt.Errorf("attach geojson to alert info: %w", err)
	}
	return nil
}

// MarkExpired flips the active bit for any alert whose latest expiry has
// passed now, optionally filtered to one source, and returns the full
// record of every alert that transitioned so callers can emit a canonical
// alert.expire event per alert (spec.md §4.6).
func (s *SQLite) MarkExpired(ctx context.Context, sourceID string, now time.Time) ([]model.Alert, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin mark expired: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	selectIDs := `SELECT id FROM alerts WHERE active = 1 AND latest_expires IS NOT NULL AND latest_expires <= ?`
	args := []any{formatTime(now)}
	if sourceID != "" {
		selectIDs += ` AND source_id = ?`
		args = append(args, sourceID)
	}
	rows, err := tx.QueryContext(ctx, selectIDs, args...)
	if err != nil {
		return nil, fmt.Errorf("select expiring alerts: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan expiring alert id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	placeholders := make([]string, len(ids))
	idArgs := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		idArgs[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	updateArgs := append([]any{formatTime(now)}, idArgs...)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE alerts SET active = 0, updated_at = ? WHERE id IN (%s)`, inClause),
		updateArgs...,
	); err != nil {
		return nil, fmt.Errorf("mark expired: %w", err)
	}

	transitionedRows, err := tx.QueryContext(ctx,
		alertSelectColumns+fmt.Sprintf(` WHERE id IN (%s)`, inClause), idArgs...)
	if err != nil {
		return nil, fmt.Errorf("select transitioned alerts: %w", err)
	}
	transitioned, err := scanAlerts(transitionedRows)
	_ = transitionedRows.Close()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mark expired: %w", err)
	}
	return transitioned, nil
}

// DeleteOldInactive purges alerts that are inactive and whose latest
// expiry and fetchedAt both predate cutoff (spec.md §4.7).
func (s *SQLite) DeleteOldInactive(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM alerts WHERE active = 0
		   AND (latest_expires IS NULL OR latest_expires <= ?)
		   AND fetched_at <= ?`,
		formatTime(cutoff), formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("delete old inactive alerts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func scanAlert(row scannable) (*model.Alert, error) {
	var a model.Alert
	var sender, status, msgType, scope, code, note, refs, incidents, infoJSON sql.NullString
	var sent, fetchedAt, created, updated sql.NullString
	var active int

	err := row.Scan(&a.ID, &a.SourceID, &a.Identifier, &sender, &sent, &status, &msgType, &scope,
		&code, &note, &refs, &incidents, &infoJSON, &active, &fetchedAt, &created, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	a.Sender = sender.String
	a.Status = model.Status(status.String)
	a.MsgType = model.MsgType(msgType.String)
	a.Scope = model.Scope(scope.String)
	a.Note = note.String
	a.References = refs.String
	a.Incidents = incidents.String
	a.Active = active == 1
	a.Sent = parseNullTime(sent)
	a.FetchedAt = parseNullTime(fetchedAt)
	a.CreatedAt = parseNullTime(created)
	a.UpdatedAt = parseNullTime(updated)

	if code.Valid && code.String != "" {
		_ = json.Unmarshal([]byte(code.String), &a.Code)
	}
	if infoJSON.Valid && infoJSON.String != "" {
		_ = json.Unmarshal([]byte(infoJSON.String), &a.Info)
	}
	return &a, nil
}

func scanAlerts(rows *sql.Rows) ([]model.Alert, error) {
	var alerts []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// sortBySeverityThenSent orders alerts most severe first, then most
// recently sent first, per findActive's contract (spec.md §4.4).
func sortBySeverityThenSent(alerts []model.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		ra, rb := a.MaxSeverity().Rank(), b.MaxSeverity().Rank()
		if ra != rb {
			return ra < rb
		}
		return a.Sent.After(b.Sent)
	})
}
