package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations_sqlite/*.sql
var sqliteMigrationsFS embed.FS

// SQLiteRepo is the embedded, single-file "local engine" variant of Store —
// one writer, no external dependencies, meant for a single operator running
// the pipeline off their own machine. Single-connection + WAL trades
// concurrent writers for zero operational footprint.
type SQLiteRepo struct {
	db           *sql.DB
	modelVersion string
}

// OpenSQLite opens (or creates) a SQLite database at path and applies any
// pending migrations. Pass ":memory:" for an ephemeral store used in tests.
func OpenSQLite(path, modelVersion string) (*SQLiteRepo, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	r := &SQLiteRepo{db: db, modelVersion: modelVersion}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepo) Close() error { return r.db.Close() }

func (r *SQLiteRepo) migrate() error {
	if _, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := sqliteMigrationsFS.ReadDir("migrations_sqlite")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := r.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := sqliteMigrationsFS.ReadFile("migrations_sqlite/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := r.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", version, nowRFC3339()); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Listings ---

func (r *SQLiteRepo) InsertListing(ctx context.Context, listing Listing) (Listing, error) {
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	techTags, err := encodeStrings(listing.TechTags)
	if err != nil {
		return Listing{}, err
	}
	now := nowRFC3339()
	const query = `
INSERT INTO listings (id, external_id, title, hiring_entity, full_text, first_seen_at, search_keyword, role_type, seniority, tech_tags, intelligence_only, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`
	_, err = r.db.ExecContext(ctx, query,
		listing.ID, listing.ExternalID, listing.Title, listing.HiringEntity, listing.FullText,
		listing.FirstSeenAt.UTC().Format(time.RFC3339Nano), listing.SearchKeyword, string(listing.RoleType), string(listing.Seniority),
		techTags, boolToInt(listing.IntelligenceOnly), now, now,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return Listing{}, ErrUniqueConflict
		}
		return Listing{}, err
	}
	return r.GetListing(ctx, listing.ID)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const sqliteListingColumns = `id, external_id, title, hiring_entity, full_text, first_seen_at, search_keyword, role_type, seniority, tech_tags, archetype_scores, primary_archetype, embedding_vector, embedding_model, intelligence_only, created_at, updated_at`

func (r *SQLiteRepo) scanListing(row rowScanner) (Listing, error) {
	var l Listing
	var firstSeen, created, updated string
	var techTags []byte
	var scores sql.NullString
	var primary sql.NullString
	var embedding []byte
	var embeddingModel sql.NullString
	var intelOnly int
	err := row.Scan(&l.ID, &l.ExternalID, &l.Title, &l.HiringEntity, &l.FullText, &firstSeen,
		&l.SearchKeyword, &l.RoleType, &l.Seniority, &techTags, &scores, &primary,
		&embedding, &embeddingModel, &intelOnly, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, err
	}
	l.FirstSeenAt, l.CreatedAt, l.UpdatedAt = parseTime(firstSeen), parseTime(created), parseTime(updated)
	l.IntelligenceOnly = intelOnly != 0
	if l.TechTags, err = decodeStrings(techTags); err != nil {
		return Listing{}, err
	}
	if l.ArchetypeScores, err = decodeScores([]byte(scores.String)); err != nil {
		return Listing{}, err
	}
	l.PrimaryArchetype = Archetype(primary.String)
	vec, err := decodeVector(embedding)
	if err != nil {
		return Listing{}, err
	}
	l.Embedding = Embedding{Vector: vec, ModelVersion: embeddingModel.String}
	if r.modelVersion != "" && l.Embedding.ModelVersion != "" && l.Embedding.ModelVersion != r.modelVersion {
		return Listing{}, ErrEmbeddingVersionMismatch
	}
	return l, nil
}

func (r *SQLiteRepo) GetListing(ctx context.Context, id string) (Listing, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteListingColumns+` FROM listings WHERE id = ?`, id)
	return r.scanListing(row)
}

func (r *SQLiteRepo) GetListingByExternalID(ctx context.Context, externalID string) (Listing, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteListingColumns+` FROM listings WHERE external_id = ?`, externalID)
	return r.scanListing(row)
}

func (r *SQLiteRepo) UpdateListingClassification(ctx context.Context, id string, scores map[Archetype]float64, primary Archetype, embedding Embedding, intelligenceOnly bool) error {
	scoresPayload, err := encodeScores(scores)
	if err != nil {
		return err
	}
	const query = `
UPDATE listings
SET archetype_scores = ?, primary_archetype = ?, embedding_vector = ?, embedding_model = ?, intelligence_only = ?, updated_at = ?
WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, string(scoresPayload), string(primary), encodeVector(embedding.Vector), embedding.ModelVersion, boolToInt(intelligenceOnly), nowRFC3339(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepo) SetListingIntelligenceOnly(ctx context.Context, id string, intelligenceOnly bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE listings SET intelligence_only = ?, updated_at = ? WHERE id = ?`, boolToInt(intelligenceOnly), nowRFC3339(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepo) ListListingsInWindow(ctx context.Context, archetype Archetype, start, end time.Time) ([]Listing, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteListingColumns+` FROM listings WHERE primary_archetype = ? AND first_seen_at >= ? AND first_seen_at <= ? ORDER BY first_seen_at`,
		string(archetype), start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Listing
	for rows.Next() {
		l, err := r.scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) ListQueueCandidates(ctx context.Context) ([]Listing, error) {
	const query = `
SELECT ` + sqliteListingColumns + ` FROM listings l
WHERE l.intelligence_only = 0
  AND NOT EXISTS (SELECT 1 FROM applications a WHERE a.listing_id = l.id)
ORDER BY l.created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Listing
	for rows.Next() {
		l, err := r.scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) ListRecentListingText(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `SELECT full_text FROM listings ORDER BY first_seen_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, rows.Err()
}

// --- Applications ---

func (r *SQLiteRepo) CreateApplication(ctx context.Context, app Application) (Application, error) {
	if existing, ok, err := r.GetApplicationByListingAndBatch(ctx, app.ListingID, app.BatchID); err != nil {
		return Application{}, err
	} else if ok {
		return existing, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Application{}, err
	}
	defer tx.Rollback()

	var intelOnly int
	if err := tx.QueryRowContext(ctx, `SELECT intelligence_only FROM listings WHERE id = ?`, app.ListingID).Scan(&intelOnly); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, err
	}
	if intelOnly != 0 {
		return Application{}, ErrIntelligenceOnlyListing
	}

	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Outcome == "" {
		app.Outcome = OutcomeSubmitted
	}
	scores, err := encodeScores(app.SelectionScores)
	if err != nil {
		return Application{}, err
	}
	now := nowRFC3339()
	const insert = `
INSERT INTO applications (id, listing_id, variant_archetype, version_identifier, profile_state, batch_id, submitted_at, outcome, selection_scores, needs_review, submit_error, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`
	if _, err := tx.ExecContext(ctx, insert, app.ID, app.ListingID, string(app.VariantArchetype), app.VersionIdentifier, string(app.ProfileState), app.BatchID,
		app.SubmittedAt.UTC().Format(time.RFC3339Nano), string(app.Outcome), string(scores), boolToInt(app.NeedsReview), app.SubmitError, now, now); err != nil {
		if isSQLiteUniqueViolation(err) {
			return Application{}, ErrUniqueConflict
		}
		return Application{}, err
	}
	if app.SubmitError == "" {
		if _, err := tx.ExecContext(ctx, `UPDATE batches SET applied_count = applied_count + 1 WHERE id = ?`, app.BatchID); err != nil {
			return Application{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Application{}, err
	}
	return r.GetApplication(ctx, app.ID)
}

const sqliteApplicationColumns = `id, listing_id, variant_archetype, version_identifier, profile_state, batch_id, submitted_at, outcome, outcome_at, outcome_message_id, selection_scores, needs_review, submit_error, created_at, updated_at`

func (r *SQLiteRepo) scanApplication(row rowScanner) (Application, error) {
	var a Application
	var submitted, created, updated string
	var outcomeAt, outcomeMessageID sql.NullString
	var scores sql.NullString
	var needsReview int
	err := row.Scan(&a.ID, &a.ListingID, &a.VariantArchetype, &a.VersionIdentifier, &a.ProfileState, &a.BatchID,
		&submitted, &a.Outcome, &outcomeAt, &outcomeMessageID, &scores, &needsReview, &a.SubmitError, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, err
	}
	a.SubmittedAt, a.CreatedAt, a.UpdatedAt = parseTime(submitted), parseTime(created), parseTime(updated)
	a.NeedsReview = needsReview != 0
	if outcomeAt.Valid {
		t := parseTime(outcomeAt.String)
		a.OutcomeAt = &t
	}
	if outcomeMessageID.Valid {
		a.OutcomeMessageID = &outcomeMessageID.String
	}
	if a.SelectionScores, err = decodeScores([]byte(scores.String)); err != nil {
		return Application{}, err
	}
	return a, nil
}

func (r *SQLiteRepo) GetApplication(ctx context.Context, id string) (Application, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteApplicationColumns+` FROM applications WHERE id = ?`, id)
	return r.scanApplication(row)
}

func (r *SQLiteRepo) GetApplicationByListingAndBatch(ctx context.Context, listingID, batchID string) (Application, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteApplicationColumns+` FROM applications WHERE listing_id = ? AND batch_id = ?`, listingID, batchID)
	app, err := r.scanApplication(row)
	if errors.Is(err, ErrNotFound) {
		return Application{}, false, nil
	}
	if err != nil {
		return Application{}, false, err
	}
	return app, true, nil
}

func (r *SQLiteRepo) ListOpenApplications(ctx context.Context) ([]Application, error) {
	const query = `SELECT ` + sqliteApplicationColumns + ` FROM applications WHERE outcome NOT IN ('rejected','offer','ghost') ORDER BY submitted_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Application
	for rows.Next() {
		a, err := r.scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) ListApplications(ctx context.Context, limit int) ([]Application, error) {
	query := `SELECT ` + sqliteApplicationColumns + ` FROM applications ORDER BY submitted_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Application
	for rows.Next() {
		a, err := r.scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) ListApplicationsByBatch(ctx context.Context, batchID string) ([]Application, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteApplicationColumns+` FROM applications WHERE batch_id = ?`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Application
	for rows.Next() {
		a, err := r.scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) SetOutcome(ctx context.Context, applicationID string, stage OutcomeStage, at time.Time, messageID *string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT outcome FROM applications WHERE id = ?`, applicationID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	if stage.Priority() <= OutcomeStage(current).Priority() {
		return false, tx.Commit()
	}
	if _, err := tx.ExecContext(ctx, `UPDATE applications SET outcome = ?, outcome_at = ?, outcome_message_id = ?, updated_at = ? WHERE id = ?`,
		string(stage), at.UTC().Format(time.RFC3339Nano), messageID, nowRFC3339(), applicationID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (r *SQLiteRepo) FunnelMetrics(ctx context.Context) (FunnelReport, error) {
	report := FunnelReport{ByArchetype: make(map[Archetype]ArchetypeFunnel), Generated: time.Now().UTC()}

	rows, err := r.db.QueryContext(ctx, `SELECT primary_archetype, intelligence_only, count(*) FROM listings WHERE primary_archetype IS NOT NULL GROUP BY primary_archetype, intelligence_only`)
	if err != nil {
		return FunnelReport{}, err
	}
	func() {
		defer rows.Close()
		for rows.Next() {
			var archetype sql.NullString
			var intelOnly int
			var count int
			if err := rows.Scan(&archetype, &intelOnly, &count); err != nil {
				continue
			}
			funnel := report.ByArchetype[Archetype(archetype.String)]
			if intelOnly != 0 {
				funnel.IntelligenceOnly += count
			} else {
				funnel.Queued += count
			}
			report.ByArchetype[Archetype(archetype.String)] = funnel
		}
	}()

	rows2, err := r.db.QueryContext(ctx, `SELECT profile_state, outcome, count(*) FROM applications GROUP BY profile_state, outcome`)
	if err != nil {
		return FunnelReport{}, err
	}
	defer rows2.Close()
	for rows2.Next() {
		var archetype, outcome string
		var count int
		if err := rows2.Scan(&archetype, &outcome, &count); err != nil {
			return FunnelReport{}, err
		}
		funnel := report.ByArchetype[Archetype(archetype)]
		funnel.Submitted += count
		switch OutcomeStage(outcome) {
		case OutcomeInterview:
			funnel.Interviewed += count
		case OutcomeRejected:
			funnel.Rejected += count
		case OutcomeOffer:
			funnel.Offers += count
		}
		report.ByArchetype[Archetype(archetype)] = funnel
	}
	return report, rows2.Err()
}

// --- Messages ---

func (r *SQLiteRepo) InsertMessage(ctx context.Context, msg Message) (Message, bool, error) {
	if existing, ok, err := r.GetMessageByExternalID(ctx, msg.ExternalID); err != nil {
		return Message{}, false, err
	} else if ok {
		return existing, false, nil
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	const query = `
INSERT INTO messages (id, external_id, received_at, sender_address, sender_domain, subject, body, source_class, outcome_class, confidence, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`
	_, err := r.db.ExecContext(ctx, query, msg.ID, msg.ExternalID, msg.ReceivedAt.UTC().Format(time.RFC3339Nano),
		msg.SenderAddress, msg.SenderDomain, msg.Subject, msg.Body, string(msg.SourceClass), string(msg.OutcomeClass), msg.Confidence, nowRFC3339())
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			existing, ok, ferr := r.GetMessageByExternalID(ctx, msg.ExternalID)
			if ferr != nil {
				return Message{}, false, ferr
			}
			if ok {
				return existing, false, nil
			}
		}
		return Message{}, false, err
	}
	created, _, err := r.GetMessageByExternalID(ctx, msg.ExternalID)
	return created, true, err
}

const sqliteMessageColumns = `id, external_id, received_at, sender_address, sender_domain, subject, body, source_class, outcome_class, confidence, matched_application, match_method, manual_review, created_at`

func (r *SQLiteRepo) scanMessage(row rowScanner) (Message, error) {
	var m Message
	var received, created string
	var outcomeClass sql.NullString
	var matched sql.NullString
	var manualReview int
	err := row.Scan(&m.ID, &m.ExternalID, &received, &m.SenderAddress, &m.SenderDomain, &m.Subject, &m.Body,
		&m.SourceClass, &outcomeClass, &m.Confidence, &matched, &m.MatchMethod, &manualReview, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	m.ReceivedAt, m.CreatedAt = parseTime(received), parseTime(created)
	m.ManualReview = manualReview != 0
	m.OutcomeClass = OutcomeStage(outcomeClass.String)
	if matched.Valid {
		m.MatchedApplication = &matched.String
	}
	return m, nil
}

func (r *SQLiteRepo) GetMessageByExternalID(ctx context.Context, externalID string) (Message, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteMessageColumns+` FROM messages WHERE external_id = ?`, externalID)
	m, err := r.scanMessage(row)
	if errors.Is(err, ErrNotFound) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}
	return m, true, nil
}

func (r *SQLiteRepo) SetMessageMatch(ctx context.Context, messageID string, applicationID *string, method MatchMethod, manualReview bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET matched_application = ?, match_method = ?, manual_review = ? WHERE id = ?`,
		applicationID, string(method), boolToInt(manualReview), messageID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepo) ListUnresolvedMessages(ctx context.Context) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteMessageColumns+` FROM messages WHERE manual_review = 1 ORDER BY received_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		m, err := r.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Known senders ---

func (r *SQLiteRepo) UpsertKnownSender(ctx context.Context, sender KnownSender) error {
	const query = `
INSERT INTO known_senders (address, root_domain, hiring_entity, sender_type, first_seen_at)
VALUES (?,?,?,?,?)
ON CONFLICT(address) DO UPDATE SET root_domain = excluded.root_domain, hiring_entity = excluded.hiring_entity, sender_type = excluded.sender_type`
	_, err := r.db.ExecContext(ctx, query, sender.Address, sender.RootDomain, sender.HiringEntity, string(sender.SenderType), nowRFC3339())
	return err
}

func (r *SQLiteRepo) GetKnownSenderByAddress(ctx context.Context, address string) (KnownSender, bool, error) {
	var s KnownSender
	var firstSeen string
	err := r.db.QueryRowContext(ctx, `SELECT address, root_domain, hiring_entity, sender_type, first_seen_at FROM known_senders WHERE address = ?`, address).
		Scan(&s.Address, &s.RootDomain, &s.HiringEntity, &s.SenderType, &firstSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return KnownSender{}, false, nil
	}
	if err != nil {
		return KnownSender{}, false, err
	}
	s.FirstSeenAt = parseTime(firstSeen)
	return s, true, nil
}

func (r *SQLiteRepo) GetKnownSenderByDomain(ctx context.Context, domain string) (KnownSender, bool, error) {
	var s KnownSender
	var firstSeen string
	err := r.db.QueryRowContext(ctx, `SELECT address, root_domain, hiring_entity, sender_type, first_seen_at FROM known_senders WHERE root_domain = ? LIMIT 1`, domain).
		Scan(&s.Address, &s.RootDomain, &s.HiringEntity, &s.SenderType, &firstSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return KnownSender{}, false, nil
	}
	if err != nil {
		return KnownSender{}, false, err
	}
	s.FirstSeenAt = parseTime(firstSeen)
	return s, true, nil
}

// --- Call log ---

func (r *SQLiteRepo) InsertCallLog(ctx context.Context, log CallLog) (CallLog, error) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	const query = `
INSERT INTO call_logs (id, phone_number, hiring_entity, title, outcome, notes, call_date, created_at)
VALUES (?,?,?,?,?,?,?,?)`
	_, err := r.db.ExecContext(ctx, query, log.ID, log.PhoneNumber, log.HiringEntity, log.Title, string(log.Outcome), log.Notes,
		log.CallDate.UTC().Format(time.RFC3339Nano), nowRFC3339())
	if err != nil {
		return CallLog{}, err
	}
	return log, nil
}

func (r *SQLiteRepo) SetCallLogMatch(ctx context.Context, callLogID string, applicationID *string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE call_logs SET matched_application = ? WHERE id = ?`, applicationID, callLogID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Résumé variants ---

func (r *SQLiteRepo) UpsertResumeVariant(ctx context.Context, variant ResumeVariant) error {
	var lastRewrite any
	if variant.LastRewriteAt != nil {
		lastRewrite = variant.LastRewriteAt.UTC().Format(time.RFC3339Nano)
	}
	const query = `
INSERT INTO resume_variants (archetype, version_store_path, version_identifier, embedding_vector, embedding_model, alignment, last_rewrite_at, updated_at)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(archetype) DO UPDATE SET version_store_path = excluded.version_store_path, version_identifier = excluded.version_identifier,
    embedding_vector = excluded.embedding_vector, embedding_model = excluded.embedding_model, alignment = excluded.alignment,
    last_rewrite_at = excluded.last_rewrite_at, updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query, string(variant.Archetype), variant.VersionStorePath, variant.VersionIdentifier,
		encodeVector(variant.Embedding.Vector), variant.Embedding.ModelVersion, variant.Alignment, lastRewrite, nowRFC3339())
	return err
}

const sqliteVariantColumns = `archetype, version_store_path, version_identifier, embedding_vector, embedding_model, alignment, last_rewrite_at, updated_at`

func (r *SQLiteRepo) scanVariant(row rowScanner) (ResumeVariant, error) {
	var v ResumeVariant
	var embedding []byte
	var embeddingModel sql.NullString
	var lastRewrite sql.NullString
	var updated string
	err := row.Scan(&v.Archetype, &v.VersionStorePath, &v.VersionIdentifier, &embedding, &embeddingModel, &v.Alignment, &lastRewrite, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ResumeVariant{}, ErrNotFound
		}
		return ResumeVariant{}, err
	}
	v.UpdatedAt = parseTime(updated)
	vec, err := decodeVector(embedding)
	if err != nil {
		return ResumeVariant{}, err
	}
	v.Embedding = Embedding{Vector: vec, ModelVersion: embeddingModel.String}
	if lastRewrite.Valid {
		t := parseTime(lastRewrite.String)
		v.LastRewriteAt = &t
	}
	return v, nil
}

func (r *SQLiteRepo) GetResumeVariant(ctx context.Context, archetype Archetype) (ResumeVariant, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteVariantColumns+` FROM resume_variants WHERE archetype = ?`, string(archetype))
	v, err := r.scanVariant(row)
	if errors.Is(err, ErrNotFound) {
		return ResumeVariant{}, false, nil
	}
	if err != nil {
		return ResumeVariant{}, false, err
	}
	return v, true, nil
}

func (r *SQLiteRepo) ListResumeVariants(ctx context.Context) ([]ResumeVariant, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteVariantColumns+` FROM resume_variants ORDER BY archetype`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ResumeVariant
	for rows.Next() {
		v, err := r.scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- Market centroids ---

func (r *SQLiteRepo) UpsertMarketCentroid(ctx context.Context, centroid MarketCentroid) (MarketCentroid, error) {
	if centroid.ID == "" {
		centroid.ID = uuid.NewString()
	}
	gained, err := encodeStrings(centroid.GainedTerms)
	if err != nil {
		return MarketCentroid{}, err
	}
	lost, err := encodeStrings(centroid.LostTerms)
	if err != nil {
		return MarketCentroid{}, err
	}
	var shift any
	if centroid.ShiftFromPrevious != nil {
		shift = *centroid.ShiftFromPrevious
	}
	now := nowRFC3339()
	const query = `
INSERT INTO market_centroids (id, archetype, window_start, window_end, centroid_vector, embedding_model, jd_count, shift_from_previous, gained_terms, lost_terms, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(archetype, window_start) DO UPDATE SET
    window_end = excluded.window_end, centroid_vector = excluded.centroid_vector, embedding_model = excluded.embedding_model,
    jd_count = excluded.jd_count, shift_from_previous = excluded.shift_from_previous,
    gained_terms = excluded.gained_terms, lost_terms = excluded.lost_terms`
	_, err = r.db.ExecContext(ctx, query, centroid.ID, string(centroid.Archetype), centroid.WindowStart.UTC().Format(time.RFC3339Nano),
		centroid.WindowEnd.UTC().Format(time.RFC3339Nano), encodeVector(centroid.Centroid.Vector), centroid.Centroid.ModelVersion,
		centroid.JDCount, shift, string(gained), string(lost), now)
	if err != nil {
		return MarketCentroid{}, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteCentroidColumns+` FROM market_centroids WHERE archetype = ? AND window_start = ?`,
		string(centroid.Archetype), centroid.WindowStart.UTC().Format(time.RFC3339Nano))
	return r.scanCentroid(row)
}

const sqliteCentroidColumns = `id, archetype, window_start, window_end, centroid_vector, embedding_model, jd_count, shift_from_previous, gained_terms, lost_terms, created_at`

func (r *SQLiteRepo) scanCentroid(row rowScanner) (MarketCentroid, error) {
	var c MarketCentroid
	var windowStart, windowEnd, created string
	var embedding []byte
	var embeddingModel sql.NullString
	var shift sql.NullFloat64
	var gained, lost sql.NullString
	err := row.Scan(&c.ID, &c.Archetype, &windowStart, &windowEnd, &embedding, &embeddingModel, &c.JDCount, &shift, &gained, &lost, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MarketCentroid{}, ErrNotFound
		}
		return MarketCentroid{}, err
	}
	c.WindowStart, c.WindowEnd, c.CreatedAt = parseTime(windowStart), parseTime(windowEnd), parseTime(created)
	vec, err := decodeVector(embedding)
	if err != nil {
		return MarketCentroid{}, err
	}
	c.Centroid = Embedding{Vector: vec, ModelVersion: embeddingModel.String}
	if shift.Valid {
		c.ShiftFromPrevious = &shift.Float64
	}
	if c.GainedTerms, err = decodeStrings([]byte(gained.String)); err != nil {
		return MarketCentroid{}, err
	}
	if c.LostTerms, err = decodeStrings([]byte(lost.String)); err != nil {
		return MarketCentroid{}, err
	}
	return c, nil
}

func (r *SQLiteRepo) GetLatestCentroid(ctx context.Context, archetype Archetype) (MarketCentroid, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteCentroidColumns+` FROM market_centroids WHERE archetype = ? ORDER BY window_start DESC LIMIT 1`, string(archetype))
	c, err := r.scanCentroid(row)
	if errors.Is(err, ErrNotFound) {
		return MarketCentroid{}, false, nil
	}
	if err != nil {
		return MarketCentroid{}, false, err
	}
	return c, true, nil
}

func (r *SQLiteRepo) GetPreviousCentroid(ctx context.Context, archetype Archetype, before time.Time) (MarketCentroid, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteCentroidColumns+` FROM market_centroids WHERE archetype = ? AND window_start < ? ORDER BY window_start DESC LIMIT 1`,
		string(archetype), before.UTC().Format(time.RFC3339Nano))
	c, err := r.scanCentroid(row)
	if errors.Is(err, ErrNotFound) {
		return MarketCentroid{}, false, nil
	}
	if err != nil {
		return MarketCentroid{}, false, err
	}
	return c, true, nil
}

// --- Drift alerts ---

func (r *SQLiteRepo) CreateDriftAlert(ctx context.Context, alert DriftAlert) (DriftAlert, error) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	details, err := encodeDetails(alert.Details)
	if err != nil {
		return DriftAlert{}, err
	}
	now := nowRFC3339()
	const query = `
INSERT INTO drift_alerts (id, archetype, kind, metric_value, threshold, details, created_at)
VALUES (?,?,?,?,?,?,?)`
	if _, err := r.db.ExecContext(ctx, query, alert.ID, string(alert.Archetype), string(alert.Kind), alert.MetricValue, alert.Threshold, string(details), now); err != nil {
		return DriftAlert{}, err
	}
	alert.CreatedAt = parseTime(now)
	return alert, nil
}

const sqliteAlertColumns = `id, archetype, kind, metric_value, threshold, details, acknowledged, created_at`

func (r *SQLiteRepo) scanAlert(row rowScanner) (DriftAlert, error) {
	var a DriftAlert
	var details string
	var acknowledged int
	var created string
	err := row.Scan(&a.ID, &a.Archetype, &a.Kind, &a.MetricValue, &a.Threshold, &details, &acknowledged, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DriftAlert{}, ErrNotFound
		}
		return DriftAlert{}, err
	}
	a.Acknowledged = acknowledged != 0
	a.CreatedAt = parseTime(created)
	if a.Details, err = decodeDetails([]byte(details)); err != nil {
		return DriftAlert{}, err
	}
	return a, nil
}

func (r *SQLiteRepo) GetLatestUnacknowledgedAlert(ctx context.Context, archetype Archetype, kind AlertKind) (DriftAlert, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteAlertColumns+` FROM drift_alerts WHERE archetype = ? AND kind = ? AND acknowledged = 0 ORDER BY created_at DESC LIMIT 1`,
		string(archetype), string(kind))
	a, err := r.scanAlert(row)
	if errors.Is(err, ErrNotFound) {
		return DriftAlert{}, false, nil
	}
	if err != nil {
		return DriftAlert{}, false, err
	}
	return a, true, nil
}

func (r *SQLiteRepo) AcknowledgeAlert(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE drift_alerts SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepo) ListUnacknowledgedAlerts(ctx context.Context) ([]DriftAlert, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteAlertColumns+` FROM drift_alerts WHERE acknowledged = 0 ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DriftAlert
	for rows.Next() {
		a, err := r.scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Batches ---
//
// SQLite serializes all writes through a single connection (SetMaxOpenConns(1)),
// so the batch_lock row doubles as the invariant guard without needing FOR UPDATE.

func (r *SQLiteRepo) OpenBatch(ctx context.Context, archetype Archetype) (Batch, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Batch{}, err
	}
	defer tx.Rollback()

	var current sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT batch_id FROM batch_lock WHERE id = 1`).Scan(&current); err != nil {
		return Batch{}, err
	}
	if current.Valid {
		return Batch{}, ErrBatchAlreadyOpen
	}

	batch := Batch{ID: uuid.NewString(), Archetype: archetype, OpenedAt: time.Now().UTC()}
	if _, err := tx.ExecContext(ctx, `INSERT INTO batches (id, archetype, opened_at, applied_count) VALUES (?,?,?,0)`, batch.ID, string(archetype), batch.OpenedAt.Format(time.RFC3339Nano)); err != nil {
		return Batch{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE batch_lock SET batch_id = ? WHERE id = 1 AND batch_id IS NULL`, batch.ID); err != nil {
		return Batch{}, err
	}
	return batch, tx.Commit()
}

func (r *SQLiteRepo) scanBatch(row rowScanner) (Batch, error) {
	var b Batch
	var opened string
	var closed sql.NullString
	err := row.Scan(&b.ID, &b.Archetype, &opened, &closed, &b.AppliedCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Batch{}, ErrNotFound
		}
		return Batch{}, err
	}
	b.OpenedAt = parseTime(opened)
	if closed.Valid {
		t := parseTime(closed.String)
		b.ClosedAt = &t
	}
	return b, nil
}

func (r *SQLiteRepo) CloseBatch(ctx context.Context, batchID string) (Batch, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Batch{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE batches SET closed_at = ? WHERE id = ?`, nowRFC3339(), batchID); err != nil {
		return Batch{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE batch_lock SET batch_id = NULL WHERE id = 1 AND batch_id = ?`, batchID); err != nil {
		return Batch{}, err
	}
	row := tx.QueryRowContext(ctx, `SELECT id, archetype, opened_at, closed_at, applied_count FROM batches WHERE id = ?`, batchID)
	batch, err := r.scanBatch(row)
	if err != nil {
		return Batch{}, err
	}
	return batch, tx.Commit()
}

func (r *SQLiteRepo) GetOpenBatch(ctx context.Context) (Batch, bool, error) {
	var batchID sql.NullString
	if err := r.db.QueryRowContext(ctx, `SELECT batch_id FROM batch_lock WHERE id = 1`).Scan(&batchID); err != nil {
		return Batch{}, false, err
	}
	if !batchID.Valid {
		return Batch{}, false, nil
	}
	row := r.db.QueryRowContext(ctx, `SELECT id, archetype, opened_at, closed_at, applied_count FROM batches WHERE id = ?`, batchID.String)
	batch, err := r.scanBatch(row)
	if err != nil {
		return Batch{}, false, err
	}
	return batch, true, nil
}

func (r *SQLiteRepo) ListQueueSummary(ctx context.Context) ([]QueueSummary, error) {
	candidates, err := r.ListQueueCandidates(ctx)
	if err != nil {
		return nil, err
	}
	totals := map[Archetype]float64{}
	counts := map[Archetype]int{}
	for _, l := range candidates {
		totals[l.PrimaryArchetype] += l.ArchetypeScores[l.PrimaryArchetype]
		counts[l.PrimaryArchetype]++
	}
	var out []QueueSummary
	for archetype, count := range counts {
		out = append(out, QueueSummary{Archetype: archetype, Count: count, AverageTopScore: totals[archetype] / float64(count)})
	}
	return out, nil
}

// --- Watermarks ---

func (r *SQLiteRepo) GetWatermark(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM sync_watermarks WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *SQLiteRepo) SetWatermark(ctx context.Context, key, value string) error {
	const query = `
INSERT INTO sync_watermarks (key, value, updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query, key, value, nowRFC3339())
	return err
}

var _ Store = (*SQLiteRepo)(nil)
