package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// PGRepo implements Store against Postgres — the "server engine" of the
// spec's persisted-state layout. Compound updates (batch open, outcome set)
// use BeginTx + row locks the way the teacher's analyses repo does.
type PGRepo struct {
	DB           *sql.DB
	ModelVersion string // expected embedding model version; mismatches refuse to read
}

func (r *PGRepo) Close() error { return r.DB.Close() }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// --- Listings ---

func (r *PGRepo) InsertListing(ctx context.Context, listing Listing) (Listing, error) {
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	techTags, err := encodeStrings(listing.TechTags)
	if err != nil {
		return Listing{}, err
	}
	const query = `
INSERT INTO listings (id, external_id, title, hiring_entity, full_text, first_seen_at, search_keyword, role_type, seniority, tech_tags, intelligence_only, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())`
	_, err = r.DB.ExecContext(ctx, query,
		listing.ID, listing.ExternalID, listing.Title, listing.HiringEntity, listing.FullText,
		listing.FirstSeenAt, listing.SearchKeyword, string(listing.RoleType), string(listing.Seniority),
		techTags, listing.IntelligenceOnly,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Listing{}, ErrUniqueConflict
		}
		return Listing{}, err
	}
	return r.GetListing(ctx, listing.ID)
}

func (r *PGRepo) scanListing(row rowScanner) (Listing, error) {
	var l Listing
	var techTags []byte
	var scores []byte
	var primary sql.NullString
	var embedding []byte
	var embeddingModel sql.NullString
	err := row.Scan(
		&l.ID, &l.ExternalID, &l.Title, &l.HiringEntity, &l.FullText, &l.FirstSeenAt,
		&l.SearchKeyword, &l.RoleType, &l.Seniority, &techTags, &scores, &primary,
		&embedding, &embeddingModel, &l.IntelligenceOnly, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, err
	}
	if l.TechTags, err = decodeStrings(techTags); err != nil {
		return Listing{}, err
	}
	if l.ArchetypeScores, err = decodeScores(scores); err != nil {
		return Listing{}, err
	}
	l.PrimaryArchetype = Archetype(primary.String)
	if vec, err := decodeVector(embedding); err != nil {
		return Listing{}, err
	} else {
		l.Embedding = Embedding{Vector: vec, ModelVersion: embeddingModel.String}
	}
	if r.ModelVersion != "" && l.Embedding.ModelVersion != "" && l.Embedding.ModelVersion != r.ModelVersion {
		return Listing{}, ErrEmbeddingVersionMismatch
	}
	return l, nil
}

const listingColumns = `id, external_id, title, hiring_entity, full_text, first_seen_at, search_keyword, role_type, seniority, tech_tags, archetype_scores, primary_archetype, embedding_vector, embedding_model, intelligence_only, created_at, updated_at`

func (r *PGRepo) GetListing(ctx context.Context, id string) (Listing, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	return r.scanListing(row)
}

func (r *PGRepo) GetListingByExternalID(ctx context.Context, externalID string) (Listing, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE external_id = $1`, externalID)
	return r.scanListing(row)
}

func (r *PGRepo) UpdateListingClassification(ctx context.Context, id string, scores map[Archetype]float64, primary Archetype, embedding Embedding, intelligenceOnly bool) error {
	scoresPayload, err := encodeScores(scores)
	if err != nil {
		return err
	}
	const query = `
UPDATE listings
SET archetype_scores = $1, primary_archetype = $2, embedding_vector = $3, embedding_model = $4,
    intelligence_only = $5, updated_at = now()
WHERE id = $6`
	res, err := r.DB.ExecContext(ctx, query, scoresPayload, string(primary), encodeVector(embedding.Vector), embedding.ModelVersion, intelligenceOnly, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) SetListingIntelligenceOnly(ctx context.Context, id string, intelligenceOnly bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE listings SET intelligence_only = $1, updated_at = now() WHERE id = $2`, intelligenceOnly, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) ListListingsInWindow(ctx context.Context, archetype Archetype, start, end time.Time) ([]Listing, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE primary_archetype = $1 AND first_seen_at >= $2 AND first_seen_at <= $3 ORDER BY first_seen_at`, string(archetype), start, end)
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

func (r *PGRepo) ListQueueCandidates(ctx context.Context) ([]Listing, error) {
	const query = `
SELECT ` + listingColumns + ` FROM listings l
WHERE l.intelligence_only = FALSE
  AND NOT EXISTS (SELECT 1 FROM applications a WHERE a.listing_id = l.id)
ORDER BY l.created_at`
	rows, err := r.DB.QueryContext(ctx, query)
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

func (r *PGRepo) ListRecentListingText(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT full_text FROM listings ORDER BY first_seen_at DESC LIMIT $1`, limit)
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

func (r *PGRepo) CreateApplication(ctx context.Context, app Application) (Application, error) {
	if existing, ok, err := r.GetApplicationByListingAndBatch(ctx, app.ListingID, app.BatchID); err != nil {
		return Application{}, err
	} else if ok {
		return existing, nil
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Application{}, err
	}
	defer tx.Rollback()

	var intelligenceOnly bool
	if err := tx.QueryRowContext(ctx, `SELECT intelligence_only FROM listings WHERE id = $1 FOR UPDATE`, app.ListingID).Scan(&intelligenceOnly); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, err
	}
	if intelligenceOnly {
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
	const insert = `
INSERT INTO applications (id, listing_id, variant_archetype, version_identifier, profile_state, batch_id, submitted_at, outcome, selection_scores, needs_review, submit_error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())`
	if _, err := tx.ExecContext(ctx, insert, app.ID, app.ListingID, string(app.VariantArchetype), app.VersionIdentifier, string(app.ProfileState), app.BatchID, app.SubmittedAt, string(app.Outcome), scores, app.NeedsReview, app.SubmitError); err != nil {
		if isUniqueViolation(err) {
			return Application{}, ErrUniqueConflict
		}
		return Application{}, err
	}
	if app.SubmitError == "" {
		if _, err := tx.ExecContext(ctx, `UPDATE batches SET applied_count = applied_count + 1 WHERE id = $1`, app.BatchID); err != nil {
			return Application{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Application{}, err
	}
	return r.GetApplication(ctx, app.ID)
}

const applicationColumns = `id, listing_id, variant_archetype, version_identifier, profile_state, batch_id, submitted_at, outcome, outcome_at, outcome_message_id, selection_scores, needs_review, submit_error, created_at, updated_at`

func (r *PGRepo) scanApplication(row rowScanner) (Application, error) {
	var a Application
	var outcomeAt sql.NullTime
	var outcomeMessageID sql.NullString
	var scores []byte
	err := row.Scan(&a.ID, &a.ListingID, &a.VariantArchetype, &a.VersionIdentifier, &a.ProfileState, &a.BatchID,
		&a.SubmittedAt, &a.Outcome, &outcomeAt, &outcomeMessageID, &scores, &a.NeedsReview, &a.SubmitError,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, err
	}
	if outcomeAt.Valid {
		a.OutcomeAt = &outcomeAt.Time
	}
	if outcomeMessageID.Valid {
		a.OutcomeMessageID = &outcomeMessageID.String
	}
	if a.SelectionScores, err = decodeScores(scores); err != nil {
		return Application{}, err
	}
	return a, nil
}

func (r *PGRepo) GetApplication(ctx context.Context, id string) (Application, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	return r.scanApplication(row)
}

func (r *PGRepo) GetApplicationByListingAndBatch(ctx context.Context, listingID, batchID string) (Application, bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE listing_id = $1 AND batch_id = $2`, listingID, batchID)
	app, err := r.scanApplication(row)
	if errors.Is(err, ErrNotFound) {
		return Application{}, false, nil
	}
	if err != nil {
		return Application{}, false, err
	}
	return app, true, nil
}

func (r *PGRepo) ListOpenApplications(ctx context.Context) ([]Application, error) {
	const query = `SELECT ` + applicationColumns + ` FROM applications WHERE outcome NOT IN ('rejected','offer','ghost') ORDER BY submitted_at`
	rows, err := r.DB.QueryContext(ctx, query)
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

func (r *PGRepo) ListApplications(ctx context.Context, limit int) ([]Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications ORDER BY submitted_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
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

func (r *PGRepo) ListApplicationsByBatch(ctx context.Context, batchID string) ([]Application, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE batch_id = $1`, batchID)
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

func (r *PGRepo) SetOutcome(ctx context.Context, applicationID string, stage OutcomeStage, at time.Time, messageID *string) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRowContext(ctx, `SELECT outcome FROM applications WHERE id = $1 FOR UPDATE`, applicationID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	if stage.Priority() <= OutcomeStage(current).Priority() {
		return false, tx.Commit()
	}
	if _, err := tx.ExecContext(ctx, `UPDATE applications SET outcome = $1, outcome_at = $2, outcome_message_id = $3, updated_at = now() WHERE id = $4`, string(stage), at, messageID, applicationID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (r *PGRepo) FunnelMetrics(ctx context.Context) (FunnelReport, error) {
	report := FunnelReport{ByArchetype: make(map[Archetype]ArchetypeFunnel), Generated: time.Now().UTC()}

	rows, err := r.DB.QueryContext(ctx, `SELECT primary_archetype, intelligence_only, count(*) FROM listings WHERE primary_archetype IS NOT NULL GROUP BY primary_archetype, intelligence_only`)
	if err != nil {
		return FunnelReport{}, err
	}
	func() {
		defer rows.Close()
		for rows.Next() {
			var archetype sql.NullString
			var intelOnly bool
			var count int
			if err := rows.Scan(&archetype, &intelOnly, &count); err != nil {
				continue
			}
			funnel := report.ByArchetype[Archetype(archetype.String)]
			if intelOnly {
				funnel.IntelligenceOnly += count
			} else {
				funnel.Queued += count
			}
			report.ByArchetype[Archetype(archetype.String)] = funnel
		}
	}()

	rows2, err := r.DB.QueryContext(ctx, `SELECT profile_state, outcome, count(*) FROM applications GROUP BY profile_state, outcome`)
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

func (r *PGRepo) InsertMessage(ctx context.Context, msg Message) (Message, bool, error) {
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
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())`
	_, err := r.DB.ExecContext(ctx, query, msg.ID, msg.ExternalID, msg.ReceivedAt, msg.SenderAddress, msg.SenderDomain, msg.Subject, msg.Body, string(msg.SourceClass), string(msg.OutcomeClass), msg.Confidence)
	if err != nil {
		if isUniqueViolation(err) {
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

const messageColumns = `id, external_id, received_at, sender_address, sender_domain, subject, body, source_class, outcome_class, confidence, matched_application, match_method, manual_review, created_at`

func (r *PGRepo) scanMessage(row rowScanner) (Message, error) {
	var m Message
	var outcomeClass sql.NullString
	var matched sql.NullString
	err := row.Scan(&m.ID, &m.ExternalID, &m.ReceivedAt, &m.SenderAddress, &m.SenderDomain, &m.Subject, &m.Body,
		&m.SourceClass, &outcomeClass, &m.Confidence, &matched, &m.MatchMethod, &m.ManualReview, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	m.OutcomeClass = OutcomeStage(outcomeClass.String)
	if matched.Valid {
		m.MatchedApplication = &matched.String
	}
	return m, nil
}

func (r *PGRepo) GetMessageByExternalID(ctx context.Context, externalID string) (Message, bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE external_id = $1`, externalID)
	m, err := r.scanMessage(row)
	if errors.Is(err, ErrNotFound) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}
	return m, true, nil
}

func (r *PGRepo) SetMessageMatch(ctx context.Context, messageID string, applicationID *string, method MatchMethod, manualReview bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE messages SET matched_application = $1, match_method = $2, manual_review = $3 WHERE id = $4`, applicationID, string(method), manualReview, messageID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) ListUnresolvedMessages(ctx context.Context) ([]Message, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE manual_review = TRUE ORDER BY received_at DESC`)
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

func (r *PGRepo) UpsertKnownSender(ctx context.Context, sender KnownSender) error {
	const query = `
INSERT INTO known_senders (address, root_domain, hiring_entity, sender_type, first_seen_at)
VALUES ($1,$2,$3,$4,now())
ON CONFLICT (address) DO UPDATE SET root_domain = EXCLUDED.root_domain, hiring_entity = EXCLUDED.hiring_entity, sender_type = EXCLUDED.sender_type`
	_, err := r.DB.ExecContext(ctx, query, sender.Address, sender.RootDomain, sender.HiringEntity, string(sender.SenderType))
	return err
}

func (r *PGRepo) GetKnownSenderByAddress(ctx context.Context, address string) (KnownSender, bool, error) {
	var s KnownSender
	err := r.DB.QueryRowContext(ctx, `SELECT address, root_domain, hiring_entity, sender_type, first_seen_at FROM known_senders WHERE address = $1`, address).
		Scan(&s.Address, &s.RootDomain, &s.HiringEntity, &s.SenderType, &s.FirstSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return KnownSender{}, false, nil
	}
	if err != nil {
		return KnownSender{}, false, err
	}
	return s, true, nil
}

func (r *PGRepo) GetKnownSenderByDomain(ctx context.Context, domain string) (KnownSender, bool, error) {
	var s KnownSender
	err := r.DB.QueryRowContext(ctx, `SELECT address, root_domain, hiring_entity, sender_type, first_seen_at FROM known_senders WHERE root_domain = $1 LIMIT 1`, domain).
		Scan(&s.Address, &s.RootDomain, &s.HiringEntity, &s.SenderType, &s.FirstSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return KnownSender{}, false, nil
	}
	if err != nil {
		return KnownSender{}, false, err
	}
	return s, true, nil
}

// --- Call log ---

func (r *PGRepo) InsertCallLog(ctx context.Context, log CallLog) (CallLog, error) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	const query = `
INSERT INTO call_logs (id, phone_number, hiring_entity, title, outcome, notes, call_date, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,now())`
	_, err := r.DB.ExecContext(ctx, query, log.ID, log.PhoneNumber, log.HiringEntity, log.Title, string(log.Outcome), log.Notes, log.CallDate)
	if err != nil {
		return CallLog{}, err
	}
	return log, nil
}

func (r *PGRepo) SetCallLogMatch(ctx context.Context, callLogID string, applicationID *string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE call_logs SET matched_application = $1 WHERE id = $2`, applicationID, callLogID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Résumé variants ---

func (r *PGRepo) UpsertResumeVariant(ctx context.Context, variant ResumeVariant) error {
	const query = `
INSERT INTO resume_variants (archetype, version_store_path, version_identifier, embedding_vector, embedding_model, alignment, last_rewrite_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,now())
ON CONFLICT (archetype) DO UPDATE SET version_store_path = EXCLUDED.version_store_path, version_identifier = EXCLUDED.version_identifier,
    embedding_vector = EXCLUDED.embedding_vector, embedding_model = EXCLUDED.embedding_model, alignment = EXCLUDED.alignment,
    last_rewrite_at = EXCLUDED.last_rewrite_at, updated_at = now()`
	_, err := r.DB.ExecContext(ctx, query, string(variant.Archetype), variant.VersionStorePath, variant.VersionIdentifier,
		encodeVector(variant.Embedding.Vector), variant.Embedding.ModelVersion, variant.Alignment, variant.LastRewriteAt)
	return err
}

func (r *PGRepo) scanVariant(row rowScanner) (ResumeVariant, error) {
	var v ResumeVariant
	var embedding []byte
	var embeddingModel sql.NullString
	var lastRewrite sql.NullTime
	err := row.Scan(&v.Archetype, &v.VersionStorePath, &v.VersionIdentifier, &embedding, &embeddingModel, &v.Alignment, &lastRewrite, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ResumeVariant{}, ErrNotFound
		}
		return ResumeVariant{}, err
	}
	vec, err := decodeVector(embedding)
	if err != nil {
		return ResumeVariant{}, err
	}
	v.Embedding = Embedding{Vector: vec, ModelVersion: embeddingModel.String}
	if lastRewrite.Valid {
		v.LastRewriteAt = &lastRewrite.Time
	}
	return v, nil
}

const variantColumns = `archetype, version_store_path, version_identifier, embedding_vector, embedding_model, alignment, last_rewrite_at, updated_at`

func (r *PGRepo) GetResumeVariant(ctx context.Context, archetype Archetype) (ResumeVariant, bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+variantColumns+` FROM resume_variants WHERE archetype = $1`, string(archetype))
	v, err := r.scanVariant(row)
	if errors.Is(err, ErrNotFound) {
		return ResumeVariant{}, false, nil
	}
	if err != nil {
		return ResumeVariant{}, false, err
	}
	return v, true, nil
}

func (r *PGRepo) ListResumeVariants(ctx context.Context) ([]ResumeVariant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+variantColumns+` FROM resume_variants ORDER BY archetype`)
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

func (r *PGRepo) UpsertMarketCentroid(ctx context.Context, centroid MarketCentroid) (MarketCentroid, error) {
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
	const query = `
INSERT INTO market_centroids (id, archetype, window_start, window_end, centroid_vector, embedding_model, jd_count, shift_from_previous, gained_terms, lost_terms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
ON CONFLICT (archetype, window_start) DO UPDATE SET
    window_end = EXCLUDED.window_end, centroid_vector = EXCLUDED.centroid_vector, embedding_model = EXCLUDED.embedding_model,
    jd_count = EXCLUDED.jd_count, shift_from_previous = EXCLUDED.shift_from_previous,
    gained_terms = EXCLUDED.gained_terms, lost_terms = EXCLUDED.lost_terms
RETURNING id, created_at`
	err = r.DB.QueryRowContext(ctx, query, centroid.ID, string(centroid.Archetype), centroid.WindowStart, centroid.WindowEnd,
		encodeVector(centroid.Centroid.Vector), centroid.Centroid.ModelVersion, centroid.JDCount, centroid.ShiftFromPrevious, gained, lost).
		Scan(&centroid.ID, &centroid.CreatedAt)
	return centroid, err
}

const centroidColumns = `id, archetype, window_start, window_end, centroid_vector, embedding_model, jd_count, shift_from_previous, gained_terms, lost_terms, created_at`

func (r *PGRepo) scanCentroid(row rowScanner) (MarketCentroid, error) {
	var c MarketCentroid
	var embedding []byte
	var embeddingModel sql.NullString
	var shift sql.NullFloat64
	var gained, lost []byte
	err := row.Scan(&c.ID, &c.Archetype, &c.WindowStart, &c.WindowEnd, &embedding, &embeddingModel, &c.JDCount, &shift, &gained, &lost, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MarketCentroid{}, ErrNotFound
		}
		return MarketCentroid{}, err
	}
	vec, err := decodeVector(embedding)
	if err != nil {
		return MarketCentroid{}, err
	}
	c.Centroid = Embedding{Vector: vec, ModelVersion: embeddingModel.String}
	if shift.Valid {
		c.ShiftFromPrevious = &shift.Float64
	}
	if c.GainedTerms, err = decodeStrings(gained); err != nil {
		return MarketCentroid{}, err
	}
	if c.LostTerms, err = decodeStrings(lost); err != nil {
		return MarketCentroid{}, err
	}
	return c, nil
}

func (r *PGRepo) GetLatestCentroid(ctx context.Context, archetype Archetype) (MarketCentroid, bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+centroidColumns+` FROM market_centroids WHERE archetype = $1 ORDER BY window_start DESC LIMIT 1`, string(archetype))
	c, err := r.scanCentroid(row)
	if errors.Is(err, ErrNotFound) {
		return MarketCentroid{}, false, nil
	}
	if err != nil {
		return MarketCentroid{}, false, err
	}
	return c, true, nil
}

func (r *PGRepo) GetPreviousCentroid(ctx context.Context, archetype Archetype, before time.Time) (MarketCentroid, bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+centroidColumns+` FROM market_centroids WHERE archetype = $1 AND window_start < $2 ORDER BY window_start DESC LIMIT 1`, string(archetype), before)
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

func (r *PGRepo) CreateDriftAlert(ctx context.Context, alert DriftAlert) (DriftAlert, error) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	details, err := encodeDetails(alert.Details)
	if err != nil {
		return DriftAlert{}, err
	}
	const query = `
INSERT INTO drift_alerts (id, archetype, kind, metric_value, threshold, details, created_at)
VALUES ($1,$2,$3,$4,$5,$6,now())
RETURNING created_at`
	err = r.DB.QueryRowContext(ctx, query, alert.ID, string(alert.Archetype), string(alert.Kind), alert.MetricValue, alert.Threshold, details).Scan(&alert.CreatedAt)
	return alert, err
}

const alertColumns = `id, archetype, kind, metric_value, threshold, details, acknowledged, created_at`

func (r *PGRepo) scanAlert(row rowScanner) (DriftAlert, error) {
	var a DriftAlert
	var details []byte
	err := row.Scan(&a.ID, &a.Archetype, &a.Kind, &a.MetricValue, &a.Threshold, &details, &a.Acknowledged, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DriftAlert{}, ErrNotFound
		}
		return DriftAlert{}, err
	}
	if a.Details, err = decodeDetails(details); err != nil {
		return DriftAlert{}, err
	}
	return a, nil
}

func (r *PGRepo) GetLatestUnacknowledgedAlert(ctx context.Context, archetype Archetype, kind AlertKind) (DriftAlert, bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM drift_alerts WHERE archetype = $1 AND kind = $2 AND acknowledged = FALSE ORDER BY created_at DESC LIMIT 1`, string(archetype), string(kind))
	a, err := r.scanAlert(row)
	if errors.Is(err, ErrNotFound) {
		return DriftAlert{}, false, nil
	}
	if err != nil {
		return DriftAlert{}, false, err
	}
	return a, true, nil
}

func (r *PGRepo) AcknowledgeAlert(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE drift_alerts SET acknowledged = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) ListUnacknowledgedAlerts(ctx context.Context) ([]DriftAlert, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+alertColumns+` FROM drift_alerts WHERE acknowledged = FALSE ORDER BY created_at DESC`)
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

func (r *PGRepo) OpenBatch(ctx context.Context, archetype Archetype) (Batch, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Batch{}, err
	}
	defer tx.Rollback()

	var current sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT batch_id FROM batch_lock WHERE id = 1 FOR UPDATE`).Scan(&current); err != nil {
		return Batch{}, err
	}
	if current.Valid {
		return Batch{}, ErrBatchAlreadyOpen
	}

	batch := Batch{ID: uuid.NewString(), Archetype: archetype, OpenedAt: time.Now().UTC()}
	if _, err := tx.ExecContext(ctx, `INSERT INTO batches (id, archetype, opened_at) VALUES ($1,$2,$3)`, batch.ID, string(archetype), batch.OpenedAt); err != nil {
		return Batch{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE batch_lock SET batch_id = $1 WHERE id = 1 AND batch_id IS NULL`, batch.ID); err != nil {
		return Batch{}, err
	}
	return batch, tx.Commit()
}

func (r *PGRepo) scanBatch(row rowScanner) (Batch, error) {
	var b Batch
	var closedAt sql.NullTime
	err := row.Scan(&b.ID, &b.Archetype, &b.OpenedAt, &closedAt, &b.AppliedCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Batch{}, ErrNotFound
		}
		return Batch{}, err
	}
	if closedAt.Valid {
		b.ClosedAt = &closedAt.Time
	}
	return b, nil
}

func (r *PGRepo) CloseBatch(ctx context.Context, batchID string) (Batch, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Batch{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE batches SET closed_at = now() WHERE id = $1`, batchID); err != nil {
		return Batch{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE batch_lock SET batch_id = NULL WHERE id = 1 AND batch_id = $1`, batchID); err != nil {
		return Batch{}, err
	}
	row := tx.QueryRowContext(ctx, `SELECT id, archetype, opened_at, closed_at, applied_count FROM batches WHERE id = $1`, batchID)
	batch, err := r.scanBatch(row)
	if err != nil {
		return Batch{}, err
	}
	return batch, tx.Commit()
}

func (r *PGRepo) GetOpenBatch(ctx context.Context) (Batch, bool, error) {
	var batchID sql.NullString
	if err := r.DB.QueryRowContext(ctx, `SELECT batch_id FROM batch_lock WHERE id = 1`).Scan(&batchID); err != nil {
		return Batch{}, false, err
	}
	if !batchID.Valid {
		return Batch{}, false, nil
	}
	row := r.DB.QueryRowContext(ctx, `SELECT id, archetype, opened_at, closed_at, applied_count FROM batches WHERE id = $1`, batchID.String)
	batch, err := r.scanBatch(row)
	if err != nil {
		return Batch{}, false, err
	}
	return batch, true, nil
}

func (r *PGRepo) ListQueueSummary(ctx context.Context) ([]QueueSummary, error) {
	const query = `
SELECT l.primary_archetype, count(*),
       avg((l.archetype_scores ->> l.primary_archetype)::double precision)
FROM listings l
WHERE l.intelligence_only = FALSE
  AND NOT EXISTS (SELECT 1 FROM applications a WHERE a.listing_id = l.id)
GROUP BY l.primary_archetype`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QueueSummary
	for rows.Next() {
		var s QueueSummary
		if err := rows.Scan(&s.Archetype, &s.Count, &s.AverageTopScore); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- Watermarks ---

func (r *PGRepo) GetWatermark(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM sync_watermarks WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *PGRepo) SetWatermark(ctx context.Context, key, value string) error {
	const query = `
INSERT INTO sync_watermarks (key, value, updated_at) VALUES ($1,$2,now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	_, err := r.DB.ExecContext(ctx, query, key, value)
	return err
}

// rowScanner is implemented by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

var _ Store = (*PGRepo)(nil)
