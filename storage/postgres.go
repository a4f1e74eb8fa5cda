package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"idx_portal/models"
)

//go:embed schema.sql
var postgresSchema string

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Migrate creates any missing tables and indexes
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// =============================================================================
// Saved searches
// =============================================================================

const searchColumns = `id, client_id, search_name, search_description, criteria,
	notification_frequency, notification_time, notification_days,
	admin_shadow_notification, is_active, last_run_at, last_match_count, created_at, updated_at`

func scanSearch(row pgx.Row) (*models.SavedSearch, error) {
	var (
		s        models.SavedSearch
		criteria []byte
		freq     string
		at       *string
		days     []string
	)
	err := row.Scan(
		&s.ID, &s.ClientID, &s.Name, &s.Description, &criteria,
		&freq, &at, &days,
		&s.AdminShadowNotification, &s.IsActive, &s.LastRunAt, &s.LastMatchCount, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &s.Criteria); err != nil {
			return nil, fmt.Errorf("search %s criteria: %w", s.ID, err)
		}
	}

	timeOfDay := ""
	if at != nil {
		timeOfDay = *at
	}
	schedule, err := models.NewSchedule(models.Frequency(freq), timeOfDay, days)
	if err != nil {
		// Leave the schedule unset so the search is never due; it still loads for editing.
		slog.Warn("saved search has invalid schedule", "search_id", s.ID, "error", err)
	}
	s.Schedule = schedule

	return &s, nil
}

func scanSearches(rows pgx.Rows) ([]models.SavedSearch, error) {
	defer rows.Close()

	var out []models.SavedSearch
	for rows.Next() {
		s, err := scanSearch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scheduleColumns(s models.Schedule) (string, *string, []string) {
	freq, at, days := models.ScheduleFields(s)
	if at == "" {
		return string(freq), nil, days
	}
	return string(freq), &at, days
}

func (s *PostgresStore) GetActiveSearches(ctx context.Context) ([]models.SavedSearch, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+searchColumns+` FROM saved_searches WHERE is_active = TRUE`)
	if err != nil {
		return nil, err
	}
	return scanSearches(rows)
}

func (s *PostgresStore) GetSearchByID(ctx context.Context, id uuid.UUID) (*models.SavedSearch, error) {
	search, err := scanSearch(s.pool.QueryRow(ctx, `SELECT `+searchColumns+` FROM saved_searches WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return search, nil
}

func (s *PostgresStore) ListSearchesByClient(ctx context.Context, clientID uuid.UUID) ([]models.SavedSearch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+searchColumns+` FROM saved_searches
		WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, err
	}
	return scanSearches(rows)
}

func (s *PostgresStore) ListAllSearches(ctx context.Context) ([]models.SavedSearch, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+searchColumns+` FROM saved_searches ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return scanSearches(rows)
}

func (s *PostgresStore) CreateSavedSearch(ctx context.Context, search *models.SavedSearch) error {
	criteria, err := json.Marshal(search.Criteria)
	if err != nil {
		return err
	}
	freq, at, days := scheduleColumns(search.Schedule)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO saved_searches (
			id, client_id, search_name, search_description, criteria,
			notification_frequency, notification_time, notification_days,
			admin_shadow_notification, is_active, last_run_at, last_match_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		search.ID, search.ClientID, search.Name, search.Description, criteria,
		freq, at, days,
		search.AdminShadowNotification, search.IsActive, search.LastRunAt, search.LastMatchCount,
		search.CreatedAt, search.UpdatedAt,
	)
	return err
}

// UpdateSavedSearch writes the client-editable fields; run metrics are owned by the runner
func (s *PostgresStore) UpdateSavedSearch(ctx context.Context, search *models.SavedSearch) error {
	query, args, err := updateSearchStatement(search)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, query, args...)
	return err
}

// updateSearchStatement builds the UPDATE for search. A nil Schedule means the stored
// row's schedule could not be parsed, so its columns are left as they are.
func updateSearchStatement(search *models.SavedSearch) (string, []any, error) {
	criteria, err := json.Marshal(search.Criteria)
	if err != nil {
		return "", nil, err
	}
	args := []any{
		search.ID, search.Name, search.Description, criteria,
		search.AdminShadowNotification, search.IsActive, search.UpdatedAt,
	}
	query := `
		UPDATE saved_searches SET
			search_name = $2, search_description = $3, criteria = $4,
			admin_shadow_notification = $5, is_active = $6, updated_at = $7`
	if search.Schedule != nil {
		freq, at, days := scheduleColumns(search.Schedule)
		args = append(args, freq, at, days)
		query += `,
			notification_frequency = $8, notification_time = $9, notification_days = $10`
	}
	return query + `
		WHERE id = $1`, args, nil
}

func (s *PostgresStore) DeleteSavedSearch(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM saved_searches WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpdateSearchRunMetrics(ctx context.Context, id uuid.UUID, matchCount int, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE saved_searches SET last_run_at = $2, last_match_count = $3, updated_at = NOW()
		WHERE id = $1`, id, at, matchCount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("saved search %s not found", id)
	}
	return nil
}

// =============================================================================
// Clients
// =============================================================================

const clientColumns = `id, name, email, phone, status, expiry_date,
	notification_email, notification_sms, created_at`

func scanClient(row pgx.Row) (*models.Client, error) {
	var (
		c      models.Client
		expiry *time.Time
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.Status, &expiry,
		&c.NotificationPreferences.Email, &c.NotificationPreferences.SMS, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiry != nil {
		c.ExpiryDate = *expiry
	}
	return &c, nil
}

func scanClients(rows pgx.Rows) ([]models.Client, error) {
	defer rows.Close()

	var out []models.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetClientByID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	c, err := scanClient(s.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) ExpireClients(ctx context.Context, now time.Time) ([]models.Client, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE clients SET status = 'expired'
		WHERE status = 'active' AND expiry_date IS NOT NULL AND expiry_date < $1
		RETURNING `+clientColumns, now)
	if err != nil {
		return nil, err
	}
	return scanClients(rows)
}

func (s *PostgresStore) ClientsExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Client, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+clientColumns+` FROM clients
		WHERE status = 'active' AND expiry_date > $1 AND expiry_date <= $2
		ORDER BY expiry_date`, from, to)
	if err != nil {
		return nil, err
	}
	return scanClients(rows)
}

func (s *PostgresStore) RecordClientActivity(ctx context.Context, a *models.ClientActivity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO client_activity (client_id, action, details, created_at)
		VALUES ($1, $2, $3, $4)`,
		a.ClientID, a.Action, a.Details, a.CreatedAt)
	return err
}

// =============================================================================
// Listings
// =============================================================================

const listingColumns = `id, mls_number, listing_brokerage, address, city, province, postal_code,
	price, property_type, bedrooms, bathrooms, square_feet, description, photo_url,
	latitude, longitude, status, listing_date, last_updated, permit_idx`

// FindNewMatching pushes the criteria down into SQL. Only eligible listings are returned,
// newest first.
func (s *PostgresStore) FindNewMatching(ctx context.Context, c models.SearchCriteria, since *time.Time, limit int) ([]models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE status = 'Active' AND permit_idx = TRUE`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if len(c.Cities) > 0 {
		query += " AND LOWER(city) = ANY(" + arg(lowerAll(c.Cities)) + ")"
	}
	if c.MinPrice != nil {
		query += " AND price >= " + arg(*c.MinPrice)
	}
	if c.MaxPrice != nil {
		query += " AND price <= " + arg(*c.MaxPrice)
	}
	if len(c.PropertyTypes) > 0 {
		query += " AND LOWER(property_type) = ANY(" + arg(lowerAll(c.PropertyTypes)) + ")"
	}
	if c.MinBedrooms != nil {
		query += " AND bedrooms >= " + arg(*c.MinBedrooms)
	}
	if c.MinBathrooms != nil {
		query += " AND bathrooms >= " + arg(*c.MinBathrooms)
	}
	if c.MinSquareFeet != nil {
		query += " AND square_feet >= " + arg(*c.MinSquareFeet)
	}
	if c.MaxSquareFeet != nil {
		query += " AND square_feet <= " + arg(*c.MaxSquareFeet)
	}
	if since != nil {
		query += " AND listing_date > " + arg(*since)
	}
	query += " ORDER BY listing_date DESC LIMIT " + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	if err := row.Scan(
		&l.ID, &l.MLSNumber, &l.Brokerage, &l.Address, &l.City, &l.Province, &l.PostalCode,
		&l.Price, &l.PropertyType, &l.Bedrooms, &l.Bathrooms, &l.SquareFeet, &l.Description, &l.PhotoURL,
		&l.Latitude, &l.Longitude, &l.Status, &l.ListingDate, &l.LastUpdated, &l.PermitIDX,
	); err != nil {
		return nil, err
	}
	return &l, nil
}

// GetListing looks a listing up by MLS number regardless of status
func (s *PostgresStore) GetListing(ctx context.Context, mlsNumber string) (*models.Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE mls_number = $1`, mlsNumber))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// ReplaceListings swaps the whole listing table for a fresh feed in one transaction
func (s *PostgresStore) ReplaceListings(ctx context.Context, listings []models.Listing) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM listings`); err != nil {
		return 0, fmt.Errorf("clear listings: %w", err)
	}

	seen := make(map[string]bool, len(listings))
	rows := make([][]interface{}, 0, len(listings))
	for i := range listings {
		l := &listings[i]
		if l.MLSNumber == "" || seen[l.MLSNumber] {
			continue
		}
		seen[l.MLSNumber] = true
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		rows = append(rows, []interface{}{
			l.ID, l.MLSNumber, l.Brokerage, l.Address, l.City, l.Province, l.PostalCode,
			l.Price, l.PropertyType, l.Bedrooms, l.Bathrooms, l.SquareFeet, l.Description, l.PhotoURL,
			l.Latitude, l.Longitude, string(l.Status), l.ListingDate, l.LastUpdated, l.PermitIDX,
		})
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"listings"}, []string{
		"id", "mls_number", "listing_brokerage", "address", "city", "province", "postal_code",
		"price", "property_type", "bedrooms", "bathrooms", "square_feet", "description", "photo_url",
		"latitude", "longitude", "status", "listing_date", "last_updated", "permit_idx",
	}, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy listings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(n), nil
}

// =============================================================================
// Notification log
// =============================================================================

func (s *PostgresStore) AppendNotificationLog(ctx context.Context, e *models.NotificationLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO search_notifications_log (
			id, saved_search_id, client_id, properties_sent, property_count,
			client_notified, admin_notified, email_subject, digest_key, notification_type, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.SearchID, e.ClientID, e.MLSNumbers, e.Count,
		e.ClientNotified, e.AdminNotified, e.Subject, e.DigestKey, string(e.Type), e.CreatedAt,
	)
	return err
}

func (s *PostgresStore) ListNotificationLog(ctx context.Context, searchID uuid.UUID, limit int) ([]models.NotificationLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, saved_search_id, client_id, properties_sent, property_count,
			client_notified, admin_notified, email_subject, digest_key, notification_type, created_at
		FROM search_notifications_log
		WHERE saved_search_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, searchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.NotificationLogEntry
	for rows.Next() {
		var e models.NotificationLogEntry
		if err := rows.Scan(
			&e.ID, &e.SearchID, &e.ClientID, &e.MLSNumbers, &e.Count,
			&e.ClientNotified, &e.AdminNotified, &e.Subject, &e.DigestKey, &e.Type, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// Preferences
// =============================================================================

const preferenceColumns = `id, client_id, property_mls_number, property_address, property_data,
	category, client_notes, view_count, first_viewed_at, last_viewed_at, created_at, updated_at`

func scanPreference(row pgx.Row) (*models.PropertyPreference, error) {
	var (
		p        models.PropertyPreference
		snapshot []byte
	)
	err := row.Scan(
		&p.ID, &p.ClientID, &p.MLSNumber, &p.Address, &snapshot,
		&p.Category, &p.Notes, &p.ViewCount, &p.FirstViewed, &p.LastViewed, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &p.Snapshot); err != nil {
			return nil, fmt.Errorf("preference %s snapshot: %w", p.ID, err)
		}
	}
	return &p, nil
}

func (s *PostgresStore) GetPreference(ctx context.Context, clientID uuid.UUID, mlsNumber string) (*models.PropertyPreference, error) {
	p, err := scanPreference(s.pool.QueryRow(ctx, `
		SELECT `+preferenceColumns+` FROM property_favorites
		WHERE client_id = $1 AND property_mls_number = $2`, clientID, mlsNumber))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) SavePreference(ctx context.Context, p *models.PropertyPreference) error {
	snapshot, err := json.Marshal(p.Snapshot)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO property_favorites (`+preferenceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (client_id, property_mls_number) DO UPDATE SET
			property_address = EXCLUDED.property_address,
			property_data = EXCLUDED.property_data,
			category = EXCLUDED.category,
			client_notes = EXCLUDED.client_notes,
			view_count = EXCLUDED.view_count,
			last_viewed_at = EXCLUDED.last_viewed_at,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.ClientID, p.MLSNumber, p.Address, snapshot,
		string(p.Category), p.Notes, p.ViewCount, p.FirstViewed, p.LastViewed, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) ListPreferences(ctx context.Context, clientID uuid.UUID) ([]models.PropertyPreference, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+preferenceColumns+` FROM property_favorites
		WHERE client_id = $1 ORDER BY last_viewed_at DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PropertyPreference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeletePreference(ctx context.Context, clientID uuid.UUID, mlsNumber string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM property_favorites WHERE client_id = $1 AND property_mls_number = $2`,
		clientID, mlsNumber)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	return out
}
