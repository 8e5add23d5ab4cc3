package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ticketview/ticketview/pkg/protocol"
)

// SQLiteStore implements TicketStore and CalendarStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database and runs migrations.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id            TEXT PRIMARY KEY,
			subject       TEXT NOT NULL DEFAULT '',
			categories    TEXT NOT NULL DEFAULT '[]',
			date_created  TEXT,
			hours_actual  REAL NOT NULL DEFAULT 0,
			last_activity TEXT,
			client        TEXT NOT NULL DEFAULT '',
			assignee      TEXT NOT NULL DEFAULT '',
			reason        TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS calendar_events (
			feed      TEXT NOT NULL,
			uid       TEXT NOT NULL,
			subject   TEXT NOT NULL DEFAULT '',
			starts_at TEXT NOT NULL,
			ends_at   TEXT NOT NULL,
			location  TEXT NOT NULL DEFAULT '',
			body      TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (feed, uid, starts_at)
		);

		CREATE TABLE IF NOT EXISTS calendar_items (
			id         TEXT PRIMARY KEY,
			organizer  TEXT NOT NULL,
			subject    TEXT NOT NULL,
			starts_at  TEXT NOT NULL,
			ends_at    TEXT NOT NULL,
			location   TEXT NOT NULL DEFAULT '',
			body       TEXT NOT NULL DEFAULT '',
			attendees  TEXT NOT NULL DEFAULT '[]',
			send_mode  TEXT NOT NULL,
			queued_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_client ON tickets(client);
		CREATE INDEX IF NOT EXISTS idx_tickets_assignee ON tickets(assignee);
		CREATE INDEX IF NOT EXISTS idx_events_start ON calendar_events(starts_at);
		CREATE INDEX IF NOT EXISTS idx_items_organizer ON calendar_items(organizer);
	`)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Times are stored as fixed-width UTC strings so that text ordering matches
// time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// nullTime stores the zero time as NULL so missing timestamps survive a
// round trip.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func (s *SQLiteStore) SaveTicket(t protocol.TicketRecord) error {
	categories, _ := json.Marshal(t.Categories)
	_, err := s.db.Exec(`
		INSERT INTO tickets (id, subject, categories, date_created, hours_actual, last_activity, client, assignee, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject=excluded.subject, categories=excluded.categories, date_created=excluded.date_created,
			hours_actual=excluded.hours_actual, last_activity=excluded.last_activity,
			client=excluded.client, assignee=excluded.assignee, reason=excluded.reason
	`, t.ID, t.Subject, string(categories), nullTime(t.DateCreated), t.HoursActual,
		nullTime(t.LastActivity), t.ClientCode, t.AssigneeCode, t.Reason)
	if err != nil {
		return fmt.Errorf("store: save ticket: %w", err)
	}
	return nil
}

const ticketColumns = "id, subject, categories, date_created, hours_actual, last_activity, client, assignee, reason"

func (s *SQLiteStore) Ticket(id string) (protocol.TicketRecord, error) {
	row := s.db.QueryRow("SELECT "+ticketColumns+" FROM tickets WHERE id = ?", id)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return protocol.TicketRecord{}, fmt.Errorf("ticket %q: %w", id, ErrNotFound)
		}
		return protocol.TicketRecord{}, fmt.Errorf("store: ticket: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Tickets(q protocol.TicketQuery) ([]protocol.TicketRecord, error) {
	col, ok := matchColumn(q.Field)
	if !ok {
		return nil, fmt.Errorf("store: query: unknown field %q", q.Field)
	}

	query := "SELECT " + ticketColumns + " FROM tickets WHERE " + col + " = ?"
	args := []any{q.Value}
	if len(q.Reasons) > 0 {
		query += " AND reason IN (?" + strings.Repeat(", ?", len(q.Reasons)-1) + ")"
		for _, r := range q.Reasons {
			args = append(args, r)
		}
	}
	query += " ORDER BY " + orderClause(q.OrderBy)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var tickets []protocol.TicketRecord
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("store: query scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *SQLiteStore) DeleteTicket(id string) error {
	result, err := s.db.Exec(`DELETE FROM tickets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete ticket: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ticket %q: %w", id, ErrNotFound)
	}
	return nil
}

func matchColumn(f protocol.TicketField) (string, bool) {
	switch f {
	case protocol.FieldAssignee:
		return "assignee", true
	case protocol.FieldClient:
		return "client", true
	default:
		return "", false
	}
}

// orderClause translates order keys to SQL. Unknown keys are ignored and
// id is always the final tiebreaker.
func orderClause(keys []string) string {
	var parts []string
	for _, k := range keys {
		desc := strings.HasPrefix(k, "-")
		col := sanitizeSort(strings.TrimPrefix(k, "-"))
		if col == "" {
			continue
		}
		if desc {
			parts = append(parts, col+" DESC")
		} else {
			parts = append(parts, col+" ASC")
		}
	}
	return strings.Join(append(parts, "id ASC"), ", ")
}

func sanitizeSort(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client", "assignee", "date_created", "last_activity", "subject":
		return strings.ToLower(strings.TrimSpace(s))
	default:
		return ""
	}
}

func (s *SQLiteStore) ReplaceEvents(feed string, events []protocol.CalendarEventRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: replace events: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM calendar_events WHERE feed = ?`, feed); err != nil {
		return fmt.Errorf("store: replace events: %w", err)
	}
	for _, e := range events {
		_, err := tx.Exec(`
			INSERT OR REPLACE INTO calendar_events (feed, uid, subject, starts_at, ends_at, location, body)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, feed, e.UID, e.Subject, formatTime(e.Start), formatTime(e.End), e.Location, e.Body)
		if err != nil {
			return fmt.Errorf("store: insert event %q: %w", e.UID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: replace events: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentEvents(until time.Time, limit int) ([]protocol.CalendarEventRecord, error) {
	query := `SELECT uid, subject, starts_at, ends_at, location, body FROM calendar_events
		WHERE starts_at <= ? ORDER BY starts_at DESC, uid ASC`
	args := []any{formatTime(until)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: recent events: %w", err)
	}
	defer rows.Close()

	var events []protocol.CalendarEventRecord
	for rows.Next() {
		var e protocol.CalendarEventRecord
		var start, end string
		if err := rows.Scan(&e.UID, &e.Subject, &start, &end, &e.Location, &e.Body); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		e.Start = parseTime(start)
		e.End = parseTime(end)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) SaveCalendarItem(req protocol.CalendarItemRequest) error {
	attendees, _ := json.Marshal(req.RequiredAttendees)
	_, err := s.db.Exec(`
		INSERT INTO calendar_items (id, organizer, subject, starts_at, ends_at, location, body, attendees, send_mode, queued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.Organizer, req.Subject, formatTime(req.Start), formatTime(req.End),
		req.Location, req.Body, string(attendees), string(req.SendMode), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("store: save calendar item: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CalendarItems(organizer string) ([]protocol.CalendarItemRequest, error) {
	rows, err := s.db.Query(`
		SELECT id, organizer, subject, starts_at, ends_at, location, body, attendees, send_mode
		FROM calendar_items WHERE organizer = ? ORDER BY queued_at DESC, id ASC
	`, organizer)
	if err != nil {
		return nil, fmt.Errorf("store: calendar items: %w", err)
	}
	defer rows.Close()

	var items []protocol.CalendarItemRequest
	for rows.Next() {
		var r protocol.CalendarItemRequest
		var start, end, attendees, mode string
		if err := rows.Scan(&r.ID, &r.Organizer, &r.Subject, &start, &end, &r.Location, &r.Body, &attendees, &mode); err != nil {
			return nil, fmt.Errorf("store: scan calendar item: %w", err)
		}
		r.Start = parseTime(start)
		r.End = parseTime(end)
		r.SendMode = protocol.SendMode(mode)
		json.Unmarshal([]byte(attendees), &r.RequiredAttendees)
		items = append(items, r)
	}
	return items, rows.Err()
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(s scannable) (protocol.TicketRecord, error) {
	var t protocol.TicketRecord
	var categoriesJSON string
	var dateCreated, lastActivity sql.NullString

	err := s.Scan(&t.ID, &t.Subject, &categoriesJSON, &dateCreated, &t.HoursActual,
		&lastActivity, &t.ClientCode, &t.AssigneeCode, &t.Reason)
	if err != nil {
		return t, err
	}

	json.Unmarshal([]byte(categoriesJSON), &t.Categories)
	if dateCreated.Valid {
		t.DateCreated = parseTime(dateCreated.String)
	}
	if lastActivity.Valid {
		t.LastActivity = parseTime(lastActivity.String)
	}
	return t, nil
}
