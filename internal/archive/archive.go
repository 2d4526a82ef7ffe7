// Package archive mirrors review logs into SQLite so that statistics and
// daily-load questions (how many reviews today, how many new cards today)
// are cheap queries instead of document scans. Writes are best effort; the
// persisted document stays authoritative.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the sqlite driver

	"github.com/conorfennell/revault/internal/domain"
)

// DB wraps the archive database connection.
type DB struct {
	conn *sql.DB
}

// Open creates the connection and ensures the schema is in place.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connecting to archive: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("applying archive schema: %w", err)
	}
	return &DB{conn: db}, nil
}

// Close closes the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Append records one review event.
func (db *DB) Append(log *domain.ReviewLog) error {
	_, err := db.conn.Exec(`
		INSERT INTO reviews (id, card_path, queue_id, rating, prev_state, session_id, reviewed_at, undone)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, log.ID, log.CardPath, log.QueueID, int(log.Rating), int(log.State), log.SessionID, log.Review, boolToInt(log.Undone))
	if err != nil {
		return fmt.Errorf("appending review %s: %w", log.ID, err)
	}
	return nil
}

// MarkUndone flags a review as rolled back. Undone reviews drop out of every
// statistic but stay in the table.
func (db *DB) MarkUndone(id string) error {
	if _, err := db.conn.Exec(`UPDATE reviews SET undone = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("marking review %s undone: %w", id, err)
	}
	return nil
}

// RepointPath moves review history from one card path to another, used when
// an orphan is relinked.
func (db *DB) RepointPath(oldPath, newPath string) error {
	if _, err := db.conn.Exec(`UPDATE reviews SET card_path = ? WHERE card_path = ?`, newPath, oldPath); err != nil {
		return fmt.Errorf("repointing reviews %s -> %s: %w", oldPath, newPath, err)
	}
	return nil
}

// CountReviewsOn counts non-undone reviews in a queue on the calendar day
// containing the given instant.
func (db *DB) CountReviewsOn(queueID string, day time.Time) (int, error) {
	start, end := dayBounds(day)
	var n int
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM reviews
		WHERE queue_id = ? AND undone = 0 AND reviewed_at >= ? AND reviewed_at < ?
	`, queueID, start, end).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting reviews for queue %s: %w", queueID, err)
	}
	return n, nil
}

// CountNewOn counts non-undone first reviews (cards that were still New) in a
// queue on the calendar day containing the given instant.
func (db *DB) CountNewOn(queueID string, day time.Time) (int, error) {
	start, end := dayBounds(day)
	var n int
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM reviews
		WHERE queue_id = ? AND undone = 0 AND prev_state = ? AND reviewed_at >= ? AND reviewed_at < ?
	`, queueID, int(domain.StateNew), start, end).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting new reviews for queue %s: %w", queueID, err)
	}
	return n, nil
}

// DayCount is the number of reviews on one calendar day.
type DayCount struct {
	Day   string // YYYY-MM-DD
	Count int
}

// ReviewsPerDay returns per-day review counts for a queue since the given
// instant, newest last.
func (db *DB) ReviewsPerDay(queueID string, since time.Time) ([]DayCount, error) {
	rows, err := db.conn.Query(`
		SELECT date(reviewed_at), COUNT(*) FROM reviews
		WHERE queue_id = ? AND undone = 0 AND reviewed_at >= ?
		GROUP BY date(reviewed_at)
		ORDER BY date(reviewed_at)
	`, queueID, since)
	if err != nil {
		return nil, fmt.Errorf("review counts for queue %s: %w", queueID, err)
	}
	defer rows.Close()

	var counts []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("scanning review count: %w", err)
		}
		counts = append(counts, dc)
	}
	return counts, rows.Err()
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
