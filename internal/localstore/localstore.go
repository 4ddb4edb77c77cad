// Package localstore is the durable archive for citizen waste reports.
// Reports deliberately do not live in postgres next to pickup requests:
// the portal keeps them in a file-backed store with whole-list overwrite
// semantics, read on load and rewritten on every add/delete.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Hocaabinn/sampah-keren-sub001/internal/model"
)

var ErrNotFound = errors.New("report not found")

// submitted_at is compared as text by ListAll, so it must be stored
// fixed-width: always UTC, always nine fractional digits. RFC3339Nano
// trims trailing zeros and breaks the lexicographic order.
const sortableTimeLayout = "2006-01-02T15:04:05.000000000Z"

type Archive struct {
	mu sync.Mutex
	db *sql.DB
}

func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS waste_reports (
			user_id      TEXT NOT NULL,
			report_id    TEXT NOT NULL,
			position     INTEGER NOT NULL,
			submitted_at TEXT NOT NULL,
			payload      TEXT NOT NULL,
			PRIMARY KEY (user_id, report_id)
		);
		CREATE TABLE IF NOT EXISTS report_photos (
			report_id    TEXT NOT NULL,
			idx          INTEGER NOT NULL,
			file_name    TEXT NOT NULL,
			content_type TEXT NOT NULL,
			size         INTEGER NOT NULL,
			data         BLOB NOT NULL,
			thumbnail    BLOB,
			PRIMARY KEY (report_id, idx)
		);
	`); err != nil {
		db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// List returns the user's reports in stored order, most recent first.
func (a *Archive) List(ctx context.Context, userID string) ([]model.WasteReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.list(ctx, userID)
}

func (a *Archive) list(ctx context.Context, userID string) ([]model.WasteReport, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT payload FROM waste_reports
		WHERE user_id = ?
		ORDER BY position ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]model.WasteReport, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var record model.WasteReport
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, err
		}
		reports = append(reports, record)
	}
	return reports, rows.Err()
}

// Add prepends the record and rewrites the user's full list. Photo bytes
// go to their own table; the archived payload carries metadata only.
func (a *Archive) Add(ctx context.Context, record model.WasteReport) ([]model.WasteReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current, err := a.list(ctx, record.UserID)
	if err != nil {
		return nil, err
	}
	updated := append([]model.WasteReport{record}, current...)

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	for idx, photo := range record.Photos {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO report_photos (report_id, idx, file_name, content_type, size, data, thumbnail)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, record.ID, idx, photo.FileName, photo.ContentType, photo.Size, photo.Data, photo.Thumbnail); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := saveList(ctx, tx, record.UserID, updated); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the report and its photos in one action. Deleting an id
// that is not present leaves the list unchanged and reports removed=false.
func (a *Archive) Delete(ctx context.Context, userID, reportID string) ([]model.WasteReport, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current, err := a.list(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	updated := make([]model.WasteReport, 0, len(current))
	removed := false
	for _, record := range current {
		if record.ID == reportID {
			removed = true
			continue
		}
		updated = append(updated, record)
	}
	if !removed {
		return current, false, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM report_photos WHERE report_id = ?`, reportID); err != nil {
		tx.Rollback()
		return nil, false, err
	}
	if err := saveList(ctx, tx, userID, updated); err != nil {
		tx.Rollback()
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

func (a *Archive) Get(ctx context.Context, userID, reportID string) (model.WasteReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var payload string
	err := a.db.QueryRowContext(ctx, `
		SELECT payload FROM waste_reports WHERE user_id = ? AND report_id = ?
	`, userID, reportID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WasteReport{}, ErrNotFound
	}
	if err != nil {
		return model.WasteReport{}, err
	}
	var record model.WasteReport
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return model.WasteReport{}, err
	}
	return record, nil
}

func (a *Archive) GetPhoto(ctx context.Context, reportID string, idx int) (model.Photo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var photo model.Photo
	err := a.db.QueryRowContext(ctx, `
		SELECT file_name, content_type, size, data, thumbnail
		FROM report_photos
		WHERE report_id = ? AND idx = ?
	`, reportID, idx).Scan(&photo.FileName, &photo.ContentType, &photo.Size, &photo.Data, &photo.Thumbnail)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Photo{}, ErrNotFound
	}
	return photo, err
}

// ListAll returns every archived report, newest submission first. Admin
// surface only.
func (a *Archive) ListAll(ctx context.Context) ([]model.WasteReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.QueryContext(ctx, `
		SELECT payload FROM waste_reports
		ORDER BY submitted_at DESC, position ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]model.WasteReport, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var record model.WasteReport
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, err
		}
		reports = append(reports, record)
	}
	return reports, rows.Err()
}

// UpdateStatus sets the report status and appends to its status log.
// Reports are otherwise read-only once archived.
func (a *Archive) UpdateStatus(ctx context.Context, reportID string, status model.ReportStatus, note string, at time.Time) (model.WasteReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var userID, payload string
	err := a.db.QueryRowContext(ctx, `
		SELECT user_id, payload FROM waste_reports WHERE report_id = ?
	`, reportID).Scan(&userID, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WasteReport{}, ErrNotFound
	}
	if err != nil {
		return model.WasteReport{}, err
	}

	var record model.WasteReport
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return model.WasteReport{}, err
	}
	record.Status = status
	record.StatusLog = append(record.StatusLog, model.StatusUpdate{
		Status:    status,
		Note:      note,
		UpdatedAt: at.UTC(),
	})

	encoded, err := json.Marshal(record)
	if err != nil {
		return model.WasteReport{}, err
	}
	if _, err := a.db.ExecContext(ctx, `
		UPDATE waste_reports SET payload = ? WHERE report_id = ?
	`, string(encoded), reportID); err != nil {
		return model.WasteReport{}, err
	}
	return record, nil
}

func saveList(ctx context.Context, tx *sql.Tx, userID string, reports []model.WasteReport) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM waste_reports WHERE user_id = ?`, userID); err != nil {
		return err
	}
	for position, record := range reports {
		encoded, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO waste_reports (user_id, report_id, position, submitted_at, payload)
			VALUES (?, ?, ?, ?, ?)
		`, userID, record.ID, position, record.SubmittedAt.UTC().Format(sortableTimeLayout), string(encoded)); err != nil {
			return err
		}
	}
	return nil
}
