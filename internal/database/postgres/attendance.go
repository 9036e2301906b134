package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

// InsertAttendance appends a row to attendance_log.
func (p *Pool) InsertAttendance(ctx context.Context, rec database.AttendanceRecord) error {
	capturedAt := rec.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	var memberID sql.NullInt64
	if rec.MemberID != nil {
		memberID = sql.NullInt64{Int64: *rec.MemberID, Valid: true}
	}

	query := `
		INSERT INTO attendance_log (member_id, name, confidence, status, device_id, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := p.db.ExecContext(ctx, query,
		memberID, rec.Name, rec.Confidence, rec.Status, rec.DeviceID, capturedAt,
	); err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// RecentAttendance returns the latest rows, newest first.
func (p *Pool) RecentAttendance(ctx context.Context, limit int) ([]database.AttendanceRecord, error) {
	query := `
		SELECT member_id, name, confidence, status, device_id, captured_at
		FROM attendance_log
		ORDER BY captured_at DESC, log_id DESC
		LIMIT $1
	`
	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var out []database.AttendanceRecord
	for rows.Next() {
		var (
			rec        database.AttendanceRecord
			memberID   sql.NullInt64
			confidence sql.NullFloat64
			deviceID   sql.NullString
		)
		if err := rows.Scan(&memberID, &rec.Name, &confidence, &rec.Status, &deviceID, &rec.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		if memberID.Valid {
			id := memberID.Int64
			rec.MemberID = &id
		}
		rec.Confidence = confidence.Float64
		rec.DeviceID = deviceID.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return out, nil
}
