package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kozaktomas/rollcall/internal/database"
)

// ListActiveMembers returns active members ordered by ID.
func (p *Pool) ListActiveMembers(ctx context.Context) ([]database.Member, error) {
	query := `
		SELECT member_id, name, email, gender, age_group, face_encoding
		FROM members
		WHERE is_active = TRUE
		ORDER BY member_id
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []database.Member
	for rows.Next() {
		var (
			m                                   database.Member
			email, gender, ageGroup, encodingJS sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Name, &email, &gender, &ageGroup, &encodingJS); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Email = email.String
		m.Gender = gender.String
		m.AgeGroup = ageGroup.String
		m.IsActive = true
		if encodingJS.Valid && encodingJS.String != "" {
			if err := json.Unmarshal([]byte(encodingJS.String), &m.Encoding); err != nil {
				return nil, fmt.Errorf("member %d: decode face encoding: %w", m.ID, err)
			}
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// InsertMember stores a member and returns its ID. The encoding is stored
// as a JSON array.
func (p *Pool) InsertMember(ctx context.Context, m database.Member) (int64, error) {
	var encoding sql.NullString
	if len(m.Encoding) > 0 {
		data, err := json.Marshal(m.Encoding)
		if err != nil {
			return 0, fmt.Errorf("marshal encoding: %w", err)
		}
		encoding = sql.NullString{String: string(data), Valid: true}
	}

	query := `INSERT INTO members (name, email, gender, age_group, face_encoding) VALUES (?, ?, ?, ?, ?)`
	res, err := p.db.ExecContext(ctx, query,
		m.Name, nullString(m.Email), nullString(m.Gender), nullString(m.AgeGroup), encoding,
	)
	if err != nil {
		return 0, fmt.Errorf("insert member: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read member id: %w", err)
	}
	return id, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
