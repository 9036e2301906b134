package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/rollcall/internal/database"
)

// ListActiveMembers returns active members ordered by ID.
func (p *Pool) ListActiveMembers(ctx context.Context) ([]database.Member, error) {
	query := `
		SELECT member_id, name, email, gender, age_group, face_encoding
		FROM members
		WHERE is_active
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
			m                                 database.Member
			email, gender, ageGroup, encoding sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Name, &email, &gender, &ageGroup, &encoding); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Email = email.String
		m.Gender = gender.String
		m.AgeGroup = ageGroup.String
		m.IsActive = true
		if encoding.Valid {
			var vec pgvector.Vector
			if err := vec.Scan(encoding.String); err != nil {
				return nil, fmt.Errorf("member %d: decode face encoding: %w", m.ID, err)
			}
			m.Encoding = toFloat64(vec.Slice())
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// InsertMember stores a member with its encoding as a pgvector value.
func (p *Pool) InsertMember(ctx context.Context, m database.Member) (int64, error) {
	var encoding any
	if len(m.Encoding) > 0 {
		encoding = pgvector.NewVector(toFloat32(m.Encoding))
	}

	query := `
		INSERT INTO members (name, email, gender, age_group, face_encoding)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING member_id
	`
	var id int64
	err := p.db.QueryRowContext(ctx, query,
		m.Name, nullString(m.Email), nullString(m.Gender), nullString(m.AgeGroup), encoding,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert member: %w", err)
	}
	return id, nil
}

// NearestMember returns the active member whose encoding is closest to v by
// Euclidean distance, or nil when no member has an encoding of that length.
func (p *Pool) NearestMember(ctx context.Context, v []float64) (*database.Member, float64, error) {
	query := `
		SELECT member_id, name, face_encoding <-> $1 AS distance
		FROM members
		WHERE is_active AND face_encoding IS NOT NULL AND vector_dims(face_encoding) = $2
		ORDER BY distance
		LIMIT 1
	`
	var (
		m    database.Member
		dist float64
	)
	err := p.db.QueryRowContext(ctx, query, pgvector.NewVector(toFloat32(v)), len(v)).Scan(&m.ID, &m.Name, &dist)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("query nearest member: %w", err)
	}
	m.IsActive = true
	return &m, dist, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
