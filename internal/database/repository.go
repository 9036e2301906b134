package database

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no database URL is set.
var ErrNotConfigured = errors.New("database not configured")

// AttendanceWriter appends rows to the attendance log
type AttendanceWriter interface {
	// InsertAttendance stores a single identity event
	InsertAttendance(ctx context.Context, rec AttendanceRecord) error
}

// AttendanceReader lists logged events
type AttendanceReader interface {
	// RecentAttendance returns the latest rows, newest first
	RecentAttendance(ctx context.Context, limit int) ([]AttendanceRecord, error)
}

// MemberReader provides read-only access to registered members
type MemberReader interface {
	// ListActiveMembers returns every member with is_active set
	ListActiveMembers(ctx context.Context) ([]Member, error)
}

// MemberWriter registers members
type MemberWriter interface {
	// InsertMember stores a member with its face encoding and returns the new ID
	InsertMember(ctx context.Context, m Member) (int64, error)
}

// NearestMemberFinder is implemented by engines that can search member
// encodings by distance
type NearestMemberFinder interface {
	// NearestMember returns the closest active member, or nil when none has
	// an encoding of the same length
	NearestMember(ctx context.Context, v []float64) (*Member, float64, error)
}

// Store is the full persistence surface used by rollcall
type Store interface {
	AttendanceWriter
	AttendanceReader
	MemberReader
	MemberWriter
	AdRepository
	Close() error
}
