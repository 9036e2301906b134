package database

import (
	"time"
)

// AttendanceRecord is one row of the attendance log
type AttendanceRecord struct {
	MemberID   *int64
	Name       string
	Confidence float64
	Status     string
	DeviceID   string
	CapturedAt time.Time
}

// Member is a registered person
type Member struct {
	ID       int64
	Name     string
	Email    string
	Gender   string // "M", "F" or empty
	AgeGroup string
	Encoding []float64
	IsActive bool
}
