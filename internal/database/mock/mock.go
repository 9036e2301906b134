// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/facematch"
)

// MockStore is an in-memory implementation of database.Store
type MockStore struct {
	mu         sync.RWMutex
	attendance []database.AttendanceRecord
	members    []database.Member
	nextID     int64
	closed     bool

	ads       []database.Advertisement
	nextAdID  int64
	purchases []database.Purchase
	displays  []database.AdDisplay

	// Error injection
	InsertAttendanceError error
	ListMembersError      error
	InsertMemberError     error
	NearestError          error
	PreferencesError      error
	TargetedAdError       error
	InsertAdDisplayError  error
	CloseError            error
}

// NewMockStore creates a new empty mock store
func NewMockStore() *MockStore {
	return &MockStore{nextID: 1, nextAdID: 1}
}

// AddMember adds a member to the mock store and returns its ID
func (m *MockStore) AddMember(member database.Member) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	member.ID = m.nextID
	m.nextID++
	m.members = append(m.members, member)
	return member.ID
}

// InsertAttendance records an attendance row
func (m *MockStore) InsertAttendance(ctx context.Context, rec database.AttendanceRecord) error {
	if m.InsertAttendanceError != nil {
		return m.InsertAttendanceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attendance = append(m.attendance, rec)
	return nil
}

// Attendance returns a copy of the recorded attendance rows
func (m *MockStore) Attendance() []database.AttendanceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.attendance)
}

// RecentAttendance returns the latest rows, newest first
func (m *MockStore) RecentAttendance(ctx context.Context, limit int) ([]database.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := slices.Clone(m.attendance)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListActiveMembers returns active members in ID order
func (m *MockStore) ListActiveMembers(ctx context.Context) ([]database.Member, error) {
	if m.ListMembersError != nil {
		return nil, m.ListMembersError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.Member
	for _, mem := range m.members {
		if mem.IsActive {
			out = append(out, mem)
		}
	}
	return out, nil
}

// InsertMember stores an active member
func (m *MockStore) InsertMember(ctx context.Context, member database.Member) (int64, error) {
	if m.InsertMemberError != nil {
		return 0, m.InsertMemberError
	}
	member.IsActive = true
	return m.AddMember(member), nil
}

// Members returns a copy of every stored member
func (m *MockStore) Members() []database.Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.members)
}

// NearestMember scans active members linearly
func (m *MockStore) NearestMember(ctx context.Context, v []float64) (*database.Member, float64, error) {
	if m.NearestError != nil {
		return nil, 0, m.NearestError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *database.Member
	bestDist := math.Inf(1)
	for i := range m.members {
		if !m.members[i].IsActive {
			continue
		}
		d := facematch.EuclideanDistance(v, m.members[i].Encoding)
		if d < bestDist {
			member := m.members[i]
			best, bestDist = &member, d
		}
	}
	if best == nil {
		return nil, 0, nil
	}
	return best, bestDist, nil
}

// MemberPreferences aggregates the purchase history of an active member
func (m *MockStore) MemberPreferences(ctx context.Context, memberID int64, since time.Time) (database.Preferences, error) {
	if m.PreferencesError != nil {
		return database.Preferences{}, m.PreferencesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var prefs database.Preferences
	for _, mem := range m.members {
		if mem.ID == memberID {
			prefs.Gender = mem.Gender
			prefs.AgeGroup = mem.AgeGroup
			break
		}
	}

	counts := map[string]int{}
	for _, p := range m.purchases {
		if p.MemberID == memberID && !p.PurchasedAt.Before(since) {
			counts[p.Category]++
		}
	}
	categories := slices.Collect(maps.Keys(counts))
	slices.SortFunc(categories, func(a, b string) int {
		if counts[a] != counts[b] {
			return counts[b] - counts[a]
		}
		return strings.Compare(a, b)
	})
	if len(categories) > database.PreferredCategories {
		categories = categories[:database.PreferredCategories]
	}
	prefs.Categories = categories
	return prefs, nil
}

// TargetedAd returns the first eligible ad in ID order
func (m *MockStore) TargetedAd(ctx context.Context, p database.Preferences) (*database.Advertisement, error) {
	if m.TargetedAdError != nil {
		return nil, m.TargetedAdError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ad := range m.ads {
		if ad.Targets(p) {
			return &ad, nil
		}
	}
	return nil, nil
}

// InsertAdDisplay records a display
func (m *MockStore) InsertAdDisplay(ctx context.Context, d database.AdDisplay) error {
	if m.InsertAdDisplayError != nil {
		return m.InsertAdDisplayError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.displays = append(m.displays, d)
	return nil
}

// AdDisplays returns a copy of the recorded displays
func (m *MockStore) AdDisplays() []database.AdDisplay {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.displays)
}

// InsertAdvertisement stores an ad and returns its ID
func (m *MockStore) InsertAdvertisement(ctx context.Context, a database.Advertisement) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextAdID
	m.nextAdID++
	m.ads = append(m.ads, a)
	return a.ID, nil
}

// InsertPurchase appends to the purchase history
func (m *MockStore) InsertPurchase(ctx context.Context, p database.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases = append(m.purchases, p)
	return nil
}

// Close marks the store closed
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.CloseError
}

// Closed reports whether Close was called
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

var (
	_ database.Store               = (*MockStore)(nil)
	_ database.NearestMemberFinder = (*MockStore)(nil)
)
