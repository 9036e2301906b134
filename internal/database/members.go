package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

// MemberDirectory resolves gallery labels to member IDs from a cached copy
// of the members table. Names are compared after normalization, so
// "jan-novak" finds "Jan Novák".
type MemberDirectory struct {
	reader MemberReader

	mu     sync.RWMutex
	byName map[string]int64
}

func NewMemberDirectory(reader MemberReader) *MemberDirectory {
	return &MemberDirectory{reader: reader, byName: map[string]int64{}}
}

// Refresh reloads the cache. On error the previous cache is kept.
func (d *MemberDirectory) Refresh(ctx context.Context) error {
	members, err := d.reader.ListActiveMembers(ctx)
	if err != nil {
		return fmt.Errorf("refresh members: %w", err)
	}

	byName := make(map[string]int64, len(members))
	for _, m := range members {
		key := facematch.NormalizeLabel(m.Name)
		// the first registration of a name wins
		if _, ok := byName[key]; !ok {
			byName[key] = m.ID
		}
	}

	d.mu.Lock()
	d.byName = byName
	d.mu.Unlock()
	return nil
}

// Lookup returns the member ID for label, or nil when unknown.
func (d *MemberDirectory) Lookup(label string) *int64 {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	id, ok := d.byName[facematch.NormalizeLabel(label)]
	d.mu.RUnlock()
	if !ok {
		return nil
	}
	return &id
}

// Len returns the number of cached names.
func (d *MemberDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byName)
}
