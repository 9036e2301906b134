package postgres

import (
	"strings"
	"testing"

	"github.com/kozaktomas/rollcall/internal/database"
)

func TestTargetedAdQuery(t *testing.T) {
	tests := []struct {
		name      string
		prefs     database.Preferences
		wantConds []string
		wantArgs  int
	}{
		{
			name:      "no preferences",
			wantConds: []string{"is_active = TRUE"},
		},
		{
			name:      "gender only",
			prefs:     database.Preferences{Gender: "F"},
			wantConds: []string{"(target_gender = $1 OR target_gender = 'ALL')"},
			wantArgs:  1,
		},
		{
			name:  "everything",
			prefs: database.Preferences{Gender: "M", AgeGroup: "26-35", Categories: []string{"books", "coffee"}},
			wantConds: []string{
				"(target_gender = $1 OR target_gender = 'ALL')",
				"target_age_group = $2",
				"target_category = ANY($3)",
			},
			wantArgs: 3,
		},
		{
			name:      "age group without gender",
			prefs:     database.Preferences{AgeGroup: "18-25"},
			wantConds: []string{"target_age_group = $1"},
			wantArgs:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := targetedAdQuery(tt.prefs)
			for _, cond := range tt.wantConds {
				if !strings.Contains(query, cond) {
					t.Errorf("query missing %q:\n%s", cond, query)
				}
			}
			if len(args) != tt.wantArgs {
				t.Errorf("got %d args, want %d", len(args), tt.wantArgs)
			}
			if !strings.Contains(query, "LIMIT 1") {
				t.Error("query should select a single ad")
			}
		})
	}
}
