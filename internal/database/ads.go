package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/kozaktomas/rollcall/internal/dispatch"
)

// TargetAllGenders matches members of any gender.
const TargetAllGenders = "ALL"

// PreferredCategories is how many of a member's most purchased categories
// take part in ad selection.
const PreferredCategories = 3

// DefaultPurchaseWindow is how far back purchases count towards preferences.
const DefaultPurchaseWindow = 30 * 24 * time.Hour

// Advertisement is a row of the advertisements table.
type Advertisement struct {
	ID             int64
	Title          string
	Content        string
	ImagePath      string
	TargetCategory string
	TargetGender   string // "M", "F" or "ALL"
	TargetAgeGroup string
	IsActive       bool
}

// Preferences is what ad selection knows about a member.
type Preferences struct {
	Gender     string
	AgeGroup   string
	Categories []string // most purchased first
}

// Targets reports whether the ad is eligible for p. Empty preference fields
// do not restrict the choice.
func (a Advertisement) Targets(p Preferences) bool {
	if !a.IsActive {
		return false
	}
	if p.Gender != "" && a.TargetGender != p.Gender && a.TargetGender != TargetAllGenders {
		return false
	}
	if p.AgeGroup != "" && a.TargetAgeGroup != p.AgeGroup {
		return false
	}
	if len(p.Categories) > 0 && !slices.Contains(p.Categories, a.TargetCategory) {
		return false
	}
	return true
}

// Purchase is a row of the purchase_history table.
type Purchase struct {
	MemberID      int64
	Category      string
	Amount        float64
	StoreLocation string
	PurchasedAt   time.Time
}

// AdDisplay is a row of the ad_display_log table.
type AdDisplay struct {
	MemberID    int64
	AdID        int64
	Location    string
	DisplayedAt time.Time
}

// AdRepository selects targeted ads and records what was shown.
type AdRepository interface {
	// MemberPreferences returns the member's gender, age group and the
	// PreferredCategories most purchased categories since the given time.
	// An unknown member yields empty preferences.
	MemberPreferences(ctx context.Context, memberID int64, since time.Time) (Preferences, error)
	// TargetedAd picks one eligible active ad at random, or nil when none
	// matches.
	TargetedAd(ctx context.Context, p Preferences) (*Advertisement, error)
	// InsertAdDisplay logs that an ad was shown to a member.
	InsertAdDisplay(ctx context.Context, d AdDisplay) error
	// InsertAdvertisement stores an ad and returns its ID.
	InsertAdvertisement(ctx context.Context, a Advertisement) (int64, error)
	// InsertPurchase appends to the purchase history.
	InsertPurchase(ctx context.Context, p Purchase) error
}

// AdSinkOptions configures an AdSink.
type AdSinkOptions struct {
	Location string        // stored as display_location
	Window   time.Duration // purchase history window, DefaultPurchaseWindow when zero
	// OnDisplay is called after a display was logged.
	OnDisplay func(memberID int64, ad Advertisement)
	Logger    *slog.Logger
}

// AdSink shows a targeted ad to every recognized member and logs the
// display. Events without a member ID are ignored.
type AdSink struct {
	repo AdRepository
	opts AdSinkOptions
	log  *slog.Logger
}

func NewAdSink(repo AdRepository, opts AdSinkOptions) *AdSink {
	if opts.Window <= 0 {
		opts.Window = DefaultPurchaseWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AdSink{repo: repo, opts: opts, log: logger}
}

func (s *AdSink) Name() string { return "ads" }

func (s *AdSink) Deliver(ctx context.Context, event dispatch.Event) error {
	if event.MemberID == nil {
		return nil
	}
	memberID := *event.MemberID

	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	prefs, err := s.repo.MemberPreferences(ctx, memberID, at.Add(-s.opts.Window))
	if err != nil {
		return fmt.Errorf("member %d preferences: %w", memberID, err)
	}
	ad, err := s.repo.TargetedAd(ctx, prefs)
	if err != nil {
		return fmt.Errorf("select ad for member %d: %w", memberID, err)
	}
	if ad == nil {
		s.log.Debug("no matching ad", "member_id", memberID, "gender", prefs.Gender, "age_group", prefs.AgeGroup)
		return nil
	}

	err = s.repo.InsertAdDisplay(ctx, AdDisplay{
		MemberID:    memberID,
		AdID:        ad.ID,
		Location:    s.opts.Location,
		DisplayedAt: at,
	})
	if err != nil {
		return fmt.Errorf("log ad display: %w", err)
	}

	s.log.Info("ad displayed", "member_id", memberID, "ad_id", ad.ID, "title", ad.Title)
	if s.opts.OnDisplay != nil {
		s.opts.OnDisplay(memberID, *ad)
	}
	return nil
}

// Close is a no-op; the repository is owned by the attendance sink.
func (s *AdSink) Close() error { return nil }
