package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

// MemberPreferences returns gender, age group and the most purchased
// categories since the given time.
func (p *Pool) MemberPreferences(ctx context.Context, memberID int64, since time.Time) (database.Preferences, error) {
	var (
		prefs            database.Preferences
		gender, ageGroup sql.NullString
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT gender, age_group FROM members WHERE member_id = ?`, memberID,
	).Scan(&gender, &ageGroup)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return prefs, fmt.Errorf("query member: %w", err)
	}
	prefs.Gender = gender.String
	prefs.AgeGroup = ageGroup.String

	query := `
		SELECT product_category, COUNT(*) AS frequency
		FROM purchase_history
		WHERE member_id = ? AND purchase_date >= ?
		GROUP BY product_category
		ORDER BY frequency DESC, product_category
		LIMIT ?
	`
	rows, err := p.db.QueryContext(ctx, query, memberID, since.UTC(), database.PreferredCategories)
	if err != nil {
		return prefs, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category string
			count    int
		)
		if err := rows.Scan(&category, &count); err != nil {
			return prefs, fmt.Errorf("scan purchase category: %w", err)
		}
		prefs.Categories = append(prefs.Categories, category)
	}
	if err := rows.Err(); err != nil {
		return prefs, fmt.Errorf("iterate purchases: %w", err)
	}
	return prefs, nil
}

// targetedAdQuery builds the ad selection query for prefs.
func targetedAdQuery(prefs database.Preferences) (string, []any) {
	conds := []string{"is_active = TRUE"}
	var args []any
	if prefs.Gender != "" {
		conds = append(conds, "(target_gender = ? OR target_gender = 'ALL')")
		args = append(args, prefs.Gender)
	}
	if prefs.AgeGroup != "" {
		conds = append(conds, "target_age_group = ?")
		args = append(args, prefs.AgeGroup)
	}
	if len(prefs.Categories) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(prefs.Categories)), ",")
		conds = append(conds, "target_category IN ("+placeholders+")")
		for _, c := range prefs.Categories {
			args = append(args, c)
		}
	}

	query := `
		SELECT ad_id, title, content, image_path, target_category, target_gender, target_age_group
		FROM advertisements
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY RAND()
		LIMIT 1
	`
	return query, args
}

// TargetedAd picks a random eligible ad, or nil when none matches.
func (p *Pool) TargetedAd(ctx context.Context, prefs database.Preferences) (*database.Advertisement, error) {
	query, args := targetedAdQuery(prefs)

	var ad database.Advertisement
	var title, content, image, category, gender, ageGroup sql.NullString
	err := p.db.QueryRowContext(ctx, query, args...).Scan(
		&ad.ID, &title, &content, &image, &category, &gender, &ageGroup,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query targeted ad: %w", err)
	}
	ad.Title = title.String
	ad.Content = content.String
	ad.ImagePath = image.String
	ad.TargetCategory = category.String
	ad.TargetGender = gender.String
	ad.TargetAgeGroup = ageGroup.String
	ad.IsActive = true
	return &ad, nil
}

// InsertAdDisplay appends a row to ad_display_log.
func (p *Pool) InsertAdDisplay(ctx context.Context, d database.AdDisplay) error {
	displayedAt := d.DisplayedAt
	if displayedAt.IsZero() {
		displayedAt = time.Now()
	}
	query := `INSERT INTO ad_display_log (member_id, ad_id, display_time, display_location) VALUES (?, ?, ?, ?)`
	if _, err := p.db.ExecContext(ctx, query, d.MemberID, d.AdID, displayedAt.UTC(), nullString(d.Location)); err != nil {
		return fmt.Errorf("insert ad display: %w", err)
	}
	return nil
}

// InsertAdvertisement stores an ad and returns its ID.
func (p *Pool) InsertAdvertisement(ctx context.Context, a database.Advertisement) (int64, error) {
	gender := a.TargetGender
	if gender == "" {
		gender = database.TargetAllGenders
	}
	query := `INSERT INTO advertisements (title, content, image_path, target_category, target_gender, target_age_group, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := p.db.ExecContext(ctx, query,
		a.Title, nullString(a.Content), nullString(a.ImagePath), nullString(a.TargetCategory),
		gender, nullString(a.TargetAgeGroup), a.IsActive,
	)
	if err != nil {
		return 0, fmt.Errorf("insert advertisement: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read advertisement id: %w", err)
	}
	return id, nil
}

// InsertPurchase appends to purchase_history.
func (p *Pool) InsertPurchase(ctx context.Context, pur database.Purchase) error {
	purchasedAt := pur.PurchasedAt
	if purchasedAt.IsZero() {
		purchasedAt = time.Now()
	}
	query := `INSERT INTO purchase_history (member_id, product_category, amount, purchase_date, store_location)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := p.db.ExecContext(ctx, query,
		pur.MemberID, pur.Category, pur.Amount, purchasedAt.UTC(), nullString(pur.StoreLocation),
	); err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}
