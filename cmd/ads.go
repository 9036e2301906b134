package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/database"
)

var adsCmd = &cobra.Command{
	Use:   "ads",
	Short: "Manage targeted ads and purchase history",
	Long: `Targeted ads are shown by "recognize" when ads.enabled is set. A recognized
member gets a random active ad whose gender, age group and category match
the member's profile and most purchased categories of the last
ads.window_days days.`,
}

var adsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an advertisement",
	Long: `Add an advertisement.

Examples:
  rollcall ads add --title "Espresso week" --category coffee --age-group 26-35
  rollcall ads add --title "Summer dresses" --gender F --category fashion --image ./ads/dress.jpg`,
	Args: cobra.NoArgs,
	RunE: runAdsAdd,
}

var adsPurchaseCmd = &cobra.Command{
	Use:   "purchase",
	Short: "Record a purchase of a member",
	Args:  cobra.NoArgs,
	RunE:  runAdsPurchase,
}

func init() {
	rootCmd.AddCommand(adsCmd)
	adsCmd.AddCommand(adsAddCmd)
	adsCmd.AddCommand(adsPurchaseCmd)

	adsAddCmd.Flags().String("title", "", "Title (required)")
	adsAddCmd.Flags().String("content", "", "Text of the ad")
	adsAddCmd.Flags().String("image", "", "Image path")
	adsAddCmd.Flags().String("category", "", "Product category the ad targets")
	adsAddCmd.Flags().String("gender", database.TargetAllGenders, "Target gender: M, F or ALL")
	adsAddCmd.Flags().String("age-group", "", "Target age group")
	adsAddCmd.Flags().Bool("inactive", false, "Store the ad disabled")
	adsAddCmd.MarkFlagRequired("title")

	adsPurchaseCmd.Flags().Int64("member", 0, "Member ID (required)")
	adsPurchaseCmd.Flags().String("category", "", "Product category (required)")
	adsPurchaseCmd.Flags().Float64("amount", 0, "Amount paid")
	adsPurchaseCmd.Flags().String("store", "", "Store location")
	adsPurchaseCmd.MarkFlagRequired("member")
	adsPurchaseCmd.MarkFlagRequired("category")
}

func runAdsAdd(cmd *cobra.Command, args []string) error {
	gender := mustGetString(cmd, "gender")
	switch gender {
	case "M", "F", database.TargetAllGenders:
	default:
		return fmt.Errorf("invalid --gender %q: want M, F or ALL", gender)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	store, err := openStore(ctx, cfg, true)
	if err != nil {
		return fmt.Errorf("ads need a database: %w", err)
	}
	defer store.Close()

	ad := database.Advertisement{
		Title:          mustGetString(cmd, "title"),
		Content:        mustGetString(cmd, "content"),
		ImagePath:      mustGetString(cmd, "image"),
		TargetCategory: mustGetString(cmd, "category"),
		TargetGender:   gender,
		TargetAgeGroup: mustGetString(cmd, "age-group"),
		IsActive:       !mustGetBool(cmd, "inactive"),
	}
	id, err := store.InsertAdvertisement(ctx, ad)
	if err != nil {
		return err
	}
	fmt.Printf("Added ad %d: %s\n", id, ad.Title)
	return nil
}

func runAdsPurchase(cmd *cobra.Command, args []string) error {
	memberID, err := cmd.Flags().GetInt64("member")
	if err != nil {
		return err
	}
	if memberID <= 0 {
		return fmt.Errorf("invalid --member %d", memberID)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	store, err := openStore(ctx, cfg, true)
	if err != nil {
		return fmt.Errorf("purchases need a database: %w", err)
	}
	defer store.Close()

	p := database.Purchase{
		MemberID:      memberID,
		Category:      mustGetString(cmd, "category"),
		Amount:        mustGetFloat64(cmd, "amount"),
		StoreLocation: mustGetString(cmd, "store"),
		PurchasedAt:   time.Now(),
	}
	if err := store.InsertPurchase(ctx, p); err != nil {
		return err
	}
	fmt.Printf("Recorded %s purchase for member %d\n", p.Category, memberID)
	return nil
}
