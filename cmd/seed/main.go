// Command seed loads a small demo dataset: one account per role, an open
// listing and an approved request ready for a delivery agent to claim.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/nutrilink/platform/internal/app/auth"
	"github.com/nutrilink/platform/internal/app/domain/listing"
	"github.com/nutrilink/platform/internal/app/domain/request"
	"github.com/nutrilink/platform/internal/app/domain/user"
	"github.com/nutrilink/platform/internal/app/storage/postgres"
	"github.com/nutrilink/platform/internal/config"
	"github.com/nutrilink/platform/internal/platform/database"
	apperrors "github.com/nutrilink/platform/internal/errors"
)

const demoPassword = "Password123!"

func main() {
	envFile := flag.String("env", "", "optional .env file to load")
	flag.Parse()

	if *envFile != "" {
		_ = godotenv.Load(*envFile)
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required for seeding")
	}

	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{URL: cfg.Database.URL})
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	store := postgres.New(db)
	tokens := auth.NewManager(auth.Config{BcryptCost: cfg.Auth.BcryptCost})

	hash, err := tokens.HashPassword(demoPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	seedUsers := []user.User{
		{FullName: "Green Fork Kitchen", Email: "provider@nutrilink.test", Role: user.RoleProvider, Status: user.StatusApproved, Address: "12 Market Street", IsActive: true},
		{FullName: "Hope Shelter", Email: "beneficiary@nutrilink.test", Role: user.RoleBeneficiary, Status: user.StatusApproved, Address: "48 Riverside Avenue", IsActive: true},
		{FullName: "Sam Courier", Email: "delivery@nutrilink.test", Role: user.RoleDelivery, Status: user.StatusApproved, Address: "7 Depot Lane", IsActive: true},
		{FullName: "Platform Admin", Email: "admin@nutrilink.test", Role: user.RoleAdmin, Status: user.StatusApproved, IsActive: true},
	}

	users := map[user.Role]user.User{}
	for _, u := range seedUsers {
		u.PasswordHash = hash
		existing, err := store.GetUserByEmail(ctx, u.Email)
		if err == nil {
			users[u.Role] = existing
			continue
		}
		if !apperrors.IsNotFound(err) {
			log.Fatalf("look up %s: %v", u.Email, err)
		}
		created, err := store.CreateUser(ctx, u)
		if err != nil {
			log.Fatalf("create %s: %v", u.Email, err)
		}
		users[u.Role] = created
		fmt.Printf("created %s (%s)\n", created.Email, created.Role)
	}

	existing, err := store.ListProviderListings(ctx, users[user.RoleProvider].ID)
	if err != nil {
		log.Fatalf("list provider listings: %v", err)
	}
	if len(existing) > 0 {
		fmt.Println("demo listing already present; nothing to do")
		return
	}

	l, err := store.CreateListing(ctx, listing.Listing{
		ProviderID:    users[user.RoleProvider].ID,
		Title:         "Surplus vegetable curry",
		Description:   "Freshly cooked, packed in single portions.",
		Category:      "cooked-meals",
		FoodType:      "vegetarian",
		ServingsTotal: 40,
		ServingsLeft:  40,
		Status:        listing.StatusAvailable,
		Address:       "12 Market Street",
		ExpiryAt:      time.Now().Add(48 * time.Hour).UTC(),
	})
	if err != nil {
		log.Fatalf("create listing: %v", err)
	}
	fmt.Printf("created listing %q with %d servings\n", l.Title, l.ServingsTotal)

	req, err := store.ReserveRequest(ctx, request.Request{
		ListingID:         l.ID,
		BeneficiaryID:     users[user.RoleBeneficiary].ID,
		RequestedServings: 10,
		Status:            request.StatusApproved,
		Notes:             "Evening meal service",
	})
	if err != nil {
		log.Fatalf("create request: %v", err)
	}
	fmt.Printf("created approved request for %d servings (%s)\n", req.RequestedServings, req.ID)
	fmt.Printf("demo password for all accounts: %s\n", demoPassword)
}
