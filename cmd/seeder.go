package cmd

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample users and member profiles for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlxDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		db, err := initGorm(sqlxDB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			for _, table := range []string{"audit_logs", "webhook_events", "membership_transactions", "member_profiles", "users"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		password := "password"
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

		seedUsers := []struct {
			email string
			name  string
			track string
			tier  string
		}{
			{"amara@talenthub.dev", "Amara", "member", "welcome"},
			{"kwame@talenthub.dev", "Kwame", "creator", "starter"},
		}

		for _, u := range seedUsers {
			var exists int
			row := db.Raw("SELECT 1 FROM users WHERE email = ?", u.email).Row()
			if err := row.Scan(&exists); err == nil {
				fmt.Printf("user %s already exists, skipping\n", u.email)
				continue
			}

			userID := uuid.New().String()
			if err := db.Exec(
				"INSERT INTO users (id, email, name, password_hash, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, true, now(), now())",
				userID, u.email, u.name, string(hash)).Error; err != nil {
				log.Fatalf("failed to insert user %s: %v", u.email, err)
			}

			if err := db.Exec(
				"INSERT INTO member_profiles (id, user_id, membership_type, tier, created_at, updated_at) VALUES (?, ?, ?, ?, now(), now())",
				uuid.New().String(), userID, u.track, u.tier).Error; err != nil {
				log.Fatalf("failed to insert profile for %s: %v", u.email, err)
			}

			fmt.Printf("Seeded user %s (%s track, %s tier)\n", u.email, u.track, u.tier)
		}
	},
}
