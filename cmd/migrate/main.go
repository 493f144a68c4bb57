package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"support-chat/config"
	"support-chat/pkg/database"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const usage = `
Support Chat - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Apply the schema
  status      Show database connection status
  seed        Seed an admin profile

Flags:
  -admin-email string  Admin email for seeding (default "admin@support.chat")
  -admin-pass string   Admin password for seeding (default "Admin@123!")

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go seed -admin-email ops@example.com -admin-pass secret
`

func main() {
	adminEmail := flag.String("admin-email", "admin@support.chat", "Admin email for seeding")
	adminPass := flag.String("admin-pass", "Admin@123!", "Admin password for seeding")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	command := flag.Arg(0)

	cfg := config.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	switch command {
	case "up":
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Println("Schema applied")
	case "status":
		if err := pool.Ping(ctx); err != nil {
			log.Fatalf("Database unreachable: %v", err)
		}
		fmt.Println("Database connection OK")
	case "seed":
		if err := seedAdmin(ctx, pool, *adminEmail, *adminPass); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
		fmt.Printf("Admin profile ready for %s\n", *adminEmail)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool, email, password string) error {
	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO profiles (email, name, password_hash, is_admin)
		VALUES ($1, 'Support Admin', $2, true)
		ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash, is_admin = true`,
		email, string(hash))
	return err
}
