package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"ollama_gateway/internal/auth"
	"ollama_gateway/internal/config"
	"ollama_gateway/internal/models"
	"ollama_gateway/internal/storage"

	"github.com/google/uuid"
)

// init-key bootstraps the first API key directly against the database, for
// setups where the admin HTTP surface is not reachable yet.
func main() {
	fmt.Println("Ollama Gateway - Bootstrap API Key")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	label := os.Getenv("BOOTSTRAP_KEY_LABEL")
	if label == "" {
		fmt.Fprintf(os.Stderr, "ERROR: BOOTSTRAP_KEY_LABEL must be set\n")
		os.Exit(1)
	}

	fmt.Println("Connecting to database...")
	db, err := storage.NewDB(storage.DBConfig{
		DSN:                 cfg.Database.URL,
		MaxOpenConns:        cfg.Database.MaxOpenConns,
		MaxIdleConns:        cfg.Database.MaxIdleConns,
		ConnMaxLifetime:     cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:     cfg.Database.ConnMaxIdleTime,
		CredentialCacheSize: 10,
		CredentialCacheTTL:  5 * time.Minute,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := storage.NewCredentialRepository(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Bootstrap is for empty installations only
	existing, err := repo.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to check existing keys: %v\n", err)
		os.Exit(1)
	}
	if len(existing) > 0 {
		fmt.Printf("INFO: Found %d existing API key(s). Bootstrap not needed.\n", len(existing))
		fmt.Println("Exiting successfully (no action taken)")
		os.Exit(0)
	}

	rawKey, err := auth.GenerateKey(cfg.Limits.KeyPrefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to generate key: %v\n", err)
		os.Exit(1)
	}

	cred := &models.Credential{
		ID:                uuid.New(),
		KeyHash:           auth.HashKey(rawKey),
		Label:             label,
		RateLimitPerMin:   cfg.Limits.DefaultRateLimitPerMin,
		MonthlyTokenLimit: cfg.Limits.DefaultMonthlyTokenLimit,
		IsActive:          true,
	}

	if err := repo.Create(ctx, cred); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to create API key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nSUCCESS: Bootstrap API key created!")
	fmt.Printf("ID: %s\n", cred.ID)
	fmt.Printf("Label: %s\n", cred.Label)
	fmt.Printf("Key: %s\n", rawKey)
	fmt.Printf("Rate limit: %d requests/min\n", cred.RateLimitPerMin)
	fmt.Printf("Monthly token limit: %d\n", cred.MonthlyTokenLimit)
	fmt.Println("\nIMPORTANT: This key is shown only once. Store it securely.")
}
