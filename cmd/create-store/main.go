package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/bundles/internal/config"
	"github.com/jafarshop/bundles/internal/domain"
	"github.com/jafarshop/bundles/internal/repository/postgres"
	"github.com/jafarshop/bundles/internal/shopify"
)

func main() {
	domainFlag := flag.String("shop-domain", "", "Shopify shop domain (e.g. my-shop.myshopify.com)")
	tokenFlag := flag.String("access-token", "", "Admin API access token for this shop")
	apiKeyFlag := flag.String("api-key", "", "API key for this store (save it; it cannot be retrieved later)")
	flag.Parse()

	if *domainFlag == "" || *tokenFlag == "" || *apiKeyFlag == "" {
		fmt.Println("Usage:")
		fmt.Println("  go run cmd/create-store/main.go --shop-domain \"my-shop.myshopify.com\" --access-token \"shpat_...\" --api-key \"your-api-key\"")
		os.Exit(1)
	}

	// Trim so the stored hash matches what the server receives (AuthMiddleware trims the Bearer token)
	shopDomain := shopify.NormalizeShopDomain(strings.TrimSpace(*domainFlag))
	accessToken := strings.TrimSpace(*tokenFlag)
	apiKey := strings.TrimSpace(*apiKeyFlag)
	if apiKey == "" {
		fmt.Fprintf(os.Stderr, "Error: API key cannot be empty after trimming.\n")
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, logger)

	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash API key: %v\n", err)
		os.Exit(1)
	}
	lookup := sha256.Sum256([]byte(apiKey))

	store := &domain.Store{
		ShopDomain:   shopDomain,
		AccessToken:  accessToken,
		APIKeyHash:   string(hash),
		APIKeyLookup: hex.EncodeToString(lookup[:]),
		IsActive:     true,
	}

	if err := repos.Store.Create(context.Background(), store); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create store: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Store created successfully!")
	fmt.Printf("  ID:          %s\n", store.ID)
	fmt.Printf("  Shop domain: %s\n", store.ShopDomain)
	fmt.Printf("  API key:     %s (store it now; only hashes are persisted)\n", apiKey)
}
