package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"raffler/database"
)

// Default SPL mint addresses. Overridable for devnet deployments.
const (
	defaultUSDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// Ledger configuration
	SolanaRPCURL    string
	RecipientWallet string // Shared wallet raffle payments are sent to
	USDCMint        string
	OWLMint         string

	// Settlement configuration
	AmountTolerance float64 // Absolute tolerance for amount matching, in UI units

	// Admin configuration
	AdminWallets []string // Wallets allowed to call admin endpoints

	// NATS configuration
	NATSServers string // Empty disables event publishing

	// HTTP configuration
	ListenAddr string

	// Environment
	Environment string // "development", "production", or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// IsAdminWallet reports whether the wallet is on the admin allowlist.
// Comparison is case-insensitive because wallet input comes from humans.
func (c *Config) IsAdminWallet(wallet string) bool {
	for _, w := range c.AdminWallets {
		if strings.EqualFold(w, wallet) {
			return true
		}
	}
	return false
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		SolanaRPCURL:    getEnvWithDefault("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		RecipientWallet: os.Getenv("RECIPIENT_WALLET"),
		USDCMint:        getEnvWithDefault("USDC_MINT", defaultUSDCMint),
		OWLMint:         os.Getenv("OWL_MINT"),

		AmountTolerance: 0.01,

		NATSServers: os.Getenv("NATS_SERVERS"),
		ListenAddr:  getEnvWithDefault("LISTEN_ADDR", ":8080"),
		Environment: os.Getenv("ENVIRONMENT"),
	}

	if tolerance := os.Getenv("AMOUNT_TOLERANCE"); tolerance != "" {
		if parsed, err := strconv.ParseFloat(tolerance, 64); err == nil && parsed > 0 {
			config.AmountTolerance = parsed
		}
	}

	if admins := os.Getenv("ADMIN_WALLETS"); admins != "" {
		for _, w := range strings.Split(admins, ",") {
			w = strings.TrimSpace(w)
			if w != "" {
				config.AdminWallets = append(config.AdminWallets, w)
			}
		}
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.RecipientWallet == "" {
			return nil, fmt.Errorf("RECIPIENT_WALLET is required")
		}
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}

	return config, nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:     "test",
		RecipientWallet: "RaFF1eRecipienTWa11etTESTxxxxxxxxxxxxxxxxxx",
		USDCMint:        defaultUSDCMint,
		OWLMint:         "OWLMintTESTxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx",
		AmountTolerance: 0.01,
		AdminWallets:    []string{"AdminWa11etTESTxxxxxxxxxxxxxxxxxxxxxxxxxxxx"},
	}
}
