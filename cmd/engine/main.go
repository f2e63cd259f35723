package main

import (
	"log"
	"os"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rawblock/payjoin-engine/internal/api"
	"github.com/rawblock/payjoin-engine/internal/bitcoin"
	"github.com/rawblock/payjoin-engine/internal/db"
)

func main() {
	log.Println("Starting RawBlock Payjoin Engine (BIP-78 receiver)...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	dbUrl := requireEnv("DATABASE_URL")

	dbConn, err := db.Connect(dbUrl)
	if err != nil {
		log.Printf("Warning: Failed to connect to PostgreSQL, continuing without persisting proposal history. Error: %v", err)
	} else {
		defer dbConn.Close()
		if err := dbConn.InitSchema(); err != nil {
			log.Printf("Warning: DB schema init failed: %v", err)
		}
	}

	btcHost := getEnvOrDefault("BTC_RPC_HOST", "localhost:8332")
	btcUser := requireEnv("BTC_RPC_USER")
	btcPass := requireEnv("BTC_RPC_PASS")

	cfg := bitcoin.Config{
		Host: btcHost,
		User: btcUser,
		Pass: btcPass,
	}
	btcClient, err := bitcoin.NewClient(cfg)
	if err != nil {
		log.Printf("Warning: Failed to connect to Bitcoin RPC: %v", err)
	} else {
		defer btcClient.Shutdown()
	}

	// Setup WebSocket Hub for proposal event notifications
	wsHub := api.NewHub()
	go wsHub.Run()

	network := networkParams(getEnvOrDefault("PJ_NETWORK", "mainnet"))
	endpoint := requireEnv("PJ_ENDPOINT")
	nonInteractive := getEnvOrDefault("PJ_NON_INTERACTIVE", "false") == "true"

	var minFeeRate float64
	if raw := os.Getenv("PJ_MIN_FEE_RATE_SAT_VB"); raw != "" {
		minFeeRate, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			log.Fatalf("FATAL: PJ_MIN_FEE_RATE_SAT_VB must be a number, got %q", raw)
		}
	}

	routerCfg := api.RouterConfig{
		Network:         network,
		Endpoint:        endpoint,
		NonInteractive:  nonInteractive,
		MinFeeRateSatVB: minFeeRate,
	}

	// Setup the Gin Router
	r := api.SetupRouter(dbConn, btcClient, wsHub, routerCfg)

	port := getEnvOrDefault("PORT", "5339")

	log.Printf("Engine running on :%s (network=%s, non-interactive=%v)\n", port, network.Name, nonInteractive)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// networkParams maps PJ_NETWORK to the matching chaincfg.Params, defaulting
// to mainnet for an unrecognized value rather than refusing to start.
func networkParams(name string) *chaincfg.Params {
	switch name {
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	case "signet":
		return &chaincfg.SigNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// requireEnv reads a required environment variable and exits if it is not set.
// This prevents the binary from starting with missing critical configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
