package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/gin-gonic/gin"
	"github.com/rawblock/payjoin-engine/internal/bitcoin"
	"github.com/rawblock/payjoin-engine/internal/db"
)

// APIHandler holds the dependencies every payjoin endpoint needs: the node
// RPC client that plays wallet and broadcaster, the audit/seen-inputs store,
// and the websocket hub that mirrors proposal outcomes to the dashboard.
type APIHandler struct {
	dbStore         *db.PostgresStore
	btcClient       *bitcoin.Client
	wsHub           *Hub
	network         *chaincfg.Params
	endpoint        string
	nonInteractive  bool
	minFeeRateSatVB float64
}

// RouterConfig carries the receiver-policy knobs SetupRouter needs beyond its
// infrastructure dependencies.
type RouterConfig struct {
	Network         *chaincfg.Params
	Endpoint        string
	NonInteractive  bool
	MinFeeRateSatVB float64
}

func SetupRouter(dbStore *db.PostgresStore, btcClient *bitcoin.Client, wsHub *Hub, cfg RouterConfig) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://rawblock.net,https://www.rawblock.net
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			// Check if the request origin is in the allowed list
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		dbStore:         dbStore,
		btcClient:       btcClient,
		wsHub:           wsHub,
		network:         cfg.Network,
		endpoint:        cfg.Endpoint,
		nonInteractive:  cfg.NonInteractive,
		minFeeRateSatVB: cfg.MinFeeRateSatVB,
	}

	// ── Public endpoints (no auth) ─────────────────────────────
	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
		pub.GET("/bip21", handler.handleBip21)
	}

	// ── Protected endpoints (require bearer token if API_AUTH_TOKEN set) ──
	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	// Rate-limit this group (the receive endpoint and /proposals) to 30
	// req/min per IP (burst=5) — each receive drives a handful of wallet
	// RPCs, so this is not free to abuse.
	auth.Use(NewRateLimiter(30, 5).Middleware())
	{
		auth.POST("/payjoin", handler.handlePayjoinReceive)
		auth.GET("/proposals", handler.handleListProposals)
	}

	return r
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	status := gin.H{
		"service": "Payjoin Engine",
		"version": "v1.0",
		"network": h.network.Name,
		"bip":     "78",
	}
	if h.btcClient == nil {
		status["bitcoind"] = "not configured"
	} else {
		status["bitcoind"] = "configured"
	}
	if h.dbStore == nil {
		status["database"] = "not configured"
	} else {
		status["database"] = "configured"
	}
	c.JSON(http.StatusOK, status)
}

func (h *APIHandler) handleListProposals(c *gin.Context) {
	if h.dbStore == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	records, err := h.dbStore.ListProposals(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list proposals", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposals": records})
}
