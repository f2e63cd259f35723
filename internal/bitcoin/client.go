package bitcoin

import (
	"encoding/json"
	"log"

	"github.com/btcsuite/btcd/rpcclient"
)

type Client struct {
	RPC       *rpcclient.Client
	WalletRPC *rpcclient.Client
	Config    Config
}

type Config struct {
	Host string
	User string
	Pass string
}

func NewClient(cfg Config) (*Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true, // Bitcoin Core only supports HTTP POST mode
		DisableTLS:   true, // Assuming local node without TLS for this setup
	}

	log.Printf("Connecting to Bitcoin RPC at %s...", cfg.Host)
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, err
	}

	// Verify connection
	blockCount, err := client.GetBlockCount()
	if err != nil {
		client.Shutdown()
		return nil, err
	}

	log.Printf("Connected to Bitcoin Node. Current Block Height: %d", blockCount)

	c := &Client{RPC: client, Config: cfg}

	// Ensure a wallet is loaded for watch-only operations
	if err := c.InitializeWallet(); err != nil {
		log.Printf("Warning: Failed to initialize wallet: %v. Watch-only features might fail.", err)
	} else {
		log.Println("Wallet initialized successfully.")
	}

	return c, nil
}

func (c *Client) Shutdown() {
	c.RPC.Shutdown()
}

// --- Wallet Management ---

func (c *Client) CreateWallet(name string) error {
	// Explicitly create LEGACY wallet (descriptors=false) because importaddress is not supported on descriptor wallets
	// Args: wallet_name, disable_private_keys, blank, passphrase, avoid_reuse, descriptors, load_on_startup
	// We want: disable_private_keys=true, descriptors=false

	// Since rpcclient helpers might not expose descriptors opt easily in all versions, we use RawRequest.
	// createwallet "name" true false "" false false true
	params := []interface{}{
		name,  // name
		true,  // disable_private_keys
		false, // blank
		"",    // passphrase
		false, // avoid_reuse
		false, // descriptors
		true,  // load_on_startup
	}

	// Convert to []json.RawMessage
	rawParams := make([]json.RawMessage, len(params))
	for i, v := range params {
		marshaled, err := json.Marshal(v)
		if err != nil {
			return err
		}
		rawParams[i] = marshaled
	}

	_, err := c.RPC.RawRequest("createwallet", rawParams)
	return err
}

func (c *Client) LoadWallet(name string) error {
	_, err := c.RPC.LoadWallet(name)
	return err
}

func (c *Client) ListWallets() ([]string, error) {
	// rpcclient might be missing ListWallets in this version, using RawRequest
	rawResp, err := c.RPC.RawRequest("listwallets", nil)
	if err != nil {
		return nil, err
	}

	var wallets []string
	if err := json.Unmarshal(rawResp, &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}

// InitializeWallet ensures a wallet exists and is loaded for watch-only operations
func (c *Client) InitializeWallet() error {
	wallets, err := c.ListWallets()
	if err != nil {
		return err
	}

	const walletName = "watcher_legacy_v2"

	// If wallet is already loaded, we are good
	for _, w := range wallets {
		if w == walletName || w == "" { // "" is default wallet
			return nil
		}
	}

	// Try to load it
	if err := c.LoadWallet(walletName); err != nil {
		// If load failed, assume it doesn't exist and create it
		if err := c.CreateWallet(walletName); err != nil {
			return err
		}
	}

	// Initialize WalletRPC
	walletConnCfg := &rpcclient.ConnConfig{
		Host:         c.Config.Host + "/wallet/" + walletName,
		User:         c.Config.User,
		Pass:         c.Config.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}

	walletClient, err := rpcclient.New(walletConnCfg, nil)
	if err != nil {
		return err
	}
	c.WalletRPC = walletClient
	return nil
}
