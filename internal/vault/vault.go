// internal/vault/vault.go
//
// Vault client wrapper.
//
// Context
// -------
//   - Provides a concurrency-safe wrapper around the HashiCorp Vault Go SDK.
//   - Adds simple KV-v2 helpers and per-key caching.
//   - Configuration values of the form `vault:<mount>/<path>#<key>` are
//     resolved through Resolve during config load.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx)                        // during boot.
//  2. pw,  err := cli.Resolve(ctx, "vault:secret/db#pw") // config values.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// Prefix marks a configuration value as a Vault reference.
const Prefix = "vault:"

// resolveTTL caches boot-time secrets long enough for Reload() bursts.
const resolveTTL = 5 * time.Minute

//
// SECTION 1.  Public façade
//

// Client is safe for concurrent use.  Zero value is invalid.
type Client struct {
	api *vault.Client

	cacheMu sync.RWMutex
	cache   map[string]cached // canonical path#key → value + expiry.
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client from the environment.
//
// Environment expectations
// ------------------------
// • VAULT_ADDR   – scheme and host of the Vault server.
// • VAULT_TOKEN  – token (falls back to ~/.vault-token).
func New(_ context.Context) (*Client, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		apiCli.SetToken(tok)
	}

	zap.S().Debugw("vault client ready", "addr", cfg.Address)
	return &Client{api: apiCli, cache: make(map[string]cached)}, nil
}

// Resolve fetches the secret named by ref (`vault:<path>#<key>`).
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	path, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	return c.GetKV(ctx, path, key, resolveTTL)
}

// GetKV fetches a single key from a KV-v2 secret.  If ttl > 0 the result is
// cached for that duration.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("secret path and key must be non-empty")
	}

	canonical := secretPath + "#" + key

	if ttl > 0 {
		c.cacheMu.RLock()
		if cv, ok := c.cache[canonical]; ok && time.Now().Before(cv.exp) {
			c.cacheMu.RUnlock()
			return cv.val, nil
		}
		c.cacheMu.RUnlock()
	}

	mount, rel := splitMount(secretPath)
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}
	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", secretPath, key)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[canonical] = cached{val: sval, exp: time.Now().Add(ttl)}
		c.cacheMu.Unlock()
	}
	return sval, nil
}

//
// SECTION 2.  Reference helpers
//

// IsRef reports whether s names a Vault secret.
func IsRef(s string) bool { return strings.HasPrefix(s, Prefix) }

// ParseRef splits `vault:secret/reviews#dsn` into ("secret/reviews", "dsn").
func ParseRef(ref string) (path, key string, err error) {
	if !IsRef(ref) {
		return "", "", fmt.Errorf("not a vault reference: %q", ref)
	}
	body := strings.TrimPrefix(ref, Prefix)
	path, key, ok := strings.Cut(body, "#")
	if !ok || path == "" || key == "" {
		return "", "", fmt.Errorf("vault reference %q must look like vault:<path>#<key>", ref)
	}
	return path, key, nil
}

func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(p, "/")
	return mount, rel
}
