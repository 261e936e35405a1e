// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `REVIEWS_`, where `__` maps to “.”
     (e.g., `REVIEWS_HTTP__LISTEN_ADDR → http.listen_addr`).

Before unmarshalling, every string value that starts with `vault:` is
swapped for the secret it names.  The tree is then unmarshalled into
strongly-typed structs, defaulted, validated, and cached in an
`atomic.Pointer` for lock-free reads.

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`, so
    `go run ./cmd/web` works from any sub-directory.
  • Oxford commas, two spaces after periods.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/reviews/internal/vault"
)

const envPrefix = "REVIEWS_"

var current atomic.Pointer[Config]

// SecretResolver turns a `vault:` reference into its plain value.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves REVIEWS_ROOT or climbs directories until conf/global.yaml
// is found.  Falls back to the executable heuristic for production layout.
func rootDir() string {
	if r := os.Getenv("REVIEWS_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads the layered configuration from the discovered root, resolving
// Vault references with a client built from VAULT_ADDR / VAULT_TOKEN.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, rootDir(), nil)
}

// LoadFrom reads configuration rooted at root.  A nil resolver means a Vault
// client is created lazily, and only when a `vault:` value is present.
func LoadFrom(ctx context.Context, root string, secrets SecretResolver) (*Config, error) {
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k, secrets); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	cfg.applyDefaults()
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"force_https", cfg.HTTP.ForceHTTPS,
		"languages", cfg.Site.Languages,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// envKey maps REVIEWS_HTTP__LISTEN_ADDR → http.listen_addr.
func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

// resolveSecrets rewrites `vault:` values in place.
func resolveSecrets(ctx context.Context, k *koanf.Koanf, secrets SecretResolver) error {
	for key, val := range k.All() {
		s, ok := val.(string)
		if !ok || !vault.IsRef(s) {
			continue
		}
		if secrets == nil {
			cli, err := vault.New(ctx)
			if err != nil {
				return err
			}
			secrets = cli
		}
		plain, err := secrets.Resolve(ctx, s)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", key, err)
		}
		if err := k.Set(key, plain); err != nil {
			return err
		}
	}
	return nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config { return current.Load() }
