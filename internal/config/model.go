// internal/config/model.go
//
// Typed configuration model for the reviews site.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                           – dotenv values,
//   • `conf/global.yaml`                        – primary static file,
//   • `REVIEWS_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr   string        `koanf:"listen_addr"   validate:"required,hostname_port"`
	ForceHTTPS   bool          `koanf:"force_https"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
}

//
// Database section
//

// Database holds the DSN and pool sizes.  The DSN usually references Vault
// (`vault:secret/reviews#dsn`) so credentials stay out of flat files.
type Database struct {
	DSN     string `koanf:"dsn"      validate:"required"`
	MaxOpen int    `koanf:"max_open" validate:"gte=0"`
	MaxIdle int    `koanf:"max_idle" validate:"gte=0"`
}

//
// Session and CSRF secrets
//

// Session configures the signed session cookie.
type Session struct {
	Secret     string        `koanf:"secret"      validate:"required,min=32"`
	CookieName string        `koanf:"cookie_name"`
	MaxAge     time.Duration `koanf:"max_age"`
}

// CSRF holds the HMAC key used for stateless form tokens.
type CSRF struct {
	Secret string `koanf:"secret" validate:"required,min=32"`
}

//
// Site section
//

// Site describes user-facing behaviour.  Dev enables verbose error pages.
// Accounts registered under a name listed in SuperUsers get the superuser
// role.
type Site struct {
	Name       string   `koanf:"name"`
	Dev        bool     `koanf:"dev"`
	Languages  []string `koanf:"languages" validate:"required,min=1,dive,oneof=en de fr"`
	SuperUsers []string `koanf:"superusers"`
}

//
// Question CAPTCHA
//

// Challenge is one question/answer pair.  Both values are message keys so
// the question and the expected answer are localised.
type Challenge struct {
	Question string `koanf:"question" validate:"required"`
	Answer   string `koanf:"answer"   validate:"required"`
}

// Captcha lists the forms protected by a question CAPTCHA and the ordered
// challenge pool.  A challenge is addressed by its index.
type Captcha struct {
	Forms      map[string]bool `koanf:"forms"`
	Challenges []Challenge     `koanf:"challenges" validate:"dive"`
}

//
// Reviews section
//

// Reviews tunes the review component.
type Reviews struct {
	RequireTrusted bool `koanf:"require_trusted"`
	RecentLimit    int  `koanf:"recent_limit" validate:"gte=0"`
}

//
// Ancillary sections
//

// Log selects the minimum log level.
type Log struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

// GeoIP points at an optional GeoLite2-City database.
type GeoIP struct {
	Path string `koanf:"path"`
}

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // REVIEWS_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Session  Session  `koanf:"session"`
	CSRF     CSRF     `koanf:"csrf"`
	Site     Site     `koanf:"site"`
	Captcha  Captcha  `koanf:"captcha"`
	Reviews  Reviews  `koanf:"reviews"`
	Log      Log      `koanf:"log"`
	GeoIP    GeoIP    `koanf:"geoip"`
	Paths    Paths    `koanf:"-"`
}

// applyDefaults fills optional knobs the YAML may omit.
func (c *Config) applyDefaults() {
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.Database.MaxOpen == 0 {
		c.Database.MaxOpen = 15
	}
	if c.Database.MaxIdle == 0 {
		c.Database.MaxIdle = 5
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "reviews_session"
	}
	if c.Session.MaxAge == 0 {
		c.Session.MaxAge = 14 * 24 * time.Hour
	}
	if c.Site.Name == "" {
		c.Site.Name = "reviews"
	}
	if c.Reviews.RecentLimit == 0 {
		c.Reviews.RecentLimit = 20
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
