//
//  internal/requestinfo/requestinfo.go
//
//  Per-request metadata: user-agent fingerprint, client IP with optional
//  geolocation, URL, and timestamp.  These structs are inert.  They hold no
//  database handles or large buffers, so they are safe to log.
//
//  Dependencies
//  • github.com/avct/uasurfer          (UA parsing)
//  • github.com/oschwald/geoip2-golang (MaxMind lookup, optional)
//

package requestinfo

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	surfer "github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

//
//  -----------------------------
//  Struct definitions
//  -----------------------------
//

// UA holds the parsed user-agent properties.
//
// Device is one of "Desktop", "Mobile", "Tablet", "Bot", or "Other".
type UA struct {
	Raw       string
	Browser   string // "BrowserChrome", "BrowserFirefox", …
	Version   string // "124.0.6367", trailing zeros trimmed
	OS        string
	OSVersion string
	Device    string
	Platform  string
	IsBot     bool
}

// Geo holds IP-based geolocation hints.  They are best-effort and empty
// when no database is configured or it has no match.
type Geo struct {
	IP         net.IP
	CountryISO string
	City       string
}

// RequestInfo is attached to the request context by Enricher.Middleware.
type RequestInfo struct {
	UA        UA
	Geo       Geo
	URL       *url.URL // pointer copy, read-only
	Timestamp time.Time
}

type ctxKey struct{} // unexported, collision-proof

// FromContext returns the value stored by the middleware, or nil.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

// NewContext stores info in ctx.
func NewContext(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

/*──────────────────────────── enricher ─────────────────────────────────────*/

// Enricher parses each request once.  The MaxMind reader is safe for
// concurrent reads, which is all we ever perform.
type Enricher struct {
	geo *geoip2.Reader
}

// NewEnricher opens the GeoLite2-City database at geoPath.  An empty path
// disables geolocation.
func NewEnricher(geoPath string) (*Enricher, error) {
	if geoPath == "" {
		return &Enricher{}, nil
	}
	r, err := geoip2.Open(geoPath)
	if err != nil {
		return nil, fmt.Errorf("requestinfo: open GeoLite2 DB: %w", err)
	}
	return &Enricher{geo: r}, nil
}

// Close releases the geo database.
func (e *Enricher) Close() error {
	if e.geo == nil {
		return nil
	}
	return e.geo.Close()
}

// Middleware attaches *RequestInfo and forwards.
func (e *Enricher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &RequestInfo{
			UA:        ParseUA(r.UserAgent()),
			Geo:       e.lookup(clientIP(r)),
			URL:       r.URL,
			Timestamp: time.Now().UTC(),
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), info)))
	})
}

func (e *Enricher) lookup(ip net.IP) Geo {
	if e.geo == nil || ip == nil {
		return Geo{IP: ip}
	}
	rec, err := e.geo.City(ip)
	if err != nil {
		return Geo{IP: ip}
	}
	return Geo{IP: ip, CountryISO: rec.Country.IsoCode, City: rec.City.Names["en"]}
}

/*──────────────────────────── parsing helpers ──────────────────────────────*/

// ParseUA converts a raw header into UA.
func ParseUA(raw string) UA {
	ua := surfer.Parse(raw)

	info := UA{
		Raw:       raw,
		Browser:   ua.Browser.Name.String(),
		Version:   versionToString(ua.Browser.Version),
		OS:        ua.OS.Name.String(),
		OSVersion: versionToString(ua.OS.Version),
		Platform:  ua.OS.Platform.String(),
		IsBot:     ua.IsBot(),
	}

	switch ua.DeviceType {
	case surfer.DeviceComputer:
		info.Device = "Desktop"
	case surfer.DeviceTablet:
		info.Device = "Tablet"
	case surfer.DevicePhone, surfer.DeviceWearable:
		info.Device = "Mobile"
	default:
		info.Device = "Other"
	}
	if info.IsBot {
		info.Device = "Bot"
	}
	return info
}

// versionToString renders 17.0.0 → "17", 17.3.0 → "17.3", 17.3.1 → "17.3.1".
func versionToString(v surfer.Version) string {
	switch {
	case v.Major == 0 && v.Minor == 0 && v.Patch == 0:
		return ""
	case v.Patch != 0:
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	case v.Minor != 0:
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	default:
		return strconv.Itoa(int(v.Major))
	}
}

// clientIP extracts the left-most address from X-Forwarded-For or
// X-Real-IP, falling back to r.RemoteAddr ("ip:port").
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(r.RemoteAddr)
}
