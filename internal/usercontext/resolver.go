// Package usercontext assembles the match-quality user_data payload for a
// Conversions API event. Identity sources are probed in priority order
// (authenticated profile, order record, posted checkout form, session
// customer); the first source that yields any identity fields wins outright.
// Baseline request fields (client IP, user agent, fbp, fbc) and the
// external_id fallback are appended regardless of source.
package usercontext

import (
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"meta-pixel-relay/internal/config"
	"meta-pixel-relay/internal/hashing"
	"meta-pixel-relay/internal/model"
)

// Proxy headers scanned in order for the first valid public client address.
var ipHeaders = []string{
	"CF-Connecting-IP",
	"Client-IP",
	"X-Forwarded-For",
	"X-Forwarded",
	"X-Cluster-Client-IP",
	"Forwarded-For",
	"Forwarded",
}

// Order metadata keys probed for birth-date and gender values.
var (
	birthDateMetaKeys = []string{"billing_birth_date", "birth_date"}
	genderMetaKeys    = []string{"billing_gender", "gender"}
)

// Profile is the resolved authenticated user with persisted attributes.
type Profile struct {
	UserID   int64          `json:"user_id"`
	Customer model.Customer `json:"customer"`
}

// Request carries the visitor's HTTP context as forwarded by the storefront.
type Request struct {
	Headers    http.Header
	RemoteAddr string
	Cookies    map[string]string
	Query      url.Values
}

// Input bundles every optional identity source for one request. Nil sources
// are simply skipped; an Input with nothing set is valid and resolves to a
// baseline-only context.
type Input struct {
	Profile   *Profile
	Order     *model.Order
	Checkout  *model.Customer
	Session   *model.Customer
	SessionID string
	Request   Request
}

// Resolver turns an Input into hashed user_data. Geo defaults come from the
// persisted settings and are applied only when configured.
type Resolver struct {
	now     func() time.Time
	randInt func(lo, hi int64) int64
}

// NewResolver returns a resolver using the system clock.
func NewResolver() *Resolver {
	return &Resolver{
		now: time.Now,
		randInt: func(lo, hi int64) int64 {
			return lo + rand.Int63n(hi-lo+1)
		},
	}
}

// SetNow overrides the clock, for tests.
func (r *Resolver) SetNow(now func() time.Time) { r.now = now }

// Resolve builds the user_data payload for one event. It never fails:
// missing sources leave gaps, and an empty context still carries the
// baseline request fields and an external_id.
func (r *Resolver) Resolve(in Input, geo config.GeoDefaults) model.UserData {
	var (
		user       model.UserData
		dob        string
		gender     string
		externalID string
	)

	switch {
	case in.Profile != nil && in.Profile.UserID > 0:
		user = hashCustomer(in.Profile.Customer)
		dob = in.Profile.Customer.BirthDate
		gender = in.Profile.Customer.Gender
		externalID = strconv.FormatInt(in.Profile.UserID, 10)
	case in.Order != nil:
		user = hashCustomer(in.Order.Billing)
		dob = firstMeta(in.Order.Meta, birthDateMetaKeys)
		if dob == "" {
			dob = in.Order.Billing.BirthDate
		}
		gender = firstMeta(in.Order.Meta, genderMetaKeys)
		if gender == "" {
			gender = in.Order.Billing.Gender
		}
		if in.Order.UserID > 0 {
			externalID = strconv.FormatInt(in.Order.UserID, 10)
		} else if ref := in.Order.Meta["customer_user"]; ref != "" {
			externalID = ref
		} else {
			externalID = fmt.Sprintf("guest_%d", in.Order.ID)
		}
	case in.Checkout != nil && !in.Checkout.IsZero():
		user = hashCustomer(*in.Checkout)
		dob = in.Checkout.BirthDate
		gender = in.Checkout.Gender
		externalID = "checkout_" + in.SessionID
	case in.Session != nil && !in.Session.IsZero():
		user = hashCustomer(*in.Session)
		dob = in.Session.BirthDate
		gender = in.Session.Gender
		externalID = "session_" + in.SessionID
	}

	if d := normalizeBirthDate(dob); d != "" {
		user.BirthDate = hashing.HashPII(d)
	}
	if g := normalizeGender(gender); g != "" {
		user.Gender = hashing.HashPII(g)
	}

	if externalID == "" {
		externalID = "visitor_" + in.SessionID
	}
	user.ExternalID = hashing.HashPII(externalID)

	applyGeoDefaults(&user, geo)

	if ip := clientIP(in.Request); ip != "" {
		user.ClientIP = ip
	}
	if ua := in.Request.Headers.Get("User-Agent"); ua != "" {
		user.ClientUA = ua
	}
	user.FBP = r.fbp(in.Request)
	if fbc := r.fbc(in.Request); fbc != "" {
		user.FBC = fbc
	}
	return user
}

func hashCustomer(c model.Customer) model.UserData {
	return model.UserData{
		Email:     hashing.HashPII(c.Email),
		Phone:     hashing.HashPhone(c.Phone),
		FirstName: hashing.HashPII(c.FirstName),
		LastName:  hashing.HashPII(c.LastName),
		City:      hashing.HashPII(c.City),
		State:     hashing.HashPII(c.State),
		Zip:       hashing.HashPII(c.Postcode),
		Country:   hashing.HashPII(c.Country),
	}
}

func applyGeoDefaults(user *model.UserData, geo config.GeoDefaults) {
	if user.City == "" && geo.City != "" {
		user.City = hashing.HashPII(geo.City)
	}
	if user.State == "" && geo.State != "" {
		user.State = hashing.HashPII(geo.State)
	}
	if user.Zip == "" && geo.Zip != "" {
		user.Zip = hashing.HashPII(geo.Zip)
	}
	if user.Country == "" && geo.Country != "" {
		user.Country = hashing.HashPII(geo.Country)
	}
}

// normalizeBirthDate reduces a birth date to YYYYMMDD digits. Eight digits
// pass through; otherwise common date layouts are parsed and reformatted.
func normalizeBirthDate(dob string) string {
	if dob == "" {
		return ""
	}
	digits := keepDigits(dob)
	if len(digits) == 8 {
		return digits
	}
	for _, layout := range []string{"2006-01-02", "2006/01/02", "02.01.2006", "January 2, 2006"} {
		if t, err := time.Parse(layout, strings.TrimSpace(dob)); err == nil {
			return t.Format("20060102")
		}
	}
	return ""
}

// normalizeGender keeps the first letter and accepts only m/f.
func normalizeGender(gender string) string {
	gender = strings.ToLower(strings.TrimSpace(gender))
	if gender == "" {
		return ""
	}
	switch gender[:1] {
	case "m", "f":
		return gender[:1]
	default:
		return ""
	}
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func firstMeta(meta map[string]string, keys []string) string {
	for _, key := range keys {
		if v := meta[key]; v != "" {
			return v
		}
	}
	return ""
}

// clientIP scans the proxy headers in order and returns the first valid
// public address, falling back to the direct connection address.
func clientIP(req Request) string {
	for _, header := range ipHeaders {
		value := req.Headers.Get(header)
		if value == "" {
			continue
		}
		if i := strings.IndexByte(value, ','); i >= 0 {
			value = value[:i]
		}
		value = strings.TrimSpace(value)
		if ip := net.ParseIP(value); ip != nil && isPublic(ip) {
			return value
		}
	}
	host := req.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if net.ParseIP(host) != nil {
		return host
	}
	return ""
}

func isPublic(ip net.IP) bool {
	return ip.IsGlobalUnicast() && !ip.IsPrivate()
}

// fbp returns the first-party browser identifier, minting a fresh
// fb.1.<unix>.<rand> value when the 90-day cookie is absent.
func (r *Resolver) fbp(req Request) string {
	if v := req.Cookies["_fbp"]; v != "" {
		return v
	}
	return fmt.Sprintf("fb.1.%d.%d", r.now().Unix(), r.randInt(1000000000, 9999999999))
}

// fbc returns the click identifier from the cookie, or derives one from a
// URL-borne fbclid. Absent both, there is no fbc.
func (r *Resolver) fbc(req Request) string {
	if v := req.Cookies["_fbc"]; v != "" {
		return v
	}
	if clickID := req.Query.Get("fbclid"); clickID != "" {
		return fmt.Sprintf("fb.1.%d.%s", r.now().Unix(), clickID)
	}
	return ""
}
