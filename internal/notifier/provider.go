package notifier

import (
	"fmt"
	"strconv"
	"strings"
)

// Security is the transport security of one SMTP connection.
type Security string

const (
	// SecurityImplicit wraps the connection in TLS before the SMTP greeting.
	SecurityImplicit Security = "ssl"
	// SecurityStartTLS upgrades a plain connection with STARTTLS.
	SecurityStartTLS Security = "starttls"
	// SecurityPlain never upgrades the connection.
	SecurityPlain Security = "plain"
)

// Profile is one (port, security) combination to try.
type Profile struct {
	Port     int
	Security Security
}

func (p Profile) String() string {
	return strconv.Itoa(p.Port) + "/" + string(p.Security)
}

// NormalizeSecurity maps the configured security mode and its aliases onto a
// Security. An empty or unknown mode is inferred from the port: 465 means
// implicit TLS, 587 STARTTLS, anything else plain.
func NormalizeSecurity(raw string, port int) Security {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "starttls", "tls":
		return SecurityStartTLS
	case "ssl", "smtps":
		return SecurityImplicit
	case "plain", "none":
		return SecurityPlain
	}
	switch port {
	case 465:
		return SecurityImplicit
	case 587:
		return SecurityStartTLS
	default:
		return SecurityPlain
	}
}

// provider holds the quirks of a well-known mail host.
type provider struct {
	suffixes        []string
	domain          string
	fallbacks       []Profile
	compactPassword bool
}

var providers = []provider{
	{
		suffixes:        []string{"naver.com"},
		domain:          "naver.com",
		fallbacks:       []Profile{{Port: 587, Security: SecurityStartTLS}, {Port: 465, Security: SecurityImplicit}},
		compactPassword: true,
	},
	{
		suffixes: []string{"gmail.com", "google.com"},
		domain:   "gmail.com",
	},
	{
		suffixes: []string{"outlook.com", "office365.com"},
		domain:   "outlook.com",
	},
}

// lookupProvider matches host against the provider table. A suffix matches
// the host itself or any subdomain of it.
func lookupProvider(host string) (provider, bool) {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	for _, p := range providers {
		for _, s := range p.suffixes {
			if host == s || strings.HasSuffix(host, "."+s) {
				return p, true
			}
		}
	}
	return provider{}, false
}

// guessEmailDomain returns the mail domain for a bare login, preferring the
// explicit override.
func guessEmailDomain(host, override string) string {
	if d := strings.TrimPrefix(strings.TrimSpace(override), "@"); d != "" {
		return strings.ToLower(d)
	}
	if p, ok := lookupProvider(host); ok {
		return p.domain
	}
	return ""
}

// ensureEmailAddress appends the guessed domain to a value without "@".
func ensureEmailAddress(value, host, override string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.Contains(value, "@") {
		return value
	}
	if d := guessEmailDomain(host, override); d != "" {
		return value + "@" + d
	}
	return value
}

// connectionProfiles lists the configured profile first, then the
// provider's fallbacks, without duplicates.
func connectionProfiles(host string, port int, security string) []Profile {
	profiles := []Profile{{Port: port, Security: NormalizeSecurity(security, port)}}
	if p, ok := lookupProvider(host); ok {
		profiles = append(profiles, p.fallbacks...)
	}
	return uniqueKeepOrder(profiles)
}

// loginCandidates lists the username as given and, for a bare login without
// "@", the full address on the guessed domain.
func loginCandidates(user, host, override string) []string {
	user = strings.TrimSpace(user)
	candidates := []string{user}
	if !strings.Contains(user, "@") {
		candidates = append(candidates, ensureEmailAddress(user, host, override))
	}
	return nonEmpty(uniqueKeepOrder(candidates))
}

// passwordCandidates lists the password as given and, for providers whose
// app passwords are displayed in groups, a copy with all whitespace removed.
func passwordCandidates(password, host string) []string {
	candidates := []string{password}
	if p, ok := lookupProvider(host); ok && p.compactPassword {
		candidates = append(candidates, strings.Join(strings.Fields(password), ""))
	}
	return nonEmpty(uniqueKeepOrder(candidates))
}

func uniqueKeepOrder[T comparable](items []T) []T {
	seen := make(map[T]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

func nonEmpty(items []string) []string {
	out := items[:0]
	for _, item := range items {
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// describeCandidates renders the search space for log fields.
func describeCandidates(profiles []Profile, users []string, passwords int) string {
	parts := make([]string, len(profiles))
	for i, p := range profiles {
		parts[i] = p.String()
	}
	return fmt.Sprintf("profiles=[%s] users=[%s] passwords=%d",
		strings.Join(parts, " "), strings.Join(users, " "), passwords)
}
