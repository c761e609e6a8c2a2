// Package urlpattern parses and matches the URL match patterns extensions use
// to declare host permissions and content script targets.
//
// A pattern has the form <scheme>://<host><path>. The host is either "*"
// (any host), "*.<domain>" (the domain and every subdomain), or an exact host.
// A "*" in the path matches any run of characters. file patterns have an
// empty host: file:///home/*.
package urlpattern

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const schemeSeparator = "://"

// ValidSchemes lists the schemes a pattern may use.
var ValidSchemes = []string{"http", "https", "file", "ftp", "extension"}

// Parse errors, wrapped with the offending pattern.
var (
	// ErrMissingScheme means the pattern has no "://" separator.
	ErrMissingScheme = errors.New("missing scheme separator")
	// ErrBadScheme means the scheme is not in ValidSchemes.
	ErrBadScheme = errors.New("unsupported scheme")
	// ErrMissingPath means nothing follows the host, or the path lacks a leading "/".
	ErrMissingPath = errors.New("missing path")
	// ErrBadHost means the host is empty or uses "*" outside a leading "*.".
	ErrBadHost = errors.New("invalid host")
)

// Pattern is a parsed URL match pattern. The zero value is not valid.
type Pattern struct {
	scheme          string
	host            string
	matchSubdomains bool
	path            string
}

// Parse parses s into a Pattern.
func Parse(s string) (Pattern, error) {
	scheme, rest, ok := strings.Cut(s, schemeSeparator)
	if !ok {
		return Pattern{}, fmt.Errorf("parsing pattern %q: %w", s, ErrMissingScheme)
	}
	if !isValidScheme(scheme) {
		return Pattern{}, fmt.Errorf("parsing pattern %q: %w %q", s, ErrBadScheme, scheme)
	}

	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return Pattern{}, fmt.Errorf("parsing pattern %q: %w", s, ErrMissingPath)
	}
	host, path := rest[:slash], rest[slash:]

	p := Pattern{scheme: scheme, path: path}

	if scheme == "file" {
		if host != "" {
			return Pattern{}, fmt.Errorf("parsing pattern %q: %w: file patterns take no host", s, ErrBadHost)
		}
		return p, nil
	}

	switch {
	case host == "*":
		p.matchSubdomains = true
	case strings.HasPrefix(host, "*."):
		p.matchSubdomains = true
		p.host = host[2:]
		if p.host == "" {
			return Pattern{}, fmt.Errorf("parsing pattern %q: %w", s, ErrBadHost)
		}
	default:
		p.host = host
	}

	if p.host == "" && !p.matchSubdomains {
		return Pattern{}, fmt.Errorf("parsing pattern %q: %w: empty host", s, ErrBadHost)
	}
	if strings.Contains(p.host, "*") {
		return Pattern{}, fmt.Errorf("parsing pattern %q: %w: wildcard only allowed as leading label", s, ErrBadHost)
	}

	return p, nil
}

// MustParse is like Parse but panics on error. For tests and constants.
func MustParse(s string) Pattern {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Scheme returns the pattern's scheme.
func (p Pattern) Scheme() string { return p.scheme }

// Host returns the host without any leading wildcard label.
func (p Pattern) Host() string { return p.host }

// MatchSubdomains reports whether the host had a leading "*" label.
func (p Pattern) MatchSubdomains() bool { return p.matchSubdomains }

// Path returns the path glob.
func (p Pattern) Path() string { return p.path }

// String returns the canonical form of the pattern.
func (p Pattern) String() string {
	var b strings.Builder
	b.WriteString(p.scheme)
	b.WriteString(schemeSeparator)
	if p.matchSubdomains {
		b.WriteByte('*')
		if p.host != "" {
			b.WriteByte('.')
		}
	}
	b.WriteString(p.host)
	b.WriteString(p.path)
	return b.String()
}

// MatchesURL reports whether u falls within the pattern.
func (p Pattern) MatchesURL(u *url.URL) bool {
	if u == nil || u.Scheme != p.scheme {
		return false
	}
	if p.scheme != "file" {
		host := u.Hostname()
		if strings.Contains(p.host, ":") {
			host = u.Host
		}
		if !p.MatchesHost(host) {
			return false
		}
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return matchGlob(p.path, path)
}

// MatchesHost reports whether host satisfies the host part of the pattern.
func (p Pattern) MatchesHost(host string) bool {
	host = strings.ToLower(host)
	want := strings.ToLower(p.host)
	if host == want {
		return true
	}
	if !p.matchSubdomains {
		return false
	}
	if want == "" {
		return true
	}
	return strings.HasSuffix(host, "."+want)
}

// MarshalText implements encoding.TextMarshaler.
func (p Pattern) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pattern) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func isValidScheme(scheme string) bool {
	for _, s := range ValidSchemes {
		if s == scheme {
			return true
		}
	}
	return false
}

// matchGlob matches s against a pattern where '*' matches any run of
// characters, including '/'.
func matchGlob(pattern, s string) bool {
	px, sx := 0, 0
	starPx, starSx := -1, 0
	for sx < len(s) {
		switch {
		case px < len(pattern) && pattern[px] == '*':
			starPx, starSx = px, sx
			px++
		case px < len(pattern) && pattern[px] == s[sx]:
			px++
			sx++
		case starPx >= 0:
			starSx++
			px, sx = starPx+1, starSx
		default:
			return false
		}
	}
	for px < len(pattern) && pattern[px] == '*' {
		px++
	}
	return px == len(pattern)
}
