// Package session handles the only state that outlives a run: the
// session-cookie file read at startup and rewritten once the interface
// has finished its initial navigation, and the optional proxy endpoint
// routing the interface's transport.
package session

import (
	"fmt"
	"os"
	"strings"
)

// Cookie is one name=value pair scoped to the venue domain.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// LoadCookies reads cookies from path. The file holds either one
// name=value pair per line or a single semicolon-joined cookie string; a
// missing file yields no cookies and no error.
func LoadCookies(path, domain string) ([]Cookie, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cookie file %q: %w", path, err)
	}

	content := strings.TrimSpace(string(raw))
	if content == "" {
		return nil, nil
	}

	var parts []string
	if strings.Contains(content, ";") {
		parts = strings.Split(content, ";")
	} else {
		parts = strings.Split(content, "\n")
	}

	var cookies []Cookie
	for _, part := range parts {
		part = strings.TrimSpace(part)
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		cookies = append(cookies, Cookie{
			Name:   strings.TrimSpace(name),
			Value:  strings.TrimSpace(value),
			Domain: domain,
			Path:   "/",
		})
	}
	return cookies, nil
}

// SaveCookies rewrites path with one name=value pair per line.
func SaveCookies(path string, cookies []Cookie) error {
	var b strings.Builder
	for _, c := range cookies {
		fmt.Fprintf(&b, "%s=%s\n", c.Name, c.Value)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write cookie file %q: %w", path, err)
	}
	return nil
}
