package session

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Proxy is an outbound proxy endpoint with optional embedded credentials.
type Proxy struct {
	Server   string // scheme://host:port, credentials stripped
	Username string
	Password string
}

// LoadProxy reads a single proxy URL from path. A missing or empty file
// means no proxy and returns (nil, nil).
func LoadProxy(path string) (*Proxy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read proxy file %q: %w", path, err)
	}

	line := strings.TrimSpace(string(raw))
	if line == "" {
		return nil, nil
	}

	parsed, err := url.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("proxy url %q missing scheme or host", line)
	}

	proxy := &Proxy{Server: parsed.Scheme + "://" + parsed.Host}
	if parsed.User != nil {
		proxy.Username = parsed.User.Username()
		proxy.Password, _ = parsed.User.Password()
	}
	return proxy, nil
}
