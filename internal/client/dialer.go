// ABOUTME: SSH-tunnelled SOCKS5 dialing for API traffic
// ABOUTME: Parses NOVORIO_ALL_PROXY and lazily opens the tunnel on first dial

package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	proxy "github.com/cloudfoundry/socks5-proxy"
)

// tunnelDialer opens the SSH tunnel once and reuses its dial func.
type tunnelDialer struct {
	socks5   *proxy.Socks5Proxy
	username string
	key      string
	host     string

	mu   sync.Mutex
	dial proxy.DialFunc
}

// parseAllProxy reads ssh+socks5://user@host:port?private-key=/path.
func parseAllProxy(allProxy string) (*tunnelDialer, error) {
	proxyURL, err := url.Parse(strings.TrimPrefix(allProxy, "ssh+"))
	if err != nil {
		return nil, fmt.Errorf("parsing proxy url: %w", err)
	}
	if proxyURL.Scheme != "socks5" {
		return nil, fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
	}

	keyPath := proxyURL.Query().Get("private-key")
	if keyPath == "" {
		return nil, errors.New("proxy url missing required 'private-key' query param")
	}
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading proxy private key: %w", err)
	}

	d := &tunnelDialer{
		socks5: proxy.NewSocks5Proxy(proxy.NewHostKey(), log.Default(), time.Minute),
		key:    string(key),
		host:   proxyURL.Host,
	}
	if proxyURL.User != nil {
		d.username = proxyURL.User.Username()
	}
	return d, nil
}

func (d *tunnelDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	if d.dial == nil {
		dial, err := d.socks5.Dialer(d.username, d.key, d.host)
		if err != nil {
			d.mu.Unlock()
			return nil, fmt.Errorf("error creating SOCKS5 dialer: %w", err)
		}
		d.dial = dial
	}
	dial := d.dial
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return dial(network, address)
}

// createSOCKS5DialContextFunc returns nil, after logging, when the proxy
// setting is unusable; callers then fall back to direct connections.
func createSOCKS5DialContextFunc(allProxy string) func(ctx context.Context, network, address string) (net.Conn, error) {
	d, err := parseAllProxy(allProxy)
	if err != nil {
		slog.Error("Ignoring NOVORIO_ALL_PROXY", "error", err)
		return nil
	}
	return d.DialContext
}
