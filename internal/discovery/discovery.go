// Package discovery resolves and advertises the authority on the local
// network over mDNS. The service type and TXT properties match the
// authority's zeroconf registration, so either side can be replaced
// independently.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service the authority registers under.
	ServiceType = "_recurringevents._tcp"

	// Domain is the mDNS domain; always local.
	Domain = "local."

	// InstancePrefix prefixes the advertised instance name.
	InstancePrefix = "RecurringEvents"

	// DefaultAPIPath is the API base path advertised in TXT when the
	// authority does not override it.
	DefaultAPIPath = "/api"
)

// ErrNoAuthority is returned when browsing finds no advertised authority
// within the timeout.
var ErrNoAuthority = errors.New("discovery: no authority found on the local network")

// Discover browses the local network and returns the endpoint of the first
// advertised authority, e.g. "http://192.168.1.10:8000/api".
func Discover(ctx context.Context, timeout time.Duration) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("discovery: resolver: %w", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(browseCtx, ServiceType, Domain, entries); err != nil {
		return "", fmt.Errorf("discovery: browse: %w", err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNoAuthority
			}
			if endpoint, ok := endpointFromEntry(entry); ok {
				cancel()
				return endpoint, nil
			}
		case <-browseCtx.Done():
			return "", ErrNoAuthority
		}
	}
}

func endpointFromEntry(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return "", false
	}
	path := DefaultAPIPath
	for _, txt := range entry.Text {
		if v, ok := strings.CutPrefix(txt, "path="); ok && v != "" {
			path = v
		}
	}
	return fmt.Sprintf("http://%s:%d%s", entry.AddrIPv4[0], entry.Port, path), true
}

// Advertiser keeps an mDNS registration alive until shut down.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers the authority on the local network. The serverID is
// published in TXT so clients can tell multiple authorities apart.
func Advertise(port int, serverID string) (*Advertiser, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "authority"
	}
	instance := fmt.Sprintf("%s-%s", InstancePrefix, hostname)

	txt := []string{
		"path=" + DefaultAPIPath,
		"proto=1",
		"server_id=" + serverID,
	}

	server, err := zeroconf.Register(instance, ServiceType, Domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Shutdown unregisters the service.
func (a *Advertiser) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}
