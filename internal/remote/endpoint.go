package remote

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/xsoft-dev/rsyncx/internal/config"
)

var ErrNoReachableHost = errors.New("no reachable host")

const probeTimeout = 1 * time.Second

// ResolvedEndpoint is the host chosen for the duration of one push/pull.
// It is threaded as a value through every remote call so all
// sub-operations of a run target the same endpoint; it is never written
// back into the server profile.
type ResolvedEndpoint struct {
	Host     string
	Port     int
	User     string
	Password string
	Identity string
}

// Addr returns the host:port dial address.
func (e *ResolvedEndpoint) Addr() string {
	return net.JoinHostPort(e.Host, fmt.Sprintf("%d", e.Port))
}

// UserHost returns the user@host form used by ssh and rsync.
func (e *ResolvedEndpoint) UserHost() string {
	return fmt.Sprintf("%s@%s", e.User, e.Host)
}

// RsyncTarget formats a remote path as an rsync destination.
func (e *ResolvedEndpoint) RsyncTarget(remotePath string) string {
	return fmt.Sprintf("%s:%s", e.UserHost(), remotePath)
}

// Selector picks a reachable endpoint for a server profile. The local
// host gets a single short connectivity probe; the VPN host is assumed
// reachable (probing it would defeat its purpose as a last resort).
type Selector struct {
	Timeout time.Duration
	Dial    func(network, addr string, timeout time.Duration) (net.Conn, error)
}

func NewSelector() *Selector {
	return &Selector{
		Timeout: probeTimeout,
		Dial:    net.DialTimeout,
	}
}

// ChooseHost probes profile.HostLocal:Port and returns it on success,
// falls back to HostVPN otherwise. A single probe is authoritative for
// the run; callers must reuse the returned endpoint for every
// sub-operation.
func (s *Selector) ChooseHost(profile config.ServerProfile) (*ResolvedEndpoint, error) {
	ep := &ResolvedEndpoint{
		Port:     profile.Port,
		User:     profile.User,
		Password: profile.Password,
		Identity: profile.Identity,
	}

	if profile.HostLocal != "" {
		addr := net.JoinHostPort(profile.HostLocal, fmt.Sprintf("%d", profile.Port))
		conn, err := s.Dial("tcp", addr, s.Timeout)
		if err == nil {
			conn.Close()
			ep.Host = profile.HostLocal
			return ep, nil
		}
	}

	if profile.HostVPN != "" {
		ep.Host = profile.HostVPN
		return ep, nil
	}

	return nil, fmt.Errorf("%w: tried local %q and vpn %q", ErrNoReachableHost, profile.HostLocal, profile.HostVPN)
}
