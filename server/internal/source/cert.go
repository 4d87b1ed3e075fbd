package source

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/tibiaops/opsdash/server/internal/config"
)

// CertStatus describes the TLS leaf certificate of the metrics source.
type CertStatus struct {
	Endpoint string `json:"endpoint"`
	Status   string `json:"status"` // valid | expiring | expired | unreachable
	DaysLeft int    `json:"days_left"`
	Issuer   string `json:"issuer,omitempty"`
	NotAfter string `json:"not_after,omitempty"`
}

// CheckCert dials the TLS endpoint behind endpoint and reports on its leaf
// certificate. Returns nil for anything that is not an https URL.
func CheckCert(ctx context.Context, endpoint string, tlsOpts config.TLSConfig) *CertStatus {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{Endpoint: endpoint}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: tlsOpts.InsecureSkipVerify, //nolint:gosec
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = "unreachable"
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = "unreachable"
		return cs
	}

	leaf := peerCerts[0]
	daysLeft := time.Until(leaf.NotAfter).Hours() / 24

	cs.NotAfter = leaf.NotAfter.UTC().Format(time.RFC3339)
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(daysLeft))

	switch {
	case daysLeft <= 0:
		cs.Status = "expired"
	case daysLeft <= 30:
		cs.Status = "expiring"
	default:
		cs.Status = "valid"
	}
	return cs
}
