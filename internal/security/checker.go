package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/herbieproject/herbie-dash/internal/config"
)

// Certificate states reported in CertStatus.Status.
const (
	CertValid       = "valid"
	CertExpiring    = "expiring"
	CertExpired     = "expired"
	CertUnreachable = "unreachable"
)

// expiringWithin is the remaining lifetime below which a certificate is
// reported as expiring.
const expiringWithin = 30 * 24 * time.Hour

// CertStatus describes the leaf certificate of an HTTPS source endpoint.
type CertStatus struct {
	Endpoint  string    `json:"endpoint"`
	AuthType  string    `json:"auth_type"`
	Status    string    `json:"status"`
	Issuer    string    `json:"issuer,omitempty"`
	NotAfter  string    `json:"not_after,omitempty"` // RFC3339
	DaysLeft  int       `json:"days_left"`
	CheckedAt time.Time `json:"checked_at"`
}

// Endpoint returns the HTTPS URL a source is fetched from, or "" when the
// source is a local file or plain HTTP.
func Endpoint(src config.Source) string {
	endpoint := src.Endpoint
	if endpoint == "" && src.Type == "gsheet" && src.SpreadsheetID != "" {
		endpoint = "https://docs.google.com"
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != "https" {
		return ""
	}
	return endpoint
}

// Check dials the TLS endpoint for the given source and returns a CertStatus
// describing the leaf certificate.
//
// Returns nil for sources without an HTTPS endpoint. Uses a 10-second dial
// timeout so a slow host does not stall the monitor.
func Check(ctx context.Context, src config.Source) *CertStatus {
	endpoint := Endpoint(src)
	if endpoint == "" {
		return nil
	}
	u, _ := url.Parse(endpoint)

	cs := &CertStatus{
		Endpoint:  endpoint,
		AuthType:  src.Auth.Mode,
		CheckedAt: time.Now().UTC(),
	}
	if cs.AuthType == "" {
		cs.AuthType = "none"
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = CertUnreachable
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = CertUnreachable
		return cs
	}

	leaf := peerCerts[0]
	left := leaf.NotAfter.Sub(time.Now())

	cs.NotAfter = leaf.NotAfter.UTC().Format(time.RFC3339)
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(left.Hours() / 24))

	switch {
	case left <= 0:
		cs.Status = CertExpired
	case left <= expiringWithin:
		cs.Status = CertExpiring
	default:
		cs.Status = CertValid
	}
	return cs
}
