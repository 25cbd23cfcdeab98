// Package sslexpiry provides the ssl-expiry probe implementation.
package sslexpiry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	units "github.com/docker/go-units"

	"github.com/jandubois/healthagent/internal/probe"
)

// Name is the probe subcommand name.
const Name = "ssl-expiry"

const (
	defaultPort    = 443
	connectTimeout = 10 * time.Second

	CriticalDays = 7
	WarningDays  = 30
)

// Certificate is the outcome for one host.
type Certificate struct {
	Status        probe.Status   `json:"status"`
	Message       string         `json:"message"`
	DaysRemaining *int           `json:"value,omitempty"`
	Unit          string         `json:"unit"`
	Details       map[string]any `json:"details"`
}

// Checker inspects TLS certificates.
type Checker struct {
	RootCAs *x509.CertPool // nil uses the system pool
	Timeout time.Duration
	Now     func() time.Time
}

// NewChecker returns a Checker using the system trust store.
func NewChecker() *Checker {
	return &Checker{Timeout: connectTimeout, Now: time.Now}
}

// Classify grades the number of days until expiry.
func Classify(days int) probe.Status {
	switch {
	case days < CriticalDays:
		return probe.StatusCritical
	case days < WarningDays:
		return probe.StatusWarning
	default:
		return probe.StatusOK
	}
}

// ParseHost splits "host" or "host:port".
func ParseHost(spec string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(spec)
	if err != nil {
		if !strings.Contains(spec, ":") {
			return spec, defaultPort, nil
		}
		return "", 0, fmt.Errorf("invalid host %q: %w", spec, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q", spec)
	}
	return host, port, nil
}

// CheckHost performs a verified TLS handshake and grades the leaf
// certificate. Any handshake failure is critical.
func (c *Checker) CheckHost(ctx context.Context, host string, port int) Certificate {
	cert, err := c.fetch(ctx, host, port)
	if err != nil {
		return Certificate{
			Status:  probe.StatusCritical,
			Message: fmt.Sprintf("Failed to check SSL certificate for %s: %v", host, err),
			Unit:    "days",
			Details: map[string]any{"hostname": host, "error": err.Error()},
		}
	}

	remaining := cert.NotAfter.Sub(c.Now())
	days := int(math.Floor(remaining.Hours() / 24))
	expiresIn := "expired"
	if remaining > 0 {
		expiresIn = units.HumanDuration(remaining)
	}

	return Certificate{
		Status:        Classify(days),
		Message:       fmt.Sprintf("Certificate for %s expires in %d days", host, days),
		DaysRemaining: &days,
		Unit:          "days",
		Details: map[string]any{
			"hostname":       host,
			"expiry_date":    cert.NotAfter.UTC().Format(time.RFC3339),
			"days_remaining": days,
			"expires_in":     expiresIn,
			"subject":        cert.Subject.String(),
			"issuer":         cert.Issuer.String(),
		},
	}
}

func (c *Checker) fetch(ctx context.Context, host string, port int) (*x509.Certificate, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.Timeout},
		Config: &tls.Config{
			ServerName: host,
			RootCAs:    c.RootCAs,
			MinVersion: tls.VersionTLS12,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, fmt.Errorf("no peer certificate")
	}
	return certs[0], nil
}

// Check grades every host and reports the worst status and the fewest
// days remaining.
func (c *Checker) Check(ctx context.Context, hosts []string) *probe.Result {
	worst := probe.StatusOK
	minDays, seen := 0, false
	certs := make([]Certificate, 0, len(hosts))

	for _, spec := range hosts {
		var cert Certificate
		host, port, err := ParseHost(spec)
		if err != nil {
			cert = Certificate{
				Status:  probe.StatusCritical,
				Message: err.Error(),
				Unit:    "days",
				Details: map[string]any{"hostname": spec, "error": err.Error()},
			}
		} else {
			cert = c.CheckHost(ctx, host, port)
		}
		certs = append(certs, cert)
		worst = probe.Worst(worst, cert.Status)
		if cert.DaysRemaining != nil && (!seen || *cert.DaysRemaining < minDays) {
			minDays, seen = *cert.DaysRemaining, true
		}
	}

	result := probe.New(worst, fmt.Sprintf("Checked %d SSL certificates", len(hosts))).WithValue(float64(minDays), "days")
	_ = result.Set("certificates", certs)
	return result
}

// SplitHosts splits a comma separated SSL_HOSTS value.
func SplitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// Run executes the probe.
func Run(ctx context.Context, hosts string) *probe.Result {
	list := SplitHosts(hosts)
	if len(list) == 0 {
		return probe.Unknown("no hosts configured, set SSL_HOSTS")
	}
	return NewChecker().Check(ctx, list)
}
