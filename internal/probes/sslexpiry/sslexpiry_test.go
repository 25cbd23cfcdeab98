package sslexpiry

import (
	"context"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jandubois/healthagent/internal/probe"
)

func tlsServer(t *testing.T) (*httptest.Server, string, int) {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return srv, host, port
}

func trusting(srv *httptest.Server) *Checker {
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	c := NewChecker()
	c.RootCAs = pool
	c.Timeout = 2 * time.Second
	return c
}

func TestClassify(t *testing.T) {
	assert.Equal(t, probe.StatusCritical, Classify(-1))
	assert.Equal(t, probe.StatusCritical, Classify(6))
	assert.Equal(t, probe.StatusWarning, Classify(7))
	assert.Equal(t, probe.StatusWarning, Classify(29))
	assert.Equal(t, probe.StatusOK, Classify(30))
}

func TestParseHost(t *testing.T) {
	host, port, err := ParseHost("example.com")
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)
	assert.Equal(t, 443, port)

	host, port, err = ParseHost("example.com:8443")
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)
	assert.Equal(t, 8443, port)

	_, _, err = ParseHost("example.com:https")
	assert.Error(t, err)
}

func TestCheckHostValidCertificate(t *testing.T) {
	srv, host, port := tlsServer(t)
	c := trusting(srv)

	cert := c.CheckHost(context.Background(), host, port)
	assert.Equal(t, probe.StatusOK, cert.Status, cert.Message)
	require.NotNil(t, cert.DaysRemaining)
	assert.Greater(t, *cert.DaysRemaining, WarningDays)
	assert.Equal(t, "days", cert.Unit)
	assert.Equal(t, host, cert.Details["hostname"])
	assert.Equal(t, *cert.DaysRemaining, cert.Details["days_remaining"])
	assert.NotEmpty(t, cert.Details["expires_in"])
}

func TestCheckHostNearExpiry(t *testing.T) {
	srv, host, port := tlsServer(t)
	c := trusting(srv)
	notAfter := srv.Certificate().NotAfter
	c.Now = func() time.Time { return notAfter.Add(-10 * 24 * time.Hour) }

	cert := c.CheckHost(context.Background(), host, port)
	assert.Equal(t, probe.StatusWarning, cert.Status)
	assert.Equal(t, 10, *cert.DaysRemaining)
	assert.Equal(t, "Certificate for "+host+" expires in 10 days", cert.Message)
}

func TestCheckHostUntrusted(t *testing.T) {
	_, host, port := tlsServer(t)
	c := NewChecker()
	c.RootCAs = x509.NewCertPool()

	cert := c.CheckHost(context.Background(), host, port)
	assert.Equal(t, probe.StatusCritical, cert.Status)
	assert.Contains(t, cert.Message, "Failed to check SSL certificate for "+host)
	assert.Nil(t, cert.DaysRemaining)
}

func TestCheckAggregates(t *testing.T) {
	srv, host, port := tlsServer(t)
	c := trusting(srv)
	good := net.JoinHostPort(host, strconv.Itoa(port))

	res := c.Check(context.Background(), []string{good})
	assert.Equal(t, probe.StatusOK, res.Status)
	assert.Equal(t, "Checked 1 SSL certificates", res.Message)
	assert.Equal(t, "days", res.Unit)
	assert.Greater(t, *res.Value, float64(WarningDays))

	res = c.Check(context.Background(), []string{good, "bad:host:spec"})
	assert.Equal(t, probe.StatusCritical, res.Status)
	var certs []Certificate
	ok, err := res.Field("certificates", &certs)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, certs, 2)
	assert.Equal(t, "days", certs[0].Unit)
	assert.Equal(t, "days", certs[1].Unit)
	// Decoded from JSON, so numbers come back as float64.
	assert.Equal(t, float64(*certs[0].DaysRemaining), certs[0].Details["days_remaining"])
}

func TestRunRequiresHosts(t *testing.T) {
	res := Run(context.Background(), " , ")
	assert.Equal(t, probe.StatusUnknown, res.Status)
}
