package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mammothweb/mammoth/internal/config"
	"github.com/mammothweb/mammoth/internal/hosts"
	"github.com/mammothweb/mammoth/module"
)

// configFor derives the server configuration from the hosts a test binds,
// so listener settings and resolution always agree.
func configFor(bound ...*hosts.BoundHost) *config.Config {
	cfg := &config.Config{}
	for _, bh := range bound {
		cfg.Hosts = append(cfg.Hosts, bh.Config)
	}
	return cfg
}

// startServer runs Start on a background goroutine and waits for the
// listener. Tests configure port 0 and read the real port back via Addr.
func startServer(t *testing.T, bound ...*hosts.BoundHost) (*Server, func()) {
	t.Helper()

	res, err := hosts.NewResolver(bound)
	require.NoError(t, err)
	srv := New(configFor(bound...), res, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr(0) != "" },
		2*time.Second, 10*time.Millisecond, "server never started listening")

	stop := func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down")
		}
	}
	return srv, stop
}

func baseURL(t *testing.T, srv *Server, scheme string) string {
	t.Helper()

	_, port, err := net.SplitHostPort(srv.Addr(0))
	require.NoError(t, err)
	return fmt.Sprintf("%s://127.0.0.1:%s", scheme, port)
}

func fetch(t *testing.T, client *http.Client, url, hostHeader string) (int, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if hostHeader != "" {
		req.Host = hostHeader
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServerTwoHostsOnOnePort(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("static landing"), 0o644))

	named := boundHost("localhost", 0, "", loadedWith("echo", answering(http.StatusOK, "module answer")))
	fallback := boundHost("", 0, dir)

	srv, stop := startServer(t, named, fallback)
	defer stop()

	base := baseURL(t, srv, "http")
	client := &http.Client{}

	status, body := fetch(t, client, base+"/", "localhost")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "module answer", body)

	status, body = fetch(t, client, base+"/", "elsewhere.test")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "static landing", body)
}

func TestServerModuleErrorDoesNotKillServer(t *testing.T) {
	moody := &scriptedModule{handle: func(_ context.Context, req *module.Request) (*module.Response, error) {
		if req.Path == "/boom" {
			return nil, fmt.Errorf("deliberate failure")
		}
		return &module.Response{Body: []byte("still alive")}, nil
	}}

	srv, stop := startServer(t, boundHost("localhost", 0, "", loadedWith("moody", moody)))
	defer stop()

	base := baseURL(t, srv, "http")
	client := &http.Client{}

	status, _ := fetch(t, client, base+"/boom", "localhost")
	assert.Equal(t, http.StatusInternalServerError, status)

	status, body := fetch(t, client, base+"/", "localhost")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "still alive", body)
}

func TestServerTLS(t *testing.T) {
	certFile, keyFile := writeTestCert(t)

	secure := true
	bh := boundHost("localhost", 0, "", loadedWith("echo", answering(http.StatusOK, "over tls")))
	bh.Config.Listen = config.Binding{Port: 0, Secure: &secure, Cert: certFile, Key: keyFile}

	srv, stop := startServer(t, bh)
	defer stop()

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}}
	defer client.CloseIdleConnections()

	status, body := fetch(t, client, baseURL(t, srv, "https")+"/", "localhost")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "over tls", body)
}

func TestServerConnectionCapStillServes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("capped"), 0o644))

	bh := boundHost("", 0, dir)
	bh.Config.Listen = config.Binding{Port: 0, MaxConns: 2}

	srv, stop := startServer(t, bh)
	defer stop()

	base := baseURL(t, srv, "http")
	client := &http.Client{}
	for i := 0; i < 3; i++ {
		status, body := fetch(t, client, base+"/", "")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "capped", body)
	}
}

func TestServerMixedTLSOnOnePortFails(t *testing.T) {
	secure := true
	a := boundHost("a.test", 4443, "")
	a.Config.Listen = config.Binding{Port: 4443, Secure: &secure, Cert: "cert.pem", Key: "key.pem"}
	b := boundHost("b.test", 4443, "")

	res, err := hosts.NewResolver([]*hosts.BoundHost{a, b})
	require.NoError(t, err)
	srv := New(configFor(a, b), res, quietLogger())

	err = srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mix plain and TLS")
}

func TestServerNoPortsFails(t *testing.T) {
	res, err := hosts.NewResolver(nil)
	require.NoError(t, err)
	srv := New(&config.Config{}, res, quietLogger())

	err = srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ports")
}

func TestServerShutdownIsIdempotent(t *testing.T) {
	srv, stop := startServer(t, boundHost("localhost", 0, "", loadedWith("echo", answering(http.StatusOK, "ok"))))
	stop()

	require.NoError(t, srv.Shutdown(context.Background()))
}

// writeTestCert generates a throwaway self-signed certificate good for
// localhost and 127.0.0.1.
func writeTestCert(t *testing.T) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "mammoth test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")

	var certPEM bytes.Buffer
	require.NoError(t, pem.Encode(&certPEM, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, os.WriteFile(certFile, certPEM.Bytes(), 0o600))

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	var keyPEM bytes.Buffer
	require.NoError(t, pem.Encode(&keyPEM, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	require.NoError(t, os.WriteFile(keyFile, keyPEM.Bytes(), 0o600))

	return certFile, keyFile
}
