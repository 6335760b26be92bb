package api

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psaab/bigsh/pkg/configstore"
	"github.com/psaab/bigsh/pkg/datastore"
	"github.com/psaab/bigsh/pkg/logging"
	"github.com/psaab/bigsh/pkg/metrics"
	"github.com/psaab/bigsh/pkg/runconfig"
)

// Config configures the API server. Data, Metrics and Logs are optional.
type Config struct {
	Addr      string
	HTTPSAddr string // empty disables HTTPS
	// TLSDir holds the self-signed certificate; empty keeps it in memory.
	TLSDir string
	Auth   *AuthConfig // nil = no authentication

	Generator *runconfig.Generator
	Querier   datastore.Querier
	// Data is served on the datastore endpoints with SchemaJSON.
	Data       datastore.Store
	SchemaJSON []byte
	Snapshots  *configstore.Store
	Logs       *logging.Buffer
	Metrics    *metrics.Collector
	Options    runconfig.Options
	Logger     *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	httpServer  *http.Server
	httpsServer *http.Server
	handler     http.Handler
	g           *runconfig.Generator
	q           datastore.Querier
	snaps       *configstore.Store
	logs        *logging.Buffer
	opts        runconfig.Options
	log         *slog.Logger
	startTime   time.Time
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	s := &Server{
		g:         cfg.Generator,
		q:         cfg.Querier,
		snaps:     cfg.Snapshots,
		logs:      cfg.Logs,
		opts:      cfg.Options,
		log:       cfg.Logger,
		startTime: time.Now(),
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.snaps == nil {
		s.snaps = configstore.New(50, nil, s.log)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{}))
	}
	if cfg.Data != nil {
		datastore.NewHandler(cfg.Data, cfg.SchemaJSON, s.log).Register(mux)
	}

	mux.HandleFunc("GET /api/v1/running-config", s.runningConfigHandler)
	mux.HandleFunc("GET /api/v1/top-paths", s.topPathsHandler)
	mux.HandleFunc("GET /api/v1/snapshots", s.snapshotsHandler)
	mux.HandleFunc("GET /api/v1/snapshots/compare", s.compareHandler)
	mux.HandleFunc("GET /api/v1/snapshots/{ref}", s.snapshotHandler)
	mux.HandleFunc("GET /api/v1/logs/stream", s.logStreamHandler)

	var handler http.Handler = mux
	if cfg.Auth != nil {
		handler = authMiddleware(*cfg.Auth, mux)
	}
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.HTTPSAddr != "" {
		cert, err := selfSignedCert(cfg.TLSDir)
		if err != nil {
			s.log.Warn("failed to generate self-signed certificate", "err", err)
		} else {
			s.httpsServer = &http.Server{
				Addr:              cfg.HTTPSAddr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
				TLSConfig: &tls.Config{
					Certificates: []tls.Certificate{cert},
					MinVersion:   tls.VersionTLS12,
				},
			}
		}
	}
	return s
}

// Handler returns the routed handler, including authentication.
func (s *Server) Handler() http.Handler { return s.handler }

// Run starts the HTTP (and optionally HTTPS) server and blocks until ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() {
		s.log.Info("HTTP API server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if s.httpsServer != nil {
		go func() {
			s.log.Info("HTTPS API server listening", "addr", s.httpsServer.Addr)
			if err := s.httpsServer.ListenAndServeTLS("", ""); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.httpsServer != nil {
		s.httpsServer.Shutdown(shutdownCtx)
	}
	return s.httpServer.Shutdown(shutdownCtx)
}

// selfSignedCert loads the certificate kept in dir, or generates an ECDSA
// P-256 certificate and stores it there.
func selfSignedCert(dir string) (tls.Certificate, error) {
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	if dir != "" {
		if cert, err := tls.LoadX509KeyPair(certPath, keyPath); err == nil {
			return cert, nil
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "bigsh"
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: hostname, Organization: []string{"bigsh"}},
		DNSNames:     []string{hostname, "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(2 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return tls.Certificate{}, err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return tls.Certificate{}, fmt.Errorf("tls dir: %w", err)
		}
		if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
			return tls.Certificate{}, err
		}
		if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
			return tls.Certificate{}, err
		}
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}
