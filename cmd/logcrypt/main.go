package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/kenneth/logcrypt/internal/audit"
	"github.com/kenneth/logcrypt/internal/config"
	"github.com/kenneth/logcrypt/internal/crypto"
	"github.com/kenneth/logcrypt/internal/metrics"
	"github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)
	logger.SetOutput(os.Stderr)

	configPath := flag.String("config", defaultConfigPath(), "path to the configuration file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Set log level from config
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
	}).Info("Starting logcrypt")

	// Initialize metrics
	m := metrics.NewMetrics()

	// Serve /metrics and /healthz if an address is configured
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		router := mux.NewRouter()
		router.Handle("/metrics", m.Handler()).Methods("GET")
		router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		}).Methods("GET")
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.WithField("addr", cfg.MetricsAddr).Info("Starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Initialize audit logger if enabled
	var auditLogger audit.Logger
	if cfg.Audit.Enabled {
		auditLogger = audit.NewLogger(cfg.Audit.MaxEvents, nil)
		logger.WithField("max_events", cfg.Audit.MaxEvents).Info("Audit logging enabled")
	}

	// Build the cipher context from configuration
	cctx, err := buildContext(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build cipher context")
	}

	// The signal context cancels a reader blocked on side-file creation
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		audit:   auditLogger,
		cctx:    cctx,
	}

	switch args[0] {
	case "encrypt":
		if len(args) != 3 {
			usage()
			os.Exit(2)
		}
		err = app.encrypt(args[1], args[2])
	case "decrypt":
		out := ""
		if len(args) == 3 {
			out = args[2]
		}
		err = app.decrypt(ctx, args[1], out)
	default:
		usage()
		os.Exit(2)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	if err != nil {
		logger.WithError(err).Fatal("Operation failed")
	}
}

func defaultConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yaml"
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  logcrypt [flags] encrypt <input> <output>
  logcrypt [flags] decrypt <encrypted> [output]

encrypt reads <input>, encrypts it, and writes the ciphertext to <output>
with its encryption info side file alongside at <output>%s.

decrypt reads <encrypted> and its side file, and writes the plaintext to
[output] or standard output. If the side file does not exist yet, decrypt
waits for the writer to create it.

Flags:
`, ".encinfo")
	flag.PrintDefaults()
}

// buildContext translates the encryption configuration into a frozen cipher
// context. Exactly one key source is set; config validation enforces that.
func buildContext(cfg *config.Config) (*crypto.Context, error) {
	cctx := crypto.NewContext()
	if err := cctx.SetAlgorithm(cfg.Encryption.Algorithm); err != nil {
		return nil, err
	}
	if err := cctx.SetMode(cfg.Encryption.Mode); err != nil {
		return nil, err
	}

	switch {
	case cfg.Encryption.KeyHex != "":
		key, err := hex.DecodeString(cfg.Encryption.KeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid key_hex: %w", err)
		}
		if err := cctx.SetKey(key); err != nil {
			return nil, err
		}
	case cfg.Encryption.KeyFile != "":
		data, err := os.ReadFile(cfg.Encryption.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		key := []byte(strings.TrimRight(string(data), "\r\n"))
		if err := cctx.SetKey(key); err != nil {
			return nil, err
		}
	case cfg.Encryption.Passphrase != "":
		err := cctx.SetKeyFromPassphrase(
			cfg.Encryption.Passphrase,
			[]byte(cfg.Encryption.PBKDF2.Salt),
			cfg.Encryption.PBKDF2.Iterations,
		)
		if err != nil {
			return nil, err
		}
	}
	return cctx, nil
}

type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
	audit   audit.Logger
	cctx    *crypto.Context
}

func (a *app) options() *crypto.Options {
	return &crypto.Options{
		Logger:       a.logger,
		Metrics:      a.metrics,
		PollInterval: a.cfg.Reader.PollInterval,
	}
}

// encrypt encrypts the input file in one pass and finalizes the side file
// with the ciphertext length as the END offset.
func (a *app) encrypt(inPath, outPath string) error {
	plaintext, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	start := time.Now()
	cf, err := crypto.OpenWrite(a.cctx, outPath, a.options())
	a.logAudit(func(l audit.Logger) {
		l.LogOpen(audit.EventTypeOpenWrite, outPath,
			a.cfg.Encryption.Algorithm, a.cfg.Encryption.Mode, err, time.Since(start))
	})
	if err != nil {
		return err
	}

	opStart := time.Now()
	ciphertext, err := cf.Encrypt(plaintext)
	a.logAudit(func(l audit.Logger) {
		l.LogOperation(audit.EventTypeEncrypt, outPath, len(ciphertext), err, time.Since(opStart))
	})
	if err != nil {
		cf.Close(0)
		return err
	}

	if err := os.WriteFile(outPath, ciphertext, 0o600); err != nil {
		cf.Close(0)
		return fmt.Errorf("failed to write output file: %w", err)
	}

	offset := int64(len(ciphertext))
	cf.Close(offset)
	a.logAudit(func(l audit.Logger) { l.LogClose(outPath, offset) })

	a.logger.WithFields(logrus.Fields{
		"input":  inPath,
		"output": outPath,
		"bytes":  len(ciphertext),
	}).Info("File encrypted")
	return nil
}

// decrypt decrypts an encrypted file, bounding the ciphertext by the END
// record when the writer has finalized the side file.
func (a *app) decrypt(ctx context.Context, inPath, outPath string) error {
	if a.cfg.Reader.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Reader.WaitTimeout)
		defer cancel()
	}

	start := time.Now()
	cf, err := crypto.OpenRead(ctx, a.cctx, inPath, a.options())
	a.logAudit(func(l audit.Logger) {
		l.LogOpen(audit.EventTypeOpenRead, inPath,
			a.cfg.Encryption.Algorithm, a.cfg.Encryption.Mode, err, time.Since(start))
	})
	if err != nil {
		return err
	}
	defer func() {
		cf.Close(0)
		a.logAudit(func(l audit.Logger) { l.LogClose(inPath, 0) })
	}()

	ciphertext, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to read encrypted file: %w", err)
	}

	// A finalized side file bounds the block; a still-running writer does
	// not, so fall back to the ciphertext on disk.
	if end, eerr := cf.EndOffset(); eerr == nil && end < int64(len(ciphertext)) {
		ciphertext = ciphertext[:end]
	}

	opStart := time.Now()
	plaintext, err := cf.Decrypt(ciphertext)
	a.logAudit(func(l audit.Logger) {
		l.LogOperation(audit.EventTypeDecrypt, inPath, len(ciphertext), err, time.Since(opStart))
	})
	if err != nil {
		return err
	}

	if outPath == "" {
		if _, err := os.Stdout.Write(plaintext); err != nil {
			return fmt.Errorf("failed to write plaintext: %w", err)
		}
	} else if err := os.WriteFile(outPath, plaintext, 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	a.logger.WithFields(logrus.Fields{
		"input": inPath,
		"bytes": len(plaintext),
	}).Info("File decrypted")
	return nil
}

func (a *app) logAudit(fn func(audit.Logger)) {
	if a.audit != nil {
		fn(a.audit)
	}
}
