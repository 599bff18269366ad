package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"skyprefs/internal/appviewstub"
	"skyprefs/internal/cli"
	"skyprefs/internal/session"
	"skyprefs/pkg/config"
	"skyprefs/pkg/logging"
	"skyprefs/pkg/monitoring"
	"skyprefs/pkg/server"
	"skyprefs/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService(appviewstub.ServiceName)
	config.LoadEnv(logger)
	if config.GetEnvBool("STUB_DEBUG", false) {
		logger.SetLevel(logging.DebugLevel)
	}

	signingKey := config.GetEnv("STUB_SIGNING_KEY", "")
	publicURL := config.GetEnv("STUB_PUBLIC_URL", "http://localhost:8090")
	accountsFile := config.GetEnv("STUB_ACCOUNTS_FILE", "")
	// did=handle pairs
	seeds := config.GetEnvList("STUB_ACCOUNTS", []string{"did:plc:alice=alice.test"})

	metricsCollector := monitoring.NewMetricsCollector(appviewstub.ServiceName, version.Version, version.GitCommit)
	stub, err := appviewstub.New(appviewstub.Config{
		SigningKey:      []byte(signingKey),
		AccessTTL:       config.GetEnvDuration("STUB_ACCESS_TTL", 0),
		RefreshTTL:      config.GetEnvDuration("STUB_REFRESH_TTL", 0),
		AcceptedProxies: config.GetEnvList("STUB_ACCEPTED_PROXIES", nil),
		RequestTimeout:  config.GetEnvDuration("STUB_REQUEST_TIMEOUT", 10*time.Second),
		Logger:          logger,
		Metrics:         metricsCollector,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create appview stub")
	}

	accounts := cli.AccountsFile{}
	for _, seed := range seeds {
		did, handle, ok := strings.Cut(seed, "=")
		if !ok {
			logger.WithField("seed", seed).Fatal("STUB_ACCOUNTS entries must be did=handle")
		}
		sess, err := stub.CreateAccount(did, handle)
		if err != nil {
			logger.WithError(err).WithField("did", did).Fatal("Failed to seed account")
		}
		active := sess.Active
		accounts.Upsert(session.Account{
			Service:    publicURL,
			PdsURL:     publicURL,
			DID:        sess.DID,
			Handle:     sess.Handle,
			AccessJwt:  sess.AccessJwt,
			RefreshJwt: sess.RefreshJwt,
			Active:     &active,
		})
		if accounts.Current == "" {
			accounts.Current = sess.DID
		}
		logger.WithFields(logging.Fields{"did": did, "handle": handle}).Info("Seeded account")
	}
	if accountsFile != "" {
		if err := cli.SaveAccounts(accountsFile, accounts); err != nil {
			logger.WithError(err).Fatal("Failed to write accounts file")
		}
		logger.WithField("path", accountsFile).Info("Wrote accounts file for skyprefs")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverConfig := server.DefaultConfig(appviewstub.ServiceName, "8090")
	if err := server.Run(ctx, serverConfig, stub.Handler(), logger); err != nil {
		logger.WithError(err).Fatal("Server stopped")
	}
}
