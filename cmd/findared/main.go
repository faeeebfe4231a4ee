package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"findare/cmd/internal/passphrase"
	"findare/config"
	"findare/core"
	"findare/crypto"
	"findare/native/lostfound"
	"findare/observability/logging"
	"findare/rpc"
	"findare/storage"
)

const adminPassEnv = "FINDARE_ADMIN_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	rpcAddr := flag.String("rpc", "", "Override the RPC listen address from the config file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FINDARE_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("findared", env, logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	passSource := passphrase.NewSource(adminPassEnv)
	pass, err := passSource.Get()
	if err != nil {
		logger.Error("Failed to resolve admin keystore passphrase", slog.Any("error", err))
		os.Exit(1)
	}
	adminKey, err := crypto.LoadFromKeystore(cfg.AdminKeystorePath, pass)
	if err != nil {
		logger.Error("Failed to load admin keystore", slog.Any("error", err))
		os.Exit(1)
	}
	adminAddr := adminKey.PubKey().Address()

	ledger := core.NewLedger(db)

	var admin lostfound.Address
	copy(admin[:], adminAddr.Bytes())
	if _, err := ledger.Apply("initialize", func(engine *lostfound.Engine) error {
		_, _, applyErr := engine.Initialize(admin)
		return applyErr
	}); err != nil {
		logger.Error("Failed to initialize marketplace config", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("marketplace ready",
		slog.String("admin", adminAddr.String()),
		slog.String("network", cfg.NetworkName))

	limits, err := cfg.Policy.Limits()
	if err != nil {
		logger.Error("Failed to parse policy limits", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(ledger, logger)
	server.SetPolicyLimits(limits.MinReward, limits.MinClaimDeposit)

	addr := cfg.RPCAddress
	if *rpcAddr != "" {
		addr = *rpcAddr
	}
	if err := server.Start(addr); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
