package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/benpsk/kalakaari-shop/internal/deploy"
	"github.com/benpsk/kalakaari-shop/internal/logger"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// rpcEnv maps a network name to the variable holding its RPC endpoint.
var rpcEnv = map[string]string{
	"amoy":    "AMOY_RPC",
	"sepolia": "SEPOLIA_RPC",
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	network := flag.String("network", "amoy", "target network (amoy or sepolia)")
	rpcURL := flag.String("rpc", "", "RPC endpoint (defaults to the network's *_RPC variable)")
	bytecodePath := flag.String("bytecode", "artifacts/AnchorRegistry.json", "compiled contract: hex file or artifact JSON")
	timeout := flag.Duration("timeout", 5*time.Minute, "how long to wait for the deployment to be mined")
	flag.Parse()

	logg, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, logg, *network, *rpcURL, *bytecodePath); err != nil {
		logg.Error("deploy failed", zap.Error(err))
		_ = logg.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, logg *zap.Logger, network, rpcURL, bytecodePath string) error {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		name, ok := rpcEnv[strings.ToLower(network)]
		if !ok {
			return fmt.Errorf("unknown network %q", network)
		}
		rpcURL = strings.TrimSpace(os.Getenv(name))
		if rpcURL == "" {
			return fmt.Errorf("%s is not set", name)
		}
	}

	key, err := deploy.ParsePrivateKey(os.Getenv("PRIVATE_KEY"))
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(bytecodePath)
	if err != nil {
		return fmt.Errorf("read bytecode: %w", err)
	}
	code, err := deploy.ParseBytecode(raw)
	if err != nil {
		return err
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	d := deploy.New(client, key, logg.Named("deploy"))
	fmt.Println("Deploying with:", d.Address().Hex())

	res, err := d.Deploy(ctx, code)
	if err != nil {
		return err
	}
	logg.Info("contract deployed",
		zap.String("tx_hash", res.TxHash.Hex()),
		zap.String("block", res.Block.String()),
		zap.Uint64("gas_used", res.GasUsed))
	fmt.Println("AnchorRegistry deployed to:", res.Contract.Hex())
	return nil
}
