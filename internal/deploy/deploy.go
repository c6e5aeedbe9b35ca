// Package deploy publishes a compiled contract to an EVM chain from a funded
// account.
package deploy

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 2 * time.Second
	// gasHeadroomPercent is added on top of the node's estimate.
	gasHeadroomPercent = 20
)

var (
	ErrEmptyBytecode  = errors.New("deploy: empty bytecode")
	ErrDeployReverted = errors.New("deploy: contract creation reverted")
)

// Backend is the slice of an RPC client a deployment needs. *ethclient.Client
// satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type Result struct {
	Deployer common.Address
	Contract common.Address
	TxHash   common.Hash
	Block    *big.Int
	GasUsed  uint64
}

type Deployer struct {
	backend      Backend
	key          *ecdsa.PrivateKey
	from         common.Address
	pollInterval time.Duration
	log          *zap.Logger
}

// ParsePrivateKey accepts a hex key with or without the 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("deploy: private key is required")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("deploy: invalid private key: %w", err)
	}
	return key, nil
}

// ParseBytecode reads contract creation code from either a raw hex string or
// a compiler artifact with a "bytecode" field.
func ParseBytecode(raw []byte) ([]byte, error) {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "{") {
		var artifact struct {
			Bytecode json.RawMessage `json:"bytecode"`
		}
		if err := json.Unmarshal([]byte(text), &artifact); err != nil {
			return nil, fmt.Errorf("deploy: decode artifact: %w", err)
		}
		text = bytecodeField(artifact.Bytecode)
	}
	if text == "" || text == "0x" {
		return nil, ErrEmptyBytecode
	}
	if !strings.HasPrefix(text, "0x") {
		text = "0x" + text
	}
	code, err := hexutil.Decode(text)
	if err != nil {
		return nil, fmt.Errorf("deploy: decode bytecode: %w", err)
	}
	return code, nil
}

// bytecodeField handles both artifact layouts: a plain string and an object
// with an "object" field.
func bytecodeField(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Object)
	}
	return ""
}

func New(backend Backend, key *ecdsa.PrivateKey, log *zap.Logger) *Deployer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Deployer{
		backend:      backend,
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		pollInterval: defaultPollInterval,
		log:          log,
	}
}

func (d *Deployer) Address() common.Address {
	return d.from
}

// Deploy sends the creation transaction and blocks until it is mined or ctx
// ends.
func (d *Deployer) Deploy(ctx context.Context, code []byte) (Result, error) {
	if len(code) == 0 {
		return Result{}, ErrEmptyBytecode
	}

	chainID, err := d.backend.ChainID(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("deploy: chain id: %w", err)
	}
	nonce, err := d.backend.PendingNonceAt(ctx, d.from)
	if err != nil {
		return Result{}, fmt.Errorf("deploy: nonce: %w", err)
	}
	gasPrice, err := d.backend.SuggestGasPrice(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("deploy: gas price: %w", err)
	}
	gas, err := d.backend.EstimateGas(ctx, ethereum.CallMsg{From: d.from, Data: code})
	if err != nil {
		return Result{}, fmt.Errorf("deploy: estimate gas: %w", err)
	}
	gas += gas * gasHeadroomPercent / 100

	tx := types.NewContractCreation(nonce, big.NewInt(0), gas, gasPrice, code)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), d.key)
	if err != nil {
		return Result{}, fmt.Errorf("deploy: sign: %w", err)
	}
	if err := d.backend.SendTransaction(ctx, signed); err != nil {
		return Result{}, fmt.Errorf("deploy: send: %w", err)
	}
	d.log.Info("contract creation sent",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.String("chain_id", chainID.String()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas))

	receipt, err := d.waitMined(ctx, signed.Hash())
	if err != nil {
		return Result{}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Result{}, fmt.Errorf("%w: tx %s", ErrDeployReverted, signed.Hash().Hex())
	}

	contract := receipt.ContractAddress
	if contract == (common.Address{}) {
		contract = crypto.CreateAddress(d.from, nonce)
	}
	return Result{
		Deployer: d.from,
		Contract: contract,
		TxHash:   signed.Hash(),
		Block:    receipt.BlockNumber,
		GasUsed:  receipt.GasUsed,
	}, nil
}

func (d *Deployer) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := d.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			return receipt, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("deploy: receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("deploy: waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
