package evmchain

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"github.com/tonswap/backend/internal/chains"
	"github.com/tonswap/backend/internal/models"
	"github.com/tonswap/backend/internal/secrets"
	"github.com/tonswap/backend/internal/swap"
	"go.uber.org/zap"
)

// Factory + escrow ABI, trimmed to the calls and events the adapter uses.
const escrowABI = `[
	{"type":"function","name":"createEscrow","inputs":[{"name":"orderId","type":"bytes16"},{"name":"secretHash","type":"bytes32"},{"name":"amount","type":"uint256"},{"name":"finality","type":"uint64"},{"name":"exclusive","type":"uint64"},{"name":"cancellation","type":"uint64"}]},
	{"type":"function","name":"escrowOf","inputs":[{"name":"orderId","type":"bytes16"}],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"lock","inputs":[{"name":"amount","type":"uint256"}]},
	{"type":"function","name":"withdraw","inputs":[{"name":"secret","type":"bytes32"}]},
	{"type":"function","name":"withdrawWithProof","inputs":[{"name":"secret","type":"bytes32"},{"name":"index","type":"uint16"},{"name":"siblings","type":"bytes32[]"},{"name":"left","type":"bool[]"}]},
	{"type":"function","name":"refund","inputs":[]},
	{"type":"function","name":"state","inputs":[],"outputs":[{"name":"","type":"uint8"},{"name":"","type":"uint64"},{"name":"","type":"bytes32"}],"stateMutability":"view"},
	{"type":"event","name":"EscrowCreated","inputs":[{"name":"escrow","type":"address","indexed":true},{"name":"orderId","type":"bytes16","indexed":false},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"EscrowLocked","inputs":[{"name":"escrow","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"EscrowWithdrawn","inputs":[{"name":"escrow","type":"address","indexed":true},{"name":"secret","type":"bytes32","indexed":false}]},
	{"type":"event","name":"EscrowRefunded","inputs":[{"name":"escrow","type":"address","indexed":true}]}
]`

const defaultGasLimit = 300_000

// Config for one EVM adapter instance.
type Config struct {
	Network        string // network id exposed to the core, e.g. "evm-sepolia"
	RPCURL         string
	ChainID        int64
	FactoryAddress string
	PrivateKeyHex  string
}

// Adapter implements chains.Adapter against an EVM escrow factory contract.
// Nonce assignment is serialized: one wallet key, one in-flight transaction.
type Adapter struct {
	cfg     Config
	client  *ethclient.Client
	parsed  abi.ABI
	key     *ecdsa.PrivateKey
	from    common.Address
	factory common.Address
	chainID *big.Int
	log     *zap.Logger

	mu sync.Mutex
}

func New(ctx context.Context, cfg Config, log *zap.Logger) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("parse escrow abi: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	if !common.IsHexAddress(cfg.FactoryAddress) {
		return nil, fmt.Errorf("invalid factory address %q", cfg.FactoryAddress)
	}

	log.Info("EVM adapter connected",
		zap.String("rpc", cfg.RPCURL),
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("factory", cfg.FactoryAddress),
		zap.String("wallet", from.Hex()),
	)

	return &Adapter{
		cfg:     cfg,
		client:  client,
		parsed:  parsed,
		key:     key,
		from:    from,
		factory: common.HexToAddress(cfg.FactoryAddress),
		chainID: big.NewInt(cfg.ChainID),
		log:     log,
	}, nil
}

func (a *Adapter) Network() string { return a.cfg.Network }

func (a *Adapter) sendTx(ctx context.Context, to common.Address, value *big.Int, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	nonce, err := a.client.PendingNonceAt(ctx, a.from)
	if err != nil {
		return "", fmt.Errorf("%w: nonce: %v", chains.ErrNetwork, err)
	}
	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: gas price: %v", chains.ErrNetwork, err)
	}

	tx := types.NewTransaction(nonce, to, value, defaultGasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(a.chainID), a.key)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}
	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("%w: send tx: %v", chains.ErrChain, err)
	}
	return signed.Hash().Hex(), nil
}

func (a *Adapter) DeployEscrow(ctx context.Context, order *models.Order, secretHash, role string) (*models.EscrowDeployment, error) {
	hash, err := secrets.ParseHash(secretHash)
	if err != nil {
		return nil, fmt.Errorf("%w: bad secret hash: %v", chains.ErrDeployment, err)
	}

	now := time.Now().UTC()
	deadlines, err := swap.ComputeDeadlines(order, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrDeployment, err)
	}

	amount := order.MakerAsset.Amount
	if role == models.EscrowRoleDestination {
		amount = order.TakerAsset.Amount
	}

	var orderID [16]byte
	copy(orderID[:], order.ID[:])
	var secretHash32 [32]byte
	copy(secretHash32[:], hash[:])

	data, err := a.parsed.Pack("createEscrow", orderID, secretHash32, amount,
		uint64(deadlines.Finality.Unix()), uint64(deadlines.Exclusive.Unix()), uint64(deadlines.Cancellation.Unix()))
	if err != nil {
		return nil, fmt.Errorf("%w: pack createEscrow: %v", chains.ErrDeployment, err)
	}

	txHash, err := a.sendTx(ctx, a.factory, big.NewInt(0), data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrDeployment, err)
	}

	escrowAddr, err := a.escrowOf(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	return &models.EscrowDeployment{
		ID:                   uuid.New(),
		OrderID:              order.ID,
		Role:                 role,
		Chain:                a.cfg.Network,
		ContractAddress:      escrowAddr,
		TxHash:               txHash,
		SecretHash:           secretHash,
		Amount:               new(big.Int).Set(amount),
		Deployer:             a.from.Hex(),
		FinalityDeadline:     deadlines.Finality,
		ExclusiveDeadline:    deadlines.Exclusive,
		CancellationDeadline: deadlines.Cancellation,
		Status:               models.EscrowStatusDeployed,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

func (a *Adapter) escrowOf(ctx context.Context, id uuid.UUID) (string, error) {
	var orderID [16]byte
	copy(orderID[:], id[:])
	data, err := a.parsed.Pack("escrowOf", orderID)
	if err != nil {
		return "", fmt.Errorf("pack escrowOf: %w", err)
	}
	out, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &a.factory, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("%w: escrowOf: %v", chains.ErrChain, err)
	}
	res, err := a.parsed.Unpack("escrowOf", out)
	if err != nil || len(res) == 0 {
		return "", fmt.Errorf("%w: unpack escrowOf: %v", chains.ErrContract, err)
	}
	addr, ok := res[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("%w: escrowOf returned non-address", chains.ErrContract)
	}
	return addr.Hex(), nil
}

func (a *Adapter) LockFunds(ctx context.Context, escrowAddress string, amount *big.Int) error {
	data, err := a.parsed.Pack("lock", amount)
	if err != nil {
		return fmt.Errorf("pack lock: %w", err)
	}
	_, err = a.sendTx(ctx, common.HexToAddress(escrowAddress), amount, data)
	return err
}

func (a *Adapter) Withdraw(ctx context.Context, escrowAddress string, secret secrets.Secret, proof *secrets.MerkleProof) (*chains.TransactionReceipt, error) {
	var secret32 [32]byte
	copy(secret32[:], secret[:])

	var data []byte
	var err error
	if proof == nil {
		data, err = a.parsed.Pack("withdraw", secret32)
	} else {
		siblings := make([][32]byte, len(proof.Steps))
		left := make([]bool, len(proof.Steps))
		for i, step := range proof.Steps {
			copy(siblings[i][:], step.Sibling[:])
			left[i] = step.Left
		}
		data, err = a.parsed.Pack("withdrawWithProof", secret32, uint16(proof.Index), siblings, left)
	}
	if err != nil {
		return nil, fmt.Errorf("pack withdraw: %w", err)
	}

	txHash, err := a.sendTx(ctx, common.HexToAddress(escrowAddress), big.NewInt(0), data)
	if err != nil {
		return nil, err
	}
	return &chains.TransactionReceipt{TxHash: txHash, At: time.Now().UTC()}, nil
}

func (a *Adapter) Refund(ctx context.Context, escrowAddress string) (*chains.TransactionReceipt, error) {
	data, err := a.parsed.Pack("refund")
	if err != nil {
		return nil, fmt.Errorf("pack refund: %w", err)
	}
	txHash, err := a.sendTx(ctx, common.HexToAddress(escrowAddress), big.NewInt(0), data)
	if err != nil {
		return nil, err
	}
	return &chains.TransactionReceipt{TxHash: txHash, At: time.Now().UTC()}, nil
}

func (a *Adapter) GetEscrowStatus(ctx context.Context, escrowAddress string) (*chains.EscrowSnapshot, error) {
	addr := common.HexToAddress(escrowAddress)

	data, err := a.parsed.Pack("state")
	if err != nil {
		return nil, fmt.Errorf("pack state: %w", err)
	}
	out, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: state: %v", chains.ErrChain, err)
	}
	res, err := a.parsed.Unpack("state", out)
	if err != nil || len(res) < 3 {
		return nil, fmt.Errorf("%w: unpack state: %v", chains.ErrContract, err)
	}

	state, _ := res[0].(uint8)
	expiry, _ := res[1].(uint64)
	secretHash, _ := res[2].([32]byte)

	balance, err := a.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: balance: %v", chains.ErrNetwork, err)
	}

	return &chains.EscrowSnapshot{
		Address:    escrowAddress,
		Status:     onChainStatus(state),
		Balance:    balance,
		SecretHash: hex.EncodeToString(secretHash[:]),
		Expiry:     time.Unix(int64(expiry), 0).UTC(),
	}, nil
}

func onChainStatus(state uint8) string {
	switch state {
	case 0:
		return models.EscrowStatusDeployed
	case 1:
		return models.EscrowStatusLocked
	case 2:
		return models.EscrowStatusExecuted
	case 3:
		return models.EscrowStatusRefunded
	}
	return models.EscrowStatusFailed
}

// GetRecentEvents filters factory logs past the cursor (a block number) and
// decodes them into typed events, oldest first.
func (a *Adapter) GetRecentEvents(ctx context.Context, contractAddress string, sinceCursor uint64) ([]chains.ChainEvent, error) {
	head, err := a.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: block number: %v", chains.ErrNetwork, err)
	}
	if head <= sinceCursor {
		return nil, nil
	}

	addresses := []common.Address{a.factory}
	if contractAddress != "" {
		addresses = []common.Address{common.HexToAddress(contractAddress)}
	}

	logs, err := a.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(sinceCursor + 1),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: filter logs: %v", chains.ErrChain, err)
	}

	var out []chains.ChainEvent
	for _, l := range logs {
		ev, ok := a.decodeLog(l)
		if !ok {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (a *Adapter) decodeLog(l types.Log) (chains.ChainEvent, bool) {
	if len(l.Topics) == 0 {
		return chains.ChainEvent{}, false
	}

	ev := chains.ChainEvent{
		TxRef:  l.TxHash.Hex(),
		Cursor: l.BlockNumber,
		At:     time.Now().UTC(),
	}
	if len(l.Topics) > 1 {
		ev.Contract = common.BytesToAddress(l.Topics[1].Bytes()).Hex()
	}

	switch l.Topics[0] {
	case a.parsed.Events["EscrowCreated"].ID:
		ev.Type = chains.EventEscrowCreated
	case a.parsed.Events["EscrowLocked"].ID:
		ev.Type = chains.EventEscrowLocked
	case a.parsed.Events["EscrowWithdrawn"].ID:
		ev.Type = chains.EventEscrowWithdrawn
		if vals, err := a.parsed.Events["EscrowWithdrawn"].Inputs.NonIndexed().Unpack(l.Data); err == nil && len(vals) > 0 {
			if secret, ok := vals[0].([32]byte); ok {
				ev.Secret = hex.EncodeToString(secret[:])
			}
		}
	case a.parsed.Events["EscrowRefunded"].ID:
		ev.Type = chains.EventEscrowRefunded
	default:
		ev.Type = chains.EventUnknown
	}
	return ev, true
}

func (a *Adapter) GetBalance(ctx context.Context, addr string) (*big.Int, error) {
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("%w: invalid address %q", chains.ErrContract, addr)
	}
	balance, err := a.client.BalanceAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrNetwork, err)
	}
	return balance, nil
}
