package tonchain

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tonswap/backend/internal/chains"
	"github.com/tonswap/backend/internal/models"
	"github.com/tonswap/backend/internal/secrets"
	"github.com/tonswap/backend/internal/swap"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"go.uber.org/zap"
)

// Escrow factory operation codes. Must match the deployed contract.
const (
	OpCreateEscrow uint64 = 0x1a2b01
	OpLock         uint64 = 0x1a2b02
	OpWithdraw     uint64 = 0x1a2b03
	OpRefund       uint64 = 0x1a2b04
)

const (
	txBatchSize   = 100
	attachedTON   = "0.1" // gas + storage for escrow ops
	mainnetConfig = "https://ton.org/global.config.json"
	testnetConfig = "https://ton.org/testnet-global.config.json"
)

// Config for one TON adapter instance.
type Config struct {
	Network        string // network id exposed to the core, e.g. "ton-testnet"
	TONNetwork     string // "mainnet" / "testnet"
	LiteServerHost string
	LiteServerPort int
	LiteServerKey  string
	FactoryAddress string // escrow factory contract
	WalletSeed     []string
}

// Adapter implements chains.Adapter against a TON escrow factory contract.
// All escrow operations are internal messages to the factory; events are the
// factory's own transaction history, decoded by opcode.
type Adapter struct {
	cfg     Config
	api     ton.APIClientWrapped
	w       *wallet.Wallet
	factory *address.Address
	log     *zap.Logger
}

func New(ctx context.Context, cfg Config, log *zap.Logger) (*Adapter, error) {
	client := liteclient.NewConnectionPool()

	if cfg.LiteServerHost != "" && cfg.LiteServerKey != "" {
		addr := fmt.Sprintf("%s:%d", cfg.LiteServerHost, cfg.LiteServerPort)
		if err := client.AddConnection(ctx, addr, cfg.LiteServerKey); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addr, err)
		}
	} else {
		configURL := testnetConfig
		if strings.ToLower(cfg.TONNetwork) == "mainnet" {
			configURL = mainnetConfig
		}
		if err := client.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	proofPolicy := ton.ProofCheckPolicyFast
	if strings.ToLower(cfg.TONNetwork) == "mainnet" {
		proofPolicy = ton.ProofCheckPolicySecure
	}
	api := ton.NewAPIClient(client, proofPolicy).WithRetry()

	factory, err := address.ParseAddr(cfg.FactoryAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid factory address %q: %w", cfg.FactoryAddress, err)
	}

	w, err := wallet.FromSeed(api, cfg.WalletSeed, wallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("init wallet: %w", err)
	}

	log.Info("TON adapter connected",
		zap.String("network", cfg.TONNetwork),
		zap.String("factory", factory.String()),
		zap.String("wallet", w.WalletAddress().String()),
	)

	return &Adapter{cfg: cfg, api: api, w: w, factory: factory, log: log}, nil
}

func (a *Adapter) Network() string { return a.cfg.Network }

func (a *Adapter) send(ctx context.Context, to *address.Address, body *cell.Cell) (string, error) {
	tx, _, err := a.w.SendWaitTransaction(ctx, wallet.SimpleMessage(to, tlb.MustFromTON(attachedTON), body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", chains.ErrChain, err)
	}
	return strconv.FormatUint(tx.LT, 10), nil
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

	body := cell.BeginCell().
		MustStoreUInt(OpCreateEscrow, 32).
		MustStoreSlice(order.ID[:], 128).
		MustStoreSlice(hash[:], 256).
		MustStoreBigUInt(amount, 128).
		MustStoreUInt(uint64(deadlines.Finality.Unix()), 64).
		MustStoreUInt(uint64(deadlines.Exclusive.Unix()), 64).
		MustStoreUInt(uint64(deadlines.Cancellation.Unix()), 64).
		EndCell()

	txRef, err := a.send(ctx, a.factory, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrDeployment, err)
	}

	// The factory derives the escrow child deterministically from the order
	// id; mirror that derivation to know the address without a round trip.
	escrowAddr, err := a.deriveEscrowAddress(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	return &models.EscrowDeployment{
		ID:                   uuid.New(),
		OrderID:              order.ID,
		Role:                 role,
		Chain:                a.cfg.Network,
		ContractAddress:      escrowAddr,
		TxHash:               txRef,
		SecretHash:           secretHash,
		Amount:               new(big.Int).Set(amount),
		Deployer:             a.w.WalletAddress().String(),
		FinalityDeadline:     deadlines.Finality,
		ExclusiveDeadline:    deadlines.Exclusive,
		CancellationDeadline: deadlines.Cancellation,
		Status:               models.EscrowStatusDeployed,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

func (a *Adapter) deriveEscrowAddress(ctx context.Context, orderID uuid.UUID) (string, error) {
	block, err := a.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", chains.ErrNetwork, err)
	}
	res, err := a.api.RunGetMethod(ctx, block, a.factory, "get_escrow_address",
		new(big.Int).SetBytes(orderID[:]))
	if err != nil {
		return "", fmt.Errorf("%w: get_escrow_address: %v", chains.ErrChain, err)
	}
	slice, err := res.Slice(0)
	if err != nil {
		return "", fmt.Errorf("%w: bad get method result: %v", chains.ErrContract, err)
	}
	addr, err := slice.LoadAddr()
	if err != nil {
		return "", fmt.Errorf("%w: bad escrow address: %v", chains.ErrContract, err)
	}
	return addr.String(), nil
}

func (a *Adapter) LockFunds(ctx context.Context, escrowAddress string, amount *big.Int) error {
	to, err := address.ParseAddr(escrowAddress)
	if err != nil {
		return fmt.Errorf("%w: %v", chains.ErrContract, err)
	}
	body := cell.BeginCell().
		MustStoreUInt(OpLock, 32).
		MustStoreBigUInt(amount, 128).
		EndCell()
	_, err = a.send(ctx, to, body)
	return err
}

func (a *Adapter) Withdraw(ctx context.Context, escrowAddress string, secret secrets.Secret, proof *secrets.MerkleProof) (*chains.TransactionReceipt, error) {
	to, err := address.ParseAddr(escrowAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrContract, err)
	}

	b := cell.BeginCell().
		MustStoreUInt(OpWithdraw, 32).
		MustStoreSlice(secret[:], 256)
	if proof != nil {
		b.MustStoreUInt(uint64(proof.Index), 16)
		b.MustStoreRef(packProof(proof))
	}

	txRef, err := a.send(ctx, to, b.EndCell())
	if err != nil {
		return nil, err
	}
	return &chains.TransactionReceipt{TxHash: txRef, At: time.Now().UTC()}, nil
}

// packProof chains proof steps through cell refs, one step per cell.
func packProof(proof *secrets.MerkleProof) *cell.Cell {
	var packed *cell.Cell
	for i := len(proof.Steps) - 1; i >= 0; i-- {
		step := proof.Steps[i]
		left := uint64(0)
		if step.Left {
			left = 1
		}
		b := cell.BeginCell().
			MustStoreUInt(left, 1).
			MustStoreSlice(step.Sibling[:], 256)
		if packed != nil {
			b.MustStoreRef(packed)
		}
		packed = b.EndCell()
	}
	if packed == nil {
		packed = cell.BeginCell().EndCell()
	}
	return packed
}

func (a *Adapter) Refund(ctx context.Context, escrowAddress string) (*chains.TransactionReceipt, error) {
	to, err := address.ParseAddr(escrowAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrContract, err)
	}
	body := cell.BeginCell().MustStoreUInt(OpRefund, 32).EndCell()
	txRef, err := a.send(ctx, to, body)
	if err != nil {
		return nil, err
	}
	return &chains.TransactionReceipt{TxHash: txRef, At: time.Now().UTC()}, nil
}

func (a *Adapter) GetEscrowStatus(ctx context.Context, escrowAddress string) (*chains.EscrowSnapshot, error) {
	addr, err := address.ParseAddr(escrowAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrContract, err)
	}
	block, err := a.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrNetwork, err)
	}
	account, err := a.api.GetAccount(ctx, block, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrChain, err)
	}
	if account == nil || !account.IsActive {
		return &chains.EscrowSnapshot{Address: escrowAddress, Status: models.EscrowStatusPending, Balance: big.NewInt(0)}, nil
	}

	res, err := a.api.RunGetMethod(ctx, block, addr, "get_escrow_state")
	if err != nil {
		return nil, fmt.Errorf("%w: get_escrow_state: %v", chains.ErrChain, err)
	}
	state, err := res.Int(0)
	if err != nil {
		return nil, fmt.Errorf("%w: bad escrow state: %v", chains.ErrContract, err)
	}
	expiry, err := res.Int(1)
	if err != nil {
		return nil, fmt.Errorf("%w: bad escrow expiry: %v", chains.ErrContract, err)
	}

	return &chains.EscrowSnapshot{
		Address: escrowAddress,
		Status:  onChainStatus(state.Int64()),
		Balance: account.State.Balance.Nano(),
		Expiry:  time.Unix(expiry.Int64(), 0).UTC(),
	}, nil
}

func onChainStatus(state int64) string {
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

// GetRecentEvents pages the factory's transaction history back to the cursor
// (a logical time) and decodes escrow opcodes into typed events, oldest first.
func (a *Adapter) GetRecentEvents(ctx context.Context, contractAddress string, sinceCursor uint64) ([]chains.ChainEvent, error) {
	target := a.factory
	if contractAddress != "" {
		parsed, err := address.ParseAddr(contractAddress)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", chains.ErrContract, err)
		}
		target = parsed
	}

	block, err := a.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrNetwork, err)
	}
	account, err := a.api.GetAccount(ctx, block, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrChain, err)
	}
	if account == nil || !account.IsActive || account.LastTxLT == 0 || account.LastTxLT <= sinceCursor {
		return nil, nil
	}

	var txs []*tlb.Transaction
	lt := account.LastTxLT
	hash := account.LastTxHash
	for {
		batch, err := a.api.ListTransactions(ctx, target, txBatchSize, lt, hash)
		if err != nil {
			return nil, fmt.Errorf("%w: list transactions: %v", chains.ErrChain, err)
		}
		if len(batch) == 0 {
			break
		}

		reachedCursor := false
		for _, tx := range batch {
			if tx.LT <= sinceCursor {
				reachedCursor = true
				continue
			}
			txs = append(txs, tx)
		}
		if reachedCursor || len(batch) < txBatchSize {
			break
		}

		oldest := batch[0]
		if oldest.PrevTxLT == 0 {
			break
		}
		lt = oldest.PrevTxLT
		hash = oldest.PrevTxHash
	}

	sort.Slice(txs, func(i, j int) bool { return txs[i].LT < txs[j].LT })

	var out []chains.ChainEvent
	for _, tx := range txs {
		if ev, ok := a.decodeTx(tx); ok {
			ev.Contract = target.String()
			out = append(out, ev)
		}
	}
	return out, nil
}

// decodeTx maps an incoming internal message's opcode to a typed event.
// Unknown opcodes are surfaced as EventUnknown rather than dropped.
func (a *Adapter) decodeTx(tx *tlb.Transaction) (chains.ChainEvent, bool) {
	if tx.IO.In == nil {
		return chains.ChainEvent{}, false
	}
	inMsg, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
	if !ok || inMsg == nil || inMsg.Bounced || inMsg.Body == nil {
		return chains.ChainEvent{}, false
	}

	slice := inMsg.Body.BeginParse()
	if slice.BitsLeft() < 32 {
		return chains.ChainEvent{}, false
	}
	op, err := slice.LoadUInt(32)
	if err != nil {
		return chains.ChainEvent{}, false
	}

	ev := chains.ChainEvent{
		TxRef:  strconv.FormatUint(tx.LT, 10),
		Amount: inMsg.Amount.Nano(),
		Cursor: tx.LT,
		At:     time.Unix(int64(tx.Now), 0).UTC(),
	}

	switch op {
	case OpCreateEscrow:
		ev.Type = chains.EventEscrowCreated
	case OpLock:
		ev.Type = chains.EventEscrowLocked
	case OpWithdraw:
		ev.Type = chains.EventEscrowWithdrawn
		if slice.BitsLeft() >= 256 {
			if raw, err := slice.LoadSlice(256); err == nil {
				ev.Secret = hex.EncodeToString(raw)
			}
		}
	case OpRefund:
		ev.Type = chains.EventEscrowRefunded
	default:
		ev.Type = chains.EventUnknown
		ev.Opcode = uint32(op)
	}
	return ev, true
}

func (a *Adapter) GetBalance(ctx context.Context, addr string) (*big.Int, error) {
	parsed, err := address.ParseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrContract, err)
	}
	block, err := a.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrNetwork, err)
	}
	account, err := a.api.GetAccount(ctx, block, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrChain, err)
	}
	if account == nil || !account.IsActive {
		return big.NewInt(0), nil
	}
	return account.State.Balance.Nano(), nil
}
