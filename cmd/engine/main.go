// Command engine wires together C1-C13 and runs the webhook dispatcher's
// periodic resequencer flush, the engine's one long-running loop.
//
// Mirrors the teacher's cmd/main.go wiring order: read env vars, decrypt
// the signing key, load YAML config, dial collaborators, construct the
// top-level engines, then run. Everything this binary assembles is out of
// spec.md §1's scope to build in detail (config loading, the HTTP gateway
// that would call Dispatcher.HandleHashes) — this file is only the
// minimal glue spec.md §6 says must exist for the named interfaces to
// have concrete instances at runtime.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/copytradeengine/engine/configs"
	"github.com/copytradeengine/engine/internal/audit"
	"github.com/copytradeengine/engine/internal/auditlog"
	"github.com/copytradeengine/engine/internal/chain"
	"github.com/copytradeengine/engine/internal/contracts"
	"github.com/copytradeengine/engine/internal/copytrade"
	"github.com/copytradeengine/engine/internal/db"
	"github.com/copytradeengine/engine/internal/deposit"
	"github.com/copytradeengine/engine/internal/dexparser"
	"github.com/copytradeengine/engine/internal/escrowparser"
	"github.com/copytradeengine/engine/internal/events"
	"github.com/copytradeengine/engine/internal/exit"
	"github.com/copytradeengine/engine/internal/price"
	"github.com/copytradeengine/engine/internal/resequencer"
	"github.com/copytradeengine/engine/internal/rpcpool"
	"github.com/copytradeengine/engine/internal/signer"
	"github.com/copytradeengine/engine/internal/util"
	"github.com/copytradeengine/engine/internal/webhook"
)

// unconfiguredPriceSource is a placeholder for spec.md §6's asset-price
// collaborator, which the spec places out of scope ("prices come from an
// external collaborator"). A real deployment substitutes a concrete
// price.Source; wiring one here would mean inventing the very price feed
// spec.md excludes.
type unconfiguredPriceSource struct{}

func (unconfiguredPriceSource) GetUSDPriceLatest(ctx context.Context, symbols []string) (map[string]float64, error) {
	return nil, fmt.Errorf("engine: no price.Source configured; wire a real asset-price collaborator")
}

func main() {
	configPath := os.Getenv("ENGINE_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yml"
	}
	cfg, err := configs.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("engine: load config: %v", err)
	}

	encryptedPK := os.Getenv(cfg.MasterSigningKey.EncryptedKeyEnv)
	passphrase := os.Getenv(cfg.MasterSigningKey.PassphraseEnv)
	pkHex, err := util.Decrypt([]byte(passphrase), encryptedPK)
	if err != nil {
		log.Fatalf("engine: decrypt master signing key: %v", err)
	}
	masterSigner, err := signer.New(pkHex)
	if err != nil {
		log.Fatalf("engine: build master signer: %v", err)
	}

	store, err := db.NewStore(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("engine: open store: %v", err)
	}
	defer store.Close()

	pools := rpcpool.NewPool()
	resolvedChains, err := cfg.ResolvedChains()
	if err != nil {
		log.Fatalf("engine: resolve chains: %v", err)
	}
	ctx := context.Background()
	for _, rc := range resolvedChains {
		if err := pools.Register(ctx, rc.Chain, rc.Data.RPCURL, rc.Data.MaxConcurrentRPCs); err != nil {
			log.Fatalf("engine: register chain %s: %v", rc.Chain, err)
		}
	}
	defer pools.Close()

	auditLog, err := auditlog.New(cfg.AuditLogDir, "engine")
	if err != nil {
		log.Fatalf("engine: open audit log: %v", err)
	}
	auditEngine := audit.NewEngine(auditLog)
	bus := events.NewBus()

	escrowAddrs, err := cfg.ResolvedEscrowAddresses()
	if err != nil {
		log.Fatalf("engine: resolve escrow addresses: %v", err)
	}

	escrowABI := mustLoadABI(cfg.ABIPaths.Escrow)
	poolABI := mustLoadABI(cfg.ABIPaths.StrategyPool)
	walletABI := mustLoadABI(cfg.ABIPaths.StrategyWallet)
	factoryABI := mustLoadABI(cfg.ABIPaths.StrategyPoolFactory)
	erc20ABI := mustLoadABI(cfg.ABIPaths.Erc20)
	routerABI := mustLoadABI(cfg.ABIPaths.PancakeSmartRouter)

	params := contracts.EnsureSuccessParams{
		PollInterval: cfg.PollInterval(),
		MaxRetry:     cfg.MaxRetries,
	}

	stablecoins := escrowparser.NewDefaultRegistry()

	var priceSource price.Source = unconfiguredPriceSource{}

	copyTradeEngine := &copytrade.Engine{
		Store:    store,
		Pools:    pools,
		Signer:   masterSigner,
		Audit:    auditEngine,
		AuditLog: auditLog,
		Events:   bus,
		PoolABI:  poolABI,
		Params:   withConfirmations(params, resolvedChains),
	}

	depositEngine := &deposit.Engine{
		Store:       store,
		Pools:       pools,
		Signer:      masterSigner,
		Price:       priceSource,
		Stablecoins: stablecoins,
		EscrowABI:   escrowABI,
		PoolABI:     poolABI,
		Params:      withConfirmations(params, resolvedChains),
	}

	exitEngine := &exit.Engine{
		Store:     store,
		Pools:     pools,
		Signer:    masterSigner,
		Price:     priceSource,
		WalletABI: walletABI,
		PoolABI:   poolABI,
		EscrowABI: escrowABI,
		Params:    withConfirmations(params, resolvedChains),
	}
	_ = exitEngine // exercised by the (out-of-scope) API gateway's C11 calls

	routers := make([]webhook.RouterEntry, 0, len(cfg.RouterAddresses))
	for _, r := range cfg.RouterAddresses {
		c, err := chain.Parse(r.Chain)
		if err != nil {
			log.Fatalf("engine: router_addresses entry %q: %v", r.Chain, err)
		}
		routers = append(routers, webhook.RouterEntry{
			Chain:   c,
			Address: common.HexToAddress(r.Address),
			Dex:     dexparser.DexPancakeSwap,
		})
	}

	sequencer := resequencer.NewSequencer(cfg.ResequenceFlushWindow())
	dispatcher := webhook.NewDispatcher(cfg.WebhookDedupWindow())
	dispatcher.Pools = pools
	dispatcher.Routers = webhook.NewRouterRegistry(routers)
	dispatcher.Stablecoins = stablecoins
	dispatcher.RouterABI = routerABI
	dispatcher.Erc20ABI = erc20ABI
	dispatcher.EscrowAddr = hexAddresses(escrowAddrs)
	dispatcher.CopyTrade = copyTradeEngine
	dispatcher.Deposit = depositEngine
	dispatcher.Params = params
	dispatcher.Sequencer = sequencer

	// StrategyPoolFactory is exercised from the (out-of-scope) strategy
	// creation admin flow; constructed here only to prove the wrapper and
	// its ABI wire up against a live client per chain at startup.
	for _, rc := range resolvedChains {
		guard, err := pools.Acquire(ctx, rc.Chain)
		if err != nil {
			log.Printf("engine: acquire guard for %s factory check: %v", rc.Chain, err)
			continue
		}
		_ = contracts.NewStrategyPoolFactory(guard.Client, common.Address{}, factoryABI)
		guard.Release()
	}

	ticker := time.NewTicker(cfg.ResequenceFlushWindow())
	defer ticker.Stop()
	for range ticker.C {
		for _, err := range dispatcher.DispatchReady(ctx) {
			log.Printf("engine: dispatch error: %v", err)
		}
	}
}

func mustLoadABI(path string) abi.ABI {
	parsed, err := util.LoadABIFromHardhatArtifact(path)
	if err != nil {
		log.Fatalf("engine: load abi %s: %v", path, err)
	}
	return parsed
}

// withConfirmations returns a copy of params using the confirmation depth
// of the first entry in chains (ResolvedChains builds that slice in map
// iteration order). That one depth applies to every chain: no
// EnsureSuccess or WaitReady call site overrides it per chain.
func withConfirmations(params contracts.EnsureSuccessParams, chains []configs.ResolvedChain) contracts.EnsureSuccessParams {
	if len(chains) > 0 {
		params.Confirmations = chains[0].Data.Confirmations
	}
	return params
}

func hexAddresses(in map[chain.Chain]string) map[chain.Chain]common.Address {
	out := make(map[chain.Chain]common.Address, len(in))
	for c, addr := range in {
		out[c] = common.HexToAddress(addr)
	}
	return out
}
