package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/russianinvestments/invest-api-go-sdk/investgo"

	"github.com/camuig/bbma-trader/internal/config"
	"github.com/camuig/bbma-trader/internal/logger"
)

// BrokerClient is the Tinkoff Invest adapter. It serves candles to the feed
// loader and implements execution.Gateway for the configured instrument.
type BrokerClient struct {
	Client *investgo.Client
	Config *config.Config
	Logger *logger.Logger

	mu        sync.Mutex
	uids      map[string]string // ticker -> instrument uid
	steps     map[string]int64  // instrument uid -> min price increment, nanos
	positions map[string]*tracked
}

func NewBrokerClient(ctx context.Context, cfg *config.Config, log *logger.Logger) (*BrokerClient, error) {
	investCfg := investgo.Config{
		EndPoint:  cfg.Tinkoff.Endpoint,
		Token:     cfg.Tinkoff.Token,
		AccountId: cfg.Tinkoff.AccountID,
		AppName:   cfg.Tinkoff.AppName,
	}

	client, err := investgo.NewClient(ctx, investCfg, log)
	if err != nil {
		return nil, fmt.Errorf("create investgo client: %w", err)
	}

	bc := &BrokerClient{
		Client:    client,
		Config:    cfg,
		Logger:    log.With("component", "broker"),
		uids:      make(map[string]string),
		steps:     make(map[string]int64),
		positions: make(map[string]*tracked),
	}

	if cfg.IsSandbox() && cfg.Tinkoff.AccountID == "" {
		if err := bc.setupSandbox(); err != nil {
			return nil, fmt.Errorf("setup sandbox: %w", err)
		}
	}

	return bc, nil
}

func (bc *BrokerClient) setupSandbox() error {
	sandbox := bc.Client.NewSandboxServiceClient()

	_, err := sandbox.SandboxPayIn(&investgo.SandboxPayInRequest{
		AccountId: bc.Client.Config.AccountId,
		Currency:  "RUB",
		Unit:      1000000,
		Nano:      0,
	})
	if err != nil {
		return fmt.Errorf("sandbox pay in: %w", err)
	}

	bc.Logger.Info("sandbox account funded", "account_id", bc.Client.Config.AccountId)
	return nil
}

// Ping resolves the configured symbol; startup aborts when it fails.
func (bc *BrokerClient) Ping(symbol string) error {
	if _, err := bc.ResolveTickerToUID(symbol); err != nil {
		return fmt.Errorf("resolve %s: %w", symbol, err)
	}
	return nil
}

func (bc *BrokerClient) AccountID() string {
	return bc.Client.Config.AccountId
}

func (bc *BrokerClient) Stop() error {
	return bc.Client.Stop()
}
