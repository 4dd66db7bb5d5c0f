package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cosmossdk.io/math"
	"github.com/openalpha/radiant-lend/offchain/liquidator"
	"github.com/openalpha/radiant-lend/pkg/grpcclient"
	"github.com/openalpha/radiant-lend/x/lending/types"
)

// Config holds the application configuration
type Config struct {
	APIURL       string        `json:"api_url"`
	FeedURL      string        `json:"feed_url"`
	GRPCAddr     string        `json:"grpc_addr"`
	ChainID      string        `json:"chain_id"`
	Assets       []string      `json:"assets"`
	ScanInterval time.Duration `json:"scan_interval"`
	CloseFactor  string        `json:"close_factor"`
	MinRepay     string        `json:"min_repay"`
	AtRiskLimit  int           `json:"at_risk_limit"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		APIURL:       "http://localhost:8080",
		FeedURL:      "ws://localhost:8080/ws",
		GRPCAddr:     "localhost:9090",
		ChainID:      "radiantlend-1",
		Assets:       []string{"USDC", "SOL"},
		ScanInterval: 10 * time.Second,
		CloseFactor:  "0.50",
		MinRepay:     "0.01",
		AtRiskLimit:  100,
	}
}

// LoadConfig loads configuration from a file
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// grpcSubmitter broadcasts liquidations through the pooled gRPC client
type grpcSubmitter struct {
	client *grpcclient.Client

	mu     sync.Mutex
	status liquidator.SubmitterStatus
}

func newGRPCSubmitter(client *grpcclient.Client) *grpcSubmitter {
	return &grpcSubmitter{
		client: client,
		status: liquidator.SubmitterStatus{Connected: true},
	}
}

func (s *grpcSubmitter) SubmitLiquidation(ctx context.Context, msg *types.MsgLiquidate) error {
	result := s.client.SubmitLiquidation(ctx, msg.Borrower, msg.DebtAssetID, msg.CollateralAssetID, msg.RepayAmount)

	s.mu.Lock()
	defer s.mu.Unlock()
	if result.Error != nil {
		s.status.FailedSubmissions++
		s.status.LastError = result.Error.Error()
		return result.Error
	}
	s.status.TotalSubmissions++
	s.status.LastSubmitTime = time.Now()
	return nil
}

func (s *grpcSubmitter) GetStatus() liquidator.SubmitterStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func main() {
	configPath := flag.String("config", "", "Path to config file")
	apiURL := flag.String("api", "", "HTTP API base URL for candidate scans")
	feedURL := flag.String("feed", "", "Price feed WebSocket URL")
	grpcAddr := flag.String("grpc", "", "Chain gRPC address for submission")
	keyHex := flag.String("key", "", "Hex-encoded signer key (dry run when empty)")
	assets := flag.String("assets", "", "Comma-separated asset list")
	scanInterval := flag.Duration("scan-interval", 0, "Candidate refresh interval")
	flag.Parse()

	config, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *apiURL != "" {
		config.APIURL = *apiURL
	}
	if *feedURL != "" {
		config.FeedURL = *feedURL
	}
	if *grpcAddr != "" {
		config.GRPCAddr = *grpcAddr
	}
	if *assets != "" {
		config.Assets = strings.Split(*assets, ",")
	}
	if *scanInterval > 0 {
		config.ScanInterval = *scanInterval
	}

	closeFactor, err := math.LegacyNewDecFromStr(config.CloseFactor)
	if err != nil {
		log.Fatalf("Invalid close factor: %v", err)
	}
	minRepay, err := math.LegacyNewDecFromStr(config.MinRepay)
	if err != nil {
		log.Fatalf("Invalid min repay: %v", err)
	}

	var submitter liquidator.TxSubmitter
	var liquidatorAddr string
	if *keyHex != "" {
		clientConfig := grpcclient.DefaultConfig()
		clientConfig.GRPCAddr = config.GRPCAddr
		clientConfig.ChainID = config.ChainID
		client, err := grpcclient.NewClient(clientConfig, *keyHex)
		if err != nil {
			log.Fatalf("Failed to create gRPC client: %v", err)
		}
		defer client.Close()
		submitter = newGRPCSubmitter(client)
		liquidatorAddr = client.Address()
		log.Printf("Submitting via gRPC as %s", liquidatorAddr)
	} else {
		submitter = liquidator.NewMockSubmitter()
		log.Println("No signer key given, running in dry-run mode")
	}

	botConfig := &liquidator.Config{
		FeedURL:      config.FeedURL,
		ChainRPCURL:  config.GRPCAddr,
		Liquidator:   liquidatorAddr,
		Assets:       config.Assets,
		ScanInterval: config.ScanInterval,
		CloseFactor:  closeFactor,
		MinRepay:     minRepay,
	}

	source := liquidator.NewAPISource(config.APIURL, config.AtRiskLimit)
	bot := liquidator.NewBot(botConfig, source, submitter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bot.Start(ctx); err != nil {
		log.Fatalf("Failed to start bot: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutdown signal received")
	cancel()
	bot.Stop()
}
