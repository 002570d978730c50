// Package broker - easytrader.go registers a concrete brokerage as one
// instance of the generic Gateway, named for and grounded in the reference
// easytrader-style broker automation adapter: a single configured account,
// REST order routing, and SH/SZ exchange-segment mapping.
package broker

import (
	"encoding/json"
	"fmt"
)

func init() {
	Registry["easytrader"] = newEasytraderBroker
}

// easytraderConfig is the JSON config document for the "easytrader" broker.
type easytraderConfig struct {
	BaseURL     string `json:"base_url"`
	AccessToken string `json:"access_token"`
}

func newEasytraderBroker(configJSON []byte) (Adapter, error) {
	var cfg easytraderConfig
	if err := json.Unmarshal(configJSON, &cfg); err != nil {
		return nil, fmt.Errorf("easytrader broker: parse config: %w", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.easytrader.local"
	}

	return NewGateway(GatewayConfig{
		Name:        "easytrader",
		BaseURL:     cfg.BaseURL,
		AuthHeader:  "access-token",
		AccessToken: cfg.AccessToken,
		ExchangeSegment: map[string]string{
			"SH": "SH_A",
			"SZ": "SZ_A",
		},
	})
}
