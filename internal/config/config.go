// Package config holds operational defaults and deployment-specific
// overrides, grounded on the teacher's config package: go:embed-backed
// text files with TrimSpace + fallback-to-default semantics.
package config

import (
	_ "embed"
	"strconv"
	"strings"
	"time"
)

// Defaults for operational configuration.
const (
	DefaultRPCBudget        = 250 * time.Millisecond
	DefaultOTASessionBudget = 2 * time.Minute
	DefaultPrimaryWDTPeriod = 5 * time.Second
	DefaultAuxWDTPeriod     = 2 * time.Second
	DefaultGatewayListen    = "127.0.0.1:9443"
)

// Deployment-specific configuration (must be provided via embedded text
// files; empty means "use the default").
var (
	//go:embed gateway_listen.text
	gatewayListenOverride string

	//go:embed rpc_budget.text
	rpcBudgetOverride string

	//go:embed ota_session_budget.text
	otaSessionBudgetOverride string

	//go:embed primary_wdt_period.text
	primaryWDTPeriodOverride string

	//go:embed aux_wdt_period.text
	auxWDTPeriodOverride string
)

// GatewayListen returns the host-facing TCP address cmd/gateway listens
// on, standing in for the physical UART endpoint.
func GatewayListen() string {
	if v := strings.TrimSpace(gatewayListenOverride); v != "" {
		return v
	}
	return DefaultGatewayListen
}

// RPCBudget returns the maximum time a gateway call may block N for
// (§9, "must not let the callback block... longer than the RPC budget").
func RPCBudget() time.Duration {
	return durationOr(rpcBudgetOverride, DefaultRPCBudget)
}

// OTASessionBudget returns the maximum time an OTA session may remain
// open before the gateway abandons it.
func OTASessionBudget() time.Duration {
	return durationOr(otaSessionBudgetOverride, DefaultOTASessionBudget)
}

// PrimaryWDTPeriod returns the primary watchdog's reload period.
func PrimaryWDTPeriod() time.Duration {
	return durationOr(primaryWDTPeriodOverride, DefaultPrimaryWDTPeriod)
}

// AuxWDTPeriod returns the auxiliary watchdog's countdown period once armed.
func AuxWDTPeriod() time.Duration {
	return durationOr(auxWDTPeriodOverride, DefaultAuxWDTPeriod)
}

func durationOr(override string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(override)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}
