package config

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// overridePayload is the body of GET {base}/api/config/{tenant}. Absent
// fields keep their built-in defaults.
type overridePayload struct {
	Name         string `json:"name"`
	Mode         string `json:"mode"`
	SafeResponse string `json:"safeResponse"`
	Phone        string `json:"phone"`
}

// ApplyRemoteOverrides fetches tenant overrides and patches cfg in place.
// Called once, before monitoring begins. Any failure leaves the defaults
// untouched; the engine must come up without a backend.
func ApplyRemoteOverrides(ctx context.Context, cfg *Config, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ConfigURL(), nil)
	if err != nil {
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Warn("config endpoint unreachable, using defaults", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Warn("config endpoint returned non-200, using defaults",
			zap.Int("status", resp.StatusCode))
		return
	}

	var payload overridePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		logger.Warn("config payload undecodable, using defaults", zap.Error(err))
		return
	}

	if payload.Name != "" {
		cfg.TenantName = payload.Name
	}
	if payload.SafeResponse != "" {
		cfg.SafeResponse = payload.SafeResponse
	}
	if payload.Phone != "" {
		cfg.Phone = payload.Phone
	}
	if payload.Mode == string(ModeEnforce) || payload.Mode == string(ModeMonitor) {
		cfg.Mode = Mode(payload.Mode)
	}

	logger.Info("tenant config loaded",
		zap.String("tenant", cfg.TenantID),
		zap.String("name", cfg.TenantName),
		zap.String("mode", string(cfg.Mode)))
}
