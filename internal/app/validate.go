package app

import (
	"fmt"

	"greenstorm/pkg/config"
	"greenstorm/pkg/logger"
)

// validateConfig fails fast on settings the server cannot run without and
// warns about ones it can limp along with.
func validateConfig(eff config.EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("no configuration loaded")
	}
	if eff.DBPath == "" && cfg.Server.DBPath == "" {
		return fmt.Errorf("db path is required (use --db or GREENSTORM_DB_PATH)")
	}
	if cfg.Assistant.AssistantID == "" {
		return fmt.Errorf("assistant.assistant_id is required")
	}
	if (cfg.Server.TLS.CertFile == "") != (cfg.Server.TLS.KeyFile == "") {
		return fmt.Errorf("TLS requires both cert_file and key_file")
	}
	if cfg.Assistant.APIKey == "" {
		logger.Warn("provider_api_key_missing", "msg", "set OPENAI_API_KEY; runs will fail without it")
	}
	if cfg.Tools.Search.APIKey == "" {
		logger.Warn("search_api_key_missing", "msg", "set BRAVE_API_KEY; search_web will fail without it")
	}
	return nil
}
