// Package banner prints the startup banner to stdout.
package banner

import (
	"fmt"

	"greenstorm/pkg/config"
)

const banner = `
 ██████╗ ██████╗ ███████╗███████╗███╗   ██╗███████╗████████╗ ██████╗ ██████╗ ███╗   ███╗
██╔════╝ ██╔══██╗██╔════╝██╔════╝████╗  ██║██╔════╝╚══██╔══╝██╔═══██╗██╔══██╗████╗ ████║
██║  ███╗██████╔╝█████╗  █████╗  ██╔██╗ ██║███████╗   ██║   ██║   ██║██████╔╝██╔████╔██║
██║   ██║██╔══██╗██╔══╝  ██╔══╝  ██║╚██╗██║╚════██║   ██║   ██║   ██║██╔══██╗██║╚██╔╝██║
╚██████╔╝██║  ██║███████╗███████╗██║ ╚████║███████║   ██║   ╚██████╔╝██║  ██║██║ ╚═╝ ██║
 ╚═════╝ ╚═╝  ╚═╝╚══════╝╚══════╝╚═╝  ╚═══╝╚══════╝   ╚═╝    ╚═════╝ ╚═╝  ╚═╝╚═╝     ╚═╝
`

// PrintWithEff prints the banner plus the effective runtime configuration.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /login                   - Start a session (JSON: first_name)")
	fmt.Println("POST /assistant/send          - Send a message; response streams as SSE")
	fmt.Println("GET  /history                 - Last 50 messages, oldest first")
	fmt.Println("GET  /docs/                   - API docs")

	fmt.Println("\n== Production? ================================================")
	if eff.Config != nil {
		if eff.Config.Assistant.APIKey != "" {
			fmt.Println("- Provider API key: OK")
		} else {
			fmt.Println("- Provider API key: MISSING (set OPENAI_API_KEY)")
		}
		if eff.Config.Tools.Search.APIKey != "" {
			fmt.Println("- Search API key: OK")
		} else {
			fmt.Println("- Search API key: MISSING (search_web tool will fail)")
		}
		if eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != "" {
			fmt.Println("- TLS: configured")
		} else {
			fmt.Println("- TLS: unconfigured")
		}
	}
	if dbPath != "" {
		fmt.Printf("- DB Path: %s\n", dbPath)
	} else {
		fmt.Println("- DB Path: not set (use --db or GREENSTORM_DB_PATH)")
	}

	fmt.Println("\n== Logs: ======================================================")
}
