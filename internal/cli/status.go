package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shopmux/shopmux/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ ShopMux Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show platform status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 ShopMux Status")
		fmt.Printf("Version: %s\n", version)

		configPath, _ := config.ConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			fmt.Println("Config:  ✓ Found (" + configPath + ")")
		} else {
			fmt.Println("Config:  ✗ Not found (run 'shopmux configure' first)")
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Println("Config:  ? Unable to load config")
			return
		}
		if cfg.Master.Token != "" {
			fmt.Println("Token:   ✓ Set")
		} else {
			fmt.Println("Token:   ✗ Not set")
		}
		if _, err := os.Stat(cfg.Store.Path); err == nil {
			fmt.Println("Store:   ✓ Found (" + cfg.Store.Path + ")")
		} else {
			fmt.Println("Store:   ✗ Not created yet")
		}

		// A live serve process answers on the health endpoint.
		if !cfg.Health.Enabled {
			fmt.Println("Serve:   ? Health endpoint disabled")
			return
		}
		url := fmt.Sprintf("http://%s:%d/healthz", cfg.Health.Host, cfg.Health.Port)
		client := &http.Client{Timeout: 2 * time.Second}
		resp, err := client.Get(url)
		if err != nil {
			fmt.Println("Serve:   ✗ Not running")
			return
		}
		defer resp.Body.Close()
		var body struct {
			Status  string `json:"status"`
			Version string `json:"version"`
			Workers int    `json:"workers"`
			Uptime  string `json:"uptime"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			fmt.Println("Serve:   ? Unreadable health response")
			return
		}
		fmt.Printf("Serve:   ✓ Running (v%s, up %s)\n", body.Version, body.Uptime)
		fmt.Printf("Workers: %d\n", body.Workers)
	},
}
