package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shopmux/shopmux/internal/config"
)

var (
	configureToken    string
	configureAdminIDs []int64
	configureBrokers  string
	configureSlack    string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the config file",
	Long:  "Creates or updates ~/.shopmux/config.json with the master bot token and operator ids.",
	RunE:  runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&configureToken, "token", "", "Master bot token from @BotFather")
	configureCmd.Flags().Int64SliceVar(&configureAdminIDs, "admin", nil, "Operator user id (repeatable)")
	configureCmd.Flags().StringVar(&configureBrokers, "kafka-brokers", "", "Kafka brokers for lifecycle events (optional)")
	configureCmd.Flags().StringVar(&configureSlack, "slack-channel", "", "Slack channel for ops alerts (optional)")
}

func runConfigure(cmd *cobra.Command, args []string) error {
	printHeader("⚙️ ShopMux Configure")

	// Start from the existing file so reruns only touch what was flagged.
	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	if strings.TrimSpace(configureToken) != "" {
		cfg.Master.Token = strings.TrimSpace(configureToken)
	}
	if len(configureAdminIDs) > 0 {
		cfg.Master.AdminIDs = configureAdminIDs
	}
	if strings.TrimSpace(configureBrokers) != "" {
		cfg.Events.Enabled = true
		cfg.Events.Brokers = strings.TrimSpace(configureBrokers)
	}
	if strings.TrimSpace(configureSlack) != "" {
		cfg.Alerts.Enabled = true
		cfg.Alerts.SlackChannel = strings.TrimSpace(configureSlack)
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	path, _ := config.ConfigPath()
	fmt.Println("Config written: " + path)
	if cfg.Master.Token == "" {
		fmt.Println("⚠️ No master token yet — rerun with --token or set SHOPMUX_MASTER_TOKEN.")
	}
	if len(cfg.Master.AdminIDs) == 0 {
		fmt.Println("⚠️ No operators yet — rerun with --admin <user_id>.")
	}
	fmt.Println("Next: shopmux serve")
	return nil
}
