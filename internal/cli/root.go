package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/shopmux/shopmux/internal/cli.version=1.2.3"
	version = "1.4.0"
	logo    = "\n" +
		"  ____  _                 __  __\n" +
		" / ___|| |__   ___  _ __ |  \\/  |_   ___  __\n" +
		" \\___ \\| '_ \\ / _ \\| '_ \\| |\\/| | | | \\ \\/ /\n" +
		"  ___) | | | | (_) | |_) | |  | | |_| |>  <\n" +
		" |____/|_| |_|\\___/| .__/|_|  |_|\\__,_/_/\\_\\\n" +
		"                   |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "shopmux",
	Short: "ShopMux - Multi-tenant storefront bot platform",
	Long:  color.CyanString(logo) + "\nOne master bot, a shop bot per tenant, all served from a single process.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configureCmd)
}

func printHeader(title string) {
	fmt.Println()
	color.Cyan(title)
	fmt.Println("────────────────────────────────────")
}
