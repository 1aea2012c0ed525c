// Logistics CLI — инструмент командной строки для создания заказов и
// наблюдения за их жизненным циклом через HTTP API.
//
// Использование:
//
//	lmsctl [--api-url URL] [--json] order <subcommand> [flags]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/lms/internal/cli"
	"github.com/vladislavdragonenkov/lms/internal/version"
)

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "lmsctl",
		Short:         "Logistics CLI — order lifecycle tool",
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewOrderCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
