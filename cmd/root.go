package cmd

import (
	"fmt"
	"os"

	"github.com/chainkv/chainkv/cmd/client"
	"github.com/chainkv/chainkv/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "chainkv",
		Short: "chain-replicated, HyperDex-style key-value store",
		Long: fmt.Sprintf(`chainkv (v%s)

A distributed key-value store that shards by a space-filling hash across
subspaces and replicates each key along a value-dependent chain of
replicas, in the style of HyperDex.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of chainkv",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("chainkv v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(client.Commands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
