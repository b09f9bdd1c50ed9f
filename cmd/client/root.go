// Package client implements a command-line HTTP client for chain/frontend's
// gateway, the same role the teacher's cmd/kv plays against its own RPC
// server - "put"/"del" against a running chainkv node's --http address.
package client

import (
	"net/http"
	"time"

	"github.com/chainkv/chainkv/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var httpClient *http.Client

// Commands represents the client command group.
var Commands = &cobra.Command{
	Use:               "client",
	Short:             "Talk to a running chainkv node over its HTTP gateway",
	PersistentPreRunE: setupClient,
}

func init() {
	cobra.OnInitialize(util.InitEnv)

	key := "endpoint"
	Commands.PersistentFlags().String(key, "http://localhost:8080", util.WrapString("Address of the chainkv node's HTTP gateway"))

	key = "space"
	Commands.PersistentFlags().Uint32(key, 0, util.WrapString("ID of the space to operate on"))

	key = "timeout"
	Commands.PersistentFlags().Int(key, 10, util.WrapString("Request timeout in seconds"))

	Commands.AddCommand(putCmd)
	Commands.AddCommand(delCmd)
}

func setupClient(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	httpClient = &http.Client{Timeout: time.Duration(viper.GetInt("timeout")) * time.Second}
	return nil
}
