package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// checkJSON/opJSON mirror chain/frontend's own (unexported) request shapes -
// duplicated here the same way cmd/serve/topology.go keeps its own copy of
// the attribute-type name table, since a CLI client has no business
// importing an HTTP handler package to get a request struct.
type checkJSON struct {
	Attr      uint16 `json:"attr"`
	Predicate string `json:"predicate"`
	Value     string `json:"value"`
	ValueType string `json:"value_type"`
}

type opJSON struct {
	Attr     uint16 `json:"attr"`
	Action   string `json:"action"`
	Arg1     string `json:"arg1"`
	Arg1Type string `json:"arg1_type"`
}

type putRequest struct {
	Opcode         string      `json:"opcode"`
	Checks         []checkJSON `json:"checks"`
	Ops            []opJSON    `json:"ops"`
	FailIfFound    bool        `json:"fail_if_found"`
	FailIfNotFound bool        `json:"fail_if_not_found"`
}

type delRequest struct {
	Checks []checkJSON `json:"checks"`
}

var putCmd = &cobra.Command{
	Use:   "put [key] [value]",
	Short: "Set a key's attr-0 value (a string, overwriting whatever was there)",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		body := putRequest{
			Opcode: "put",
			Ops: []opJSON{
				{Attr: 0, Action: "set", Arg1: value, Arg1Type: "string"},
			},
		}
		return do(http.MethodPut, key, body)
	},
}

var delCmd = &cobra.Command{
	Use:   "del [key]",
	Short: "Delete a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return do(http.MethodDelete, args[0], delRequest{})
	},
}

func do(method, key string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/v1/spaces/%d/keys/%s", viper.GetString("endpoint"), viper.GetUint32("space"), key)

	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("%d %s\n", resp.StatusCode, string(respBody))
	return nil
}
