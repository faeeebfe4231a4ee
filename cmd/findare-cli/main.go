package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"findare/crypto"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("FINDARE_RPC_TOKEN")

func main() {
	args := os.Args[1:]
	var err error
	rpcEndpoint = defaultRPCEndpoint()
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		generateKey()
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		getBalance(args[1])
	case "mint":
		if len(args) < 3 {
			fmt.Println("Usage: mint <address> <amount>")
			return
		}
		mint(args[1], args[2])
	case "init":
		if len(args) < 2 {
			fmt.Println("Usage: init <admin-address>")
			return
		}
		initialize(args[1])
	case "lost":
		code := runLostCommand(args[1:], os.Stdout, os.Stderr)
		if code != 0 {
			os.Exit(code)
		}
		return
	case "found":
		code := runFoundCommand(args[1:], os.Stdout, os.Stderr)
		if code != 0 {
			os.Exit(code)
		}
		return
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func printUsage() {
	fmt.Println(`Usage: findare-cli [--rpc <url>] <command> [args]

Commands:
  generate-key                       Generate a wallet key and print its address
  balance <address>                  Show the coin balance for an address
  mint <address> <amount>            DEV ONLY: credit an address (requires auth token)
  init <admin-address>               Initialize the marketplace config
  lost <subcommand> ...              Lost-post operations (create, get, list, report, approve, reject)
  found <subcommand> ...             Found-listing operations (create, get, list, claim, ticket, approve, reject)

Set FINDARE_RPC_TOKEN for mutating commands when the node enforces auth.`)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func generateKey() {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}

	fileName := "wallet.keystore"
	if err := crypto.SaveToKeystore(fileName, key, ""); err != nil {
		panic(fmt.Sprintf("Failed to save key to %s: %v", fileName, err))
	}

	fmt.Printf("Generated new key and saved to %s\n", fileName)
	fmt.Printf("Your public address is: %s\n", key.PubKey().Address().String())
	fmt.Println("Store this file securely.")
}

func getBalance(addr string) {
	result, err := callRPC("findare_getBalance", map[string]interface{}{"address": addr}, false)
	if err != nil {
		fmt.Printf("Error fetching balance: %v\n", err)
		return
	}
	var parsed struct {
		Address string `json:"address"`
		Balance string `json:"balance"`
		Coins   string `json:"coins"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		fmt.Printf("Error decoding balance: %v\n", err)
		return
	}
	fmt.Printf("Balance for: %s\n", parsed.Address)
	fmt.Printf("  Coins:      %s\n", parsed.Coins)
	fmt.Printf("  Base units: %s\n", parsed.Balance)
}

func mint(addr, amount string) {
	result, err := callRPC("findare_mint", map[string]interface{}{"address": addr, "amount": amount}, true)
	if err != nil {
		fmt.Printf("Error minting: %v\n", err)
		return
	}
	printTxResult(os.Stdout, result)
}

func initialize(admin string) {
	result, err := callRPC("findare_initialize", map[string]interface{}{"admin": admin}, true)
	if err != nil {
		fmt.Printf("Error initializing: %v\n", err)
		return
	}
	printTxResult(os.Stdout, result)
}

// --- RPC HELPER FUNCTIONS ---

func callRPC(method string, param interface{}, requireAuth bool) (json.RawMessage, error) {
	payload := map[string]interface{}{"id": 1, "jsonrpc": "2.0", "method": method}
	if param != nil {
		payload["params"] = []interface{}{param}
	} else {
		payload["params"] = []interface{}{}
	}
	body, _ := json.Marshal(payload)
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int             `json:"code"`
			Message string          `json:"message"`
			Data    json.RawMessage `json:"data,omitempty"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node")
	}
	if rpcResp.Error != nil {
		if len(rpcResp.Error.Data) > 0 {
			return nil, fmt.Errorf("error from node: %s (%s)", rpcResp.Error.Message, strings.TrimSpace(string(rpcResp.Error.Data)))
		}
		return nil, fmt.Errorf("error from node: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func doRPCRequest(payload []byte, requireAuth bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if requireAuth && rpcAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}

func printTxResult(out *os.File, result json.RawMessage) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Fprintln(out, string(result))
		return
	}
	fmt.Fprintln(out, pretty.String())
}
