package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"findare/core"
	"findare/native/lostfound"
	"findare/storage"
)

type testResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	ledger := core.NewLedger(storage.NewMemDB())
	ledger.SetNowFunc(func() int64 { return 1_700_000_000 })
	server := NewServer(ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return server, ts
}

func rpcAddr(fill byte) string {
	var addr lostfound.Address
	for i := range addr {
		addr[i] = fill
	}
	return encodeAddress(addr)
}

func post(t *testing.T, ts *httptest.Server, token string, payload interface{}) (*http.Response, *testResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var decoded testResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, &decoded
}

func call(t *testing.T, ts *httptest.Server, token, method string, params interface{}) (*http.Response, *testResponse) {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{params},
	}
	return post(t, ts, token, payload)
}

func mustCall(t *testing.T, ts *httptest.Server, token, method string, params interface{}) map[string]json.RawMessage {
	t.Helper()
	_, decoded := call(t, ts, token, method, params)
	if decoded.Error != nil {
		t.Fatalf("%s failed: %d %s %v", method, decoded.Error.Code, decoded.Error.Message, decoded.Error.Data)
	}
	var result map[string]json.RawMessage
	if err := json.Unmarshal(decoded.Result, &result); err != nil {
		t.Fatalf("decode %s result: %v", method, err)
	}
	return result
}

func rawString(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("decode string: %v", err)
	}
	return s
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Fatalf("body %q", body)
	}
}

func TestGetConfigBeforeInitialize(t *testing.T) {
	_, ts := newTestServer(t)
	payload := map[string]interface{}{
		"jsonrpc": "2.0", "id": 1,
		"method": "findare_getConfig",
		"params": []interface{}{},
	}
	_, decoded := post(t, ts, "", payload)
	if decoded.Error != nil {
		t.Fatalf("error: %v", decoded.Error)
	}
	var result struct {
		Exists bool `json:"exists"`
	}
	if err := json.Unmarshal(decoded.Result, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Exists {
		t.Fatal("config reported before initialize")
	}
}

func TestLostPostLifecycle(t *testing.T) {
	_, ts := newTestServer(t)
	admin := rpcAddr(0xAD)
	poster := rpcAddr(0x01)
	finder := rpcAddr(0x02)

	result := mustCall(t, ts, "", "findare_initialize", map[string]interface{}{"admin": admin})
	if len(result["txHash"]) == 0 {
		t.Fatal("initialize returned no tx hash")
	}

	mustCall(t, ts, "", "findare_mint", map[string]interface{}{"address": poster, "amount": "5"})

	result = mustCall(t, ts, "", "findare_createLostPost", map[string]interface{}{
		"poster":      poster,
		"seq":         0,
		"title":       "Blue umbrella",
		"description": "left at the bus stop",
		"reward":      "0.5",
	})
	var created lostPostJSON
	if err := json.Unmarshal(result["post"], &created); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if created.Status != "open" || created.RewardCoins != "0.5" {
		t.Fatalf("created post %+v", created)
	}

	// The reward moved into custody at creation time.
	balance := mustCall(t, ts, "", "findare_getBalance", map[string]interface{}{"address": poster})
	if got := rawString(t, balance["coins"]); got != "4.5" {
		t.Fatalf("poster holds %s coins", got)
	}

	result = mustCall(t, ts, "", "findare_getLostPost", map[string]interface{}{"address": created.Address})
	var exists bool
	if err := json.Unmarshal(result["exists"], &exists); err != nil || !exists {
		t.Fatalf("post not visible: exists=%v err=%v", exists, err)
	}

	mustCall(t, ts, "", "findare_submitFoundReport", map[string]interface{}{
		"lostPost":    created.Address,
		"finder":      finder,
		"evidenceUri": "ipfs://evidence",
	})

	result = mustCall(t, ts, "", "findare_approveFoundReport", map[string]interface{}{
		"caller":   admin,
		"lostPost": created.Address,
	})
	var settled lostPostJSON
	if err := json.Unmarshal(result["post"], &settled); err != nil {
		t.Fatalf("decode settled post: %v", err)
	}
	if settled.Status != "closed" {
		t.Fatalf("status %s after approval", settled.Status)
	}
	if settled.Finder == nil || *settled.Finder != finder {
		t.Fatal("finder not recorded on the settled post")
	}

	balance = mustCall(t, ts, "", "findare_getBalance", map[string]interface{}{"address": finder})
	if got := rawString(t, balance["coins"]); got != "0.5" {
		t.Fatalf("finder holds %s coins after payout", got)
	}

	listed := mustCall(t, ts, "", "findare_listLostPosts", map[string]interface{}{})
	var posts []lostPostJSON
	if err := json.Unmarshal(listed["posts"], &posts); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(posts) != 1 || posts[0].Address != created.Address {
		t.Fatalf("list %+v", posts)
	}
}

func TestFoundListingLifecycle(t *testing.T) {
	_, ts := newTestServer(t)
	admin := rpcAddr(0xAD)
	finder := rpcAddr(0x02)
	claimer := rpcAddr(0x03)

	mustCall(t, ts, "", "findare_initialize", map[string]interface{}{"admin": admin})
	mustCall(t, ts, "", "findare_mint", map[string]interface{}{"address": claimer, "amount": "1"})

	result := mustCall(t, ts, "", "findare_createFoundListing", map[string]interface{}{
		"finder": finder,
		"seq":    0,
		"title":  "Tabby cat",
	})
	var listing foundPostJSON
	if err := json.Unmarshal(result["post"], &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}

	result = mustCall(t, ts, "", "findare_claimFoundListing", map[string]interface{}{
		"foundPost": listing.Address,
		"claimer":   claimer,
		"notes":     "white paws, green collar",
		"deposit":   "0.05",
	})
	var ticket claimTicketJSON
	if err := json.Unmarshal(result["ticket"], &ticket); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	if ticket.DepositCoins != "0.05" {
		t.Fatalf("deposit %s", ticket.DepositCoins)
	}

	queried := mustCall(t, ts, "", "findare_getClaimTicket", map[string]interface{}{
		"foundPost": listing.Address,
		"claimer":   claimer,
	})
	var exists bool
	if err := json.Unmarshal(queried["exists"], &exists); err != nil || !exists {
		t.Fatalf("ticket not visible: exists=%v err=%v", exists, err)
	}

	result = mustCall(t, ts, "", "findare_approveClaim", map[string]interface{}{
		"caller":    admin,
		"foundPost": listing.Address,
	})
	var settled foundPostJSON
	if err := json.Unmarshal(result["post"], &settled); err != nil {
		t.Fatalf("decode settled listing: %v", err)
	}
	if settled.Status != "claimed" {
		t.Fatalf("status %s after approval", settled.Status)
	}

	// The deposit moved to the finder on approval.
	balance := mustCall(t, ts, "", "findare_getBalance", map[string]interface{}{"address": finder})
	if got := rawString(t, balance["coins"]); got != "0.05" {
		t.Fatalf("finder holds %s coins after settlement", got)
	}
	balance = mustCall(t, ts, "", "findare_getBalance", map[string]interface{}{"address": claimer})
	if got := rawString(t, balance["coins"]); got != "0.95" {
		t.Fatalf("claimer holds %s coins after settlement", got)
	}

	// The settled ticket is gone; only the listing's history points at it.
	queried = mustCall(t, ts, "", "findare_getClaimTicket", map[string]interface{}{
		"foundPost": listing.Address,
		"claimer":   claimer,
	})
	if err := json.Unmarshal(queried["exists"], &exists); err != nil || exists {
		t.Fatalf("ticket survived approval: exists=%v err=%v", exists, err)
	}
}

func TestPolicyMinimumEnforcedBeforeTransition(t *testing.T) {
	server, ts := newTestServer(t)
	admin := rpcAddr(0xAD)
	poster := rpcAddr(0x01)

	mustCall(t, ts, "", "findare_initialize", map[string]interface{}{"admin": admin})
	mustCall(t, ts, "", "findare_mint", map[string]interface{}{"address": poster, "amount": "5"})

	resp, decoded := call(t, ts, "", "findare_createLostPost", map[string]interface{}{
		"poster": poster,
		"seq":    0,
		"title":  "Blue umbrella",
		"reward": "0.05",
	})
	if decoded.Error == nil || decoded.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", decoded.Error)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}

	// Raising the configured minimum rejects rewards the default allowed.
	server.SetPolicyLimits(big.NewInt(2_000_000_000), nil)
	_, decoded = call(t, ts, "", "findare_createLostPost", map[string]interface{}{
		"poster": poster,
		"seq":    0,
		"title":  "Blue umbrella",
		"reward": "1",
	})
	if decoded.Error == nil || decoded.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params under raised minimum, got %+v", decoded.Error)
	}
}

func TestEngineErrorMapping(t *testing.T) {
	_, ts := newTestServer(t)
	admin := rpcAddr(0xAD)
	poster := rpcAddr(0x01)

	mustCall(t, ts, "", "findare_initialize", map[string]interface{}{"admin": admin})

	// Unfunded poster: constraint violation.
	resp, decoded := call(t, ts, "", "findare_createLostPost", map[string]interface{}{
		"poster": poster,
		"seq":    0,
		"title":  "Blue umbrella",
		"reward": "0.5",
	})
	if decoded.Error == nil || decoded.Error.Code != codeConstraint {
		t.Fatalf("expected constraint, got %+v", decoded.Error)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d", resp.StatusCode)
	}

	mustCall(t, ts, "", "findare_mint", map[string]interface{}{"address": poster, "amount": "5"})
	mustCall(t, ts, "", "findare_createLostPost", map[string]interface{}{
		"poster": poster,
		"seq":    0,
		"title":  "Blue umbrella",
		"reward": "0.5",
	})

	// Reusing a sequence number: conflict.
	resp, decoded = call(t, ts, "", "findare_createLostPost", map[string]interface{}{
		"poster": poster,
		"seq":    0,
		"title":  "Blue umbrella",
		"reward": "0.5",
	})
	if decoded.Error == nil || decoded.Error.Code != codeConflict {
		t.Fatalf("expected conflict, got %+v", decoded.Error)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status %d", resp.StatusCode)
	}

	// Settlement by someone other than the admin: forbidden.
	posts := mustCall(t, ts, "", "findare_listLostPosts", map[string]interface{}{})
	var listed []lostPostJSON
	if err := json.Unmarshal(posts["posts"], &listed); err != nil || len(listed) != 1 {
		t.Fatalf("list: %v (%d posts)", err, len(listed))
	}
	mustCall(t, ts, "", "findare_submitFoundReport", map[string]interface{}{
		"lostPost":    listed[0].Address,
		"finder":      rpcAddr(0x02),
		"evidenceUri": "",
	})
	resp, decoded = call(t, ts, "", "findare_approveFoundReport", map[string]interface{}{
		"caller":   poster,
		"lostPost": listed[0].Address,
	})
	if decoded.Error == nil || decoded.Error.Code != codeForbidden {
		t.Fatalf("expected forbidden, got %+v", decoded.Error)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d", resp.StatusCode)
	}

	// Reporting against a missing post: not found.
	resp, decoded = call(t, ts, "", "findare_submitFoundReport", map[string]interface{}{
		"lostPost":    rpcAddr(0x7F),
		"finder":      rpcAddr(0x02),
		"evidenceUri": "",
	})
	if decoded.Error == nil || decoded.Error.Code != codeNotFound {
		t.Fatalf("expected not found, got %+v", decoded.Error)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestMethodNotFound(t *testing.T) {
	_, ts := newTestServer(t)
	resp, decoded := call(t, ts, "", "findare_unknown", map[string]interface{}{})
	if decoded.Error == nil || decoded.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", decoded.Error)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestMalformedRequests(t *testing.T) {
	_, ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/", bytes.NewReader([]byte("{not json")))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var decoded testResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", decoded.Error)
	}

	// Wrong parameter arity.
	_, decoded2 := post(t, ts, "", map[string]interface{}{
		"jsonrpc": "2.0", "id": 1,
		"method": "findare_getLostPost",
		"params": []interface{}{},
	})
	if decoded2.Error == nil || decoded2.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", decoded2.Error)
	}

	// Malformed bech32 address.
	_, decoded3 := call(t, ts, "", "findare_getLostPost", map[string]interface{}{"address": "bogus"})
	if decoded3.Error == nil || decoded3.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", decoded3.Error)
	}

	// Unsupported jsonrpc version.
	_, decoded4 := post(t, ts, "", map[string]interface{}{
		"jsonrpc": "1.0", "id": 1,
		"method": "findare_getConfig",
		"params": []interface{}{},
	})
	if decoded4.Error == nil || decoded4.Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", decoded4.Error)
	}
}

func TestBearerTokenGatesMutations(t *testing.T) {
	t.Setenv(AuthTokenEnv, "sekret")
	_, ts := newTestServer(t)
	admin := rpcAddr(0xAD)

	// Mutations without a token are refused.
	resp, decoded := call(t, ts, "", "findare_initialize", map[string]interface{}{"admin": admin})
	if decoded.Error == nil || decoded.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", decoded.Error)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", resp.StatusCode)
	}

	// A wrong token is refused too.
	_, decoded = call(t, ts, "wrong", "findare_initialize", map[string]interface{}{"admin": admin})
	if decoded.Error == nil || decoded.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized for bad token, got %+v", decoded.Error)
	}

	// The right token passes.
	_, decoded = call(t, ts, "sekret", "findare_initialize", map[string]interface{}{"admin": admin})
	if decoded.Error != nil {
		t.Fatalf("authorized call failed: %+v", decoded.Error)
	}

	// Queries remain open.
	_, decoded = post(t, ts, "", map[string]interface{}{
		"jsonrpc": "2.0", "id": 1,
		"method": "findare_getConfig",
		"params": []interface{}{},
	})
	if decoded.Error != nil {
		t.Fatalf("query blocked: %+v", decoded.Error)
	}
}
