package rpc

import (
	"encoding/hex"
	"math/big"
	"net/http"

	"findare/core"
	"findare/core/state"
	"findare/crypto"
	"findare/native/lostfound"
)

func parseAddress(field, value string) (lostfound.Address, error) {
	decoded, err := crypto.DecodeAddress(value)
	if err != nil {
		return lostfound.Address{}, invalidParams("%s: %w", field, err)
	}
	var addr lostfound.Address
	copy(addr[:], decoded.Bytes())
	return addr, nil
}

func encodeAddress(addr lostfound.Address) string {
	return crypto.MustNewAddress(crypto.FndPrefix, addr[:]).String()
}

// parseAmount converts a decimal coin string into base units, enforcing the
// provided policy minimum before any ledger interaction.
func parseAmount(field, value string, minimum *big.Int) (*big.Int, error) {
	amount, err := lostfound.ToBaseUnits(value)
	if err != nil {
		return nil, invalidParams("%s: %w", field, err)
	}
	if amount.Sign() <= 0 {
		return nil, invalidParams("%s: amount must be positive", field)
	}
	if minimum != nil && amount.Cmp(minimum) < 0 {
		return nil, invalidParams("%s: below policy minimum of %s coins", field, lostfound.FormatBaseUnits(minimum))
	}
	return amount, nil
}

// --- JSON shapes ---

type configJSON struct {
	Address        string `json:"address"`
	Admin          string `json:"admin"`
	LostPostCount  uint64 `json:"lostPostCount"`
	FoundPostCount uint64 `json:"foundPostCount"`
}

type lostPostJSON struct {
	Address     string  `json:"address"`
	Owner       string  `json:"owner"`
	Seq         uint64  `json:"seq"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Attributes  string  `json:"attributes"`
	PhotoRef    string  `json:"photoRef"`
	Reward      string  `json:"reward"`
	RewardCoins string  `json:"rewardCoins"`
	Status      string  `json:"status"`
	Finder      *string `json:"finder,omitempty"`
	CreatedAt   int64   `json:"createdAt"`
}

type foundPostJSON struct {
	Address     string  `json:"address"`
	Finder      string  `json:"finder"`
	Seq         uint64  `json:"seq"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Attributes  string  `json:"attributes"`
	PhotoRef    string  `json:"photoRef"`
	Status      string  `json:"status"`
	ActiveClaim *string `json:"activeClaim,omitempty"`
	CreatedAt   int64   `json:"createdAt"`
}

type claimTicketJSON struct {
	Address      string `json:"address"`
	Claimer      string `json:"claimer"`
	FoundPost    string `json:"foundPost"`
	Notes        string `json:"notes"`
	Deposit      string `json:"deposit"`
	DepositCoins string `json:"depositCoins"`
	CreatedAt    int64  `json:"createdAt"`
}

func newConfigJSON(addr lostfound.Address, cfg *lostfound.AppConfig) *configJSON {
	return &configJSON{
		Address:        encodeAddress(addr),
		Admin:          encodeAddress(lostfound.Address(cfg.Admin)),
		LostPostCount:  cfg.LostPostCount,
		FoundPostCount: cfg.FoundPostCount,
	}
}

func newLostPostJSON(addr lostfound.Address, post *lostfound.LostPost) *lostPostJSON {
	out := &lostPostJSON{
		Address:     encodeAddress(addr),
		Owner:       encodeAddress(lostfound.Address(post.Owner)),
		Seq:         post.Seq,
		Title:       post.Fields.Title,
		Description: post.Fields.Description,
		Attributes:  post.Fields.Attributes,
		PhotoRef:    post.Fields.PhotoRef,
		Reward:      post.Reward.String(),
		RewardCoins: lostfound.FormatBaseUnits(post.Reward),
		Status:      post.Status.String(),
		CreatedAt:   post.CreatedAt,
	}
	if post.Finder != nil {
		finder := encodeAddress(lostfound.Address(*post.Finder))
		out.Finder = &finder
	}
	return out
}

func newFoundPostJSON(addr lostfound.Address, post *lostfound.FoundPost) *foundPostJSON {
	out := &foundPostJSON{
		Address:     encodeAddress(addr),
		Finder:      encodeAddress(lostfound.Address(post.Finder)),
		Seq:         post.Seq,
		Title:       post.Fields.Title,
		Description: post.Fields.Description,
		Attributes:  post.Fields.Attributes,
		PhotoRef:    post.Fields.PhotoRef,
		Status:      post.Status.String(),
		CreatedAt:   post.CreatedAt,
	}
	if post.ActiveClaim != nil {
		claim := encodeAddress(*post.ActiveClaim)
		out.ActiveClaim = &claim
	}
	return out
}

func newClaimTicketJSON(addr lostfound.Address, ticket *lostfound.ClaimTicket) *claimTicketJSON {
	return &claimTicketJSON{
		Address:      encodeAddress(addr),
		Claimer:      encodeAddress(lostfound.Address(ticket.Claimer)),
		FoundPost:    encodeAddress(ticket.FoundPost),
		Notes:        ticket.Notes,
		Deposit:      ticket.Deposit.String(),
		DepositCoins: lostfound.FormatBaseUnits(ticket.Deposit),
		CreatedAt:    ticket.CreatedAt,
	}
}

func txHashHex(result *core.TxResult) string {
	return hex.EncodeToString(result.Hash[:])
}

// --- mutations ---

type initializeParams struct {
	Admin string `json:"admin"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, req *RPCRequest) error {
	var params initializeParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	admin, err := parseAddress("admin", params.Admin)
	if err != nil {
		return err
	}
	var cfg *lostfound.AppConfig
	var cfgAddr lostfound.Address
	result, err := s.ledger.Apply("initialize", func(engine *lostfound.Engine) error {
		var applyErr error
		cfg, cfgAddr, applyErr = engine.Initialize(admin)
		return applyErr
	})
	if err != nil {
		return err
	}
	writeResult(w, req.ID, map[string]interface{}{
		"txHash": txHashHex(result),
		"config": newConfigJSON(cfgAddr, cfg),
	})
	return nil
}

type createLostPostParams struct {
	Poster      string `json:"poster"`
	Seq         uint64 `json:"seq"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Attributes  string `json:"attributes"`
	PhotoRef    string `json:"photoRef"`
	Reward      string `json:"reward"`
}

func (s *Server) handleCreateLostPost(w http.ResponseWriter, req *RPCRequest) error {
	var params createLostPostParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	poster, err := parseAddress("poster", params.Poster)
	if err != nil {
		return err
	}
	reward, err := parseAmount("reward", params.Reward, s.minReward)
	if err != nil {
		return err
	}
	fields := lostfound.PostFields{
		Title:       params.Title,
		Description: params.Description,
		Attributes:  params.Attributes,
		PhotoRef:    params.PhotoRef,
	}
	var post *lostfound.LostPost
	var addr lostfound.Address
	result, err := s.ledger.Apply("createLostPost", func(engine *lostfound.Engine) error {
		var applyErr error
		post, addr, applyErr = engine.CreateLostPost(poster, params.Seq, fields, reward)
		return applyErr
	})
	if err != nil {
		return err
	}
	writeResult(w, req.ID, map[string]interface{}{
		"txHash": txHashHex(result),
		"post":   newLostPostJSON(addr, post),
	})
	return nil
}

type submitFoundReportParams struct {
	LostPost    string `json:"lostPost"`
	Finder      string `json:"finder"`
	EvidenceURI string `json:"evidenceUri"`
}

func (s *Server) handleSubmitFoundReport(w http.ResponseWriter, req *RPCRequest) error {
	var params submitFoundReportParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	postAddr, err := parseAddress("lostPost", params.LostPost)
	if err != nil {
		return err
	}
	finder, err := parseAddress("finder", params.Finder)
	if err != nil {
		return err
	}
	var reportAddr lostfound.Address
	result, err := s.ledger.Apply("submitFoundReport", func(engine *lostfound.Engine) error {
		var applyErr error
		_, reportAddr, applyErr = engine.SubmitFoundReport(postAddr, finder, params.EvidenceURI)
		return applyErr
	})
	if err != nil {
		return err
	}
	writeResult(w, req.ID, map[string]interface{}{
		"txHash": txHashHex(result),
		"report": encodeAddress(reportAddr),
	})
	return nil
}

type adminActionParams struct {
	Caller   string `json:"caller"`
	LostPost string `json:"lostPost,omitempty"`
}

func (s *Server) handleApproveFoundReport(w http.ResponseWriter, req *RPCRequest) error {
	return s.settleLostPost(w, req, func(engine *lostfound.Engine, caller, post lostfound.Address) (*lostfound.LostPost, error) {
		return engine.ApproveFoundReport(caller, post)
	}, "approveFoundReport")
}

func (s *Server) handleRejectFoundReport(w http.ResponseWriter, req *RPCRequest) error {
	return s.settleLostPost(w, req, func(engine *lostfound.Engine, caller, post lostfound.Address) (*lostfound.LostPost, error) {
		return engine.RejectFoundReport(caller, post)
	}, "rejectFoundReport")
}

func (s *Server) settleLostPost(w http.ResponseWriter, req *RPCRequest, settle func(*lostfound.Engine, lostfound.Address, lostfound.Address) (*lostfound.LostPost, error), opName string) error {
	var params adminActionParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return err
	}
	postAddr, err := parseAddress("lostPost", params.LostPost)
	if err != nil {
		return err
	}
	var post *lostfound.LostPost
	result, err := s.ledger.Apply(opName, func(engine *lostfound.Engine) error {
		var applyErr error
		post, applyErr = settle(engine, caller, postAddr)
		return applyErr
	})
	if err != nil {
		return err
	}
	writeResult(w, req.ID, map[string]interface{}{
		"txHash": txHashHex(result),
		"post":   newLostPostJSON(postAddr, post),
	})
	return nil
}

type createFoundListingParams struct {
	Finder      string `json:"finder"`
	Seq         uint64 `json:"seq"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Attributes  string `json:"attributes"`
	PhotoRef    string `json:"photoRef"`
}

func (s *Server) handleCreateFoundListing(w http.ResponseWriter, req *RPCRequest) error {
	var params createFoundListingParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	finder, err := parseAddress("finder", params.Finder)
	if err != nil {
		return err
	}
	fields := lostfound.PostFields{
		Title:       params.Title,
		Description: params.Description,
		Attributes:  params.Attributes,
		PhotoRef:    params.PhotoRef,
	}
	var post *lostfound.FoundPost
	var addr lostfound.Address
	result, err := s.ledger.Apply("createFoundListing", func(engine *lostfound.Engine) error {
		var applyErr error
		post, addr, applyErr = engine.CreateFoundListing(finder, params.Seq, fields)
		return applyErr
	})
	if err != nil {
		return err
	}
	writeResult(w, req.ID, map[string]interface{}{
		"txHash": txHashHex(result),
		"post":   newFoundPostJSON(addr, post),
	})
	return nil
}

type claimFoundListingParams struct {
	FoundPost string `json:"foundPost"`
	Claimer   string `json:"claimer"`
	Notes     string `json:"notes"`
	Deposit   string `json:"deposit"`
}

func (s *Server) handleClaimFoundListing(w http.ResponseWriter, req *RPCRequest) error {
	var params claimFoundListingParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	postAddr, err := parseAddress("foundPost", params.FoundPost)
	if err != nil {
		return err
	}
	claimer, err := parseAddress("claimer", params.Claimer)
	if err != nil {
		return err
	}
	deposit, err := parseAmount("deposit", params.Deposit, s.minClaimDeposit)
	if err != nil {
		return err
	}
	var ticket *lostfound.ClaimTicket
	var ticketAddr lostfound.Address
	result, err := s.ledger.Apply("claimFoundListing", func(engine *lostfound.Engine) error {
		var applyErr error
		ticket, ticketAddr, applyErr = engine.ClaimFoundListing(postAddr, claimer, params.Notes, deposit)
		return applyErr
	})
	if err != nil {
		return err
	}
	writeResult(w, req.ID, map[string]interface{}{
		"txHash": txHashHex(result),
		"ticket": newClaimTicketJSON(ticketAddr, ticket),
	})
	return nil
}

type claimActionParams struct {
	Caller    string `json:"caller"`
	FoundPost string `json:"foundPost"`
}

func (s *Server) handleApproveClaim(w http.ResponseWriter, req *RPCRequest) error {
	return s.settleClaim(w, req, func(engine *lostfound.Engine, caller, post lostfound.Address) (*lostfound.FoundPost, error) {
		return engine.ApproveClaim(caller, post)
	}, "approveClaim")
}

func (s *Server) handleRejectClaim(w http.ResponseWriter, req *RPCRequest) error {
	return s.settleClaim(w, req, func(engine *lostfound.Engine, caller, post lostfound.Address) (*lostfound.FoundPost, error) {
		return engine.RejectClaim(caller, post)
	}, "rejectClaim")
}

func (s *Server) settleClaim(w http.ResponseWriter, req *RPCRequest, settle func(*lostfound.Engine, lostfound.Address, lostfound.Address) (*lostfound.FoundPost, error), opName string) error {
	var params claimActionParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		return err
	}
	postAddr, err := parseAddress("foundPost", params.FoundPost)
	if err != nil {
		return err
	}
	var post *lostfound.FoundPost
	result, err := s.ledger.Apply(opName, func(engine *lostfound.Engine) error {
		var applyErr error
		post, applyErr = settle(engine, caller, postAddr)
		return applyErr
	})
	if err != nil {
		return err
	}
	writeResult(w, req.ID, map[string]interface{}{
		"txHash": txHashHex(result),
		"post":   newFoundPostJSON(postAddr, post),
	})
	return nil
}

type mintParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

func (s *Server) handleMint(w http.ResponseWriter, req *RPCRequest) error {
	var params mintParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		return err
	}
	amount, err := parseAmount("amount", params.Amount, nil)
	if err != nil {
		return err
	}
	result, err := s.ledger.Mint(addr, amount)
	if err != nil {
		return err
	}
	writeResult(w, req.ID, map[string]interface{}{"txHash": txHashHex(result)})
	return nil
}

// --- queries ---

// Absent records surface as {"exists": false} rather than an error: probing a
// derived address that nobody has written yet is a normal outcome.

func (s *Server) handleGetConfig(w http.ResponseWriter, req *RPCRequest) error {
	var cfg *lostfound.AppConfig
	var ok bool
	if err := s.ledger.View(func(m *state.Manager) error {
		var viewErr error
		cfg, ok, viewErr = m.ConfigGet()
		return viewErr
	}); err != nil {
		return err
	}
	if !ok {
		writeResult(w, req.ID, map[string]interface{}{"exists": false})
		return nil
	}
	cfgAddr, _, err := lostfound.ConfigAddress()
	if err != nil {
		return err
	}
	writeResult(w, req.ID, map[string]interface{}{"exists": true, "config": newConfigJSON(cfgAddr, cfg)})
	return nil
}

type addressParams struct {
	Address string `json:"address"`
}

func (s *Server) handleGetLostPost(w http.ResponseWriter, req *RPCRequest) error {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		return err
	}
	var post *lostfound.LostPost
	var ok bool
	if err := s.ledger.View(func(m *state.Manager) error {
		var viewErr error
		post, ok, viewErr = m.LostPostGet(addr)
		return viewErr
	}); err != nil {
		return err
	}
	if !ok {
		writeResult(w, req.ID, map[string]interface{}{"exists": false})
		return nil
	}
	writeResult(w, req.ID, map[string]interface{}{"exists": true, "post": newLostPostJSON(addr, post)})
	return nil
}

func (s *Server) handleListLostPosts(w http.ResponseWriter, req *RPCRequest) error {
	var addrs []lostfound.Address
	var posts []*lostfound.LostPost
	if err := s.ledger.View(func(m *state.Manager) error {
		var viewErr error
		addrs, posts, viewErr = m.LostPostList()
		return viewErr
	}); err != nil {
		return err
	}
	out := make([]*lostPostJSON, 0, len(posts))
	for i, post := range posts {
		out = append(out, newLostPostJSON(addrs[i], post))
	}
	writeResult(w, req.ID, map[string]interface{}{"posts": out})
	return nil
}

func (s *Server) handleGetFoundListing(w http.ResponseWriter, req *RPCRequest) error {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		return err
	}
	var post *lostfound.FoundPost
	var ok bool
	if err := s.ledger.View(func(m *state.Manager) error {
		var viewErr error
		post, ok, viewErr = m.FoundPostGet(addr)
		return viewErr
	}); err != nil {
		return err
	}
	if !ok {
		writeResult(w, req.ID, map[string]interface{}{"exists": false})
		return nil
	}
	writeResult(w, req.ID, map[string]interface{}{"exists": true, "post": newFoundPostJSON(addr, post)})
	return nil
}

func (s *Server) handleListFoundListings(w http.ResponseWriter, req *RPCRequest) error {
	var addrs []lostfound.Address
	var posts []*lostfound.FoundPost
	if err := s.ledger.View(func(m *state.Manager) error {
		var viewErr error
		addrs, posts, viewErr = m.FoundPostList()
		return viewErr
	}); err != nil {
		return err
	}
	out := make([]*foundPostJSON, 0, len(posts))
	for i, post := range posts {
		out = append(out, newFoundPostJSON(addrs[i], post))
	}
	writeResult(w, req.ID, map[string]interface{}{"posts": out})
	return nil
}

type claimTicketQueryParams struct {
	FoundPost string `json:"foundPost"`
	Claimer   string `json:"claimer"`
}

func (s *Server) handleGetClaimTicket(w http.ResponseWriter, req *RPCRequest) error {
	var params claimTicketQueryParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	postAddr, err := parseAddress("foundPost", params.FoundPost)
	if err != nil {
		return err
	}
	claimer, err := parseAddress("claimer", params.Claimer)
	if err != nil {
		return err
	}
	ticketAddr, _, err := lostfound.ClaimTicketAddress(postAddr, claimer)
	if err != nil {
		return err
	}
	var ticket *lostfound.ClaimTicket
	var ok bool
	if err := s.ledger.View(func(m *state.Manager) error {
		var viewErr error
		ticket, ok, viewErr = m.ClaimTicketGet(ticketAddr)
		return viewErr
	}); err != nil {
		return err
	}
	if !ok {
		writeResult(w, req.ID, map[string]interface{}{"exists": false})
		return nil
	}
	writeResult(w, req.ID, map[string]interface{}{"exists": true, "ticket": newClaimTicketJSON(ticketAddr, ticket)})
	return nil
}

func (s *Server) handleGetBalance(w http.ResponseWriter, req *RPCRequest) error {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		return err
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		return err
	}
	var balance *big.Int
	if err := s.ledger.View(func(m *state.Manager) error {
		account, viewErr := m.GetAccount(addr)
		if viewErr != nil {
			return viewErr
		}
		balance = account.Balance
		return nil
	}); err != nil {
		return err
	}
	writeResult(w, req.ID, map[string]interface{}{
		"address": encodeAddress(addr),
		"balance": balance.String(),
		"coins":   lostfound.FormatBaseUnits(balance),
	})
	return nil
}
