package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/spotex/pkg/app/core/ledger"
	"github.com/uhyunpark/spotex/pkg/app/core/market"
	"github.com/uhyunpark/spotex/pkg/app/core/orderbook"
	"github.com/uhyunpark/spotex/pkg/app/core/settlement"
	"github.com/uhyunpark/spotex/pkg/app/core/transaction"
	"github.com/uhyunpark/spotex/pkg/app/spot"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 500
)

// ==============================
// Trading
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var (
		req settlement.SubmitRequest
		err error
	)
	if s.cfg.AuthMode == AuthHeader {
		req, err = s.headerSubmit(w, r)
	} else {
		req, err = s.signedSubmit(w, r)
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	res, err := s.app.SubmitOrder(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, SubmitOrderResponse{Order: res.Order, Trades: nonNil(res.Trades)})
}

func (s *Server) headerSubmit(w http.ResponseWriter, r *http.Request) (settlement.SubmitRequest, error) {
	owner, err := headerOwner(r)
	if err != nil {
		return settlement.SubmitRequest{}, err
	}
	var body SubmitOrderRequest
	if err := s.decode(w, r, &body); err != nil {
		return settlement.SubmitRequest{}, err
	}
	pair, err := market.ParsePair(body.Pair)
	if err != nil {
		return settlement.SubmitRequest{}, badRequest("%v", err)
	}
	side, err := orderbook.ParseSide(body.Side)
	if err != nil {
		return settlement.SubmitRequest{}, badRequest("%v", err)
	}
	return settlement.SubmitRequest{Owner: owner, Side: side, Pair: pair, Amount: *body.Amount, Price: *body.Price}, nil
}

func (s *Server) signedSubmit(w http.ResponseWriter, r *http.Request) (settlement.SubmitRequest, error) {
	tx, owner, err := s.signedRequest(w, r, transaction.TxTypeOrder)
	if err != nil {
		return settlement.SubmitRequest{}, err
	}
	p := tx.Order
	pair, err := market.ParsePair(p.Pair)
	if err != nil {
		return settlement.SubmitRequest{}, badRequest("%v", err)
	}
	amount, err := parseDecimal("amount", p.Amount)
	if err != nil {
		return settlement.SubmitRequest{}, err
	}
	price, err := parseDecimal("price", p.Price)
	if err != nil {
		return settlement.SubmitRequest{}, err
	}
	return settlement.SubmitRequest{Owner: owner, Side: orderbook.Side(p.Side), Pair: pair, Amount: amount, Price: price}, nil
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var (
		owner common.Address
		err   error
	)
	if s.cfg.AuthMode == AuthHeader {
		owner, err = headerOwner(r)
	} else {
		var tx *transaction.SignedTransaction
		tx, owner, err = s.signedRequest(w, r, transaction.TxTypeCancel)
		if err == nil && tx.Cancel.OrderID != id {
			err = badRequest("signed order id %q does not match %q", tx.Cancel.OrderID, id)
		}
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	res, err := s.app.CancelOrder(r.Context(), owner, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	released := decimal.Zero
	if res.Entry != nil {
		released = res.Entry.Amount
	}
	respondJSON(w, CancelOrderResponse{Order: res.Order, Released: released})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var (
		req spot.TransferRequest
		err error
	)
	if s.cfg.AuthMode == AuthHeader {
		req, err = s.headerTransfer(w, r)
	} else {
		req, err = s.signedTransfer(w, r)
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	e, err := s.app.Transfer(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, e)
}

func (s *Server) headerTransfer(w http.ResponseWriter, r *http.Request) (spot.TransferRequest, error) {
	owner, err := headerOwner(r)
	if err != nil {
		return spot.TransferRequest{}, err
	}
	var body TransferRequest
	if err := s.decode(w, r, &body); err != nil {
		return spot.TransferRequest{}, err
	}
	return spot.TransferRequest{
		From:     owner,
		To:       common.HexToAddress(body.To),
		Currency: strings.ToUpper(body.Currency),
		Amount:   *body.Amount,
		Ref:      body.Ref,
	}, nil
}

func (s *Server) signedTransfer(w http.ResponseWriter, r *http.Request) (spot.TransferRequest, error) {
	tx, owner, err := s.signedRequest(w, r, transaction.TxTypeTransfer)
	if err != nil {
		return spot.TransferRequest{}, err
	}
	p := tx.Transfer
	amount, err := parseDecimal("amount", p.Amount)
	if err != nil {
		return spot.TransferRequest{}, err
	}
	return spot.TransferRequest{
		From:     owner,
		To:       common.HexToAddress(p.To),
		Currency: strings.ToUpper(p.Currency),
		Amount:   amount,
		Ref:      fmt.Sprintf("transfer:%d", p.Nonce),
	}, nil
}

// ==============================
// Funding
// ==============================

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var body FundingRequest
	if err := s.decode(w, r, &body); err != nil {
		s.fail(w, err)
		return
	}
	e, err := s.app.Credit(r.Context(), body.account(), *body.Amount, body.Ref)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, e)
}

func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	var body FundingRequest
	if err := s.decode(w, r, &body); err != nil {
		s.fail(w, err)
		return
	}
	e, err := s.app.Debit(r.Context(), body.account(), *body.Amount, body.ExternalAddress, body.Ref)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, e)
}

func (f FundingRequest) account() ledger.Account {
	return ledger.Account{Owner: common.HexToAddress(f.Owner), Currency: strings.ToUpper(f.Currency)}
}

// ==============================
// Queries
// ==============================

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.app.Markets()
	infos := make([]MarketInfo, len(markets))
	for i, m := range markets {
		infos[i] = MarketInfo{
			Symbol: m.Symbol,
			Base:   m.Pair.Base,
			Quote:  m.Pair.Quote,
			Status: string(m.Status),
		}
	}
	respondJSON(w, MarketsResponse{Currencies: s.app.Currencies(), Markets: infos})
}

func (s *Server) handleGetPairOrders(w http.ResponseWriter, r *http.Request) {
	pair, err := market.ParsePair(mux.Vars(r)["pair"])
	if err != nil {
		s.fail(w, badRequest("%v", err))
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	orders, err := s.app.OrdersByPair(pair, f)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, nonNil(orders))
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	pair, err := market.ParsePair(mux.Vars(r)["pair"])
	if err != nil {
		s.fail(w, badRequest("%v", err))
		return
	}
	limit := defaultTradeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.fail(w, badRequest("invalid limit %q", v))
			return
		}
		limit = min(n, maxTradeLimit)
	}
	trades, err := s.app.RecentTrades(pair, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, nonNil(trades))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.app.Order(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, o)
}

func (s *Server) handleGetOrderTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.app.TradesForOrder(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, nonNil(trades))
}

func (s *Server) handleGetOwnerOrders(w http.ResponseWriter, r *http.Request) {
	owner, err := pathOwner(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	orders, err := s.app.OrdersByOwner(owner, f)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, nonNil(orders))
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	owner, err := pathOwner(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	balances, err := s.app.Balances(owner)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, BalancesResponse{Owner: owner.Hex(), Balances: nonNil(balances)})
}

func (s *Server) handleGetEntries(w http.ResponseWriter, r *http.Request) {
	owner, err := pathOwner(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	acct := ledger.Account{Owner: owner, Currency: strings.ToUpper(mux.Vars(r)["currency"])}
	entries, err := s.app.Entries(acct)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, EntriesResponse{Account: acct.String(), Entries: nonNil(entries)})
}

func (s *Server) handleGetOwnerEntries(w http.ResponseWriter, r *http.Request) {
	owner, err := pathOwner(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	entries, err := s.app.OwnerEntries(owner)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, EntriesResponse{Account: owner.Hex(), Entries: nonNil(entries)})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.app.Entry(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, e)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.app.Reconcile()
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, AuditResponse{OK: report.OK(), Report: report})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

// decode reads a JSON body into v and validates its struct tags
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return badRequest("%v", err)
	}
	return nil
}

func pathOwner(r *http.Request) (common.Address, error) {
	v := mux.Vars(r)["owner"]
	if !common.IsHexAddress(v) {
		return common.Address{}, badRequest("invalid address %q", v)
	}
	return common.HexToAddress(v), nil
}

func parseFilter(r *http.Request) (orderbook.Filter, error) {
	var f orderbook.Filter
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		st, ok := orderbook.ParseStatus(strings.ToLower(v))
		if !ok {
			return f, badRequest("invalid status %q", v)
		}
		f.Status = st
	}
	if v := q.Get("side"); v != "" {
		side, err := orderbook.ParseSide(v)
		if err != nil {
			return f, badRequest("%v", err)
		}
		f.Side = side
	}
	if v := q.Get("pair"); v != "" {
		pair, err := market.ParsePair(v)
		if err != nil {
			return f, badRequest("%v", err)
		}
		f.Pair = pair.Symbol()
	}
	return f, nil
}

func parseDecimal(name, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, badRequest("invalid %s %q", name, v)
	}
	return d, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// statusFor maps a rejection reason to its HTTP status
func statusFor(reason settlement.Reason) int {
	switch reason {
	case settlement.ReasonValidation:
		return http.StatusBadRequest
	case settlement.ReasonInsufficientFunds:
		return http.StatusUnprocessableEntity
	case settlement.ReasonNotOpen:
		return http.StatusConflict
	case settlement.ReasonNotOwner:
		return http.StatusForbidden
	case settlement.ReasonNotFound:
		return http.StatusNotFound
	case settlement.ReasonConcurrentConflict:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if rej, ok := settlement.AsRejection(err); ok {
		respondError(w, statusFor(rej.Reason), string(rej.Reason), rej.Err.Error())
		return
	}
	if errors.Is(err, errUnauthorized) {
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}
	s.log.Errorw("request_failed", "err", err)
	respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
