package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/roach88/lotbridge/internal/engine"
	"github.com/roach88/lotbridge/internal/ir"
	"github.com/roach88/lotbridge/internal/ledger"
	"github.com/roach88/lotbridge/internal/node"
	"github.com/roach88/lotbridge/internal/store"
)

// TxRequest is the body of POST /v1/tx.
type TxRequest struct {
	RequestID string       `json:"request_id,omitempty"`
	From      string       `json:"from"`
	Method    ir.MethodRef `json:"method"`
	Args      ir.IRObject  `json:"args"`
}

// TokenView describes one ledger.
type TokenView struct {
	Contract    string `json:"contract"`
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"total_supply"`
}

// AmountView is a balance or allowance in base units and in display form.
type AmountView struct {
	Token   string `json:"token"`
	Amount  string `json:"amount"`
	Display string `json:"display"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req TxRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", fmt.Sprintf("decode request: %v", err))
		return
	}
	if !common.IsHexAddress(req.From) {
		writeError(w, http.StatusBadRequest, "", fmt.Sprintf("from: invalid address %q", req.From))
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, "", "method is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	entry, err := s.engine.Submit(ctx, engine.Call{
		RequestID: req.RequestID,
		From:      req.From,
		Method:    req.Method,
		Args:      req.Args,
	})
	switch {
	case err == nil:
		// A revert is a valid outcome; the receipt carries it.
		writeJSON(w, http.StatusOK, entry)
	case engine.IsStopped(err):
		writeError(w, http.StatusServiceUnavailable, string(engine.ErrCodeStopped), err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "", err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusRequestTimeout, "", err.Error())
	default:
		var re *engine.RuntimeError
		if errors.As(err, &re) {
			writeError(w, http.StatusInternalServerError, string(re.Code), err.Error())
			return
		}
		// Args that are not canonical IR.
		writeError(w, http.StatusBadRequest, "", err.Error())
	}
}

func tokenView(contract string, t node.Token) TokenView {
	meta := t.Metadata()
	return TokenView{
		Contract:    contract,
		Address:     t.Address().Hex(),
		Name:        meta.Name,
		Symbol:      meta.Symbol,
		Decimals:    meta.Decimals,
		TotalSupply: t.TotalSupply().Dec(),
	}
}

func (s *Server) listTokens(w http.ResponseWriter, r *http.Request) {
	n := s.engine.Node()
	var views []TokenView
	n.View(func() {
		for _, c := range []string{node.ContractLegacy, node.ContractBridge, node.ContractLot} {
			t, _ := n.Token(c)
			views = append(views, tokenView(c, t))
		}
	})
	writeJSON(w, http.StatusOK, views)
}

// lookupToken resolves the {token} parameter or writes a 404.
func (s *Server) lookupToken(w http.ResponseWriter, r *http.Request) (node.Token, bool) {
	name := chi.URLParam(r, "token")
	t, ok := s.engine.Node().Token(name)
	if !ok {
		writeError(w, http.StatusNotFound, "", fmt.Sprintf("unknown token %q", name))
	}
	return t, ok
}

// addressParam parses a path parameter as an address or writes a 400.
func addressParam(w http.ResponseWriter, r *http.Request, key string) (common.Address, bool) {
	raw := chi.URLParam(r, key)
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "", fmt.Sprintf("%s: invalid address %q", key, raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) getToken(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookupToken(w, r)
	if !ok {
		return
	}
	var view TokenView
	s.engine.Node().View(func() {
		view = tokenView(chi.URLParam(r, "token"), t)
	})
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookupToken(w, r)
	if !ok {
		return
	}
	account, ok := addressParam(w, r, "account")
	if !ok {
		return
	}

	var view AmountView
	s.engine.Node().View(func() {
		v := t.BalanceOf(account)
		view = AmountView{Token: t.Metadata().Symbol, Amount: v.Dec(), Display: ledger.FormatUnits(v, t.Metadata().Decimals)}
	})
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getAllowance(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookupToken(w, r)
	if !ok {
		return
	}
	owner, ok := addressParam(w, r, "owner")
	if !ok {
		return
	}
	spender, ok := addressParam(w, r, "spender")
	if !ok {
		return
	}

	var view AmountView
	s.engine.Node().View(func() {
		v := t.Allowance(owner, spender)
		view = AmountView{Token: t.Metadata().Symbol, Amount: v.Dec(), Display: ledger.FormatUnits(v, t.Metadata().Decimals)}
	})
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.engine.Store().ReadEntry(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "", fmt.Sprintf("transaction %s not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.LogFilter{
		Sender: q.Get("from"),
		Method: ir.MethodRef(q.Get("method")),
	}
	var err error
	if v := q.Get("from_seq"); v != "" {
		if f.FromSeq, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "", fmt.Sprintf("from_seq: %v", err))
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			writeError(w, http.StatusBadRequest, "", fmt.Sprintf("limit: invalid value %q", v))
			return
		}
	}

	entries, err := s.engine.Store().ReadLog(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := s.engine.Store().ReadEvents(r.Context(), store.EventFilter{
		Emitter: q.Get("emitter"),
		Name:    q.Get("name"),
		TxID:    q.Get("tx"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	if events == nil {
		events = []store.StoredEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) getInvariants(w http.ResponseWriter, r *http.Request) {
	report := s.engine.Node().Invariants()
	body := report.Value()
	body["ok"] = ir.IRBool(report.OK())

	status := http.StatusOK
	if !report.OK() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, body)
}
