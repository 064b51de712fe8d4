package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"liquidstake/native/pool"
	"liquidstake/observability"
)

type depositParams struct {
	Depositor string `json:"depositor"`
	Amount    string `json:"amount"`
}

type withdrawParams struct {
	Caller        string `json:"caller"`
	ReceiptAmount string `json:"receiptAmount"`
}

type claimParams struct {
	Caller   string `json:"caller"`
	TicketID uint64 `json:"ticketId"`
}

type claimMultipleParams struct {
	Caller    string   `json:"caller"`
	TicketIDs []uint64 `json:"ticketIds"`
}

type amountParams struct {
	Amount string `json:"amount"`
}

type epochParams struct {
	Epoch uint64 `json:"epoch"`
}

type ownerParams struct {
	Owner string `json:"owner"`
}

type ticketParams struct {
	TicketID uint64 `json:"ticketId"`
}

type depositResult struct {
	Minted string `json:"minted"`
}

type delegateResult struct {
	Delegated string `json:"delegated"`
}

type withdrawResult struct {
	TicketID uint64 `json:"ticketId"`
}

type claimResult struct {
	Paid string `json:"paid"`
}

type snapshotResult struct {
	TotalBuffered  string `json:"totalBuffered"`
	ReservedFunds  string `json:"reservedFunds"`
	TotalDelegated string `json:"totalDelegated"`
	PooledValue    string `json:"pooledValue"`
	ReceiptSupply  string `json:"receiptSupply"`
	CurrentEpoch   uint64 `json:"currentEpoch"`
	EpochDelay     uint64 `json:"epochDelay"`
}

type legResult struct {
	Kind          string `json:"kind"`
	Backend       string `json:"backend,omitempty"`
	UnbondNonce   uint64 `json:"unbondNonce,omitempty"`
	Amount        string `json:"amount"`
	MaturityEpoch uint64 `json:"maturityEpoch"`
}

type ticketResult struct {
	TicketID      uint64      `json:"ticketId"`
	Owner         string      `json:"owner"`
	RequestEpoch  uint64      `json:"requestEpoch"`
	ReceiptBurned string      `json:"receiptBurned"`
	Legs          []legResult `json:"legs"`
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) == 0 {
		return &RPCError{Code: codeInvalidParams, Message: "params object required"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid params", Data: err.Error()}
	}
	return nil
}

func parseAmount(value string) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, &RPCError{Code: codeInvalidParams, Message: "amount required"}
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid decimal amount %q", value)}
	}
	return amount, nil
}

func parseAddress(value string) (common.Address, *RPCError) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid address %q", value)}
	}
	return common.HexToAddress(trimmed), nil
}

func engineError(err error) *RPCError {
	code := codeServerError
	for _, invalid := range []error{
		pool.ErrInvalidAmount,
		pool.ErrBelowMinimumDeposit,
		pool.ErrAboveMaximumDeposit,
		pool.ErrZeroMint,
		pool.ErrZeroWithdraw,
		pool.ErrInsufficientReceipt,
	} {
		if errors.Is(err, invalid) {
			code = codeInvalidParams
			break
		}
	}
	return &RPCError{Code: code, Message: err.Error()}
}

func (s *Server) publishGauges() {
	snap, err := s.engine.PoolSnapshot()
	if err != nil {
		return
	}
	observability.Pool().SetPoolGauges(snap.PooledValue, snap.TotalBuffered, snap.ReservedFunds)
}

func (s *Server) handleDeposit(req *RPCRequest) (interface{}, *RPCError) {
	var params depositParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	depositor, rpcErr := parseAddress(params.Depositor)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	minted, err := s.engine.Deposit(depositor, amount)
	observability.Pool().RecordDeposit(err == nil)
	if err != nil {
		return nil, engineError(err)
	}
	s.publishGauges()
	return depositResult{Minted: minted.String()}, nil
}

func (s *Server) handleDelegate(req *RPCRequest) (interface{}, *RPCError) {
	delegated, err := s.engine.Delegate()
	if err != nil {
		return nil, engineError(err)
	}
	observability.Pool().RecordDelegation()
	s.publishGauges()
	return delegateResult{Delegated: delegated.String()}, nil
}

func (s *Server) handleRequestWithdraw(req *RPCRequest) (interface{}, *RPCError) {
	var params withdrawParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receiptAmount, rpcErr := parseAmount(params.ReceiptAmount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	ticketID, err := s.engine.RequestWithdraw(caller, receiptAmount)
	if err != nil {
		return nil, engineError(err)
	}
	observability.Pool().RecordWithdrawalRequest()
	s.publishGauges()
	return withdrawResult{TicketID: ticketID}, nil
}

func (s *Server) handleClaim(req *RPCRequest) (interface{}, *RPCError) {
	var params claimParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	paid, err := s.engine.Claim(caller, params.TicketID)
	observability.Pool().RecordClaim(err == nil)
	if err != nil {
		return nil, engineError(err)
	}
	s.publishGauges()
	return claimResult{Paid: paid.String()}, nil
}

func (s *Server) handleClaimMultiple(req *RPCRequest) (interface{}, *RPCError) {
	var params claimMultipleParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if len(params.TicketIDs) == 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "ticketIds required"}
	}
	paid, err := s.engine.ClaimMultiple(caller, params.TicketIDs)
	observability.Pool().RecordClaim(err == nil)
	if err != nil {
		// Earlier tickets in the batch may have settled; surface the paid
		// total so the caller can reconcile.
		rpcErr := engineError(err)
		rpcErr.Data = claimResult{Paid: paid.String()}
		return nil, rpcErr
	}
	s.publishGauges()
	return claimResult{Paid: paid.String()}, nil
}

func (s *Server) handleReceiveExternalValue(req *RPCRequest) (interface{}, *RPCError) {
	var params amountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.ReceiveExternalValue(amount); err != nil {
		return nil, engineError(err)
	}
	s.publishGauges()
	return true, nil
}

func (s *Server) handlePreviewDeposit(req *RPCRequest) (interface{}, *RPCError) {
	var params amountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	minted, err := s.engine.PreviewDeposit(amount)
	if err != nil {
		return nil, engineError(err)
	}
	return depositResult{Minted: minted.String()}, nil
}

func (s *Server) handlePreviewWithdraw(req *RPCRequest) (interface{}, *RPCError) {
	var params amountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	owed, err := s.engine.PreviewWithdraw(amount)
	if err != nil {
		return nil, engineError(err)
	}
	return claimResult{Paid: owed.String()}, nil
}

func (s *Server) handleSnapshot(req *RPCRequest) (interface{}, *RPCError) {
	snap, err := s.engine.PoolSnapshot()
	if err != nil {
		return nil, engineError(err)
	}
	return snapshotResult{
		TotalBuffered:  snap.TotalBuffered.String(),
		ReservedFunds:  snap.ReservedFunds.String(),
		TotalDelegated: snap.TotalDelegated.String(),
		PooledValue:    snap.PooledValue.String(),
		ReceiptSupply:  snap.ReceiptSupply.String(),
		CurrentEpoch:   snap.CurrentEpoch,
		EpochDelay:     snap.EpochDelay,
	}, nil
}

func (s *Server) handleTicketsByEpoch(req *RPCRequest) (interface{}, *RPCError) {
	var params epochParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	ids, err := s.engine.TicketsMaturingAt(params.Epoch)
	if err != nil {
		return nil, engineError(err)
	}
	return ids, nil
}

func (s *Server) handleTicketsByOwner(req *RPCRequest) (interface{}, *RPCError) {
	var params ownerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddress(params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	ids, err := s.engine.TicketsOwnedBy(owner)
	if err != nil {
		return nil, engineError(err)
	}
	return ids, nil
}

func (s *Server) handleTicket(req *RPCRequest) (interface{}, *RPCError) {
	var params ticketParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	view, err := s.engine.TicketDetail(params.TicketID)
	if err != nil {
		return nil, engineError(err)
	}
	legs := make([]legResult, 0, len(view.Legs))
	for _, leg := range view.Legs {
		out := legResult{
			Amount:        leg.Amount.String(),
			MaturityEpoch: leg.MaturityEpoch,
		}
		if leg.Kind == pool.LegBackend {
			out.Kind = "backend"
			out.Backend = leg.Backend.Hex()
			out.UnbondNonce = leg.UnbondNonce
		} else {
			out.Kind = "reserved"
		}
		legs = append(legs, out)
	}
	return ticketResult{
		TicketID:      view.ID,
		Owner:         view.Owner.Hex(),
		RequestEpoch:  view.RequestEpoch,
		ReceiptBurned: view.ReceiptBurned.String(),
		Legs:          legs,
	}, nil
}

func (s *Server) handleCurrentEpoch(req *RPCRequest) (interface{}, *RPCError) {
	return map[string]uint64{
		"epoch": s.clock.CurrentEpoch(),
		"delay": s.clock.EpochDelay(),
	}, nil
}
