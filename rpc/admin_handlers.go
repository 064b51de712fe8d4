package rpc

import (
	"liquidstake/core/events"
	"liquidstake/native/pool"
	"liquidstake/observability"
)

type thresholdParams struct {
	MinDeposit string `json:"minDeposit"`
	MaxDeposit string `json:"maxDeposit"`
}

type lowerBoundParams struct {
	LowerBound string `json:"lowerBound"`
}

type feeSplitParams struct {
	TreasuryBps uint64 `json:"treasuryBps"`
	OperatorBps uint64 `json:"operatorBps"`
}

type setEpochParams struct {
	Epoch uint64 `json:"epoch"`
}

type setEpochDelayParams struct {
	Delay uint64 `json:"delay"`
}

type overrideMaturityParams struct {
	TicketID      uint64 `json:"ticketId"`
	MaturityEpoch uint64 `json:"maturityEpoch"`
	Legs          []int  `json:"legs,omitempty"`
}

func (s *Server) handleSetDepositThresholds(req *RPCRequest) (interface{}, *RPCError) {
	var params thresholdParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	min, rpcErr := parseAmount(params.MinDeposit)
	if rpcErr != nil {
		return nil, rpcErr
	}
	max, rpcErr := parseAmount(params.MaxDeposit)
	if rpcErr != nil {
		return nil, rpcErr
	}
	s.engine.SetDepositThresholds(min, max)
	return true, nil
}

func (s *Server) handleSetDelegationLowerBound(req *RPCRequest) (interface{}, *RPCError) {
	var params lowerBoundParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	bound, rpcErr := parseAmount(params.LowerBound)
	if rpcErr != nil {
		return nil, rpcErr
	}
	s.engine.SetDelegationLowerBound(bound)
	return true, nil
}

func (s *Server) handleSetFeeSplit(req *RPCRequest) (interface{}, *RPCError) {
	var params feeSplitParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if params.TreasuryBps+params.OperatorBps > 10_000 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "fee split exceeds 10000 basis points"}
	}
	s.engine.SetFeeSplit(pool.FeeSplit{TreasuryBps: params.TreasuryBps, OperatorBps: params.OperatorBps})
	return true, nil
}

// handleSetEpoch is the epoch oracle's publish path: it advances the clock
// and persists the cursor so the daemon resumes at the same epoch.
func (s *Server) handleSetEpoch(req *RPCRequest) (interface{}, *RPCError) {
	var params setEpochParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	// SetEpoch returns the epoch the clock held before the update; the cursor,
	// gauge, event, and response all carry the newly published value.
	previous, err := s.clock.SetEpoch(params.Epoch)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	if s.store != nil {
		if err := s.store.PutEpochCursor(params.Epoch); err != nil {
			return nil, &RPCError{Code: codeServerError, Message: err.Error()}
		}
	}
	observability.Pool().SetEpoch(params.Epoch)
	if params.Epoch != previous {
		s.emitter.Emit(events.EpochAdvanced{Previous: previous, Current: params.Epoch})
	}
	return map[string]uint64{"epoch": params.Epoch}, nil
}

func (s *Server) handleSetEpochDelay(req *RPCRequest) (interface{}, *RPCError) {
	var params setEpochDelayParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	s.clock.SetDelay(params.Delay)
	return true, nil
}

func (s *Server) handleOverrideTicketMaturity(req *RPCRequest) (interface{}, *RPCError) {
	var params overrideMaturityParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.OverrideTicketMaturity(params.TicketID, params.MaturityEpoch, params.Legs...); err != nil {
		return nil, engineError(err)
	}
	return true, nil
}
