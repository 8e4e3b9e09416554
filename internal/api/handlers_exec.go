package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/pyhostd/pyhostd/internal/audit"
	"github.com/pyhostd/pyhostd/internal/executor"
	"github.com/pyhostd/pyhostd/internal/pool"
	"github.com/pyhostd/pyhostd/internal/protocol"
)

// checkCodeSize enforces the 1 MiB request-code cap (spec §4.6, §8 boundary).
func (s *Server) checkCodeSize(w http.ResponseWriter, code string) bool {
	limit := s.limits.CodeBytes
	if limit <= 0 {
		limit = 1024 * 1024
	}
	if len(code) > limit {
		writeErrorKind(w, protocol.KindInvalidInput, "code exceeds the maximum permitted size")
		return false
	}
	return true
}

// writeDispatchResult renders either a pool/executor-level error or a
// Bridge-level protocol.Response, per the error mapping in spec §4.6.
func (s *Server) writeDispatchResult(w http.ResponseWriter, resp protocol.Response, err error) {
	if err != nil {
		switch {
		case errors.Is(err, pool.ErrPoolExhausted):
			writeErrorKind(w, protocol.KindPoolExhausted, "no executor became available within the borrow deadline")
		case errors.Is(err, executor.ErrTimeout):
			writeErrorKind(w, protocol.KindTimeout, "worker did not respond within the wall-clock deadline")
		case errors.Is(err, executor.ErrWorkerUnavailable), errors.Is(err, pool.ErrPoolClosed):
			writeErrorKind(w, protocol.KindWorkerUnavailable, "worker unavailable")
		default:
			writeErrorKind(w, protocol.KindInternalError, "internal error")
		}
		return
	}

	if !resp.Success {
		kind := protocol.KindInternalError
		msg := "execution failed"
		if resp.Error != nil {
			kind = resp.Error.Kind
			msg = resp.Error.Message
		}
		writeErrorKind(w, kind, msg)
		return
	}

	jsonResponse(w, http.StatusOK, StandardResponse{
		Success: true,
		Data:    ExecResult{Result: resp.Result, Stdout: resp.Stdout},
	})
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	var body ExecRequest
	if err := decodeJSON(r, &body); err != nil {
		writeErrorKind(w, protocol.KindInvalidInput, "malformed request body")
		return
	}
	if !s.checkCodeSize(w, body.Code) {
		return
	}

	identity := identityFromContext(r.Context())
	codeHash := audit.HashCode(body.Code)
	auditID := s.auditLog.Begin(identity.UserID, "exec", codeHash, clientIP(r))

	req := protocol.Request{ID: uuid.NewString(), Command: protocol.CmdExecute, Code: body.Code, Vars: body.Variables}
	resp, err := s.dispatch(r.Context(), identity, "", req)

	s.auditLog.End(auditID, identity.UserID, "exec", outcomeFor(resp, err), "", clientIP(r))
	s.writeDispatchResult(w, resp, err)
}

func (s *Server) handleEval(w http.ResponseWriter, r *http.Request) {
	var body EvalRequest
	if err := decodeJSON(r, &body); err != nil {
		writeErrorKind(w, protocol.KindInvalidInput, "malformed request body")
		return
	}
	if !s.checkCodeSize(w, body.Expression) {
		return
	}

	identity := identityFromContext(r.Context())
	codeHash := audit.HashCode(body.Expression)
	auditID := s.auditLog.Begin(identity.UserID, "eval", codeHash, clientIP(r))

	req := protocol.Request{ID: uuid.NewString(), Command: protocol.CmdEvaluate, Expr: body.Expression, Vars: body.Variables}
	resp, err := s.dispatch(r.Context(), identity, "", req)

	s.auditLog.End(auditID, identity.UserID, "eval", outcomeFor(resp, err), "", clientIP(r))
	s.writeDispatchResult(w, resp, err)
}

func (s *Server) handleCallModule(w http.ResponseWriter, r *http.Request) {
	var body CallModuleRequest
	if err := decodeJSON(r, &body); err != nil {
		writeErrorKind(w, protocol.KindInvalidInput, "malformed request body")
		return
	}
	if body.Module == "" || body.Function == "" {
		writeErrorKind(w, protocol.KindInvalidInput, "module and function are required")
		return
	}

	identity := identityFromContext(r.Context())
	auditID := s.auditLog.Begin(identity.UserID, "call_module:"+body.Module+"."+body.Function, "", clientIP(r))

	req := protocol.Request{ID: uuid.NewString(), Command: protocol.CmdCallModule, Module: body.Module, Function: body.Function, Args: body.Args}
	resp, err := s.dispatch(r.Context(), identity, "", req)

	s.auditLog.End(auditID, identity.UserID, "call_module", outcomeFor(resp, err), "", clientIP(r))
	s.writeDispatchResult(w, resp, err)
}

func (s *Server) handleCheckSyntax(w http.ResponseWriter, r *http.Request) {
	var body CheckSyntaxRequest
	if err := decodeJSON(r, &body); err != nil {
		writeErrorKind(w, protocol.KindInvalidInput, "malformed request body")
		return
	}
	if !s.checkCodeSize(w, body.Code) {
		return
	}

	identity := identityFromContext(r.Context())
	req := protocol.Request{ID: uuid.NewString(), Command: protocol.CmdCheckSyntax, Code: body.Code}
	resp, err := s.dispatch(r.Context(), identity, "", req)
	s.writeDispatchResult(w, resp, err)
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	var body CompletionsRequest
	if err := decodeJSON(r, &body); err != nil {
		writeErrorKind(w, protocol.KindInvalidInput, "malformed request body")
		return
	}

	identity := identityFromContext(r.Context())
	req := protocol.Request{ID: uuid.NewString(), Command: protocol.CmdCompletions, Code: body.Code, Line: body.Line, Column: body.Column}
	resp, err := s.dispatch(r.Context(), identity, "", req)
	s.writeDispatchResult(w, resp, err)
}

func outcomeFor(resp protocol.Response, err error) audit.Outcome {
	if err != nil {
		return audit.OutcomeError
	}
	if !resp.Success {
		return audit.OutcomeError
	}
	return audit.OutcomeSuccess
}
