package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pyhostd/pyhostd/internal/protocol"
	"github.com/pyhostd/pyhostd/internal/store"
)

func (s *Server) handleScriptsList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List()
	if err != nil {
		writeErrorKind(w, protocol.KindInternalError, "failed to list scripts")
		return
	}
	jsonResponse(w, http.StatusOK, StandardResponse{Success: true, Data: entries})
}

func (s *Server) handleScriptsFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.store.Folders()
	if err != nil {
		writeErrorKind(w, protocol.KindInternalError, "failed to list folders")
		return
	}
	jsonResponse(w, http.StatusOK, StandardResponse{Success: true, Data: folders})
}

func (s *Server) handleScriptsSave(w http.ResponseWriter, r *http.Request) {
	var body SaveScriptRequest
	if err := decodeJSON(r, &body); err != nil {
		writeErrorKind(w, protocol.KindInvalidInput, "malformed request body")
		return
	}
	if !s.checkCodeSize(w, body.Code) {
		return
	}

	identity := identityFromContext(r.Context())
	meta := store.Metadata{Author: body.Author, Description: body.Description}
	rec, err := s.store.Save(body.Name, body.Folder, body.Code, meta)
	if err != nil {
		writeScriptStoreError(w, err)
		return
	}

	s.auditLog.Begin(identity.UserID, "script_save:"+body.Name, "", clientIP(r))
	jsonResponse(w, http.StatusOK, StandardResponse{Success: true, Data: rec})
}

func (s *Server) handleScriptsLoad(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, legacyWarning, err := s.store.Load(name)
	if err != nil {
		writeScriptStoreError(w, err)
		return
	}

	resp := StandardResponse{Success: true, Data: rec}
	if legacyWarning {
		resp.Message = "script has no signature and was loaded as a legacy record"
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleScriptsDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.store.Delete(name); err != nil {
		writeScriptStoreError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, StandardResponse{Success: true})
}

func (s *Server) handleScriptsRename(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body RenameScriptRequest
	if err := decodeJSON(r, &body); err != nil {
		writeErrorKind(w, protocol.KindInvalidInput, "malformed request body")
		return
	}
	if err := s.store.Rename(name, body.NewName); err != nil {
		writeScriptStoreError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, StandardResponse{Success: true})
}

func (s *Server) handleScriptsMove(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body MoveScriptRequest
	if err := decodeJSON(r, &body); err != nil {
		writeErrorKind(w, protocol.KindInvalidInput, "malformed request body")
		return
	}
	if err := s.store.Move(name, body.Folder); err != nil {
		writeScriptStoreError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, StandardResponse{Success: true})
}

// handleScriptsCall loads a saved script and runs it as CallScript, the
// resolved call_script convention from SPEC_FULL (spec §9 open question).
func (s *Server) handleScriptsCall(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var body CallScriptRequest
	if err := decodeJSON(r, &body); err != nil {
		writeErrorKind(w, protocol.KindInvalidInput, "malformed request body")
		return
	}

	rec, _, err := s.store.Load(name)
	if err != nil {
		writeScriptStoreError(w, err)
		return
	}

	identity := identityFromContext(r.Context())
	auditID := s.auditLog.Begin(identity.UserID, "call_script:"+name, "", clientIP(r))

	req := protocol.Request{
		ID: uuid.NewString(), Command: protocol.CmdCallScript,
		Code: rec.Code, Path: name, Args: body.Args, Kwargs: body.Kwargs,
	}
	resp, dispatchErr := s.dispatch(r.Context(), identity, name, req)

	s.auditLog.End(auditID, identity.UserID, "call_script", outcomeFor(resp, dispatchErr), "", clientIP(r))
	s.writeDispatchResult(w, resp, dispatchErr)
}

func writeScriptStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonResponse(w, http.StatusNotFound, StandardResponse{Success: false, Error: "script not found"})
	case errors.Is(err, store.ErrInvalidName):
		writeErrorKind(w, protocol.KindInvalidInput, "invalid script name or folder")
	case errors.Is(err, store.ErrAlreadyExists):
		jsonResponse(w, http.StatusConflict, StandardResponse{Success: false, Error: "a script with that name already exists"})
	case errors.Is(err, store.ErrSignatureInvalid):
		writeErrorKind(w, protocol.KindSignatureInvalid, "stored script failed signature verification")
	default:
		writeErrorKind(w, protocol.KindInternalError, "script store error")
	}
}
