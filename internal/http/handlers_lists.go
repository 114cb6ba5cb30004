package http

import (
	"fmt"
	"net/http"
	"strings"

	"budgetlist/internal/api"
	"budgetlist/internal/auth"
	"budgetlist/internal/core"
	"budgetlist/internal/export"
)

func (s *Server) handleListLists(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.lists.ListLists(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewListViews(snaps))
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req api.CreateListRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Name = sanitizeInput(req.Name)
	in, err := req.NewList()
	if err != nil {
		writeError(w, r, err)
		return
	}

	snap, err := s.lists.CreateList(r.Context(), auth.UserID(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/lists/"+snap.List.ID).
		Body(api.NewListView(*snap)).
		Write(w)
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	listID, _ := pathIDs(r)
	snap, err := s.lists.GetList(r.Context(), auth.UserID(r.Context()), listID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewListView(*snap))
}

func (s *Server) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateListRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Name = sanitizePtr(req.Name)
	patch, err := req.Patch()
	if err != nil {
		writeError(w, r, err)
		return
	}

	listID, _ := pathIDs(r)
	snap, err := s.lists.UpdateList(r.Context(), auth.UserID(r.Context()), listID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewListView(*snap))
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	listID, _ := pathIDs(r)
	if err := s.lists.DeleteList(r.Context(), auth.UserID(r.Context()), listID); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = export.FormatHTML
	}
	contentType := export.ContentType(format)
	if contentType == "" {
		writeError(w, r, fmt.Errorf("%w: unsupported export format %q", core.ErrInvalidInput, format))
		return
	}

	listID, _ := pathIDs(r)
	snap, err := s.lists.GetList(r.Context(), auth.UserID(r.Context()), listID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body []byte
	if format == export.FormatHTML {
		if body, err = export.HTML(snap); err != nil {
			writeError(w, r, err)
			return
		}
	} else {
		body = []byte(export.Markdown(snap))
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="list-%s.%s"`, snap.List.ID, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
