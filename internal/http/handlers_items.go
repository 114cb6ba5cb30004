package http

import (
	"net/http"

	"budgetlist/internal/api"
	"budgetlist/internal/auth"
)

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req api.AddItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Name = sanitizeInput(req.Name)
	in, err := req.NewItem()
	if err != nil {
		writeError(w, r, err)
		return
	}

	listID, _ := pathIDs(r)
	item, err := s.lists.AddItem(r.Context(), auth.UserID(r.Context()), listID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.NewItemView(*item))
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateItemRequest
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

	listID, itemID := pathIDs(r)
	item, err := s.lists.UpdateItem(r.Context(), auth.UserID(r.Context()), listID, itemID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NewItemView(*item))
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	listID, itemID := pathIDs(r)
	if err := s.lists.DeleteItem(r.Context(), auth.UserID(r.Context()), listID, itemID); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}
