package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/field-survey/internal/auth"
	"github.com/sakif/field-survey/internal/model"
	"github.com/sakif/field-survey/internal/service"
)

// FormHandler serves the forms table under /rest/v1/forms. Every route
// requires auth; the owner is always the token subject, never a parameter.
type FormHandler struct {
	svc    *service.FormService
	logger *slog.Logger
}

func NewFormHandler(svc *service.FormService, logger *slog.Logger) *FormHandler {
	return &FormHandler{svc: svc, logger: logger}
}

// HandleList returns the caller's forms, newest first.
//
// HTTP: GET /rest/v1/forms
func (h *FormHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.UserIDFromContext(r.Context())
	forms, err := h.svc.List(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forms)
}

// HandleGet returns one form.
//
// HTTP: GET /rest/v1/forms/{id}
func (h *FormHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.UserIDFromContext(r.Context())
	form, err := h.svc.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// HandleCreate inserts a form for the caller.
//
// HTTP: POST /rest/v1/forms
// BODY: {"retailer_name": "...", "bdo_code": "...", "franchise_id": "...",
// "address": "...", "coordinates": "lat,lon", "image_1": "...", "image_2": "..."}
func (h *FormHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in model.FormInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	owner, _ := auth.UserIDFromContext(r.Context())
	form, err := h.svc.Create(r.Context(), owner, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, form)
}

// HandleDelete removes a form.
//
// HTTP: DELETE /rest/v1/forms/{id}
func (h *FormHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.UserIDFromContext(r.Context())
	if err := h.svc.Delete(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
