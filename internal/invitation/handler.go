// AngelaMos | 2026
// handler.go

package invitation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/middleware"
	"github.com/carterperez-dev/templates/saas-backend/internal/organization"
)

type Handler struct {
	service     *Service
	validator   *validator.Validate
	sendLimiter func(http.Handler) http.Handler
}

// NewHandler builds the invitation routes. sendLimiter runs after
// authentication on the send route only; nil disables it.
func NewHandler(
	service *Service,
	sendLimiter func(http.Handler) http.Handler,
) *Handler {
	if sendLimiter == nil {
		sendLimiter = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		service:     service,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
		sendLimiter: sendLimiter,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Group(func(r chi.Router) {
		r.Use(authenticator)

		r.With(h.sendLimiter).Post("/organization/invitations", h.Send)
		r.Get("/organization/invitations", h.ListSent)
		r.Delete("/organization/invitations/{invitationID}", h.Cancel)

		r.Get("/invitations", h.ListReceived)
		r.Post("/invitations/{invitationID}/accept", h.Accept)
		r.Post("/invitations/{invitationID}/reject", h.Reject)
	})
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	result, err := h.service.Send(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}

	core.Created(w, result)
}

func (h *Handler) ListSent(w http.ResponseWriter, r *http.Request) {
	invs, err := h.service.ListSent(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, InvitationsResponse{Invitations: toDetailResponses(invs)})
}

func (h *Handler) ListReceived(w http.ResponseWriter, r *http.Request) {
	invs, err := h.service.ListReceived(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, InvitationsResponse{Invitations: toDetailResponses(invs)})
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invitationID(w, r)
	if !ok {
		return
	}

	inv, err := h.service.Accept(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, toResponse(*inv))
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invitationID(w, r)
	if !ok {
		return
	}

	inv, err := h.service.Reject(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, toResponse(*inv))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invitationID(w, r)
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}

	core.NoContent(w)
}

// invitationID rejects ids that are not UUIDs before they reach a uuid
// column comparison.
func (h *Handler) invitationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "invitationID")
	if err := h.validator.Var(id, "required,uuid"); err != nil {
		core.BadRequest(w, "invalid invitation id")
		return "", false
	}
	return strings.ToLower(id), true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, ErrNoRecipients):
		core.BadRequest(w, unwrapMessage(err))
	case errors.Is(err, ErrCannotInviteOwner):
		core.BadRequest(w, ErrCannotInviteOwner.Error())
	case errors.Is(err, ErrEmailMismatch):
		core.Forbidden(w, ErrEmailMismatch.Error())
	case errors.Is(err, core.ErrForbidden):
		core.Forbidden(w, "only owners and admins can manage invitations")
	case errors.Is(err, organization.ErrNoOrganization):
		core.NotFound(w, "organization")
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "invitation")
	case errors.Is(err, ErrNotPending):
		core.Conflict(w, ErrNotPending.Error())
	case errors.Is(err, core.ErrConflict):
		core.Conflict(w, "invitation already being sent, retry")
	default:
		core.InternalServerError(w, err)
	}
}

// unwrapMessage strips the trailing sentinel so the client sees which
// addresses were rejected.
func unwrapMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i > 0 {
		return msg[:i]
	}
	return msg
}
