// AngelaMos | 2026
// handler.go

package organization

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Group(func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/organizations", h.List)
		r.Post("/organizations/active", h.Switch)
		r.Get("/organizations/{organizationID}", h.Detail)

		r.Get("/organization", h.GetActive)
		r.Get("/organization/members", h.ListMembers)
		r.Delete("/organization/members/{memberID}", h.RemoveMember)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.service.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, orgs)
}

func (h *Handler) Switch(w http.ResponseWriter, r *http.Request) {
	var req SwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	active, err := h.service.Switch(
		r.Context(),
		middleware.GetUserID(r.Context()),
		req.OrganizationID,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, activeResponse(active, true))
}

func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	org, err := h.service.Detail(
		r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "organizationID"),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, activeResponse(org, false))
}

func (h *Handler) GetActive(w http.ResponseWriter, r *http.Request) {
	active, err := h.service.Active(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, activeResponse(active, true))
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	_, members, err := h.service.Members(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}

	core.OK(w, MembersResponse{Members: out, Count: len(out)})
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	err := h.service.RemoveMember(
		r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "memberID"),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	core.NoContent(w)
}

func activeResponse(a *ActiveOrganization, active bool) OrganizationResponse {
	count := a.MemberCount
	return OrganizationResponse{
		ID:          a.ID,
		Name:        a.Name,
		Slug:        a.Slug,
		Role:        a.Role,
		Active:      active,
		MemberCount: &count,
		CreatedAt:   a.CreatedAt,
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotMember), errors.Is(err, core.ErrForbidden):
		core.Forbidden(w, "not allowed in this organization")
	case errors.Is(err, ErrNoOrganization), errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "organization member")
	case errors.Is(err, ErrLastOwner):
		core.Conflict(w, ErrLastOwner.Error())
	default:
		core.InternalServerError(w, err)
	}
}
