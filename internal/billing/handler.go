// AngelaMos | 2026
// handler.go

package billing

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/middleware"
	"github.com/carterperez-dev/templates/saas-backend/internal/organization"
)

const maxWebhookBytes = 65536

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
	r.Route("/billing", func(r chi.Router) {
		r.Get("/plans", h.Plans)
		r.Post("/webhook", h.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)

			r.Post("/checkout", h.Checkout)
			r.Post("/portal", h.Portal)
			r.Get("/subscription", h.Subscription)
		})
	})
}

func (h *Handler) Plans(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, PlansResponse{Plans: Plans()})
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.Checkout(r.Context(), middleware.GetUserID(r.Context()), req.LookupKey)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) Portal(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Portal(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) Subscription(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Subscription(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, resp)
}

// Webhook always answers 200 once the signature checks out so Stripe does
// not retry events this service chose to ignore.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		core.BadRequest(w, "webhook body too large")
		return
	}

	err = h.service.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if errors.Is(err, ErrInvalidSignature) {
		slog.WarnContext(r.Context(), "stripe webhook rejected", "error", err)
		core.BadRequest(w, "invalid signature")
		return
	}
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPlanNotFound):
		core.BadRequest(w, "unknown plan")
	case errors.Is(err, ErrBillingDisabled):
		core.ServiceUnavailable(w, ErrBillingDisabled.Error())
	case errors.Is(err, ErrNoCustomer):
		core.NotFound(w, "billing account")
	case errors.Is(err, core.ErrForbidden):
		core.Forbidden(w, "only owners and admins can manage billing")
	case errors.Is(err, organization.ErrNoOrganization):
		core.NotFound(w, "organization")
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "subscription")
	default:
		core.InternalServerError(w, err)
	}
}
