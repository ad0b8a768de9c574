// AngelaMos | 2026
// handler.go

package fixture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/templates/saas-backend/internal/billing"
	"github.com/carterperez-dev/templates/saas-backend/internal/core"
	"github.com/carterperez-dev/templates/saas-backend/internal/user"
)

type CustomerPurger interface {
	DeleteCustomersByEmail(ctx context.Context, email string) ([]billing.DeletedCustomer, error)
}

type UserPurger interface {
	Purge(ctx context.Context, email string) (*user.PurgeResult, error)
}

// Response is written bare, without the API success envelope, because
// end-to-end runners read success and message at the top level.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type DeletedResponse struct {
	Response
	Customers []billing.DeletedCustomer `json:"customers"`
}

// Handler serves fixture cleanup for end-to-end runs. It must only be
// mounted when e2e endpoints are enabled.
type Handler struct {
	customers CustomerPurger
	users     UserPurger
}

func NewHandler(customers CustomerPurger, users UserPurger) *Handler {
	return &Handler{customers: customers, users: users}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/e2e/delete/user/{email}", h.DeleteUser)
}

// DeleteUser removes Stripe customers registered under the address first,
// since local records may be stale, and then the local user with the
// organizations and subscriptions only they own. Admin accounts are never
// touched locally.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || email == "" {
		core.JSON(w, http.StatusBadRequest, Response{Message: "invalid email"})
		return
	}

	customers, err := h.customers.DeleteCustomersByEmail(ctx, email)
	if err != nil {
		slog.ErrorContext(ctx, "e2e stripe cleanup failed",
			"email", email,
			"deleted", len(customers),
			"error", err,
		)
		core.JSON(w, http.StatusInternalServerError, Response{
			Message: fmt.Sprintf("Failed to delete Stripe customers for %s.", email),
		})
		return
	}

	result, err := h.users.Purge(ctx, email)
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.JSON(w, http.StatusOK, Response{
			Success: true,
			Message: fmt.Sprintf("User %s already deleted.", email),
		})
		return
	case errors.Is(err, core.ErrForbidden):
		core.JSON(w, http.StatusForbidden, Response{
			Message: fmt.Sprintf("Cannot delete admin user %s.", email),
		})
		return
	case err != nil:
		slog.ErrorContext(ctx, "e2e user cleanup failed", "email", email, "error", err)
		core.JSON(w, http.StatusInternalServerError, Response{
			Message: fmt.Sprintf("Failed to delete user %s.", email),
		})
		return
	}

	slog.InfoContext(ctx, fmt.Sprintf("e2e deleted user %s (deletedCount: %d)", email, result.DeletedCount()),
		"user_id", result.UserID,
		"subscriptions_deleted", result.SubscriptionsDeleted,
		"stripe_customers_deleted", len(customers),
	)

	if customers == nil {
		customers = []billing.DeletedCustomer{}
	}
	core.JSON(w, http.StatusOK, DeletedResponse{
		Response: Response{
			Success: true,
			Message: fmt.Sprintf("Deleted user %s (deletedCount: %d).", email, result.DeletedCount()),
		},
		Customers: customers,
	})
}
