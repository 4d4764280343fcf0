package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/subtrack/internal/subscriptions/application/commands"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/application/queries"
	"github.com/felixgeelhaar/subtrack/internal/subscriptions/domain/subscription"
	"github.com/felixgeelhaar/subtrack/pkg/observability"
	"github.com/google/uuid"
)

// SubscriptionHandler serves the subscription resource.
type SubscriptionHandler struct {
	create   *commands.CreateSubscriptionHandler
	update   *commands.UpdateSubscriptionHandler
	cancel   *commands.CancelSubscriptionHandler
	delete   *commands.DeleteSubscriptionHandler
	get      *queries.GetSubscriptionHandler
	listUser *queries.ListUserSubscriptionsHandler
	listAll  *queries.ListAllSubscriptionsHandler
	renewals *queries.UpcomingRenewalsHandler
	logger   *slog.Logger
}

// SubscriptionHandlerConfig holds dependencies for the subscription handler.
type SubscriptionHandlerConfig struct {
	Create   *commands.CreateSubscriptionHandler
	Update   *commands.UpdateSubscriptionHandler
	Cancel   *commands.CancelSubscriptionHandler
	Delete   *commands.DeleteSubscriptionHandler
	Get      *queries.GetSubscriptionHandler
	ListUser *queries.ListUserSubscriptionsHandler
	ListAll  *queries.ListAllSubscriptionsHandler
	Renewals *queries.UpcomingRenewalsHandler
	Logger   *slog.Logger
}

// NewSubscriptionHandler creates a new subscription handler.
func NewSubscriptionHandler(cfg SubscriptionHandlerConfig) *SubscriptionHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SubscriptionHandler{
		create:   cfg.Create,
		update:   cfg.Update,
		cancel:   cfg.Cancel,
		delete:   cfg.Delete,
		get:      cfg.Get,
		listUser: cfg.ListUser,
		listAll:  cfg.ListAll,
		renewals: cfg.Renewals,
		logger:   cfg.Logger.With("component", "subscription_api"),
	}
}

// subscriptionRequest is the accepted body for create and update. The
// owner is taken from the authenticated caller, so a "user" key is ignored.
type subscriptionRequest struct {
	Name            *string    `json:"name"`
	Plan            *string    `json:"plan"`
	Price           *float64   `json:"price"`
	Currency        *string    `json:"currency"`
	BillingCycle    *string    `json:"billingCycle"`
	Category        *string    `json:"category"`
	PaymentMethod   *string    `json:"paymentMethod"`
	Status          *string    `json:"status"`
	StartDate       *time.Time `json:"startDate"`
	NextBillingDate *time.Time `json:"nextBillingDate"`
}

func (req subscriptionRequest) fields() subscription.Fields {
	return subscription.Fields{
		Name:            deref(req.Name),
		Plan:            deref(req.Plan),
		Price:           deref(req.Price),
		Currency:        deref(req.Currency),
		BillingCycle:    deref(req.BillingCycle),
		Category:        deref(req.Category),
		PaymentMethod:   deref(req.PaymentMethod),
		Status:          deref(req.Status),
		StartDate:       req.StartDate,
		NextBillingDate: req.NextBillingDate,
	}
}

func (req subscriptionRequest) patch() subscription.Patch {
	return subscription.Patch{
		Name:            req.Name,
		Plan:            req.Plan,
		Price:           req.Price,
		Currency:        req.Currency,
		BillingCycle:    req.BillingCycle,
		Category:        req.Category,
		PaymentMethod:   req.PaymentMethod,
		Status:          req.Status,
		StartDate:       req.StartDate,
		NextBillingDate: req.NextBillingDate,
	}
}

type createResponse struct {
	Subscription  queries.SubscriptionDTO `json:"subscription"`
	WorkflowRunID string                  `json:"workflowRunId"`
}

// Create handles POST /api/v1/subscriptions
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	result, err := h.create.Handle(r.Context(), commands.CreateSubscriptionCommand{
		Actor:  actorFrom(r),
		Fields: req.fields(),
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeData(w, http.StatusCreated, createResponse{
		Subscription:  queries.ToDTO(result.Subscription),
		WorkflowRunID: result.WorkflowRunID,
	})
}

// ListAll handles GET /api/v1/subscriptions
func (h *SubscriptionHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	subs, err := h.listAll.Handle(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeList(w, subs)
}

// ListByUser handles GET /api/v1/subscriptions/user/{id}
func (h *SubscriptionHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	subs, err := h.listUser.Handle(r.Context(), queries.ListUserSubscriptionsQuery{
		UserID:       observability.UserIDFromContext(r.Context()),
		TargetUserID: r.PathValue("id"),
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, subs)
}

// Get handles GET /api/v1/subscriptions/{id}
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := subscriptionID(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	dto, err := h.get.Handle(r.Context(), queries.GetSubscriptionQuery{
		SubscriptionID: id,
		UserID:         observability.UserIDFromContext(r.Context()),
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, dto)
}

// Update handles PUT /api/v1/subscriptions/{id}
func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := subscriptionID(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	req, err := decodeRequest(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	s, err := h.update.Handle(r.Context(), commands.UpdateSubscriptionCommand{
		Actor:          actorFrom(r),
		SubscriptionID: id,
		Patch:          req.patch(),
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, queries.ToDTO(s))
}

// Delete handles DELETE /api/v1/subscriptions/{id}
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := subscriptionID(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if err := h.delete.Handle(r.Context(), commands.DeleteSubscriptionCommand{
		Actor:          actorFrom(r),
		SubscriptionID: id,
	}); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Subscription deleted", nil)
}

// Cancel handles PUT /api/v1/subscriptions/{id}/cancel
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := subscriptionID(r)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	s, err := h.cancel.Handle(r.Context(), commands.CancelSubscriptionCommand{
		Actor:          actorFrom(r),
		SubscriptionID: id,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeMessage(w, "Subscription cancelled", queries.ToDTO(s))
}

// UpcomingRenewals handles GET /api/v1/subscriptions/upcoming-renewals
func (h *SubscriptionHandler) UpcomingRenewals(w http.ResponseWriter, r *http.Request) {
	subs, err := h.renewals.Handle(r.Context(), queries.UpcomingRenewalsQuery{
		UserID: observability.UserIDFromContext(r.Context()),
		Days:   queries.ParseRenewalDays(r.URL.Query().Get("days")),
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeList(w, subs)
}

func actorFrom(r *http.Request) commands.Actor {
	return commands.Actor{
		UserID:        observability.UserIDFromContext(r.Context()),
		CorrelationID: observability.CorrelationIDFromContext(r.Context()),
	}
}

// subscriptionID parses the {id} path value. A malformed id cannot name a
// stored record, so it is reported as not found.
func subscriptionID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, subscription.ErrSubscriptionNotFound
	}
	return id, nil
}

// decodeRequest reads a JSON body. An empty body decodes to no fields.
func decodeRequest(r *http.Request) (subscriptionRequest, error) {
	var req subscriptionRequest
	if r.Body == nil {
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, &subscription.ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("invalid JSON: %v", err),
		}
	}
	return req, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
