package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/JavoxirAI/sneakers-shop-backend/internal/auth"
	"github.com/JavoxirAI/sneakers-shop-backend/internal/order/domain"
	"github.com/JavoxirAI/sneakers-shop-backend/pkg/tracing"
)

func authUser(ctx context.Context) (uuid.UUID, bool) { return auth.UserID(ctx) }

// OrderWorkflow is the slice of the application service this handler needs.
type OrderWorkflow interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, in domain.CreateOrderInput, traceparent string) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID, userID uuid.UUID, traceparent string) (domain.Order, error)
	GetOrder(ctx context.Context, orderID, userID uuid.UUID) (domain.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID) ([]domain.Order, error)
}

type Handler struct {
	log      *slog.Logger
	workflow OrderWorkflow
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, workflow OrderWorkflow) *Handler {
	return &Handler{
		log:      log,
		workflow: workflow,
		tracer:   otel.Tracer("order-http"),
	}
}

// Routes builds the order API. createMiddleware wraps only the creation
// endpoint (idempotency lives there, not on reads).
func (h *Handler) Routes(createMiddleware ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/orders", h.listOrders)
	r.With(createMiddleware...).Post("/orders/create", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)

	return r
}

type createOrderRequest struct {
	FullName      string          `json:"full_name"`
	Phone         string          `json:"phone"`
	Address       string          `json:"address"`
	City          string          `json:"city"`
	Region        string          `json:"region"`
	PostalCode    string          `json:"postal_code"`
	PaymentMethod string          `json:"payment_method"`
	DeliveryPrice decimal.Decimal `json:"delivery_price"`
	Note          string          `json:"note"`
	Items         []lineItemInput `json:"items"`
}

type lineItemInput struct {
	ProductID uuid.UUID `json:"product_id"`
	Size      string    `json:"size"`
	Quantity  int       `json:"quantity"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	userID, ok := authUser(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	in := domain.CreateOrderInput{
		FullName:      req.FullName,
		Phone:         req.Phone,
		Address:       req.Address,
		City:          req.City,
		Region:        req.Region,
		PostalCode:    req.PostalCode,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		DeliveryPrice: req.DeliveryPrice,
		Note:          req.Note,
	}
	for _, item := range req.Items {
		in.Lines = append(in.Lines, domain.Line{
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.workflow.CreateOrder(ctx, userID, in, traceparent(ctx, r))
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "order created",
		"order":   toOrderResponse(order),
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	userID, ok := authUser(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := h.workflow.ListOrders(ctx, userID)
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	userID, ok := authUser(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	order, err := h.workflow.GetOrder(ctx, orderID, userID)
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelOrder")
	defer span.End()

	userID, ok := authUser(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	order, err := h.workflow.CancelOrder(ctx, orderID, userID, traceparent(ctx, r))
	if err != nil {
		h.writeWorkflowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "order cancelled",
		"order":   toOrderResponse(order),
	})
}

// writeWorkflowError maps the domain error taxonomy onto status codes.
// Callers branch on kind, never on message text.
func (h *Handler) writeWorkflowError(w http.ResponseWriter, err error) {
	var (
		validationErr   domain.ValidationError
		notFoundErr     domain.NotFoundError
		stockErr        domain.InsufficientStockError
		businessRuleErr domain.BusinessRuleError
		conflictErr     domain.ConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &stockErr):
		writeError(w, http.StatusBadRequest, stockErr.Error())
	case errors.As(err, &businessRuleErr):
		writeError(w, http.StatusBadRequest, businessRuleErr.Error())
	case errors.As(err, &conflictErr):
		writeError(w, http.StatusConflict, conflictErr.Error())
	default:
		h.log.Error("order workflow error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func traceparent(ctx context.Context, r *http.Request) string {
	if tp := r.Header.Get("traceparent"); tp != "" {
		return tp
	}
	return tracing.Traceparent(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type orderResponse struct {
	ID            uuid.UUID           `json:"id"`
	Status        string              `json:"status"`
	FullName      string              `json:"full_name"`
	Phone         string              `json:"phone"`
	Address       string              `json:"address"`
	City          string              `json:"city"`
	Region        string              `json:"region"`
	PostalCode    string              `json:"postal_code"`
	PaymentMethod string              `json:"payment_method"`
	IsPaid        bool                `json:"is_paid"`
	PaidAt        *time.Time          `json:"paid_at"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	DeliveryPrice decimal.Decimal     `json:"delivery_price"`
	TotalPrice    decimal.Decimal     `json:"total_price"`
	Note          string              `json:"note"`
	Items         []orderItemResponse `json:"items"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type orderItemResponse struct {
	ID        uuid.UUID       `json:"id"`
	Product   productContext  `json:"product"`
	Size      *sizeContext    `json:"size"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	CreatedAt time.Time       `json:"created_at"`
}

type productContext struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type sizeContext struct {
	ID    uuid.UUID `json:"id"`
	Label string    `json:"label"`
}

func toOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		ir := orderItemResponse{
			ID:        item.ID,
			Product:   productContext{ID: item.ProductID, Name: item.ProductName},
			Quantity:  item.Quantity,
			Price:     item.Price,
			Subtotal:  item.Subtotal(),
			CreatedAt: item.CreatedAt,
		}
		if item.SizeID != nil {
			size := sizeContext{ID: *item.SizeID}
			if item.SizeLabel != nil {
				size.Label = *item.SizeLabel
			}
			ir.Size = &size
		}
		items = append(items, ir)
	}

	return orderResponse{
		ID:            o.ID,
		Status:        string(o.Status),
		FullName:      o.FullName,
		Phone:         o.Phone,
		Address:       o.Address,
		City:          o.City,
		Region:        o.Region,
		PostalCode:    o.PostalCode,
		PaymentMethod: string(o.PaymentMethod),
		IsPaid:        o.IsPaid,
		PaidAt:        o.PaidAt,
		Subtotal:      o.Subtotal,
		DeliveryPrice: o.DeliveryPrice,
		TotalPrice:    o.TotalPrice,
		Note:          o.Note,
		Items:         items,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}
