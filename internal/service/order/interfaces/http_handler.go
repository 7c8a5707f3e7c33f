package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/push"
	"strconv"

	"github.com/pkg/errors"
)

const maxBodyBytes = 1 << 20

// OrderHandler 封装了订单服务的 HTTP 处理器
type OrderHandler struct {
	service  *application.OrderApplicationService
	verifier *auth.Verifier
	hub      *push.Hub
	metrics  *metrics.Metrics
	ready    func(ctx context.Context) error
}

// NewOrderHandler 创建一个新的 HTTP 处理器实例。hub 和 ready 可以为 nil。
func NewOrderHandler(
	service *application.OrderApplicationService,
	verifier *auth.Verifier,
	hub *push.Hub,
	m *metrics.Metrics,
	ready func(ctx context.Context) error,
) *OrderHandler {
	return &OrderHandler{service: service, verifier: verifier, hub: hub, metrics: m, ready: ready}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("GET /readyz", h.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())

	h.handle(mux, "POST /api/orders", "create_order", h.handleCreate, false)
	h.handle(mux, "GET /api/orders", "list_my_orders", h.handleListMine, false)
	h.handle(mux, "GET /api/orders/{id}", "get_order", h.handleGet, false)
	h.handle(mux, "GET /api/orders/admin/all", "list_all_orders", h.handleListAll, true)
	h.handle(mux, "PUT /api/orders/{id}/status", "update_order_status", h.handleUpdateStatus, true)

	if h.hub != nil {
		// websocket 需要 Hijack，不经过指标中间件
		mux.Handle("GET /api/orders/stream", h.verifier.Protect(http.HandlerFunc(h.handleStream)))
	}
}

func (h *OrderHandler) handle(mux *http.ServeMux, pattern, name string, fn http.HandlerFunc, admin bool) {
	var handler http.Handler = fn
	if admin {
		handler = auth.AdminOnly(handler)
	}
	mux.Handle(pattern, h.metrics.Instrument(name, h.verifier.Protect(handler)))
}

func (h *OrderHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())

	var cmd application.PlaceOrderCommand
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&cmd); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	cmd.Principal = principal

	order, err := h.service.PlaceOrder(r.Context(), &cmd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderView(order))
}

func (h *OrderHandler) handleListMine(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	orders, err := h.service.ListMyOrders(r.Context(), principal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderViews(orders))
}

func (h *OrderHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	order, err := h.service.GetOrder(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

func (h *OrderHandler) handleListAll(w http.ResponseWriter, r *http.Request) {
	q := application.AdminListQuery{Status: r.URL.Query().Get("status")}
	var err error
	if q.Page, err = intParam(r, "page"); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid page")
		return
	}
	if q.Limit, err = intParam(r, "limit"); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	page, err := h.service.ListAllOrders(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderPageView(page))
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid status")
		return
	}

	order, err := h.service.UpdateOrderStatus(r.Context(), r.PathValue("id"), body.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

func (h *OrderHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	h.hub.Serve(w, r, principal.UserID)
}

func (h *OrderHandler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			logger.Ctx(r.Context()).Warn().Err(err).Msg("readiness check failed")
			writeMessage(w, http.StatusServiceUnavailable, "Not ready")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// writeError 把领域错误映射成 HTTP 状态码，未知错误不暴露细节
func (h *OrderHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": validationErr.Error(),
			"errors":  validationErr.Problems,
		})
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrInsufficientStock):
		writeMessage(w, http.StatusBadRequest, rootMessage(err))
	case errors.Is(err, domain.ErrInvalidStatus):
		writeMessage(w, http.StatusBadRequest, "Invalid status")
	case errors.Is(err, domain.ErrOrderNotFound):
		writeMessage(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, domain.ErrAccessDenied):
		writeMessage(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, domain.ErrPersistence):
		logger.Ctx(r.Context()).Error().Err(err).Msg("order persistence failed")
		writeMessage(w, http.StatusInternalServerError, "Order could not be saved, please retry")
	default:
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeMessage(w, http.StatusInternalServerError, "Server error")
	}
}

// rootMessage 取出带业务信息的错误文本，去掉内部包装的前缀
func rootMessage(err error) string {
	var notFound *domain.ProductNotFoundError
	if errors.As(err, &notFound) {
		return notFound.Error()
	}
	var stock *domain.InsufficientStockError
	if errors.As(err, &stock) {
		return stock.Error()
	}
	return err.Error()
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
