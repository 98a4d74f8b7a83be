package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/microservices/order/domain/dao"
	"pizzeria-system/internal/microservices/order/domain/dto"
	"pizzeria-system/internal/microservices/order/service"
)

type OrderHandler struct {
	service service.OrderServiceInterface
	log     *logger.Logger
}

func NewOrderHandler(s service.OrderServiceInterface, log *logger.Logger) *OrderHandler {
	return &OrderHandler{service: s, log: log}
}

func (oh *OrderHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orders", oh.AddOrder).Methods(http.MethodPost)
	router.HandleFunc("/orders", oh.ListOrders).Methods(http.MethodGet)
	router.HandleFunc("/orders/phone/{phone}", oh.FindByPhone).Methods(http.MethodGet)
	router.HandleFunc("/orders/{id:[0-9]+}", oh.GetOrder).Methods(http.MethodGet)
	router.HandleFunc("/orders/{id:[0-9]+}", oh.DeleteOrder).Methods(http.MethodDelete)
	router.HandleFunc("/orders/{id:[0-9]+}/timeline", oh.Timeline).Methods(http.MethodGet)
	router.HandleFunc("/orders/{id:[0-9]+}/cancel", oh.CancelOrder).Methods(http.MethodPatch)
	router.HandleFunc("/orders/{id:[0-9]+}/status", oh.UpdateStatus).Methods(http.MethodPatch)
	router.HandleFunc("/customers/{id:[0-9]+}/orders", oh.CustomerOrders).Methods(http.MethodGet)
}

func (oh *OrderHandler) AddOrder(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateOrderRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	order, err := oh.service.CreateOrder(r.Context(), req)
	if err != nil {
		respondWithError(w, r, oh.log, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, dto.CreateOrderResponse{
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		TotalAmount: order.Total,
		Order:       &order,
	})
}

func (oh *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}
	filter := dao.OrderFilter{Limit: limit, Offset: offset, Phone: r.URL.Query().Get("phone")}
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondBadRequest(w, "customer_id must be a positive integer")
			return
		}
		filter.CustomerID = &id
	}

	orders, err := oh.service.ListOrders(r.Context(), filter)
	if err != nil {
		respondWithError(w, r, oh.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, nonNil(orders))
}

func (oh *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	order, err := oh.service.GetOrder(r.Context(), id)
	if err != nil {
		respondWithError(w, r, oh.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, order)
}

func (oh *OrderHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	entries, err := oh.service.Timeline(r.Context(), id)
	if err != nil {
		respondWithError(w, r, oh.log, err)
		return
	}
	if entries == nil {
		entries = []dao.StatusLogEntry{}
	}
	respondWithJSON(w, http.StatusOK, entries)
}

func (oh *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req dto.CancelOrderRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	order, err := oh.service.CancelOrder(r.Context(), id, req.ChangedBy)
	if err != nil {
		respondWithError(w, r, oh.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, order)
}

func (oh *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Status == "" {
		respondBadRequest(w, "status is required")
		return
	}

	order, err := oh.service.AdvanceStatus(r.Context(), id, req.Status, req.ChangedBy)
	if err != nil {
		respondWithError(w, r, oh.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, order)
}

func (oh *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := oh.service.DeleteOrder(r.Context(), id); err != nil {
		respondWithError(w, r, oh.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (oh *OrderHandler) CustomerOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	orders, err := oh.service.FindByCustomer(r.Context(), id)
	if err != nil {
		respondWithError(w, r, oh.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, nonNil(orders))
}

func (oh *OrderHandler) FindByPhone(w http.ResponseWriter, r *http.Request) {
	orders, err := oh.service.FindByPhone(r.Context(), mux.Vars(r)["phone"])
	if err != nil {
		respondWithError(w, r, oh.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, nonNil(orders))
}

func nonNil(orders []dao.Order) []dao.Order {
	if orders == nil {
		return []dao.Order{}
	}
	return orders
}
