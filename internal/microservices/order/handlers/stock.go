package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/microservices/order/domain/dao"
	"pizzeria-system/internal/microservices/order/domain/dto"
	"pizzeria-system/internal/microservices/order/service"
)

type StockHandler struct {
	service service.StockServiceInterface
	log     *logger.Logger
}

func NewStockHandler(s service.StockServiceInterface, log *logger.Logger) *StockHandler {
	return &StockHandler{service: s, log: log}
}

func (sh *StockHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/stock/products/{id:[0-9]+}", sh.ProductStock).Methods(http.MethodGet)
	router.HandleFunc("/stock/ingredients/{id:[0-9]+}", sh.IngredientStock).Methods(http.MethodGet)
	router.HandleFunc("/stock/{kind:products|ingredients}/{id:[0-9]+}/receive", sh.Receive).Methods(http.MethodPost)
}

func (sh *StockHandler) ProductStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := sh.service.ProductStock(r.Context(), id)
	if err != nil {
		respondWithError(w, r, sh.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

func (sh *StockHandler) IngredientStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := sh.service.IngredientStock(r.Context(), id)
	if err != nil {
		respondWithError(w, r, sh.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

func (sh *StockHandler) Receive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	kind := dao.KindProduct
	if mux.Vars(r)["kind"] == "ingredients" {
		kind = dao.KindIngredient
	}
	var req dto.ReceiveStockRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	item, err := sh.service.Receive(r.Context(), kind, id, req.Amount)
	if err != nil {
		respondWithError(w, r, sh.log, err)
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}
