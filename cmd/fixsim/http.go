package main

import (
	"net/http"

	"github.com/gbkr-com/mkt"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/true-markets/fixsim/order"
	"github.com/true-markets/fixsim/run"
)

// A Handler for HTTP traffic.
type Handler struct {
	manager *run.Manager
}

// Bind this [Handler] to [*gin.Engine].
func (x *Handler) Bind(router *gin.Engine) {
	router.GET("/v1/sessions", x.getSessions)
	router.GET("/v1/sessions/:key/orders", x.getOrders)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (x *Handler) getSessions(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, x.manager.Statuses())
}

type orderView struct {
	ClOrdID     string `json:"clOrdID"`
	OrigClOrdID string `json:"origClOrdID,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderQty    string `json:"orderQty"`
	Price       string `json:"price"`
	CumQty      string `json:"cumQty"`
	LeavesQty   string `json:"leavesQty"`
	Status      string `json:"status"`
	ReplacedBy  string `json:"replacedBy,omitempty"`
	Text        string `json:"text,omitempty"`
}

func (x *Handler) getOrders(ctx *gin.Context) {
	//
	// URI.
	//
	uri := struct {
		Key string `uri:"key" binding:"required"`
	}{}
	if err := ctx.ShouldBindUri(&uri); err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	//
	// Content.
	//
	book := x.manager.Book(uri.Key)
	if book == nil {
		ctx.AbortWithStatus(http.StatusNotFound)
		return
	}

	orders := book.Orders()
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView{
			ClOrdID:     o.ClOrdID,
			OrigClOrdID: o.OrigClOrdID,
			OrderID:     o.OrderID,
			Symbol:      o.Symbol,
			Side:        sideName(o.Side),
			OrderQty:    o.OrderQty.String(),
			Price:       o.Price.String(),
			CumQty:      o.CumQty.String(),
			LeavesQty:   o.LeavesQty.String(),
			Status:      order.StatusName(o.Status),
			ReplacedBy:  o.ReplacedBy,
			Text:        o.Text,
		})
	}
	ctx.JSON(http.StatusOK, views)
}

func sideName(side mkt.Side) string {
	if side == mkt.Buy {
		return "BUY"
	}
	return "SELL"
}
