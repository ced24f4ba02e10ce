package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type createInvoiceRequest struct {
	PlanType string `json:"planType" binding:"required"`
}

type listOrdersQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("planType", "required", "planType is required"))
		return
	}

	result, err := s.checkoutSvc.CreateInvoice(c.Request.Context(), identityFromContext(c), strings.TrimSpace(req.PlanType))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"orderId":     result.OrderID,
		"checkoutUrl": result.CheckoutURL,
		"planType":    result.PlanType,
		"amount":      result.Amount,
	})
}

func (s *Server) ListOrders(c *gin.Context) {
	var query listOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be between 1 and 100"))
		return
	}

	orders, err := s.checkoutSvc.ListOrders(c.Request.Context(), identityFromContext(c), query.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": orders})
}

func (s *Server) GetOrder(c *gin.Context) {
	view, err := s.checkoutSvc.GetOrderStatus(c.Request.Context(), identityFromContext(c), c.Param("orderId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}
