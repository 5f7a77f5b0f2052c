package controllers

import (
	"net/http"
	"strconv"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/middleware"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/services"
	"github.com/gin-gonic/gin"
)

type OrderController struct {
	orderService *services.OrderService
}

func NewOrderController(orderService *services.OrderService) *OrderController {
	return &OrderController{
		orderService: orderService,
	}
}

// GetOrders returns paginated orders for the authenticated buyer
func (oc *OrderController) GetOrders(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	page, limit := parsePaginationParams(ctx)
	result, serviceErr := oc.orderService.GetUserOrders(ctx.Request.Context(), actor.UserID, page, limit)
	if serviceErr != nil {
		respondError(ctx, serviceErr)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// GetFarmerOrders returns paginated orders the authenticated farmer has to fulfil
func (oc *OrderController) GetFarmerOrders(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	if actor.Role != services.RoleFarmer && !actor.IsAdmin() {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Farmer access required"})
		return
	}

	page, limit := parsePaginationParams(ctx)
	result, serviceErr := oc.orderService.GetFarmerOrders(ctx.Request.Context(), actor.UserID, page, limit)
	if serviceErr != nil {
		respondError(ctx, serviceErr)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// GetAllOrders returns paginated orders for all users (admin only)
func (oc *OrderController) GetAllOrders(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	page, limit := parsePaginationParams(ctx)
	result, serviceErr := oc.orderService.GetAllOrders(ctx.Request.Context(), actor.UserID, page, limit)
	if serviceErr != nil {
		respondError(ctx, serviceErr)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// GetOrderByID returns an order the caller bought, sold or administers
func (oc *OrderController) GetOrderByID(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	order, serviceErr := oc.orderService.GetOrderByID(ctx.Request.Context(), actor, ctx.Param("id"))
	if serviceErr != nil {
		respondError(ctx, serviceErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

// GetCheckoutOrders returns all orders of one checkout
func (oc *OrderController) GetCheckoutOrders(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	orders, serviceErr := oc.orderService.GetCheckoutOrders(ctx.Request.Context(), actor, ctx.Param("parentId"))
	if serviceErr != nil {
		respondError(ctx, serviceErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"parent_order_id": ctx.Param("parentId"), "orders": orders})
}

// UpdateOrderStatus moves an order along its lifecycle (farmer of the order or admin)
func (oc *OrderController) UpdateOrderStatus(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	var req models.UpdateStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	orderID := ctx.Param("id")
	if _, serviceErr := oc.orderService.Authorize(ctx.Request.Context(), actor, orderID, services.AccessFulfil); serviceErr != nil {
		respondError(ctx, serviceErr)
		return
	}

	order, serviceErr := oc.orderService.UpdateStatus(ctx.Request.Context(), orderID, req.Status, req.Note, req.TrackingNumber)
	if serviceErr != nil {
		respondError(ctx, serviceErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

// CancelOrder cancels an order and restocks its items (buyer of the order or admin)
func (oc *OrderController) CancelOrder(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	var req models.CancelOrderRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
			return
		}
	}

	orderID := ctx.Param("id")
	if _, serviceErr := oc.orderService.Authorize(ctx.Request.Context(), actor, orderID, services.AccessCancel); serviceErr != nil {
		respondError(ctx, serviceErr)
		return
	}

	order, serviceErr := oc.orderService.Cancel(ctx.Request.Context(), orderID, req.Reason)
	if serviceErr != nil {
		respondError(ctx, serviceErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

func currentActor(ctx *gin.Context) (services.Actor, bool) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return services.Actor{}, false
	}
	return services.Actor{UserID: userID, Role: middleware.GetUserRole(ctx)}, true
}

func respondError(ctx *gin.Context, err *services.ServiceError) {
	body := gin.H{"error": err.Message, "code": err.Code}
	if err.Details != nil {
		body["details"] = err.Details
	}
	if err.StatusCode >= http.StatusInternalServerError && err.Err != nil {
		_ = ctx.Error(err.Err)
	}
	ctx.JSON(err.StatusCode, body)
}

// parsePaginationParams extracts and validates pagination parameters
func parsePaginationParams(ctx *gin.Context) (int, int) {
	const MaxLimit = 100
	const DefaultPage = 1
	const DefaultLimit = 10

	page := ctx.DefaultQuery("page", "1")
	limit := ctx.DefaultQuery("limit", "10")

	pageInt := DefaultPage
	limitInt := DefaultLimit

	if p, err := strconv.Atoi(page); err == nil && p > 0 {
		pageInt = p
	}

	if l, err := strconv.Atoi(limit); err == nil && l > 0 {
		limitInt = l
		if limitInt > MaxLimit {
			limitInt = MaxLimit
		}
	}

	return pageInt, limitInt
}
