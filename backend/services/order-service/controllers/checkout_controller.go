package controllers

import (
	"net/http"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/services"
	"github.com/gin-gonic/gin"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type CheckoutController struct {
	checkoutService *services.CheckoutService
}

func NewCheckoutController(checkoutService *services.CheckoutService) *CheckoutController {
	return &CheckoutController{checkoutService: checkoutService}
}

// Checkout places one order per farmer for the buyer's cart
func (cc *CheckoutController) Checkout(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	var req models.CheckoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	key := ctx.GetHeader(IdempotencyKeyHeader)
	if len(key) > 128 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key is too long"})
		return
	}

	result, serviceErr := cc.checkoutService.Checkout(ctx.Request.Context(), services.CheckoutCommand{
		BuyerID:         actor.UserID,
		Lines:           req.Items,
		DeliveryAddress: req.DeliveryAddress,
		Payment:         req.Payment,
		Charges:         req.Charges,
		IdempotencyKey:  key,
	})
	if serviceErr != nil {
		respondError(ctx, serviceErr)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	ctx.JSON(status, result)
}
