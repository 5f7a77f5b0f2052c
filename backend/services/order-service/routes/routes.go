package routes

import (
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/controllers"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/middleware"
	"github.com/gin-gonic/gin"
)

func RegisterOrderRoutes(r *gin.Engine, checkout *controllers.CheckoutController, orders *controllers.OrderController) {
	r.POST("/checkout", middleware.AuthMiddleware(), checkout.Checkout)

	orderRoutes := r.Group("/orders")
	orderRoutes.Use(middleware.AuthMiddleware())
	orderRoutes.GET("", orders.GetOrders)                          // Buyer's own orders
	orderRoutes.GET("/parent/:parentId", orders.GetCheckoutOrders) // All orders of one checkout
	orderRoutes.GET("/:id", orders.GetOrderByID)                   // Get order by ID
	orderRoutes.PATCH("/:id/status", orders.UpdateOrderStatus)     // Farmer/admin status update
	orderRoutes.POST("/:id/cancel", orders.CancelOrder)            // Buyer/admin cancel

	farmerRoutes := r.Group("/farmer")
	farmerRoutes.Use(middleware.AuthMiddleware())
	farmerRoutes.GET("/orders", orders.GetFarmerOrders)

	adminRoutes := r.Group("/admin")
	adminRoutes.Use(middleware.AuthMiddleware(), middleware.AdminOnly())
	adminRoutes.GET("/orders", orders.GetAllOrders) // All orders
}
