package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/greenbasket/go-commerce-backend/internal/auth"
	"github.com/greenbasket/go-commerce-backend/internal/aws"
	"github.com/greenbasket/go-commerce-backend/internal/carts"
	"github.com/greenbasket/go-commerce-backend/internal/checkout"
	"github.com/greenbasket/go-commerce-backend/internal/orders"
	"github.com/greenbasket/go-commerce-backend/internal/products"
	"github.com/greenbasket/go-commerce-backend/internal/validation"
)

// RegisterOrderRoutes registers the authenticated order API.
func RegisterOrderRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	productStore := products.NewStore(cfg.DynamoDBClient, cfg.ProductsTable)
	cartStore := carts.NewStore(cfg.DynamoDBClient, cfg.CartsTable, productStore)
	orderStore := orders.NewStore(cfg.DynamoDBClient, cfg.OrdersTable)
	checkoutStore := checkout.NewStore(cfg.DynamoDBClient, cfg.CheckoutTable, cfg.TTLWindow)

	var publisher *aws.Publisher
	if cfg.SQSClient != nil && cfg.QueueURL != "" {
		publisher = aws.NewPublisher(cfg.SQSClient, cfg.QueueURL)
	}
	workflow := orders.NewWorkflow(cfg.DynamoDBClient, orderStore, cartStore, productStore, checkoutStore, publisher)

	grp := r.Group("/order", auth.Middleware(cfg.JWTSecret))

	grp.POST("", func(c *gin.Context) {
		ctx := c.Request.Context()
		p, _ := auth.FromContext(c)

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		idempKey := c.GetHeader("Idempotency-Key")

		order, err := workflow.Create(ctx, orders.CreateInput{
			UserID:          p.ID,
			ShippingAddress: req.ShippingAddress,
			PaymentMethod:   req.PaymentMethod,
			OrderNotes:      req.OrderNotes,
			IdempotencyKey:  idempKey,
		})
		if err != nil {
			writeCreateOrderError(c, checkoutStore, idempKey, err)
			return
		}

		view, perr := populateOrder(ctx, productStore, order)
		if perr != nil {
			failErr(c, http.StatusInternalServerError, "Error creating order", perr)
			return
		}
		body := gin.H{"success": true, "message": "Order created successfully", "order": view}
		c.JSON(http.StatusCreated, body)

		if idempKey != "" {
			if raw, merr := json.Marshal(body); merr == nil {
				if derr := checkoutStore.MarkDone(ctx, idempKey, string(raw), http.StatusCreated); derr != nil {
					// duplicates will see IN_PROGRESS and get a 202 until the TTL expires
					_ = derr
				}
			}
		}
	})

	grp.GET("", func(c *gin.Context) {
		ctx := c.Request.Context()
		p, _ := auth.FromContext(c)

		list, err := orderStore.ListByUser(ctx, p.ID)
		if err != nil {
			failErr(c, http.StatusInternalServerError, "Error fetching orders", err)
			return
		}
		views, err := populateOrders(ctx, productStore, list)
		if err != nil {
			failErr(c, http.StatusInternalServerError, "Error fetching orders", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "orders": views})
	})

	grp.GET("/all", auth.RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		ctx := c.Request.Context()

		list, err := orderStore.ListAll(ctx)
		if err != nil {
			failErr(c, http.StatusInternalServerError, "Error fetching all orders", err)
			return
		}
		views, err := populateOrders(ctx, productStore, list)
		if err != nil {
			failErr(c, http.StatusInternalServerError, "Error fetching all orders", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "orders": views})
	})

	grp.GET("/:orderId", func(c *gin.Context) {
		ctx := c.Request.Context()
		p, _ := auth.FromContext(c)

		order, err := orderStore.GetOwned(ctx, p.ID, c.Param("orderId"))
		if err != nil {
			if errors.Is(err, orders.ErrNotFound) {
				fail(c, http.StatusNotFound, "Order not found")
				return
			}
			failErr(c, http.StatusInternalServerError, "Error fetching order", err)
			return
		}
		view, err := populateOrder(ctx, productStore, order)
		if err != nil {
			failErr(c, http.StatusInternalServerError, "Error fetching order", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "order": view})
	})

	grp.PUT("/:orderId/cancel", func(c *gin.Context) {
		ctx := c.Request.Context()
		p, _ := auth.FromContext(c)

		order, err := workflow.Cancel(ctx, p.ID, c.Param("orderId"))
		if err != nil {
			switch {
			case errors.Is(err, orders.ErrNotFound):
				fail(c, http.StatusNotFound, "Order not found")
			case errors.Is(err, orders.ErrNotCancellable):
				fail(c, http.StatusBadRequest, "Order cannot be cancelled at this stage")
			default:
				failErr(c, http.StatusInternalServerError, "Error cancelling order", err)
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Order cancelled successfully", "order": order})
	})

	grp.GET("/:orderId/status", func(c *gin.Context) {
		ctx := c.Request.Context()
		p, _ := auth.FromContext(c)

		proj, err := workflow.GetStatus(ctx, p.ID, c.Param("orderId"))
		if err != nil {
			if errors.Is(err, orders.ErrNotFound) {
				fail(c, http.StatusNotFound, "Order not found")
				return
			}
			failErr(c, http.StatusInternalServerError, "Error fetching order status", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":           true,
			"status":            proj.Status,
			"orderNumber":       proj.OrderNumber,
			"estimatedDelivery": proj.EstimatedDelivery,
			"trackingNumber":    proj.TrackingNumber,
		})
	})

	grp.PUT("/update-status/:orderId", auth.RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.UpdateOrderStatusRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		order, err := workflow.SetStatusAdmin(ctx, c.Param("orderId"), req.Status)
		if err != nil {
			switch {
			case errors.Is(err, orders.ErrInvalidStatus):
				fail(c, http.StatusBadRequest, "Invalid status. Must be one of: "+strings.Join(orders.ValidStatuses, ", "))
			case errors.Is(err, orders.ErrNotFound):
				fail(c, http.StatusNotFound, "Order not found")
			default:
				failErr(c, http.StatusInternalServerError, "Error updating order status", err)
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Order status updated successfully", "order": order})
	})
}

// writeCreateOrderError maps checkout failures onto the HTTP contract,
// replaying the stored response for duplicate idempotency keys.
func writeCreateOrderError(c *gin.Context, checkoutStore *checkout.Store, idempKey string, err error) {
	var stockErr *products.InsufficientStockError
	switch {
	case errors.Is(err, orders.ErrEmptyCart):
		fail(c, http.StatusBadRequest, "Cart is empty")
	case errors.As(err, &stockErr):
		fail(c, http.StatusBadRequest, fmt.Sprintf("Insufficient stock for %s", stockErr.Name))
	case errors.Is(err, checkout.ErrDuplicateKey):
		rec, gerr := checkoutStore.Get(c.Request.Context(), idempKey)
		if gerr != nil || rec == nil {
			failErr(c, http.StatusInternalServerError, "Error creating order", err)
			return
		}
		switch rec.Status {
		case checkout.StatusDone:
			if rec.ResponseBody != "" {
				c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "orderId": rec.OrderID})
		case checkout.StatusInProgress:
			c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "orderId": rec.OrderID})
		default:
			fail(c, http.StatusInternalServerError, "Previous attempt with this idempotency key failed")
		}
	default:
		failErr(c, http.StatusInternalServerError, "Error creating order", err)
	}
}
