package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/greenbasket/go-commerce-backend/internal/auth"
	"github.com/greenbasket/go-commerce-backend/internal/carts"
	"github.com/greenbasket/go-commerce-backend/internal/products"
	"github.com/greenbasket/go-commerce-backend/internal/validation"
)

// RegisterCartRoutes registers the authenticated cart API.
func RegisterCartRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	productStore := products.NewStore(cfg.DynamoDBClient, cfg.ProductsTable)
	cartStore := carts.NewStore(cfg.DynamoDBClient, cfg.CartsTable, productStore)

	grp := r.Group("/cart", auth.Middleware(cfg.JWTSecret))

	grp.GET("", func(c *gin.Context) {
		ctx := c.Request.Context()
		p, _ := auth.FromContext(c)

		cart, err := cartStore.GetOrCreate(ctx, p.ID)
		if err != nil {
			failErr(c, http.StatusInternalServerError, "Error fetching cart", err)
			return
		}
		view, err := populateCart(ctx, productStore, cart)
		if err != nil {
			failErr(c, http.StatusInternalServerError, "Error fetching cart", err)
			return
		}
		c.JSON(http.StatusOK, view)
	})

	grp.POST("/add", func(c *gin.Context) {
		ctx := c.Request.Context()
		p, _ := auth.FromContext(c)

		var req validation.AddToCartRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		if req.Quantity == 0 {
			req.Quantity = 1
		}

		cart, err := cartStore.AddItem(ctx, p.ID, req.ProductID, req.Quantity)
		if err != nil {
			writeCartError(c, err, req.Quantity)
			return
		}
		view, err := populateCart(ctx, productStore, cart)
		if err != nil {
			failErr(c, http.StatusInternalServerError, "Error adding item to cart", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Item added to cart successfully", "cart": view})
	})

	grp.PUT("/update", func(c *gin.Context) {
		ctx := c.Request.Context()
		p, _ := auth.FromContext(c)

		var req validation.UpdateCartItemRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		cart, err := cartStore.UpdateItem(ctx, p.ID, req.ProductID, req.Quantity)
		if err != nil {
			writeCartError(c, err, req.Quantity)
			return
		}
		view, err := populateCart(ctx, productStore, cart)
		if err != nil {
			failErr(c, http.StatusInternalServerError, "Error updating cart item", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Cart item updated successfully", "cart": view})
	})

	grp.DELETE("/remove", func(c *gin.Context) {
		ctx := c.Request.Context()
		p, _ := auth.FromContext(c)

		var req validation.RemoveFromCartRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		cart, err := cartStore.RemoveItem(ctx, p.ID, req.ProductID)
		if err != nil {
			writeCartError(c, err, 0)
			return
		}
		view, err := populateCart(ctx, productStore, cart)
		if err != nil {
			failErr(c, http.StatusInternalServerError, "Error removing item from cart", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Item removed from cart successfully", "cart": view})
	})

	grp.DELETE("/clear", func(c *gin.Context) {
		ctx := c.Request.Context()
		p, _ := auth.FromContext(c)

		cart, err := cartStore.Clear(ctx, p.ID)
		if err != nil {
			writeCartError(c, err, 0)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Cart cleared successfully", "cart": cart})
	})

	grp.GET("/count", func(c *gin.Context) {
		ctx := c.Request.Context()
		p, _ := auth.FromContext(c)

		count, err := cartStore.Count(ctx, p.ID)
		if err != nil {
			failErr(c, http.StatusInternalServerError, "Error getting cart count", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	})
}

// writeCartError maps cart store failures onto the HTTP contract. addQty is
// the quantity the client asked to add, used for the merge rejection message.
func writeCartError(c *gin.Context, err error, addQty int) {
	var stockErr *products.InsufficientStockError
	switch {
	case errors.Is(err, products.ErrNotFound), errors.Is(err, products.ErrNotAvailable):
		fail(c, http.StatusNotFound, "Product not found or not available")
	case errors.As(err, &stockErr):
		if stockErr.Merged {
			fail(c, http.StatusBadRequest, fmt.Sprintf("Cannot add %d more items. Total quantity would exceed available stock.", addQty))
		} else {
			fail(c, http.StatusBadRequest, fmt.Sprintf("Only %d items available in stock", stockErr.Available))
		}
	case errors.Is(err, carts.ErrInvalidQuantity):
		fail(c, http.StatusBadRequest, "Quantity must be at least 1")
	case errors.Is(err, carts.ErrNotFound):
		fail(c, http.StatusNotFound, "Cart not found")
	case errors.Is(err, carts.ErrItemNotFound):
		fail(c, http.StatusNotFound, "Item not found in cart")
	default:
		failErr(c, http.StatusInternalServerError, "Error updating cart", err)
	}
}
