package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/greenbasket/go-commerce-backend/internal/auth"
	"github.com/greenbasket/go-commerce-backend/internal/products"
	"github.com/greenbasket/go-commerce-backend/internal/validation"
)

// RegisterProductRoutes registers the catalog and the approval lifecycle.
// Listing and single-product reads are public; submission requires a login;
// review, direct save, edit and delete are admin-only.
func RegisterProductRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	productStore := products.NewStore(cfg.DynamoDBClient, cfg.ProductsTable)

	grp := r.Group("/products")

	grp.GET("", auth.OptionalMiddleware(cfg.JWTSecret), func(c *gin.Context) {
		ctx := c.Request.Context()

		var (
			list []products.Product
			err  error
		)
		if p, ok := auth.FromContext(c); ok && p.Role == auth.RoleAdmin {
			list, err = productStore.ListAll(ctx)
		} else {
			list, err = productStore.ListApproved(ctx)
		}
		if err != nil {
			failErr(c, http.StatusInternalServerError, "Failed to get products", err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	grp.GET("/pending", auth.Middleware(cfg.JWTSecret), auth.RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		list, err := productStore.ListPending(c.Request.Context())
		if err != nil {
			failErr(c, http.StatusInternalServerError, "Error fetching pending products", err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	grp.POST("/submit", auth.Middleware(cfg.JWTSecret), func(c *gin.Context) {
		p, _ := auth.FromContext(c)

		var req validation.SubmitProductRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		// submissions stay hidden until an admin approves them
		prod := productFromRequest(&req, p.ID)
		prod.Status = products.StatusPending
		prod.IsAvailable = false

		if err := productStore.Put(c.Request.Context(), prod); err != nil {
			failErr(c, http.StatusInternalServerError, "Error submitting product", err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"success":   true,
			"message":   "Product submitted successfully! It will be reviewed by admin before publishing.",
			"productId": prod.ProductID,
		})
	})

	grp.POST("", auth.Middleware(cfg.JWTSecret), auth.RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		p, _ := auth.FromContext(c)

		var req validation.SubmitProductRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		// admin saves skip the review queue
		prod := productFromRequest(&req, p.ID)
		prod.Status = products.StatusApproved
		prod.IsAvailable = true

		if err := productStore.Put(c.Request.Context(), prod); err != nil {
			failErr(c, http.StatusInternalServerError, "Error saving product", err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"success":   true,
			"message":   "Product added successfully",
			"productId": prod.ProductID,
		})
	})

	grp.PUT("/review/:productId", auth.Middleware(cfg.JWTSecret), auth.RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		p, _ := auth.FromContext(c)

		var req validation.ReviewProductRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		approve := req.Action == "approve"
		prod, err := productStore.Review(c.Request.Context(), c.Param("productId"), approve, p.ID, req.RejectionReason)
		if err != nil {
			switch {
			case errors.Is(err, products.ErrNotFound):
				fail(c, http.StatusNotFound, "Product not found")
			case errors.Is(err, products.ErrAlreadyReviewed):
				fail(c, http.StatusBadRequest, "Product has already been reviewed")
			default:
				failErr(c, http.StatusInternalServerError, "Error reviewing product", err)
			}
			return
		}

		msg := "Product rejected successfully"
		if approve {
			msg = "Product approved successfully"
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": msg, "product": prod})
	})

	grp.GET("/:productId", func(c *gin.Context) {
		prod, err := productStore.Get(c.Request.Context(), c.Param("productId"))
		if err != nil {
			failErr(c, http.StatusInternalServerError, "Error fetching product", err)
			return
		}
		if prod == nil {
			fail(c, http.StatusNotFound, "Product not found")
			return
		}
		c.JSON(http.StatusOK, prod)
	})

	grp.PUT("/:productId", auth.Middleware(cfg.JWTSecret), auth.RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		var req validation.UpdateProductRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		prod, err := productStore.Update(c.Request.Context(), c.Param("productId"), products.Patch{
			Name:          req.Name,
			AltName:       req.AltName,
			Description:   req.Description,
			Images:        req.Images,
			LabelledPrice: req.LabelledPrice,
			Price:         req.Price,
			Stock:         req.Stock,
			IsAvailable:   req.IsAvailable,
			Category:      req.Category,
			Subcategory:   req.Subcategory,
		})
		if err != nil {
			if errors.Is(err, products.ErrNotFound) {
				fail(c, http.StatusNotFound, "Product not found")
				return
			}
			failErr(c, http.StatusInternalServerError, "Error updating product", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Product updated successfully", "product": prod})
	})

	grp.DELETE("/:productId", auth.Middleware(cfg.JWTSecret), auth.RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		if err := productStore.Delete(c.Request.Context(), c.Param("productId")); err != nil {
			failErr(c, http.StatusInternalServerError, "Error deleting product", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Product deleted successfully"})
	})
}

func productFromRequest(req *validation.SubmitProductRequest, submittedBy string) *products.Product {
	prod := &products.Product{
		ProductID:            products.NewProductID(),
		Name:                 req.Name,
		AltName:              req.AltName,
		Description:          req.Description,
		Images:               req.Images,
		LabelledPrice:        req.LabelledPrice,
		Price:                req.Price,
		Stock:                *req.Stock,
		Category:             req.Category,
		Subcategory:          req.Subcategory,
		IsOrganic:            true,
		OrganicCertification: req.OrganicCertification,
		Ingredients:          req.Ingredients,
		Allergens:            req.Allergens,
		Calories:             req.Calories,
		Protein:              req.Protein,
		Carbs:                req.Carbs,
		Fat:                  req.Fat,
		Fiber:                req.Fiber,
		SubmittedBy:          submittedBy,
	}
	if req.IsOrganic != nil {
		prod.IsOrganic = *req.IsOrganic
	}
	return prod
}
