package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ankitkr9911/vendor-processing/service"
	"github.com/gin-gonic/gin"
)

type VendorHandler struct {
	store service.Store
}

func NewVendorHandler(store service.Store) *VendorHandler {
	return &VendorHandler{store: store}
}

// List returns vendor records, optionally filtered by status
func (h *VendorHandler) List(c *gin.Context) {
	status := c.Query("status")
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	skip, _ := strconv.ParseInt(c.DefaultQuery("skip", "0"), 10, 64)

	vendors, err := h.store.ListVendors(c.Request.Context(), status, limit, skip)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list vendors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"vendors": vendors,
		"count":   len(vendors),
	})
}

// Get returns one vendor record by id
func (h *VendorHandler) Get(c *gin.Context) {
	vendor, err := h.store.GetVendor(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrVendorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Vendor not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load vendor"})
		return
	}
	c.JSON(http.StatusOK, vendor)
}
