package dashboard

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/loadline/closer/internal/models"
	"gorm.io/gorm"
)

func registerRoutes(router *gin.Engine, db *gorm.DB) {
	router.GET("/healthz", handleHealth())

	api := router.Group("/api")
	api.GET("/negotiations", handleNegotiationList(db))
	api.GET("/negotiations/:id", handleNegotiationDetail(db))
	api.GET("/negotiations/:id/ledger", handleNegotiationLedger(db))
	api.GET("/invoices", handleInvoiceList(db))
	api.GET("/billing/runs", handleBillingRunList(db))
	api.GET("/triage", handleTriageList(db))
	api.GET("/drivers/:id/referrals", handleReferralList(db))
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleNegotiationList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := db.Model(&models.Negotiation{}).Order("last_transition_at DESC")
		if status := c.Query("status"); status != "" {
			q = q.Where("status = ?", status)
		}
		if driver := c.Query("driver_id"); driver != "" {
			q = q.Where("driver_id = ?", driver)
		}
		var negotiations []models.Negotiation
		if err := q.Limit(200).Find(&negotiations).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"negotiations": negotiations})
	}
}

func handleNegotiationDetail(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var neg models.Negotiation
		err := db.Preload("Messages", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("messages.id")
		}).First(&neg, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "negotiation not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"negotiation": neg})
	}
}

func handleNegotiationLedger(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var entry models.FeeLedgerEntry
		err := db.Where("negotiation_id = ?", id).First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no ledger entry"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"entry":              entry,
			"platform_net_cents": entry.PlatformNetCents(),
		})
	}
}

func handleInvoiceList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := db.Model(&models.Invoice{}).Order("id DESC")
		if status := c.Query("status"); status != "" {
			q = q.Where("status = ?", status)
		}
		if driver := c.Query("driver_id"); driver != "" {
			q = q.Where("driver_id = ?", driver)
		}
		var invoices []models.Invoice
		if err := q.Limit(200).Find(&invoices).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"invoices": invoices})
	}
}

func handleBillingRunList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := db.Model(&models.BillingRun{}).Order("week_ending DESC, driver_id")
		if week := c.Query("week_ending"); week != "" {
			q = q.Where("week_ending = ?", week)
		}
		if status := c.Query("status"); status != "" {
			q = q.Where("status = ?", status)
		}
		var runs []models.BillingRun
		if err := q.Limit(200).Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

func handleTriageList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var rows []models.UnroutedMessage
		err := db.Where("resolved = ?", false).Order("id DESC").Limit(200).Find(&rows).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"unrouted": rows})
	}
}

func handleReferralList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var earnings []models.ReferralEarning
		err := db.Where("referrer_id = ?", id).Order("id DESC").Find(&earnings).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		var totalCents int64
		for _, e := range earnings {
			totalCents += e.AmountCents
		}
		c.JSON(http.StatusOK, gin.H{"earnings": earnings, "total_cents": totalCents})
	}
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}
