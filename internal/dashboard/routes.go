package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/osobot/oso/internal/store"
	"gorm.io/gorm"
)

// registerRoutes sets up the JSON API on the Gin router.
func registerRoutes(router *gin.Engine, st *store.Store) {
	router.GET("/healthz", handleHealth(st))
	router.GET("/api/stats", handleStats(st))
	router.GET("/api/msgs", handleMsgList(st))
	router.GET("/api/msgs/:id", handleMsgDetail(st))
	router.GET("/api/senders/:sender", handleSender(st))
}

func handleHealth(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := st.DB().DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleStats(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := CollectStats(st.DB())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func handleMsgList(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		rows, err := ListMsgs(st.DB(), c.Query("sender"), c.Query("stage"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"msgs": rows})
	}
}

func handleMsgDetail(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		msg, err := st.Get(c.Param("id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, toDetail(msg))
	}
}

func handleSender(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
		if days <= 0 {
			days = 30
		}
		activity, err := CollectSenderActivity(st.DB(), c.Param("sender"),
			time.Duration(days)*24*time.Hour)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, activity)
	}
}
