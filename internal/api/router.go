package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LJTian/AIUsageHub/internal/aggregator"
	"github.com/LJTian/AIUsageHub/internal/presenter"
	"github.com/LJTian/AIUsageHub/internal/scheduler"
	"github.com/LJTian/AIUsageHub/internal/storage"
)

type Server struct {
	store *storage.Store
	cache *storage.ViewCache
	// 以下两个可为 nil：未开启定时采集 / 未配置 Postgres
	sched  *scheduler.Scheduler
	mirror *storage.Mirror
}

func NewServer(store *storage.Store, cache *storage.ViewCache, sched *scheduler.Scheduler, mirror *storage.Mirror) *Server {
	return &Server{store: store, cache: cache, sched: sched, mirror: mirror}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 页面按相对路径读取的持久化文档
	r.GET("/data/data.json", s.document)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/dashboard", s.dashboard)
		v1.GET("/snapshots", s.listSnapshots)
		v1.POST("/refresh", s.refresh)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) document(c *gin.Context) {
	raw, err := s.store.ReadRaw()
	if err != nil {
		log.Printf("read document error: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    "document_unavailable",
			"message": "document unavailable",
		})
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (s *Server) dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	var d presenter.Dashboard
	if !s.cache.Get(ctx, &d) {
		doc, err := s.store.Load()
		if err != nil {
			log.Printf("load document error: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"code":    "document_unavailable",
				"message": "document unavailable",
			})
			return
		}
		d = presenter.BuildDashboard(doc)
		s.cache.Set(ctx, d)
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    d,
	})
}

func (s *Server) listSnapshots(c *gin.Context) {
	if s.mirror == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "not_enabled",
			"message": "history mirror is not configured",
		})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "31"))
	if err != nil || limit <= 0 {
		limit = 31
	}

	list, err := s.mirror.ListSnapshots(c.Request.Context(), limit)
	if err != nil {
		log.Printf("list snapshots error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    list,
	})
}

func (s *Server) refresh(c *gin.Context) {
	if s.sched == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "not_enabled",
			"message": "scheduled aggregation is not enabled",
		})
		return
	}

	dryRun := c.Query("dry_run") == "true"
	// 请求方断开不应中断已开始的采集，否则整轮结果作废
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), scheduler.RunDeadline)
	defer cancel()
	res, err := s.sched.RunOnce(ctx, aggregator.RunOptions{DryRun: dryRun})
	switch {
	case errors.Is(err, scheduler.ErrBusy), errors.Is(err, storage.ErrLocked):
		c.JSON(http.StatusConflict, gin.H{
			"code":    "busy",
			"message": err.Error(),
		})
		return
	case err != nil:
		log.Printf("refresh error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "aggregate_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    res,
	})
}
