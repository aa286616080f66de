package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"payflow/pkg/response"

	"github.com/gin-gonic/gin"
)

const checkTimeout = 2 * time.Second

// Checker 单个依赖的健康检查
type Checker func(ctx context.Context) error

// HealthHandler 并发执行所有依赖检查
type HealthHandler struct {
	checks map[string]Checker
}

func NewHealthHandler(checks map[string]Checker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health 返回各依赖状态，任一失败时 503
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		healthy = true
		status  = make(map[string]string, len(h.checks))
	)

	for name, check := range h.checks {
		wg.Add(1)
		go func(name string, check Checker) {
			defer wg.Done()

			result := "ok"
			if err := check(ctx); err != nil {
				result = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			status[name] = result
			if result != "ok" {
				healthy = false
			}
		}(name, check)
	}
	wg.Wait()

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, response.Response{
			Success:    false,
			Message:    "Service unhealthy",
			StatusCode: http.StatusServiceUnavailable,
			Data:       status,
		})
		return
	}
	response.Success(c, status)
}
