package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lykimq/MoneyWise/pkg/budget"
)

const healthTimeout = 2 * time.Second

func (h *handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok"}

	if h.database != nil {
		if err := h.database.Ping(ctx); err != nil {
			h.logger.Error().Err(err).Msg("Database health check failed")
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
			body["database"] = "down"
		} else {
			body["database"] = "ok"
		}
	}

	// The cache is optional: reads fall back to the database.
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("Cache health check failed")
			body["cache"] = "down"
			if status == http.StatusOK {
				body["status"] = "degraded"
			}
		} else {
			body["cache"] = "ok"
		}
	}

	c.JSON(status, body)
}

func (h *handler) listBudgets(c *gin.Context) {
	p, err := h.periodFromQuery(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	summary, err := h.budgets.Summary(c.Request.Context(), p)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeConditional(c, summary)
}

func (h *handler) overview(c *gin.Context) {
	p, err := h.periodFromQuery(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	ov, err := h.budgets.Overview(c.Request.Context(), p)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeConditional(c, ov)
}

func (h *handler) getBudget(c *gin.Context) {
	id, err := budgetID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	b, err := h.budgets.Budget(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeConditional(c, b)
}

func (h *handler) createBudget(c *gin.Context) {
	var req budget.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %v", budget.ErrInvalidRequest, err))
		return
	}

	b, err := h.budgets.Create(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *handler) updateBudget(c *gin.Context) {
	id, err := budgetID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req budget.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %v", budget.ErrInvalidRequest, err))
		return
	}

	b, err := h.budgets.Update(c.Request.Context(), id, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// periodFromQuery reads month, year and currency. Month and year default to
// the current month.
func (h *handler) periodFromQuery(c *gin.Context) (budget.Period, error) {
	cur := budget.CurrentPeriod(h.now())

	month, err := intQuery(c, "month", int(cur.Month))
	if err != nil {
		return budget.Period{}, err
	}
	year, err := intQuery(c, "year", cur.Year)
	if err != nil {
		return budget.Period{}, err
	}

	p, err := budget.NewPeriod(year, time.Month(month), c.Query("currency"))
	if err != nil {
		return budget.Period{}, fmt.Errorf("%w: %v", budget.ErrInvalidRequest, err)
	}
	return p, nil
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", budget.ErrInvalidRequest, name)
	}
	return v, nil
}

func budgetID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid budget id", budget.ErrInvalidRequest)
	}
	return id, nil
}

// writeError maps domain errors to status codes. Unexpected errors are
// logged and reported without details.
func (h *handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error"

	switch {
	case errors.Is(err, budget.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, budget.ErrInvalidRequest), errors.Is(err, budget.ErrInvalidPeriod):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads the response
		status, msg = 499, "Request cancelled"
	default:
		h.logger.Error().
			Err(err).
			Str("path", c.Request.URL.Path).
			Msg("Request failed")
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error":  msg,
		"status": status,
	})
}
