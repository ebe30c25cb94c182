package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/spamguard-go/internal/api/v2/auth"
	"github.com/tphakala/spamguard-go/internal/datastore"
)

// maxHistoryLimit caps ?limit= on GET /api/history.
const maxHistoryLimit = 500

// HistoryResponse lists history entries, newest first.
type HistoryResponse struct {
	Success bool                      `json:"success"`
	History []datastore.SearchHistory `json:"history"`
	Count   int                       `json:"count"`
}

// GetHistory returns the caller's recent classifications.
func (c *Controller) GetHistory(ctx echo.Context) error {
	limit := datastore.DefaultHistoryLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return respondError(ctx, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxHistoryLimit)
	}

	userID, _ := auth.UserID(ctx)
	history, err := c.history.GetUserHistory(ctx.Request().Context(), userID, limit)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	if history == nil {
		history = []datastore.SearchHistory{}
	}
	return ctx.JSON(http.StatusOK, HistoryResponse{Success: true, History: history, Count: len(history)})
}

// GetHistoryStats summarises the caller's history.
func (c *Controller) GetHistoryStats(ctx echo.Context) error {
	userID, _ := auth.UserID(ctx)
	stats, err := c.history.GetUserStats(ctx.Request().Context(), userID)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
	})
}

// DeleteHistoryItem removes one of the caller's entries.
func (c *Controller) DeleteHistoryItem(ctx echo.Context) error {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return respondError(ctx, http.StatusBadRequest, "Invalid history ID")
	}

	userID, _ := auth.UserID(ctx)
	deleted, err := c.history.DeleteHistoryItem(ctx.Request().Context(), userID, uint(id))
	if err != nil {
		return c.HandleError(ctx, err)
	}
	if !deleted {
		return respondError(ctx, http.StatusNotFound, "History item not found")
	}
	return ctx.JSON(http.StatusOK, map[string]any{"success": true})
}

// ClearHistory removes every entry of the caller.
func (c *Controller) ClearHistory(ctx echo.Context) error {
	userID, _ := auth.UserID(ctx)
	n, err := c.history.ClearUserHistory(ctx.Request().Context(), userID)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"success": true,
		"deleted": n,
	})
}
