package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/spamguard-go/internal/api/v2/auth"
	"github.com/tphakala/spamguard-go/internal/classifier"
)

// PredictRequest is the body of POST /api/predict/:type.
type PredictRequest struct {
	Text string `json:"text"`
}

// Predict classifies the posted text with the model named by :type.
// Signed-in callers get the result added to their history.
func (c *Controller) Predict(ctx echo.Context) error {
	t, err := classifier.ParseContentType(ctx.Param("type"))
	if err != nil {
		return respondError(ctx, http.StatusNotFound, "Unknown content type: "+ctx.Param("type"))
	}

	// a missing or malformed body is classified as empty text and rejected by validation
	var req PredictRequest
	_ = ctx.Bind(&req)

	var userID *uint
	if id, ok := auth.UserID(ctx); ok {
		userID = &id
	}

	result, err := c.detector.Classify(ctx.Request().Context(), t, req.Text, userID)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

// GetModelMetrics returns the evaluation scores of every model.
func (c *Controller) GetModelMetrics(ctx echo.Context) error {
	if c.models == nil {
		return ctx.JSON(http.StatusOK, classifier.DefaultEvaluation())
	}
	return ctx.JSON(http.StatusOK, c.models.Evaluation())
}
