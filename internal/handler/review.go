package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/KurtChenkoyu/lexicraft/internal/contract"
	"github.com/KurtChenkoyu/lexicraft/internal/db"
	"github.com/KurtChenkoyu/lexicraft/internal/review"
)

// SubmitReview records one graded MCQ answer and returns the learner-facing
// scheduling result. Conflicts and lock contention come back 409 with a
// retryable marker; the review was not recorded and may be resubmitted.
func (h *Handler) SubmitReview(c echo.Context) error {
	learnerID, err := GetUserIDFromToken(c)
	if err != nil {
		return err
	}

	req := new(contract.SubmitReviewRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.pipeline.Submit(c.Request().Context(), review.Event{
		LearnerID:      learnerID,
		SenseID:        req.SenseID,
		IsCorrect:      *req.IsCorrect,
		ResponseTimeMs: req.ResponseTimeMs,
	})
	if err != nil {
		switch {
		case errors.Is(err, review.ErrInvalidEvent):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, review.ErrBusy), errors.Is(err, db.ErrConflict):
			return c.JSON(http.StatusConflict, contract.ErrorResponse{
				Error:     "Review not recorded, please retry",
				Retryable: true,
			})
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process review").WithInternal(err)
		}
	}

	stats, err := h.db.GetLearnerStats(learnerID, time.Now())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch stats").WithInternal(err)
	}

	return c.JSON(http.StatusOK, contract.SubmitReviewResponse{
		Result: result,
		Stats:  stats,
	})
}

// GetDueCards returns the learner's due queue, soonest first, for the MCQ
// layer to draw questions from.
func (h *Handler) GetDueCards(c echo.Context) error {
	learnerID, err := GetUserIDFromToken(c)
	if err != nil {
		return err
	}

	limit := 20
	states, err := h.db.GetDueStates(learnerID, time.Now(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch due cards").WithInternal(err)
	}

	responses := make([]contract.DueCardResponse, 0, len(states))
	for _, cs := range states {
		responses = append(responses, contract.FormatDueCard(cs))
	}

	return c.JSON(http.StatusOK, responses)
}
