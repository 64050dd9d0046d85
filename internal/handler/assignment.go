package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/KurtChenkoyu/lexicraft/internal/assign"
	"github.com/KurtChenkoyu/lexicraft/internal/contract"
	"github.com/KurtChenkoyu/lexicraft/internal/db"
	"github.com/KurtChenkoyu/lexicraft/internal/srs"
)

// GetAssignment returns the learner's cohort, creating it on first use so
// the caller always sees a concrete algorithm.
func (h *Handler) GetAssignment(c echo.Context) error {
	learnerID, err := GetUserIDFromToken(c)
	if err != nil {
		return err
	}

	assignment, err := h.assigner.Assign(learnerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to resolve assignment").WithInternal(err)
	}

	eligible, err := h.assigner.MigrationEligible(learnerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to check eligibility").WithInternal(err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"assignment":         assignment,
		"migration_eligible": eligible,
	})
}

// MigrateAssignment performs the one-time supervised switch to the other
// algorithm, with payload estimation. Rejected with the reason when the
// learner is not yet eligible.
func (h *Handler) MigrateAssignment(c echo.Context) error {
	learnerID, err := GetUserIDFromToken(c)
	if err != nil {
		return err
	}

	req := new(contract.MigrateRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.assigner.Migrate(learnerID, srs.Algorithm(req.Target)); err != nil {
		switch {
		case errors.Is(err, assign.ErrNotEligible):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, assign.ErrAlreadyAssigned):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, db.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "No assignment for learner")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to migrate").WithInternal(err)
		}
	}

	assignment, err := h.assigner.Assign(learnerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch assignment").WithInternal(err)
	}

	return c.JSON(http.StatusOK, assignment)
}
