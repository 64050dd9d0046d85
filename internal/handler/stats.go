package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/KurtChenkoyu/lexicraft/internal/contract"
	"github.com/KurtChenkoyu/lexicraft/internal/srs"
)

func (h *Handler) GetLearnerStats(c echo.Context) error {
	learnerID, err := GetUserIDFromToken(c)
	if err != nil {
		return err
	}

	stats, err := h.db.GetLearnerStats(learnerID, time.Now())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch statistics").WithInternal(err)
	}

	return c.JSON(http.StatusOK, stats)
}

// GetCohortStats returns the per-algorithm comparison metrics. Aggregation
// only; the scheduling rows are the source of truth.
func (h *Handler) GetCohortStats(c echo.Context) error {
	if _, err := GetUserIDFromToken(c); err != nil {
		return err
	}

	resp := contract.CohortComparisonResponse{}
	for _, alg := range []srs.Algorithm{srs.AlgorithmSM2, srs.AlgorithmFSRS} {
		stats, err := h.db.GetCohortStats(alg)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch cohort stats").WithInternal(err)
		}
		resp.Cohorts = append(resp.Cohorts, stats)
	}

	return c.JSON(http.StatusOK, resp)
}
