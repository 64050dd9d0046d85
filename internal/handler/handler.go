package handler

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/KurtChenkoyu/lexicraft/internal/assign"
	"github.com/KurtChenkoyu/lexicraft/internal/contract"
	"github.com/KurtChenkoyu/lexicraft/internal/db"
	"github.com/KurtChenkoyu/lexicraft/internal/middleware"
	"github.com/KurtChenkoyu/lexicraft/internal/review"
)

type Handler struct {
	db        *db.Storage
	pipeline  *review.Pipeline
	assigner  *assign.Service
	jwtSecret string
}

func New(
	db *db.Storage,
	pipeline *review.Pipeline,
	assigner *assign.Service,
	jwtSecret string,
) *Handler {
	return &Handler{
		db:        db,
		pipeline:  pipeline,
		assigner:  assigner,
		jwtSecret: jwtSecret,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	v1 := e.Group("/v1")

	v1.Use(echojwt.WithConfig(middleware.GetUserAuthConfig(h.jwtSecret)))

	v1.POST("/reviews", h.SubmitReview)
	v1.GET("/reviews/due", h.GetDueCards)

	v1.GET("/assignment", h.GetAssignment)
	v1.POST("/assignment/migrate", h.MigrateAssignment)

	v1.GET("/stats", h.GetLearnerStats)
	v1.GET("/stats/cohorts", h.GetCohortStats)
}

func GetUserIDFromToken(c echo.Context) (string, error) {
	user, ok := c.Get("user").(*jwt.Token)
	if !ok || user == nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}

	claims, ok := user.Claims.(*contract.JWTClaims)
	if !ok || claims == nil || claims.UID == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
	}

	return claims.UID, nil
}
