package testutils

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/KurtChenkoyu/lexicraft/internal/assign"
	"github.com/KurtChenkoyu/lexicraft/internal/contract"
	"github.com/KurtChenkoyu/lexicraft/internal/db"
	"github.com/KurtChenkoyu/lexicraft/internal/handler"
	"github.com/KurtChenkoyu/lexicraft/internal/middleware"
	"github.com/KurtChenkoyu/lexicraft/internal/review"
)

const (
	TestJWTSecret = "hello-world"
	TestDBPath    = ":memory:" // in-memory SQLite for tests
)

// CustomValidator implements the echo.Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// SetupDB opens a fresh in-memory store with the schema applied.
func SetupDB(t *testing.T) *db.Storage {
	t.Helper()

	storage, err := db.ConnectDB(TestDBPath)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := storage.UpdateSchema(); err != nil {
		t.Fatalf("Failed to update schema: %v", err)
	}
	t.Cleanup(func() {
		if err := storage.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
	})
	return storage
}

// SetupHandlerDependencies wires a full echo app over a fresh store. The
// assignment draw is seeded deterministically so tests can predict cohorts.
func SetupHandlerDependencies(t *testing.T, randSeed int64) (*echo.Echo, *db.Storage) {
	t.Helper()

	storage := SetupDB(t)
	logr := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	assigner := assign.New(storage, assign.DefaultConfig(), logr, rand.NewSource(randSeed))
	pipeline := review.New(storage, assigner, review.DefaultConfig(), logr)

	h := handler.New(storage, pipeline, assigner, TestJWTSecret)

	e := echo.New()
	middleware.Setup(e, logr)
	e.Validator = &CustomValidator{validator: validator.New()}
	h.RegisterRoutes(e)

	return e, storage
}

// TokenFor issues a signed learner token the way the external auth layer
// would.
func TokenFor(t *testing.T, learnerID string) string {
	t.Helper()

	claims := contract.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UID: learnerID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(TestJWTSecret))
	if err != nil {
		t.Fatalf("Failed to sign test token: %v", err)
	}
	return signed
}

func PerformRequest(t *testing.T, e *echo.Echo, method, path, body, token string, expectedStatus int) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != expectedStatus {
		t.Errorf("Expected status %d, got %d, body: %s", expectedStatus, rec.Code, rec.Body.String())
	}
	return rec
}

func ParseResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var result T
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	return result
}
