package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uat-crowdtest-api/internal/models"
	"github.com/noah-isme/uat-crowdtest-api/internal/service"
	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
	"github.com/noah-isme/uat-crowdtest-api/pkg/logger"
)

type tokenStub struct {
	claims *models.JWTClaims
	err    error
	seen   string
}

func (s *tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	s.seen = token
	return s.claims, s.err
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Data struct {
			Error string `json:"error"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data.Error
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &tokenStub{err: appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")}
	r := gin.New()
	r.GET("/", JWT(stub), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer token"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.Equal(t, "UNAUTHORIZED", errorCode(t, w), header)
	}
	assert.Equal(t, "token", stub.seen)
}

func TestJWTStoresClaimsAndActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &tokenStub{claims: &models.JWTClaims{UserID: "worker-1", Role: models.RoleCrowdworker}}
	r := gin.New()
	var actor models.Actor
	var logged string
	r.GET("/", JWT(stub), func(c *gin.Context) {
		actor = ClaimsFrom(c).Actor()
		logged = c.GetString(logger.ActorKey)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer abc")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.Actor{ID: "worker-1", Role: models.RoleCrowdworker}, actor)
	assert.Equal(t, "worker-1", logged)
}

func TestRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		claims *models.JWTClaims
		want   int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"qa allowed", &models.JWTClaims{UserID: "qa-1", Role: models.RoleQASpecialist}, http.StatusOK},
		{"admin bypass", &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}, http.StatusOK},
		{"worker refused", &models.JWTClaims{UserID: "w", Role: models.RoleCrowdworker}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/", func(c *gin.Context) {
				if tc.claims != nil {
					c.Set(ContextUserKey, tc.claims)
				}
				c.Next()
			}, RequireRoles(models.RoleQASpecialist), func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestAuditMetaAttachesRequestDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var meta service.RequestMeta
	r.GET("/", AuditMeta(), func(c *gin.Context) {
		meta = service.RequestMetaFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	req.Header.Set("User-Agent", "uat-cli/1.0")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.0.2.10", meta.IPAddress)
	assert.Equal(t, "uat-cli/1.0", meta.UserAgent)
}

func TestMetricsObservesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/tasks/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tasks/abc", nil))

	out := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, out.Body.String(), `path="/tasks/:id"`)
	assert.Contains(t, out.Body.String(), `status="418"`)
}
