package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessment_backend/internal/config"
)

var pathParam = regexp.MustCompile(`:(\w+)`)

func TestSwaggerDocumentsRegisteredRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	a := &App{}
	a.registerRoutes(router, &controllers{}, &config.Config{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		BasePath string                                `json:"basePath"`
		Paths    map[string]map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "/", doc.BasePath)

	for _, r := range router.Routes() {
		if strings.HasPrefix(r.Path, "/swagger") || r.Path == "/metrics" || r.Path == "/api/health" {
			continue
		}
		path := pathParam.ReplaceAllString(r.Path, "{$1}")
		assert.Contains(t, doc.Paths[path], strings.ToLower(r.Method), "%s %s is undocumented", r.Method, path)
	}
}
