package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("%w: question 12", ErrSectionLocked)
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, ErrSectionLocked))
	assert.Equal(t, KindSchedulingConflict, KindOf(ErrTestNotAvailable))
	assert.Equal(t, KindInvalid, KindOf(Invalidf("bad section %d", 3)))
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestFromError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		code int
	}{
		{ErrAttemptNotFound, http.StatusNotFound},
		{ErrMaxAttempts, http.StatusConflict},
		{ErrTestNotAvailable, http.StatusConflict},
		{Invalidf("marks must be a number"), http.StatusBadRequest},
		{ErrResultsHidden, http.StatusForbidden},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		FromError(c, tc.err)
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
	}
}

func TestErrorJSONHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		write func(*gin.Context)
		code  int
		msg   string
	}{
		{func(c *gin.Context) { ErrorJSON(c, http.StatusServiceUnavailable, "Redis unavailable") }, http.StatusServiceUnavailable, "Redis unavailable"},
		{Unauthorized, http.StatusUnauthorized, "Unauthorized"},
		{Forbidden, http.StatusForbidden, "Forbidden"},
		{func(c *gin.Context) { BadRequest(c, "invalid id") }, http.StatusBadRequest, "invalid id"},
		{InternalServerError, http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		tc.write(c)

		var res Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, tc.code, w.Code)
		assert.Equal(t, tc.code, res.Code)
		assert.Equal(t, tc.msg, res.Message)
		assert.Nil(t, res.Data)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(42, 3, RoleTeacher, "secret", time.Minute)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret", "")
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, uint(3), claims.TenantID)
	assert.True(t, claims.IsStaff())

	_, err = ParseJWT(token, "other", "")
	assert.Error(t, err)

	expired, err := GenerateJWT(42, 3, RoleStudent, "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "secret", "")
	assert.Error(t, err)
}

func TestParseIndex(t *testing.T) {
	n, ok := ParseIndex("2")
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	_, ok = ParseIndex("-1")
	assert.False(t, ok)
	_, ok = ParseIndex("x")
	assert.False(t, ok)
}
