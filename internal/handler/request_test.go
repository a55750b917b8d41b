package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/geocheck/attendance-server-go/internal/errors"
	"github.com/geocheck/attendance-server-go/internal/httputil"
)

func TestDecodeJSON(t *testing.T) {
	t.Run("body cut off by the size limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/checkins", strings.NewReader(`{"sessionId":"`+strings.Repeat("x", 64)+`"}`))
		req.Body = http.MaxBytesReader(httptest.NewRecorder(), req.Body, 16)

		var dst submitCheckinRequest
		err := decodeJSON(req, &dst)

		assert.True(t, apperrors.Is(err, apperrors.ErrCodePayloadTooLarge))
		assert.Equal(t, http.StatusRequestEntityTooLarge, httputil.StatusFromError(err))
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/checkins", strings.NewReader(`{"sessionId":`))

		var dst submitCheckinRequest
		assert.True(t, apperrors.Is(decodeJSON(req, &dst), apperrors.ErrCodeValidation))
	})
}
