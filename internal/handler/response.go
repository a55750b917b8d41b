package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/geocheck/attendance-server-go/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeError logs server-side failures before rendering err. Client errors
// are already visible in the request log line.
func writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if status := httputil.StatusFromError(err); status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg(msg)
	}
	httputil.WriteError(w, err)
}
