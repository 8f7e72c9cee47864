// internal/player/routes.go

package player

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/imadgeboyega/kiekky-stories/internal/auth"
)

// sessionOpenLimit caps how many sessions one viewer may open per minute
const sessionOpenLimit = 30

// Routes builds the playback router; mount it under /api/v1/playback
func Routes(handler *Handler, authMiddleware *auth.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(authMiddleware.Authenticate)

	r.Get("/lineup", handler.GetLineup)
	r.With(httprate.Limit(
		sessionOpenLimit,
		time.Minute,
		httprate.WithKeyFuncs(viewerKey),
	)).Get("/ws", handler.ServeWS)

	return r
}

func viewerKey(r *http.Request) (string, error) {
	if id, ok := auth.GetUserIDFromContext(r.Context()); ok {
		return "viewer:" + strconv.FormatInt(id, 10), nil
	}
	return httprate.KeyByIP(r)
}
