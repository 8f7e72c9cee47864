// internal/player/handlers.go

package player

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/imadgeboyega/kiekky-stories/internal/auth"
	"github.com/imadgeboyega/kiekky-stories/internal/common/utils"
	"github.com/imadgeboyega/kiekky-stories/internal/playback"
	"github.com/rs/zerolog"
)

type Handler struct {
	hub      *Hub
	stories  StoryService
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// LineupResponse is the carousel a session would play and where it would start
type LineupResponse struct {
	Stories    []playback.Story `json:"stories"`
	StartIndex int              `json:"start_index"`
}

func NewHandler(hub *Hub, svc StoryService, allowedOrigins []string, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:     hub,
		stories: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

// originChecker allows requests without an Origin header (native apps) and
// browsers on the configured origins
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// GetLineup returns the viewer's lineup and start index without opening a session
func (h *Handler) GetLineup(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	lineup, err := h.stories.FetchStories(r.Context(), viewerID)
	if err != nil {
		h.logger.Error().Err(err).Int64("viewer_id", viewerID).Msg("Failed to fetch lineup")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get stories")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, LineupResponse{
		Stories:    lineup,
		StartIndex: h.hub.StartIndex(r.Context(), viewerID, lineup, r.URL.Query().Get("owner")),
	})
}

// ServeWS upgrades the connection and starts a playback session
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	lineup, err := h.stories.FetchStories(r.Context(), viewerID)
	if err != nil {
		h.logger.Error().Err(err).Int64("viewer_id", viewerID).Msg("Failed to fetch lineup")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get stories")
		return
	}
	if len(lineup) == 0 {
		utils.RespondWithError(w, http.StatusNotFound, "No stories to play")
		return
	}
	start := h.hub.StartIndex(r.Context(), viewerID, lineup, r.URL.Query().Get("owner"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.hub.Open(conn, viewerID, lineup, start)
}
