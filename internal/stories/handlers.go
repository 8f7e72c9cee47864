package stories

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/imadgeboyega/kiekky-stories/internal/auth"
	"github.com/imadgeboyega/kiekky-stories/internal/common/utils"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// GetFeed returns the viewer's story carousel
func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	lineup, err := h.service.FetchStories(r.Context(), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get stories")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, FeedResponse{
		Stories: lineup,
		Total:   len(lineup),
	})
}

// ViewStory marks a story as viewed
func (h *Handler) ViewStory(w http.ResponseWriter, r *http.Request) {
	userID, storyID, ok := h.storyRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.ReportView(r.Context(), storyID, userID); err != nil {
		h.respondWithServiceError(w, err, "Failed to record view")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "View recorded"})
}

// ReplyToStory handles story replies and reactions
func (h *Handler) ReplyToStory(w http.ResponseWriter, r *http.Request) {
	userID, storyID, ok := h.storyRequest(w, r)
	if !ok {
		return
	}

	var req StoryReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	reply, err := h.service.ReplyToStory(r.Context(), storyID, userID, &req)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to send reply")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, reply)
}

// DeleteStory deletes a story
func (h *Handler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	userID, storyID, ok := h.storyRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteStory(r.Context(), storyID, userID); err != nil {
		h.respondWithServiceError(w, err, "Failed to delete story")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Story deleted successfully"})
}

// GetStoryViews retrieves views for a story
func (h *Handler) GetStoryViews(w http.ResponseWriter, r *http.Request) {
	userID, storyID, ok := h.storyRequest(w, r)
	if !ok {
		return
	}

	views, err := h.service.GetStoryViews(r.Context(), storyID, userID)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to get story views")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"views": views,
		"total": len(views),
	})
}

// GetStoryReplies retrieves replies for a story
func (h *Handler) GetStoryReplies(w http.ResponseWriter, r *http.Request) {
	userID, storyID, ok := h.storyRequest(w, r)
	if !ok {
		return
	}

	replies, err := h.service.GetStoryReplies(r.Context(), storyID, userID)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to get story replies")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"replies": replies,
		"total":   len(replies),
	})
}

// storyRequest pulls the caller and the {id} path variable, answering the
// request itself when either is missing
func (h *Handler) storyRequest(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return 0, 0, false
	}

	storyID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid story ID")
		return 0, 0, false
	}
	return userID, storyID, true
}

func (h *Handler) respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrStoryNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Story not found")
	case errors.Is(err, ErrStoryExpired):
		utils.RespondWithError(w, http.StatusGone, "Story has expired")
	case errors.Is(err, ErrUnauthorized):
		utils.RespondWithError(w, http.StatusForbidden, "Unauthorized")
	case errors.Is(err, ErrOwnStory), errors.Is(err, ErrInvalidReply):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		var verr *utils.ValidationError
		if errors.As(err, &verr) {
			utils.RespondWithError(w, http.StatusBadRequest, verr.Error())
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, fallback)
	}
}
