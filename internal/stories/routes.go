package stories

import (
	"github.com/gorilla/mux"
	"github.com/imadgeboyega/kiekky-stories/internal/auth"
)

func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware *auth.Middleware) {
	// Protected routes
	api := router.PathPrefix("/api/v1/stories").Subrouter()
	api.Use(authMiddleware.Authenticate)

	// Feed
	api.HandleFunc("/feed", handler.GetFeed).Methods("GET")

	// Story management
	api.HandleFunc("/{id}", handler.DeleteStory).Methods("DELETE")

	// Story interactions
	api.HandleFunc("/{id}/view", handler.ViewStory).Methods("POST")
	api.HandleFunc("/{id}/reply", handler.ReplyToStory).Methods("POST")
	api.HandleFunc("/{id}/views", handler.GetStoryViews).Methods("GET")
	api.HandleFunc("/{id}/replies", handler.GetStoryReplies).Methods("GET")
}
