package http

import (
	"log/slog"
	"net/http"

	"calendarshare/internal/delivery/http/controllers"
	"calendarshare/internal/delivery/http/helpers"
	"calendarshare/internal/delivery/http/middleware"
	"calendarshare/internal/domain"

	httpSwagger "github.com/swaggo/http-swagger"
)

// NewRouter initializes the HTTP router with all application routes
func NewRouter(
	eventController *controllers.EventController,
	userController *controllers.UserController,
	verifier domain.TokenVerifier,
	users middleware.UserLoader,
	logger *slog.Logger,
) *http.ServeMux {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(verifier, users, logger)

	// Accounts
	mux.HandleFunc("POST /users", userController.SignUp)
	mux.HandleFunc("POST /sessions", userController.Login)
	mux.HandleFunc("PUT /users", auth(userController.UpdateMe))

	// Events
	mux.HandleFunc("GET /events", auth(eventController.ListEvents))
	mux.HandleFunc("POST /events", auth(eventController.CreateEvent))
	mux.HandleFunc("GET /events/{eventID}", auth(eventController.GetEvent))
	mux.HandleFunc("PUT /events/{eventID}", auth(eventController.UpdateEvent))
	mux.HandleFunc("PATCH /events/{eventID}", auth(eventController.UpdateEvent))
	mux.HandleFunc("DELETE /events/{eventID}", auth(eventController.DeleteEvent))
	mux.HandleFunc("POST /events/{eventID}/share", auth(eventController.ShareEvent))
	mux.HandleFunc("GET /events/{eventID}/ics", auth(eventController.ExportEvent))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
