package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"StayDesk/internal/config"
	"StayDesk/internal/http-server/handlers/errors"
	"StayDesk/internal/http-server/handlers/room"
	"StayDesk/internal/http-server/middleware/authenticate"
	"StayDesk/internal/http-server/middleware/timeout"
	"StayDesk/internal/lib/api/response"
	"StayDesk/internal/lib/sl"
	"StayDesk/internal/service/auth"
	"StayDesk/internal/ws"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

// Handler is everything the REST surface needs from the service layer.
type Handler interface {
	room.Core
}

// New builds the router and serves it. Blocking. The websocket endpoint
// authenticates inside the upgrade flow, everything under /api/v1 goes
// through the Bearer middleware.
func New(conf *config.Config, log *slog.Logger, authService *auth.Service, hub *ws.Hub, handler Handler) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := chi.NewRouter()
	router.Use(timeout.Timeout(5))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, authService, log, w, r)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, response.Ok("ok"))
	})

	router.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(render.SetContentType(render.ContentTypeJSON))
		v1.Use(authenticate.New(log, authService))

		v1.Route("/rooms", func(r chi.Router) {
			r.Get("/", room.List(log, handler))
			r.Get("/{room_id}/messages", room.Messages(log, handler))
		})
	})

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:  router,
		ErrorLog: httpLog,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIP, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}
