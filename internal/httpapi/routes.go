package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/TalkingPanda0/epochtal/internal/bus"
	"github.com/TalkingPanda0/epochtal/internal/lobby"
	"github.com/TalkingPanda0/epochtal/internal/ws"
)

func SetupRoutes(reg *lobby.Registry, b *bus.Memory, log *zap.Logger) http.Handler {
	a := &api{reg: reg, log: log}
	r := chi.NewRouter()

	r.Route("/api/lobbies", func(r chi.Router) {
		r.Get("/", a.list)
		r.Post("/", a.create)
		r.Get("/{name}", a.get)
		r.Get("/{name}/data", a.getData)
		r.Post("/{name}/join", a.join)
		r.Post("/{name}/rename", a.rename)
		r.Post("/{name}/password", a.password)
		r.Post("/{name}/map", a.setMap)
		r.Post("/{name}/ready", a.ready)
	})
	r.Get("/ws/lobbies/{name}", ws.Handler(b, log))
	r.Get("/healthz", healthz)
	return r
}
