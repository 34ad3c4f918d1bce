// README: API gateway; wires the chat, map and history handlers behind the session middleware.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"chatmap/internal/http/handlers"
	"chatmap/internal/infra"
	"chatmap/internal/modules/history"
	"chatmap/internal/modules/turn"
)

type ServerDeps struct {
	Sessions  *turn.Manager
	Endpoints handlers.Endpoints
	// Optional dependencies; nil disables the matching feature.
	History  history.Store
	Nearby   handlers.NearbyFinder
	Verifier infra.TokenVerifier
	Metrics  prometheus.Gatherer
	Logger   logrus.FieldLogger
}

type Server struct {
	chat     *handlers.ChatHandler
	maps     *handlers.MapHandler
	history  *handlers.HistoryHandler
	verifier infra.TokenVerifier
	metrics  prometheus.Gatherer
	log      logrus.FieldLogger
}

func NewServer(deps ServerDeps) *Server {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		chat:     handlers.NewChatHandler(deps.Sessions, deps.Endpoints, log),
		maps:     handlers.NewMapHandler(deps.Sessions, deps.Nearby),
		history:  handlers.NewHistoryHandler(deps.History),
		verifier: deps.Verifier,
		metrics:  deps.Metrics,
		log:      log,
	}
}
