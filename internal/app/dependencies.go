package app

import (
	"github.com/nfrund/walletchat/internal/api"
	"github.com/nfrund/walletchat/internal/history"
	"github.com/nfrund/walletchat/internal/identity"
	"github.com/nfrund/walletchat/internal/pubsub"
	"github.com/nfrund/walletchat/internal/ratelimit"
	"github.com/nfrund/walletchat/internal/rooms"
	"github.com/nfrund/walletchat/internal/session"
	"github.com/nfrund/walletchat/internal/transport"
)

// Dependencies holds the core services the session is built from.
type Dependencies struct {
	Rooms     *rooms.Registry
	History   *history.Store
	Identity  *identity.Store
	Limiter   *ratelimit.Limiter
	Transport *transport.Manager
	API       *api.Client
	Bus       *pubsub.WatermillBridge
}

// sessionDeps creates the dependency struct for the session controller.
func sessionDeps(deps Dependencies) session.Dependencies {
	return session.Dependencies{
		Rooms:     deps.Rooms,
		History:   deps.History,
		Identity:  deps.Identity,
		Limiter:   deps.Limiter,
		Transport: deps.Transport,
		API:       deps.API,
		Publisher: deps.Bus,
	}
}
