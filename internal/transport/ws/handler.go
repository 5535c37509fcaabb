package ws

import (
	"net/http"
	"slices"

	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/internal/metrics"
	"github.com/vedran77/huddle/internal/transport/http/middleware"
	"nhooyr.io/websocket"
)

// ServeWS returns an HTTP handler that upgrades to WebSocket. The identity
// provider accepts ?token=xxx since browsers cannot set headers on upgrade.
// The handler blocks for the lifetime of the connection.
func ServeWS(gw *Gateway, identities middleware.IdentityProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := identities.CurrentUser(r)
		if err != nil {
			http.Error(w, domain.PublicMessage(domain.CodeUnauthenticated), http.StatusUnauthorized)
			return
		}

		opts := &websocket.AcceptOptions{}
		if len(gw.cfg.AllowedOrigins) == 0 || slices.Contains(gw.cfg.AllowedOrigins, "*") {
			opts.InsecureSkipVerify = true
		} else {
			opts.OriginPatterns = gw.cfg.AllowedOrigins
		}

		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			gw.log.Warn().Err(err).Msg("accept failed")
			return
		}

		client := NewClient(gw, conn, *identity)
		gw.hub.Register(client)
		metrics.SocketConnections.Inc()
		client.sendEvent(EventTypeConnected, "", "", ConnectedPayload{
			ConnectionID: client.id,
			UserID:       identity.UserID,
		})

		go client.WritePump(gw.ctx)
		client.ReadPump(gw.ctx)
	}
}
