package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/derivhub/relay/internal/account"
	"github.com/derivhub/relay/internal/hub"
)

// Downstream inbound event names.
const (
	eventJoinAssetRoom  = "joinAssetRoom"
	eventLeaveAssetRoom = "leaveAssetRoom"
	eventPurchaseTrade  = "purchaseTrade"
	eventFetchBalance   = "fetchBalance"
	eventTopUpWallet    = "topUpWallet"
	// Spelling matches the downstream wire contract.
	eventHistoryRequest = "transcationHistoryRequest"
)

// clientFrame is one inbound downstream event.
type clientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// userPayload identifies an account-scoped request.
type userPayload struct {
	LoginID string `json:"loginid" validate:"required"`
	Token   string `json:"token" validate:"required"`
}

// tradePayload is the typed slice of a purchase request. The full
// payload is forwarded upstream as-is minus the credential.
type tradePayload struct {
	LoginID string  `json:"loginid" validate:"required"`
	Token   string  `json:"token" validate:"required"`
	Amount  float64 `json:"amount" validate:"required,gt=0"`
}

// handleWS upgrades a downstream connection and pumps its event frames.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := g.hub.Register(conn)
	defer g.hub.Unregister(client)

	log := g.logger.With("client_id", client.ID())
	log.Info("downstream client connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Info("downstream client disconnected", "error", err)
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn("malformed client frame, ignoring", "error", err)
			continue
		}

		g.dispatch(client, frame, log)
	}
}

// dispatch routes one client event to the owning component. Invalid
// payloads are logged and dropped; the flow never starts.
func (g *Gateway) dispatch(client *hub.Client, frame clientFrame, log *slog.Logger) {
	switch frame.Event {
	case eventJoinAssetRoom:
		symbol, ok := g.decodeSymbol(frame, log)
		if !ok {
			return
		}
		g.hub.Join(symbol, client.ID())
		go func() {
			if err := g.feed.Subscribe(g.flowCtx, symbol); err != nil {
				log.Warn("asset subscribe failed", "symbol", symbol, "error", err)
			}
		}()

	case eventLeaveAssetRoom:
		symbol, ok := g.decodeSymbol(frame, log)
		if !ok {
			return
		}
		g.hub.Leave(symbol, client.ID())
		g.feed.Unsubscribe(symbol)

	case eventPurchaseTrade:
		var p tradePayload
		if !g.decodeAndValidate(frame, &p, log) {
			return
		}
		proposal, ok := g.stripToken(frame.Data, log)
		if !ok {
			return
		}
		g.account.Spawn(func() {
			g.account.Purchase(g.flowCtx, account.PurchaseParams{
				LoginID:  p.LoginID,
				Token:    p.Token,
				Amount:   p.Amount,
				Proposal: proposal,
			})
		})

	case eventFetchBalance:
		var p userPayload
		if !g.decodeAndValidate(frame, &p, log) {
			return
		}
		g.hub.Join(p.LoginID, client.ID())
		g.account.Spawn(func() { g.account.FetchBalance(g.flowCtx, p.LoginID, p.Token) })

	case eventTopUpWallet:
		var p userPayload
		if !g.decodeAndValidate(frame, &p, log) {
			return
		}
		g.hub.Join(p.LoginID, client.ID())
		g.account.Spawn(func() { g.account.TopUp(g.flowCtx, p.LoginID, p.Token) })

	case eventHistoryRequest:
		var p userPayload
		if !g.decodeAndValidate(frame, &p, log) {
			return
		}
		request, ok := g.stripToken(frame.Data, log)
		if !ok {
			return
		}
		g.hub.Join(p.LoginID, client.ID())
		g.account.Spawn(func() {
			g.account.History(g.flowCtx, account.HistoryParams{
				LoginID: p.LoginID,
				Token:   p.Token,
				Request: request,
			})
		})

	default:
		log.Debug("unknown client event", "event", frame.Event)
	}
}

// decodeSymbol reads a bare-string symbol payload.
func (g *Gateway) decodeSymbol(frame clientFrame, log *slog.Logger) (string, bool) {
	var symbol string
	if err := json.Unmarshal(frame.Data, &symbol); err != nil || symbol == "" {
		log.Warn("invalid symbol payload", "event", frame.Event)
		return "", false
	}
	return symbol, true
}

// decodeAndValidate unmarshals a typed payload and runs struct validation.
func (g *Gateway) decodeAndValidate(frame clientFrame, v any, log *slog.Logger) bool {
	if err := json.Unmarshal(frame.Data, v); err != nil {
		log.Warn("malformed event payload", "event", frame.Event, "error", err)
		return false
	}
	if err := g.validate.Struct(v); err != nil {
		log.Warn("invalid event payload", "event", frame.Event, "error", err)
		return false
	}
	return true
}

// stripToken returns the payload as a map with the credential removed,
// ready to forward upstream.
func (g *Gateway) stripToken(data json.RawMessage, log *slog.Logger) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn("malformed event payload", "error", err)
		return nil, false
	}
	delete(m, "token")
	return m, true
}
