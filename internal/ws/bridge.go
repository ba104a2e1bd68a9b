package ws

import (
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"StayDesk/internal/lib/sl"
)

const (
	roomSubjectPrefix     = "staydesk.room."
	identitySubjectPrefix = "staydesk.user."
)

// bridgeEnvelope wraps a relayed event with the id of the instance that
// published it, so the origin skips its own re-delivery.
type bridgeEnvelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// Bridge republishes room- and identity-scoped events over NATS so sessions
// connected to other instances receive them too. Delivery stays best-effort:
// a lost relay message is recovered by history refetch, not redelivery.
type Bridge struct {
	nc     *nats.Conn
	hub    *Hub
	origin string
	log    *slog.Logger
}

// NewBridge subscribes the hub to the shared event subjects and returns the
// relay. The caller wires it into the hub with SetRelay.
func NewBridge(nc *nats.Conn, hub *Hub, log *slog.Logger) (*Bridge, error) {
	b := &Bridge{
		nc:     nc,
		hub:    hub,
		origin: uuid.NewString(),
		log:    log.With(sl.Module("ws.bridge")),
	}

	if _, err := nc.Subscribe(roomSubjectPrefix+"*", func(msg *nats.Msg) {
		var env bridgeEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil || env.Origin == b.origin {
			return
		}
		roomID := msg.Subject[len(roomSubjectPrefix):]
		b.hub.DeliverToRoom(roomID, &env.Event)
	}); err != nil {
		return nil, err
	}

	if _, err := nc.Subscribe(identitySubjectPrefix+"*", func(msg *nats.Msg) {
		var env bridgeEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil || env.Origin == b.origin {
			return
		}
		identityID := msg.Subject[len(identitySubjectPrefix):]
		b.hub.DeliverToIdentity(identityID, &env.Event)
	}); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Bridge) RelayToRoom(roomID string, event *Event) {
	b.relay(roomSubjectPrefix+roomID, event)
}

func (b *Bridge) RelayToIdentity(identityID string, event *Event) {
	b.relay(identitySubjectPrefix+identityID, event)
}

func (b *Bridge) relay(subject string, event *Event) {
	data, err := json.Marshal(bridgeEnvelope{Origin: b.origin, Event: *event})
	if err != nil {
		return
	}
	if err := b.nc.Publish(subject, data); err != nil {
		b.log.Warn("relay publish failed", slog.String("subject", subject), sl.Err(err))
	}
}
