package ws

import (
	"github.com/vedran77/huddle/internal/domain"
	"github.com/vedran77/huddle/internal/presence"
)

// HubNotifier implements service.Notifier by broadcasting to the message's
// room. It also relays typing expiry from the presence hub.
type HubNotifier struct {
	gw *Gateway
}

func NewHubNotifier(gw *Gateway) *HubNotifier {
	return &HubNotifier{gw: gw}
}

func (n *HubNotifier) NotifyMessage(msg *domain.Message) {
	n.publish(EventTypeMessage, msg)
}

func (n *HubNotifier) NotifyMessageUpdated(msg *domain.Message) {
	n.publish(EventTypeMessageUpdated, msg)
}

func (n *HubNotifier) NotifyMessageDeleted(msg *domain.Message) {
	n.publish(EventTypeMessageDeleted, msg)
}

func (n *HubNotifier) NotifyReaction(msg *domain.Message) {
	n.publish(EventTypeReaction, msg)
}

func (n *HubNotifier) publish(eventType string, msg *domain.Message) {
	data, err := encodeEvent(eventType, msg.Kind, msg.ParentID, messagePayload(msg))
	if err != nil {
		n.gw.log.Error().Err(err).Str("type", eventType).Msg("notifier: marshal error")
		return
	}
	n.gw.broadcast(domain.RoomID(msg.Kind, msg.ParentID), data)
}

// TypingStopped is registered as the hub's typing-stopped hook.
func (n *HubNotifier) TypingStopped(roomID string, user presence.TypingUser) {
	kind, parentID, ok := domain.ParseRoomID(roomID)
	if !ok {
		return
	}
	data, err := encodeEvent(EventTypeTypingStopped, kind, parentID, TypingPayload{UserID: user.UserID, Username: user.Username})
	if err != nil {
		n.gw.log.Error().Err(err).Msg("notifier: marshal error")
		return
	}
	n.gw.broadcast(roomID, data)
}
