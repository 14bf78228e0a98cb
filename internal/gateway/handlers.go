package gateway

import (
	"context"

	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/apperr"
	"github.com/matheus3301/chatd/internal/delivery"
	"github.com/matheus3301/chatd/internal/event"
)

// dispatch runs on the client's read pump, so one connection's events are
// handled in arrival order.
func (g *Gateway) dispatch(c *Client, in event.Inbound) {
	if in.Name == event.UserConnected {
		g.handleConnect(c, in)
		return
	}
	if !c.registered {
		c.Send(event.Errorf(in.Name, "not_connected", "send user_connected first"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	var err error
	switch in.Name {
	case event.TypingStart, event.TypingStop:
		err = g.handleTyping(c, in)
	case event.SendMessage:
		err = g.handleSend(ctx, c, in)
	case event.MessageRead:
		err = g.handleRead(ctx, c, in)
	case event.AddReaction:
		err = g.handleReaction(ctx, c, in)
	case event.GetUserStatus:
		err = g.handleStatus(ctx, c, in)
	default:
		c.Send(event.Errorf(in.Name, "unknown_event", "unknown event"))
		return
	}
	if err != nil {
		g.fail(c, in.Name, err)
	}
}

// fail reports err to the originating connection only.
func (g *Gateway) fail(c *Client, name string, err error) {
	code, _, msg := apperr.Classify(err)
	if code == apperr.CodeInternal {
		c.logger.Error("event handler failed", zap.String("event", name), zap.Error(err))
	}
	c.Send(event.Errorf(name, code, msg))
}

func (g *Gateway) handleConnect(c *Client, in event.Inbound) {
	var p event.ConnectPayload
	if err := in.Decode(&p); err != nil {
		c.Send(event.Errorf(in.Name, apperr.CodeInvalid, "malformed payload"))
		return
	}
	if p.UserID != "" && p.UserID != c.userID {
		c.Send(event.Errorf(in.Name, apperr.CodeForbidden, "user does not match session"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	g.svc.Presence.Connect(ctx, c.userID, c)
	c.registered = true
	if err := g.svc.Router.CatchUp(ctx, c.userID); err != nil {
		c.logger.Warn("delivery catch-up failed", zap.Error(err))
	}
}

func (g *Gateway) handleTyping(c *Client, in event.Inbound) error {
	var p event.TypingPayload
	if err := in.Decode(&p); err != nil {
		c.Send(event.Errorf(in.Name, apperr.CodeInvalid, "malformed payload"))
		return nil
	}
	if in.Name == event.TypingStart {
		g.svc.Typing.Start(c.userID, p.ConversationID, p.ReceiverID)
	} else {
		g.svc.Typing.Stop(c.userID, p.ConversationID, p.ReceiverID)
	}
	return nil
}

func (g *Gateway) handleSend(ctx context.Context, c *Client, in event.Inbound) error {
	var p event.SendMessagePayload
	if err := in.Decode(&p); err != nil {
		c.Send(event.Errorf(in.Name, apperr.CodeInvalid, "malformed payload"))
		return nil
	}
	msg, err := g.svc.Router.Send(ctx, delivery.SendRequest{
		SenderID:   c.userID,
		ReceiverID: p.ReceiverID,
		Content:    p.Content,
	})
	if err != nil {
		return err
	}
	c.Send(event.New(event.MessageSent, event.MessageSentAck{
		ClientMsgID: p.ClientMsgID,
		Message:     event.MessageFromStore(msg),
	}))
	return nil
}

func (g *Gateway) handleRead(ctx context.Context, c *Client, in event.Inbound) error {
	var p event.ReadPayload
	if err := in.Decode(&p); err != nil {
		c.Send(event.Errorf(in.Name, apperr.CodeInvalid, "malformed payload"))
		return nil
	}
	_, err := g.svc.Receipts.MarkReadLive(ctx, c.userID, p.MessageIDs)
	return err
}

func (g *Gateway) handleReaction(ctx context.Context, c *Client, in event.Inbound) error {
	var p event.ReactionPayload
	if err := in.Decode(&p); err != nil {
		c.Send(event.Errorf(in.Name, apperr.CodeInvalid, "malformed payload"))
		return nil
	}
	_, err := g.svc.Reactions.Toggle(ctx, p.MessageID, p.Emoji, c.userID)
	return err
}

func (g *Gateway) handleStatus(ctx context.Context, c *Client, in event.Inbound) error {
	var p event.StatusQueryPayload
	if err := in.Decode(&p); err != nil || p.UserID == "" {
		c.Send(event.Errorf(in.Name, apperr.CodeInvalid, "userId is required"))
		return nil
	}
	st, err := g.svc.Presence.Status(ctx, p.UserID)
	if err != nil {
		return err
	}
	c.Send(event.New(event.UserStatus, st))
	return nil
}
