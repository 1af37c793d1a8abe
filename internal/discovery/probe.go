package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"castpair/internal/domain"
)

// ProbeSession is a companion's open connection to a receiver. The receiver
// treats the connection closing as the end of pairing, so keep it open until
// the claim has been published.
type ProbeSession struct {
	Code domain.PairingCode
	conn *websocket.Conn
}

// Probe dials a receiver at url, sends a handshake request on namespace and
// returns once the receiver replies with its pairing code.
func Probe(ctx context.Context, url string, namespace domain.Namespace) (*ProbeSession, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial receiver: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	req, err := json.Marshal(domain.HandshakeRequest{})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.WriteJSON(Frame{Namespace: namespace, Data: req}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send pairing request: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read pairing reply: %w", err)
		}
		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil || f.Namespace != namespace {
			continue
		}
		var reply domain.HandshakeReply
		if err := json.Unmarshal(f.Data, &reply); err != nil || reply.Code == "" {
			_ = conn.Close()
			return nil, errors.New("receiver sent an invalid pairing reply")
		}
		return &ProbeSession{Code: reply.Code, conn: conn}, nil
	}
}

// Wait blocks until the receiver closes the connection or ctx ends.
func (p *ProbeSession) Wait(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = p.conn.Close() })
	defer stop()
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
	}
}

// Close hangs up. The receiver sees this as a sender disconnect.
func (p *ProbeSession) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return p.conn.Close()
}
