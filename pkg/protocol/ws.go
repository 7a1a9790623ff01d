package protocol

import (
	"context"
	"errors"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

type WebSocket struct {
	mu      sync.Mutex
	conn    *ws.Conn
	url     string
	reconn  uint
	timeout time.Duration
}

func NewWebSocket(ctx context.Context, url string, reconn uint, timeout time.Duration) (*WebSocket, error) {
	log.Debug("init websocket", "url", url)

	web := &WebSocket{
		url:     url,
		reconn:  reconn,
		timeout: timeout,
	}

	conn, err := web.dial(ctx)
	if err != nil {
		return nil, err
	}
	web.conn = conn

	return web, nil
}

func (web *WebSocket) dial(ctx context.Context) (*ws.Conn, error) {
	d := *ws.DefaultDialer
	if web.timeout > 0 {
		d.HandshakeTimeout = web.timeout
	}
	conn, _, err := d.DialContext(ctx, web.url, nil)
	return conn, err
}

func (web *WebSocket) Write(payload []byte) error {
	web.mu.Lock()
	defer web.mu.Unlock()
	if web.conn == nil {
		return errors.New("websocket not connected")
	}
	log.Debug("Write ws", "msg", string(payload))
	if web.timeout > 0 {
		_ = web.conn.SetWriteDeadline(time.Now().Add(web.timeout))
	}
	return web.conn.WriteMessage(ws.TextMessage, payload)
}

type IncomeKind uint

const (
	ConnClosed IncomeKind = iota
	ReadFailure
	ReadOK
)

type Income struct {
	kind IncomeKind
	msg  []byte
	err  error
}

// Read blocks for the next frame. Only one goroutine may read.
func (web *WebSocket) Read() Income {
	web.mu.Lock()
	conn := web.conn
	web.mu.Unlock()
	if conn == nil {
		return Income{kind: ConnClosed, err: errors.New("websocket not connected")}
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		if IsClosed(err) {
			return Income{kind: ConnClosed, err: err}
		}
		return Income{kind: ReadFailure, err: err}
	}

	log.Debug("Read ws", "msg", string(msg))
	return Income{kind: ReadOK, msg: msg}
}

// TryReconn redials every reconn seconds until it succeeds or ctx ends.
func (web *WebSocket) TryReconn(ctx context.Context) error {
	web.mu.Lock()
	if web.conn != nil {
		web.conn.Close()
		web.conn = nil
	}
	web.mu.Unlock()

	wait := time.Second * time.Duration(max(web.reconn, 1))
	for {
		conn, err := web.dial(ctx)
		if err == nil {
			web.mu.Lock()
			web.conn = conn
			web.mu.Unlock()
			return nil
		}
		log.Debug("Reconnect failed", "url", web.url, "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (web *WebSocket) Close() error {
	web.mu.Lock()
	defer web.mu.Unlock()
	if web.conn == nil {
		return nil
	}
	_ = web.conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := web.conn.Close()
	web.conn = nil
	return err
}

func IsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
