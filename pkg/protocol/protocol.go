// Package protocol speaks the assistant's message bus: JSON frames of
// {type, data, context} over a websocket.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"time"
)

type PtclConfig struct {
	Url     string
	Reconn  uint
	Timeout time.Duration
	// Shard names this skill on the bus. It is stamped as context.source on
	// outbound frames and inbound frames addressed elsewhere are dropped.
	Shard string
}

// Handler receives every inbound frame addressed to this skill.
type Handler func(ctx context.Context, msg *Message)

type Protocol struct {
	ws    *WebSocket
	shard string
}

func NewProtocol(ctx context.Context, cfg PtclConfig) (*Protocol, error) {
	web, err := NewWebSocket(ctx, cfg.Url, cfg.Reconn, cfg.Timeout)
	if err != nil {
		log.Error("Failed to init ws connection", "url", cfg.Url, "err", err)
		return nil, fmt.Errorf("dial bus %s: %w", cfg.Url, err)
	}

	return &Protocol{ws: web, shard: cfg.Shard}, nil
}

// Emit sends msg on the bus.
func (ptcl *Protocol) Emit(msg *Message) error {
	if msg.Context == nil {
		msg.Context = map[string]any{}
	}
	if _, ok := msg.Context["source"]; !ok && ptcl.shard != "" {
		msg.Context["source"] = ptcl.shard
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	if err := ptcl.ws.Write(b); err != nil {
		log.Error("Failed to transmit", "type", msg.Type, "err", err)
		return fmt.Errorf("emit %s: %w", msg.Type, err)
	}
	return nil
}

// Reply answers orig with a message of typ carrying orig's context, with
// source and destination swapped.
func (ptcl *Protocol) Reply(orig *Message, typ string, data map[string]any) error {
	out := orig.Forward(typ, data)
	if src, ok := orig.Context["source"]; ok {
		out.Context["destination"] = src
	} else {
		delete(out.Context, "destination")
	}
	if ptcl.shard != "" {
		out.Context["source"] = ptcl.shard
	}
	return ptcl.Emit(out)
}

// Run reads frames until ctx is done, reconnecting when the bus drops.
func (ptcl *Protocol) Run(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { ptcl.ws.Close() })
	defer stop()

	for {
		in := ptcl.ws.Read()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch in.kind {
		case ConnClosed, ReadFailure:
			if in.kind == ReadFailure {
				log.Error("Failed to read", "err", in.err)
			}
			log.Warn("Trying to reconnect", "url", ptcl.ws.url)
			if err := ptcl.ws.TryReconn(ctx); err != nil {
				return err
			}
			log.Info("Successfully reconnected", "url", ptcl.ws.url)

		case ReadOK:
			msg, err := Parse(in.msg)
			if err != nil {
				log.Warn("Failed to parse", "msg", string(in.msg), "err", err)
				continue
			}
			if ptcl.shard != "" && !msg.addressedTo(ptcl.shard) {
				continue
			}
			h(ctx, msg)
		}
	}
}

func (ptcl *Protocol) Close() error {
	return ptcl.ws.Close()
}
