package main

import (
	"context"
	"errors"
	log "log/slog"

	"dictation/internal/dictation"
	"dictation/internal/ipc"
	"dictation/internal/nlu"
	"dictation/pkg/protocol"
)

type replier interface {
	Reply(orig *protocol.Message, typ string, data map[string]any) error
}

type busHandler struct {
	bus  replier
	mgr  *dictation.Manager
	disp *nlu.Dispatcher
}

func (b *busHandler) Handle(ctx context.Context, msg *protocol.Message) {
	session := msg.Session()
	if session == "" {
		session = ipc.DefaultSession
	}

	var err error
	switch msg.Type {
	case protocol.TypeStart:
		err = b.mgr.Start(ctx, session, msg.Str("name"))
	case protocol.TypeStop:
		_, err = b.mgr.Stop(ctx, session)
	case protocol.TypeUndo:
		_, err = b.mgr.Undo(ctx, session)
	case protocol.TypeAutocomplete:
		_, err = b.mgr.Autocomplete(ctx, session, msg.Str("text"))
	case protocol.TypeRead:
		_, err = b.mgr.Last(ctx, session)
	case protocol.TypeConverseRequest:
		claimed := false
		if utts := msg.Strings("utterances"); len(utts) > 0 {
			claimed, err = b.disp.Converse(ctx, session, utts[0])
		}
		if rerr := b.bus.Reply(msg, protocol.TypeConverseResponse, map[string]any{"result": claimed}); rerr != nil {
			log.Warn("Failed to answer converse", "session", session, "err", rerr)
		}
	case protocol.TypeUtterance:
		if utts := msg.Strings("utterances"); len(utts) > 0 {
			_, err = b.disp.Handle(ctx, session, utts[0])
		}
	case protocol.TypeHostStop:
		if n := b.mgr.StopAll(ctx); n > 0 {
			log.Info("Stopped dictations on host stop", "count", n)
		}
	default:
		return
	}

	logResult(msg.Type, session, err)
}

// logResult keeps user level outcomes (nothing to undo, not dictating) out
// of the error log; the user already heard about them.
func logResult(typ, session string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, dictation.ErrPersistence):
		log.Error("Dictation not saved", "type", typ, "session", session, "err", err)
	case errors.Is(err, dictation.ErrNotDictating),
		errors.Is(err, dictation.ErrAlreadyDictating),
		errors.Is(err, dictation.ErrUndo),
		errors.Is(err, dictation.ErrNoDictation),
		errors.Is(err, dictation.ErrAutocompleteFailed):
		log.Debug("Request declined", "type", typ, "session", session, "err", err)
	default:
		log.Warn("Request failed", "type", typ, "session", session, "err", err)
	}
}
