package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"dictation/internal/dictation"
)

// Sessions is the manager surface the control socket exposes.
type Sessions interface {
	Start(ctx context.Context, id, name string) error
	Stop(ctx context.Context, id string) (string, error)
	Undo(ctx context.Context, id string) (string, error)
	Autocomplete(ctx context.Context, id, text string) (string, error)
	Last(ctx context.Context, id string) (dictation.Record, error)
	Status(id string) dictation.Snapshot
	Sessions() []dictation.Snapshot
}

var _ Sessions = (*dictation.Manager)(nil)

// Utterances routes a raw utterance the way the bus does.
type Utterances interface {
	Handle(ctx context.Context, session, utterance string) (bool, error)
}

// History lists saved dictations.
type History interface {
	List(ctx context.Context, limit int) ([]dictation.Record, error)
}

type Server struct {
	path       string
	sessions   Sessions
	utterances Utterances
	history    History
	events     *Broadcaster

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer wires the socket to the manager. utterances, history and events
// may be nil; the matching commands then answer with CodeUnavailable.
func NewServer(path string, sessions Sessions, utterances Utterances, history History, events *Broadcaster) *Server {
	return &Server{
		path:       path,
		sessions:   sessions,
		utterances: utterances,
		history:    history,
		events:     events,
		conns:      make(map[net.Conn]struct{}),
	}
}

func (s *Server) Path() string { return s.path }

// Listen binds the socket, replacing a stale one.
func (s *Server) Listen() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	os.Remove(s.path)

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Serve accepts connections until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		return s.Serve(ctx)
	}

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			log.Warn("Accept failed", "err", err)
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting, drops open connections and removes the socket.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.ln != nil {
		err = s.ln.Close()
		s.ln = nil
		os.Remove(s.path)
	}
	for c := range s.conns {
		c.Close()
	}
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var cmd Command
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			if err := enc.Encode(failure(CodeBadRequest, fmt.Errorf("decode command: %w", err))); err != nil {
				return
			}
			continue
		}
		log.Debug("Control command", "cmd", cmd.Cmd, "session", cmd.Session)

		if cmd.Cmd == "subscribe" {
			s.stream(ctx, conn, scanner, enc)
			return
		}

		if err := enc.Encode(s.Dispatch(ctx, cmd)); err != nil {
			log.Debug("Write response failed", "err", err)
			return
		}
	}
}

// stream answers a subscribe and forwards events until the client goes
// away.
func (s *Server) stream(ctx context.Context, conn net.Conn, scanner *bufio.Scanner, enc *json.Encoder) {
	if s.events == nil {
		enc.Encode(failure(CodeUnavailable, errors.New("events are not enabled")))
		return
	}

	events, cancel := s.events.Subscribe()
	defer cancel()

	if err := enc.Encode(Response{OK: true}); err != nil {
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for scanner.Scan() {
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
		case <-gone:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch runs one command against the manager.
func (s *Server) Dispatch(ctx context.Context, cmd Command) Response {
	id := cmd.Session
	if id == "" {
		id = DefaultSession
	}

	switch cmd.Cmd {
	case "start":
		if err := s.sessions.Start(ctx, id, cmd.Name); err != nil {
			return failed(err)
		}
		st := s.sessions.Status(id)
		return Response{OK: true, Dictating: BoolPtr(true), Target: st.Target}

	case "stop":
		path, err := s.sessions.Stop(ctx, id)
		if err != nil {
			return failed(err)
		}
		return Response{OK: true, Dictating: BoolPtr(false), Path: path}

	case "utterance":
		if cmd.Text == "" {
			return failure(CodeBadRequest, errors.New("text is required"))
		}
		if s.utterances == nil {
			return failure(CodeUnavailable, errors.New("utterance routing is not enabled"))
		}
		claimed, err := s.utterances.Handle(ctx, id, cmd.Text)
		if err != nil {
			resp := failed(err)
			resp.Claimed = BoolPtr(claimed)
			return resp
		}
		st := s.sessions.Status(id)
		return Response{
			OK:        true,
			Claimed:   BoolPtr(claimed),
			Dictating: BoolPtr(st.State == dictation.Dictating),
			Count:     IntPtr(st.Utterances),
		}

	case "undo":
		text, err := s.sessions.Undo(ctx, id)
		if err != nil {
			return failed(err)
		}
		return Response{OK: true, Text: text, Count: IntPtr(s.sessions.Status(id).Utterances)}

	case "complete":
		text, err := s.sessions.Autocomplete(ctx, id, cmd.Text)
		if err != nil {
			return failed(err)
		}
		return Response{OK: true, Text: text}

	case "status":
		st := s.sessions.Status(id)
		return Response{
			OK:        true,
			Dictating: BoolPtr(st.State == dictation.Dictating),
			Target:    st.Target,
			Count:     IntPtr(st.Utterances),
		}

	case "sessions":
		snaps := s.sessions.Sessions()
		out := make([]Session, 0, len(snaps))
		for _, sn := range snaps {
			out = append(out, Session{
				ID:         sn.SessionID,
				Dictating:  sn.State == dictation.Dictating,
				Target:     sn.Target,
				Utterances: sn.Utterances,
				StartedAt:  sn.StartedAt,
			})
		}
		return Response{OK: true, Sessions: out, Count: IntPtr(len(out))}

	case "read":
		rec, err := s.sessions.Last(ctx, id)
		if err != nil {
			return failed(err)
		}
		return Response{OK: true, Text: rec.Text, Path: rec.Path, Target: rec.Name, Count: IntPtr(rec.Lines)}

	case "list":
		if s.history == nil {
			return failure(CodeUnavailable, errors.New("journal is not enabled"))
		}
		limit := cmd.Limit
		if limit <= 0 {
			limit = 20
		}
		recs, err := s.history.List(ctx, limit)
		if err != nil {
			return failure(CodeInternal, err)
		}
		out := make([]Dictation, 0, len(recs))
		for _, r := range recs {
			out = append(out, Dictation{
				ID:      r.ID,
				Session: r.SessionID,
				Name:    r.Name,
				Path:    r.Path,
				Lines:   r.Lines,
				SavedAt: r.SavedAt,
			})
		}
		return Response{OK: true, Entries: out, Count: IntPtr(len(out))}

	case "":
		return failure(CodeBadRequest, errors.New("cmd is required"))
	default:
		return failure(CodeUnknownCommand, fmt.Errorf("unknown command %q", cmd.Cmd))
	}
}

func failure(code string, err error) Response {
	return Response{OK: false, Code: code, Error: err.Error()}
}

// failed maps manager errors onto response codes.
func failed(err error) Response {
	var (
		perr *dictation.PersistenceError
		aerr *dictation.AutocompleteError
	)
	switch {
	case errors.As(err, &perr):
		return failure(CodePersistence, err)
	case errors.As(err, &aerr):
		return failure(CodeAutocompleteFailed, err)
	case errors.Is(err, dictation.ErrAlreadyDictating):
		return failure(CodeAlreadyDictating, err)
	case errors.Is(err, dictation.ErrNoActiveSession):
		return failure(CodeNoActiveSession, err)
	case errors.Is(err, dictation.ErrNotDictating):
		return failure(CodeNotDictating, err)
	case errors.Is(err, dictation.ErrUndo):
		return failure(CodeNothingToUndo, err)
	case errors.Is(err, dictation.ErrNoDictation):
		return failure(CodeNoDictation, err)
	default:
		return failure(CodeInternal, err)
	}
}
