package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
)

// Client talks to the daemon over its unix socket.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	mu      sync.Mutex
}

// Connect dials the daemon socket.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &Client{conn: conn, scanner: scanner}, nil
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SendCommand sends a command and reads one response line.
func (c *Client) SendCommand(cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("marshal command: %w", err)
	}

	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		return Response{}, fmt.Errorf("write command: %w", err)
	}

	var resp Response
	if err := c.next(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// Subscribe switches the connection to the event stream. Use ReadEvent in
// a loop afterwards.
func (c *Client) Subscribe() error {
	resp, err := c.SendCommand(Command{Cmd: "subscribe"})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("subscribe: %s", resp.Error)
	}
	return nil
}

// ReadEvent blocks for the next event.
func (c *Client) ReadEvent() (Event, error) {
	var ev Event
	if err := c.next(&ev); err != nil {
		return Event{}, fmt.Errorf("read event: %w", err)
	}
	return ev, nil
}

func (c *Client) next(v any) error {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return err
		}
		return errors.New("connection closed")
	}
	if err := json.Unmarshal(c.scanner.Bytes(), v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

// Dialer sends every command on a fresh connection, so callers survive a
// daemon restart.
type Dialer struct {
	Path string
}

func (d Dialer) SendCommand(cmd Command) (Response, error) {
	c, err := Connect(d.Path)
	if err != nil {
		return Response{}, err
	}
	defer c.Close()
	return c.SendCommand(cmd)
}
