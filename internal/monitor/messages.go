package monitor

import "dictation/internal/ipc"

// ConnectedMsg is sent when both daemon connections are established.
type ConnectedMsg struct {
	Client   *ipc.Client // commands
	EvClient *ipc.Client // event subscription
}

type ConnectErrorMsg struct {
	Err error
}

// EventMsg wraps a streamed daemon event.
type EventMsg struct {
	Event ipc.Event
}

type EventErrorMsg struct {
	Err error
}

// ResponseMsg carries the answer to a command sent from the monitor.
type ResponseMsg struct {
	Cmd      string
	Response ipc.Response
}

type ReconnectTickMsg struct{}
