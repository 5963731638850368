// Package protocol defines the WebSocket message types exchanged with the
// Scrapinium server.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message types (server → client)
const (
	TypeTaskUpdate   = "task_update"
	TypeStatsUpdate  = "stats_update"
	TypeNotification = "notification"
	TypePong         = "pong"
)

// Message types (client → server)
const (
	TypeSubscribeTask   = "subscribe_task"
	TypeUnsubscribeTask = "unsubscribe_task"
	TypePing            = "ping"
)

// Outbound is a control message sent to the server.
type Outbound struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"`
}

// Subscribe builds a subscribe control message for the given task.
func Subscribe(taskID string) Outbound {
	return Outbound{Type: TypeSubscribeTask, TaskID: taskID}
}

// Unsubscribe builds an unsubscribe control message for the given task.
func Unsubscribe(taskID string) Outbound {
	return Outbound{Type: TypeUnsubscribeTask, TaskID: taskID}
}

// Ping builds a keepalive control message.
func Ping() Outbound {
	return Outbound{Type: TypePing}
}

// Inbound is a decoded server message. The set of implementations is closed:
// TaskUpdate, StatsUpdate, Notice, Pong and Unknown.
type Inbound interface {
	inbound()
}

// TaskUpdate carries a partial field update for a single task.
type TaskUpdate struct {
	TaskID string
	Fields map[string]any
}

// StatsUpdate carries a full replacement snapshot of server stats.
type StatsUpdate struct {
	Stats map[string]any
}

// Notice is a user-facing message pushed by the server.
type Notice struct {
	Message  string
	Severity string
	Details  string
}

// Pong acknowledges a client ping.
type Pong struct{}

// Unknown is any message whose type tag is not recognized.
type Unknown struct {
	Type string
}

func (TaskUpdate) inbound()  {}
func (StatsUpdate) inbound() {}
func (Notice) inbound()      {}
func (Pong) inbound()        {}
func (Unknown) inbound()     {}

// envelope is the wire shape of every inbound message.
type envelope struct {
	Type   string          `json:"type"`
	TaskID string          `json:"task_id"`
	Data   json.RawMessage `json:"data"`
}

// noticeData is the wire shape of a notification payload. The severity is
// carried in a field named "type" on the wire.
type noticeData struct {
	Message  string `json:"message"`
	Severity string `json:"type"`
	Details  string `json:"details"`
}

// DecodeInbound parses a raw frame into one of the Inbound variants. A frame
// with a well-formed envelope but an unrecognized type tag decodes to Unknown;
// anything else is an error.
func DecodeInbound(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeTaskUpdate:
		if env.TaskID == "" {
			return nil, fmt.Errorf("task_update without task_id")
		}
		fields := map[string]any{}
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &fields); err != nil {
				return nil, fmt.Errorf("decode task_update data: %w", err)
			}
		}
		return TaskUpdate{TaskID: env.TaskID, Fields: fields}, nil

	case TypeStatsUpdate:
		stats := map[string]any{}
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &stats); err != nil {
				return nil, fmt.Errorf("decode stats_update data: %w", err)
			}
		}
		return StatsUpdate{Stats: stats}, nil

	case TypeNotification:
		var d noticeData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &d); err != nil {
				return nil, fmt.Errorf("decode notification data: %w", err)
			}
		}
		return Notice{Message: d.Message, Severity: d.Severity, Details: d.Details}, nil

	case TypePong:
		return Pong{}, nil

	case "":
		return nil, fmt.Errorf("message without type tag")

	default:
		return Unknown{Type: env.Type}, nil
	}
}
