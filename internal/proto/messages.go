package proto

import (
	"encoding/json"
	"fmt"
)

// Version tracks the wire-protocol revision expected by clients.
const Version = 1

// Client message type identifiers.
const (
	TypeUpdateState = "state"
	TypeOnlineCount = "onlineCount"
)

// Server message type identifiers.
const (
	TypeJoin             = "join"
	TypeUserOnline       = "userOnline"
	TypeUserOffline      = "userOffline"
	TypeUserLeft         = "userLeft"
	TypeOnlineRoster     = "onlineRoster"
	TypeAllStates        = "allStates"
	TypeStateUpdated     = "stateUpdated"
	TypeOnlineCountReply = "onlineCountReply"
)

// ClientMessage captures an inbound websocket message from the client.
type ClientMessage struct {
	Ver     int     `json:"ver,omitempty"`
	Type    string  `json:"type"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Facing  Facing  `json:"facing,omitempty"`
	Walking bool    `json:"walking,omitempty"`
	SentAt  int64   `json:"sentAt,omitempty"`
}

// DecodeClientMessage converts raw websocket payloads into a structured message.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// JoinResponse is the first frame sent to a freshly connected client: its
// resolved identity plus a complete roster snapshot.
type JoinResponse struct {
	Ver        int           `json:"ver"`
	Type       string        `json:"type"`
	ID         string        `json:"id"`
	Players    []PlayerState `json:"players"`
	ServerTime int64         `json:"serverTime"`
}

// EncodeJoinResponse renders the join response payload.
func EncodeJoinResponse(msg JoinResponse) ([]byte, error) {
	msg.Ver = Version
	msg.Type = TypeJoin
	return json.Marshal(msg)
}

// RosterDelta announces a single user coming online or going away.
type RosterDelta struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
	ID   string `json:"id"`
}

// EncodeRosterDelta renders a userOnline/userOffline/userLeft payload.
func EncodeRosterDelta(typ, userID string) ([]byte, error) {
	return json.Marshal(RosterDelta{Ver: Version, Type: typ, ID: userID})
}

// OnlineRoster carries the periodic identity-only presence list.
type OnlineRoster struct {
	Ver  int      `json:"ver"`
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

// EncodeOnlineRoster renders the roster payload.
func EncodeOnlineRoster(ids []string) ([]byte, error) {
	return json.Marshal(OnlineRoster{Ver: Version, Type: TypeOnlineRoster, IDs: ids})
}

// AllStates carries a full snapshot of every live player state.
type AllStates struct {
	Ver        int           `json:"ver"`
	Type       string        `json:"type"`
	Players    []PlayerState `json:"players"`
	ServerTime int64         `json:"serverTime"`
}

// EncodeAllStates renders the full-snapshot payload.
func EncodeAllStates(players []PlayerState, serverTime int64) ([]byte, error) {
	return json.Marshal(AllStates{
		Ver:        Version,
		Type:       TypeAllStates,
		Players:    players,
		ServerTime: serverTime,
	})
}

// StateUpdated carries a single accepted state change.
type StateUpdated struct {
	Ver        int         `json:"ver"`
	Type       string      `json:"type"`
	Player     PlayerState `json:"player"`
	ServerTime int64       `json:"serverTime"`
}

// EncodeStateUpdated renders the point-event payload.
func EncodeStateUpdated(player PlayerState, serverTime int64) ([]byte, error) {
	return json.Marshal(StateUpdated{
		Ver:        Version,
		Type:       TypeStateUpdated,
		Player:     player,
		ServerTime: serverTime,
	})
}

// OnlineCountReply answers the diagnostic onlineCount query.
type OnlineCountReply struct {
	Ver   int      `json:"ver"`
	Type  string   `json:"type"`
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

// EncodeOnlineCountReply renders the diagnostic reply payload.
func EncodeOnlineCountReply(count int, ids []string) ([]byte, error) {
	return json.Marshal(OnlineCountReply{Ver: Version, Type: TypeOnlineCountReply, Count: count, IDs: ids})
}

// ServerEnvelope is the flat union clients decode inbound frames into before
// dispatching on Type. Fields not present for a given type stay zero.
type ServerEnvelope struct {
	Ver        int           `json:"ver"`
	Type       string        `json:"type"`
	ID         string        `json:"id,omitempty"`
	IDs        []string      `json:"ids,omitempty"`
	Players    []PlayerState `json:"players,omitempty"`
	Player     PlayerState   `json:"player,omitempty"`
	Count      int           `json:"count,omitempty"`
	ServerTime int64         `json:"serverTime,omitempty"`
}

// DecodeServerMessage converts raw server payloads into an envelope.
func DecodeServerMessage(payload []byte) (ServerEnvelope, error) {
	var env ServerEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, err
	}
	if env.Ver != 0 && env.Ver != Version {
		return env, fmt.Errorf("unsupported server protocol version %d", env.Ver)
	}
	return env, nil
}
