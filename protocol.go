package main

import (
	"encoding/json"

	"colony-server/spatial"
)

// Client -> Server message types
const (
	MsgWatch   = "watch"   // set/update observer camera
	MsgQuery   = "query"   // one-shot spatial query
	MsgStats   = "stats"   // request index statistics
	MsgLogin   = "login"   // admin login
	MsgScatter = "scatter" // admin: randomize positions + rebuild grid
)

// Server -> Client message types
const (
	MsgWelcome   = "welcome"
	MsgWatching  = "watching"
	MsgResult    = "result"
	MsgStatsData = "stats"
	MsgLoginOK   = "login_ok"
	MsgScattered = "scattered"
	MsgError     = "error"
)

// Query kinds
const (
	QueryNearby  = "nearby"
	QueryRect    = "rect"
	QueryNearest = "nearest"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages — json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// WatchMsg sets the observer's camera; snapshots stream entities near it
type WatchMsg struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"r,omitempty"` // 0 = server default
}

// QueryMsg is a one-shot spatial query against the index
type QueryMsg struct {
	Kind   string  `json:"kind"` // nearby | rect | nearest
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Radius float64 `json:"r,omitempty"` // nearby/nearest; 0 on nearest = uncapped
	Left   float64 `json:"l,omitempty"`
	Top    float64 `json:"t,omitempty"`
	Right  float64 `json:"rt,omitempty"`
	Bottom float64 `json:"b,omitempty"`
	Type   string  `json:"type,omitempty"` // optional type-tag filter
}

// LoginMsg carries the admin password
type LoginMsg struct {
	Password string `json:"password"`
}

// ScatterMsg carries the admin token for the scatter debug command
type ScatterMsg struct {
	Token string `json:"token"`
}

// EntityState describes one entity on the wire
type EntityState struct {
	ID     string  `json:"id" msgpack:"id"`
	Type   string  `json:"type" msgpack:"k"`
	X      float64 `json:"x" msgpack:"x"`
	Y      float64 `json:"y" msgpack:"y"`
	Amount int     `json:"amount,omitempty" msgpack:"a,omitempty"`
}

// SnapshotMsg is the binary (msgpack) per-tick broadcast of entities near an
// observer's camera
type SnapshotMsg struct {
	Tick     uint64        `msgpack:"t"`
	Entities []EntityState `msgpack:"e"`
}

// ResultMsg answers a QueryMsg
type ResultMsg struct {
	Kind     string        `json:"kind"`
	Count    int           `json:"count"`
	Entities []EntityState `json:"entities"`
}

// WelcomeMsg is sent once after the connection is accepted
type WelcomeMsg struct {
	ID          string  `json:"id"`
	WorldWidth  float64 `json:"w"`
	WorldHeight float64 `json:"h"`
	CellSize    float64 `json:"cell"`
}

// WatchingMsg confirms the camera update
type WatchingMsg struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"r"`
}

// StatsMsg wraps an index statistics snapshot
type StatsMsg struct {
	Stats spatial.IndexStats `json:"stats"`
}

// LoginOKMsg returns the admin token
type LoginOKMsg struct {
	Token string `json:"token"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}
