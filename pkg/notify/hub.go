// Package notify pushes MMU events to browser clients over a websocket and
// accepts the operator's error screen selection in return.
//
// Messages are JSON-RPC 2.0 notifications in the style of a Moonraker
// front end: notify_mmu_state, notify_mmu_error, notify_mmu_progress and
// notify_mmu_command. Clients may call mmu.status, mmu.select and, when a
// handler is set, mmu.script.
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mmu2-host/pkg/log"
	"mmu2-host/pkg/mmu"
)

const (
	sendBuffer   = 64
	maxMessage   = 64 * 1024
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// Hub fans MMU events out to websocket clients. Its Observer methods run on
// the control goroutine and never block; slow clients drop messages.
type Hub struct {
	upgrader websocket.Upgrader
	log      *log.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	status  Status

	selections chan int
	script     ScriptFunc
}

// ScriptFunc accepts a command script from a client, e.g. "T1 U". It must
// not block; the commands run later on the control loop.
type ScriptFunc func(script string) error

// Status is the latest snapshot, sent to new clients and returned by
// mmu.status.
type Status struct {
	State    string      `json:"state"`
	Command  string      `json:"command,omitempty"`
	Slot     int         `json:"slot"`
	Progress string      `json:"progress,omitempty"`
	Error    *ErrorEvent `json:"error,omitempty"`
}

// ErrorEvent is the payload of notify_mmu_error.
type ErrorEvent struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	Raw         string   `json:"raw"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Buttons     []string `json:"buttons"`
	Source      string   `json:"source"`
}

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:        log.GetLogger("notify"),
		clients:    make(map[uuid.UUID]*client),
		status:     Status{State: mmu.StateStopped.String(), Slot: -1},
		selections: make(chan int, 4),
	}
}

// SetLogger replaces the hub's logger.
func (h *Hub) SetLogger(l *log.Logger) {
	h.log = l
}

// SetScriptHandler enables the mmu.script method.
func (h *Hub) SetScriptHandler(f ScriptFunc) {
	h.mu.Lock()
	h.script = f
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Status returns the latest snapshot.
func (h *Hub) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// PollSelection returns the oldest selection made by any client.
func (h *Hub) PollSelection() (int, bool) {
	select {
	case idx := <-h.selections:
		return idx, true
	default:
		return 0, false
	}
}

// DiscardSelections drops selections nobody has consumed yet.
func (h *Hub) DiscardSelections() {
	for {
		select {
		case <-h.selections:
		default:
			return
		}
	}
}

func (h *Hub) OnState(s mmu.State) {
	h.mu.Lock()
	h.status.State = s.String()
	h.mu.Unlock()
	h.broadcast("notify_mmu_state", map[string]any{"state": s.String()})
}

func (h *Hub) OnError(r mmu.ErrorReport) {
	ev := &ErrorEvent{
		ID:          uuid.NewString(),
		Code:        r.Category.Code(),
		Raw:         r.Code.String(),
		Title:       r.Category.Title(),
		Description: r.Category.Description(),
		Source:      r.Source.String(),
	}
	for _, a := range r.Category.Buttons() {
		if a.String() != "" {
			ev.Buttons = append(ev.Buttons, a.String())
		}
	}
	h.mu.Lock()
	h.status.Error = ev
	h.mu.Unlock()
	h.broadcast("notify_mmu_error", ev)
}

func (h *Hub) OnProgress(r mmu.ProgressReport) {
	h.mu.Lock()
	h.status.Progress = r.Progress.String()
	h.mu.Unlock()
	h.broadcast("notify_mmu_progress", map[string]any{
		"command":  r.Command.String(),
		"progress": r.Progress.String(),
	})
}

func (h *Hub) OnCommand(r mmu.CommandReport) {
	params := map[string]any{"name": r.Name}
	if r.Slot != mmu.NoSlot {
		params["slot"] = int(r.Slot)
	}

	h.mu.Lock()
	if r.Phase == mmu.CommandBegin {
		params["phase"] = "begin"
		h.status.Command = r.Name
		h.status.Progress = ""
	} else {
		params["phase"] = "end"
		h.status.Command = ""
		h.status.Error = nil
		if r.Err != nil {
			params["error"] = r.Err.Error()
		} else {
			switch r.Name {
			case "tool_change", "load_to_nozzle", "load_to_feeder":
				h.status.Slot = int(r.Slot)
			case "unload", "eject":
				h.status.Slot = -1
			}
		}
	}
	h.mu.Unlock()
	h.broadcast("notify_mmu_command", params)
}

func (h *Hub) broadcast(method string, params any) {
	msg := notification{JSONRPC: "2.0", Method: method, Params: []any{params}}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.send(msg)
	}
}

// ServeHTTP upgrades the request to a websocket and serves the client until
// it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		id:     uuid.New(),
		conn:   conn,
		hub:    h,
		sendCh: make(chan any, sendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	snapshot := h.status
	h.mu.Unlock()
	h.log.WithField("client", c.id.String()).Info("client connected")

	go c.writePump()
	c.send(notification{JSONRPC: "2.0", Method: "notify_mmu_status", Params: []any{snapshot}})
	c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	h.log.WithField("client", c.id.String()).Info("client disconnected")
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[uuid.UUID]*client)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) dispatch(method string, params json.RawMessage) (any, error) {
	switch method {
	case "mmu.status":
		return h.Status(), nil
	case "mmu.select":
		var p struct {
			Index *int `json:"index"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
		}
		if p.Index == nil || *p.Index < 0 {
			return nil, fmt.Errorf("missing or negative index")
		}
		select {
		case h.selections <- *p.Index:
			return "ok", nil
		default:
			return nil, fmt.Errorf("selection queue full")
		}
	case "mmu.script":
		h.mu.RLock()
		run := h.script
		h.mu.RUnlock()
		if run == nil {
			return nil, fmt.Errorf("scripts are disabled")
		}
		var p struct {
			Script string `json:"script"`
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("invalid params: %w", err)
			}
		}
		if p.Script == "" {
			return nil, fmt.Errorf("missing script")
		}
		if err := run(p.Script); err != nil {
			return nil, err
		}
		return "queued", nil
	default:
		return nil, fmt.Errorf("method not found: %s", method)
	}
}

type client struct {
	id     uuid.UUID
	conn   *websocket.Conn
	hub    *Hub
	sendCh chan any
	done   chan struct{}
	once   sync.Once
}

func (c *client) send(msg any) {
	select {
	case <-c.done:
	case c.sendCh <- msg:
	default:
		c.hub.log.WithField("client", c.id.String()).Warn("dropping message, client too slow")
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Warn("websocket read failed")
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) handleMessage(data []byte) {
	var req jsonRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.send(jsonRPCResponse{JSONRPC: "2.0", Error: &jsonRPCError{Code: -32700, Message: "Parse error"}})
		return
	}
	result, err := c.hub.dispatch(req.Method, req.Params)
	if err != nil {
		c.send(jsonRPCResponse{JSONRPC: "2.0", Error: &jsonRPCError{Code: -32000, Message: err.Error()}, ID: req.ID})
		return
	}
	c.send(jsonRPCResponse{JSONRPC: "2.0", Result: result, ID: req.ID})
}
