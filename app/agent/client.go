package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"PrintStation/app/escpos"
)

// SubmitMode selects how a rendered ticket is handed to the agent.
type SubmitMode string

const (
	// ModeRaw concatenates all segments into one command stream.
	ModeRaw SubmitMode = "raw"
	// ModeStructured submits segments individually so the agent can
	// treat inlined bitmaps separately from text commands.
	ModeStructured SubmitMode = "structured"
)

// Status is the connection state surfaced to callers. Failures are
// recorded here rather than panicking so the station keeps running and
// retries later.
type Status struct {
	Connected       bool
	AgentNotRunning bool
	LastError       string
}

// request is one JSON frame sent to the agent.
type request struct {
	Call        string          `json:"call"`
	UID         string          `json:"uid"`
	Params      json.RawMessage `json:"params,omitempty"`
	Certificate string          `json:"certificate,omitempty"`
	Signature   string          `json:"signature,omitempty"`
	Timestamp   int64           `json:"timestamp"`
}

// response is one JSON frame received from the agent.
type response struct {
	UID    string          `json:"uid"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Client manages the WebSocket session to the local print-spooling agent.
type Client struct {
	url           string
	signer        *Signer
	submitTimeout time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	status    Status

	pendingMu sync.Mutex
	pending   map[string]chan callResult

	nextUID atomic.Uint64
}

// NewClient creates a transport for the agent at url. A nil signer
// disables the trust handshake (agents configured for anonymous local
// connections).
func NewClient(url string, signer *Signer, submitTimeout time.Duration) *Client {
	return &Client{
		url:           url,
		signer:        signer,
		submitTimeout: submitTimeout,
		pending:       make(map[string]chan callResult),
	}
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connected reports whether the agent session is established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect establishes the agent session. Idempotent: an established
// session returns immediately. Failures are classified (agent process
// not running vs anything else) and recorded in Status.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// Dial and handshake without holding the lock so Status and
	// Connected stay responsive during a slow connection attempt.
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if isConnectionRefused(err) {
			return c.failConnect(Status{AgentNotRunning: true, LastError: "print agent is not running on this machine"})
		}
		return c.failConnect(Status{LastError: fmt.Sprintf("failed to reach print agent: %v", err)})
	}

	// Trust handshake: present the certificate before any call.
	if c.signer != nil {
		cert, err := c.signer.Certificate(ctx)
		if err != nil {
			conn.Close()
			return c.failConnect(Status{LastError: fmt.Sprintf("failed to obtain signing certificate: %v", err)})
		}
		hello := request{Call: "certificate", UID: c.newUID(), Certificate: cert, Timestamp: time.Now().UnixMilli()}
		if err := conn.WriteJSON(hello); err != nil {
			conn.Close()
			return c.failConnect(Status{LastError: fmt.Sprintf("failed to present certificate: %v", err)})
		}
	}

	c.mu.Lock()
	if c.connected {
		// Another caller won the race; keep its session.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.connected = true
	c.status = Status{Connected: true}
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

func (c *Client) failConnect(status Status) error {
	c.mu.Lock()
	if !c.connected {
		c.status = status
	}
	c.mu.Unlock()
	return fmt.Errorf("%s", status.LastError)
}

func isConnectionRefused(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "actively refused") ||
		strings.Contains(msg, "no connection could be made")
}

func (c *Client) newUID() string {
	return strconv.FormatUint(c.nextUID.Add(1), 10)
}

// readLoop dispatches agent responses to their waiting calls until the
// connection drops.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var resp response
		if err := conn.ReadJSON(&resp); err != nil {
			c.markDisconnected(err)
			return
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.UID]
		if ok {
			delete(c.pending, resp.UID)
		}
		c.pendingMu.Unlock()

		if !ok {
			continue
		}
		if resp.Error != "" {
			ch <- callResult{err: fmt.Errorf("agent error: %s", resp.Error)}
		} else {
			ch <- callResult{result: resp.Result}
		}
	}
}

// markDisconnected tears down the session and fails all in-flight calls.
func (c *Client) markDisconnected(cause error) {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.status = Status{LastError: fmt.Sprintf("print agent connection lost: %v", cause)}
	c.mu.Unlock()

	c.pendingMu.Lock()
	for uid, ch := range c.pending {
		delete(c.pending, uid)
		ch <- callResult{err: fmt.Errorf("print agent connection lost: %w", cause)}
	}
	c.pendingMu.Unlock()
}

// Close shuts the session down.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// call performs one signed request/response round trip. Disconnected
// sessions get exactly one implicit Connect attempt.
func (c *Client) call(ctx context.Context, name string, params interface{}) (json.RawMessage, error) {
	if !c.Connected() {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	var rawParams json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s params: %w", name, err)
		}
		rawParams = encoded
	}

	req := request{
		Call:      name,
		UID:       c.newUID(),
		Params:    rawParams,
		Timestamp: time.Now().UnixMilli(),
	}

	// Per-request signature over the challenge string the agent
	// verifies: call + uid + timestamp.
	if c.signer != nil {
		challenge := fmt.Sprintf("%s:%s:%d", req.Call, req.UID, req.Timestamp)
		signature, err := c.signer.Sign(ctx, challenge)
		if err != nil {
			return nil, fmt.Errorf("failed to sign %s request: %w", name, err)
		}
		req.Signature = signature
	}

	ch := make(chan callResult, 1)
	c.pendingMu.Lock()
	c.pending[req.UID] = ch
	c.pendingMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	var err error
	if conn == nil {
		err = fmt.Errorf("print agent not connected")
	} else {
		err = conn.WriteJSON(req)
	}
	c.mu.Unlock()

	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, req.UID)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("failed to send %s request: %w", name, err)
	}

	select {
	case res := <-ch:
		return res.result, res.err
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, req.UID)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("%s request: %w", name, ctx.Err())
	}
}

// ListPrinters queries the agent for system printer names. A
// single-string response is normalized into a one-element list.
func (c *Client) ListPrinters(ctx context.Context) ([]string, error) {
	result, err := c.call(ctx, "printers.find", nil)
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(result, &names); err == nil {
		return names, nil
	}

	var single string
	if err := json.Unmarshal(result, &single); err == nil {
		if single == "" {
			return nil, nil
		}
		return []string{single}, nil
	}

	return nil, fmt.Errorf("unexpected printers.find response: %s", string(result))
}

// printData is one element of the agent's print payload array. Command
// streams carry raster rows and control bytes that are not valid UTF-8,
// and a JSON string silently replaces those with U+FFFD, so the data
// field always travels base64-encoded and the agent decodes it before
// spooling.
type printData struct {
	Type   string `json:"type"`
	Format string `json:"format"`
	Flavor string `json:"flavor"`
	Data   string `json:"data"`
}

func encodedPrintData(format, data string) printData {
	return printData{
		Type:   "raw",
		Format: format,
		Flavor: "base64",
		Data:   base64.StdEncoding.EncodeToString([]byte(data)),
	}
}

type printParams struct {
	Printer string      `json:"printer"`
	Data    []printData `json:"data"`
}

// Submit sends a rendered ticket to the named printer. The printer name
// is required; submissions are bounded by the configured timeout so a
// hung agent fails the job instead of wedging the listener.
func (c *Client) Submit(ctx context.Context, printerName string, doc *escpos.Document, mode SubmitMode) error {
	if printerName == "" {
		return fmt.Errorf("no printer name configured for submission")
	}

	if c.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.submitTimeout)
		defer cancel()
	}

	var data []printData
	if mode == ModeStructured {
		for _, seg := range doc.Segments {
			switch seg.Type {
			case escpos.SegmentImage:
				data = append(data, encodedPrintData("image", seg.Data))
			default:
				data = append(data, encodedPrintData("command", seg.Data))
			}
		}
	} else {
		data = []printData{encodedPrintData("command", doc.Raw())}
	}

	_, err := c.call(ctx, "print", printParams{Printer: printerName, Data: data})
	if err != nil {
		log.Printf("[WARNING] Print submission to %s failed: %v", printerName, err)
		return err
	}
	return nil
}

// drawerKick is the vendor escape that pulses the cash drawer solenoid
// on pin 2.
var drawerKick = string([]byte{escpos.ESC, 'p', 0, 25, 250})

// OpenDrawer sends the cash drawer kick sequence to the cashier printer.
func (c *Client) OpenDrawer(ctx context.Context, printerName string) error {
	if printerName == "" {
		return fmt.Errorf("no cashier printer configured for drawer kick")
	}

	if c.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.submitTimeout)
		defer cancel()
	}

	_, err := c.call(ctx, "print", printParams{
		Printer: printerName,
		Data:    []printData{encodedPrintData("command", drawerKick)},
	})
	return err
}
