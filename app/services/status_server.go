package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"PrintStation/app/agent"
	"PrintStation/app/database"
	"PrintStation/app/escpos"
)

// StatusAPIServer exposes a local REST API for inspecting and exercising
// the print station: connectivity, available printers, recent print history
// and a test print endpoint for setup verification.
type StatusAPIServer struct {
	server   *http.Server
	port     string
	state    *StationState
	lease    Lease
	client   *agent.Client
	localDB  *database.LocalDB
	listener *QueueListener
	logger   *LoggerService

	tenantID string
	deviceID string
}

// TestPrintRequest represents the request body for a test print
type TestPrintRequest struct {
	Printer    string `json:"printer"`
	PaperWidth string `json:"paper_width,omitempty"`
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// NewStatusAPIServer creates a new status API server
func NewStatusAPIServer(port string, state *StationState, lease Lease, client *agent.Client, localDB *database.LocalDB, listener *QueueListener, logger *LoggerService, tenantID, deviceID string) *StatusAPIServer {
	return &StatusAPIServer{
		port:     port,
		state:    state,
		lease:    lease,
		client:   client,
		localDB:  localDB,
		listener: listener,
		logger:   logger,
		tenantID: tenantID,
		deviceID: deviceID,
	}
}

// Start starts the status API server
func (s *StatusAPIServer) Start() error {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// API info
	mux.HandleFunc("/", s.handleInfo)

	// Station endpoints
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/printers", s.handlePrinters)
	mux.HandleFunc("/api/v1/test-print", s.handleTestPrint)
	mux.HandleFunc("/api/v1/print-log", s.handlePrintLog)
	mux.HandleFunc("/api/v1/reconcile", s.handleReconcile)

	s.server = &http.Server{
		Addr:         s.port,
		Handler:      s.corsMiddleware(s.loggingMiddleware(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("[STATUS API] Server starting on port %s", s.port)
	log.Printf("[STATUS API] Endpoints available:")
	log.Printf("[STATUS API]   GET    /health")
	log.Printf("[STATUS API]   GET    /api/v1/status")
	log.Printf("[STATUS API]   GET    /api/v1/printers")
	log.Printf("[STATUS API]   POST   /api/v1/test-print")
	log.Printf("[STATUS API]   GET    /api/v1/print-log")
	log.Printf("[STATUS API]   POST   /api/v1/reconcile")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status API server error: %w", err)
	}

	return nil
}

// Stop stops the status API server
func (s *StatusAPIServer) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Printf("[STATUS API] Server stopping...")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Middleware for CORS
func (s *StatusAPIServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Middleware for logging
func (s *StatusAPIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[STATUS API] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[STATUS API] %s %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Helper to send JSON response
func (s *StatusAPIServer) sendJSON(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// handleHealth returns server health status
func (s *StatusAPIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "Print station is running",
		Data: map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// handleInfo returns API information
func (s *StatusAPIServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.sendJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "Print Station Status API",
		Data: map[string]interface{}{
			"version":   "1.0.0",
			"device_id": s.deviceID,
			"endpoints": map[string]string{
				"GET /health":             "Health check",
				"GET /api/v1/status":      "Station status (transport, role, lease)",
				"GET /api/v1/printers":    "List available printers",
				"POST /api/v1/test-print": "Send a test ticket to a printer",
				"GET /api/v1/print-log":   "Recent print history",
				"POST /api/v1/reconcile":  "Force a pending-job reconciliation pass",
			},
		},
	})
}

// handleStatus returns the current station status
func (s *StatusAPIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendJSON(w, http.StatusMethodNotAllowed, APIResponse{
			Success: false,
			Error:   "Method not allowed. Use GET.",
		})
		return
	}

	snapshot := s.state.Snapshot()
	agentStatus := s.client.Status()

	data := map[string]interface{}{
		"tenant_id":              s.tenantID,
		"device_id":              s.deviceID,
		"acting_as_print_server": snapshot.ActingAsPrintServer,
		"transport_connected":    snapshot.TransportConnected,
		"agent_not_running":      agentStatus.AgentNotRunning,
		"lease_held":             s.lease.Held(),
	}
	if agentStatus.LastError != "" {
		data["last_transport_error"] = agentStatus.LastError
	}

	s.sendJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// handlePrinters lists printers known to the local agent, falling back to
// OS-level detection when the agent is unreachable.
func (s *StatusAPIServer) handlePrinters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendJSON(w, http.StatusMethodNotAllowed, APIResponse{
			Success: false,
			Error:   "Method not allowed. Use GET.",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	names, err := s.client.ListPrinters(ctx)
	if err == nil {
		s.sendJSON(w, http.StatusOK, APIResponse{
			Success: true,
			Data: map[string]interface{}{
				"source":   "agent",
				"printers": names,
			},
		})
		return
	}

	s.logger.LogWarning("Agent printer listing failed, using OS detection", err.Error())

	detected, detectErr := DetectSystemPrinters()
	if detectErr != nil {
		s.sendJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Error:   fmt.Sprintf("agent unavailable (%v) and OS detection failed (%v)", err, detectErr),
		})
		return
	}

	s.sendJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"source":   "os",
			"printers": detected,
		},
	})
}

// handleTestPrint sends a short diagnostic ticket to the requested printer
func (s *StatusAPIServer) handleTestPrint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendJSON(w, http.StatusMethodNotAllowed, APIResponse{
			Success: false,
			Error:   "Method not allowed. Use POST.",
		})
		return
	}

	var req TestPrintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSON(w, http.StatusBadRequest, APIResponse{
			Success: false,
			Error:   fmt.Sprintf("Invalid request body: %v", err),
		})
		return
	}

	if req.Printer == "" {
		s.sendJSON(w, http.StatusBadRequest, APIResponse{
			Success: false,
			Error:   "printer is required",
		})
		return
	}

	opts := escpos.DefaultOptions()
	if req.PaperWidth != "" {
		opts.PaperWidth = req.PaperWidth
	}

	doc := buildTestTicket(opts, s.deviceID)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := s.client.Submit(ctx, req.Printer, doc, agent.ModeRaw); err != nil {
		s.logger.LogError("Test print failed", err, "printer: "+req.Printer)
		s.sendJSON(w, http.StatusBadGateway, APIResponse{
			Success: false,
			Error:   fmt.Sprintf("Test print failed: %v", err),
		})
		return
	}

	s.logger.LogInfo("Test print sent", "printer: "+req.Printer)
	s.sendJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Test ticket sent to %s", req.Printer),
	})
}

// buildTestTicket renders the diagnostic ticket used by the test print endpoint
func buildTestTicket(opts escpos.Options, deviceID string) *escpos.Document {
	b := escpos.NewBuilder(opts)
	b.SetAlign("center")
	b.SetEmphasize(true)
	b.WriteLine("TESTE DE IMPRESSAO")
	b.SetEmphasize(false)
	b.Separator()
	b.SetAlign("left")
	b.WriteColumns("Estacao", deviceID)
	b.WriteColumns("Data", time.Now().Format("02/01/2006 15:04"))
	b.WriteColumns("Largura", b.Options().PaperWidth)
	b.Separator()
	b.SetAlign("center")
	b.WriteLine("Impressora configurada corretamente")
	b.Finish()
	return b.Document()
}

// handlePrintLog returns recent entries from the local print history
func (s *StatusAPIServer) handlePrintLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendJSON(w, http.StatusMethodNotAllowed, APIResponse{
			Success: false,
			Error:   "Method not allowed. Use GET.",
		})
		return
	}

	if s.localDB == nil {
		s.sendJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Error:   "Local database not available",
		})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			s.sendJSON(w, http.StatusBadRequest, APIResponse{
				Success: false,
				Error:   "limit must be an integer between 1 and 500",
			})
			return
		}
		limit = parsed
	}

	entries, err := s.localDB.RecentPrints(limit)
	if err != nil {
		s.sendJSON(w, http.StatusInternalServerError, APIResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to read print log: %v", err),
		})
		return
	}

	s.sendJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"count":   len(entries),
			"entries": entries,
		},
	})
}

// handleReconcile forces an immediate reconciliation pass over pending jobs
func (s *StatusAPIServer) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendJSON(w, http.StatusMethodNotAllowed, APIResponse{
			Success: false,
			Error:   "Method not allowed. Use POST.",
		})
		return
	}

	if s.listener == nil {
		s.sendJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Error:   "Queue listener not running",
		})
		return
	}

	s.listener.TriggerReconcile()
	s.sendJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "Reconciliation pass scheduled",
	})
}
