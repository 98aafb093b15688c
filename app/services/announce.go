package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

// AnnounceService advertises the print station on the local network via
// mDNS/Zeroconf so POS terminals can discover it without manual configuration.
type AnnounceService struct {
	port     string
	tenantID string
	deviceID string
	logger   *LoggerService

	mdnsServer   *zeroconf.Server
	mdnsShutdown chan bool
}

// NewAnnounceService creates a new mDNS announcement service
func NewAnnounceService(port, tenantID, deviceID string, logger *LoggerService) *AnnounceService {
	return &AnnounceService{
		port:         port,
		tenantID:     tenantID,
		deviceID:     deviceID,
		logger:       logger,
		mdnsShutdown: make(chan bool, 1),
	}
}

// Start registers the mDNS service and blocks until Stop is called.
// Run it in its own goroutine.
func (s *AnnounceService) Start() error {
	portStr := strings.TrimPrefix(s.port, ":")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("mDNS: invalid port format %s: %w", s.port, err)
	}

	server, err := zeroconf.Register(
		"Print Station "+s.deviceID, // Service instance name
		"_posprint._tcp",            // Service type
		"local.",                    // Domain
		port,                        // Port
		[]string{
			"version=1.0",
			"tenant=" + s.tenantID,
			"device=" + s.deviceID,
		},
		nil, // Network interfaces (nil = all)
	)
	if err != nil {
		return fmt.Errorf("mDNS: failed to register service: %w", err)
	}

	s.mdnsServer = server
	s.logger.LogInfo("mDNS: print station announced on _posprint._tcp.local", "device: "+s.deviceID)

	<-s.mdnsShutdown
	server.Shutdown()
	s.logger.LogInfo("mDNS: service announcement stopped")
	return nil
}

// Stop withdraws the mDNS announcement
func (s *AnnounceService) Stop() {
	select {
	case s.mdnsShutdown <- true:
	default:
	}
}
