package services

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// DetectedPrinter is one printer the operating system knows about.
// Used during setup to offer choices when the spooling agent is not
// running yet.
type DetectedPrinter struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
	Status    string `json:"status"` // "online", "offline", "unknown"
}

// DetectSystemPrinters lists the printers installed on this machine.
func DetectSystemPrinters() ([]DetectedPrinter, error) {
	switch runtime.GOOS {
	case "windows":
		return detectWindowsPrinters()
	case "linux", "darwin":
		return detectCUPSPrinters()
	default:
		return nil, fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// detectWindowsPrinters queries the spooler through PowerShell.
func detectWindowsPrinters() ([]DetectedPrinter, error) {
	cmd := exec.Command("powershell", "-Command",
		`Get-Printer | Select-Object Name, PrinterStatus | ConvertTo-Json -AsArray`)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to detect printers: %w", err)
	}

	var entries []struct {
		Name          string `json:"Name"`
		PrinterStatus int    `json:"PrinterStatus"`
	}
	if err := json.Unmarshal(output, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse printer list: %w", err)
	}

	defaultName := windowsDefaultPrinter()

	var printers []DetectedPrinter
	for _, entry := range entries {
		if entry.Name == "" {
			continue
		}
		status := "unknown"
		// PrinterStatus 3 is "idle" in the spooler enum
		if entry.PrinterStatus == 3 {
			status = "online"
		}
		printers = append(printers, DetectedPrinter{
			Name:      entry.Name,
			IsDefault: entry.Name == defaultName,
			Status:    status,
		})
	}
	return printers, nil
}

func windowsDefaultPrinter() string {
	cmd := exec.Command("powershell", "-Command",
		`(Get-CimInstance Win32_Printer | Where-Object Default).Name`)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// detectCUPSPrinters parses lpstat output, shared by Linux and macOS.
func detectCUPSPrinters() ([]DetectedPrinter, error) {
	cmd := exec.Command("lpstat", "-p", "-d")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to detect printers (is CUPS installed?): %w", err)
	}
	return parseCUPSOutput(string(output)), nil
}

// parseCUPSOutput parses "printer NAME is idle..." lines plus the
// "system default destination:" footer.
func parseCUPSOutput(output string) []DetectedPrinter {
	var printers []DetectedPrinter
	var defaultPrinter string

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "system default destination:") {
			defaultPrinter = strings.TrimSpace(strings.TrimPrefix(line, "system default destination:"))
			continue
		}

		if !strings.HasPrefix(line, "printer ") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		printer := DetectedPrinter{Name: parts[1], Status: "unknown"}
		if strings.Contains(line, "idle") {
			printer.Status = "online"
		} else if strings.Contains(line, "disabled") {
			printer.Status = "offline"
		}
		printers = append(printers, printer)
	}

	for i := range printers {
		printers[i].IsDefault = printers[i].Name == defaultPrinter
	}
	return printers
}
