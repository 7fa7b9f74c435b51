package pipewire

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Ports lists and validates PipeWire ports through pw-link
type Ports struct {
	// run executes pw-link and returns its stdout
	run func(args ...string) ([]byte, error)
}

// NewPorts creates a Ports instance backed by the pw-link binary
func NewPorts() *Ports {
	return &Ports{
		run: func(args ...string) ([]byte, error) {
			return exec.Command("pw-link", args...).Output()
		},
	}
}

// ListCapturePorts returns all output ports, which are the ports audio can be recorded from
func (p *Ports) ListCapturePorts() ([]string, error) {
	output, err := p.run("-o")
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePortList(string(output)), nil
}

// ValidateTarget checks that the node behind a target port exists exactly once.
// An empty target selects the default source and is always valid.
func (p *Ports) ValidateTarget(target string) error {
	if target == "" {
		return nil
	}

	ports, err := p.ListCapturePorts()
	if err != nil {
		return err
	}

	matches := findPortDuplicatesInList(target, ports)
	if len(matches) == 0 {
		for _, port := range ports {
			if nodeName(port) == target {
				return nil
			}
		}
		return fmt.Errorf("port not found: %s", target)
	}
	if len(matches) > 1 {
		return fmt.Errorf("duplicate sources detected for '%s': %v. Please close conflicting applications", target, matches)
	}
	return nil
}

// IsApplicationPort reports whether a port belongs to an application stream
// rather than a hardware device. Application ports may appear and disappear.
func IsApplicationPort(port string) bool {
	lower := strings.ToLower(port)
	if strings.HasPrefix(lower, "alsa_input") || strings.HasPrefix(lower, "alsa_output") || strings.HasPrefix(lower, "system:") {
		return false
	}

	apps := []string{
		"chrome", "firefox", "spotify", "discord", "zoom", "teams", "slack", "vlc", "mpv",
	}
	for _, app := range apps {
		if strings.Contains(lower, app) {
			return true
		}
	}
	return false
}

func parsePortList(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Input ports:") || strings.HasPrefix(line, "Output ports:") {
			continue
		}
		ports = append(ports, line)
	}
	slog.Debug("Parsed PipeWire ports", "count", len(ports))
	return ports
}

// findPortDuplicatesInList finds all ports with exactly the given name
func findPortDuplicatesInList(portName string, allPorts []string) []string {
	var duplicates []string
	for _, port := range allPorts {
		if port == portName {
			duplicates = append(duplicates, port)
		}
	}
	return duplicates
}

// nodeName strips the port part of "node:port"
func nodeName(port string) string {
	if i := strings.LastIndex(port, ":"); i > 0 {
		return port[:i]
	}
	return port
}
