// internal/models/types.go
// Core data models for the port tester

package models

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/aspnmy/porttester/pkg/portrange"
)

// Endpoint is the request template shared by every probe of a run
type Endpoint struct {
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
	Path     string `json:"path,omitempty"`
}

// Address returns "host:port", bracketing IPv6 literals
func (e Endpoint) Address(port int) string {
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

// URL returns "protocol://host:port/path"
func (e Endpoint) URL(port int) string {
	return fmt.Sprintf("%s://%s/%s", e.Protocol, e.Address(port), strings.TrimPrefix(e.Path, "/"))
}

// ProbeTarget is one fully resolved probe
type ProbeTarget struct {
	Port    int    `json:"port"`
	URL     string `json:"url"`
	Address string `json:"address"`
}

// String returns human-readable target info
func (t ProbeTarget) String() string {
	return t.URL
}

// ProbeOutcome is the result of exactly one probe
type ProbeOutcome struct {
	Port      int           `json:"port"`
	Succeeded bool          `json:"succeeded"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// Progress is handed to progress reporters after every completed probe
type Progress struct {
	RunID string `json:"run_id"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
	// Open is a copy of the open-port accumulator, only filled in debug mode
	Open    []int         `json:"open,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// FinalResult is the terminal output of a run
type FinalResult struct {
	RunID    string          `json:"run_id"`
	Endpoint Endpoint        `json:"endpoint"`
	Range    portrange.Range `json:"range"`
	// Blocked is true when Ports lists the ports that did not answer
	Blocked bool          `json:"blocked"`
	Ports   []int         `json:"ports"`
	Probed  int           `json:"probed"`
	Elapsed time.Duration `json:"elapsed"`
}

// State returns "closed" for inverted results and "opened" otherwise
func (r FinalResult) State() string {
	if r.Blocked {
		return "closed"
	}
	return "opened"
}
