// internal/probeset/builder.go
// Probe set construction from a port range and an endpoint template

package probeset

import (
	"github.com/aspnmy/porttester/internal/models"
	"github.com/aspnmy/porttester/pkg/portrange"
)

// Build returns one target per port of r, ascending. r must already be valid.
func Build(r portrange.Range, ep models.Endpoint) []models.ProbeTarget {
	ports := r.Ports()
	targets := make([]models.ProbeTarget, len(ports))
	for i, port := range ports {
		targets[i] = models.ProbeTarget{
			Port:    port,
			URL:     ep.URL(port),
			Address: ep.Address(port),
		}
	}
	return targets
}
