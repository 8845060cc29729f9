// Package a2a exposes the engine at the agent-to-agent protocol boundary:
// a static agent card built from the engine's capability descriptor and an
// AgentExecutor adapter. It deliberately contains no listener; callers mount
// the handlers on whatever transport they run.
package a2a

import (
	"github.com/a2aproject/a2a-go/a2a"

	"github.com/hupe1980/finmesh/engine"
)

// Card renders the engine's capability descriptor as an A2A agent card
// served at url.
func Card(capability engine.Capability, url string) *a2a.AgentCard {
	skills := make([]a2a.AgentSkill, 0, len(capability.Skills))
	for _, s := range capability.Skills {
		skills = append(skills, a2a.AgentSkill{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Tags:        s.Tags,
		})
	}

	return &a2a.AgentCard{
		Name:               capability.Name,
		Description:        capability.Description,
		URL:                url,
		Version:            capability.Version,
		ProtocolVersion:    "1.0",
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Skills:             skills,
		Capabilities: a2a.AgentCapabilities{
			Streaming:              false,
			PushNotifications:      false,
			StateTransitionHistory: false,
		},
		PreferredTransport: a2a.TransportProtocolJSONRPC,
	}
}
