package session

import (
	"encoding/json"
	"fmt"

	"github.com/AltairaLabs/RelayKit/gateway"
	"github.com/AltairaLabs/RelayKit/logger"
	"github.com/AltairaLabs/RelayKit/tools"
)

// Configurator translates a Config plus the registry's tool descriptors into
// the upstream session descriptor. Every Apply sends the complete descriptor;
// the upstream replaces its configuration wholesale, so there is no partial
// update to reason about.
type Configurator struct {
	cfg      Config
	registry *tools.Registry
}

// NewConfigurator creates a configurator for the given session settings and
// tool registry. The registry may be nil for sessions without tools.
func NewConfigurator(cfg Config, registry *tools.Registry) *Configurator {
	return &Configurator{cfg: cfg, registry: registry}
}

// Descriptor builds the full session descriptor. Tool declarations come from
// the registry in name order, so repeated calls produce identical payloads.
func (c *Configurator) Descriptor() (gateway.SessionDescriptor, error) {
	desc := gateway.SessionDescriptor{
		Modalities:        c.cfg.Modalities,
		Instructions:      c.cfg.Instructions,
		Voice:             c.cfg.Voice,
		InputAudioFormat:  c.cfg.InputAudioFormat,
		OutputAudioFormat: c.cfg.OutputAudioFormat,
		TurnDetection:     c.cfg.TurnDetection,
		Temperature:       c.cfg.Temperature,
	}
	if c.cfg.TranscriptionModel != "" {
		desc.InputAudioTranscription = &gateway.Transcription{Model: c.cfg.TranscriptionModel}
	}

	if c.registry == nil {
		return desc, nil
	}

	for _, d := range c.registry.Descriptors() {
		var params map[string]any
		if err := json.Unmarshal(d.InputSchema, &params); err != nil {
			return gateway.SessionDescriptor{}, fmt.Errorf("tool %s has unusable input schema: %w", d.Name, err)
		}
		desc.Tools = append(desc.Tools, gateway.ToolDef{
			Type:        "function",
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		})
	}
	return desc, nil
}

// Apply sends the complete descriptor to the upstream. Safe to call again on
// a live session to reconfigure it; in-flight calls are unaffected.
func (c *Configurator) Apply(transport *gateway.Transport) error {
	desc, err := c.Descriptor()
	if err != nil {
		return err
	}
	if err := transport.SendSessionUpdate(desc); err != nil {
		return fmt.Errorf("failed to send session configuration: %w", err)
	}
	logger.Debug("session: configuration sent",
		"tools", len(desc.Tools),
		"modalities", desc.Modalities,
		"vad", desc.TurnDetection != nil)
	return nil
}
