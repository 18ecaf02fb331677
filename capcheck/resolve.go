// Package capcheck validates a UnifiedRequest against a manifest's declared
// capabilities before any network I/O happens.
package capcheck

import (
	"fmt"

	"github.com/aiproto/runtime/errorclass"
	"github.com/aiproto/runtime/protocol"
)

// Policy tunes capability enforcement strictness.
type Policy struct {
	// StrictParallelTools requires the manifest to declare parallel_tools
	// whenever the request is expected to trigger more than one concurrent
	// tool call. Off by default, matching a permissive default posture.
	StrictParallelTools bool
}

// DefaultPolicy returns the permissive default (StrictParallelTools off).
func DefaultPolicy() Policy { return Policy{} }

// Resolve checks req against manifest's promoted capability set under
// policy, returning nil when every required capability is satisfied, or an
// *errorclass.ClassifiedError with code invalid_request otherwise. It is a
// pure function: no I/O, no mutation of either argument.
func Resolve(manifest *protocol.Manifest, req *protocol.UnifiedRequest, policy Policy) error {
	set := manifest.CapabilitySet()

	if req.Stream && !set.Has(protocol.CapStreaming) {
		return missingCapability(manifest.ID, protocol.CapStreaming, "request sets stream=true")
	}

	for _, msg := range req.Messages {
		for _, block := range msg.Blocks {
			cap, required := block.RequiredCapability()
			if !required {
				continue
			}
			if !set.Has(cap) {
				return missingCapability(manifest.ID, cap, fmt.Sprintf("message contains a %s content block", block.Type))
			}
		}
	}

	if len(req.Tools) > 0 && !set.Has(protocol.CapTools) {
		return missingCapability(manifest.ID, protocol.CapTools, "request declares tools")
	}

	if policy.StrictParallelTools && req.ExpectsParallelTools() && !set.Has(protocol.CapParallelTools) {
		return missingCapability(manifest.ID, protocol.CapParallelTools, "request expects more than one concurrent tool call")
	}

	return nil
}

// missingCapability builds the invalid_request classified error for a
// violation; for capabilities in the FeatureGated list the message is
// prefixed with unsupported_feature.
func missingCapability(providerID string, cap protocol.Capability, reason string) *errorclass.ClassifiedError {
	message := fmt.Sprintf("provider %q does not declare capability %q: %s", providerID, cap, reason)
	if cap.FeatureGated() {
		return &errorclass.ClassifiedError{
			Code:     errorclass.InvalidRequest,
			Provider: providerID,
			Message:  "unsupported_feature: " + message,
		}
	}
	return &errorclass.ClassifiedError{
		Code:     errorclass.InvalidRequest,
		Provider: providerID,
		Message:  message,
	}
}
