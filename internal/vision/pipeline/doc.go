// Package pipeline provides orchestration for the perception-to-decision
// cycle.
//
// It wires the layer packages (l1stereo through l5decision) and the external
// collaborators (frame source, detector, radar link, alert sinks) into one
// per-frame processing flow. The pipeline does not own domain logic; it
// delegates to layer packages and enforces the cycle time budget.
//
// This package is the composition root: it imports from the layer packages,
// but none of them import pipeline/.
package pipeline
