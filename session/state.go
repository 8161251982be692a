// Package session implements the interaction state machine sequencing
// capture, inference, and presentation: it validates preconditions, paces
// outbound calls, and retains the one result per slot that retry and
// follow-up chat build on.
package session

import "errors"

// View identifies the active screen. Views are mutually exclusive; switching
// views tears down any active capture stream.
type View string

// Views.
const (
	ViewHome     View = "home"
	ViewCapture  View = "capture"
	ViewWardrobe View = "wardrobe"
)

// usesCamera reports whether entering the view acquires a capture stream.
func (v View) usesCamera() bool {
	return v == ViewCapture || v == ViewWardrobe
}

// Slot is the destination a given analysis outcome is written to. Each slot
// keeps its own retained request and conversation.
type Slot string

// Result slots.
const (
	SlotCapture  Slot = "capture"
	SlotWardrobe Slot = "wardrobe"
)

// State is one position in the per-view interaction state machine.
type State string

// States.
const (
	// StateIdle: no stream, nothing pending.
	StateIdle State = "idle"

	// StateStreamActive: a live stream is bound; a scan may be triggered.
	StateStreamActive State = "stream_active"

	// StateAnalyzing: an inference call is in flight for this slot.
	StateAnalyzing State = "analyzing"

	// StateResultReady: the last call for this slot succeeded.
	StateResultReady State = "result_ready"

	// StateResultFailed: the last call for this slot failed; the trigger is
	// re-enabled for an immediate re-attempt.
	StateResultFailed State = "result_failed"

	// StateVisualizing: the two-step prompt-synthesis + image-generation
	// chain is in flight.
	StateVisualizing State = "visualizing"
)

// Session errors.
var (
	// ErrBusy rejects a trigger while a call is in flight for the same
	// slot. Triggers are blocked, never queued or coalesced.
	ErrBusy = errors.New("a request is already in flight for this slot")

	// ErrNoStream means a scan was triggered without an active stream.
	ErrNoStream = errors.New("no active capture stream")

	// ErrNoResult means retry, chat, or visualize was triggered before any
	// analysis completed for the slot.
	ErrNoResult = errors.New("no prior result to build on")

	// ErrStaleResult means an in-flight call completed after the session
	// moved on; its result was discarded, not applied.
	ErrStaleResult = errors.New("result discarded: session state changed while the request was in flight")

	// ErrWrongView means the intent is not available in the active view.
	ErrWrongView = errors.New("operation not available in the active view")

	// ErrNoImageSupport means the configured provider cannot generate
	// images.
	ErrNoImageSupport = errors.New("configured provider does not support image generation")
)

// Default analysis prompts and the retry diversification clause.
const (
	// PromptCapture is the single-item analysis instruction.
	PromptCapture = "Describe this clothing item and suggest outfit combinations"

	// PromptWardrobe is the wardrobe analysis instruction.
	PromptWardrobe = "Analyze this wardrobe photo and suggest outfit combinations from the items visible"

	// DiversificationSuffix is appended to the stored instruction on retry,
	// asking for a different answer over the identical image.
	DiversificationSuffix = " Please suggest a different outfit combination."

	// visualizePromptPrefix turns a stored analysis into an
	// image-generation prompt via a first, text-only inference call.
	visualizePromptPrefix = "Write a single concise prompt for an image generation model " +
		"that depicts the outfit suggested below, focusing on the clothing items, " +
		"colors and style. Reply with the prompt only.\n\n"
)
