package types

// InferenceRequest describes one round trip to a hosted multimodal model.
// A request is immutable once built: retry semantics are "build a new request",
// never "re-send this one".
type InferenceRequest struct {
	// Instruction is the text prompt. Must be non-empty.
	Instruction string

	// Image, when present, is a still frame sent inline with the prompt.
	Image *MediaContent

	// Prior holds earlier conversation turns, prepended so the model can
	// answer follow-up questions about an earlier result.
	Prior []Message

	// Model overrides the provider's configured model identifier.
	// Used to select a distinct image-generation model.
	Model string

	// Temperature of 0 means "use the provider default".
	Temperature float32
	MaxTokens   int
}

// ResultKind identifies what an inference call produced.
type ResultKind string

// Result kinds.
const (
	ResultText  ResultKind = "text"
	ResultImage ResultKind = "image"
)

// Result is the successful outcome of one inference call: either plain text
// or a generated image. Failures travel as errors alongside the Result.
type Result struct {
	Text  string        `json:"text,omitempty"`
	Image *MediaContent `json:"image,omitempty"`
}

// Kind returns ResultImage when the result carries an image, ResultText
// otherwise.
func (r Result) Kind() ResultKind {
	if r.Image != nil {
		return ResultImage
	}
	return ResultText
}
