package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ThomasConway01/OutfitMatcher/capture"
	"github.com/ThomasConway01/OutfitMatcher/config"
	"github.com/ThomasConway01/OutfitMatcher/credentials"
	"github.com/ThomasConway01/OutfitMatcher/logger"
	metrics "github.com/ThomasConway01/OutfitMatcher/metrics/prometheus"
	"github.com/ThomasConway01/OutfitMatcher/providers"
	"github.com/ThomasConway01/OutfitMatcher/statestore"
	"github.com/ThomasConway01/OutfitMatcher/types"
)

// slotState is the retained outcome for one result slot. Zero value means
// nothing has happened in the slot yet.
type slotState struct {
	inFlight    bool
	visualizing bool

	hasResult bool
	result    types.Result
	failure   error

	// rendition holds the most recent generated outfit image. Kept apart
	// from result so visualization can be re-run from the same analysis.
	rendition types.Result

	// conversationID keys the slot's conversation in the state store.
	// Assigned on the first successful analysis, stable afterwards.
	conversationID string
}

// Controller sequences capture, inference, and presentation for one session.
// All exported methods are safe for concurrent use; the long-running
// inference calls run without the lock held so triggers in the other slot
// are not blocked.
type Controller struct {
	mu sync.Mutex

	id            string
	cfg           *config.Config
	source        capture.Source
	prefs         *credentials.Store
	conversations statestore.Store
	prompt        credentials.PromptFunc
	limiter       *rate.Limiter

	// provider is built lazily, after the first successful credential
	// resolution. Nil until then, and again after the credential changes.
	provider providers.Provider

	view     View
	deviceID string
	stream   *capture.Stream

	// generation is bumped on every navigation and reset. An in-flight
	// call settles only when its captured generation still matches.
	generation uint64

	slots map[Slot]*slotState
}

// Option customizes a Controller at construction time.
type Option func(*Controller)

// WithProvider injects a pre-built provider, bypassing credential
// resolution.
func WithProvider(p providers.Provider) Option {
	return func(c *Controller) { c.provider = p }
}

// WithPrompt installs the interactive credential fallback.
func WithPrompt(fn credentials.PromptFunc) Option {
	return func(c *Controller) { c.prompt = fn }
}

// WithLimiter overrides the request pacing limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Controller) { c.limiter = l }
}

// New creates a session controller starting on the home view.
func New(cfg *config.Config, source capture.Source, prefs *credentials.Store, conversations statestore.Store, opts ...Option) *Controller {
	c := &Controller{
		id:            uuid.NewString(),
		cfg:           cfg,
		source:        source,
		prefs:         prefs,
		conversations: conversations,
		limiter:       rate.NewLimiter(rate.Every(cfg.MinRequestSpacing()), 1),
		view:          ViewHome,
		slots: map[Slot]*slotState{
			SlotCapture:  {},
			SlotWardrobe: {},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the session identifier.
func (c *Controller) ID() string {
	return c.id
}

// ActiveView returns the view the session is currently on.
func (c *Controller) ActiveView() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// State reports the slot's position in the interaction state machine.
func (c *Controller) State(slot Slot) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.slots[slot]
	if !ok {
		return StateIdle
	}
	switch {
	case st.inFlight && st.visualizing:
		return StateVisualizing
	case st.inFlight:
		return StateAnalyzing
	case st.failure != nil:
		return StateResultFailed
	case st.hasResult:
		return StateResultReady
	case c.stream != nil && slotForView(c.view) == slot:
		return StateStreamActive
	default:
		return StateIdle
	}
}

// Outcome returns the slot's retained result, or the failure that replaced
// it. A generated outfit image takes precedence over the analysis text it
// was built from. ErrNoResult means nothing has completed in the slot yet.
func (c *Controller) Outcome(slot Slot) (types.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.slots[slot]
	if !ok {
		return types.Result{}, ErrNoResult
	}
	if st.failure != nil {
		return types.Result{}, st.failure
	}
	if st.rendition.Kind() == types.ResultImage {
		return st.rendition, nil
	}
	if !st.hasResult {
		return types.Result{}, ErrNoResult
	}
	return st.result, nil
}

// Devices enumerates the available capture devices.
func (c *Controller) Devices() ([]capture.DeviceInfo, error) {
	return c.source.ListDevices()
}

// SelectDevice records the preferred capture device and, when a camera view
// is active, restarts the stream on it.
func (c *Controller) SelectDevice(deviceID string) error {
	c.mu.Lock()
	c.deviceID = deviceID
	view := c.view
	c.mu.Unlock()

	if view.usesCamera() {
		return c.Navigate(view)
	}
	return nil
}

// Navigate switches the active view. Any live stream is stopped first and
// in-flight calls are invalidated; entering a camera view acquires a fresh
// stream. A camera failure is returned to the caller but does not undo the
// navigation.
func (c *Controller) Navigate(view View) error {
	switch view {
	case ViewHome, ViewCapture, ViewWardrobe:
	default:
		return fmt.Errorf("unknown view %q", view)
	}

	c.mu.Lock()
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
	c.generation++
	c.view = view
	deviceID := c.deviceID
	c.mu.Unlock()

	if !view.usesCamera() {
		return nil
	}

	stream, err := c.source.Start(deviceID)
	if err != nil {
		logger.Warn("failed to start capture stream", "view", string(view), "error", err)
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	c.mu.Lock()
	if c.view != view {
		// Navigated away while the stream was being acquired.
		c.mu.Unlock()
		stream.Stop()
		return nil
	}
	c.stream = stream
	c.mu.Unlock()

	logger.Debug("capture stream started", "view", string(view), "device", stream.DeviceID())
	return nil
}

// Scan snapshots the live stream and sends the frame for analysis with the
// active view's instruction. The outcome lands in the view's slot.
func (c *Controller) Scan(ctx context.Context) (types.Result, error) {
	c.mu.Lock()
	slot, instruction, err := c.scanTargetLocked()
	if err != nil {
		c.mu.Unlock()
		return types.Result{}, err
	}
	stream := c.stream
	if stream == nil {
		c.mu.Unlock()
		return types.Result{}, ErrNoStream
	}
	st := c.slots[slot]
	if st.inFlight {
		c.mu.Unlock()
		return types.Result{}, ErrBusy
	}
	st.inFlight = true
	gen := c.generation
	c.mu.Unlock()

	provider, err := c.ensureProvider()
	if err != nil {
		return c.settle(slot, gen, types.Result{}, err, nil)
	}

	frame, err := c.source.Snapshot(stream)
	if err != nil {
		return c.settle(slot, gen, types.Result{}, fmt.Errorf("snapshot failed: %w", err), nil)
	}

	req := imageRequest(instruction, frame)
	persist := func(result types.Result) func() error {
		return c.persistAnalysis(slot, instruction, frame, instruction, result)
	}
	return c.infer(ctx, provider, slot, gen, "analyze", req, persist)
}

// Retry re-sends the slot's retained frame with the stored instruction plus
// a clause asking for a different answer. The stream does not need to be
// live: the frame was retained when the analysis first ran.
func (c *Controller) Retry(ctx context.Context) (types.Result, error) {
	c.mu.Lock()
	slot, _, err := c.scanTargetLocked()
	if err != nil {
		c.mu.Unlock()
		return types.Result{}, err
	}
	st := c.slots[slot]
	if st.inFlight {
		c.mu.Unlock()
		return types.Result{}, ErrBusy
	}
	if st.conversationID == "" {
		c.mu.Unlock()
		return types.Result{}, ErrNoResult
	}
	conv, loadErr := c.conversations.Load(st.conversationID)
	if loadErr != nil || conv.LastRequest == nil {
		c.mu.Unlock()
		return types.Result{}, ErrNoResult
	}
	last := conv.LastRequest
	st.inFlight = true
	gen := c.generation
	c.mu.Unlock()

	provider, err := c.ensureProvider()
	if err != nil {
		return c.settle(slot, gen, types.Result{}, err, nil)
	}

	instruction := last.Prompt + DiversificationSuffix
	req := imageRequest(instruction, last.ImageBytes)
	persist := func(result types.Result) func() error {
		return c.persistAnalysis(slot, last.Prompt, last.ImageBytes, instruction, result)
	}
	return c.infer(ctx, provider, slot, gen, "retry", req, persist)
}

// Chat sends a follow-up question over the wardrobe conversation. The prior
// turns are included so the model can refer back to its own suggestions; the
// frame itself is not re-sent.
func (c *Controller) Chat(ctx context.Context, text string) (types.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Result{}, fmt.Errorf("chat message must not be empty")
	}

	c.mu.Lock()
	if c.view != ViewWardrobe {
		c.mu.Unlock()
		return types.Result{}, ErrWrongView
	}
	st := c.slots[SlotWardrobe]
	if st.inFlight {
		c.mu.Unlock()
		return types.Result{}, ErrBusy
	}
	if !st.hasResult || st.conversationID == "" {
		c.mu.Unlock()
		return types.Result{}, ErrNoResult
	}
	conv, loadErr := c.conversations.Load(st.conversationID)
	if loadErr != nil {
		c.mu.Unlock()
		return types.Result{}, ErrNoResult
	}
	st.inFlight = true
	gen := c.generation
	c.mu.Unlock()

	provider, err := c.ensureProvider()
	if err != nil {
		return c.settle(SlotWardrobe, gen, types.Result{}, err, nil)
	}

	req := types.InferenceRequest{
		Instruction: text,
		Prior:       conv.Messages,
	}
	persist := func(result types.Result) func() error {
		return func() error {
			conv.Messages = append(conv.Messages,
				types.NewUserMessage(text),
				types.NewAssistantMessage(result.Text))
			conv.LastAccessedAt = time.Now()
			return c.conversations.Save(conv)
		}
	}
	return c.infer(ctx, provider, SlotWardrobe, gen, "chat", req, persist)
}

// Visualize turns the retained wardrobe analysis into a generated image via
// two sequential calls: a text call that condenses the analysis into an
// image prompt, then the image-generation call itself. A failure in the
// first step aborts the chain before the second call is made.
func (c *Controller) Visualize(ctx context.Context) (types.Result, error) {
	c.mu.Lock()
	if c.view != ViewWardrobe {
		c.mu.Unlock()
		return types.Result{}, ErrWrongView
	}
	st := c.slots[SlotWardrobe]
	if st.inFlight {
		c.mu.Unlock()
		return types.Result{}, ErrBusy
	}
	if !st.hasResult || st.result.Text == "" {
		c.mu.Unlock()
		return types.Result{}, ErrNoResult
	}
	basis := st.result.Text
	st.inFlight = true
	st.visualizing = true
	gen := c.generation
	c.mu.Unlock()

	provider, err := c.ensureProvider()
	if err != nil {
		return c.settle(SlotWardrobe, gen, types.Result{}, err, nil)
	}
	imageGen, ok := provider.(providers.ImageGenerator)
	if !ok {
		return c.settle(SlotWardrobe, gen, types.Result{}, ErrNoImageSupport, nil)
	}

	// Step 1: synthesize the image prompt.
	if err := c.waitTurn(ctx); err != nil {
		return c.settle(SlotWardrobe, gen, types.Result{}, err, nil)
	}
	synthReq := types.InferenceRequest{Instruction: visualizePromptPrefix + basis}
	logger.InferenceCall(provider.ID(), provider.Model(), 1, false, "operation", "visualize_prompt")
	start := time.Now()
	synth, err := provider.Infer(ctx, synthReq)
	c.observe(provider.ID(), "visualize_prompt", string(synth.Kind()), start, err)
	if err != nil {
		return c.settle(SlotWardrobe, gen, types.Result{}, fmt.Errorf("prompt synthesis failed: %w", err), nil)
	}
	imagePrompt := strings.TrimSpace(synth.Text)
	if imagePrompt == "" {
		return c.settle(SlotWardrobe, gen, types.Result{}, fmt.Errorf("prompt synthesis returned no text"), nil)
	}

	if c.stale(gen) {
		// The session moved on between the two steps; skip the second call.
		return c.settle(SlotWardrobe, gen, types.Result{}, nil, nil)
	}

	// Step 2: generate the image.
	if err := c.waitTurn(ctx); err != nil {
		return c.settle(SlotWardrobe, gen, types.Result{}, err, nil)
	}
	start = time.Now()
	result, err := imageGen.GenerateImage(ctx, imagePrompt)
	c.observe(provider.ID(), "visualize_image", string(result.Kind()), start, err)
	return c.settle(SlotWardrobe, gen, result, err, nil)
}

// SetCredential persists a new API credential and discards the provider so
// the next call picks the new value up.
func (c *Controller) SetCredential(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("credential must not be empty")
	}
	if err := c.prefs.Set(credentials.StoreKeyAPIKey, key); err != nil {
		return err
	}

	c.mu.Lock()
	old := c.provider
	c.provider = nil
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	logger.Info("credential updated")
	return nil
}

// ClearData wipes the persisted preference store and all retained session
// state: conversations, results, and the cached provider.
func (c *Controller) ClearData() error {
	if err := c.prefs.ClearAll(); err != nil {
		return err
	}
	c.Reset()

	c.mu.Lock()
	old := c.provider
	c.provider = nil
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	logger.Info("persisted data cleared")
	return nil
}

// Reset discards both slots' retained results and conversations. In-flight
// calls settle as stale.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	for slot, st := range c.slots {
		if st.conversationID != "" {
			_ = c.conversations.Delete(st.conversationID)
		}
		c.slots[slot] = &slotState{}
	}
}

// Close stops the live stream and releases the provider.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
	c.generation++
	p := c.provider
	c.provider = nil
	c.mu.Unlock()

	if p != nil {
		return p.Close()
	}
	return nil
}

// scanTargetLocked maps the active view to its result slot and analysis
// instruction. Caller holds the lock.
func (c *Controller) scanTargetLocked() (Slot, string, error) {
	switch c.view {
	case ViewCapture:
		return SlotCapture, PromptCapture, nil
	case ViewWardrobe:
		return SlotWardrobe, PromptWardrobe, nil
	default:
		return "", "", ErrWrongView
	}
}

func slotForView(view View) Slot {
	switch view {
	case ViewCapture:
		return SlotCapture
	case ViewWardrobe:
		return SlotWardrobe
	default:
		return ""
	}
}

// ensureProvider resolves the credential chain and builds the provider on
// first use. The resolved provider is cached until the credential changes.
func (c *Controller) ensureProvider() (providers.Provider, error) {
	c.mu.Lock()
	if c.provider != nil {
		p := c.provider
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	key, err := credentials.Resolve(credentials.ResolverConfig{
		ProviderType: c.cfg.Provider.Type,
		Configured:   c.cfg.Provider.APIKey,
		Store:        c.prefs,
		Prompt:       c.prompt,
	})
	if err != nil {
		return nil, err
	}

	p, err := providers.CreateFromSpec(c.cfg.ProviderSpec(key))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provider != nil {
		// Lost the race with a concurrent construction.
		_ = p.Close()
		return c.provider, nil
	}
	c.provider = p
	return p, nil
}

// waitTurn blocks until the pacing limiter allows the next dispatch.
func (c *Controller) waitTurn(ctx context.Context) error {
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("request pacing interrupted: %w", err)
	}
	if waited := time.Since(start); waited > 10*time.Millisecond {
		metrics.RecordRateLimitWait(waited.Seconds())
		logger.Debug("paced inference dispatch", "waited_ms", waited.Milliseconds())
	}
	return nil
}

// infer runs one inference call and settles the slot with the outcome.
// persist, when non-nil, produces the conversation update to apply if the
// call succeeds and the result is still fresh.
func (c *Controller) infer(ctx context.Context, p providers.Provider, slot Slot, gen uint64, op string, req types.InferenceRequest, persist func(types.Result) func() error) (types.Result, error) {
	if err := c.waitTurn(ctx); err != nil {
		return c.settle(slot, gen, types.Result{}, err, nil)
	}

	logger.InferenceCall(p.ID(), p.Model(), len(req.Prior)+1, req.Image != nil, "operation", op)
	start := time.Now()
	result, err := p.Infer(ctx, req)
	c.observe(p.ID(), op, string(result.Kind()), start, err)

	var apply func() error
	if err == nil && persist != nil {
		apply = persist(result)
	}
	return c.settle(slot, gen, result, err, apply)
}

// settle records the outcome of an in-flight call. A call whose generation
// no longer matches is discarded without touching the slot's retained state.
func (c *Controller) settle(slot Slot, gen uint64, result types.Result, callErr error, persist func() error) (types.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.slots[slot]
	st.inFlight = false
	st.visualizing = false

	if gen != c.generation {
		logger.Debug("discarding stale inference outcome", "slot", string(slot))
		return types.Result{}, ErrStaleResult
	}

	if callErr != nil {
		st.failure = callErr
		return types.Result{}, callErr
	}

	st.failure = nil
	if result.Kind() == types.ResultImage {
		st.rendition = result
	} else {
		st.hasResult = true
		st.result = result
		st.rendition = types.Result{}
	}
	if persist != nil {
		if err := persist(); err != nil {
			logger.Warn("failed to persist conversation", "error", err)
		}
	}
	return result, nil
}

// observe records metrics and logs for one completed call.
func (c *Controller) observe(providerID, op, kind string, start time.Time, err error) {
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordInference(providerID, op, "error", elapsed.Seconds())
		metrics.RecordFailure(providerID, string(providers.KindOf(err)))
		logger.InferenceError(providerID, err, "operation", op)
		return
	}
	metrics.RecordInference(providerID, op, "success", elapsed.Seconds())
	logger.InferenceOutcome(providerID, kind, elapsed.Milliseconds(), "operation", op)
}

func (c *Controller) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.generation
}

// persistAnalysis builds the conversation update for a completed analysis:
// the conversation restarts from the new exchange and the frame is retained
// for retry.
func (c *Controller) persistAnalysis(slot Slot, basePrompt string, frame []byte, instruction string, result types.Result) func() error {
	return func() error {
		st := c.slots[slot]
		if st.conversationID == "" {
			st.conversationID = uuid.NewString()
		}
		conv := &statestore.ConversationState{
			ID: st.conversationID,
			Messages: []types.Message{
				types.NewUserMessage(instruction),
				types.NewAssistantMessage(result.Text),
			},
			LastRequest: &statestore.LastRequest{
				ImageBytes: frame,
				Prompt:     basePrompt,
				Slot:       string(slot),
			},
			LastAccessedAt: time.Now(),
		}
		return c.conversations.Save(conv)
	}
}

// imageRequest builds an inference request carrying an inline JPEG frame.
func imageRequest(instruction string, frame []byte) types.InferenceRequest {
	encoded := base64.StdEncoding.EncodeToString(frame)
	return types.InferenceRequest{
		Instruction: instruction,
		Image: &types.MediaContent{
			Data:     &encoded,
			MIMEType: types.MIMETypeImageJPEG,
		},
	}
}
