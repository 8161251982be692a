package session_test

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ThomasConway01/OutfitMatcher/capture"
	"github.com/ThomasConway01/OutfitMatcher/config"
	"github.com/ThomasConway01/OutfitMatcher/credentials"
	"github.com/ThomasConway01/OutfitMatcher/providers"
	"github.com/ThomasConway01/OutfitMatcher/providers/mock"
	"github.com/ThomasConway01/OutfitMatcher/session"
	"github.com/ThomasConway01/OutfitMatcher/statestore"
	"github.com/ThomasConway01/OutfitMatcher/types"
)

// stubSource is an in-memory capture source serving a fixed frame.
type stubSource struct {
	mu        sync.Mutex
	frame     []byte
	startErr  error
	snapErr   error
	stops     int
	snapshots int
}

func (s *stubSource) ListDevices() ([]capture.DeviceInfo, error) {
	return []capture.DeviceInfo{{ID: "cam0", Label: "Front Camera"}}, nil
}

func (s *stubSource) Start(deviceID string) (*capture.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return nil, s.startErr
	}
	if deviceID == "" {
		deviceID = "cam0"
	}
	return capture.NewStream(deviceID, func() {
		s.mu.Lock()
		s.stops++
		s.mu.Unlock()
	}), nil
}

func (s *stubSource) Snapshot(*capture.Stream) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	s.snapshots++
	return s.frame, nil
}

func (s *stubSource) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func (s *stubSource) snapshotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots
}

func newTestController(t *testing.T, source *stubSource, opts ...session.Option) *session.Controller {
	t.Helper()

	prefs, err := credentials.NewStore(filepath.Join(t.TempDir(), "preferences.json"))
	require.NoError(t, err)

	opts = append(opts, session.WithLimiter(rate.NewLimiter(rate.Inf, 1)))
	return session.New(config.Default(), source, prefs, statestore.NewMemoryStore(), opts...)
}

func textStep(text string) mock.Step {
	return mock.Step{Result: types.Result{Text: text}}
}

func TestControllerScan(t *testing.T) {
	frame := []byte("fake-jpeg-bytes")

	t.Run("analyzes the current frame with the view's instruction", func(t *testing.T) {
		source := &stubSource{frame: frame}
		provider := mock.NewProvider("mock").Script(textStep("pair it with dark jeans"))
		ctrl := newTestController(t, source, session.WithProvider(provider))

		require.NoError(t, ctrl.Navigate(session.ViewCapture))
		assert.Equal(t, session.StateStreamActive, ctrl.State(session.SlotCapture))

		result, err := ctrl.Scan(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "pair it with dark jeans", result.Text)
		assert.Equal(t, session.StateResultReady, ctrl.State(session.SlotCapture))

		require.Len(t, provider.Requests, 1)
		req := provider.Requests[0]
		assert.Equal(t, session.PromptCapture, req.Instruction)
		require.NotNil(t, req.Image)
		assert.Equal(t, base64.StdEncoding.EncodeToString(frame), *req.Image.Data)
	})

	t.Run("wardrobe view uses the wardrobe instruction", func(t *testing.T) {
		source := &stubSource{frame: frame}
		provider := mock.NewProvider("mock").Script(textStep("three outfits stand out"))
		ctrl := newTestController(t, source, session.WithProvider(provider))

		require.NoError(t, ctrl.Navigate(session.ViewWardrobe))
		_, err := ctrl.Scan(context.Background())
		require.NoError(t, err)

		require.Len(t, provider.Requests, 1)
		assert.Equal(t, session.PromptWardrobe, provider.Requests[0].Instruction)
		assert.Equal(t, session.StateResultReady, ctrl.State(session.SlotWardrobe))
		assert.Equal(t, session.StateIdle, ctrl.State(session.SlotCapture))
	})

	t.Run("rejected outside camera views", func(t *testing.T) {
		ctrl := newTestController(t, &stubSource{frame: frame},
			session.WithProvider(mock.NewProvider("mock")))

		_, err := ctrl.Scan(context.Background())
		assert.ErrorIs(t, err, session.ErrWrongView)
	})

	t.Run("rejected without a live stream", func(t *testing.T) {
		source := &stubSource{frame: frame, startErr: capture.ErrPermissionDenied}
		ctrl := newTestController(t, source, session.WithProvider(mock.NewProvider("mock")))

		err := ctrl.Navigate(session.ViewCapture)
		assert.ErrorIs(t, err, capture.ErrPermissionDenied)
		assert.Equal(t, session.ViewCapture, ctrl.ActiveView())

		_, err = ctrl.Scan(context.Background())
		assert.ErrorIs(t, err, session.ErrNoStream)
	})

	t.Run("provider failure lands in the slot", func(t *testing.T) {
		source := &stubSource{frame: frame}
		provider := mock.NewProvider("mock").Script(mock.Step{
			Err: providers.ClassifyHTTPError(429, []byte(`{"error":{"message":"quota"}}`)),
		})
		ctrl := newTestController(t, source, session.WithProvider(provider))

		require.NoError(t, ctrl.Navigate(session.ViewCapture))
		_, err := ctrl.Scan(context.Background())
		require.Error(t, err)
		assert.Equal(t, providers.KindRateLimited, providers.KindOf(err))
		assert.Equal(t, session.StateResultFailed, ctrl.State(session.SlotCapture))

		_, err = ctrl.Outcome(session.SlotCapture)
		assert.Equal(t, providers.KindRateLimited, providers.KindOf(err))
	})
}

func TestControllerCredentialMissing(t *testing.T) {
	source := &stubSource{frame: []byte("frame")}
	cfg := config.Default()
	cfg.Provider.Type = "mock" // no default environment variables

	prefs, err := credentials.NewStore(filepath.Join(t.TempDir(), "preferences.json"))
	require.NoError(t, err)
	ctrl := session.New(cfg, source, prefs, statestore.NewMemoryStore(),
		session.WithLimiter(rate.NewLimiter(rate.Inf, 1)))

	require.NoError(t, ctrl.Navigate(session.ViewCapture))
	_, err = ctrl.Scan(context.Background())
	assert.ErrorIs(t, err, credentials.ErrCredentialMissing)

	// The failure happened before any frame was captured.
	assert.Equal(t, 0, source.snapshotCount())
	assert.Equal(t, session.StateResultFailed, ctrl.State(session.SlotCapture))
}

func TestControllerPacing(t *testing.T) {
	source := &stubSource{frame: []byte("frame")}
	provider := mock.NewProvider("mock").Script(textStep("one"), textStep("two"))

	cfg := config.Default()
	cfg.MinRequestSpacingMs = 80
	prefs, err := credentials.NewStore(filepath.Join(t.TempDir(), "preferences.json"))
	require.NoError(t, err)
	ctrl := session.New(cfg, source, prefs, statestore.NewMemoryStore(),
		session.WithProvider(provider))

	require.NoError(t, ctrl.Navigate(session.ViewCapture))

	start := time.Now()
	_, err = ctrl.Scan(context.Background())
	require.NoError(t, err)
	firstDone := time.Since(start)

	_, err = ctrl.Scan(context.Background())
	require.NoError(t, err)

	// The first dispatch is immediate; the second waits out the spacing.
	assert.Less(t, firstDone, 80*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestControllerSingleFlight(t *testing.T) {
	source := &stubSource{frame: []byte("frame")}
	provider := newBlockingProvider()
	ctrl := newTestController(t, source, session.WithProvider(provider))

	require.NoError(t, ctrl.Navigate(session.ViewCapture))

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Scan(context.Background())
		done <- err
	}()
	<-provider.entered

	assert.Equal(t, session.StateAnalyzing, ctrl.State(session.SlotCapture))
	_, err := ctrl.Scan(context.Background())
	assert.ErrorIs(t, err, session.ErrBusy)

	close(provider.release)
	require.NoError(t, <-done)
	assert.Equal(t, session.StateResultReady, ctrl.State(session.SlotCapture))
}

func TestControllerStaleResultDiscarded(t *testing.T) {
	source := &stubSource{frame: []byte("frame")}
	provider := newBlockingProvider()
	ctrl := newTestController(t, source, session.WithProvider(provider))

	require.NoError(t, ctrl.Navigate(session.ViewCapture))

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Scan(context.Background())
		done <- err
	}()
	<-provider.entered

	// Navigating away invalidates the in-flight call.
	require.NoError(t, ctrl.Navigate(session.ViewHome))
	close(provider.release)

	assert.ErrorIs(t, <-done, session.ErrStaleResult)
	_, err := ctrl.Outcome(session.SlotCapture)
	assert.ErrorIs(t, err, session.ErrNoResult)
}

func TestControllerRetry(t *testing.T) {
	frame := []byte("retained-frame")

	t.Run("re-sends the retained frame asking for a different answer", func(t *testing.T) {
		source := &stubSource{frame: frame}
		provider := mock.NewProvider("mock").Script(
			textStep("a blazer"), textStep("a cardigan"), textStep("a denim jacket"))
		ctrl := newTestController(t, source, session.WithProvider(provider))

		require.NoError(t, ctrl.Navigate(session.ViewCapture))
		_, err := ctrl.Scan(context.Background())
		require.NoError(t, err)

		result, err := ctrl.Retry(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "a cardigan", result.Text)

		require.Len(t, provider.Requests, 2)
		retryReq := provider.Requests[1]
		assert.Equal(t, session.PromptCapture+session.DiversificationSuffix, retryReq.Instruction)
		require.NotNil(t, retryReq.Image)
		assert.Equal(t, *provider.Requests[0].Image.Data, *retryReq.Image.Data)

		// The clause is not compounded across retries.
		_, err = ctrl.Retry(context.Background())
		require.NoError(t, err)
		assert.Equal(t, retryReq.Instruction, provider.Requests[2].Instruction)
	})

	t.Run("works after the stream stopped", func(t *testing.T) {
		source := &stubSource{frame: frame}
		provider := mock.NewProvider("mock").Script(textStep("first"), textStep("second"))
		ctrl := newTestController(t, source, session.WithProvider(provider))

		require.NoError(t, ctrl.Navigate(session.ViewCapture))
		_, err := ctrl.Scan(context.Background())
		require.NoError(t, err)

		source.snapErr = capture.ErrNotReady // retry must not snapshot again
		result, err := ctrl.Retry(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "second", result.Text)
	})

	t.Run("requires a prior analysis", func(t *testing.T) {
		ctrl := newTestController(t, &stubSource{frame: frame},
			session.WithProvider(mock.NewProvider("mock")))

		require.NoError(t, ctrl.Navigate(session.ViewCapture))
		_, err := ctrl.Retry(context.Background())
		assert.ErrorIs(t, err, session.ErrNoResult)
	})
}

func TestControllerChat(t *testing.T) {
	frame := []byte("wardrobe-frame")

	t.Run("includes the prior exchange as context", func(t *testing.T) {
		source := &stubSource{frame: frame}
		provider := mock.NewProvider("mock").Script(
			textStep("try the linen shirt with chinos"),
			textStep("white sneakers work well"))
		ctrl := newTestController(t, source, session.WithProvider(provider))

		require.NoError(t, ctrl.Navigate(session.ViewWardrobe))
		_, err := ctrl.Scan(context.Background())
		require.NoError(t, err)

		result, err := ctrl.Chat(context.Background(), "what shoes go with that?")
		require.NoError(t, err)
		assert.Equal(t, "white sneakers work well", result.Text)

		require.Len(t, provider.Requests, 2)
		chatReq := provider.Requests[1]
		assert.Equal(t, "what shoes go with that?", chatReq.Instruction)
		assert.Nil(t, chatReq.Image)
		require.Len(t, chatReq.Prior, 2)
		assert.Equal(t, types.RoleUser, chatReq.Prior[0].Role)
		assert.Equal(t, session.PromptWardrobe, chatReq.Prior[0].GetContent())
		assert.Equal(t, types.RoleAssistant, chatReq.Prior[1].Role)
		assert.Equal(t, "try the linen shirt with chinos", chatReq.Prior[1].GetContent())
	})

	t.Run("conversation grows across turns", func(t *testing.T) {
		source := &stubSource{frame: frame}
		provider := mock.NewProvider("mock").Script(
			textStep("analysis"), textStep("answer one"), textStep("answer two"))
		ctrl := newTestController(t, source, session.WithProvider(provider))

		require.NoError(t, ctrl.Navigate(session.ViewWardrobe))
		_, err := ctrl.Scan(context.Background())
		require.NoError(t, err)
		_, err = ctrl.Chat(context.Background(), "first question")
		require.NoError(t, err)
		_, err = ctrl.Chat(context.Background(), "second question")
		require.NoError(t, err)

		require.Len(t, provider.Requests, 3)
		assert.Len(t, provider.Requests[2].Prior, 4)
	})

	t.Run("only available in the wardrobe view", func(t *testing.T) {
		ctrl := newTestController(t, &stubSource{frame: frame},
			session.WithProvider(mock.NewProvider("mock")))

		require.NoError(t, ctrl.Navigate(session.ViewCapture))
		_, err := ctrl.Chat(context.Background(), "hello")
		assert.ErrorIs(t, err, session.ErrWrongView)
	})

	t.Run("requires a prior analysis", func(t *testing.T) {
		ctrl := newTestController(t, &stubSource{frame: frame},
			session.WithProvider(mock.NewProvider("mock")))

		require.NoError(t, ctrl.Navigate(session.ViewWardrobe))
		_, err := ctrl.Chat(context.Background(), "hello")
		assert.ErrorIs(t, err, session.ErrNoResult)
	})
}

func TestControllerVisualize(t *testing.T) {
	frame := []byte("wardrobe-frame")
	imageData := base64.StdEncoding.EncodeToString([]byte("png-bytes"))

	t.Run("chains prompt synthesis into image generation", func(t *testing.T) {
		source := &stubSource{frame: frame}
		provider := mock.NewProvider("mock").
			Script(textStep("navy suit with brown loafers"),
				textStep("a person wearing a navy suit and brown loafers")).
			ScriptImages(mock.Step{Result: types.Result{
				Image: &types.MediaContent{Data: &imageData, MIMEType: "image/png"},
			}})
		ctrl := newTestController(t, source, session.WithProvider(provider))

		require.NoError(t, ctrl.Navigate(session.ViewWardrobe))
		_, err := ctrl.Scan(context.Background())
		require.NoError(t, err)

		result, err := ctrl.Visualize(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.ResultImage, result.Kind())

		// The synthesis call saw the analysis text, the generation call saw
		// the synthesized prompt.
		require.Len(t, provider.Requests, 2)
		assert.Contains(t, provider.Requests[1].Instruction, "navy suit with brown loafers")
		require.Len(t, provider.ImagePrompts, 1)
		assert.Equal(t, "a person wearing a navy suit and brown loafers", provider.ImagePrompts[0])
	})

	t.Run("can be re-run from the retained analysis", func(t *testing.T) {
		source := &stubSource{frame: frame}
		provider := mock.NewProvider("mock").
			Script(textStep("navy suit with brown loafers"),
				textStep("a person wearing a navy suit and brown loafers")).
			ScriptImages(mock.Step{Result: types.Result{
				Image: &types.MediaContent{Data: &imageData, MIMEType: "image/png"},
			}})
		ctrl := newTestController(t, source, session.WithProvider(provider))

		require.NoError(t, ctrl.Navigate(session.ViewWardrobe))
		_, err := ctrl.Scan(context.Background())
		require.NoError(t, err)

		first, err := ctrl.Visualize(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.ResultImage, first.Kind())

		// The image is what the slot now shows, but the analysis text is
		// still retained underneath it.
		outcome, err := ctrl.Outcome(session.SlotWardrobe)
		require.NoError(t, err)
		assert.Equal(t, types.ResultImage, outcome.Kind())

		second, err := ctrl.Visualize(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.ResultImage, second.Kind())

		// Both synthesis calls were built from the same analysis.
		require.Len(t, provider.Requests, 3)
		assert.Contains(t, provider.Requests[2].Instruction, "navy suit with brown loafers")
		assert.Len(t, provider.ImagePrompts, 2)
	})

	t.Run("aborts before the second call when synthesis fails", func(t *testing.T) {
		source := &stubSource{frame: frame}
		provider := mock.NewProvider("mock").
			Script(textStep("analysis"),
				mock.Step{Err: providers.NewNetworkError(errors.New("connection reset"))})
		ctrl := newTestController(t, source, session.WithProvider(provider))

		require.NoError(t, ctrl.Navigate(session.ViewWardrobe))
		_, err := ctrl.Scan(context.Background())
		require.NoError(t, err)

		_, err = ctrl.Visualize(context.Background())
		require.Error(t, err)
		assert.Empty(t, provider.ImagePrompts)
		assert.Equal(t, session.StateResultFailed, ctrl.State(session.SlotWardrobe))
	})

	t.Run("rejects providers without image support", func(t *testing.T) {
		source := &stubSource{frame: frame}
		inner := mock.NewProvider("mock").Script(textStep("analysis"))
		ctrl := newTestController(t, source, session.WithProvider(textOnly{inner}))

		require.NoError(t, ctrl.Navigate(session.ViewWardrobe))
		_, err := ctrl.Scan(context.Background())
		require.NoError(t, err)

		_, err = ctrl.Visualize(context.Background())
		assert.ErrorIs(t, err, session.ErrNoImageSupport)
	})

	t.Run("requires a prior analysis", func(t *testing.T) {
		ctrl := newTestController(t, &stubSource{frame: frame},
			session.WithProvider(mock.NewProvider("mock")))

		require.NoError(t, ctrl.Navigate(session.ViewWardrobe))
		_, err := ctrl.Visualize(context.Background())
		assert.ErrorIs(t, err, session.ErrNoResult)
	})
}

func TestControllerUnknownSlot(t *testing.T) {
	ctrl := newTestController(t, &stubSource{frame: []byte("frame")},
		session.WithProvider(mock.NewProvider("mock")))

	assert.Equal(t, session.StateIdle, ctrl.State(session.Slot("closet")))
	_, err := ctrl.Outcome(session.Slot("closet"))
	assert.ErrorIs(t, err, session.ErrNoResult)
}

func TestControllerNavigate(t *testing.T) {
	t.Run("stops the stream when leaving a camera view", func(t *testing.T) {
		source := &stubSource{frame: []byte("frame")}
		ctrl := newTestController(t, source, session.WithProvider(mock.NewProvider("mock")))

		require.NoError(t, ctrl.Navigate(session.ViewCapture))
		require.NoError(t, ctrl.Navigate(session.ViewHome))
		assert.Equal(t, 1, source.stopCount())
		assert.Equal(t, session.StateIdle, ctrl.State(session.SlotCapture))
	})

	t.Run("results survive navigation", func(t *testing.T) {
		source := &stubSource{frame: []byte("frame")}
		provider := mock.NewProvider("mock").Script(textStep("keep me"))
		ctrl := newTestController(t, source, session.WithProvider(provider))

		require.NoError(t, ctrl.Navigate(session.ViewCapture))
		_, err := ctrl.Scan(context.Background())
		require.NoError(t, err)

		require.NoError(t, ctrl.Navigate(session.ViewHome))
		result, err := ctrl.Outcome(session.SlotCapture)
		require.NoError(t, err)
		assert.Equal(t, "keep me", result.Text)
	})

	t.Run("rejects unknown views", func(t *testing.T) {
		ctrl := newTestController(t, &stubSource{}, session.WithProvider(mock.NewProvider("mock")))
		assert.Error(t, ctrl.Navigate(session.View("settings")))
	})
}

func TestControllerClearData(t *testing.T) {
	source := &stubSource{frame: []byte("frame")}
	provider := mock.NewProvider("mock").Script(textStep("result"))

	prefs, err := credentials.NewStore(filepath.Join(t.TempDir(), "preferences.json"))
	require.NoError(t, err)
	require.NoError(t, prefs.Set(credentials.StoreKeyAPIKey, "sk-test"))

	ctrl := session.New(config.Default(), source, prefs, statestore.NewMemoryStore(),
		session.WithProvider(provider),
		session.WithLimiter(rate.NewLimiter(rate.Inf, 1)))

	require.NoError(t, ctrl.Navigate(session.ViewCapture))
	_, err = ctrl.Scan(context.Background())
	require.NoError(t, err)

	require.NoError(t, ctrl.ClearData())
	assert.Empty(t, prefs.Get(credentials.StoreKeyAPIKey))
	_, err = ctrl.Outcome(session.SlotCapture)
	assert.ErrorIs(t, err, session.ErrNoResult)
}

// blockingProvider parks Infer until released, for in-flight assertions.
type blockingProvider struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingProvider() *blockingProvider {
	return &blockingProvider{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingProvider) ID() string    { return "blocking" }
func (b *blockingProvider) Model() string { return "blocking-model" }
func (b *blockingProvider) Close() error  { return nil }

func (b *blockingProvider) Infer(context.Context, types.InferenceRequest) (types.Result, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return types.Result{Text: "late"}, nil
}

// textOnly hides the mock's image generation method.
type textOnly struct {
	providers.Provider
}
