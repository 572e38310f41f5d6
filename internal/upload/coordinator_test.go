package upload

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"storeadmin/internal/events"
	"storeadmin/internal/models"
	"storeadmin/pkg/logger"

	"github.com/stretchr/testify/suite"
	"go.uber.org/multierr"
)

// gatedUploader blocks each file until its gate is released.
type gatedUploader struct {
	mu      sync.Mutex
	gates   map[string]chan error
	started chan string
}

func newGatedUploader(names ...string) *gatedUploader {
	u := &gatedUploader{gates: make(map[string]chan error), started: make(chan string, 16)}
	for _, n := range names {
		u.gates[n] = make(chan error, 1)
	}
	return u
}

func (u *gatedUploader) Upload(ctx context.Context, file models.UploadFile) ([]string, error) {
	u.mu.Lock()
	gate := u.gates[file.Filename]
	u.mu.Unlock()
	u.started <- file.Filename

	select {
	case err := <-gate:
		if err != nil {
			return nil, err
		}
		return []string{"https://cdn.example.com/" + file.Filename}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (u *gatedUploader) release(name string, err error) {
	u.gates[name] <- err
}

type sliceSink struct {
	mu     sync.Mutex
	images []string
}

func (s *sliceSink) AppendImages(urls ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append(s.images, urls...)
	out := make([]string, len(s.images))
	copy(out, s.images)
	return out
}

func (s *sliceSink) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.images...)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) uploadingValues() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bool
	for _, e := range r.events {
		if e.Kind == events.KindUploadingChanged {
			out = append(out, e.Value.(bool))
		}
	}
	return out
}

// holdingRecorder holds the first "uploading off" event until resume is closed.
type holdingRecorder struct {
	recorder
	once   sync.Once
	held   chan struct{}
	resume chan struct{}
}

func newHoldingRecorder() *holdingRecorder {
	return &holdingRecorder{held: make(chan struct{}), resume: make(chan struct{})}
}

func (r *holdingRecorder) Publish(e events.Event) {
	if e.Kind == events.KindUploadingChanged && e.Value == false {
		r.once.Do(func() {
			close(r.held)
			<-r.resume
		})
	}
	r.recorder.Publish(e)
}

func files(names ...string) []models.UploadFile {
	out := make([]models.UploadFile, len(names))
	for i, n := range names {
		out[i] = models.UploadFile{Filename: n, ContentType: "image/jpeg", Reader: strings.NewReader(n)}
	}
	return out
}

type CoordinatorTestSuite struct {
	suite.Suite
	sink     *sliceSink
	recorder *recorder
}

func (s *CoordinatorTestSuite) SetupTest() {
	s.sink = &sliceSink{}
	s.recorder = &recorder{}
}

func (s *CoordinatorTestSuite) waitStarted(u *gatedUploader, n int) {
	for i := 0; i < n; i++ {
		select {
		case <-u.started:
		case <-time.After(2 * time.Second):
			s.FailNow("upload was not started")
		}
	}
}

func (s *CoordinatorTestSuite) TestEmptySelection() {
	u := newGatedUploader()
	c := NewCoordinator(u, s.sink, s.recorder, logger.Nop())

	batch, err := c.Start(context.Background(), nil)
	s.ErrorIs(err, ErrNoFiles)
	s.Nil(batch)
	s.False(c.Uploading())
	s.Empty(s.recorder.uploadingValues())
}

func (s *CoordinatorTestSuite) TestConcurrentFilesAppendInCompletionOrder() {
	u := newGatedUploader("a.jpg", "b.jpg", "c.jpg")
	c := NewCoordinator(u, s.sink, s.recorder, logger.Nop())

	batch, err := c.Start(context.Background(), files("a.jpg", "b.jpg", "c.jpg"))
	s.Require().NoError(err)
	s.True(c.Uploading())

	// all three requests are outstanding at once
	s.waitStarted(u, 3)
	s.Equal(3, c.PendingFiles())
	s.Len(c.InFlight(), 1)

	u.release("c.jpg", nil)
	u.release("a.jpg", nil)
	s.Eventually(func() bool { return len(s.sink.list()) == 2 }, 2*time.Second, 5*time.Millisecond)
	s.True(c.Uploading())

	u.release("b.jpg", nil)
	s.Require().NoError(batch.Wait(context.Background()))

	s.False(c.Uploading())
	s.Empty(c.InFlight())
	s.Equal([]string{
		"https://cdn.example.com/c.jpg",
		"https://cdn.example.com/a.jpg",
		"https://cdn.example.com/b.jpg",
	}, s.sink.list())
	s.Equal(s.sink.list(), batch.URLs())
	s.Eventually(func() bool {
		v := s.recorder.uploadingValues()
		return len(v) == 2 && v[0] && !v[1]
	}, time.Second, 5*time.Millisecond)
}

func (s *CoordinatorTestSuite) TestFlagStaysSetUntilEveryBatchSettles() {
	u := newGatedUploader("first.jpg", "second.jpg")
	c := NewCoordinator(u, s.sink, s.recorder, logger.Nop())

	first, err := c.Start(context.Background(), files("first.jpg"))
	s.Require().NoError(err)
	second, err := c.Start(context.Background(), files("second.jpg"))
	s.Require().NoError(err)
	s.NotEqual(first.ID, second.ID)
	s.waitStarted(u, 2)

	u.release("first.jpg", nil)
	s.Require().NoError(first.Wait(context.Background()))
	s.True(c.Uploading(), "second batch is still outstanding")
	s.Len(c.InFlight(), 1)

	u.release("second.jpg", nil)
	s.Require().NoError(second.Wait(context.Background()))
	s.False(c.Uploading())
	s.Equal([]bool{true, false}, s.recorder.uploadingValues())
}

func (s *CoordinatorTestSuite) TestFlagEventsFollowStateWhenBatchStartsDuringSettle() {
	u := newGatedUploader("a.jpg", "b.jpg")
	rec := newHoldingRecorder()
	c := NewCoordinator(u, s.sink, rec, logger.Nop())

	first, err := c.Start(context.Background(), files("a.jpg"))
	s.Require().NoError(err)
	s.waitStarted(u, 1)

	u.release("a.jpg", nil)
	select {
	case <-rec.held:
	case <-time.After(2 * time.Second):
		s.FailNow("first batch did not settle")
	}

	started := make(chan *Batch, 1)
	go func() {
		b, err := c.Start(context.Background(), files("b.jpg"))
		s.NoError(err)
		started <- b
	}()

	// give the second Start a chance to race the held event
	time.Sleep(20 * time.Millisecond)
	close(rec.resume)

	var second *Batch
	select {
	case second = <-started:
	case <-time.After(2 * time.Second):
		s.FailNow("second batch did not start")
	}
	s.Require().NoError(first.Wait(context.Background()))
	s.waitStarted(u, 1)

	s.True(c.Uploading())
	s.Equal([]bool{true, false, true}, rec.uploadingValues())

	u.release("b.jpg", nil)
	s.Require().NoError(second.Wait(context.Background()))
	s.Equal([]bool{true, false, true, false}, rec.uploadingValues())
}

func (s *CoordinatorTestSuite) TestFailuresAreCombined() {
	u := newGatedUploader("ok.jpg", "bad1.jpg", "bad2.jpg")
	c := NewCoordinator(u, s.sink, s.recorder, logger.Nop())

	batch, err := c.Start(context.Background(), files("ok.jpg", "bad1.jpg", "bad2.jpg"))
	s.Require().NoError(err)
	s.waitStarted(u, 3)

	boom := errors.New("413 payload too large")
	u.release("bad1.jpg", boom)
	u.release("ok.jpg", nil)
	u.release("bad2.jpg", boom)

	err = batch.Wait(context.Background())
	s.Require().Error(err)
	s.ErrorIs(err, boom)
	s.Len(multierr.Errors(err), 2)
	s.False(c.Uploading())
	s.Equal([]string{"https://cdn.example.com/ok.jpg"}, s.sink.list())
}

func (s *CoordinatorTestSuite) TestWaitHonoursContext() {
	u := newGatedUploader("slow.jpg")
	c := NewCoordinator(u, s.sink, nil, logger.Nop())

	batch, err := c.Start(context.Background(), files("slow.jpg"))
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s.ErrorIs(batch.Wait(ctx), context.DeadlineExceeded)
	s.True(c.Uploading())

	u.release("slow.jpg", nil)
	s.Require().NoError(batch.Wait(context.Background()))
}

func TestCoordinatorTestSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}
