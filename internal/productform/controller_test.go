package productform

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"storeadmin/internal/events"
	"storeadmin/internal/models"
	"storeadmin/internal/upload"
	"storeadmin/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProductAPI struct {
	mock.Mock
}

func (m *MockProductAPI) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductAPI) CreateProduct(ctx context.Context, p models.Product) (*models.Product, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductAPI) UpdateProduct(ctx context.Context, p models.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

type staticCategories []models.Category

func (s staticCategories) Load(ctx context.Context) ([]models.Category, error) {
	return append([]models.Category(nil), s...), nil
}

// gateUploader holds every upload until release is closed.
type gateUploader struct {
	release chan struct{}
	started chan string
}

func newGateUploader() *gateUploader {
	return &gateUploader{release: make(chan struct{}), started: make(chan string, 8)}
}

func (u *gateUploader) Upload(ctx context.Context, file models.UploadFile) ([]string, error) {
	u.started <- file.Filename
	<-u.release
	return []string{"https://cdn.example.com/" + file.Filename}, nil
}

// keyedUploader holds each file until its own gate is closed.
type keyedUploader struct {
	gates   map[string]chan struct{}
	started chan string
}

func newKeyedUploader(names ...string) *keyedUploader {
	u := &keyedUploader{gates: make(map[string]chan struct{}), started: make(chan string, 8)}
	for _, n := range names {
		u.gates[n] = make(chan struct{})
	}
	return u
}

func (u *keyedUploader) Upload(ctx context.Context, file models.UploadFile) ([]string, error) {
	u.started <- file.Filename
	<-u.gates[file.Filename]
	return []string{"https://cdn.example.com/" + file.Filename}, nil
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("save did not finish")
	}
}

var catalogTree = staticCategories{
	{ID: "a", Name: "Electronics", Properties: []models.PropertySpec{{Name: "brand", Values: []string{"X", "Y"}}}},
	{ID: "b", Name: "Phones", Parent: &models.CategoryRef{ID: "a"}, Properties: []models.PropertySpec{{Name: "color", Values: []string{"red", "blue"}}}},
	{ID: "z", Name: "Books", Properties: []models.PropertySpec{{Name: "author"}}},
}

func newDeps(api ProductAPI, uploader upload.Uploader) Deps {
	return Deps{
		Products:   api,
		Categories: catalogTree,
		Uploader:   uploader,
		Logger:     logger.Nop(),
	}
}

func one(name string) []models.UploadFile {
	return []models.UploadFile{{Filename: name, ContentType: "image/png", Reader: strings.NewReader(name)}}
}

func drain(ch <-chan events.Event) []events.Kind {
	var kinds []events.Kind
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return kinds
			}
			kinds = append(kinds, e.Kind)
		default:
			return kinds
		}
	}
}

func TestController_UpdateExistingProduct(t *testing.T) {
	api := new(MockProductAPI)
	api.On("GetProduct", mock.Anything, "p1").Return(&models.Product{
		ID:         "p1",
		Title:      "Old",
		Price:      decimal.NewFromInt(5),
		Images:     []string{"u0"},
		Category:   "b",
		Properties: map[string]string{"color": "red"},
	}, nil).Once()
	api.On("UpdateProduct", mock.Anything, mock.MatchedBy(func(p models.Product) bool {
		return p.ID == "p1" && p.Title == "New" && p.Price.Equal(decimal.RequireFromString("7.25")) &&
			assert.ObjectsAreEqual([]string{"u0"}, p.Images) &&
			assert.ObjectsAreEqual(map[string]string{"color": "red"}, p.Properties)
	})).Return(nil).Once()

	form, err := Open(context.Background(), newDeps(api, newGateUploader()), "p1")
	require.NoError(t, err)

	form.SetTitle("New")
	require.NoError(t, form.SetPrice("7.25"))

	res, err := form.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ListingPath, res.Navigate)
	assert.Equal(t, "p1", res.Product.ID)
	api.AssertExpectations(t)
}

func TestController_CreateWaitsForUploadsInFlight(t *testing.T) {
	api := new(MockProductAPI)
	uploader := newGateUploader()
	api.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p models.Product) bool {
		return p.ID == "" && assert.ObjectsAreEqual([]string{"https://cdn.example.com/a.png"}, p.Images)
	})).Return(&models.Product{ID: "new1", Title: "T"}, nil).Once()

	form, err := Open(context.Background(), newDeps(api, uploader), "")
	require.NoError(t, err)
	form.SetTitle("T")

	_, err = form.UploadImages(context.Background(), one("a.png"))
	require.NoError(t, err)
	<-uploader.started
	assert.True(t, form.Uploading())

	done := make(chan struct{})
	var res *Result
	var saveErr error
	go func() {
		res, saveErr = form.Save(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("save finished while an upload was still running")
	case <-time.After(50 * time.Millisecond):
	}
	api.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything)

	close(uploader.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("save did not finish")
	}
	require.NoError(t, saveErr)
	assert.Equal(t, "new1", res.Product.ID)
	assert.False(t, form.Uploading())
	api.AssertExpectations(t)
}

func TestController_UpdateWaitsForUploadsInFlight(t *testing.T) {
	api := new(MockProductAPI)
	uploader := newKeyedUploader("new.png")
	api.On("GetProduct", mock.Anything, "p1").Return(&models.Product{ID: "p1", Title: "Old", Images: []string{"u0"}}, nil).Once()
	api.On("UpdateProduct", mock.Anything, mock.MatchedBy(func(p models.Product) bool {
		return p.ID == "p1" && assert.ObjectsAreEqual([]string{"u0", "https://cdn.example.com/new.png"}, p.Images)
	})).Return(nil).Once()

	form, err := Open(context.Background(), newDeps(api, uploader), "p1")
	require.NoError(t, err)

	_, err = form.UploadImages(context.Background(), one("new.png"))
	require.NoError(t, err)
	<-uploader.started

	done := make(chan struct{})
	var saveErr error
	go func() {
		_, saveErr = form.Save(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("update finished while an upload was still running")
	case <-time.After(50 * time.Millisecond):
	}
	api.AssertNotCalled(t, "UpdateProduct", mock.Anything, mock.Anything)

	close(uploader.gates["new.png"])
	waitDone(t, done)
	require.NoError(t, saveErr)
	api.AssertExpectations(t)
}

func TestController_SaveIgnoresBatchesStartedAfterCall(t *testing.T) {
	api := new(MockProductAPI)
	uploader := newKeyedUploader("early.png", "late.png")
	api.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p models.Product) bool {
		return assert.ObjectsAreEqual([]string{"https://cdn.example.com/early.png"}, p.Images)
	})).Return(&models.Product{ID: "n1"}, nil).Once()

	form, err := Open(context.Background(), newDeps(api, uploader), "")
	require.NoError(t, err)

	_, err = form.UploadImages(context.Background(), one("early.png"))
	require.NoError(t, err)
	<-uploader.started

	done := make(chan struct{})
	var saveErr error
	go func() {
		_, saveErr = form.Save(context.Background())
		close(done)
	}()
	// let Save take its snapshot of the batches in flight
	time.Sleep(50 * time.Millisecond)

	late, err := form.UploadImages(context.Background(), one("late.png"))
	require.NoError(t, err)
	<-uploader.started

	close(uploader.gates["early.png"])
	waitDone(t, done)
	require.NoError(t, saveErr)
	assert.True(t, form.Uploading(), "late batch is still running")
	api.AssertExpectations(t)

	close(uploader.gates["late.png"])
	require.NoError(t, late.Wait(context.Background()))
	assert.False(t, form.Uploading())
}

func TestController_SubmitsOnlyResolvedProperties(t *testing.T) {
	api := new(MockProductAPI)
	api.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p models.Product) bool {
		return assert.ObjectsAreEqual(map[string]string{"color": "blue", "brand": "X"}, p.Properties)
	})).Return(&models.Product{ID: "n"}, nil).Once()

	form, err := Open(context.Background(), newDeps(api, newGateUploader()), "")
	require.NoError(t, err)

	form.SetCategory("z")
	form.SetProperty("author", "someone")
	form.SetCategory("b")
	form.SetProperty("color", "blue")
	form.SetProperty("brand", "X")

	specs := form.Properties()
	require.Len(t, specs, 2)
	assert.Equal(t, "color", specs[0].Name)
	assert.Equal(t, "brand", specs[1].Name)

	// values entered under the previous category stay in state
	assert.Equal(t, "someone", form.State().Properties["author"])

	_, err = form.Save(context.Background())
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestController_SetPrice(t *testing.T) {
	form, err := Open(context.Background(), newDeps(new(MockProductAPI), newGateUploader()), "")
	require.NoError(t, err)

	assert.ErrorIs(t, form.SetPrice("12abc"), ErrInvalidPrice)
	require.NoError(t, form.SetPrice("19.99"))
	assert.True(t, form.State().Price.Equal(decimal.RequireFromString("19.99")))
	require.NoError(t, form.SetPrice(""))
	assert.True(t, form.State().Price.IsZero())
}

func TestController_SaveEventsAndFailure(t *testing.T) {
	api := new(MockProductAPI)
	boom := errors.New("catalog unavailable")
	api.On("CreateProduct", mock.Anything, mock.Anything).Return(nil, boom).Once()
	api.On("CreateProduct", mock.Anything, mock.Anything).Return(&models.Product{ID: "ok"}, nil).Once()

	form, err := Open(context.Background(), newDeps(api, newGateUploader()), "")
	require.NoError(t, err)
	ch, cancel := form.Subscribe()
	defer cancel()

	_, err = form.Save(context.Background())
	var saveErr *SaveError
	require.True(t, errors.As(err, &saveErr))
	assert.Equal(t, "create", saveErr.Op)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []events.Kind{events.KindSaveFailed}, drain(ch))

	_, err = form.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []events.Kind{events.KindSaved, events.KindNavigate}, drain(ch))
}

func TestController_ReorderReplacesImages(t *testing.T) {
	api := new(MockProductAPI)
	api.On("GetProduct", mock.Anything, "p1").Return(&models.Product{ID: "p1", Images: []string{"u1", "u2", "u3"}}, nil)

	form, err := Open(context.Background(), newDeps(api, newGateUploader()), "p1")
	require.NoError(t, err)

	form.ReorderImages([]string{"u3", "u1"})
	assert.Equal(t, []string{"u3", "u1"}, form.State().Images)
}

func TestManager_SessionsAndSweep(t *testing.T) {
	uploader := newGateUploader()
	m := NewManager(newDeps(new(MockProductAPI), uploader), 10*time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	idle, err := m.Open(context.Background(), "")
	require.NoError(t, err)
	busy, err := m.Open(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	_, err = busy.UploadImages(context.Background(), one("slow.png"))
	require.NoError(t, err)
	<-uploader.started

	now = now.Add(11 * time.Minute)
	assert.Equal(t, 1, m.SweepIdle())

	_, err = m.Get(idle.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	got, err := m.Get(busy.ID())
	require.NoError(t, err)
	assert.Same(t, busy, got)

	close(uploader.release)
	assert.True(t, m.Discard(busy.ID()))
	assert.False(t, m.Discard(uuid.New()))
	assert.Equal(t, 0, m.Len())
}
