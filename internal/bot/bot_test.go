package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"housebot/server/internal/comparison"
	"housebot/server/internal/geocoding"
	"housebot/server/internal/geometry"
	"housebot/server/internal/history"
	"housebot/server/internal/models"
	"housebot/server/internal/render"
	"housebot/server/internal/telegram"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testUser int64 = 42
	testChat int64 = 4242
)

type sentMessage struct {
	text     string
	markdown bool
	keyboard bool
}

// fakeSender records everything the bot sends. Photo paths that do not
// exist at send time are collected in missing. err fails every call;
// photoErr and albumErr fail only their method.
type fakeSender struct {
	mu       sync.Mutex
	messages []sentMessage
	photos   []models.Photo
	albums   [][]models.Photo
	missing  []string
	err      error
	photoErr error
	albumErr error
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string, opts ...telegram.MessageOption) error {
	payload := map[string]interface{}{"parse_mode": telegram.ParseModeMarkdown}
	for _, opt := range opts {
		opt(payload)
	}
	_, markdown := payload["parse_mode"]
	_, keyboard := payload["reply_markup"]

	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{text: text, markdown: markdown, keyboard: keyboard})
	return f.err
}

func (f *fakeSender) SendPhoto(ctx context.Context, chatID int64, photo models.Photo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkExists(photo)
	f.photos = append(f.photos, photo)
	if f.photoErr != nil {
		return f.photoErr
	}
	return f.err
}

func (f *fakeSender) SendMediaGroup(ctx context.Context, chatID int64, photos []models.Photo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range photos {
		f.checkExists(p)
	}
	f.albums = append(f.albums, photos)
	if f.albumErr != nil {
		return f.albumErr
	}
	return f.err
}

func (f *fakeSender) checkExists(p models.Photo) {
	if _, err := os.Stat(p.Path); err != nil {
		f.missing = append(f.missing, p.Path)
	}
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.text
	}
	return out
}

func (f *fakeSender) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[len(f.messages)-1]
}

// MockStore is a mock implementation of the building store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) FindNearestBuilding(ctx context.Context, lat, lon, radius float64) (*models.BuildingReport, error) {
	args := m.Called(lat, lon, radius)
	report, _ := args.Get(0).(*models.BuildingReport)
	return report, args.Error(1)
}

func (m *MockStore) TopBuildings(ctx context.Context, limit int) ([]models.RatedAddress, error) {
	args := m.Called(limit)
	top, _ := args.Get(0).([]models.RatedAddress)
	return top, args.Error(1)
}

func (m *MockStore) ScoreDistribution(ctx context.Context) ([]float64, error) {
	args := m.Called()
	scores, _ := args.Get(0).([]float64)
	return scores, args.Error(1)
}

type fakeGeocoder struct {
	point   orb.Point
	err     error
	queries []string
}

func (f *fakeGeocoder) ResolveAddress(ctx context.Context, address string) (orb.Point, error) {
	f.queries = append(f.queries, address)
	return f.point, f.err
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *fakeRecorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *fakeRecorder) ObserveLookup(source, result string) { r.add("lookup:" + source + ":" + result) }
func (r *fakeRecorder) ObserveGeocode(result string)        { r.add("geocode:" + result) }
func (r *fakeRecorder) ObserveComparison(result string)     { r.add("comparison:" + result) }

type fixture struct {
	bot      *Bot
	sender   *fakeSender
	store    *MockStore
	geocoder *fakeGeocoder
	history  *history.Store
	machine  *comparison.Machine
	metrics  *fakeRecorder
	tempDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		sender:   &fakeSender{},
		store:    &MockStore{},
		geocoder: &fakeGeocoder{},
		history:  history.NewStore(),
		metrics:  &fakeRecorder{},
		tempDir:  t.TempDir(),
	}
	f.machine = comparison.NewMachine(comparison.NewSessions(), f.history, f.store, logger)
	f.bot = New(Deps{
		Sender:   f.sender,
		Store:    f.store,
		Geocoder: f.geocoder,
		Renderer: render.NewRenderer(logger, f.tempDir),
		History:  f.history,
		Machine:  f.machine,
		Metrics:  f.metrics,
		Logger:   logger,
	})
	return f
}

func (f *fixture) send(t *testing.T, text string) error {
	t.Helper()
	return f.bot.Handle(context.Background(), models.Update{
		UpdateID: 1,
		Message: &models.Message{
			From: &models.User{ID: testUser},
			Chat: models.Chat{ID: testChat, Type: "private"},
			Text: text,
		},
	})
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func buildingReport(id int64, total float64) *models.BuildingReport {
	return &models.BuildingReport{
		Building: models.Building{
			ID:             id,
			Address:        fmt.Sprintf("Тверская ул., %d", id),
			TotalScore:     total,
			SocialScore:    70.1,
			QualityScore:   90,
			TransportScore: 84.2,
			BuildYear:      intPtr(1958),
			Floors:         intPtr(9),
			Area:           floatPtr(5400.5),
			Apartments:     intPtr(120),
			LivingArea:     floatPtr(4100),
			NonLivingArea:  floatPtr(1300.5),
			Geometry:       geometry.NewPoint(55.7523, 37.6157),
		},
		Radius: 1000,
	}
}

func TestHandle_CoordinatesLookup(t *testing.T) {
	// Setup
	f := newFixture(t)
	f.store.On("FindNearestBuilding", 55.7522, 37.6156, 1000.0).Return(buildingReport(17, 81.46), nil)

	// Test
	require.NoError(t, f.send(t, "55.7522, 37.6156"))

	// Assert
	entries := f.history.List(testUser)
	require.Len(t, entries, 1)
	assert.Equal(t, "coords: 55.7522,37.6156, r=1000", entries[0].Label)
	assert.Equal(t, 1000.0, entries[0].Radius)

	texts := f.sender.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, MsgSearching, texts[0])
	assert.Contains(t, texts[1], "🏠 *Дом:* Тверская ул., 17 (ID: 17)")
	assert.True(t, f.sender.last().markdown)
	assert.Equal(t, []string{"lookup:coordinates:found"}, f.metrics.events)
	f.store.AssertExpectations(t)
}

func TestHandle_CoordinatesWithRadius(t *testing.T) {
	f := newFixture(t)
	f.store.On("FindNearestBuilding", 55.7, 37.6, 250.0).Return(nil, nil)

	require.NoError(t, f.send(t, "55.7 37.6 250"))

	assert.Equal(t, "coords: 55.7,37.6, r=250", f.history.List(testUser)[0].Label)
	assert.Equal(t, []string{MsgSearching, MsgBuildingMissing}, f.sender.texts())
	assert.Equal(t, []string{"lookup:coordinates:not_found"}, f.metrics.events)
}

func TestHandle_UnresolvableAddress(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantMetric string
	}{
		{name: "no match", err: geocoding.ErrNoMatch, wantMetric: "geocode:no_match"},
		{name: "transport failure", err: fmt.Errorf("geocoding request failed: %w", errors.New("timeout")), wantMetric: "geocode:error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			f := newFixture(t)
			f.geocoder.err = tt.err

			// Test
			require.NoError(t, f.send(t, "адрес: Несуществующая улица, 999"))

			// Assert
			assert.Equal(t, []string{MsgGeocoding, MsgGeocodeFailed}, f.sender.texts())
			assert.Empty(t, f.history.List(testUser))
			assert.Equal(t, []string{tt.wantMetric}, f.metrics.events)
			f.store.AssertNotCalled(t, "FindNearestBuilding", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHandle_AddressLookup(t *testing.T) {
	f := newFixture(t)
	f.geocoder.point = geometry.NewPoint(55.75, 37.61)
	f.store.On("FindNearestBuilding", 55.75, 37.61, 1000.0).Return(buildingReport(3, 60), nil)

	require.NoError(t, f.send(t, "Адрес:  Москва, Тверская, 12"))

	assert.Equal(t, []string{"Москва, Тверская, 12"}, f.geocoder.queries)
	entries := f.history.List(testUser)
	require.Len(t, entries, 1)
	assert.Equal(t, "адрес: Москва, Тверская, 12", entries[0].Label)
	assert.Equal(t, 55.75, entries[0].Latitude)
	assert.Equal(t, 37.61, entries[0].Longitude)

	texts := f.sender.texts()
	require.Len(t, texts, 3)
	assert.Equal(t, MsgGeocoding, texts[0])
	assert.Equal(t, MsgSearching, texts[1])
	assert.Contains(t, texts[2], "(ID: 3)")
}

func TestHandle_Location(t *testing.T) {
	f := newFixture(t)
	f.store.On("FindNearestBuilding", 55.75, 37.61, 1000.0).Return(nil, nil)

	err := f.bot.Handle(context.Background(), models.Update{
		Message: &models.Message{
			From:     &models.User{ID: testUser},
			Chat:     models.Chat{ID: testChat},
			Location: &models.Location{Latitude: 55.75, Longitude: 37.61},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "локация: 55.75,37.61, r=1000", f.history.List(testUser)[0].Label)
	assert.Equal(t, []string{MsgSearching, MsgBuildingMissing}, f.sender.texts())
}

func TestHandle_SimpleReplies(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		want         string
		wantMarkdown bool
		wantKeyboard bool
	}{
		{name: "start", text: "/start", want: MsgGreeting, wantMarkdown: true, wantKeyboard: true},
		{name: "start with bot name", text: "/start@HouseRatingBot", want: MsgGreeting, wantMarkdown: true, wantKeyboard: true},
		{name: "ask coordinates", text: ButtonCoordinates, want: MsgAskCoordinates, wantMarkdown: true},
		{name: "ask address", text: ButtonAddress, want: MsgAskAddress, wantMarkdown: true},
		{name: "typed location button", text: ButtonLocation, want: MsgAskLocation, wantKeyboard: true},
		{name: "about rating", text: ButtonAboutRating, want: MsgAboutRating},
		{name: "about", text: ButtonAbout, want: MsgAbout},
		{name: "empty history", text: ButtonHistory, want: comparison.MsgEmptyHistory},
		{name: "compare with empty history", text: ButtonCompare, want: comparison.MsgEmptyHistory},
		{name: "nothing to cancel", text: "/cancel", want: MsgNothingToCancel},
		{name: "empty address", text: "адрес:   ", want: MsgEmptyAddress},
		{name: "bad coordinates", text: "55.7, east", want: MsgBadCoordinates},
		{name: "single word", text: "привет", want: MsgUnknown},
		{name: "too many tokens", text: "1 2 3 4", want: MsgUnknown},
		{name: "unknown command", text: "/help", want: MsgUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			require.NoError(t, f.send(t, tt.text))

			require.Len(t, f.sender.messages, 1)
			got := f.sender.last()
			assert.Equal(t, tt.want, got.text)
			assert.Equal(t, tt.wantMarkdown, got.markdown)
			assert.Equal(t, tt.wantKeyboard, got.keyboard)
			assert.Empty(t, f.history.List(testUser))
		})
	}
}

func TestHandle_IgnoresEmptyUpdates(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.bot.Handle(context.Background(), models.Update{UpdateID: 7}))
	require.NoError(t, f.bot.Handle(context.Background(), models.Update{Message: &models.Message{Text: "/start"}}))
	require.NoError(t, f.send(t, "   "))

	assert.Empty(t, f.sender.messages)
}

func TestHandle_DatabaseFailure(t *testing.T) {
	// Setup
	f := newFixture(t)
	f.store.On("FindNearestBuilding", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	// Test
	err := f.send(t, "55.7522, 37.6156")

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, []string{MsgSearching, MsgUnavailable}, f.sender.texts())
	assert.Len(t, f.history.List(testUser), 1)
	assert.Equal(t, []string{"lookup:coordinates:error"}, f.metrics.events)
}

func TestHandle_SendFailureIsNotReportedToUser(t *testing.T) {
	f := newFixture(t)
	f.sender.err = telegram.ErrForbidden

	err := f.send(t, ButtonAbout)

	assert.ErrorIs(t, err, telegram.ErrForbidden)
	assert.NotErrorIs(t, err, errUnavailable)
	assert.Len(t, f.sender.messages, 1)
}

func TestHandle_History(t *testing.T) {
	f := newFixture(t)
	f.history.Record(testUser, models.HistoryEntry{Latitude: 55.1, Longitude: 37.1, Radius: 1000, Label: "адрес: Арбат 1"})
	f.history.Record(testUser, models.HistoryEntry{Latitude: 55.2, Longitude: 37.2, Radius: 250, Label: "coords: 55.2,37.2, r=250"})

	require.NoError(t, f.send(t, ButtonHistory))

	assert.Equal(t, "Ваши последние запросы:\n1. coords: 55.2,37.2, r=250, r=250\n2. адрес: Арбат 1, r=1000", f.sender.last().text)
}

func TestHandle_Top(t *testing.T) {
	f := newFixture(t)
	f.store.On("TopBuildings", 10).Return([]models.RatedAddress{
		{ID: 1, Address: "Арбат 1", TotalScore: 99.5},
		{ID: 2, Address: "Тверская 12", TotalScore: 97},
	}, nil).Once()
	f.store.On("TopBuildings", 10).Return([]models.RatedAddress{}, nil).Once()

	require.NoError(t, f.send(t, ButtonTop))
	assert.Equal(t, "Топ-10 домов по рейтингу:\n- Арбат 1 => 99.5\n- Тверская 12 => 97", f.sender.last().text)
	assert.False(t, f.sender.last().markdown)

	require.NoError(t, f.send(t, ButtonTop))
	assert.Equal(t, MsgNoData, f.sender.last().text)
}

func TestHandle_Distribution(t *testing.T) {
	// Setup
	f := newFixture(t)
	f.store.On("ScoreDistribution").Return([]float64{12.5, 48, 48.2, 91}, nil).Once()
	f.store.On("ScoreDistribution").Return([]float64{}, nil).Once()

	// Test
	require.NoError(t, f.send(t, ButtonDistribution))

	// Assert
	require.Len(t, f.sender.photos, 1)
	assert.Equal(t, render.DistributionCaption, f.sender.photos[0].Caption)
	assert.Empty(t, f.sender.missing)
	left, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, left)

	require.NoError(t, f.send(t, ButtonDistribution))
	assert.Equal(t, MsgNoData, f.sender.last().text)
}

// recordComparable stores three lookups, listed most recent first as
// 1. C, 2. B, 3. A.
func recordComparable(f *fixture) (a, b, c models.HistoryEntry) {
	a = models.HistoryEntry{Latitude: 55.1, Longitude: 37.1, Radius: 1000, Label: "адрес: Арбат 1"}
	b = models.HistoryEntry{Latitude: 55.2, Longitude: 37.2, Radius: 500, Label: "coords: 55.2,37.2, r=500"}
	c = models.HistoryEntry{Latitude: 55.3, Longitude: 37.3, Radius: 1000, Label: "локация: 55.3,37.3, r=1000"}
	for _, e := range []models.HistoryEntry{a, b, c} {
		f.history.Record(testUser, e)
	}
	return a, b, c
}

func TestHandle_Comparison(t *testing.T) {
	// Setup
	f := newFixture(t)
	_, b, c := recordComparable(f)
	f.store.On("FindNearestBuilding", b.Latitude, b.Longitude, b.Radius).Return(buildingReport(1, 70), nil)
	f.store.On("FindNearestBuilding", c.Latitude, c.Longitude, c.Radius).Return(buildingReport(2, 80), nil)

	// Test
	require.NoError(t, f.send(t, ButtonCompare))
	assert.True(t, strings.HasPrefix(f.sender.last().text, "Выберите первый дом (введите число):"))

	require.NoError(t, f.send(t, "2"))
	assert.Equal(t, "Выберите второй дом:\n1. локация: 55.3,37.3, r=1000\n3. адрес: Арбат 1", f.sender.last().text)

	require.NoError(t, f.send(t, "1"))

	// Assert
	texts := f.sender.texts()
	require.Len(t, texts, 4)
	assert.True(t, strings.HasPrefix(texts[2], "📊 *Сравнение домов по параметрам:*"))
	assert.True(t, f.sender.messages[2].markdown)

	summary := f.sender.last()
	assert.False(t, summary.markdown)
	assert.Contains(t, summary.text, "[1] coords: 55.2,37.2, r=500")
	assert.Contains(t, summary.text, "[2] локация: 55.3,37.3, r=1000")
	assert.True(t, strings.HasSuffix(summary.text, "➡ Второй дом лучше."))

	require.Len(t, f.sender.albums, 1)
	assert.Len(t, f.sender.albums[0], len(render.Fields))
	require.Len(t, f.sender.photos, 1)
	assert.Equal(t, render.CombinedCaption, f.sender.photos[0].Caption)
	assert.Empty(t, f.sender.missing)

	left, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, left)

	assert.False(t, f.machine.Active(testUser))
	assert.Equal(t, []string{"comparison:completed"}, f.metrics.events)
	f.store.AssertExpectations(t)
}

func TestHandle_ComparisonSendFailureRemovesCharts(t *testing.T) {
	tests := []struct {
		name       string
		albumErr   error
		photoErr   error
		wantAlbums int
		wantPhotos int
	}{
		{name: "album fails", albumErr: telegram.ErrForbidden, wantAlbums: 1, wantPhotos: 0},
		{name: "combined chart fails", photoErr: telegram.ErrForbidden, wantAlbums: 1, wantPhotos: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			f := newFixture(t)
			_, b, c := recordComparable(f)
			f.store.On("FindNearestBuilding", b.Latitude, b.Longitude, b.Radius).Return(buildingReport(1, 70), nil)
			f.store.On("FindNearestBuilding", c.Latitude, c.Longitude, c.Radius).Return(buildingReport(2, 80), nil)
			f.sender.albumErr = tt.albumErr
			f.sender.photoErr = tt.photoErr

			// Test
			require.NoError(t, f.send(t, ButtonCompare))
			require.NoError(t, f.send(t, "2"))
			err := f.send(t, "1")

			// Assert
			require.Error(t, err)
			assert.ErrorIs(t, err, telegram.ErrForbidden)
			assert.False(t, f.machine.Active(testUser))

			assert.Len(t, f.sender.albums, tt.wantAlbums)
			assert.Len(t, f.sender.photos, tt.wantPhotos)
			assert.Empty(t, f.sender.missing)
			assert.NotContains(t, f.sender.texts(), MsgUnavailable)

			left, err := os.ReadDir(f.tempDir)
			require.NoError(t, err)
			assert.Empty(t, left)
			assert.NotContains(t, f.metrics.events, "comparison:completed")
		})
	}
}

func TestHandle_ComparisonTargetMissing(t *testing.T) {
	f := newFixture(t)
	recordComparable(f)
	f.store.On("FindNearestBuilding", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	require.NoError(t, f.send(t, ButtonCompare))
	require.NoError(t, f.send(t, "1"))
	require.NoError(t, f.send(t, "3"))

	assert.Equal(t, comparison.MsgNotFound, f.sender.last().text)
	assert.Empty(t, f.sender.photos)
	assert.False(t, f.machine.Active(testUser))
}

func TestHandle_ComparisonLookupFailure(t *testing.T) {
	f := newFixture(t)
	recordComparable(f)
	f.store.On("FindNearestBuilding", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	require.NoError(t, f.send(t, ButtonCompare))
	require.NoError(t, f.send(t, "1"))
	err := f.send(t, "2")

	assert.ErrorIs(t, err, errUnavailable)
	assert.Equal(t, MsgUnavailable, f.sender.last().text)
	assert.False(t, f.machine.Active(testUser))
}

func TestHandle_InvalidChoiceKeepsFlowOpen(t *testing.T) {
	f := newFixture(t)
	recordComparable(f)

	require.NoError(t, f.send(t, ButtonCompare))
	require.NoError(t, f.send(t, "первый"))
	assert.Equal(t, comparison.MsgBadNumber, f.sender.last().text)

	require.NoError(t, f.send(t, "55.1, 37.1"))
	assert.Equal(t, comparison.MsgBadNumber, f.sender.last().text)

	require.NoError(t, f.send(t, "9"))
	assert.Equal(t, comparison.MsgNoSuchIndex, f.sender.last().text)

	assert.True(t, f.machine.Active(testUser))
	assert.Len(t, f.history.List(testUser), 3)
}

func TestHandle_CommandsPreemptComparison(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "cancel button", text: ButtonCancel, want: comparison.MsgCancelled},
		{name: "cancel command", text: "/cancel", want: comparison.MsgCancelled},
		{name: "menu button", text: ButtonAbout, want: MsgAbout},
		{name: "start", text: "/start", want: MsgGreeting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			recordComparable(f)
			require.NoError(t, f.send(t, ButtonCompare))
			require.True(t, f.machine.Active(testUser))

			require.NoError(t, f.send(t, tt.text))

			assert.Equal(t, tt.want, f.sender.last().text)
			assert.False(t, f.machine.Active(testUser))

			// The next number is no longer a choice.
			require.NoError(t, f.send(t, "1"))
			assert.Equal(t, MsgUnknown, f.sender.last().text)
		})
	}
}

func TestHandle_CompareRestartsFlow(t *testing.T) {
	f := newFixture(t)
	recordComparable(f)

	require.NoError(t, f.send(t, ButtonCompare))
	require.NoError(t, f.send(t, "1"))
	require.NoError(t, f.send(t, ButtonCompare))

	assert.True(t, strings.HasPrefix(f.sender.last().text, "Выберите первый дом"))
	require.NoError(t, f.send(t, "2"))
	assert.True(t, strings.HasPrefix(f.sender.last().text, "Выберите второй дом:"))
}
