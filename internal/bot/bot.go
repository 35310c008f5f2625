// Package bot turns Telegram messages into building lookups, history
// listings and comparisons.
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"housebot/server/internal/comparison"
	"housebot/server/internal/geocoding"
	"housebot/server/internal/geometry"
	"housebot/server/internal/models"
	"housebot/server/internal/render"
	"housebot/server/internal/telegram"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

const (
	topLimit      = 10
	noticeTimeout = 10 * time.Second
)

// errUnavailable marks failures of a backing service. The user is told to
// try again later.
var errUnavailable = errors.New("service unavailable")

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", errUnavailable, err)
}

type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts ...telegram.MessageOption) error
	SendPhoto(ctx context.Context, chatID int64, photo models.Photo) error
	SendMediaGroup(ctx context.Context, chatID int64, photos []models.Photo) error
}

type BuildingStore interface {
	FindNearestBuilding(ctx context.Context, lat, lon, radius float64) (*models.BuildingReport, error)
	TopBuildings(ctx context.Context, limit int) ([]models.RatedAddress, error)
	ScoreDistribution(ctx context.Context) ([]float64, error)
}

type Geocoder interface {
	ResolveAddress(ctx context.Context, address string) (orb.Point, error)
}

type Renderer interface {
	Render(ctx context.Context, a, b *models.Building, labelA, labelB string) (*render.Report, error)
	Distribution(ctx context.Context, scores []float64) (*render.Chart, error)
}

type History interface {
	Record(userID int64, entry models.HistoryEntry)
	List(userID int64) []models.HistoryEntry
}

// Recorder receives outcome counters. *metrics.Provider implements it.
type Recorder interface {
	ObserveLookup(source, result string)
	ObserveGeocode(result string)
	ObserveComparison(result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveLookup(string, string) {}
func (nopRecorder) ObserveGeocode(string)        {}
func (nopRecorder) ObserveComparison(string)     {}

// Deps are the collaborators of a Bot. Metrics and Logger are optional.
type Deps struct {
	Sender   Sender
	Store    BuildingStore
	Geocoder Geocoder
	Renderer Renderer
	History  History
	Machine  *comparison.Machine
	Metrics  Recorder
	Logger   *logrus.Logger
}

type Bot struct {
	sender   Sender
	store    BuildingStore
	geocoder Geocoder
	renderer Renderer
	history  History
	machine  *comparison.Machine
	metrics  Recorder
	logger   *logrus.Logger
}

func New(deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	var metrics Recorder = nopRecorder{}
	if deps.Metrics != nil {
		metrics = deps.Metrics
	}

	return &Bot{
		sender:   deps.Sender,
		store:    deps.Store,
		geocoder: deps.Geocoder,
		renderer: deps.Renderer,
		history:  deps.History,
		machine:  deps.Machine,
		metrics:  metrics,
		logger:   logger,
	}
}

// Handle processes one update. Updates without a message or sender are
// ignored. When a backing service fails the user is notified and the error
// is returned for logging.
func (b *Bot) Handle(ctx context.Context, update models.Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return nil
	}

	err := b.route(ctx, msg.From.ID, msg.Chat.ID, msg)
	if err != nil && errors.Is(err, errUnavailable) {
		b.notifyUnavailable(ctx, msg.Chat.ID)
	}
	return err
}

func (b *Bot) notifyUnavailable(ctx context.Context, chatID int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), noticeTimeout)
	defer cancel()
	if err := b.reply(ctx, chatID, MsgUnavailable); err != nil {
		b.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to send unavailability notice")
	}
}

func (b *Bot) route(ctx context.Context, userID, chatID int64, msg *models.Message) error {
	if msg.Location != nil {
		b.machine.Cancel(userID)
		lat, lon := msg.Location.Latitude, msg.Location.Longitude
		b.history.Record(userID, models.HistoryEntry{
			Latitude:  lat,
			Longitude: lon,
			Radius:    geometry.DefaultRadius,
			Label:     locationLabel(lat, lon, geometry.DefaultRadius),
		})
		return b.lookup(ctx, chatID, lat, lon, geometry.DefaultRadius, "location")
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	intent := Classify(text)

	if !intent.Command() && b.machine.Active(userID) {
		err := b.advance(ctx, userID, chatID, text)
		if !errors.Is(err, comparison.ErrNoSession) {
			return err
		}
	}

	b.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"intent":  intent.Kind.String(),
	}).Debug("Handling message")

	switch intent.Kind {
	case IntentCancel:
		if b.machine.Cancel(userID) {
			return b.replyWith(ctx, chatID, comparison.MsgCancelled, telegram.WithKeyboard(MainKeyboard()))
		}
		return b.reply(ctx, chatID, MsgNothingToCancel)
	case IntentCompare:
		return b.reply(ctx, chatID, b.machine.Begin(userID))
	}

	if intent.Command() {
		b.machine.Cancel(userID)
	}

	switch intent.Kind {
	case IntentStart:
		return b.sender.SendMessage(ctx, chatID, MsgGreeting, telegram.WithKeyboard(MainKeyboard()))
	case IntentAskCoordinates:
		return b.sender.SendMessage(ctx, chatID, MsgAskCoordinates)
	case IntentAskAddress:
		return b.sender.SendMessage(ctx, chatID, MsgAskAddress)
	case IntentAskLocation:
		return b.replyWith(ctx, chatID, MsgAskLocation, telegram.WithKeyboard(MainKeyboard()))
	case IntentAboutRating:
		return b.reply(ctx, chatID, MsgAboutRating)
	case IntentAbout:
		return b.reply(ctx, chatID, MsgAbout)
	case IntentHistory:
		return b.showHistory(ctx, userID, chatID)
	case IntentTop:
		return b.showTop(ctx, chatID)
	case IntentDistribution:
		return b.showDistribution(ctx, chatID)
	case IntentEmptyAddress:
		return b.reply(ctx, chatID, MsgEmptyAddress)
	case IntentAddress:
		return b.lookupAddress(ctx, userID, chatID, intent.Address)
	case IntentBadCoordinates:
		return b.reply(ctx, chatID, MsgBadCoordinates)
	case IntentCoordinates:
		b.history.Record(userID, models.HistoryEntry{
			Latitude:  intent.Latitude,
			Longitude: intent.Longitude,
			Radius:    intent.Radius,
			Label:     coordinatesLabel(intent.Latitude, intent.Longitude, intent.Radius),
		})
		return b.lookup(ctx, chatID, intent.Latitude, intent.Longitude, intent.Radius, "coordinates")
	default:
		return b.reply(ctx, chatID, MsgUnknown)
	}
}

// reply sends text without Markdown parsing.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) error {
	return b.replyWith(ctx, chatID, text)
}

func (b *Bot) replyWith(ctx context.Context, chatID int64, text string, opts ...telegram.MessageOption) error {
	opts = append([]telegram.MessageOption{telegram.PlainText()}, opts...)
	if err := b.sender.SendMessage(ctx, chatID, text, opts...); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (b *Bot) lookupAddress(ctx context.Context, userID, chatID int64, addr string) error {
	if err := b.reply(ctx, chatID, MsgGeocoding); err != nil {
		return err
	}

	point, err := b.geocoder.ResolveAddress(ctx, addr)
	if err != nil {
		result := "error"
		if errors.Is(err, geocoding.ErrNoMatch) {
			result = "no_match"
		}
		b.metrics.ObserveGeocode(result)
		b.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"address": addr,
			"result":  result,
		}).Info("Address could not be geocoded")
		return b.reply(ctx, chatID, MsgGeocodeFailed)
	}
	b.metrics.ObserveGeocode("ok")

	b.history.Record(userID, models.HistoryEntry{
		Latitude:  point.Lat(),
		Longitude: point.Lon(),
		Radius:    geometry.DefaultRadius,
		Label:     addressLabel(addr),
	})
	return b.lookup(ctx, chatID, point.Lat(), point.Lon(), geometry.DefaultRadius, "address")
}

// lookup finds the building nearest to the point and sends its card.
func (b *Bot) lookup(ctx context.Context, chatID int64, lat, lon, radius float64, source string) error {
	if err := b.reply(ctx, chatID, MsgSearching); err != nil {
		return err
	}

	report, err := b.store.FindNearestBuilding(ctx, lat, lon, radius)
	if err != nil {
		b.metrics.ObserveLookup(source, "error")
		return unavailable(fmt.Errorf("failed to find nearest building: %w", err))
	}
	if report == nil {
		b.metrics.ObserveLookup(source, "not_found")
		return b.reply(ctx, chatID, MsgBuildingMissing)
	}
	b.metrics.ObserveLookup(source, "found")

	if err := b.sender.SendMessage(ctx, chatID, FormatCard(report, geometry.NewPoint(lat, lon))); err != nil {
		return fmt.Errorf("failed to send building card: %w", err)
	}
	return nil
}

func (b *Bot) advance(ctx context.Context, userID, chatID int64, text string) error {
	out, err := b.machine.Advance(ctx, userID, text)
	if errors.Is(err, comparison.ErrNoSession) {
		return err
	}
	if err != nil {
		b.metrics.ObserveComparison("error")
		return unavailable(err)
	}

	if out.Pair == nil {
		if out.Reply == comparison.MsgNotFound {
			b.metrics.ObserveComparison("not_found")
		}
		return b.reply(ctx, chatID, out.Reply)
	}
	return b.sendComparison(ctx, chatID, out.Pair)
}

// sendComparison renders the pair and sends the text, the per-field album,
// the combined chart and the summary. Chart files are removed afterwards.
func (b *Bot) sendComparison(ctx context.Context, chatID int64, pair *comparison.Pair) error {
	report, err := b.renderer.Render(ctx, pair.FirstBuilding, pair.SecondBuilding, pair.First.Label, pair.Second.Label)
	if err != nil {
		b.metrics.ObserveComparison("error")
		return unavailable(fmt.Errorf("failed to render comparison: %w", err))
	}
	defer func() {
		if err := report.Close(); err != nil {
			b.logger.WithError(err).Warn("Failed to remove comparison charts")
		}
	}()

	if err := b.sender.SendMessage(ctx, chatID, report.Text); err != nil {
		return fmt.Errorf("failed to send comparison text: %w", err)
	}
	if len(report.Album) > 0 {
		if err := b.sender.SendMediaGroup(ctx, chatID, report.Album); err != nil {
			return fmt.Errorf("failed to send comparison charts: %w", err)
		}
	}
	if err := b.sender.SendPhoto(ctx, chatID, report.Combined); err != nil {
		return fmt.Errorf("failed to send combined chart: %w", err)
	}
	if err := b.reply(ctx, chatID, report.Summary); err != nil {
		return err
	}

	b.metrics.ObserveComparison("completed")
	b.logger.WithFields(logrus.Fields{
		"chat_id":   chatID,
		"first_id":  pair.FirstBuilding.ID,
		"second_id": pair.SecondBuilding.ID,
		"winner":    report.Winner.Line(),
	}).Info("Comparison sent")
	return nil
}

func (b *Bot) showHistory(ctx context.Context, userID, chatID int64) error {
	entries := b.history.List(userID)
	if len(entries) == 0 {
		return b.reply(ctx, chatID, comparison.MsgEmptyHistory)
	}
	return b.reply(ctx, chatID, FormatHistory(entries))
}

func (b *Bot) showTop(ctx context.Context, chatID int64) error {
	top, err := b.store.TopBuildings(ctx, topLimit)
	if err != nil {
		return unavailable(fmt.Errorf("failed to load top buildings: %w", err))
	}
	if len(top) == 0 {
		return b.reply(ctx, chatID, MsgNoData)
	}
	return b.reply(ctx, chatID, FormatTop(top))
}

func (b *Bot) showDistribution(ctx context.Context, chatID int64) error {
	scores, err := b.store.ScoreDistribution(ctx)
	if err != nil {
		return unavailable(fmt.Errorf("failed to load score distribution: %w", err))
	}
	if len(scores) == 0 {
		return b.reply(ctx, chatID, MsgNoData)
	}

	chart, err := b.renderer.Distribution(ctx, scores)
	if err != nil {
		return unavailable(err)
	}
	defer func() {
		if err := chart.Close(); err != nil {
			b.logger.WithError(err).Warn("Failed to remove distribution chart")
		}
	}()

	if err := b.sender.SendPhoto(ctx, chatID, chart.Photo); err != nil {
		return fmt.Errorf("failed to send distribution chart: %w", err)
	}
	return nil
}
