package comparison

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"housebot/server/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	MsgEmptyHistory = "История запросов пуста."
	MsgBadNumber    = "Неверный формат. Введите число."
	MsgNoSuchIndex  = "Нет такого индекса."
	MsgNotFound     = "Один из домов не найден."
	MsgCancelled    = "Сравнение отменено."
)

// ErrNoSession is returned by Advance when the user has no open flow, for
// example after it expired.
var ErrNoSession = errors.New("no comparison in progress")

type HistoryLister interface {
	List(userID int64) []models.HistoryEntry
}

type Resolver interface {
	FindNearestBuilding(ctx context.Context, lat, lon, radius float64) (*models.BuildingReport, error)
}

// Pair is a completed selection with both buildings resolved.
type Pair struct {
	First, Second  models.HistoryEntry
	FirstBuilding  *models.Building
	SecondBuilding *models.Building
}

// Outcome is the result of one step. Exactly one of Reply and Pair is set.
type Outcome struct {
	Reply string
	Pair  *Pair
}

type Machine struct {
	sessions *Sessions
	history  HistoryLister
	resolver Resolver
	logger   *logrus.Logger
}

func NewMachine(sessions *Sessions, history HistoryLister, resolver Resolver, logger *logrus.Logger) *Machine {
	return &Machine{
		sessions: sessions,
		history:  history,
		resolver: resolver,
		logger:   logger,
	}
}

// Active reports whether the user is in the middle of a comparison.
func (m *Machine) Active(userID int64) bool {
	_, idle := m.sessions.Get(userID).(Idle)
	return !idle
}

// Begin opens the flow with the first-choice menu. With no history the user
// stays Idle.
func (m *Machine) Begin(userID int64) string {
	entries := m.history.List(userID)
	if len(entries) == 0 {
		m.sessions.Reset(userID)
		return MsgEmptyHistory
	}

	m.sessions.Set(userID, AwaitingFirst{})
	m.logger.WithField("user_id", userID).Debug("Comparison started")

	lines := []string{"Выберите первый дом (введите число):"}
	for i, e := range entries {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, e.Label))
	}
	lines = append(lines, "Например, 1")
	return strings.Join(lines, "\n")
}

// Cancel drops an open flow. It returns false when there was nothing to cancel.
func (m *Machine) Cancel(userID int64) bool {
	return m.sessions.Reset(userID)
}

// Advance feeds one message into an open flow. Invalid input leaves the state
// unchanged. A returned error means the lookup failed after the user was
// already returned to Idle.
func (m *Machine) Advance(ctx context.Context, userID int64, input string) (Outcome, error) {
	entries := m.history.List(userID)

	switch st := m.sessions.Get(userID).(type) {
	case AwaitingFirst:
		idx, reply := pickIndex(input, len(entries), -1)
		if reply != "" {
			m.sessions.Set(userID, st)
			return Outcome{Reply: reply}, nil
		}
		m.sessions.Set(userID, AwaitingSecond{First: idx})

		lines := []string{"Выберите второй дом:"}
		for i, e := range entries {
			if i != idx {
				lines = append(lines, fmt.Sprintf("%d. %s", i+1, e.Label))
			}
		}
		return Outcome{Reply: strings.Join(lines, "\n")}, nil

	case AwaitingSecond:
		if st.First >= len(entries) {
			m.sessions.Reset(userID)
			return Outcome{Reply: MsgNoSuchIndex}, nil
		}
		idx, reply := pickIndex(input, len(entries), st.First)
		if reply != "" {
			m.sessions.Set(userID, st)
			return Outcome{Reply: reply}, nil
		}
		m.sessions.Reset(userID)
		return m.resolve(ctx, userID, entries[st.First], entries[idx])

	default:
		return Outcome{}, fmt.Errorf("%w for user %d", ErrNoSession, userID)
	}
}

func (m *Machine) resolve(ctx context.Context, userID int64, first, second models.HistoryEntry) (Outcome, error) {
	a, err := m.resolver.FindNearestBuilding(ctx, first.Latitude, first.Longitude, first.Radius)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to resolve first building: %w", err)
	}
	b, err := m.resolver.FindNearestBuilding(ctx, second.Latitude, second.Longitude, second.Radius)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to resolve second building: %w", err)
	}
	if a == nil || b == nil {
		m.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"first":   first.Label,
			"second":  second.Label,
		}).Info("Comparison target not found")
		return Outcome{Reply: MsgNotFound}, nil
	}

	return Outcome{Pair: &Pair{
		First:          first,
		Second:         second,
		FirstBuilding:  &a.Building,
		SecondBuilding: &b.Building,
	}}, nil
}

// pickIndex parses a 1-indexed choice into a zero-based index in [0, n),
// rejecting exclude. On failure it returns the corrective reply.
func pickIndex(input string, n, exclude int) (int, string) {
	v, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, MsgBadNumber
	}
	idx := v - 1
	if idx < 0 || idx >= n || idx == exclude {
		return 0, MsgNoSuchIndex
	}
	return idx, ""
}
