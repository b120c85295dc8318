package funnel

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/dicefunnel/internal/dependencies/clock"
	"github.com/mcoot/dicefunnel/internal/model"
	"github.com/mcoot/dicefunnel/internal/storage"
)

// Notifier receives every appended event. Implementations must not block.
type Notifier interface {
	Publish(event *model.FunnelEvent)
}

// AppendOption sets optional fields on a new event
type AppendOption func(*model.FunnelEvent)

// WithPlayer links the event to an existing player
func WithPlayer(ref model.PlayerID) AppendOption {
	return func(e *model.FunnelEvent) { e.PlayerRef = ref }
}

// WithRewardCode attaches the reward code to the event
func WithRewardCode(code string) AppendOption {
	return func(e *model.FunnelEvent) { e.RewardCode = code }
}

// Log is the append-only funnel event log
type Log struct {
	storage  storage.Storage
	clock    clock.Clock
	notifier Notifier
	logger   *slog.Logger
}

// New creates a new Log. notifier may be nil.
func New(storage storage.Storage, clock clock.Clock, notifier Notifier, logger *slog.Logger) *Log {
	return &Log{
		storage:  storage,
		clock:    clock,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "funnel")),
	}
}

// Append records a stage transition and notifies subscribers
func (l *Log) Append(ctx context.Context, stage model.Stage, identity, name string, opts ...AppendOption) (*model.FunnelEvent, error) {
	event := &model.FunnelEvent{
		ID:        uuid.NewString(),
		Identity:  identity,
		Name:      name,
		Stage:     stage,
		Timestamp: l.clock.Now(),
	}
	for _, opt := range opts {
		opt(event)
	}

	if err := l.storage.AppendEvent(ctx, event); err != nil {
		return nil, err
	}

	if l.notifier != nil {
		l.notifier.Publish(event)
	}
	return event, nil
}

// Record appends an event and logs instead of returning a failure. Used on
// paths where the event log must not abort the caller.
func (l *Log) Record(ctx context.Context, stage model.Stage, identity, name string, opts ...AppendOption) {
	if _, err := l.Append(ctx, stage, identity, name, opts...); err != nil {
		l.logger.Warn("failed to append funnel event",
			slog.String("stage", string(stage)),
			slog.String("identity", model.MaskPhone(identity)),
			slog.String("error", err.Error()))
	}
}

// Backfill links all events for identity to the player once it exists
func (l *Log) Backfill(ctx context.Context, identity string, playerRef model.PlayerID, name string) (int, error) {
	return l.storage.BackfillEvents(ctx, identity, playerRef, name)
}

// Query returns one page of events, newest first, enriched with the linked
// player's assigned code and name
func (l *Log) Query(ctx context.Context, filter model.EventFilter) (model.EventPage, error) {
	filter = filter.Normalize()

	events, total, err := l.storage.QueryEvents(ctx, filter)
	if err != nil {
		return model.EventPage{}, err
	}

	players := make(map[model.PlayerID]*model.Player)
	rows := make([]model.EventRow, 0, len(events))
	for _, e := range events {
		row := model.EventRow{FunnelEvent: *e}
		if e.PlayerRef != "" {
			p, ok := players[e.PlayerRef]
			if !ok {
				p, err = l.storage.GetPlayer(ctx, e.PlayerRef)
				if err != nil && !errors.Is(err, model.ErrPlayerNotFound) {
					return model.EventPage{}, err
				}
				players[e.PlayerRef] = p
			}
			if p != nil {
				row.AssignedCode = p.AssignedCode
				row.PlayerName = p.Name
			}
		}
		rows = append(rows, row)
	}

	return model.NewEventPage(rows, total, filter), nil
}

// Stats counts events per stage within [from, to]. Zero bounds are open.
func (l *Log) Stats(ctx context.Context, from, to time.Time) (model.StageCounts, error) {
	counts := make(model.StageCounts, len(model.Stages))
	for _, stage := range model.Stages {
		_, total, err := l.storage.QueryEvents(ctx, model.EventFilter{
			Stage: stage,
			From:  from,
			To:    to,
			Page:  1,
			Limit: 1,
		})
		if err != nil {
			return nil, err
		}
		counts[stage] = total
	}
	return counts, nil
}
