// Package statusfeed manages 24h status updates and their viewers.
package statusfeed

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/event"
	"github.com/matheus3301/chatd/internal/media"
	"github.com/matheus3301/chatd/internal/store"
)

// DefaultTTL is how long a status stays visible.
const DefaultTTL = 24 * time.Hour

// ErrEmptyStatus is returned for a status with neither content nor media.
var ErrEmptyStatus = errors.New("status content or media is required")

// Store is the persistence the feed needs.
type Store interface {
	CreateStatus(ctx context.Context, ns store.NewStatus) (*store.StatusUpdate, error)
	GetStatus(ctx context.Context, id string) (*store.StatusUpdate, error)
	ListActiveStatuses(ctx context.Context, now time.Time) ([]store.StatusUpdate, error)
	AddStatusViewer(ctx context.Context, statusID, viewerID string, now time.Time) (bool, string, error)
	DeleteStatus(ctx context.Context, id, requesterID string) error
	PurgeExpiredStatuses(ctx context.Context, now time.Time) (int64, error)
}

// Broadcaster reaches one user or everyone online.
type Broadcaster interface {
	Emit(userID string, evt event.Event) bool
	Broadcast(evt event.Event) int
}

type Feed struct {
	store    Store
	reg      Broadcaster
	uploader media.Uploader
	ttl      time.Duration
	bus      *bus.Bus
	logger   *zap.Logger
	now      func() time.Time
}

func New(s Store, reg Broadcaster, uploader media.Uploader, ttl time.Duration, b *bus.Bus, logger *zap.Logger) *Feed {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{store: s, reg: reg, uploader: uploader, ttl: ttl, bus: b, logger: logger, now: time.Now}
}

// Create publishes a status for userID and announces it to everyone online.
// Nothing is persisted when validation or the upload fails.
func (f *Feed) Create(ctx context.Context, userID, content string, file *media.File) (*store.StatusUpdate, error) {
	if file == nil && strings.TrimSpace(content) == "" {
		return nil, ErrEmptyStatus
	}

	ns := store.NewStatus{
		UserID:      userID,
		Content:     content,
		ContentType: string(media.KindText),
		ExpiresAt:   f.now().Add(f.ttl).UnixMilli(),
	}
	if file != nil {
		res, err := media.Store(ctx, f.uploader, *file)
		if err != nil {
			return nil, err
		}
		ns.ContentType = string(res.Kind)
		ns.MediaURL = res.URL
	}

	st, err := f.store.CreateStatus(ctx, ns)
	if err != nil {
		return nil, err
	}
	payload := event.StatusFromStore(st)
	if f.reg != nil {
		f.reg.Broadcast(event.New(event.NewStatus, payload))
	}
	f.bus.Publish(bus.NewEvent(bus.KindStatusCreated, payload))
	return st, nil
}

// ListActive returns unexpired statuses, newest first.
func (f *Feed) ListActive(ctx context.Context) ([]store.StatusUpdate, error) {
	return f.store.ListActiveStatuses(ctx, f.now())
}

// View records viewerID as a viewer. The owner hears about a viewer once;
// owners viewing their own status are not recorded. An expired status is
// not found, for its owner too.
func (f *Feed) View(ctx context.Context, statusID, viewerID string) (*store.StatusUpdate, error) {
	st, err := f.store.GetStatus(ctx, statusID)
	if err != nil {
		return nil, err
	}
	if st.ExpiresAt <= f.now().UnixMilli() {
		return nil, store.ErrNotFound
	}
	if st.UserID == viewerID {
		return st, nil
	}

	first, owner, err := f.store.AddStatusViewer(ctx, statusID, viewerID, f.now())
	if err != nil {
		return nil, err
	}
	if first {
		payload := event.StatusView{StatusID: statusID, Viewer: event.Participant{ID: viewerID}}
		if f.reg != nil {
			f.reg.Emit(owner, event.New(event.StatusViewed, payload))
		}
		f.bus.Publish(bus.NewEvent(bus.KindStatusViewed, payload))
	}
	return f.store.GetStatus(ctx, statusID)
}

// Delete removes a status owned by userID and tells everyone online.
func (f *Feed) Delete(ctx context.Context, statusID, userID string) error {
	if err := f.store.DeleteStatus(ctx, statusID, userID); err != nil {
		return err
	}
	payload := event.StatusRef{StatusID: statusID}
	if f.reg != nil {
		f.reg.Broadcast(event.New(event.StatusDeleted, payload))
	}
	f.bus.Publish(bus.NewEvent(bus.KindStatusDeleted, payload))
	return nil
}
