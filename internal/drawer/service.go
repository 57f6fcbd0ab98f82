package drawer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/muilab/notigpt/internal/logger"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Service applies the listener's lifecycle rules on top of a Store.
type Service struct {
	store  Store
	logger *logger.Logger
	now    func() time.Time
}

// NewService creates a drawer service.
func NewService(store Store, logger *logger.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.WithComponent("drawer"),
		now:    time.Now,
	}
}

// Store returns the underlying data-access object.
func (s *Service) Store() Store {
	return s.store
}

// Ingest records one posted notification. A new key creates a unit; a known
// key appends to the unit's current infos. The read and the write happen in
// one store transaction, so concurrent posts to a key are all kept.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*NotiUnit, error) {
	log := s.logger.WithContext(ctx)

	if strings.TrimSpace(req.SbnKey) == "" {
		return nil, fmt.Errorf("sbn_key is required")
	}

	postedAt := req.PostedAt
	if postedAt.IsZero() {
		postedAt = s.now()
	}
	info := NotiInfo{Time: postedAt, Title: req.Title, Content: req.Content}

	var created bool
	unit, err := s.store.Modify(ctx, req.SbnKey, func(unit *NotiUnit, exists bool) error {
		created = !exists
		if !exists {
			*unit = NotiUnit{
				SbnKey:    req.SbnKey,
				HashKey:   req.HashKey,
				AppName:   req.AppName,
				IsPeople:  req.IsPeople,
				Title:     req.Title,
				NotiInfos: []NotiInfo{info},
			}
		} else {
			unit.Append(info)
			if req.Title != "" && !req.IsPeople {
				unit.Title = req.Title
			}
			if req.HashKey != 0 {
				unit.HashKey = req.HashKey
			}
		}
		unit.UpdatedAt = s.now()
		applyOrdering(unit, req)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		log.Debug("unit created",
			slog.String("sbn_key", unit.SbnKey),
			slog.String("app_name", unit.AppName))
	} else {
		log.Debug("unit updated",
			slog.String("sbn_key", unit.SbnKey),
			slog.Int("current", len(unit.NotiInfos)),
			slog.Int("previous", len(unit.PrevNotiInfos)))
	}
	return unit, nil
}

func applyOrdering(unit *NotiUnit, req IngestRequest) {
	if req.Score != nil {
		unit.Score = *req.Score
	}
	if req.Ranking != nil {
		unit.Ranking = *req.Ranking
	}
}

// List returns page (1-based) of the drawer in display order.
func (s *Service) List(ctx context.Context, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	units, err := s.store.GetPage(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountAll(ctx)
	if err != nil {
		return nil, err
	}
	if units == nil {
		units = []NotiUnit{}
	}

	return &Page{Units: units, Page: page, PageSize: pageSize, Total: total}, nil
}

// Get returns the unit stored under sbnKey.
func (s *Service) Get(ctx context.Context, sbnKey string) (*NotiUnit, error) {
	units, err := s.store.GetBySbnKey(ctx, sbnKey)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, ErrNotFound
	}
	return &units[0], nil
}

// Dismiss deletes the unit whose notification was dismissed on the device.
func (s *Service) Dismiss(ctx context.Context, sbnKey string) error {
	return s.store.DeleteBySbnKey(ctx, sbnKey)
}

// Clear deletes every unit.
func (s *Service) Clear(ctx context.Context) error {
	return s.store.DeleteAll(ctx)
}

// MarkSeen rotates every unit's current infos into its previous infos, so the
// next digest presents them as already covered. It returns the number of
// units that changed.
func (s *Service) MarkSeen(ctx context.Context) (int, error) {
	units, err := s.store.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	var changed []NotiUnit
	for _, unit := range units {
		if unit.MarkSeen() {
			changed = append(changed, unit)
		}
	}

	if err := s.store.UpdateList(ctx, changed); err != nil {
		return 0, err
	}

	s.logger.WithContext(ctx).Info("units marked seen", slog.Int("count", len(changed)))
	return len(changed), nil
}
