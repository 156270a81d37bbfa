package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/learnbuddy/questbuddy/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Actions recorded by the API.
const (
	ActionLogin         = "auth.login"
	ActionQuestProgress = "quest.progress"
	ActionQuestGenerate = "quest.generate"
	ActionRankingReset  = "admin.ranking_refresh"
)

// Entry is one audit event.
type Entry struct {
	TraceID  string
	UserID   int64 // 0 = anonymous
	QuestID  int64 // 0 = none
	Action   string
	Request  interface{}
	Response interface{}
	Err      error
	IP       string
	Duration time.Duration
}

// Config sizes the async writer. Zero values take defaults.
type Config struct {
	Buffer        int
	BatchSize     int
	FlushInterval time.Duration
}

// Service writes audit entries to the database in batches from a single
// background worker. Log never blocks; entries are dropped when the buffer
// is full.
type Service struct {
	db     *gorm.DB
	cfg    Config
	ch     chan *model.AuditLog
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates an audit Service and starts its worker.
func New(db *gorm.DB, cfg Config, logger *zap.Logger) *Service {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	svc := &Service{
		db:     db,
		cfg:    cfg,
		ch:     make(chan *model.AuditLog, cfg.Buffer),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func encode(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// Log enqueues e for writing.
func (svc *Service) Log(e Entry) {
	record := &model.AuditLog{
		TraceID:    e.TraceID,
		UserID:     optionalID(e.UserID),
		QuestID:    optionalID(e.QuestID),
		Action:     e.Action,
		Request:    encode(e.Request),
		Response:   encode(e.Response),
		IP:         e.IP,
		DurationMs: int(e.Duration.Milliseconds()),
	}
	if e.Err != nil {
		record.Error = e.Err.Error()
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit buffer full, dropping entry", zap.String("action", e.Action))
	}
}

// Stop flushes pending entries and waits for the worker to exit.
// It is safe to call more than once.
func (svc *Service) Stop(_ context.Context) {
	svc.once.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, svc.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-svc.ch:
			batch = append(batch, rec)
			if len(batch) >= svc.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case rec := <-svc.ch:
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}
