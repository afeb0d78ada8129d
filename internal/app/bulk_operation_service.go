package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/openlearn/admin-api/internal/metrics"
	"github.com/openlearn/admin-api/pkg/domain/audit"
	"github.com/openlearn/admin-api/pkg/domain/authz"
	"github.com/openlearn/admin-api/pkg/domain/bulkop"
	"github.com/openlearn/admin-api/pkg/domain/shared"
	"github.com/openlearn/admin-api/pkg/domain/user"
	"github.com/openlearn/admin-api/pkg/logger"
)

const tracerName = "github.com/openlearn/admin-api/internal/app"

// ProgressPublisher receives a progress snapshot after every state change of
// an operation. Implementations must not block.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, p bulkop.Progress)
}

// ResultArchiver stores the final result of an operation.
type ResultArchiver interface {
	Archive(ctx context.Context, result bulkop.Result) error
}

// BulkOperationConfig holds executor settings.
type BulkOperationConfig struct {
	MaxBatchSize    int
	Workers         int
	ItemTimeout     time.Duration
	RetentionPeriod time.Duration
	SweepInterval   time.Duration
	// DispatchRate caps item dispatches per second. Zero disables pacing.
	DispatchRate   float64
	ArchiveTimeout time.Duration
}

// DefaultBulkOperationConfig returns the default executor settings.
func DefaultBulkOperationConfig() BulkOperationConfig {
	return BulkOperationConfig{
		MaxBatchSize:    500,
		Workers:         5,
		ItemTimeout:     10 * time.Second,
		RetentionPeriod: time.Hour,
		SweepInterval:   time.Minute,
		ArchiveTimeout:  30 * time.Second,
	}
}

// BulkOperationService validates and runs bulk user operations.
//
// Each accepted request runs in its own goroutine with at most
// cfg.Workers items in flight. Items targeting the same user are serialized
// across operations through the UserLocker. Operations stay queryable for
// cfg.RetentionPeriod after they finish.
type BulkOperationService struct {
	roles      *RoleHierarchyService
	authorizer *AuthorizationService
	users      user.Repository
	recorder   audit.Recorder
	locker     UserLocker
	publisher  ProgressPublisher
	archiver   ResultArchiver
	cfg        BulkOperationConfig
	logger     *logger.Logger
	tracer     trace.Tracer
	now        func() time.Time
	newID      func() string

	mu  sync.RWMutex
	ops map[string]*operation

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
	stopSweep  chan struct{}
	sweepOnce  sync.Once
}

// BulkOperationOption configures a BulkOperationService.
type BulkOperationOption func(*BulkOperationService)

// WithUserLocker replaces the in-process user locker.
func WithUserLocker(l UserLocker) BulkOperationOption {
	return func(s *BulkOperationService) {
		s.locker = l
	}
}

// WithProgressPublisher sets where progress snapshots are pushed.
func WithProgressPublisher(p ProgressPublisher) BulkOperationOption {
	return func(s *BulkOperationService) {
		s.publisher = p
	}
}

// WithResultArchiver enables archiving of final results.
func WithResultArchiver(a ResultArchiver) BulkOperationOption {
	return func(s *BulkOperationService) {
		s.archiver = a
	}
}

// WithBulkClock overrides the clock.
func WithBulkClock(now func() time.Time) BulkOperationOption {
	return func(s *BulkOperationService) {
		s.now = now
	}
}

// WithOperationIDs overrides operation id generation.
func WithOperationIDs(newID func() string) BulkOperationOption {
	return func(s *BulkOperationService) {
		s.newID = newID
	}
}

// NewBulkOperationService creates a new BulkOperationService.
func NewBulkOperationService(
	roles *RoleHierarchyService,
	users user.Repository,
	recorder audit.Recorder,
	cfg BulkOperationConfig,
	log *logger.Logger,
	opts ...BulkOperationOption,
) *BulkOperationService {
	def := DefaultBulkOperationConfig()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = def.ItemTimeout
	}
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = def.RetentionPeriod
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = def.ArchiveTimeout
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	s := &BulkOperationService{
		roles:      roles,
		authorizer: NewAuthorizationService(roles, log),
		users:      users,
		recorder:   recorder,
		locker:     NewLocalUserLocker(),
		cfg:        cfg,
		logger:     log.With("service", "bulk_operation"),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
		newID:      uuid.NewString,
		ops:        make(map[string]*operation),
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		stopSweep:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// operation is the registry entry of one accepted request.
type operation struct {
	id        string
	actor     authz.Actor
	req       bulkop.Request
	engine    *authz.Engine
	requestID string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	mu         sync.Mutex
	state      bulkop.State
	finishedAt time.Time
	result     *bulkop.Result
}

// apply folds e into the operation state.
func (o *operation) apply(e bulkop.Event) (bulkop.State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	next, err := bulkop.Reduce(o.state, e)
	if err != nil {
		return o.state, err
	}
	o.state = next
	return next, nil
}

func (o *operation) progress() bulkop.Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	var finishedAt *time.Time
	if o.result != nil {
		t := o.finishedAt
		finishedAt = &t
	}
	p := bulkop.NewProgress(o.id, o.req.Kind(), o.state, o.startedAt, finishedAt)
	p.ActorID = o.actor.ID
	return p
}

// Submit validates req for actor and starts it. Request-level failures are
// returned before anything is dispatched, audited or registered.
func (s *BulkOperationService) Submit(ctx context.Context, actor authz.Actor, req bulkop.Request) (string, error) {
	ctx, span := s.tracer.Start(ctx, "bulk_operation.submit")
	defer span.End()

	engine, err := s.roles.Engine()
	if err != nil {
		return "", err
	}

	log := s.logger.WithContext(ctx).With("actor_id", actor.ID, "kind", req.Kind().String())

	if err := s.validate(engine, actor, req); err != nil {
		reason := bulkop.Classify(err)
		metrics.BulkOperationsRejected.WithLabelValues(req.Kind().String(), string(reason)).Inc()
		if reason.IsAuthorization() {
			metrics.AuthzDenialsTotal.WithLabelValues(string(reason), "request").Inc()
		}
		log.Info("bulk operation rejected", "reason", string(reason), "targets", req.Len(), "error", err)
		span.RecordError(err)
		return "", err
	}

	state, err := bulkop.Reduce(bulkop.NewState(), bulkop.Validated{Total: req.Len()})
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(s.rootCtx)
	runCtx = trace.ContextWithSpanContext(runCtx, trace.SpanContextFromContext(ctx))
	requestID, _ := ctx.Value(logger.ContextKeyRequestID).(string)
	if requestID != "" {
		runCtx = context.WithValue(runCtx, logger.ContextKeyRequestID, requestID)
	}

	op := &operation{
		id:        s.newID(),
		actor:     actor,
		req:       req,
		engine:    engine,
		requestID: requestID,
		startedAt: s.now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     state,
	}

	s.mu.Lock()
	if _, exists := s.ops[op.id]; exists {
		s.mu.Unlock()
		cancel()
		return "", fmt.Errorf("%w: duplicate operation id %s", shared.ErrConflict, op.id)
	}
	s.ops[op.id] = op
	s.mu.Unlock()

	metrics.BulkOperationsInFlight.Inc()
	log.Info("bulk operation accepted", "operation_id", op.id, "targets", req.Len())

	s.wg.Add(1)
	go s.run(runCtx, op)

	return op.id, nil
}

// validate runs the request-level checks. It has no side effects.
func (s *BulkOperationService) validate(engine *authz.Engine, actor authz.Actor, req bulkop.Request) error {
	if err := req.Validate(s.cfg.MaxBatchSize); err != nil {
		return err
	}

	if req.Kind() == bulkop.KindRoleChange {
		target := req.TargetRole()
		roles := engine.Hierarchy()
		if roles.IsOwner(target) {
			return authz.ErrOwnerRoleImmutable
		}
		if _, err := roles.Get(target); err != nil {
			return fmt.Errorf("%w: unknown role %q", shared.ErrValidation, target)
		}
		if !engine.CanManageRole(actor.Role, target) {
			return fmt.Errorf("%w: cannot assign role %q", authz.ErrPermissionDenied, target)
		}
	}

	if !engine.CanPerformOperation(actor.Role, req.Kind().Operation()) {
		return authz.ErrPermissionDenied
	}
	return nil
}

func (s *BulkOperationService) lookup(id string) (*operation, error) {
	s.mu.RLock()
	op, ok := s.ops[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", bulkop.ErrOperationNotFound, id)
	}
	return op, nil
}

// GetProgress returns a point-in-time view of an operation.
func (s *BulkOperationService) GetProgress(id string) (bulkop.Progress, error) {
	op, err := s.lookup(id)
	if err != nil {
		return bulkop.Progress{}, err
	}
	return op.progress(), nil
}

// GetResult returns the final result. It fails with
// bulkop.ErrOperationInProgress until the operation is terminal.
func (s *BulkOperationService) GetResult(id string) (bulkop.Result, error) {
	op, err := s.lookup(id)
	if err != nil {
		return bulkop.Result{}, err
	}
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.result == nil {
		return bulkop.Result{}, fmt.Errorf("%w: %s is %s", bulkop.ErrOperationInProgress, id, op.state.Phase)
	}
	return *op.result, nil
}

// Cancel stops dispatch of an operation. Items already running finish;
// items not yet dispatched are recorded as cancelled. Nothing is rolled back.
func (s *BulkOperationService) Cancel(id string) error {
	op, err := s.lookup(id)
	if err != nil {
		return err
	}
	if _, err := op.apply(bulkop.CancelRequested{}); err != nil {
		return err
	}
	op.cancel()

	s.logger.Info("bulk operation cancel requested", "operation_id", id, "actor_id", op.actor.ID)
	s.publish(s.rootCtx, op)
	return nil
}

// Wait blocks until the operation is terminal or ctx is done.
func (s *BulkOperationService) Wait(ctx context.Context, id string) (bulkop.Result, error) {
	op, err := s.lookup(id)
	if err != nil {
		return bulkop.Result{}, err
	}
	select {
	case <-op.done:
		return s.GetResult(id)
	case <-ctx.Done():
		return bulkop.Result{}, ctx.Err()
	}
}

// List returns the progress of every retained operation started by actorID.
// An empty actorID lists all operations.
func (s *BulkOperationService) List(actorID string) []bulkop.Progress {
	s.mu.RLock()
	ops := make([]*operation, 0, len(s.ops))
	for _, op := range s.ops {
		if actorID == "" || op.actor.ID == actorID {
			ops = append(ops, op)
		}
	}
	s.mu.RUnlock()

	out := make([]bulkop.Progress, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.progress())
	}
	return out
}

// Sweep evicts terminal operations that finished before now minus the
// retention period. It returns the number evicted.
func (s *BulkOperationService) Sweep(now time.Time) int {
	cutoff := now.Add(-s.cfg.RetentionPeriod)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, op := range s.ops {
		op.mu.Lock()
		expired := op.result != nil && op.finishedAt.Before(cutoff)
		op.mu.Unlock()
		if expired {
			delete(s.ops, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug("evicted finished bulk operations", "count", evicted)
	}
	return evicted
}

// Start launches the retention sweeper.
func (s *BulkOperationService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(s.now())
			case <-s.stopSweep:
				return
			}
		}
	}()
	s.logger.Info("bulk operation sweeper started",
		"interval", s.cfg.SweepInterval,
		"retention", s.cfg.RetentionPeriod,
	)
}

// Shutdown stops dispatch of every running operation and waits for running
// items to finish. Undispatched items are recorded as system_unavailable.
func (s *BulkOperationService) Shutdown(ctx context.Context) error {
	s.sweepOnce.Do(func() { close(s.stopSweep) })
	s.rootCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("bulk operation service stopped")
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("bulk operations still running"), ctx.Err())
	}
}

func (s *BulkOperationService) publish(ctx context.Context, op *operation) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishProgress(ctx, op.progress())
}
