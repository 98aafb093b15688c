package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"PrintStation/app/database"
	"PrintStation/app/escpos"
	"PrintStation/app/models"
)

// Notifier surfaces user-visible failure notifications.
type Notifier interface {
	Notify(title, message string)
}

// LogNotifier writes notifications to the application log. Stations
// without an attached UI have nowhere else to put them.
type LogNotifier struct {
	Logger *LoggerService
}

// Notify logs the notification.
func (n *LogNotifier) Notify(title, message string) {
	n.Logger.LogWarning("Notification: "+title, message)
}

// Fallback is the HTML print path used when the agent path throws.
type Fallback interface {
	Print(job *models.PrintJob, opts escpos.Options) error
}

// QueueListenerConfig carries the listener's fixed parameters.
type QueueListenerConfig struct {
	TenantID          string
	DeviceID          string
	UnknownTypeTTL    time.Duration
	ReconcileInterval time.Duration
}

// QueueListener delivers pending print jobs to the router with
// at-least-once semantics. Two triggers feed it: the realtime push
// subscription (one event per inserted job) and a reconciliation pass
// over all pending jobs run on start, on transport reconnect and on a
// timer. Both triggers are deduplicated by an in-memory claim set; a
// restart forgets all claims and re-attempts whatever is still pending
// in the store.
type QueueListener struct {
	store    JobStore
	router   *PrintRouter
	fallback Fallback
	state    *StationState
	lease    Lease
	logger   *LoggerService
	notifier Notifier
	recorder *database.LocalDB
	cfg      QueueListenerConfig

	// snapshotConfig builds the per-attempt configuration snapshot.
	snapshotConfig func(ctx context.Context) (DispatchConfig, error)

	claimsMu sync.Mutex
	claims   map[uint]struct{}

	nc  *nats.Conn
	sub *nats.Subscription

	ctx         context.Context
	cancel      context.CancelFunc
	reconcileCh chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewQueueListener wires the listener. nc may be nil (no push channel;
// reconciliation alone drives delivery). recorder may be nil.
func NewQueueListener(
	store JobStore,
	router *PrintRouter,
	fallback Fallback,
	state *StationState,
	lease Lease,
	logger *LoggerService,
	notifier Notifier,
	recorder *database.LocalDB,
	nc *nats.Conn,
	snapshotConfig func(ctx context.Context) (DispatchConfig, error),
	cfg QueueListenerConfig,
) *QueueListener {
	if cfg.UnknownTypeTTL <= 0 {
		cfg.UnknownTypeTTL = 24 * time.Hour
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = time.Minute
	}
	return &QueueListener{
		store:          store,
		router:         router,
		fallback:       fallback,
		state:          state,
		lease:          lease,
		logger:         logger,
		notifier:       notifier,
		recorder:       recorder,
		nc:             nc,
		snapshotConfig: snapshotConfig,
		cfg:            cfg,
		claims:         make(map[uint]struct{}),
		reconcileCh:    make(chan struct{}, 1),
	}
}

// Start subscribes to the push channel and runs the reconciliation loop.
func (l *QueueListener) Start() error {
	l.ctx, l.cancel = context.WithCancel(context.Background())

	// Transport reconnect and print-server activation both warrant a
	// fresh pass over pending jobs.
	l.state.OnChange(func(prev, curr StationSnapshot) {
		reconnected := !prev.TransportConnected && curr.TransportConnected
		activated := !prev.ActingAsPrintServer && curr.ActingAsPrintServer
		if reconnected || activated {
			l.TriggerReconcile()
		}
	})

	if l.nc != nil {
		subject := fmt.Sprintf("print_queue.%s.insert", l.cfg.TenantID)
		sub, err := l.nc.Subscribe(subject, func(msg *nats.Msg) {
			var job models.PrintJob
			if err := json.Unmarshal(msg.Data, &job); err != nil {
				l.logger.LogError("Failed to decode push event", err, subject)
				return
			}
			l.wg.Add(1)
			go func() {
				defer l.wg.Done()
				defer l.logger.RecoverPanic()
				l.Process(l.ctx, job)
			}()
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		l.sub = sub
		l.logger.LogInfo("Subscribed to print queue events", subject)
	}

	l.wg.Add(1)
	go l.run()
	return nil
}

func (l *QueueListener) run() {
	defer l.wg.Done()
	defer l.logger.RecoverPanic()

	ticker := time.NewTicker(l.cfg.ReconcileInterval)
	defer ticker.Stop()

	l.reconcile()
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.reconcileCh:
			l.reconcile()
		case <-ticker.C:
			l.reconcile()
		}
	}
}

// Stop unsubscribes and waits for in-flight jobs to settle.
func (l *QueueListener) Stop() {
	l.stopOnce.Do(func() {
		if l.sub != nil {
			l.sub.Unsubscribe()
		}
		if l.cancel != nil {
			l.cancel()
		}
	})
	l.wg.Wait()
}

// TriggerReconcile schedules a reconciliation pass. Coalesces with an
// already scheduled pass.
func (l *QueueListener) TriggerReconcile() {
	select {
	case l.reconcileCh <- struct{}{}:
	default:
	}
}

// reconcile processes every currently pending job for the tenant.
func (l *QueueListener) reconcile() {
	if !l.readyToClaim() {
		return
	}

	jobs, err := l.store.PendingJobs(l.ctx, l.cfg.TenantID)
	if err != nil {
		l.logger.LogError("Reconciliation scan failed", err)
		return
	}
	for _, job := range jobs {
		l.Process(l.ctx, job)
	}
}

// readyToClaim checks the preconditions common to both triggers: the
// station must be acting as print server, the transport connected, and
// the tenant lease held. Jobs stay pending otherwise.
func (l *QueueListener) readyToClaim() bool {
	snap := l.state.Snapshot()
	if !snap.ActingAsPrintServer || !snap.TransportConnected {
		return false
	}
	if l.lease != nil && !l.lease.Held() {
		return false
	}
	return true
}

func (l *QueueListener) tryClaim(id uint) bool {
	l.claimsMu.Lock()
	defer l.claimsMu.Unlock()
	if _, claimed := l.claims[id]; claimed {
		return false
	}
	l.claims[id] = struct{}{}
	return true
}

func (l *QueueListener) release(id uint) {
	l.claimsMu.Lock()
	delete(l.claims, id)
	l.claimsMu.Unlock()
}

// Process attempts one job. Never panics across this boundary; one bad
// job cannot stop processing of the next.
func (l *QueueListener) Process(ctx context.Context, job models.PrintJob) {
	defer l.logger.RecoverPanic()

	if !l.readyToClaim() {
		return
	}
	if !l.tryClaim(job.ID) {
		return
	}
	// Release unconditionally so a later pass can retry the job if its
	// status is reset upstream.
	defer l.release(job.ID)

	fresh, err := l.store.GetJob(ctx, job.ID)
	if err != nil {
		l.logger.LogError("Failed to re-read job before processing", err, fmt.Sprintf("job=%d", job.ID))
		return
	}
	if fresh.Status != models.PrintJobPending {
		return
	}

	if !knownPrintType(fresh.PrintType) {
		l.handleUnknownType(ctx, fresh)
		return
	}

	cfg, err := l.snapshotConfig(ctx)
	if err != nil {
		// Transient; leave the job pending for a later pass.
		l.logger.LogError("Failed to snapshot print configuration", err, fmt.Sprintf("job=%d", job.ID))
		return
	}

	dispatchErr := l.dispatch(ctx, fresh, cfg)
	if dispatchErr == nil {
		l.finish(ctx, fresh, cfg, true, false, "")
		return
	}

	l.logger.LogError("Primary dispatch failed, attempting fallback", dispatchErr,
		fmt.Sprintf("job=%d type=%s", fresh.ID, fresh.PrintType))

	if l.fallback != nil {
		if ferr := l.fallback.Print(fresh, cfg.Options); ferr == nil {
			l.finish(ctx, fresh, cfg, true, true, "")
			return
		}
	}

	l.finish(ctx, fresh, cfg, false, false, dispatchErr.Error())
	l.notifier.Notify("Print failed", fmt.Sprintf("Could not print %s for job %d", fresh.PrintType, fresh.ID))
}

func knownPrintType(t models.PrintType) bool {
	switch t {
	case models.PrintTypeKitchenTicket,
		models.PrintTypeKitchenTicketSector,
		models.PrintTypeCustomerReceipt,
		models.PrintTypeCancellationTicket:
		return true
	}
	return false
}

// handleUnknownType leaves a fresh unknown-type job pending (a newer
// deployment may have introduced a type this build predates) but expires
// it to failed once it outlives the TTL, so it cannot sit in the queue
// forever.
func (l *QueueListener) handleUnknownType(ctx context.Context, job *models.PrintJob) {
	if job.Age(time.Now().UTC()) < l.cfg.UnknownTypeTTL {
		l.logger.LogWarning("Unknown print type, leaving job pending",
			fmt.Sprintf("job=%d type=%s", job.ID, job.PrintType))
		return
	}

	reason := fmt.Sprintf("unsupported print_type %q expired after %s", job.PrintType, l.cfg.UnknownTypeTTL)
	applied, err := l.store.MarkFailed(ctx, job.ID, l.cfg.DeviceID, reason)
	if err != nil {
		l.logger.LogError("Failed to expire unknown-type job", err, fmt.Sprintf("job=%d", job.ID))
		return
	}
	if applied {
		l.logger.LogWarning("Expired unknown-type job", fmt.Sprintf("job=%d type=%s", job.ID, job.PrintType))
	}
}

func (l *QueueListener) dispatch(ctx context.Context, job *models.PrintJob, cfg DispatchConfig) error {
	switch job.PrintType {
	case models.PrintTypeKitchenTicket, models.PrintTypeKitchenTicketSector:
		var data models.KitchenTicketData
		if err := job.DecodeData(&data); err != nil {
			return err
		}
		return l.router.DispatchKitchenTicket(ctx, data, cfg)
	case models.PrintTypeCustomerReceipt:
		var data models.CustomerReceiptData
		if err := job.DecodeData(&data); err != nil {
			return err
		}
		return l.router.DispatchCustomerReceipt(ctx, data, cfg)
	case models.PrintTypeCancellationTicket:
		var data models.CancellationTicketData
		if err := job.DecodeData(&data); err != nil {
			return err
		}
		return l.router.DispatchCancellationTicket(ctx, data, cfg)
	}
	return fmt.Errorf("unhandled print type %s", job.PrintType)
}

// finish writes the terminal status and the local print log entry. The
// store transition is first-writer-wins; losing it just means another
// station resolved the job.
func (l *QueueListener) finish(ctx context.Context, job *models.PrintJob, cfg DispatchConfig, success, usedFallback bool, reason string) {
	var applied bool
	var err error
	if success {
		applied, err = l.store.MarkPrinted(ctx, job.ID, l.cfg.DeviceID)
	} else {
		applied, err = l.store.MarkFailed(ctx, job.ID, l.cfg.DeviceID, reason)
	}
	if err != nil {
		l.logger.LogError("Failed to report job status", err, fmt.Sprintf("job=%d", job.ID))
		return
	}
	if !applied {
		l.logger.LogWarning("Job already resolved by another writer", fmt.Sprintf("job=%d", job.ID))
		return
	}

	if l.recorder != nil {
		printer := cfg.KitchenPrinter
		if job.PrintType == models.PrintTypeCustomerReceipt {
			printer = cfg.CashierPrinter
		}
		entry := database.PrintLogEntry{
			JobID:       job.ID,
			PrintType:   string(job.PrintType),
			PrinterName: printer,
			Success:     success,
			Fallback:    usedFallback,
			ErrorDetail: reason,
			CreatedAt:   time.Now().UTC(),
		}
		if err := l.recorder.RecordPrint(entry); err != nil {
			l.logger.LogError("Failed to record local print log", err, fmt.Sprintf("job=%d", job.ID))
		}
	}
}
