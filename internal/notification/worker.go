package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"production-status-backend/internal/lifecycle"
	"production-status-backend/internal/metrics"
	"production-status-backend/internal/model"
)

// queueDepth is the number of pending events buffered per worker.
const queueDepth = 64

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Payload is the JSON body delivered to the browser.
type Payload struct {
	Title        string `json:"title"`
	Body         string `json:"body"`
	ProductionID int64  `json:"production_id"`
	Status       string `json:"status"`
}

// WorkerPool fans terminal-run events out to the owner's push subscriptions.
type WorkerPool struct {
	size    int
	jobs    chan lifecycle.Event
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

var _ lifecycle.Notifier = (*WorkerPool)(nil)

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, log *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan lifecycle.Event, size*queueDepth),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log.Named("push"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("worker started", zap.Int("worker", id))
	for {
		select {
		case event := <-wp.jobs:
			wp.notifyOwner(ctx, event)
		case <-ctx.Done():
			wp.log.Debug("worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// ProductionClosed queues event without blocking. Events are dropped when the
// queue is full.
func (wp *WorkerPool) ProductionClosed(event lifecycle.Event) {
	select {
	case wp.jobs <- event:
	default:
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		wp.log.Warn("notification queue full, dropping event",
			zap.Int64("owner_id", event.OwnerID),
			zap.Int64("production_id", event.ProductionID))
	}
}

func (wp *WorkerPool) notifyOwner(ctx context.Context, event lifecycle.Event) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).
		Where("owner_id = ?", event.OwnerID).
		Find(&subscriptions).Error; err != nil {
		wp.log.Error("failed to load subscriptions", zap.Int64("owner_id", event.OwnerID), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(buildPayload(event))
	if err != nil {
		wp.log.Error("failed to encode payload", zap.Error(err))
		return
	}

	wp.log.Debug("sending notifications",
		zap.Int("count", len(subscriptions)),
		zap.Int64("production_id", event.ProductionID))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func buildPayload(event lifecycle.Event) Payload {
	title := "Production finished"
	if event.Status == model.ProductionCanceled {
		title = "Production canceled"
	}
	return Payload{
		Title:        title,
		Body:         fmt.Sprintf("#%d %s is %s", event.ProductionID, event.Description, event.Status),
		ProductionID: event.ProductionID,
		Status:       string(event.Status),
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		wp.log.Warn("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		metrics.NotificationsTotal.WithLabelValues("expired").Inc()
		wp.log.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
		return
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}
