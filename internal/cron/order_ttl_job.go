package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/orderflow/pkg/logger"
)

const defaultUnpaidTTL = 30 * time.Minute

type unpaidExpirer interface {
	ExpireUnpaid(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// UnpaidOrderTTLJobParams configure the unpaid-order-ttl job.
type UnpaidOrderTTLJobParams struct {
	Logger    *logger.Logger
	Orders    unpaidExpirer
	TTL       time.Duration
	BatchSize int
	Every     time.Duration
}

// NewUnpaidOrderTTLJob cancels online orders still waiting for payment after
// TTL. Orders with a payment in flight are skipped by the order service.
func NewUnpaidOrderTTLJob(params UnpaidOrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultUnpaidTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &unpaidOrderTTLJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
		batch:  batch,
		every:  params.Every,
		now:    time.Now,
	}, nil
}

type unpaidOrderTTLJob struct {
	logg   *logger.Logger
	orders unpaidExpirer
	ttl    time.Duration
	batch  int
	every  time.Duration
	now    func() time.Time
}

func (j *unpaidOrderTTLJob) Name() string         { return "unpaid-order-ttl" }
func (j *unpaidOrderTTLJob) Every() time.Duration { return j.every }

func (j *unpaidOrderTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	expired, err := j.orders.ExpireUnpaid(ctx, cutoff, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"expired": expired,
	})
	if err != nil {
		return fmt.Errorf("expire unpaid orders: %w", err)
	}
	j.logg.Info(logCtx, "unpaid order expiration complete")
	return nil
}
