// Copyright (c) 2026 Lerian Studio. All rights reserved.
// Use of this source code is governed by the Elastic License 2.0
// that can be found in the LICENSE file.

package redis

import (
	"context"
	"sync"
	"time"

	"github.com/LerianStudio/lib-commons/v2/commons/log"
	"github.com/LerianStudio/lib-redis-guard/pkg/constant"
)

// HealthMonitor periodically probes the store through the manager's
// HealthCheck path so a silent recovery does not have to wait for the next
// user-initiated call. Exactly one monitor goroutine runs per manager.
type HealthMonitor struct {
	manager  *ConnectionManager
	interval time.Duration
	logger   log.Logger

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewHealthMonitor creates a monitor; Start launches its loop.
func NewHealthMonitor(manager *ConnectionManager, interval time.Duration, logger log.Logger) *HealthMonitor {
	return &HealthMonitor{
		manager:  manager,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the probe loop in a background goroutine.
func (hm *HealthMonitor) Start() {
	go hm.loop()

	hm.logger.Infof("Health monitor started - probing store every %v", hm.interval)
}

// Stop signals the loop to exit and waits for it, bounded so shutdown never
// hangs on a probe stuck in a network timeout.
func (hm *HealthMonitor) Stop() {
	hm.stopOnce.Do(func() {
		close(hm.stopChan)
	})

	select {
	case <-hm.doneChan:
		hm.logger.Info("Health monitor stopped")
	case <-time.After(constant.MonitorJoinTimeout):
		hm.logger.Warnf("Health monitor did not stop within %v", constant.MonitorJoinTimeout)
	}
}

func (hm *HealthMonitor) loop() {
	defer close(hm.doneChan)

	ticker := time.NewTicker(hm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hm.runCycle()
		case <-hm.stopChan:
			return
		}
	}
}

// runCycle performs one probe. When the probe succeeds while the circuit is
// open and the recovery timeout has elapsed, the breaker is proactively
// moved to half-open so the next real operation becomes the trial request.
func (hm *HealthMonitor) runCycle() {
	ctx, cancel := context.WithTimeout(context.Background(),
		hm.manager.config.ConnectTimeout+hm.manager.config.SocketTimeout)
	defer cancel()

	status := hm.manager.HealthCheck(ctx)

	if status.Healthy && hm.manager.breaker.IsOpen() && hm.manager.breaker.ShouldAttemptReset() {
		hm.manager.breaker.AttemptReset()
		hm.logger.Infof("Health probe succeeded while circuit open - moved to half-open for trial")
	}

	if !status.Healthy {
		hm.logger.Warnf("Health probe failed in %v: %s", status.ResponseTime, status.Error)

		return
	}

	hm.logger.Debugf("Health probe succeeded in %v", status.ResponseTime)
}
