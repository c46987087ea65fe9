package main

import (
	"log"
	"sync"
	"time"

	"colony-server/spatial"
)

// Metrics records index statistics samples with batched background writes
type Metrics struct {
	db      *DB
	samples chan sample
	stop    chan struct{}
	wg      sync.WaitGroup

	// Live gauges (mutex-protected)
	mu        sync.RWMutex
	observers int
}

type sample struct {
	stats spatial.IndexStats
	at    time.Time
}

// NewMetrics creates and starts the metrics background writer
func NewMetrics(db *DB) *Metrics {
	m := &Metrics{
		db:      db,
		samples: make(chan sample, 256),
		stop:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.writer()
	return m
}

// Record enqueues a statistics snapshot for async persistence (non-blocking)
func (m *Metrics) Record(stats spatial.IndexStats) {
	select {
	case m.samples <- sample{stats: stats, at: time.Now()}:
	default:
		// Channel full — drop sample rather than blocking the world loop
	}
}

// SetObservers updates the live observer count gauge
func (m *Metrics) SetObservers(n int) {
	m.mu.Lock()
	m.observers = n
	m.mu.Unlock()
}

// Observers returns the live observer count gauge
func (m *Metrics) Observers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.observers
}

// Stop gracefully shuts down the metrics writer
func (m *Metrics) Stop() {
	close(m.stop)
	m.wg.Wait()
}

// writer is the background goroutine that batches and writes samples to DB
func (m *Metrics) writer() {
	defer m.wg.Done()

	batch := make([]sample, 0, 16)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case s := <-m.samples:
			batch = append(batch, s)
			if len(batch) >= 16 {
				m.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				m.flush(batch)
				batch = batch[:0]
			}
		case <-m.stop:
			// Drain remaining samples
			close(m.samples)
			for s := range m.samples {
				batch = append(batch, s)
			}
			if len(batch) > 0 {
				m.flush(batch)
			}
			return
		}
	}
}

// flush writes a batch of samples to the database
func (m *Metrics) flush(batch []sample) {
	if m.db == nil || len(batch) == 0 {
		return
	}
	for _, s := range batch {
		if err := m.db.InsertMetricsSample(s.stats, s.at); err != nil {
			log.Printf("metrics: insert error: %v", err)
		}
	}
}
