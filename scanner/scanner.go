package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/cskr/pubsub/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/bluecontrol/internal/device"
	"github.com/srg/bluecontrol/internal/groutine"
	"github.com/srg/bluecontrol/internal/ringchan"
)

const (
	devicesTopic = "devices"

	// subscriberBuffer is the per-subscriber capacity for device set updates; a slow
	// subscriber loses the oldest sets, never the latest one
	subscriberBuffer = 16

	// failureBuffer bounds undelivered scan failures; older ones are overwritten
	failureBuffer = 8

	// DefaultStopTimeout bounds how long Stop waits for the backend scan to return
	DefaultStopTimeout = 5 * time.Second
)

// ErrNoAdapter is returned when a scanner is constructed without a BLE adapter
var ErrNoAdapter = errors.New("scanner: adapter is required")

// Subscription receives a full DeviceSet every time the set changes
type Subscription <-chan DeviceSet

// DefaultScanSettings returns the fixed control-service filter with a balanced scan mode
func DefaultScanSettings() device.ScanSettings {
	return device.ScanSettings{
		ServiceUUIDs: []string{device.NormalizeUUID(device.ControlServiceUUID)},
		Mode:         device.ScanModeBalanced,
	}
}

// Scanner discovers peripherals advertising the control service and publishes the
// deduplicated device set to subscribers.
//
// Start and Stop are expected to be driven from a single control goroutine.
// Scan results arrive on backend goroutines and are matched against the current
// session, so callbacks that outlive their session are dropped.
type Scanner struct {
	adapter     device.Adapter
	settings    device.ScanSettings
	logger      *logrus.Logger
	stopTimeout time.Duration
	now         func() time.Time

	devices  atomic.Pointer[hashmap.Map[string, DiscoveredDevice]]
	ps       *pubsub.PubSub[string, DeviceSet]
	failures *ringchan.RingChannel[*device.ScanFailedError]

	mu      sync.Mutex // guards session
	session *session
	nextID  uint64

	recvMu   sync.Mutex // serializes result handling with session changes
	activeID uint64
	closed   bool
	subs     map[Subscription]chan DeviceSet
}

type session struct {
	id     uint64
	cancel context.CancelFunc
	done   <-chan struct{}
}

// NewScanner creates a scanner bound to adapter. A nil settings uses DefaultScanSettings.
func NewScanner(adapter device.Adapter, settings *device.ScanSettings, logger *logrus.Logger) (*Scanner, error) {
	if adapter == nil {
		return nil, ErrNoAdapter
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &Scanner{
		adapter:     adapter,
		settings:    DefaultScanSettings(),
		logger:      logger,
		stopTimeout: DefaultStopTimeout,
		now:         time.Now,
		ps:          pubsub.New[string, DeviceSet](subscriberBuffer),
		failures:    ringchan.New[*device.ScanFailedError](failureBuffer),
		subs:        make(map[Subscription]chan DeviceSet),
	}
	if settings != nil {
		s.settings = *settings
		s.settings.ServiceUUIDs = device.NormalizeUUIDs(settings.ServiceUUIDs)
	}
	s.devices.Store(hashmap.New[string, DiscoveredDevice]())

	return s, nil
}

// Settings returns the scan settings used for every session
func (s *Scanner) Settings() device.ScanSettings {
	return s.settings
}

// Start opens a scan session if none is active. Calling Start while scanning is a no-op.
// The device set is cleared when a new session opens.
func (s *Scanner) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		s.logger.WithField("session", s.session.id).Debug("Scan already active, ignoring start")
		return nil
	}

	s.recvMu.Lock()
	if s.closed {
		s.recvMu.Unlock()
		return fmt.Errorf("scanner is closed")
	}
	s.nextID++
	id := s.nextID
	s.devices.Store(hashmap.New[string, DiscoveredDevice]())
	s.activeID = id
	s.recvMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{id: id, cancel: cancel}
	s.session = sess

	s.logger.WithFields(logrus.Fields{
		"session":  id,
		"services": s.settings.ServiceUUIDs,
		"mode":     s.settings.Mode.String(),
	}).Info("Starting BLE scan...")

	receiver := &sessionReceiver{scanner: s, id: id}
	sess.done = groutine.Go(ctx, fmt.Sprintf("scan-session-%d", id), func(ctx context.Context) {
		err := s.adapter.Scan(ctx, s.settings, receiver)
		s.finish(id, err)
	})

	return nil
}

// Stop closes the active scan session, if any. Stopping an idle scanner is a no-op.
func (s *Scanner) Stop() error {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess == nil {
		return nil
	}

	s.recvMu.Lock()
	if s.activeID == sess.id {
		s.activeID = 0
	}
	s.recvMu.Unlock()

	sess.cancel()

	select {
	case <-sess.done:
	case <-time.After(s.stopTimeout):
		s.logger.WithField("session", sess.id).Warn("Backend scan did not return after stop")
	}

	s.logger.WithFields(logrus.Fields{
		"session":      sess.id,
		"device_count": s.devices.Load().Len(),
	}).Info("BLE scan stopped")
	return nil
}

// IsScanning reports whether a scan session is active
func (s *Scanner) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// Devices returns a snapshot of the current device set
func (s *Scanner) Devices() DeviceSet {
	return snapshot(s.devices.Load())
}

// Subscribe registers for device set updates. A non-empty current set is delivered immediately.
// Each subscription is backed by a drop-oldest ring, so the most recent set always
// reaches the subscriber even when it falls behind.
func (s *Scanner) Subscribe() Subscription {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	ring := ringchan.New[DeviceSet](subscriberBuffer)
	if s.closed {
		ring.Close()
		return ring.C()
	}

	ch := s.ps.Sub(devicesTopic)
	groutine.Go(context.Background(), "devices-subscriber", func(context.Context) {
		defer ring.Close()
		for set := range ch {
			ring.Send(set)
		}
	})

	if current := snapshot(s.devices.Load()); len(current) > 0 {
		ring.Send(current)
	}

	sub := Subscription(ring.C())
	s.subs[sub] = ch
	return sub
}

// Unsubscribe stops delivery to sub. The subscription is closed once pending sets are forwarded.
func (s *Scanner) Unsubscribe(sub Subscription) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	ch, ok := s.subs[sub]
	if !ok || s.closed {
		return
	}
	delete(s.subs, sub)
	s.ps.Unsub(ch, devicesTopic)
}

// Failures delivers scan failures. Each failure ends its session.
func (s *Scanner) Failures() <-chan *device.ScanFailedError {
	return s.failures.C()
}

// Close stops scanning and releases subscribers
func (s *Scanner) Close() {
	_ = s.Stop()

	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.activeID = 0
	s.subs = nil
	s.ps.Shutdown()
	s.failures.Close()
}

// finish runs when the backend scan returns, either after Stop or on its own
func (s *Scanner) finish(id uint64, err error) {
	s.mu.Lock()
	current := s.session != nil && s.session.id == id
	if current {
		s.session = nil
	}
	s.mu.Unlock()

	if current {
		s.recvMu.Lock()
		if s.activeID == id {
			s.activeID = 0
		}
		s.recvMu.Unlock()
	}

	sfe := device.NewScanFailedError(err)
	if sfe == nil {
		s.logger.WithField("session", id).Debug("Backend scan returned")
		return
	}
	if !current {
		s.logger.WithFields(logrus.Fields{
			"session": id,
			"error":   err,
		}).Debug("Ignoring failure of a stopped scan session")
		return
	}

	s.onScanFailed(id, sfe)
}

// onScanFailed reports a failure; there is no retry and the device set is left as-is
func (s *Scanner) onScanFailed(id uint64, sfe *device.ScanFailedError) {
	s.logger.WithFields(logrus.Fields{
		"session": id,
		"code":    int(sfe.Code),
		"reason":  sfe.Code.String(),
		"error":   sfe.Err,
	}).Error("BLE scan failed")

	s.failures.Send(sfe)
}

// handle applies single or batched results through one dedup + publish path
func (s *Scanner) handle(id uint64, advs []device.Advertisement) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if s.activeID != id {
		s.logger.WithFields(logrus.Fields{
			"session": id,
			"results": len(advs),
		}).Debug("Dropping late scan results")
		return
	}

	devices := s.devices.Load()
	changed := false
	for _, adv := range advs {
		if s.upsert(devices, adv) {
			changed = true
		}
	}

	if changed {
		// Pub waits for each forwarder, which never blocks on its ring
		s.ps.Pub(snapshot(devices), devicesTopic)
	}
}

// upsert inserts or updates the device for adv. Returns false if adv was filtered out.
func (s *Scanner) upsert(devices *hashmap.Map[string, DiscoveredDevice], adv device.Advertisement) bool {
	if adv == nil {
		return false
	}

	address := device.NormalizeAddress(adv.Addr())
	if address == "" {
		return false
	}

	if !device.HasService(adv.Services(), s.settings.ServiceUUIDs) {
		s.logger.WithField("address", address).Debug("Ignoring advertisement without required service")
		return false
	}

	now := s.now()
	if existing, ok := devices.Get(address); ok {
		updated := mergeAdvertisement(existing, adv, now)
		devices.Set(address, updated)
		s.logger.WithFields(logrus.Fields{
			"device": updated.DisplayName(address),
			"rssi":   updated.RSSI,
		}).Debug("Updated device")
		return true
	}

	dev := newDiscoveredDevice(address, adv, now)
	devices.Set(address, dev)
	s.logger.WithFields(logrus.Fields{
		"device":  dev.DisplayName(address),
		"address": address,
		"rssi":    dev.RSSI,
	}).Info("Discovered new device")
	return true
}

// sessionReceiver binds backend callbacks to the session that started them
type sessionReceiver struct {
	scanner *Scanner
	id      uint64
}

func (r *sessionReceiver) HandleResult(adv device.Advertisement) {
	r.scanner.handle(r.id, []device.Advertisement{adv})
}

func (r *sessionReceiver) HandleBatch(advs []device.Advertisement) {
	if len(advs) == 0 {
		return
	}
	r.scanner.handle(r.id, advs)
}
