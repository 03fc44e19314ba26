package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"github.com/srg/bluecontrol/internal/device"
	"github.com/srg/bluecontrol/internal/groutine"
)

// ErrNoAdapter is returned when a manager is constructed without a BLE adapter
var ErrNoAdapter = errors.New("connection: adapter is required")

// Options configures connection requests
type Options struct {
	RetryCount     int           `default:"2"`
	RetryInterval  time.Duration `default:"100ms"`
	ConnectTimeout time.Duration `default:"10s"` // per attempt
	AutoConnect    bool          `default:"false"`

	ServiceUUID        string `default:"6f59f19e-2f39-49de-8525-5d2045f4d999"`
	CharacteristicUUID string `default:"a9bf2905-ee69-4baa-8960-4358a9e3a558"`
}

// DefaultOptions returns the default connection options
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

// ObserverID identifies a registered observer
type ObserverID uint64

// Manager owns at most one connection session to a peripheral exposing the control
// characteristic. Connect and Disconnect are asynchronous and return a Request.
type Manager struct {
	adapter device.Adapter
	opts    Options
	logger  *logrus.Logger

	observers      *xsync.MapOf[ObserverID, Observer]
	nextObserverID atomic.Uint64

	mu      sync.Mutex // guards session
	session *session
	nextID  uint64
}

type session struct {
	id        uint64
	address   string
	ctx       context.Context
	cancel    context.CancelFunc
	done      <-chan struct{}
	observers []Observer

	mu     sync.Mutex
	state  State
	client device.Client
	char   device.Characteristic
}

func (s *session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *session) getState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// invalidate drops the cached client and characteristic, returning the client
func (s *session) invalidate() device.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	client := s.client
	s.client = nil
	s.char = nil
	return client
}

// NewManager creates a connection manager bound to adapter. A nil opts uses DefaultOptions.
func NewManager(adapter device.Adapter, opts *Options, logger *logrus.Logger) (*Manager, error) {
	if adapter == nil {
		return nil, ErrNoAdapter
	}
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.RetryCount < 0 {
		return nil, fmt.Errorf("retry count must be >= 0, got %d", opts.RetryCount)
	}

	return &Manager{
		adapter:   adapter,
		opts:      *opts,
		logger:    logger,
		observers: xsync.NewMapOf[ObserverID, Observer](),
	}, nil
}

// AddObserver registers o for every session
func (m *Manager) AddObserver(o Observer) ObserverID {
	id := ObserverID(m.nextObserverID.Add(1))
	m.observers.Store(id, o)
	return id
}

func (m *Manager) RemoveObserver(id ObserverID) {
	m.observers.Delete(id)
}

// State returns the state of the current session, or StateIdle
func (m *Manager) State() State {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return StateIdle
	}
	return s.getState()
}

// Address returns the address of the current session, or ""
func (m *Manager) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.address
}

// Connect starts a connection session to address. The observers are attached to this
// session before the first dial, so they see every state change. ctx bounds the
// connect request only; the session lives until Disconnect or a terminal failure.
func (m *Manager) Connect(ctx context.Context, address string, observers ...Observer) *Request {
	address = device.NormalizeAddress(address)
	if address == "" {
		return completedRequest(fmt.Errorf("failed to connect to device: device address is not set"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return completedRequest(fmt.Errorf("%w: session to %s is active", device.ErrAlreadyConnected, m.session.address))
	}

	remote, err := m.adapter.RemoteDevice(address)
	if err != nil {
		err = device.NormalizeError(err)
		m.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to resolve remote device")
		return completedRequest(err)
	}

	m.nextID++
	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:        m.nextID,
		address:   address,
		ctx:       sctx,
		cancel:    cancel,
		observers: observers,
		state:     StateIdle,
	}
	m.session = s

	m.logger.WithFields(logrus.Fields{
		"address": address,
		"session": s.id,
		"retries": m.opts.RetryCount,
	}).Info("Connecting to BLE device...")

	req := newRequest()
	s.done = groutine.Go(sctx, fmt.Sprintf("connection-%d", s.id), func(context.Context) {
		m.run(ctx, s, remote, req)
	})
	return req
}

// Disconnect tears down the current session. A no-op success when idle.
func (m *Manager) Disconnect() *Request {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s == nil {
		return completedRequest(nil)
	}

	req := newRequest()
	groutine.Go(context.Background(), fmt.Sprintf("disconnect-%d", s.id), func(context.Context) {
		req.complete(m.teardown(s))
	})
	return req
}

// Close disconnects and waits for teardown
func (m *Manager) Close() error {
	return m.Disconnect().Wait(context.Background())
}

// Read reads the control characteristic; the session must be ready
func (m *Manager) Read(ctx context.Context) ([]byte, error) {
	char, err := m.readyCharacteristic()
	if err != nil {
		return nil, err
	}
	data, err := char.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", char.UUID(), device.NormalizeError(err))
	}
	return data, nil
}

// Write writes data to the control characteristic; the session must be ready
func (m *Manager) Write(ctx context.Context, data []byte, withResponse bool) error {
	char, err := m.readyCharacteristic()
	if err != nil {
		return err
	}
	if err := char.Write(ctx, data, withResponse); err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", char.UUID(), device.NormalizeError(err))
	}
	return nil
}

func (m *Manager) readyCharacteristic() (device.Characteristic, error) {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return nil, device.ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.char == nil {
		return nil, fmt.Errorf("%w: device %s is %s", device.ErrNotConnected, s.address, s.state)
	}
	return s.char, nil
}

// run drives one session: connect, then watch the link until it ends
func (m *Manager) run(reqCtx context.Context, s *session, remote device.RemoteDevice, req *Request) {
	var attemptCtx context.Context
	var cancel context.CancelFunc
	if deadline, ok := reqCtx.Deadline(); ok {
		attemptCtx, cancel = context.WithDeadline(s.ctx, deadline)
	} else {
		attemptCtx, cancel = context.WithCancel(s.ctx)
	}
	stop := context.AfterFunc(reqCtx, cancel)
	err := m.establish(attemptCtx, s, remote)
	stop()
	cancel()

	req.complete(err)
	if err != nil {
		m.endSession(s)
		return
	}

	for m.watch(s) {
		if err := m.establish(s.ctx, s, remote); err != nil {
			m.endSession(s)
			return
		}
	}
}

// establish dials with retries and checks the required profile
func (m *Manager) establish(ctx context.Context, s *session, remote device.RemoteDevice) error {
	s.setState(StateConnecting)
	m.notify(s, func(o Observer) { o.OnDeviceConnecting(s.address) })

	client, err := m.dialWithRetry(ctx, s, remote)
	if err != nil {
		reason := ReasonFromError(err)
		if s.ctx.Err() != nil {
			reason = ReasonCancelled
		}
		m.logger.WithFields(logrus.Fields{
			"address": s.address,
			"reason":  reason.String(),
			"error":   err,
		}).Error("Failed to connect to device")
		s.setState(StateFailedToConnect)
		m.notify(s, func(o Observer) { o.OnDeviceFailedToConnect(s.address, reason) })
		return err
	}

	s.mu.Lock()
	s.client = client
	s.state = StateConnected
	s.mu.Unlock()
	m.notify(s, func(o Observer) { o.OnDeviceConnected(s.address) })

	char, err := client.Characteristic(m.opts.ServiceUUID, m.opts.CharacteristicUUID)
	if err != nil {
		err = fmt.Errorf("%w: %v", device.ErrServiceNotSupported, err)
		m.logger.WithFields(logrus.Fields{
			"address": s.address,
			"error":   err,
		}).Error("Device does not expose the control characteristic")

		if c := s.invalidate(); c != nil {
			_ = c.Close()
		}
		s.setState(StateFailedToConnect)
		m.notify(s, func(o Observer) { o.OnDeviceFailedToConnect(s.address, ReasonNotSupported) })
		return err
	}

	s.mu.Lock()
	s.char = char
	s.state = StateReady
	s.mu.Unlock()
	m.notify(s, func(o Observer) { o.OnDeviceReady(s.address) })
	return nil
}

func (m *Manager) dialWithRetry(ctx context.Context, s *session, remote device.RemoteDevice) (device.Client, error) {
	attempts := m.opts.RetryCount + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		client, err := m.dial(ctx, remote)
		if err == nil {
			return client, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			if !errors.Is(lastErr, ctxErr) {
				lastErr = fmt.Errorf("%w: %v", ctxErr, lastErr)
			}
			return nil, lastErr
		}
		if attempt == attempts {
			break
		}

		m.logger.WithFields(logrus.Fields{
			"address": s.address,
			"attempt": attempt,
			"error":   err,
		}).Warn("Connection attempt failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.opts.RetryInterval):
		}
	}

	return nil, fmt.Errorf("failed to connect to device with address %q after %d attempts: %w", s.address, attempts, lastErr)
}

func (m *Manager) dial(ctx context.Context, remote device.RemoteDevice) (device.Client, error) {
	dialCtx := ctx
	if m.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.opts.ConnectTimeout)
		defer cancel()
	}

	client, err := remote.Dial(dialCtx)
	if err != nil {
		// A per-attempt timeout is not a cancellation of the request.
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", device.ErrTimeout, err)
		}
		return nil, device.NormalizeError(err)
	}
	return client, nil
}

// watch blocks until the link drops or the session is cancelled.
// Returns true when the manager should reconnect.
func (m *Manager) watch(s *session) bool {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return false
	}

	select {
	case <-s.ctx.Done():
		return false
	case <-client.Disconnected():
	}

	// A local teardown closes the link too; teardown reports that one.
	if s.ctx.Err() != nil {
		return false
	}

	s.invalidate()
	s.setState(StateDisconnected)
	m.logger.WithField("address", s.address).Warn("Device link lost")
	m.notify(s, func(o Observer) { o.OnDeviceDisconnected(s.address, ReasonLinkLoss) })

	if !m.opts.AutoConnect {
		m.endSession(s)
		return false
	}

	m.logger.WithField("address", s.address).Info("Reconnecting to BLE device...")
	return true
}

// teardown cancels s, waits for its goroutine and closes the link if one is up
func (m *Manager) teardown(s *session) error {
	s.cancel()
	<-s.done

	client := s.invalidate()
	if client == nil {
		m.logger.WithField("address", s.address).Debug("Session ended before a link was up")
		return nil
	}

	m.logger.WithField("address", s.address).Info("Disconnecting BLE device...")
	s.setState(StateDisconnecting)
	m.notify(s, func(o Observer) { o.OnDeviceDisconnecting(s.address) })

	err := client.Close()
	if err != nil {
		err = device.NormalizeError(err)
		m.logger.WithFields(logrus.Fields{
			"address": s.address,
			"error":   err,
		}).Warn("BLE device disconnected with errors")
	} else {
		m.logger.WithField("address", s.address).Info("BLE device disconnected successfully")
	}

	s.setState(StateDisconnected)
	m.notify(s, func(o Observer) { o.OnDeviceDisconnected(s.address, ReasonTerminateLocalHost) })
	return err
}

// endSession clears s as the current session after a terminal failure
func (m *Manager) endSession(s *session) {
	m.mu.Lock()
	if m.session == s {
		m.session = nil
	}
	m.mu.Unlock()
	s.cancel()
}

func (m *Manager) notify(s *session, fn func(o Observer)) {
	for _, o := range s.observers {
		m.safeNotify(o, fn)
	}
	m.observers.Range(func(_ ObserverID, o Observer) bool {
		m.safeNotify(o, fn)
		return true
	})
}

func (m *Manager) safeNotify(o Observer, fn func(o Observer)) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithField("panic", strings.TrimSpace(fmt.Sprint(r))).Error("Connection observer panicked")
		}
	}()
	fn(o)
}
