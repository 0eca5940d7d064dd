package monitor

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/linkguard-hq/linkguard/pkg/logger"
	"github.com/linkguard-hq/linkguard/pkg/models"
)

// ConnectivitySource reports the platform's raw view of the network
// link. The status monitor layers its liveness probe on top of it, so
// a source only has to answer "is the link up and what kind is it".
type ConnectivitySource interface {
	// Status returns the current raw link state.
	Status() models.ConnectivityStatus

	// Watch registers a callback invoked on every raw link
	// transition. The returned cancel func unregisters it; calling
	// cancel more than once is a no-op.
	Watch(cb func(models.ConnectivityStatus)) (cancel func())
}

// InterfaceSource is the shipped platform adapter. It polls the OS
// network interface table and reports the link as up when any
// non-loopback interface is up and has an address. The interface name
// decides the coarse connection type.
type InterfaceSource struct {
	interval time.Duration
	logger   logger.Logger

	mu       sync.Mutex
	watchers map[int]func(models.ConnectivityStatus)
	nextID   int
	last     models.ConnectivityStatus
	haveLast bool
	stopChan chan struct{}
	running  bool
}

var _ ConnectivitySource = (*InterfaceSource)(nil)

// NewInterfaceSource creates an interface-table source polling at the
// given interval.
func NewInterfaceSource(interval time.Duration, log logger.Logger) *InterfaceSource {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &InterfaceSource{
		interval: interval,
		logger:   log,
		watchers: make(map[int]func(models.ConnectivityStatus)),
	}
}

// Start begins polling for link transitions
func (s *InterfaceSource) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return // Already running
	}

	s.stopChan = make(chan struct{})
	s.running = true

	go s.run(s.stopChan)
}

// Stop halts polling
func (s *InterfaceSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopChan)
	s.stopChan = nil
	s.running = false
}

func (s *InterfaceSource) Status() models.ConnectivityStatus {
	return sampleInterfaces()
}

func (s *InterfaceSource) Watch(cb func(models.ConnectivityStatus)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.watchers[id] = cb

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *InterfaceSource) run(stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *InterfaceSource) poll() {
	current := sampleInterfaces()

	s.mu.Lock()
	changed := !s.haveLast || current != s.last
	s.last = current
	s.haveLast = true
	var cbs []func(models.ConnectivityStatus)
	if changed {
		for _, cb := range s.watchers {
			cbs = append(cbs, cb)
		}
	}
	s.mu.Unlock()

	if changed {
		s.logger.DebugWith(logger.Monitor, "Link transition: online=%v type=%s", current.IsOnline, current.ConnectionType)
		for _, cb := range cbs {
			cb(current)
		}
	}
}

// sampleInterfaces inspects the OS interface table once
func sampleInterfaces() models.ConnectivityStatus {
	status := models.ConnectivityStatus{
		ConnectionType: models.ConnectionUnknown,
		EffectiveType:  models.EffectiveUnknown,
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return status
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}

		status.IsOnline = true
		if t := classifyInterface(iface.Name); t != models.ConnectionUnknown {
			status.ConnectionType = t
			// Wired and wifi links beat cellular ones in the report
			if t == models.ConnectionEthernet || t == models.ConnectionWifi {
				break
			}
		}
	}

	return status
}

// classifyInterface maps an interface name to a connection type using
// common naming conventions (eth*/en* wired, wl* wifi, wwan*/rmnet*
// cellular).
func classifyInterface(name string) models.ConnectionType {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "wl"):
		return models.ConnectionWifi
	case strings.HasPrefix(lower, "wwan"), strings.HasPrefix(lower, "rmnet"), strings.HasPrefix(lower, "ppp"):
		return models.ConnectionCellular
	case strings.HasPrefix(lower, "eth"), strings.HasPrefix(lower, "en"):
		return models.ConnectionEthernet
	}
	return models.ConnectionUnknown
}
