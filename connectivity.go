package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/go-ping/ping"
	"golang.org/x/time/rate"
)

// Prober answers one question: can we reach the network right now?
type Prober interface {
	Probe(ctx context.Context) (bool, error)
}

// interfaceProber reports whether a network interface is administratively
// up and has an IPv4 address assigned.
type interfaceProber struct {
	name string
}

func (p interfaceProber) Probe(ctx context.Context) (bool, error) {
	iface, err := net.InterfaceByName(p.name)
	if err != nil {
		return false, err
	}
	if iface.Flags&net.FlagUp == 0 {
		return false, nil
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return false, err
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
			return true, nil
		}
	}
	return false, nil
}

// pingProber sends one ICMP echo. Raw ICMP usually requires root; the
// probe falls back to unprivileged UDP pings when not running as root.
type pingProber struct {
	host       string
	timeout    time.Duration
	privileged bool
}

func (p pingProber) Probe(ctx context.Context) (bool, error) {
	pinger, err := ping.NewPinger(p.host)
	if err != nil {
		return false, err
	}
	pinger.SetPrivileged(p.privileged)
	pinger.Count = 1
	pinger.Timeout = p.timeout

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			pinger.Stop()
		case <-done:
		}
	}()

	if err := pinger.Run(); err != nil {
		return false, err
	}
	return pinger.Statistics().PacketsRecv > 0, nil
}

// chainProber succeeds only if every prober does, stopping at the first no.
type chainProber []Prober

func (c chainProber) Probe(ctx context.Context) (bool, error) {
	for _, p := range c {
		ok, err := p.Probe(ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

//---------------- Debounce ----------------

// ConnectivityState is the debounced connectivity mode plus the counters
// that drive it. The zero value is OFFLINE.
type ConnectivityState struct {
	Online          bool
	OnlineSuccesses int
	OfflineFailures int
}

// Transition is the edge produced by one sample, if any.
type Transition int

const (
	NoTransition Transition = iota
	WentOnline
	WentOffline
)

func (t Transition) String() string {
	switch t {
	case WentOnline:
		return "ONLINE"
	case WentOffline:
		return "OFFLINE"
	default:
		return "none"
	}
}

// ConnectivityMonitor debounces a noisy Prober. Coming online is fast
// (onlineThreshold samples, 1 by default) and going offline is slow
// (offlineThreshold samples, 3 by default) to ride out short blips.
type ConnectivityMonitor struct {
	prober           Prober
	onlineThreshold  int
	offlineThreshold int
	errLog           rate.Sometimes
}

func newConnectivityMonitor(prober Prober, onlineThreshold, offlineThreshold int) *ConnectivityMonitor {
	return &ConnectivityMonitor{
		prober:           prober,
		onlineThreshold:  max(onlineThreshold, 1),
		offlineThreshold: max(offlineThreshold, 1),
		errLog:           rate.Sometimes{First: 1, Interval: time.Minute},
	}
}

// Sample probes once and folds the result into st. A probe error counts as
// "not connected" and never reaches the caller.
func (m *ConnectivityMonitor) Sample(ctx context.Context, st *ConnectivityState) Transition {
	ok, err := m.prober.Probe(ctx)
	if err != nil {
		m.errLog.Do(func() { log.Printf("connectivity probe error: %v", err) })
		ok = false
	}
	return m.Record(st, ok)
}

// Record applies one sample result to st and reports the edge, if any.
func (m *ConnectivityMonitor) Record(st *ConnectivityState, connected bool) Transition {
	if connected {
		st.OnlineSuccesses++
		st.OfflineFailures = 0
	} else {
		st.OfflineFailures++
		st.OnlineSuccesses = 0
	}

	switch {
	case st.Online && st.OfflineFailures >= m.offlineThreshold:
		st.Online = false
		return WentOffline
	case !st.Online && st.OnlineSuccesses >= m.onlineThreshold:
		st.Online = true
		return WentOnline
	}
	return NoTransition
}

func (st ConnectivityState) String() string {
	mode := "OFFLINE"
	if st.Online {
		mode = "ONLINE"
	}
	return fmt.Sprintf("%s (ok=%d fail=%d)", mode, st.OnlineSuccesses, st.OfflineFailures)
}
