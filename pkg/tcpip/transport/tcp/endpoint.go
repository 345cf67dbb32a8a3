// Copyright 2024 The Shadow-Go Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tcp implements the simulated TCP connection FSM, send/receive
// buffers, retransmission, and SACK scoreboard (spec.md §4.5, C7), wired
// to a pluggable congestion.Controller and an egress link.Interface
// running CoDel AQM.
package tcp

import (
	"sync"

	"github.com/shadowsim/shadow-go/pkg/event"
	"github.com/shadowsim/shadow-go/pkg/sentry/kernel"
	"github.com/shadowsim/shadow-go/pkg/shadowtime"
	"github.com/shadowsim/shadow-go/pkg/tcpip/link"
	"github.com/shadowsim/shadow-go/pkg/tcpip/transport/tcp/congestion"
)

// State is the connection's position in the standard TCP state machine.
type State int

const (
	Closed State = iota
	Listen
	SynSent
	SynReceived
	Established
	FinWait1
	FinWait2
	Closing
	TimeWait
	CloseWait
	LastAck
)

const (
	initRTO      = shadowtime.Second
	minRTO       = 200 * shadowtime.Millisecond
	maxRTO       = 20 * shadowtime.Minute
	closeTimeout = 60 * shadowtime.Second

	defaultSendBuf = 131072
	minSendBuf     = 16384
	maxSendBuf     = 4194304
	defaultRecvBuf = 174760
	minRecvBuf     = 87380
	maxRecvBuf     = 6291456

	rttAlpha = 0.125
	rttBeta  = 0.25
)

// DefaultMSS is the maximum segment size this stack uses for every
// connection (spec.md §4.5: MTU 1500 minus a 66-byte L2+L3+L4 header),
// exported so config-driven callers can size a congestion.Controller's
// initial window without reaching into this package's private segment
// layout.
const DefaultMSS = defaultMSS

// Addr identifies one endpoint of a connection within the simulation: a
// synthetic per-host IP (the dense HostID the kernel package already
// assigns each simulated machine) plus a port.
type Addr struct {
	Host event.HostID
	Port uint16
}

// Endpoint is one TCP socket: a listener, a connecting/connected flow, or
// a child accepted off a listener's backlog.
type Endpoint struct {
	mu sync.Mutex

	host  *kernel.Host
	local Addr

	state State
	desc  *kernel.Descriptor // for SetStatusBits on state/buffer changes

	// Listener-only state.
	backlog     int
	acceptQueue []*Endpoint

	// Connected state.
	remote Addr
	peer   *Endpoint // direct reference to the other side, same-process

	sndUna   uint32
	sndNext  uint32
	sndBuf   []byte
	sndBufCap int

	rcvNext  uint32
	rcvBuf   []byte
	rcvBufCap int
	ooo      []*segment // out-of-order reassembly queue, sorted by Seq

	retransmitQueue []*segment
	scoreboard      *scoreboard
	dupAcks         int

	cong congestion.Controller

	srtt, rttvar shadowtime.SimTime
	rto          shadowtime.SimTime
	rtoTimerID   uint64 // incremented to invalidate stale scheduled RTO callbacks

	// peerClosed is set once a FIN has been accepted from the remote side
	// (spec.md §4.5's passive-close transitions); callers use it to tell a
	// drained receive buffer apart from one that will never receive more.
	peerClosed   bool
	closeTimerID uint64 // incremented to invalidate a stale TimeWait timeout

	egress *link.Interface
	path   link.Path
}

// New returns a CLOSED endpoint bound to no address.
func New(host *kernel.Host) *Endpoint {
	return &Endpoint{
		host:      host,
		state:     Closed,
		sndBufCap: defaultSendBuf,
		rcvBufCap: defaultRecvBuf,
		scoreboard: newScoreboard(),
		cong:      congestion.NewReno(defaultMSS, 4*defaultMSS, defaultSendBuf),
		srtt:      0,
		rttvar:    0,
		rto:       initRTO,
		egress:    link.NewInterface(0),
	}
}

// SetDescriptor attaches the kernel.Descriptor that owns this endpoint, so
// state transitions and buffer events can flip its status bits.
func (e *Endpoint) SetDescriptor(d *kernel.Descriptor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.desc = d
}

// RemoteAddr returns the endpoint's connected peer address.
func (e *Endpoint) RemoteAddr() Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remote
}

// SetCongestionController replaces the pluggable strategy (spec.md §4.5:
// AIMD, Reno, or Cubic), e.g. per HostParameters configuration.
func (e *Endpoint) SetCongestionController(c congestion.Controller) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cong = c
}

// SetBufferCaps overrides the send/receive buffer byte caps a fresh
// Endpoint starts with (spec.md §4.5's configurable send/receive buffer
// sizes), e.g. from a HostParameters entry's autotune range. Only
// meaningful before any data has been written or received.
func (e *Endpoint) SetBufferCaps(sendCap, recvCap int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sendCap > 0 {
		e.sndBufCap = sendCap
	}
	if recvCap > 0 {
		e.rcvBufCap = recvCap
	}
}

// SetEgress replaces the Endpoint's outbound link.Interface, e.g. from a
// HostParameters-configured bandwidth cap (config.HostParameters.NewEgressInterface).
func (e *Endpoint) SetEgress(iface *link.Interface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.egress = iface
}

// Bind assigns the endpoint's local address.
func (e *Endpoint) Bind(local Addr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.local = local
}

// Listen transitions a bound endpoint to LISTEN with the given backlog,
// registering it so Connect calls targeting this address can find it
// (spec.md §4.5: "listen(fd, backlog) requires an implicit bind if
// unbound").
func (e *Endpoint) Listen(backlog int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Listen
	e.backlog = backlog
	registerListener(e.local, e)
	return nil
}

// State returns the endpoint's current FSM state.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// PeerClosed reports whether a FIN has been accepted from the remote side
// (CloseWait, Closing, TimeWait, LastAck, or Closed all imply this). A
// caller drain-reading a socket uses this, together with an empty receive
// buffer, to recognize end-of-stream without waiting on a status bit that
// will never flip again.
func (e *Endpoint) PeerClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peerClosed
}

func (e *Endpoint) setState(s State) {
	e.state = s
	if e.desc != nil {
		switch s {
		case Established, CloseWait:
			e.desc.SetStatusBits(kernel.StatusWritable)
		}
	}
}
