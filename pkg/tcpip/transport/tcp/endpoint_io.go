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

package tcp

import (
	"errors"
	"sync"

	"github.com/shadowsim/shadow-go/pkg/sentry/kernel"
	"github.com/shadowsim/shadow-go/pkg/shadowtime"
	"github.com/shadowsim/shadow-go/pkg/tcpip/link"
)

// ErrConnectionRefused is returned by Connect when no listener is bound
// to the target address.
var ErrConnectionRefused = errors.New("tcp: connection refused")

// registry maps a bound Addr to its LISTEN endpoint, standing in for the
// simulation's address resolution (every host is reachable directly;
// there is no NAT or subnetting to model).
var registry = struct {
	mu sync.Mutex
	m  map[Addr]*Endpoint
}{m: make(map[Addr]*Endpoint)}

func registerListener(addr Addr, e *Endpoint) {
	registry.mu.Lock()
	registry.m[addr] = e
	registry.mu.Unlock()
}

func unregisterListener(addr Addr) {
	registry.mu.Lock()
	delete(registry.m, addr)
	registry.mu.Unlock()
}

func lookupListener(addr Addr) (*Endpoint, bool) {
	registry.mu.Lock()
	e, ok := registry.m[addr]
	registry.mu.Unlock()
	return e, ok
}

// deliverTask is the event scheduled on the destination host's queue to
// model a segment's propagation delay plus its egress interface's CoDel
// queueing delay (spec.md §4.6).
type deliverTask struct {
	to  *Endpoint
	seg *segment
}

func (d deliverTask) Run() {
	d.to.receive(d.seg)
}

// sendSegment pushes seg through the sender's egress interface (CoDel may
// drop it) and, if it survives, schedules its arrival on the peer after
// the path latency.
func (e *Endpoint) sendSegment(seg *segment) {
	now := e.host.Now()
	seg.sentAt = now
	sent, clearAt := e.egress.Send(now, seg)
	if sent == nil {
		return // CoDel dropped it; the sender's RTO/dup-ack logic recovers
	}
	arrival := clearAt + e.path.LatencyNs
	e.host.Events.Push(arrival, e.peer.host.ID, e.host.ID, deliverTask{to: e.peer, seg: seg})
}

// Connect actively opens a connection to remote (spec.md §4.5 SYN-SENT).
// The handshake is modeled synchronously against the registry rather than
// a routed SYN packet, since both endpoints always live in the same
// simulation and the registry already captures "is anyone listening".
func (e *Endpoint) Connect(remote Addr) error {
	e.mu.Lock()
	listener, ok := lookupListener(remote)
	if !ok {
		e.mu.Unlock()
		return ErrConnectionRefused
	}
	e.remote = remote
	e.sndNext = e.host.Rand().Uint32()
	e.sndUna = e.sndNext
	e.state = SynSent
	e.mu.Unlock()

	child := listener.acceptChild(e)
	if child == nil {
		return ErrConnectionRefused
	}

	e.mu.Lock()
	e.peer = child
	e.path = link.Path{LatencyNs: 0}
	e.rcvNext = child.sndUna
	e.sndNext++ // SYN consumes one sequence number
	e.setState(Established)
	e.armRTO()
	e.mu.Unlock()

	child.mu.Lock()
	child.peer = e
	child.rcvNext = e.sndUna + 1
	child.setState(Established)
	child.armRTO()
	child.mu.Unlock()

	return nil
}

// acceptChild is invoked by the connecting side on the listener to
// synthesize a child TCB, the way a real stack would after receiving a
// SYN and replying SYN-ACK then ACK, but collapsed into one call since
// both sides resolve in the same tick here.
func (l *Endpoint) acceptChild(initiator *Endpoint) *Endpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Listen {
		return nil
	}
	if len(l.acceptQueue) >= l.backlog {
		return nil
	}
	child := New(l.host)
	child.local = l.local
	child.remote = initiator.local
	child.sndNext = l.host.Rand().Uint32()
	child.sndUna = child.sndNext
	child.state = SynReceived
	l.acceptQueue = append(l.acceptQueue, child)
	if l.desc != nil {
		l.desc.SetStatusBits(kernel.StatusReadable)
	}
	return child
}

// Accept dequeues one completed child connection, or reports none ready.
func (e *Endpoint) Accept() (*Endpoint, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.acceptQueue) == 0 {
		return nil, false
	}
	child := e.acceptQueue[0]
	e.acceptQueue = e.acceptQueue[1:]
	if len(e.acceptQueue) == 0 && e.desc != nil {
		e.desc.ClearStatusBits(kernel.StatusReadable)
	}
	return child, true
}

// Write appends data to the send buffer and segments as much as the
// current congestion/send window allows (spec.md §4.5 "Sending").
func (e *Endpoint) Write(data []byte) (int, error) {
	e.mu.Lock()
	room := e.sndBufCap - len(e.sndBuf)
	if room <= 0 {
		e.mu.Unlock()
		return 0, nil
	}
	n := len(data)
	if n > room {
		n = room
	}
	e.sndBuf = append(e.sndBuf, data[:n]...)
	e.mu.Unlock()
	e.pump()
	return n, nil
}

// pump segments buffered send data by MSS and transmits whatever fits
// within the congestion window's remaining headroom.
func (e *Endpoint) pump() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Established && e.state != CloseWait {
		return
	}
	inFlight := e.sndNext - e.sndUna
	for {
		if len(e.sndBuf) == 0 {
			return
		}
		if inFlight >= e.cong.Cwnd() {
			return
		}
		segLen := len(e.sndBuf)
		if segLen > defaultMSS {
			segLen = defaultMSS
		}
		if uint32(segLen) > e.cong.Cwnd()-inFlight {
			segLen = int(e.cong.Cwnd() - inFlight)
		}
		if segLen <= 0 {
			return
		}
		payload := append([]byte(nil), e.sndBuf[:segLen]...)
		e.sndBuf = e.sndBuf[segLen:]
		seg := &segment{Seq: e.sndNext, Ack: e.rcvNext, Flags: flagACK, Payload: payload}
		e.sndNext += uint32(segLen)
		inFlight += uint32(segLen)
		e.retransmitQueue = append(e.retransmitQueue, seg)
		e.sendSegment(seg)
	}
}

// receive processes an inbound segment: ACK bookkeeping, congestion
// feedback, payload reassembly, and FIN handling (spec.md §4.5
// "Receiving").
func (e *Endpoint) receive(seg *segment) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if seg.Ack > e.sndUna {
		acked := seg.Ack - e.sndUna
		e.handleNewAck(seg.Ack)
		e.cong.OnAck(acked, e.sndNext-e.sndUna)
		e.dupAcks = 0
		if e.sndUna == e.sndNext {
			// Every byte this side has ever sent, including a FIN's
			// sequence number, is now acked.
			switch e.state {
			case FinWait1:
				e.setState(FinWait2)
			case Closing:
				e.setState(TimeWait)
				e.armCloseTimer()
			case LastAck:
				e.setState(Closed)
			}
		}
	} else if len(seg.Payload) == 0 && seg.Flags&flagFIN == 0 && seg.Seq == e.rcvNext && seg.Ack == e.sndUna && e.sndNext != e.sndUna {
		e.dupAcks++
		e.cong.OnDuplicateAck()
		if e.dupAcks >= dupAcksForFastRetransmit {
			if lost := e.scoreboard.nextRetransmit(e.retransmitQueue); lost != nil {
				e.sendSegment(lost)
			}
		}
	}

	if len(seg.Sacks) > 0 {
		e.scoreboard.update(seg.Sacks)
	}

	if len(seg.Payload) > 0 || seg.Flags&flagFIN != 0 {
		e.reassemble(seg)
	}

	// A data-bearing or FIN-bearing segment always earns a reply so the
	// sender's cwnd/RTO/SACK-scoreboard logic has something to react to
	// (spec.md §4.5: "Receiver emits a cumulative ACK and up to three SACK
	// blocks reflecting the out-of-order runs"). A pure ACK never does,
	// or every exchange of pure ACKs would ping-pong forever.
	if len(seg.Payload) > 0 || seg.Flags&flagFIN != 0 {
		e.sendAck()
	}
}

// sendAck transmits a pure-ACK segment carrying the current cumulative ACK
// and up to three SACK blocks describing the out-of-order reassembly
// queue.
func (e *Endpoint) sendAck() {
	ack := &segment{Seq: e.sndNext, Ack: e.rcvNext, Flags: flagACK, Sacks: e.pendingSacks()}
	e.sendSegment(ack)
}

// pendingSacks builds the receiver's SACK blocks from the out-of-order
// queue, capped to three runs by the same merge routine the scoreboard
// uses on the sending side.
func (e *Endpoint) pendingSacks() []sackBlock {
	if len(e.ooo) == 0 {
		return nil
	}
	blocks := make([]sackBlock, 0, len(e.ooo))
	for _, s := range e.ooo {
		blocks = append(blocks, sackBlock{Start: s.Seq, End: s.endSeq()})
	}
	return mergeSackBlocks(blocks)
}

// onFinReceived runs the passive-close FSM transitions spec.md §4.5
// describes: Established -> CloseWait (awaiting the application's own
// Close), or, for a connection already closing locally, the matching
// simultaneous-close transition.
func (e *Endpoint) onFinReceived() {
	e.peerClosed = true
	switch e.state {
	case Established:
		e.setState(CloseWait)
	case FinWait1:
		e.setState(Closing)
	case FinWait2:
		e.setState(TimeWait)
		e.armCloseTimer()
	}
	if e.desc != nil {
		e.desc.SetStatusBits(kernel.StatusReadable)
	}
}

func (e *Endpoint) handleNewAck(ack uint32) {
	kept := e.retransmitQueue[:0]
	for _, seg := range e.retransmitQueue {
		if seg.endSeq() <= ack {
			if seg.retransmits == 0 {
				e.sampleRTT(e.host.Now() - seg.sentAt)
			}
			continue
		}
		kept = append(kept, seg)
	}
	e.retransmitQueue = kept
	e.sndUna = ack
	e.scoreboard.removeAckedBlocks(ack)
	e.armRTO()
}

// sampleRTT feeds the Karn/Partridge smoothing (spec.md §4.5: "the usual
// α=1/8, β=1/4"), skipping samples from retransmitted segments (Karn's
// algorithm: ambiguous which transmission the ACK corresponds to).
func (e *Endpoint) sampleRTT(sample shadowtime.SimTime) {
	if e.srtt == 0 {
		e.srtt = sample
		e.rttvar = sample / 2
	} else {
		diff := sample - e.srtt
		if diff < 0 {
			diff = -diff
		}
		e.rttvar = shadowtime.SimTime((1-rttBeta)*float64(e.rttvar) + rttBeta*float64(diff))
		e.srtt = shadowtime.SimTime((1-rttAlpha)*float64(e.srtt) + rttAlpha*float64(sample))
	}
	rto := e.srtt + 4*e.rttvar
	if rto < minRTO {
		rto = minRTO
	}
	if rto > maxRTO {
		rto = maxRTO
	}
	e.rto = rto
}

// reassemble inserts an in-order or out-of-order segment and flushes any
// now-contiguous run to the receive buffer. seg.endSeq() already accounts
// for a FIN's own sequence number (segment.go), so a segment carrying both
// payload and FIN advances rcvNext past both in one step; onFinReceived
// fires once that advance actually reaches the FIN's position.
func (e *Endpoint) reassemble(seg *segment) {
	if seg.Seq == e.rcvNext {
		if len(seg.Payload) > 0 && len(e.rcvBuf) < e.rcvBufCap {
			e.rcvBuf = append(e.rcvBuf, seg.Payload...)
		}
		e.rcvNext = seg.endSeq()
		fin := seg.Flags&flagFIN != 0
		e.flushOOO()
		if e.desc != nil && len(seg.Payload) > 0 {
			e.desc.SetStatusBits(kernel.StatusReadable)
		}
		if fin {
			e.onFinReceived()
		}
		return
	}
	if seg.Seq > e.rcvNext {
		e.ooo = append(e.ooo, seg)
	}
}

func (e *Endpoint) flushOOO() {
	progressed := true
	for progressed {
		progressed = false
		for i, seg := range e.ooo {
			if seg.Seq == e.rcvNext {
				e.rcvBuf = append(e.rcvBuf, seg.Payload...)
				e.rcvNext = seg.endSeq()
				fin := seg.Flags&flagFIN != 0
				e.ooo = append(e.ooo[:i], e.ooo[i+1:]...)
				progressed = true
				if fin {
					e.onFinReceived()
				}
				break
			}
		}
	}
}

// Read drains up to len(buf) bytes of contiguous received data.
func (e *Endpoint) Read(buf []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := copy(buf, e.rcvBuf)
	e.rcvBuf = e.rcvBuf[n:]
	return n, nil
}

// rtoTask fires when the retransmission timer expires for a given arm
// generation; stale fires (the timer was rearmed since) are ignored.
type rtoTask struct {
	e    *Endpoint
	gen  uint64
}

func (r rtoTask) Run() {
	r.e.fireRTO(r.gen)
}

func (e *Endpoint) armRTO() {
	e.rtoTimerID++
	gen := e.rtoTimerID
	e.host.Events.Push(e.host.Now()+e.rto, e.host.ID, e.host.ID, rtoTask{e: e, gen: gen})
}

func (e *Endpoint) fireRTO(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.rtoTimerID || len(e.retransmitQueue) == 0 {
		return
	}
	earliest := e.retransmitQueue[0]
	earliest.retransmits++
	e.sendSegment(earliest)
	e.cong.OnTimeout()
	e.scoreboard.clear()
	e.rto *= 2
	if e.rto > maxRTO {
		e.rto = maxRTO
	}
	e.armRTO()
}

// closeTimeoutTask fires when TIME-WAIT's 60-second linger
// (spec.md §4.5 "Close timer delay 60s") expires for a given arm
// generation; a stale fire (the endpoint left TIME-WAIT, or entered it
// again later) is ignored the same way fireRTO ignores a stale rtoTimerID.
type closeTimeoutTask struct {
	e   *Endpoint
	gen uint64
}

func (c closeTimeoutTask) Run() { c.e.fireCloseTimeout(c.gen) }

func (e *Endpoint) armCloseTimer() {
	e.closeTimerID++
	gen := e.closeTimerID
	e.host.Events.Push(e.host.Now()+closeTimeout, e.host.ID, e.host.ID, closeTimeoutTask{e: e, gen: gen})
}

func (e *Endpoint) fireCloseTimeout(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.closeTimerID || e.state != TimeWait {
		return
	}
	e.setState(Closed)
}

// Close initiates an active close: sends FIN and transitions towards
// TIME-WAIT, relying on fireRTO's generation check to let a pending RTO
// timer expire harmlessly once the connection is gone. The passive-close
// side (CloseWait -> LastAck) reaches Closed directly once its FIN is
// acked (see receive's FinWait1/Closing/LastAck switch), never touching
// TIME-WAIT at all, matching the standard FSM.
func (e *Endpoint) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case Established:
		e.setState(FinWait1)
	case CloseWait:
		e.setState(LastAck)
	default:
		e.setState(Closed)
		return
	}
	fin := &segment{Seq: e.sndNext, Ack: e.rcvNext, Flags: flagFIN | flagACK}
	e.sndNext++
	e.sendSegment(fin)
	if e.local.Port != 0 {
		unregisterListener(e.local)
	}
}
