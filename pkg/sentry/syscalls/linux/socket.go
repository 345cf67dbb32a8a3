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

package linux

import (
	"github.com/shadowsim/shadow-go/pkg/event"
	"github.com/shadowsim/shadow-go/pkg/sentry/kernel"
	"github.com/shadowsim/shadow-go/pkg/shadowtime"
	"github.com/shadowsim/shadow-go/pkg/tcpip/transport/tcp"
)

const (
	afINET     = 2
	sockStream = 1
)

// sockaddrIn is the 16-byte struct sockaddr_in wire layout: family(2),
// port(2, big-endian), addr(4, big-endian), 8 bytes of zero padding. The
// 4-byte address is treated directly as the destination host's dense
// event.HostID, since this simulation has no subnetting to resolve.
func readSockaddrIn(t *kernel.Thread, addr uintptr, sz uintptr) (tcp.Addr, bool) {
	if sz < 16 {
		return tcp.Addr{}, false
	}
	var buf [16]byte
	if err := t.Runner.ReadPtr(addr, buf[:]); err != nil {
		return tcp.Addr{}, false
	}
	if beUint16(buf[0:2]) != afINET {
		return tcp.Addr{}, false
	}
	port := beUint16(buf[2:4])
	host := beUint32(buf[4:8])
	return tcp.Addr{Host: event.HostID(host), Port: port}, true
}

func writeSockaddrIn(t *kernel.Thread, addr uintptr, a tcp.Addr) {
	var buf [16]byte
	putBeUint16(buf[0:2], afINET)
	putBeUint16(buf[2:4], a.Port)
	putBeUint32(buf[4:8], uint32(a.Host))
	_ = t.Runner.WritePtr(addr, buf[:])
}

func beUint16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
func putBeUint16(b []byte, v uint16) { b[0] = byte(v >> 8); b[1] = byte(v) }
func putBeUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func endpointOf(t *kernel.Thread, fd int32) (*kernel.Descriptor, *tcp.Endpoint, bool) {
	h, ok := t.Process.Lookup(int(fd))
	if !ok {
		return nil, nil, false
	}
	d, ok := t.Process.Host.Descriptor(h)
	if !ok || d.Kind != kernel.DescriptorTCPSocket {
		return nil, nil, false
	}
	ep, ok := d.Impl.(*tcp.Endpoint)
	return d, ep, ok
}

// Socket implements socket(2) for AF_INET/SOCK_STREAM only; every other
// family/type is -ENOSYS (this module only ever needs to model TCP,
// spec.md §4.5's Non-goals).
func Socket(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	family := int32(args[0])
	typ := int32(args[1]) &^ 0o4000 &^ 0o2000000 // mask SOCK_NONBLOCK/SOCK_CLOEXEC
	if family != afINET || typ != sockStream {
		return kernel.DoneWith(errnoRetval(errENOSYS))
	}
	host := t.Process.Host
	ep := tcp.New(host)
	d := host.NewDescriptor(kernel.DescriptorTCPSocket)
	d.Impl = ep
	ep.SetDescriptor(d)
	fd := t.Process.AddFD(d.Handle)
	return kernel.DoneWith(int64(fd))
}

// Bind implements bind(2).
func Bind(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	fd := int32(args[0])
	_, ep, ok := endpointOf(t, fd)
	if !ok {
		return kernel.DoneWith(errnoRetval(errEBADF))
	}
	addr, ok := readSockaddrIn(t, args[1], args[2])
	if !ok {
		return kernel.DoneWith(errnoRetval(errEFAULT))
	}
	if addr.Host == 0 {
		addr.Host = t.Process.Host.ID
	}
	ep.Bind(addr)
	return kernel.DoneWith(0)
}

// Listen implements listen(2).
func Listen(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	fd := int32(args[0])
	backlog := int(int32(args[1]))
	_, ep, ok := endpointOf(t, fd)
	if !ok {
		return kernel.DoneWith(errnoRetval(errEBADF))
	}
	if backlog <= 0 {
		backlog = 1
	}
	ep.Listen(backlog)
	return kernel.DoneWith(0)
}

// Connect implements connect(2). A connection attempt resolves
// synchronously against the registry (spec.md §4.5's SYN-SENT collapses
// to a single simulation tick, see tcp.Endpoint.Connect), so this never
// actually blocks the calling thread the way a cross-host connect would
// on real hardware.
func Connect(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	fd := int32(args[0])
	_, ep, ok := endpointOf(t, fd)
	if !ok {
		return kernel.DoneWith(errnoRetval(errEBADF))
	}
	addr, ok := readSockaddrIn(t, args[1], args[2])
	if !ok {
		return kernel.DoneWith(errnoRetval(errEFAULT))
	}
	if err := ep.Connect(addr); err != nil {
		return kernel.DoneWith(errnoRetval(errECONNREFUSED))
	}
	return kernel.DoneWith(0)
}

// acceptCommon implements accept(2)/accept4(2): returns a ready child
// immediately, or blocks on a condition for the listener descriptor's
// READABLE status until one lands.
func acceptCommon(t *kernel.Thread, fd int32, addrPtr uintptr) kernel.SyscallControl {
	d, ep, ok := endpointOf(t, fd)
	if !ok {
		return kernel.DoneWith(errnoRetval(errEBADF))
	}
	if child, ok := ep.Accept(); ok {
		return acceptDone(t, child, addrPtr)
	}

	cond := &kernel.SysCallCondition{
		Trigger: kernel.Trigger{Kind: kernel.TriggerDescriptor, Handle: d.Handle, Mask: kernel.StatusReadable},
		Timeout: shadowtime.Invalid,
	}
	cond.Retry = func(timedOut bool) kernel.SyscallControl {
		if ctrl, interrupted := checkInterrupted(t); interrupted {
			return ctrl
		}
		if child, ok := ep.Accept(); ok {
			return acceptDone(t, child, addrPtr)
		}
		// Spurious wake (another acceptor raced us); go back to sleep on
		// the same condition.
		t.Process.Host.Block(t, cond)
		return kernel.BlockOn(cond)
	}
	t.Process.Host.Block(t, cond)
	return kernel.BlockOn(cond)
}

func acceptDone(t *kernel.Thread, child *tcp.Endpoint, addrPtr uintptr) kernel.SyscallControl {
	d := t.Process.Host.NewDescriptor(kernel.DescriptorTCPSocket)
	d.Impl = child
	child.SetDescriptor(d)
	d.SetStatusBits(kernel.StatusWritable | kernel.StatusReadable)
	fd := t.Process.AddFD(d.Handle)
	if addrPtr != 0 {
		writeSockaddrIn(t, addrPtr, child.RemoteAddr())
	}
	return kernel.DoneWith(int64(fd))
}

// Accept implements accept(2).
func Accept(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	return acceptCommon(t, int32(args[0]), args[1])
}

// Accept4 implements accept4(2); the flags argument (SOCK_NONBLOCK,
// SOCK_CLOEXEC) is accepted but not yet honored.
func Accept4(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	return acceptCommon(t, int32(args[0]), args[1])
}

// Close implements close(2) for any descriptor kind.
func Close(t *kernel.Thread, args [6]uintptr) kernel.SyscallControl {
	fd := int32(args[0])
	h, ok := t.Process.CloseFD(int(fd))
	if !ok {
		return kernel.DoneWith(errnoRetval(errEBADF))
	}
	if d, ok := t.Process.Host.Descriptor(h); ok {
		if ep, ok := d.Impl.(*tcp.Endpoint); ok {
			ep.Close()
		}
	}
	t.Process.Host.CloseDescriptor(h)
	return kernel.DoneWith(0)
}
