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

package kernel

import "github.com/shadowsim/shadow-go/pkg/sigset"

// ProcessID is dense per-host, like a Linux pid.
type ProcessID uint32

// fdTableMin is the lowest fd number allocated; 0-2 are reserved for the
// managed binary's inherited stdio, which this module passes through
// rather than emulating.
const fdTableMin = 3

// Process owns the descriptor table (a small dense fd -> Handle mapping,
// spec.md §3), the signal-disposition table, and the process-wide pending
// signal set shared by every thread in the process.
type Process struct {
	ID   ProcessID
	Host *Host

	Actions *sigset.ActionTable

	fds    map[int]Handle
	nextFD int

	pending sigset.Set

	threads map[ThreadID]*Thread
	nextTID ThreadID

	exited   bool
	exitCode int
}

// NewProcess returns an empty process owned by host.
func NewProcess(id ProcessID, host *Host) *Process {
	return &Process{
		ID:      id,
		Host:    host,
		Actions: sigset.NewActionTable(),
		fds:     make(map[int]Handle),
		nextFD:  fdTableMin,
		threads: make(map[ThreadID]*Thread),
	}
}

// AddFD installs handle at a freshly allocated fd number and returns it.
func (p *Process) AddFD(handle Handle) int {
	fd := p.nextFD
	p.nextFD++
	p.fds[fd] = handle
	return fd
}

// AddFDAt installs handle at a caller-chosen fd (dup2 semantics), replacing
// whatever was there.
func (p *Process) AddFDAt(fd int, handle Handle) {
	p.fds[fd] = handle
	if fd >= p.nextFD {
		p.nextFD = fd + 1
	}
}

// Lookup resolves fd to its descriptor Handle, and whether fd is open.
func (p *Process) Lookup(fd int) (Handle, bool) {
	h, ok := p.fds[fd]
	return h, ok
}

// CloseFD removes fd from the table, returning the Handle it referenced (if
// any) so the caller can decide whether to also close the underlying
// Descriptor (shared fds, e.g. after dup, must not close it prematurely).
func (p *Process) CloseFD(fd int) (Handle, bool) {
	h, ok := p.fds[fd]
	if ok {
		delete(p.fds, fd)
	}
	return h, ok
}

// PendingSignals returns the process-scope pending set.
func (p *Process) PendingSignals() sigset.Set { return p.pending }

// RaisePending adds signo to the process-scope pending set (used for
// process-directed kill(2), as opposed to thread-directed tgkill/tkill).
func (p *Process) RaisePending(signo int) {
	p.pending = sigset.Add(p.pending, signo)
}

// ClearPending removes signo from the process-scope pending set, once
// delivered to some thread.
func (p *Process) ClearPending(signo int) {
	p.pending = sigset.Delete(p.pending, signo)
}

// AddThread registers t under its existing ID; it does not assign one.
func (p *Process) AddThread(t *Thread) {
	p.threads[t.ID] = t
}

// Thread looks up a thread by ID.
func (p *Process) Thread(id ThreadID) (*Thread, bool) {
	t, ok := p.threads[id]
	return t, ok
}

// Threads returns every thread currently attached to the process.
func (p *Process) Threads() []*Thread {
	out := make([]*Thread, 0, len(p.threads))
	for _, t := range p.threads {
		out = append(out, t)
	}
	return out
}

// RemoveThread detaches a thread (e.g. on exit). It does not mark the
// process exited, even when the last thread is gone; MarkExited does that.
func (p *Process) RemoveThread(id ThreadID) {
	delete(p.threads, id)
}

// MarkExited records the process's exit code. HandleProcessExit (invoked by
// the Runner once the managed binary's process actually dies) calls this.
func (p *Process) MarkExited(code int) {
	p.exited = true
	p.exitCode = code
}

// Exited reports whether the process has exited, and with what code.
func (p *Process) Exited() (bool, int) {
	return p.exited, p.exitCode
}
