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

import "github.com/shadowsim/shadow-go/pkg/shadowtime"

// headerSize is the combined L2+L3+L4 header overhead subtracted from the
// link MTU to get the maximum segment size (spec.md §4.5: "MTU 1500 −
// 66-byte L2+L3+L4 header").
const (
	mtu           = 1500
	headerSize    = 66
	defaultMSS    = mtu - headerSize
	maxSackBlocks = 3
)

// flags are the subset of TCP control bits this stack uses.
type flags uint8

const (
	flagSYN flags = 1 << iota
	flagACK
	flagFIN
	flagRST
)

// sackBlock is one contiguous out-of-order run, [Start, End).
type sackBlock struct {
	Start, End uint32
}

// segment is one TCP segment in flight, either outbound (in the
// retransmit queue) or inbound (reassembly/delivery).
type segment struct {
	Seq     uint32
	Ack     uint32
	Flags   flags
	Window  uint32
	Sacks   []sackBlock
	Payload []byte

	// sentAt tracks when an outbound segment was first sent, for
	// Karn/Partridge RTT sampling.
	sentAt      shadowtime.SimTime
	retransmits int
}

// Length implements codel.Packet: wire length including header overhead.
func (s *segment) Length() int {
	return len(s.Payload) + headerSize
}

func (s *segment) endSeq() uint32 {
	end := s.Seq + uint32(len(s.Payload))
	if s.Flags&(flagSYN|flagFIN) != 0 {
		end++
	}
	return end
}
