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

package config

import (
	"github.com/shadowsim/shadow-go/pkg/tcpip/link"
	"github.com/shadowsim/shadow-go/pkg/tcpip/transport/tcp"
	"github.com/shadowsim/shadow-go/pkg/tcpip/transport/tcp/congestion"
)

// NewCongestionController builds the congestion.Controller p.CongestionControl
// names, seeded with tcp.DefaultMSS-relative initial windows (spec.md
// §4.5's four-hook Controller family). Nothing in this module calls it:
// a tcp.Endpoint always starts with a Reno controller, so
// p.CongestionControl does not reach a connection.
func (p HostParameters) NewCongestionController() congestion.Controller {
	const mss = tcp.DefaultMSS
	initCwnd := uint32(4 * mss)
	initSsthresh := uint32(64 * mss)
	switch p.CongestionControl {
	case CongestionAIMD:
		return congestion.NewAIMD(mss, initCwnd, initSsthresh)
	case CongestionCubic:
		return congestion.NewCubic(mss, initCwnd, initSsthresh)
	case CongestionReno, "":
		return congestion.NewReno(mss, initCwnd, initSsthresh)
	default:
		return congestion.NewReno(mss, initCwnd, initSsthresh)
	}
}

// NewEgressInterface builds the link.Interface a host's outbound traffic
// drains through, at the bandwidth HostParameters.BandwidthUpBytesPerSec
// names. The queue discipline is always CoDel (link.NewInterface's only
// one, spec.md §4.6's default); p.Qdisc is not consulted.
func (p HostParameters) NewEgressInterface() *link.Interface {
	return link.NewInterface(p.BandwidthUpBytesPerSec)
}

// SendBufferCap clamps p.SendBufBytes into spec.md §4.5's documented
// autotune range when SendBufAutotune is set, or returns the fixed
// default/explicit size otherwise.
func (p HostParameters) SendBufferCap() uint64 {
	return clampOrDefault(p.SendBufBytes, p.SendBufAutotune, DefaultSendBufBytes, DefaultSendBufMin, DefaultSendBufMax)
}

// RecvBufferCap is RecvBufBytes's equivalent of SendBufferCap.
func (p HostParameters) RecvBufferCap() uint64 {
	return clampOrDefault(p.RecvBufBytes, p.RecvBufAutotune, DefaultRecvBufBytes, DefaultRecvBufMin, DefaultRecvBufMax)
}

func clampOrDefault(v uint64, autotune bool, dflt, min, max uint64) uint64 {
	if v == 0 {
		v = dflt
	}
	if !autotune {
		return v
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
