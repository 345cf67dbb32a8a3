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
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"
)

func TestHostParametersCloneIsIndependent(t *testing.T) {
	orig := HostParameters{
		ID:                1,
		Hostname:          "relay0",
		IPHint:            "10.0.0.1",
		BandwidthUpBytesPerSec: 12500000,
		CongestionControl: CongestionCubic,
	}
	clone := orig.Clone()
	if diff := cmp.Diff(orig, clone); diff != "" {
		t.Fatalf("clone diverged from original (-want +got):\n%s", diff)
	}

	clone.Hostname = "relay1"
	if orig.Hostname == clone.Hostname {
		t.Fatalf("mutating the clone's Hostname also changed the original")
	}
}

func TestHostParametersWithDefaults(t *testing.T) {
	p := HostParameters{Hostname: "client0"}.withDefaults()
	assert.Equal(t, p.CongestionControl, CongestionReno)
	assert.Equal(t, p.Qdisc, "codel")
	assert.Equal(t, p.SendBufBytes, uint64(DefaultSendBufBytes))
	assert.Equal(t, p.RecvBufBytes, uint64(DefaultRecvBufBytes))
	assert.Equal(t, p.UnblockedSyscallLimit, int64(DefaultUnblockedSyscallLimit))
}

func TestLoadSimulationTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.toml")
	const doc = `
min_path_latency_ns = 10000000
end_time_ns = 60000000000
workers = 4

[[host]]
id = 1
hostname = "client0"
bw_down = 12500000
bw_up = 1250000
cpu_hz = 2800000
congestion_control = "cubic"

[[host]]
id = 2
hostname = "server0"
`
	assert.NilError(t, os.WriteFile(path, []byte(doc), 0644))

	sim, err := LoadSimulationTOML(path)
	assert.NilError(t, err)
	assert.Equal(t, sim.Workers, 4)
	assert.Equal(t, len(sim.Hosts), 2)
	assert.Equal(t, sim.Hosts[0].CongestionControl, CongestionCubic)
	// Defaults apply even when the file leaves a host's fields unset.
	assert.Equal(t, sim.Hosts[1].CongestionControl, CongestionReno)
	assert.Equal(t, sim.Hosts[1].SendBufBytes, uint64(DefaultSendBufBytes))
}

func TestLoadHostsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.yaml")
	const doc = `
- id: 1
  hostname: client0
  congestion_control: aimd
- id: 2
  hostname: server0
`
	assert.NilError(t, os.WriteFile(path, []byte(doc), 0644))

	hosts, err := LoadHostsYAML(path)
	assert.NilError(t, err)
	assert.Equal(t, len(hosts), 2)
	assert.Equal(t, hosts[0].CongestionControl, CongestionAIMD)
}

func TestSendRecvBufferCapAutotune(t *testing.T) {
	p := HostParameters{SendBufBytes: 100, SendBufAutotune: true}
	assert.Equal(t, p.SendBufferCap(), uint64(DefaultSendBufMin))

	p2 := HostParameters{SendBufBytes: 100, SendBufAutotune: false}
	assert.Equal(t, p2.SendBufferCap(), uint64(100))
}
