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

import "github.com/shadowsim/shadow-go/pkg/errors/linuxerr"

// errnoRetval converts a positive errno value into the negative int64 a
// syscall handler returns (spec.md §4.3: "signed negative values in
// [-4095, -1] are interpreted as -errno").
func errnoRetval(errno int64) int64 {
	return -errno
}

var (
	errEINVAL  = int64(linuxerr.EINVAL.No())
	errEFAULT  = int64(linuxerr.EFAULT.No())
	errEPERM   = int64(linuxerr.EPERM.No())
	errESRCH   = int64(linuxerr.ESRCH.No())
	errENOSYS  = int64(linuxerr.ENOSYS.No())
	errEAGAIN  = int64(linuxerr.EAGAIN.No())
	errEBADF   = int64(linuxerr.EBADF.No())
	errEINTR = int64(linuxerr.EINTR.No())
	errEINPROGRESS = int64(linuxerr.EINPROGRESS.No())
	errEISCONN     = int64(linuxerr.EISCONN.No())
	errENOTCONN    = int64(linuxerr.ENOTCONN.No())
	errECONNREFUSED = int64(linuxerr.ECONNREFUSED.No())
	errEADDRINUSE   = int64(linuxerr.EADDRINUSE.No())
	errETIMEDOUT    = int64(linuxerr.ETIMEDOUT.No())
)
