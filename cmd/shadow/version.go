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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

// version is stamped at release time; left as a plain literal here since
// this module has no build-time ldflags plumbing of its own.
const version = "0.1.0-dev"

type versionCommand struct{}

func (*versionCommand) Name() string             { return "version" }
func (*versionCommand) Synopsis() string          { return "print version information" }
func (*versionCommand) Usage() string             { return "version - print version information\n" }
func (*versionCommand) SetFlags(*flag.FlagSet)    {}

func (*versionCommand) Execute(context.Context, *flag.FlagSet, ...any) subcommands.ExitStatus {
	fmt.Printf("shadow version %s\n", version)
	return subcommands.ExitSuccess
}
