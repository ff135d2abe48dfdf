// Package debug gates assertions and verbose tracing behind a single switch.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import (
	"fmt"
	"os"

	"github.com/golang/glog"
)

// Enabled turns on Assert and Assertf below; Infof is gated by glog
// verbosity instead. Set via the SMALLOC_DEBUG environment variable, so
// checks written with this package's Assert cost nothing when it is unset
// (cmn.Assert, by contrast, always checks).
var Enabled = os.Getenv("SMALLOC_DEBUG") != ""

// Assert panics with a generic message when cond is false and Enabled.
func Assert(cond bool) {
	if Enabled && !cond {
		panic("assertion failed")
	}
}

// Assertf is Assert with Printf-style formatting, evaluated only on failure.
func Assertf(cond bool, format string, args ...interface{}) {
	if Enabled && !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// Infof logs at verbosity level 4, matching memsys's glog.FastV(4, ...) gate.
func Infof(format string, args ...interface{}) {
	if glog.V(4) {
		glog.Infof(format, args...)
	}
}
