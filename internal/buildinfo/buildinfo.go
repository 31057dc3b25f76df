// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

// Package buildinfo carries version details stamped at build time.
package buildinfo

import "fmt"

var (
	// Version is set via ldflags: -X .../internal/buildinfo.Version=v1.2.3
	Version = "dev"
	Commit  = ""
	Date    = ""

	UserAgent = fmt.Sprintf("dfindexer/%s", Version)
)
