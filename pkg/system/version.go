// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

var (
	// Version is the semantic version of the relay, injected at build time
	// via -ldflags.
	Version = "0.0.0-dev"
	// Commit is the git commit hash, injected at build time.
	Commit = ""
)
