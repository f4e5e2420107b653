// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the security
// manager.
//
// Configuration is loaded from a single file named by either the
// SECMGR_CONFIG environment variable (via [Load]) or an explicit path
// (via [LoadFile]). There is no file discovery and no fallback.
//
// The file may contain development, staging, and production sections
// that override base values when [Config].Environment matches.
// Production without its own section logs JSON at info level.
//
// Path fields are expanded after loading: ${HOME}, ${SECMGR_ROOT},
// ${SECMGR_STATE}, and ${VAR:-default} patterns. Environment variables
// do not otherwise override config values.
//
// Key exports:
//
//   - [Config] -- Paths, Database, Policy, Logging
//   - [Default] -- a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points
//   - [LoggingConfig.NewLogger] -- the slog logger the components share
//
// This package depends on no other packages in the module.
package config
