// Copyright 2026 The Chime Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Chime.
//
// Configuration is loaded from a single YAML file specified by:
//   - the --config flag passed to the command, or
//   - the CHIME_CONFIG environment variable.
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
package config
