// EntityGuard - Behavioral Risk Analytics for Tracked Entities
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/entityguard

package analyzer

import "errors"

// ErrNoEvents is returned when feature extraction receives an empty window.
// This is a contract violation by the caller, not a recoverable runtime
// condition: the repository only ever emits non-empty windows.
var ErrNoEvents = errors.New("cannot extract features from empty event window")

// ErrNotFound is returned by read operations when no matching record exists.
var ErrNotFound = errors.New("record not found")
