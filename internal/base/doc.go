// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base defines fundamental types used across vtape: block numbers,
// the error kinds every layer marks its failures with, and the Logger
// interface.
//
// # Error kinds
//
// Each failure surfaced by the engine is marked with one kind, such as
// ErrEndOfData or ErrChecksumMismatch, using errors.Mark. Callers test for a
// kind with errors.Is; the message and any wrapped cause carry the details.
// ErrInconsistent is the exception: it is added on top of ErrIO when a
// failed write could not be rolled back, and a session treats it like
// ErrCorruption.
//
// Positioning that stops short of its target reports how far it fell short
// with a *ResidualError, whose Cause is the kind.
package base
