// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "errors"

// Transcript contract violations. Correct callers never see these.
var (
	ErrDuplicateID      = errors.New("transcript: duplicate message id")
	ErrAlreadyStreaming = errors.New("transcript: stream target already open")
	ErrNoOpenTarget     = errors.New("transcript: no open stream target")
	ErrInvalidPart      = errors.New("transcript: invalid part index")
)
