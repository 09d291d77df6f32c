// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import "errors"

// ErrUnknownModel is returned when admission is requested for a model with
// no configured cap.
var ErrUnknownModel = errors.New("ratelimit: unknown model")
