// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/agentchat/internal/render"
)

// DefaultNotifyTimeout bounds the fire-and-forget clear notification.
const DefaultNotifyTimeout = 10 * time.Second

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The component field is added by the controller.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithNotifier registers a change callback.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notify = n }
}

// WithRenderCache sets the cache cleared together with the transcript.
func WithRenderCache(cache *render.Cache) Option {
	return func(c *Controller) { c.cache = cache }
}

// WithNotifyTimeout bounds each clear notification.
func WithNotifyTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.notifyTimeout = d
		}
	}
}

// WithPushRetryDelay sets the first push channel reconnect delay. Later
// attempts double it up to a fixed ceiling.
func WithPushRetryDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pushRetryDelay = d
		}
	}
}
