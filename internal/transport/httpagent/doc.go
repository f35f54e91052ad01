// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package httpagent provides the HTTP client for talking to a remote agent.
//
// Replies are streamed as newline-delimited JSON frames (see package wire).
//
// # Endpoints
//
//   - POST   {base}/sessions/{id}/messages  send a message, stream the reply
//   - GET    {base}/sessions/{id}/events    server-push channel
//   - DELETE {base}/sessions/{id}/history   history reset notification
//
// # Usage
//
//	client, err := httpagent.New(&httpagent.Config{BaseURL: "http://localhost:8787"})
//	es, err := client.SendMessage(ctx, "default", msg)
//	defer es.Close()
package httpagent
