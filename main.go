// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// agentchat - a terminal chat client for a conversational agent.
package main

import (
	"os"

	"github.com/jeranaias/agentchat/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
