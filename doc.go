/*
Package burstserver provides a fixed-response HTTP server built for
connection-count benchmarks.

Burst Server answers every request, whatever its method or path, with the
same preassembled response. Nothing is parsed beyond what keep-alive
semantics require, nothing is allocated on the hot path, and every core
runs its own reactor over its own listening socket.

Features

  - Per-core reactors: one SO_REUSEPORT listener, poller and connection
    slab per worker, no cross-worker locking
  - I/O multiplexing: epoll (Linux) and kqueue (BSD/macOS)
  - Preassembled responses: the full wire image is built once at startup
  - Minimal request framing: head terminator scan plus the Connection
    header, nothing else
  - Pipelining: back-to-back requests in one segment get back-to-back
    responses, in order
  - Recycled read buffers with a fixed cap per worker
  - Sharded request counter with an optional statsd gauge pusher

Quick Start

Basic usage example:

package main

import (
    "context"

    "github.com/searchktools/burst-server/core"
)

func main() {
    srv, err := core.New(core.Config{
        Addr: ":8080",
        Body: []byte("hello"),
    })
    if err != nil {
        panic(err)
    }

    srv.Run(context.Background())
}

Modules

The module is organized as follows:

  - app: application lifecycle, logging and GC setup
  - config: flag, environment and YAML configuration
  - core: server, reactors, listeners and connection state
  - core/http: request head scanning and response assembly
  - core/poller: I/O multiplexing (epoll/kqueue)
  - core/pools: connection slab, buffer recycling, GC tuning
  - core/stats: sharded request counter and statsd pusher
  - cmd/burstd: the standalone daemon

For more information, see https://github.com/searchktools/burst-server
*/
package burstserver
