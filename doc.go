/*
Package fastclient provides an asynchronous HTTP/1.1 client with a per-host
connection pool for Go.

Fast-Client issues many concurrent HTTP requests from a single process while
amortising TCP/TLS handshakes across requests to the same origin, bounding
per-origin concurrency, enforcing per-operation timeouts, and reacting to
upstream failures without blocking unrelated work.

Features

  - Per-origin connection pooling with keep-alive reuse
  - Bounded per-origin concurrency with FIFO request queueing
  - Connect, read and keepalive timeouts enforced by a background sweep
  - Chunked, content-length and read-until-close body decoding
  - Automatic 3xx redirect resolution with a configurable budget
  - Callback and synchronous (suspending) request styles
  - Parallel batches with submission-order results

Quick Start

Basic usage example:

	package main

	import (
	    "fmt"

	    "github.com/searchktools/fast-client/config"
	    "github.com/searchktools/fast-client/core/client"
	)

	func main() {
	    c := client.New(config.Default())

	    resp, err := c.Get("http://example.com/", nil, nil, nil)
	    if err != nil {
	        panic(err)
	    }
	    fmt.Println(resp.StatusCode, resp.Body.String())
	}

Modules

The library is organized into several modules:

  - config: Configuration and option bags
  - core/client: Request dispatcher, state machine and parallel batches
  - core/pool: Connection pool, lifecycle timers and admission control
  - core/protocol: HTTP/1.1 serialisation and response parsing
  - core/emitter: Named-event pub/sub
  - core/runtime: Host capabilities (dialer, TLS, timers, suspension)

For more information, see https://github.com/searchktools/fast-client
*/
package fastclient
