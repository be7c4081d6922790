// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the single-threaded, level-triggered epoll event
// reactor that drives the listener, the signal bridge and every client
// connection of the server. Callbacks run one at a time on the goroutine
// that called Run.
package reactor
