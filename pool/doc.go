// Package pool
// Author: momentics <momentics@gmail.com>
//
// Object recycling for per-connection state. The server draws a connection
// value from a SyncPool on accept and returns it, reset, when the
// connection is destroyed.
package pool
