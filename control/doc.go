// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for the server. Both registries
// are safe for concurrent use: the reactor goroutine writes, any goroutine
// may take a snapshot.
package control
