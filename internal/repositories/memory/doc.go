// Package memory holds in-process implementations of the repository
// interfaces. They back the "memory" store driver for local development and
// are the fakes used by service and handler tests.
package memory
