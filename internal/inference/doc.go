// Package inference serializes access to the shared speech model. A weighted
// semaphore bounds the number of simultaneous model invocations; waiters are
// served in FIFO order and give up after a configurable timeout.
package inference
