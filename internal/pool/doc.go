// Package pool schedules fibers across a fixed set of workers.
//
// Each fiber is pinned to one worker at registration. A worker runs a single
// goroutine woken by a coalescing dirty flag; every wake runs one pass that
// evaluates all fibers the worker owns. One goroutine per worker means at most
// one evaluation of a fiber is ever in flight.
package pool
