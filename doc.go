// Package combinex contains the publisher/subscriber/subscription protocol
// for reactive streams with cooperative backpressure.
//
// A [Publisher] emits values to a [Subscriber] only up to the demand
// the subscriber has granted through its [Subscription].
// Each subscription delivers zero or more values
// followed by at most one terminal [Completion].
//
// The multicast subjects live in package cxsubject,
// the merging flat-map operator in package cxflatmap,
// and the virtual-time scheduler in package cxschedule.
package combinex
