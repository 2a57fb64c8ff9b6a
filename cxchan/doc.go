// Package cxchan bridges Go channels and publishers.
//
// [FromChannel] turns a receive-only channel into a publisher
// that honors subscriber demand,
// and [RunPublisherToChannel] subscribes to a publisher
// and forwards its values to a channel from a background goroutine.
package cxchan
