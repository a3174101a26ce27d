// Package registry implements the connection registry.
//
// The registry is the only state shared by all sessions. It hands out a
// fresh UUID per connection and fans broadcasts out to every open member.
// A failed send never stops delivery to the remaining members; the failing
// member is removed and closed.
package registry
