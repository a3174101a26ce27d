// Package database provides PostgreSQL connection pools.
//
// The relay keeps no message state. The only database user is the optional
// session audit trail (see package audit).
package database
