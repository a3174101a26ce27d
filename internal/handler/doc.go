// Package handler implements the route handler table.
//
// A Table is filled during configuration and frozen before the relay starts
// serving. After Freeze, lookups need no locking and registration fails.
package handler
