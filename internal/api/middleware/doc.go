// Package middleware provides HTTP middleware for the session API.
package middleware
