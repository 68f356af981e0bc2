// Package session tracks the management console sessions using the lock
// service and releases the locks of sessions that end or go idle.
package session
