// Package notify delivers user-visible notices raised by the engine.
package notify
