// Package slogx provides slog attribute helpers for the fields that
// show up throughout the engine's diagnostics.
package slogx

import "log/slog"

// Error returns a slog.Attr representing the provided error. The
// attribute key is "error" and the value is the error's message.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Filter returns an attribute for a transport-level topic filter.
func Filter(filter string) slog.Attr {
	return slog.String("filter", filter)
}

// Topic returns an attribute for a concrete message topic.
func Topic(topic string) slog.Attr {
	return slog.String("topic", topic)
}

// Subscription returns an attribute for a caller-level subscription id.
func Subscription(id uint64) slog.Attr {
	return slog.Uint64("subscription", id)
}
