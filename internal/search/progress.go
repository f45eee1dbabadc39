package search

import (
	"log/slog"

	"audiostream/metasearch/internal/domain"
)

const progressInteractive = "interactive"

// reporter publishes the human-readable steps of one query to its channel.
type reporter struct {
	hub     Broadcaster
	channel string
}

func (r reporter) report(message, asin string) {
	if r.hub == nil || r.channel == "" {
		return
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Debug("progress broadcast failed", slog.Any("panic", recovered))
		}
	}()
	r.hub.Publish(r.channel, domain.ProgressEvent{Message: message, ASIN: asin, Type: progressInteractive})
}
