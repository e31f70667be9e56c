package engine

import (
	"context"

	"github.com/fintrackapp/fintrack/internal/model"
	"github.com/fintrackapp/fintrack/internal/realtime"
)

// AttachRealtime subscribes the engine to change notifications from the
// realtime channel. Each notification re-pulls just the named table, so the
// conflict resolver remains the only writer of pulled state. The returned
// subscription can be passed to ch.Off to detach.
func (e *Engine) AttachRealtime(ch *realtime.Channel) realtime.Subscription {
	return ch.On(realtime.EventRecordChanged, func(msg realtime.Message) {
		table, err := model.ParseTable(msg.Table)
		if err != nil {
			e.logger.Printf("Ignoring change notification: %v", err)
			return
		}
		if !e.gate.CanSync() {
			return
		}
		go func() {
			if err := e.PullTable(context.Background(), table); err != nil {
				e.logger.Printf("Realtime pull %s failed: %v", table, err)
			}
		}()
	})
}
