package live

import (
	"encoding/json"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/centsible/centsible/internal/event_bus"
)

// changeDTO is the SSE payload sent for every applied collection change.
type changeDTO struct {
	Table     string `json:"table"`
	FilterKey string `json:"filterKey"`
	Kind      string `json:"kind"`
	EntityID  string `json:"entityId,omitempty"`
}

// LiveHandler streams collection changes to the browser as server-sent
// events, one connection per open view. The stream carries change
// notifications only; clients re-query the regular endpoints for data.
type LiveHandler struct {
	bus *event_bus.EventBus
}

func NewLiveHandler(bus *event_bus.EventBus) *LiveHandler {
	return &LiveHandler{bus: bus}
}

func (handler *LiveHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Bus handlers run synchronously inside Publish, so the handler only
	// enqueues. A slow or gone client drops notifications instead of
	// blocking the publishing synchronizer.
	changes := make(chan changeDTO, 64)
	unsubscribe := event_bus.SubscribeTyped[event_bus.CollectionChanged](handler.bus, event_bus.CollectionChangedType,
		func(e event_bus.EventT[event_bus.CollectionChanged]) error {
			select {
			case changes <- changeDTO{
				Table:     e.Data.Table,
				FilterKey: e.Data.FilterKey,
				Kind:      e.Data.Kind,
				EntityID:  e.Data.EntityID,
			}:
			default:
				log.Debug("live stream buffer full, dropping change notification")
			}
			return nil
		})
	defer unsubscribe()

	log.Debug("live stream opened")
	for {
		select {
		case <-r.Context().Done():
			log.Debug("live stream closed")
			return
		case change := <-changes:
			payload, err := json.Marshal(change)
			if err != nil {
				log.Warnf("could not encode change notification: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: change\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
