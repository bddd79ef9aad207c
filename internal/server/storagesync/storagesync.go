// Package storagesync receives blob storage events. Events are only logged;
// the backends remain the system of record.
package storagesync

import (
	"encoding/json"
	"io"
	"net/http"

	"filegate/pkg/api"

	"github.com/charmbracelet/log"
)

const subscriptionValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"

// Handler accepts Event Grid style event batches.
func Handler(logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var events []api.StorageEvent
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&events); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(api.ErrorResponse{Errors: []string{"invalid event batch: " + err.Error()}})
			return
		}

		for _, ev := range events {
			if ev.EventType == subscriptionValidation {
				code, _ := ev.Data["validationCode"].(string)
				logger.Info("subscription validation", "id", ev.ID, "topic", ev.Topic)
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(api.SubscriptionValidationResponse{ValidationResponse: code})
				return
			}
			logger.Info("storage event", "type", ev.EventType, "subject", ev.Subject, "time", ev.EventTime)
		}
		w.WriteHeader(http.StatusOK)
	})
}
