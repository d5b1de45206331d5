package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

// Store persists counter values so they survive restarts.
type Store interface {
	SaveMetric(ctx context.Context, name, labelKey, labelValue string, value float64) error
	GetMetric(ctx context.Context, name string) (float64, error)
	GetMetricsWithLabels(ctx context.Context, name string) (map[string]map[string]float64, error)
}

// notificationsMetric holds delivery counts of every result, failures included.
const notificationsMetric = "notifications"

// LoadFromDB adds persisted values onto the in-memory counters.
func LoadFromDB(ctx context.Context, store Store) {
	commandsProcessed, _ := store.GetMetric(ctx, "commands_processed")
	messagesHandled, _ := store.GetMetric(ctx, "messages_handled")

	CommandsProcessed.Add(commandsProcessed)
	MessagesHandled.Add(messagesHandled)

	results, err := store.GetMetricsWithLabels(ctx, notificationsMetric)
	if err != nil {
		log.Warnf("Failed to load notification metrics: %v", err)
	}
	for _, byResult := range results {
		for result, value := range byResult {
			Notifications.WithLabelValues(result).Add(value)
		}
	}

	log.Debug("Metrics loaded from database.")
}

// SaveToDB writes the current counter values.
func SaveToDB(ctx context.Context, store Store) {
	save := func(name, labelKey, labelValue string, value float64) {
		if err := store.SaveMetric(ctx, name, labelKey, labelValue, value); err != nil {
			log.Warnf("Failed to save metric %s: %v", name, err)
		}
	}

	save("commands_processed", "", "", GetMetricValue(CommandsProcessed))
	save("messages_handled", "", "", GetMetricValue(MessagesHandled))

	metricChan := make(chan prometheus.Metric, 1)
	go func() {
		Notifications.Collect(metricChan)
		close(metricChan)
	}()

	for metric := range metricChan {
		metricProto := &dto.Metric{}
		if err := metric.Write(metricProto); err != nil {
			log.Warnf("Failed to read notifications metric: %v", err)
			continue
		}
		var result string
		for _, label := range metricProto.Label {
			if label.GetName() == "result" {
				result = label.GetValue()
			}
		}
		save(notificationsMetric, "result", result, metricProto.Counter.GetValue())
	}

	log.Debug("Metrics saved to database.")
}

// GetMetricValue reads the value of a single-series counter or gauge.
func GetMetricValue(metric prometheus.Collector) float64 {
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	m, ok := <-metricChan
	if !ok {
		return 0
	}

	metricProto := &dto.Metric{}
	if err := m.Write(metricProto); err != nil {
		log.Warnf("Failed to read metric value: %v", err)
		return 0
	}

	switch {
	case metricProto.Counter != nil:
		return metricProto.Counter.GetValue()
	case metricProto.Gauge != nil:
		return metricProto.Gauge.GetValue()
	}
	return 0
}
