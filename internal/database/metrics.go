package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func (s *Store) SaveMetric(ctx context.Context, metricName, labelKey, labelValue string, value float64) error {
	query := s.db.Rebind(`
	INSERT INTO metrics (metric_name, label_key, label_value, metric_value)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (metric_name, label_key, label_value) DO UPDATE SET metric_value = excluded.metric_value;`)
	_, err := s.db.ExecContext(ctx, query, metricName, labelKey, labelValue, value)
	if err != nil {
		return errors.Wrap(err, "failed to save metric")
	}
	log.Debugf("Metric saved: %s[%s=%s] = %f", metricName, labelKey, labelValue, value)
	return nil
}

func (s *Store) GetMetric(ctx context.Context, metricName string) (float64, error) {
	var value float64
	query := s.db.Rebind(`
	SELECT metric_value
	FROM metrics
	WHERE metric_name = ? AND label_key = '' AND label_value = '';`)
	err := s.db.GetContext(ctx, &value, query, metricName)
	if err == sql.ErrNoRows {
		log.Debugf("Metric %s not found in the database, defaulting to 0", metricName)
		return 0, nil
	} else if err != nil {
		return 0, errors.Wrapf(err, "failed to get metric %s", metricName)
	}
	return value, nil
}

// GetMetricsWithLabels fetches all labelled values of a metric as
// label_key -> label_value -> value.
func (s *Store) GetMetricsWithLabels(ctx context.Context, metricName string) (map[string]map[string]float64, error) {
	query := s.db.Rebind(`
	SELECT label_key, label_value, metric_value
	FROM metrics
	WHERE metric_name = ? AND label_key <> '';`)

	var rows []struct {
		LabelKey    string  `db:"label_key"`
		LabelValue  string  `db:"label_value"`
		MetricValue float64 `db:"metric_value"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, metricName); err != nil {
		return nil, errors.Wrap(err, "failed to query metrics with labels")
	}

	metrics := make(map[string]map[string]float64)
	for _, row := range rows {
		if _, exists := metrics[row.LabelKey]; !exists {
			metrics[row.LabelKey] = make(map[string]float64)
		}
		metrics[row.LabelKey][row.LabelValue] = row.MetricValue
	}
	return metrics, nil
}
