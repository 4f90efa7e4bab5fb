package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsEmitter publishes counters and values to a CloudWatch namespace.
type MetricsEmitter struct {
	CW        CloudWatchAPI
	Namespace string
	nowFunc   func() time.Time
}

// NewMetricsEmitter returns an emitter bound to a namespace.
func NewMetricsEmitter(cw CloudWatchAPI, namespace string) *MetricsEmitter {
	return &MetricsEmitter{
		CW:        cw,
		Namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Emit publishes a single metric datum with optional dimensions.
func (m *MetricsEmitter) Emit(ctx context.Context, name string, value float64, unit cwtypes.StandardUnit, dims map[string]string) error {
	ts := m.nowFunc()
	datum := cwtypes.MetricDatum{
		MetricName: &name,
		Value:      &value,
		Unit:       unit,
		Timestamp:  &ts,
	}
	for k, v := range dims {
		k, v := k, v
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{Name: &k, Value: &v})
	}

	_, err := m.CW.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &m.Namespace,
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

// Count emits a unitless counter increment.
func (m *MetricsEmitter) Count(ctx context.Context, name string, value float64) error {
	return m.Emit(ctx, name, value, cwtypes.StandardUnitCount, nil)
}
