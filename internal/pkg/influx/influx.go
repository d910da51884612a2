// Package influx writes numeric variable history to InfluxDB.
package influx

import (
	"context"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/model"
)

const measurement = "variables"

type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *zap.Logger
}

// New connects to url and writes to org/bucket through the batching,
// non-blocking write API.
func New(url, token, org, bucket string) *Sink {
	client := influxdb2.NewClientWithOptions(url, token, influxdb2.DefaultOptions().SetBatchSize(500).SetFlushInterval(1000))
	s := NewWithWriteAPI(client.WriteAPI(org, bucket))
	s.client = client
	return s
}

func NewWithWriteAPI(writeAPI api.WriteAPI) *Sink {
	return &Sink{writeAPI: writeAPI, logger: zap.L().Named("influx")}
}

// Write queues one point per numeric variable. Other values are skipped.
func (s *Sink) Write(_ context.Context, vars []model.Variable) error {
	for _, v := range vars {
		value, ok := toFloat(v.Value)
		if !ok {
			continue
		}
		p := influxdb2.NewPoint(measurement,
			map[string]string{"gateway": v.Gateway, "device": v.DeviceID, "name": v.Name},
			map[string]any{"value": value},
			v.Timestamp)
		s.writeAPI.WritePoint(p)
	}
	return nil
}

// Run logs asynchronous write errors until ctx is done.
func (s *Sink) Run(ctx context.Context) error {
	errs := s.writeAPI.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			s.logger.Error("write failed", zap.Error(err))
		}
	}
}

// Close flushes pending points.
func (s *Sink) Close() {
	s.writeAPI.Flush()
	if s.client != nil {
		s.client.Close()
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
