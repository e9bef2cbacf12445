// Package database mirrors accepted scalar points into InfluxDB for ad hoc
// querying. The mirror is optional and uses the non-blocking write API so a
// slow or absent InfluxDB never stalls ingestion.
package database

import (
	"log"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/carnegiemellonracing/PiDAQ/internal/config"
	"github.com/carnegiemellonracing/PiDAQ/internal/model"
)

type Mirror struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *log.Logger
}

// NewMirror builds the mirror, or returns nil when INFLUX_URL is not
// configured. All methods are nil-safe.
func NewMirror(cfg *config.Config) *Mirror {
	if cfg.InfluxURL == "" {
		return nil
	}
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	m := &Mirror{
		client:   client,
		writeAPI: client.WriteAPI(cfg.InfluxOrg, cfg.InfluxBucket),
		logger:   cfg.Logger,
	}
	go func() {
		for err := range m.writeAPI.Errors() {
			m.logger.Printf("[influx] async write error: %v", err)
		}
	}()
	return m
}

func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.writeAPI.Flush()
	m.client.Close()
}

// WritePoint enqueues one scalar point. Frame arrays and non-numeric values
// are skipped; their derived averages arrive as separate scalar points.
func (m *Mirror) WritePoint(pt model.DataPoint) {
	if m == nil {
		return
	}
	value, ok := pt.Value.(float64)
	if !ok {
		return
	}
	tags := map[string]string{
		"deviceId":  pt.DeviceID,
		"sessionId": pt.SessionID,
	}
	fields := map[string]any{"value": value}
	m.writeAPI.WritePoint(write.NewPoint(pt.Channel, tags, fields, pt.Timestamp))
}
