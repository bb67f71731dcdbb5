// Package influxdb writes check-ins and payments to InfluxDB as points in
// the gym_events measurement, tagged by event type and member. The server
// only writes; Grafana or similar reads the bucket.
package influxdb
