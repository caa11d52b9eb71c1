// Package statsd emits run-lifecycle and scheduler metrics over the StatsD
// line protocol. Emission is fire-and-forget UDP: a dead collector slows
// nothing down and loses only metrics.
package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultNamespace prefixes every metric when no explicit prefix is
// configured, so fieldline's series never collide with other emitters
// sharing the collector.
const DefaultNamespace = "fieldline"

// Sink is the minimal emission surface the services depend on. The executor
// and scheduler take a Sink, not a *Client, so tests can capture emissions.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes how to connect to a StatsD-compatible collector.
type Config struct {
	Enabled bool
	Address string
	// Prefix overrides DefaultNamespace when set.
	Prefix     string
	Logger     *slog.Logger
	GlobalTags map[string]string
}

// Client emits metrics over UDP. Safe for concurrent use; a nil *Client is a
// valid no-op sink.
type Client struct {
	enabled    bool
	address    string
	namespace  string
	globalTags map[string]string

	logger *slog.Logger
	conn   net.Conn
	mu     sync.Mutex
}

var _ Sink = (*Client)(nil)

// NewClient dials the configured collector unless disabled.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	namespace := trimNamespace(cfg.Prefix)
	if namespace == "" {
		namespace = DefaultNamespace
	}

	address := strings.TrimSpace(cfg.Address)
	client := &Client{
		enabled:    cfg.Enabled && address != "",
		address:    address,
		namespace:  namespace,
		globalTags: mergeTags(nil, cfg.GlobalTags),
		logger:     logger,
	}
	if !client.enabled {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	client.conn = conn

	return client, nil
}

// Enabled reports whether the client actively emits metrics.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && c.conn != nil
}

// Count increments a counter metric.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	if c == nil {
		return
	}
	c.emit(name, strconv.FormatInt(value, 10)+"|c", tags)
}

// Gauge records the current value for a gauge metric.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	if c == nil {
		return
	}
	c.emit(name, formatFloat(value)+"|g", tags)
}

// Timing records a duration in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	if c == nil {
		return
	}
	ms := float64(value) / float64(time.Millisecond)
	c.emit(name, formatFloat(ms)+"|ms", tags)
}

// Close releases the underlying UDP connection if one was established.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) emit(name, payload string, tags map[string]string) {
	metric := c.qualify(name)
	if metric == "" {
		return
	}

	var line strings.Builder
	line.WriteString(metric)
	line.WriteByte(':')
	line.WriteString(payload)
	writeTags(&line, mergeTags(c.globalTags, tags))

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || c.conn == nil {
		return
	}
	if _, err := c.conn.Write([]byte(line.String())); err != nil {
		c.logger.Debug("statsd write failed", "metric", metric, "error", err)
	}
}

// qualify namespaces and normalizes a metric name, returning "" for names
// that normalize to nothing.
func (c *Client) qualify(name string) string {
	normalized := normalizeMetricName(name)
	if normalized == "" {
		return ""
	}
	if c.namespace == "" {
		return normalized
	}
	return c.namespace + "." + normalized
}

func trimNamespace(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), ".")
}

func normalizeMetricName(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	// Spaces and slashes break the line protocol on some collectors.
	n = strings.ReplaceAll(n, " ", "_")
	n = strings.ReplaceAll(n, "/", "_")
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	return strings.Trim(n, ".")
}

// mergeTags combines base and overriding tag maps into a fresh map, trimming
// whitespace and dropping empty keys. Local tags win over base tags.
func mergeTags(base, local map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(local))
	for _, src := range []map[string]string{base, local} {
		for k, v := range src {
			key := strings.TrimSpace(k)
			if key == "" {
				continue
			}
			merged[key] = strings.TrimSpace(v)
		}
	}
	return merged
}

// writeTags appends the DogStatsD-style tag section, keys sorted so emitted
// lines are stable for tests and dedup.
func writeTags(line *strings.Builder, tags map[string]string) {
	if len(tags) == 0 {
		return
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	line.WriteString("|#")
	for i, k := range keys {
		if i > 0 {
			line.WriteByte(',')
		}
		line.WriteString(k)
		line.WriteByte(':')
		line.WriteString(tags[k])
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
