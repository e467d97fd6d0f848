package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"pruneware/config"
	"pruneware/logger"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

type otelLogger struct {
	provider *sdklog.LoggerProvider
	logger   otelLog.Logger
	timeout  time.Duration
	endpoint string
	policy   otelPolicy
}

type otelPolicy struct {
	includePaths bool
}

// Fields that carry file system paths or command lines.
var pathFields = map[string][]string{
	RecordSoftware:        {"install_location", "uninstall_string", "quiet_uninstall_string"},
	RecordUninstallResult: {"command", "stderr"},
	RecordSystemInfo:      {"system_root"},
}

func newOtelLogger(cfg *config.Config) (*otelLogger, error) {
	if cfg == nil {
		return nil, nil
	}
	endpoint := resolveOtelEndpoint(cfg)
	if endpoint == "" {
		return nil, nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint must include scheme (http or https)")
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(cfg.OtelHeaders) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.OtelHeaders))
	}
	if cfg.OtelTimeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.OtelTimeout))
	}

	exp, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.OtelServiceName),
	)
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)

	return &otelLogger{
		provider: provider,
		logger:   provider.Logger("pruneware"),
		timeout:  cfg.OtelTimeout,
		endpoint: endpoint,
		policy:   otelPolicy{includePaths: cfg.OtelExportPaths},
	}, nil
}

func resolveOtelEndpoint(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	if endpoint := strings.TrimSpace(cfg.OtelEndpoint); endpoint != "" {
		return endpoint
	}
	if !cfg.OtelFromEnv {
		return ""
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT")); endpoint != "" {
		return endpoint
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

func (o *otelLogger) Endpoint() string {
	if o == nil {
		return ""
	}
	return o.endpoint
}

func (o *otelLogger) Emit(recordType string, payload interface{}) {
	if o == nil || o.logger == nil {
		return
	}
	safePayload := sanitizePayload(recordType, payload, o.policy)

	var record otelLog.Record
	record.SetTimestamp(time.Now())
	record.SetObservedTimestamp(time.Now())
	record.SetEventName("pruneware.record")
	record.AddAttributes(
		otelLog.String("record_type", recordType),
		otelLog.String("schema_version", SchemaVersion),
	)
	if recordType == RecordUninstallResult {
		if success, ok := safePayload["success"].(bool); ok && !success {
			record.SetSeverity(otelLog.SeverityWarn)
			record.SetSeverityText("WARN")
		}
	}
	if attrs := semanticAttributes(recordType, safePayload); len(attrs) > 0 {
		record.AddAttributes(attrs...)
	}

	if value := toLogValue(safePayload); value.Kind() != otelLog.KindEmpty {
		record.SetBody(value)
	} else if data, err := json.Marshal(safePayload); err == nil {
		record.SetBody(otelLog.StringValue(string(data)))
	}

	o.logger.Emit(context.Background(), record)
}

func (o *otelLogger) Shutdown() {
	if o == nil || o.provider == nil {
		return
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.provider.Shutdown(ctx); err != nil {
		logger.Debugf("OTEL shutdown failed: %v", err)
	}
}

// sanitizePayload converts payload to a generic map and strips path and
// command fields unless the policy allows them.
func sanitizePayload(recordType string, payload interface{}, policy otelPolicy) map[string]interface{} {
	data := payloadToMap(payload)
	if len(data) == 0 || policy.includePaths {
		return data
	}
	sanitized := cloneMap(data)
	for _, key := range pathFields[recordType] {
		delete(sanitized, key)
	}
	if recordType == RecordSystemInfo {
		if procs, ok := sanitized["active_installers"].([]interface{}); ok {
			stripped := make([]interface{}, 0, len(procs))
			for _, p := range procs {
				if m, ok := p.(map[string]interface{}); ok {
					m = cloneMap(m)
					delete(m, "cmdline")
					stripped = append(stripped, m)
				}
			}
			sanitized["active_installers"] = stripped
		}
	}
	return sanitized
}

func cloneMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func toLogValue(value interface{}) otelLog.Value {
	switch v := value.(type) {
	case nil:
		return otelLog.Value{}
	case string:
		return otelLog.StringValue(v)
	case []byte:
		return otelLog.BytesValue(v)
	case bool:
		return otelLog.BoolValue(v)
	case int:
		return otelLog.IntValue(v)
	case int64:
		return otelLog.Int64Value(v)
	case float64:
		return otelLog.Float64Value(v)
	case float32:
		return otelLog.Float64Value(float64(v))
	case map[string]interface{}:
		return otelLog.MapValue(toLogKeyValues(v)...)
	case map[string]string:
		generic := make(map[string]interface{}, len(v))
		for k, val := range v {
			generic[k] = val
		}
		return otelLog.MapValue(toLogKeyValues(generic)...)
	case []string:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.StringValue(item))
		}
		return otelLog.SliceValue(values...)
	case []int:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.IntValue(item))
		}
		return otelLog.SliceValue(values...)
	case []int64:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.Int64Value(item))
		}
		return otelLog.SliceValue(values...)
	case []float64:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.Float64Value(item))
		}
		return otelLog.SliceValue(values...)
	case []bool:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.BoolValue(item))
		}
		return otelLog.SliceValue(values...)
	case []interface{}:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, toLogValue(item))
		}
		return otelLog.SliceValue(values...)
	default:
		_ = v
		return otelLog.Value{}
	}
}

func toLogKeyValues(values map[string]interface{}) []otelLog.KeyValue {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	kvs := make([]otelLog.KeyValue, 0, len(values))
	for _, key := range keys {
		kvs = append(kvs, otelLog.KeyValue{Key: key, Value: toLogValue(values[key])})
	}
	return kvs
}

func semanticAttributes(recordType string, data map[string]interface{}) []otelLog.KeyValue {
	if len(data) == 0 {
		return nil
	}
	var kvs []otelLog.KeyValue

	switch recordType {
	case RecordSystemInfo:
		kvs = appendStringAttr(kvs, string(semconv.HostNameKey), getStringField(data, "hostname"))
		kvs = appendStringAttr(kvs, string(semconv.OSNameKey), getStringField(data, "os_platform"))
		kvs = appendStringAttr(kvs, string(semconv.OSVersionKey), getStringField(data, "os_version"))
		kvs = appendStringAttr(kvs, "pruneware.system.kernel_arch", getStringField(data, "kernel_arch"))
		kvs = appendStringAttr(kvs, "pruneware.system.os_install_date", getStringField(data, "os_install_date"))
		if elevated, ok := data["elevated"].(bool); ok {
			kvs = append(kvs, otelLog.Bool("pruneware.system.elevated", elevated))
		}
	case RecordSoftware:
		kvs = appendStringAttr(kvs, "pruneware.software.id", getStringField(data, "id"))
		kvs = appendStringAttr(kvs, "pruneware.software.name", getStringField(data, "name"))
		kvs = appendStringAttr(kvs, "pruneware.software.version", getStringField(data, "version"))
		kvs = appendStringAttr(kvs, "pruneware.software.publisher", getStringField(data, "publisher"))
		kvs = appendStringAttr(kvs, "pruneware.software.source", getStringField(data, "source"))
		kvs = appendStringAttr(kvs, "pruneware.software.installer_type", getStringField(data, "installer_type"))
	case RecordUninstallResult:
		kvs = appendStringAttr(kvs, "pruneware.uninstall.id", getStringField(data, "id"))
		kvs = appendStringAttr(kvs, "pruneware.uninstall.name", getStringField(data, "name"))
		kvs = appendStringAttr(kvs, "pruneware.uninstall.status", getStringField(data, "status"))
		kvs = appendStringAttr(kvs, "pruneware.uninstall.method", getStringField(data, "method"))
		if code, ok := getInt64Field(data, "exit_code"); ok {
			kvs = append(kvs, otelLog.Int64("pruneware.uninstall.exit_code", code))
		}
		if ms, ok := getInt64Field(data, "duration_ms"); ok {
			kvs = append(kvs, otelLog.Int64("pruneware.uninstall.duration_ms", ms))
		}
	case RecordBatch:
		for _, key := range []string{"total", "succeeded", "failed"} {
			if n, ok := getInt64Field(data, key); ok {
				kvs = append(kvs, otelLog.Int64("pruneware.batch."+key, n))
			}
		}
		if cancelled, ok := data["cancelled"].(bool); ok {
			kvs = append(kvs, otelLog.Bool("pruneware.batch.cancelled", cancelled))
		}
	}
	return kvs
}

func payloadToMap(payload interface{}) map[string]interface{} {
	switch v := payload.(type) {
	case map[string]interface{}:
		return v
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			out[key] = value
		}
		return out
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil
		}
		return decoded
	}
}

func getStringField(values map[string]interface{}, key string) string {
	value, ok := values[key]
	if !ok {
		return ""
	}
	if str, ok := value.(string); ok {
		return str
	}
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

func getInt64Field(values map[string]interface{}, key string) (int64, bool) {
	value, ok := values[key]
	if !ok || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	case json.Number:
		if parsed, err := v.Int64(); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func appendStringAttr(kvs []otelLog.KeyValue, key, value string) []otelLog.KeyValue {
	if value == "" {
		return kvs
	}
	return append(kvs, otelLog.String(key, value))
}
