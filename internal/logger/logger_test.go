package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextFieldsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "test"})

	ctx := l.WithContext(context.Background())
	ctx = SetJobID(ctx, "job-1")
	ctx = SetRemoteJobID(ctx, "remote-1")

	CtxInfo(ctx, "polling %s", "now")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "polling now", line["message"])
	assert.Equal(t, "job-1", line[FieldJobID])
	assert.Equal(t, "remote-1", line[FieldRemoteJobID])
	assert.Equal(t, "test", line["service"])
	assert.Equal(t, "job-1", GetJobID(ctx))
}

func TestEntryAddsMetricFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "info", Format: "json", Output: &buf})
	ctx := l.WithContext(context.Background())

	With(Fields{FieldProgress: 40}).WithDuration(12).Info(ctx, "progress")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.EqualValues(t, 40, line[FieldProgress])
	assert.EqualValues(t, 12, line[FieldDurationMs])
}

func TestRequestFieldsAndStatus(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "info", Format: "json", Output: &buf})

	ctx := SetRequestID(l.WithContext(context.Background()), "req-7")
	ctx = SetComponent(ctx, "api")
	assert.Equal(t, "req-7", GetRequestID(ctx))

	With(Fields{}).WithStatus("completed").Info(ctx, "done")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-7", line[FieldRequestID])
	assert.Equal(t, "api", line[FieldComponent])
	assert.Equal(t, "completed", line[FieldStatus])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, GetDefault(), FromContext(context.Background()))
}
