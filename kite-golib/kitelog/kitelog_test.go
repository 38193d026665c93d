package kitelog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLevels(t *testing.T) {
	var out, errOut bytes.Buffer
	l := New(&out, &errOut)
	l.Info("hello")
	l.Error("oops")
	require.NoError(t, l.Sync())

	assert.Contains(t, out.String(), "hello")
	assert.NotContains(t, out.String(), "oops")
	assert.Contains(t, errOut.String(), "oops")
	assert.NotContains(t, errOut.String(), "hello")
}

func TestDurationsFlush(t *testing.T) {
	var out bytes.Buffer
	l := New(&out, &out)

	var d Durations
	d.Record("load", time.Second)
	d.Record("train", 2*time.Second)
	assert.Equal(t, 3*time.Second, d.Total())

	d.Flush(l, "timings")
	require.NoError(t, l.Sync())
	assert.Empty(t, d)

	entry := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry))
	assert.Equal(t, "timings", entry["msg"])
	assert.EqualValues(t, 1, entry["load"])
	assert.EqualValues(t, 3, entry["total"])
}

func TestStatus(t *testing.T) {
	var out bytes.Buffer
	s := NewStatus(&out, "extracted")
	s.Update(1000)
	s.Update(12000)
	s.Done()

	lines := strings.Split(out.String(), "\r")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "extracted 12,000")
	assert.True(t, strings.HasSuffix(out.String(), "\n"))
}
