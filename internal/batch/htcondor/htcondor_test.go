package htcondor

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/cernops/elastiq/internal/batch"
)

const sampleXML = `<classads>
<c>
  <a n="MyType"><s>Machine</s></a>
  <a n="Machine"><s>worker1.example.cern.ch</s></a>
  <a n="Activity"><s>Idle</s></a>
</c>
<c>
  <a n="MyType"><s>Machine</s></a>
  <a n="Machine"><s>worker2.example.cern.ch</s></a>
  <a n="Activity"><s>Busy</s></a>
</c>
<c>
  <a n="MyType"><s>Machine</s></a>
  <a n="Machine"><s>worker2.example.cern.ch</s></a>
  <a n="Activity"><s>Busy</s></a>
</c>
</classads>`

func TestAggregateCountsAndIdle(t *testing.T) {
	now := time.Now()
	result, err := aggregate([]byte(sampleXML), nil, nil, now, logrus.StandardLogger())
	require.NoError(t, err)
	require.Equal(t, 0, result["worker1.example.cern.ch"].Jobs)
	require.Equal(t, 2, result["worker2.example.cern.ch"].Jobs)
	require.Equal(t, now, result["worker1.example.cern.ch"].UnchangedSince)
}

func TestAggregatePreservesUnchangedSince(t *testing.T) {
	earlier := time.Now().Add(-time.Hour)
	previous := map[string]batch.WorkerStatus{
		"worker1.example.cern.ch": {Jobs: 0, UnchangedSince: earlier},
	}
	now := time.Now()
	result, err := aggregate([]byte(sampleXML), previous, nil, now, logrus.StandardLogger())
	require.NoError(t, err)
	require.Equal(t, earlier, result["worker1.example.cern.ch"].UnchangedSince)
	require.Equal(t, now, result["worker2.example.cern.ch"].UnchangedSince)
}

func TestAggregateRejectsMalformedXML(t *testing.T) {
	_, err := aggregate([]byte("not xml <<<"), nil, nil, time.Now(), logrus.StandardLogger())
	require.Error(t, err)
}

func TestAggregateSkipsIncompleteRecords(t *testing.T) {
	incomplete := `<classads><c><a n="MyType"><s>Machine</s></a></c></classads>`
	result, err := aggregate([]byte(incomplete), nil, nil, time.Now(), logrus.StandardLogger())
	require.NoError(t, err)
	require.Empty(t, result)
}
