package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"stakeScope/internal/model"
)

func readRejects(t *testing.T, path string) []model.RejectedEvent {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var out []model.RejectedEvent
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.RejectedEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestJSONLWriterTruncateAndAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "rejects.jsonl")
	rec := model.EventRecord{BlockNumber: 5, TxHash: "0xabc", EventName: "Unstake"}

	w, err := NewJSONLWriter(path, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(model.RejectedFromRecord(rec, ReasonInvalid, errors.New("missing staker"))))
	require.NoError(t, w.Close())

	w, err = NewJSONLWriter(path, true)
	require.NoError(t, err)
	require.NoError(t, w.Write(model.RejectedFromRecord(rec, ReasonOutOfOrder, nil)))
	require.NoError(t, w.Close())

	got := readRejects(t, path)
	require.Len(t, got, 2)
	require.Equal(t, "missing staker", got[0].Error)
	require.Equal(t, ReasonOutOfOrder, got[1].Reason)
	require.Empty(t, got[1].Error)

	w, err = NewJSONLWriter(path, false)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Empty(t, readRejects(t, path))
}

func TestJSONLWriterFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rejects.jsonl")
	w, err := NewJSONLWriter(path, false)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write(map[string]string{"reason": ReasonMalformed}))
	require.NoError(t, w.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "{\"reason\":\"malformed\"}\n", string(data))
}
