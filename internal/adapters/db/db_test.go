package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
	"go.trai.ch/anvil/internal/core/domain"
)

func sampleResult() domain.Result {
	return domain.Result{
		Value:      domain.Value("output-bytes"),
		BuiltAt:    3,
		CheckedAt:  9,
		Declared:   []domain.Key{"input-a", "input-b"},
		Discovered: []domain.Key{"header-h"},
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		result domain.Result
	}{
		{name: "full", result: sampleResult()},
		{name: "empty value", result: domain.Result{BuiltAt: 1, CheckedAt: 1}},
		{name: "no deps", result: domain.Result{
			Value: domain.Value{0, 1, 2}, BuiltAt: 7, CheckedAt: 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := encodeResult(tt.result)
			decoded, err := decodeResult(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.result.BuiltAt, decoded.BuiltAt)
			assert.Equal(t, tt.result.CheckedAt, decoded.CheckedAt)
			assert.Equal(t, []byte(tt.result.Value), []byte(decoded.Value))
			assert.Equal(t, tt.result.Declared, decoded.Declared)
			assert.Equal(t, tt.result.Discovered, decoded.Discovered)

			// Serialising the decoded record reproduces the bytes.
			assert.Equal(t, encoded, encodeResult(decoded))
		})
	}
}

func TestCodec_Truncated(t *testing.T) {
	encoded := encodeResult(sampleResult())
	for cut := 0; cut < len(encoded); cut++ {
		_, err := decodeResult(encoded[:cut])
		assert.Error(t, err, "cut at %d", cut)
	}
}

func TestMemory_Basics(t *testing.T) {
	m := NewMemory()

	iteration, err := m.GetCurrentIteration()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), iteration)

	require.NoError(t, m.SetCurrentIteration(42))
	iteration, _ = m.GetCurrentIteration()
	assert.Equal(t, uint64(42), iteration)

	result, err := m.LookupRuleResult("missing")
	require.NoError(t, err)
	assert.Nil(t, result)

	require.NoError(t, m.SetRuleResult("key", sampleResult()))
	result, err = m.LookupRuleResult("key")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, sampleResult(), *result)
}

func TestBolt_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build.db")

	store, err := OpenBolt(path)
	require.NoError(t, err)

	require.NoError(t, store.BuildStarted())
	require.NoError(t, store.SetRuleResult("key", sampleResult()))
	require.NoError(t, store.SetCurrentIteration(9))

	// Buffered results are visible before the flush.
	result, err := store.LookupRuleResult("key")
	require.NoError(t, err)
	require.NotNil(t, result)

	require.NoError(t, store.BuildComplete())
	require.NoError(t, store.Close())

	// Everything survives a reopen.
	store, err = OpenBolt(path)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup

	iteration, err := store.GetCurrentIteration()
	require.NoError(t, err)
	assert.Equal(t, uint64(9), iteration)

	result, err = store.LookupRuleResult("key")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, sampleResult(), *result)

	result, err = store.LookupRuleResult("other")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestBolt_CorruptRecordIsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build.db")

	store, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, store.SetRuleResult("key", sampleResult()))
	require.NoError(t, store.BuildComplete())
	require.NoError(t, store.Close())

	// Truncate the stored record behind the store's back.
	raw, err := bolt.Open(path, 0o644, nil)
	require.NoError(t, err)
	require.NoError(t, raw.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResults).Put([]byte("key"), []byte{1, 2, 3})
	}))
	require.NoError(t, raw.Close())

	store, err = OpenBolt(path)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup

	result, err := store.LookupRuleResult("key")
	require.NoError(t, err)
	assert.Nil(t, result)
}
