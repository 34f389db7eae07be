package roster

import (
	"context"
	"dataweb-backend/internal/components/telemetry"
	"dataweb-backend/internal/pv"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeVars struct {
	mutex sync.Mutex
	value string
	err   error
}

func (f *fakeVars) set(value string, err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.value = value
	f.err = err
}

func (f *fakeVars) Read(context.Context, string) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.value, f.err
}

func compressed(t *testing.T, text string) string {
	value, err := pv.CompressAndHex([]byte(text))
	require.NoError(t, err)
	return value
}

func TestRetrieve(t *testing.T) {
	vars := &fakeVars{}
	source := NewSource(vars, DefaultVariable, nil, telemetry.NewRecorder())

	vars.set(compressed(t, `[{"pvPrefix": "IN:INST:", "hostName": "NDXINST", "name": "INST"}]`), nil)
	entries := source.Retrieve(context.Background())
	require.Equal(t, []Entry{{Name: "INST", Host: "NDXINST", Prefix: "IN:INST:"}}, entries)
	require.Equal(t, "", source.ErrorOnRetrieve())
}

func TestRetrieveErrors(t *testing.T) {
	table := []struct {
		name  string
		value func(t *testing.T) string
		err   error
		code  string
	}{
		{
			name: "read failed",
			err:  errors.New("channel not connected"),
			code: "INSTRUMENT_LIST_CAN_NOT_BE_READ",
		},
		{
			name:  "not hex",
			value: func(*testing.T) string { return "hjkdfhui" },
			code:  "INSTRUMENT_LIST_NOT_DECOMPRESSED",
		},
		{
			name:  "not compressed",
			value: func(*testing.T) string { return "23678164" },
			code:  "INSTRUMENT_LIST_NOT_DECOMPRESSED",
		},
		{
			name:  "not json",
			value: func(t *testing.T) string { return compressed(t, "not json") },
			code:  "INSTRUMENT_LIST_NOT_JSON",
		},
		{
			name:  "missing name",
			value: func(t *testing.T) string { return compressed(t, `[{"pvPrefix": "IN:INST:", "hostName": "host"}]`) },
			code:  "INSTRUMENT_LIST_NOT_CORRECT_FORMAT",
		},
	}

	for _, row := range table {
		vars := &fakeVars{}
		source := NewSource(vars, DefaultVariable, nil, telemetry.NewRecorder())
		value := ""
		if row.value != nil {
			value = row.value(t)
		}
		vars.set(value, row.err)

		entries := source.Retrieve(context.Background())
		require.Empty(t, entries, row.name)
		require.Equal(t, row.code, source.ErrorOnRetrieve(), row.name)
	}
}

func TestRetrieveKeepsLastGoodList(t *testing.T) {
	vars := &fakeVars{}
	source := NewSource(vars, DefaultVariable, nil, telemetry.NewRecorder())

	vars.set(compressed(t, `[{"pvPrefix": "IN:INST:", "hostName": "NDXINST", "name": "INST"}]`), nil)
	source.Retrieve(context.Background())

	vars.set("", errors.New("timeout"))
	entries := source.Retrieve(context.Background())
	require.Equal(t, []Entry{{Name: "INST", Host: "NDXINST", Prefix: "IN:INST:"}}, entries)
	require.Equal(t, "INSTRUMENT_LIST_CAN_NOT_BE_READ", source.ErrorOnRetrieve())

	vars.set(compressed(t, `[]`), nil)
	require.Empty(t, source.Retrieve(context.Background()))
	require.Equal(t, "", source.ErrorOnRetrieve())
}

func TestParseDuplicateNames(t *testing.T) {
	entries, err := Parse(compressed(t, `[
		{"pvPrefix": "IN:A:", "hostName": "NDXA", "name": "A"},
		{"pvPrefix": "IN:B:", "hostName": "NDXB", "name": "B"},
		{"pvPrefix": "IN:A:", "hostName": "NDXA2", "name": "A"}
	]`))
	require.NoError(t, err)
	require.Equal(t, []Entry{
		{Name: "A", Host: "NDXA2", Prefix: "IN:A:"},
		{Name: "B", Host: "NDXB", Prefix: "IN:B:"},
	}, entries)
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	db, err := Database{File: filepath.Join(t.TempDir(), "state", "roster.db")}.OpenDB()
	require.NoError(t, err)
	defer db.Close()

	cache, err := NewCache(ctx, db)
	require.NoError(t, err)

	entries, err := cache.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, entries)

	vars := &fakeVars{}
	vars.set(compressed(t, `[{"pvPrefix": "IN:INST:", "hostName": "NDXINST", "name": "INST"}]`), nil)
	source := NewSource(vars, DefaultVariable, cache, telemetry.NewRecorder())
	source.Retrieve(ctx)

	// a restarted service sees the list before the variable answers
	vars.set("", errors.New("not connected"))
	restarted := NewSource(vars, DefaultVariable, cache, telemetry.NewRecorder())
	require.NoError(t, restarted.Prime(ctx))
	require.Equal(t, []Entry{{Name: "INST", Host: "NDXINST", Prefix: "IN:INST:"}}, restarted.Retrieve(ctx))

	vars.set(compressed(t, `[{"pvPrefix": "IN:B:", "hostName": "NDXB", "name": "B"}]`), nil)
	restarted.Retrieve(ctx)
	entries, err = cache.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []Entry{{Name: "B", Host: "NDXB", Prefix: "IN:B:"}}, entries)
}

func TestInMemoryCache(t *testing.T) {
	db, err := Database{File: ":memory:"}.OpenDB()
	require.NoError(t, err)
	defer db.Close()

	cache, err := NewCache(context.Background(), db)
	require.NoError(t, err)
	require.NoError(t, cache.Save(context.Background(), []Entry{{Name: "A", Host: "NDXA", Prefix: "IN:A:"}}))

	entries, err := cache.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
