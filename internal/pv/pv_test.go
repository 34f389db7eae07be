package pv

import (
	"context"
	"dataweb-backend/internal/components/telemetry"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDehexAndDecompress(t *testing.T) {
	encoded, err := CompressAndHex([]byte(`[{"name": "DEMO"}]`))
	require.NoError(t, err)

	decoded, err := DehexAndDecompress(encoded)
	require.NoError(t, err)
	require.Equal(t, `[{"name": "DEMO"}]`, string(decoded))

	_, err = DehexAndDecompress("not hex at all")
	require.ErrorIs(t, err, ErrNotHex)

	_, err = DehexAndDecompress("00112233")
	require.ErrorIs(t, err, ErrNotCompressed)
}

func fakeCaget(t *testing.T, script string) string {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported")
	}
	path := filepath.Join(t.TempDir(), "caget")
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755)
	require.NoError(t, err)
	return path
}

func TestCagetReader(t *testing.T) {
	binary := fakeCaget(t, `echo "  value of $3  "`)
	reader := NewCagetReader(binary, time.Second*5, telemetry.NewRecorder())

	value, err := reader.Read(context.Background(), "IN:DEMO:CS:BLOCKSERVER:GET_CURR_CONFIG_DETAILS")
	require.NoError(t, err)
	require.Equal(t, "value of IN:DEMO:CS:BLOCKSERVER:GET_CURR_CONFIG_DETAILS", value)

	failing := NewCagetReader(fakeCaget(t, `echo "channel connect timed out" 1>&2; exit 1`), time.Second*5, telemetry.NewRecorder())
	_, err = failing.Read(context.Background(), "CS:INSTLIST")
	require.ErrorContains(t, err, "channel connect timed out")

	slow := NewCagetReader(fakeCaget(t, `exec sleep 5`), time.Millisecond*100, telemetry.NewRecorder())
	_, err = slow.Read(context.Background(), "CS:INSTLIST")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
