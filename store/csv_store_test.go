package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/motionrelay/record"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestOpen_WritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "whc_data.csv")

	s, err := Open(path, nil)
	require.NoError(t, err)

	rows := readRows(t, path)
	require.Len(t, rows, 1)
	assert.Equal(t, record.Header, rows[0])

	// Reopening an existing store must not rewrite the header.
	rec, err := record.Decode("12:00:00.000000,rpi01,1.0,2.0,3.0,0.1,0.2,0.3,0.01,0.02,0.03")
	require.NoError(t, err)
	require.NoError(t, s.Append(rec))

	s2, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s2.Append(rec))

	rows = readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, record.Header, rows[0])
	for _, row := range rows[1:] {
		assert.Equal(t, rec.Fields(), row)
	}
}

func TestAppend_FreshStoreFirstRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whc_data.csv")
	s, err := Open(path, nil)
	require.NoError(t, err)

	line := "12:00:00.000000,rpi01,1.0,2.0,3.0,0.1,0.2,0.3,0.01,0.02,0.03"
	rec, err := record.Decode(line)
	require.NoError(t, err)
	require.NoError(t, s.Append(rec))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2, "expected header plus exactly one row")
	assert.Equal(t, strings.Join(record.Header, ","), lines[0])
	assert.Equal(t, line, lines[1])
}

func TestAppend_ConcurrentWritersProduceIntactRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whc_data.csv")
	s, err := Open(path, nil)
	require.NoError(t, err)

	const writers = 16
	const perWriter = 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				rec := record.New(time.Now(), fmt.Sprintf("rpi%02d", id),
					record.Orientation{Roll: float64(j)},
					record.Vec3{X: float64(id)},
					record.Vec3{Z: 1})
				assert.NoError(t, s.Append(rec))
			}
		}(i)
	}
	wg.Wait()

	rows := readRows(t, path)
	require.Len(t, rows, writers*perWriter+1)
	for i, row := range rows {
		assert.Len(t, row, record.FieldCount, "row %d is corrupted", i)
	}
}
