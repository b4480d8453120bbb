package runlog

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "project,date,image_type,clusters,cropped,normalized,algorithm,cost"

func entry(clusters string, cost string) Entry {
	return Entry{
		Project:   "forest",
		Date:      "2020_05_17",
		ImageType: "NDVI",
		Clusters:  clusters,
		Cropped:   true,
		Algorithm: "kmeans",
		Cost:      cost,
	}
}

func lines(t *testing.T, path string) []string {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestAppendWritesHeaderOnce(t *testing.T) {
	l := New(t.TempDir())

	require.NoError(t, l.Append(entry("3", "12.5")))
	require.NoError(t, l.Append(entry("4", "8.25"), entry("5", "failed")))

	got := lines(t, l.Path("forest"))
	assert.Equal(t, []string{
		header,
		"forest,2020_05_17,NDVI,3,true,false,kmeans,12.5",
		"forest,2020_05_17,NDVI,4,true,false,kmeans,8.25",
		"forest,2020_05_17,NDVI,5,true,false,kmeans,failed",
	}, got)
}

func TestAppendToEmptyFileWritesHeader(t *testing.T) {
	l := New(t.TempDir())
	require.NoError(t, os.MkdirAll(strings.TrimSuffix(l.Path("forest"), FileName), 0755))
	require.NoError(t, os.WriteFile(l.Path("forest"), nil, 0644))

	require.NoError(t, l.Append(entry("3", "1")))
	assert.Equal(t, header, lines(t, l.Path("forest"))[0])
}

func TestAppendHistogramCompanion(t *testing.T) {
	l := New(t.TempDir())
	e := entry("3", "12.5")
	e.Histogram = []Bucket{{Label: 1, Count: 10}, {Label: 0, Count: 4}}
	require.NoError(t, l.Append(e))

	assert.Equal(t, header, lines(t, l.Path("forest"))[0])

	rows, err := l.ReadHistogram("forest")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Label)
	assert.Equal(t, 10, rows[0].Count)
	assert.Equal(t, "NDVI", rows[1].ImageType)
	assert.Equal(t, 4, rows[1].Count)
}

func TestAppendSplitsProjects(t *testing.T) {
	l := New(t.TempDir())
	other := entry("2", "1")
	other.Project = "savanna"
	require.NoError(t, l.Append(entry("3", "1"), other))

	forest, err := l.Read("forest")
	require.NoError(t, err)
	savanna, err := l.Read("savanna")
	require.NoError(t, err)
	assert.Len(t, forest, 1)
	assert.Len(t, savanna, 1)
	assert.Equal(t, "savanna", savanna[0].Project)
}

func TestReadMissingLog(t *testing.T) {
	l := New(t.TempDir())
	entries, err := l.Read("nowhere")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadAcceptsCapitalizedBooleans(t *testing.T) {
	l := New(t.TempDir())
	require.NoError(t, os.MkdirAll(strings.TrimSuffix(l.Path("forest"), FileName), 0755))
	content := header + "\nforest,2020_05_17,RGB,7,True,False,kmeans,101.5\n"
	require.NoError(t, os.WriteFile(l.Path("forest"), []byte(content), 0644))

	entries, err := l.Read("forest")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Cropped)
	assert.False(t, entries[0].Normalized)
	assert.Equal(t, "101.5", entries[0].Cost)
}

func TestConcurrentAppends(t *testing.T) {
	l := New(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.Append(entry(fmt.Sprint(i), "1")))
		}(i)
	}
	wg.Wait()

	got := lines(t, l.Path("forest"))
	assert.Equal(t, header, got[0])
	assert.Len(t, got, 21)

	entries, err := l.Read("forest")
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}
