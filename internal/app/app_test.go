package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"regwatch/internal/config"
	"regwatch/internal/logger"
	"regwatch/internal/sources"
)

func writeSources(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.csv")
	body := "source_id,source_name,url,source_type,category,frequency,priority,enabled,notes\n" +
		strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func testConfig(t *testing.T, sourcesPath string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Paths: config.PathConfig{
			SourceExcel: sourcesPath,
			RawData:     t.TempDir(),
			Logs:        filepath.Join(t.TempDir(), "regwatch.log"),
		},
	}
	cfg.SetDefaults()
	// Keep the test fast; the validated minimum only applies to settings files.
	cfg.Scraper.DelayMS = 1
	cfg.Scraper.RequestTimeout = 5
	return cfg
}

func newTestApp(cfg *config.Config, log logger.Logger, history HistoryRecorder) *SpiderApp {
	a := NewSpiderApp(cfg, log, history)
	a.now = fixedClock
	return a
}

func TestSpiderApp_RunEndToEnd(t *testing.T) {
	srv := regulatorSite(t, "")
	path := writeSources(t,
		"1,RBI Circulars,"+srv.URL+"/circulars,REGULATOR,CIRCULAR,DAILY,HIGH,true,",
		"2,SEBI Press,"+srv.URL+"/missing,REGULATOR,PRESS,DAILY,MEDIUM,true,",
		"3,ET,"+srv.URL+"/circulars,NEWS,NEWS,DAILY,LOW,true,",
		"4,ET Banking,"+srv.URL+"/circulars,NEWS,NEWS,WEEKLY,LOW,false,",
	)
	cfg := testConfig(t, path)
	history := &recordedHistory{}

	core, logs := observer.New(zapcore.InfoLevel)
	summary, err := newTestApp(cfg, logger.FromZap(zap.New(core)), history).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 4, summary.RowsSeen)
	assert.Equal(t, 2, summary.Loaded)
	assert.Equal(t, 1, summary.Invalid, "name shorter than three characters")
	assert.Equal(t, 1, summary.Disabled)
	assert.Equal(t, 1, summary.Fetched)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Stored)

	assert.FileExists(t, filepath.Join(cfg.Paths.RawData, "RBI_Circulars", "2024-01-15_10-30-45.txt"))
	assert.Len(t, history.bySource(), 2)

	started := logs.FilterMessage("Starting monitoring run").All()
	require.Len(t, started, 1)
	assert.Equal(t, cfg.Paths.RawData, started[0].ContextMap()["raw_data"])
	assert.Equal(t, true, started[0].ContextMap()["obey_robots"])

	done := logs.FilterMessage("Run complete").All()
	require.Len(t, done, 1)
	ctx := done[0].ContextMap()
	assert.Equal(t, summary.RunID, ctx["run_id"])
	assert.EqualValues(t, 1, ctx["stored"])
}

func TestSpiderApp_ValidateOnlyFetchesNothing(t *testing.T) {
	srv := regulatorSite(t, "")
	path := writeSources(t, "1,RBI Circulars,"+srv.URL+"/circulars,REGULATOR,CIRCULAR,DAILY,HIGH,true,")
	cfg := testConfig(t, path)

	summary, err := newTestApp(cfg, logger.NewNop(), nil).Run(context.Background(), RunOptions{ValidateOnly: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Loaded)
	assert.Zero(t, summary.Fetched)
	entries, err := os.ReadDir(cfg.Paths.RawData)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSpiderApp_FrequencyFilterAndOverride(t *testing.T) {
	srv := regulatorSite(t, "")
	path := writeSources(t,
		"1,RBI Circulars,"+srv.URL+"/circulars,REGULATOR,CIRCULAR,DAILY,HIGH,true,",
		"2,Weekly Digest,"+srv.URL+"/circulars,NEWS,NEWS,WEEKLY,LOW,true,",
	)
	cfg := testConfig(t, filepath.Join(t.TempDir(), "does-not-exist.xlsx"))

	summary, err := newTestApp(cfg, logger.NewNop(), nil).Run(context.Background(), RunOptions{
		SourcesPath: path,
		Frequency:   "weekly",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.RowsSeen)
	assert.Equal(t, 1, summary.Loaded)
	assert.Equal(t, 1, summary.Stored)
	assert.DirExists(t, filepath.Join(cfg.Paths.RawData, "Weekly_Digest"))
	assert.NoDirExists(t, filepath.Join(cfg.Paths.RawData, "RBI_Circulars"))
}

func TestSpiderApp_InvalidFrequencyFilter(t *testing.T) {
	path := writeSources(t, "1,RBI Circulars,https://rbi.org.in,REGULATOR,CIRCULAR,DAILY,HIGH,true,")

	_, err := newTestApp(testConfig(t, path), logger.NewNop(), nil).Run(context.Background(), RunOptions{Frequency: "hourly"})
	assert.Error(t, err)
}

func TestSpiderApp_MissingSourceFileIsFatal(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "sources.xlsx"))

	summary, err := newTestApp(cfg, logger.NewNop(), nil).Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.ErrorIs(t, err, sources.ErrSourceFileNotFound)
}

func TestSpiderApp_EmptySourceFileIsNotAnError(t *testing.T) {
	cfg := testConfig(t, writeSources(t))

	summary, err := newTestApp(cfg, logger.NewNop(), nil).Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, summary.Loaded)
	assert.Zero(t, summary.Stored)
}
