package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/report"
	"github.com/anstrom/scanvault/internal/storage/mocks"
	"github.com/anstrom/scanvault/internal/workers"
)

type fakeArchive struct {
	stored map[string][]byte
	err    error
}

func (a *fakeArchive) Put(_ context.Context, scanID string, document []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.stored == nil {
		a.stored = map[string][]byte{}
	}
	a.stored[scanID] = document
	return "reports/" + scanID + ".xml", nil
}

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "report", "testdata", "test-scan.xml"))
	require.NoError(t, err)
	return data
}

func newPool(t *testing.T) *workers.Pool {
	t.Helper()
	pool := workers.New(workers.Config{Size: 2, QueueSize: 4, ShutdownTimeout: time.Second})
	pool.Start()
	t.Cleanup(func() { _ = pool.Shutdown() })
	return pool
}

const minimalReport = `<?xml version="1.0"?>
<nmaprun scanner="nmap" version="7.80" args="nmap -p22 10.0.0.1" start="1587479712">
<host><status state="up" reason="syn-ack"/><address addr="10.0.0.1" addrtype="ipv4"/>
<ports><port protocol="tcp" portid="22"><state state="open" reason="syn-ack"/><service name="ssh"/></port></ports>
</host>
</nmaprun>`

func TestIngestService_Ingest(t *testing.T) {
	ctx := context.Background()

	t.Run("stores and archives the fixture", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		archive := &fakeArchive{}
		svc := NewIngestService(store, newPool(t), archive, DefaultConfig())
		document := loadFixture(t)

		store.EXPECT().InsertScan(ctx, gomock.Any()).DoAndReturn(
			func(_ context.Context, result report.ScanResult) (string, error) {
				assert.Equal(t, "nmap", result.Scanner)
				assert.Len(t, result.Hosts, 27)
				return "scan-1", nil
			})

		outcome, err := svc.Ingest(ctx, SourceAPI, document)
		require.NoError(t, err)
		assert.Equal(t, "scan-1", outcome.ScanID)
		assert.Equal(t, 27, outcome.Hosts)
		assert.Equal(t, "reports/scan-1.xml", outcome.ArchiveKey)
		assert.Equal(t, document, archive.stored["scan-1"])
	})

	t.Run("archive failure keeps the stored scan", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		archive := &fakeArchive{err: errors.NewServiceError(errors.CodeServiceUnavailable, "archive", "down")}
		svc := NewIngestService(store, newPool(t), archive, DefaultConfig())

		store.EXPECT().InsertScan(ctx, gomock.Any()).Return("scan-2", nil)

		outcome, err := svc.Ingest(ctx, SourceSpool, []byte(minimalReport))
		require.NoError(t, err)
		assert.Equal(t, 1, outcome.Ports)
		assert.Empty(t, outcome.ArchiveKey)
	})

	t.Run("parse errors never reach the store", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		svc := NewIngestService(store, newPool(t), nil, DefaultConfig())

		bad := strings.Replace(minimalReport, `state="up"`, `state="paused"`, 1)
		_, err := svc.Ingest(ctx, SourceAPI, []byte(bad))
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidEnum))
		assert.Contains(t, err.Error(), "paused")
	})

	t.Run("store errors are returned", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockStore(ctrl)
		svc := NewIngestService(store, newPool(t), nil, DefaultConfig())

		store.EXPECT().InsertScan(ctx, gomock.Any()).
			Return("", errors.ErrDatabaseConnection(fmt.Errorf("refused")))

		_, err := svc.Ingest(ctx, SourceRPC, []byte(minimalReport))
		assert.True(t, errors.IsCode(err, errors.CodeDatabaseConnection))
	})

	t.Run("document without run header", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := NewIngestService(mocks.NewMockStore(ctrl), newPool(t), nil, DefaultConfig())

		_, err := svc.Ingest(ctx, SourceAPI, []byte(`<?xml version="1.0"?><other/>`))
		assert.True(t, errors.IsCode(err, errors.CodeNoScan))
	})
}

func TestIngestService_SizeLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	cfg := DefaultConfig()
	cfg.MaxDocumentBytes = 64
	svc := NewIngestService(mocks.NewMockStore(ctrl), newPool(t), nil, cfg)

	_, err := svc.Ingest(context.Background(), SourceAPI, []byte(minimalReport))
	assert.True(t, errors.IsCode(err, errors.CodeDocumentTooLarge))

	_, err = svc.IngestReader(context.Background(), SourceAPI, bytes.NewReader([]byte(minimalReport)))
	assert.True(t, errors.IsCode(err, errors.CodeDocumentTooLarge))
}

func TestIngestService_IngestReader(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	svc := NewIngestService(store, newPool(t), nil, DefaultConfig())

	store.EXPECT().InsertScan(gomock.Any(), gomock.Any()).Return("scan-3", nil)

	outcome, err := svc.IngestReader(context.Background(), SourceCLI, strings.NewReader(minimalReport))
	require.NoError(t, err)
	assert.Equal(t, "scan-3", outcome.ScanID)
}

func TestIngestService_Parse(t *testing.T) {
	ctrl := gomock.NewController(t)

	t.Run("chunk size does not change the result", func(t *testing.T) {
		document := loadFixture(t)
		want, err := report.ParseAndLoad(document)
		require.NoError(t, err)

		for _, chunk := range []int{1, 7, 4096} {
			cfg := DefaultConfig()
			cfg.ChunkSize = chunk
			svc := NewIngestService(mocks.NewMockStore(ctrl), newPool(t), nil, cfg)

			got, err := svc.Parse(context.Background(), document)
			require.NoError(t, err)
			assert.Equal(t, want, got, "chunk size %d", chunk)
		}
	})

	t.Run("canceled context", func(t *testing.T) {
		svc := NewIngestService(mocks.NewMockStore(ctrl), newPool(t), nil, DefaultConfig())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := svc.Parse(ctx, []byte(minimalReport))
		if err != nil {
			assert.True(t, errors.IsCode(err, errors.CodeCanceled))
		}
	})

	t.Run("closed pool", func(t *testing.T) {
		pool := workers.New(workers.Config{Size: 1, QueueSize: 1, ShutdownTimeout: time.Second})
		require.NoError(t, pool.Shutdown())
		svc := NewIngestService(mocks.NewMockStore(ctrl), pool, nil, DefaultConfig())

		_, err := svc.Parse(context.Background(), []byte(minimalReport))
		assert.True(t, errors.IsCode(err, errors.CodeServiceUnavailable))
	})
}
