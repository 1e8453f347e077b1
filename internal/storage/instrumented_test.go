package storage_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/metrics"
	"github.com/anstrom/scanvault/internal/report"
	"github.com/anstrom/scanvault/internal/storage"
	"github.com/anstrom/scanvault/internal/storage/mocks"
)

func TestInstrumented(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := mocks.NewMockStore(ctrl)
	m := metrics.NewPrometheusMetrics()
	store := storage.WithMetrics(mock, "postgres", m)
	ctx := context.Background()

	mock.EXPECT().InsertScan(ctx, gomock.Any()).Return("scan-1", nil)
	mock.EXPECT().GetScan(ctx, "missing").Return(nil, errors.ErrNotFound("scan", "missing"))
	mock.EXPECT().ListHosts(ctx, storage.PageRequest{ItemsPerPage: 10}).
		Return(storage.PageResult[storage.HostSummary]{TotalCount: 1, Items: []storage.HostSummary{{ID: "h"}}}, nil)
	mock.EXPECT().Close().Return(nil)

	id, err := store.InsertScan(ctx, report.ScanResult{Scanner: "nmap"})
	require.NoError(t, err)
	assert.Equal(t, "scan-1", id)

	_, err = store.GetScan(ctx, "missing")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	page, err := store.ListHosts(ctx, storage.PageRequest{ItemsPerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.TotalCount)

	require.NoError(t, store.Close())

	count, err := testutil.GatherAndCount(m.GetRegistry(), "scanvault_storage_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
