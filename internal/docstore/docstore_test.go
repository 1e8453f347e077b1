package docstore

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/report"
	"github.com/anstrom/scanvault/internal/storage"
)

func sampleResult() report.ScanResult {
	started := time.Date(2020, 4, 21, 14, 35, 12, 0, time.UTC)
	open := report.PortOpen
	version := "2012.55"
	return report.ScanResult{
		Scanner:        "nmap",
		ScannerVersion: "7.80",
		Started:        &started,
		Hosts: []report.Host{
			{
				State:     report.HostUp,
				Addresses: []netip.Addr{netip.MustParseAddr("219.70.91.9")},
				Hostnames: []report.Hostname{{Name: "219-70-91-9.hyabd.com.tw", Type: "PTR"}},
				Ports: []report.Port{{
					Number: 22, Transport: report.TCP, State: &open,
					Service: &report.Service{Name: "ssh", Version: &version},
				}},
			},
			{State: report.HostDown, Addresses: []netip.Addr{}},
		},
	}
}

func TestStore_InsertScan(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("hosts then scan", func(mt *mtest.T) {
		store := New(mt.Client, "scanvault")
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())

		id, err := store.InsertScan(context.Background(), sampleResult())
		require.NoError(t, err)
		assert.True(t, primitive.IsValidObjectID(id))

		hostInsert := mt.GetStartedEvent()
		require.NotNil(t, hostInsert)
		assert.Equal(t, "insert", hostInsert.CommandName)
		assert.Equal(t, hostCollection, hostInsert.Command.Lookup("insert").StringValue())

		scanInsert := mt.GetStartedEvent()
		require.NotNil(t, scanInsert)
		assert.Equal(t, scanCollection, scanInsert.Command.Lookup("insert").StringValue())
	})

	mt.Run("no hosts skips host insert", func(mt *mtest.T) {
		store := New(mt.Client, "scanvault")
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		_, err := store.InsertScan(context.Background(), report.ScanResult{Scanner: "nmap", Hosts: []report.Host{}})
		require.NoError(t, err)

		event := mt.GetStartedEvent()
		require.NotNil(t, event)
		assert.Equal(t, scanCollection, event.Command.Lookup("insert").StringValue())
		assert.Nil(t, mt.GetStartedEvent())
	})

	mt.Run("failed scan insert removes hosts", func(mt *mtest.T) {
		store := New(mt.Client, "scanvault")
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}),
			mtest.CreateSuccessResponse(),
		)

		_, err := store.InsertScan(context.Background(), sampleResult())
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeConflict))

		mt.GetStartedEvent()
		mt.GetStartedEvent()
		cleanup := mt.GetStartedEvent()
		require.NotNil(t, cleanup)
		assert.Equal(t, "delete", cleanup.CommandName)
	})
}

func TestStore_ListScans(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("page", func(mt *mtest.T) {
		store := New(mt.Client, "scanvault")
		oid := primitive.NewObjectID()
		started := time.Date(2020, 4, 21, 14, 35, 12, 0, time.UTC)

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "scanvault.scan", mtest.FirstBatch, bson.D{{Key: "n", Value: int32(3)}}),
			mtest.CreateCursorResponse(0, "scanvault.scan", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: oid},
				{Key: "scanner", Value: "nmap"},
				{Key: "scanner_version", Value: "7.80"},
				{Key: "command_line", Value: "nmap -A x"},
				{Key: "started", Value: primitive.NewDateTimeFromTime(started)},
				{Key: "completed", Value: nil},
				{Key: "host_count", Value: int32(27)},
			}),
		)

		page, err := store.ListScans(context.Background(), storage.PageRequest{PageNumber: 1, ItemsPerPage: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.TotalCount)
		require.Len(t, page.Items, 1)

		item := page.Items[0]
		assert.Equal(t, oid.Hex(), item.ID)
		assert.Equal(t, "nmap -A x", *item.CommandLine)
		assert.Equal(t, started, *item.Started)
		assert.Nil(t, item.Completed)
		assert.Equal(t, 27, item.HostCount)

		mt.GetStartedEvent()
		find := mt.GetStartedEvent()
		require.NotNil(t, find)
		assert.Equal(t, "find", find.CommandName)
		assert.Equal(t, int64(2), find.Command.Lookup("skip").AsInt64())
		assert.Equal(t, int64(2), find.Command.Lookup("limit").AsInt64())
	})

	mt.Run("invalid sort column", func(mt *mtest.T) {
		store := New(mt.Client, "scanvault")
		_, err := store.ListScans(context.Background(), storage.PageRequest{SortColumn: "$where"})
		assert.True(t, errors.IsCode(err, errors.CodeValidation))
		assert.Nil(t, mt.GetStartedEvent())
	})
}

func TestStore_GetScan(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("not found", func(mt *mtest.T) {
		store := New(mt.Client, "scanvault")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "scanvault.scan", mtest.FirstBatch))

		_, err := store.GetScan(context.Background(), primitive.NewObjectID().Hex())
		assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	})

	mt.Run("malformed id", func(mt *mtest.T) {
		store := New(mt.Client, "scanvault")
		_, err := store.GetScan(context.Background(), "not-an-id")
		assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	})
}

func TestStore_GetHost(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("detail", func(mt *mtest.T) {
		store := New(mt.Client, "scanvault")
		hostID := primitive.NewObjectID()
		scanID := primitive.NewObjectID()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, "scanvault.host", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: hostID},
			{Key: "scan_id", Value: scanID},
			{Key: "state", Value: "UP"},
			{Key: "state_reason", Value: "conn-refused"},
			{Key: "addresses", Value: bson.A{"219.70.91.9"}},
			{Key: "hostnames", Value: bson.A{bson.D{{Key: "name", Value: "219-70-91-9.hyabd.com.tw"}, {Key: "type", Value: "PTR"}}}},
			{Key: "ports", Value: bson.A{bson.D{
				{Key: "number", Value: int32(19)},
				{Key: "transport", Value: "TCP"},
				{Key: "state", Value: "FILTERED"},
				{Key: "state_reason", Value: "host-unreach"},
				{Key: "service", Value: bson.D{{Key: "name", Value: "chargen"}}},
			}}},
			{Key: "os", Value: bson.A{bson.D{{Key: "name", Value: "Linux 2.6.32 - 3.10"}, {Key: "accuracy", Value: int32(93)}}}},
		}))

		host, err := store.GetHost(context.Background(), hostID.Hex())
		require.NoError(t, err)
		assert.Equal(t, hostID.Hex(), host.ID)
		assert.Equal(t, scanID.Hex(), host.ScanID)
		assert.Equal(t, report.HostUp, host.State)
		assert.Equal(t, []netip.Addr{netip.MustParseAddr("219.70.91.9")}, host.Addresses)
		assert.Equal(t, []report.Hostname{{Name: "219-70-91-9.hyabd.com.tw", Type: "PTR"}}, host.Hostnames)
		require.Len(t, host.Ports, 1)
		assert.Equal(t, report.PortFiltered, *host.Ports[0].State)
		assert.Equal(t, "chargen", host.Ports[0].Service.Name)
		assert.Nil(t, host.Ports[0].Service.Product)
		assert.Equal(t, []report.OSMatch{{Name: "Linux 2.6.32 - 3.10", Accuracy: 93}}, host.OS)
	})

	mt.Run("bad stored state", func(mt *mtest.T) {
		store := New(mt.Client, "scanvault")
		hostID := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "scanvault.host", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: hostID},
			{Key: "state", Value: "paused"},
		}))

		_, err := store.GetHost(context.Background(), hostID.Hex())
		assert.True(t, errors.IsCode(err, errors.CodeDatabaseQuery))
	})
}

func TestDocRoundTrip(t *testing.T) {
	result := sampleResult()
	doc := newHostDoc(primitive.NewObjectID(), &result.Hosts[0])

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var decoded hostDoc
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	detail, err := decoded.detail()
	require.NoError(t, err)
	assert.Equal(t, result.Hosts[0].Ports, detail.Ports)
	assert.Equal(t, result.Hosts[0].Addresses, detail.Addresses)
	assert.Equal(t, result.Hosts[0].Hostnames, detail.Hostnames)
}
