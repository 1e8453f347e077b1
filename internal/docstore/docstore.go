// Package docstore keeps scan results in MongoDB. Hosts go to the "host"
// collection and each scan document lists the ids of its hosts.
package docstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/netip"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/logging"
	"github.com/anstrom/scanvault/internal/report"
	"github.com/anstrom/scanvault/internal/storage"
)

const (
	scanCollection = "scan"
	hostCollection = "host"
)

// Config holds MongoDB connection settings.
type Config struct {
	URI      string        `yaml:"uri" json:"uri"`
	Database string        `yaml:"database" json:"database"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns a local MongoDB configuration.
func DefaultConfig() Config {
	return Config{
		URI:      "mongodb://localhost:27017",
		Database: "scanvault",
		Timeout:  10 * time.Second,
	}
}

// Store implements storage.Store on MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ storage.Store = (*Store)(nil)

// Connect opens a client and verifies it with a ping against the primary.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	opts := options.Client().ApplyURI(cfg.URI).SetServerSelectionTimeout(cfg.Timeout)
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, errors.ErrDatabaseConnection(err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseConnection, "Failed to verify database connection", err)
	}

	logging.InfoDatabase("Connected to MongoDB", "database", cfg.Database)
	return New(client, cfg.Database), nil
}

// New wraps a connected client.
func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

type hostnameDoc struct {
	Name string `bson:"name"`
	Type string `bson:"type,omitempty"`
}

type serviceDoc struct {
	Name       string   `bson:"name"`
	Product    *string  `bson:"product"`
	Version    *string  `bson:"version"`
	ExtraInfo  *string  `bson:"extra_info,omitempty"`
	Method     *string  `bson:"method"`
	Confidence *int     `bson:"confidence"`
	CPEs       []string `bson:"cpes"`
}

type portDoc struct {
	Number      int                          `bson:"number"`
	Transport   string                       `bson:"transport"`
	State       *string                      `bson:"state"`
	StateReason string                       `bson:"state_reason"`
	Service     *serviceDoc                  `bson:"service"`
	Scripts     map[string]map[string]string `bson:"scripts,omitempty"`
}

type osDoc struct {
	Name     string   `bson:"name"`
	Accuracy int      `bson:"accuracy"`
	CPEs     []string `bson:"cpes,omitempty"`
}

type hostDoc struct {
	ID          primitive.ObjectID           `bson:"_id"`
	ScanID      primitive.ObjectID           `bson:"scan_id"`
	Started     *time.Time                   `bson:"started"`
	Completed   *time.Time                   `bson:"completed"`
	State       string                       `bson:"state"`
	StateReason string                       `bson:"state_reason"`
	Addresses   []string                     `bson:"addresses"`
	Hostnames   []hostnameDoc                `bson:"hostnames"`
	Ports       []portDoc                    `bson:"ports"`
	Scripts     map[string]map[string]string `bson:"scripts,omitempty"`
	OS          []osDoc                      `bson:"os,omitempty"`
}

type scanDoc struct {
	ID             primitive.ObjectID   `bson:"_id"`
	Scanner        string               `bson:"scanner"`
	ScannerVersion string               `bson:"scanner_version"`
	CommandLine    *string              `bson:"command_line"`
	Started        *time.Time           `bson:"started"`
	Completed      *time.Time           `bson:"completed"`
	Hosts          []primitive.ObjectID `bson:"hosts"`
	HostCount      int                  `bson:"host_count"`
}

// InsertScan writes all hosts, then the scan document referencing them.
// If the scan document cannot be written the hosts are removed again.
func (s *Store) InsertScan(ctx context.Context, result report.ScanResult) (string, error) {
	scanID := primitive.NewObjectID()
	scan := scanDoc{
		ID:             scanID,
		Scanner:        result.Scanner,
		ScannerVersion: result.ScannerVersion,
		CommandLine:    result.CommandLine,
		Started:        result.Started,
		Completed:      result.Completed,
		Hosts:          make([]primitive.ObjectID, 0, len(result.Hosts)),
		HostCount:      len(result.Hosts),
	}

	if len(result.Hosts) > 0 {
		docs := make([]interface{}, 0, len(result.Hosts))
		for i := range result.Hosts {
			doc := newHostDoc(scanID, &result.Hosts[i])
			scan.Hosts = append(scan.Hosts, doc.ID)
			docs = append(docs, doc)
		}
		if _, err := s.db.Collection(hostCollection).InsertMany(ctx, docs); err != nil {
			return "", sanitizeMongoError("insert hosts", err)
		}
	}

	if _, err := s.db.Collection(scanCollection).InsertOne(ctx, scan); err != nil {
		if len(scan.Hosts) > 0 {
			filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: scan.Hosts}}}}
			if _, delErr := s.db.Collection(hostCollection).DeleteMany(context.Background(), filter); delErr != nil {
				logging.ErrorDatabase("Failed to remove hosts of unsaved scan", delErr, "scan_id", scanID.Hex())
			}
		}
		return "", sanitizeMongoError("insert scan", err)
	}
	return scanID.Hex(), nil
}

// ListScans returns one page of scans.
func (s *Store) ListScans(ctx context.Context, page storage.PageRequest) (storage.PageResult[storage.ScanSummary], error) {
	var result storage.PageResult[storage.ScanSummary]
	page = page.Normalize()
	if err := page.Validate(storage.ScanSortColumns); err != nil {
		return result, err
	}

	coll := s.db.Collection(scanCollection)
	total, err := coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return result, sanitizeMongoError("count scans", err)
	}
	result.TotalCount = total

	opts := pageOptions(page).SetProjection(bson.D{{Key: "hosts", Value: 0}})
	cursor, err := coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return result, sanitizeMongoError("list scans", err)
	}
	var docs []scanDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return result, sanitizeMongoError("list scans", err)
	}

	result.Items = make([]storage.ScanSummary, 0, len(docs))
	for i := range docs {
		result.Items = append(result.Items, docs[i].summary())
	}
	return result, nil
}

// GetScan returns a single scan.
func (s *Store) GetScan(ctx context.Context, id string) (*storage.ScanSummary, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.ErrNotFound("scan", id)
	}

	var doc scanDoc
	opts := options.FindOne().SetProjection(bson.D{{Key: "hosts", Value: 0}})
	err = s.db.Collection(scanCollection).FindOne(ctx, bson.D{{Key: "_id", Value: oid}}, opts).Decode(&doc)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.ErrNotFound("scan", id)
	}
	if err != nil {
		return nil, sanitizeMongoError("get scan", err)
	}

	summary := doc.summary()
	return &summary, nil
}

// ListHosts returns one page of hosts over all scans.
func (s *Store) ListHosts(ctx context.Context, page storage.PageRequest) (storage.PageResult[storage.HostSummary], error) {
	var result storage.PageResult[storage.HostSummary]
	page = page.Normalize()
	if err := page.Validate(storage.HostSortColumns); err != nil {
		return result, err
	}

	coll := s.db.Collection(hostCollection)
	total, err := coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return result, sanitizeMongoError("count hosts", err)
	}
	result.TotalCount = total

	opts := pageOptions(page).SetProjection(bson.D{
		{Key: "ports", Value: 0}, {Key: "scripts", Value: 0}, {Key: "os", Value: 0},
	})
	cursor, err := coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return result, sanitizeMongoError("list hosts", err)
	}
	var docs []hostDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return result, sanitizeMongoError("list hosts", err)
	}

	result.Items = make([]storage.HostSummary, 0, len(docs))
	for i := range docs {
		summary, err := docs[i].summary()
		if err != nil {
			return result, errors.WrapDatabaseError(errors.CodeDatabaseQuery, "failed to decode host", err)
		}
		result.Items = append(result.Items, summary)
	}
	return result, nil
}

// GetHost returns a host with its ports, scripts and OS matches.
func (s *Store) GetHost(ctx context.Context, id string) (*storage.HostDetail, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.ErrNotFound("host", id)
	}

	var doc hostDoc
	err = s.db.Collection(hostCollection).FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.ErrNotFound("host", id)
	}
	if err != nil {
		return nil, sanitizeMongoError("get host", err)
	}

	detail, err := doc.detail()
	if err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseQuery, "failed to decode host", err)
	}
	return detail, nil
}

// Ping checks that the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return errors.WrapDatabaseError(errors.CodeDatabaseConnection, "MongoDB is unreachable", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func pageOptions(page storage.PageRequest) *options.FindOptions {
	dir := -1
	if page.SortAscending {
		dir = 1
	}
	return options.Find().
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.ItemsPerPage)).
		SetSort(bson.D{{Key: page.SortColumn, Value: dir}, {Key: "_id", Value: 1}})
}

func sanitizeMongoError(operation string, err error) error {
	code := errors.CodeDatabaseQuery
	switch {
	case mongo.IsDuplicateKeyError(err):
		code = errors.CodeConflict
	case mongo.IsTimeout(err), stderrors.Is(err, context.DeadlineExceeded):
		code = errors.CodeDatabaseTimeout
	case mongo.IsNetworkError(err):
		code = errors.CodeDatabaseConnection
	}
	dbErr := errors.WrapDatabaseError(code, fmt.Sprintf("Database operation failed: %s", operation), err)
	dbErr.Operation = operation
	return dbErr
}

func newHostDoc(scanID primitive.ObjectID, h *report.Host) hostDoc {
	doc := hostDoc{
		ID:          primitive.NewObjectID(),
		ScanID:      scanID,
		Started:     h.Started,
		Completed:   h.Completed,
		State:       h.State.String(),
		StateReason: h.StateReason,
		Addresses:   make([]string, 0, len(h.Addresses)),
		Hostnames:   make([]hostnameDoc, 0, len(h.Hostnames)),
		Ports:       make([]portDoc, 0, len(h.Ports)),
		Scripts:     h.Scripts,
	}
	for _, a := range h.Addresses {
		doc.Addresses = append(doc.Addresses, a.String())
	}
	for _, hn := range h.Hostnames {
		doc.Hostnames = append(doc.Hostnames, hostnameDoc(hn))
	}
	for i := range h.Ports {
		doc.Ports = append(doc.Ports, newPortDoc(&h.Ports[i]))
	}
	for _, m := range h.OS {
		doc.OS = append(doc.OS, osDoc(m))
	}
	return doc
}

func newPortDoc(p *report.Port) portDoc {
	doc := portDoc{
		Number:      int(p.Number),
		Transport:   p.Transport.String(),
		StateReason: p.StateReason,
		Scripts:     p.Scripts,
	}
	if p.State != nil {
		state := p.State.String()
		doc.State = &state
	}
	if svc := p.Service; svc != nil {
		doc.Service = &serviceDoc{
			Name:       svc.Name,
			Product:    svc.Product,
			Version:    svc.Version,
			ExtraInfo:  svc.ExtraInfo,
			Method:     svc.Method,
			Confidence: svc.Confidence,
			CPEs:       svc.CPEs,
		}
	}
	return doc
}

func (d *scanDoc) summary() storage.ScanSummary {
	return storage.ScanSummary{
		ID:             d.ID.Hex(),
		Scanner:        d.Scanner,
		ScannerVersion: d.ScannerVersion,
		CommandLine:    d.CommandLine,
		Started:        utcPtr(d.Started),
		Completed:      utcPtr(d.Completed),
		HostCount:      d.HostCount,
	}
}

func (d *hostDoc) summary() (storage.HostSummary, error) {
	s := storage.HostSummary{
		ID:          d.ID.Hex(),
		ScanID:      d.ScanID.Hex(),
		Started:     utcPtr(d.Started),
		Completed:   utcPtr(d.Completed),
		StateReason: d.StateReason,
		Addresses:   make([]netip.Addr, 0, len(d.Addresses)),
		Hostnames:   make([]report.Hostname, 0, len(d.Hostnames)),
	}
	if err := s.State.UnmarshalText([]byte(d.State)); err != nil {
		return s, err
	}
	for _, raw := range d.Addresses {
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return s, fmt.Errorf("stored address %q: %w", raw, err)
		}
		s.Addresses = append(s.Addresses, addr)
	}
	for _, hn := range d.Hostnames {
		s.Hostnames = append(s.Hostnames, report.Hostname(hn))
	}
	return s, nil
}

func (d *hostDoc) detail() (*storage.HostDetail, error) {
	summary, err := d.summary()
	if err != nil {
		return nil, err
	}
	detail := &storage.HostDetail{
		HostSummary: summary,
		Ports:       make([]storage.PortDetail, 0, len(d.Ports)),
		Scripts:     d.Scripts,
	}
	for _, m := range d.OS {
		detail.OS = append(detail.OS, report.OSMatch(m))
	}
	for i := range d.Ports {
		port, err := d.Ports[i].port()
		if err != nil {
			return nil, err
		}
		detail.Ports = append(detail.Ports, port)
	}
	return detail, nil
}

func (d *portDoc) port() (storage.PortDetail, error) {
	p := storage.PortDetail{
		Number:      uint16(d.Number),
		StateReason: d.StateReason,
		Scripts:     d.Scripts,
	}
	if err := p.Transport.UnmarshalText([]byte(d.Transport)); err != nil {
		return p, err
	}
	if d.State != nil {
		var state report.PortState
		if err := state.UnmarshalText([]byte(*d.State)); err != nil {
			return p, err
		}
		p.State = &state
	}
	if svc := d.Service; svc != nil {
		p.Service = &report.Service{
			Name:       svc.Name,
			Product:    svc.Product,
			Version:    svc.Version,
			ExtraInfo:  svc.ExtraInfo,
			Method:     svc.Method,
			Confidence: svc.Confidence,
			CPEs:       svc.CPEs,
		}
	}
	return p, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
