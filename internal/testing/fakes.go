package testing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/albedosehen/certvault/internal/certstore"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/events"
)

// FakeRepository is an in-memory certstore.Repository. It mirrors the MySQL
// repository's conflict and not-found behavior closely enough for unit tests
// of the layers above it. All methods are safe for concurrent use.
type FakeRepository struct {
	mu     sync.Mutex
	certs  map[string]*certstore.Certificate
	nextID int

	// Error injection. When set, the corresponding method fails with the
	// given error before touching state.
	UpsertErr error
	GetErr    error
	UpdateErr error
	ClaimErr  error
	PingErr   error
}

func NewFakeRepository() *FakeRepository {
	return &FakeRepository{certs: make(map[string]*certstore.Certificate)}
}

// Seed inserts a row directly, assigning an ID and timestamps when missing,
// and returns a copy of the stored row.
func (r *FakeRepository) Seed(cert certstore.Certificate) *certstore.Certificate {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cert.ID == "" {
		cert.ID = r.newID()
	}
	now := time.Now().UTC()
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = now
	}
	if cert.UpdatedAt.IsZero() {
		cert.UpdatedAt = now
	}
	stored := cert
	r.certs[cert.ID] = &stored

	out := stored
	return &out
}

// Get returns a copy of a stored row for assertions, or nil when absent.
func (r *FakeRepository) Get(id string) *certstore.Certificate {
	r.mu.Lock()
	defer r.mu.Unlock()

	cert, ok := r.certs[id]
	if !ok {
		return nil
	}
	out := *cert
	return &out
}

// Len returns the number of stored rows.
func (r *FakeRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.certs)
}

func (r *FakeRepository) newID() string {
	r.nextID++
	return fmt.Sprintf("fake-%04d", r.nextID)
}

func (r *FakeRepository) List(ctx context.Context, store certstore.Store, offset, limit int) (*certstore.Page, error) {
	if r.GetErr != nil {
		return nil, r.GetErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []certstore.Certificate
	for _, cert := range r.certs {
		if cert.Store == store {
			rows = append(rows, *cert)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Domain < rows[j].Domain })

	return pageOf(rows, offset, limit), nil
}

func (r *FakeRepository) Search(ctx context.Context, q certstore.SearchQuery) (*certstore.Page, error) {
	if r.GetErr != nil {
		return nil, r.GetErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	keyword := strings.ToLower(q.Keyword)
	var rows []certstore.Certificate
	for _, cert := range r.certs {
		if q.Store != nil && cert.Store != *q.Store {
			continue
		}
		if q.Source != nil && cert.Source != *q.Source {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(cert.Domain), keyword) &&
			!strings.Contains(strings.ToLower(cert.FolderName), keyword) {
			continue
		}
		rows = append(rows, *cert)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })

	return pageOf(rows, q.Offset, q.Limit), nil
}

func pageOf(rows []certstore.Certificate, offset, limit int) *certstore.Page {
	page := &certstore.Page{Total: int64(len(rows)), Offset: offset, Limit: limit, Items: []certstore.Certificate{}}
	if offset >= len(rows) {
		return page
	}
	end := offset + limit
	if limit <= 0 || end > len(rows) {
		end = len(rows)
	}
	page.Items = rows[offset:end]
	return page
}

func (r *FakeRepository) GetByID(ctx context.Context, id string) (*certstore.Certificate, error) {
	if r.GetErr != nil {
		return nil, r.GetErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cert, ok := r.certs[id]
	if !ok {
		return nil, vaulterrors.ErrCertificateNotFound
	}
	out := *cert
	return &out, nil
}

func (r *FakeRepository) GetByDomain(ctx context.Context, store certstore.Store, domain string) (*certstore.Certificate, error) {
	if r.GetErr != nil {
		return nil, r.GetErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cert := range r.certs {
		if cert.Store == store && cert.Domain == domain {
			out := *cert
			return &out, nil
		}
	}
	return nil, vaulterrors.ErrCertificateNotFound
}

func (r *FakeRepository) GetByFolderName(ctx context.Context, folderName string) (*certstore.Certificate, error) {
	if r.GetErr != nil {
		return nil, r.GetErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cert := r.byFolderLocked(folderName)
	if cert == nil {
		return nil, vaulterrors.ErrCertificateNotFound
	}
	out := *cert
	return &out, nil
}

// byFolderLocked looks a row up by folder name. Folderless rows are stored
// as NULL by the real repository and never match, so the empty name finds
// nothing here either.
func (r *FakeRepository) byFolderLocked(folderName string) *certstore.Certificate {
	if folderName == "" {
		return nil
	}
	for _, cert := range r.certs {
		if cert.FolderName == folderName {
			return cert
		}
	}
	return nil
}

func (r *FakeRepository) FindSibling(ctx context.Context, store certstore.Store, domain string, source certstore.Source) (*certstore.Certificate, error) {
	if r.GetErr != nil {
		return nil, r.GetErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cert := range r.certs {
		if cert.Store == store && cert.Domain == domain && cert.Source == source {
			out := *cert
			return &out, nil
		}
	}
	return nil, vaulterrors.ErrCertificateNotFound
}

func (r *FakeRepository) Upsert(ctx context.Context, in certstore.UpsertInput) (*certstore.Certificate, error) {
	if r.UpsertErr != nil {
		return nil, r.UpsertErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing := r.byFolderLocked(in.FolderName); existing != nil {
		applyUpsert(existing, in, false)
		existing.UpdatedAt = now
		out := *existing
		return &out, nil
	}

	cert := &certstore.Certificate{
		ID:        r.newID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyUpsert(cert, in, true)
	r.certs[cert.ID] = cert

	out := *cert
	return &out, nil
}

func (r *FakeRepository) UpsertSibling(ctx context.Context, in certstore.UpsertInput) (*certstore.Certificate, error) {
	if r.UpsertErr != nil {
		return nil, r.UpsertErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, cert := range r.certs {
		if cert.Store == in.Store && cert.Domain == in.Domain && cert.Source == in.Source {
			if owner := r.byFolderLocked(in.FolderName); owner != nil && owner.ID != cert.ID {
				return nil, vaulterrors.NewCertificateError(
					vaulterrors.ErrCodeDuplicateFolderName, in.Domain, nil)
			}
			applyUpsert(cert, in, false)
			cert.UpdatedAt = now
			out := *cert
			return &out, nil
		}
	}

	if existing := r.byFolderLocked(in.FolderName); existing != nil {
		return nil, vaulterrors.NewCertificateError(
			vaulterrors.ErrCodeDuplicateFolderName, in.Domain, nil)
	}

	cert := &certstore.Certificate{
		ID:        r.newID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyUpsert(cert, in, true)
	r.certs[cert.ID] = cert

	out := *cert
	return &out, nil
}

func applyUpsert(cert *certstore.Certificate, in certstore.UpsertInput, setSource bool) {
	cert.Store = in.Store
	cert.Domain = in.Domain
	cert.FolderName = in.FolderName
	if setSource {
		cert.Source = in.Source
	}
	cert.Status = in.Status
	if in.Email != "" {
		cert.Email = in.Email
	}
	cert.Certificate = in.Certificate
	cert.PrivateKey = in.PrivateKey
	cert.SANs = in.SANs
	cert.Issuer = in.Issuer
	cert.NotBefore = in.NotBefore
	cert.NotAfter = in.NotAfter
	cert.IsValid = in.IsValid
	cert.DaysRemaining = in.Days
}

func (r *FakeRepository) CreateManualAdd(ctx context.Context, in certstore.ManualAddInput) (*certstore.Certificate, error) {
	if r.UpsertErr != nil {
		return nil, r.UpsertErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cert := range r.certs {
		if cert.Store == certstore.StoreDatabase && cert.Domain == in.Domain && cert.Source == certstore.SourceManualAdd {
			return nil, vaulterrors.NewCertificateError(
				vaulterrors.ErrCodeDuplicateCertificate, in.Domain, nil)
		}
	}
	if r.byFolderLocked(in.FolderName) != nil {
		return nil, vaulterrors.NewCertificateError(
			vaulterrors.ErrCodeDuplicateFolderName, in.Domain, nil)
	}

	now := time.Now().UTC()
	cert := &certstore.Certificate{
		ID:          r.newID(),
		Store:       certstore.StoreDatabase,
		Domain:      in.Domain,
		FolderName:  in.FolderName,
		Source:      certstore.SourceManualAdd,
		Status:      certstore.StatusProcess,
		Email:       in.Email,
		Certificate: in.Certificate,
		PrivateKey:  in.PrivateKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.certs[cert.ID] = cert

	out := *cert
	return &out, nil
}

func (r *FakeRepository) UpdateByID(ctx context.Context, id string, u certstore.Update) error {
	if r.UpdateErr != nil {
		return r.UpdateErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cert, ok := r.certs[id]
	if !ok {
		return vaulterrors.ErrCertificateNotFound
	}

	if u.Domain != nil {
		cert.Domain = *u.Domain
	}
	if u.FolderName != nil {
		cert.FolderName = *u.FolderName
	}
	if u.Email != nil {
		cert.Email = *u.Email
	}
	if u.Certificate != nil {
		cert.Certificate = *u.Certificate
	}
	if u.PrivateKey != nil {
		cert.PrivateKey = *u.PrivateKey
	}
	if u.Status != nil {
		cert.Status = *u.Status
	}
	if u.LastErrorMessage != nil {
		cert.LastErrorMessage = u.LastErrorMessage
	}
	if u.LastErrorTime != nil {
		cert.LastErrorTime = u.LastErrorTime
	}
	cert.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *FakeRepository) ClaimProcessing(ctx context.Context, id string) (certstore.Status, error) {
	if r.ClaimErr != nil {
		return "", r.ClaimErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cert, ok := r.certs[id]
	if !ok {
		return "", vaulterrors.ErrCertificateNotFound
	}
	if cert.Status == certstore.StatusProcess {
		return "", vaulterrors.ErrAlreadyProcessing
	}

	prev := cert.Status
	cert.Status = certstore.StatusProcess
	cert.UpdatedAt = time.Now().UTC()
	return prev, nil
}

func (r *FakeRepository) UpdateParseResult(ctx context.Context, id string, res certstore.ParseResult) error {
	if r.UpdateErr != nil {
		return r.UpdateErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cert, ok := r.certs[id]
	if !ok {
		return vaulterrors.ErrCertificateNotFound
	}

	cert.Status = res.Status
	cert.SANs = res.SANs
	cert.Issuer = res.Issuer
	cert.NotBefore = res.NotBefore
	cert.NotAfter = res.NotAfter
	cert.IsValid = res.IsValid
	cert.DaysRemaining = res.Days
	cert.LastErrorMessage = res.ErrorMessage
	cert.LastErrorTime = res.ErrorTime
	cert.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *FakeRepository) UpdateAllDaysRemaining(ctx context.Context, now time.Time) (int64, error) {
	if r.UpdateErr != nil {
		return 0, r.UpdateErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var touched int64
	for _, cert := range r.certs {
		if cert.NotAfter == nil {
			continue
		}
		days := int(math.Floor(cert.NotAfter.Sub(now).Hours() / 24))
		cert.DaysRemaining = days
		cert.IsValid = days >= 0
		cert.UpdatedAt = now
		touched++
	}
	return touched, nil
}

func (r *FakeRepository) ListRenewable(ctx context.Context, beforeDays int) ([]certstore.Certificate, error) {
	if r.GetErr != nil {
		return nil, r.GetErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []certstore.Certificate
	for _, cert := range r.certs {
		if cert.Source == certstore.SourceAuto && cert.DaysRemaining < beforeDays {
			rows = append(rows, *cert)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Domain < rows[j].Domain })
	return rows, nil
}

func (r *FakeRepository) DeleteByID(ctx context.Context, id string) error {
	if r.UpdateErr != nil {
		return r.UpdateErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.certs[id]; !ok {
		return vaulterrors.ErrCertificateNotFound
	}
	delete(r.certs, id)
	return nil
}

func (r *FakeRepository) Ping(ctx context.Context) error { return r.PingErr }

func (r *FakeRepository) Close() error { return nil }

// PublishedEvent records one call to a RecordingProducer method.
type PublishedEvent struct {
	Type          events.Type
	Store         certstore.Store
	Stores        []certstore.Store
	Trigger       events.Trigger
	CertificateID string
	FolderName    string
	Path          string
	ItemType      events.ItemType
}

// RecordingProducer is an events.Producer that records every publish call
// instead of touching a broker.
type RecordingProducer struct {
	mu     sync.Mutex
	events []PublishedEvent

	// Err, when set, fails every publish call.
	Err     error
	PingErr error
}

func NewRecordingProducer() *RecordingProducer {
	return &RecordingProducer{}
}

// Events returns a copy of everything published so far.
func (p *RecordingProducer) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PublishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// EventsOfType filters the recorded events by type.
func (p *RecordingProducer) EventsOfType(t events.Type) []PublishedEvent {
	var out []PublishedEvent
	for _, e := range p.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (p *RecordingProducer) record(e PublishedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *RecordingProducer) PublishRefresh(ctx context.Context, store certstore.Store, trigger events.Trigger) error {
	return p.record(PublishedEvent{Type: events.TypeOperationRefresh, Store: store, Trigger: trigger})
}

func (p *RecordingProducer) PublishCacheInvalidate(ctx context.Context, stores []certstore.Store, trigger events.Trigger) error {
	return p.record(PublishedEvent{Type: events.TypeCacheInvalidate, Stores: stores, Trigger: trigger})
}

func (p *RecordingProducer) PublishParse(ctx context.Context, certificateID string) error {
	return p.record(PublishedEvent{Type: events.TypeCertificateParse, CertificateID: certificateID})
}

func (p *RecordingProducer) PublishFolderDelete(ctx context.Context, store certstore.Store, folderName string) error {
	return p.record(PublishedEvent{Type: events.TypeFolderDelete, Store: store, FolderName: folderName})
}

func (p *RecordingProducer) PublishFileOrFolderDelete(ctx context.Context, store certstore.Store, path string, itemType events.ItemType) error {
	return p.record(PublishedEvent{Type: events.TypeFileOrFolderDelete, Store: store, Path: path, ItemType: itemType})
}

func (p *RecordingProducer) PublishExport(ctx context.Context, certificateID string) error {
	return p.record(PublishedEvent{Type: events.TypeCertificateExport, CertificateID: certificateID})
}

func (p *RecordingProducer) Ping(ctx context.Context) error { return p.PingErr }

func (p *RecordingProducer) Close() error { return nil }
