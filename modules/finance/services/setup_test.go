package services_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/invoice"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/vendor"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/category"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/masterdata"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/payment"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/paymenttype"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/profile"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/services"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/eventbus"
	"github.com/ledgerdesk/ledgerdesk/pkg/types"
)

// stubTx satisfies repo.Tx so composables.InTx joins it instead of requiring
// a database pool; the in-memory repositories never touch it.
type stubTx struct{}

func (stubTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (stubTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

func (stubTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

func testContext(actor composables.Actor) context.Context {
	ctx := composables.WithTx(context.Background(), stubTx{})
	return composables.WithActor(ctx, actor)
}

var (
	standardActor = composables.Actor{ID: 10, Role: types.RoleStandardUser}
	adminActor    = composables.Actor{ID: 20, Role: types.RoleAdmin}
	superActor    = composables.Actor{ID: 30, Role: types.RoleSuperAdmin}
)

func silentLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeInvoiceRepo struct {
	seq         uint
	invoices    map[uint]*invoice.Invoice
	attachments map[uint][]*invoice.Attachment
	tombstones  []*invoice.DeletionRecord
	deleted     []uint
	deleteErr   error
}

func newFakeInvoiceRepo(invoices ...*invoice.Invoice) *fakeInvoiceRepo {
	f := &fakeInvoiceRepo{
		invoices:    make(map[uint]*invoice.Invoice),
		attachments: make(map[uint][]*invoice.Attachment),
	}
	for _, inv := range invoices {
		cp := *inv
		f.invoices[inv.ID] = &cp
		if inv.ID > f.seq {
			f.seq = inv.ID
		}
	}
	return f
}

func (f *fakeInvoiceRepo) GetByID(ctx context.Context, id uint) (*invoice.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, services.ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoiceRepo) ExistsByNumberAndVendor(ctx context.Context, number string, vendorID, excludeID uint) (bool, error) {
	for _, inv := range f.invoices {
		if inv.Number == number && inv.VendorID == vendorID && inv.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeInvoiceRepo) Create(ctx context.Context, inv *invoice.Invoice) (*invoice.Invoice, error) {
	f.seq++
	cp := *inv
	cp.ID = f.seq
	f.invoices[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeInvoiceRepo) Update(ctx context.Context, inv *invoice.Invoice) error {
	if _, ok := f.invoices[inv.ID]; !ok {
		return services.ErrInvoiceNotFound
	}
	cp := *inv
	f.invoices[inv.ID] = &cp
	return nil
}

func (f *fakeInvoiceRepo) ListPendingByVendor(ctx context.Context, vendorID uint) ([]*invoice.Invoice, error) {
	var out []*invoice.Invoice
	for _, inv := range f.invoices {
		if inv.VendorID == vendorID && inv.Status == invoice.StatusPendingApproval {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeInvoiceRepo) BulkReject(ctx context.Context, ids []uint, reason string, actorID uint, at time.Time) error {
	for _, id := range ids {
		inv, ok := f.invoices[id]
		if !ok {
			return services.ErrInvoiceNotFound
		}
		t := at
		inv.Status = invoice.StatusRejected
		inv.RejectedBy = &actorID
		inv.RejectedAt = &t
		inv.RejectionReason = reason
	}
	return nil
}

func (f *fakeInvoiceRepo) match(inv *invoice.Invoice, params *invoice.FindParams) bool {
	if params.Status != nil && inv.Status != *params.Status {
		return false
	}
	if params.VendorID != nil && inv.VendorID != *params.VendorID {
		return false
	}
	if params.CategoryID != nil && (inv.CategoryID == nil || *inv.CategoryID != *params.CategoryID) {
		return false
	}
	if params.CreatedBy != nil && inv.CreatedBy != *params.CreatedBy {
		return false
	}
	if params.Archived != nil && inv.Archived != *params.Archived {
		return false
	}
	if params.DueBefore != nil && (inv.DueDate == nil || !inv.DueDate.Before(*params.DueBefore)) {
		return false
	}
	if params.Search != "" && !strings.Contains(strings.ToLower(inv.Number), strings.ToLower(params.Search)) {
		return false
	}
	return true
}

func (f *fakeInvoiceRepo) Find(ctx context.Context, params *invoice.FindParams) ([]*invoice.Invoice, error) {
	var out []*invoice.Invoice
	for _, inv := range f.invoices {
		if f.match(inv, params) {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		var less bool
		switch params.SortBy {
		case invoice.SortByNumber:
			less = out[i].Number < out[j].Number
		case invoice.SortByAmount:
			less = out[i].Amount.LessThan(out[j].Amount)
		case invoice.SortByCreatedAt:
			less = out[i].CreatedAt.Before(out[j].CreatedAt)
		default:
			less = out[i].ID < out[j].ID
		}
		if params.SortBy.IsStored() && !params.SortAsc {
			return !less
		}
		return less
	})
	if params.Offset > 0 {
		if params.Offset >= len(out) {
			return nil, nil
		}
		out = out[params.Offset:]
	}
	if params.Limit > 0 && params.Limit < len(out) {
		out = out[:params.Limit]
	}
	return out, nil
}

func (f *fakeInvoiceRepo) Count(ctx context.Context, params *invoice.FindParams) (int64, error) {
	var n int64
	for _, inv := range f.invoices {
		if f.match(inv, params) {
			n++
		}
	}
	return n, nil
}

func (f *fakeInvoiceRepo) ListAttachments(ctx context.Context, invoiceID uint) ([]*invoice.Attachment, error) {
	out := make([]*invoice.Attachment, 0, len(f.attachments[invoiceID]))
	for _, a := range f.attachments[invoiceID] {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeInvoiceRepo) UpdateAttachmentPath(ctx context.Context, attachmentID uint, path string) error {
	for _, list := range f.attachments {
		for _, a := range list {
			if a.ID == attachmentID {
				a.Path = path
				return nil
			}
		}
	}
	return services.ErrInvoiceNotFound
}

func (f *fakeInvoiceRepo) CreateDeletionRecord(ctx context.Context, rec *invoice.DeletionRecord) error {
	cp := *rec
	f.tombstones = append(f.tombstones, &cp)
	return nil
}

func (f *fakeInvoiceRepo) DeleteWithDependents(ctx context.Context, id uint) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.invoices[id]; !ok {
		return services.ErrInvoiceNotFound
	}
	delete(f.invoices, id)
	delete(f.attachments, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeVendorRepo struct {
	seq     uint
	vendors map[uint]*vendor.Vendor
}

func newFakeVendorRepo(vendors ...*vendor.Vendor) *fakeVendorRepo {
	f := &fakeVendorRepo{vendors: make(map[uint]*vendor.Vendor)}
	for _, v := range vendors {
		cp := *v
		f.vendors[v.ID] = &cp
		if v.ID > f.seq {
			f.seq = v.ID
		}
	}
	return f
}

func (f *fakeVendorRepo) GetByID(ctx context.Context, id uint) (*vendor.Vendor, error) {
	v, ok := f.vendors[id]
	if !ok {
		return nil, services.ErrVendorNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeVendorRepo) GetByName(ctx context.Context, name string) (*vendor.Vendor, error) {
	for _, v := range f.vendors {
		if strings.EqualFold(v.Name, name) {
			cp := *v
			return &cp, nil
		}
	}
	return nil, services.ErrVendorNotFound
}

func (f *fakeVendorRepo) GetAll(ctx context.Context) ([]*vendor.Vendor, error) {
	out := make([]*vendor.Vendor, 0, len(f.vendors))
	for _, v := range f.vendors {
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeVendorRepo) Create(ctx context.Context, v *vendor.Vendor) (*vendor.Vendor, error) {
	f.seq++
	cp := *v
	cp.ID = f.seq
	f.vendors[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeVendorRepo) Update(ctx context.Context, v *vendor.Vendor) error {
	if _, ok := f.vendors[v.ID]; !ok {
		return services.ErrVendorNotFound
	}
	cp := *v
	f.vendors[v.ID] = &cp
	return nil
}

type fakePaymentRepo struct {
	seq      uint
	payments map[uint]*payment.Payment
}

func newFakePaymentRepo(payments ...*payment.Payment) *fakePaymentRepo {
	f := &fakePaymentRepo{payments: make(map[uint]*payment.Payment)}
	for _, p := range payments {
		cp := *p
		f.payments[p.ID] = &cp
		if p.ID > f.seq {
			f.seq = p.ID
		}
	}
	return f
}

func (f *fakePaymentRepo) GetByID(ctx context.Context, id uint) (*payment.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, services.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePaymentRepo) Create(ctx context.Context, p *payment.Payment) (*payment.Payment, error) {
	f.seq++
	cp := *p
	cp.ID = f.seq
	f.payments[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakePaymentRepo) Update(ctx context.Context, p *payment.Payment) error {
	if _, ok := f.payments[p.ID]; !ok {
		return services.ErrPaymentNotFound
	}
	cp := *p
	f.payments[p.ID] = &cp
	return nil
}

func (f *fakePaymentRepo) ListByInvoice(ctx context.Context, invoiceID uint) ([]*payment.Payment, error) {
	var out []*payment.Payment
	for _, p := range f.payments {
		if p.InvoiceID == invoiceID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePaymentRepo) ApprovedTotal(ctx context.Context, invoiceID uint) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range f.payments {
		if p.InvoiceID == invoiceID && p.Status == payment.StatusApproved {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (f *fakePaymentRepo) ApprovedTotals(ctx context.Context, invoiceIDs []uint) (map[uint]decimal.Decimal, error) {
	out := make(map[uint]decimal.Decimal, len(invoiceIDs))
	for _, id := range invoiceIDs {
		total, _ := f.ApprovedTotal(ctx, id)
		out[id] = total
	}
	return out, nil
}

func (f *fakePaymentRepo) HasPending(ctx context.Context, invoiceID uint) (bool, error) {
	for _, p := range f.payments {
		if p.InvoiceID == invoiceID && p.Status == payment.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePaymentRepo) PendingFlags(ctx context.Context, invoiceIDs []uint) (map[uint]bool, error) {
	out := make(map[uint]bool, len(invoiceIDs))
	for _, id := range invoiceIDs {
		pending, _ := f.HasPending(ctx, id)
		out[id] = pending
	}
	return out, nil
}

type fakeRequestRepo struct {
	seq      uint
	requests map[uint]*masterdata.Request
}

func newFakeRequestRepo(requests ...*masterdata.Request) *fakeRequestRepo {
	f := &fakeRequestRepo{requests: make(map[uint]*masterdata.Request)}
	for _, r := range requests {
		cp := *r
		f.requests[r.ID] = &cp
		if r.ID > f.seq {
			f.seq = r.ID
		}
	}
	return f
}

func (f *fakeRequestRepo) GetByID(ctx context.Context, id uint) (*masterdata.Request, error) {
	r, ok := f.requests[id]
	if !ok {
		return nil, services.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRequestRepo) Create(ctx context.Context, r *masterdata.Request) (*masterdata.Request, error) {
	f.seq++
	cp := *r
	cp.ID = f.seq
	f.requests[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeRequestRepo) Update(ctx context.Context, r *masterdata.Request) error {
	if _, ok := f.requests[r.ID]; !ok {
		return services.ErrRequestNotFound
	}
	cp := *r
	f.requests[r.ID] = &cp
	return nil
}

func (f *fakeRequestRepo) ExistsPendingForTarget(ctx context.Context, entityType masterdata.EntityType, targetID uint) (bool, error) {
	for _, r := range f.requests {
		if r.EntityType == entityType && r.Status == masterdata.StatusPendingApproval && r.TargetID != nil && *r.TargetID == targetID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRequestRepo) MarkSuperseded(ctx context.Context, id, supersededByID uint) error {
	r, ok := f.requests[id]
	if !ok {
		return services.ErrRequestNotFound
	}
	r.SupersededByID = &supersededByID
	return nil
}

func (f *fakeRequestRepo) Find(ctx context.Context, params *masterdata.FindParams) ([]*masterdata.Request, error) {
	var out []*masterdata.Request
	for _, r := range f.requests {
		if params.EntityType != nil && r.EntityType != *params.EntityType {
			continue
		}
		if params.Status != nil && r.Status != *params.Status {
			continue
		}
		if params.Requester != nil && r.RequesterID != *params.Requester {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeCategoryRepo struct {
	seq        uint
	categories map[uint]*category.Category
}

func newFakeCategoryRepo(categories ...*category.Category) *fakeCategoryRepo {
	f := &fakeCategoryRepo{categories: make(map[uint]*category.Category)}
	for _, c := range categories {
		cp := *c
		f.categories[c.ID] = &cp
		if c.ID > f.seq {
			f.seq = c.ID
		}
	}
	return f
}

func (f *fakeCategoryRepo) GetByID(ctx context.Context, id uint) (*category.Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return nil, services.ErrRequestNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCategoryRepo) FirstActive(ctx context.Context) (*category.Category, error) {
	ids := make([]uint, 0, len(f.categories))
	for id := range f.categories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if f.categories[id].Active {
			cp := *f.categories[id]
			return &cp, nil
		}
	}
	return nil, services.ErrRequestNotFound
}

func (f *fakeCategoryRepo) Create(ctx context.Context, c *category.Category) (*category.Category, error) {
	f.seq++
	cp := *c
	cp.ID = f.seq
	f.categories[cp.ID] = &cp
	out := cp
	return &out, nil
}

type fakePaymentTypeRepo struct {
	seq   uint
	types map[uint]*paymenttype.PaymentType
}

func newFakePaymentTypeRepo() *fakePaymentTypeRepo {
	return &fakePaymentTypeRepo{types: make(map[uint]*paymenttype.PaymentType)}
}

func (f *fakePaymentTypeRepo) GetByID(ctx context.Context, id uint) (*paymenttype.PaymentType, error) {
	pt, ok := f.types[id]
	if !ok {
		return nil, services.ErrRequestNotFound
	}
	cp := *pt
	return &cp, nil
}

func (f *fakePaymentTypeRepo) Create(ctx context.Context, pt *paymenttype.PaymentType) (*paymenttype.PaymentType, error) {
	f.seq++
	cp := *pt
	cp.ID = f.seq
	f.types[cp.ID] = &cp
	out := cp
	return &out, nil
}

type fakeProfileRepo struct {
	seq      uint
	profiles map[uint]*profile.Profile
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[uint]*profile.Profile)}
}

func (f *fakeProfileRepo) GetByID(ctx context.Context, id uint) (*profile.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, services.ErrRequestNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfileRepo) Create(ctx context.Context, p *profile.Profile) (*profile.Profile, error) {
	f.seq++
	cp := *p
	cp.ID = f.seq
	f.profiles[cp.ID] = &cp
	out := cp
	return &out, nil
}

// fakeRelocator records moves and writes and can be told to fail, for the
// logged-and-continue paths.
type fakeRelocator struct {
	mu     sync.Mutex
	moves  [][2]string
	writes []string
	fail   bool
}

func (f *fakeRelocator) Move(ctx context.Context, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	f.moves = append(f.moves, [2]string{src, dst})
	return nil
}

func (f *fakeRelocator) Write(ctx context.Context, data []byte, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	f.writes = append(f.writes, dst)
	return nil
}

var testConfig = services.Config{
	MinReasonLength: 10,
	DueSoonDays:     3,
	UploadsPath:     "static/uploads",
	ArchivePath:     "static/archive",
	DeletedPath:     "static/deleted",
}

// testEnv wires every finance service over the in-memory repositories.
type testEnv struct {
	invoices     *fakeInvoiceRepo
	vendors      *fakeVendorRepo
	payments     *fakePaymentRepo
	requests     *fakeRequestRepo
	categories   *fakeCategoryRepo
	paymentTypes *fakePaymentTypeRepo
	profiles     *fakeProfileRepo
	relocator    *fakeRelocator
	bus          eventbus.EventBus

	invoiceSvc    *services.InvoiceService
	vendorSvc     *services.VendorService
	paymentSvc    *services.PaymentService
	masterdataSvc *services.MasterDataService
	querySvc      *services.InvoiceQueryService
}

func newTestEnv() *testEnv {
	e := &testEnv{
		invoices:     newFakeInvoiceRepo(),
		vendors:      newFakeVendorRepo(),
		payments:     newFakePaymentRepo(),
		requests:     newFakeRequestRepo(),
		categories:   newFakeCategoryRepo(),
		paymentTypes: newFakePaymentTypeRepo(),
		profiles:     newFakeProfileRepo(),
		relocator:    &fakeRelocator{},
		bus:          eventbus.NewEventPublisher(silentLogger()),
	}
	e.invoiceSvc = services.NewInvoiceService(
		e.invoices, e.vendors, e.payments, e.requests, e.categories, e.profiles,
		e.relocator, e.bus, silentLogger(), testConfig,
	)
	e.vendorSvc = services.NewVendorService(e.vendors, e.invoices, e.bus, testConfig)
	e.paymentSvc = services.NewPaymentService(e.payments, e.invoices, e.bus, testConfig)
	e.masterdataSvc = services.NewMasterDataService(
		e.requests, e.vendors, e.categories, e.paymentTypes, e.profiles, e.invoiceSvc, e.bus, testConfig,
	)
	e.querySvc = services.NewInvoiceQueryService(e.invoices, e.paymentSvc, testConfig)
	return e
}
