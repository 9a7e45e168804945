package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	coreservices "github.com/ledgerdesk/ledgerdesk/modules/core/services"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/invoice"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/vendor"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/masterdata"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/withholding"
	financeservices "github.com/ledgerdesk/ledgerdesk/modules/finance/services"
	"github.com/ledgerdesk/ledgerdesk/pkg/composables"
	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
	"github.com/ledgerdesk/ledgerdesk/pkg/types"
)

// Services is the bundle the API layer dispatches to. Handlers stay thin:
// decode, call one service method, encode. All rules live in the services.
type Services struct {
	Users      *coreservices.UserService
	Currencies *coreservices.CurrencyService
	Invoices   *financeservices.InvoiceService
	Vendors    *financeservices.VendorService
	Payments   *financeservices.PaymentService
	MasterData *financeservices.MasterDataService
	Queries    *financeservices.InvoiceQueryService
}

const defaultPageSize = 50

func (s *HTTPServer) mountAPI(svc *Services) {
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.withPool, s.withActor)

	api.HandleFunc("/invoices", s.listInvoices(svc)).Methods(http.MethodGet)
	api.HandleFunc("/invoices", s.submitInvoice(svc)).Methods(http.MethodPost)
	api.HandleFunc("/invoices/{id:[0-9]+}", s.getInvoice(svc)).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{id:[0-9]+}", s.editInvoice(svc)).Methods(http.MethodPut)
	api.HandleFunc("/invoices/{id:[0-9]+}", s.deleteInvoice(svc)).Methods(http.MethodDelete)
	api.HandleFunc("/invoices/{id:[0-9]+}/approve", s.approveInvoice(svc)).Methods(http.MethodPost)
	api.HandleFunc("/invoices/{id:[0-9]+}/reject", s.rejectInvoice(svc)).Methods(http.MethodPost)
	api.HandleFunc("/invoices/{id:[0-9]+}/hold", s.holdInvoice(svc)).Methods(http.MethodPost)
	api.HandleFunc("/invoices/{id:[0-9]+}/release-hold", s.releaseInvoiceHold(svc)).Methods(http.MethodPost)
	api.HandleFunc("/invoices/{id:[0-9]+}/archive", s.archiveInvoice(svc)).Methods(http.MethodPost)
	api.HandleFunc("/invoices/{id:[0-9]+}/approval-gate", s.checkApprovalGate(svc)).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{id:[0-9]+}/approve-jointly", s.approveJointly(svc)).Methods(http.MethodPost)
	api.HandleFunc("/invoices/{id:[0-9]+}/payments", s.listPayments(svc)).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{id:[0-9]+}/payments", s.recordPayment(svc)).Methods(http.MethodPost)

	api.HandleFunc("/payments/{id:[0-9]+}/review", s.reviewPayment(svc)).Methods(http.MethodPost)

	api.HandleFunc("/vendors", s.listVendors(svc)).Methods(http.MethodGet)
	api.HandleFunc("/vendors", s.createVendor(svc)).Methods(http.MethodPost)
	api.HandleFunc("/vendors/{id:[0-9]+}", s.getVendor(svc)).Methods(http.MethodGet)
	api.HandleFunc("/vendors/{id:[0-9]+}/approve", s.approveVendor(svc)).Methods(http.MethodPost)
	api.HandleFunc("/vendors/{id:[0-9]+}/reject", s.rejectVendor(svc)).Methods(http.MethodPost)

	api.HandleFunc("/requests", s.listRequests(svc)).Methods(http.MethodGet)
	api.HandleFunc("/requests", s.submitRequest(svc)).Methods(http.MethodPost)
	api.HandleFunc("/requests/bulk-approve", s.bulkApproveRequests(svc)).Methods(http.MethodPost)
	api.HandleFunc("/requests/bulk-reject", s.bulkRejectRequests(svc)).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id:[0-9]+}", s.getRequest(svc)).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id:[0-9]+}/approve", s.approveRequest(svc)).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id:[0-9]+}/reject", s.rejectRequest(svc)).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id:[0-9]+}/resubmit", s.resubmitRequest(svc)).Methods(http.MethodPost)

	api.HandleFunc("/users/{id:[0-9]+}/demotion-check", s.checkDemotion(svc)).Methods(http.MethodGet)
	api.HandleFunc("/users/{id:[0-9]+}/demote", s.demoteUser(svc)).Methods(http.MethodPost)
	api.HandleFunc("/users/{id:[0-9]+}/deactivate", s.deactivateUser(svc)).Methods(http.MethodPost)

	api.HandleFunc("/currencies", s.listCurrencies(svc)).Methods(http.MethodGet)
	api.HandleFunc("/currencies", s.createCurrency(svc)).Methods(http.MethodPost)
	api.HandleFunc("/currencies/{code}/activate", s.activateCurrency(svc)).Methods(http.MethodPost)
	api.HandleFunc("/currencies/{code}/deactivate", s.deactivateCurrency(svc)).Methods(http.MethodPost)
}

func (s *HTTPServer) withPool(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(composables.WithPool(r.Context(), s.pool)))
	})
}

// withActor reads the identity headers stamped by the gateway in front of
// this service. Requests reach the API only after the gateway authenticated
// them, so a missing or malformed header is rejected, never defaulted.
func (s *HTTPServer) withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.Header.Get("X-User-Id"), 10, 64)
		if err != nil || id == 0 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHENTICATED", Message: "missing or invalid identity"})
			return
		}
		role := types.Role(r.Header.Get("X-User-Role"))
		if !role.IsValid() {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHENTICATED", Message: "missing or invalid identity"})
			return
		}
		actor := composables.Actor{ID: uint(id), Role: role}
		next.ServeHTTP(w, r.WithContext(composables.WithActor(r.Context(), actor)))
	})
}

func (s *HTTPServer) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, composables.ErrNoActor) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Code: "UNAUTHENTICATED", Message: "missing or invalid identity"})
		return
	}
	var be *serrors.BaseError
	if errors.As(err, &be) {
		writeJSON(w, statusForCategory(be.Category), errorBody{Code: be.Code, Message: be.Message})
		return
	}
	s.log.WithError(err).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal error"})
}

func statusForCategory(c serrors.Category) int {
	switch c {
	case serrors.CategoryAuthorization:
		return http.StatusForbidden
	case serrors.CategoryValidation:
		return http.StatusBadRequest
	case serrors.CategoryConflict:
		return http.StatusConflict
	case serrors.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_JSON", Message: "request body is not valid JSON"})
		return false
	}
	return true
}

func pathID(r *http.Request) uint {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return uint(id)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type invoiceRequest struct {
	Number        string                     `json:"number"`
	VendorID      uint                       `json:"vendor_id"`
	CategoryID    *uint                      `json:"category_id"`
	ProfileID     *uint                      `json:"profile_id"`
	CurrencyCode  string                     `json:"currency_code"`
	Amount        decimal.Decimal            `json:"amount"`
	InvoiceDate   time.Time                  `json:"invoice_date"`
	DueDate       *time.Time                 `json:"due_date"`
	PeriodStart   *time.Time                 `json:"period_start"`
	PeriodEnd     *time.Time                 `json:"period_end"`
	TDSApplicable bool                       `json:"tds_applicable"`
	TDSRate       *decimal.Decimal           `json:"tds_rate"`
	TDSRounding   withholding.RoundingPolicy `json:"tds_rounding"`
}

func (req *invoiceRequest) toInvoice() *invoice.Invoice {
	return &invoice.Invoice{
		Number:        req.Number,
		VendorID:      req.VendorID,
		CategoryID:    req.CategoryID,
		ProfileID:     req.ProfileID,
		CurrencyCode:  req.CurrencyCode,
		Amount:        req.Amount,
		InvoiceDate:   req.InvoiceDate,
		DueDate:       req.DueDate,
		PeriodStart:   req.PeriodStart,
		PeriodEnd:     req.PeriodEnd,
		TDSApplicable: req.TDSApplicable,
		TDSRate:       req.TDSRate,
		TDSRounding:   req.TDSRounding,
	}
}

func invoiceFindParams(r *http.Request) *invoice.FindParams {
	q := r.URL.Query()
	params := &invoice.FindParams{
		Search: q.Get("search"),
		SortBy: invoice.SortField(q.Get("sort_by")),
		Limit:  defaultPageSize,
	}
	if st := q.Get("status"); st != "" {
		status := invoice.Status(st)
		params.Status = &status
	}
	if v, err := strconv.ParseUint(q.Get("vendor_id"), 10, 64); err == nil {
		id := uint(v)
		params.VendorID = &id
	}
	if v, err := strconv.ParseUint(q.Get("category_id"), 10, 64); err == nil {
		id := uint(v)
		params.CategoryID = &id
	}
	if v, err := strconv.ParseBool(q.Get("archived")); err == nil {
		params.Archived = &v
	}
	if v, err := strconv.ParseBool(q.Get("sort_asc")); err == nil {
		params.SortAsc = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		params.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		params.Offset = v
	}
	return params
}

func (s *HTTPServer) listInvoices(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, total, err := svc.Queries.Find(r.Context(), invoiceFindParams(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"items": toWorklistItemDTOs(items),
			"total": total,
		})
	}
}

func (s *HTTPServer) getInvoice(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := svc.Queries.Get(r.Context(), pathID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWorklistItemDTO(item))
	}
}

func (s *HTTPServer) submitInvoice(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req invoiceRequest
		if !s.decode(w, r, &req) {
			return
		}
		created, err := svc.Invoices.Submit(r.Context(), req.toInvoice())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toInvoiceDTO(created))
	}
}

func (s *HTTPServer) editInvoice(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req invoiceRequest
		if !s.decode(w, r, &req) {
			return
		}
		upd := req.toInvoice()
		upd.ID = pathID(r)
		updated, err := svc.Invoices.Edit(r.Context(), upd)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInvoiceDTO(updated))
	}
}

func (s *HTTPServer) approveInvoice(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, err := svc.Invoices.Approve(r.Context(), pathID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
	}
}

func (s *HTTPServer) rejectInvoice(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reasonRequest
		if !s.decode(w, r, &req) {
			return
		}
		inv, err := svc.Invoices.Reject(r.Context(), pathID(r), req.Reason)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
	}
}

func (s *HTTPServer) holdInvoice(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reasonRequest
		if !s.decode(w, r, &req) {
			return
		}
		inv, err := svc.Invoices.Hold(r.Context(), pathID(r), req.Reason)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
	}
}

func (s *HTTPServer) releaseInvoiceHold(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, err := svc.Invoices.ReleaseHold(r.Context(), pathID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
	}
}

// archiveInvoice returns 200 with the archived invoice for privileged
// callers, 202 with the filed request when the call became a proposal.
func (s *HTTPServer) archiveInvoice(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reasonRequest
		if !s.decode(w, r, &req) {
			return
		}
		outcome, err := svc.Invoices.Archive(r.Context(), pathID(r), req.Reason)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if outcome.Requested {
			writeJSON(w, http.StatusAccepted, toRequestDTO(outcome.Request))
			return
		}
		writeJSON(w, http.StatusOK, toInvoiceDTO(outcome.Invoice))
	}
}

func (s *HTTPServer) deleteInvoice(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reasonRequest
		if !s.decode(w, r, &req) {
			return
		}
		if err := svc.Invoices.PermanentlyDelete(r.Context(), pathID(r), req.Reason); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *HTTPServer) checkApprovalGate(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gate, err := svc.Vendors.CheckApprovalGate(r.Context(), pathID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"required":    gate.Required,
			"vendor_id":   gate.VendorID,
			"vendor_name": gate.VendorName,
		})
	}
}

func (s *HTTPServer) approveJointly(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, inv, err := svc.Vendors.ApproveJointly(r.Context(), pathID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"vendor":  toVendorDTO(v),
			"invoice": toInvoiceDTO(inv),
		})
	}
}

type recordPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    time.Time       `json:"paid_at"`
	Reference string          `json:"reference"`
}

func (s *HTTPServer) listPayments(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payments, err := svc.Payments.ListByInvoice(r.Context(), pathID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		out := make([]*paymentDTO, 0, len(payments))
		for _, p := range payments {
			out = append(out, toPaymentDTO(p))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": out})
	}
}

func (s *HTTPServer) recordPayment(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordPaymentRequest
		if !s.decode(w, r, &req) {
			return
		}
		created, err := svc.Payments.Record(r.Context(), pathID(r), req.Amount, req.PaidAt, req.Reference)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPaymentDTO(created))
	}
}

type reviewPaymentRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

func (s *HTTPServer) reviewPayment(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewPaymentRequest
		if !s.decode(w, r, &req) {
			return
		}
		p, err := svc.Payments.Review(r.Context(), pathID(r), req.Approve, req.Note)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPaymentDTO(p))
	}
}

type vendorRequest struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	TaxExempt   bool   `json:"tax_exempt"`
	BankDetails string `json:"bank_details"`
}

func (s *HTTPServer) listVendors(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendors, err := svc.Vendors.GetAll(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		out := make([]*vendorDTO, 0, len(vendors))
		for _, v := range vendors {
			out = append(out, toVendorDTO(v))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": out})
	}
}

func (s *HTTPServer) getVendor(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Vendors.GetByID(r.Context(), pathID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toVendorDTO(v))
	}
}

func (s *HTTPServer) createVendor(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req vendorRequest
		if !s.decode(w, r, &req) {
			return
		}
		created, err := svc.Vendors.Create(r.Context(), &vendor.Vendor{
			Name:        req.Name,
			Address:     req.Address,
			TaxExempt:   req.TaxExempt,
			BankDetails: req.BankDetails,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toVendorDTO(created))
	}
}

func (s *HTTPServer) approveVendor(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Vendors.Approve(r.Context(), pathID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toVendorDTO(v))
	}
}

func (s *HTTPServer) rejectVendor(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reasonRequest
		if !s.decode(w, r, &req) {
			return
		}
		v, sweptIDs, err := svc.Vendors.Reject(r.Context(), pathID(r), req.Reason)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"vendor":               toVendorDTO(v),
			"rejected_invoice_ids": sweptIDs,
		})
	}
}

type submitRequestRequest struct {
	EntityType masterdata.EntityType `json:"entity_type"`
	Payload    json.RawMessage       `json:"payload"`
	Notes      string                `json:"notes"`
}

func requestFindParams(r *http.Request) *masterdata.FindParams {
	q := r.URL.Query()
	params := &masterdata.FindParams{Limit: defaultPageSize}
	if et := q.Get("entity_type"); et != "" {
		entityType := masterdata.EntityType(et)
		params.EntityType = &entityType
	}
	if st := q.Get("status"); st != "" {
		status := masterdata.Status(st)
		params.Status = &status
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		params.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		params.Offset = v
	}
	return params
}

func (s *HTTPServer) listRequests(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requests, err := svc.MasterData.Find(r.Context(), requestFindParams(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		out := make([]*requestDTO, 0, len(requests))
		for _, req := range requests {
			out = append(out, toRequestDTO(req))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": out})
	}
}

func (s *HTTPServer) getRequest(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := svc.MasterData.GetByID(r.Context(), pathID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestDTO(req))
	}
}

func (s *HTTPServer) submitRequest(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequestRequest
		if !s.decode(w, r, &req) {
			return
		}
		created, err := svc.MasterData.Submit(r.Context(), req.EntityType, req.Payload, req.Notes)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toRequestDTO(created))
	}
}

type approveRequestRequest struct {
	AdminEdits json.RawMessage `json:"admin_edits"`
}

func (s *HTTPServer) approveRequest(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req approveRequestRequest
		if !s.decode(w, r, &req) {
			return
		}
		approved, err := svc.MasterData.Approve(r.Context(), pathID(r), req.AdminEdits)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestDTO(approved))
	}
}

func (s *HTTPServer) rejectRequest(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reasonRequest
		if !s.decode(w, r, &req) {
			return
		}
		rejected, err := svc.MasterData.Reject(r.Context(), pathID(r), req.Reason)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestDTO(rejected))
	}
}

type resubmitRequestRequest struct {
	Payload json.RawMessage `json:"payload"`
	Notes   string          `json:"notes"`
}

func (s *HTTPServer) resubmitRequest(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resubmitRequestRequest
		if !s.decode(w, r, &req) {
			return
		}
		created, err := svc.MasterData.Resubmit(r.Context(), pathID(r), req.Payload, req.Notes)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toRequestDTO(created))
	}
}

type bulkRequest struct {
	RequestIDs []uint `json:"request_ids"`
	Reason     string `json:"reason"`
}

func toBulkOutcomeDTOs(outcomes []financeservices.BulkOutcome) []bulkOutcomeDTO {
	out := make([]bulkOutcomeDTO, 0, len(outcomes))
	for _, o := range outcomes {
		dto := bulkOutcomeDTO{RequestID: o.RequestID, OK: o.Err == nil}
		if o.Err != nil {
			var be *serrors.BaseError
			if errors.As(o.Err, &be) {
				dto.Error = &errorBody{Code: be.Code, Message: be.Message}
			} else {
				dto.Error = &errorBody{Code: "INTERNAL", Message: "internal error"}
			}
		}
		out = append(out, dto)
	}
	return out
}

func (s *HTTPServer) bulkApproveRequests(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkRequest
		if !s.decode(w, r, &req) {
			return
		}
		outcomes := svc.MasterData.BulkApprove(r.Context(), req.RequestIDs)
		writeJSON(w, http.StatusOK, map[string]interface{}{"outcomes": toBulkOutcomeDTOs(outcomes)})
	}
}

func (s *HTTPServer) bulkRejectRequests(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkRequest
		if !s.decode(w, r, &req) {
			return
		}
		outcomes := svc.MasterData.BulkReject(r.Context(), req.RequestIDs, req.Reason)
		writeJSON(w, http.StatusOK, map[string]interface{}{"outcomes": toBulkOutcomeDTOs(outcomes)})
	}
}

type demoteRequest struct {
	Role types.Role `json:"role"`
}

func (s *HTTPServer) checkDemotion(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Users.CheckDemotion(r.Context(), pathID(r), types.Role(r.URL.Query().Get("role")))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toGuardResultDTO(res))
	}
}

func (s *HTTPServer) demoteUser(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req demoteRequest
		if !s.decode(w, r, &req) {
			return
		}
		u, err := svc.Users.Demote(r.Context(), pathID(r), req.Role)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserDTO(u))
	}
}

func (s *HTTPServer) deactivateUser(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := svc.Users.Deactivate(r.Context(), pathID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toUserDTO(u))
	}
}

type currencyRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (s *HTTPServer) listCurrencies(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currencies, err := svc.Currencies.GetAll(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		out := make([]*currencyDTO, 0, len(currencies))
		for _, c := range currencies {
			out = append(out, toCurrencyDTO(c))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": out})
	}
}

func (s *HTTPServer) createCurrency(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req currencyRequest
		if !s.decode(w, r, &req) {
			return
		}
		c, err := svc.Currencies.Create(r.Context(), req.Code, req.Name)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toCurrencyDTO(c))
	}
}

func (s *HTTPServer) activateCurrency(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Currencies.Activate(r.Context(), mux.Vars(r)["code"]); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *HTTPServer) deactivateCurrency(svc *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Currencies.Deactivate(r.Context(), mux.Vars(r)["code"]); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
