package server

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerdesk/ledgerdesk/modules/core/domain/aggregates/user"
	"github.com/ledgerdesk/ledgerdesk/modules/core/domain/entities/currency"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/invoice"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/aggregates/vendor"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/masterdata"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/entities/payment"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/domain/withholding"
	"github.com/ledgerdesk/ledgerdesk/modules/finance/services"
	"github.com/ledgerdesk/ledgerdesk/pkg/guard"
)

// Wire representations. Domain types stay free of json tags; the API shapes
// are defined here and mapped explicitly.

type invoiceDTO struct {
	ID            uint                       `json:"id"`
	Number        string                     `json:"number"`
	VendorID      uint                       `json:"vendor_id"`
	CategoryID    *uint                      `json:"category_id,omitempty"`
	ProfileID     *uint                      `json:"profile_id,omitempty"`
	CurrencyCode  string                     `json:"currency_code"`
	Amount        decimal.Decimal            `json:"amount"`
	InvoiceDate   time.Time                  `json:"invoice_date"`
	DueDate       *time.Time                 `json:"due_date,omitempty"`
	PeriodStart   *time.Time                 `json:"period_start,omitempty"`
	PeriodEnd     *time.Time                 `json:"period_end,omitempty"`
	Status        invoice.Status             `json:"status"`
	TDSApplicable bool                       `json:"tds_applicable"`
	TDSRate       *decimal.Decimal           `json:"tds_rate,omitempty"`
	TDSRounding   withholding.RoundingPolicy `json:"tds_rounding,omitempty"`

	Archived      bool       `json:"archived"`
	ArchivedBy    *uint      `json:"archived_by,omitempty"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty"`
	ArchiveReason string     `json:"archive_reason,omitempty"`

	HeldBy     *uint      `json:"held_by,omitempty"`
	HeldAt     *time.Time `json:"held_at,omitempty"`
	HoldReason string     `json:"hold_reason,omitempty"`

	RejectedBy      *uint      `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	CreatedBy uint      `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toInvoiceDTO(inv *invoice.Invoice) *invoiceDTO {
	return &invoiceDTO{
		ID:              inv.ID,
		Number:          inv.Number,
		VendorID:        inv.VendorID,
		CategoryID:      inv.CategoryID,
		ProfileID:       inv.ProfileID,
		CurrencyCode:    inv.CurrencyCode,
		Amount:          inv.Amount,
		InvoiceDate:     inv.InvoiceDate,
		DueDate:         inv.DueDate,
		PeriodStart:     inv.PeriodStart,
		PeriodEnd:       inv.PeriodEnd,
		Status:          inv.Status,
		TDSApplicable:   inv.TDSApplicable,
		TDSRate:         inv.TDSRate,
		TDSRounding:     inv.TDSRounding,
		Archived:        inv.Archived,
		ArchivedBy:      inv.ArchivedBy,
		ArchivedAt:      inv.ArchivedAt,
		ArchiveReason:   inv.ArchiveReason,
		HeldBy:          inv.HeldBy,
		HeldAt:          inv.HeldAt,
		HoldReason:      inv.HoldReason,
		RejectedBy:      inv.RejectedBy,
		RejectedAt:      inv.RejectedAt,
		RejectionReason: inv.RejectionReason,
		CreatedBy:       inv.CreatedBy,
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
	}
}

type settlementDTO struct {
	ApprovedTotal        decimal.Decimal `json:"approved_total"`
	Remaining            decimal.Decimal `json:"remaining"`
	EffectiveStatus      invoice.Status  `json:"effective_status"`
	HasUnreviewedPayment bool            `json:"has_unreviewed_payment"`
}

type dueStateDTO struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Days     int    `json:"days"`
	Overdue  bool   `json:"overdue"`
	DueSoon  bool   `json:"due_soon"`
}

type worklistItemDTO struct {
	Invoice    *invoiceDTO    `json:"invoice"`
	Settlement *settlementDTO `json:"settlement"`
	DueState   *dueStateDTO   `json:"due_state,omitempty"`
	Rank       int            `json:"rank"`
}

func toWorklistItemDTO(item *services.WorklistItem) *worklistItemDTO {
	out := &worklistItemDTO{
		Invoice: toInvoiceDTO(item.Invoice),
		Settlement: &settlementDTO{
			ApprovedTotal:        item.Settlement.ApprovedTotal,
			Remaining:            item.Settlement.Remaining,
			EffectiveStatus:      item.Settlement.EffectiveStatus,
			HasUnreviewedPayment: item.Settlement.HasUnreviewedPayment,
		},
		Rank: item.Rank,
	}
	if item.DueState.Known {
		out.DueState = &dueStateDTO{
			Label:    item.DueState.Label,
			Severity: string(item.DueState.Severity),
			Days:     item.DueState.Days,
			Overdue:  item.DueState.Overdue,
			DueSoon:  item.DueState.DueSoon,
		}
	}
	return out
}

func toWorklistItemDTOs(items []*services.WorklistItem) []*worklistItemDTO {
	out := make([]*worklistItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toWorklistItemDTO(item))
	}
	return out
}

type vendorDTO struct {
	ID              uint          `json:"id"`
	Name            string        `json:"name"`
	Address         string        `json:"address,omitempty"`
	TaxExempt       bool          `json:"tax_exempt"`
	BankDetails     string        `json:"bank_details,omitempty"`
	Status          vendor.Status `json:"status"`
	CreatedBy       uint          `json:"created_by"`
	ApprovedBy      *uint         `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func toVendorDTO(v *vendor.Vendor) *vendorDTO {
	return &vendorDTO{
		ID:              v.ID,
		Name:            v.Name,
		Address:         v.Address,
		TaxExempt:       v.TaxExempt,
		BankDetails:     v.BankDetails,
		Status:          v.Status,
		CreatedBy:       v.CreatedBy,
		ApprovedBy:      v.ApprovedBy,
		ApprovedAt:      v.ApprovedAt,
		RejectionReason: v.RejectionReason,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}

type paymentDTO struct {
	ID         uint                       `json:"id"`
	InvoiceID  uint                       `json:"invoice_id"`
	Amount     decimal.Decimal            `json:"amount"`
	PaidAt     time.Time                  `json:"paid_at"`
	Reference  string                     `json:"reference,omitempty"`
	Withheld   decimal.Decimal            `json:"withheld"`
	Rounding   withholding.RoundingPolicy `json:"rounding,omitempty"`
	Status     payment.Status             `json:"status"`
	CreatedBy  uint                       `json:"created_by"`
	ReviewedBy *uint                      `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time                 `json:"reviewed_at,omitempty"`
	ReviewNote string                     `json:"review_note,omitempty"`
	CreatedAt  time.Time                  `json:"created_at"`
}

func toPaymentDTO(p *payment.Payment) *paymentDTO {
	return &paymentDTO{
		ID:         p.ID,
		InvoiceID:  p.InvoiceID,
		Amount:     p.Amount,
		PaidAt:     p.PaidAt,
		Reference:  p.Reference,
		Withheld:   p.Withheld,
		Rounding:   p.Rounding,
		Status:     p.Status,
		CreatedBy:  p.CreatedBy,
		ReviewedBy: p.ReviewedBy,
		ReviewedAt: p.ReviewedAt,
		ReviewNote: p.ReviewNote,
		CreatedAt:  p.CreatedAt,
	}
}

type requestDTO struct {
	ID                uint                  `json:"id"`
	EntityType        masterdata.EntityType `json:"entity_type"`
	Status            masterdata.Status     `json:"status"`
	RequesterID       uint                  `json:"requester_id"`
	ReviewerID        *uint                 `json:"reviewer_id,omitempty"`
	ReviewedAt        *time.Time            `json:"reviewed_at,omitempty"`
	Payload           json.RawMessage       `json:"payload"`
	AdminEdits        json.RawMessage       `json:"admin_edits,omitempty"`
	Notes             string                `json:"notes,omitempty"`
	RejectionReason   string                `json:"rejection_reason,omitempty"`
	ResubmissionCount int                   `json:"resubmission_count"`
	PreviousAttemptID *uint                 `json:"previous_attempt_id,omitempty"`
	SupersededByID    *uint                 `json:"superseded_by_id,omitempty"`
	TargetID          *uint                 `json:"target_id,omitempty"`
	CreatedEntityID   *uint                 `json:"created_entity_id,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

func toRequestDTO(req *masterdata.Request) *requestDTO {
	return &requestDTO{
		ID:                req.ID,
		EntityType:        req.EntityType,
		Status:            req.Status,
		RequesterID:       req.RequesterID,
		ReviewerID:        req.ReviewerID,
		ReviewedAt:        req.ReviewedAt,
		Payload:           req.Payload,
		AdminEdits:        req.AdminEdits,
		Notes:             req.Notes,
		RejectionReason:   req.RejectionReason,
		ResubmissionCount: req.ResubmissionCount,
		PreviousAttemptID: req.PreviousAttemptID,
		SupersededByID:    req.SupersededByID,
		TargetID:          req.TargetID,
		CreatedEntityID:   req.CreatedEntityID,
		CreatedAt:         req.CreatedAt,
		UpdatedAt:         req.UpdatedAt,
	}
}

type userDTO struct {
	ID        uint   `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
}

func toUserDTO(u *user.User) *userDTO {
	return &userDTO{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role.String(),
		Active:    u.Active,
	}
}

type currencyDTO struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func toCurrencyDTO(c *currency.Currency) *currencyDTO {
	return &currencyDTO{Code: c.Code, Name: c.Name, Active: c.Active}
}

type guardResultDTO struct {
	Outcome       string `json:"outcome"`
	Capability    string `json:"capability"`
	ActiveHolders int64  `json:"active_holders"`
}

func toGuardResultDTO(res guard.Result) *guardResultDTO {
	out := &guardResultDTO{Capability: res.Capability, ActiveHolders: res.ActiveHolders}
	switch res.Outcome {
	case guard.Blocked:
		out.Outcome = "blocked"
	case guard.Allowed:
		out.Outcome = "allowed"
	default:
		out.Outcome = "not_applicable"
	}
	return out
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type bulkOutcomeDTO struct {
	RequestID uint       `json:"request_id"`
	OK        bool       `json:"ok"`
	Error     *errorBody `json:"error,omitempty"`
}
