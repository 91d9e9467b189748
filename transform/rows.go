// Package transform maps DataCrazy records to ZmobCRM rows. Every function in the
// package is pure.
package transform

import (
	"github.com/lib/pq"
)

// Row is a target row. RowID identifies the row in error reports.
type Row interface {
	RowID() string
}

// Tag is a row of the tags table.
type Tag struct {
	ID             string  `db:"id" json:"id"`
	Name           string  `db:"name" json:"name"`
	Color          string  `db:"color" json:"color"`
	OrganizationID string  `db:"organization_id" json:"organization_id"`
	CreatedAt      *string `db:"created_at" json:"created_at"`
}

// LossReason is a row of the loss_reasons table.
type LossReason struct {
	ID                    string  `db:"id" json:"id"`
	Name                  string  `db:"name" json:"name"`
	RequiresJustification bool    `db:"requires_justification" json:"requires_justification"`
	OrganizationID        string  `db:"organization_id" json:"organization_id"`
	CreatedAt             *string `db:"created_at" json:"created_at"`
}

// Product is a row of the products table.
type Product struct {
	ID             string  `db:"id" json:"id"`
	Name           string  `db:"name" json:"name"`
	SKU            *string `db:"sku" json:"sku"`
	Price          float64 `db:"price" json:"price"`
	Active         bool    `db:"active" json:"active"`
	Image          *string `db:"image" json:"image"`
	DatacrazyID    string  `db:"datacrazy_id" json:"datacrazy_id"`
	OrganizationID string  `db:"organization_id" json:"organization_id"`
	CreatedAt      *string `db:"created_at" json:"created_at"`
	UpdatedAt      *string `db:"updated_at" json:"updated_at"`
}

// Board is a row of the boards table. Boards are DataCrazy pipelines.
type Board struct {
	ID             string  `db:"id" json:"id"`
	Name           string  `db:"name" json:"name"`
	Description    *string `db:"description" json:"description"`
	Type           string  `db:"type" json:"type"`
	IsDefault      bool    `db:"is_default" json:"is_default"`
	Position       int     `db:"position" json:"position"`
	OrganizationID string  `db:"organization_id" json:"organization_id"`
	CreatedAt      *string `db:"created_at" json:"created_at"`
	UpdatedAt      *string `db:"updated_at" json:"updated_at"`
}

// BoardStage is a row of the board_stages table.
type BoardStage struct {
	ID             string  `db:"id" json:"id"`
	BoardID        string  `db:"board_id" json:"board_id"`
	Name           string  `db:"name" json:"name"`
	Label          string  `db:"label" json:"label"`
	Color          string  `db:"color" json:"color"`
	Order          int     `db:"order" json:"order"`
	IsDefault      bool    `db:"is_default" json:"is_default"`
	OrganizationID string  `db:"organization_id" json:"organization_id"`
	CreatedAt      *string `db:"created_at" json:"created_at"`
}

// ListRef is a lead list kept in contact metadata.
type ListRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PlatformContactRef is a messaging identity kept in contact metadata. The last
// contact status is reduced to a flag.
type PlatformContactRef struct {
	Platform  string `json:"platform"`
	ContactID string `json:"contactId"`
	HasStatus bool   `json:"hasStatus"`
}

// ContactMetrics are the DataCrazy purchase metrics kept in contact metadata.
type ContactMetrics struct {
	PurchaseCount            float64 `json:"purchaseCount"`
	AverageTicket            float64 `json:"averageTicket"`
	OpenBusinessesCount      float64 `json:"openBusinessesCount"`
	LostBusinessesCount      float64 `json:"lostBusinessesCount"`
	LostBusinessesTotalValue float64 `json:"lostBusinessesTotalValue"`
	PurchaseFrequency        float64 `json:"purchaseFrequency"`
}

// ContactMetadata holds lead fields with no contacts column.
type ContactMetadata struct {
	RawPhone         *string              `json:"datacrazy_raw_phone"`
	Rating           any                  `json:"datacrazy_rating"`
	Image            *string              `json:"datacrazy_image"`
	SourceReferral   any                  `json:"datacrazy_source_referral"`
	Lists            []ListRef            `json:"datacrazy_lists"`
	PlatformContacts []PlatformContactRef `json:"datacrazy_platform_contacts"`
	Metrics          ContactMetrics       `json:"datacrazy_metrics"`
	TaxID            *string              `json:"datacrazy_tax_id"`
	Site             *string              `json:"datacrazy_site"`
}

// Contact is a row of the contacts table. Contacts are DataCrazy leads.
type Contact struct {
	ID               string                 `db:"id" json:"id"`
	Name             string                 `db:"name" json:"name"`
	Email            *string                `db:"email" json:"email"`
	Phone            *string                `db:"phone" json:"phone"`
	CompanyName      *string                `db:"company_name" json:"company_name"`
	Source           *string                `db:"source" json:"source"`
	Notes            *string                `db:"notes" json:"notes"`
	Status           string                 `db:"status" json:"status"`
	Stage            string                 `db:"stage" json:"stage"`
	BirthDate        *string                `db:"birth_date" json:"birth_date"`
	TotalValue       float64                `db:"total_value" json:"total_value"`
	LastPurchaseDate *string                `db:"last_purchase_date" json:"last_purchase_date"`
	Instagram        *string                `db:"instagram" json:"instagram"`
	TaxID            *string                `db:"tax_id" json:"tax_id"`
	Website          *string                `db:"website" json:"website"`
	RawPhone         *string                `db:"raw_phone" json:"raw_phone"`
	Address          JSONB[map[string]any]  `db:"address" json:"address"`
	Metadata         JSONB[ContactMetadata] `db:"metadata" json:"metadata"`
	DatacrazyID      string                 `db:"datacrazy_id" json:"datacrazy_id"`
	OrganizationID   string                 `db:"organization_id" json:"organization_id"`
	CreatedAt        *string                `db:"created_at" json:"created_at"`
	UpdatedAt        *string                `db:"updated_at" json:"updated_at"`
}

// ContactTag is a row of the contact_tags junction table.
type ContactTag struct {
	ContactID string `db:"contact_id" json:"contact_id"`
	TagID     string `db:"tag_id" json:"tag_id"`
}

// DealCustomFields holds business fields with no deals column.
type DealCustomFields struct {
	Code             *int64  `json:"datacrazy_code"`
	ExternalID       *string `json:"datacrazy_external_id"`
	AttendantID      *string `json:"datacrazy_attendant_id"`
	Shipping         float64 `json:"datacrazy_shipping"`
	ShippingType     *string `json:"datacrazy_shipping_type"`
	Coupon           *string `json:"datacrazy_coupon"`
	Addition         float64 `json:"datacrazy_addition"`
	ProductsCount    int     `json:"datacrazy_products_count"`
	RequiredActivity bool    `json:"datacrazy_required_activity"`
	StatusChangedAt  *string `json:"datacrazy_status_changed_at"`
}

// Deal is a row of the deals table. Deals are DataCrazy businesses.
type Deal struct {
	ID                  string                  `db:"id" json:"id"`
	Title               string                  `db:"title" json:"title"`
	Value               float64                 `db:"value" json:"value"`
	Probability         int                     `db:"probability" json:"probability"`
	Status              string                  `db:"status" json:"status"`
	Priority            string                  `db:"priority" json:"priority"`
	BoardID             *string                 `db:"board_id" json:"board_id"`
	StageID             *string                 `db:"stage_id" json:"stage_id"`
	ContactID           *string                 `db:"contact_id" json:"contact_id"`
	IsWon               bool                    `db:"is_won" json:"is_won"`
	IsLost              bool                    `db:"is_lost" json:"is_lost"`
	ClosedAt            *string                 `db:"closed_at" json:"closed_at"`
	LossReason          *string                 `db:"loss_reason" json:"loss_reason"`
	LossReasonText      *string                 `db:"loss_reason_text" json:"loss_reason_text"`
	LossReasonID        *string                 `db:"loss_reason_id" json:"loss_reason_id"`
	Discount            float64                 `db:"discount" json:"discount"`
	DatacrazyID         string                  `db:"datacrazy_id" json:"datacrazy_id"`
	DatacrazyCode       *int64                  `db:"datacrazy_code" json:"datacrazy_code"`
	Tags                pq.StringArray          `db:"tags" json:"tags"`
	CustomFields        JSONB[DealCustomFields] `db:"custom_fields" json:"custom_fields"`
	LastStageChangeDate *string                 `db:"last_stage_change_date" json:"last_stage_change_date"`
	OrganizationID      string                  `db:"organization_id" json:"organization_id"`
	CreatedAt           *string                 `db:"created_at" json:"created_at"`
	UpdatedAt           *string                 `db:"updated_at" json:"updated_at"`
}

// DealItem is a row of the deal_items table, one per business product line.
type DealItem struct {
	ID             string  `db:"id" json:"id"`
	DealID         string  `db:"deal_id" json:"deal_id"`
	ProductID      *string `db:"product_id" json:"product_id"`
	Name           string  `db:"name" json:"name"`
	Quantity       float64 `db:"quantity" json:"quantity"`
	Price          float64 `db:"price" json:"price"`
	OrganizationID string  `db:"organization_id" json:"organization_id"`
}

// AttendantRef is the activity attendant kept in activity metadata.
type AttendantRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ActivityTypeRef is the activity type kept in activity metadata.
type ActivityTypeRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ActivityMetadata holds activity fields with no activities column.
type ActivityMetadata struct {
	Attendant    *AttendantRef    `json:"datacrazy_attendant"`
	ActivityType *ActivityTypeRef `json:"datacrazy_activity_type"`
	Flow         any              `json:"datacrazy_flow"`
	Required     bool             `json:"datacrazy_required"`
	Stage        any              `json:"datacrazy_stage"`
}

// Activity is a row of the activities table.
type Activity struct {
	ID             string                  `db:"id" json:"id"`
	Title          string                  `db:"title" json:"title"`
	Description    *string                 `db:"description" json:"description"`
	Type           string                  `db:"type" json:"type"`
	Date           string                  `db:"date" json:"date"`
	EndDate        *string                 `db:"end_date" json:"end_date"`
	Completed      bool                    `db:"completed" json:"completed"`
	DealID         *string                 `db:"deal_id" json:"deal_id"`
	ContactID      *string                 `db:"contact_id" json:"contact_id"`
	Notes          *string                 `db:"notes" json:"notes"`
	DatacrazyID    string                  `db:"datacrazy_id" json:"datacrazy_id"`
	Metadata       JSONB[ActivityMetadata] `db:"metadata" json:"metadata"`
	OrganizationID string                  `db:"organization_id" json:"organization_id"`
	CreatedAt      *string                 `db:"created_at" json:"created_at"`
}

func (r Tag) RowID() string        { return r.ID }
func (r LossReason) RowID() string { return r.ID }
func (r Product) RowID() string    { return r.ID }
func (r Board) RowID() string      { return r.ID }
func (r BoardStage) RowID() string { return r.ID }
func (r Contact) RowID() string    { return r.ID }
func (r ContactTag) RowID() string { return r.ContactID + ":" + r.TagID }
func (r Deal) RowID() string       { return r.ID }
func (r DealItem) RowID() string   { return r.ID }
func (r Activity) RowID() string   { return r.ID }
