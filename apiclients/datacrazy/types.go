package datacrazy

import (
	"encoding/json"
	"strings"
)

// Page is the envelope of every list endpoint. T is json.RawMessage when records are
// fetched for a lossless dump.
type Page[T any] struct {
	Data []T `json:"data"`
}

// Ref is an embedded reference to another record, such as an activity's lead.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Tag is a label applied to leads.
type Tag struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	CreatedAt string `json:"createdAt"`
}

// LossReason explains why a business was lost.
type LossReason struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	RequiredJustification bool   `json:"requiredJustification"`
	CreatedAt             string `json:"createdAt"`
}

// Product is a sellable item.
type Product struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	SKU       string  `json:"id_sku"`
	Price     float64 `json:"price"`
	Image     string  `json:"image"`
	CreatedAt string  `json:"createdAt"`
}

// Pipeline is a sales funnel.
type Pipeline struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
}

// PipelineStage is one phase of a Pipeline. The owning pipeline id is the key under
// which the stage is stored in the dump, not a field of the record.
type PipelineStage struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Index     int    `json:"index"`
	CreatedAt string `json:"createdAt"`
}

// LeadMetrics are the purchase metrics computed by DataCrazy for a lead.
type LeadMetrics struct {
	TotalSpent               float64 `json:"totalSpent"`
	LastPurchaseDate         string  `json:"lastPurchaseDate"`
	PurchaseCount            float64 `json:"purchaseCount"`
	AverageTicket            float64 `json:"averageTicket"`
	OpenBusinessesCount      float64 `json:"openBusinessesCount"`
	LostBusinessesCount      float64 `json:"lostBusinessesCount"`
	LostBusinessesTotalValue float64 `json:"lostBusinessesTotalValue"`
	PurchaseFrequency        float64 `json:"purchaseFrequency"`
}

// PlatformContact is a lead's identity on a messaging platform.
type PlatformContact struct {
	Platform          string          `json:"platform"`
	ContactID         string          `json:"contactId"`
	LastContactStatus json.RawMessage `json:"lastContactStatus"`
}

// HasStatus reports whether a non-null last contact status was present.
func (pc PlatformContact) HasStatus() bool {
	s := strings.TrimSpace(string(pc.LastContactStatus))
	return s != "" && s != "null" && s != "false"
}

// Lead is a person or organization contact.
type Lead struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Email            string            `json:"email"`
	Phone            string            `json:"phone"`
	RawPhone         string            `json:"rawPhone"`
	Company          string            `json:"company"`
	Source           string            `json:"source"`
	Notes            string            `json:"notes"`
	BirthDate        string            `json:"birthDate"`
	Instagram        string            `json:"instagram"`
	TaxID            string            `json:"taxId"`
	Site             string            `json:"site"`
	Image            string            `json:"image"`
	Rating           any               `json:"rating"`
	SourceReferral   any               `json:"sourceReferral"`
	Lists            []Ref             `json:"lists"`
	PlatformContacts []PlatformContact `json:"contacts"`
	Tags             []Tag             `json:"tags"`
	Metrics          *LeadMetrics      `json:"metrics"`
	Address          map[string]any    `json:"address"`
	CreatedAt        string            `json:"createdAt"`
}

// BusinessProduct is one line item of a Business.
type BusinessProduct struct {
	Product  *Ref    `json:"product"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// ProductID returns the referenced product id, or "" when the line has none.
func (bp BusinessProduct) ProductID() string {
	if bp.Product == nil {
		return ""
	}
	return bp.Product.ID
}

// BusinessLead is the lead data embedded in a Business.
type BusinessLead struct {
	Tags []Tag `json:"tags"`
}

// Business status values. Anything else is treated as open.
const (
	StatusWon  = "won"
	StatusLost = "lost"
	StatusOpen = "open"
)

// Business is a sales opportunity.
type Business struct {
	ID               string            `json:"id"`
	Code             *int64            `json:"code"`
	LeadID           string            `json:"leadId"`
	StageID          string            `json:"stageId"`
	Status           string            `json:"status"`
	Total            float64           `json:"total"`
	Discount         float64           `json:"discount"`
	Products         []BusinessProduct `json:"products"`
	LossReasonID     string            `json:"lossReasonId"`
	Justification    string            `json:"justification"`
	ExternalID       string            `json:"externalId"`
	AttendantID      string            `json:"attendantId"`
	Shipping         float64           `json:"shipping"`
	ShippingType     string            `json:"shippingType"`
	Coupon           string            `json:"coupon"`
	Addition         float64           `json:"addition"`
	ProductsCount    int               `json:"productsCount"`
	RequiredActivity bool              `json:"requiredActivity"`
	StatusChangedAt  string            `json:"statusChangedAt"`
	LastMovedAt      string            `json:"lastMovedAt"`
	CreatedAt        string            `json:"createdAt"`
	Lead             *BusinessLead     `json:"lead"`
}

// ActivityType classifies an Activity.
type ActivityType struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Attendant is the user responsible for an Activity.
type Attendant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Activity is a task or event tied to a lead and/or business.
type Activity struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Notes        string        `json:"notes"`
	StartDate    string        `json:"startDate"`
	EndDate      string        `json:"endDate"`
	IsCompleted  bool          `json:"isCompleted"`
	Lead         *Ref          `json:"lead"`
	Business     *Ref          `json:"business"`
	ActivityType *ActivityType `json:"activityType"`
	Attendant    *Attendant    `json:"attendant"`
	Flow         any           `json:"flow"`
	Required     bool          `json:"required"`
	Stage        any           `json:"stage"`
	CreatedAt    string        `json:"createdAt"`
}
