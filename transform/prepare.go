package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/felipezacker/zcrm/apiclients/datacrazy"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Defaults applied to missing source values.
const (
	DefaultTagColor     = "bg-gray-500"
	DefaultContactName  = "Sem nome"
	DefaultDealName     = "Deal"
	DefaultItemName     = "Produto"
	DefaultActivityName = "Atividade"
	DefaultActivityType = "task"

	BoardTypeSales  = "SALES"
	ContactActive   = "ACTIVE"
	ContactLead     = "LEAD"
	PriorityMedium  = "medium"
	timestampFormat = "2006-01-02T15:04:05.000Z07:00"
)

// dealItemNamespace seeds the deterministic deal item ids.
var dealItemNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://api.g1.datacrazy.io/businesses/products"))

// optional returns nil for an empty string.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// optionalTrim trims s and returns nil if nothing is left.
func optionalTrim(s string) *string {
	return optional(strings.TrimSpace(s))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// NulledRefs counts references cleared because the record they point at is not in the
// dump. The row is still written, without the reference.
type NulledRefs struct {
	Contacts    int
	LossReasons int
	Products    int
	Deals       int
}

// Add returns the sum of r and o.
func (r NulledRefs) Add(o NulledRefs) NulledRefs {
	return NulledRefs{
		Contacts:    r.Contacts + o.Contacts,
		LossReasons: r.LossReasons + o.LossReasons,
		Products:    r.Products + o.Products,
		Deals:       r.Deals + o.Deals,
	}
}

// ref returns id when known holds it. An unknown id is counted in n and cleared.
func ref[V any](id string, known map[string]V, n *int) *string {
	if id == "" {
		return nil
	}
	if _, ok := known[id]; !ok {
		*n++
		return nil
	}
	return &id
}

// datePart truncates an ISO timestamp to YYYY-MM-DD.
func datePart(s string) *string {
	if s == "" {
		return nil
	}
	d, _, _ := strings.Cut(s, "T")
	return &d
}

// truthy returns nil for JSON values that are empty or false.
func truthy(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
	case bool:
		if !t {
			return nil
		}
	case float64:
		if t == 0 {
			return nil
		}
	}
	return v
}

// PrepareTags maps DataCrazy tags to tag rows.
func PrepareTags(tags []datacrazy.Tag, orgID string) []Tag {
	rows := make([]Tag, 0, len(tags))
	for _, t := range tags {
		rows = append(rows, Tag{
			ID:             t.ID,
			Name:           strings.TrimSpace(t.Name),
			Color:          orDefault(t.Color, DefaultTagColor),
			OrganizationID: orgID,
			CreatedAt:      optional(t.CreatedAt),
		})
	}
	return rows
}

// PrepareLossReasons maps loss reasons to loss reason rows.
func PrepareLossReasons(reasons []datacrazy.LossReason, orgID string) []LossReason {
	rows := make([]LossReason, 0, len(reasons))
	for _, r := range reasons {
		rows = append(rows, LossReason{
			ID:                    r.ID,
			Name:                  strings.TrimSpace(r.Name),
			RequiresJustification: r.RequiredJustification,
			OrganizationID:        orgID,
			CreatedAt:             optional(r.CreatedAt),
		})
	}
	return rows
}

// PrepareProducts maps products to active product rows.
func PrepareProducts(products []datacrazy.Product, orgID string) []Product {
	rows := make([]Product, 0, len(products))
	for _, p := range products {
		rows = append(rows, Product{
			ID:             p.ID,
			Name:           strings.TrimSpace(p.Name),
			SKU:            optionalTrim(p.SKU),
			Price:          p.Price,
			Active:         true,
			Image:          optional(p.Image),
			DatacrazyID:    p.ID,
			OrganizationID: orgID,
			CreatedAt:      optional(p.CreatedAt),
			UpdatedAt:      optional(p.CreatedAt),
		})
	}
	return rows
}

// PrepareBoards maps pipelines to sales boards. The first pipeline is the default
// board.
func PrepareBoards(pipelines []datacrazy.Pipeline, orgID string) []Board {
	rows := make([]Board, 0, len(pipelines))
	for i, p := range pipelines {
		rows = append(rows, Board{
			ID:             p.ID,
			Name:           strings.TrimSpace(p.Name),
			Description:    optional(p.Description),
			Type:           BoardTypeSales,
			IsDefault:      i == 0,
			Position:       i,
			OrganizationID: orgID,
			CreatedAt:      optional(p.CreatedAt),
			UpdatedAt:      optional(p.CreatedAt),
		})
	}
	return rows
}

// PrepareContacts maps leads to contacts. Lead fields with no contacts column are
// kept in metadata.
func PrepareContacts(leads []datacrazy.Lead, orgID string) []Contact {
	rows := make([]Contact, 0, len(leads))
	for _, l := range leads {
		var m datacrazy.LeadMetrics
		if l.Metrics != nil {
			m = *l.Metrics
		}

		address := l.Address
		if address == nil {
			address = map[string]any{}
		}

		lists := make([]ListRef, 0, len(l.Lists))
		for _, ls := range l.Lists {
			lists = append(lists, ListRef{ID: ls.ID, Name: ls.Name})
		}
		platforms := make([]PlatformContactRef, 0, len(l.PlatformContacts))
		for _, pc := range l.PlatformContacts {
			platforms = append(platforms, PlatformContactRef{
				Platform:  pc.Platform,
				ContactID: pc.ContactID,
				HasStatus: pc.HasStatus(),
			})
		}

		metadata := ContactMetadata{
			RawPhone:         optional(l.RawPhone),
			Rating:           l.Rating,
			Image:            optional(l.Image),
			SourceReferral:   truthy(l.SourceReferral),
			Lists:            lists,
			PlatformContacts: platforms,
			Metrics: ContactMetrics{
				PurchaseCount:            m.PurchaseCount,
				AverageTicket:            m.AverageTicket,
				OpenBusinessesCount:      m.OpenBusinessesCount,
				LostBusinessesCount:      m.LostBusinessesCount,
				LostBusinessesTotalValue: m.LostBusinessesTotalValue,
				PurchaseFrequency:        m.PurchaseFrequency,
			},
			TaxID: optional(l.TaxID),
			Site:  optional(l.Site),
		}

		rows = append(rows, Contact{
			ID:               l.ID,
			Name:             strings.TrimSpace(orDefault(l.Name, DefaultContactName)),
			Email:            optionalTrim(l.Email),
			Phone:            optional(strings.ReplaceAll(strings.TrimSpace(l.Phone), "\n", "")),
			CompanyName:      optional(l.Company),
			Source:           optional(l.Source),
			Notes:            optional(l.Notes),
			Status:           ContactActive,
			Stage:            ContactLead,
			BirthDate:        datePart(l.BirthDate),
			TotalValue:       m.TotalSpent,
			LastPurchaseDate: datePart(m.LastPurchaseDate),
			Instagram:        optional(l.Instagram),
			TaxID:            optional(l.TaxID),
			Website:          optional(l.Site),
			RawPhone:         optional(l.RawPhone),
			Address:          NewJSONB(address),
			Metadata:         NewJSONB(metadata),
			DatacrazyID:      l.ID,
			OrganizationID:   orgID,
			CreatedAt:        optional(l.CreatedAt),
			UpdatedAt:        optional(l.CreatedAt),
		})
	}
	return rows
}

// PrepareContactTags builds one junction row per distinct lead and tag pair, in
// first seen order.
func PrepareContactTags(leads []datacrazy.Lead) []ContactTag {
	var rows []ContactTag
	seen := map[string]bool{}
	for _, l := range leads {
		for _, t := range l.Tags {
			row := ContactTag{ContactID: l.ID, TagID: t.ID}
			if seen[row.RowID()] {
				continue
			}
			seen[row.RowID()] = true
			rows = append(rows, row)
		}
	}
	return rows
}

// PrepareDeals maps businesses to deals. Boards come from idx, which must have been
// built from the same businesses. Leads and loss reasons missing from the dump are
// cleared and counted.
func PrepareDeals(
	businesses []datacrazy.Business,
	leads []datacrazy.Lead,
	lossReasons []datacrazy.LossReason,
	idx *StageBoardIndex,
	orgID string,
) ([]Deal, NulledRefs) {

	reasonNames := make(map[string]string, len(lossReasons))
	for _, r := range lossReasons {
		reasonNames[r.ID] = strings.TrimSpace(r.Name)
	}
	leadNames := make(map[string]string, len(leads))
	for _, l := range leads {
		leadNames[l.ID] = strings.TrimSpace(orDefault(l.Name, DefaultContactName))
	}

	var nulled NulledRefs
	rows := make([]Deal, 0, len(businesses))
	for _, b := range businesses {
		isWon := b.Status == datacrazy.StatusWon
		isLost := b.Status == datacrazy.StatusLost

		leadName, ok := leadNames[b.LeadID]
		if !ok || leadName == "" {
			leadName = DefaultDealName
		}

		var code *int64
		title := leadName
		if b.Code != nil && *b.Code != 0 {
			code = b.Code
			title = fmt.Sprintf("#%d - %s", *b.Code, leadName)
		}

		probability := 50
		var closedAt *string
		switch {
		case isWon:
			probability = 100
		case isLost:
			probability = 0
		}
		if isWon || isLost {
			closedAt = optional(orDefault(b.StatusChangedAt, b.LastMovedAt))
		}

		var lossReason *string
		if b.LossReasonID != "" {
			if name, ok := reasonNames[b.LossReasonID]; ok {
				lossReason = &name
			}
		}

		tags := pq.StringArray{}
		if b.Lead != nil {
			for _, t := range b.Lead.Tags {
				tags = append(tags, t.Name)
			}
		}

		boardID, stageID := idx.Lookup(b.StageID)

		rows = append(rows, Deal{
			ID:             b.ID,
			Title:          title,
			Value:          b.Total,
			Probability:    probability,
			Status:         orDefault(b.Status, datacrazy.StatusOpen),
			Priority:       PriorityMedium,
			BoardID:        boardID,
			StageID:        stageID,
			ContactID:      ref(b.LeadID, leadNames, &nulled.Contacts),
			IsWon:          isWon,
			IsLost:         isLost,
			ClosedAt:       closedAt,
			LossReason:     lossReason,
			LossReasonText: optional(b.Justification),
			LossReasonID:   ref(b.LossReasonID, reasonNames, &nulled.LossReasons),
			Discount:       b.Discount,
			DatacrazyID:    b.ID,
			DatacrazyCode:  code,
			Tags:           tags,
			CustomFields: NewJSONB(DealCustomFields{
				Code:             code,
				ExternalID:       optional(b.ExternalID),
				AttendantID:      optional(b.AttendantID),
				Shipping:         b.Shipping,
				ShippingType:     optional(b.ShippingType),
				Coupon:           optional(b.Coupon),
				Addition:         b.Addition,
				ProductsCount:    b.ProductsCount,
				RequiredActivity: b.RequiredActivity,
				StatusChangedAt:  optional(b.StatusChangedAt),
			}),
			LastStageChangeDate: optional(b.LastMovedAt),
			OrganizationID:      orgID,
			CreatedAt:           optional(b.CreatedAt),
			UpdatedAt:           optional(orDefault(b.LastMovedAt, b.CreatedAt)),
		})
	}
	return rows, nulled
}

// DealItemID is the id of the product line at index i of a deal. It is the same on
// every run.
func DealItemID(dealID string, i int) string {
	return uuid.NewSHA1(dealItemNamespace, []byte(dealID+":"+strconv.Itoa(i))).String()
}

// PrepareDealItems builds one deal item per business product line. Products missing
// from the dump are cleared and counted.
func PrepareDealItems(businesses []datacrazy.Business, products []datacrazy.Product, orgID string) ([]DealItem, NulledRefs) {
	known := make(map[string]bool, len(products))
	for _, p := range products {
		known[p.ID] = true
	}

	var nulled NulledRefs
	var rows []DealItem
	for _, b := range businesses {
		for i, item := range b.Products {
			name := item.Name
			if item.Product != nil && item.Product.Name != "" {
				name = item.Product.Name
			}
			quantity := item.Quantity
			if quantity == 0 {
				quantity = 1
			}
			rows = append(rows, DealItem{
				ID:             DealItemID(b.ID, i),
				DealID:         b.ID,
				ProductID:      ref(item.ProductID(), known, &nulled.Products),
				Name:           strings.TrimSpace(orDefault(name, DefaultItemName)),
				Quantity:       quantity,
				Price:          item.Price,
				OrganizationID: orgID,
			})
		}
	}
	return rows, nulled
}

// PrepareActivities maps activities to activity rows. The description joins the
// source description and notes. Deals and leads missing from the dump are cleared and
// counted.
func PrepareActivities(
	activities []datacrazy.Activity,
	leads []datacrazy.Lead,
	businesses []datacrazy.Business,
	orgID string,
) ([]Activity, NulledRefs) {

	leadIDs := make(map[string]bool, len(leads))
	for _, l := range leads {
		leadIDs[l.ID] = true
	}
	dealIDs := make(map[string]bool, len(businesses))
	for _, b := range businesses {
		dealIDs[b.ID] = true
	}

	var nulled NulledRefs
	rows := make([]Activity, 0, len(activities))
	for _, a := range activities {
		var parts []string
		for _, s := range []string{a.Description, a.Notes} {
			if s != "" {
				parts = append(parts, s)
			}
		}

		activityType := DefaultActivityType
		var typeRef *ActivityTypeRef
		if a.ActivityType != nil {
			activityType = orDefault(a.ActivityType.Name, DefaultActivityType)
			if a.ActivityType.ID != "" {
				typeRef = &ActivityTypeRef{ID: a.ActivityType.ID, Name: a.ActivityType.Name, Color: a.ActivityType.Color}
			}
		}

		var attendant *AttendantRef
		if a.Attendant != nil {
			attendant = &AttendantRef{ID: a.Attendant.ID, Name: a.Attendant.Name, Email: a.Attendant.Email}
		}

		var dealID, contactID *string
		if a.Business != nil {
			dealID = ref(a.Business.ID, dealIDs, &nulled.Deals)
		}
		if a.Lead != nil {
			contactID = ref(a.Lead.ID, leadIDs, &nulled.Contacts)
		}

		rows = append(rows, Activity{
			ID:          a.ID,
			Title:       strings.TrimSpace(orDefault(a.Title, DefaultActivityName)),
			Description: optionalTrim(strings.Join(parts, "\n\n")),
			Type:        activityType,
			Date:        orDefault(a.StartDate, a.CreatedAt),
			EndDate:     optional(a.EndDate),
			Completed:   a.IsCompleted,
			DealID:      dealID,
			ContactID:   contactID,
			Notes:       optional(a.Notes),
			DatacrazyID: a.ID,
			Metadata: NewJSONB(ActivityMetadata{
				Attendant:    attendant,
				ActivityType: typeRef,
				Flow:         truthy(a.Flow),
				Required:     a.Required,
				Stage:        truthy(a.Stage),
			}),
			OrganizationID: orgID,
			CreatedAt:      optional(a.CreatedAt),
		})
	}
	return rows, nulled
}
