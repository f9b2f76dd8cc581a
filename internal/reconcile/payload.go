package reconcile

import (
	"time"

	"github.com/JonMunkholm/servicesync/internal/salesforce"
)

// CRM objects.
const (
	ObjectAccount     = "Account"
	ObjectContact     = "Contact"
	ObjectEngagement  = "Opportunity"
	ObjectLineItem    = "OpportunityLineItem"
	ObjectContactRole = "OpportunityContactRole"
)

// Custom fields.
const (
	FieldAccountNameFrench     = "CDS_AccountNameFrench__c"
	FieldContactExternalID     = "CDS_Contact_ID__c"
	FieldEngagementExternalID  = "CDS_Opportunity_Number__c"
	FieldEngagementOtherName   = "Notify_Organization_Other__c"
	FieldEngagementLeadTeam    = "CDS_Lead_Team__c"
	FieldEngagementProductName = "Product_to_Add__c"
)

// Fixed engagement values.
const (
	EngagementProduct    = "GC Notify"
	EngagementTeam       = "Platform"
	EngagementType       = "New Business"
	EngagementStageLive  = "Live"
	EngagementStageTrial = "Trial Account"

	// EngagementNameMaxLength is the Opportunity.Name field limit.
	EngagementNameMaxLength = 120

	ContactTitle = "created by Notify API"

	closeDateLayout = "2006-01-02"
)

// AccountPayload is the part of an Account this tool reads.
type AccountPayload struct {
	ID string
}

func accountFromRecord(rec salesforce.Record) AccountPayload {
	return AccountPayload{ID: rec.String("Id")}
}

// EngagementRef identifies an Opportunity and its owning account.
type EngagementRef struct {
	ID        string
	AccountID string
}

func engagementFromRecord(rec salesforce.Record) *EngagementRef {
	return &EngagementRef{ID: rec.String("Id"), AccountID: rec.String("AccountId")}
}

// ContactPayload is the full set of Contact fields derived from a row. It is
// used for both create and update, so an update fully replaces these fields.
type ContactPayload struct {
	FirstName  string
	LastName   string
	Title      string
	ExternalID string
	Email      string
	AccountID  string
}

// NewContactPayload derives Contact fields from a row with its account attached.
func NewContactPayload(row ServiceUserRow) ContactPayload {
	name := SplitName(row.UserName)
	return ContactPayload{
		FirstName:  name.First,
		LastName:   name.Last,
		Title:      ContactTitle,
		ExternalID: row.UserID,
		Email:      row.UserEmail,
		AccountID:  row.AccountID,
	}
}

func (p ContactPayload) Fields() salesforce.Fields {
	return salesforce.Fields{
		"FirstName":            p.FirstName,
		"LastName":             p.LastName,
		"Title":                p.Title,
		FieldContactExternalID: p.ExternalID,
		"Email":                p.Email,
		"AccountId":            p.AccountID,
	}
}

// EngagementPayload is a new Opportunity for a service.
type EngagementPayload struct {
	Name         string
	AccountID    string
	ServiceID    string
	OtherName    *string
	CloseDate    time.Time
	RecordTypeID string
	Stage        string
	Type         string
	Team         string
	Product      string
}

// NewEngagementPayload builds the Opportunity for a row's service, owned by row.AccountID.
func NewEngagementPayload(row ServiceUserRow, recordTypeID string, today time.Time) EngagementPayload {
	stage := EngagementStageLive
	if row.IsRestricted() {
		stage = EngagementStageTrial
	}
	return EngagementPayload{
		Name:         truncate(row.ServiceName, EngagementNameMaxLength),
		AccountID:    row.AccountID,
		ServiceID:    row.ServiceID,
		OtherName:    OrgNoteSegment(row.OrganisationNotes, OrgNoteOtherIndex),
		CloseDate:    today,
		RecordTypeID: recordTypeID,
		Stage:        stage,
		Type:         EngagementType,
		Team:         EngagementTeam,
		Product:      EngagementProduct,
	}
}

func (p EngagementPayload) Fields() salesforce.Fields {
	var other any
	if p.OtherName != nil {
		other = *p.OtherName
	}
	return salesforce.Fields{
		"Name":                     p.Name,
		"AccountId":                p.AccountID,
		FieldEngagementExternalID:  p.ServiceID,
		FieldEngagementOtherName:   other,
		"CloseDate":                p.CloseDate.Format(closeDateLayout),
		"RecordTypeId":             p.RecordTypeID,
		"StageName":                p.Stage,
		"Type":                     p.Type,
		FieldEngagementLeadTeam:    p.Team,
		FieldEngagementProductName: p.Product,
	}
}

// LineItemPayload attaches the product to a new Opportunity.
type LineItemPayload struct {
	OpportunityID    string
	PricebookEntryID string
	ProductID        string
	Quantity         int
	UnitPrice        float64
}

func (p LineItemPayload) Fields() salesforce.Fields {
	return salesforce.Fields{
		"OpportunityId":    p.OpportunityID,
		"PricebookEntryId": p.PricebookEntryID,
		"Product2Id":       p.ProductID,
		"Quantity":         p.Quantity,
		"UnitPrice":        p.UnitPrice,
	}
}

// ContactRolePayload links a Contact to an Opportunity.
type ContactRolePayload struct {
	ContactID     string
	OpportunityID string
}

func (p ContactRolePayload) Fields() salesforce.Fields {
	return salesforce.Fields{
		"ContactId":     p.ContactID,
		"OpportunityId": p.OpportunityID,
	}
}
