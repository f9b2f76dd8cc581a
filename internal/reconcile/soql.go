package reconcile

import (
	"fmt"
	"strings"
)

// Sanitize escapes single quotes so a value can be embedded in a quoted
// SOQL literal. Every query below passes user data through it.
func Sanitize(param string) string {
	return strings.ReplaceAll(param, "'", `\'`)
}

// lookupLimit caps lookups at two rows. totalSize is capped by LIMIT, and
// QueryOne needs to see a second match to reject an ambiguous result.
const lookupLimit = 2

func accountByNameQuery(name string) string {
	name = Sanitize(name)
	return fmt.Sprintf("SELECT Id FROM Account WHERE Name = '%s' OR %s = '%s' LIMIT %d",
		name, FieldAccountNameFrench, name, lookupLimit)
}

func contactByUserIDQuery(userID string) string {
	return fmt.Sprintf("SELECT Id, FirstName, LastName, AccountId FROM Contact WHERE %s = '%s' LIMIT %d",
		FieldContactExternalID, Sanitize(userID), lookupLimit)
}

func contactByUserIDOrEmailQuery(userID, email string) string {
	return fmt.Sprintf("SELECT Id, FirstName, LastName, AccountId FROM Contact WHERE %s = '%s' OR Email = '%s' LIMIT %d",
		FieldContactExternalID, Sanitize(userID), Sanitize(email), lookupLimit)
}

func engagementByServiceIDQuery(serviceID string) string {
	return fmt.Sprintf("SELECT Id, Name, ContactId, AccountId FROM Opportunity WHERE %s = '%s' LIMIT %d",
		FieldEngagementExternalID, Sanitize(serviceID), lookupLimit)
}

func contactRoleQuery(engagementID, contactID string) string {
	return fmt.Sprintf("SELECT Id, OpportunityId, ContactId FROM OpportunityContactRole WHERE OpportunityId = '%s' AND ContactId = '%s' LIMIT %d",
		Sanitize(engagementID), Sanitize(contactID), lookupLimit)
}
