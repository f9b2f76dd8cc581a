package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/servicesync/internal/config"
	"github.com/JonMunkholm/servicesync/internal/logging"
	"github.com/JonMunkholm/servicesync/internal/salesforce"
)

func sampleRow() ServiceUserRow {
	return ServiceUserRow{
		ServiceID:         "svc-1",
		ServiceName:       "Passport Notifications",
		OrganisationNotes: ptr("Immigration Canada > IRCC Digital"),
		Restricted:        "false",
		UserID:            "user-1",
		UserName:          "Jane Q Doe",
		UserEmail:         "jane.doe@example.gc.ca",
	}
}

func TestResolveAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("blank name falls back without a query", func(t *testing.T) {
		s := newFakeSession()
		r := newTestResolver(s, testConfig(), nil)

		for _, name := range []*string{nil, ptr(""), ptr("   ")} {
			id, err := r.ResolveAccount(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, genericAccountID, id)
		}
		assert.Empty(t, s.queries)
	})

	t.Run("match by name", func(t *testing.T) {
		s := newFakeSession()
		s.on(accountByNameQuery("Health Canada"), salesforce.Record{"Id": "001HC"})
		r := newTestResolver(s, testConfig(), nil)

		id, err := r.ResolveAccount(ctx, ptr("Health Canada"))
		require.NoError(t, err)
		assert.Equal(t, "001HC", id)
	})

	t.Run("no match falls back", func(t *testing.T) {
		s := newFakeSession()
		r := newTestResolver(s, testConfig(), nil)

		id, err := r.ResolveAccount(ctx, ptr("Unknown Org"))
		require.NoError(t, err)
		assert.Equal(t, genericAccountID, id)
		assert.Len(t, s.queries, 1)
	})

	t.Run("ambiguous match falls back", func(t *testing.T) {
		s := newFakeSession()
		s.on(accountByNameQuery("Health Canada"), salesforce.Record{"Id": "001A"}, salesforce.Record{"Id": "001B"})
		r := newTestResolver(s, testConfig(), nil)

		id, err := r.ResolveAccount(ctx, ptr("Health Canada"))
		require.NoError(t, err)
		assert.Equal(t, genericAccountID, id)
	})

	t.Run("ambiguity survives the row limit", func(t *testing.T) {
		s := newFakeSession()
		s.on(accountByNameQuery("Health Canada"),
			salesforce.Record{"Id": "001A"}, salesforce.Record{"Id": "001B"}, salesforce.Record{"Id": "001C"})
		r := newTestResolver(s, testConfig(), nil)

		id, err := r.ResolveAccount(ctx, ptr("Health Canada"))
		require.NoError(t, err)
		assert.Equal(t, genericAccountID, id)
		require.Len(t, s.queries, 1)
		assert.True(t, strings.HasSuffix(s.queries[0], " LIMIT 2"), s.queries[0])
	})

	t.Run("query error is returned", func(t *testing.T) {
		s := newFakeSession()
		s.queryErr[accountByNameQuery("Health Canada")] = errors.New("status 503")
		r := newTestResolver(s, testConfig(), nil)

		_, err := r.ResolveAccount(ctx, ptr("Health Canada"))
		assert.ErrorContains(t, err, "account lookup")
	})
}

func TestResolveContact_Strict(t *testing.T) {
	ctx := context.Background()
	row := sampleRow()
	row.AccountID = "001HC"

	t.Run("existing contact is returned untouched", func(t *testing.T) {
		s := newFakeSession()
		s.on(contactByUserIDQuery("user-1"), salesforce.Record{"Id": "003EXIST"})
		r := newTestResolver(s, testConfig(), nil)

		got, err := r.ResolveContact(ctx, row)
		require.NoError(t, err)
		assert.Equal(t, ContactResolution{ID: "003EXIST", Action: ContactFound}, got)
		assert.Empty(t, s.creates)
		assert.Empty(t, s.updates)
	})

	t.Run("duplicate contacts count as missing", func(t *testing.T) {
		s := newFakeSession()
		s.on(contactByUserIDQuery("user-1"), salesforce.Record{"Id": "003A"}, salesforce.Record{"Id": "003B"})
		r := newTestResolver(s, testConfig(), nil)

		got, err := r.ResolveContact(ctx, row)
		require.NoError(t, err)
		assert.Equal(t, ContactCreated, got.Action)
		assert.Len(t, s.creates, 1)
	})

	t.Run("missing contact is created", func(t *testing.T) {
		s := newFakeSession()
		j := &memJournal{}
		r := newTestResolver(s, testConfig(), j)

		got, err := r.ResolveContact(logging.WithRun(ctx, "run-1"), row)
		require.NoError(t, err)
		assert.Equal(t, ContactCreated, got.Action)
		assert.NotEmpty(t, got.ID)

		require.Len(t, s.creates, 1)
		assert.Equal(t, salesforce.Fields{
			"FirstName":         "Jane",
			"LastName":          "Q Doe",
			"Title":             ContactTitle,
			"CDS_Contact_ID__c": "user-1",
			"Email":             "jane.doe@example.gc.ca",
			"AccountId":         "001HC",
		}, s.creates[0].Fields)

		require.Len(t, j.entries, 1)
		assert.Equal(t, "run-1", j.entries[0].RunID)
		assert.True(t, j.entries[0].Success)
		assert.Equal(t, got.ID, j.entries[0].RecordID)
	})

	t.Run("rejected create is logged and continues", func(t *testing.T) {
		s := newFakeSession()
		s.reject[ObjectContact] = true
		j := &memJournal{}
		r := newTestResolver(s, testConfig(), j)

		got, err := r.ResolveContact(ctx, row)
		require.NoError(t, err)
		assert.Equal(t, ContactResolution{Action: ContactCreateFailed}, got)
		require.Len(t, j.entries, 1)
		assert.False(t, j.entries[0].Success)
		assert.Contains(t, j.entries[0].Detail, "REQUIRED_FIELD_MISSING")
	})

	t.Run("transport error is returned", func(t *testing.T) {
		s := newFakeSession()
		s.failOn[ObjectContact] = errors.New("create Contact: connection refused")
		r := newTestResolver(s, testConfig(), nil)

		_, err := r.ResolveContact(ctx, row)
		assert.ErrorContains(t, err, "contact create")
	})
}

func TestResolveContact_Relaxed(t *testing.T) {
	ctx := context.Background()
	row := sampleRow()
	row.AccountID = "001HC"

	cfg := testConfig()
	cfg.Sync.ContactLookup = config.ContactLookupRelaxed

	t.Run("match by email is updated", func(t *testing.T) {
		s := newFakeSession()
		s.on(contactByUserIDOrEmailQuery("user-1", "jane.doe@example.gc.ca"), salesforce.Record{"Id": "003BYMAIL"})
		r := newTestResolver(s, cfg, nil)

		got, err := r.ResolveContact(ctx, row)
		require.NoError(t, err)
		assert.Equal(t, ContactResolution{ID: "003BYMAIL", Action: ContactUpdated}, got)
		require.Len(t, s.updates, 1)
		assert.Equal(t, "003BYMAIL", s.updates[0].ID)
		assert.Equal(t, "user-1", s.updates[0].Fields["CDS_Contact_ID__c"])
		assert.Empty(t, s.creates)
	})

	t.Run("failed update keeps the id", func(t *testing.T) {
		s := newFakeSession()
		s.on(contactByUserIDOrEmailQuery("user-1", "jane.doe@example.gc.ca"), salesforce.Record{"Id": "003BYMAIL"})
		s.reject[ObjectContact] = true
		r := newTestResolver(s, cfg, nil)

		got, err := r.ResolveContact(ctx, row)
		require.NoError(t, err)
		assert.Equal(t, ContactResolution{ID: "003BYMAIL", Action: ContactUpdateFailed}, got)
	})
}

func TestResolveEngagement(t *testing.T) {
	ctx := context.Background()

	t.Run("existing engagement returns its owner", func(t *testing.T) {
		s := newFakeSession()
		s.on(engagementByServiceIDQuery("svc-1"), salesforce.Record{"Id": "006E", "AccountId": "001OWNER"})
		r := newTestResolver(s, testConfig(), nil)

		ref, created, err := r.ResolveEngagement(ctx, sampleRow())
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, &EngagementRef{ID: "006E", AccountID: "001OWNER"}, ref)
		assert.Empty(t, s.creates)
	})

	t.Run("missing engagement is created with its line item", func(t *testing.T) {
		s := newFakeSession()
		r := newTestResolver(s, testConfig(), nil)

		row := sampleRow()
		row.Restricted = "true"
		row.ServiceName = "Service " + strings.Repeat("x", 200)
		row.AccountID = "001HC"

		ref, created, err := r.ResolveEngagement(ctx, row)
		require.NoError(t, err)
		assert.True(t, created)
		require.NotNil(t, ref)
		assert.Equal(t, "001HC", ref.AccountID)

		engagements := s.createsOf(ObjectEngagement)
		require.Len(t, engagements, 1)
		fields := engagements[0].Fields
		assert.Equal(t, ref.ID, engagements[0].ID)
		assert.Len(t, []rune(fields["Name"].(string)), EngagementNameMaxLength)
		assert.Equal(t, "001HC", fields["AccountId"])
		assert.Equal(t, "svc-1", fields["CDS_Opportunity_Number__c"])
		assert.Equal(t, "IRCC Digital", fields["Notify_Organization_Other__c"])
		assert.Equal(t, "2024-03-15", fields["CloseDate"])
		assert.Equal(t, "012RT", fields["RecordTypeId"])
		assert.Equal(t, EngagementStageTrial, fields["StageName"])
		assert.Equal(t, EngagementType, fields["Type"])
		assert.Equal(t, EngagementTeam, fields["CDS_Lead_Team__c"])
		assert.Equal(t, EngagementProduct, fields["Product_to_Add__c"])

		items := s.createsOf(ObjectLineItem)
		require.Len(t, items, 1)
		assert.Equal(t, salesforce.Fields{
			"OpportunityId":    ref.ID,
			"PricebookEntryId": "01uPB",
			"Product2Id":       "01tPROD",
			"Quantity":         1,
			"UnitPrice":        0.0,
		}, items[0].Fields)
	})

	t.Run("live stage and null other name", func(t *testing.T) {
		s := newFakeSession()
		r := newTestResolver(s, testConfig(), nil)

		row := sampleRow()
		row.OrganisationNotes = nil

		_, _, err := r.ResolveEngagement(ctx, row)
		require.NoError(t, err)
		fields := s.createsOf(ObjectEngagement)[0].Fields
		assert.Equal(t, EngagementStageLive, fields["StageName"])
		assert.Nil(t, fields["Notify_Organization_Other__c"])
	})

	t.Run("rejected create skips the line item", func(t *testing.T) {
		s := newFakeSession()
		s.reject[ObjectEngagement] = true
		r := newTestResolver(s, testConfig(), nil)

		ref, created, err := r.ResolveEngagement(ctx, sampleRow())
		require.NoError(t, err)
		assert.False(t, created, "a rejected create is not a created engagement")
		assert.Empty(t, ref.ID)
		assert.Empty(t, s.createsOf(ObjectLineItem))
	})

	t.Run("lookup mode never creates", func(t *testing.T) {
		s := newFakeSession()
		cfg := testConfig()
		cfg.Sync.EngagementMode = config.EngagementModeLookup
		r := newTestResolver(s, cfg, nil)

		ref, created, err := r.ResolveEngagement(ctx, sampleRow())
		require.NoError(t, err)
		assert.Nil(t, ref)
		assert.False(t, created)
		assert.Empty(t, s.creates)
	})
}

func TestLinkContactRole(t *testing.T) {
	ctx := context.Background()

	t.Run("existing role is not duplicated", func(t *testing.T) {
		s := newFakeSession()
		s.on(contactRoleQuery("006E", "003C"), salesforce.Record{"Id": "00KROLE"})
		r := newTestResolver(s, testConfig(), nil)

		created, err := r.LinkContactRole(ctx, "006E", "003C")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Empty(t, s.creates)
	})

	t.Run("missing role is created", func(t *testing.T) {
		s := newFakeSession()
		r := newTestResolver(s, testConfig(), nil)

		created, err := r.LinkContactRole(ctx, "006E", "003C")
		require.NoError(t, err)
		assert.True(t, created)
		require.Len(t, s.creates, 1)
		assert.Equal(t, salesforce.Fields{"ContactId": "003C", "OpportunityId": "006E"}, s.creates[0].Fields)
	})
}
