package domain

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		expected error
	}{
		{"Valid username", "clerk", nil},
		{"Valid username with numbers", "clerk123", nil},
		{"Valid username with underscore", "office_clerk", nil},
		{"Valid username with dash", "office-clerk", nil},
		{"Valid minimum length", "abc", nil},
		{"Valid maximum length", "abcdefghijklmnopqrstuvwxyz123456", nil},
		{"Invalid - too short", "ab", ErrUsernameTooShort},
		{"Invalid - too long", "abcdefghijklmnopqrstuvwxyz1234567", ErrUsernameTooLong},
		{"Invalid - spaces", "office clerk", ErrInvalidUsername},
		{"Invalid - special characters", "clerk@office", ErrInvalidUsername},
		{"Invalid - starts with number", "123clerk", ErrInvalidUsername},
		{"Invalid - starts with dash", "-clerk", ErrInvalidUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateUsername(tt.username))
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.ErrorIs(t, ValidatePassword("short"), ErrPasswordTooShort)
	assert.ErrorIs(t, ValidatePassword(strings.Repeat("x", 129)), ErrPasswordTooLong)
	assert.NoError(t, ValidatePassword("long-enough"))
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{"Empty is allowed", "", true},
		{"Valid email", "clerk@example.com", true},
		{"Valid email with subdomain", "clerk@mail.example.com", true},
		{"Invalid - no @", "clerkexample.com", false},
		{"Invalid - display name", "Clerk <clerk@example.com>", false},
		{"Invalid - no domain", "clerk@", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func validCorrespondence() *Correspondence {
	return &Correspondence{
		Subject:            "Test",
		Content:            "Body",
		Type:               DirectionIncoming,
		Priority:           PriorityNormal,
		Status:             StatusPending,
		Sender:             ExternalParty("Ministry of Trade"),
		Recipient:          Party{Kind: PartyNone},
		CorrespondenceDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCorrespondenceValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validCorrespondence().Validate())
	})

	t.Run("whitespace subject", func(t *testing.T) {
		c := validCorrespondence()
		c.Subject = "   "
		assert.ErrorIs(t, c.Validate(), ErrSubjectRequired)
	})

	t.Run("subject too long", func(t *testing.T) {
		c := validCorrespondence()
		c.Subject = strings.Repeat("s", MaxSubjectLength+1)
		assert.ErrorIs(t, c.Validate(), ErrSubjectTooLong)
	})

	t.Run("missing content", func(t *testing.T) {
		c := validCorrespondence()
		c.Content = ""
		assert.ErrorIs(t, c.Validate(), ErrContentRequired)
	})

	t.Run("missing type", func(t *testing.T) {
		c := validCorrespondence()
		c.Type = ""
		assert.ErrorIs(t, c.Validate(), ErrTypeRequired)
	})

	t.Run("unknown type", func(t *testing.T) {
		c := validCorrespondence()
		c.Type = "sideways"
		assert.ErrorIs(t, c.Validate(), ErrInvalidType)
	})

	t.Run("missing date", func(t *testing.T) {
		c := validCorrespondence()
		c.CorrespondenceDate = time.Time{}
		assert.ErrorIs(t, c.Validate(), ErrDateRequired)
	})

	t.Run("party with both fields", func(t *testing.T) {
		c := validCorrespondence()
		id := uint(3)
		c.Recipient = Party{Kind: PartyExternal, External: "X", ContactID: &id}
		assert.ErrorIs(t, c.Validate(), ErrPartyConflict)
	})
}

func TestNewParty(t *testing.T) {
	id := uint(7)
	zero := uint(0)

	p, err := NewParty(&id, "")
	require.NoError(t, err)
	assert.Equal(t, PartyContact, p.Kind)
	assert.Equal(t, uint(7), *p.ContactID)

	p, err = NewParty(nil, "  Chamber of Commerce ")
	require.NoError(t, err)
	assert.Equal(t, PartyExternal, p.Kind)
	assert.Equal(t, "Chamber of Commerce", p.External)
	assert.Nil(t, p.ContactID)

	p, err = NewParty(&zero, "")
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())

	_, err = NewParty(&id, "Someone")
	assert.ErrorIs(t, err, ErrPartyConflict)

	_, err = NewParty(nil, strings.Repeat("n", MaxExternalPartyLength+1))
	assert.ErrorIs(t, err, ErrPartyExternalTooLong)
}

func TestNewReferenceNumber(t *testing.T) {
	now := time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC)
	pattern := regexp.MustCompile(`^ECS-20240309-[0-9A-F]{8}$`)

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		ref := NewReferenceNumber(now)
		require.Regexp(t, pattern, ref)
		seen[ref] = struct{}{}
	}
	assert.Len(t, seen, 200)
}

func TestParseEnums(t *testing.T) {
	p, err := ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, p)

	p, err = ParsePriority("URGENT")
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, p)

	_, err = ParsePriority("whenever")
	assert.ErrorIs(t, err, ErrInvalidPriority)

	s, err := ParseStatus("")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, s)

	_, err = ParseStatus("lost")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	d, err := ParseDirection(" Outgoing ")
	require.NoError(t, err)
	assert.Equal(t, DirectionOutgoing, d)
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	past := time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)
	today := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	c := validCorrespondence()
	assert.False(t, c.IsOverdue(now))

	c.DueDate = &past
	assert.True(t, c.IsOverdue(now))

	c.DueDate = &today
	assert.False(t, c.IsOverdue(now))

	c.DueDate = &past
	c.Status = StatusProcessed
	assert.False(t, c.IsOverdue(now))
}

func TestPagination(t *testing.T) {
	f := CorrespondenceFilter{Page: 0, PageSize: 500, Search: "  tax "}
	f.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, MaxPageSize, f.PageSize)
	assert.Equal(t, "tax", f.Search)
	assert.Equal(t, 0, f.Offset())

	page := NewPage([]int{1, 2}, 41, 2, 20)
	assert.Equal(t, 3, page.Pages)
	assert.True(t, page.HasPrev())
	assert.True(t, page.HasNext())

	empty := NewPage[int](nil, 0, 1, 20)
	assert.NotNil(t, empty.Items)
	assert.False(t, empty.HasNext())
}
