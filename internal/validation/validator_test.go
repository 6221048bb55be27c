package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris-hub/libris/internal/shared"
)

type bookInput struct {
	Title           string  `json:"title" validate:"required,notblank,max=200,safetext"`
	PublicationYear int     `json:"publication_year" validate:"gte=0,notfuture"`
	Notes           *string `json:"notes" validate:"omitempty,richtext"`
	Owner           string  `json:"owner" validate:"omitempty,username"`
}

func fixedClock() time.Time {
	return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	var domainErr *shared.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, shared.CodeValidation, domainErr.Code)
	return domainErr.Fields
}

func TestValidateAcceptsGoodInput(t *testing.T) {
	v := NewWithClock(fixedClock)
	notes := "a long review of the book"
	err := v.Validate(bookInput{Title: "Animal Farm", PublicationYear: 1945, Notes: &notes, Owner: "jane.doe+lib"})
	assert.NoError(t, err)
}

func TestValidateFutureYear(t *testing.T) {
	v := NewWithClock(fixedClock)
	fields := fieldsOf(t, v.Validate(bookInput{Title: "Later", PublicationYear: 2025}))
	assert.Equal(t, "publication year cannot be in the future; current year is 2024", fields["publication_year"])

	assert.NoError(t, v.Validate(bookInput{Title: "Now", PublicationYear: 2024}))
}

func TestValidateUsesJSONNames(t *testing.T) {
	v := New()
	fields := fieldsOf(t, v.Validate(bookInput{Title: "   "}))
	assert.Equal(t, "this field is required", fields["title"])
}

func TestValidateMarkupAndSQL(t *testing.T) {
	v := NewWithClock(fixedClock)
	fields := fieldsOf(t, v.Validate(bookInput{Title: "<script>alert(1)</script>", PublicationYear: 1999}))
	assert.Equal(t, ErrDangerousMarkup.Error(), fields["title"])

	notes := "nice; DROP   TABLE books"
	fields = fieldsOf(t, v.Validate(bookInput{Title: "ok", PublicationYear: 1999, Notes: &notes}))
	assert.Equal(t, ErrSQLPattern.Error(), fields["notes"])

	fields = fieldsOf(t, v.Validate(bookInput{Title: "ok", PublicationYear: 1999, Owner: "bad name"}))
	assert.Contains(t, fields["owner"], "letters, digits")
}

func TestCheckMarkupNormalisesCompatibilityForms(t *testing.T) {
	assert.ErrorIs(t, CheckMarkup("＜script＞"), ErrDangerousMarkup)
	assert.ErrorIs(t, CheckMarkup("JavaScript:void(0)"), ErrDangerousMarkup)
	assert.NoError(t, CheckMarkup("a < b and c > d"))
}

func TestCheckRichText(t *testing.T) {
	assert.ErrorIs(t, CheckRichText("1 UNION\nSELECT password"), ErrSQLPattern)
	assert.ErrorIs(t, CheckRichText("wait -- comment"), ErrSQLPattern)
	assert.NoError(t, CheckRichText("Updated the settings yesterday"))
}
