package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memberPayload struct {
	Name  string `json:"name" validate:"required,max=100,notnumeric"`
	Phone string `json:"phone" validate:"required,max=30,phone"`
	ISBN  string `json:"isbn" validate:"required,max=20,bookisbn"`
}

func TestValidPhone(t *testing.T) {
	cases := map[string]bool{
		"0812-3456-7890":     true,
		"+62 (21) 555-0199":  true,
		"123456789":          false,
		"1234567890123456":   false,
		"0812 3456 78ab":     false,
		"(021) 555 0199 123": true,
	}
	for input, want := range cases {
		assert.Equal(t, want, ValidPhone(input), input)
	}
}

func TestValidISBN(t *testing.T) {
	assert.True(t, ValidISBN("0-306-40615-2"))
	assert.True(t, ValidISBN("978 0 306 40615 7"))
	assert.False(t, ValidISBN("12345"))
	assert.Equal(t, "9780306406157", NormalizeISBN(" 978-0-306-40615-7 "))
}

func TestStructValidation(t *testing.T) {
	v := New()

	require.NoError(t, v.Struct(memberPayload{Name: "Ana", Phone: "081234567890", ISBN: "0306406152"}))

	err := v.Struct(memberPayload{Name: "12345", Phone: "123", ISBN: "978-0"})
	require.Error(t, err)
	msg := Describe(err)
	assert.Contains(t, msg, "name: cannot contain only numbers")
	assert.Contains(t, msg, "phone: must contain 10 to 15 digits")
	assert.Contains(t, msg, "isbn: must contain 10 or 13 characters")
}
