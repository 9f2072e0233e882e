// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package validation_test

import (
	"strings"
	"testing"

	"codeberg.org/oliverandrich/gemaccounts/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type forgotForm struct {
	Username string `form:"username" validate:"required,max=30,username"`
	Answer   string `form:"random_security_question_answer" validate:"required,max=128"`
}

type pinForm struct {
	PIN string `form:"password" validate:"required,pin"`
}

func TestStruct_Valid(t *testing.T) {
	err := validation.Struct(forgotForm{Username: "tester", Answer: "dog"})

	assert.NoError(t, err)
}

func TestStruct_UsesFormTagAsFieldName(t *testing.T) {
	err := validation.Struct(forgotForm{Username: "bad name!", Answer: "dog"})
	require.Error(t, err)

	fe, ok := validation.FirstError(err)
	require.True(t, ok)
	assert.Equal(t, "username", fe.Field())
	assert.Equal(t, "username", fe.Tag())
}

func TestStruct_Required(t *testing.T) {
	err := validation.Struct(forgotForm{Username: "tester"})
	require.Error(t, err)

	fe, ok := validation.FirstError(err)
	require.True(t, ok)
	assert.Equal(t, "random_security_question_answer", fe.Field())
	assert.Equal(t, "required", fe.Tag())
}

func TestStruct_MaxLength(t *testing.T) {
	err := validation.Struct(forgotForm{Username: "abcdefghijklmnopqrstuvwxyz012345", Answer: "dog"})
	require.Error(t, err)

	fe, ok := validation.FirstError(err)
	require.True(t, ok)
	assert.Equal(t, "max", fe.Tag())
	assert.Equal(t, "30", fe.Param())

	err = validation.Struct(forgotForm{Username: "tester", Answer: strings.Repeat("a", 129)})
	fe, ok = validation.FirstError(err)
	require.True(t, ok)
	assert.Equal(t, "random_security_question_answer", fe.Field())
	assert.Equal(t, "128", fe.Param())
}

func TestStruct_PIN(t *testing.T) {
	tests := []struct {
		pin   string
		valid bool
	}{
		{"1234", true},
		{"0000", true},
		{"123", false},
		{"12345", false},
		{"12a4", false},
		{"-123", false},
		{"1.23", false},
		{"١٢٣٤", false}, // non-ASCII digits
	}

	for _, tt := range tests {
		t.Run(tt.pin, func(t *testing.T) {
			err := validation.Struct(pinForm{PIN: tt.pin})
			assert.Equal(t, tt.valid, err == nil)
			assert.Equal(t, tt.valid, validation.ValidPIN(tt.pin))
		})
	}
}

func TestFirstError_NotValidationError(t *testing.T) {
	_, ok := validation.FirstError(assert.AnError)

	assert.False(t, ok)
}

func TestValidUsername(t *testing.T) {
	assert.True(t, validation.ValidUsername("tester"))
	assert.True(t, validation.ValidUsername("first.last+tag@x-y"))
	assert.True(t, validation.ValidUsername("zoë_1"))
	assert.False(t, validation.ValidUsername(""))
	assert.False(t, validation.ValidUsername("with space"))
	assert.False(t, validation.ValidUsername("semi;colon"))
	assert.False(t, validation.ValidUsername("abcdefghijklmnopqrstuvwxyz012345"))
}

func TestContainsContactDetails(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"tester", false},
		{"user_2024", false},
		{"someone@example.com", true},
		{"mail:a.b@c.org", true},
		{"0821231234", true},
		{"call+27821231234", true},
		{"call 082 123 1234", true},
		{"agent007", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, validation.ContainsContactDetails(tt.input))
		})
	}
}
