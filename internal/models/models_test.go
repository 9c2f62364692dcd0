package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeISBN(t *testing.T) {
	cases := map[string]string{
		"978-0-14-143951-8": "9780141439518",
		" 0 8044 2957 x ":   "080442957X",
		"9780141439518":     "9780141439518",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeISBN(in), in)
	}
}

func TestPublicationBeforeSaveNormalizes(t *testing.T) {
	p := &Publication{ISBN: "0-8044-2957-x"}
	assert.NoError(t, p.BeforeSave(nil))
	assert.Equal(t, "080442957X", p.NormalizedISBN)
}

func TestBaseBeforeCreateKeepsExistingID(t *testing.T) {
	var b Base
	assert.NoError(t, b.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, b.ID)

	id := b.ID
	assert.NoError(t, b.BeforeCreate(nil))
	assert.Equal(t, id, b.ID)
}
