package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownSchemasValidate(t *testing.T) {
	for _, name := range SchemaNames() {
		s, ok := SchemaByName(name)
		require.True(t, ok, name)
		assert.NoError(t, s.Validate(), name)
	}
}

func TestSchemaByName(t *testing.T) {
	s, ok := SchemaByName(" V2 ")
	require.True(t, ok)
	assert.Equal(t, 15, s.Width)
	assert.False(t, s.RoomFilter)

	s, ok = SchemaByName("")
	require.True(t, ok)
	assert.Equal(t, "v1", s.Name)

	_, ok = SchemaByName("v9")
	assert.False(t, ok)
}

func TestSchemaValidateRejectsBrokenLayouts(t *testing.T) {
	s := SchemaV1()
	s.PublicName = -1
	assert.Error(t, s.Validate())

	s = SchemaV1()
	s.Visible = 12
	assert.Error(t, s.Validate())

	s = SchemaV1()
	s.RoomFilter = true
	assert.Error(t, s.Validate())
}

func TestRoomAllowed(t *testing.T) {
	s := SchemaV2()
	assert.True(t, s.roomAllowed("Car Park"))

	s.RoomFilter = true
	s.Rooms = []string{"Main Hall", "Studio"}
	assert.True(t, s.roomAllowed(" MAIN HALL "))
	assert.False(t, s.roomAllowed("Main"))
	assert.False(t, s.roomAllowed(""))

	assert.True(t, SchemaV1().roomAllowed("anything"))
}
