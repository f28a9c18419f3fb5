package feed

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appLog "hallcal/internal/log"
)

const v1Header = "Date,Day,Start,End,Room,Hirer,Contact,Session Type,Public Name,Show Online,Contact Email"

func v1Parser() *Parser {
	return NewParser(SchemaV1(), FormatAuto, time.UTC)
}

func TestParseScenarioKeepsOnlyVisibleValidRows(t *testing.T) {
	raw := strings.Join([]string{
		v1Header,
		`16/2/26,Monday,09:00,11:00,Main Hall,J Smith,0123,Public,Table Tennis,Yes,tt@example.org`,
		`17/2/26,Tuesday,10:00,12:00,Main Hall,A Jones,0456,Private,Birthday Party,No,`,
		`not-a-date,Wednesday,18:00,20:00,Main Hall,B Brown,0789,Public,Yoga,Yes,`,
	}, "\n")

	sessions, err := v1Parser().Parse(Source{ID: "test"}, []byte(raw))
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), s.Date)
	assert.Equal(t, "Monday", s.Day)
	assert.Equal(t, "09:00", s.StartTime)
	assert.Equal(t, "11:00", s.EndTime)
	assert.Equal(t, "Main Hall", s.Room)
	assert.Equal(t, "Table Tennis", s.PublicName)
	assert.Equal(t, "Public", s.SessionType)
	assert.Equal(t, "tt@example.org", s.ContactEmail)
	assert.Equal(t, "", s.Notes)
}

func TestParseRowsVisibilityAndCounts(t *testing.T) {
	row := func(visible string) []string {
		return []string{"16/2/26", "Monday", "09:00", "10:00", "Main Hall", "", "", "", "Pickleball", visible}
	}
	rows := [][]string{
		{"header"},
		row("Yes"),
		row(" yes "),
		row("YES"),
		row("No"),
		row(""),
		row("y"),
		{"16/2/26", "Monday"},
	}

	sessions, stats := v1Parser().ParseRows(rows)
	assert.Len(t, sessions, 3)
	assert.LessOrEqual(t, len(sessions), len(rows)-1)
	assert.Equal(t, 7, stats.Rows)
	assert.Equal(t, 3, stats.Kept)
	assert.Equal(t, 3, stats.Skipped[skipHidden])
	assert.Equal(t, 1, stats.Skipped[skipShortRow])
}

func TestParseRowsMissingRequiredFields(t *testing.T) {
	rows := [][]string{
		{"header"},
		{"", "Monday", "09:00", "", "", "", "", "", "Yoga", "Yes"},
		{"16/2/26", "", "09:00", "", "", "", "", "", "Yoga", "Yes"},
		{"16/2/26", "Monday", "09:00", "", "", "", "", "", "  ", "Yes"},
	}
	sessions, stats := v1Parser().ParseRows(rows)
	assert.Empty(t, sessions)
	assert.Equal(t, 3, stats.Skipped[skipMissingField])
}

func TestParseRowsPreservesSourceOrder(t *testing.T) {
	rows := [][]string{{"header"}}
	names := []string{"Zumba", "Archery", "Mahjong"}
	for _, n := range names {
		rows = append(rows, []string{"16/2/26", "Monday", "14:00", "", "", "", "", "", n, "Yes"})
	}
	sessions, _ := v1Parser().ParseRows(rows)
	require.Len(t, sessions, 3)
	for i, n := range names {
		assert.Equal(t, n, sessions[i].PublicName)
	}
}

func TestParseQuotedCells(t *testing.T) {
	raw := v1Header + "\n" +
		`"16/2/26",Monday,"09:00","10:30","Hall, Main",,,"Members","The ""Big"" Tournament",Yes,` + "\n"

	sessions, err := v1Parser().Parse(Source{}, []byte(raw))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Hall, Main", sessions[0].Room)
	assert.Equal(t, `The "Big" Tournament`, sessions[0].PublicName)
	assert.Equal(t, "Members", sessions[0].SessionType)
}

func TestParseFractionalTimesFromTable(t *testing.T) {
	raw := `{"rows":[
		{"cells":[{"value":"Date"}]},
		{"cells":[
			{"value":"2026-02-16"},{"value":"Monday"},{"value":0.5},{"value":0.5625,"formattedValue":"13:30"},
			{"value":"Main Hall"},{"value":""},{"value":""},{"value":"Public"},{"value":"Yoga"},{"value":"Yes"}
		]}
	]}`

	sessions, err := v1Parser().Parse(Source{}, []byte(raw))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "12:00", sessions[0].StartTime)
	assert.Equal(t, "13:30", sessions[0].EndTime)
	assert.Equal(t, time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC), sessions[0].Date)
}

func TestParseV2SchemaWithRoomFilter(t *testing.T) {
	row := func(room, name string) string {
		// Date,Day,Start,End,Room,Hirer,Contact,Email,Phone,Type,Public,Show,Notes,Invoice,Paid
		return strings.Join([]string{"3/3/2026", "Tuesday", "Day", "", room, "H", "C", "h@example.org", "0", "Private", name, "Yes", "Bring mats", "", ""}, ",")
	}
	raw := strings.Join([]string{
		"header",
		row("main hall", "Craft Fair"),
		row("Car Park", "Boot Sale"),
	}, "\n")

	schema := SchemaV2()
	schema.RoomFilter = true
	schema.Rooms = []string{"Main Hall", "Studio"}
	p := NewParser(schema, FormatCSV, time.UTC)
	sessions, err := p.Parse(Source{}, []byte(raw))
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, "Craft Fair", s.PublicName)
	assert.Equal(t, "Day", s.StartTime)
	assert.Equal(t, "Private", s.SessionType)
	assert.Equal(t, "h@example.org", s.ContactEmail)
	assert.Equal(t, "Bring mats", s.Notes)
	assert.True(t, s.FullDay())
}

func TestParseV2WithoutRoomsKeepsEveryRoom(t *testing.T) {
	row := func(room string) string {
		return strings.Join([]string{"3/3/2026", "Tuesday", "10:00", "11:00", room, "", "", "", "", "Public", "Club", "Yes", "", "", ""}, ",")
	}
	raw := strings.Join([]string{"header", row("Car Park"), row("Annex")}, "\n")

	sessions, err := NewParser(SchemaV2(), FormatCSV, time.UTC).Parse(Source{}, []byte(raw))
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestParseLogsWhenRoomFilterRejectsEverything(t *testing.T) {
	var buf bytes.Buffer
	appLog.SetOutput(&buf)
	defer appLog.SetOutput(os.Stderr)

	schema := SchemaV2()
	schema.RoomFilter = true
	schema.Rooms = []string{"Studio"}
	raw := "header\n" + strings.Join([]string{"3/3/2026", "Tuesday", "10:00", "11:00", "Main Hall", "", "", "", "", "Public", "Club", "Yes", "", "", ""}, ",")

	sessions, err := NewParser(schema, FormatCSV, time.UTC).Parse(Source{ID: "hall"}, []byte(raw))
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Contains(t, buf.String(), "room filter dropped all rows")
	assert.Contains(t, buf.String(), "rooms=Studio")

	_, stats := NewParser(schema, FormatCSV, time.UTC).ParseRows([][]string{{"header"}})
	assert.False(t, stats.AllRoomsRejected())
}

func TestParseUnterminatedQuoteDropsOnlyThatRow(t *testing.T) {
	raw := strings.Join([]string{
		v1Header,
		`16/2/26,Monday,09:00,10:00,Main Hall,J Smith,0123,Public,Row One,Yes,`,
		`17/2/26,Tuesday,09:00,10:00,Main Hall,"A Jones,0456,Public,Row Two,Yes,`,
		`18/2/26,Wednesday,09:00,10:00,Main Hall,B Brown,0789,Public,Row Three,Yes,`,
		`19/2/26,Thursday,09:00,10:00,Main Hall,C Green,0111,Public,Row Four,Yes,`,
	}, "\n")

	sessions, err := v1Parser().Parse(Source{}, []byte(raw))
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "Row One", sessions[0].PublicName)
	assert.Equal(t, "Row Three", sessions[1].PublicName)
	assert.Equal(t, "Row Four", sessions[2].PublicName)
}

func TestParseWholePayloadFailures(t *testing.T) {
	p := v1Parser()

	_, err := p.Parse(Source{}, []byte("   \n"))
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = NewParser(SchemaV1(), FormatJSON, time.UTC).Parse(Source{}, []byte(`{"rows": [`))
	assert.Error(t, err)
}

func TestParseHeaderOnlyIsEmptyNotError(t *testing.T) {
	sessions, err := v1Parser().Parse(Source{}, []byte(v1Header+"\n"))
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.NotNil(t, sessions)
}
