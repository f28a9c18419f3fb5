package feed

import (
	"errors"
	"fmt"
	"strings"
)

// Schema maps logical session fields onto cell positions of a feed row.
// A negative index means the layout has no such column.
type Schema struct {
	Name string

	Date         int
	Day          int
	Start        int
	End          int
	Room         int
	Hirer        int
	Contact      int
	SessionType  int
	PublicName   int
	Visible      int
	ContactEmail int
	Notes        int

	// Width is the minimum number of cells a data row must carry.
	Width int

	// RoomFilter drops rows whose room is not in Rooms.
	RoomFilter bool
	Rooms      []string
}

// SchemaV1 is the original sheet layout:
// A=Date B=Day C=Start D=End E=Room F=Hirer G=Contact H=Session Type
// I=Public Name J=Show Online K=Contact Email.
func SchemaV1() Schema {
	return Schema{
		Name:         "v1",
		Date:         0,
		Day:          1,
		Start:        2,
		End:          3,
		Room:         4,
		Hirer:        5,
		Contact:      6,
		SessionType:  7,
		PublicName:   8,
		Visible:      9,
		ContactEmail: 10,
		Notes:        -1,
		Width:        10,
	}
}

// SchemaV2 is the 15-column layout with phone, notes and booking admin
// columns. Column I (phone) and N/O (invoice, paid) are not read. It has no
// room allow-list of its own; configure one with feed.rooms.
func SchemaV2() Schema {
	return Schema{
		Name:         "v2",
		Date:         0,
		Day:          1,
		Start:        2,
		End:          3,
		Room:         4,
		Hirer:        5,
		Contact:      6,
		ContactEmail: 7,
		SessionType:  9,
		PublicName:   10,
		Visible:      11,
		Notes:        12,
		Width:        15,
	}
}

// SchemaNames lists the known layouts.
func SchemaNames() []string {
	return []string{"v1", "v2"}
}

// SchemaByName returns a known layout.
func SchemaByName(name string) (Schema, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "v1", "":
		return SchemaV1(), true
	case "v2":
		return SchemaV2(), true
	default:
		return Schema{}, false
	}
}

// Validate checks that the required columns exist and fit inside Width.
func (s Schema) Validate() error {
	required := []struct {
		name string
		idx  int
	}{
		{"date", s.Date},
		{"day", s.Day},
		{"public_name", s.PublicName},
		{"visible", s.Visible},
	}
	for _, r := range required {
		if r.idx < 0 {
			return fmt.Errorf("schema %s: %s column is required", s.Name, r.name)
		}
		if r.idx >= s.Width {
			return fmt.Errorf("schema %s: %s column %d outside width %d", s.Name, r.name, r.idx, s.Width)
		}
	}
	if s.RoomFilter && len(s.Rooms) == 0 {
		return errors.New("schema " + s.Name + ": room filter enabled with empty room list")
	}
	return nil
}

// roomAllowed reports whether room passes the allow-list, if enabled.
func (s Schema) roomAllowed(room string) bool {
	if !s.RoomFilter {
		return true
	}
	room = strings.TrimSpace(room)
	for _, r := range s.Rooms {
		if strings.EqualFold(strings.TrimSpace(r), room) {
			return true
		}
	}
	return false
}

// cell returns the trimmed cell at idx, or "" when idx is absent.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
