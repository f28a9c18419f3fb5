package feed

import (
	"errors"
	"strings"
	"time"

	appLog "hallcal/internal/log"
	"hallcal/internal/model"
)

// Skip reasons counted by the row pipeline.
const (
	skipShortRow     = "short_row"
	skipHidden       = "hidden"
	skipMissingField = "missing_field"
	skipBadDate      = "bad_date"
	skipRoom         = "room_not_allowed"
)

// errRoomsRejected is logged when the allow-list empties an otherwise
// readable feed.
var errRoomsRejected = errors.New("every dated row failed the room allow-list")

// Stats summarizes one pass over the feed rows.
type Stats struct {
	Rows    int // data rows, header excluded
	Kept    int
	Skipped map[string]int
}

// AllRoomsRejected reports a pass where rows reached the room check but none
// passed it.
func (s Stats) AllRoomsRejected() bool {
	return s.Kept == 0 && s.Skipped[skipRoom] > 0
}

// Parser turns feed rows into sessions according to a Schema.
type Parser struct {
	schema Schema
	format Format
	loc    *time.Location
}

// NewParser builds a Parser. A nil loc means time.Local.
func NewParser(schema Schema, format Format, loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{schema: schema, format: format, loc: loc}
}

// Schema returns the layout the parser reads.
func (p *Parser) Schema() Schema {
	return p.schema
}

// Parse decodes a whole payload. An error means the payload as a whole could
// not be read; bad rows are dropped silently.
func (p *Parser) Parse(src Source, raw []byte) ([]model.Session, error) {
	rows, err := ReadRows(raw, p.format)
	if err != nil {
		appLog.Error("feed parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	sessions, stats := p.ParseRows(rows)
	appLog.Info("feed parse completed",
		"id", src.ID,
		"schema", p.schema.Name,
		"rows", stats.Rows,
		"kept", stats.Kept,
		"skipped", stats.Skipped,
	)
	if stats.AllRoomsRejected() {
		appLog.Error("feed room filter dropped all rows; check feed.rooms", errRoomsRejected,
			"id", src.ID,
			"rooms", strings.Join(p.schema.Rooms, "|"),
			"rejected", stats.Skipped[skipRoom],
		)
	}
	return sessions, nil
}

// ParseRows runs the row pipeline. The first row is the header. Output keeps
// source order.
func (p *Parser) ParseRows(rows [][]string) ([]model.Session, Stats) {
	stats := Stats{Skipped: make(map[string]int)}
	sessions := make([]model.Session, 0)

	for i, row := range rows {
		if i == 0 {
			continue
		}
		stats.Rows++

		s, reason := p.parseRow(row)
		if reason != "" {
			stats.Skipped[reason]++
			appLog.Debug("feed row skipped", "row", i+1, "reason", reason)
			continue
		}
		sessions = append(sessions, s)
	}

	stats.Kept = len(sessions)
	return sessions, stats
}

// parseRow returns the session or the reason the row was dropped.
func (p *Parser) parseRow(row []string) (model.Session, string) {
	sc := p.schema

	if len(row) < sc.Width {
		return model.Session{}, skipShortRow
	}
	if !strings.EqualFold(cell(row, sc.Visible), "yes") {
		return model.Session{}, skipHidden
	}

	dateStr := cell(row, sc.Date)
	day := cell(row, sc.Day)
	publicName := cell(row, sc.PublicName)
	if dateStr == "" || day == "" || publicName == "" {
		return model.Session{}, skipMissingField
	}

	date, ok := ParseDate(dateStr, p.loc)
	if !ok {
		return model.Session{}, skipBadDate
	}

	room := cell(row, sc.Room)
	if !sc.roomAllowed(room) {
		return model.Session{}, skipRoom
	}

	return model.Session{
		Date:         date,
		Day:          day,
		StartTime:    NormalizeTime(cell(row, sc.Start)),
		EndTime:      NormalizeTime(cell(row, sc.End)),
		Room:         room,
		PublicName:   publicName,
		SessionType:  cell(row, sc.SessionType),
		ContactEmail: cell(row, sc.ContactEmail),
		Notes:        cell(row, sc.Notes),
	}, ""
}
