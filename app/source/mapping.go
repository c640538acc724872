package source

var defaultMappings = map[string]FieldMapping{
	FormatJSONLD: {
		Title:        "name",
		Description:  "description",
		Start:        "startDate",
		End:          "endDate",
		VenueName:    "location.name",
		VenueAddress: "location.address",
		Latitude:     "location.geo.latitude",
		Longitude:    "location.geo.longitude",
		Organizer:    "organizer.name",
		ExternalURL:  "url",
		ImageURL:     "image",
	},
	FormatICal: {
		Title:       "SUMMARY",
		Description: "DESCRIPTION",
		Start:       "DTSTART",
		End:         "DTEND",
		Category:    "CATEGORIES",
		VenueName:   "LOCATION",
		Latitude:    "GEO.lat",
		Longitude:   "GEO.lon",
		Organizer:   "ORGANIZER",
		ExternalURL: "URL",
		ImageURL:    "IMAGE",
	},
	FormatRSS: {
		Title:       "title",
		Description: "description",
		Start:       "ev:startdate",
		End:         "ev:enddate",
		Category:    "ev:type",
		VenueName:   "ev:location",
		Organizer:   "ev:organizer",
		ExternalURL: "link",
		ImageURL:    "image",
	},
}

// DefaultMapping returns the built-in mapping for format.
func DefaultMapping(format string) FieldMapping {
	return defaultMappings[format]
}

// WithDefaults fills every unmapped field from the format's default mapping.
// A field set to "-" is explicitly unmapped.
func (m FieldMapping) WithDefaults(format string) FieldMapping {
	d := DefaultMapping(format)
	pick := func(v, def string) string {
		switch v {
		case "":
			return def
		case "-":
			return ""
		}
		return v
	}
	return FieldMapping{
		Title:        pick(m.Title, d.Title),
		Description:  pick(m.Description, d.Description),
		Start:        pick(m.Start, d.Start),
		End:          pick(m.End, d.End),
		Category:     pick(m.Category, d.Category),
		VenueName:    pick(m.VenueName, d.VenueName),
		VenueRoom:    pick(m.VenueRoom, d.VenueRoom),
		VenueAddress: pick(m.VenueAddress, d.VenueAddress),
		Latitude:     pick(m.Latitude, d.Latitude),
		Longitude:    pick(m.Longitude, d.Longitude),
		Organizer:    pick(m.Organizer, d.Organizer),
		ExternalURL:  pick(m.ExternalURL, d.ExternalURL),
		ImageURL:     pick(m.ImageURL, d.ImageURL),
	}
}
