package imaging

import "strings"

// EXIF tag keys read from the capture-metadata map.
const (
	TagDateTime         = "DateTime"
	TagDateTimeOriginal = "DateTimeOriginal"
	TagMake             = "Make"
	TagModel            = "Model"
	TagSoftware         = "Software"
	TagGPSLatitude      = "GPSLatitude"
	TagGPSLongitude     = "GPSLongitude"
)

// ExifData is the subset of capture metadata the analyzer reasons about.
type ExifData struct {
	DateTime           string `json:"date_time,omitempty"`
	Make               string `json:"make,omitempty"`
	Model              string `json:"model,omitempty"`
	Software           string `json:"software,omitempty"`
	GPSLatitude        string `json:"gps_latitude,omitempty"`
	GPSLongitude       string `json:"gps_longitude,omitempty"`
	WasEdited          bool   `json:"was_edited"`
	MissingCaptureInfo bool   `json:"missing_capture_info"`
}

// ParseExif reads the known tags out of a key/value map produced by an
// external decoder.
func ParseExif(tags map[string]string) *ExifData {
	get := func(k string) string { return strings.TrimSpace(tags[k]) }

	e := &ExifData{
		DateTime:     get(TagDateTimeOriginal),
		Make:         get(TagMake),
		Model:        get(TagModel),
		Software:     get(TagSoftware),
		GPSLatitude:  get(TagGPSLatitude),
		GPSLongitude: get(TagGPSLongitude),
	}
	if e.DateTime == "" {
		e.DateTime = get(TagDateTime)
	}
	e.WasEdited = e.Software != "" && isEditingSoftware(e.Software)
	e.MissingCaptureInfo = e.DateTime == "" && e.Make == ""
	return e
}

// HasGPS reports whether both GPS coordinates are present.
func (e *ExifData) HasGPS() bool {
	return e != nil && e.GPSLatitude != "" && e.GPSLongitude != ""
}
