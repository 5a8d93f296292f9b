package models

import "slices"

// NotSpecified is written for any field the model did not return.
const NotSpecified = "Not specified"

// Extraction field keys, as requested from the model.
const (
	FieldTranscription = "transcription"
	FieldCompanyName   = "company_name"
	FieldPositionHeld  = "position_held"
	FieldDuration      = "duration"
	FieldLocation      = "location"
	FieldSection       = "section"
)

// Fields lists the extraction keys in the order they appear in the prompt.
var Fields = []string{
	FieldTranscription,
	FieldCompanyName,
	FieldPositionHeld,
	FieldDuration,
	FieldLocation,
	FieldSection,
}

// RowColumns is the spreadsheet column order. The transcription goes last.
var RowColumns = []string{
	FieldCompanyName,
	FieldPositionHeld,
	FieldDuration,
	FieldLocation,
	FieldSection,
	FieldTranscription,
}

// Sections is the closed list of resume/CV sections a certificate can be filed under.
var Sections = []string{
	"Social and Professional Affiliations",
	"Volunteer and Community/Campus Involvement",
	"Leadership Positions",
	"Class or Design Projects",
	"Research Experiences",
	"Practicum or Internship Experiences",
	"Teaching Experiences",
	"Study/Travel Abroad",
	"Honors, Awards, and Scholarships",
	"Certifications or Licensure",
	"Languages",
	"Computer/Technical Skills",
	"Laboratory Skills/Field Processes",
	"Presentations and Publications",
	"Special Interests or Hobbies",
	"Notable Achievements",
}

// IsKnownSection reports whether s is one of Sections.
func IsKnownSection(s string) bool {
	return slices.Contains(Sections, s)
}

// ImageMimeTypes are the source file types picked up by a batch run.
var ImageMimeTypes = []string{"image/jpeg", "image/png"}

// IsImageMimeType reports whether mimeType is one of ImageMimeTypes.
func IsImageMimeType(mimeType string) bool {
	return slices.Contains(ImageMimeTypes, mimeType)
}

// FileRef identifies one file in the storage backend.
type FileRef struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	MimeType string   `json:"mime_type"`
	Parents  []string `json:"parents,omitempty"`

	// Revision identifies the content when the backend reuses IDs (the S3 ETag).
	// Drive file IDs are never reused, so it stays empty there.
	Revision string `json:"revision,omitempty"`
}

// Key identifies this exact content of the file: the ID, plus the revision when known.
func (f FileRef) Key() string {
	if f.Revision == "" {
		return f.ID
	}
	return f.ID + "@" + f.Revision
}

// Extraction holds the fields returned by the model for one certificate.
// Keys the model left out are absent; use Get to read with the default applied.
type Extraction map[string]string

// Get returns the value for key, or NotSpecified when the key is absent.
func (e Extraction) Get(key string) string {
	if v, ok := e[key]; ok {
		return v
	}
	return NotSpecified
}

// Row returns the values in RowColumns order.
func (e Extraction) Row() []string {
	row := make([]string, 0, len(RowColumns))
	for _, key := range RowColumns {
		row = append(row, e.Get(key))
	}
	return row
}

// Missing returns the keys of Fields that are absent from e.
func (e Extraction) Missing() []string {
	var missing []string
	for _, key := range Fields {
		if _, ok := e[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}
