package domain

// RawAnalysis is the unvalidated structured output of the vision model.
// Nothing in it is trusted: the classifier normalizes every field.
type RawAnalysis struct {
	// Category is whatever the model named, free form.
	Category string
	// Severity holds the raw decoded JSON value (json.Number, float64, string,
	// nil, ...). It is coerced by the classifier.
	Severity      interface{}
	Scale         string
	Justification string

	// Supporting evidence. All optional.
	Description     string
	Objects         []string
	Environment     string
	IndoorHousehold bool
	Confidence      *float64
}

// Image is a decoded and re-encoded image ready to be sent to a model.
type Image struct {
	Data         []byte
	MIMEType     string
	Width        int
	Height       int
	SourceFormat string
}
