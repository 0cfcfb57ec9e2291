package entity

// Kind identifies the category of a detected sensitive value and drives
// which fake-generation strategy applies to it.
type Kind string

const (
	KindPerson     Kind = "PERSON"
	KindEmail      Kind = "EMAIL"
	KindSSN        Kind = "SSN"
	KindCreditCard Kind = "CREDIT_CARD"
	KindPhone      Kind = "PHONE"
	KindOther      Kind = "OTHER"
)

// Entity is a detected span of sensitive text. Start and End are byte
// offsets into the source text, with End exclusive.
type Entity struct {
	Kind       Kind    `json:"kind"`
	Value      string  `json:"value"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Length returns the span length in bytes.
func (e Entity) Length() int {
	return e.End - e.Start
}

// Overlaps reports whether the spans of e and other intersect.
func (e Entity) Overlaps(other Entity) bool {
	return e.Start < other.End && other.Start < e.End
}

// Resolution pairs a detected entity with the fake value that replaces it.
// One resolution exists per distinct original value in a session.
type Resolution struct {
	Entity Entity `json:"entity"`
	Fake   string `json:"fake"`
}
