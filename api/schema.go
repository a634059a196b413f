package api

// Taxon is the serialized form of one node of an assembled rank tree.
// The field names follow the document format the store exports and the
// assemblers produce, so existing tree files can be re-imported unchanged.
type Taxon struct {
	// Rank is the rank code (kl, or, fa, ge, so, oso).
	Rank string `json:"rang"`
	// Latin is the scientific name.
	Latin string `json:"latijn"`
	// Seq orders the taxon among its siblings. Not a uniqueness key.
	Seq int64 `json:"seq,omitempty"`
	// Extinct is omitted when false.
	Extinct bool `json:"uitgestorven,omitempty"`
	// Names maps language code to common name.
	Names map[string]string `json:"namen,omitempty"`
	// Children are the sub-ranks in input order.
	Children []Taxon `json:"subrangen,omitempty"`
}

// RenamePair is one entry of a batch rename.
type RenamePair struct {
	Old string `json:"old" yaml:"old"`
	New string `json:"new" yaml:"new"`
}
