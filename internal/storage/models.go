// Package storage provides database models and repositories for the tariff engine.
package storage

import (
	"encoding/json"
	"time"
)

// Document represents an ingested source document.
type Document struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Language  string    `json:"language" db:"language"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Chunk represents a contiguous span of document text treated as one
// retrieval unit. The relational row mirrors the text held in the vector
// store under the same ID.
type Chunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID *int64    `json:"document_id,omitempty" db:"document_id"` // nil for orphaned/recovered chunks
	Text       string    `json:"text" db:"text"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// PreferentialAgreement is a single preferential-duty entry attached to a
// tariff position (e.g. "Union Européenne: 2.5%").
type PreferentialAgreement struct {
	Name string  `json:"name"`
	Rate float64 `json:"rate"`
}

// ProductMetadata is the structured annotation for a chunk: the tariff code,
// normalized categorical attributes, duty rates and the keyword/synonym blobs
// used by fuzzy metadata search. At most one row per chunk.
type ProductMetadata struct {
	ID          int64  `json:"id" db:"id"`
	CodeSH      string `json:"code_sh" db:"code_sh"`
	Description string `json:"description" db:"description"`

	// Normalized categorical attributes. Nil means the extractor found no
	// match in the chunk text.
	ProductType    *string `json:"product_type,omitempty" db:"product_type"`       // bovine, porcine, ovine, caprine, ...
	ProductState   *string `json:"product_state,omitempty" db:"product_state"`     // frais, congele, refrigere
	Boning         *string `json:"boning,omitempty" db:"boning"`                   // desossee, non_desossee, avec_os, sans_os
	AnimalAge      *string `json:"animal_age,omitempty" db:"animal_age"`           // moins_6_mois, 6_20_mois, plus_20_mois, ...
	AnatomicalPart *string `json:"anatomical_part,omitempty" db:"anatomical_part"` // carcasse, demi_carcasse, quartier, pieces, ...
	SpecificUse    *string `json:"specific_use,omitempty" db:"specific_use"`       // course, reproduction, parcs_zoologiques, ...

	// Duty rates as percentages; nil means unspecified in the source text.
	ImportDuty *float64 `json:"import_duty,omitempty" db:"import_duty"`
	TPI        *float64 `json:"tpi,omitempty" db:"tpi"`
	VAT        *float64 `json:"vat,omitempty" db:"vat"`

	Preferentials string  `json:"preferentials,omitempty" db:"preferentials"` // JSON array of PreferentialAgreement
	Quotas        *string `json:"quotas,omitempty" db:"quotas"`

	ChunkID *string `json:"chunk_id,omitempty" db:"chunk_id"`

	Keywords  string    `json:"keywords,omitempty" db:"keywords"`
	Synonyms  string    `json:"synonyms,omitempty" db:"synonyms"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Agreements decodes the serialized preferential-agreement list. A missing or
// malformed payload yields nil.
func (m *ProductMetadata) Agreements() []PreferentialAgreement {
	if m.Preferentials == "" {
		return nil
	}
	var agreements []PreferentialAgreement
	if err := json.Unmarshal([]byte(m.Preferentials), &agreements); err != nil {
		return nil
	}
	return agreements
}

// SetAgreements serializes the preferential-agreement list.
func (m *ProductMetadata) SetAgreements(agreements []PreferentialAgreement) {
	if len(agreements) == 0 {
		m.Preferentials = ""
		return
	}
	data, err := json.Marshal(agreements)
	if err != nil {
		return
	}
	m.Preferentials = string(data)
}
